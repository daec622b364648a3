// Package notify implements the scoped real-time notification channel:
// per-group fan-out of workflow events to currently connected clients.
// Delivery is best-effort and at-most-once; there is no durable queue and
// no replay after reconnect. Clients reconcile true state from the store.
package notify

import (
	"context"
	"sync"

	"github.com/keza/ikimina/internal/models"
)

// Subscriber is one client connection registered with the channel.
// Deliver must not block; implementations buffer and report false when
// the event had to be dropped.
type Subscriber interface {
	// UserID identifies the authenticated user behind the connection,
	// used to route single-recipient events.
	UserID() string

	// Deliver hands the event to the connection. Returns false if the
	// connection could not accept it (buffer full, closed).
	Deliver(e models.Event) bool
}

// Channel fans events out to subscribers by group ID. All methods are
// safe for concurrent use; Publish sees a consistent snapshot of the
// subscriber set taken at call time.
type Channel struct {
	mu sync.Mutex

	// groups maps group ID to its current subscribers.
	groups map[string]map[Subscriber]struct{}

	// subs maps each subscriber to the group IDs it follows, so Drop
	// can clean up without scanning every group.
	subs map[Subscriber]map[string]struct{}
}

// NewChannel creates an empty channel.
func NewChannel() *Channel {
	return &Channel{
		groups: make(map[string]map[Subscriber]struct{}),
		subs:   make(map[Subscriber]map[string]struct{}),
	}
}

// Subscribe registers the connection's interest in a group. Subscribing
// twice is a no-op; a connection may follow any number of groups.
func (c *Channel) Subscribe(s Subscriber, groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.groups[groupID] == nil {
		c.groups[groupID] = make(map[Subscriber]struct{})
	}
	c.groups[groupID][s] = struct{}{}

	if c.subs[s] == nil {
		c.subs[s] = make(map[string]struct{})
	}
	c.subs[s][groupID] = struct{}{}
}

// Unsubscribe removes the connection's interest in a group. Removing a
// pair that was never subscribed is a no-op.
func (c *Channel) Unsubscribe(s Subscriber, groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(s, groupID)
}

// Drop removes every subscription held by the connection. Called on
// transport disconnect; the client must re-subscribe after reconnecting.
func (c *Channel) Drop(s Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for groupID := range c.subs[s] {
		c.removeLocked(s, groupID)
	}
}

func (c *Channel) removeLocked(s Subscriber, groupID string) {
	if set := c.groups[groupID]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(c.groups, groupID)
		}
	}
	if set := c.subs[s]; set != nil {
		delete(set, groupID)
		if len(set) == 0 {
			delete(c.subs, s)
		}
	}
}

// Publish delivers the event to every connection subscribed to
// event.GroupID, or only to the recipient's connections when the event is
// single-recipient. The subscriber list is snapshotted under the lock and
// delivery happens outside it, so concurrent subscribe/unsubscribe never
// produces partial delivery over a half-mutated set. Returns the number
// of connections the event was handed to.
func (c *Channel) Publish(ctx context.Context, e models.Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	targets := make([]Subscriber, 0, len(c.groups[e.GroupID]))
	for s := range c.groups[e.GroupID] {
		if e.Recipient != "" && s.UserID() != e.Recipient {
			continue
		}
		targets = append(targets, s)
	}
	c.mu.Unlock()

	delivered := 0
	for _, s := range targets {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if s.Deliver(e) {
			delivered++
		}
	}
	return delivered, nil
}

// SubscriberCount returns the number of connections following a group.
func (c *Channel) SubscriberCount(groupID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.groups[groupID])
}
