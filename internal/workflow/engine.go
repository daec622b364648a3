package workflow

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/policy"
	"github.com/keza/ikimina/internal/storage"
)

var transitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ikimina_workflow_transitions_total",
		Help: "Workflow transition attempts by entity, transition and outcome.",
	},
	[]string{"entity", "transition", "outcome"},
)

// Publisher is the engine's view of the notification channel.
type Publisher interface {
	Publish(ctx context.Context, e models.Event) (int, error)
}

// lockStripes bounds the per-entity lock table. Two entities may share a
// stripe; that only costs parallelism, never correctness.
const lockStripes = 64

// Engine validates and applies status transitions. Persistence via the
// store is the commit point: the event is published only after a
// successful save, so side effects are at-most-once.
type Engine struct {
	store   storage.Store
	channel Publisher
	timeout time.Duration
	logger  *slog.Logger

	locks [lockStripes]sync.Mutex

	// now is swapped in tests for deterministic timestamps.
	now func() int64
}

// NewEngine creates an engine. timeout bounds each persistence call and
// each publish; zero means 5s.
func NewEngine(store storage.Store, channel Publisher, timeout time.Duration, logger *slog.Logger) *Engine {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		channel: channel,
		timeout: timeout,
		logger:  logger,
		now:     func() int64 { return time.Now().Unix() },
	}
}

// Request is one transition attempt. Entity must be the latest snapshot
// the caller knows; the engine fails with ErrStaleVersion if the
// persisted version has moved on.
type Request struct {
	Entity     models.Entity
	Transition models.Transition
	Actor      models.Identity
	Payload    models.TransitionPayload
}

// Transition validates and applies one transition, returning the new
// snapshot. Preconditions run in order: state-machine legality, then
// authorization, then payload invariants. On success exactly one event
// scoped to the entity's group is emitted, after the save commits.
func (e *Engine) Transition(ctx context.Context, req Request) (models.Entity, error) {
	ent := req.Entity
	unlock := e.lock(ent.EntityType(), ent.EntityID())
	defer unlock()

	snapshot, err := e.transition(ctx, req)
	transitionsTotal.WithLabelValues(string(ent.EntityType()), string(req.Transition), outcomeLabel(err)).Inc()
	return snapshot, err
}

func (e *Engine) transition(ctx context.Context, req Request) (models.Entity, error) {
	ent := req.Entity

	next, err := Resolve(ent.EntityType(), req.Transition, ent.CurrentStatus())
	if err != nil {
		return nil, err
	}

	rel, err := e.relationship(ctx, ent, req.Actor)
	if err != nil {
		return nil, err
	}
	if !policy.Decide(ent.EntityType(), req.Transition, req.Actor, rel) {
		return nil, ErrUnauthorized
	}

	if err := validatePayload(req.Transition, req.Payload); err != nil {
		return nil, err
	}

	decidedAt := e.now()
	snapshot := ent.Apply(next, req.Actor.UserID, decidedAt, req.Payload)

	saveCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.store.Save(saveCtx, snapshot, ent.CurrentVersion()); err != nil {
		switch {
		case errors.Is(err, storage.ErrVersionConflict):
			return nil, ErrStaleVersion
		case errors.Is(err, context.DeadlineExceeded):
			return nil, ErrTimeout
		default:
			return nil, fmt.Errorf("persist transition: %w", err)
		}
	}

	e.emit(ctx, snapshot, req)

	if ent.EntityType() == models.EntityGroup && next == models.StatusRejected {
		e.cascadeGroupRejection(ctx, ent.EntityID(), req.Actor)
	}

	return snapshot, nil
}

// relationship loads whatever is needed to decide the actor's relation to
// the entity: requester identity comes from the snapshot, leadership from
// the owning group.
func (e *Engine) relationship(ctx context.Context, ent models.Entity, actor models.Identity) (policy.Relationship, error) {
	rel := policy.Relationship{
		IsRequester: actor.UserID == ent.RequestedBy(),
	}

	if g, ok := ent.(*models.Group); ok {
		rel.IsGroupLeader = actor.UserID == g.LeaderID()
		return rel, nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	loaded, err := e.store.Load(loadCtx, models.EntityGroup, ent.GroupRef())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return rel, ErrTimeout
		}
		return rel, fmt.Errorf("load group %s: %w", ent.GroupRef(), err)
	}
	group, ok := loaded.(*models.Group)
	if !ok {
		return rel, fmt.Errorf("group %s: unexpected snapshot type %T", ent.GroupRef(), loaded)
	}
	rel.IsGroupLeader = actor.UserID == group.LeaderID()
	return rel, nil
}

// validatePayload enforces transition-specific invariants.
func validatePayload(tr models.Transition, p models.TransitionPayload) error {
	fields := map[string]string{}
	if tr == models.TransitionReject && p.Reason == "" {
		fields["reason"] = "rejection requires a non-empty reason"
	}
	if tr == models.TransitionRecord && p.ReceiptRef == "" {
		fields["receipt_ref"] = "recording a payment requires a receipt reference"
	}
	if len(fields) > 0 {
		return &InvalidPayloadError{Fields: fields}
	}
	return nil
}

// emit publishes the single event for a committed transition. Publish
// failures are logged, never surfaced: the transition is already
// committed and notifications are a convenience signal.
func (e *Engine) emit(ctx context.Context, snapshot models.Entity, req Request) {
	event := models.Event{
		ID:         uuid.New().String(),
		GroupID:    snapshot.GroupRef(),
		Type:       models.EventType(snapshot.EntityType(), snapshot.CurrentStatus()),
		EntityType: snapshot.EntityType(),
		EntityID:   snapshot.EntityID(),
		Payload:    map[string]string{"actor": req.Actor.UserID},
		CreatedAt:  e.now(),
	}
	if req.Payload.Reason != "" {
		event.Payload["reason"] = req.Payload.Reason
	}
	// Membership decisions concern one user; scope delivery to them.
	if m, ok := snapshot.(*models.Membership); ok {
		event.Recipient = m.UserID
	}

	pubCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if _, err := e.channel.Publish(pubCtx, event); err != nil {
		e.logger.Warn("event publish failed",
			"event_type", event.Type,
			"group_id", event.GroupID,
			"error", err,
		)
	}
}

// cascadeGroupRejection invalidates the group's memberships after the
// group itself was rejected: pending requests become rejected, approved
// members become removed. Each forced change is saved and emitted on its
// own; failures are logged and skipped since the group decision is
// already committed.
func (e *Engine) cascadeGroupRejection(ctx context.Context, groupID string, actor models.Identity) {
	listCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	memberships, err := e.store.ListGroupMemberships(listCtx, groupID)
	if err != nil {
		e.logger.Error("membership cascade: list failed", "group_id", groupID, "error", err)
		return
	}

	payload := models.TransitionPayload{Reason: "group rejected"}
	for _, m := range memberships {
		var forced models.Status
		switch m.Status {
		case models.StatusPending:
			forced = models.StatusRejected
		case models.StatusApproved:
			forced = models.StatusRemoved
		default:
			continue
		}

		snapshot := m.Apply(forced, actor.UserID, e.now(), payload)
		saveCtx, cancel := context.WithTimeout(ctx, e.timeout)
		err := e.store.Save(saveCtx, snapshot, m.Version)
		cancel()
		if err != nil {
			e.logger.Error("membership cascade: save failed",
				"group_id", groupID,
				"user_id", m.UserID,
				"error", err,
			)
			continue
		}
		e.emit(ctx, snapshot, Request{Entity: m, Actor: actor, Payload: payload})
	}
}

// lock serializes transitions per entity. Entities hashing to different
// stripes proceed fully in parallel.
func (e *Engine) lock(t models.EntityType, id string) func() {
	h := fnv.New32a()
	h.Write([]byte(t))
	h.Write([]byte("/"))
	h.Write([]byte(id))
	mu := &e.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func outcomeLabel(err error) string {
	var (
		invalid *InvalidTransitionError
		already *AlreadyInStateError
		payload *InvalidPayloadError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &invalid):
		return "invalid_state"
	case errors.As(err, &already):
		return "already_in_state"
	case errors.As(err, &payload):
		return "invalid_payload"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrStaleVersion):
		return "stale_version"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
