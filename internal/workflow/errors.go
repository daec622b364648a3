package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/keza/ikimina/internal/models"
)

var (
	// ErrUnauthorized means the identity is valid but the policy denies
	// the transition. No state change occurred.
	ErrUnauthorized = errors.New("not authorized for this transition")

	// ErrStaleVersion means the persisted version no longer matches the
	// snapshot the caller transitioned from. Reload and retry.
	ErrStaleVersion = errors.New("entity version is stale, reload and retry")

	// ErrTimeout means the commit did not happen within the engine's
	// deadline. The transition is safe to retry.
	ErrTimeout = errors.New("transition timed out before commit")
)

// InvalidTransitionError reports a transition that is illegal for the
// entity's current state. It names both states so the client can resync.
type InvalidTransitionError struct {
	Entity     models.EntityType
	Transition models.Transition
	Current    models.Status
	Requested  models.Status
}

func (e *InvalidTransitionError) Error() string {
	if e.Requested == "" {
		return fmt.Sprintf("%s: transition %q not defined (current state %q)", e.Entity, e.Transition, e.Current)
	}
	return fmt.Sprintf("%s: cannot %s from %q to %q", e.Entity, e.Transition, e.Current, e.Requested)
}

// AlreadyInStateError reports an idempotent retry: the entity already
// holds the status the transition would produce.
type AlreadyInStateError struct {
	Entity models.EntityType
	Status models.Status
}

func (e *AlreadyInStateError) Error() string {
	return fmt.Sprintf("%s is already %q", e.Entity, e.Status)
}

// InvalidPayloadError reports missing or invalid transition payload
// fields, keyed by field name.
type InvalidPayloadError struct {
	Fields map[string]string
}

func (e *InvalidPayloadError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, f := range names {
		parts[i] = fmt.Sprintf("%s: %s", f, e.Fields[f])
	}
	return "invalid payload: " + strings.Join(parts, "; ")
}
