package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/storage"
	"github.com/keza/ikimina/internal/workflow"
)

// MembershipService exposes join requests and the membership decision
// workflow.
type MembershipService struct {
	store  storage.Store
	engine *workflow.Engine
}

// NewMembershipService creates a new MembershipService.
func NewMembershipService(store storage.Store, engine *workflow.Engine) *MembershipService {
	return &MembershipService{store: store, engine: engine}
}

// resolveGroup accepts a canonical group ID or a human-readable join
// code and returns the group. Codes are resolved here, before the
// workflow engine is ever involved.
func (s *MembershipService) resolveGroup(ctx context.Context, ref string) (*models.Group, error) {
	ent, err := s.store.Load(ctx, models.EntityGroup, ref)
	if err == nil {
		return ent.(*models.Group), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return s.store.GetGroupByCode(ctx, ref)
}

// Join creates a pending membership request. The group reference may be
// an ID or a join code; the group must be approved to accept joiners.
func (s *MembershipService) Join(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req struct {
		GroupID string `json:"group_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GroupID == "" {
		badRequest(w, "group_id is required")
		return
	}

	group, err := s.resolveGroup(r.Context(), req.GroupID)
	if err != nil {
		writeError(w, err)
		return
	}
	if group.Status != models.StatusApproved {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":         "group is not open for joining",
			"current_state": group.Status,
		})
		return
	}

	membership := &models.Membership{
		ID:          uuid.New().String(),
		GroupID:     group.ID,
		UserID:      actor.UserID,
		Status:      models.StatusPending,
		RequestedAt: time.Now().Unix(),
		Version:     1,
	}

	if err := s.store.Save(r.Context(), membership, 0); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "join request already exists for this group"})
			return
		}
		writeError(w, err)
		return
	}

	slog.Info("Join request created", "group_id", group.ID, "user_id", actor.UserID)
	writeJSON(w, http.StatusCreated, map[string]any{"membership": toMembershipJSON(membership)})
}

// PendingRequests lists a group's pending join requests.
func (s *MembershipService) PendingRequests(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(w, r); !ok {
		return
	}

	memberships, err := s.store.ListGroupMemberships(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	pending := memberships[:0]
	for _, m := range memberships {
		if m.Status == models.StatusPending {
			pending = append(pending, m)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": membershipList(pending)})
}

// Members lists a group's memberships, optionally filtered by ?status=.
func (s *MembershipService) Members(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(w, r); !ok {
		return
	}

	memberships, err := s.store.ListGroupMemberships(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if status := models.Status(r.URL.Query().Get("status")); status != "" {
		filtered := memberships[:0]
		for _, m := range memberships {
			if m.Status == status {
				filtered = append(filtered, m)
			}
		}
		memberships = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": membershipList(memberships)})
}

// Approve accepts a pending join request.
func (s *MembershipService) Approve(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, models.TransitionApprove)
}

// Reject declines a pending join request. Requires a reason.
func (s *MembershipService) Reject(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, models.TransitionReject)
}

// Remove removes an approved member from the group.
func (s *MembershipService) Remove(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, models.TransitionRemove)
}

func (s *MembershipService) decide(w http.ResponseWriter, r *http.Request, tr models.Transition) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req struct {
		GroupID string `json:"group_id"`
		UserID  string `json:"user_id"`
		Reason  string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GroupID == "" || req.UserID == "" {
		badRequest(w, "group_id and user_id are required")
		return
	}

	membership, err := s.store.GetMembership(r.Context(), req.GroupID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	snapshot, err := s.engine.Transition(r.Context(), workflow.Request{
		Entity:     membership,
		Transition: tr,
		Actor:      actor,
		Payload:    models.TransitionPayload{Reason: req.Reason},
	})
	if err != nil {
		slog.Warn("Membership transition failed",
			"group_id", req.GroupID, "user_id", req.UserID, "transition", tr, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("Membership transition applied",
		"group_id", req.GroupID, "user_id", req.UserID, "transition", tr, "actor", actor.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"membership": toMembershipJSON(snapshot.(*models.Membership))})
}

func membershipList(memberships []*models.Membership) []membershipJSON {
	out := make([]membershipJSON, len(memberships))
	for i, m := range memberships {
		out[i] = toMembershipJSON(m)
	}
	return out
}
