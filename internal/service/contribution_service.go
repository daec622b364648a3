package service

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/storage"
	"github.com/keza/ikimina/internal/workflow"
)

// ContributionService exposes contribution submission and approval.
type ContributionService struct {
	store  storage.Store
	engine *workflow.Engine
}

// NewContributionService creates a new ContributionService.
func NewContributionService(store storage.Store, engine *workflow.Engine) *ContributionService {
	return &ContributionService{store: store, engine: engine}
}

// requireApprovedMember verifies the caller holds an approved membership
// in the group. Request-style creations are member-only; decisions go
// through the engine's policy instead.
func requireApprovedMember(w http.ResponseWriter, r *http.Request, store storage.Store, groupID, userID string) bool {
	membership, err := store.GetMembership(r.Context(), groupID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, workflow.ErrUnauthorized)
			return false
		}
		writeError(w, err)
		return false
	}
	if membership.Status != models.StatusApproved {
		writeError(w, workflow.ErrUnauthorized)
		return false
	}
	return true
}

// Create submits a new pending contribution. The amount is non-negative
// and fixed at creation.
func (s *ContributionService) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req struct {
		GroupID string `json:"group_id"`
		Amount  string `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GroupID == "" {
		badRequest(w, "group_id is required")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		badRequest(w, "amount must be a non-negative decimal")
		return
	}

	if !requireApprovedMember(w, r, s.store, req.GroupID, actor.UserID) {
		return
	}

	contribution := &models.Contribution{
		ID:          uuid.New().String(),
		GroupID:     req.GroupID,
		MemberID:    actor.UserID,
		Amount:      amount,
		Status:      models.StatusPending,
		SubmittedAt: time.Now().Unix(),
		Version:     1,
	}

	if err := s.store.Save(r.Context(), contribution, 0); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("Contribution submitted",
		"contribution_id", contribution.ID, "group_id", req.GroupID, "member_id", actor.UserID)
	writeJSON(w, http.StatusCreated, map[string]any{"contribution": toContributionJSON(contribution)})
}

// ListGroup lists a group's contributions (?groupId=).
func (s *ContributionService) ListGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(w, r); !ok {
		return
	}

	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		badRequest(w, "groupId query parameter is required")
		return
	}

	contributions, err := s.store.ListGroupContributions(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contributions": contributionList(contributions)})
}

// ListMine lists the caller's contributions across groups.
func (s *ContributionService) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	contributions, err := s.store.ListMemberContributions(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contributions": contributionList(contributions)})
}

// Approve confirms a pending contribution.
func (s *ContributionService) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	ent, err := s.store.Load(r.Context(), models.EntityContribution, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	snapshot, err := s.engine.Transition(r.Context(), workflow.Request{
		Entity:     ent,
		Transition: models.TransitionApprove,
		Actor:      actor,
	})
	if err != nil {
		slog.Warn("Contribution approval failed", "contribution_id", ent.EntityID(), "error", err)
		writeError(w, err)
		return
	}

	slog.Info("Contribution approved", "contribution_id", ent.EntityID(), "actor", actor.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"contribution": toContributionJSON(snapshot.(*models.Contribution))})
}

func contributionList(contributions []*models.Contribution) []contributionJSON {
	out := make([]contributionJSON, len(contributions))
	for i, c := range contributions {
		out[i] = toContributionJSON(c)
	}
	return out
}
