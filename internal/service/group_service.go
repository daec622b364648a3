package service

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/storage"
	"github.com/keza/ikimina/internal/workflow"
)

// GroupService exposes group creation and the group approval workflow.
type GroupService struct {
	store  storage.Store
	engine *workflow.Engine
}

// NewGroupService creates a new GroupService.
func NewGroupService(store storage.Store, engine *workflow.Engine) *GroupService {
	return &GroupService{store: store, engine: engine}
}

// newGroupCode derives a short human-readable join code.
func newGroupCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

// Create registers a new group in pending state. The creator becomes the
// group's leader once a site admin approves it.
func (s *GroupService) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}

	group := &models.Group{
		ID:        uuid.New().String(),
		Code:      newGroupCode(),
		Name:      req.Name,
		Status:    models.StatusPending,
		CreatedBy: actor.UserID,
		CreatedAt: time.Now().Unix(),
		Version:   1,
	}

	if err := s.store.Save(r.Context(), group, 0); err != nil {
		slog.Error("CreateGroup failed", "error", err)
		writeError(w, err)
		return
	}

	slog.Info("Group created", "group_id", group.ID, "created_by", actor.UserID)
	writeJSON(w, http.StatusCreated, map[string]any{"group": toGroupJSON(group)})
}

// List returns groups, optionally filtered by ?status=.
func (s *GroupService) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(w, r); !ok {
		return
	}

	groups, err := s.store.ListGroups(r.Context(), models.Status(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groupList(groups)})
}

// ListActive returns approved groups available for joining.
func (s *GroupService) ListActive(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(w, r); !ok {
		return
	}

	groups, err := s.store.ListGroups(r.Context(), models.StatusApproved)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groupList(groups)})
}

// ListPending returns groups awaiting a decision. Site admins only.
func (s *GroupService) ListPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	if actor.Role != models.RoleSiteAdmin {
		writeError(w, workflow.ErrUnauthorized)
		return
	}

	groups, err := s.store.ListGroups(r.Context(), models.StatusPending)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groupList(groups)})
}

// Get returns one group by ID.
func (s *GroupService) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(w, r); !ok {
		return
	}

	ent, err := s.store.Load(r.Context(), models.EntityGroup, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"group": toGroupJSON(ent.(*models.Group))})
}

// Approve transitions a pending group to approved. Site admins only
// (enforced by the policy inside the engine).
func (s *GroupService) Approve(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, models.TransitionApprove, models.TransitionPayload{})
}

// Reject transitions a pending group to rejected and cascades membership
// invalidation. Requires a reason.
func (s *GroupService) Reject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.transition(w, r, models.TransitionReject, models.TransitionPayload{Reason: req.Reason})
}

func (s *GroupService) transition(w http.ResponseWriter, r *http.Request, tr models.Transition, payload models.TransitionPayload) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	ent, err := s.store.Load(r.Context(), models.EntityGroup, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	snapshot, err := s.engine.Transition(r.Context(), workflow.Request{
		Entity:     ent,
		Transition: tr,
		Actor:      actor,
		Payload:    payload,
	})
	if err != nil {
		slog.Warn("Group transition failed", "group_id", ent.EntityID(), "transition", tr, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("Group transition applied", "group_id", ent.EntityID(), "transition", tr, "actor", actor.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"group": toGroupJSON(snapshot.(*models.Group))})
}

func groupList(groups []*models.Group) []groupJSON {
	out := make([]groupJSON, len(groups))
	for i, g := range groups {
		out[i] = toGroupJSON(g)
	}
	return out
}
