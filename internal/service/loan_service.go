package service

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/storage"
	"github.com/keza/ikimina/internal/workflow"
)

// LoanService exposes loan requests and the loan decision workflow.
type LoanService struct {
	store  storage.Store
	engine *workflow.Engine
}

// NewLoanService creates a new LoanService.
func NewLoanService(store storage.Store, engine *workflow.Engine) *LoanService {
	return &LoanService{store: store, engine: engine}
}

// Request submits a new pending loan. The amount must be strictly
// positive.
func (s *LoanService) Request(w http.ResponseWriter, r *http.Request) {
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
	if err != nil || !amount.IsPositive() {
		badRequest(w, "amount must be a positive decimal")
		return
	}

	if !requireApprovedMember(w, r, s.store, req.GroupID, actor.UserID) {
		return
	}

	loan := &models.Loan{
		ID:          uuid.New().String(),
		GroupID:     req.GroupID,
		BorrowerID:  actor.UserID,
		Amount:      amount,
		Status:      models.StatusPending,
		RequestedAt: time.Now().Unix(),
		Version:     1,
	}

	if err := s.store.Save(r.Context(), loan, 0); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("Loan requested", "loan_id", loan.ID, "group_id", req.GroupID, "borrower_id", actor.UserID)
	writeJSON(w, http.StatusCreated, map[string]any{"loan": toLoanJSON(loan)})
}

// ListGroup lists a group's loans (?groupId=).
func (s *LoanService) ListGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(w, r); !ok {
		return
	}

	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		badRequest(w, "groupId query parameter is required")
		return
	}

	loans, err := s.store.ListGroupLoans(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": loanList(loans)})
}

// ListMine lists the caller's loans across groups.
func (s *LoanService) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	loans, err := s.store.ListBorrowerLoans(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": loanList(loans)})
}

// Approve grants a pending loan.
func (s *LoanService) Approve(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, models.TransitionApprove, models.TransitionPayload{})
}

// Reject declines a pending loan. Requires a reason.
func (s *LoanService) Reject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.transition(w, r, models.TransitionReject, models.TransitionPayload{Reason: req.Reason})
}

// Repay marks an approved loan as repaid.
func (s *LoanService) Repay(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, models.TransitionRepay, models.TransitionPayload{})
}

func (s *LoanService) transition(w http.ResponseWriter, r *http.Request, tr models.Transition, payload models.TransitionPayload) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	ent, err := s.store.Load(r.Context(), models.EntityLoan, r.PathValue("id"))
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
		slog.Warn("Loan transition failed", "loan_id", ent.EntityID(), "transition", tr, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("Loan transition applied", "loan_id", ent.EntityID(), "transition", tr, "actor", actor.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"loan": toLoanJSON(snapshot.(*models.Loan))})
}

func loanList(loans []*models.Loan) []loanJSON {
	out := make([]loanJSON, len(loans))
	for i, l := range loans {
		out[i] = toLoanJSON(l)
	}
	return out
}
