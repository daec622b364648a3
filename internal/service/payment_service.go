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

// PaymentService exposes payment requests and the payment workflow up to
// recording with a receipt reference.
type PaymentService struct {
	store  storage.Store
	engine *workflow.Engine
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(store storage.Store, engine *workflow.Engine) *PaymentService {
	return &PaymentService{store: store, engine: engine}
}

// Request submits a new pending payment request against a loan or a
// contribution (exactly one).
func (s *PaymentService) Request(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req struct {
		GroupID        string `json:"group_id"`
		LoanID         string `json:"loan_id"`
		ContributionID string `json:"contribution_id"`
		Amount         string `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GroupID == "" {
		badRequest(w, "group_id is required")
		return
	}
	if (req.LoanID == "") == (req.ContributionID == "") {
		badRequest(w, "exactly one of loan_id or contribution_id is required")
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

	payment := &models.PaymentRequest{
		ID:             uuid.New().String(),
		GroupID:        req.GroupID,
		LoanID:         req.LoanID,
		ContributionID: req.ContributionID,
		PayerID:        actor.UserID,
		Amount:         amount,
		Status:         models.StatusPending,
		RequestedAt:    time.Now().Unix(),
		Version:        1,
	}

	if err := s.store.Save(r.Context(), payment, 0); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("Payment requested", "payment_id", payment.ID, "group_id", req.GroupID, "payer_id", actor.UserID)
	writeJSON(w, http.StatusCreated, map[string]any{"payment": toPaymentJSON(payment)})
}

// ListGroup lists a group's payment requests (?groupId=).
func (s *PaymentService) ListGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(w, r); !ok {
		return
	}

	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		badRequest(w, "groupId query parameter is required")
		return
	}

	payments, err := s.store.ListGroupPayments(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": paymentList(payments)})
}

// Approve accepts a pending payment request.
func (s *PaymentService) Approve(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, models.TransitionApprove, models.TransitionPayload{})
}

// Reject declines a pending payment request. Requires a reason.
func (s *PaymentService) Reject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.transition(w, r, models.TransitionReject, models.TransitionPayload{Reason: req.Reason})
}

// Record marks an approved payment as recorded. The receipt reference is
// mandatory; without it the engine fails the payload check.
func (s *PaymentService) Record(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiptRef string `json:"receipt_ref"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.transition(w, r, models.TransitionRecord, models.TransitionPayload{ReceiptRef: req.ReceiptRef})
}

func (s *PaymentService) transition(w http.ResponseWriter, r *http.Request, tr models.Transition, payload models.TransitionPayload) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	ent, err := s.store.Load(r.Context(), models.EntityPayment, r.PathValue("id"))
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
		slog.Warn("Payment transition failed", "payment_id", ent.EntityID(), "transition", tr, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("Payment transition applied", "payment_id", ent.EntityID(), "transition", tr, "actor", actor.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"payment": toPaymentJSON(snapshot.(*models.PaymentRequest))})
}

func paymentList(payments []*models.PaymentRequest) []paymentJSON {
	out := make([]paymentJSON, len(payments))
	for i, p := range payments {
		out[i] = toPaymentJSON(p)
	}
	return out
}
