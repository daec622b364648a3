package service

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keza/ikimina/internal/auth"
	"github.com/keza/ikimina/internal/middleware"
	"github.com/keza/ikimina/internal/notify"
	"github.com/keza/ikimina/internal/storage"
	"github.com/keza/ikimina/internal/workflow"
)

// NewRouter wires every service onto a mux: one route per transition,
// the read endpoints, the websocket stream, health and metrics.
// Everything except register/login/health/metrics requires a valid
// session token.
func NewRouter(store storage.Store, engine *workflow.Engine, channel *notify.Channel,
	authenticator auth.Authenticator, jwtManager *auth.JWTManager) *http.ServeMux {

	authSvc := NewAuthService(authenticator, jwtManager, store)
	groupSvc := NewGroupService(store, engine)
	memberSvc := NewMembershipService(store, engine)
	contribSvc := NewContributionService(store, engine)
	loanSvc := NewLoanService(store, engine)
	paymentSvc := NewPaymentService(store, engine)
	streamSvc := NewStreamService(channel)

	requireAuth := middleware.RequireAuth(jwtManager)
	protected := func(h http.HandlerFunc) http.Handler {
		return requireAuth(h)
	}

	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("POST /api/auth/register", authSvc.Register)
	mux.HandleFunc("POST /api/auth/login", authSvc.Login)
	mux.Handle("GET /api/auth/profile", protected(authSvc.Profile))

	// Groups
	mux.Handle("POST /api/groups", protected(groupSvc.Create))
	mux.Handle("GET /api/groups", protected(groupSvc.List))
	mux.Handle("GET /api/groups/active", protected(groupSvc.ListActive))
	mux.Handle("GET /api/groups/pending/all", protected(groupSvc.ListPending))
	mux.Handle("GET /api/groups/{id}", protected(groupSvc.Get))
	mux.Handle("POST /api/groups/{id}/approve", protected(groupSvc.Approve))
	mux.Handle("POST /api/groups/{id}/reject", protected(groupSvc.Reject))

	// Memberships
	mux.Handle("POST /api/groups/join", protected(memberSvc.Join))
	mux.Handle("GET /api/groups/{id}/pending-requests", protected(memberSvc.PendingRequests))
	mux.Handle("GET /api/groups/{id}/members", protected(memberSvc.Members))
	mux.Handle("POST /api/groups/approve-member", protected(memberSvc.Approve))
	mux.Handle("POST /api/groups/reject-member", protected(memberSvc.Reject))
	mux.Handle("POST /api/groups/remove-member", protected(memberSvc.Remove))

	// Contributions
	mux.Handle("POST /api/contributions", protected(contribSvc.Create))
	mux.Handle("GET /api/contributions", protected(contribSvc.ListGroup))
	mux.Handle("GET /api/contributions/my", protected(contribSvc.ListMine))
	mux.Handle("POST /api/contributions/{id}/approve", protected(contribSvc.Approve))

	// Loans
	mux.Handle("POST /api/loans/request", protected(loanSvc.Request))
	mux.Handle("GET /api/loans", protected(loanSvc.ListGroup))
	mux.Handle("GET /api/loans/my", protected(loanSvc.ListMine))
	mux.Handle("POST /api/loans/{id}/approve", protected(loanSvc.Approve))
	mux.Handle("POST /api/loans/{id}/reject", protected(loanSvc.Reject))
	mux.Handle("POST /api/loans/{id}/repay", protected(loanSvc.Repay))

	// Payments
	mux.Handle("POST /api/payments/request", protected(paymentSvc.Request))
	mux.Handle("GET /api/payments/requests", protected(paymentSvc.ListGroup))
	mux.Handle("POST /api/payments/requests/{id}/approve", protected(paymentSvc.Approve))
	mux.Handle("POST /api/payments/requests/{id}/reject", protected(paymentSvc.Reject))
	mux.Handle("POST /api/payments/requests/{id}/record", protected(paymentSvc.Record))

	// Stream
	mux.Handle("GET /ws", protected(streamSvc.Handle))

	// Operational
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}
