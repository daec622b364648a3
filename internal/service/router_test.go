package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/keza/ikimina/internal/auth"
	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/notify"
	"github.com/keza/ikimina/internal/storage/sqlite"
	"github.com/keza/ikimina/internal/workflow"
)

const testSecret = "test-secret-key-32-bytes-long!!!"

type testEnv struct {
	server  *httptest.Server
	store   *sqlite.SQLiteStore
	channel *notify.Channel
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	channel := notify.NewChannel()
	engine := workflow.NewEngine(store, channel, 5*time.Second, slog.Default())
	jwtManager := auth.NewJWTManager(testSecret, time.Hour)
	authenticator := auth.NewPasswordAuthenticator(store)

	mux := NewRouter(store, engine, channel, authenticator, jwtManager)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: store, channel: channel}
}

// do sends one JSON request and decodes the response body into a generic
// map.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && err != io.EOF {
		t.Fatalf("decode response of %s %s: %v", method, path, err)
	}
	return resp.StatusCode, decoded
}

// register creates an account through the API and returns its token and
// user ID.
func (e *testEnv) register(t *testing.T, email, name string) (token, userID string) {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "display_name": name, "password": "correct horse",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %v", email, status, body)
	}
	user := body["user"].(map[string]any)
	return body["token"].(string), user["id"].(string)
}

// seedAdmin provisions a site admin directly in the store and logs in
// through the API, mirroring out-of-band admin creation.
func (e *testEnv) seedAdmin(t *testing.T) (token, userID string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	admin := &models.User{
		ID:           "admin-1",
		Email:        "admin@example.com",
		DisplayName:  "Site Admin",
		PasswordHash: string(hash),
		Role:         models.RoleSiteAdmin,
		CreatedAt:    time.Now().Unix(),
	}
	if err := e.store.CreateUser(context.Background(), admin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	status, body := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "admin@example.com", "password": "correct horse",
	})
	if status != http.StatusOK {
		t.Fatalf("admin login: status %d, body %v", status, body)
	}
	return body["token"].(string), admin.ID
}

func entityField(t *testing.T, body map[string]any, entity, field string) any {
	t.Helper()
	wrapped, ok := body[entity].(map[string]any)
	if !ok {
		t.Fatalf("response has no %q object: %v", entity, body)
	}
	return wrapped[field]
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	token, userID := env.register(t, "amina@example.com", "Amina")

	// Duplicate email conflicts.
	status, _ := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "amina@example.com", "display_name": "Other", "password": "correct horse",
	})
	if status != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", status)
	}

	// Short passwords are rejected up front.
	status, _ = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "short@example.com", "display_name": "Short", "password": "tiny",
	})
	if status != http.StatusBadRequest {
		t.Errorf("weak password status = %d, want 400", status)
	}

	// Wrong password fails login.
	status, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "amina@example.com", "password": "wrong password",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", status)
	}

	status, body := env.do(t, http.MethodGet, "/api/auth/profile", token, nil)
	if status != http.StatusOK {
		t.Fatalf("profile status = %d, body %v", status, body)
	}
	if got := entityField(t, body, "user", "id"); got != userID {
		t.Errorf("profile user = %v, want %s", got, userID)
	}

	// No token, no access.
	status, _ = env.do(t, http.MethodGet, "/api/auth/profile", "", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("unauthenticated profile status = %d, want 401", status)
	}
}

func TestGroupLifecycle(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.seedAdmin(t)
	leaderToken, _ := env.register(t, "leader@example.com", "Leader")
	memberToken, _ := env.register(t, "member@example.com", "Member")

	status, body := env.do(t, http.MethodPost, "/api/groups", leaderToken, map[string]string{"name": "Umurenge Savings"})
	if status != http.StatusCreated {
		t.Fatalf("create group status = %d, body %v", status, body)
	}
	groupID := entityField(t, body, "group", "id").(string)
	if got := entityField(t, body, "group", "status"); got != "pending" {
		t.Fatalf("new group status = %v, want pending", got)
	}

	// Only site admins see the pending queue.
	status, _ = env.do(t, http.MethodGet, "/api/groups/pending/all", leaderToken, nil)
	if status != http.StatusForbidden {
		t.Errorf("pending list as leader status = %d, want 403", status)
	}
	status, body = env.do(t, http.MethodGet, "/api/groups/pending/all", adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("pending list status = %d", status)
	}
	if groups := body["groups"].([]any); len(groups) != 1 {
		t.Errorf("pending groups = %d, want 1", len(groups))
	}

	// A plain member cannot approve a group.
	status, _ = env.do(t, http.MethodPost, "/api/groups/"+groupID+"/approve", memberToken, nil)
	if status != http.StatusForbidden {
		t.Errorf("member approve status = %d, want 403", status)
	}

	status, body = env.do(t, http.MethodPost, "/api/groups/"+groupID+"/approve", adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("admin approve status = %d, body %v", status, body)
	}
	if got := entityField(t, body, "group", "status"); got != "approved" {
		t.Errorf("approved group status = %v", got)
	}

	// Approving again reports the redundant state.
	status, body = env.do(t, http.MethodPost, "/api/groups/"+groupID+"/approve", adminToken, nil)
	if status != http.StatusConflict {
		t.Errorf("re-approve status = %d, want 409", status)
	}
	if body["current_state"] != "approved" {
		t.Errorf("current_state = %v, want approved", body["current_state"])
	}

	// Rejecting an approved group is an illegal transition.
	status, body = env.do(t, http.MethodPost, "/api/groups/"+groupID+"/reject", adminToken, map[string]string{"reason": "too late"})
	if status != http.StatusConflict {
		t.Errorf("reject approved status = %d, want 409", status)
	}
	if body["current_state"] != "approved" {
		t.Errorf("current_state = %v, want approved", body["current_state"])
	}

	status, _ = env.do(t, http.MethodGet, "/api/groups/"+groupID, memberToken, nil)
	if status != http.StatusOK {
		t.Errorf("get group status = %d", status)
	}
	status, _ = env.do(t, http.MethodGet, "/api/groups/does-not-exist", memberToken, nil)
	if status != http.StatusNotFound {
		t.Errorf("get missing group status = %d, want 404", status)
	}

	status, body = env.do(t, http.MethodGet, "/api/groups/active", memberToken, nil)
	if status != http.StatusOK {
		t.Fatalf("active list status = %d", status)
	}
	if groups := body["groups"].([]any); len(groups) != 1 {
		t.Errorf("active groups = %d, want 1", len(groups))
	}
}

func TestGroupRejectionRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.seedAdmin(t)
	leaderToken, _ := env.register(t, "leader@example.com", "Leader")

	_, body := env.do(t, http.MethodPost, "/api/groups", leaderToken, map[string]string{"name": "Doomed"})
	groupID := entityField(t, body, "group", "id").(string)

	status, body := env.do(t, http.MethodPost, "/api/groups/"+groupID+"/reject", adminToken, map[string]string{})
	if status != http.StatusBadRequest {
		t.Fatalf("reject without reason status = %d, body %v", status, body)
	}
	fields := body["fields"].(map[string]any)
	if _, ok := fields["reason"]; !ok {
		t.Errorf("expected reason field error, got %v", fields)
	}

	status, body = env.do(t, http.MethodPost, "/api/groups/"+groupID+"/reject", adminToken, map[string]string{"reason": "duplicate of another group"})
	if status != http.StatusOK {
		t.Fatalf("reject status = %d, body %v", status, body)
	}
	if got := entityField(t, body, "group", "status"); got != "rejected" {
		t.Errorf("group status = %v, want rejected", got)
	}
}

// setupApprovedGroup registers a leader and a member, creates and
// approves a group, and walks the member through joining it.
func setupApprovedGroup(t *testing.T, env *testEnv) (adminToken, leaderToken, memberToken, groupID, memberID string) {
	t.Helper()
	adminToken, _ = env.seedAdmin(t)
	leaderToken, _ = env.register(t, "leader@example.com", "Leader")
	memberToken, memberID = env.register(t, "member@example.com", "Member")

	_, body := env.do(t, http.MethodPost, "/api/groups", leaderToken, map[string]string{"name": "Umurenge Savings"})
	groupID = entityField(t, body, "group", "id").(string)
	if status, b := env.do(t, http.MethodPost, "/api/groups/"+groupID+"/approve", adminToken, nil); status != http.StatusOK {
		t.Fatalf("approve group: status %d, body %v", status, b)
	}

	if status, b := env.do(t, http.MethodPost, "/api/groups/join", memberToken, map[string]string{"group_id": groupID}); status != http.StatusCreated {
		t.Fatalf("join: status %d, body %v", status, b)
	}
	if status, b := env.do(t, http.MethodPost, "/api/groups/approve-member", leaderToken, map[string]string{
		"group_id": groupID, "user_id": memberID,
	}); status != http.StatusOK {
		t.Fatalf("approve member: status %d, body %v", status, b)
	}
	return adminToken, leaderToken, memberToken, groupID, memberID
}

func TestMembershipLifecycle(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.seedAdmin(t)
	leaderToken, _ := env.register(t, "leader@example.com", "Leader")
	memberToken, memberID := env.register(t, "member@example.com", "Member")

	_, body := env.do(t, http.MethodPost, "/api/groups", leaderToken, map[string]string{"name": "Umurenge Savings"})
	groupID := entityField(t, body, "group", "id").(string)
	groupCode := entityField(t, body, "group", "code").(string)

	// A pending group accepts no joiners.
	status, _ := env.do(t, http.MethodPost, "/api/groups/join", memberToken, map[string]string{"group_id": groupID})
	if status != http.StatusConflict {
		t.Errorf("join pending group status = %d, want 409", status)
	}

	env.do(t, http.MethodPost, "/api/groups/"+groupID+"/approve", adminToken, nil)

	// Joining resolves the human-readable code too.
	status, body = env.do(t, http.MethodPost, "/api/groups/join", memberToken, map[string]string{"group_id": groupCode})
	if status != http.StatusCreated {
		t.Fatalf("join by code status = %d, body %v", status, body)
	}
	if got := entityField(t, body, "membership", "group_id"); got != groupID {
		t.Errorf("membership group = %v, want %s", got, groupID)
	}

	// One open request per (group, user).
	status, _ = env.do(t, http.MethodPost, "/api/groups/join", memberToken, map[string]string{"group_id": groupID})
	if status != http.StatusConflict {
		t.Errorf("second join status = %d, want 409", status)
	}

	status, body = env.do(t, http.MethodGet, "/api/groups/"+groupID+"/pending-requests", leaderToken, nil)
	if status != http.StatusOK {
		t.Fatalf("pending requests status = %d", status)
	}
	if requests := body["requests"].([]any); len(requests) != 1 {
		t.Errorf("pending requests = %d, want 1", len(requests))
	}

	// Another member cannot decide join requests.
	otherToken, _ := env.register(t, "other@example.com", "Other")
	status, _ = env.do(t, http.MethodPost, "/api/groups/approve-member", otherToken, map[string]string{
		"group_id": groupID, "user_id": memberID,
	})
	if status != http.StatusForbidden {
		t.Errorf("non-leader approve status = %d, want 403", status)
	}

	status, body = env.do(t, http.MethodPost, "/api/groups/approve-member", leaderToken, map[string]string{
		"group_id": groupID, "user_id": memberID,
	})
	if status != http.StatusOK {
		t.Fatalf("approve member status = %d, body %v", status, body)
	}
	if got := entityField(t, body, "membership", "status"); got != "approved" {
		t.Errorf("membership status = %v, want approved", got)
	}

	status, body = env.do(t, http.MethodGet, "/api/groups/"+groupID+"/members?status=approved", leaderToken, nil)
	if status != http.StatusOK {
		t.Fatalf("members status = %d", status)
	}
	if members := body["members"].([]any); len(members) != 1 {
		t.Errorf("approved members = %d, want 1", len(members))
	}

	// Removal closes the loop.
	status, body = env.do(t, http.MethodPost, "/api/groups/remove-member", leaderToken, map[string]string{
		"group_id": groupID, "user_id": memberID, "reason": "left the sector",
	})
	if status != http.StatusOK {
		t.Fatalf("remove member status = %d, body %v", status, body)
	}
	if got := entityField(t, body, "membership", "status"); got != "removed" {
		t.Errorf("membership status = %v, want removed", got)
	}
}

func TestContributionFlow(t *testing.T) {
	env := newTestEnv(t)
	_, leaderToken, memberToken, groupID, _ := setupApprovedGroup(t, env)

	status, body := env.do(t, http.MethodPost, "/api/contributions", memberToken, map[string]string{
		"group_id": groupID, "amount": "2500.50",
	})
	if status != http.StatusCreated {
		t.Fatalf("create contribution status = %d, body %v", status, body)
	}
	contribID := entityField(t, body, "contribution", "id").(string)
	if got := entityField(t, body, "contribution", "amount"); got != "2500.5" {
		t.Errorf("amount = %v", got)
	}

	// Negative amounts never enter the system.
	status, _ = env.do(t, http.MethodPost, "/api/contributions", memberToken, map[string]string{
		"group_id": groupID, "amount": "-5",
	})
	if status != http.StatusBadRequest {
		t.Errorf("negative amount status = %d, want 400", status)
	}

	// Outsiders cannot contribute.
	outsiderToken, _ := env.register(t, "outsider@example.com", "Outsider")
	status, _ = env.do(t, http.MethodPost, "/api/contributions", outsiderToken, map[string]string{
		"group_id": groupID, "amount": "100",
	})
	if status != http.StatusForbidden {
		t.Errorf("outsider contribution status = %d, want 403", status)
	}

	// The contributor cannot approve their own contribution.
	status, _ = env.do(t, http.MethodPost, "/api/contributions/"+contribID+"/approve", memberToken, nil)
	if status != http.StatusForbidden {
		t.Errorf("self-approve status = %d, want 403", status)
	}

	status, body = env.do(t, http.MethodPost, "/api/contributions/"+contribID+"/approve", leaderToken, nil)
	if status != http.StatusOK {
		t.Fatalf("approve status = %d, body %v", status, body)
	}
	if got := entityField(t, body, "contribution", "status"); got != "approved" {
		t.Errorf("contribution status = %v", got)
	}

	status, body = env.do(t, http.MethodGet, "/api/contributions/my", memberToken, nil)
	if status != http.StatusOK {
		t.Fatalf("my contributions status = %d", status)
	}
	if list := body["contributions"].([]any); len(list) != 1 {
		t.Errorf("my contributions = %d, want 1", len(list))
	}

	status, body = env.do(t, http.MethodGet, "/api/contributions?groupId="+groupID, leaderToken, nil)
	if status != http.StatusOK {
		t.Fatalf("group contributions status = %d", status)
	}
	if list := body["contributions"].([]any); len(list) != 1 {
		t.Errorf("group contributions = %d, want 1", len(list))
	}
}

func TestLoanFlow(t *testing.T) {
	env := newTestEnv(t)
	_, leaderToken, memberToken, groupID, _ := setupApprovedGroup(t, env)

	status, body := env.do(t, http.MethodPost, "/api/loans/request", memberToken, map[string]string{
		"group_id": groupID, "amount": "10000",
	})
	if status != http.StatusCreated {
		t.Fatalf("loan request status = %d, body %v", status, body)
	}
	loanID := entityField(t, body, "loan", "id").(string)

	// Zero is not a loan.
	status, _ = env.do(t, http.MethodPost, "/api/loans/request", memberToken, map[string]string{
		"group_id": groupID, "amount": "0",
	})
	if status != http.StatusBadRequest {
		t.Errorf("zero loan status = %d, want 400", status)
	}

	// Repay comes only after approval.
	status, _ = env.do(t, http.MethodPost, "/api/loans/"+loanID+"/repay", leaderToken, nil)
	if status != http.StatusConflict {
		t.Errorf("repay pending loan status = %d, want 409", status)
	}

	status, body = env.do(t, http.MethodPost, "/api/loans/"+loanID+"/approve", leaderToken, nil)
	if status != http.StatusOK {
		t.Fatalf("approve status = %d, body %v", status, body)
	}
	if got := entityField(t, body, "loan", "status"); got != "approved" {
		t.Errorf("loan status = %v", got)
	}

	status, body = env.do(t, http.MethodPost, "/api/loans/"+loanID+"/repay", leaderToken, nil)
	if status != http.StatusOK {
		t.Fatalf("repay status = %d, body %v", status, body)
	}
	if got := entityField(t, body, "loan", "status"); got != "repaid" {
		t.Errorf("loan status = %v, want repaid", got)
	}

	status, body = env.do(t, http.MethodGet, "/api/loans/my", memberToken, nil)
	if status != http.StatusOK {
		t.Fatalf("my loans status = %d", status)
	}
	if list := body["loans"].([]any); len(list) != 1 {
		t.Errorf("my loans = %d, want 1", len(list))
	}
}

func TestPaymentFlow(t *testing.T) {
	env := newTestEnv(t)
	_, leaderToken, memberToken, groupID, _ := setupApprovedGroup(t, env)

	_, body := env.do(t, http.MethodPost, "/api/loans/request", memberToken, map[string]string{
		"group_id": groupID, "amount": "10000",
	})
	loanID := entityField(t, body, "loan", "id").(string)
	env.do(t, http.MethodPost, "/api/loans/"+loanID+"/approve", leaderToken, nil)

	// The payment must target exactly one subject.
	status, _ := env.do(t, http.MethodPost, "/api/payments/request", memberToken, map[string]string{
		"group_id": groupID, "amount": "500",
	})
	if status != http.StatusBadRequest {
		t.Errorf("no subject status = %d, want 400", status)
	}
	status, _ = env.do(t, http.MethodPost, "/api/payments/request", memberToken, map[string]string{
		"group_id": groupID, "loan_id": loanID, "contribution_id": "contrib-1", "amount": "500",
	})
	if status != http.StatusBadRequest {
		t.Errorf("both subjects status = %d, want 400", status)
	}

	status, body = env.do(t, http.MethodPost, "/api/payments/request", memberToken, map[string]string{
		"group_id": groupID, "loan_id": loanID, "amount": "500",
	})
	if status != http.StatusCreated {
		t.Fatalf("payment request status = %d, body %v", status, body)
	}
	paymentID := entityField(t, body, "payment", "id").(string)

	// Recording skips approval only by failing.
	status, _ = env.do(t, http.MethodPost, "/api/payments/requests/"+paymentID+"/record", leaderToken, map[string]string{"receipt_ref": "RCPT-1"})
	if status != http.StatusConflict {
		t.Errorf("record pending payment status = %d, want 409", status)
	}

	status, body = env.do(t, http.MethodPost, "/api/payments/requests/"+paymentID+"/approve", leaderToken, nil)
	if status != http.StatusOK {
		t.Fatalf("approve status = %d, body %v", status, body)
	}

	// Recording without a receipt fails the payload check.
	status, body = env.do(t, http.MethodPost, "/api/payments/requests/"+paymentID+"/record", leaderToken, map[string]string{})
	if status != http.StatusBadRequest {
		t.Fatalf("record without receipt status = %d, body %v", status, body)
	}
	fields := body["fields"].(map[string]any)
	if _, ok := fields["receipt_ref"]; !ok {
		t.Errorf("expected receipt_ref field error, got %v", fields)
	}

	status, body = env.do(t, http.MethodPost, "/api/payments/requests/"+paymentID+"/record", leaderToken, map[string]string{"receipt_ref": "RCPT-1"})
	if status != http.StatusOK {
		t.Fatalf("record status = %d, body %v", status, body)
	}
	if got := entityField(t, body, "payment", "status"); got != "recorded" {
		t.Errorf("payment status = %v, want recorded", got)
	}
	if got := entityField(t, body, "payment", "receipt_ref"); got != "RCPT-1" {
		t.Errorf("receipt = %v, want RCPT-1", got)
	}

	status, body = env.do(t, http.MethodGet, "/api/payments/requests?groupId="+groupID, leaderToken, nil)
	if status != http.StatusOK {
		t.Fatalf("list payments status = %d", status)
	}
	if list := body["payments"].([]any); len(list) != 1 {
		t.Errorf("payments = %d, want 1", len(list))
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, http.MethodGet, "/api/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("health status = %d", status)
	}
	if body["status"] != "ok" {
		t.Errorf("health body = %v", body)
	}
}
