package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// seedGroup inserts an approved group to satisfy foreign keys.
func seedGroup(t *testing.T, store *SQLiteStore, id, code string) *models.Group {
	t.Helper()
	g := &models.Group{
		ID:        id,
		Code:      code,
		Name:      "Test Group",
		Status:    models.StatusApproved,
		CreatedBy: "user-leader",
		CreatedAt: time.Now().Unix(),
		Version:   1,
	}
	if err := store.Save(context.Background(), g, 0); err != nil {
		t.Fatalf("failed to seed group: %v", err)
	}
	return g
}

func TestGroupRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	g := &models.Group{
		ID:        "group-1",
		Code:      "ABCD1234",
		Name:      "Umurenge Savings",
		Status:    models.StatusPending,
		CreatedBy: "user-1",
		CreatedAt: 1700000000,
		Version:   1,
	}
	if err := store.Save(ctx, g, 0); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	loaded, err := store.Load(ctx, models.EntityGroup, "group-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	got := loaded.(*models.Group)
	if got.Code != "ABCD1234" || got.Name != "Umurenge Savings" {
		t.Errorf("loaded group = %+v", got)
	}
	if got.Status != models.StatusPending || got.Version != 1 {
		t.Errorf("status/version = %s/%d, want pending/1", got.Status, got.Version)
	}
	if got.DecidedBy != "" || got.Reason != "" {
		t.Errorf("decision fields should be empty, got %q / %q", got.DecidedBy, got.Reason)
	}

	// A committed decision carries through the round trip.
	approved := g.Apply(models.StatusApproved, "admin-1", 1700000100, models.TransitionPayload{})
	if err := store.Save(ctx, approved, 1); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	loaded, err = store.Load(ctx, models.EntityGroup, "group-1")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	got = loaded.(*models.Group)
	if got.Status != models.StatusApproved || got.Version != 2 {
		t.Errorf("status/version = %s/%d, want approved/2", got.Status, got.Version)
	}
	if got.DecidedBy != "admin-1" || got.DecidedAt != 1700000100 {
		t.Errorf("decision = %q at %d", got.DecidedBy, got.DecidedAt)
	}
}

func TestSaveVersionConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	g := seedGroup(t, store, "group-1", "CODE0001")

	first := g.Apply(models.StatusRejected, "admin-1", time.Now().Unix(), models.TransitionPayload{Reason: "no"})
	if err := store.Save(ctx, first, 1); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	// The same expected version again loses the race.
	second := g.Apply(models.StatusRejected, "admin-2", time.Now().Unix(), models.TransitionPayload{Reason: "late"})
	err := store.Save(ctx, second, 1)
	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestSaveUpdateMissingRow(t *testing.T) {
	store := newTestStore(t)
	g := &models.Group{ID: "ghost", Code: "GHOST123", Name: "x", Status: models.StatusApproved, CreatedBy: "u", Version: 2}
	err := store.Save(context.Background(), g, 1)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load(context.Background(), models.EntityLoan, "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetGroupByCode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedGroup(t, store, "group-1", "AbCd1234")

	for _, code := range []string{"AbCd1234", "ABCD1234", "abcd1234"} {
		g, err := store.GetGroupByCode(ctx, code)
		if err != nil {
			t.Fatalf("GetGroupByCode(%q) failed: %v", code, err)
		}
		if g.ID != "group-1" {
			t.Errorf("GetGroupByCode(%q) = %s, want group-1", code, g.ID)
		}
	}

	if _, err := store.GetGroupByCode(ctx, "ZZZZ9999"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown code, got %v", err)
	}
}

func TestGroupCodeUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedGroup(t, store, "group-1", "SAMECODE")

	dup := &models.Group{
		ID: "group-2", Code: "samecode", Name: "Other",
		Status: models.StatusPending, CreatedBy: "user-2", Version: 1,
	}
	err := store.Save(ctx, dup, 0)
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused code, got %v", err)
	}
}

func TestListGroupsByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedGroup(t, store, "group-1", "CODE0001")
	pending := &models.Group{
		ID: "group-2", Code: "CODE0002", Name: "Pending One",
		Status: models.StatusPending, CreatedBy: "user-2", Version: 1,
	}
	if err := store.Save(ctx, pending, 0); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	all, err := store.ListGroups(ctx, "")
	if err != nil {
		t.Fatalf("list all failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all groups = %d, want 2", len(all))
	}

	got, err := store.ListGroups(ctx, models.StatusPending)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "group-2" {
		t.Errorf("pending groups = %+v, want only group-2", got)
	}
}

func TestMembershipUniquePerGroupUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedGroup(t, store, "group-1", "CODE0001")

	m := &models.Membership{
		ID: "mem-1", GroupID: "group-1", UserID: "user-1",
		Status: models.StatusPending, RequestedAt: time.Now().Unix(), Version: 1,
	}
	if err := store.Save(ctx, m, 0); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	again := &models.Membership{
		ID: "mem-2", GroupID: "group-1", UserID: "user-1",
		Status: models.StatusPending, RequestedAt: time.Now().Unix(), Version: 1,
	}
	if err := store.Save(ctx, again, 0); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second join request, got %v", err)
	}

	got, err := store.GetMembership(ctx, "group-1", "user-1")
	if err != nil {
		t.Fatalf("GetMembership failed: %v", err)
	}
	if got.ID != "mem-1" {
		t.Errorf("GetMembership = %s, want mem-1", got.ID)
	}
	if _, err := store.GetMembership(ctx, "group-1", "stranger"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestContributionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedGroup(t, store, "group-1", "CODE0001")

	c := &models.Contribution{
		ID: "contrib-1", GroupID: "group-1", MemberID: "user-1",
		Amount: decimal.RequireFromString("2500.50"),
		Status: models.StatusPending, SubmittedAt: time.Now().Unix(), Version: 1,
	}
	if err := store.Save(ctx, c, 0); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	loaded, err := store.Load(ctx, models.EntityContribution, "contrib-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	got := loaded.(*models.Contribution)
	if !got.Amount.Equal(decimal.RequireFromString("2500.50")) {
		t.Errorf("amount = %s, want 2500.50", got.Amount)
	}

	byGroup, err := store.ListGroupContributions(ctx, "group-1")
	if err != nil || len(byGroup) != 1 {
		t.Fatalf("ListGroupContributions = %d, err %v, want 1", len(byGroup), err)
	}
	byMember, err := store.ListMemberContributions(ctx, "user-1")
	if err != nil || len(byMember) != 1 {
		t.Fatalf("ListMemberContributions = %d, err %v, want 1", len(byMember), err)
	}
}

func TestLoanRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedGroup(t, store, "group-1", "CODE0001")

	l := &models.Loan{
		ID: "loan-1", GroupID: "group-1", BorrowerID: "user-1",
		Amount: decimal.RequireFromString("10000"),
		Status: models.StatusPending, RequestedAt: time.Now().Unix(), Version: 1,
	}
	if err := store.Save(ctx, l, 0); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rejected := l.Apply(models.StatusRejected, "user-leader", time.Now().Unix(), models.TransitionPayload{Reason: "pot too low"})
	if err := store.Save(ctx, rejected, 1); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	loaded, err := store.Load(ctx, models.EntityLoan, "loan-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	got := loaded.(*models.Loan)
	if got.Status != models.StatusRejected || got.Reason != "pot too low" {
		t.Errorf("loan = %+v, want rejected with reason", got)
	}

	byBorrower, err := store.ListBorrowerLoans(ctx, "user-1")
	if err != nil || len(byBorrower) != 1 {
		t.Fatalf("ListBorrowerLoans = %d, err %v, want 1", len(byBorrower), err)
	}
	byGroup, err := store.ListGroupLoans(ctx, "group-1")
	if err != nil || len(byGroup) != 1 {
		t.Fatalf("ListGroupLoans = %d, err %v, want 1", len(byGroup), err)
	}
}

func TestPaymentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedGroup(t, store, "group-1", "CODE0001")

	p := &models.PaymentRequest{
		ID: "payment-1", GroupID: "group-1", LoanID: "loan-1", PayerID: "user-1",
		Amount: decimal.RequireFromString("500"),
		Status: models.StatusApproved, RequestedAt: time.Now().Unix(), Version: 2,
	}
	if err := store.Save(ctx, p, 0); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	recorded := p.Apply(models.StatusRecorded, "user-leader", time.Now().Unix(), models.TransitionPayload{ReceiptRef: "RCPT-7"})
	if err := store.Save(ctx, recorded, 2); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	loaded, err := store.Load(ctx, models.EntityPayment, "payment-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	got := loaded.(*models.PaymentRequest)
	if got.Status != models.StatusRecorded || got.ReceiptRef != "RCPT-7" {
		t.Errorf("payment = %+v, want recorded with receipt", got)
	}
	if got.LoanID != "loan-1" || got.ContributionID != "" {
		t.Errorf("subject refs = %q / %q, want loan-1 / empty", got.LoanID, got.ContributionID)
	}

	list, err := store.ListGroupPayments(ctx, "group-1")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListGroupPayments = %d, err %v, want 1", len(list), err)
	}
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := &models.User{
		ID: "user-1", Email: "amina@example.com", DisplayName: "Amina",
		PasswordHash: "$2a$10$fakehash", Role: models.RoleMember,
		CreatedAt: time.Now().Unix(),
	}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	byEmail, err := store.GetUserByEmail(ctx, "amina@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != "user-1" || byEmail.Role != models.RoleMember {
		t.Errorf("user = %+v", byEmail)
	}

	byID, err := store.GetUserByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if byID.Email != "amina@example.com" {
		t.Errorf("email = %s", byID.Email)
	}

	dup := &models.User{
		ID: "user-2", Email: "amina@example.com", DisplayName: "Other",
		PasswordHash: "x", Role: models.RoleMember, CreatedAt: time.Now().Unix(),
	}
	if err := store.CreateUser(ctx, dup); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused email, got %v", err)
	}

	if _, err := store.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListGroupMemberships(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedGroup(t, store, "group-1", "CODE0001")
	seedGroup(t, store, "group-2", "CODE0002")

	for i := 0; i < 3; i++ {
		m := &models.Membership{
			ID:      fmt.Sprintf("mem-%d", i),
			GroupID: "group-1", UserID: fmt.Sprintf("user-%d", i),
			Status: models.StatusPending, RequestedAt: time.Now().Unix(), Version: 1,
		}
		if err := store.Save(ctx, m, 0); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	other := &models.Membership{
		ID: "mem-other", GroupID: "group-2", UserID: "user-0",
		Status: models.StatusPending, RequestedAt: time.Now().Unix(), Version: 1,
	}
	if err := store.Save(ctx, other, 0); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := store.ListGroupMemberships(ctx, "group-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("memberships = %d, want 3", len(got))
	}
	for _, m := range got {
		if m.GroupID != "group-1" {
			t.Errorf("membership %s belongs to %s", m.ID, m.GroupID)
		}
	}
}
