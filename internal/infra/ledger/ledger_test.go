package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tornsidekick/sidekick/internal/domain"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

// memStore is an in-memory KVStore that records every write.
type memStore struct {
	data    map[string]json.RawMessage
	sets    int
	getErr  error
	setErr  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]json.RawMessage)}
}

func (m *memStore) Get(_ context.Context, key string) (json.RawMessage, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value json.RawMessage) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = append(json.RawMessage(nil), value...)
	return nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	s := New(store)
	s.now = func() time.Time { return testNow }
	return s, store
}

func mustCreate(t *testing.T, s *Service, kind domain.ObligationKind, cp int64, principal string) domain.Obligation {
	t.Helper()
	o, err := s.Create(context.Background(), CreateParams{
		Kind:           kind,
		CounterpartyID: cp,
		Principal:      decimal.RequireFromString(principal),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return o
}

// ─── Create Tests ───────────────────────────────────────────────────────────

func TestCreate(t *testing.T) {
	s, store := newTestService(t)
	due := testNow.Add(72 * time.Hour)

	o, err := s.Create(context.Background(), CreateParams{
		Kind:           domain.KindLoan,
		CounterpartyID: 500,
		Principal:      decimal.NewFromInt(1000),
		Interest:       domain.InterestPolicy{Kind: domain.InterestDaily, Rate: decimal.NewFromInt(2)},
		Notes:          "xanax front",
		DueAt:          &due,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if o.ID == "" {
		t.Error("obligation id is empty")
	}
	if !o.Balance.Equal(o.Principal) {
		t.Errorf("balance = %s, want principal %s", o.Balance, o.Principal)
	}
	if !o.LastInterestAt.Equal(testNow) {
		t.Errorf("LastInterestAt = %v, want %v", o.LastInterestAt, testNow)
	}
	if o.CounterpartyName != "[500]" {
		t.Errorf("placeholder name = %q, want %q", o.CounterpartyName, "[500]")
	}
	if store.sets != 1 {
		t.Errorf("store writes = %d, want 1", store.sets)
	}
}

func TestCreate_Invalid(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.Create(context.Background(), CreateParams{Kind: "WEIRD", CounterpartyID: 1, Principal: decimal.NewFromInt(10)})
	if !errors.Is(err, domain.ErrInvalidOperation) {
		t.Errorf("bad kind error = %v, want ErrInvalidOperation", err)
	}

	_, err = s.Create(context.Background(), CreateParams{Kind: domain.KindDebt, CounterpartyID: 1, Principal: decimal.NewFromInt(-5)})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("negative principal error = %v, want ErrInvalidAmount", err)
	}
}

// ─── Persistence Tests ──────────────────────────────────────────────────────

func TestLoad_RoundTrip(t *testing.T) {
	s, store := newTestService(t)
	o := mustCreate(t, s, domain.KindLoan, 500, "1000")
	if _, err := s.RecordRepayment(context.Background(), o.ID, decimal.NewFromInt(100), "partial"); err != nil {
		t.Fatalf("RecordRepayment failed: %v", err)
	}

	// Fresh service over the same store must see identical state.
	s2 := New(store)
	s2.now = s.now
	s2.Load(context.Background())

	got, err := s2.Get(o.ID)
	if err != nil {
		t.Fatalf("Get after reload failed: %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(900)) {
		t.Errorf("reloaded balance = %s, want 900", got.Balance)
	}
	if len(got.Repayments) != 1 || got.Repayments[0].Note != "partial" {
		t.Errorf("reloaded repayments = %+v, want the one partial entry", got.Repayments)
	}

	// save(load()) must be a no-op: persisting again yields the same blob.
	before := append(json.RawMessage(nil), store.data[StorageKey]...)
	if err := s2.SetNotes(context.Background(), o.ID, got.Notes); err != nil {
		t.Fatalf("SetNotes failed: %v", err)
	}
	if string(before) != string(store.data[StorageKey]) {
		t.Error("persisted blob changed on a semantically identical save")
	}
}

func TestLoad_CorruptFailsOpen(t *testing.T) {
	store := newMemStore()
	store.data[StorageKey] = json.RawMessage(`{"obligations": not json`)
	s := New(store)
	s.Load(context.Background())

	if got := len(s.List()); got != 0 {
		t.Errorf("obligations after corrupt load = %d, want 0", got)
	}
}

func TestLoad_StoreErrorFailsOpen(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("disk on fire")
	s := New(store)
	s.Load(context.Background()) // must not panic or propagate

	if got := len(s.List()); got != 0 {
		t.Errorf("obligations after failed load = %d, want 0", got)
	}
}

// ─── Completion Tests ───────────────────────────────────────────────────────

func TestMarkCompleted_Idempotent(t *testing.T) {
	s, store := newTestService(t)
	o := mustCreate(t, s, domain.KindDebt, 42, "100")

	if err := s.MarkCompleted(context.Background(), o.ID); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	writes := store.sets

	// Second call is a no-op: no state change, no extra write.
	if err := s.MarkCompleted(context.Background(), o.ID); err != nil {
		t.Fatalf("second MarkCompleted failed: %v", err)
	}
	if store.sets != writes {
		t.Error("idempotent MarkCompleted persisted again")
	}

	got, _ := s.Get(o.ID)
	if !got.Completed || got.CompletedAt == nil {
		t.Error("obligation not marked completed")
	}
}

func TestRepayment_CompletionThreshold(t *testing.T) {
	s, _ := newTestService(t)
	o := mustCreate(t, s, domain.KindLoan, 500, "100")

	got, err := s.RecordRepayment(context.Background(), o.ID, decimal.RequireFromString("99.995"), "")
	if err != nil {
		t.Fatalf("RecordRepayment failed: %v", err)
	}
	if !got.Balance.Equal(decimal.RequireFromString("0.005")) {
		t.Errorf("balance = %s, want 0.005", got.Balance)
	}
	if !got.Completed {
		t.Error("obligation with residual 0.005 not completed")
	}

	// Completed obligations reject further repayments.
	if _, err := s.RecordRepayment(context.Background(), o.ID, decimal.NewFromInt(1), ""); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Errorf("repayment on completed = %v, want ErrAlreadyCompleted", err)
	}
}

func TestRepayment_FloorsAtZero(t *testing.T) {
	s, _ := newTestService(t)
	o := mustCreate(t, s, domain.KindDebt, 7, "100")

	got, err := s.RecordRepayment(context.Background(), o.ID, decimal.NewFromInt(500), "overpaid")
	if err != nil {
		t.Fatalf("RecordRepayment failed: %v", err)
	}
	if !got.Balance.IsZero() {
		t.Errorf("balance = %s, want 0", got.Balance)
	}
	if !got.Completed {
		t.Error("fully repaid obligation not completed")
	}
}

// ─── Principal Increase Tests ───────────────────────────────────────────────

func TestIncreasePrincipal(t *testing.T) {
	s, _ := newTestService(t)
	o := mustCreate(t, s, domain.KindLoan, 500, "1000")

	got, err := s.IncreasePrincipal(context.Background(), o.ID, decimal.NewFromInt(250))
	if err != nil {
		t.Fatalf("IncreasePrincipal failed: %v", err)
	}
	if !got.Principal.Equal(decimal.NewFromInt(1250)) {
		t.Errorf("principal = %s, want 1250", got.Principal)
	}
	if !got.Balance.Equal(decimal.NewFromInt(1250)) {
		t.Errorf("balance = %s, want 1250", got.Balance)
	}
	if len(got.Repayments) != 1 || got.Repayments[0].Kind != domain.EntryIncrease {
		t.Errorf("history = %+v, want one INCREASE entry", got.Repayments)
	}
}

func TestIncreasePrincipal_DebtRejected(t *testing.T) {
	s, _ := newTestService(t)
	o := mustCreate(t, s, domain.KindDebt, 500, "1000")

	_, err := s.IncreasePrincipal(context.Background(), o.ID, decimal.NewFromInt(250))
	if !errors.Is(err, domain.ErrInvalidOperation) {
		t.Errorf("increase on debt = %v, want ErrInvalidOperation", err)
	}

	got, _ := s.Get(o.ID)
	if !got.Principal.Equal(decimal.NewFromInt(1000)) {
		t.Error("rejected increase mutated principal")
	}
}

// ─── Matched Payment Tests ──────────────────────────────────────────────────

func TestApplyMatchedPayment_AtomicSingleWrite(t *testing.T) {
	s, store := newTestService(t)
	o := mustCreate(t, s, domain.KindLoan, 500, "1000")
	writes := store.sets

	got, err := s.ApplyMatchedPayment(context.Background(), "received_500_400_1000", o.ID, decimal.NewFromInt(400), "auto-detected: loan repayment")
	if err != nil {
		t.Fatalf("ApplyMatchedPayment failed: %v", err)
	}

	if store.sets != writes+1 {
		t.Errorf("matched payment used %d writes, want exactly 1", store.sets-writes)
	}
	if !got.Balance.Equal(decimal.NewFromInt(600)) {
		t.Errorf("balance = %s, want 600", got.Balance)
	}
	if !s.IsProcessed("received_500_400_1000") {
		t.Error("synthetic id not recorded as processed")
	}
	if len(got.Repayments) != 1 || !got.Repayments[0].Automatic {
		t.Errorf("history = %+v, want one automatic repayment", got.Repayments)
	}
}

func TestFindOpen_InsertionOrder(t *testing.T) {
	s, _ := newTestService(t)
	first := mustCreate(t, s, domain.KindLoan, 500, "100")
	mustCreate(t, s, domain.KindLoan, 500, "200")

	got, ok := s.FindOpen(domain.KindLoan, 500)
	if !ok {
		t.Fatal("FindOpen found nothing")
	}
	if got.ID != first.ID {
		t.Errorf("FindOpen returned %s, want first-inserted %s", got.ID, first.ID)
	}

	// Completing the first moves the match to the second.
	if err := s.MarkCompleted(context.Background(), first.ID); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	got, ok = s.FindOpen(domain.KindLoan, 500)
	if !ok || got.ID == first.ID {
		t.Error("FindOpen still returns the completed obligation")
	}

	if _, ok := s.FindOpen(domain.KindDebt, 500); ok {
		t.Error("FindOpen matched across kinds")
	}
	if _, ok := s.FindOpen(domain.KindLoan, 999); ok {
		t.Error("FindOpen matched an unknown counterparty")
	}
}

// ─── Freeze Tests ───────────────────────────────────────────────────────────

func TestSetFrozen_ResumeResetsAccrualAnchor(t *testing.T) {
	s, _ := newTestService(t)
	o := mustCreate(t, s, domain.KindLoan, 500, "1000")

	if err := s.SetFrozen(context.Background(), o.ID, true); err != nil {
		t.Fatalf("SetFrozen failed: %v", err)
	}

	// Time passes while frozen; resuming must not back-charge it.
	later := testNow.Add(48 * time.Hour)
	s.now = func() time.Time { return later }
	if err := s.SetFrozen(context.Background(), o.ID, false); err != nil {
		t.Fatalf("unfreeze failed: %v", err)
	}

	got, _ := s.Get(o.ID)
	if got.Frozen {
		t.Error("obligation still frozen")
	}
	if !got.LastInterestAt.Equal(later) {
		t.Errorf("LastInterestAt = %v, want reset to %v", got.LastInterestAt, later)
	}
}

// ─── Reset & Summary Tests ──────────────────────────────────────────────────

func TestReset(t *testing.T) {
	s, _ := newTestService(t)
	o := mustCreate(t, s, domain.KindLoan, 500, "1000")
	if _, err := s.ApplyMatchedPayment(context.Background(), "received_500_400_1000", o.ID, decimal.NewFromInt(400), ""); err != nil {
		t.Fatalf("ApplyMatchedPayment failed: %v", err)
	}

	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if len(s.List()) != 0 {
		t.Error("obligations survived reset")
	}
	if s.IsProcessed("received_500_400_1000") {
		t.Error("processed set survived reset")
	}
}

func TestSummarize(t *testing.T) {
	s, _ := newTestService(t)
	mustCreate(t, s, domain.KindLoan, 1, "1000")
	mustCreate(t, s, domain.KindLoan, 2, "500")
	mustCreate(t, s, domain.KindDebt, 3, "300")
	done := mustCreate(t, s, domain.KindDebt, 4, "50")
	if err := s.MarkCompleted(context.Background(), done.ID); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	past := testNow.Add(-24 * time.Hour)
	if _, err := s.Create(context.Background(), CreateParams{
		Kind:           domain.KindLoan,
		CounterpartyID: 5,
		Principal:      decimal.NewFromInt(200),
		DueAt:          &past,
	}); err != nil {
		t.Fatalf("Create with due date failed: %v", err)
	}

	sum := s.Summarize()
	if sum.OpenLoans != 3 || sum.OpenDebts != 1 || sum.Completed != 1 {
		t.Errorf("summary counts = %+v", sum)
	}
	if sum.Overdue != 1 {
		t.Errorf("overdue = %d, want 1", sum.Overdue)
	}
	if !sum.LoanBalance.Equal(decimal.NewFromInt(1700)) {
		t.Errorf("loan balance = %s, want 1700", sum.LoanBalance)
	}
	if !sum.DebtBalance.Equal(decimal.NewFromInt(300)) {
		t.Errorf("debt balance = %s, want 300", sum.DebtBalance)
	}
}

func TestDelete(t *testing.T) {
	s, _ := newTestService(t)
	o := mustCreate(t, s, domain.KindLoan, 500, "1000")

	if err := s.Delete(context.Background(), o.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(o.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(context.Background(), o.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("double delete = %v, want ErrNotFound", err)
	}
}
