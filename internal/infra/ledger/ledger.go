// Package ledger implements the obligation store: the single owner of the
// debt/loan records and the processed-payment set.
//
// Everything is held in memory and persisted as ONE blob under ONE key of
// the persistent KV collaborator, so every mutation is durable in a single
// atomic write. All read-modify-write sequences run under the service
// mutex — the interest timer and the reconciliation timer share this store
// and must not lose updates to each other.
package ledger

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tornsidekick/sidekick/internal/domain"
	"github.com/tornsidekick/sidekick/internal/infra/interest"
	"github.com/tornsidekick/sidekick/internal/infra/observability"
)

// StorageKey is the single KV key holding the serialized ledger.
const StorageKey = "sidekick.ledger"

// snapshot is the persisted shape of the whole ledger.
type snapshot struct {
	Obligations       []*domain.Obligation `json:"obligations"`
	ProcessedPayments []string             `json:"processed_payments"`
}

// Service is the obligation store.
type Service struct {
	mu          sync.Mutex
	store       domain.KVStore
	obligations []*domain.Obligation
	processed   map[string]struct{}
	now         func() time.Time
}

// New creates an empty ledger service backed by the given KV collaborator.
// Call Load before first use to pick up persisted state.
func New(store domain.KVStore) *Service {
	return &Service{
		store:     store,
		processed: make(map[string]struct{}),
		now:       time.Now,
	}
}

// SetClock overrides the service clock. Test support.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ─── Persistence ────────────────────────────────────────────────────────────

// Load reads the persisted ledger blob. Missing or corrupt data fails open
// to an empty ledger — it is logged, never propagated as a crash.
func (s *Service) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.store.Get(ctx, StorageKey)
	if err != nil {
		log.Printf("ledger: load failed, starting empty: %v", err)
		return
	}
	if raw == nil {
		return
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.Printf("ledger: corrupt persisted ledger, starting empty: %v", err)
		return
	}

	s.obligations = snap.Obligations
	s.processed = make(map[string]struct{}, len(snap.ProcessedPayments))
	for _, id := range snap.ProcessedPayments {
		s.processed[id] = struct{}{}
	}
}

// persistLocked serializes and writes the whole ledger in one Set call.
// Caller must hold s.mu.
func (s *Service) persistLocked(ctx context.Context) error {
	processed := make([]string, 0, len(s.processed))
	for id := range s.processed {
		processed = append(processed, id)
	}
	sort.Strings(processed)

	raw, err := json.Marshal(snapshot{
		Obligations:       s.obligations,
		ProcessedPayments: processed,
	})
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, StorageKey, raw); err != nil {
		return err
	}

	observability.LedgerSaves.Inc()
	s.updateGaugesLocked()
	return nil
}

func (s *Service) updateGaugesLocked() {
	var loans, debts float64
	for _, o := range s.obligations {
		if o.Completed {
			continue
		}
		if o.Kind == domain.KindLoan {
			loans++
		} else {
			debts++
		}
	}
	observability.OpenObligations.WithLabelValues(string(domain.KindLoan)).Set(loans)
	observability.OpenObligations.WithLabelValues(string(domain.KindDebt)).Set(debts)
}

// ─── CRUD ───────────────────────────────────────────────────────────────────

// CreateParams holds the caller-supplied fields of a new obligation.
type CreateParams struct {
	Kind             domain.ObligationKind
	CounterpartyID   int64
	CounterpartyName string
	Principal        decimal.Decimal
	Interest         domain.InterestPolicy
	Notes            string
	DueAt            *time.Time
}

// Create adds a new obligation with a fresh id and persists. The balance
// starts at the principal and interest accrual is anchored at creation
// time. Returns a copy of the stored record.
func (s *Service) Create(ctx context.Context, p CreateParams) (domain.Obligation, error) {
	if !p.Kind.Valid() {
		return domain.Obligation{}, domain.ErrInvalidOperation
	}
	if p.Principal.Sign() <= 0 {
		return domain.Obligation{}, domain.ErrInvalidAmount
	}
	if p.CounterpartyName == "" {
		p.CounterpartyName = domain.PlaceholderName(p.CounterpartyID)
	}
	if p.Interest.Kind == "" {
		p.Interest.Kind = domain.InterestNone
	}

	now := s.now()
	o := &domain.Obligation{
		ID:               uuid.NewString(),
		Kind:             p.Kind,
		CounterpartyID:   p.CounterpartyID,
		CounterpartyName: p.CounterpartyName,
		Principal:        p.Principal,
		Balance:          p.Principal,
		Interest:         p.Interest,
		LastInterestAt:   now,
		DueAt:            p.DueAt,
		CreatedAt:        now,
		Notes:            p.Notes,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.obligations = append(s.obligations, o)
	if err := s.persistLocked(ctx); err != nil {
		return clone(o), err
	}
	return clone(o), nil
}

// Get returns a copy of the obligation with the given id.
func (s *Service) Get(id string) (domain.Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.findLocked(id)
	if err != nil {
		return domain.Obligation{}, err
	}
	return clone(o), nil
}

// List returns copies of all obligations in insertion order.
func (s *Service) List() []domain.Obligation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Obligation, 0, len(s.obligations))
	for _, o := range s.obligations {
		out = append(out, clone(o))
	}
	return out
}

// Active returns copies of all non-completed obligations in insertion order.
func (s *Service) Active() []domain.Obligation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Obligation, 0, len(s.obligations))
	for _, o := range s.obligations {
		if !o.Completed {
			out = append(out, clone(o))
		}
	}
	return out
}

// Delete removes an obligation permanently (hard delete).
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.obligations {
		if o.ID == id {
			s.obligations = append(s.obligations[:i], s.obligations[i+1:]...)
			return s.persistLocked(ctx)
		}
	}
	return domain.ErrNotFound
}

// MarkCompleted closes an obligation by explicit user action. Idempotent:
// completing an already-completed obligation is a no-op.
func (s *Service) MarkCompleted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.findLocked(id)
	if err != nil {
		return err
	}
	if o.Completed {
		return nil
	}
	now := s.now()
	o.Completed = true
	o.CompletedAt = &now
	return s.persistLocked(ctx)
}

// IncreasePrincipal tops up a loan: the amount is added to both principal
// and balance, with an INCREASE history entry for traceability. Only valid
// for loans — debts reject with ErrInvalidOperation.
func (s *Service) IncreasePrincipal(ctx context.Context, id string, amount decimal.Decimal) (domain.Obligation, error) {
	if amount.Sign() <= 0 {
		return domain.Obligation{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.findLocked(id)
	if err != nil {
		return domain.Obligation{}, err
	}
	if o.Kind != domain.KindLoan {
		return domain.Obligation{}, domain.ErrInvalidOperation
	}
	if o.Completed {
		return domain.Obligation{}, domain.ErrAlreadyCompleted
	}

	o.Principal = o.Principal.Add(amount)
	o.Balance = o.Balance.Add(amount)
	o.Repayments = append(o.Repayments, domain.Repayment{
		Kind:      domain.EntryIncrease,
		Amount:    amount,
		Timestamp: s.now(),
		Note:      "principal increase",
	})
	if err := s.persistLocked(ctx); err != nil {
		return clone(o), err
	}
	return clone(o), nil
}

// SetFrozen toggles interest accrual suspension.
func (s *Service) SetFrozen(ctx context.Context, id string, frozen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.findLocked(id)
	if err != nil {
		return err
	}
	if o.Frozen == frozen {
		return nil
	}
	o.Frozen = frozen
	if !frozen {
		// Resuming accrual must not back-charge the frozen period.
		o.LastInterestAt = s.now()
	}
	return s.persistLocked(ctx)
}

// SetNotes replaces the free-form notes on an obligation.
func (s *Service) SetNotes(ctx context.Context, id, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.findLocked(id)
	if err != nil {
		return err
	}
	o.Notes = notes
	return s.persistLocked(ctx)
}

// ─── Enrichment Hooks ───────────────────────────────────────────────────────

// SetCounterpartyName records the resolved display name.
func (s *Service) SetCounterpartyName(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.findLocked(id)
	if err != nil {
		return err
	}
	if name == "" || o.CounterpartyName == name {
		return nil
	}
	o.CounterpartyName = name
	return s.persistLocked(ctx)
}

// SetActivity records the counterparty's last-seen time and stamps the
// check time, so the refresh loop can honor its once-per-24h budget.
func (s *Service) SetActivity(ctx context.Context, id string, lastAction time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.findLocked(id)
	if err != nil {
		return err
	}
	now := s.now()
	o.LastActivityAt = &lastAction
	o.ActivityCheckedAt = &now
	return s.persistLocked(ctx)
}

// ─── Repayments ─────────────────────────────────────────────────────────────

// RecordRepayment applies a manual repayment: the balance drops by amount
// (floored at zero) and the obligation completes when the residual is at
// or below the epsilon.
func (s *Service) RecordRepayment(ctx context.Context, id string, amount decimal.Decimal, note string) (domain.Obligation, error) {
	if amount.Sign() <= 0 {
		return domain.Obligation{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.findLocked(id)
	if err != nil {
		return domain.Obligation{}, err
	}
	if o.Completed {
		return domain.Obligation{}, domain.ErrAlreadyCompleted
	}

	s.applyRepaymentLocked(o, amount, note, false)
	if err := s.persistLocked(ctx); err != nil {
		return clone(o), err
	}
	return clone(o), nil
}

// IsProcessed reports whether a synthetic payment id has already been
// applied (the at-most-once gate).
func (s *Service) IsProcessed(syntheticID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[syntheticID]
	return ok
}

// FindOpen returns the first non-completed obligation of the given kind
// for the counterparty, by insertion order. The insertion-order tie-break
// when several match is deliberate — deterministic, not semantically
// meaningful.
func (s *Service) FindOpen(kind domain.ObligationKind, counterpartyID int64) (domain.Obligation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.obligations {
		if !o.Completed && o.Kind == kind && o.CounterpartyID == counterpartyID {
			return clone(o), true
		}
	}
	return domain.Obligation{}, false
}

// ApplyMatchedPayment applies an auto-detected repayment: the synthetic id
// is marked processed and the repayment applied in the SAME persisted
// write, so a crash can never leave a marked-but-unapplied payment.
func (s *Service) ApplyMatchedPayment(ctx context.Context, syntheticID, obligationID string, amount decimal.Decimal, note string) (domain.Obligation, error) {
	if amount.Sign() <= 0 {
		return domain.Obligation{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.findLocked(obligationID)
	if err != nil {
		return domain.Obligation{}, err
	}
	if o.Completed {
		return domain.Obligation{}, domain.ErrAlreadyCompleted
	}

	s.processed[syntheticID] = struct{}{}
	s.applyRepaymentLocked(o, amount, note, true)
	if err := s.persistLocked(ctx); err != nil {
		return clone(o), err
	}
	return clone(o), nil
}

// applyRepaymentLocked appends the history entry, drops the balance
// (floored at zero), and completes the obligation once settled. Caller
// must hold s.mu.
func (s *Service) applyRepaymentLocked(o *domain.Obligation, amount decimal.Decimal, note string, automatic bool) {
	now := s.now()
	o.Repayments = append(o.Repayments, domain.Repayment{
		Kind:      domain.EntryRepayment,
		Amount:    amount,
		Timestamp: now,
		Note:      note,
		Automatic: automatic,
	})

	o.Balance = o.Balance.Sub(amount)
	if o.Balance.Sign() < 0 {
		o.Balance = decimal.Zero
	}
	if !o.Completed && o.Settled() {
		o.Completed = true
		o.CompletedAt = &now
	}
}

// ─── Interest ───────────────────────────────────────────────────────────────

// ApplyInterest runs one accrual pass over all obligations and persists
// only when something changed. Returns whether anything changed.
func (s *Service) ApplyInterest(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := interest.ApplyAll(s.obligations, s.now())
	if !changed {
		observability.InterestPasses.WithLabelValues("noop").Inc()
		return false, nil
	}
	observability.InterestPasses.WithLabelValues("changed").Inc()
	return true, s.persistLocked(ctx)
}

// ─── Reset & Summary ────────────────────────────────────────────────────────

// Reset wipes the entire ledger, including the processed-payment set.
// This is the only way processed ids are ever removed.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obligations = nil
	s.processed = make(map[string]struct{})
	return s.persistLocked(ctx)
}

// Summary aggregates the ledger for the overlay header and /api/status.
type Summary struct {
	OpenLoans         int             `json:"open_loans"`
	OpenDebts         int             `json:"open_debts"`
	Completed         int             `json:"completed"`
	Overdue           int             `json:"overdue"`
	LoanBalance       decimal.Decimal `json:"loan_balance"`
	DebtBalance       decimal.Decimal `json:"debt_balance"`
	ProcessedPayments int             `json:"processed_payments"`
}

// Summarize computes open counts and outstanding totals by kind.
func (s *Service) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sum := Summary{
		LoanBalance:       decimal.Zero,
		DebtBalance:       decimal.Zero,
		ProcessedPayments: len(s.processed),
	}
	for _, o := range s.obligations {
		if o.Completed {
			sum.Completed++
			continue
		}
		if o.DueAt != nil && o.DueAt.Before(now) {
			sum.Overdue++
		}
		switch o.Kind {
		case domain.KindLoan:
			sum.OpenLoans++
			sum.LoanBalance = sum.LoanBalance.Add(o.Balance)
		case domain.KindDebt:
			sum.OpenDebts++
			sum.DebtBalance = sum.DebtBalance.Add(o.Balance)
		}
	}
	return sum
}

// ─── Internals ──────────────────────────────────────────────────────────────

func (s *Service) findLocked(id string) (*domain.Obligation, error) {
	for _, o := range s.obligations {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, domain.ErrNotFound
}

// clone returns a deep copy safe to hand outside the mutex.
func clone(o *domain.Obligation) domain.Obligation {
	out := *o
	out.Repayments = append([]domain.Repayment(nil), o.Repayments...)
	if o.DueAt != nil {
		t := *o.DueAt
		out.DueAt = &t
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		out.CompletedAt = &t
	}
	if o.LastActivityAt != nil {
		t := *o.LastActivityAt
		out.LastActivityAt = &t
	}
	if o.ActivityCheckedAt != nil {
		t := *o.ActivityCheckedAt
		out.ActivityCheckedAt = &t
	}
	return out
}
