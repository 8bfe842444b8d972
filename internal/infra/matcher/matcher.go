// Package matcher implements payment reconciliation: it consumes batches
// of transaction-log events, classifies them, deduplicates by synthetic
// id, matches them against open obligations, and applies repayments.
//
// The log source is at-least-once (overlapping batches, duplicate
// deliveries); the processed-id gate makes application at-most-once.
package matcher

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tornsidekick/sidekick/internal/domain"
	"github.com/tornsidekick/sidekick/internal/infra/ledger"
	"github.com/tornsidekick/sidekick/internal/infra/observability"
)

// Config controls matching policy.
type Config struct {
	// Window bounds reprocessing: events older than this are ignored even
	// if unprocessed. A payment arriving before its obligation exists is
	// silently missed once it ages out — an accepted staleness trade-off.
	Window time.Duration

	// Keyword is the case-insensitive activation marker a transfer message
	// must contain to count as a loan repayment. Transfers without it are
	// unrelated and never touched.
	Keyword string
}

// DefaultConfig returns the reference matching policy.
func DefaultConfig() Config {
	return Config{
		Window:  2 * time.Hour,
		Keyword: "loan",
	}
}

// Matcher applies transaction-log events to the obligation ledger.
type Matcher struct {
	cfg      Config
	ledger   *ledger.Service
	notifier domain.Notifier
	now      func() time.Time
}

// New creates a matcher over the given ledger.
func New(cfg Config, svc *ledger.Service, notifier domain.Notifier) *Matcher {
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	return &Matcher{
		cfg:      cfg,
		ledger:   svc,
		notifier: notifier,
		now:      time.Now,
	}
}

// Process runs one reconciliation pass over a batch of raw events and
// returns how many repayments were applied. Safe to call repeatedly with
// overlapping or duplicate batches; a malformed event is skipped, never
// fatal to the rest of the batch.
func (m *Matcher) Process(ctx context.Context, events []domain.TransactionLogEvent) int {
	cutoff := m.now().Add(-m.cfg.Window)
	applied := 0

	for _, raw := range events {
		payment, ok := domain.ClassifyEvent(raw)
		if !ok {
			continue
		}
		if payment.Timestamp.Before(cutoff) {
			continue
		}
		if !strings.Contains(strings.ToLower(payment.Message), m.cfg.Keyword) {
			continue
		}

		syntheticID := payment.SyntheticID()
		if m.ledger.IsProcessed(syntheticID) {
			continue
		}

		target, found := m.ledger.FindOpen(payment.TargetKind(), payment.CounterpartyID)
		if !found {
			// Not marked processed: a future pass may still match once
			// the obligation exists.
			continue
		}

		note := "auto-detected: " + payment.Message
		updated, err := m.ledger.ApplyMatchedPayment(ctx, syntheticID, target.ID, payment.Amount, note)
		if err != nil {
			log.Printf("matcher: apply %s to %s failed: %v", syntheticID, target.ID, err)
			continue
		}

		applied++
		observability.PaymentsApplied.Inc()
		m.notify(updated, payment)
	}

	return applied
}

func (m *Matcher) notify(o domain.Obligation, p domain.PaymentEvent) {
	title := "Loan payment detected"
	msg := fmt.Sprintf("%s paid %s — %s remaining", o.CounterpartyName, p.Amount, o.Balance)
	if p.Direction == domain.DirectionSent {
		title = "Debt payment detected"
		msg = fmt.Sprintf("paid %s to %s — %s remaining", p.Amount, o.CounterpartyName, o.Balance)
	}
	if o.Completed {
		msg += " (settled)"
	}
	m.notifier.Notify(title, msg, domain.SeverityInfo, 8*time.Second)
}
