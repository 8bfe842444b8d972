// Package reconcile drives the two periodic loops of the ledger core: the
// payment reconciliation tick (fetch logs → matcher → persist) and the
// interest accrual tick. Both loops share the ledger service, which
// serializes their mutations internally.
package reconcile

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tornsidekick/sidekick/internal/domain"
	"github.com/tornsidekick/sidekick/internal/infra/ledger"
	"github.com/tornsidekick/sidekick/internal/infra/matcher"
	"github.com/tornsidekick/sidekick/internal/infra/observability"
)

// Config controls the scheduler cadence. The intervals are policy, not
// correctness: the matcher's dedup gate makes any cadence safe.
type Config struct {
	ReconcileInterval time.Duration // log fetch + match cadence
	InterestInterval  time.Duration // accrual pass cadence
	StartupDelay      time.Duration // out-of-band first check after start
}

// DefaultConfig returns the reference cadence.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval: time.Minute,
		InterestInterval:  10 * time.Minute,
		StartupDelay:      3 * time.Second,
	}
}

// Scheduler runs the periodic reconciliation and interest loops.
type Scheduler struct {
	cfg      Config
	ledger   *ledger.Service
	source   domain.DataSource
	matcher  *matcher.Matcher
	notifier domain.Notifier

	mu          sync.Mutex
	warnedNoKey bool
}

// New creates a scheduler. It does nothing until Run is called.
func New(cfg Config, svc *ledger.Service, source domain.DataSource, m *matcher.Matcher, notifier domain.Notifier) *Scheduler {
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	return &Scheduler{
		cfg:      cfg,
		ledger:   svc,
		source:   source,
		matcher:  m,
		notifier: notifier,
	}
}

// Run starts both loops and blocks until ctx is cancelled. All tickers are
// stopped on return; nothing fires after teardown.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.interestLoop(ctx)
	}()

	// Out-of-band first check shortly after startup, then the fixed cadence.
	startup := time.NewTimer(s.cfg.StartupDelay)
	defer startup.Stop()
	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-startup.C:
			s.ReconcileNow(ctx)
		case <-ticker.C:
			s.ReconcileNow(ctx)
		}
	}
}

func (s *Scheduler) interestLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.InterestInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.accrueNow(ctx)
		}
	}
}

// ReconcileNow runs a single fetch-and-match pass. Fetch failures are
// swallowed: logged, surfaced as a warning, retried on the next tick.
func (s *Scheduler) ReconcileNow(ctx context.Context) int {
	observability.ReconcileRuns.Inc()

	events, err := s.source.RecentLogs(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoAPIKey) {
			s.warnMissingKeyOnce()
			return 0
		}
		observability.FetchErrors.Inc()
		log.Printf("reconcile: log fetch failed, retrying next tick: %v", err)
		s.notifier.Notify("Reconciliation delayed",
			"could not fetch the transaction log; will retry",
			domain.SeverityWarning, 5*time.Second)
		return 0
	}

	return s.matcher.Process(ctx, events)
}

func (s *Scheduler) accrueNow(ctx context.Context) {
	if _, err := s.ledger.ApplyInterest(ctx); err != nil {
		log.Printf("reconcile: interest persistence failed: %v", err)
	}
}

// warnMissingKeyOnce surfaces the missing-key condition exactly once.
// Reconciliation simply no-ops until a key appears; the ledger remains
// fully usable for manual edits.
func (s *Scheduler) warnMissingKeyOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warnedNoKey {
		return
	}
	s.warnedNoKey = true
	s.notifier.Notify("API key missing",
		"automatic payment detection is paused until an API key is configured",
		domain.SeverityWarning, 10*time.Second)
}
