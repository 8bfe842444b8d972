// Package enrich resolves counterparty display names and activity metadata
// against the remote data source, best-effort and asynchronous. Failures
// leave placeholders in place — never fatal.
package enrich

import (
	"context"
	"log"
	"time"

	"github.com/tornsidekick/sidekick/internal/domain"
	"github.com/tornsidekick/sidekick/internal/infra/ledger"
	"github.com/tornsidekick/sidekick/internal/infra/observability"
)

// Config controls the enrichment cadence and politeness.
type Config struct {
	Interval       time.Duration // periodic pass cadence
	CallSpacing    time.Duration // delay between remote calls (rate politeness)
	ReadyTimeout   time.Duration // how long to wait for the data source
	ActivityMaxAge time.Duration // re-check activity at most this often per obligation
}

// DefaultConfig returns the reference enrichment policy.
func DefaultConfig() Config {
	return Config{
		Interval:       time.Minute,
		CallSpacing:    time.Second,
		ReadyTimeout:   5 * time.Second,
		ActivityMaxAge: 24 * time.Hour,
	}
}

// Resolver performs name and activity enrichment over the ledger.
type Resolver struct {
	cfg    Config
	ledger *ledger.Service
	source domain.DataSource
	now    func() time.Time
}

// New creates a resolver. It does nothing until Run or an explicit pass
// is invoked.
func New(cfg Config, svc *ledger.Service, source domain.DataSource) *Resolver {
	return &Resolver{
		cfg:    cfg,
		ledger: svc,
		source: source,
		now:    time.Now,
	}
}

// Run executes periodic enrichment passes until ctx is cancelled. The
// first pass runs immediately.
func (r *Resolver) Run(ctx context.Context) {
	r.pass(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Resolver) pass(ctx context.Context) {
	r.ResolvePlaceholders(ctx)
	r.RefreshActivity(ctx)
}

// ResolvePlaceholders looks up real names for obligations still carrying
// the id placeholder. Waits (bounded) for the data source to become
// ready; on exhaustion the placeholders simply stay. Returns how many
// names were resolved.
func (r *Resolver) ResolvePlaceholders(ctx context.Context) int {
	resolved := 0
	for _, o := range r.ledger.List() {
		if !domain.IsPlaceholderName(o.CounterpartyName) {
			continue
		}

		profile, ok := r.lookup(ctx, o.CounterpartyID)
		if !ok {
			continue
		}
		if err := r.ledger.SetCounterpartyName(ctx, o.ID, profile.Name); err != nil {
			log.Printf("enrich: persist name for %s failed: %v", o.ID, err)
		}
		resolved++

		if !r.sleep(ctx, r.cfg.CallSpacing) {
			break
		}
	}
	return resolved
}

// RefreshActivity updates last-seen metadata for active obligations, at
// most once per ActivityMaxAge per obligation. Returns how many records
// were refreshed.
func (r *Resolver) RefreshActivity(ctx context.Context) int {
	now := r.now()
	refreshed := 0
	for _, o := range r.ledger.Active() {
		if o.ActivityCheckedAt != nil && now.Sub(*o.ActivityCheckedAt) < r.cfg.ActivityMaxAge {
			continue
		}

		profile, ok := r.lookup(ctx, o.CounterpartyID)
		if !ok {
			continue
		}
		lastAction := time.Unix(profile.LastAction.Timestamp, 0)
		if err := r.ledger.SetActivity(ctx, o.ID, lastAction); err != nil {
			log.Printf("enrich: persist activity for %s failed: %v", o.ID, err)
		}
		refreshed++

		if !r.sleep(ctx, r.cfg.CallSpacing) {
			break
		}
	}
	return refreshed
}

// lookup waits for source readiness (bounded) and fetches one profile.
func (r *Resolver) lookup(ctx context.Context, counterpartyID int64) (*domain.CounterpartyProfile, bool) {
	readyCtx, cancel := context.WithTimeout(ctx, r.cfg.ReadyTimeout)
	defer cancel()
	if err := r.source.AwaitReady(readyCtx); err != nil {
		return nil, false
	}

	profile, err := r.source.Profile(ctx, counterpartyID)
	if err != nil {
		observability.EnrichmentLookups.WithLabelValues("error").Inc()
		log.Printf("enrich: profile lookup for %d failed: %v", counterpartyID, err)
		return nil, false
	}
	observability.EnrichmentLookups.WithLabelValues("ok").Inc()
	return profile, true
}

// sleep pauses between remote calls; returns false when ctx expired.
func (r *Resolver) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
