package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// The ledger core talks to the outside world through three collaborators:
// a persistent key-value store, the remote data source, and a notification
// sink. Infrastructure implements them; the core depends only on these.

// KVStore is the persistent key-value collaborator. The whole ledger is
// persisted as a single blob under one key, so a Set is the atomic unit
// of durability.
type KVStore interface {
	// Get returns the stored value for key, or (nil, nil) when absent.
	Get(ctx context.Context, key string) (json.RawMessage, error)

	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key string, value json.RawMessage) error
}

// DataSource is the authenticated remote API collaborator.
type DataSource interface {
	// RecentLogs fetches the latest transaction-log events, oldest first.
	// Returns ErrNoAPIKey when no authentication token is configured.
	RecentLogs(ctx context.Context) ([]TransactionLogEvent, error)

	// Profile fetches a counterparty's public profile by id.
	Profile(ctx context.Context, counterpartyID int64) (*CounterpartyProfile, error)

	// AwaitReady blocks until the data source is usable (an API key is
	// available) or ctx expires. It resolves at most once; subsequent
	// calls return immediately.
	AwaitReady(ctx context.Context) error
}

// Notifier is the transient user-notification sink. Fire-and-forget:
// implementations must never block or fail the caller.
type Notifier interface {
	Notify(title, message string, severity Severity, duration time.Duration)
}

// ─── Null Implementations ───────────────────────────────────────────────────

// NopNotifier discards all notifications. Useful in tests and headless runs.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(string, string, Severity, time.Duration) {}

// LogNotifier forwards notifications to a log function. The daemon uses it
// as the default sink; the overlay UI polls notifications over the API
// instead of receiving a push.
type LogNotifier struct {
	Logf func(format string, args ...any)
}

// Notify implements Notifier.
func (n LogNotifier) Notify(title, message string, severity Severity, _ time.Duration) {
	if n.Logf != nil {
		n.Logf("notify [%s] %s: %s", severity, title, message)
	}
}
