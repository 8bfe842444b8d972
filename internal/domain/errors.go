package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. Call sites wrap
// them with fmt.Errorf("...: %w", err) and boundaries check errors.Is.

var (
	// Ledger errors
	ErrNotFound         = errors.New("obligation not found")
	ErrInvalidOperation = errors.New("operation not valid for this obligation")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrAlreadyCompleted = errors.New("obligation already completed")

	// Remote data source errors
	ErrNoAPIKey       = errors.New("no API key configured")
	ErrSourceNotReady = errors.New("remote data source not ready")
)
