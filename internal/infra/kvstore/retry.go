// retry.go provides automatic retry for transient SQLite errors.
//
// With WAL mode and more than one connection (the API server and the two
// periodic timers share the store), SQLite can return SQLITE_BUSY or
// SQLITE_LOCKED. The busy_timeout pragma handles most of it at the
// connection level; the rest gets application-level retries with
// exponential backoff and jitter.
package kvstore

import (
	"math/rand"
	"strings"
	"time"
)

// retryConfig controls retry behavior for transient SQLite errors.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// isTransientSQLiteErr reports whether the error can be resolved by
// retrying. Error codes are embedded in message text by modernc.org/sqlite.
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"database is locked",
		"database table is locked",
		"(5)", // SQLITE_BUSY code
		"(6)", // SQLITE_LOCKED code
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryOnContention executes fn, retrying transient errors with
// exponential backoff + jitter. Non-transient errors return immediately.
func retryOnContention(fn func() error) error {
	cfg := defaultRetryConfig
	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransientSQLiteErr(lastErr) {
			return lastErr
		}
		if attempt < cfg.maxRetries {
			time.Sleep(backoffDelay(cfg, attempt))
		}
	}
	return lastErr
}

// backoffDelay computes baseDelay * 2^attempt (capped) plus jitter.
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay << uint(attempt)
	if delay > cfg.maxDelay {
		delay = cfg.maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(cfg.baseDelay)))
	return delay + jitter
}
