// Package tornapi implements the remote data source collaborator: an
// authenticated client for the Torn REST API, covering the two calls the
// ledger core needs — recent transaction-log events and public profiles.
//
// Calls are spaced by a fixed minimum interval. That spacing is rate
// politeness toward the third-party API, not a correctness requirement.
package tornapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tornsidekick/sidekick/internal/domain"
)

// KeyProvider supplies the API key from the settings collaborator.
// Returning "" means no key is configured yet.
type KeyProvider func() string

// Config controls the client.
type Config struct {
	BaseURL         string
	MinCallInterval time.Duration // politeness spacing between calls
	RequestTimeout  time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://api.torn.com",
		MinCallInterval: time.Second,
		RequestTimeout:  10 * time.Second,
	}
}

// Client is the HTTP data source.
type Client struct {
	cfg  Config
	http *http.Client
	key  KeyProvider

	callMu   sync.Mutex
	lastCall time.Time

	ready     chan struct{}
	readyOnce sync.Once
}

// Compile-time check that *Client satisfies the collaborator interface.
var _ domain.DataSource = (*Client)(nil)

// New creates a client. The key provider is consulted on every call, so
// a key added later is picked up without restarting.
func New(cfg Config, key KeyProvider) *Client {
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.RequestTimeout},
		key:   key,
		ready: make(chan struct{}),
	}
}

// AwaitReady blocks until an API key is available or ctx expires. The
// readiness gate resolves once; later calls return immediately.
func (c *Client) AwaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	default:
	}
	if c.key() != "" {
		c.markReady()
		return nil
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return domain.ErrSourceNotReady
		case <-c.ready:
			return nil
		case <-ticker.C:
			if c.key() != "" {
				c.markReady()
				return nil
			}
		}
	}
}

func (c *Client) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// ─── API Calls ──────────────────────────────────────────────────────────────

// apiError is the error envelope the API embeds in 200 responses.
type apiError struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// RecentLogs fetches the latest transaction-log events, oldest first.
func (c *Client) RecentLogs(ctx context.Context) ([]domain.TransactionLogEvent, error) {
	key := c.key()
	if key == "" {
		return nil, domain.ErrNoAPIKey
	}
	c.markReady()

	url := fmt.Sprintf("%s/user/?selections=log&key=%s", c.cfg.BaseURL, key)
	var payload struct {
		Error *apiError                              `json:"error"`
		Log   map[string]domain.TransactionLogEvent `json:"log"`
	}
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("torn api error %d: %s", payload.Error.Code, payload.Error.Error)
	}

	events := make([]domain.TransactionLogEvent, 0, len(payload.Log))
	for _, e := range payload.Log {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events, nil
}

// Profile fetches a counterparty's public profile by id.
func (c *Client) Profile(ctx context.Context, counterpartyID int64) (*domain.CounterpartyProfile, error) {
	key := c.key()
	if key == "" {
		return nil, domain.ErrNoAPIKey
	}
	c.markReady()

	url := fmt.Sprintf("%s/user/%d?selections=profile&key=%s", c.cfg.BaseURL, counterpartyID, key)
	var payload struct {
		Error *apiError `json:"error"`
		domain.CounterpartyProfile
	}
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("torn api error %d: %s", payload.Error.Code, payload.Error.Error)
	}
	profile := payload.CounterpartyProfile
	return &profile, nil
}

// getJSON performs one paced GET and decodes the body.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	c.pace(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("torn api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("torn api status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("torn api decode: %w", err)
	}
	return nil
}

// pace enforces the minimum interval between outbound calls.
func (c *Client) pace(ctx context.Context) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	wait := c.cfg.MinCallInterval - time.Since(c.lastCall)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	c.lastCall = time.Now()
}
