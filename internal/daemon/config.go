// Package daemon holds the sidekick daemon configuration: a TOML file at
// ~/.sidekick/config.toml with sensible defaults for every field, so a
// missing file is not an error.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Torn      TornConfig      `toml:"torn"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Enrich    EnrichConfig    `toml:"enrich"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// APIConfig controls the local HTTP server the overlay talks to.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TornConfig controls the remote API client.
type TornConfig struct {
	BaseURL         string `toml:"base_url"`
	APIKey          string `toml:"api_key"`
	MinCallInterval string `toml:"min_call_interval"`
	RequestTimeout  string `toml:"request_timeout"`
}

// LedgerConfig controls persistence.
type LedgerConfig struct {
	DBPath string `toml:"db_path"` // empty means <home>/ledger.db
}

// ReconcileConfig controls the reconciliation and interest timers.
type ReconcileConfig struct {
	Interval         string `toml:"interval"`
	InterestInterval string `toml:"interest_interval"`
	StartupDelay     string `toml:"startup_delay"`
	MatchWindow      string `toml:"match_window"`
	Keyword          string `toml:"keyword"`
}

// EnrichConfig controls counterparty name and activity lookups.
type EnrichConfig struct {
	Interval    string `toml:"interval"`
	CallSpacing string `toml:"call_spacing"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 11534,
		},
		Torn: TornConfig{
			BaseURL:         "https://api.torn.com",
			MinCallInterval: "1s",
			RequestTimeout:  "10s",
		},
		Reconcile: ReconcileConfig{
			Interval:         "60s",
			InterestInterval: "10m",
			StartupDelay:     "3s",
			MatchWindow:      "2h",
			Keyword:          "loan",
		},
		Enrich: EnrichConfig{
			Interval:    "60s",
			CallSpacing: "1s",
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Load reads the config file at path, layering it over defaults. A missing
// file returns the defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Home returns the sidekick home directory, creating it if needed.
func Home() (string, error) {
	dir := os.Getenv("SIDEKICK_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".sidekick")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create sidekick home: %w", err)
	}
	return dir, nil
}

// ConfigPath returns the path of the config file under the sidekick home.
func ConfigPath(home string) string {
	return filepath.Join(home, "config.toml")
}

// DBPath resolves the ledger database path, defaulting under home.
func (c Config) DBPath(home string) string {
	if c.Ledger.DBPath != "" {
		return c.Ledger.DBPath
	}
	return filepath.Join(home, "ledger.db")
}

// Duration parses a duration config string, falling back to def when the
// value is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
