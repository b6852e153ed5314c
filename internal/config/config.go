// Package config loads and validates the engine's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the scheduling-engine configuration loaded from YAML. The
// embedding application shell passes it to the engine constructors.
type Config struct {
	// StorePath is the SQLite database file holding the reminder set.
	// Empty means the platform default (see store.DefaultDBPath).
	StorePath string `yaml:"store_path"`

	// PollInterval controls the fallback reconcile loop that catches store
	// changes missed by the push path. Minimum 10s, maximum 5m. Defaults
	// to 30s if unset.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ReconcileBudget bounds a single reconcile pass, matching the
	// platform's background execution limit. Minimum 1s, maximum 1m.
	// Defaults to 10s if unset.
	ReconcileBudget time.Duration `yaml:"reconcile_budget"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "remindcore".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request, typically authentication tokens:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/remindcore/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "remindcore", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate checks bounds and applies defaults.
func (c *Config) validate() error {
	if c.PollInterval == 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.PollInterval < 10*time.Second {
		return fmt.Errorf("poll_interval %v is too short (minimum 10s)", c.PollInterval)
	}
	if c.PollInterval > 5*time.Minute {
		return fmt.Errorf("poll_interval %v is too long (maximum 5m)", c.PollInterval)
	}

	if c.ReconcileBudget == 0 {
		c.ReconcileBudget = 10 * time.Second
	}
	if c.ReconcileBudget < time.Second {
		return fmt.Errorf("reconcile_budget %v is too short (minimum 1s)", c.ReconcileBudget)
	}
	if c.ReconcileBudget > time.Minute {
		return fmt.Errorf("reconcile_budget %v is too long (maximum 1m)", c.ReconcileBudget)
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
