// Package config loads the kartta configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Version  string `yaml:"version"`
	Provider string `yaml:"provider"`

	Scope     Scope     `yaml:"scope"`
	Engine    Engine    `yaml:"engine,omitempty"`
	Cache     Cache     `yaml:"cache,omitempty"`
	Storage   Storage   `yaml:"storage,omitempty"`
	Telemetry Telemetry `yaml:"telemetry,omitempty"`
	Policy    Policy    `yaml:"policy,omitempty"`

	// Profiles maps account IDs to shared-config profile names.
	Profiles map[string]string `yaml:"profiles,omitempty"`
}

// Scope is the default query extent when the CLI gives none.
type Scope struct {
	Accounts      []string `yaml:"accounts"`
	Regions       []string `yaml:"regions"`
	ResourceTypes []string `yaml:"resource_types"`
}

// Engine tunes the query pipeline.
type Engine struct {
	Phase2Concurrency int           `yaml:"phase2_concurrency,omitempty"`
	EventBuffer       int           `yaml:"event_buffer,omitempty"`
	MemoryBudgetMB    int           `yaml:"memory_budget_mb,omitempty"`
	MaxStale          time.Duration `yaml:"max_stale,omitempty"`
}

// Cache tunes the shared resource cache.
type Cache struct {
	TTL time.Duration `yaml:"ttl,omitempty"`
}

// Storage configures the snapshot store.
type Storage struct {
	Dir           string `yaml:"dir,omitempty"`
	KeepRevisions int64  `yaml:"keep_revisions,omitempty"`
}

// Telemetry configures tracing and metrics export.
type Telemetry struct {
	OTELEndpoint string `yaml:"otel_endpoint,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty"`
	Environment  string `yaml:"environment,omitempty"`
	MetricsAddr  string `yaml:"metrics_addr,omitempty"`
}

// Policy configures advisory rego evaluation.
type Policy struct {
	Dir string `yaml:"dir,omitempty"`
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if len(c.Scope.Accounts) == 0 {
		return fmt.Errorf("scope.accounts is required")
	}
	if len(c.Scope.Regions) == 0 {
		return fmt.Errorf("scope.regions is required")
	}
	if c.Engine.Phase2Concurrency < 0 {
		return fmt.Errorf("engine.phase2_concurrency must not be negative")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	return nil
}
