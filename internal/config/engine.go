package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/JaimeStill/arbiter/internal/workflows"
	"github.com/JaimeStill/arbiter/pkg/pagination"
)

const (
	EnvEngineStore            = "ARBITER_ENGINE_STORE"
	EnvEngineSweepInterval    = "ARBITER_ENGINE_SWEEP_INTERVAL"
	EnvEngineSweepConcurrency = "ARBITER_ENGINE_SWEEP_CONCURRENCY"
	EnvEngineSnapshotTTL      = "ARBITER_ENGINE_SNAPSHOT_TTL"
)

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "ARBITER_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "ARBITER_PAGINATION_MAX_PAGE_SIZE",
}

// Workflow store kinds.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// EngineConfig holds workflow engine and sweep parameters.
type EngineConfig struct {
	Store            string            `toml:"store"`
	SweepInterval    string            `toml:"sweep_interval"`
	SweepConcurrency int               `toml:"sweep_concurrency"`
	SnapshotTTL      string            `toml:"snapshot_ttl"`
	Pagination       pagination.Config `toml:"pagination"`
}

// SweepIntervalDuration returns SweepInterval as a time.Duration.
func (c *EngineConfig) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.SweepInterval)
	return d
}

// Options returns the engine options derived from this config.
func (c *EngineConfig) Options() workflows.Options {
	ttl, _ := time.ParseDuration(c.SnapshotTTL)
	return workflows.Options{
		SnapshotTTL:      ttl,
		SweepConcurrency: c.SweepConcurrency,
	}
}

// Finalize applies defaults, environment variable overrides, and validation
// for the engine config and its nested pagination config.
func (c *EngineConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}

	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *EngineConfig) Merge(overlay *EngineConfig) {
	if overlay.Store != "" {
		c.Store = overlay.Store
	}
	if overlay.SweepInterval != "" {
		c.SweepInterval = overlay.SweepInterval
	}
	if overlay.SweepConcurrency != 0 {
		c.SweepConcurrency = overlay.SweepConcurrency
	}
	if overlay.SnapshotTTL != "" {
		c.SnapshotTTL = overlay.SnapshotTTL
	}

	c.Pagination.Merge(&overlay.Pagination)
}

func (c *EngineConfig) loadDefaults() {
	if c.Store == "" {
		c.Store = StoreMemory
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "30s"
	}
	if c.SweepConcurrency == 0 {
		c.SweepConcurrency = 4
	}
	if c.SnapshotTTL == "" {
		c.SnapshotTTL = "30s"
	}
}

func (c *EngineConfig) loadEnv() {
	if v := os.Getenv(EnvEngineStore); v != "" {
		c.Store = v
	}
	if v := os.Getenv(EnvEngineSweepInterval); v != "" {
		c.SweepInterval = v
	}
	if v := os.Getenv(EnvEngineSweepConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SweepConcurrency = n
		}
	}
	if v := os.Getenv(EnvEngineSnapshotTTL); v != "" {
		c.SnapshotTTL = v
	}
}

func (c *EngineConfig) validate() error {
	if c.Store != StoreMemory && c.Store != StorePostgres {
		return fmt.Errorf("invalid store %q: must be %q or %q", c.Store, StoreMemory, StorePostgres)
	}
	if d, err := time.ParseDuration(c.SweepInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid sweep_interval: %s", c.SweepInterval)
	}
	if c.SweepConcurrency < 1 {
		return fmt.Errorf("sweep_concurrency must be positive")
	}
	if d, err := time.ParseDuration(c.SnapshotTTL); err != nil || d <= 0 {
		return fmt.Errorf("invalid snapshot_ttl: %s", c.SnapshotTTL)
	}
	return nil
}
