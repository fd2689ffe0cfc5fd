// Package config holds the typed configuration record for the replication
// pipeline. Loading it from flags or environment variables is left to the
// caller (see cmd/); this package only defines the shape and validates it.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config holds the settings a scheduler run needs: where to read the
// replication feed from, which region to keep, and where to write results.
type Config struct {
	// Database settings
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSchema   string

	// Planet server settings
	PlanetServers []string // ordered, first reachable wins
	Frequency     string   // "minute", "hour", or "day"

	// Region and scoring inputs
	PriorityPolygonFile string // GeoJSON/WKT file defining the region of interest
	StatsConfigFile     string // YAML tag-category config for the stats engine

	// Concurrency settings
	Concurrency int // worker pool size per monitor loop

	// Node cache settings
	NodeCacheWindow time.Duration // TTL bound, default covers one replication window
	NodeCacheShards int

	// Logging and metrics
	LogFile         string
	Verbose         bool
	MetricsInterval time.Duration
}

// DefaultConfig returns a configuration with sensible defaults for a
// single-region minutely replication run.
func DefaultConfig() *Config {
	return &Config{
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "underpass",
		DBUser:          "postgres",
		DBSchema:        "public",
		PlanetServers:   []string{"https://planet.openstreetmap.org/replication"},
		Frequency:       "minute",
		Concurrency:     runtime.NumCPU(),
		NodeCacheWindow: 24 * time.Hour,
		NodeCacheShards: 32,
		LogFile:         "",
		Verbose:         false,
		MetricsInterval: 30 * time.Second,
	}
}

// ConnectionString returns a PostgreSQL connection string suitable for
// pgxpool.New.
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is usable before the scheduler
// starts its monitor loops.
func (c *Config) Validate() error {
	if len(c.PlanetServers) == 0 {
		return fmt.Errorf("at least one planet server is required")
	}
	switch c.Frequency {
	case "minute", "hour", "day":
	default:
		return fmt.Errorf("frequency must be minute, hour, or day, got %q", c.Frequency)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.NodeCacheShards < 1 {
		return fmt.Errorf("node cache shards must be at least 1")
	}
	return nil
}
