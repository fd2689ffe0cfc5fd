package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/hotosm/underpass/internal/config"
	"github.com/hotosm/underpass/internal/logger"
)

var (
	cfg             = config.DefaultConfig()
	verbose         bool
	logFile         string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "underpass",
	Short: "OSM replication monitor and change-quality pipeline",
	Long: `underpass watches the OpenStreetMap replication feeds and keeps a
PostGIS database in sync with the raw edits and their quality scores.
Per-changeset statistics are computed in memory; they are not written
to the database.

Features:
  - Continuous osmChange and changeset stream monitoring with
    strictly-monotone cursor advance
  - Geographic region-of-interest filtering
  - Tag-category change statistics and validation rule scoring
  - Per-object short transactions against PostgreSQL/PostGIS`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg.Verbose = verbose
		cfg.LogFile = logFile
		cfg.MetricsInterval = metricsInterval

		// Initialize logger with optional file output
		if logFile != "" {
			logger.InitWithFile(verbose, logFile)
		} else {
			logger.Init(verbose)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringSliceVar(&cfg.PlanetServers, "planet-server", cfg.PlanetServers, "Replication server URL, first reachable wins (repeatable)")
	rootCmd.PersistentFlags().StringVar(&cfg.Frequency, "frequency", cfg.Frequency, "Replication frequency: minute, hour, or day")
	rootCmd.PersistentFlags().StringVar(&cfg.PriorityPolygonFile, "priority-polygon", cfg.PriorityPolygonFile, "Optional GeoJSON/WKT file defining the region of interest")
	rootCmd.PersistentFlags().StringVar(&cfg.StatsConfigFile, "stats-config", cfg.StatsConfigFile, "Optional YAML tag-category config for the stats engine")
	rootCmd.PersistentFlags().IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Worker pool size per monitor loop")
	rootCmd.PersistentFlags().DurationVar(&cfg.NodeCacheWindow, "node-cache-window", cfg.NodeCacheWindow, "Node cache TTL, should cover one replication window")
	rootCmd.PersistentFlags().IntVar(&cfg.NodeCacheShards, "node-cache-shards", cfg.NodeCacheShards, "Number of node cache shards")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", 30*time.Second, "Interval for system metrics logging (e.g., 10s, 1m)")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
}
