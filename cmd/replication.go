package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hotosm/underpass/internal/areafilter"
	"github.com/hotosm/underpass/internal/logger"
	"github.com/hotosm/underpass/internal/metadata"
	"github.com/hotosm/underpass/internal/metrics"
	"github.com/hotosm/underpass/internal/osm"
	"github.com/hotosm/underpass/internal/planet"
	"github.com/hotosm/underpass/internal/scheduler"
	"github.com/hotosm/underpass/internal/sequence"
	"github.com/hotosm/underpass/internal/sqlstore"
	"github.com/hotosm/underpass/internal/stats"
	"github.com/hotosm/underpass/internal/validate"
)

var startSeqOverride int64

var replicateCmd = &cobra.Command{
	Use:   "replicate",
	Short: "Run the osmChange and changeset replication monitors",
	Long: `replicate starts both replication monitor loops against the
configured planet servers, applying retained changes and changesets to
PostgreSQL/PostGIS until interrupted (Ctrl+C).`,
	RunE: runReplicate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last persisted replication cursor for both streams",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(replicateCmd)
	rootCmd.AddCommand(statusCmd)

	replicateCmd.Flags().Int64Var(&startSeqOverride, "start-sequence", 0, "Override the osmChange start sequence (0 = resume from persisted cursor, or probe latest on first run)")
}

func newPool(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	// Two monitor loops each run cfg.Concurrency workers, and each worker
	// holds one short per-object transaction at a time.
	poolConfig.MaxConns = int32(cfg.Concurrency * 2)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	return pool, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	log := logger.Get()
	ctx := context.Background()

	pool, err := newPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	meta := metadata.NewStore(pool, cfg.DBSchema)
	for _, stream := range []sequence.Stream{sequence.StreamOsmChange, sequence.StreamChangeset} {
		st, ok, err := meta.GetLast(ctx, stream)
		if err != nil {
			return fmt.Errorf("reading cursor for %s: %w", stream, err)
		}
		if !ok {
			fmt.Printf("%s: no cursor persisted yet\n", stream)
			continue
		}
		fmt.Printf("%s: sequence=%d path=%s timestamp=%s\n", stream, st.Sequence, st.Path, st.Timestamp.Format("2006-01-02T15:04:05Z"))
	}
	log.Debug("status command complete")
	return nil
}

func runReplicate(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	pool, err := newPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.MetricsInterval > 0 {
		collector := metrics.NewCollector(cfg.MetricsInterval, log)
		go collector.Start(ctx)
	}

	polygon, err := areafilter.LoadPolygon(cfg.PriorityPolygonFile)
	if err != nil {
		return fmt.Errorf("loading priority polygon: %w", err)
	}
	filter := areafilter.New(polygon)

	statsCfg, err := stats.LoadConfig(cfg.StatsConfigFile)
	if err != nil {
		return fmt.Errorf("loading stats config: %w", err)
	}

	store := sqlstore.NewStore(pool, cfg.DBSchema, log)
	meta := metadata.NewStore(pool, cfg.DBSchema)
	client := planet.NewClient(cfg.PlanetServers, 30*time.Second, 300*time.Second, log)
	host := validate.NewHost(
		validate.BuildingRule{}, validate.HighwayRule{},
		validate.LanduseRule{}, validate.PlaceRule{}, validate.WaterwayRule{},
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cache := osm.NewNodeCache(cfg.NodeCacheShards, cfg.NodeCacheWindow)
		engine := stats.NewEngine(statsCfg)
		process := scheduler.NewOsmChangeProcess(scheduler.OsmChangeDeps{
			Client: client, Frequency: cfg.Frequency, Cache: cache,
			Filter: filter, Stats: engine, Validator: host, Store: store, Log: log,
		})
		mon := scheduler.NewMonitor(sequence.StreamOsmChange, cfg.Frequency, cfg.Concurrency, meta, process, log)
		start, err := resolveStartSequence(gctx, meta, client, sequence.StreamOsmChange, cfg.Frequency, startSeqOverride)
		if err != nil {
			return fmt.Errorf("resolving osmChange start sequence: %w", err)
		}
		return mon.Run(gctx, start)
	})

	g.Go(func() error {
		process := scheduler.NewChangesetProcess(scheduler.ChangesetDeps{
			Client: client, Frequency: cfg.Frequency, Filter: filter, Store: store, Log: log,
		})
		mon := scheduler.NewMonitor(sequence.StreamChangeset, cfg.Frequency, cfg.Concurrency, meta, process, log)
		start, err := resolveStartSequence(gctx, meta, client, sequence.StreamChangeset, cfg.Frequency, 0)
		if err != nil {
			return fmt.Errorf("resolving changeset start sequence: %w", err)
		}
		return mon.Run(gctx, start)
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	log.Info("replication stopped")
	return nil
}

// resolveStartSequence resumes from the persisted cursor's next
// sequence, an explicit override, or the latest published sequence on
// a genuinely fresh start.
func resolveStartSequence(ctx context.Context, meta *metadata.Store, client *planet.Client, stream sequence.Stream, frequency string, override int64) (int64, error) {
	if override > 0 {
		return override, nil
	}
	st, ok, err := meta.GetLast(ctx, stream)
	if err != nil {
		return 0, err
	}
	if ok {
		return st.Sequence + 1, nil
	}
	_, seq, _, err := client.ProbeLatest(ctx, frequency, stream)
	if err != nil {
		return 0, fmt.Errorf("probing latest %s sequence: %w", stream, err)
	}
	return seq, nil
}
