// Package scheduler runs the two long-running replication monitor
// loops (changeset, osmChange), each with its own cursor, worker pool,
// and strictly-monotone cursor advance.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hotosm/underpass/internal/metadata"
	"github.com/hotosm/underpass/internal/planet"
	"github.com/hotosm/underpass/internal/sequence"
)

// processFunc runs one file through Download→...→Emitted and returns
// its terminal state and the file's timestamp (used for cursor
// persistence on success).
type processFunc func(ctx context.Context, seq int64) (FileState, time.Time, error)

// cursorStore is the subset of metadata.Store the monitor loop needs to
// persist cursor advances and per-file failures; narrowing it to an
// interface keeps the loop's sequencing logic testable without a live
// database connection.
type cursorStore interface {
	Put(ctx context.Context, st metadata.State) error
	RecordFailure(ctx context.Context, stream sequence.Stream, seq int64, path, reason string) error
}

// Monitor drives one replication stream: it discovers the next run of
// sequences, processes them concurrently via a bounded worker pool, and
// advances the persisted cursor strictly in sequence order — a later
// file in the batch may finish downloading before an earlier one, but
// the cursor only moves past the longest unbroken prefix of successes.
type Monitor struct {
	stream      sequence.Stream
	frequency   string
	concurrency int

	meta    cursorStore
	process processFunc
	log     *zap.Logger

	backoff      *Backoff
	gapSince     time.Time
	gapThreshold time.Duration
}

// NewMonitor builds a monitor for one stream. process is supplied by
// the osmChange- or changeset-specific wiring in pipeline.go.
func NewMonitor(stream sequence.Stream, frequency string, concurrency int, meta cursorStore, process processFunc, log *zap.Logger) *Monitor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Monitor{
		stream:       stream,
		frequency:    frequency,
		concurrency:  concurrency,
		meta:         meta,
		process:      process,
		log:          log,
		backoff:      NewBackoff(0, 0, 0),
		gapThreshold: 2 * time.Hour,
	}
}

// Run executes the monitor loop until ctx is cancelled (SIGINT/SIGTERM
// handled by the caller). It stops enqueuing new files once ctx is
// done; any in-flight batch is allowed to finish draining (per-object
// transactions are short) before Run returns.
func (m *Monitor) Run(ctx context.Context, startSeq int64) error {
	next := startSeq

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batchSeqs := make([]int64, m.concurrency)
		for i := range batchSeqs {
			batchSeqs[i] = next + int64(i)
		}

		results := make([]fileResult, len(batchSeqs))
		g, gctx := errgroup.WithContext(ctx)
		for i, seq := range batchSeqs {
			i, seq := i, seq
			g.Go(func() error {
				state, ts, err := m.process(gctx, seq)
				results[i] = fileResult{sequence: seq, state: state, err: err, timestamp: ts}
				return nil
			})
		}
		_ = g.Wait()

		advanced, sawNotFound := m.advanceCursor(ctx, results)
		next += int64(advanced)

		if advanced == 0 {
			if sawNotFound {
				m.noteGap(ctx, next)
			}
			delay := m.backoff.Next()
			m.log.Debug("no new files, backing off",
				zap.String("stream", string(m.stream)), zap.Int64("next", next), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		m.backoff.Reset()
		m.gapSince = time.Time{}
	}
}

// advanceCursor walks results in sequence order and persists the
// cursor past the longest unbroken prefix of non-blocking outcomes.
// Emitted files and FailedPermanent files (after the failure is
// recorded) extend the prefix, so the pipeline never gets stuck on a
// poison file. FailedTransient ends the prefix (retried next loop), and
// so does NotFound, which also sets sawNotFound because the file simply
// hasn't been published yet.
func (m *Monitor) advanceCursor(ctx context.Context, results []fileResult) (advanced int, sawNotFound bool) {
	for _, res := range results {
		switch res.state {
		case StateEmitted, StateCursorAdvanced:
			if err := m.meta.Put(ctx, metadata.State{
				Stream: m.stream, Frequency: m.frequency, Sequence: res.sequence,
				Path: sequence.ToPath(res.sequence), Timestamp: res.timestamp,
			}); err != nil {
				m.log.Error("persisting cursor", zap.Error(err))
				return advanced, sawNotFound
			}
			advanced++
		case StateFailedPermanent:
			if err := m.meta.RecordFailure(ctx, m.stream, res.sequence, sequence.ToPath(res.sequence), res.err.Error()); err != nil {
				m.log.Error("recording failure", zap.Error(err))
			}
			if err := m.meta.Put(ctx, metadata.State{
				Stream: m.stream, Frequency: m.frequency, Sequence: res.sequence,
				Path: sequence.ToPath(res.sequence), Timestamp: time.Now().UTC(),
			}); err != nil {
				m.log.Error("persisting cursor past permanent failure", zap.Error(err))
				return advanced, sawNotFound
			}
			advanced++
		case "":
			var notFound *planet.NotFoundError
			if errors.As(res.err, &notFound) {
				sawNotFound = true
			}
			return advanced, sawNotFound
		default: // StateFailedTransient or any other non-terminal outcome
			return advanced, sawNotFound
		}
	}
	return advanced, sawNotFound
}

func (m *Monitor) noteGap(ctx context.Context, seq int64) {
	if m.gapSince.IsZero() {
		m.gapSince = time.Now()
		return
	}
	if time.Since(m.gapSince) > m.gapThreshold {
		m.log.Warn("persistent gap past last known sequence",
			zap.String("stream", string(m.stream)), zap.Int64("sequence", seq),
			zap.Duration("age", time.Since(m.gapSince)))
		if err := m.meta.RecordFailure(ctx, m.stream, seq, sequence.ToPath(seq), "gap"); err != nil {
			m.log.Error("recording gap", zap.Error(err))
		}
	}
}
