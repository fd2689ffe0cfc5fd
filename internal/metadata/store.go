// Package metadata persists the replication pipeline's own cursors and
// per-file failure records, independent of the feature schema the
// sqlstore package writes into.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hotosm/underpass/internal/sequence"
)

// State is one (stream, frequency) cursor position.
type State struct {
	Stream    sequence.Stream
	Frequency string
	Sequence  int64
	Path      string
	Timestamp time.Time
}

// Store is the metadata persistence layer: get_last, put, and
// record_failure are its only public operations.
type Store struct {
	pool   *pgxpool.Pool
	schema string
}

// NewStore binds a metadata store to a connection pool and schema.
func NewStore(pool *pgxpool.Pool, schema string) *Store {
	if schema == "" {
		schema = "public"
	}
	return &Store{pool: pool, schema: schema}
}

func (s *Store) table(name string) string {
	return s.schema + "." + name
}

// GetLast returns the last persisted cursor for a stream, or ok=false
// if no row exists yet (fresh start — the caller resolves from config).
func (s *Store) GetLast(ctx context.Context, stream sequence.Stream) (State, bool, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT stream, frequency, sequence, path, timestamp FROM %s WHERE stream = $1`,
		s.table("replication_state")), string(stream))

	var st State
	var streamStr string
	if err := row.Scan(&streamStr, &st.Frequency, &st.Sequence, &st.Path, &st.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("reading replication_state for %s: %w", stream, err)
	}
	st.Stream = sequence.Stream(streamStr)
	return st, true, nil
}

// Put persists the cursor for a stream, upserting the single row keyed
// by stream.
func (s *Store) Put(ctx context.Context, st State) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (stream, frequency, sequence, path, timestamp, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (stream) DO UPDATE SET
			frequency = $2, sequence = $3, path = $4, timestamp = $5, updated_at = now()
	`, s.table("replication_state")),
		string(st.Stream), st.Frequency, st.Sequence, st.Path, st.Timestamp)
	if err != nil {
		return fmt.Errorf("writing replication_state for %s: %w", st.Stream, err)
	}
	return nil
}

// RecordFailure logs a per-file failure (FailedPermanent or a
// persistent Gap) for later inspection; it never blocks the cursor.
func (s *Store) RecordFailure(ctx context.Context, stream sequence.Stream, seq int64, path, reason string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (stream, sequence, path, reason, occurred_at)
		VALUES ($1, $2, $3, $4, now())
	`, s.table("replication_failures")), string(stream), seq, path, reason)
	if err != nil {
		return fmt.Errorf("recording replication failure for %s seq %d: %w", stream, seq, err)
	}
	return nil
}
