// Package sqlstore renders the parameterised upsert/delete statements
// that persist nodes, ways, relations, changesets, stats, and
// validation records, one short transaction per object.
package sqlstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/hotosm/underpass/internal/osm"
	"github.com/hotosm/underpass/internal/validate"
	"github.com/hotosm/underpass/internal/wkb"
)

// Store emits feature/stats/validation rows into a PostGIS schema,
// one transaction per object.
type Store struct {
	pool   *pgxpool.Pool
	schema string
	log    *zap.Logger
}

// NewStore builds an emitter bound to a connection pool and schema.
func NewStore(pool *pgxpool.Pool, schema string, log *zap.Logger) *Store {
	if schema == "" {
		schema = "public"
	}
	return &Store{pool: pool, schema: schema, log: log}
}

func newWKBEncoder() *wkb.Encoder {
	return wkb.NewEncoder(64)
}

func (s *Store) table(name string) string {
	return s.schema + "." + name
}

// withTx runs fn inside BEGIN/COMMIT, rolling back and wrapping the
// error as EmitError on any failure within the transaction.
func (s *Store) withTx(ctx context.Context, which string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &EmitError{Which: which, Cause: err}
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return &EmitError{Which: which, Cause: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &EmitError{Which: which, Cause: err}
	}
	return nil
}

// UpsertNode writes a node and its point geometry with a single
// INSERT ... ON CONFLICT DO UPDATE, which overwrites the geometry in place.
func (s *Store) UpsertNode(ctx context.Context, n *osm.Node) error {
	return s.withTx(ctx, "node", func(tx pgx.Tx) error {
		if n.Action == osm.ActionRemove {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table("nodes")), n.ID); err != nil {
				return err
			}
			return nil
		}

		geom := newWKBEncoder().EncodePoint(n.Point)
		hstore := HstoreLiteral(n.Tags)

		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, version, user_id, tstamp, changeset_id, tags, geom)
			VALUES ($1, $2, $3, $4, $5, $6::hstore, ST_SetSRID(ST_GeomFromWKB($7), 4326))
			ON CONFLICT (id) DO UPDATE SET
				version = $2, user_id = $3, tstamp = $4, changeset_id = $5,
				tags = $6::hstore, geom = ST_SetSRID(ST_GeomFromWKB($7), 4326)
		`, s.table("nodes")),
			n.ID, n.Version, n.UID, n.Timestamp, n.ChangesetID, hstore, geom); err != nil {
			return err
		}
		return nil
	})
}

// UpsertWay writes a way's attributes and its linestring/polygon geometry
// with a single INSERT ... ON CONFLICT DO UPDATE, which overwrites the
// geometry in place, and updates way_area for polygons.
func (s *Store) UpsertWay(ctx context.Context, w *osm.Way) error {
	return s.withTx(ctx, "way", func(tx pgx.Tx) error {
		if w.Action == osm.ActionRemove {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table("ways")), w.ID); err != nil {
				return err
			}
			return nil
		}

		hstore := HstoreLiteral(w.Tags)
		var lineGeom, polyGeom []byte
		if len(w.LineString) > 0 {
			lineGeom = newWKBEncoder().EncodeLineString(w.LineString)
		}
		if w.IsPolygon && len(w.Polygon) > 0 {
			polyGeom = newWKBEncoder().EncodePolygon(w.Polygon)
		}

		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, version, user_id, tstamp, changeset_id, tags, linestring, polygon)
			VALUES ($1, $2, $3, $4, $5, $6::hstore,
				CASE WHEN $7::bytea IS NULL THEN NULL ELSE ST_SetSRID(ST_GeomFromWKB($7), 4326) END,
				CASE WHEN $8::bytea IS NULL THEN NULL ELSE ST_SetSRID(ST_GeomFromWKB($8), 4326) END)
			ON CONFLICT (id) DO UPDATE SET
				version = $2, user_id = $3, tstamp = $4, changeset_id = $5, tags = $6::hstore,
				linestring = CASE WHEN $7::bytea IS NULL THEN NULL ELSE ST_SetSRID(ST_GeomFromWKB($7), 4326) END,
				polygon = CASE WHEN $8::bytea IS NULL THEN NULL ELSE ST_SetSRID(ST_GeomFromWKB($8), 4326) END
		`, s.table("ways")),
			w.ID, w.Version, w.UID, w.Timestamp, w.ChangesetID, hstore, lineGeom, polyGeom); err != nil {
			return err
		}

		if w.IsPolygon {
			if _, err := tx.Exec(ctx, fmt.Sprintf(
				`UPDATE %s SET way_area = ST_Area(polygon::geography) WHERE id = $1`, s.table("ways")), w.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertRelation writes a relation's attributes and multipolygon or
// multilinestring geometry. An invalid relation (no outer ring) is
// skipped entirely, never persisted.
func (s *Store) UpsertRelation(ctx context.Context, r *osm.Relation) error {
	if r.Invalid {
		return nil
	}
	return s.withTx(ctx, "relation", func(tx pgx.Tx) error {
		if r.Action == osm.ActionRemove {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table("relations")), r.ID); err != nil {
				return err
			}
			return nil
		}

		hstore := HstoreLiteral(r.Tags)
		var geom []byte
		if r.IsMultipolygon && len(r.MultiPolygon) > 0 {
			geom = newWKBEncoder().EncodeMultiPolygon(r.MultiPolygon)
		} else if len(r.MultiLineString) > 0 {
			geom = newWKBEncoder().EncodeMultiLineString(r.MultiLineString)
		}

		_, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, version, user_id, tstamp, changeset_id, tags, geom)
			VALUES ($1, $2, $3, $4, $5, $6::hstore, ST_SetSRID(ST_GeomFromWKB($7), 4326))
			ON CONFLICT (id) DO UPDATE SET
				version = $2, user_id = $3, tstamp = $4, changeset_id = $5,
				tags = $6::hstore, geom = ST_SetSRID(ST_GeomFromWKB($7), 4326)
		`, s.table("relations")),
			r.ID, r.Version, r.UID, r.Timestamp, r.ChangesetID, hstore, geom)
		return err
	})
}

// UpsertChangeSet writes changeset metadata plus its hashtags and, if
// resolved, its country.
func (s *Store) UpsertChangeSet(ctx context.Context, cs *osm.ChangeSet) error {
	return s.withTx(ctx, "changeset", func(tx pgx.Tx) error {
		var bboxWKB []byte
		if poly := bboxPolygon(cs); poly != nil {
			bboxWKB = newWKBEncoder().EncodePolygon(poly)
		}
		hashtags := ArrayLiteral(cs.Hashtags)

		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, editor, user_id, created_at, closed_at, bbox, hashtags, comment, source)
			VALUES ($1, $2, $3, $4, $5,
				CASE WHEN $6::bytea IS NULL THEN NULL ELSE ST_SetSRID(ST_GeomFromWKB($6), 4326) END,
				$7::text[], $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				editor = $2, user_id = $3, created_at = $4, closed_at = $5,
				bbox = CASE WHEN $6::bytea IS NULL THEN NULL ELSE ST_SetSRID(ST_GeomFromWKB($6), 4326) END,
				hashtags = $7::text[], comment = $8, source = $9
		`, s.table("changesets")),
			cs.ID, cs.Editor, cs.UID, cs.CreatedAt, cs.ClosedAt, bboxWKB, hashtags, cs.Comment, cs.Source); err != nil {
			return err
		}

		for _, tag := range cs.Hashtags {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`
				INSERT INTO %s (changeset_id, hashtag) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, s.table("changesets_hashtags")), cs.ID, tag); err != nil {
				return err
			}
		}

		if cs.Country != "" {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`
				INSERT INTO %s (changeset_id, country) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, s.table("changesets_countries")), cs.ID, cs.Country); err != nil {
				return err
			}
		}
		return nil
	})
}

// bboxPolygon builds the rectangular polygon for a changeset's bounding
// box. A changeset with no edits (min/max left at zero) has no bbox.
func bboxPolygon(cs *osm.ChangeSet) orb.Polygon {
	if cs.MinLon == 0 && cs.MinLat == 0 && cs.MaxLon == 0 && cs.MaxLat == 0 {
		return nil
	}
	ring := orb.Ring{
		{cs.MinLon, cs.MinLat},
		{cs.MaxLon, cs.MinLat},
		{cs.MaxLon, cs.MaxLat},
		{cs.MinLon, cs.MaxLat},
		{cs.MinLon, cs.MinLat},
	}
	return orb.Polygon{ring}
}

// UpsertChangeStats writes the ChangeStats row it is given; it does not
// check HasAccrued() itself (stats.Engine.Results already drops empty
// ones). No scheduler code calls it, so the replication pipeline does
// not persist ChangeStats rows. added_km keeps
// the fractional highway/waterway length totals in their own hstore
// column rather than truncating them into the integer-valued added
// counts.
func (s *Store) UpsertChangeStats(ctx context.Context, cs *osm.ChangeStats) error {
	return s.withTx(ctx, "changestats", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (change_id, user_id, username, closed_at, added, added_km, modified)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (change_id) DO UPDATE SET
				user_id = $2, username = $3, closed_at = $4, added = $5, added_km = $6, modified = $7
		`, s.table("changestats")),
			cs.ChangeID, cs.UserID, cs.Username, cs.ClosedAt,
			countMapLiteral(cs.Added), FloatMapLiteral(cs.AddedKM), countMapLiteral(cs.Modified))
		return err
	})
}

// UpsertValidation writes one validator finding. status summarises the
// worst flag found; reason lists every flag raised.
func (s *Store) UpsertValidation(ctx context.Context, st *validate.Status, geom []byte) error {
	return s.withTx(ctx, "validation", func(tx pgx.Tx) error {
		reasons := make([]string, 0, len(st.Flags))
		for f := range st.Flags {
			reasons = append(reasons, string(f))
		}
		_, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (osm_id, osm_type, status, reason, source, timestamp, geom)
			VALUES ($1, $2, $3, $4::text[], $5, now(), ST_SetSRID(ST_GeomFromWKB($6), 4326))
		`, s.table("validation")),
			st.OSMID, string(st.OSMType), validationStatus(st), ArrayLiteral(reasons), st.Source, geom)
		return err
	})
}

func validationStatus(st *validate.Status) string {
	if st.Flags[validate.FlagIncomplete] || st.Flags[validate.FlagOverlaps] || st.Flags[validate.FlagDuplicate] || st.Flags[validate.FlagBadValue] {
		return "flagged"
	}
	return "ok"
}

func countMapLiteral(m map[string]int64) string {
	return HstoreLiteral(intMapToStringMap(m))
}

func intMapToStringMap(m map[string]int64) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprintf("%d", v)
	}
	return out
}
