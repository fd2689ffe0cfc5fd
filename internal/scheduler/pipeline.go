package scheduler

import (
	"bytes"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hotosm/underpass/internal/areafilter"
	"github.com/hotosm/underpass/internal/osm"
	"github.com/hotosm/underpass/internal/osmxml"
	"github.com/hotosm/underpass/internal/planet"
	"github.com/hotosm/underpass/internal/sequence"
	"github.com/hotosm/underpass/internal/sqlstore"
	"github.com/hotosm/underpass/internal/stats"
	"github.com/hotosm/underpass/internal/validate"
	"github.com/hotosm/underpass/internal/wkb"
)

// OsmChangeDeps bundles every collaborator the osmChange pipeline needs
// per file. A single instance is shared by every worker; the node cache
// and stats engine are the only ones mutated concurrently (guarded
// internally).
type OsmChangeDeps struct {
	Client    *planet.Client
	Frequency string
	Cache     *osm.NodeCache
	Filter    *areafilter.Filter
	Stats     *stats.Engine
	Validator *validate.Host
	Store     *sqlstore.Store
	Log       *zap.Logger
}

// NewOsmChangeProcess builds the process function an osmChange Monitor
// drives, implementing the full Discovered→Emitted pipeline.
func NewOsmChangeProcess(d OsmChangeDeps) processFunc {
	return func(ctx context.Context, seq int64) (FileState, time.Time, error) {
		body, err := d.Client.FetchSequenceData(ctx, d.Frequency, sequence.StreamOsmChange, seq)
		if err != nil {
			return classifyFetchError(err)
		}

		batch, err := osmxml.ParseOsmChange(bytes.NewReader(body), d.Cache)
		if err != nil {
			d.Log.Warn("malformed osmChange file", zap.Int64("sequence", seq), zap.Error(err))
			return StateFailedPermanent, time.Time{}, err
		}

		memberWays := make(map[int64]*osm.Way)
		assembleGeometry(batch, d.Cache, memberWays)

		result := d.Filter.Apply(batch, memberWays)

		emitErrs := 0
		allWays := waysOf(result.Changes)
		for _, c := range result.Changes {
			d.Stats.Score(c)
			if err := emitChange(ctx, d.Store, c); err != nil {
				d.Log.Warn("emit error", zap.Int64("sequence", seq), zap.Error(err))
				emitErrs++
				continue
			}
			runValidation(ctx, d.Validator, d.Store, c, allWays)
		}
		if emitErrs >= 3 {
			return StateFailedPermanent, time.Time{}, errors.New("three or more per-object emit errors in file")
		}

		return StateEmitted, batch.FinalEntry, nil
	}
}

// ChangesetDeps bundles the collaborators the changeset pipeline needs.
type ChangesetDeps struct {
	Client    *planet.Client
	Frequency string
	Filter    *areafilter.Filter
	Store     *sqlstore.Store
	Log       *zap.Logger
}

// NewChangesetProcess builds the process function a changeset Monitor
// drives.
func NewChangesetProcess(d ChangesetDeps) processFunc {
	return func(ctx context.Context, seq int64) (FileState, time.Time, error) {
		body, err := d.Client.FetchSequenceData(ctx, d.Frequency, sequence.StreamChangeset, seq)
		if err != nil {
			return classifyFetchError(err)
		}

		changesets, err := osmxml.ParseChangesetFile(bytes.NewReader(body))
		if err != nil {
			d.Log.Warn("malformed changeset file", zap.Int64("sequence", seq), zap.Error(err))
			return StateFailedPermanent, time.Time{}, err
		}

		var latest time.Time
		emitErrs := 0
		for _, cs := range changesets {
			if cs.ClosedAt.After(latest) {
				latest = cs.ClosedAt
			}
			if d.Filter != nil {
				center := cs.BBox()
				mid := center.Center()
				if country := d.Filter.CountryFor(mid); country != "" {
					cs.Country = country
				}
			}
			if err := d.Store.UpsertChangeSet(ctx, cs); err != nil {
				d.Log.Warn("emit error", zap.Int64("sequence", seq), zap.Int64("changeset", cs.ID), zap.Error(err))
				emitErrs++
			}
		}
		if emitErrs >= 3 {
			return StateFailedPermanent, time.Time{}, errors.New("three or more per-object emit errors in file")
		}

		return StateEmitted, latest, nil
	}
}

// classifyFetchError distinguishes NotFound (not itself an error state
// for the monitor loop — it signals "not published yet") from transient
// and permanent failures.
func classifyFetchError(err error) (FileState, time.Time, error) {
	var notFound *planet.NotFoundError
	if errors.As(err, &notFound) {
		return "", time.Time{}, err
	}
	// TransientNetworkError and any other fetch failure are both
	// retried next loop without advancing the cursor.
	return StateFailedTransient, time.Time{}, err
}

// assembleGeometry resolves way linestrings/polygons against the node
// cache and relation multi-geometries against already-assembled member
// ways, honouring the nodes-before-ways-before-relations ordering
// guarantee the parser provides within a file.
func assembleGeometry(batch *osm.FileBatch, cache *osm.NodeCache, memberWays map[int64]*osm.Way) {
	for i := range batch.Changes {
		c := &batch.Changes[i]
		if c.Type == osm.MemberWay && c.Way != nil && c.Action != osm.ActionRemove {
			osm.AssembleWayGeometry(c.Way, cache)
			memberWays[c.Way.ID] = c.Way
		}
	}
	for i := range batch.Changes {
		c := &batch.Changes[i]
		if c.Type == osm.MemberRelation && c.Relation != nil && c.Action != osm.ActionRemove {
			osm.AssembleRelationGeometry(c.Relation, memberWays)
		}
	}
}

func waysOf(changes []osm.Change) []*osm.Way {
	var ways []*osm.Way
	for _, c := range changes {
		if c.Type == osm.MemberWay && c.Way != nil {
			ways = append(ways, c.Way)
		}
	}
	return ways
}

func emitChange(ctx context.Context, store *sqlstore.Store, c osm.Change) error {
	switch c.Type {
	case osm.MemberNode:
		return store.UpsertNode(ctx, c.Node)
	case osm.MemberWay:
		return store.UpsertWay(ctx, c.Way)
	case osm.MemberRelation:
		return store.UpsertRelation(ctx, c.Relation)
	}
	return nil
}

// runValidation runs the configured rules over a retained node/way and
// persists any non-empty findings. A validator error is never fatal to
// the file.
func runValidation(ctx context.Context, host *validate.Host, store *sqlstore.Store, c osm.Change, allWays []*osm.Way) {
	if host == nil || c.Action == osm.ActionRemove {
		return
	}
	var statuses []*validate.Status
	var geom []byte
	switch c.Type {
	case osm.MemberNode:
		statuses = host.RunNode(c.Node)
		if len(statuses) > 0 {
			geom = wkb.NewEncoder(32).EncodePoint(c.Node.Point)
		}
	case osm.MemberWay:
		statuses = host.RunWay(c.Way, allWays)
		if len(statuses) > 0 {
			if c.Way.IsPolygon && len(c.Way.Polygon) > 0 {
				geom = wkb.NewEncoder(64).EncodePolygon(c.Way.Polygon)
			} else if len(c.Way.LineString) > 0 {
				geom = wkb.NewEncoder(64).EncodeLineString(c.Way.LineString)
			}
		}
	}
	for _, st := range statuses {
		// A validation write failure is non-fatal and deliberately not
		// retried or counted against the file's emit-error budget.
		_ = store.UpsertValidation(ctx, st, geom)
	}
}
