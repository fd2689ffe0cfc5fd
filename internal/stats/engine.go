package stats

import (
	"math"
	"sync"

	"github.com/paulmach/orb"

	"github.com/hotosm/underpass/internal/osm"
)

// Engine accumulates per-changeset ChangeStats for one ingest, classifying
// each retained object against a Config and tallying category counts plus
// highway/waterway haversine lengths. One Engine is shared by every
// worker in the scheduler's pool, so Score/Results/UserResults all take
// mu.
type Engine struct {
	cfg Config

	mu          sync.Mutex
	byChangeset map[int64]*osm.ChangeStats
	// byUser is the same accrual keyed by editor instead of changeset,
	// kept alongside the per-changeset view for the user rollup.
	byUser map[int64]*osm.ChangeStats
}

// NewEngine builds an accumulator bound to a tag-category config.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:         cfg,
		byChangeset: make(map[int64]*osm.ChangeStats),
		byUser:      make(map[int64]*osm.ChangeStats),
	}
}

// Score classifies and accumulates one retained change. Remove actions
// never contribute, avoiding double counting across prior file
// batches. Objects whose only tag is "created_at" are legacy noise and
// ignored entirely.
func (e *Engine) Score(c osm.Change) {
	if c.Action == osm.ActionRemove {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var tags map[string]string
	var changesetID, userID int64
	var username string
	switch c.Type {
	case osm.MemberNode:
		tags, changesetID, userID, username = c.Node.Tags, c.Node.ChangesetID, c.Node.UID, c.Node.User
	case osm.MemberWay:
		tags, changesetID, userID, username = c.Way.Tags, c.Way.ChangesetID, c.Way.UID, c.Way.User
	case osm.MemberRelation:
		tags, changesetID, userID, username = c.Relation.Tags, c.Relation.ChangesetID, c.Relation.UID, c.Relation.User
	default:
		return
	}
	if isLegacyNoise(tags) {
		return
	}

	categories := e.cfg.Classify(tags, c.Type)
	if len(categories) == 0 {
		return
	}

	cs := e.statsFor(e.byChangeset, changesetID, changesetID, userID, username)
	us := e.statsFor(e.byUser, userID, changesetID, userID, username)

	for _, cat := range categories {
		switch c.Action {
		case osm.ActionCreate:
			cs.Added[cat]++
			us.Added[cat]++
		case osm.ActionModify:
			cs.Modified[cat]++
			us.Modified[cat]++
		}

		if c.Type != osm.MemberWay || c.Action != osm.ActionCreate {
			continue
		}
		if cat != "highway" && cat != "waterway" {
			continue
		}
		km := haversineLengthKM(c.Way.LineString)
		cs.AddedKM[cat+"_km"] += km
		us.AddedKM[cat+"_km"] += km
	}
}

func (e *Engine) statsFor(m map[int64]*osm.ChangeStats, key, changeID, userID int64, username string) *osm.ChangeStats {
	cs, ok := m[key]
	if !ok {
		cs = osm.NewChangeStats(changeID, userID, username)
		m[key] = cs
	}
	return cs
}

// isLegacyNoise reports whether the only tag present is "created_at",
// a leftover from old editors carrying no real semantic content.
func isLegacyNoise(tags map[string]string) bool {
	if len(tags) != 1 {
		return false
	}
	_, ok := tags["created_at"]
	return ok
}

// haversineLengthKM sums the great-circle distance between consecutive
// points using the haversine formula with a 6,371 km earth radius, in
// kilometres. Points with literal (0,0) coordinates — the node cache's
// sentinel for "unknown" — are skipped and do not start a new segment.
func haversineLengthKM(ls orb.LineString) float64 {
	const earthRadiusKM = 6371.0
	var total float64
	var prev orb.Point
	havePrev := false

	for _, p := range ls {
		if p[0] == 0 && p[1] == 0 {
			havePrev = false
			continue
		}
		if havePrev {
			lat1, lat2 := prev[1]*math.Pi/180, p[1]*math.Pi/180
			sinDLat := math.Sin((lat2 - lat1) / 2)
			sinDLon := math.Sin((p[0] - prev[0]) * math.Pi / 180 / 2)
			a := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
			total += 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
		}
		prev = p
		havePrev = true
	}
	return total
}

// Results returns the final per-changeset ChangeStats, dropping any
// changeset that accrued nothing — a ChangeStats record exists only for
// changesets with at least one tagged object scored.
func (e *Engine) Results() map[int64]*osm.ChangeStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[int64]*osm.ChangeStats)
	for id, cs := range e.byChangeset {
		if cs.HasAccrued() {
			out[id] = cs
		}
	}
	return out
}

// UserResults returns the per-user rollup view.
func (e *Engine) UserResults() map[int64]*osm.ChangeStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[int64]*osm.ChangeStats)
	for id, cs := range e.byUser {
		if cs.HasAccrued() {
			out[id] = cs
		}
	}
	return out
}
