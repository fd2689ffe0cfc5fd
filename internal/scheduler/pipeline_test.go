package scheduler

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/hotosm/underpass/internal/osm"
	"github.com/hotosm/underpass/internal/planet"
)

func TestClassifyFetchErrorNotFoundReturnsEmptyState(t *testing.T) {
	state, ts, err := classifyFetchError(&planet.NotFoundError{URL: "x"})
	if state != "" {
		t.Errorf("state = %q, want empty", state)
	}
	if !ts.IsZero() {
		t.Errorf("timestamp = %v, want zero", ts)
	}
	if err == nil {
		t.Error("expected the original error to be returned")
	}
}

func TestClassifyFetchErrorOtherReturnsFailedTransient(t *testing.T) {
	state, _, err := classifyFetchError(&planet.TransientNetworkError{URL: "x"})
	if state != StateFailedTransient {
		t.Errorf("state = %q, want %q", state, StateFailedTransient)
	}
	if err == nil {
		t.Error("expected the original error to be returned")
	}
}

func TestWaysOfCollectsOnlyWayChanges(t *testing.T) {
	way := &osm.Way{ID: 1}
	changes := []osm.Change{
		{Type: osm.MemberNode, Node: &osm.Node{ID: 2}},
		{Type: osm.MemberWay, Way: way},
		{Type: osm.MemberRelation, Relation: &osm.Relation{ID: 3}},
	}
	got := waysOf(changes)
	if len(got) != 1 || got[0] != way {
		t.Errorf("waysOf = %v, want [way]", got)
	}
}

func TestAssembleGeometryResolvesWaysBeforeRelations(t *testing.T) {
	cache := osm.NewNodeCache(4, 0)
	cache.Put(1, orb.Point{0, 0})
	cache.Put(2, orb.Point{1, 0})
	cache.Put(3, orb.Point{1, 1})
	cache.Put(4, orb.Point{0, 1})

	way := &osm.Way{ID: 10, Refs: []int64{1, 2, 3, 4, 1}, Tags: map[string]string{"building": "yes"}}
	relation := &osm.Relation{
		ID:   20,
		Tags: map[string]string{"type": "multipolygon"},
		Members: []osm.RelationMember{
			{Type: osm.MemberWay, Ref: 10, Role: "outer"},
		},
	}

	batch := &osm.FileBatch{Changes: []osm.Change{
		{Type: osm.MemberWay, Way: way},
		{Type: osm.MemberRelation, Relation: relation},
	}}

	memberWays := make(map[int64]*osm.Way)
	assembleGeometry(batch, cache, memberWays)

	if len(way.Polygon) == 0 {
		t.Fatal("expected the way's polygon to be assembled before the relation runs")
	}
	if relation.Invalid {
		t.Errorf("expected the relation to resolve its outer ring from the already-assembled way, got Invalid=true")
	}
	if len(relation.MultiPolygon) == 0 {
		t.Error("expected a non-empty multipolygon on the relation")
	}
}
