package areafilter

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/hotosm/underpass/internal/osm"
)

func square(minLon, minLat, maxLon, maxLat float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}
}

func TestEmptyFilterPassesAll(t *testing.T) {
	f := New(nil)
	if !f.Contains(orb.Point{500, 500}) {
		t.Error("an empty priority polygon must retain every point")
	}
}

func TestContainsInsideAndOutside(t *testing.T) {
	f := New(orb.MultiPolygon{square(0, 0, 10, 10)})
	if !f.Contains(orb.Point{5, 5}) {
		t.Error("expected point inside the square to be contained")
	}
	if f.Contains(orb.Point{50, 50}) {
		t.Error("expected point outside the square's bound to be rejected")
	}
}

func TestPolygonWithHole(t *testing.T) {
	outer := square(0, 0, 10, 10)[0]
	hole := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}
	f := New(orb.MultiPolygon{orb.Polygon{outer, hole}})

	if !f.Contains(orb.Point{1, 1}) {
		t.Error("point inside outer ring but outside hole should be contained")
	}
	if f.Contains(orb.Point{5, 5}) {
		t.Error("point inside the hole should not be contained")
	}
}

func TestCountryFor(t *testing.T) {
	ring := square(0, 0, 10, 10)[0]
	f := New(orb.MultiPolygon{square(0, 0, 10, 10)}).WithCountries([]CountryRing{
		{Ring: ring, Country: "testland"},
	})
	if got := f.CountryFor(orb.Point{5, 5}); got != "testland" {
		t.Errorf("CountryFor = %q, want testland", got)
	}
	if got := f.CountryFor(orb.Point{50, 50}); got != "" {
		t.Errorf("CountryFor outside any ring = %q, want empty", got)
	}
}

func TestApplyRetainsNodeInScopeAndPropagatesPrioritySet(t *testing.T) {
	f := New(orb.MultiPolygon{square(0, 0, 10, 10)})
	batch := &osm.FileBatch{
		Changes: []osm.Change{
			{Action: osm.ActionCreate, Type: osm.MemberNode, Node: &osm.Node{ID: 1, ChangesetID: 42, Point: orb.Point{5, 5}}},
			{Action: osm.ActionCreate, Type: osm.MemberNode, Node: &osm.Node{ID: 2, ChangesetID: 42, Point: orb.Point{500, 500}}},
		},
	}
	res := f.Apply(batch, map[int64]*osm.Way{})
	if len(res.Changes) != 1 {
		t.Fatalf("expected exactly 1 retained node, got %d", len(res.Changes))
	}
	if !res.PrioritySet[42] {
		t.Error("expected changeset 42 to be marked in scope")
	}
}

func TestApplyRetainsWayViaPrioritySetEvenWithoutGeometry(t *testing.T) {
	f := New(orb.MultiPolygon{square(0, 0, 10, 10)})
	batch := &osm.FileBatch{
		Changes: []osm.Change{
			{Action: osm.ActionCreate, Type: osm.MemberNode, Node: &osm.Node{ID: 1, ChangesetID: 7, Point: orb.Point{5, 5}}},
			{Action: osm.ActionCreate, Type: osm.MemberWay, Way: &osm.Way{ID: 100, ChangesetID: 7}},
		},
	}
	res := f.Apply(batch, map[int64]*osm.Way{})
	var sawWay bool
	for _, c := range res.Changes {
		if c.Type == osm.MemberWay {
			sawWay = true
		}
	}
	if !sawWay {
		t.Error("expected the geometry-less way to be retained because its changeset is already in the priority set")
	}
}

func TestApplyDeletesAlwaysPassThrough(t *testing.T) {
	f := New(orb.MultiPolygon{square(0, 0, 10, 10)})
	batch := &osm.FileBatch{
		Changes: []osm.Change{
			{Action: osm.ActionRemove, Type: osm.MemberWay, Way: &osm.Way{ID: 100, ChangesetID: 999}},
		},
	}
	res := f.Apply(batch, map[int64]*osm.Way{})
	if len(res.Changes) != 1 {
		t.Fatalf("expected the delete to pass through unconditionally, got %d changes", len(res.Changes))
	}
}
