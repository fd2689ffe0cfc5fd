package validate

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/hotosm/underpass/internal/osm"
)

func TestBuildingRuleFlagsIncompleteYesOnly(t *testing.T) {
	w := &osm.Way{ID: 1, Tags: map[string]string{"building": "yes"}}
	st := BuildingRule{}.CheckWay(w)
	if st == nil || !st.Flags[FlagIncomplete] {
		t.Error("expected building=yes with no other tags to be flagged incomplete")
	}
}

func TestBuildingRuleCompleteWithUseTag(t *testing.T) {
	w := &osm.Way{ID: 1, Tags: map[string]string{"building": "house", "addr:housenumber": "12"}}
	st := BuildingRule{}.CheckWay(w)
	if st == nil || !st.Flags[FlagComplete] {
		t.Error("expected a building with a specific use to be flagged complete")
	}
}

func TestBuildingRuleDetectsDuplicateRing(t *testing.T) {
	ring := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	a := &osm.Way{ID: 1, IsPolygon: true, Polygon: orb.Polygon{ring}}
	b := &osm.Way{ID: 2, IsPolygon: true, Polygon: orb.Polygon{ring}}

	st := BuildingRule{}.CheckOverlapsAndDuplicates(a, []*osm.Way{a, b})
	if st == nil || !st.Flags[FlagDuplicate] {
		t.Error("expected an identical ring on a different way to be flagged duplicate")
	}
}

func TestBuildingRuleDetectsOverlap(t *testing.T) {
	a := &osm.Way{ID: 1, IsPolygon: true, Polygon: orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}}
	b := &osm.Way{ID: 2, IsPolygon: true, Polygon: orb.Polygon{{{5, 5}, {15, 5}, {15, 15}, {5, 15}, {5, 5}}}}

	st := BuildingRule{}.CheckOverlapsAndDuplicates(a, []*osm.Way{a, b})
	if st == nil || !st.Flags[FlagOverlaps] {
		t.Error("expected two overlapping bounds to be flagged overlaps")
	}
}

func TestBuildingRuleNoOverlapWhenDisjoint(t *testing.T) {
	a := &osm.Way{ID: 1, IsPolygon: true, Polygon: orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}}
	b := &osm.Way{ID: 2, IsPolygon: true, Polygon: orb.Polygon{{{100, 100}, {110, 100}, {110, 110}, {100, 110}, {100, 100}}}}

	st := BuildingRule{}.CheckOverlapsAndDuplicates(a, []*osm.Way{a, b})
	if st != nil {
		t.Error("expected no findings for disjoint buildings")
	}
}

func TestHighwayRuleFlagsMissingName(t *testing.T) {
	w := &osm.Way{ID: 1, Tags: map[string]string{"highway": "residential"}}
	st := HighwayRule{}.CheckWay(w)
	if st == nil || !st.Flags[FlagIncomplete] {
		t.Error("expected a nameless residential highway to be flagged incomplete")
	}
}

func TestHighwayRuleTrackExemptFromNameCheck(t *testing.T) {
	w := &osm.Way{ID: 1, Tags: map[string]string{"highway": "track"}}
	st := HighwayRule{}.CheckWay(w)
	if st != nil && st.Flags[FlagIncomplete] {
		t.Error("a track should be exempt from the missing-name check")
	}
}

func TestHighwayRuleBadOnewayValue(t *testing.T) {
	w := &osm.Way{ID: 1, Tags: map[string]string{"highway": "track", "oneway": "sideways"}}
	st := HighwayRule{}.CheckWay(w)
	if st == nil || !st.Flags[FlagBadValue] {
		t.Error("expected an unrecognised oneway value to be flagged bad value")
	}
}

func TestLanduseRuleRequiresPolygon(t *testing.T) {
	w := &osm.Way{ID: 1, Tags: map[string]string{"landuse": "forest"}, IsPolygon: false}
	st := LanduseRule{}.CheckWay(w)
	if st == nil || !st.Flags[FlagIncomplete] {
		t.Error("expected an open landuse way to be flagged incomplete")
	}
}

func TestPlaceRuleRequiresName(t *testing.T) {
	n := &osm.Node{ID: 1, Tags: map[string]string{"place": "village"}}
	st := PlaceRule{}.CheckNode(n)
	if st == nil || !st.Flags[FlagIncomplete] {
		t.Error("expected a nameless place to be flagged incomplete")
	}
}

func TestWaterwayRuleRiverbankMustBePolygon(t *testing.T) {
	w := &osm.Way{ID: 1, Tags: map[string]string{"waterway": "riverbank", "name": "Nile"}, IsPolygon: false}
	st := WaterwayRule{}.CheckWay(w)
	if st == nil || !st.Flags[FlagIncomplete] {
		t.Error("expected an open riverbank to be flagged incomplete")
	}
}

func TestHostRunWayCombinesPerRuleAndBatchChecks(t *testing.T) {
	host := NewHost(BuildingRule{}, HighwayRule{})
	ring := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	a := &osm.Way{ID: 1, IsPolygon: true, Polygon: orb.Polygon{ring}, Tags: map[string]string{"building": "house"}}
	b := &osm.Way{ID: 2, IsPolygon: true, Polygon: orb.Polygon{ring}, Tags: map[string]string{"building": "house"}}

	statuses := host.RunWay(a, []*osm.Way{a, b})
	var sawDuplicate bool
	for _, st := range statuses {
		if st.Flags[FlagDuplicate] {
			sawDuplicate = true
		}
	}
	if !sawDuplicate {
		t.Error("expected RunWay to surface the building batch duplicate check")
	}
}
