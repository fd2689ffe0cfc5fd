package validate

import (
	"github.com/paulmach/orb"

	"github.com/hotosm/underpass/internal/osm"
)

// BuildingRule flags incomplete buildings (missing a recognised
// building-use tag), and runs the batch overlap/duplicate checks other
// rules don't.
type BuildingRule struct{}

func (BuildingRule) Name() string { return "building" }

func (BuildingRule) CheckNode(n *osm.Node) *Status {
	if n.Tags["building"] == "" {
		return nil
	}
	st := NewStatus(n.ID, osm.MemberNode, "building")
	st.Add(FlagIncomplete)
	return st
}

func (BuildingRule) CheckWay(w *osm.Way) *Status {
	v, ok := w.Tags["building"]
	if !ok {
		return nil
	}
	st := NewStatus(w.ID, osm.MemberWay, "building")
	if v == "yes" && len(w.Tags) == 1 {
		st.Add(FlagIncomplete)
	} else {
		st.Add(FlagComplete)
	}
	return st
}

// CheckOverlapsAndDuplicates compares w against every other way in the
// current file, flagging bounding-box overlap of the outer rings or an
// identical outer ring.
func (BuildingRule) CheckOverlapsAndDuplicates(w *osm.Way, allWays []*osm.Way) *Status {
	if !w.IsPolygon || len(w.Polygon) == 0 {
		return nil
	}
	st := NewStatus(w.ID, osm.MemberWay, "building")
	for _, other := range allWays {
		if other.ID == w.ID || !other.IsPolygon || len(other.Polygon) == 0 {
			continue
		}
		if ringsEqual(w.Polygon[0], other.Polygon[0]) {
			st.Add(FlagDuplicate)
			continue
		}
		if boundsOverlap(w.Polygon[0].Bound(), other.Polygon[0].Bound()) {
			st.Add(FlagOverlaps)
		}
	}
	if st.Empty() {
		return nil
	}
	return st
}

func ringsEqual(a, b orb.Ring) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func boundsOverlap(a, b orb.Bound) bool {
	return a.Min[0] <= b.Max[0] && a.Max[0] >= b.Min[0] &&
		a.Min[1] <= b.Max[1] && a.Max[1] >= b.Min[1]
}

// HighwayRule flags highways missing a name tag as incomplete (track and
// path are exempt), and bad values for the "oneway" key. The surface tag
// is not checked.
type HighwayRule struct{}

func (HighwayRule) Name() string { return "highway" }

func (HighwayRule) CheckNode(n *osm.Node) *Status { return nil }

func (HighwayRule) CheckWay(w *osm.Way) *Status {
	v, ok := w.Tags["highway"]
	if !ok {
		return nil
	}
	st := NewStatus(w.ID, osm.MemberWay, "highway")
	if v == "" {
		st.Add(FlagBadValue)
	}
	if w.Tags["name"] == "" && v != "track" && v != "path" {
		st.Add(FlagIncomplete)
	}
	if ow := w.Tags["oneway"]; ow != "" && ow != "yes" && ow != "no" && ow != "-1" {
		st.Add(FlagBadValue)
	}
	return st
}

// LanduseRule flags landuse ways with no closing ring (should be an
// area but isn't).
type LanduseRule struct{}

func (LanduseRule) Name() string { return "landuse" }

func (LanduseRule) CheckNode(n *osm.Node) *Status { return nil }

func (LanduseRule) CheckWay(w *osm.Way) *Status {
	if w.Tags["landuse"] == "" {
		return nil
	}
	st := NewStatus(w.ID, osm.MemberWay, "landuse")
	if !w.IsPolygon {
		st.Add(FlagIncomplete)
	} else {
		st.Add(FlagComplete)
	}
	return st
}

// PlaceRule flags places missing a name tag. The population tag is not
// checked.
type PlaceRule struct{}

func (PlaceRule) Name() string { return "place" }

func (PlaceRule) CheckNode(n *osm.Node) *Status {
	if n.Tags["place"] == "" {
		return nil
	}
	st := NewStatus(n.ID, osm.MemberNode, "place")
	if n.Tags["name"] == "" {
		st.Add(FlagIncomplete)
	} else {
		st.Add(FlagComplete)
	}
	return st
}

func (PlaceRule) CheckWay(w *osm.Way) *Status { return nil }

// WaterwayRule flags waterways missing a name tag and riverbank
// polygons that aren't closed.
type WaterwayRule struct{}

func (WaterwayRule) Name() string { return "waterway" }

func (WaterwayRule) CheckNode(n *osm.Node) *Status { return nil }

func (WaterwayRule) CheckWay(w *osm.Way) *Status {
	v, ok := w.Tags["waterway"]
	if !ok {
		return nil
	}
	st := NewStatus(w.ID, osm.MemberWay, "waterway")
	if v == "riverbank" && !w.IsPolygon {
		st.Add(FlagIncomplete)
	} else if w.Tags["name"] == "" {
		st.Add(FlagIncomplete)
	} else {
		st.Add(FlagComplete)
	}
	return st
}
