package osm

import (
	"github.com/paulmach/orb"
)

// polygonTagKeys is the set of tags that, combined with a closed ring,
// mark a way as an area rather than a line: a closed way is an area only
// when it carries one of the keys mapped to true with a non-empty value,
// or waterway=riverbank, and is not tagged area=no.
var polygonTagKeys = map[string]bool{
	"building":    true,
	"landuse":     true,
	"natural":     true,
	"leisure":     true,
	"amenity":     true,
	"area":        true,
	"waterway":    false, // riverbank is the exception handled below
	"boundary":    true,
}

func indicatesPolygon(tags map[string]string) bool {
	if v, ok := tags["area"]; ok && v == "no" {
		return false
	}
	if tags["waterway"] == "riverbank" {
		return true
	}
	for k, v := range tags {
		if v == "" {
			continue
		}
		if want, ok := polygonTagKeys[k]; ok && want {
			return true
		}
	}
	return false
}

// AssembleWayGeometry resolves a way's refs from the node cache and
// populates LineString/Polygon/Center/IsPolygon/IsRoad/GeometryUnknown.
// It must run after every node in the same frame has been inserted into
// the cache.
func AssembleWayGeometry(w *Way, cache *NodeCache) {
	if w.Action == ActionRemove {
		return
	}
	ls, missing := cache.ResolveWayRefs(w.Refs)
	w.LineString = ls
	w.GeometryUnknown = missing > 0 && len(ls) != len(w.Refs)

	if len(ls) == 0 {
		return
	}

	w.Center = centroid(ls)
	w.IsRoad = w.Tags["highway"] != ""

	closed := len(w.Refs) >= 4 && w.Refs[0] == w.Refs[len(w.Refs)-1]
	if closed && indicatesPolygon(w.Tags) && len(ls) == len(w.Refs) {
		w.IsPolygon = true
		w.Polygon = orb.Polygon{orb.Ring(ls.Clone())}
	}
}

// centroid computes the arithmetic mean of a linestring's points, a
// cheap approximation adequate for the area filter's "point in region"
// check (not a true area centroid for concave rings).
func centroid(ls orb.LineString) orb.Point {
	if len(ls) == 0 {
		return orb.Point{}
	}
	var sumLon, sumLat float64
	for _, p := range ls {
		sumLon += p[0]
		sumLat += p[1]
	}
	n := float64(len(ls))
	return orb.Point{sumLon / n, sumLat / n}
}

// AssembleRelationGeometry builds a multipolygon or multilinestring from
// a relation's members, given the already-assembled ways they reference.
// Outer/inner tie-break: if an inner member precedes any outer, a new
// polygon is opened with no outer ring and the inner attached; the
// first subsequent outer closes it. A relation with no outer ring at
// all is marked Invalid.
func AssembleRelationGeometry(r *Relation, memberWays map[int64]*Way) {
	isMultipolygon := r.Tags["type"] == "multipolygon" || r.Tags["type"] == "boundary"
	if isMultipolygon {
		assembleMultipolygon(r, memberWays)
		return
	}
	if r.Tags["type"] == "multilinestring" {
		assembleMultilinestring(r, memberWays)
		return
	}
	// Unknown relation type: nothing to geometrize, not an error.
}

type pendingPolygon struct {
	outer orb.Ring
	inner []orb.Ring
}

func assembleMultipolygon(r *Relation, memberWays map[int64]*Way) {
	var pending []*pendingPolygon
	var open *pendingPolygon

	for _, m := range r.Members {
		if m.Type != MemberWay {
			continue
		}
		way, ok := memberWays[m.Ref]
		if !ok || len(way.LineString) == 0 {
			continue
		}
		ring := orb.Ring(way.LineString.Clone())

		switch m.Role {
		case "outer":
			if open != nil && open.outer == nil {
				// Closes a polygon opened early by a preceding inner.
				open.outer = ring
				open = nil
				continue
			}
			open = &pendingPolygon{outer: ring}
			pending = append(pending, open)
		case "inner":
			if open == nil {
				open = &pendingPolygon{}
				pending = append(pending, open)
			}
			open.inner = append(open.inner, ring)
		}
	}

	r.MultiPolygon = make(orb.MultiPolygon, 0, len(pending))
	for _, pp := range pending {
		if pp.outer == nil {
			continue
		}
		poly := orb.Polygon{pp.outer}
		poly = append(poly, pp.inner...)
		r.MultiPolygon = append(r.MultiPolygon, poly)
	}
	r.IsMultipolygon = true
	r.Invalid = len(r.MultiPolygon) == 0
}

func assembleMultilinestring(r *Relation, memberWays map[int64]*Way) {
	mls := make(orb.MultiLineString, 0, len(r.Members))
	for _, m := range r.Members {
		if m.Type != MemberWay {
			continue
		}
		way, ok := memberWays[m.Ref]
		if !ok || len(way.LineString) == 0 {
			continue
		}
		mls = append(mls, way.LineString.Clone())
	}
	r.MultiLineString = mls
	r.Invalid = len(mls) == 0
}
