// Package areafilter prunes parsed objects to a geographic region of
// interest: a node is kept if its point falls inside the priority
// multipolygon, a way if its centroid does (or its changeset is already
// known to be in scope), and a relation if any of its member ways is
// retained.
package areafilter

import (
	"github.com/paulmach/orb"

	"github.com/hotosm/underpass/internal/osm"
)

// CountryRing optionally decorates a ring of the priority polygon with
// a country name, enabling the changesets_countries side-table. A
// plain region-of-interest polygon simply leaves these empty.
type CountryRing struct {
	Ring    orb.Ring
	Country string
}

// Filter holds the priority multipolygon and its precomputed bound, used
// to short-circuit points that fall entirely outside the region before
// running the more expensive ray-casting containment check.
type Filter struct {
	polygon orb.MultiPolygon
	bound   orb.Bound
	empty   bool // empty polygon means "pass all"

	countries []CountryRing
}

// New builds a filter from a priority multipolygon. A nil or empty
// multipolygon means "pass all".
func New(polygon orb.MultiPolygon) *Filter {
	f := &Filter{polygon: polygon, empty: len(polygon) == 0}
	if !f.empty {
		f.bound = polygon.Bound()
	}
	return f
}

// WithCountries attaches country-decorated rings used only for the
// supplemented country-tagging feature; it does not affect containment.
func (f *Filter) WithCountries(rings []CountryRing) *Filter {
	f.countries = rings
	return f
}

// Contains reports whether a point falls inside the priority
// multipolygon (or always true when the filter is empty).
func (f *Filter) Contains(p orb.Point) bool {
	if f.empty {
		return true
	}
	if !f.bound.Contains(p) {
		return false
	}
	for _, poly := range f.polygon {
		if polygonContains(poly, p) {
			return true
		}
	}
	return false
}

// CountryFor returns the country name decorating the ring that contains
// p, or "" if none of the decorated rings contain it (or none were
// configured).
func (f *Filter) CountryFor(p orb.Point) string {
	for _, cr := range f.countries {
		if ringContains(cr.Ring, p) {
			return cr.Country
		}
	}
	return ""
}

// polygonContains implements point-in-polygon-with-holes: inside the
// outer ring and outside every inner ring.
func polygonContains(poly orb.Polygon, p orb.Point) bool {
	if len(poly) == 0 || !ringContains(poly[0], p) {
		return false
	}
	for _, hole := range poly[1:] {
		if ringContains(hole, p) {
			return false
		}
	}
	return true
}

// ringContains is the standard even-odd ray-casting test. orb's public
// API has no ready multipolygon-with-holes containment helper, so this
// is hand-written.
func ringContains(ring orb.Ring, p orb.Point) bool {
	inside := false
	n := len(ring)
	if n < 3 {
		return false
	}
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]

		if (yi > p[1]) != (yj > p[1]) {
			slope := (p[1] - yi) / (yj - yi)
			xCross := xi + slope*(xj-xi)
			if p[0] < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Result is the outcome of filtering one FileBatch: the retained
// changes plus the set of changeset ids that have at least one object
// in scope (the "priority set" tracked across a file batch).
type Result struct {
	Changes      []osm.Change
	PrioritySet  map[int64]bool
	CountryOf    map[int64]string // changeset id -> country, supplemented feature
}

// Apply filters a batch, mutating Node.Priority in place and returning
// the retained subset plus the accumulated priority set. memberWays
// supplies already-geometrized ways for relation member resolution.
func (f *Filter) Apply(batch *osm.FileBatch, memberWays map[int64]*osm.Way) *Result {
	res := &Result{PrioritySet: make(map[int64]bool), CountryOf: make(map[int64]string)}

	// First pass: nodes, since they establish the priority set that
	// way/relation retention also consults.
	for i := range batch.Changes {
		c := &batch.Changes[i]
		if c.Type != osm.MemberNode || c.Node == nil {
			continue
		}
		if f.Contains(c.Node.Point) {
			c.Node.Priority = true
			res.PrioritySet[c.Node.ChangesetID] = true
			if country := f.CountryFor(c.Node.Point); country != "" {
				res.CountryOf[c.Node.ChangesetID] = country
			}
			res.Changes = append(res.Changes, *c)
		}
	}

	// Second pass: ways.
	for i := range batch.Changes {
		c := &batch.Changes[i]
		if c.Type != osm.MemberWay || c.Way == nil {
			continue
		}
		if c.Action == osm.ActionRemove {
			res.Changes = append(res.Changes, *c)
			continue
		}

		inScope := false
		if len(c.Way.LineString) > 0 && !c.Way.GeometryUnknown {
			inScope = f.Contains(c.Way.Center)
		} else if len(c.Way.LineString) == 0 {
			// A zero-length linestring has nothing to test containment
			// against; demote to no-geometry and keep only if the
			// changeset is already in scope from another object.
			c.Way.GeometryUnknown = true
		}
		if !inScope && res.PrioritySet[c.Way.ChangesetID] {
			inScope = true
		}
		if inScope {
			c.Way.Priority = true
			res.PrioritySet[c.Way.ChangesetID] = true
			res.Changes = append(res.Changes, *c)
			memberWays[c.Way.ID] = c.Way
		}
	}

	// Third pass: relations, resolved via already-retained member ways.
	for i := range batch.Changes {
		c := &batch.Changes[i]
		if c.Type != osm.MemberRelation || c.Relation == nil {
			continue
		}
		if c.Action == osm.ActionRemove {
			res.Changes = append(res.Changes, *c)
			continue
		}

		retained := false
		for _, m := range c.Relation.Members {
			if m.Type == osm.MemberWay {
				if w, ok := memberWays[m.Ref]; ok && w.Priority {
					retained = true
					break
				}
			}
		}
		if retained {
			c.Relation.Priority = true
			res.PrioritySet[c.Relation.ChangesetID] = true
			res.Changes = append(res.Changes, *c)
		}
		// A relation with no retained member way yet is deferred — not
		// appended, may be retried once its member ways are retained in
		// a later batch.
	}

	return res
}
