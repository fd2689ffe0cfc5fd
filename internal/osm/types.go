// Package osm holds the in-memory object model shared by the parser,
// area filter, stats engine, validators, and SQL emitter: nodes, ways,
// relations, changesets, and the per-changeset statistics they accrue.
package osm

import (
	"time"

	"github.com/paulmach/orb"
)

// Action is the kind of change a create/modify/delete frame carries.
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionRemove Action = "delete"
)

// MemberType is the OSM object kind referenced by a relation member.
type MemberType string

const (
	MemberNode     MemberType = "node"
	MemberWay      MemberType = "way"
	MemberRelation MemberType = "relation"
)

// ScaleCoord converts a float64 lat/lon to the fixed-point integer
// representation used on disk (scaled by 10,000,000).
func ScaleCoord(coord float64) int32 {
	return int32(coord * 1e7)
}

// UnscaleCoord converts a scaled fixed-point integer back to float64.
func UnscaleCoord(scaled int32) float64 {
	return float64(scaled) / 1e7
}

// Node is a single OSM point feature.
type Node struct {
	ID          int64
	Version     int32
	Timestamp   time.Time
	ChangesetID int64
	UID         int64
	User        string
	Point       orb.Point // (lon, lat), WGS-84
	Tags        map[string]string
	Action      Action
	Priority    bool // set by the area filter
}

// Way is an ordered sequence of node references plus the geometry
// assembled from the node cache.
type Way struct {
	ID          int64
	Version     int32
	Timestamp   time.Time
	ChangesetID int64
	UID         int64
	User        string
	Tags        map[string]string
	Action      Action
	Priority    bool

	Refs       []int64     // ordered by position in the way
	LineString orb.LineString // assembled from the node cache; may be empty
	Polygon    orb.Polygon    // populated iff Refs closes a ring and tags indicate polygon
	Center     orb.Point      // centroid, valid when LineString is non-empty
	IsPolygon  bool
	IsRoad     bool

	// GeometryUnknown is set when not every ref resolved from the node
	// cache; see the "geometry-unknown" demotion in the node cache
	// invariant.
	GeometryUnknown bool
}

// RelationMember is one typed reference inside a relation.
type RelationMember struct {
	Type MemberType
	Ref  int64
	Role string
}

// Relation is an ordered sequence of typed members plus the multipolygon
// or multilinestring geometry assembled from member ways.
type Relation struct {
	ID          int64
	Version     int32
	Timestamp   time.Time
	ChangesetID int64
	UID         int64
	User        string
	Tags        map[string]string
	Action      Action
	Priority    bool

	Members []RelationMember

	MultiPolygon    orb.MultiPolygon
	MultiLineString orb.MultiLineString
	IsMultipolygon  bool

	// Invalid is set when no outer ring could be assembled; such a
	// relation is skipped with a logged warning, never persisted.
	Invalid bool
}

// ChangeSet is the metadata container for a user editing session.
type ChangeSet struct {
	ID        int64
	CreatedAt time.Time
	ClosedAt  time.Time
	Open      bool
	UID       int64
	User      string

	MinLon, MinLat, MaxLon, MaxLat float64

	Hashtags []string
	Comment  string
	Editor   string
	Source   string
	Tags     map[string]string

	// Priority is true once any object belonging to this changeset has
	// been retained by the area filter.
	Priority bool

	// Country is populated by the area filter when the priority polygon
	// carries per-ring country decoration; empty otherwise.
	Country string
}

// BBox returns the changeset's bounding box as an orb.Bound.
func (c *ChangeSet) BBox() orb.Bound {
	return orb.Bound{
		Min: orb.Point{c.MinLon, c.MinLat},
		Max: orb.Point{c.MaxLon, c.MaxLat},
	}
}

// ChangeStats accumulates per-changeset contribution counters for a
// single ingest. Only created when at least one tagged object is scored.
type ChangeStats struct {
	ChangeID int64
	UserID   int64
	Username string
	ClosedAt time.Time

	Added    map[string]int64
	Modified map[string]int64

	// AddedKM holds the fractional-kilometre totals for "highway_km" and
	// "waterway_km", kept separately from Added since that map is
	// integer-valued, but lengths are not whole numbers.
	AddedKM map[string]float64
}

// NewChangeStats returns an empty accumulator ready for Add/Modify calls.
func NewChangeStats(changeID, userID int64, username string) *ChangeStats {
	return &ChangeStats{
		ChangeID: changeID,
		UserID:   userID,
		Username: username,
		Added:    make(map[string]int64),
		Modified: make(map[string]int64),
		AddedKM:  make(map[string]float64),
	}
}

// HasAccrued reports whether this accumulator recorded anything, the
// gate for whether a ChangeStats row should be emitted at all.
func (c *ChangeStats) HasAccrued() bool {
	return len(c.Added) > 0 || len(c.Modified) > 0
}

// Change is one node/way/relation change inside a FileBatch, tagged with
// the action and object kind that produced it.
type Change struct {
	Action   Action
	Type     MemberType
	Node     *Node
	Way      *Way
	Relation *Relation
}

// FileBatch is the output of the SAX parser for one osmChange file: an
// ordered list of changes plus the maximum observed timestamp.
type FileBatch struct {
	Changes    []Change
	FinalEntry time.Time
}
