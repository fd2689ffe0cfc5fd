// Package validate runs pluggable quality rules over retained nodes and
// ways, producing structured Status records. Rules are compiled-in
// values passed to NewHost, rather than dynamically loaded plugins;
// there is no lookup of rules by name and no selection from config.
package validate

import (
	"github.com/hotosm/underpass/internal/osm"
)

// Flag is one quality finding a rule can attach to a Status.
type Flag string

const (
	FlagCorrect    Flag = "correct"
	FlagIncomplete Flag = "incomplete"
	FlagComplete   Flag = "complete"
	FlagOverlaps   Flag = "overlaping"
	FlagDuplicate  Flag = "duplicate"
	FlagBadValue   Flag = "badvalue"
)

// Status is the structured result of one validator check against one
// object.
type Status struct {
	OSMID   int64
	OSMType osm.MemberType
	Source  string // "building", "highway", "landuse", "place", "waterway"
	Flags   map[Flag]bool
}

// NewStatus returns an empty status for an object and rule source.
func NewStatus(id int64, objType osm.MemberType, source string) *Status {
	return &Status{OSMID: id, OSMType: objType, Source: source, Flags: make(map[Flag]bool)}
}

// Add attaches a flag.
func (s *Status) Add(f Flag) { s.Flags[f] = true }

// Empty reports whether no flag was ever set — only a Status with a
// non-empty flag set is persisted.
func (s *Status) Empty() bool { return len(s.Flags) == 0 }

// Validator is the stable internal interface every rule implements;
// multiple rules can coexist without any dynamic loading.
type Validator interface {
	// Name identifies the rule source, e.g. "building".
	Name() string
	CheckNode(n *osm.Node) *Status
	CheckWay(w *osm.Way) *Status
}

// Host runs a configured set of validators over a file's retained
// objects and the buildings-only batch checks (overlap, duplicate).
type Host struct {
	rules []Validator
}

// NewHost builds a host running exactly the given rules, in the order
// given. Rules are not looked up by name or read from config.
func NewHost(rules ...Validator) *Host {
	return &Host{rules: rules}
}

// RunNode applies every rule's CheckNode and returns the non-empty
// results.
func (h *Host) RunNode(n *osm.Node) []*Status {
	var out []*Status
	for _, r := range h.rules {
		if st := r.CheckNode(n); st != nil && !st.Empty() {
			out = append(out, st)
		}
	}
	return out
}

// RunWay applies every rule's CheckWay, plus — for the "building" rule
// specifically — the batch overlap/duplicate checks across every way in
// the current file (pairwise within the file only; cross-file detection
// is deferred to a separate batch job).
func (h *Host) RunWay(w *osm.Way, allWays []*osm.Way) []*Status {
	var out []*Status
	for _, r := range h.rules {
		if st := r.CheckWay(w); st != nil && !st.Empty() {
			out = append(out, st)
		}
		if b, ok := r.(BuildingBatchValidator); ok {
			if st := b.CheckOverlapsAndDuplicates(w, allWays); st != nil && !st.Empty() {
				out = append(out, st)
			}
		}
	}
	return out
}

// BuildingBatchValidator is implemented by rules (just "building") that
// need pairwise comparisons against every other way in the file.
type BuildingBatchValidator interface {
	CheckOverlapsAndDuplicates(w *osm.Way, allWays []*osm.Way) *Status
}
