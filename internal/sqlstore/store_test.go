package sqlstore

import (
	"testing"

	"github.com/hotosm/underpass/internal/osm"
	"github.com/hotosm/underpass/internal/validate"
)

func TestBboxPolygonNilForUnsetChangeset(t *testing.T) {
	cs := &osm.ChangeSet{}
	if got := bboxPolygon(cs); got != nil {
		t.Errorf("bboxPolygon = %v, want nil for an all-zero bbox", got)
	}
}

func TestBboxPolygonClosedRing(t *testing.T) {
	cs := &osm.ChangeSet{MinLon: 1, MinLat: 2, MaxLon: 3, MaxLat: 4}
	poly := bboxPolygon(cs)
	if len(poly) != 1 {
		t.Fatalf("expected a single-ring polygon, got %d rings", len(poly))
	}
	ring := poly[0]
	if ring[0] != ring[len(ring)-1] {
		t.Errorf("ring is not closed: first=%v last=%v", ring[0], ring[len(ring)-1])
	}
	if len(ring) != 5 {
		t.Errorf("ring length = %d, want 5", len(ring))
	}
}

func TestValidationStatusFlaggedOnIncomplete(t *testing.T) {
	st := validate.NewStatus(1, osm.MemberWay, "building")
	st.Add(validate.FlagIncomplete)
	if got := validationStatus(st); got != "flagged" {
		t.Errorf("validationStatus = %q, want flagged", got)
	}
}

func TestValidationStatusOKWhenOnlyInformationalFlags(t *testing.T) {
	st := validate.NewStatus(1, osm.MemberWay, "building")
	st.Add(validate.FlagComplete)
	if got := validationStatus(st); got != "ok" {
		t.Errorf("validationStatus = %q, want ok", got)
	}
}

func TestValidationStatusOKWhenEmpty(t *testing.T) {
	st := validate.NewStatus(1, osm.MemberWay, "building")
	if got := validationStatus(st); got != "ok" {
		t.Errorf("validationStatus = %q, want ok", got)
	}
}

func TestIntMapToStringMapFormatsIntegers(t *testing.T) {
	got := intMapToStringMap(map[string]int64{"building": 3})
	if got["building"] != "3" {
		t.Errorf("intMapToStringMap = %v, want building=3", got)
	}
}

func TestCountMapLiteralRendersAsHstore(t *testing.T) {
	got := countMapLiteral(map[string]int64{"highway": 2})
	want := `"highway"=>"2"`
	if got != want {
		t.Errorf("countMapLiteral = %q, want %q", got, want)
	}
}
