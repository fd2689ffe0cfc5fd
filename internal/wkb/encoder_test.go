package wkb

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestEncodePointHeader(t *testing.T) {
	enc := NewEncoder(32)
	b := enc.EncodePoint(orb.Point{7.5, 43.7})

	if b[0] != 0x01 {
		t.Fatalf("expected little-endian byte order marker, got %#x", b[0])
	}
	typ := binary.LittleEndian.Uint32(b[1:5])
	if typ != wkbPoint|wkbSRIDFlag {
		t.Errorf("type field = %#x, want point type with SRID flag", typ)
	}
	srid := binary.LittleEndian.Uint32(b[5:9])
	if srid != SRID4326 {
		t.Errorf("srid = %d, want %d", srid, SRID4326)
	}
	lon := math.Float64frombits(binary.LittleEndian.Uint64(b[9:17]))
	lat := math.Float64frombits(binary.LittleEndian.Uint64(b[17:25]))
	if lon != 7.5 || lat != 43.7 {
		t.Errorf("decoded point = (%v, %v), want (7.5, 43.7)", lon, lat)
	}
	if len(b) != 25 {
		t.Errorf("point EWKB length = %d, want 25", len(b))
	}
}

func TestEncodeLineStringPointCount(t *testing.T) {
	enc := NewEncoder(64)
	ls := orb.LineString{{0, 0}, {1, 1}, {2, 2}}
	b := enc.EncodeLineString(ls)
	n := binary.LittleEndian.Uint32(b[9:13])
	if n != uint32(len(ls)) {
		t.Errorf("point count = %d, want %d", n, len(ls))
	}
	if len(b) != 13+len(ls)*16 {
		t.Errorf("linestring EWKB length = %d, want %d", len(b), 13+len(ls)*16)
	}
}

func TestEncodePolygonEmptyReturnsNil(t *testing.T) {
	enc := NewEncoder(16)
	if got := enc.EncodePolygon(nil); got != nil {
		t.Errorf("expected nil for an empty polygon, got %v", got)
	}
}

func TestEncodePolygonWithHole(t *testing.T) {
	enc := NewEncoder(128)
	outer := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	hole := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}
	b := enc.EncodePolygon(orb.Polygon{outer, hole})

	ringCount := binary.LittleEndian.Uint32(b[9:13])
	if ringCount != 2 {
		t.Errorf("ring count = %d, want 2", ringCount)
	}
}

func TestReusedEncoderDoesNotLeakPreviousGeometry(t *testing.T) {
	enc := NewEncoder(16)
	first := enc.EncodePoint(orb.Point{1, 1})
	firstCopy := append([]byte(nil), first...)

	second := enc.EncodeLineString(orb.LineString{{2, 2}, {3, 3}})

	// first and second alias the same backing buffer by design; the
	// earlier caller must have already consumed/copied it before
	// calling again on the same Encoder instance.
	if len(second) == len(firstCopy) {
		t.Skip("degenerate size collision, not informative")
	}
	if len(second) != 13+2*16 {
		t.Errorf("linestring EWKB length after reuse = %d, want %d", len(second), 13+2*16)
	}
	if typ := binary.LittleEndian.Uint32(second[1:5]); typ != wkbLineString|wkbSRIDFlag {
		t.Errorf("type field after reuse = %#x, want linestring type with SRID flag", typ)
	}
}
