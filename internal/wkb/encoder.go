// Package wkb encodes orb geometries into PostGIS EWKB for binding as a
// single bytea/geometry parameter — the SQL emitter never interpolates
// coordinates into statement text.
package wkb

import (
	"encoding/binary"
	"math"

	"github.com/paulmach/orb"
)

const (
	wkbPoint           = 1
	wkbLineString      = 2
	wkbPolygon         = 3
	wkbMultiLineString = 5
	wkbMultiPolygon    = 6

	wkbSRIDFlag = 0x20000000
)

const SRID4326 = 4326

// Encoder encodes geometries to EWKB format (little-endian, SRID-flagged
// outermost geometry) using a reused buffer.
type Encoder struct {
	buf  []byte
	srid uint32
}

// NewEncoder creates an encoder defaulting to SRID 4326 (WGS-84).
func NewEncoder(initialSize int) *Encoder {
	return &Encoder{buf: make([]byte, 0, initialSize), srid: SRID4326}
}

func (e *Encoder) Reset() { e.buf = e.buf[:0] }

func (e *Encoder) Bytes() []byte { return e.buf }

// EncodePoint encodes a single point.
func (e *Encoder) EncodePoint(p orb.Point) []byte {
	e.Reset()
	e.ensureCapacity(25)
	e.buf = append(e.buf, 0x01)
	e.appendUint32(wkbPoint | wkbSRIDFlag)
	e.appendUint32(e.srid)
	e.appendFloat64(p[0])
	e.appendFloat64(p[1])
	return e.buf
}

// EncodeLineString encodes an ordered sequence of points.
func (e *Encoder) EncodeLineString(ls orb.LineString) []byte {
	e.Reset()
	e.ensureCapacity(13 + len(ls)*16)
	e.buf = append(e.buf, 0x01)
	e.appendUint32(wkbLineString | wkbSRIDFlag)
	e.appendUint32(e.srid)
	e.appendUint32(uint32(len(ls)))
	for _, p := range ls {
		e.appendFloat64(p[0])
		e.appendFloat64(p[1])
	}
	return e.buf
}

// EncodePolygon encodes a polygon: rings[0] is the outer ring,
// rings[1:] are holes.
func (e *Encoder) EncodePolygon(poly orb.Polygon) []byte {
	e.Reset()
	if len(poly) == 0 {
		return nil
	}
	totalPoints := 0
	for _, ring := range poly {
		totalPoints += len(ring)
	}
	e.ensureCapacity(13 + len(poly)*4 + totalPoints*16)

	e.buf = append(e.buf, 0x01)
	e.appendUint32(wkbPolygon | wkbSRIDFlag)
	e.appendUint32(e.srid)
	e.appendUint32(uint32(len(poly)))
	for _, ring := range poly {
		e.appendUint32(uint32(len(ring)))
		for _, p := range ring {
			e.appendFloat64(p[0])
			e.appendFloat64(p[1])
		}
	}
	return e.buf
}

// EncodeMultiPolygon encodes a multipolygon, each element an outer ring
// plus holes, in the outer/inner order produced by the relation
// assembler.
func (e *Encoder) EncodeMultiPolygon(mp orb.MultiPolygon) []byte {
	e.Reset()
	if len(mp) == 0 {
		return nil
	}
	totalPoints, totalRings := 0, 0
	for _, poly := range mp {
		totalRings += len(poly)
		for _, ring := range poly {
			totalPoints += len(ring)
		}
	}
	e.ensureCapacity(13 + len(mp)*9 + totalRings*4 + totalPoints*16)

	e.buf = append(e.buf, 0x01)
	e.appendUint32(wkbMultiPolygon | wkbSRIDFlag)
	e.appendUint32(e.srid)
	e.appendUint32(uint32(len(mp)))
	for _, poly := range mp {
		e.buf = append(e.buf, 0x01)
		e.appendUint32(wkbPolygon) // embedded geometries carry no SRID flag
		e.appendUint32(uint32(len(poly)))
		for _, ring := range poly {
			e.appendUint32(uint32(len(ring)))
			for _, p := range ring {
				e.appendFloat64(p[0])
				e.appendFloat64(p[1])
			}
		}
	}
	return e.buf
}

// EncodeMultiLineString encodes a multilinestring, used for
// relations of type=multilinestring.
func (e *Encoder) EncodeMultiLineString(mls orb.MultiLineString) []byte {
	e.Reset()
	if len(mls) == 0 {
		return nil
	}
	totalPoints := 0
	for _, ls := range mls {
		totalPoints += len(ls)
	}
	e.ensureCapacity(13 + len(mls)*9 + totalPoints*16)

	e.buf = append(e.buf, 0x01)
	e.appendUint32(wkbMultiLineString | wkbSRIDFlag)
	e.appendUint32(e.srid)
	e.appendUint32(uint32(len(mls)))
	for _, ls := range mls {
		e.buf = append(e.buf, 0x01)
		e.appendUint32(wkbLineString)
		e.appendUint32(uint32(len(ls)))
		for _, p := range ls {
			e.appendFloat64(p[0])
			e.appendFloat64(p[1])
		}
	}
	return e.buf
}

func (e *Encoder) ensureCapacity(n int) {
	if cap(e.buf) < n {
		e.buf = make([]byte, 0, n)
	}
}

func (e *Encoder) appendUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) appendFloat64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	e.buf = append(e.buf, b[:]...)
}
