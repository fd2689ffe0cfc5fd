package areafilter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// LoadPolygon reads the priority-region file named by path, accepting
// either GeoJSON (.geojson/.json) or WKT (.wkt) as the region of
// interest. An empty path returns a nil multipolygon, which New treats
// as "pass all".
func LoadPolygon(path string) (orb.MultiPolygon, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading priority polygon file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wkt":
		geom, err := wkt.Unmarshal(string(data))
		if err != nil {
			return nil, fmt.Errorf("parsing priority polygon WKT: %w", err)
		}
		return toMultiPolygon(geom)
	default:
		return loadGeoJSON(data)
	}
}

func loadGeoJSON(data []byte) (orb.MultiPolygon, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		var out orb.MultiPolygon
		for _, feat := range fc.Features {
			mp, err := toMultiPolygon(feat.Geometry)
			if err != nil {
				return nil, err
			}
			out = append(out, mp...)
		}
		return out, nil
	}
	if feat, err := geojson.UnmarshalFeature(data); err == nil {
		return toMultiPolygon(feat.Geometry)
	}
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing priority polygon GeoJSON: %w", err)
	}
	geom, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing priority polygon geometry: %w", err)
	}
	return toMultiPolygon(geom.Geometry())
}

func toMultiPolygon(geom orb.Geometry) (orb.MultiPolygon, error) {
	switch g := geom.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{g}, nil
	case orb.MultiPolygon:
		return g, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("priority polygon geometry must be a polygon or multipolygon, got %T", geom)
	}
}
