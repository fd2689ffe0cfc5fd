// Package osmxml streams osmChange and changeset XML documents into the
// osm package's domain objects using encoding/xml's token API (SAX
// style), tolerating truncated trailers common on interrupted downloads.
package osmxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/paulmach/orb"

	"github.com/hotosm/underpass/internal/osm"
)

// ParseOsmChange streams an <osmChange> document from r, dispatching
// each create/modify/delete frame into osm.Change values appended to a
// FileBatch. Node coordinates are also inserted into cache as they are
// parsed, regardless of region — way geometry resolution needs every
// node, in scope or not.
//
// A truncated trailer does not abort the file: the partially-read
// object is discarded and the batch built so far is returned along with
// a nil error.
func ParseOsmChange(r io.Reader, cache *osm.NodeCache) (*osm.FileBatch, error) {
	decoder := xml.NewDecoder(r)
	batch := &osm.FileBatch{}
	var action osm.Action

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A truncated trailer surfaces as an XML syntax error at
			// EOF; treat any decode error as a tolerated truncation
			// rather than a fatal parse failure.
			break
		}

		se, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "create":
			action = osm.ActionCreate
		case "modify":
			action = osm.ActionModify
		case "delete":
			action = osm.ActionRemove
		case "node":
			node, ts, err := parseNode(decoder, se, action, cache)
			if err != nil {
				return batch, nil // tolerate truncation, return partial batch
			}
			if node != nil {
				batch.Changes = append(batch.Changes, osm.Change{Action: action, Type: osm.MemberNode, Node: node})
				bumpFinalEntry(batch, ts)
			}
		case "way":
			way, ts, err := parseWay(decoder, se, action)
			if err != nil {
				return batch, nil
			}
			if way != nil {
				batch.Changes = append(batch.Changes, osm.Change{Action: action, Type: osm.MemberWay, Way: way})
				bumpFinalEntry(batch, ts)
			}
		case "relation":
			rel, ts, err := parseRelation(decoder, se, action)
			if err != nil {
				return batch, nil
			}
			if rel != nil {
				batch.Changes = append(batch.Changes, osm.Change{Action: action, Type: osm.MemberRelation, Relation: rel})
				bumpFinalEntry(batch, ts)
			}
		default:
			// unknown element: logged at debug by the caller if it cares,
			// not fatal here.
		}
	}

	return batch, nil
}

func bumpFinalEntry(batch *osm.FileBatch, ts time.Time) {
	if ts.After(batch.FinalEntry) {
		batch.FinalEntry = ts
	}
}

func parseNode(decoder *xml.Decoder, start xml.StartElement, action osm.Action, cache *osm.NodeCache) (*osm.Node, time.Time, error) {
	node := &osm.Node{Action: action, Tags: make(map[string]string)}
	var lat, lon float64

	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "id":
			node.ID, _ = strconv.ParseInt(attr.Value, 10, 64)
		case "version":
			v, _ := strconv.ParseInt(attr.Value, 10, 32)
			node.Version = int32(v)
		case "changeset":
			node.ChangesetID, _ = strconv.ParseInt(attr.Value, 10, 64)
		case "timestamp":
			node.Timestamp, _ = parseTimestamp(attr.Value)
		case "user":
			node.User = attr.Value
		case "uid":
			node.UID, _ = strconv.ParseInt(attr.Value, 10, 64)
		case "lat":
			lat, _ = strconv.ParseFloat(attr.Value, 64)
		case "lon":
			lon, _ = strconv.ParseFloat(attr.Value, 64)
		}
	}
	node.Point = orb.Point{lon, lat}
	if action != osm.ActionRemove {
		cache.Put(node.ID, node.Point)
	} else {
		cache.Delete(node.ID)
	}

	if action == osm.ActionRemove {
		if err := skipToEnd(decoder, "node"); err != nil {
			return nil, time.Time{}, err
		}
		return node, node.Timestamp, nil
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, time.Time{}, err
		}
		switch se := token.(type) {
		case xml.StartElement:
			if se.Name.Local == "tag" {
				k, v := tagAttrs(se)
				if k != "" {
					node.Tags[k] = v
				}
			}
		case xml.EndElement:
			if se.Name.Local == "node" {
				return node, node.Timestamp, nil
			}
		}
	}
}

func parseWay(decoder *xml.Decoder, start xml.StartElement, action osm.Action) (*osm.Way, time.Time, error) {
	way := &osm.Way{Action: action, Tags: make(map[string]string), Refs: make([]int64, 0, 16)}

	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "id":
			way.ID, _ = strconv.ParseInt(attr.Value, 10, 64)
		case "version":
			v, _ := strconv.ParseInt(attr.Value, 10, 32)
			way.Version = int32(v)
		case "changeset":
			way.ChangesetID, _ = strconv.ParseInt(attr.Value, 10, 64)
		case "timestamp":
			way.Timestamp, _ = parseTimestamp(attr.Value)
		case "user":
			way.User = attr.Value
		case "uid":
			way.UID, _ = strconv.ParseInt(attr.Value, 10, 64)
		}
	}

	if action == osm.ActionRemove {
		if err := skipToEnd(decoder, "way"); err != nil {
			return nil, time.Time{}, err
		}
		return way, way.Timestamp, nil
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, time.Time{}, err
		}
		switch se := token.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "nd":
				for _, attr := range se.Attr {
					if attr.Name.Local == "ref" {
						ref, _ := strconv.ParseInt(attr.Value, 10, 64)
						way.Refs = append(way.Refs, ref)
					}
				}
			case "tag":
				k, v := tagAttrs(se)
				if k != "" {
					way.Tags[k] = v
				}
			}
		case xml.EndElement:
			if se.Name.Local == "way" {
				return way, way.Timestamp, nil
			}
		}
	}
}

func parseRelation(decoder *xml.Decoder, start xml.StartElement, action osm.Action) (*osm.Relation, time.Time, error) {
	rel := &osm.Relation{Action: action, Tags: make(map[string]string), Members: make([]osm.RelationMember, 0, 8)}

	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "id":
			rel.ID, _ = strconv.ParseInt(attr.Value, 10, 64)
		case "version":
			v, _ := strconv.ParseInt(attr.Value, 10, 32)
			rel.Version = int32(v)
		case "changeset":
			rel.ChangesetID, _ = strconv.ParseInt(attr.Value, 10, 64)
		case "timestamp":
			rel.Timestamp, _ = parseTimestamp(attr.Value)
		case "user":
			rel.User = attr.Value
		case "uid":
			rel.UID, _ = strconv.ParseInt(attr.Value, 10, 64)
		}
	}

	if action == osm.ActionRemove {
		if err := skipToEnd(decoder, "relation"); err != nil {
			return nil, time.Time{}, err
		}
		return rel, rel.Timestamp, nil
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, time.Time{}, err
		}
		switch se := token.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "member":
				m := osm.RelationMember{}
				for _, attr := range se.Attr {
					switch attr.Name.Local {
					case "type":
						switch attr.Value {
						case "node":
							m.Type = osm.MemberNode
						case "way":
							m.Type = osm.MemberWay
						case "relation":
							m.Type = osm.MemberRelation
						}
					case "ref":
						m.Ref, _ = strconv.ParseInt(attr.Value, 10, 64)
					case "role":
						m.Role = attr.Value
					}
				}
				rel.Members = append(rel.Members, m)
			case "tag":
				k, v := tagAttrs(se)
				if k != "" {
					rel.Tags[k] = v
				}
			}
		case xml.EndElement:
			if se.Name.Local == "relation" {
				return rel, rel.Timestamp, nil
			}
		}
	}
}

func tagAttrs(se xml.StartElement) (k, v string) {
	for _, attr := range se.Attr {
		switch attr.Name.Local {
		case "k":
			k = attr.Value
		case "v":
			v = attr.Value
		}
	}
	return k, v
}

func skipToEnd(decoder *xml.Decoder, elem string) error {
	depth := 1
	for {
		token, err := decoder.Token()
		if err != nil {
			return err
		}
		switch se := token.(type) {
		case xml.StartElement:
			if se.Name.Local == elem {
				depth++
			}
		case xml.EndElement:
			if se.Name.Local == elem {
				depth--
				if depth == 0 {
					return nil
				}
			}
		}
	}
}

// parseTimestamp parses an ISO-8601 UTC timestamp. The parser must not
// depend on the process's numeric locale; Go's time.Parse never does,
// so this is a direct RFC3339 parse with no locale-sensitive fallback.
func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}
