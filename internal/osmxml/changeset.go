package osmxml

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/hotosm/underpass/internal/osm"
)

// ParseChangesetFile streams a changeset metadata document
// (<osm><changeset id=... created_at=... closed_at=... open=... uid=...
// user=... min_lat=... min_lon=... max_lat=... max_lon=...><tag
// k="comment"|"hashtags"|...>) into a slice of osm.ChangeSet. Raw ASCII
// control bytes are dropped from the stream before decoding. Like
// ParseOsmChange, a truncated trailer yields the partial result rather
// than an error.
func ParseChangesetFile(r io.Reader) ([]*osm.ChangeSet, error) {
	decoder := xml.NewDecoder(stripControl{r: r})
	var result []*osm.ChangeSet

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		se, ok := token.(xml.StartElement)
		if !ok || se.Name.Local != "changeset" {
			continue
		}

		cs, err := parseChangesetElement(decoder, se)
		if err != nil {
			break
		}
		result = append(result, cs)
	}

	return result, nil
}

// stripControl drops the ASCII control bytes encoding/xml rejects
// (everything below 0x20 except tab, newline and carriage return).
type stripControl struct{ r io.Reader }

func (s stripControl) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	kept := 0
	for _, b := range p[:n] {
		if b >= 0x20 || b == '\t' || b == '\n' || b == '\r' {
			p[kept] = b
			kept++
		}
	}
	return kept, err
}

func parseChangesetElement(decoder *xml.Decoder, start xml.StartElement) (*osm.ChangeSet, error) {
	cs := &osm.ChangeSet{Tags: make(map[string]string)}

	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "id":
			cs.ID, _ = strconv.ParseInt(attr.Value, 10, 64)
		case "created_at":
			cs.CreatedAt, _ = parseTimestamp(attr.Value)
		case "closed_at":
			cs.ClosedAt, _ = parseTimestamp(attr.Value)
		case "open":
			cs.Open = attr.Value == "true"
		case "uid":
			cs.UID, _ = strconv.ParseInt(attr.Value, 10, 64)
		case "user":
			cs.User = attr.Value
		case "min_lat":
			cs.MinLat, _ = strconv.ParseFloat(attr.Value, 64)
		case "min_lon":
			cs.MinLon, _ = strconv.ParseFloat(attr.Value, 64)
		case "max_lat":
			cs.MaxLat, _ = strconv.ParseFloat(attr.Value, 64)
		case "max_lon":
			cs.MaxLon, _ = strconv.ParseFloat(attr.Value, 64)
		}
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch se := token.(type) {
		case xml.StartElement:
			if se.Name.Local == "tag" {
				k, v := tagAttrs(se)
				if k == "" {
					continue
				}
				v = fixString(v)
				cs.Tags[k] = v
				switch k {
				case "comment":
					cs.Comment = v
				case "hashtags":
					cs.Hashtags = splitHashtags(v)
				case "created_by":
					cs.Editor = v
				case "source":
					cs.Source = v
				}
			}
		case xml.EndElement:
			if se.Name.Local == "changeset" {
				if len(cs.Hashtags) == 0 && cs.Comment != "" {
					cs.Hashtags = extractHashtagsFromComment(cs.Comment)
				}
				return cs, nil
			}
		}
	}
}

// fixString strips ASCII control characters from free-form changeset
// text (comment, hashtags) before storage.
func fixString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func splitHashtags(v string) []string {
	parts := strings.Split(v, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "#") {
			p = "#" + p
		}
		out = append(out, p)
	}
	return out
}

// extractHashtagsFromComment scans free-form comment text for "#word"
// tokens when no explicit hashtags tag was present.
func extractHashtagsFromComment(comment string) []string {
	var out []string
	var current strings.Builder
	inTag := false

	flush := func() {
		if inTag && current.Len() > 0 {
			out = append(out, "#"+current.String())
		}
		current.Reset()
		inTag = false
	}

	for _, r := range comment {
		switch {
		case r == '#':
			flush()
			inTag = true
		case inTag && (isHashtagChar(r)):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}

func isHashtagChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}
