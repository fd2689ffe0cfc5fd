package osmxml

import (
	"strings"
	"testing"
)

func TestParseChangesetFileBasicFields(t *testing.T) {
	doc := `<?xml version="1.0"?>
<osm>
  <changeset id="42" created_at="2024-01-15T12:00:00Z" closed_at="2024-01-15T12:05:00Z" open="false" uid="7" user="tester" min_lat="43.7" min_lon="7.4" max_lat="43.8" max_lon="7.5">
    <tag k="comment" v="fixing #potholes and #roads here"/>
    <tag k="created_by" v="StreetComplete 50.0"/>
  </changeset>
</osm>`

	sets, err := ParseChangesetFile(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("expected 1 changeset, got %d", len(sets))
	}
	cs := sets[0]
	if cs.ID != 42 {
		t.Errorf("ID = %d, want 42", cs.ID)
	}
	if cs.Editor != "StreetComplete 50.0" {
		t.Errorf("Editor = %q, want StreetComplete 50.0", cs.Editor)
	}
	if len(cs.Hashtags) != 2 {
		t.Errorf("expected 2 hashtags extracted from the comment, got %v", cs.Hashtags)
	}
}

func TestParseChangesetFileExplicitHashtagsTag(t *testing.T) {
	doc := `<osm><changeset id="1" uid="1">
    <tag k="hashtags" v="#mapathon;#hotosm"/>
  </changeset></osm>`

	sets, err := ParseChangesetFile(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sets[0].Hashtags) != 2 || sets[0].Hashtags[0] != "#mapathon" {
		t.Errorf("Hashtags = %v, want [#mapathon #hotosm]", sets[0].Hashtags)
	}
}

func TestParseChangesetFileStripsControlCharacters(t *testing.T) {
	doc := "<osm><changeset id=\"1\" uid=\"1\"><tag k=\"comment\" v=\"hello\x01world\"/></changeset></osm>"
	sets, err := ParseChangesetFile(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.ContainsRune(sets[0].Comment, 0x01) {
		t.Errorf("expected control characters stripped, got %q", sets[0].Comment)
	}
}

func TestParseChangesetFileMultipleChangesets(t *testing.T) {
	doc := `<osm>
  <changeset id="1" uid="1"></changeset>
  <changeset id="2" uid="1"></changeset>
</osm>`
	sets, err := ParseChangesetFile(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sets) != 2 {
		t.Errorf("expected 2 changesets, got %d", len(sets))
	}
}
