package planet

import (
	"strings"
	"testing"
	"time"
)

func TestParseStateTxt(t *testing.T) {
	doc := `#Fri Aug 01 00:00:00 UTC 2023
sequenceNumber=5123456
timestamp=2023-08-01T00\:00\:00Z
`
	st, err := ParseStateTxt(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Sequence != 5123456 {
		t.Errorf("Sequence = %d, want 5123456", st.Sequence)
	}
	want := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)
	if !st.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", st.Timestamp, want)
	}
}

func TestParseStateTxtIgnoresCommentsAndBlankLines(t *testing.T) {
	doc := "\n# a comment\nsequenceNumber=1\n\ntimestamp=2023-08-01T00\\:00\\:00Z\n"
	st, err := ParseStateTxt(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", st.Sequence)
	}
}

func TestParseStateYAML(t *testing.T) {
	doc := "---\nlast_run: 2023-08-01 00:00:00\nsequence: 42\n"
	st, err := ParseStateYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Sequence != 42 {
		t.Errorf("Sequence = %d, want 42", st.Sequence)
	}
}

func TestParseStateTxtRejectsBadSequence(t *testing.T) {
	doc := "sequenceNumber=not-a-number\n"
	if _, err := ParseStateTxt(strings.NewReader(doc)); err == nil {
		t.Error("expected an error for a non-numeric sequenceNumber")
	}
}
