package sequence

import (
	"testing"
	"time"
)

func TestToPathFromPathRoundTrip(t *testing.T) {
	cases := []int64{0, 1, 999, 1000, 5_123_456, 999_999_999}
	for _, seq := range cases {
		path := ToPath(seq)
		got, err := FromPath(path + ".osc.gz")
		if err != nil {
			t.Fatalf("FromPath(%q): unexpected error: %v", path, err)
		}
		if got != seq {
			t.Errorf("round trip %d -> %q -> %d, want %d", seq, path, got, seq)
		}
	}
}

func TestToPathFormat(t *testing.T) {
	if got := ToPath(5_123_456); got != "005/123/456" {
		t.Errorf("ToPath(5123456) = %q, want 005/123/456", got)
	}
}

func TestFromPathRejectsWrongComponentCount(t *testing.T) {
	if _, err := FromPath("005/123"); err == nil {
		t.Error("expected error for path with too few components")
	}
}

func TestDataSuffix(t *testing.T) {
	if DataSuffix(StreamChangeset) != ".osm.gz" {
		t.Errorf("changeset data suffix wrong: %q", DataSuffix(StreamChangeset))
	}
	if DataSuffix(StreamOsmChange) != ".osc.gz" {
		t.Errorf("osmChange data suffix wrong: %q", DataSuffix(StreamOsmChange))
	}
}

func TestBinarySearchByTimestamp(t *testing.T) {
	checkpoints := map[int64]Checkpoint{
		1: {Sequence: 1, Timestamp: time.Unix(100, 0)},
		2: {Sequence: 2, Timestamp: time.Unix(200, 0)},
		3: {Sequence: 3, Timestamp: time.Unix(300, 0)},
		4: {Sequence: 4, Timestamp: time.Unix(400, 0)},
	}
	stateAt := func(seq int64) (Checkpoint, bool) {
		cp, ok := checkpoints[seq]
		return cp, ok
	}

	got, found := BinarySearchByTimestamp(1, 4, time.Unix(250, 0), stateAt)
	if !found {
		t.Fatal("expected a match")
	}
	if got.Sequence != 2 {
		t.Errorf("expected sequence 2 (last checkpoint <= target), got %d", got.Sequence)
	}
}

func TestBinarySearchByTimestampNoneBefore(t *testing.T) {
	checkpoints := map[int64]Checkpoint{
		1: {Sequence: 1, Timestamp: time.Unix(500, 0)},
	}
	stateAt := func(seq int64) (Checkpoint, bool) {
		cp, ok := checkpoints[seq]
		return cp, ok
	}
	_, found := BinarySearchByTimestamp(1, 1, time.Unix(100, 0), stateAt)
	if found {
		t.Error("expected no match when every checkpoint is after the target")
	}
}

func TestAlignChangesetToOsmChange(t *testing.T) {
	candidates := []ChangesetInterval{
		{Sequence: 1, CreatedAt: time.Unix(0, 0), ClosedAt: time.Unix(100, 0)},
		{Sequence: 2, CreatedAt: time.Unix(50, 0), ClosedAt: time.Unix(150, 0)},
	}
	got, ok := AlignChangesetToOsmChange(time.Unix(75, 0), candidates)
	if !ok {
		t.Fatal("expected an aligned interval")
	}
	if got.Sequence != 1 {
		t.Errorf("expected the earlier-closing interval (seq 1) to win the tie-break, got seq %d", got.Sequence)
	}
}
