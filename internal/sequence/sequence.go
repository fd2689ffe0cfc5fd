// Package sequence converts between replication sequence numbers and the
// triple-directory path convention the planet servers use, and resolves
// the correspondence between the independently-numbered changeset and
// osmChange streams.
package sequence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Stream identifies which of the two replication feeds a sequence or
// path belongs to.
type Stream string

const (
	StreamOsmChange Stream = "osmchange"
	StreamChangeset Stream = "changeset"
)

// Frequency is the publishing cadence of a replication stream.
type Frequency string

const (
	FrequencyMinute Frequency = "minute"
	FrequencyHour   Frequency = "hour"
	FrequencyDay    Frequency = "day"
)

// ToPath converts a sequence number into the "AAA/BBB/CCC" directory
// path used by both streams (base-1000 digit grouping).
func ToPath(seq int64) string {
	return fmt.Sprintf("%03d/%03d/%03d", seq/1_000_000, (seq/1_000)%1_000, seq%1_000)
}

// FromPath parses a "AAA/BBB/CCC" path (with an optional trailing
// extension such as ".osc.gz", ".state.txt", ".osm.gz", or
// "state.yaml") back into a sequence number.
func FromPath(path string) (int64, error) {
	trimmed := strings.TrimSuffix(path, "/")
	for _, suffix := range []string{".osc.gz", ".osm.gz", ".state.txt", "state.yaml"} {
		trimmed = strings.TrimSuffix(trimmed, suffix)
	}
	trimmed = strings.TrimSuffix(trimmed, ".")

	parts := strings.Split(trimmed, "/")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid sequence path %q: expected 3 components", path)
	}

	var seq int64
	for i, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid sequence path component %q: %w", part, err)
		}
		switch i {
		case 0:
			seq += n * 1_000_000
		case 1:
			seq += n * 1_000
		case 2:
			seq += n
		}
	}
	return seq, nil
}

// DataSuffix returns the file extension for a stream's data file.
func DataSuffix(s Stream) string {
	if s == StreamChangeset {
		return ".osm.gz"
	}
	return ".osc.gz"
}

// StateSuffix returns the file name (or extension) for a stream's
// sidecar state file.
func StateSuffix(s Stream) string {
	if s == StreamChangeset {
		return "state.yaml"
	}
	return ".state.txt"
}

// Checkpoint is a (sequence, timestamp) pair used for binary search and
// for cursor alignment between the two streams.
type Checkpoint struct {
	Sequence  int64
	Timestamp time.Time
}

// BinarySearchByTimestamp finds the latest checkpoint with
// Timestamp <= target among a slice of checkpoints assumed sorted by
// ascending sequence (and therefore ascending timestamp). stateAt is
// called with a sequence number and must return the checkpoint found at
// that sequence, or ok=false if the file does not exist (a gap or not
// yet published). lo/hi bound the search range inclusively.
func BinarySearchByTimestamp(lo, hi int64, target time.Time, stateAt func(seq int64) (Checkpoint, bool)) (Checkpoint, bool) {
	var best Checkpoint
	found := false

	for lo <= hi {
		mid := lo + (hi-lo)/2
		cp, ok := stateAt(mid)
		if !ok {
			// Treat a missing file as "too far" and search the lower half;
			// the caller's stateAt is expected to probe nearby sequences
			// for genuine gaps rather than relying on this loop alone.
			hi = mid - 1
			continue
		}
		if !cp.Timestamp.After(target) {
			best = cp
			found = true
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best, found
}

// AlignChangesetToOsmChange aligns the two independently-numbered
// replication streams: given the timestamp of an osmChange file, find
// the changeset file whose
// [created_at, closed_at] interval contains that timestamp. Tie-break:
// the smallest sequence whose interval still satisfies
// closed_at >= osmChangeTimestamp (so an open changeset, or the earliest
// closing one, wins over a later-opened changeset that happens to also
// contain the instant).
func AlignChangesetToOsmChange(osmChangeTimestamp time.Time, candidates []ChangesetInterval) (ChangesetInterval, bool) {
	sorted := make([]ChangesetInterval, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	for _, c := range sorted {
		if c.CreatedAt.After(osmChangeTimestamp) {
			continue
		}
		if c.Open || !c.ClosedAt.Before(osmChangeTimestamp) {
			return c, true
		}
	}
	return ChangesetInterval{}, false
}

// ChangesetInterval is the slice of changeset-file metadata that
// alignment needs: its sequence and the open interval it covers.
type ChangesetInterval struct {
	Sequence  int64
	CreatedAt time.Time
	ClosedAt  time.Time
	Open      bool
}
