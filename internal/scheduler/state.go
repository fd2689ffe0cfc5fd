package scheduler

import "time"

// FileState is one file's position in the per-file state machine.
// Transitions only move forward, except the two failure exits.
type FileState string

const (
	StateDiscovered     FileState = "discovered"
	StateDownloaded     FileState = "downloaded"
	StateParsed         FileState = "parsed"
	StateFiltered       FileState = "filtered"
	StateScored         FileState = "scored"
	StateEmitted        FileState = "emitted"
	StateCursorAdvanced FileState = "cursor_advanced"

	StateFailedTransient FileState = "failed_transient"
	StateFailedPermanent FileState = "failed_permanent"
)

// fileResult is what one worker produces for a single sequence number;
// the advancer consumes these strictly in sequence order.
type fileResult struct {
	sequence  int64
	path      string
	state     FileState
	emitErrs  int
	err       error
	timestamp time.Time
}
