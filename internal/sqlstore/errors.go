package sqlstore

import "fmt"

// EmitError wraps a failure inside a per-object transaction; the
// scheduler logs it and continues with the next object.
type EmitError struct {
	Which string // "node", "way", "relation", "changestats", "validation"
	Cause error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("emit error (%s): %v", e.Which, e.Cause)
}

func (e *EmitError) Unwrap() error { return e.Cause }
