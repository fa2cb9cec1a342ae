// Package gazeerr defines the error taxonomy shared by the sparse store,
// loader and linemap tree.
//
// Only Corruption is an error in the stack-unwinding sense. NotResident
// and BudgetExceeded are return values, not errors — sparsestore reports
// a zero-length or ok=false result and linemap a mapped/ok=false flag,
// carrying a best-effort result instead of failing outright.
package gazeerr

import (
	"errors"
	"strconv"
)

var (
	// ErrIoError marks a file range as permanently unavailable after a
	// read failure. It is sticky: once set for a range, that range
	// reports NotResident forever, and the buffer-level flag stays set.
	ErrIoError = errors.New("gaze: io error reading backing file")

	// ErrInvalidEdit is returned when an edit would split a UTF-8 code
	// point or otherwise cross a disallowed boundary. The edit is
	// rejected before any mutation occurs.
	ErrInvalidEdit = errors.New("gaze: edit crosses a disallowed boundary")

	// ErrBudgetExceeded means the loader cannot admit more resident
	// bytes under the current memory budget. Callers see this surface
	// as NotResident until the budget is raised or the hot set shrinks.
	ErrBudgetExceeded = errors.New("gaze: memory budget exceeded")

	// ErrCorruption is fatal: an internal invariant was violated and the
	// buffer that raised it is quarantined.
	ErrCorruption = errors.New("gaze: internal invariant violated")

	// ErrClosed denotes an operation issued after Close. No operation in
	// this module returns it: Buffer methods do not check for closure.
	ErrClosed = errors.New("gaze: buffer closed")
)

// Corruption wraps ErrCorruption with the invariant that failed, for a
// fatal, buffer-quarantining condition.
type Corruption struct {
	Invariant string
}

func (c *Corruption) Error() string {
	return "gaze: corruption: " + c.Invariant
}

func (c *Corruption) Unwrap() error {
	return ErrCorruption
}

// IoError wraps ErrIoError with the file offset range that failed.
type IoError struct {
	FileOffsetStart int64
	Length          int64
	Cause           error
}

func (e *IoError) Error() string {
	return "gaze: io error at offset " + strconv.FormatInt(e.FileOffsetStart, 10) +
		" (+" + strconv.FormatInt(e.Length, 10) + " bytes): " + e.Cause.Error()
}

func (e *IoError) Unwrap() error {
	return ErrIoError
}
