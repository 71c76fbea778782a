package pngrepair

import (
	"errors"
	"fmt"
)

////////////////////////////////////////////////////////////////////////////////

var (
	ErrNotAFile             = errors.New("cannot read input")
	ErrNotAPNG              = errors.New("not a png image")
	ErrBadSignature         = errors.New("wrong png signature")
	ErrMissingCriticalChunk = errors.New("missing critical chunk")
	ErrChecksumMismatch     = errors.New("chunk crc mismatch")
	ErrLengthMismatch       = errors.New("chunk length mismatch")
	ErrUnsupportedFilter    = errors.New("corrupt filter byte")
	ErrShortPixelData       = errors.New("not enough pixel data")

	// ErrRepairNotFound means the search ran to completion without a match,
	// ErrSearchBudgetExceeded means it was cut short.
	ErrRepairNotFound       = errors.New("repair not found")
	ErrSearchBudgetExceeded = errors.New("search budget exceeded")
)

// StageError ties an error to the pipeline stage and byte offset where it was
// detected.
type StageError struct {
	Stage  Stage
	Offset int
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s (offset 0x%X): %v", e.Stage, e.Offset, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(s Stage, off int, err error) error {
	return &StageError{Stage: s, Offset: off, Err: err}
}
