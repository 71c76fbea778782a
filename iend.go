package pngrepair

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
)

const previewLength = 10

// TrailingData is whatever follows the IEND chunk. It is not part of the
// image.
type TrailingData struct {
	Offset int
	Data   []byte
}

func (t TrailingData) Len() int { return len(t.Data) }

// Preview returns at most the first 10 trailing bytes.
func (t TrailingData) Preview() []byte {
	return t.Data[:min(len(t.Data), previewLength)]
}

func (t TrailingData) Hex() string {
	return hex.EncodeToString(t.Data)
}

// WriteTo extracts the trailing bytes.
func (t TrailingData) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(t.Data)
	return int64(n), err
}

func (t TrailingData) String() string {
	return fmt.Sprintf("%d bytes at 0x%X (%q)", len(t.Data), t.Offset, t.Preview())
}

// checkIEND always writes the canonical IEND chunk. pos is the offset of the
// IEND tag, or -1.
func (r *run) checkIEND(pos int) {
	if pos < 4 {
		r.report(Finding{
			Stage:    StageIEND,
			Offset:   len(r.data),
			Expected: hexUpper(iendChunk),
			Action:   ActionFixed,
			Err:      ErrMissingCriticalChunk,
		})
		r.out.Write(iendChunk)
		return
	}

	start, end := pos-4, min(pos+8, len(r.data))
	if got := r.data[start:end]; !bytes.Equal(got, iendChunk) {
		err := ErrLengthMismatch
		if bytes.HasPrefix(got, iendChunk[:8]) {
			err = ErrChecksumMismatch
		}
		r.report(Finding{
			Stage:    StageIEND,
			Offset:   start,
			Observed: hexUpper(got),
			Expected: hexUpper(iendChunk),
			Action:   ActionFixed,
			Err:      err,
		})
	}
	r.out.Write(iendChunk)

	if end < len(r.data) {
		r.res.Trailing = TrailingData{Offset: end, Data: r.data[end:]}
		r.report(Finding{
			Stage:    StageIEND,
			Offset:   end,
			Observed: fmt.Sprintf("%d bytes: %X", len(r.data)-end, r.res.Trailing.Preview()),
			Action:   ActionReported,
		})
	}
}
