// Package pngrepair checks and repairs PNG files whose chunk structure or
// checksums have been damaged, and recovers raw pixels from image data.
package pngrepair

////////////////////////////////////////////////////////////////////////////////

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/apex/log"
)

////////////////////////////////////////////////////////////////////////////////

// Repairer runs the check and repair pipeline: signature, IHDR, the chunks
// between IHDR and the image data, IDAT and IEND. A Repairer holds no state
// between runs and may be shared.
type Repairer struct {
	opts Options
}

// Result is the outcome of one repair run.
type Result struct {
	// Output is the repaired PNG stream.
	Output []byte
	Header IHDR
	// IDAT holds the data of every IDAT chunk, after repair, in file order.
	IDAT     [][]byte
	Trailing TrailingData
	Findings []Finding
}

// Changed reports whether the output differs from the input.
func (r *Result) Changed(input []byte) bool {
	return !bytes.Equal(r.Output, input)
}

func New(opts Options) *Repairer {
	return &Repairer{opts: opts.withDefaults()}
}

// run is the state of a single pass over one input.
type run struct {
	opts Options
	log  log.Interface
	data []byte
	tags tagScanner
	out  bytes.Buffer
	res  *Result
}

// RepairFile is like `Repair` but accepts the path to a PNG file.
func (p *Repairer) RepairFile(ctx context.Context, fp string) (*Result, error) {
	data, err := os.ReadFile(fp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAFile, err)
	}
	return p.Repair(ctx, data)
}

// Repair checks data and returns the repaired stream with the findings that
// led to it. Structural failures return a *StageError and no output. data is
// never modified.
func (p *Repairer) Repair(ctx context.Context, data []byte) (*Result, error) {
	if !looksLikePNG(data) {
		return nil, ErrNotAPNG
	}

	r := &run{
		opts: p.opts,
		log:  p.opts.Logger,
		data: data,
		tags: newTagScanner(data),
		res:  &Result{},
	}
	r.out.Grow(len(data) + len(iendChunk))

	if err := r.checkSignature(); err != nil {
		return nil, err
	}
	afterIHDR, err := r.checkIHDR(ctx)
	if err != nil {
		return nil, err
	}

	firstIDAT := r.tags.from(typeIDAT, afterIHDR+4)
	iend := -1
	if firstIDAT >= 0 {
		r.checkAncillary(afterIHDR, firstIDAT-4)
		iend = r.tags.from(typeIEND, firstIDAT)
	}
	if err := r.checkIDAT(ctx, afterIHDR, iend); err != nil {
		return nil, err
	}
	r.checkIEND(iend)

	r.res.Output = r.out.Bytes()
	r.log.WithFields(log.Fields{
		"findings": len(r.res.Findings),
		"idat":     len(r.res.IDAT),
		"trailing": r.res.Trailing.Len(),
	}).Info("png check complete")
	return r.res, nil
}

// checkAncillary copies the chunks between IHDR and the first IDAT. When they
// parse cleanly, each CRC is checked like an IDAT CRC; otherwise the bytes
// are copied untouched.
func (r *run) checkAncillary(from, to int) {
	if to <= from {
		return
	}
	span := r.data[from:to]
	chunks, ok := parseChunks(span, from)
	if !ok {
		r.report(Finding{
			Stage:    StageAncillary,
			Offset:   from,
			Observed: fmt.Sprintf("%d unparsed bytes", len(span)),
			Action:   ActionKept,
		})
		r.out.Write(span)
		return
	}
	r.checkChunks(chunks)
}

// checkChunks writes chunks in order, fixing each CRC the policy allows.
func (r *run) checkChunks(chunks []Chunk) {
	for _, c := range chunks {
		if calc := c.CalculateCRC(); calc != c.CRC {
			f := Finding{
				Stage:    StageAncillary,
				Offset:   c.CRCOffset(),
				Observed: hexCRC(c.CRC),
				Expected: hexCRC(calc),
				Err:      fmt.Errorf("%s: %w", c.Type[:], ErrChecksumMismatch),
			}
			if r.decide(&f) {
				f.Action = ActionFixed
				c.CRC = calc
			}
			r.report(f)
		}
		r.out.Write(c.Bytes())
	}
}

// decide applies the policy to a proposed repair, marking f as declined when
// it is refused.
func (r *run) decide(f *Finding) bool {
	if r.opts.allow(*f) {
		return true
	}
	f.Action = ActionDeclined
	return false
}

func (r *run) report(f Finding) {
	r.res.Findings = append(r.res.Findings, f)

	l := r.log.WithFields(log.Fields{
		"stage":  f.Stage,
		"offset": fmt.Sprintf("0x%X", f.Offset),
		"action": f.Action,
	})
	if f.Observed != "" {
		l = l.WithField("observed", f.Observed)
	}
	if f.Expected != "" {
		l = l.WithField("expected", f.Expected)
	}
	switch {
	case f.Err == nil:
		l.Info("detected")
	case f.Action == ActionFixed:
		l.WithError(f.Err).Info("repaired")
	default:
		l.WithError(f.Err).Warn("not repaired")
	}
}
