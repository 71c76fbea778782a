package pngrepair

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	bst "github.com/mixcode/binarystruct"
)

////////////////////////////////////////////////////////////////////////////////

// IHDR holds the image header fields. Width and height are unsigned as the
// PNG format defines them.
type IHDR struct {
	Width        uint32 `binary:"uint32"`
	Height       uint32 `binary:"uint32"`
	BitDepth     uint8  `binary:"uint8"`
	ColorType    uint8  `binary:"uint8"`
	Compression  uint8  `binary:"uint8"`
	FilterMethod uint8  `binary:"uint8"`
	Interlace    uint8  `binary:"uint8"`
}

// allowed bit depths per colour type
var colorTypeDepths = map[uint8][]uint8{
	0: {1, 2, 4, 8, 16},
	2: {8, 16},
	3: {1, 2, 4, 8},
	4: {8, 16},
	6: {8, 16},
}

// ParseIHDR decodes the 13 byte IHDR payload.
func ParseIHDR(data []byte) (IHDR, error) {
	var h IHDR
	if len(data) < ihdrLength {
		return h, fmt.Errorf("IHDR payload is %d bytes: %w", len(data), ErrLengthMismatch)
	}
	if _, err := bst.Read(bytes.NewReader(data[:ihdrLength]), bst.BigEndian, &h); err != nil {
		return h, err
	}
	return h, nil
}

// Bytes encodes the header back into its 13 byte payload.
func (h IHDR) Bytes() []byte {
	b := make([]byte, ihdrLength)
	binary.BigEndian.PutUint32(b[0:4], h.Width)
	binary.BigEndian.PutUint32(b[4:8], h.Height)
	b[8] = h.BitDepth
	b[9] = h.ColorType
	b[10] = h.Compression
	b[11] = h.FilterMethod
	b[12] = h.Interlace
	return b
}

// Channels returns the number of samples per pixel, or 0 for an unknown
// colour type.
func (h IHDR) Channels() int {
	switch h.ColorType {
	case 0, 3: // grayscale / indexed
		return 1
	case 2: // RGB
		return 3
	case 4: // grayscale + alpha
		return 2
	case 6: // RGBA
		return 4
	}
	return 0
}

func (h IHDR) ColorTypeName() string {
	switch h.ColorType {
	case 0:
		return "Grayscale"
	case 2:
		return "RGB"
	case 3:
		return "Indexed"
	case 4:
		return "Grayscale with Alpha"
	case 6:
		return "RGB with Alpha"
	}
	return fmt.Sprintf("unknown (%d)", h.ColorType)
}

func (h IHDR) InterlaceName() string {
	switch h.Interlace {
	case 0:
		return "Noninterlaced"
	case 1:
		return "Adam7 interlaced"
	}
	return fmt.Sprintf("unknown (%d)", h.Interlace)
}

// problems lists the header fields that a decoder would refuse.
func (h IHDR) problems() []string {
	var out []string
	if h.Width == 0 || h.Width > 1<<31-1 {
		out = append(out, fmt.Sprintf("width %d out of range", h.Width))
	}
	if h.Height == 0 || h.Height > 1<<31-1 {
		out = append(out, fmt.Sprintf("height %d out of range", h.Height))
	}
	if depths, ok := colorTypeDepths[h.ColorType]; !ok {
		out = append(out, fmt.Sprintf("color type %d", h.ColorType))
	} else if !bytes.Contains(depths, []byte{h.BitDepth}) {
		out = append(out, fmt.Sprintf("bit depth %d with color type %d", h.BitDepth, h.ColorType))
	}
	if h.Compression != 0 {
		out = append(out, fmt.Sprintf("compression method %d", h.Compression))
	}
	if h.FilterMethod != 0 {
		out = append(out, fmt.Sprintf("filter method %d", h.FilterMethod))
	}
	if h.Interlace > 1 {
		out = append(out, fmt.Sprintf("interlace method %d", h.Interlace))
	}
	return out
}

////////////////////////////////////////////////////////////////////////////////

// dimensionFix is the outcome of a successful IHDR search.
type dimensionFix struct {
	Field    string
	Old, New uint32
	Data     []byte
}

// searchDimensions assumes the stored CRC is right and one of width or
// height was damaged to a smaller value. The smaller field is walked from
// its current value up to the larger one until the payload matches crc.
func searchDimensions(ctx context.Context, opts Options, data []byte, crc uint32) (dimensionFix, error) {
	width := binary.BigEndian.Uint32(data[0:4])
	height := binary.BigEndian.Uint32(data[4:8])

	fix := dimensionFix{Field: "height", Old: height}
	field, lo, hi := 4, height, width
	if width <= height {
		fix = dimensionFix{Field: "width", Old: width}
		field, lo, hi = 0, width, height
	}

	typ := []byte(typeIHDR)
	match := func(v uint32) bool {
		cand := make([]byte, len(data))
		copy(cand, data)
		binary.BigEndian.PutUint32(cand[field:field+4], v)
		return Checksum(typ, cand) == crc
	}
	v, err := firstMatch(ctx, opts.Workers, opts.MaxIHDRCandidates, valueRange(lo, hi), match)
	if err != nil {
		return fix, err
	}
	fix.New = v
	fix.Data = make([]byte, len(data))
	copy(fix.Data, data)
	binary.BigEndian.PutUint32(fix.Data[field:field+4], v)
	return fix, nil
}

////////////////////////////////////////////////////////////////////////////////

// checkIHDR validates the header chunk, writes it out and returns the offset
// just past it.
func (r *run) checkIHDR(ctx context.Context) (int, error) {
	pos := bytes.Index(r.data, []byte(typeIHDR))
	if pos < 4 {
		return 0, stageErr(StageIHDR, max(pos, 0), ErrMissingCriticalChunk)
	}
	start := pos - 4
	end := pos + 4 + ihdrLength + 4
	if end > len(r.data) {
		return 0, stageErr(StageIHDR, start, fmt.Errorf("truncated IHDR: %w", ErrMissingCriticalChunk))
	}

	length := binary.BigEndian.Uint32(r.data[start:pos])
	data := r.data[pos+4 : pos+4+ihdrLength]
	crc := binary.BigEndian.Uint32(r.data[end-4 : end])

	if length != ihdrLength {
		f := Finding{
			Stage:    StageIHDR,
			Offset:   start,
			Observed: fmt.Sprintf("%d", length),
			Expected: fmt.Sprintf("%d", ihdrLength),
			Err:      ErrLengthMismatch,
		}
		if r.decide(&f) {
			length = ihdrLength
			f.Action = ActionFixed
		}
		r.report(f)
	}

	if calc := Checksum([]byte(typeIHDR), data); calc != crc {
		f := Finding{
			Stage:    StageIHDR,
			Offset:   end - 4,
			Observed: hexCRC(crc),
			Expected: hexCRC(calc),
			Err:      ErrChecksumMismatch,
		}
		if r.decide(&f) {
			fix, err := searchDimensions(ctx, r.opts, data, crc)
			switch {
			case err == nil:
				r.log.WithField("field", fix.Field).Infof("IHDR %s %d -> %d", fix.Field, fix.Old, fix.New)
				data = fix.Data
				f.Action = ActionFixed
				f.Observed = fmt.Sprintf("%s=%d", fix.Field, fix.Old)
				f.Expected = fmt.Sprintf("%s=%d", fix.Field, fix.New)
			case isSearchFailure(err):
				f.Err = fmt.Errorf("%w: %w", ErrChecksumMismatch, err)
				if r.opts.KeepUnrepairedChecksums {
					f.Action = ActionKept
				} else {
					crc = calc
					f.Action = ActionRewritten
				}
			default:
				return 0, stageErr(StageIHDR, start, err)
			}
		}
		r.report(f)
	}

	r.out.Write(binary.BigEndian.AppendUint32(nil, length))
	r.out.WriteString(typeIHDR)
	r.out.Write(data)
	r.out.Write(crcBytes(crc))

	h, err := ParseIHDR(data)
	if err != nil {
		return 0, stageErr(StageIHDR, pos+4, err)
	}
	r.res.Header = h
	for _, p := range h.problems() {
		r.report(Finding{
			Stage:    StageIHDR,
			Offset:   pos + 4,
			Observed: p,
			Action:   ActionReported,
		})
	}
	return end, nil
}

// isSearchFailure separates "nothing matched" from cancellation.
func isSearchFailure(err error) bool {
	return err == ErrRepairNotFound || err == ErrSearchBudgetExceeded
}
