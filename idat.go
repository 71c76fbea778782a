package pngrepair

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

var carriageReturn = []byte{'\r'}

// segmentIDAT splits the input into IDAT segments given the IDAT tag hits.
// Each segment runs from one IDAT length field to the next, or to the IEND
// length field (end of input when IEND is missing) for the last one.
func segmentIDAT(hits []int, size, from, iend int) [][2]int {
	var tags []int
	for _, p := range hits {
		if p-4 < from || (iend >= 0 && p >= iend) {
			continue
		}
		tags = append(tags, p)
	}

	segs := make([][2]int, 0, len(tags))
	for i, p := range tags {
		end := size
		switch {
		case i+1 < len(tags):
			end = tags[i+1] - 4
		case iend >= 0:
			end = iend - 4
		}
		if end < p-4 {
			end = p - 4
		}
		segs = append(segs, [2]int{p - 4, end})
	}
	return segs
}

// fixLineEndings looks for count line feeds in data that, each preceded by a
// restored carriage return, make the chunk match crc. This undoes a text-mode
// CRLF to LF conversion.
func fixLineEndings(ctx context.Context, opts Options, typ, data []byte, crc uint32, count int) ([]byte, error) {
	var lf []int
	for i, b := range data {
		if b == '\n' {
			lf = append(lf, i)
		}
	}
	if count <= 0 || count > len(lf) {
		return nil, ErrRepairNotFound
	}

	prefix := crc32.Update(0, crc32.IEEETable, typ)
	match := func(pick []int) bool {
		c, prev := prefix, 0
		for _, i := range pick {
			c = crc32.Update(c, crc32.IEEETable, data[prev:lf[i]])
			c = crc32.Update(c, crc32.IEEETable, carriageReturn)
			prev = lf[i]
		}
		return crc32.Update(c, crc32.IEEETable, data[prev:]) == crc
	}

	pick, err := firstMatch(ctx, opts.Workers, opts.MaxCombinations, combinations(len(lf), count), match)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+count)
	prev := 0
	for _, i := range pick {
		out = append(out, data[prev:lf[i]]...)
		out = append(out, '\r')
		prev = lf[i]
	}
	return append(out, data[prev:]...), nil
}

// splitTail detects chunks that follow an IDAT chunk inside its segment (a
// tEXt chunk between the last IDAT and IEND, for example). The tail must be a
// sequence of well-formed chunk headers; their CRCs are checked later. It
// returns the declared chunk end and the tail chunks, or ok=false.
func splitTail(seg []byte, declared int, base int) (end int, tail []Chunk, ok bool) {
	end = 12 + declared
	if declared < 0 || end >= len(seg) {
		return 0, nil, false
	}
	chunks, ok := parseChunks(seg[end:], base+end)
	if !ok || len(chunks) == 0 {
		return 0, nil, false
	}
	return end, chunks, true
}

// checkIDAT validates every IDAT chunk between from and iend, writes them out
// in order, and collects their data.
func (r *run) checkIDAT(ctx context.Context, from, iend int) error {
	segs := segmentIDAT(r.tags.all(typeIDAT), len(r.data), from, iend)
	if len(segs) == 0 {
		return stageErr(StageIDAT, from, fmt.Errorf("no IDAT chunk: %w", ErrMissingCriticalChunk))
	}

	for _, s := range segs {
		seg := r.data[s[0]:s[1]]
		if len(seg) < 12 {
			r.report(Finding{
				Stage:    StageIDAT,
				Offset:   s[0],
				Observed: fmt.Sprintf("%d bytes", len(seg)),
				Expected: "at least 12 bytes",
				Action:   ActionDropped,
				Err:      ErrLengthMismatch,
			})
			continue
		}

		declared := int(binary.BigEndian.Uint32(seg[:4]))
		var tail []Chunk
		if declared < len(seg)-12 {
			if end, t, ok := splitTail(seg, declared, s[0]); ok {
				seg, tail = seg[:end], t
			}
		}

		data, err := r.checkIDATChunk(ctx, s[0], seg)
		if err != nil {
			return err
		}
		r.res.IDAT = append(r.res.IDAT, data)
		r.checkChunks(tail)
	}
	return nil
}

// checkIDATChunk handles one IDAT segment and returns the data bytes kept.
func (r *run) checkIDATChunk(ctx context.Context, off int, seg []byte) ([]byte, error) {
	declared := binary.BigEndian.Uint32(seg[:4])
	typ := seg[4:8]
	data := seg[8 : len(seg)-4]
	crc := binary.BigEndian.Uint32(seg[len(seg)-4:])
	l := r.log.WithField("offset", off)

	if int(declared) != len(data) {
		f := Finding{
			Stage:    StageIDAT,
			Offset:   off,
			Observed: fmt.Sprintf("0x%X", declared),
			Expected: fmt.Sprintf("0x%X", len(data)),
			Err:      ErrLengthMismatch,
		}
		if !r.decide(&f) {
			r.report(f)
			r.out.Write(seg)
			return data, nil
		}

		var fixed []byte
		err := ErrRepairNotFound
		if int(declared) > len(data) {
			l.Debugf("searching %d line feed positions", int(declared)-len(data))
			fixed, err = fixLineEndings(ctx, r.opts, typ, data, crc, int(declared)-len(data))
		}
		switch {
		case err == nil:
			f.Action = ActionFixed
			r.report(f)
			r.writeChunk(declared, typ, fixed, crc)
			return fixed, nil
		case isSearchFailure(err):
			f.Err = fmt.Errorf("%w: %w", ErrLengthMismatch, err)
			if r.opts.KeepUnrepairedChecksums {
				f.Action = ActionKept
				r.out.Write(seg)
			} else {
				f.Action = ActionRewritten
				r.writeChunk(uint32(len(data)), typ, data, Checksum(typ, data))
			}
			r.report(f)
			return data, nil
		default:
			return nil, stageErr(StageIDAT, off, err)
		}
	}

	if calc := Checksum(typ, data); calc != crc {
		f := Finding{
			Stage:    StageIDAT,
			Offset:   off + 8 + len(data),
			Observed: hexCRC(crc),
			Expected: hexCRC(calc),
			Err:      ErrChecksumMismatch,
		}
		if r.decide(&f) {
			f.Action = ActionFixed
			crc = calc
		}
		r.report(f)
	}
	r.writeChunk(declared, typ, data, crc)
	return data, nil
}

func (r *run) writeChunk(length uint32, typ, data []byte, crc uint32) {
	r.out.Write(binary.BigEndian.AppendUint32(nil, length))
	r.out.Write(typ)
	r.out.Write(data)
	r.out.Write(crcBytes(crc))
}
