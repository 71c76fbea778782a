package pngrepair

import (
	"fmt"
	"math"
)

// FilterType is the leading byte of every scanline.
type FilterType byte

const (
	FilterNone FilterType = iota
	FilterSub
	FilterUp
	FilterAverage
	FilterPaeth
)

func (f FilterType) String() string {
	switch f {
	case FilterNone:
		return "None"
	case FilterSub:
		return "Sub"
	case FilterUp:
		return "Up"
	case FilterAverage:
		return "Average"
	case FilterPaeth:
		return "Paeth"
	}
	return fmt.Sprintf("filter(%d)", byte(f))
}

// rowGeometry returns the unfiltered row length and the filter distance in
// bytes. Depths below 8 bits use a distance of one byte.
func rowGeometry(width, channels, bitDepth int) (rowBytes, bpp int, err error) {
	if width <= 0 || channels <= 0 || channels > 4 || bitDepth <= 0 || bitDepth > 16 {
		return 0, 0, fmt.Errorf("invalid geometry %dx%d channels, %d bits", width, channels, bitDepth)
	}
	bits := channels * bitDepth
	if width > (math.MaxInt-7)/bits {
		return 0, 0, fmt.Errorf("width %d with %d bits per pixel: %w", width, bits, ErrShortPixelData)
	}
	rowBytes = (width*bits + 7) / 8
	bpp = 1
	if bitDepth >= 8 {
		bpp = bitDepth / 8 * channels
	}
	return rowBytes, bpp, nil
}

// checkRows verifies that data holds height rows of stride bytes without
// computing a product that may overflow.
func checkRows(data []byte, height, stride int) error {
	if height <= 0 {
		return fmt.Errorf("invalid height %d", height)
	}
	if height > len(data)/stride {
		return fmt.Errorf("%d bytes for %d rows of %d: %w", len(data), height, stride, ErrShortPixelData)
	}
	return nil
}

// paeth returns whichever of a (left), b (above) and c (upper left) is closest
// to a+b-c, preferring a, then b.
func paeth(a, b, c uint8) uint8 {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Defilter reverses PNG scanline filtering on decompressed image data and
// returns height rows of raw pixel bytes. Data past the last row is ignored.
func Defilter(data []byte, width, height, channels, bitDepth int) ([]byte, error) {
	rowBytes, bpp, err := rowGeometry(width, channels, bitDepth)
	if err != nil {
		return nil, err
	}
	stride := rowBytes + 1
	if err := checkRows(data, height, stride); err != nil {
		return nil, err
	}

	out := make([]byte, rowBytes*height)
	prev := make([]byte, rowBytes)
	for y := 0; y < height; y++ {
		ft := FilterType(data[y*stride])
		cdat := out[y*rowBytes : (y+1)*rowBytes]
		copy(cdat, data[y*stride+1:(y+1)*stride])

		switch ft {
		case FilterNone:
			// No-op.
		case FilterSub:
			for i := bpp; i < len(cdat); i++ {
				cdat[i] += cdat[i-bpp]
			}
		case FilterUp:
			for i, p := range prev {
				cdat[i] += p
			}
		case FilterAverage:
			for i := 0; i < bpp && i < len(cdat); i++ {
				cdat[i] += prev[i] / 2
			}
			for i := bpp; i < len(cdat); i++ {
				cdat[i] += uint8((int(cdat[i-bpp]) + int(prev[i])) / 2)
			}
		case FilterPaeth:
			for i := 0; i < bpp && i < len(cdat); i++ {
				cdat[i] += paeth(0, prev[i], 0)
			}
			for i := bpp; i < len(cdat); i++ {
				cdat[i] += paeth(cdat[i-bpp], prev[i], prev[i-bpp])
			}
		default:
			return nil, &StageError{
				Stage:  StageDefilter,
				Offset: y * stride,
				Err:    fmt.Errorf("row %d filter %d: %w", y, byte(ft), ErrUnsupportedFilter),
			}
		}
		prev = cdat
	}
	return out, nil
}

// Filter applies one filter type to every row of raw pixel data and returns
// the filtered stream, ready for compression.
func Filter(raw []byte, width, height, channels, bitDepth int, ft FilterType) ([]byte, error) {
	rowBytes, bpp, err := rowGeometry(width, channels, bitDepth)
	if err != nil {
		return nil, err
	}
	if err := checkRows(raw, height, rowBytes); err != nil {
		return nil, err
	}
	if ft > FilterPaeth {
		return nil, fmt.Errorf("filter %d: %w", byte(ft), ErrUnsupportedFilter)
	}

	out := make([]byte, 0, (rowBytes+1)*height)
	prev := make([]byte, rowBytes)
	for y := 0; y < height; y++ {
		cur := raw[y*rowBytes : (y+1)*rowBytes]
		out = append(out, byte(ft))
		for i, x := range cur {
			var a, b, c uint8
			if i >= bpp {
				a, c = cur[i-bpp], prev[i-bpp]
			}
			b = prev[i]
			switch ft {
			case FilterSub:
				x -= a
			case FilterUp:
				x -= b
			case FilterAverage:
				x -= uint8((int(a) + int(b)) / 2)
			case FilterPaeth:
				x -= paeth(a, b, c)
			}
			out = append(out, x)
		}
		prev = cur
	}
	return out, nil
}
