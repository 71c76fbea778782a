package pngrepair

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Inflate joins the IDAT data in order and decompresses it. When the stream
// is cut short, the bytes recovered so far are returned with the error.
func Inflate(idat [][]byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(bytes.Join(idat, nil)))
	if err != nil {
		return nil, fmt.Errorf("zlib header: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return out, fmt.Errorf("inflate after %d bytes: %w", len(out), err)
	}
	return out, nil
}

// Deflate compresses data into a zlib stream suitable for an IDAT chunk.
func Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Pixels decompresses and defilters the repaired image data using the
// repaired header.
func (r *Result) Pixels() ([]byte, error) {
	h := r.Header
	if h.Interlace != 0 {
		return nil, fmt.Errorf("%s images are not supported", h.InterlaceName())
	}
	if h.Channels() == 0 {
		return nil, fmt.Errorf("color type %d: unknown channel count", h.ColorType)
	}
	z, err := Inflate(r.IDAT)
	if err != nil {
		return nil, err
	}
	return Defilter(z, int(h.Width), int(h.Height), h.Channels(), int(h.BitDepth))
}
