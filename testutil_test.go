package pngrepair

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// testImage is a synthetic PNG together with the pixels it encodes.
type testImage struct {
	png    []byte
	raw    []byte
	header IHDR
}

func mustChunk(t *testing.T, ct string, data []byte) []byte {
	t.Helper()
	c, err := BuildChunk(ct, data)
	if err != nil {
		t.Fatalf("BuildChunk(%s): %v", ct, err)
	}
	return c
}

// buildPNG encodes a width x height 8 bit image with the given colour type,
// Paeth filtered, split into IDAT chunks of at most split bytes. extra chunks
// are placed between IHDR and the first IDAT.
func buildPNG(t *testing.T, width, height int, colorType uint8, split int, extra ...[]byte) testImage {
	t.Helper()
	h := IHDR{Width: uint32(width), Height: uint32(height), BitDepth: 8, ColorType: colorType}
	ch := h.Channels()

	raw := make([]byte, width*height*ch)
	for i := range raw {
		raw[i] = byte(i*7 + i/3)
	}
	filtered, err := Filter(raw, width, height, ch, 8, FilterPaeth)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	z, err := Deflate(filtered)
	if err != nil {
		t.Fatalf("Deflate: %v", err)
	}

	var buf bytes.Buffer
	buf.Write(pngMagic)
	buf.Write(mustChunk(t, typeIHDR, h.Bytes()))
	for _, e := range extra {
		buf.Write(e)
	}
	for len(z) > 0 {
		n := min(split, len(z))
		buf.Write(mustChunk(t, typeIDAT, z[:n]))
		z = z[n:]
	}
	buf.Write(iendChunk)
	return testImage{png: buf.Bytes(), raw: raw, header: h}
}

// assertConsistent checks that every chunk of out has a matching CRC.
func assertConsistent(t *testing.T, out []byte) {
	t.Helper()
	if !bytes.HasPrefix(out, pngMagic) {
		t.Fatalf("output does not start with the png signature: % X", out[:min(8, len(out))])
	}
	chunks, ok := parseChunks(out[8:], 8)
	if !ok {
		t.Fatalf("output is not a clean chunk sequence")
	}
	for _, c := range chunks {
		if !c.CRCIsValid() {
			t.Fatalf("chunk %s at 0x%X: crc %08X want %08X", c.Type[:], c.Offset, c.CRC, c.CalculateCRC())
		}
		if int(c.Length) != len(c.Data) {
			t.Fatalf("chunk %s at 0x%X: length %d, data %d", c.Type[:], c.Offset, c.Length, len(c.Data))
		}
	}
	if last := chunks[len(chunks)-1]; string(last.Type[:]) != typeIEND {
		t.Fatalf("last chunk is %s", last.Type[:])
	}
}

func putUint32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}

func findingsWith(res *Result, s Stage) []Finding {
	var out []Finding
	for _, f := range res.Findings {
		if f.Stage == s {
			out = append(out, f)
		}
	}
	return out
}
