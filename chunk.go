package pngrepair

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"

	bst "github.com/mixcode/binarystruct"
)

////////////////////////////////////////////////////////////////////////////////

var (
	pngMagic  = []byte{137, 80, 78, 71, 13, 10, 26, 10}
	iendChunk = []byte{0, 0, 0, 0, 'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82}
)

const (
	typeIHDR = "IHDR"
	typeIDAT = "IDAT"
	typeIEND = "IEND"

	ihdrLength = 13
)

////////////////////////////////////////////////////////////////////////////////

// Chunk is a PNG chunk as found in the input. Offset is the position of its
// length field.
type Chunk struct {
	Offset int
	Length uint32
	Type   [4]byte
	Data   []byte
	CRC    uint32
}

// chunkHeader is the fixed 8 byte prefix of every chunk.
type chunkHeader struct {
	Length uint32 `binary:"uint32"`
	Type   string `binary:"[4]byte"`
}

func (c Chunk) String() string {
	return fmt.Sprintf("%s@%x - %X - Valid CRC? %v", c.Type, c.Offset, c.CRC, c.CRCIsValid())
}

// CalculateCRC returns the CRC of the chunk's type and data.
func (c Chunk) CalculateCRC() uint32 {
	return Checksum(c.Type[:], c.Data)
}

func (c Chunk) CRCIsValid() bool {
	return c.CRC == c.CalculateCRC()
}

func (c Chunk) CRCOffset() int {
	return c.Offset + 8 + len(c.Data)
}

// Bytes encodes the chunk with its stored length and CRC, whether or not they
// are correct.
func (c Chunk) Bytes() []byte {
	out := make([]byte, 0, 12+len(c.Data))
	out = binary.BigEndian.AppendUint32(out, c.Length)
	out = append(out, c.Type[:]...)
	out = append(out, c.Data...)
	return binary.BigEndian.AppendUint32(out, c.CRC)
}

// Checksum computes the PNG CRC-32 over typ followed by data.
func Checksum(typ, data []byte) uint32 {
	crc := crc32.Update(0, crc32.IEEETable, typ)
	return crc32.Update(crc, crc32.IEEETable, data)
}

func crcBytes(crc uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, crc)
}

func hexUpper(b []byte) string {
	return fmt.Sprintf("%X", b)
}

func hexCRC(crc uint32) string {
	return fmt.Sprintf("%08X", crc)
}

////////////////////////////////////////////////////////////////////////////////

// FindAll returns the offset of every occurrence of tag in data, in file
// order. A tag at p implies a length field at p-4 and data at p+4.
func FindAll(data []byte, tag string) []int {
	var out []int
	t := []byte(tag)
	for pos := 0; ; {
		i := bytes.Index(data[pos:], t)
		if i < 0 {
			return out
		}
		out = append(out, pos+i)
		pos += i + 1
	}
}

// findFrom returns the first offset of tag at or after start, or -1.
func findFrom(data []byte, tag string, start int) int {
	if start < 0 {
		start = 0
	}
	if start >= len(data) {
		return -1
	}
	i := bytes.Index(data[start:], []byte(tag))
	if i < 0 {
		return -1
	}
	return start + i
}

// walkChunks follows the declared lengths from off and returns every chunk
// whose CRC checks out. A chunk with a bad CRC is stepped over; the walk ends
// at the first malformed header or after IEND.
func walkChunks(data []byte, off int) []Chunk {
	var out []Chunk
	for off < len(data) {
		c, err := readChunkAt(data, off)
		if err != nil || !isChunkTypeName(c.Type[:]) {
			break
		}
		if c.CRCIsValid() {
			out = append(out, c)
		}
		if string(c.Type[:]) == typeIEND {
			break
		}
		off += 12 + len(c.Data)
	}
	return out
}

// tagScanner finds chunk type tags in data. Hits that fall inside an intact
// chunk anywhere but its type field are text, not chunk boundaries, and are
// skipped.
type tagScanner struct {
	data   []byte
	intact []Chunk
}

func newTagScanner(data []byte) tagScanner {
	return tagScanner{data: data, intact: walkChunks(data, len(pngMagic))}
}

func (s tagScanner) masked(p int) bool {
	i := sort.Search(len(s.intact), func(i int) bool { return s.intact[i].Offset > p }) - 1
	if i < 0 {
		return false
	}
	c := s.intact[i]
	return p < c.Offset+12+len(c.Data) && p != c.Offset+4
}

// all is FindAll without the masked hits.
func (s tagScanner) all(tag string) []int {
	var out []int
	for _, p := range FindAll(s.data, tag) {
		if !s.masked(p) {
			out = append(out, p)
		}
	}
	return out
}

// from is findFrom without the masked hits.
func (s tagScanner) from(tag string, start int) int {
	for p := findFrom(s.data, tag, start); p >= 0; p = findFrom(s.data, tag, p+1) {
		if !s.masked(p) {
			return p
		}
	}
	return -1
}

// readChunkAt decodes the chunk whose length field starts at off.
func readChunkAt(data []byte, off int) (Chunk, error) {
	if off < 0 || off+8 > len(data) {
		return Chunk{}, fmt.Errorf("chunk header at 0x%X: %w", off, ErrLengthMismatch)
	}
	var h chunkHeader
	if _, err := bst.Read(bytes.NewReader(data[off:off+8]), bst.BigEndian, &h); err != nil {
		return Chunk{}, fmt.Errorf("chunk header at 0x%X: %w", off, err)
	}
	end := off + 8 + int(h.Length) + 4
	if end > len(data) || end < off {
		return Chunk{}, fmt.Errorf("chunk %q at 0x%X overruns input: %w", h.Type, off, ErrLengthMismatch)
	}
	c := Chunk{
		Offset: off,
		Length: h.Length,
		Data:   data[off+8 : end-4],
		CRC:    binary.BigEndian.Uint32(data[end-4 : end]),
	}
	copy(c.Type[:], h.Type)
	return c, nil
}

// parseChunks decodes data as a back-to-back chunk sequence. It reports false
// unless every byte is consumed by well-formed chunk headers.
func parseChunks(data []byte, base int) ([]Chunk, bool) {
	var out []Chunk
	for off := 0; off < len(data); {
		c, err := readChunkAt(data, off)
		if err != nil || !isChunkTypeName(c.Type[:]) {
			return nil, false
		}
		c.Offset += base
		out = append(out, c)
		off += 12 + len(c.Data)
	}
	return out, true
}

// isChunkTypeName reports whether b is four ASCII letters.
func isChunkTypeName(b []byte) bool {
	if len(b) != 4 {
		return false
	}
	for _, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
