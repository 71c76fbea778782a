package pngrepair

////////////////////////////////////////////////////////////////////////////////

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/sabhiram/pngr"
)

////////////////////////////////////////////////////////////////////////////////

const NULL_SEPERATOR byte = 0

// textChunkTypes are the ancillary chunks whose contents Describe reports.
var textChunkTypes = []string{"eXIf", "iTXt", "tEXt", "zTXt"}

////////////////////////////////////////////////////////////////////////////////

// Returns nil if sub is contained in s, an error otherwise.
func errIfNotSubStr(s, sub []byte) error {
	if len(sub) > len(s) {
		return errors.New("substring larger than parent")
	}
	for i, d := range sub {
		if d != s[i] {
			return ErrBadSignature
		}
	}
	return nil
}

// BuildChunk encodes the specified chunk type and data into a png chunk. The
// type must be four ASCII letters.
func BuildChunk(ct string, data []byte) ([]byte, error) {
	// -------------------------------------------------------------------
	// |  Length    |  Chunk Type |       ... Data ...       |    CRC    |
	// -------------------------------------------------------------------
	// |  4 bytes   |   4 bytes   |     `Length` bytes       |  4 bytes  |
	//              |-------------- CRC32'd -----------------|
	if !isChunkTypeName([]byte(ct)) {
		return nil, fmt.Errorf("invalid chunk type (%s)", ct)
	}

	szbs := make([]byte, 4)
	binary.BigEndian.PutUint32(szbs, uint32(len(data)))

	bb := append([]byte(ct), data...)
	bb = append(bb, crcBytes(Checksum([]byte(ct), data))...)

	// Prepend the length to the payload.
	return append(szbs, bb...), nil
}

// AncillaryName forces the chunk naming convention for a private ancillary
// chunk: lowercase first letter, uppercase rest.
func AncillaryName(name string) (string, error) {
	if !isChunkTypeName([]byte(name)) {
		return "", fmt.Errorf("invalid chunk type (%s)", name)
	}
	return strings.ToLower(name[:1]) + strings.ToUpper(name[1:]), nil
}

// RandomAncillaryName picks four distinct lowercase letters.
func RandomAncillaryName() string {
	perm := rand.Perm(26)
	name := make([]byte, 4)
	for i := range name {
		name[i] = 'a' + byte(perm[i])
	}
	return string(name)
}

////////////////////////////////////////////////////////////////////////////////

// Injection is a chunk spliced into a PNG stream.
type Injection struct {
	Name   string
	Chunk  []byte
	Offset int
	Output []byte
}

// ihdrEnd verifies that data starts with the PNG magic and returns the offset
// just past the IHDR chunk.
func ihdrEnd(data []byte) (int, error) {
	if err := errIfNotSubStr(data, pngMagic); err != nil {
		return 0, err
	}
	pos := bytes.Index(data, []byte(typeIHDR))
	if pos < 4 {
		return 0, ErrMissingCriticalChunk
	}
	// Extract header length, the header type should always be the first, we
	// inject our chunk right after this.
	sz := int(binary.BigEndian.Uint32(data[pos-4 : pos]))
	if end := pos + 4 + sz + 4; sz <= ihdrLength && end <= len(data) {
		return end, nil
	}
	if end := pos + 4 + ihdrLength + 4; end <= len(data) {
		return end, nil
	}
	return 0, ErrMissingCriticalChunk
}

func splice(data []byte, off int, chunk []byte) []byte {
	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:off]...)
	out = append(out, chunk...)
	return append(out, data[off:]...)
}

// InjectAncillary wraps payload in an ancillary chunk and places it right
// after IHDR. An empty name picks a random one.
func InjectAncillary(data []byte, name string, payload []byte) (*Injection, error) {
	if name == "" {
		name = RandomAncillaryName()
	}
	name, err := AncillaryName(name)
	if err != nil {
		return nil, err
	}
	off, err := ihdrEnd(data)
	if err != nil {
		return nil, err
	}
	chunk, err := BuildChunk(name, payload)
	if err != nil {
		return nil, err
	}
	return &Injection{Name: name, Chunk: chunk, Offset: off, Output: splice(data, off, chunk)}, nil
}

// InjectCritical compresses payload into an extra IDAT chunk placed right
// before IEND, or at the end of the stream when IEND is missing.
func InjectCritical(data []byte, payload []byte) (*Injection, error) {
	if err := errIfNotSubStr(data, pngMagic); err != nil {
		return nil, err
	}
	z, err := Deflate(payload)
	if err != nil {
		return nil, err
	}
	chunk, err := BuildChunk(typeIDAT, z)
	if err != nil {
		return nil, err
	}
	off := len(data)
	if pos := bytes.LastIndex(data, []byte(typeIEND)); pos >= 4 {
		off = pos - 4
	}
	return &Injection{Name: typeIDAT, Chunk: chunk, Offset: off, Output: splice(data, off, chunk)}, nil
}

////////////////////////////////////////////////////////////////////////////////

// EmbedText encodes the specified key-value pair into a `tEXt` chunk placed
// after IHDR. The interface `v` is serialized to known types and then to
// JSON if all else fails.
func EmbedText(data []byte, k string, v interface{}) ([]byte, error) {
	val, err := toBytes(v)
	if err != nil {
		return nil, err
	}
	chunk, err := BuildChunk(`tEXt`, formatTEXTChunk(val, k))
	if err != nil {
		return nil, err
	}
	off, err := ihdrEnd(data)
	if err != nil {
		return nil, err
	}
	return splice(data, off, chunk), nil
}

func toBytes(v interface{}) ([]byte, error) {
	switch vt := v.(type) {
	case int, uint:
		return []byte(fmt.Sprintf("%d", vt)), nil
	case float32, float64:
		return []byte(fmt.Sprintf("%f", vt)), nil
	case string:
		return []byte(vt), nil
	case []byte:
		return vt, nil
	}
	return json.Marshal(v)
}

func formatTEXTChunk(text []byte, keyword string) []byte {
	// +----------+----------------+---------+
	// | Keyword  | Null separator |  Text   |
	// +----------+----------------+---------+
	// | 1–79     | 1 byte         | n bytes |
	// | bytes    |                |         |
	// +----------+----------------+---------+
	tEXtChunk := append([]byte(keyword), NULL_SEPERATOR)
	return append(tEXtChunk, text...)
}

////////////////////////////////////////////////////////////////////////////////

// TextChunks returns the raw data of every eXIf, iTXt, tEXt and zTXt chunk
// keyed by chunk type, in file order.
func TextChunks(data []byte) (map[string][][]byte, error) {
	ret := map[string][][]byte{}
	for _, ct := range textChunkTypes {
		r, err := pngr.NewReader(data, &pngr.ReaderOptions{
			IncludedChunkTypes: []string{ct},
		})
		if err != nil {
			return nil, err
		}

		c, err := r.Next()
		for ; err == nil; c, err = r.Next() {
			ret[ct] = append(ret[ct], c.Data)
		}
		if err != io.EOF {
			return ret, fmt.Errorf("%s: %w", ct, err)
		}
	}
	return ret, nil
}
