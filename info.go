package pngrepair

import (
	"bytes"
	"fmt"
	"strings"
)

var (
	compressionNames = map[uint8]string{0: "Deflate"}
	filterNames      = map[uint8]string{0: "Adaptive"}
)

// Info is a summary of a PNG's header and text content.
type Info struct {
	Header IHDR
	Text   map[string][][]byte
}

// Describe reads the header and text chunks of data without repairing
// anything. The IHDR is located by its tag, so a damaged signature does not
// prevent it.
func Describe(data []byte) (*Info, error) {
	pos := bytes.Index(data, []byte(typeIHDR))
	if pos < 4 || pos+4+ihdrLength > len(data) {
		return nil, stageErr(StageIHDR, max(pos, 0), ErrMissingCriticalChunk)
	}
	h, err := ParseIHDR(data[pos+4 : pos+4+ihdrLength])
	if err != nil {
		return nil, err
	}
	info := &Info{Header: h}
	if bytes.HasPrefix(data, pngMagic) {
		if info.Text, err = TextChunks(data); err == nil {
			return info, nil
		}
	}
	info.Text = scanTextChunks(data)
	return info, nil
}

// scanTextChunks locates text chunks by their tags alone, for inputs the
// chunk reader rejects.
func scanTextChunks(data []byte) map[string][][]byte {
	ret := map[string][][]byte{}
	for _, ct := range textChunkTypes {
		for _, p := range FindAll(data, ct) {
			c, err := readChunkAt(data, p-4)
			if err != nil {
				continue
			}
			ret[ct] = append(ret[ct], c.Data)
		}
	}
	return ret
}

func (i *Info) String() string {
	h := i.Header
	var b strings.Builder
	fmt.Fprintf(&b, "Image Width: %d\n", h.Width)
	fmt.Fprintf(&b, "Image Height: %d\n", h.Height)
	fmt.Fprintf(&b, "Bit Depth: %d\n", h.BitDepth)
	fmt.Fprintf(&b, "Channel: %d\n", h.Channels())
	fmt.Fprintf(&b, "ColorType: %s\n", h.ColorTypeName())
	fmt.Fprintf(&b, "Interlace: %s\n", h.InterlaceName())
	fmt.Fprintf(&b, "Filter method: %s\n", nameOr(filterNames, h.FilterMethod))
	fmt.Fprintf(&b, "Compression method: %s\n", nameOr(compressionNames, h.Compression))
	b.WriteString("Content:\n")
	for _, ct := range textChunkTypes {
		for _, d := range i.Text[ct] {
			if strings.TrimSpace(string(d)) == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %q\n", ct, d)
		}
	}
	return b.String()
}

func nameOr(names map[uint8]string, v uint8) string {
	if n, ok := names[v]; ok {
		return n
	}
	return fmt.Sprintf("unknown (%d)", v)
}
