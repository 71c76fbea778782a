package pngrepair

import (
	"context"
	"errors"
	"fmt"
)

var (
	bruteForceDepths   = []int{8, 16}
	bruteForceChannels = []int{1, 2, 3, 4}
)

// Candidate is one width/height/format guess for a bare image data stream.
type Candidate struct {
	Width    int
	Height   int
	BitDepth int
	Channels int
}

func (c Candidate) String() string {
	return fmt.Sprintf("%dx%d %dbits %dchannel", c.Width, c.Height, c.BitDepth, c.Channels)
}

// FileName is the name candidates are exported under.
func (c Candidate) FileName() string {
	return fmt.Sprintf("test(%dx%d)_%dbits_%dchannel.png", c.Width, c.Height, c.BitDepth, c.Channels)
}

// Candidates lists every geometry consistent with a decompressed stream of
// length bytes: for each divisor i of length, a row of i bytes is one filter
// byte plus whole pixels, and there are length/i rows (or the other way
// round).
func Candidates(length int) []Candidate {
	var out []Candidate
	seen := map[Candidate]bool{}
	add := func(c Candidate) {
		if c.Width > 0 && c.Height > 0 && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, bits := range bruteForceDepths {
		for _, ch := range bruteForceChannels {
			bpp := bits / 8 * ch
			for i := 1; i <= length; i++ {
				if length%i != 0 {
					continue
				}
				if (i-1)%bpp == 0 {
					add(Candidate{Width: (i - 1) / bpp, Height: length / i, BitDepth: bits, Channels: ch})
				}
				if j := length / i; (j-1)%bpp == 0 {
					add(Candidate{Width: (j - 1) / bpp, Height: i, BitDepth: bits, Channels: ch})
				}
			}
		}
	}
	return out
}

// Decoded is a candidate together with its defiltered pixels.
type Decoded struct {
	Candidate
	Pixels []byte
}

// BruteForce defilters stream under every candidate geometry and returns
// those whose filter bytes are all valid. Judging which one is the real image
// is left to the caller.
func BruteForce(ctx context.Context, stream []byte) ([]Decoded, error) {
	var out []Decoded
	for _, c := range Candidates(len(stream)) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		pix, err := Defilter(stream, c.Width, c.Height, c.Channels, c.BitDepth)
		if errors.Is(err, ErrUnsupportedFilter) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("%s: %w", c, err)
		}
		out = append(out, Decoded{Candidate: c, Pixels: pix})
	}
	return out, nil
}
