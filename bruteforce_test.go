package pngrepair

import (
	"bytes"
	"context"
	"testing"
)

func hasCandidate(cs []Candidate, want Candidate) bool {
	for _, c := range cs {
		if c == want {
			return true
		}
	}
	return false
}

func TestCandidatesSingleRowRGB(t *testing.T) {
	cs := Candidates(1 + 3*4)
	want := Candidate{Width: 4, Height: 1, BitDepth: 8, Channels: 3}
	if !hasCandidate(cs, want) {
		t.Fatalf("%v missing from %v", want, cs)
	}
	for _, c := range cs {
		if c.Width <= 0 || c.Height <= 0 {
			t.Fatalf("degenerate candidate %v", c)
		}
		bpp := c.BitDepth / 8 * c.Channels
		if (1+c.Width*bpp)*c.Height != 13 {
			t.Fatalf("candidate %v does not cover the stream", c)
		}
	}
}

func TestBruteForceFindsGeometry(t *testing.T) {
	const w, h, ch = 5, 3, 4
	raw := sampleRaw(w * h * ch)
	stream, err := Filter(raw, w, h, ch, 8, FilterPaeth)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}

	decoded, err := BruteForce(context.Background(), stream)
	if err != nil {
		t.Fatalf("BruteForce: %v", err)
	}
	want := Candidate{Width: w, Height: h, BitDepth: 8, Channels: ch}
	for _, d := range decoded {
		if d.Candidate == want {
			if !bytes.Equal(d.Pixels, raw) {
				t.Fatalf("pixels mismatch for %v", want)
			}
			return
		}
	}
	t.Fatalf("%v not decoded", want)
}

func TestCandidateFileName(t *testing.T) {
	c := Candidate{Width: 4, Height: 1, BitDepth: 8, Channels: 3}
	if got := c.FileName(); got != "test(4x1)_8bits_3channel.png" {
		t.Fatalf("name=%s", got)
	}
}
