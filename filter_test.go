package pngrepair

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"math"
	"testing"
)

func sampleRaw(n int) []byte {
	raw := make([]byte, n)
	for i := range raw {
		raw[i] = byte(i*37 + (i*i)%11)
	}
	return raw
}

func TestFilterRoundTrip(t *testing.T) {
	for _, ft := range []FilterType{FilterNone, FilterSub, FilterUp, FilterAverage, FilterPaeth} {
		for _, ch := range []int{1, 3, 4} {
			for _, w := range []int{1, 2, 5, 7} {
				const h = 4
				raw := sampleRaw(w * ch * h)
				filtered, err := Filter(raw, w, h, ch, 8, ft)
				if err != nil {
					t.Fatalf("Filter %s ch=%d w=%d: %v", ft, ch, w, err)
				}
				if len(filtered) != (w*ch+1)*h {
					t.Fatalf("filtered len=%d", len(filtered))
				}
				got, err := Defilter(filtered, w, h, ch, 8)
				if err != nil {
					t.Fatalf("Defilter %s ch=%d w=%d: %v", ft, ch, w, err)
				}
				if !bytes.Equal(got, raw) {
					t.Fatalf("%s ch=%d w=%d: got=% X want=% X", ft, ch, w, got, raw)
				}
			}
		}
	}
}

func TestFilterRoundTripOtherDepths(t *testing.T) {
	for _, tc := range []struct{ w, ch, bits int }{
		{3, 4, 16},
		{5, 1, 16},
		{9, 1, 1},
		{5, 1, 2},
		{3, 1, 4},
	} {
		rowBytes, _, _ := rowGeometry(tc.w, tc.ch, tc.bits)
		raw := sampleRaw(rowBytes * 3)
		for _, ft := range []FilterType{FilterSub, FilterAverage, FilterPaeth} {
			filtered, err := Filter(raw, tc.w, 3, tc.ch, tc.bits, ft)
			if err != nil {
				t.Fatalf("Filter %+v: %v", tc, err)
			}
			got, err := Defilter(filtered, tc.w, 3, tc.ch, tc.bits)
			if err != nil || !bytes.Equal(got, raw) {
				t.Fatalf("%+v %s: err=%v", tc, ft, err)
			}
		}
	}
}

func TestDefilterKnownRows(t *testing.T) {
	// 2 pixels, 1 channel: a Sub row followed by an Up row.
	data := []byte{1, 10, 5, 2, 1, 1}
	got, err := Defilter(data, 2, 2, 1, 8)
	if err != nil {
		t.Fatalf("Defilter: %v", err)
	}
	if want := []byte{10, 15, 11, 16}; !bytes.Equal(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}

	// Sub wraps modulo 256.
	got, _ = Defilter([]byte{1, 200, 100}, 2, 1, 1, 8)
	if got[1] != 44 {
		t.Fatalf("wrap=%d", got[1])
	}
}

func TestDefilterAverageAndPaethRows(t *testing.T) {
	// 3 pixels, 1 channel: None, then Average, then Paeth.
	data := []byte{
		0, 10, 20, 30,
		3, 5, 6, 7,
		4, 1, 2, 3,
	}
	got, err := Defilter(data, 3, 3, 1, 8)
	if err != nil {
		t.Fatalf("Defilter: %v", err)
	}
	want := []byte{
		10, 20, 30,
		10, 21, 32,
		11, 23, 35,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestDefilterMatchesImagePNG(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 13, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 13; x++ {
			gray.Pix[y*gray.Stride+x] = byte(x*x + y*7 + (x*y)%13)
		}
	}
	rgba := image.NewNRGBA(image.Rect(0, 0, 6, 5))
	for i := range rgba.Pix {
		rgba.Pix[i] = byte(i*i/3 + i%5)
	}

	for _, tc := range []struct {
		name string
		img  image.Image
		pix  []byte
	}{
		{"gray", gray, gray.Pix},
		{"rgba", rgba, rgba.Pix},
	} {
		var buf bytes.Buffer
		if err := png.Encode(&buf, tc.img); err != nil {
			t.Fatalf("%s: Encode: %v", tc.name, err)
		}
		res := repairWith(t, Options{Policy: AutoFix}, buf.Bytes())
		if res.Changed(buf.Bytes()) {
			t.Fatalf("%s: valid image changed, findings=%v", tc.name, res.Findings)
		}
		got, err := res.Pixels()
		if err != nil {
			t.Fatalf("%s: Pixels: %v", tc.name, err)
		}
		if !bytes.Equal(got, tc.pix) {
			t.Fatalf("%s: got=% X\nwant=% X", tc.name, got, tc.pix)
		}

		z, _ := Inflate(res.IDAT)
		stride := len(z) / tc.img.Bounds().Dy()
		used := map[FilterType]bool{}
		for y := 0; y < len(z); y += stride {
			used[FilterType(z[y])] = true
		}
		t.Logf("%s: filters %v", tc.name, used)
	}
}

func TestRowGeometry(t *testing.T) {
	for _, tc := range []struct{ w, ch, bits, rowBytes, bpp int }{
		{5, 3, 8, 15, 3},
		{5, 4, 16, 40, 8},
		{9, 1, 1, 2, 1},
		{3, 1, 4, 2, 1},
		{5, 3, 4, 8, 1},
	} {
		rowBytes, bpp, err := rowGeometry(tc.w, tc.ch, tc.bits)
		if err != nil || rowBytes != tc.rowBytes || bpp != tc.bpp {
			t.Fatalf("%+v: rowBytes=%d bpp=%d err=%v", tc, rowBytes, bpp, err)
		}
	}
	if _, _, err := rowGeometry(math.MaxInt, 4, 16); !errors.Is(err, ErrShortPixelData) {
		t.Fatalf("err=%v", err)
	}
}

func TestDefilterHugeGeometry(t *testing.T) {
	data := make([]byte, 64)
	const huge = 0x7FFFFFFF
	if _, err := Defilter(data, huge, huge, 4, 16); !errors.Is(err, ErrShortPixelData) {
		t.Fatalf("Defilter err=%v", err)
	}
	if _, err := Defilter(data, 1, math.MaxInt, 1, 8); !errors.Is(err, ErrShortPixelData) {
		t.Fatalf("Defilter tall err=%v", err)
	}
	if _, err := Filter(data, huge, huge, 4, 16, FilterSub); !errors.Is(err, ErrShortPixelData) {
		t.Fatalf("Filter err=%v", err)
	}
	if _, err := ToImage(data, huge, huge, 4, 16); !errors.Is(err, ErrShortPixelData) {
		t.Fatalf("ToImage err=%v", err)
	}
}

func TestDefilterBadFilterByte(t *testing.T) {
	data := []byte{0, 1, 2, 7, 3, 4}
	_, err := Defilter(data, 2, 2, 1, 8)
	var se *StageError
	if !errors.Is(err, ErrUnsupportedFilter) || !errors.As(err, &se) || se.Offset != 3 {
		t.Fatalf("err=%v", err)
	}
}

func TestDefilterShortData(t *testing.T) {
	if _, err := Defilter([]byte{0, 1, 2}, 2, 2, 1, 8); !errors.Is(err, ErrShortPixelData) {
		t.Fatalf("err=%v", err)
	}
}

func TestPaethTies(t *testing.T) {
	for _, tc := range []struct{ a, b, c, want uint8 }{
		{1, 1, 1, 1},
		{10, 20, 10, 20},
		{20, 10, 10, 20},
		{5, 5, 0, 5},
		{0, 0, 255, 0},
		{100, 50, 200, 50},
	} {
		if got := paeth(tc.a, tc.b, tc.c); got != tc.want {
			t.Fatalf("paeth(%d,%d,%d)=%d want=%d", tc.a, tc.b, tc.c, got, tc.want)
		}
	}
}
