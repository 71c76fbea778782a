package pngrepair

import (
	"bytes"
	"context"
	"testing"
)

func TestBuildChunk(t *testing.T) {
	c, err := BuildChunk(typeIEND, nil)
	if err != nil || !bytes.Equal(c, iendChunk) {
		t.Fatalf("chunk=% X err=%v", c, err)
	}
	if _, err := BuildChunk("ab1d", nil); err == nil {
		t.Fatalf("expected invalid chunk type")
	}
}

func TestAncillaryName(t *testing.T) {
	for in, want := range map[string]string{"abcd": "aBCD", "ZzZz": "zZZZ", "flag": "fLAG"} {
		if got, err := AncillaryName(in); err != nil || got != want {
			t.Fatalf("AncillaryName(%s)=%s err=%v", in, got, err)
		}
	}
	if _, err := AncillaryName("abc"); err == nil {
		t.Fatalf("expected error for short name")
	}

	name := RandomAncillaryName()
	seen := map[rune]bool{}
	for _, r := range name {
		if r < 'a' || r > 'z' || seen[r] {
			t.Fatalf("name=%s", name)
		}
		seen[r] = true
	}
	if len(name) != 4 {
		t.Fatalf("name=%s", name)
	}
}

func TestInjectAncillary(t *testing.T) {
	img := buildPNG(t, 6, 4, 2, 64)
	inj, err := InjectAncillary(img.png, "", []byte("secret payload"))
	if err != nil {
		t.Fatalf("InjectAncillary: %v", err)
	}
	if inj.Offset != 8+12+ihdrLength {
		t.Fatalf("offset=%d", inj.Offset)
	}
	if inj.Name[0] < 'a' || inj.Name[0] > 'z' {
		t.Fatalf("name=%s", inj.Name)
	}
	c, err := readChunkAt(inj.Output, inj.Offset)
	if err != nil || string(c.Type[:]) != inj.Name || string(c.Data) != "secret payload" || !c.CRCIsValid() {
		t.Fatalf("chunk=%v err=%v", c, err)
	}

	res := repairWith(t, Options{Policy: AutoFix}, inj.Output)
	if res.Changed(inj.Output) || len(res.Findings) != 0 {
		t.Fatalf("findings=%v", res.Findings)
	}
}

func TestInjectCritical(t *testing.T) {
	img := buildPNG(t, 6, 4, 2, 64)
	inj, err := InjectCritical(img.png, []byte("hidden in image data"))
	if err != nil {
		t.Fatalf("InjectCritical: %v", err)
	}
	if inj.Offset != len(img.png)-len(iendChunk) || !bytes.HasSuffix(inj.Output, iendChunk) {
		t.Fatalf("offset=%d", inj.Offset)
	}

	res := repairWith(t, Options{Policy: AutoFix}, inj.Output)
	if res.Changed(inj.Output) || len(res.Findings) != 0 {
		t.Fatalf("findings=%v", res.Findings)
	}
	last := res.IDAT[len(res.IDAT)-1]
	got, err := Inflate([][]byte{last})
	if err != nil || string(got) != "hidden in image data" {
		t.Fatalf("payload=%q err=%v", got, err)
	}

	if _, err := InjectCritical([]byte("GIF89a"), nil); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestEmbedTextAndExtract(t *testing.T) {
	img := buildPNG(t, 3, 3, 0, 64)
	out, err := EmbedText(img.png, "Comment", "hello world")
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	out, err = EmbedText(out, "Count", 42)
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}

	text, err := TextChunks(out)
	if err != nil {
		t.Fatalf("TextChunks: %v", err)
	}
	got := text["tEXt"]
	if len(got) != 2 || string(got[0]) != "Count\x0042" || string(got[1]) != "Comment\x00hello world" {
		t.Fatalf("tEXt=%q", got)
	}

	res, err := New(Options{}).Repair(context.Background(), out)
	if err != nil || res.Changed(out) {
		t.Fatalf("err=%v findings=%v", err, res.Findings)
	}
}
