package pngrepair

import (
	"bytes"
)

// pngFeatures are the markers whose total absence means the input is not a
// damaged PNG but something else entirely.
var pngFeatures = []string{"PNG", typeIHDR, typeIDAT, typeIEND}

func looksLikePNG(data []byte) bool {
	for _, f := range pngFeatures {
		if bytes.Contains(data, []byte(f)) {
			return true
		}
	}
	return false
}

// checkSignature compares the first 8 bytes against the PNG magic and writes
// the canonical signature when they match or the repair is allowed.
func (r *run) checkSignature() error {
	head := r.data[:min(len(r.data), len(pngMagic))]
	if bytes.Equal(head, pngMagic) {
		r.out.Write(pngMagic)
		return nil
	}

	f := Finding{
		Stage:    StageSignature,
		Offset:   0,
		Observed: hexUpper(head),
		Expected: hexUpper(pngMagic),
		Err:      ErrBadSignature,
	}
	if !r.decide(&f) {
		r.report(f)
		return stageErr(StageSignature, 0, ErrBadSignature)
	}
	f.Action = ActionFixed
	r.report(f)
	r.out.Write(pngMagic)
	return nil
}
