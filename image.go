package pngrepair

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// ToImage wraps raw pixel bytes, as returned by Defilter, in an image.
// Indexed data is shown as grayscale since the palette is not consulted.
func ToImage(pix []byte, width, height, channels, bitDepth int) (image.Image, error) {
	rowBytes, _, err := rowGeometry(width, channels, bitDepth)
	if err != nil {
		return nil, err
	}
	if err := checkRows(pix, height, rowBytes); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, width, height)

	switch {
	case bitDepth < 8:
		if channels != 1 {
			return nil, fmt.Errorf("%d bit samples with %d channels", bitDepth, channels)
		}
		img := image.NewGray(rect)
		maxv := 1<<bitDepth - 1
		perByte := 8 / bitDepth
		for y := 0; y < height; y++ {
			row := pix[y*rowBytes:]
			for x := 0; x < width; x++ {
				shift := uint(8 - bitDepth*(x%perByte+1))
				v := int(row[x/perByte]>>shift) & maxv
				img.Pix[y*img.Stride+x] = uint8(v * 255 / maxv)
			}
		}
		return img, nil

	case bitDepth == 8:
		if channels == 1 {
			return &image.Gray{Pix: pix[:rowBytes*height], Stride: rowBytes, Rect: rect}, nil
		}
		img := image.NewNRGBA(rect)
		for i := 0; i < width*height; i++ {
			s := pix[i*channels : (i+1)*channels]
			d := img.Pix[i*4 : i*4+4]
			switch channels {
			case 2:
				d[0], d[1], d[2], d[3] = s[0], s[0], s[0], s[1]
			case 3:
				d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 0xff
			case 4:
				copy(d, s)
			}
		}
		return img, nil

	case bitDepth == 16:
		if channels == 1 {
			return &image.Gray16{Pix: pix[:rowBytes*height], Stride: rowBytes, Rect: rect}, nil
		}
		img := image.NewNRGBA64(rect)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				s := pix[y*rowBytes+x*channels*2:]
				sample := func(n int) uint16 { return uint16(s[2*n])<<8 | uint16(s[2*n+1]) }
				var c color.NRGBA64
				switch channels {
				case 2:
					c = color.NRGBA64{R: sample(0), G: sample(0), B: sample(0), A: sample(1)}
				case 3:
					c = color.NRGBA64{R: sample(0), G: sample(1), B: sample(2), A: 0xffff}
				case 4:
					c = color.NRGBA64{R: sample(0), G: sample(1), B: sample(2), A: sample(3)}
				}
				img.SetNRGBA64(x, y, c)
			}
		}
		return img, nil
	}
	return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
}

// SaveImage encodes img to fp, choosing the format from its extension.
func SaveImage(fp string, img image.Image) error {
	return imaging.Save(img, fp)
}

// ExportCandidates writes every decoded candidate to dir. Images larger than
// maxSide on either axis are shrunk to fit; 0 keeps the original size.
func ExportCandidates(dir string, decoded []Decoded, maxSide uint) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for _, d := range decoded {
		img, err := ToImage(d.Pixels, d.Width, d.Height, d.Channels, d.BitDepth)
		if err != nil {
			return paths, fmt.Errorf("%s: %w", d.Candidate, err)
		}
		if maxSide > 0 && (uint(d.Width) > maxSide || uint(d.Height) > maxSide) {
			img = resize.Thumbnail(maxSide, maxSide, img, resize.NearestNeighbor)
		}
		fp := filepath.Join(dir, d.FileName())
		if err := SaveImage(fp, img); err != nil {
			return paths, err
		}
		paths = append(paths, fp)
	}
	return paths, nil
}
