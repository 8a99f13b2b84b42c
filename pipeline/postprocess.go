package pipeline

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// MaskToImage quantizes a [1, 1, H, W] probability mask to 8 bits and
// resizes it to width x height with bilinear interpolation. Values are
// clamped to [0, 1] and truncated after scaling by 255.
func MaskToImage(mask *Tensor, width, height int) (*image.Gray, error) {
	if mask == nil || len(mask.Shape) != 4 || mask.Shape[0] != 1 || mask.Shape[1] != 1 {
		return nil, fmt.Errorf("mask must have shape [1 1 H W]")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	h, w := int(mask.Shape[2]), int(mask.Shape[3])
	if len(mask.Data) != h*w {
		return nil, fmt.Errorf("mask shape %v does not match %d elements", mask.Shape, len(mask.Data))
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range mask.Data {
		gray.Pix[i] = quantize(v)
	}
	if w == width && h == height {
		return gray, nil
	}

	resized := resize.Resize(uint(width), uint(height), gray, resize.Bilinear)
	if g, ok := resized.(*image.Gray); ok {
		return g, nil
	}
	out := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), resized, resized.Bounds().Min, draw.Src)
	return out, nil
}

func quantize(v float32) uint8 {
	switch {
	case math.IsNaN(float64(v)) || v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v * 255)
	}
}

// Composite returns img as RGBA with mask as its alpha channel. The mask
// must already have the dimensions of img.
func Composite(img image.Image, mask *image.Gray) (*image.NRGBA, error) {
	if img == nil || mask == nil {
		return nil, fmt.Errorf("composite needs an image and a mask")
	}
	b := img.Bounds()
	mb := mask.Bounds()
	if b.Dx() != mb.Dx() || b.Dy() != mb.Dy() {
		return nil, fmt.Errorf("mask is %dx%d, image is %dx%d", mb.Dx(), mb.Dy(), b.Dx(), b.Dy())
	}

	out := toRGB(img)
	for y := 0; y < b.Dy(); y++ {
		row := out.Pix[y*out.Stride:]
		alpha := mask.Pix[mask.PixOffset(mb.Min.X, mb.Min.Y+y):]
		for x := 0; x < b.Dx(); x++ {
			row[x*4+3] = alpha[x]
		}
	}
	return out, nil
}
