package pipeline

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

var errEmptyImage = errors.New("image has no pixels")

// Preprocess turns img into a normalized [1, 3, size, size] tensor. The image
// is stretched to a square, aspect ratio is not preserved. Normalized values
// are not clamped.
func Preprocess(img image.Image, size int) (*ProcessedImage, error) {
	if size == 0 {
		size = DefaultSize
	}
	if size < 0 {
		return nil, fmt.Errorf("invalid processing size %d", size)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, &InputError{Code: CodeInvalidImage, Err: errEmptyImage}
	}

	b := img.Bounds()
	original := image.Pt(b.Dx(), b.Dy())

	rgb := toRGB(img)
	resized := imaging.Resize(rgb, size, size, imaging.Linear)

	plane := size * size
	out := make([]float32, 3*plane)
	rBase := 0
	gBase := plane
	bBase := 2 * plane

	for y := range size {
		row := resized.Pix[y*resized.Stride:]
		for x := range size {
			px := row[x*4 : x*4+3]
			out[rBase] = (float32(px[0])/255.0 - ImageNetMean[0]) / ImageNetStd[0]
			out[gBase] = (float32(px[1])/255.0 - ImageNetMean[1]) / ImageNetStd[1]
			out[bBase] = (float32(px[2])/255.0 - ImageNetMean[2]) / ImageNetStd[2]

			rBase++
			gBase++
			bBase++
		}
	}

	t, err := NewTensor([]int64{1, 3, int64(size), int64(size)}, out)
	if err != nil {
		return nil, err
	}
	return &ProcessedImage{Tensor: t, OriginalSize: original}, nil
}

// toRGB returns a copy of img as opaque NRGBA anchored at the origin. Alpha
// is dropped without blending, grayscale and palette images are expanded.
func toRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()*4], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	} else {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
