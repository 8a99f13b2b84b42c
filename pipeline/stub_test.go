package pipeline

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
)

// constSegmenter emits two stages: a coarse one filled with -logit and the
// refined one filled with logit.
type constSegmenter struct {
	logit float32
	calls atomic.Int32
	seen  []Device
}

func (s *constSegmenter) Forward(in *Tensor) ([]*Tensor, error) {
	s.calls.Add(1)
	s.seen = append(s.seen, in.Device)
	h, w := in.Shape[2], in.Shape[3]
	coarse := make([]float32, h*w)
	fine := make([]float32, h*w)
	for i := range fine {
		coarse[i] = -s.logit
		fine[i] = s.logit
	}
	return []*Tensor{
		{Shape: []int64{1, 1, h, w}, Data: coarse},
		{Shape: []int64{1, 1, h, w}, Data: fine},
	}, nil
}

// echoSegmenter returns the red channel of its input as logits.
type echoSegmenter struct{}

func (echoSegmenter) Forward(in *Tensor) ([]*Tensor, error) {
	h, w := in.Shape[2], in.Shape[3]
	out := make([]float32, h*w)
	copy(out, in.Data[:h*w])
	return []*Tensor{{Shape: []int64{1, 1, h, w}, Data: out}}, nil
}

type countingLoader struct {
	seg   Segmenter
	err   error
	calls atomic.Int32
}

func (l *countingLoader) Load(_ context.Context, _ Device) (Segmenter, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return l.seg, nil
}

type fakeBackend map[Device]bool

func (b fakeBackend) Available(d Device) bool { return b[d] }

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}
