// Package pipeline removes image backgrounds with a segmentation model:
// device selection, model caching, preprocessing, inference and alpha
// compositing.
package pipeline

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"
)

// Pipeline sequences the stages for one image at a time. It is safe for
// concurrent use; the model is loaded once and shared.
type Pipeline struct {
	cache    *ModelCache
	backend  Backend
	override Device

	deviceOnce sync.Once
	device     Device
}

type Option func(*Pipeline)

// WithDevice bypasses automatic device selection.
func WithDevice(d Device) Option {
	return func(p *Pipeline) { p.override = d }
}

func New(loader Loader, backend Backend, opts ...Option) *Pipeline {
	p := &Pipeline{cache: NewModelCache(loader, backend), backend: backend}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Device returns the device chosen for this pipeline.
func (p *Pipeline) Device() Device {
	p.deviceOnce.Do(func() {
		if p.override != "" {
			p.device = p.override
			return
		}
		p.device = SelectDevice(p.backend)
	})
	return p.device
}

// Model returns the cached model, loading it if necessary.
func (p *Pipeline) Model(ctx context.Context) (*Model, error) {
	return p.cache.Get(ctx, p.Device())
}

// ProcessImage returns img with its background made transparent. The result
// always has the dimensions of img. A size of 0 means DefaultSize.
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image, size int) (*image.NRGBA, error) {
	start := time.Now()
	device := p.Device()
	model, err := p.cache.Get(ctx, device)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	processed, err := Preprocess(img, size)
	if err != nil {
		return nil, err
	}
	mask, err := Infer(model, processed, model.Device)
	if err != nil {
		return nil, err
	}
	maskImg, err := MaskToImage(mask, processed.OriginalSize.X, processed.OriginalSize.Y)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	out, err := Composite(img, maskImg)
	if err != nil {
		return nil, err
	}

	slog.Debug("Image processed",
		slog.Int("width", processed.OriginalSize.X),
		slog.Int("height", processed.OriginalSize.Y),
		slog.Int("size", int(processed.Tensor.Shape[2])),
		slog.Duration("took", time.Since(start)))
	return out, nil
}

func (p *Pipeline) Close() error {
	return p.cache.Close()
}
