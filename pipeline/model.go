package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Segmenter is a loaded segmentation network. Forward returns the
// refinement stages in order of increasing fidelity.
type Segmenter interface {
	Forward(input *Tensor) ([]*Tensor, error)
}

// Loader constructs a Segmenter bound to a device, ready for inference.
type Loader interface {
	Load(ctx context.Context, d Device) (Segmenter, error)
}

type LoaderFunc func(ctx context.Context, d Device) (Segmenter, error)

func (f LoaderFunc) Load(ctx context.Context, d Device) (Segmenter, error) { return f(ctx, d) }

// Model is a segmentation network held in inference mode on Device.
type Model struct {
	Segmenter
	Device Device
}

// ModelCache holds at most one Model for the process. The first successful
// Get fills the slot and every later Get returns that same Model, even when
// a different device is asked for.
type ModelCache struct {
	loader  Loader
	backend Backend

	mu    sync.Mutex
	model *Model
}

func NewModelCache(loader Loader, backend Backend) *ModelCache {
	return &ModelCache{loader: loader, backend: backend}
}

// Get returns the cached model, loading it on first use. An empty device is
// resolved with SelectDevice. Failed loads are not cached.
func (c *ModelCache) Get(ctx context.Context, d Device) (*Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model != nil {
		if d != "" && d != c.model.Device {
			slog.Warn("Model already loaded on another device, reusing it",
				slog.String("requested", d.String()),
				slog.String("loaded", c.model.Device.String()))
		}
		return c.model, nil
	}

	if d == "" {
		d = SelectDevice(c.backend)
	}
	if c.loader == nil {
		return nil, &LoadError{Err: errNoLoader}
	}

	start := time.Now()
	seg, err := c.loader.Load(ctx, d)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	c.model = &Model{Segmenter: seg, Device: d}
	slog.Debug("Model loaded", slog.String("device", d.String()), slog.Duration("took", time.Since(start)))
	return c.model, nil
}

func (c *ModelCache) loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model != nil
}

// Close releases the cached model if it holds runtime resources.
func (c *ModelCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model == nil {
		return nil
	}
	closer, ok := c.model.Segmenter.(io.Closer)
	c.model = nil
	if !ok {
		return nil
	}
	return closer.Close()
}
