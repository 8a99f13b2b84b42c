package onnx

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/krau/birefnet-go/pipeline"
	ort "github.com/yalue/onnxruntime_go"
)

// Backend reports which execution providers the loaded ONNX Runtime build
// supports. If the runtime cannot be initialized only the CPU is available.
type Backend struct {
	LibPath string

	mu     sync.Mutex
	probed map[pipeline.Device]bool
}

func NewBackend(libPath string) *Backend {
	return &Backend{LibPath: libPath}
}

func (b *Backend) Available(d pipeline.Device) bool {
	if d == pipeline.DeviceCPU {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ok, seen := b.probed[d]; seen {
		return ok
	}
	if b.probed == nil {
		b.probed = make(map[pipeline.Device]bool)
	}
	b.probed[d] = b.probe(d)
	return b.probed[d]
}

func (b *Backend) probe(d pipeline.Device) bool {
	if err := Init(b.LibPath); err != nil {
		slog.Debug("ONNX Runtime unavailable, falling back to CPU", slog.String("error", err.Error()))
		return false
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return false
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", slog.String("error", err.Error()))
		}
	}()
	if err := appendProvider(opts, d); err != nil {
		slog.Debug("Execution provider unavailable", slog.String("device", d.String()), slog.String("error", err.Error()))
		return false
	}
	return true
}

// appendProvider registers the execution provider for d. CUDA runs matmuls
// in TF32.
func appendProvider(opts *ort.SessionOptions, d pipeline.Device) error {
	switch d {
	case pipeline.DeviceCPU:
		return nil
	case pipeline.DeviceGPU:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return fmt.Errorf("failed to create CUDA provider options: %w", err)
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{
			"device_id": "0",
			"use_tf32":  "1",
		}); err != nil {
			return fmt.Errorf("failed to configure CUDA provider: %w", err)
		}
		return opts.AppendExecutionProviderCUDA(cuda)
	case pipeline.DeviceAccelerator:
		return opts.AppendExecutionProviderCoreML(0)
	default:
		return fmt.Errorf("unsupported device %q", d)
	}
}
