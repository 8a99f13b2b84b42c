package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/krau/birefnet-go/hub"
	"github.com/krau/birefnet-go/pipeline"
	ort "github.com/yalue/onnxruntime_go"
)

// Loader creates ORT-backed segmenters, fetching the weights first when the
// model file is missing.
type Loader struct {
	LibPath   string
	ModelPath string
	ModelURL  string
	Threads   int
	Fetcher   *hub.Fetcher
}

func (l *Loader) Load(ctx context.Context, d pipeline.Device) (pipeline.Segmenter, error) {
	if err := l.ensureModel(ctx); err != nil {
		return nil, err
	}
	if err := Init(l.LibPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(l.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("unexpected model io (in:%d out:%d)", len(inputs), len(outputs))
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", slog.String("error", err.Error()))
		}
	}()
	if l.Threads > 0 {
		if err := opts.SetIntraOpNumThreads(l.Threads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}
	if err := appendProvider(opts, d); err != nil {
		return nil, providerError(d, fmt.Errorf("failed to enable %s execution provider: %w", d, err))
	}

	outputNames := make([]string, len(outputs))
	for i, o := range outputs {
		outputNames[i] = o.Name
	}
	session, err := ort.NewDynamicAdvancedSession(l.ModelPath, []string{inputs[0].Name}, outputNames, opts)
	if err != nil {
		return nil, providerError(d, fmt.Errorf("failed to create ONNX Runtime session: %w", err))
	}

	slog.Info("Model ready",
		slog.String("path", l.ModelPath),
		slog.String("device", d.String()),
		slog.String("input", inputs[0].Name),
		slog.Int("outputs", len(outputNames)))

	return &Segmenter{
		session:     session,
		inputName:   inputs[0].Name,
		inputDims:   inputs[0].Dimensions,
		outputNames: outputNames,
	}, nil
}

func (l *Loader) ensureModel(ctx context.Context) error {
	if l.ModelPath == "" {
		return errors.New("model path is empty")
	}
	if _, err := os.Stat(l.ModelPath); err == nil {
		return nil
	}
	if l.ModelURL == "" {
		return fmt.Errorf("model file %s not found and no model_url configured", l.ModelPath)
	}
	f := l.Fetcher
	if f == nil {
		f = hub.NewFetcher()
	}
	slog.Info("Downloading model", slog.String("url", l.ModelURL), slog.String("dest", l.ModelPath))
	if err := f.Fetch(ctx, l.ModelURL, l.ModelPath); err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	return nil
}

// providerError points at the CPU fallback when an accelerated provider was
// accepted but failed to initialise, as CUDA does on hosts without a GPU.
func providerError(d pipeline.Device, err error) error {
	if d == pipeline.DeviceCPU || d == "" {
		return err
	}
	return fmt.Errorf("%w (retry with --device cpu or BIREFNET_DEVICE=cpu)", err)
}
