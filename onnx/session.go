package onnx

import (
	"fmt"
	"log/slog"

	"github.com/krau/birefnet-go/pipeline"
	ort "github.com/yalue/onnxruntime_go"
)

// Segmenter runs a segmentation network through an ORT session. It is safe
// for concurrent use.
type Segmenter struct {
	session     *ort.DynamicAdvancedSession
	inputName   string
	inputDims   ort.Shape
	outputNames []string
}

func (s *Segmenter) Forward(in *pipeline.Tensor) ([]*pipeline.Tensor, error) {
	if err := checkDims(s.inputDims, in.Shape); err != nil {
		return nil, err
	}

	input, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer destroy(input)

	outputs := make([]ort.Value, len(s.outputNames))
	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("session run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				destroy(o)
			}
		}
	}()

	result := make([]*pipeline.Tensor, 0, len(outputs))
	for i, o := range outputs {
		t, ok := o.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %s has unexpected type %T", s.outputNames[i], o)
		}
		data := make([]float32, len(t.GetData()))
		copy(data, t.GetData())
		shape := make([]int64, len(t.GetShape()))
		copy(shape, t.GetShape())
		result = append(result, &pipeline.Tensor{Shape: shape, Data: data, Device: in.Device})
	}
	return result, nil
}

// Close releases the session.
func (s *Segmenter) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

// checkDims compares a model's declared input dims with a concrete shape.
// Negative declared dims are dynamic.
func checkDims(declared ort.Shape, got []int64) error {
	if len(declared) == 0 {
		return nil
	}
	if len(declared) != len(got) {
		return fmt.Errorf("model expects a %d-d input, got shape %v", len(declared), got)
	}
	for i, d := range declared {
		if d > 0 && d != got[i] {
			if i >= 2 {
				return &pipeline.SizeError{Want: d, Got: got[i]}
			}
			return fmt.Errorf("model expects input %v, got %v", declared, got)
		}
	}
	return nil
}

func destroy(v ort.Value) {
	if err := v.Destroy(); err != nil {
		slog.Warn("Failed to destroy ONNX value", slog.String("error", err.Error()))
	}
}
