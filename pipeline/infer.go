package pipeline

import (
	"errors"
	"fmt"
	"math"
)

var errNoOutputs = errors.New("model returned no outputs")

// Sigmoid maps a logit to (0, 1). Inputs are clamped to [-50, 50].
func Sigmoid(x float32) float32 {
	if x > 50 {
		x = 50
	} else if x < -50 {
		x = -50
	}
	return 1 / (1 + float32(math.Exp(float64(-x))))
}

// Infer runs the forward pass on device and returns the most refined mask
// as probabilities with shape [1, 1, size, size].
func Infer(m *Model, p *ProcessedImage, d Device) (*Tensor, error) {
	if m == nil || m.Segmenter == nil {
		return nil, &InferenceError{Err: errors.New("model not initialized")}
	}
	if p == nil || p.Tensor == nil || len(p.Tensor.Shape) != 4 {
		return nil, &InferenceError{Err: errors.New("input is not a 4-d tensor")}
	}
	h, w := p.Tensor.Shape[2], p.Tensor.Shape[3]

	input := p.Tensor.To(d)
	outputs, err := m.Forward(input)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	if len(outputs) == 0 {
		return nil, &InferenceError{Err: errNoOutputs}
	}

	// the last stage is the refined mask
	last := outputs[len(outputs)-1]
	if last == nil || int64(len(last.Data)) != h*w {
		got := 0
		if last != nil {
			got = len(last.Data)
		}
		return nil, &InferenceError{Err: fmt.Errorf("mask has %d elements, want %dx%d", got, h, w)}
	}

	probs := make([]float32, len(last.Data))
	for i, v := range last.Data {
		probs[i] = Sigmoid(v)
	}
	return &Tensor{Shape: []int64{1, 1, h, w}, Data: probs, Device: d}, nil
}
