package pipeline

import (
	"fmt"
	"image"
)

const DefaultSize = 1024

var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape  []int64
	Data   []float32
	Device Device
}

func NewTensor(shape []int64, data []float32) (*Tensor, error) {
	if n := numel(shape); n != int64(len(data)) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, n, len(data))
	}
	return &Tensor{Shape: shape, Data: data, Device: DeviceCPU}, nil
}

// To binds the tensor to d. Buffers stay in host memory; the execution
// provider stages them onto the device when the session runs.
func (t *Tensor) To(d Device) *Tensor {
	if t.Device == d {
		return t
	}
	return &Tensor{Shape: t.Shape, Data: t.Data, Device: d}
}

func numel(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// ProcessedImage is the model input for a single image. OriginalSize holds
// width in X and height in Y.
type ProcessedImage struct {
	Tensor       *Tensor
	OriginalSize image.Point
}
