package pipeline

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, Sigmoid(0), 1e-7)
	assert.Equal(t, float32(1), Sigmoid(100))
	assert.InDelta(t, 0, Sigmoid(-100), 1e-20)
	assert.InDelta(t, 0.7310586, Sigmoid(1), 1e-6)
}

func TestInfer_ShapeAndLastStage(t *testing.T) {
	seg := &constSegmenter{logit: 4}
	p, err := Preprocess(gradient(30, 20), 16)
	require.NoError(t, err)

	mask, err := Infer(&Model{Segmenter: seg, Device: DeviceCPU}, p, DeviceCPU)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 16, 16}, mask.Shape)
	// the coarse stage is -4, the refined one +4
	for _, v := range mask.Data {
		require.InDelta(t, Sigmoid(4), v, 1e-7)
	}
}

func TestInfer_Range(t *testing.T) {
	logits := []float32{-1e30, -80, -3, 0, 2.5, 80, 1e30, float32(math.MaxFloat32)}
	seg := segFunc(func(in *Tensor) ([]*Tensor, error) {
		n := in.Shape[2] * in.Shape[3]
		out := make([]float32, n)
		for i := range out {
			out[i] = logits[i%len(logits)]
		}
		return []*Tensor{{Shape: []int64{1, 1, in.Shape[2], in.Shape[3]}, Data: out}}, nil
	})
	p, err := Preprocess(gradient(8, 8), 8)
	require.NoError(t, err)

	mask, err := Infer(&Model{Segmenter: seg}, p, DeviceCPU)
	require.NoError(t, err)
	for _, v := range mask.Data {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestInfer_Deterministic(t *testing.T) {
	p, err := Preprocess(gradient(50, 40), 32)
	require.NoError(t, err)
	m := &Model{Segmenter: echoSegmenter{}, Device: DeviceCPU}

	a, err := Infer(m, p, DeviceCPU)
	require.NoError(t, err)
	b, err := Infer(m, p, DeviceCPU)
	require.NoError(t, err)
	require.Len(t, b.Data, len(a.Data))
	for i := range a.Data {
		require.InDelta(t, a.Data[i], b.Data[i], 1e-5)
	}
}

func TestInfer_MovesInputToDevice(t *testing.T) {
	seg := &constSegmenter{logit: 1}
	p, err := Preprocess(gradient(8, 8), 8)
	require.NoError(t, err)

	mask, err := Infer(&Model{Segmenter: seg, Device: DeviceGPU}, p, DeviceGPU)
	require.NoError(t, err)
	assert.Equal(t, []Device{DeviceGPU}, seg.seen)
	assert.Equal(t, DeviceGPU, mask.Device)
	assert.Equal(t, DeviceCPU, p.Tensor.Device, "the processed tensor itself is not rebound")
}

func TestInfer_Errors(t *testing.T) {
	p, err := Preprocess(gradient(8, 8), 8)
	require.NoError(t, err)

	oom := errors.New("out of memory")
	tests := []struct {
		name string
		seg  Segmenter
		want error
	}{
		{"backend failure", segFunc(func(*Tensor) ([]*Tensor, error) { return nil, oom }), oom},
		{"no outputs", segFunc(func(*Tensor) ([]*Tensor, error) { return nil, nil }), errNoOutputs},
		{"wrong size", segFunc(func(*Tensor) ([]*Tensor, error) {
			return []*Tensor{{Shape: []int64{1, 1, 2, 2}, Data: make([]float32, 4)}}, nil
		}), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Infer(&Model{Segmenter: tt.seg}, p, DeviceCPU)
			var infErr *InferenceError
			require.ErrorAs(t, err, &infErr)
			assert.Equal(t, CodeInferenceFailed, ErrorCode(err))
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	_, err = Infer(nil, p, DeviceCPU)
	assert.Error(t, err)
}

type segFunc func(*Tensor) ([]*Tensor, error)

func (f segFunc) Forward(in *Tensor) ([]*Tensor, error) { return f(in) }
