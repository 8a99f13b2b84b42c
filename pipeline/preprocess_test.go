package pipeline

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocess_Shape(t *testing.T) {
	img := gradient(120, 80)
	for _, size := range []int{32, 64, 512} {
		p, err := Preprocess(img, size)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, int64(size), int64(size)}, p.Tensor.Shape)
		assert.Len(t, p.Tensor.Data, 3*size*size)
	}
}

func TestPreprocess_DefaultSize(t *testing.T) {
	p, err := Preprocess(gradient(10, 10), 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, DefaultSize, DefaultSize}, p.Tensor.Shape)
}

func TestPreprocess_PreservesOriginalSize(t *testing.T) {
	p, err := Preprocess(gradient(123, 45), 64)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(123, 45), p.OriginalSize)
}

func TestPreprocess_NormalizesPerChannel(t *testing.T) {
	p, err := Preprocess(solid(20, 10, color.RGBA{R: 255, A: 255}), 16)
	require.NoError(t, err)

	plane := 16 * 16
	want := [3]float32{
		(1 - ImageNetMean[0]) / ImageNetStd[0],
		(0 - ImageNetMean[1]) / ImageNetStd[1],
		(0 - ImageNetMean[2]) / ImageNetStd[2],
	}
	for c := 0; c < 3; c++ {
		for _, v := range p.Tensor.Data[c*plane : (c+1)*plane] {
			require.InDelta(t, want[c], v, 1e-5)
		}
	}
}

func TestPreprocess_DoesNotClamp(t *testing.T) {
	p, err := Preprocess(gradient(64, 64), 32)
	require.NoError(t, err)

	outside := false
	for _, v := range p.Tensor.Data {
		if v < 0 || v > 1 {
			outside = true
			break
		}
	}
	assert.True(t, outside, "normalized values should leave [0,1]")
}

func TestPreprocess_DropsAlpha(t *testing.T) {
	translucent := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(translucent.Pix); i += 4 {
		copy(translucent.Pix[i:], []uint8{255, 0, 0, 128})
	}
	opaque := solid(8, 8, color.RGBA{R: 255, A: 255})

	a, err := Preprocess(translucent, 8)
	require.NoError(t, err)
	b, err := Preprocess(opaque, 8)
	require.NoError(t, err)

	assert.Equal(t, int64(3), a.Tensor.Shape[1])
	assert.InDeltaSlice(t, b.Tensor.Data, a.Tensor.Data, 1e-6)
}

func TestPreprocess_Grayscale(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range g.Pix {
		g.Pix[i] = 255
	}
	p, err := Preprocess(g, 4)
	require.NoError(t, err)
	for c := 0; c < 3; c++ {
		assert.InDelta(t, (1-ImageNetMean[c])/ImageNetStd[c], p.Tensor.Data[c*16], 1e-5)
	}
}

func TestPreprocess_OffsetBounds(t *testing.T) {
	img := gradient(40, 40).SubImage(image.Rect(10, 10, 30, 25))
	p, err := Preprocess(img, 8)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 15), p.OriginalSize)
}

func TestPreprocess_Errors(t *testing.T) {
	_, err := Preprocess(image.NewRGBA(image.Rect(0, 0, 0, 0)), 8)
	var inErr *InputError
	require.ErrorAs(t, err, &inErr)
	assert.Equal(t, CodeInvalidImage, ErrorCode(err))

	_, err = Preprocess(gradient(4, 4), -1)
	assert.Error(t, err)
}
