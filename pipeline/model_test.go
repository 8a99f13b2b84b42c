package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectDevice(t *testing.T) {
	tests := []struct {
		name    string
		backend Backend
		goos    string
		want    Device
	}{
		{"nil backend", nil, "linux", DeviceCPU},
		{"nothing available", fakeBackend{}, "linux", DeviceCPU},
		{"gpu", fakeBackend{DeviceGPU: true}, "linux", DeviceGPU},
		{"accelerator wins on darwin", fakeBackend{DeviceAccelerator: true, DeviceGPU: true}, "darwin", DeviceAccelerator},
		{"accelerator ignored elsewhere", fakeBackend{DeviceAccelerator: true}, "linux", DeviceCPU},
		{"darwin without accelerator", fakeBackend{DeviceGPU: true}, "darwin", DeviceGPU},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectDevice(tt.backend, tt.goos))
		})
	}
}

func TestParseDevice(t *testing.T) {
	for in, want := range map[string]Device{"": "", "auto": "", "CPU": DeviceCPU, "cuda": DeviceGPU, "coreml": DeviceAccelerator, "mps": DeviceAccelerator} {
		got, err := ParseDevice(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDevice("tpu")
	assert.Error(t, err)
	assert.Equal(t, "NVIDIA GPU", DeviceGPU.Label())
	assert.Equal(t, "CPU", DeviceCPU.Label())
}

func TestModelCache_Singleton(t *testing.T) {
	loader := &countingLoader{seg: &constSegmenter{}}
	cache := NewModelCache(loader, fakeBackend{})

	a, err := cache.Get(context.Background(), "")
	require.NoError(t, err)
	b, err := cache.Get(context.Background(), "")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int32(1), loader.calls.Load())
	assert.Equal(t, DeviceCPU, a.Device)
	assert.True(t, cache.loaded())
}

func TestModelCache_IgnoresLaterDevice(t *testing.T) {
	loader := &countingLoader{seg: &constSegmenter{}}
	cache := NewModelCache(loader, nil)

	a, err := cache.Get(context.Background(), DeviceCPU)
	require.NoError(t, err)
	b, err := cache.Get(context.Background(), DeviceGPU)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, DeviceCPU, b.Device)
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestModelCache_ConcurrentFirstUse(t *testing.T) {
	loader := &countingLoader{seg: &constSegmenter{}}
	cache := NewModelCache(loader, nil)

	const n = 16
	models := make([]*Model, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := cache.Get(context.Background(), "")
			assert.NoError(t, err)
			models[i] = m
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
	for _, m := range models {
		assert.Same(t, models[0], m)
	}
}

func TestModelCache_LoadError(t *testing.T) {
	boom := errors.New("weights unavailable")
	loader := &countingLoader{err: boom}
	cache := NewModelCache(loader, nil)

	_, err := cache.Get(context.Background(), "")
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, CodeModelLoadFailed, ErrorCode(err))
	assert.False(t, cache.loaded())

	loader.err = nil
	loader.seg = &constSegmenter{}
	_, err = cache.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load())
}

type closingSegmenter struct {
	constSegmenter
	closed bool
}

func (c *closingSegmenter) Close() error {
	c.closed = true
	return nil
}

func TestModelCache_Close(t *testing.T) {
	seg := &closingSegmenter{}
	cache := NewModelCache(&countingLoader{seg: seg}, nil)
	_, err := cache.Get(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, cache.Close())
	assert.True(t, seg.closed)
	assert.False(t, cache.loaded())
}
