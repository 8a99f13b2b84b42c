package hub

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func serve(t *testing.T, data []byte, ranges *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" && ranges != nil {
			ranges.Add(1)
		}
		http.ServeContent(w, r, "model.onnx", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func noParts(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".part"), e.Name())
	}
}

func TestFetch_Stream(t *testing.T) {
	data := payload(4096)
	srv := serve(t, data, nil)

	var last int64
	f := &Fetcher{Client: srv.Client(), Progress: func(done, _ int64) { last = done }}
	dest := filepath.Join(t.TempDir(), "nested", "model.onnx")
	require.NoError(t, f.Fetch(context.Background(), srv.URL, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), last)
	noParts(t, filepath.Dir(dest))
}

func TestFetch_Ranged(t *testing.T) {
	old := minPartSize
	minPartSize = 1024
	t.Cleanup(func() { minPartSize = old })

	data := payload(10_000)
	var ranges atomic.Int32
	srv := serve(t, data, &ranges)

	f := &Fetcher{Client: srv.Client(), Accelerated: true, Parts: 4}
	dest := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, f.Fetch(context.Background(), srv.URL, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int32(4), ranges.Load())
	noParts(t, filepath.Dir(dest))
}

func TestFetch_RangeIgnoredFallsBackToStream(t *testing.T) {
	old := minPartSize
	minPartSize = 1024
	t.Cleanup(func() { minPartSize = old })

	data := payload(10_000)
	var gets atomic.Int32
	// advertises ranges on HEAD but always answers GET with the full body
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if r.Method == http.MethodHead {
			return
		}
		gets.Add(1)
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	f := &Fetcher{Client: srv.Client(), Accelerated: true, Parts: 4}
	dest := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, f.Fetch(context.Background(), srv.URL, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	// at least one range attempt, then the full stream
	assert.GreaterOrEqual(t, gets.Load(), int32(2))
	noParts(t, filepath.Dir(dest))
}

func TestFetch_SmallFileSkipsRanges(t *testing.T) {
	data := payload(100)
	var ranges atomic.Int32
	srv := serve(t, data, &ranges)

	f := &Fetcher{Client: srv.Client(), Accelerated: true}
	dest := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, f.Fetch(context.Background(), srv.URL, dest))
	assert.Zero(t, ranges.Load())
}

func TestFetch_ExistingFileUntouched(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(dest, []byte("cached"), 0644))

	require.NoError(t, (&Fetcher{Client: srv.Client()}).Fetch(context.Background(), srv.URL, dest))
	got, _ := os.ReadFile(dest)
	assert.Equal(t, "cached", string(got))
	assert.Zero(t, hits.Load())
}

func TestFetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "model.onnx")
	err := (&Fetcher{Client: srv.Client()}).Fetch(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.NoFileExists(t, dest)
	noParts(t, dir)
}

func TestAcceleratedDisabled(t *testing.T) {
	cases := map[string]bool{"": false, "0": false, "false": false, "1": true, "true": true, "yes": true}
	for v, want := range cases {
		t.Setenv(DisableAcceleratedEnv, v)
		assert.Equal(t, want, AcceleratedDisabled(), "value %q", v)
		assert.Equal(t, !want, NewFetcher().Accelerated, "value %q", v)
	}
}
