// Package hub downloads model weights into the local model directory.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"
)

// DisableAcceleratedEnv turns off parallel ranged downloads when set to a
// truthy value.
const DisableAcceleratedEnv = "HF_HUB_DISABLE_XET"

const defaultParts = 4

// below parts*minPartSize bytes a single stream is used
var minPartSize int64 = 8 << 20

// Fetcher downloads a file over HTTP.
type Fetcher struct {
	Client *http.Client
	// Accelerated splits large downloads into concurrent range requests.
	Accelerated bool
	Parts       int
	// Progress, when set, receives bytes written and the total (-1 if unknown).
	Progress func(done, total int64)
}

// NewFetcher returns a Fetcher configured from the environment.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:      http.DefaultClient,
		Accelerated: !AcceleratedDisabled(),
		Parts:       defaultParts,
	}
}

func AcceleratedDisabled() bool {
	v := strings.TrimSpace(os.Getenv(DisableAcceleratedEnv))
	if v == "" {
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return true
}

// Fetch downloads url to dest unless dest already exists. The file is
// written next to dest and renamed into place when complete.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	part := dest + "." + ksuid.New().String() + ".part"
	out, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", part, err)
	}
	defer func() {
		_ = out.Close()
		_ = os.Remove(part)
	}()

	size, ranged := int64(-1), false
	if f.Accelerated {
		size, ranged = f.probe(ctx, url)
	}
	parts := f.Parts
	if parts <= 0 {
		parts = defaultParts
	}

	if ranged && size >= int64(parts)*minPartSize {
		slog.Debug("Using ranged download", slog.Int64("size", size), slog.Int("parts", parts))
		err = f.fetchRanges(ctx, url, out, size, parts)
		if errors.Is(err, errRangeIgnored) {
			slog.Debug("Server ignored range requests, downloading as a single stream")
			err = restart(out)
			if err == nil {
				err = f.fetchStream(ctx, url, out)
			}
		}
	} else {
		err = f.fetchStream(ctx, url, out)
	}
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", part, err)
	}
	if err := os.Rename(part, dest); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}
	return nil
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// probe reports the content length and whether byte ranges are accepted.
func (f *Fetcher) probe(ctx context.Context, url string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return -1, false
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return -1, false
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return -1, false
	}
	return resp.ContentLength, resp.ContentLength > 0 && resp.Header.Get("Accept-Ranges") == "bytes"
}

func (f *Fetcher) fetchStream(ctx context.Context, url string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	w := &progressWriter{w: out, total: resp.ContentLength, report: f.Progress}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download interrupted: %w", err)
	}
	return nil
}

func (f *Fetcher) fetchRanges(ctx context.Context, url string, out *os.File, size int64, parts int) error {
	if err := out.Truncate(size); err != nil {
		return fmt.Errorf("failed to allocate %s: %w", out.Name(), err)
	}
	var done atomic.Int64
	chunk := (size + int64(parts) - 1) / int64(parts)

	g, ctx := errgroup.WithContext(ctx)
	for start := int64(0); start < size; start += chunk {
		end := min(start+chunk, size) - 1
		g.Go(func() error {
			return f.fetchRange(ctx, url, out, start, end, func(n int64) {
				total := done.Add(n)
				if f.Progress != nil {
					f.Progress(total, size)
				}
			})
		})
	}
	return g.Wait()
}

func (f *Fetcher) fetchRange(ctx context.Context, url string, out io.WriterAt, start, end int64, add func(int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	resp, err := f.client().Do(req)
	if err != nil {
		return fmt.Errorf("range request failed: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		return errRangeIgnored
	default:
		return fmt.Errorf("range %d-%d: bad status: %s", start, end, resp.Status)
	}

	w := io.NewOffsetWriter(out, start)
	n, err := io.Copy(w, io.LimitReader(resp.Body, end-start+1))
	add(n)
	if err != nil {
		return fmt.Errorf("range %d-%d interrupted: %w", start, end, err)
	}
	if n != end-start+1 {
		return errShortRange
	}
	return nil
}

var (
	errShortRange   = errors.New("server returned a short range")
	errRangeIgnored = errors.New("server ignored the range header")
)

// restart empties a partially written download.
func restart(out *os.File) error {
	if err := out.Truncate(0); err != nil {
		return fmt.Errorf("failed to reset %s: %w", out.Name(), err)
	}
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to reset %s: %w", out.Name(), err)
	}
	return nil
}

type progressWriter struct {
	w      io.Writer
	done   int64
	total  int64
	report func(done, total int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	if p.report != nil {
		p.report(p.done, p.total)
	}
	return n, err
}
