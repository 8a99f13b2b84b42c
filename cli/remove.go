package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/krau/birefnet-go/config"
	"github.com/krau/birefnet-go/imgio"
	"github.com/krau/birefnet-go/pipeline"
)

const CodeNoValidInputs = "NO_VALID_INPUTS"

type removeOptions struct {
	output  string
	size    int
	format  imgio.Format
	suffix  string
	quality int
	device  pipeline.Device
	mode    outputMode
}

func (a *App) parseRemove(cfg config.Config, args []string) (removeOptions, []string, int) {
	fs := newFlagSet("remove", a.Stderr,
		"birefnet remove <input...> [-o DIR] [-s 512|1024|2048] [-f png|webp|avif] [--suffix STR] [-q 1-100] [--device D] [--json] [--quiet]")
	var (
		o          removeOptions
		format     string
		deviceFlag string
		jsonOut    bool
		quiet      bool
	)
	fs.StringVar(&o.output, "o", ".", "output directory, created if missing")
	fs.StringVar(&o.output, "output", ".", "output directory, created if missing")
	fs.IntVar(&o.size, "s", cfg.Size, "processing resolution: 512|1024|2048")
	fs.IntVar(&o.size, "size", cfg.Size, "processing resolution: 512|1024|2048")
	fs.StringVar(&format, "f", cfg.Format, "output format: png|webp|avif")
	fs.StringVar(&format, "format", cfg.Format, "output format: png|webp|avif")
	fs.StringVar(&o.suffix, "suffix", cfg.Suffix, "appended to the output file name")
	fs.IntVar(&o.quality, "q", cfg.Quality, "webp/avif quality 1-100 (png ignores this)")
	fs.IntVar(&o.quality, "quality", cfg.Quality, "webp/avif quality 1-100 (png ignores this)")
	fs.StringVar(&deviceFlag, "device", "", "auto|coreml|cuda|cpu")
	fs.BoolVar(&jsonOut, "json", false, "JSON output")
	fs.BoolVar(&quiet, "quiet", false, "print output paths only")

	inputs, err := parseInterspersed(fs, args)
	if err != nil {
		return o, nil, flagExit(err)
	}

	invalid := func(msg string, args ...any) (removeOptions, []string, int) {
		fmt.Fprintf(a.Stderr, "Error: %s\n", fmt.Sprintf(msg, args...))
		return o, nil, ExitInvalidArgs
	}
	if len(inputs) == 0 {
		return invalid("missing input image(s)")
	}
	if jsonOut && quiet {
		return invalid("--json and --quiet cannot be used together")
	}
	switch o.size {
	case 512, 1024, 2048:
	default:
		return invalid("size must be 512, 1024 or 2048, got %d", o.size)
	}
	if o.quality < 1 || o.quality > 100 {
		return invalid("quality must be between 1 and 100, got %d", o.quality)
	}
	if o.format, err = imgio.ParseFormat(format); err != nil {
		return invalid("%v", err)
	}
	if o.device, err = resolveDevice(deviceFlag, cfg.Device); err != nil {
		return invalid("%v", err)
	}

	switch {
	case jsonOut:
		o.mode = modeJSON
	case quiet:
		o.mode = modeQuiet
	default:
		o.mode = modeHuman
	}
	return o, inputs, ExitSuccess
}

func (a *App) remove(ctx context.Context, cfg config.Config, args []string) int {
	opts, inputs, code := a.parseRemove(cfg, args)
	if code != ExitSuccess || inputs == nil {
		return code
	}
	start := time.Now()
	r := newReporter(opts.mode, a.Stdout, a.Stderr)

	valid := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if _, err := os.Stat(in); err != nil {
			r.unreadable(in, err)
			continue
		}
		valid = append(valid, in)
	}
	if len(valid) == 0 {
		r.fatal(CodeNoValidInputs, "No valid input files")
		return ExitFailure
	}
	if err := os.MkdirAll(opts.output, 0755); err != nil {
		r.fatal(pipeline.CodeEncodeFailed, fmt.Sprintf("failed to create output directory: %v", err))
		return ExitFailure
	}

	var status *loadStatus
	var progress func(done, total int64)
	if opts.mode == modeHuman {
		status = newLoadStatus(a.Stdout, a.Stderr)
		progress = status.progress
	}
	p := a.build(cfg, opts.device, progress)
	defer p.Close()

	if err := loadModel(ctx, p, status); err != nil {
		for _, in := range valid {
			r.failed(in, err)
		}
		r.summary(time.Since(start))
		return ExitFailure
	}

	for i, in := range valid {
		if err := ctx.Err(); err != nil {
			for _, rest := range valid[i:] {
				r.failed(rest, err)
			}
			break
		}
		out := imgio.OutputPath(in, opts.output, opts.suffix, opts.format)
		if err := processFile(ctx, p, in, out, opts); err != nil {
			var loadErr *pipeline.LoadError
			if errors.As(err, &loadErr) {
				for _, rest := range valid[i:] {
					r.failed(rest, err)
				}
				break
			}
			r.failed(in, err)
			continue
		}
		r.processed(i+1, len(valid), in, out)
	}

	r.summary(time.Since(start))
	if r.failures() > 0 {
		return ExitFailure
	}
	return ExitSuccess
}

// loadModel loads the model up front so the human renderer can show
// progress while weights are fetched and the session is built. status is
// nil outside human mode.
func loadModel(ctx context.Context, p *pipeline.Pipeline, status *loadStatus) error {
	status.start()
	_, err := p.Model(ctx)
	status.stop()
	return err
}

func processFile(ctx context.Context, p *pipeline.Pipeline, in, out string, opts removeOptions) error {
	img, err := imgio.Open(in)
	if err != nil {
		return err
	}
	res, err := p.ProcessImage(ctx, img, opts.size)
	if err != nil {
		return err
	}
	return imgio.Save(out, res, opts.format, opts.quality)
}
