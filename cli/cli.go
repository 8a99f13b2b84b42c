// Package cli implements the birefnet command line.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/krau/birefnet-go/config"
	"github.com/krau/birefnet-go/hub"
	"github.com/krau/birefnet-go/onnx"
	"github.com/krau/birefnet-go/pipeline"
	"github.com/krau/birefnet-go/server"
)

const Version = "0.1.0"

const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitInvalidArgs = 2
)

const banner = `BiRefNet - background removal

Usage:
  birefnet [--config PATH] <command> [flags]

Commands:
  remove  Remove the background from images (RGBA output)
  info    Show model and device information
  serve   Serve background removal over HTTP

Flags:
  --config PATH   Config file (default config.toml)
  -v, --version   Show version and exit

Exit codes: 0=success, 1=error, 2=invalid arguments
`

// App holds the process wiring. The zero value of Build and Serve uses the
// ONNX runtime and the gin server.
type App struct {
	Stdout io.Writer
	Stderr io.Writer

	// Build creates the pipeline. device is empty for automatic selection.
	// progress, when not nil, receives model download progress.
	Build func(cfg config.Config, device pipeline.Device, progress func(done, total int64)) *pipeline.Pipeline
	Serve func(ctx context.Context, p *pipeline.Pipeline, cfg config.Config) error
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := &App{Stdout: stdout, Stderr: stderr}
	return app.Run(ctx, args)
}

func (a *App) Run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("birefnet", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	fs.Usage = func() { fmt.Fprint(a.Stderr, banner) }
	cfgPath := fs.String("config", config.DefaultPath, "config file")
	var version bool
	fs.BoolVar(&version, "v", false, "show version")
	fs.BoolVar(&version, "version", false, "show version")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}
	if version {
		fmt.Fprintf(a.Stdout, "birefnet %s\n", Version)
		return ExitSuccess
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	closeLog, err := setupLogger(cfg, a.Stderr)
	if err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer closeLog()

	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "remove":
		return a.remove(ctx, cfg, cmdArgs)
	case "info":
		return a.info(cfg, cmdArgs)
	case "serve":
		return a.serve(ctx, cfg, cmdArgs)
	case "help":
		fs.Usage()
		return ExitSuccess
	default:
		fmt.Fprintf(a.Stderr, "Error: unknown command %q\n\n", cmd)
		fs.Usage()
		return ExitInvalidArgs
	}
}

func (a *App) build(cfg config.Config, device pipeline.Device, progress func(done, total int64)) *pipeline.Pipeline {
	if a.Build != nil {
		return a.Build(cfg, device, progress)
	}
	return NewPipeline(cfg, device, progress)
}

// NewPipeline wires the ONNX runtime behind a pipeline.
func NewPipeline(cfg config.Config, device pipeline.Device, progress func(done, total int64)) *pipeline.Pipeline {
	backend := onnx.NewBackend(cfg.Libonnx)
	fetcher := hub.NewFetcher()
	fetcher.Progress = progress
	loader := &onnx.Loader{
		LibPath:   cfg.Libonnx,
		ModelPath: cfg.ModelPath(),
		ModelURL:  cfg.ModelUrl,
		Threads:   cfg.Threads,
		Fetcher:   fetcher,
	}
	var opts []pipeline.Option
	if device != "" {
		opts = append(opts, pipeline.WithDevice(device))
	}
	return pipeline.New(loader, backend, opts...)
}

// resolveDevice prefers the flag over the config value.
func resolveDevice(flagValue, cfgValue string) (pipeline.Device, error) {
	if flagValue != "" {
		return pipeline.ParseDevice(flagValue)
	}
	return pipeline.ParseDevice(cfgValue)
}

func (a *App) serve(ctx context.Context, cfg config.Config, args []string) int {
	fs := newFlagSet("serve", a.Stderr, "birefnet serve [--host H] [--port P] [--device D]")
	host := fs.String("host", cfg.Host, "listen host")
	port := fs.String("port", cfg.Port, "listen port")
	deviceFlag := fs.String("device", "", "auto|coreml|cuda|cpu")
	if _, err := parseInterspersed(fs, args); err != nil {
		return flagExit(err)
	}
	device, err := resolveDevice(*deviceFlag, cfg.Device)
	if err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	cfg.Host, cfg.Port = *host, *port

	p := a.build(cfg, device, nil)
	defer p.Close()

	run := a.Serve
	if run == nil {
		run = server.Run
	}
	if err := run(ctx, p, cfg); err != nil {
		slog.Error("Server error", slog.String("error", err.Error()))
		return ExitFailure
	}
	return ExitSuccess
}
