package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/krau/birefnet-go/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogger installs the default slog logger. Records go to stderr and,
// when log_file is set, to a rotating file. stdout is never written. The
// returned func closes the file and restores the previous default.
func setupLogger(cfg config.Config, stderr io.Writer) (func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}

	prev := slog.Default()
	w := stderr
	closer := func() { slog.SetDefault(prev) }
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		w = io.MultiWriter(stderr, rotator)
		closer = func() {
			slog.SetDefault(prev)
			_ = rotator.Close()
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return closer, nil
}
