package onnx

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const libDir = "onnxlibs"

var initMu sync.Mutex

// LibPath returns the ONNX Runtime shared library to load. An explicit path
// wins, then $ONNXRUNTIME_SHARED_LIBRARY_PATH, then the first existing
// candidate for this OS.
func LibPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); env != "" {
		return env
	}
	for _, p := range libCandidates(runtime.GOOS, runtime.GOARCH) {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func libCandidates(goos, goarch string) []string {
	switch goos {
	case "linux":
		name := "libonnxruntime.so"
		if goarch == "arm64" {
			return []string{
				filepath.Join(libDir, "libonnxruntime-linux-arm64.so"),
				filepath.Join(libDir, name),
				"/usr/lib/aarch64-linux-gnu/" + name,
				"/usr/local/lib/" + name,
			}
		}
		return []string{
			filepath.Join(libDir, "libonnxruntime-linux-x64.so"),
			filepath.Join(libDir, name),
			"/usr/lib/x86_64-linux-gnu/" + name,
			"/usr/local/lib/" + name,
			"/usr/lib/" + name,
		}
	case "darwin":
		return []string{
			filepath.Join(libDir, "libonnxruntime.dylib"),
			"/opt/homebrew/lib/libonnxruntime.dylib",
			"/usr/local/lib/libonnxruntime.dylib",
		}
	case "windows":
		return []string{
			filepath.Join(libDir, "onnxruntime.dll"),
			"onnxruntime.dll",
		}
	default:
		return nil
	}
}

// Init loads the shared library and initializes the ORT environment once
// per process. A failed attempt may be retried.
func Init(explicit string) error {
	initMu.Lock()
	defer initMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}

	path := LibPath(explicit)
	if path == "" {
		return fmt.Errorf("ONNX Runtime library not found for %s/%s, set libonnx in config", runtime.GOOS, runtime.GOARCH)
	}
	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
	}
	slog.Debug("Using ONNX Runtime library", slog.String("path", path))
	return nil
}

// Shutdown destroys the ORT environment if it was initialized.
func Shutdown() {
	initMu.Lock()
	defer initMu.Unlock()
	if !ort.IsInitialized() {
		return
	}
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Warn("Failed to destroy ONNX Runtime environment", slog.String("error", err.Error()))
	}
}
