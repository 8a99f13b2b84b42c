package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const DefaultPath = "config.toml"

type Config struct {
	Libonnx string `toml:"libonnx"`
	Device  string `toml:"device"`
	Threads int    `toml:"threads"`

	ModelID       string `toml:"model_id"`
	ModelUrl      string `toml:"model_url"`
	ModelDir      string `toml:"model_dir"`
	ModelFileName string `toml:"model_file_name"`

	Size    int    `toml:"size"`
	Format  string `toml:"format"`
	Suffix  string `toml:"suffix"`
	Quality int    `toml:"quality"`

	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`

	Token       string `toml:"token"`
	Host        string `toml:"host"`
	Port        string `toml:"port"`
	Workers     int    `toml:"workers"`
	MaxUploadMB int    `toml:"max_upload_mb"`
}

func Default() Config {
	return Config{
		ModelID:       "ZhengPeng7/BiRefNet",
		ModelUrl:      "https://huggingface.co/onnx-community/BiRefNet-ONNX/resolve/main/onnx/model.onnx?download=true",
		ModelDir:      "models",
		ModelFileName: "birefnet.onnx",
		Size:          1024,
		Format:        "png",
		Suffix:        "_nobg",
		Quality:       95,
		LogLevel:      "warn",
		Host:          "0.0.0.0",
		Port:          "8000",
		Workers:       1,
		MaxUploadMB:   32,
	}
}

// Load reads path (missing is fine), then .env, then BIREFNET_* variables.
// Later sources win.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &c); err != nil {
				return Default(), fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Default(), fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	// .env never overrides variables already set in the process
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return c, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := applyEnv(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func applyEnv(c *Config) error {
	strs := map[string]*string{
		"BIREFNET_LIBONNX":   &c.Libonnx,
		"BIREFNET_MODEL_DIR": &c.ModelDir,
		"BIREFNET_MODEL_URL": &c.ModelUrl,
		"BIREFNET_DEVICE":    &c.Device,
		"BIREFNET_LOG_LEVEL": &c.LogLevel,
		"BIREFNET_LOG_FILE":  &c.LogFile,
		"BIREFNET_TOKEN":     &c.Token,
		"BIREFNET_HOST":      &c.Host,
		"BIREFNET_PORT":      &c.Port,
	}
	for k, p := range strs {
		if v, ok := os.LookupEnv(k); ok {
			*p = strings.TrimSpace(v)
		}
	}
	if v, ok := os.LookupEnv("BIREFNET_THREADS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid BIREFNET_THREADS %q: %w", v, err)
		}
		c.Threads = n
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Size {
	case 512, 1024, 2048:
	default:
		return fmt.Errorf("size must be 512, 1024 or 2048, got %d", c.Size)
	}
	switch strings.ToLower(c.Format) {
	case "png", "webp", "avif":
	default:
		return fmt.Errorf("format must be png, webp or avif, got %q", c.Format)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", c.Quality)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must not be negative, got %d", c.Threads)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("max_upload_mb must be at least 1, got %d", c.MaxUploadMB)
	}
	return nil
}

func (c Config) ModelPath() string {
	return filepath.Join(c.ModelDir, c.ModelFileName)
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
