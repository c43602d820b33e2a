// Package config loads the server configuration from YAML with defaults and env overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/imgclass-api/internal/model"
	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
)

// Config holds the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Cache      CacheConfig      `yaml:"cache"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	AllowOrigin     string        `yaml:"allow_origin"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type ModelConfig struct {
	Path        string `yaml:"path"`
	Labels      string `yaml:"labels"`
	LibraryPath string `yaml:"onnxruntime_lib"`
	Device      string `yaml:"device"`
}

type PreprocessConfig struct {
	Filter    string `yaml:"filter"`
	MaxPixels int    `yaml:"max_pixels"` // largest accepted width*height of an upload
}

type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	LifeWindow time.Duration `yaml:"life_window"`
	MaxEntries int           `yaml:"max_entries"`
	MaxSizeMB  int           `yaml:"max_size_mb"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or console
	File       string `yaml:"file"`   // empty logs to stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			MaxUploadBytes:  10 << 20,
			AllowOrigin:     "*",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Model: ModelConfig{
			Path:   filepath.Join("models", "best_model.onnx"),
			Labels: filepath.Join("models", "class_labels.json"),
			Device: string(model.DeviceAuto),
		},
		Preprocess: PreprocessConfig{
			Filter:    string(preprocess.Bilinear),
			MaxPixels: preprocess.DefaultMaxPixels,
		},
		Cache: CacheConfig{
			Enabled:    false,
			LifeWindow: 10 * time.Minute,
			MaxEntries: 10000,
			MaxSizeMB:  16,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
// PORT in the environment overrides server.port.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if c.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}
	if c.Model.Labels == "" {
		return fmt.Errorf("model.labels is required")
	}
	if _, err := model.ParseDevice(c.Model.Device); err != nil {
		return fmt.Errorf("model.device: %w", err)
	}
	if _, err := preprocess.ParseFilter(c.Preprocess.Filter); err != nil {
		return fmt.Errorf("preprocess.filter: %w", err)
	}
	if c.Preprocess.MaxPixels <= 0 {
		return fmt.Errorf("preprocess.max_pixels must be positive")
	}
	if c.Cache.Enabled && c.Cache.LifeWindow <= 0 {
		return fmt.Errorf("cache.life_window must be positive when the cache is enabled")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console")
	}
	return nil
}

// ResolvePaths makes relative artifact paths absolute against the project root.
// When started from cmd/server the root is two levels up.
func (c *Config) ResolvePaths(workDir string) {
	root := workDir
	if filepath.Base(workDir) == "server" && filepath.Base(filepath.Dir(workDir)) == "cmd" {
		root = filepath.Join(workDir, "..", "..")
	}

	for _, p := range []*string{&c.Model.Path, &c.Model.Labels, &c.Log.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}
}

// LoaderConfig converts the model section for the artifact loader.
func (c *Config) LoaderConfig() (model.LoaderConfig, error) {
	device, err := model.ParseDevice(c.Model.Device)
	if err != nil {
		return model.LoaderConfig{}, err
	}
	return model.LoaderConfig{
		ModelPath:   c.Model.Path,
		LabelPath:   c.Model.Labels,
		LibraryPath: c.Model.LibraryPath,
		Device:      device,
	}, nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
