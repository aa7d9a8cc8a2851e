// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidTimeout is returned when COMBINE_TIMEOUT is not positive.
	ErrInvalidTimeout = errors.New("config: COMBINE_TIMEOUT must be positive")
	// ErrInvalidConcurrency is returned when MAX_CONCURRENT_COMBINES is not positive.
	ErrInvalidConcurrency = errors.New("config: MAX_CONCURRENT_COMBINES must be positive")
	// ErrInvalidUploadLimit is returned when MAX_UPLOAD_MB is not positive.
	ErrInvalidUploadLimit = errors.New("config: MAX_UPLOAD_MB must be positive")
	// ErrTempDirRequired is returned when TEMP_DIR is empty.
	ErrTempDirRequired = errors.New("config: TEMP_DIR is required")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port        int `env:"PORT, default=8080" json:"port"`
	MaxUploadMB int `env:"MAX_UPLOAD_MB, default=200" json:"max_upload_mb"`

	// Tooling
	FFmpegPath   string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath  string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	AudioBitrate string `env:"AUDIO_BITRATE, default=192k" json:"audio_bitrate"`

	// Processing settings
	TempDir               string        `env:"TEMP_DIR, default=/tmp/avmerge" json:"temp_dir"`
	CombineTimeout        time.Duration `env:"COMBINE_TIMEOUT, default=10m" json:"combine_timeout"`
	MaxConcurrentCombines int           `env:"MAX_CONCURRENT_COMBINES, default=2" json:"max_concurrent_combines"`

	// Local result storage, used when S3 is not configured
	OutputDir string `env:"OUTPUT_DIR, default=/tmp/avmerge/out" json:"output_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MaxUploadBytes returns the request body limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Load reads configuration from environment variables using go-envconfig
// and validates the result.
func Load() (*Config, error) {
	return load(context.Background(), envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that limits and timeouts are usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.TempDir == "" {
		return ErrTempDirRequired
	}
	if c.CombineTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxConcurrentCombines <= 0 {
		return ErrInvalidConcurrency
	}
	if c.MaxUploadMB <= 0 {
		return ErrInvalidUploadLimit
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return newLogger(os.Stdout, c.LogFormat, c.LogLevel)
}

// NewLoggerTo is like NewLogger but writes to w. The CLI logs to stderr so
// stdout stays parseable.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	return newLogger(w, c.LogFormat, c.LogLevel)
}

func newLogger(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, OutputDir: %s, CombineTimeout: %s, MaxConcurrentCombines: %d, MaxUploadMB: %d, FFmpegPath: %s, FFprobePath: %s, AudioBitrate: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.OutputDir,
		c.CombineTimeout,
		c.MaxConcurrentCombines,
		c.MaxUploadMB,
		c.FFmpegPath,
		c.FFprobePath,
		c.AudioBitrate,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
