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

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidConfig is returned when a loaded value is out of range.
	ErrInvalidConfig = errors.New("config: invalid value")
	// ErrS3Incomplete is returned when only one of S3_BUCKET and S3_REGION is set.
	ErrS3Incomplete = errors.New("config: S3_BUCKET and S3_REGION must be set together")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`
	MaxUploadBytes int64    `env:"MAX_UPLOAD_BYTES, default=268435456" json:"max_upload_bytes" validate:"gt=0"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/videomaker" json:"temp_dir" validate:"required"`

	// Engine settings
	FFmpegPath          string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path" validate:"required"`
	FFprobePath         string        `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path" validate:"required"`
	FFmpegVersionPrefix string        `env:"FFMPEG_VERSION_PREFIX" json:"ffmpeg_version_prefix,omitempty"`
	ProbeTimeout        time.Duration `env:"PROBE_TIMEOUT, default=30s" json:"probe_timeout" validate:"gt=0"`
	RunTimeout          time.Duration `env:"RUN_TIMEOUT, default=30m" json:"run_timeout" validate:"gt=0"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=json text"`                // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level" validate:"oneof=debug info warn warning error"` // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom reads configuration from the given lookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and that S3 settings are complete.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return ErrS3Incomplete
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger with an explicit destination.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, FFmpegPath: %s, FFprobePath: %s, FFmpegVersionPrefix: %s, ProbeTimeout: %s, RunTimeout: %s, MaxUploadBytes: %d, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.FFmpegPath,
		c.FFprobePath,
		c.FFmpegVersionPrefix,
		c.ProbeTimeout,
		c.RunTimeout,
		c.MaxUploadBytes,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
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
