package config

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFrom(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return load(context.Background(), envconfig.MapLookuper(env))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadFrom(t, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/tmp/avmerge", cfg.TempDir)
	assert.Equal(t, "/tmp/avmerge/out", cfg.OutputDir)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Equal(t, "192k", cfg.AudioBitrate)
	assert.Equal(t, 10*time.Minute, cfg.CombineTimeout)
	assert.Equal(t, 2, cfg.MaxConcurrentCombines)
	assert.Equal(t, 200, cfg.MaxUploadMB)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := loadFrom(t, map[string]string{
		"PORT":                    "3000",
		"TEMP_DIR":                "/custom/temp",
		"OUTPUT_DIR":              "/custom/out",
		"FFMPEG_PATH":             "/opt/bin/ffmpeg",
		"FFPROBE_PATH":            "/opt/bin/ffprobe",
		"AUDIO_BITRATE":           "128k",
		"COMBINE_TIMEOUT":         "90s",
		"MAX_CONCURRENT_COMBINES": "4",
		"MAX_UPLOAD_MB":           "50",
		"S3_BUCKET":               "my-bucket",
		"S3_REGION":               "us-east-1",
		"S3_ENDPOINT":             "http://localhost:9000",
		"AWS_ACCESS_KEY_ID":       "access-key",
		"AWS_SECRET_ACCESS_KEY":   "secret-key",
		"LOG_FORMAT":              "json",
		"LOG_LEVEL":               "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.Equal(t, "/custom/out", cfg.OutputDir)
	assert.Equal(t, "/opt/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "/opt/bin/ffprobe", cfg.FFprobePath)
	assert.Equal(t, "128k", cfg.AudioBitrate)
	assert.Equal(t, 90*time.Second, cfg.CombineTimeout)
	assert.Equal(t, 4, cfg.MaxConcurrentCombines)
	assert.Equal(t, 50, cfg.MaxUploadMB)
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes())
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "http://localhost:9000", cfg.S3Endpoint)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.S3Enabled())
}

func TestLoad_FromProcessEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("COMBINE_TIMEOUT", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.CombineTimeout)
}

func TestLoad_ParseErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"port":    {"PORT": "not-a-number"},
		"timeout": {"COMBINE_TIMEOUT": "soon"},
		"limit":   {"MAX_UPLOAD_MB": "lots"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadFrom(t, env)
			require.Error(t, err)
		})
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want error
	}{
		{"zero port", map[string]string{"PORT": "0"}, ErrInvalidPort},
		{"port too large", map[string]string{"PORT": "70000"}, ErrInvalidPort},
		{"negative timeout", map[string]string{"COMBINE_TIMEOUT": "-1s"}, ErrInvalidTimeout},
		{"zero concurrency", map[string]string{"MAX_CONCURRENT_COMBINES": "0"}, ErrInvalidConcurrency},
		{"zero upload limit", map[string]string{"MAX_UPLOAD_MB": "0"}, ErrInvalidUploadLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFrom(t, tt.env)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:                  8080,
			TempDir:               "/tmp/avmerge",
			CombineTimeout:        time.Minute,
			MaxConcurrentCombines: 1,
			MaxUploadMB:           1,
		}
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing temp dir", func(t *testing.T) {
		cfg := valid()
		cfg.TempDir = ""
		assert.ErrorIs(t, cfg.Validate(), ErrTempDirRequired)
	})

	t.Run("zero timeout", func(t *testing.T) {
		cfg := valid()
		cfg.CombineTimeout = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidTimeout)
	})
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		TempDir:            "/tmp/test",
		CombineTimeout:     time.Minute,
		S3Bucket:           "bucket",
		S3Region:           "region",
		AWSAccessKeyID:     "access-key-id",
		AWSSecretAccessKey: "secret-key",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "1m0s")
	assert.Contains(t, str, "bucket")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-key")
	assert.NotContains(t, str, "access-key-id")
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf, "JSON", "info")
		logger.Info("test message", slog.String("job_id", "job-1"))
		logger.Debug("hidden")

		assert.Contains(t, buf.String(), `"msg":"test message"`)
		assert.Contains(t, buf.String(), `"job_id":"job-1"`)
		assert.NotContains(t, buf.String(), "hidden")
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf, "text", "debug")
		logger.Debug("visible")

		assert.Contains(t, buf.String(), "msg=visible")
		assert.Contains(t, buf.String(), "level=DEBUG")
	})

	t.Run("from config", func(t *testing.T) {
		cfg := &Config{LogFormat: "text", LogLevel: "warn"}
		require.NotNil(t, cfg.NewLogger())
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
