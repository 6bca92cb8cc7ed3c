package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"careops-alert-engine/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.LogConfig
	}{
		{
			name: "stdout json",
			cfg: &config.LogConfig{
				Level:       "info",
				Encoding:    "json",
				LogToStdout: true,
			},
		},
		{
			name: "console encoding",
			cfg: &config.LogConfig{
				Level:       "debug",
				Encoding:    "console",
				LogToStdout: true,
			},
		},
		{
			name: "unknown level defaults to info",
			cfg: &config.LogConfig{
				Level:       "invalid",
				Encoding:    "json",
				LogToStdout: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			assert.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	cfg := &config.LogConfig{
		Level:     "info",
		Encoding:  "json",
		LogToFile: true,
		Directory: dir,
		MaxSize:   1,
	}

	logger, err := NewLogger(cfg)
	assert.NoError(t, err)
	assert.NotNil(t, logger)
	assert.DirExists(t, dir)

	logger.Info("file message", "key", "value")
	logger.Sync()
}

func TestLoggerMethods(t *testing.T) {
	cfg := &config.LogConfig{
		Level:       "debug",
		Encoding:    "json",
		LogToStdout: true,
	}

	logger, err := NewLogger(cfg)
	assert.NoError(t, err)
	assert.NotNil(t, logger)

	// Test each log level
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")
}
