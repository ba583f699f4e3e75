package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  config.LoggerConfig
		wantErr bool
	}{
		{
			name:   "valid json config",
			config: config.LoggerConfig{Level: "debug", Format: "json"},
		},
		{
			name:   "valid console config",
			config: config.LoggerConfig{Level: "info", Format: "console"},
		},
		{
			name:    "invalid level",
			config:  config.LoggerConfig{Level: "invalid", Format: "json"},
			wantErr: true,
		},
		{
			name:   "empty config uses defaults",
			config: config.LoggerConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, logger)
			}
		})
	}
}

func TestRotatingFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.log")

	logger, err := New(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{"stderr"},
		File:        path,
		MaxSizeMB:   1,
		MaxBackups:  1,
	})
	require.NoError(t, err)

	logger.WithComponent("test").Infow("rotating sink check", "title_id", "SCUS97399")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rotating sink check")
	assert.Contains(t, string(data), "SCUS97399")
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestLogProbe_AllOutcomes(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	ctx := context.Background()
	logger.LogProbe(ctx, "SCUS97399", "http://example.test/a", 200, time.Millisecond, nil)
	logger.LogProbe(ctx, "SCUS97398", "http://example.test/b", 404, time.Millisecond, nil)
	logger.LogProbe(ctx, "SCUS97397", "http://example.test/c", 0, time.Millisecond, errors.New("connection reset"))
	logger.LogDiscovery(ctx, "SCUS97399", "xml/SCUS97399.xml", 6)
}

func TestStartOperation(t *testing.T) {
	logger := NewNop()

	ctx, span := logger.StartOperation(context.Background(), "test.operation", "key", "value")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)

	logger.FinishOperation(ctx, span, "test.operation", time.Now(), nil)
}

func TestContextRoundTrip(t *testing.T) {
	logger := NewNop().WithRunID("run-1")
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
	assert.NotNil(t, FromContext(WithLogger(context.Background(), nil)))
}

func TestLoggerConcurrency(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			logger.WithPrefix("physical-legacy", "SCUS").Infow("concurrent log", "goroutine", id)
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
