package logger

import (
	"path/filepath"
	"testing"

	"github.com/safar/go-marketplace/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, err := New(config.AppConfig{Mode: config.AppModeProduction, LogLevel: "info", LogFile: path})
	require.NoError(t, err)

	log.Info("order placed", zap.Int64("order_id", 7))
	_ = log.Sync()

	assert.FileExists(t, path)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.AppConfig{Mode: config.AppModeDevelop, LogLevel: "chatty"})
	assert.Error(t, err)
}

func TestNewRespectsLevel(t *testing.T) {
	log, err := New(config.AppConfig{Mode: config.AppModeDevelop, LogLevel: "warn"})
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zap.InfoLevel))
	assert.True(t, log.Core().Enabled(zap.ErrorLevel))
}
