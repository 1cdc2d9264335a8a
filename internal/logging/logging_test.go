package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/HerbHall/storefront/internal/config"
)

func TestOptionsFrom(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("logging.level", "debug")

	opts, err := OptionsFrom(config.New(v))
	require.NoError(t, err)
	assert.Equal(t, "debug", opts.Level)
	assert.Equal(t, 64, opts.MaxSizeMB)
	assert.True(t, opts.Compress)
}

func TestBuild_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := build(Options{Level: "warn"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestBuild_InvalidLevel(t *testing.T) {
	_, err := build(Options{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestBuild_TeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.log")
	var buf bytes.Buffer
	logger, err := build(Options{File: path, MaxSizeMB: 1}, &buf)
	require.NoError(t, err)

	logger.Info("catalog loaded")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "catalog loaded"))
	assert.Contains(t, buf.String(), "catalog loaded")
}

func TestStderr(t *testing.T) {
	var buf bytes.Buffer
	logger := Stderr(&buf, zapcore.WarnLevel)
	logger.Info("hidden")
	logger.Warn("fallback catalog in use")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "fallback catalog in use")
}
