package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/imgcompress/env_mode"
	"github.com/leeforge/imgcompress/media/processor"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func testOptions(dir string) ConfigOptions {
	opts := DefaultConfigOptions()
	opts.BasePath = dir
	return opts
}

func useMode(t *testing.T, mode env_mode.ENV_MODE) {
	t.Helper()
	env_mode.SetMode(mode)
	t.Cleanup(func() { env_mode.SetMode("") })
}

func TestLoadCompressorDefaults(t *testing.T) {
	useMode(t, env_mode.TestMode)

	cfg, _, err := LoadCompressor(testOptions(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, processor.DefaultMaxDecodePixels, cfg.Processor.MaxDecodePixels)
	assert.False(t, cfg.Processor.DiscardScratch)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 100, cfg.Queue.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.Queue.StopTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "logs", cfg.Logging.Director)
	assert.Equal(t, processor.Standard, cfg.SizeClass())
}

func TestLoadCompressorFromFiles(t *testing.T) {
	useMode(t, env_mode.TestMode)
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
default-class: miniature
processor:
  scratch-dir: /var/tmp/scratch
  discard-scratch: true
queue:
  workers: 2
  stop-timeout: 5s
logging:
  level: debug
  format: console
`)
	writeConfig(t, dir, "config.test.yaml", `
queue:
  workers: 8
`)

	cfg, _, err := LoadCompressor(testOptions(dir))
	require.NoError(t, err)

	assert.Equal(t, processor.Miniature, cfg.SizeClass())
	assert.Equal(t, "/var/tmp/scratch", cfg.Processor.ScratchDir)
	assert.True(t, cfg.Processor.DiscardScratch)
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.Equal(t, 100, cfg.Queue.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.Queue.StopTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadCompressorEnvOverride(t *testing.T) {
	useMode(t, env_mode.TestMode)
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
queue:
  workers: 2
  queue-size: 10
`)
	t.Setenv("IMGCOMPRESS_QUEUE_WORKERS", "6")
	t.Setenv("IMGCOMPRESS_QUEUE_QUEUE_SIZE", "32")

	cfg, _, err := LoadCompressor(testOptions(dir))
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Queue.Workers)
	assert.Equal(t, 32, cfg.Queue.QueueSize)
}

func TestLoadCompressorRejectsInvalid(t *testing.T) {
	useMode(t, env_mode.TestMode)

	tests := []struct {
		name string
		body string
	}{
		{"unknown class", "default-class: middle\n"},
		{"negative pixels", "processor:\n  max-decode-pixels: -5\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"bad format", "logging:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "config.yaml", tt.body)

			_, _, err := LoadCompressor(testOptions(dir))
			assert.Error(t, err)
		})
	}
}

func TestNewConfigRequiresFile(t *testing.T) {
	_, err := NewConfig(testOptions(t.TempDir()))
	assert.Error(t, err)
}

func TestConfigSnapshotRestore(t *testing.T) {
	useMode(t, env_mode.TestMode)
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "queue:\n  workers: 3\n")

	c, err := NewConfig(testOptions(dir))
	require.NoError(t, err)

	_, err = c.Snapshot()
	require.NoError(t, err)
	c.Set("queue.workers", 9)
	assert.Equal(t, 9, c.Get("queue.workers"))

	require.NoError(t, c.Restore())
	assert.Equal(t, 3, c.Get("queue.workers"))
}

func TestConfigExport(t *testing.T) {
	useMode(t, env_mode.TestMode)
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "default-class: miniature\n")

	c, err := NewConfig(testOptions(dir))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "exported.yaml")
	require.NoError(t, c.Export(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "miniature")
}
