package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	t.Setenv("MODEL_PATH", "/models/lift.onnx")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, EngineOpenCV, cfg.Engine)
	assert.Equal(t, "/models/lift.onnx", cfg.ModelPath)
	assert.Equal(t, 600, cfg.MaxVideoWidth)
	assert.Equal(t, 30*time.Millisecond, cfg.FrameDelay)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 640, cfg.InputSize)
}

func TestLoadFile_TOMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phasewatch.toml")
	content := `
port = "9090"
engine = "remote"
remote_engine_url = "http://detector:8000/"
max_video_width = 800
frame_delay = "10ms"
idle_timeout = "2m"
log_level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("PORT", "7070")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port, "environment wins over file")
	assert.Equal(t, EngineRemote, cfg.Engine)
	assert.Equal(t, "http://detector:8000", cfg.RemoteEngineURL)
	assert.Equal(t, 800, cfg.MaxVideoWidth)
	assert.Equal(t, 10*time.Millisecond, cfg.FrameDelay)
	assert.Equal(t, 2*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFile_EnvDuration(t *testing.T) {
	t.Setenv("MODEL_PATH", "m.onnx")
	t.Setenv("FRAME_DELAY", "0s")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Zero(t, cfg.FrameDelay)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid opencv", func(c *Config) { c.ModelPath = "m.onnx" }, false},
		{"opencv without model", func(c *Config) {}, true},
		{"remote without url", func(c *Config) { c.Engine = EngineRemote }, true},
		{"remote with url", func(c *Config) { c.Engine = EngineRemote; c.RemoteEngineURL = "http://x" }, false},
		{"unknown engine", func(c *Config) { c.Engine = "tensorrt"; c.ModelPath = "m" }, true},
		{"bad threshold", func(c *Config) { c.ModelPath = "m"; c.ConfThreshold = 1.5 }, true},
		{"bad input size", func(c *Config) { c.ModelPath = "m"; c.InputSize = 100 }, true},
		{"negative delay", func(c *Config) { c.ModelPath = "m"; c.FrameDelay = -time.Second }, true},
		{"negative idle timeout", func(c *Config) { c.ModelPath = "m"; c.IdleTimeout = -time.Second }, true},
		{"bad jpeg quality", func(c *Config) { c.ModelPath = "m"; c.JPEGQuality = 0 }, true},
		{"bad log level", func(c *Config) { c.ModelPath = "m"; c.LogLevel = "trace" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
