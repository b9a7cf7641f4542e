package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	return dir
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestDefaultIsValid(t *testing.T) {
	isolate(t)
	require.NoError(t, Default().Validate())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadLayersFileEnvAndFlags(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "voxgate.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"capture": {"threshold": 0.1, "device": "built-in", "silence_hang_ms": 900},
		"output": {"keep": true}
	}`), 0644))

	t.Setenv("VOXGATE_CAPTURE_DEVICE", "usb")
	t.Setenv("VOXGATE_CAPTURE_SILENCE_HANG_MS", "1000")

	cfg, err := Load(newFlags(t, "--config", path, "--silence-hang", "1500"))
	require.NoError(t, err)

	require.InDelta(t, 0.1, cfg.Capture.Threshold, 1e-9)
	require.True(t, cfg.Output.Keep)
	require.Equal(t, "usb", cfg.Capture.Device)
	require.Equal(t, 1500, cfg.Capture.SilenceHangMs)
	require.Equal(t, Default().Capture.SampleRate, cfg.Capture.SampleRate)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	dir := isolate(t)

	_, err := Load(newFlags(t, "--config", filepath.Join(dir, "nope.json")))
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	isolate(t)

	_, err := Load(newFlags(t, "--backend", "alsa"))
	require.Error(t, err)

	_, err = Load(newFlags(t, "--threshold", "1.5"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)

	tests := map[string]func(*Config){
		"fractional window":        func(c *Config) { c.Capture.SampleRate = 22050 },
		"three channels":           func(c *Config) { c.Capture.Channels = 3 },
		"min speech over cap":      func(c *Config) { c.Capture.MinSpeechMs = 40000 },
		"replay without file":      func(c *Config) { c.Capture.Backend = "replay" },
		"server without url":       func(c *Config) { c.Transcribe.Engine = "server" },
		"unknown engine":           func(c *Config) { c.Transcribe.Engine = "vosk" },
		"zero start ratio":         func(c *Config) { c.Capture.StartRatio = 0 },
		"bad metrics address":      func(c *Config) { c.Metrics.Addr = "not an address" },
		"unknown log level":        func(c *Config) { c.LogLevel = "chatty" },
		"negative min recording":   func(c *Config) { c.Capture.MinRecordingMs = -1 },
		"empty output directory":   func(c *Config) { c.Capture.OutputDir = "" },
		"invalid reply base url":   func(c *Config) { c.Reply.BaseURL = "::" },
		"negative whisper threads": func(c *Config) { c.Transcribe.Threads = -2 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestRecorderConversion(t *testing.T) {
	isolate(t)
	cfg := Default()
	cfg.Capture.Threshold = 0.05
	cfg.Capture.StartRatio = 0.8
	cfg.Capture.SilenceHangMs = 800

	rc := cfg.Recorder()
	require.NoError(t, rc.Validate())
	require.Equal(t, 16000, rc.Format.SampleRate)
	require.Equal(t, 800*time.Millisecond, rc.SilenceHang)
	require.Equal(t, 30*time.Second, rc.MaxDuration)
	require.InDelta(t, 0.05, rc.Threshold, 1e-9)
	require.InDelta(t, 0.04, rc.StartThreshold, 1e-9)
	require.Equal(t, cfg.Capture.OutputDir, rc.OutputDir)
}

func TestSaveRoundTripOmitsSecrets(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "saved", "config.json")

	cfg := Default()
	cfg.Capture.Device = "2"
	cfg.Transcribe.APIKey = "sk-secret"
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "sk-secret")

	loaded, err := Load(newFlags(t, "--config", path))
	require.NoError(t, err)
	require.Equal(t, "2", loaded.Capture.Device)
	require.Empty(t, loaded.Transcribe.APIKey)
}

func TestPathsFollowXDG(t *testing.T) {
	dir := isolate(t)
	if configPath() != filepath.Join(dir, "config", appName, "config.json") {
		t.Skip("platform does not use XDG directories")
	}
	require.Equal(t, filepath.Join(dir, "data", appName, "models"), ModelsPath())
}
