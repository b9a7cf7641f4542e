package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/petems/voxgate/internal/audio"
	"github.com/petems/voxgate/internal/recorder"
)

const appName = "voxgate"

type Config struct {
	LogLevel   string           `mapstructure:"log_level" json:"log_level" validate:"oneof=trace debug info warn error"`
	Capture    CaptureConfig    `mapstructure:"capture" json:"capture"`
	Transcribe TranscribeConfig `mapstructure:"transcribe" json:"transcribe"`
	Reply      ReplyConfig      `mapstructure:"reply" json:"reply"`
	Output     OutputConfig     `mapstructure:"output" json:"output"`
	Metrics    MetricsConfig    `mapstructure:"metrics" json:"metrics"`
}

type CaptureConfig struct {
	SampleRate     int     `mapstructure:"sample_rate" json:"sample_rate" validate:"min=8000,max=192000"`
	Channels       int     `mapstructure:"channels" json:"channels" validate:"min=1,max=2"`
	WindowMs       int     `mapstructure:"window_ms" json:"window_ms" validate:"min=5,max=1000"`
	MinSpeechMs    int     `mapstructure:"min_speech_ms" json:"min_speech_ms" validate:"gt=0"`
	SilenceHangMs  int     `mapstructure:"silence_hang_ms" json:"silence_hang_ms" validate:"gt=0"`
	MaxDurationMs  int     `mapstructure:"max_duration_ms" json:"max_duration_ms" validate:"gt=0"`
	MinRecordingMs int     `mapstructure:"min_recording_ms" json:"min_recording_ms" validate:"gte=0"`
	Threshold      float64 `mapstructure:"threshold" json:"threshold" validate:"gt=0,lte=1"`
	StartRatio     float64 `mapstructure:"start_ratio" json:"start_ratio" validate:"gt=0,lte=1"`
	AutoStart      bool    `mapstructure:"auto_start" json:"auto_start"`
	Device         string  `mapstructure:"device" json:"device"` // index, name substring or "default"
	Backend        string  `mapstructure:"backend" json:"backend" validate:"oneof=portaudio pulse replay"`
	ReplayFile     string  `mapstructure:"replay_file" json:"replay_file"`
	Realtime       bool    `mapstructure:"realtime" json:"realtime"`
	OutputDir      string  `mapstructure:"output_dir" json:"output_dir" validate:"required"`
}

type TranscribeConfig struct {
	Engine    string `mapstructure:"engine" json:"engine" validate:"oneof=openai server native none"`
	Model     string `mapstructure:"model" json:"model"`       // "whisper-1", "base.en", etc.
	Language  string `mapstructure:"language" json:"language"` // "auto", "en", etc.
	ServerURL string `mapstructure:"server_url" json:"server_url" validate:"omitempty,url"`
	BaseURL   string `mapstructure:"base_url" json:"base_url" validate:"omitempty,url"`
	APIKey    string `mapstructure:"api_key" json:"-"`
	Threads   int    `mapstructure:"threads" json:"threads" validate:"gte=0"`
	ModelsDir string `mapstructure:"models_dir" json:"models_dir"`
}

type ReplyConfig struct {
	Enabled      bool   `mapstructure:"enabled" json:"enabled"`
	Model        string `mapstructure:"model" json:"model"`
	SystemPrompt string `mapstructure:"system_prompt" json:"system_prompt"`
	BaseURL      string `mapstructure:"base_url" json:"base_url" validate:"omitempty,url"`
	APIKey       string `mapstructure:"api_key" json:"-"`
}

type OutputConfig struct {
	Keep      bool `mapstructure:"keep" json:"keep"`
	Clipboard bool `mapstructure:"clipboard" json:"clipboard"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" json:"addr" validate:"omitempty,hostname_port"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"log-level":    "log_level",
	"device":       "capture.device",
	"backend":      "capture.backend",
	"replay-file":  "capture.replay_file",
	"realtime":     "capture.realtime",
	"threshold":    "capture.threshold",
	"start-ratio":  "capture.start_ratio",
	"silence-hang": "capture.silence_hang_ms",
	"max-duration": "capture.max_duration_ms",
	"auto-start":   "capture.auto_start",
	"output-dir":   "capture.output_dir",
	"engine":       "transcribe.engine",
	"model":        "transcribe.model",
	"language":     "transcribe.language",
	"server-url":   "transcribe.server_url",
	"reply":        "reply.enabled",
	"keep":         "output.keep",
	"clipboard":    "output.clipboard",
	"metrics-addr": "metrics.addr",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Capture: CaptureConfig{
			SampleRate:     16000,
			Channels:       1,
			WindowMs:       30,
			MinSpeechMs:    300,
			SilenceHangMs:  1200,
			MaxDurationMs:  30000,
			MinRecordingMs: 500,
			Threshold:      0.02,
			StartRatio:     0.8,
			AutoStart:      true,
			Device:         "default",
			Backend:        "portaudio",
			Realtime:       true,
			OutputDir:      filepath.Join(os.TempDir(), appName),
		},
		Transcribe: TranscribeConfig{
			Engine:    "openai",
			Model:     "whisper-1",
			Language:  "auto",
			ModelsDir: ModelsPath(),
		},
		Reply: ReplyConfig{
			Enabled:      false,
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a concise voice assistant. Answer in one or two sentences.",
		},
		Output: OutputConfig{
			Keep:      false,
			Clipboard: false,
		},
	}
}

// RegisterFlags adds the overridable settings to flags. Flag defaults are
// informational; unset flags never override file or environment values.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("config", "", "config file (default "+configPath()+")")
	flags.String("log-level", d.LogLevel, "log level: trace, debug, info, warn, error")
	flags.String("device", d.Capture.Device, "input device index or name substring")
	flags.String("backend", d.Capture.Backend, "capture backend: portaudio, pulse, replay")
	flags.String("replay-file", "", "WAV file for the replay backend")
	flags.Bool("realtime", d.Capture.Realtime, "pace the replay backend in real time")
	flags.Float64("threshold", d.Capture.Threshold, "normalized voiced energy threshold")
	flags.Float64("start-ratio", d.Capture.StartRatio, "onset threshold as a fraction of --threshold")
	flags.Int("silence-hang", d.Capture.SilenceHangMs, "trailing silence in ms that ends a recording")
	flags.Int("max-duration", d.Capture.MaxDurationMs, "hard cap in ms")
	flags.Bool("auto-start", d.Capture.AutoStart, "start recording without waiting for a trigger")
	flags.String("output-dir", d.Capture.OutputDir, "directory for recordings")
	flags.String("engine", d.Transcribe.Engine, "transcription engine: openai, server, native, none")
	flags.String("model", d.Transcribe.Model, "transcription model")
	flags.String("language", d.Transcribe.Language, "spoken language or auto")
	flags.String("server-url", "", "whisper.cpp server URL for the server engine")
	flags.Bool("reply", d.Reply.Enabled, "send transcripts to the reply model")
	flags.Bool("keep", d.Output.Keep, "keep recordings after transcription")
	flags.Bool("clipboard", d.Output.Clipboard, "copy results to the clipboard")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
}

// Load layers defaults, the config file, VOXGATE_* environment variables
// and changed flags, in that order. A missing default config file is not
// an error; a missing explicit one is.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, explicit := configPath(), false
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			path, explicit = f.Value.String(), true
		}
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("capture.sample_rate", d.Capture.SampleRate)
	v.SetDefault("capture.channels", d.Capture.Channels)
	v.SetDefault("capture.window_ms", d.Capture.WindowMs)
	v.SetDefault("capture.min_speech_ms", d.Capture.MinSpeechMs)
	v.SetDefault("capture.silence_hang_ms", d.Capture.SilenceHangMs)
	v.SetDefault("capture.max_duration_ms", d.Capture.MaxDurationMs)
	v.SetDefault("capture.min_recording_ms", d.Capture.MinRecordingMs)
	v.SetDefault("capture.threshold", d.Capture.Threshold)
	v.SetDefault("capture.start_ratio", d.Capture.StartRatio)
	v.SetDefault("capture.auto_start", d.Capture.AutoStart)
	v.SetDefault("capture.device", d.Capture.Device)
	v.SetDefault("capture.backend", d.Capture.Backend)
	v.SetDefault("capture.replay_file", d.Capture.ReplayFile)
	v.SetDefault("capture.realtime", d.Capture.Realtime)
	v.SetDefault("capture.output_dir", d.Capture.OutputDir)

	v.SetDefault("transcribe.engine", d.Transcribe.Engine)
	v.SetDefault("transcribe.model", d.Transcribe.Model)
	v.SetDefault("transcribe.language", d.Transcribe.Language)
	v.SetDefault("transcribe.server_url", d.Transcribe.ServerURL)
	v.SetDefault("transcribe.base_url", d.Transcribe.BaseURL)
	v.SetDefault("transcribe.api_key", d.Transcribe.APIKey)
	v.SetDefault("transcribe.threads", d.Transcribe.Threads)
	v.SetDefault("transcribe.models_dir", d.Transcribe.ModelsDir)

	v.SetDefault("reply.enabled", d.Reply.Enabled)
	v.SetDefault("reply.model", d.Reply.Model)
	v.SetDefault("reply.system_prompt", d.Reply.SystemPrompt)
	v.SetDefault("reply.base_url", d.Reply.BaseURL)
	v.SetDefault("reply.api_key", d.Reply.APIKey)

	v.SetDefault("output.keep", d.Output.Keep)
	v.SetDefault("output.clipboard", d.Output.Clipboard)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Validate checks field ranges and the rules that span fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	if err := c.Capture.Format().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Capture.MinSpeechMs > c.Capture.MaxDurationMs {
		errs = append(errs, fmt.Errorf("min_speech_ms %d exceeds max_duration_ms %d", c.Capture.MinSpeechMs, c.Capture.MaxDurationMs))
	}
	if c.Capture.Backend == "replay" && c.Capture.ReplayFile == "" {
		errs = append(errs, errors.New("replay backend needs replay_file"))
	}
	if c.Transcribe.Engine == "server" && c.Transcribe.ServerURL == "" {
		errs = append(errs, errors.New("server engine needs server_url"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Format returns the capture format.
func (c CaptureConfig) Format() audio.Format {
	return audio.Format{SampleRate: c.SampleRate, Channels: c.Channels, WindowMs: c.WindowMs}
}

// Recorder converts the capture settings into a controller configuration.
func (c *Config) Recorder() recorder.Config {
	cc := c.Capture
	return recorder.Config{
		Format:         cc.Format(),
		MinSpeech:      ms(cc.MinSpeechMs),
		SilenceHang:    ms(cc.SilenceHangMs),
		MaxDuration:    ms(cc.MaxDurationMs),
		MinRecording:   ms(cc.MinRecordingMs),
		Threshold:      cc.Threshold,
		StartThreshold: cc.Threshold * cc.StartRatio,
		AutoStart:      cc.AutoStart,
		OutputDir:      cc.OutputDir,
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Save writes the config to path, or to the default location when path is
// empty. API keys are never written.
func (c *Config) Save(path string) error {
	if path == "" {
		path = configPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.json")
}

// ModelsPath returns the platform-specific models directory path
func ModelsPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, appName, "models")
}
