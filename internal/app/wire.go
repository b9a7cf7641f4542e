package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/voxgate/internal/audio"
	"github.com/petems/voxgate/internal/config"
	"github.com/petems/voxgate/internal/reply"
	"github.com/petems/voxgate/internal/transcribe"
)

const requestTimeout = 60 * time.Second

// NewBackend returns the capture backend named in cfg.
func NewBackend(cfg config.CaptureConfig, log zerolog.Logger) (audio.Backend, error) {
	switch cfg.Backend {
	case "portaudio":
		return audio.NewPortAudio(log), nil
	case "pulse":
		return audio.NewPulse(log), nil
	case "replay":
		if cfg.ReplayFile == "" {
			return nil, fmt.Errorf("replay backend needs a replay file")
		}
		return &audio.Replay{Path: cfg.ReplayFile, Realtime: cfg.Realtime}, nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Backend)
	}
}

// NewTranscriber returns the engine named in cfg and a function releasing it.
// Engine "none" yields a nil Transcriber.
func NewTranscriber(ctx context.Context, cfg config.TranscribeConfig, log zerolog.Logger) (transcribe.Transcriber, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Engine {
	case "openai":
		t, err := transcribe.NewOpenAI(transcribe.OpenAIOptions{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Language: cfg.Language,
			Timeout:  requestTimeout,
		})
		if err != nil {
			return nil, noop, err
		}
		return t, noop, nil

	case "server":
		t, err := transcribe.NewServer(cfg.ServerURL, cfg.Language, requestTimeout)
		if err != nil {
			return nil, noop, err
		}
		return t, noop, nil

	case "native":
		path, err := transcribe.NewModels(cfg.ModelsDir, log).Ensure(ctx, cfg.Model)
		if err != nil {
			return nil, noop, err
		}
		n, err := transcribe.NewNative(path, cfg.Language, cfg.Threads, log)
		if err != nil {
			return nil, noop, err
		}
		return n, n.Close, nil

	case "none":
		return nil, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown transcription engine %q", cfg.Engine)
	}
}

// NewReplier returns nil when replies are disabled.
func NewReplier(cfg config.ReplyConfig) (reply.Replier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	r, err := reply.NewOpenAI(reply.Options{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		History:      4,
		Timeout:      requestTimeout,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
