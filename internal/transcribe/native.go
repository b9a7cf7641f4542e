//go:build whisper

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog"
)

// Native runs a whisper.cpp model in-process. libwhisper and whisper.h must
// be reachable through LIBRARY_PATH and C_INCLUDE_PATH at build time.
type Native struct {
	mu       sync.Mutex
	model    whisperlib.Model
	language string
	threads  int
	log      zerolog.Logger
}

// NewNative loads the model at modelPath.
func NewNative(modelPath, language string, threads int, log zerolog.Logger) (*Native, error) {
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	return &Native{model: model, language: language, threads: threads, log: log}, nil
}

// Transcribe implements Transcriber. Calls are serialized.
func (n *Native) Transcribe(ctx context.Context, path string) (string, error) {
	samples, rate, err := LoadSamples(path)
	if err != nil {
		return "", err
	}
	if rate != whisperSampleRate {
		return "", fmt.Errorf("whisper needs %d Hz audio, got %d Hz", whisperSampleRate, rate)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.model == nil {
		return "", errors.New("whisper: model closed")
	}

	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("failed to create context: %w", err)
	}
	if n.threads > 0 {
		wctx.SetThreads(uint(n.threads))
	}
	if n.language != "" && n.language != "auto" {
		if err := wctx.SetLanguage(n.language); err != nil {
			n.log.Warn().Err(err).Str("language", n.language).Msg("Failed to set language, using default")
		}
	}
	wctx.SetTranslate(false)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process failed: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the model.
func (n *Native) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.model == nil {
		return nil
	}
	err := n.model.Close()
	n.model = nil
	return err
}
