package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/voxgate/internal/audio"
	"github.com/petems/voxgate/internal/config"
	"github.com/petems/voxgate/internal/hotkey"
	"github.com/petems/voxgate/internal/inject"
	"github.com/petems/voxgate/internal/observe"
	"github.com/petems/voxgate/internal/recorder"
	"github.com/petems/voxgate/internal/reply"
	"github.com/petems/voxgate/internal/transcribe"
)

// Config wires the collaborators. Transcriber, Replier, Injector, Controls
// and Permissions are optional.
type Config struct {
	Config      *config.Config
	Backend     audio.Backend
	Transcriber transcribe.Transcriber
	Replier     reply.Replier
	Injector    inject.Injector
	Controls    hotkey.Source
	Permissions func() error
	Metrics     *observe.Metrics
	Logger      zerolog.Logger
	Out         io.Writer
}

type App struct {
	cfg     *config.Config
	backend audio.Backend
	stt     transcribe.Transcriber
	replier reply.Replier
	inj     inject.Injector
	hk      hotkey.Source
	perms   func() error
	metrics *observe.Metrics
	log     zerolog.Logger
	out     io.Writer

	mu      sync.Mutex
	current *recorder.Controller
}

// Result is what one recording produced.
type Result struct {
	Outcome    recorder.Outcome
	Transcript string
	Reply      string
}

func New(cfg Config) *App {
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	return &App{
		cfg:     cfg.Config,
		backend: cfg.Backend,
		stt:     cfg.Transcriber,
		replier: cfg.Replier,
		inj:     cfg.Injector,
		hk:      cfg.Controls,
		perms:   cfg.Permissions,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		out:     out,
	}
}

// Devices lists the backend's input devices.
func (a *App) Devices(ctx context.Context) ([]audio.Device, error) {
	return a.backend.Devices(ctx)
}

// Once records a single utterance and processes it.
func (a *App) Once(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.watchControls(ctx)

	outcome, err := a.record(ctx)
	if err != nil {
		return Result{Outcome: outcome}, err
	}
	return a.process(ctx, outcome)
}

// Listen records and processes utterances until cancelled. Rejected and
// interrupted recordings are retried; device errors end the loop.
func (a *App) Listen(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.watchControls(ctx)

	a.log.Info().Msg("Listening")
	for {
		outcome, err := a.record(ctx)
		switch {
		case errors.Is(err, audio.ErrCaptureIO):
			a.log.Warn().Err(err).Msg("Capture interrupted, retrying")
			if !sleepCtx(ctx, 500*time.Millisecond) {
				return nil
			}
			continue
		case err != nil:
			return err
		}

		switch outcome.Kind {
		case recorder.Cancelled:
			a.log.Info().Msg("Stopped listening")
			return nil
		case recorder.Rejected:
			fmt.Fprintln(a.out, "Didn't catch that, try again.")
			continue
		}

		if _, err := a.process(ctx, outcome); err != nil {
			a.log.Error().Err(err).Msg("Failed to process recording")
		}
	}
}

func (a *App) record(ctx context.Context) (recorder.Outcome, error) {
	ctrl, err := recorder.New(a.cfg.Recorder(), a.openCapture, recorder.Options{
		Logger:  a.log,
		Metrics: a.metrics,
	})
	if err != nil {
		return recorder.Outcome{}, err
	}

	a.setCurrent(ctrl)
	defer a.setCurrent(nil)
	return ctrl.Run(ctx)
}

func (a *App) openCapture(ctx context.Context) (recorder.Capture, error) {
	if a.perms != nil {
		if err := a.perms(); err != nil {
			return nil, err
		}
	}
	s, err := audio.Open(ctx, a.backend, audio.ParseSelector(a.cfg.Capture.Device), a.cfg.Capture.Format(), audio.OpenOptions{Logger: a.log})
	if err != nil {
		return nil, err
	}
	a.log.Debug().Str("device", s.Device().Name).Str("backend", a.backend.Name()).Msg("Capture opened")
	return s, nil
}

// process transcribes a completed recording, asks for a reply and delivers
// the final text. Without a transcriber the recording is kept and reported.
func (a *App) process(ctx context.Context, outcome recorder.Outcome) (Result, error) {
	res := Result{Outcome: outcome}
	if outcome.Kind != recorder.Completed {
		return res, nil
	}

	path := outcome.Path()
	if a.stt == nil {
		fmt.Fprintf(a.out, "Saved %s (%s)\n", path, outcome.Duration().Round(time.Millisecond))
		return res, nil
	}

	start := time.Now()
	text, err := a.stt.Transcribe(ctx, path)
	a.metrics.RecordTranscribe(ctx, time.Since(start))
	if err != nil {
		return res, fmt.Errorf("transcribe %s: %w", path, err)
	}
	a.discard(outcome)

	res.Transcript = text
	if text == "" {
		a.log.Info().Msg("No speech recognized")
		return res, nil
	}
	fmt.Fprintf(a.out, "You: %s\n", text)

	final := text
	if a.replier != nil {
		answer, err := a.replier.Reply(ctx, text)
		if err != nil {
			return res, fmt.Errorf("reply: %w", err)
		}
		res.Reply = answer
		final = answer
		fmt.Fprintf(a.out, "Assistant: %s\n", answer)
	}

	if a.inj != nil {
		if err := a.inj.Deliver(ctx, final); err != nil {
			a.log.Warn().Err(err).Msg("Failed to copy to clipboard")
		}
	}
	return res, nil
}

func (a *App) discard(outcome recorder.Outcome) {
	if a.cfg.Output.Keep {
		return
	}
	if err := outcome.Artifact.Remove(); err != nil {
		a.log.Warn().Err(err).Str("path", outcome.Path()).Msg("Failed to delete recording")
	}
}

func (a *App) watchControls(ctx context.Context) {
	if a.hk == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.hk.Events():
			if !ok {
				return
			}
			a.dispatch(ev)
		}
	}
}

func (a *App) dispatch(ev hotkey.Event) {
	ctrl := a.active()
	if ctrl == nil {
		a.log.Debug().Str("event", ev.String()).Msg("No active recording")
		return
	}

	switch ev {
	case hotkey.Toggle:
		if ctrl.State() == recorder.StateWaiting {
			ctrl.Start()
		} else {
			ctrl.Stop()
		}
	case hotkey.Start:
		ctrl.Start()
	case hotkey.Stop:
		ctrl.Stop()
	case hotkey.Cancel:
		ctrl.Cancel()
	}
}

func (a *App) setCurrent(c *recorder.Controller) {
	a.mu.Lock()
	a.current = c
	a.mu.Unlock()
}

func (a *App) active() *recorder.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
