// Package recorder decides when a voice-activated recording starts and ends
// and whether its artifact is kept, cancelled or rejected.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/petems/voxgate/internal/audio"
	"github.com/petems/voxgate/internal/control"
	"github.com/petems/voxgate/internal/observe"
	"github.com/petems/voxgate/internal/sink"
	"github.com/petems/voxgate/internal/vad"
)

// sinkQueueDepth bounds frames waiting for the file writer.
const sinkQueueDepth = 16

// Capture is the part of an audio session the controller drives.
// *audio.Session satisfies it.
type Capture interface {
	Start() error
	Frames() <-chan audio.Frame
	Stop() error
	Err() error
}

// Opener opens the capture device once recording begins.
type Opener func(ctx context.Context) (Capture, error)

// Options carries optional collaborators.
type Options struct {
	Logger  zerolog.Logger
	Metrics *observe.Metrics
}

// Controller runs a single recording. It is not reusable.
type Controller struct {
	cfg      Config
	open     Opener
	detector vad.Detector
	log      zerolog.Logger
	metrics  *observe.Metrics

	signal    *control.Signal
	startCh   chan struct{}
	startOnce sync.Once
	used      atomic.Bool

	mu    sync.Mutex
	state State
}

// New validates cfg and returns a controller waiting for its start trigger.
func New(cfg Config, open Opener, opts Options) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("recorder config: %w", err)
	}
	if open == nil {
		return nil, errors.New("recorder: opener is required")
	}
	detector, err := vad.NewDetector(cfg.Threshold, cfg.StartThreshold)
	if err != nil {
		return nil, fmt.Errorf("recorder config: %w", err)
	}

	return &Controller{
		cfg:      cfg,
		open:     open,
		detector: detector,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		signal:   control.New(),
		startCh:  make(chan struct{}),
		state:    StateWaiting,
	}, nil
}

// Start is the manual begin trigger. Extra calls are ignored.
func (c *Controller) Start() {
	c.startOnce.Do(func() { close(c.startCh) })
}

// Stop requests a manual stop. It reports whether this request decided the
// stop reason.
func (c *Controller) Stop() bool {
	return c.signal.Fire(control.ManualStop)
}

// Cancel requests cancellation. It reports whether this request decided the
// stop reason.
func (c *Controller) Cancel() bool {
	return c.signal.Fire(control.Cancel)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reason returns the stop reason, or control.None while still running.
func (c *Controller) Reason() control.Reason {
	return c.signal.Reason()
}

// Run records until a stop reason wins and returns only once the artifact
// has been finalized or deleted. Cancelled and Rejected outcomes are not
// errors; device and I/O failures return a Failed outcome and the error.
// Cancelling ctx is treated as a Cancel trigger.
func (c *Controller) Run(ctx context.Context) (Outcome, error) {
	if !c.used.CompareAndSwap(false, true) {
		return Outcome{}, ErrControllerUsed
	}
	defer c.signal.Close()

	stopWatch := context.AfterFunc(ctx, func() { c.signal.Fire(control.Cancel) })
	defer stopWatch()

	if !c.cfg.AutoStart {
		select {
		case <-c.startCh:
		case <-c.signal.Done():
		}
	}
	// A stop before the device opens leaves nothing to keep.
	if c.signal.Fired() {
		return c.cancelled(ctx, nil, vad.Counters{}), nil
	}
	c.transition(EventStart)

	capture, err := c.open(ctx)
	if err != nil {
		return c.fail(ctx, err, nil, nil, vad.Counters{})
	}

	snk, err := sink.Create(c.cfg.OutputDir, c.cfg.Format)
	if err != nil {
		return c.fail(ctx, fmt.Errorf("%w: %v", audio.ErrCaptureIO, err), capture, nil, vad.Counters{})
	}

	c.signal.After(c.cfg.MaxDuration, control.HardCap)
	if err := capture.Start(); err != nil {
		return c.fail(ctx, err, capture, snk, vad.Counters{})
	}
	c.log.Info().Str("path", snk.Path()).Msg("Recording started")

	stats, err := c.pump(ctx, capture, snk)

	// Finalize only after the device has stopped delivering.
	if stopErr := capture.Stop(); stopErr != nil {
		c.log.Warn().Err(stopErr).Msg("Capture stop reported an error")
	}
	if err != nil {
		return c.fail(ctx, err, nil, snk, stats)
	}

	reason := c.signal.Reason()
	if reason == control.Cancel {
		return c.cancelled(ctx, snk, stats), nil
	}

	c.transition(EventStop)
	art, err := snk.Finalize()
	if err != nil {
		return c.fail(ctx, fmt.Errorf("%w: %v", audio.ErrCaptureIO, err), nil, nil, stats)
	}

	if rejection := c.validate(stats, art); rejection != nil {
		if rmErr := art.Remove(); rmErr != nil {
			c.log.Error().Err(rmErr).Str("path", art.Path).Msg("Failed to delete rejected recording")
		}
		c.transition(EventReject)
		c.log.Info().
			Str("reason", reason.String()).
			Dur("total", stats.Total).
			Dur("voiced", stats.Voiced).
			Err(rejection).
			Msg("Recording rejected")
		c.metrics.RecordOutcome(ctx, string(Rejected), reason.String(), 0)
		return Outcome{Kind: Rejected, Reason: reason, Rejection: rejection, Stats: stats}, nil
	}

	c.transition(EventFinalized)
	c.log.Info().
		Str("reason", reason.String()).
		Str("path", art.Path).
		Dur("duration", art.Duration).
		Dur("voiced", stats.Voiced).
		Dur("silence", stats.Silence).
		Int64("bytes", art.Size).
		Msg("Recording completed")
	c.metrics.RecordOutcome(ctx, string(Completed), reason.String(), art.Duration)
	return Outcome{Kind: Completed, Reason: reason, Artifact: art, Stats: stats}, nil
}

// pump runs the classifier on this goroutine and the file writer on a
// second one, returning once both have drained.
func (c *Controller) pump(ctx context.Context, capture Capture, snk *sink.Sink) (vad.Counters, error) {
	g, gctx := errgroup.WithContext(context.Background())
	toSink := make(chan audio.Frame, sinkQueueDepth)

	g.Go(func() error {
		for f := range toSink {
			if err := snk.Append(f); err != nil {
				return fmt.Errorf("%w: %v", audio.ErrCaptureIO, err)
			}
		}
		return nil
	})

	stats, err := c.classify(ctx, capture, toSink, gctx.Done())
	close(toSink)
	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}
	return stats, err
}

func (c *Controller) classify(ctx context.Context, capture Capture, toSink chan<- audio.Frame, sinkDone <-chan struct{}) (vad.Counters, error) {
	var stats vad.Counters
	frames := capture.Frames()

	for {
		select {
		case <-c.signal.Done():
			return stats, nil
		case <-sinkDone:
			return stats, nil
		case f, ok := <-frames:
			if !ok {
				if err := capture.Err(); err != nil {
					return stats, err
				}
				if c.signal.Fired() {
					return stats, nil
				}
				return stats, fmt.Errorf("%w: capture ended without a stop decision", audio.ErrCaptureIO)
			}
			// Frames arriving after the decision are not part of the recording.
			if c.signal.Fired() {
				return stats, nil
			}

			cls := c.detector.Classify(f.Samples, stats.StartedSpeech)
			stats.Observe(cls.Voiced, f.Duration)

			select {
			case toSink <- f:
			case <-sinkDone:
				return stats, nil
			}

			c.metrics.RecordFrame(ctx, cls.Voiced)
			c.log.Trace().
				Uint64("seq", f.Seq).
				Float64("energy", cls.Energy).
				Bool("voiced", cls.Voiced).
				Dur("silence", stats.Silence).
				Msg("Frame")

			c.evaluate(stats)
		}
	}
}

// evaluate offers every frame-driven stop condition that currently holds.
// External triggers that already fired keep precedence.
func (c *Controller) evaluate(stats vad.Counters) {
	var candidates []control.Reason
	if stats.StartedSpeech && stats.Voiced >= c.cfg.MinSpeech && stats.Silence >= c.cfg.SilenceHang {
		candidates = append(candidates, control.SilenceTimeout)
	}
	if stats.Total >= c.cfg.MaxDuration {
		candidates = append(candidates, control.HardCap)
	}
	if len(candidates) == 0 {
		return
	}
	if r, won := c.signal.Resolve(candidates...); won {
		c.log.Debug().Str("reason", r.String()).Dur("total", stats.Total).Msg("Stop condition met")
	}
}

func (c *Controller) validate(stats vad.Counters, art sink.Artifact) error {
	if !stats.StartedSpeech {
		return fmt.Errorf("%w: no speech in %s", ErrTooShortOrSilent, art.Duration)
	}
	if art.Duration < c.cfg.MinRecording {
		return fmt.Errorf("%w: %s is shorter than %s", ErrTooShortOrSilent, art.Duration, c.cfg.MinRecording)
	}
	return nil
}

func (c *Controller) cancelled(ctx context.Context, snk *sink.Sink, stats vad.Counters) Outcome {
	if snk != nil {
		if err := snk.Abandon(); err != nil {
			c.log.Error().Err(err).Msg("Failed to discard cancelled recording")
		}
	}
	c.transition(EventCancel)

	reason := c.signal.Reason()
	c.log.Info().Str("reason", reason.String()).Dur("total", stats.Total).Msg("Recording cancelled")
	c.metrics.RecordOutcome(ctx, string(Cancelled), reason.String(), 0)
	return Outcome{Kind: Cancelled, Reason: reason, Stats: stats}
}

func (c *Controller) fail(ctx context.Context, err error, capture Capture, snk *sink.Sink, stats vad.Counters) (Outcome, error) {
	if capture != nil {
		if stopErr := capture.Stop(); stopErr != nil {
			c.log.Warn().Err(stopErr).Msg("Capture stop reported an error")
		}
	}
	if snk != nil {
		if abandonErr := snk.Abandon(); abandonErr != nil {
			c.log.Error().Err(abandonErr).Msg("Failed to discard partial recording")
		}
	}
	c.transition(EventFail)

	reason := c.signal.Reason()
	c.log.Error().Err(err).Dur("total", stats.Total).Msg("Recording failed")
	c.metrics.RecordCaptureError(ctx, errorKind(err))
	c.metrics.RecordOutcome(ctx, string(Failed), reason.String(), 0)
	return Outcome{Kind: Failed, Reason: reason, Stats: stats}, err
}

func (c *Controller) transition(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := Transition(c.state, ev)
	if err != nil {
		c.log.Error().Err(err).Msg("Unexpected state transition")
		return
	}
	c.log.Debug().Str("from", string(c.state)).Str("to", string(next)).Msg("State changed")
	c.state = next
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, audio.ErrFormatNotSupported):
		return "format_not_supported"
	case errors.Is(err, audio.ErrDeviceBusy):
		return "device_busy"
	case errors.Is(err, audio.ErrCaptureIO):
		return "io"
	default:
		return "other"
	}
}
