// Package audio handles device discovery, selection, and PCM capture sessions.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// frameQueueDepth bounds how far a slow consumer may fall behind the device.
const frameQueueDepth = 64

// deviceHeld guards the single capture device shared by the process.
var deviceHeld atomic.Bool

// OpenOptions carries optional collaborators for Open.
type OpenOptions struct {
	Logger zerolog.Logger
}

// Session owns an open device and delivers its frames in order.
type Session struct {
	device Device
	format Format
	src    Source
	log    zerolog.Logger

	frames chan Frame
	stop   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	err     error

	stopOnce sync.Once
	stopErr  error
}

// Open selects a device on b, negotiates f and claims the device for this
// session. A second Open while a session is active fails with ErrDeviceBusy.
func Open(ctx context.Context, b Backend, sel Selector, f Format, opts OpenOptions) (*Session, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if !deviceHeld.CompareAndSwap(false, true) {
		return nil, ErrDeviceBusy
	}

	s, err := open(ctx, b, sel, f, opts.Logger)
	if err != nil {
		deviceHeld.Store(false)
		return nil, err
	}
	return s, nil
}

func open(ctx context.Context, b Backend, sel Selector, f Format, log zerolog.Logger) (*Session, error) {
	devices, err := b.Devices(ctx)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, b.Name(), err)
	}

	dev, matched, err := SelectDevice(devices, sel)
	if err != nil {
		return nil, err
	}
	if !matched {
		log.Warn().
			Str("selector", sel.String()).
			Str("device", dev.Name).
			Msg("No device matched selector, falling back to first device")
	}

	if dev.Channels > 0 && f.Channels > dev.Channels {
		return nil, fmt.Errorf("%w: %q supports %d channels, %d requested",
			ErrFormatNotSupported, dev.Name, dev.Channels, f.Channels)
	}

	src, err := b.Open(ctx, dev, f)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("backend", b.Name()).
		Int("index", dev.Index).
		Str("device", dev.Name).
		Int("sample_rate", f.SampleRate).
		Int("channels", f.Channels).
		Int("window_ms", f.WindowMs).
		Msg("Capture device opened")

	return &Session{
		device: dev,
		format: f,
		src:    src,
		log:    log,
		frames: make(chan Frame, frameQueueDepth),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Device returns the selected device.
func (s *Session) Device() Device { return s.device }

// Format returns the negotiated format.
func (s *Session) Format() Format { return s.format }

// Frames is closed when delivery ends, either by Stop or by a read failure.
func (s *Session) Frames() <-chan Frame { return s.frames }

// Start begins asynchronous delivery. It may succeed only once.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	if err := s.src.Start(); err != nil {
		return fmt.Errorf("%w: start stream: %v", ErrCaptureIO, err)
	}
	s.started = true
	go s.run()
	return nil
}

// Stop halts delivery, waits for the delivery goroutine to exit, closes the
// device and releases it. Repeated and concurrent calls stop once and return
// the same result.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		started := s.started
		s.mu.Unlock()

		close(s.stop)
		if started {
			<-s.done
		} else {
			close(s.frames)
		}

		s.stopErr = s.src.Close()
		deviceHeld.Store(false)
		s.log.Debug().Str("device", s.device.Name).Msg("Capture device released")
	})
	return s.stopErr
}

// Err reports the failure that ended delivery early, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) run() {
	defer close(s.done)
	defer close(s.frames)

	n := s.format.SamplesPerWindow()
	for seq := uint64(0); ; seq++ {
		buf := make([]int16, n)
		if err := s.src.Read(s.stop, buf); err != nil {
			if errors.Is(err, ErrStopped) || s.stopping() {
				return
			}
			s.mu.Lock()
			s.err = fmt.Errorf("%w: %v", ErrCaptureIO, err)
			s.mu.Unlock()
			s.log.Error().Err(err).Uint64("seq", seq).Msg("Capture read failed")
			return
		}

		frame := Frame{
			Seq:      seq,
			Samples:  buf,
			Format:   s.format,
			Duration: s.format.Window(),
		}
		select {
		case s.frames <- frame:
		case <-s.stop:
			return
		}
	}
}

func (s *Session) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}
