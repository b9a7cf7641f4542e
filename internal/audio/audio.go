package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeviceUnavailable means no capture device could be found or opened.
	ErrDeviceUnavailable = errors.New("audio: no capture device available")
	// ErrFormatNotSupported means the device cannot deliver the requested rate or channel count.
	ErrFormatNotSupported = errors.New("audio: format not supported")
	// ErrDeviceBusy is returned when another session already holds the device.
	ErrDeviceBusy = errors.New("audio: capture device already in use")
	// ErrCaptureIO wraps read failures that abort a running session.
	ErrCaptureIO = errors.New("audio: capture i/o failure")
	// ErrAlreadyStarted is returned by a second Start on the same session.
	ErrAlreadyStarted = errors.New("audio: session already started")
	// ErrStopped is returned by a Source read interrupted by Stop.
	ErrStopped = errors.New("audio: session stopped")
)

// BytesPerSample is fixed: every backend delivers signed 16-bit PCM.
const BytesPerSample = 2

// Format is the PCM layout requested from a device.
type Format struct {
	SampleRate int
	Channels   int
	WindowMs   int
}

// Validate checks that the format describes whole-sample frames.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrFormatNotSupported, f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: %d channels", ErrFormatNotSupported, f.Channels)
	}
	if f.WindowMs <= 0 {
		return fmt.Errorf("%w: buffer window %dms", ErrFormatNotSupported, f.WindowMs)
	}
	if (f.SampleRate*f.WindowMs)%1000 != 0 {
		return fmt.Errorf("%w: %dms window is not a whole number of samples at %dHz",
			ErrFormatNotSupported, f.WindowMs, f.SampleRate)
	}
	return nil
}

// FramesPerWindow is the number of sample frames (one sample per channel) in a window.
func (f Format) FramesPerWindow() int {
	return f.SampleRate * f.WindowMs / 1000
}

// SamplesPerWindow is the number of interleaved samples in a window.
func (f Format) SamplesPerWindow() int {
	return f.FramesPerWindow() * f.Channels
}

// Window is the nominal duration of one frame.
func (f Format) Window() time.Duration {
	return time.Duration(f.WindowMs) * time.Millisecond
}

// Frame is one buffer window of interleaved samples. Frames of a session
// share a format and arrive in Seq order without gaps.
type Frame struct {
	Seq      uint64
	Samples  []int16
	Format   Format
	Duration time.Duration
}

// Device is an enumerable input device.
type Device struct {
	Index    int
	ID       string // backend identifier used to reopen the device
	Name     string
	Channels int // max input channels, 0 when the backend cannot tell
	Default  bool
}

// Backend enumerates devices and opens raw sources on them.
type Backend interface {
	Name() string
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, dev Device, f Format) (Source, error)
}

// Source is the backend half of a session. Read fills buf with exactly one
// window of samples, blocking for at most about one window. It returns
// ErrStopped when stop is closed while waiting.
type Source interface {
	Start() error
	Read(stop <-chan struct{}, buf []int16) error
	Close() error
}
