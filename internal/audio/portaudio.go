package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// PortAudio captures through the PortAudio library.
type PortAudio struct {
	log zerolog.Logger
}

// NewPortAudio creates a PortAudio backend. The library is initialized per
// call so the backend holds no global state between sessions.
func NewPortAudio(log zerolog.Logger) *PortAudio {
	return &PortAudio{log: log}
}

func (p *PortAudio) Name() string { return "portaudio" }

// Devices lists input-capable devices. Index is the PortAudio device index.
func (p *PortAudio) Devices(_ context.Context) ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize PortAudio: %v", ErrDeviceUnavailable, err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	defaultInfo, _ := portaudio.DefaultInputDevice()

	devices := make([]Device, 0, len(infos))
	for i, d := range infos {
		if d.MaxInputChannels <= 0 {
			continue
		}
		devices = append(devices, Device{
			Index:    i,
			ID:       d.Name,
			Name:     d.Name,
			Channels: d.MaxInputChannels,
			Default:  defaultInfo != nil && d.Name == defaultInfo.Name,
		})
	}
	if len(devices) == 0 {
		return nil, ErrDeviceUnavailable
	}
	return devices, nil
}

// Open negotiates a 16-bit input stream on dev.
func (p *PortAudio) Open(_ context.Context, dev Device, f Format) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize PortAudio: %v", ErrDeviceUnavailable, err)
	}

	src, err := p.open(dev, f)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	return src, nil
}

func (p *PortAudio) open(dev Device, f Format) (*paSource, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if dev.Index < 0 || dev.Index >= len(infos) || infos[dev.Index].Name != dev.ID {
		return nil, fmt.Errorf("%w: device %q disappeared", ErrDeviceUnavailable, dev.Name)
	}
	info := infos[dev.Index]

	buffer := make([]int16, f.SamplesPerWindow())
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: f.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(f.SampleRate),
		FramesPerBuffer: f.FramesPerWindow(),
	}

	if err := portaudio.IsFormatSupported(params, buffer); err != nil {
		return nil, fmt.Errorf("%w: %q at %dHz x%d: %v",
			ErrFormatNotSupported, dev.Name, f.SampleRate, f.Channels, err)
	}

	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open audio stream: %v", ErrDeviceUnavailable, err)
	}

	return &paSource{stream: stream, buffer: buffer, log: p.log}, nil
}

// paSource reads one window per blocking PortAudio read.
type paSource struct {
	stream  *portaudio.Stream
	buffer  []int16
	started bool
	log     zerolog.Logger
}

func (s *paSource) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	s.started = true
	return nil
}

func (s *paSource) Read(stop <-chan struct{}, buf []int16) error {
	select {
	case <-stop:
		return ErrStopped
	default:
	}

	if err := s.stream.Read(); err != nil {
		// An overflow still leaves a full buffer; the lost audio predates it.
		if !errors.Is(err, portaudio.InputOverflowed) {
			return err
		}
		s.log.Warn().Msg("Audio input overflowed")
	}
	copy(buf, s.buffer)
	return nil
}

func (s *paSource) Close() error {
	var errs []error
	if s.started {
		errs = append(errs, s.stream.Stop())
	}
	errs = append(errs, s.stream.Close(), portaudio.Terminate())
	return errors.Join(errs...)
}
