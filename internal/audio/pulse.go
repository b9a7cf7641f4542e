package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/rs/zerolog"
)

const pulseAppName = "voxgate"

// pulseQueueDepth is the number of windows buffered between the Pulse
// callback and the session reader.
const pulseQueueDepth = 64

// Pulse captures from a PulseAudio (or PipeWire-Pulse) server.
type Pulse struct {
	log zerolog.Logger
}

// NewPulse creates a PulseAudio backend.
func NewPulse(log zerolog.Logger) *Pulse {
	return &Pulse{log: log}
}

func (p *Pulse) Name() string { return "pulse" }

// Devices lists Pulse sources in server order. Pulse remixes on the server,
// so channel capability is reported as unknown.
func (p *Pulse) Devices(_ context.Context) ([]Device, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName(pulseAppName))
	if err != nil {
		return nil, fmt.Errorf("%w: connect pulse server: %v", ErrDeviceUnavailable, err)
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, source := range infos {
		if source == nil {
			continue
		}
		name := source.Device
		if name == "" {
			name = source.SourceName
		}
		devices = append(devices, Device{
			Index:   len(devices),
			ID:      source.SourceName,
			Name:    name,
			Default: source.SourceName == defaultID,
		})
	}
	if len(devices) == 0 {
		return nil, ErrDeviceUnavailable
	}
	return devices, nil
}

// Open creates a little-endian 16-bit record stream on dev.
func (p *Pulse) Open(_ context.Context, dev Device, f Format) (Source, error) {
	var layout pulse.RecordOption
	switch f.Channels {
	case 1:
		layout = pulse.RecordMono
	case 2:
		layout = pulse.RecordStereo
	default:
		return nil, fmt.Errorf("%w: pulse records mono or stereo, %d channels requested",
			ErrFormatNotSupported, f.Channels)
	}

	client, err := pulse.NewClient(pulse.ClientApplicationName(pulseAppName))
	if err != nil {
		return nil, fmt.Errorf("%w: connect pulse server: %v", ErrDeviceUnavailable, err)
	}

	source, err := client.SourceByID(dev.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: resolve source %q: %v", ErrDeviceUnavailable, dev.ID, err)
	}

	frameBytes := f.SamplesPerWindow() * BytesPerSample
	src := &pulseSource{
		client:     client,
		frameBytes: frameBytes,
		chunks:     make(chan []byte, pulseQueueDepth),
		log:        p.log,
	}

	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(src.onPCM), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		layout,
		pulse.RecordSampleRate(f.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(frameBytes)),
		pulse.RecordMediaName("voxgate capture"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: create pulse record stream: %v", ErrFormatNotSupported, err)
	}
	src.stream = stream
	return src, nil
}

// pulseSource reassembles Pulse callbacks into whole windows.
type pulseSource struct {
	client     *pulse.Client
	stream     *pulse.RecordStream
	frameBytes int
	chunks     chan []byte
	log        zerolog.Logger

	mu      sync.Mutex
	pending []byte
	closed  bool
}

func (s *pulseSource) Start() error {
	s.stream.Start()
	return nil
}

func (s *pulseSource) Read(stop <-chan struct{}, buf []int16) error {
	select {
	case <-stop:
		return ErrStopped
	case chunk := <-s.chunks:
		for i := range buf {
			buf[i] = int16(binary.LittleEndian.Uint16(chunk[i*BytesPerSample:]))
		}
		return nil
	}
}

func (s *pulseSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stream.Stop()
	s.stream.Close()
	s.client.Close()
	return nil
}

// onPCM runs on the Pulse client goroutine and must not block.
func (s *pulseSource) onPCM(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, io.EOF
	}

	s.pending = append(s.pending, b...)
	for len(s.pending) >= s.frameBytes {
		chunk := make([]byte, s.frameBytes)
		copy(chunk, s.pending[:s.frameBytes])
		s.pending = s.pending[s.frameBytes:]

		select {
		case s.chunks <- chunk:
		default:
			s.log.Warn().Int("bytes", s.frameBytes).Msg("Pulse capture queue full, dropping window")
		}
	}
	return len(b), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
