// Package sink persists captured frames to a 16-bit PCM WAV file and
// finalizes it exactly once.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/petems/voxgate/internal/audio"
)

var (
	// ErrClosed is returned when writing to a finalized or abandoned sink.
	ErrClosed = errors.New("sink: already finalized or abandoned")
	// ErrFormatMismatch is returned for a frame whose format differs from the sink's.
	ErrFormatMismatch = errors.New("sink: frame format mismatch")
)

const (
	partSuffix = ".part"
	pcmFormat  = 1
)

// Artifact is a finalized recording. The file belongs to the caller.
type Artifact struct {
	Path       string
	Duration   time.Duration
	Size       int64 // whole file
	DataBytes  int64 // data chunk only
	Frames     int
	SampleRate int
	Channels   int
}

// Remove deletes the artifact file.
func (a Artifact) Remove() error {
	if a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Sink writes frames to a hidden ".part" file and renames it into place on
// Finalize. Abandon deletes it. Methods are safe for concurrent use.
type Sink struct {
	mu       sync.Mutex
	format   audio.Format
	path     string
	partPath string
	file     *os.File
	enc      *wav.Encoder
	buf      *goaudio.IntBuffer

	frames    int
	dataBytes int64
	closed    bool
}

// Create opens a new sink under dir named with a random UUID. The header is
// written immediately so an empty recording still finalizes to a valid file.
func Create(dir string, f audio.Format) (*Sink, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, "voxgate-"+uuid.NewString()+".wav")
	partPath := path + partSuffix

	file, err := os.OpenFile(partPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	s := &Sink{
		format:   f,
		path:     path,
		partPath: partPath,
		file:     file,
		enc:      wav.NewEncoder(file, f.SampleRate, 16, f.Channels, pcmFormat),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
			SourceBitDepth: 16,
		},
	}

	if err := s.enc.Write(s.buf); err != nil {
		file.Close()
		os.Remove(partPath)
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return s, nil
}

// Path is where the finalized artifact will appear.
func (s *Sink) Path() string { return s.path }

// Append writes one frame's samples in arrival order.
func (s *Sink) Append(fr audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if fr.Format != s.format {
		return fmt.Errorf("%w: got %+v, want %+v", ErrFormatMismatch, fr.Format, s.format)
	}

	if cap(s.buf.Data) < len(fr.Samples) {
		s.buf.Data = make([]int, len(fr.Samples))
	}
	s.buf.Data = s.buf.Data[:len(fr.Samples)]
	for i, v := range fr.Samples {
		s.buf.Data[i] = int(v)
	}
	if err := s.enc.Write(s.buf); err != nil {
		return fmt.Errorf("write frame %d: %w", fr.Seq, err)
	}

	s.frames++
	s.dataBytes += int64(len(fr.Samples) * audio.BytesPerSample)
	return nil
}

// Finalize rewrites the header with the true data length, syncs, and moves
// the file into place. The caller must ensure no Append is still in flight.
func (s *Sink) Finalize() (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Artifact{}, ErrClosed
	}
	s.closed = true

	if err := s.enc.Close(); err != nil {
		s.discardLocked()
		return Artifact{}, fmt.Errorf("finalize wav header: %w", err)
	}
	info, err := s.file.Stat()
	if err != nil {
		s.discardLocked()
		return Artifact{}, fmt.Errorf("stat recording: %w", err)
	}
	if err := s.file.Close(); err != nil {
		os.Remove(s.partPath)
		return Artifact{}, fmt.Errorf("close recording: %w", err)
	}
	if err := os.Rename(s.partPath, s.path); err != nil {
		os.Remove(s.partPath)
		return Artifact{}, fmt.Errorf("publish recording: %w", err)
	}

	sampleFrames := s.dataBytes / int64(audio.BytesPerSample*s.format.Channels)
	return Artifact{
		Path:       s.path,
		Duration:   time.Duration(sampleFrames) * time.Second / time.Duration(s.format.SampleRate),
		Size:       info.Size(),
		DataBytes:  s.dataBytes,
		Frames:     s.frames,
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
	}, nil
}

// Abandon discards the in-progress file. It is a no-op after Finalize or a
// previous Abandon.
func (s *Sink) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.discardLocked()
}

func (s *Sink) discardLocked() error {
	closeErr := s.file.Close()
	if errors.Is(closeErr, os.ErrClosed) {
		closeErr = nil
	}
	rmErr := os.Remove(s.partPath)
	if errors.Is(rmErr, os.ErrNotExist) {
		rmErr = nil
	}
	return errors.Join(closeErr, rmErr)
}
