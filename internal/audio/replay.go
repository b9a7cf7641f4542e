package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Replay plays a 16-bit WAV file through the capture contract. Once the file
// is exhausted it keeps delivering silent windows until stopped.
type Replay struct {
	Path string
	// Realtime paces reads at one window per window duration.
	Realtime bool
}

func (r *Replay) Name() string { return "replay" }

// Devices reports the file as the only device.
func (r *Replay) Devices(_ context.Context) ([]Device, error) {
	f, dec, err := r.decoder()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return []Device{{
		Index:    0,
		ID:       r.Path,
		Name:     filepath.Base(r.Path),
		Channels: int(dec.NumChans),
		Default:  true,
	}}, nil
}

// Open checks that the file already has the requested layout; replay never
// resamples.
func (r *Replay) Open(_ context.Context, _ Device, f Format) (Source, error) {
	file, dec, err := r.decoder()
	if err != nil {
		return nil, err
	}
	if int(dec.SampleRate) != f.SampleRate || int(dec.NumChans) != f.Channels || dec.BitDepth != 16 {
		file.Close()
		return nil, fmt.Errorf("%w: %s is %dHz x%d %d-bit, want %dHz x%d 16-bit",
			ErrFormatNotSupported, r.Path, dec.SampleRate, dec.NumChans, dec.BitDepth,
			f.SampleRate, f.Channels)
	}

	return &replaySource{
		file:   file,
		dec:    dec,
		window: f.Window(),
		pace:   r.Realtime,
		ib: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
			Data:           make([]int, f.SamplesPerWindow()),
			SourceBitDepth: 16,
		},
	}, nil
}

func (r *Replay) decoder() (*os.File, *wav.Decoder, error) {
	file, err := os.Open(r.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		file.Close()
		return nil, nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrFormatNotSupported, r.Path)
	}
	return file, dec, nil
}

type replaySource struct {
	file      *os.File
	dec       *wav.Decoder
	ib        *goaudio.IntBuffer
	window    time.Duration
	pace      bool
	ticker    *time.Ticker
	exhausted bool
}

func (s *replaySource) Start() error {
	if s.pace {
		s.ticker = time.NewTicker(s.window)
	}
	return nil
}

func (s *replaySource) Read(stop <-chan struct{}, buf []int16) error {
	if s.ticker != nil {
		select {
		case <-stop:
			return ErrStopped
		case <-s.ticker.C:
		}
	} else {
		select {
		case <-stop:
			return ErrStopped
		default:
		}
	}

	if s.exhausted {
		clear(buf)
		return nil
	}

	n, err := s.dec.PCMBuffer(s.ib)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	for i := 0; i < n && i < len(buf); i++ {
		buf[i] = int16(s.ib.Data[i])
	}
	clear(buf[min(n, len(buf)):])
	if n < len(buf) {
		s.exhausted = true
	}
	return nil
}

func (s *replaySource) Close() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	return s.file.Close()
}
