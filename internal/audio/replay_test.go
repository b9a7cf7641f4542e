package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeTestWAV(t *testing.T, rate, channels int, samples []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestReplayDeliversFileThenSilence(t *testing.T) {
	// One and a half windows of audio at 16kHz / 30ms.
	samples := make([]int, 720)
	for i := range samples {
		samples[i] = 1000 + i
	}
	path := writeTestWAV(t, 16000, 1, samples)

	r := &Replay{Path: path}
	devices, err := r.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "speech.wav", devices[0].Name)
	require.Equal(t, 1, devices[0].Channels)

	s, err := Open(context.Background(), r, DefaultSelector, testFormat, OpenOptions{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer s.Stop()
	require.NoError(t, s.Start())

	first := <-s.Frames()
	require.Equal(t, int16(1000), first.Samples[0])
	require.Equal(t, int16(1479), first.Samples[479])

	second := <-s.Frames()
	require.Equal(t, int16(1480), second.Samples[0])
	require.Equal(t, int16(1719), second.Samples[239])
	require.Zero(t, second.Samples[240])

	third := <-s.Frames()
	require.Equal(t, make([]int16, 480), third.Samples)
}

func TestReplayRejectsMismatchedFormat(t *testing.T) {
	path := writeTestWAV(t, 8000, 1, make([]int, 80))

	_, err := Open(context.Background(), &Replay{Path: path}, DefaultSelector, testFormat, OpenOptions{Logger: zerolog.Nop()})
	require.ErrorIs(t, err, ErrFormatNotSupported)
}

func TestReplayMissingFile(t *testing.T) {
	_, err := Open(context.Background(), &Replay{Path: filepath.Join(t.TempDir(), "nope.wav")}, DefaultSelector, testFormat, OpenOptions{Logger: zerolog.Nop()})
	require.ErrorIs(t, err, ErrDeviceUnavailable)
}
