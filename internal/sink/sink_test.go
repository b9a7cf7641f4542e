package sink

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"

	"github.com/petems/voxgate/internal/audio"
)

const headerBytes = 44

var mono16k = audio.Format{SampleRate: 16000, Channels: 1, WindowMs: 30}

func frame(f audio.Format, seq uint64, value int16) audio.Frame {
	samples := make([]int16, f.SamplesPerWindow())
	for i := range samples {
		samples[i] = value
	}
	return audio.Frame{Seq: seq, Samples: samples, Format: f, Duration: f.Window()}
}

func readHeader(t *testing.T, path string) (riffSize, dataSize uint32, raw []byte) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), headerBytes)
	require.Equal(t, "RIFF", string(raw[0:4]))
	require.Equal(t, "WAVE", string(raw[8:12]))
	require.Equal(t, "data", string(raw[36:40]))
	return binary.LittleEndian.Uint32(raw[4:8]), binary.LittleEndian.Uint32(raw[40:44]), raw
}

func TestFinalizeDeclaresExactDataLength(t *testing.T) {
	for _, f := range []audio.Format{mono16k, {SampleRate: 48000, Channels: 2, WindowMs: 20}} {
		for _, k := range []int{0, 1, 7, 50} {
			dir := t.TempDir()
			s, err := Create(dir, f)
			require.NoError(t, err)

			for i := 0; i < k; i++ {
				require.NoError(t, s.Append(frame(f, uint64(i), int16(i))))
			}
			art, err := s.Finalize()
			require.NoError(t, err)

			want := int64(k * f.SamplesPerWindow() * audio.BytesPerSample)
			require.Equal(t, want, art.DataBytes)
			require.Equal(t, k, art.Frames)
			require.Equal(t, time.Duration(k)*f.Window(), art.Duration)
			require.Equal(t, int64(headerBytes)+want, art.Size)

			riff, data, raw := readHeader(t, art.Path)
			require.Equal(t, uint32(want), data)
			require.Equal(t, uint32(len(raw)-8), riff)
			require.Len(t, raw, headerBytes+int(want))
		}
	}
}

func TestFinalizedFileDecodes(t *testing.T) {
	s, err := Create(t.TempDir(), mono16k)
	require.NoError(t, err)
	require.NoError(t, s.Append(frame(mono16k, 0, 1200)))
	require.NoError(t, s.Append(frame(mono16k, 1, -1200)))
	art, err := s.Finalize()
	require.NoError(t, err)

	f, err := os.Open(art.Path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	require.Equal(t, uint32(16000), dec.SampleRate)
	require.Equal(t, uint16(1), dec.NumChans)
	require.Equal(t, uint16(16), dec.BitDepth)

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	require.Len(t, buf.Data, 960)
	require.Equal(t, 1200, buf.Data[0])
	require.Equal(t, -1200, buf.Data[959])
}

func TestPartialFileHiddenUntilFinalize(t *testing.T) {
	dir := t.TempDir()
	s, err := Create(dir, mono16k)
	require.NoError(t, err)
	require.NoError(t, s.Append(frame(mono16k, 0, 1)))

	_, err = os.Stat(s.Path())
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(s.Path() + partSuffix)
	require.NoError(t, err)

	art, err := s.Finalize()
	require.NoError(t, err)
	require.Equal(t, s.Path(), art.Path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, filepath.Base(art.Path), entries[0].Name())
}

func TestAbandonLeavesNothingBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := Create(dir, mono16k)
	require.NoError(t, err)
	require.NoError(t, s.Append(frame(mono16k, 0, 1)))

	require.NoError(t, s.Abandon())
	require.NoError(t, s.Abandon())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.ErrorIs(t, s.Append(frame(mono16k, 1, 1)), ErrClosed)
	_, err = s.Finalize()
	require.ErrorIs(t, err, ErrClosed)
}

func TestFinalizeOnlyOnce(t *testing.T) {
	s, err := Create(t.TempDir(), mono16k)
	require.NoError(t, err)

	art, err := s.Finalize()
	require.NoError(t, err)
	_, err = s.Finalize()
	require.ErrorIs(t, err, ErrClosed)

	// Abandon after finalize must not touch the caller's file.
	require.NoError(t, s.Abandon())
	_, err = os.Stat(art.Path)
	require.NoError(t, err)

	require.NoError(t, art.Remove())
	require.NoError(t, art.Remove())
}

func TestAppendRejectsForeignFormat(t *testing.T) {
	s, err := Create(t.TempDir(), mono16k)
	require.NoError(t, err)
	defer s.Abandon()

	stereo := audio.Format{SampleRate: 16000, Channels: 2, WindowMs: 30}
	require.ErrorIs(t, s.Append(frame(stereo, 0, 1)), ErrFormatMismatch)
}
