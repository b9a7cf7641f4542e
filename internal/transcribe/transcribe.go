// Package transcribe turns a finalized recording into text.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"github.com/petems/voxgate/internal/audio"
)

// ErrNativeUnavailable is returned when the binary was built without the
// whisper build tag.
var ErrNativeUnavailable = errors.New("transcribe: native whisper support not compiled in (build with -tags whisper)")

// Transcriber converts the recording at path to text. Implementations must
// not delete or modify the file.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// whisperSampleRate is the only rate whisper models accept.
const whisperSampleRate = 16000

// LoadSamples reads a 16-bit WAV file as mono float32 samples.
func LoadSamples(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if dec.BitDepth != 16 {
		return nil, 0, fmt.Errorf("%s: %d-bit audio not supported", path, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}

	pcm := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		pcm[i] = int16(v)
	}
	return audio.MonoFloat32(pcm, buf.Format.NumChannels), buf.Format.SampleRate, nil
}
