package audio

// MonoFloat32 converts interleaved 16-bit samples to mono float32 in [-1,1).
func MonoFloat32(samples []int16, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	f := make([]float32, len(samples))
	for i, s := range samples {
		f[i] = float32(s) / 32768
	}
	return downmixInterleaved(f, channels, len(samples)/channels)
}

// downmixInterleaved averages each sample frame across channels. The result
// never aliases input.
func downmixInterleaved(input []float32, channels, frames int) []float32 {
	out := make([]float32, frames)
	if channels == 1 {
		copy(out, input)
		return out
	}
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += input[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
