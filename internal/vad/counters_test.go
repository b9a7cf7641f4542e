package vad

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// referenceMs replays a sequence with plain integers, independent of Counters.
type referenceMs struct {
	started                bool
	voiced, silence, total int64
}

func (r *referenceMs) step(voiced bool, frameMs int64) {
	if voiced {
		r.started = true
		r.voiced += frameMs
		r.silence = 0
	} else if r.started {
		r.silence += frameMs
	}
	r.total += frameMs
}

func TestCountersMatchReferenceAccumulator(t *testing.T) {
	const frameMs = 30
	d, err := NewDetector(0.05, 0.04)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 50; run++ {
		var c Counters
		var ref referenceMs

		for i := 0; i < 200; i++ {
			amp := int16(rng.Intn(int(amplitude(0.12))))
			frame := []int16{amp, -amp, amp}

			cls := d.Classify(frame, c.StartedSpeech)

			// The reference judges with its own view of the thresholds.
			e := Energy(frame)
			refVoiced := e >= 0.05
			if !ref.started {
				refVoiced = e >= 0.04
			}
			require.Equal(t, refVoiced, cls.Voiced)

			c.Observe(cls.Voiced, frameMs*time.Millisecond)
			ref.step(refVoiced, frameMs)

			require.Equal(t, ref.started, c.StartedSpeech)
			require.Equal(t, ref.voiced, c.Voiced.Milliseconds())
			require.Equal(t, ref.silence, c.Silence.Milliseconds())
			require.Equal(t, ref.total, c.Total.Milliseconds())
		}
	}
}

func TestCountersIgnoreLeadingSilence(t *testing.T) {
	var c Counters
	for i := 0; i < 5; i++ {
		c.Observe(false, 50*time.Millisecond)
	}
	require.False(t, c.StartedSpeech)
	require.Zero(t, c.Silence)
	require.Equal(t, 250*time.Millisecond, c.Total)

	c.Observe(true, 50*time.Millisecond)
	c.Observe(false, 50*time.Millisecond)
	c.Observe(false, 50*time.Millisecond)
	require.Equal(t, 100*time.Millisecond, c.Silence)

	c.Observe(true, 50*time.Millisecond)
	require.Zero(t, c.Silence)
	require.Equal(t, 100*time.Millisecond, c.Voiced)
	require.Equal(t, 9, c.Frames)
}
