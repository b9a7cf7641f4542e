package vad

import "time"

// Counters accumulates per-recording speech statistics frame by frame.
//
// Silence only accumulates after the first voiced frame and is reset by every
// voiced frame, so it always measures the current run of trailing silence.
type Counters struct {
	StartedSpeech bool
	Voiced        time.Duration
	Silence       time.Duration
	Total         time.Duration
	Frames        int
}

// Observe folds one classified frame of duration d into the counters.
func (c *Counters) Observe(voiced bool, d time.Duration) {
	switch {
	case voiced:
		c.StartedSpeech = true
		c.Voiced += d
		c.Silence = 0
	case c.StartedSpeech:
		c.Silence += d
	}
	c.Total += d
	c.Frames++
}
