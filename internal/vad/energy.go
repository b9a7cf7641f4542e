// Package vad classifies PCM frames as voiced or unvoiced using a normalized
// energy measure and tracks how much speech and trailing silence a recording
// has accumulated.
package vad

import (
	"fmt"
	"math"
)

// fullScale is the magnitude of the most negative 16-bit sample.
const fullScale = 32768.0

// Energy returns max(peak, rms) of the frame normalized to [0,1].
// An empty frame has zero energy.
func Energy(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var peak, sumSquares float64
	for _, s := range samples {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
		sumSquares += v * v
	}
	rms := math.Sqrt(sumSquares / float64(len(samples)))

	e := math.Max(peak, rms) / fullScale
	if e > 1 {
		e = 1
	}
	return e
}

// Detector holds the two energy thresholds used for classification.
// Onset is judged against the start threshold until speech has been seen,
// sustained voicing against the voiced threshold afterwards.
type Detector struct {
	threshold      float64
	startThreshold float64
}

// Classification is the result of judging one frame.
type Classification struct {
	Energy float64
	Voiced bool
}

// NewDetector validates both thresholds. They are independent: a start
// threshold equal to the voiced threshold gives single-threshold behaviour.
func NewDetector(threshold, startThreshold float64) (Detector, error) {
	if threshold <= 0 || threshold > 1 {
		return Detector{}, fmt.Errorf("vad: voiced threshold %v outside (0,1]", threshold)
	}
	if startThreshold <= 0 || startThreshold > 1 {
		return Detector{}, fmt.Errorf("vad: start threshold %v outside (0,1]", startThreshold)
	}
	return Detector{threshold: threshold, startThreshold: startThreshold}, nil
}

// Threshold returns the sustained-voicing threshold.
func (d Detector) Threshold() float64 { return d.threshold }

// StartThreshold returns the onset threshold.
func (d Detector) StartThreshold() float64 { return d.startThreshold }

// Voiced reports whether energy reaches the sustained-voicing threshold.
func (d Detector) Voiced(energy float64) bool {
	return energy >= d.threshold
}

// Onset reports whether energy reaches the speech-onset threshold.
func (d Detector) Onset(energy float64) bool {
	return energy >= d.startThreshold
}

// Classify measures a frame and judges it against the onset threshold when
// speech has not started yet, or the voiced threshold once it has.
func (d Detector) Classify(samples []int16, started bool) Classification {
	e := Energy(samples)
	if started {
		return Classification{Energy: e, Voiced: d.Voiced(e)}
	}
	return Classification{Energy: e, Voiced: d.Onset(e)}
}
