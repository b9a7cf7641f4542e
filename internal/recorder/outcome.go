package recorder

import (
	"errors"
	"time"

	"github.com/petems/voxgate/internal/control"
	"github.com/petems/voxgate/internal/sink"
	"github.com/petems/voxgate/internal/vad"
)

var (
	// ErrTooShortOrSilent marks a rejected recording. The caller should
	// prompt again; it is never returned as Run's error.
	ErrTooShortOrSilent = errors.New("recorder: recording too short or silent")
	// ErrControllerUsed is returned by a second Run on the same controller.
	ErrControllerUsed = errors.New("recorder: controller already used")
)

// Kind tags an Outcome.
type Kind string

const (
	Completed Kind = "completed"
	Cancelled Kind = "cancelled"
	Rejected  Kind = "rejected"
	Failed    Kind = "failed"
)

// Outcome is the result of one recording. Only Completed carries an
// artifact, and only Completed should be forwarded to transcription.
type Outcome struct {
	Kind      Kind
	Reason    control.Reason
	Artifact  sink.Artifact
	Rejection error
	Stats     vad.Counters
}

// Path returns the artifact path of a completed recording.
func (o Outcome) Path() string {
	if o.Kind != Completed {
		return ""
	}
	return o.Artifact.Path
}

// Duration returns the finalized duration of a completed recording.
func (o Outcome) Duration() time.Duration {
	if o.Kind != Completed {
		return 0
	}
	return o.Artifact.Duration
}
