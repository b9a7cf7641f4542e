// Package hotkey turns user input into abstract recording control events.
package hotkey

// Event is a control request for the active recording.
type Event int

const (
	// Toggle starts a waiting recording or stops a running one.
	Toggle Event = iota
	Start
	Stop
	Cancel
)

func (e Event) String() string {
	switch e {
	case Toggle:
		return "toggle"
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Source delivers control events. The channel is closed when the source
// has no more input.
type Source interface {
	Events() <-chan Event
}
