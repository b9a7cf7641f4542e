package recorder

import "fmt"

// State is a controller lifecycle state.
type State string

// Event drives a state transition.
type Event string

const (
	StateWaiting    State = "waiting_for_trigger"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateRejected   State = "rejected"
	StateFailed     State = "failed"
)

const (
	EventStart     Event = "start"
	EventStop      Event = "stop"
	EventCancel    Event = "cancel"
	EventFinalized Event = "finalized"
	EventReject    Event = "reject"
	EventFail      Event = "fail"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateRejected, StateFailed:
		return true
	default:
		return false
	}
}

// Transition returns the state reached from current on event.
func Transition(current State, event Event) (State, error) {
	if current.Terminal() {
		return current, invalidTransition(current, event)
	}
	if event == EventFail {
		return StateFailed, nil
	}

	switch current {
	case StateWaiting:
		switch event {
		case EventStart:
			return StateRecording, nil
		case EventCancel:
			return StateCancelled, nil
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateFinalizing, nil
		case EventCancel:
			return StateCancelled, nil
		}
	case StateFinalizing:
		switch event {
		case EventFinalized:
			return StateCompleted, nil
		case EventReject:
			return StateRejected, nil
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(current, event)
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
