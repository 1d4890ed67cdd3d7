package fsm

import "fmt"

type State string

type Event string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
)

const (
	EventAttach Event = "attach"
	EventDetach Event = "detach"
	EventLost   Event = "lost"
)

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateDisconnected:
		switch event {
		case EventAttach:
			return StateConnected, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnected:
		switch event {
		case EventDetach, EventLost:
			return StateDisconnected, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
