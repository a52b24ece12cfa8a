package protocol

import "fmt"

// State is the per-connection protocol state.
type State uint8

const (
	StateAwaitingRequest State = iota
	StateParsingBody
	StateDispatching
	StateWritingResponse
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingRequest:
		return "awaiting_request"
	case StateParsingBody:
		return "parsing_body"
	case StateDispatching:
		return "dispatching"
	case StateWritingResponse:
		return "writing_response"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Event drives Transition.
type Event uint8

const (
	// EventHeader — a header announcing a body was decoded.
	EventHeader Event = iota
	// EventRequest — a complete request is ready for dispatch.
	EventRequest
	// EventRejected — a recoverable protocol error must be answered.
	EventRejected
	// EventDispatched — the store produced a result.
	EventDispatched
	// EventResponded — the response was handed to the writer.
	EventResponded
	// EventFraming — the stream cannot be resynchronized, or I/O failed.
	EventFraming
	// EventEOF — the peer went away.
	EventEOF
	// EventShutdown — the server is draining.
	EventShutdown
)

func (e Event) String() string {
	switch e {
	case EventHeader:
		return "header"
	case EventRequest:
		return "request"
	case EventRejected:
		return "rejected"
	case EventDispatched:
		return "dispatched"
	case EventResponded:
		return "responded"
	case EventFraming:
		return "framing"
	case EventEOF:
		return "eof"
	case EventShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("event(%d)", uint8(e))
	}
}

// Transition returns the state that follows s on ev. Closed absorbs every
// event. Shutdown does not interrupt a request that is already dispatching
// or being answered; the session closes once it is back to awaiting input.
func Transition(s State, ev Event) (State, error) {
	if s == StateClosed {
		return StateClosed, nil
	}
	switch ev {
	case EventFraming, EventEOF:
		return StateClosed, nil
	}

	switch s {
	case StateAwaitingRequest:
		switch ev {
		case EventHeader:
			return StateParsingBody, nil
		case EventRequest:
			return StateDispatching, nil
		case EventRejected:
			return StateWritingResponse, nil
		case EventShutdown:
			return StateClosed, nil
		}
	case StateParsingBody:
		switch ev {
		case EventRequest:
			return StateDispatching, nil
		case EventRejected:
			return StateWritingResponse, nil
		case EventShutdown:
			return StateClosed, nil
		}
	case StateDispatching:
		switch ev {
		case EventDispatched:
			return StateWritingResponse, nil
		case EventShutdown:
			return StateDispatching, nil
		}
	case StateWritingResponse:
		switch ev {
		case EventResponded:
			return StateAwaitingRequest, nil
		case EventShutdown:
			return StateWritingResponse, nil
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, s, ev)
}
