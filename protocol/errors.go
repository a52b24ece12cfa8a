package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrIncomplete means the buffer holds a prefix of a frame; read more.
	ErrIncomplete = errors.New("protocol: incomplete frame")
	// ErrFraming means the stream cannot be resynchronized; close it.
	ErrFraming = errors.New("protocol: framing corrupted")
	// ErrInvalidTransition is returned by Transition for events a state
	// does not accept.
	ErrInvalidTransition = errors.New("protocol: invalid state transition")
)

// Kind classifies a recoverable protocol error.
type Kind uint8

const (
	// KindMalformed — bad verb, bad number, wrong field count.
	KindMalformed Kind = iota
	// KindTooLarge — key or value exceeds Limits.
	KindTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindTooLarge:
		return "too_large"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error is a recoverable protocol error: the connection stays open once
// Discard more bytes (after the header line) have been skipped.
type Error struct {
	Kind    Kind
	Verb    Verb
	Discard int
	Msg     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol: %s: %s", e.Kind, e.Msg)
}

// Status is the response status a server sends for e.
func (e *Error) Status() Status {
	if e.Kind == KindTooLarge {
		return StatusTooLarge
	}
	return StatusError
}

func malformed(format string, args ...any) *Error {
	return &Error{Kind: KindMalformed, Msg: fmt.Sprintf(format, args...)}
}
