// Package protocol implements the flux-cache wire format and the
// connection state machine. Everything here is pure: no I/O, no clocks,
// so decoders can be fed arbitrary byte sequences.
//
// Request frame:
//
//	<VERB>[ SP <key-len>[ SP <value-len>[ SP <ttl-seconds>]]] LF
//	<key-bytes><value-bytes> LF        (present when key-len is given)
//
// Response frame:
//
//	<STATUS> SP <payload-len> LF <payload-bytes> LF
package protocol

import (
	"bytes"
	"fmt"
	"time"
)

// Verb is a request command.
type Verb uint8

const (
	VerbInvalid Verb = iota
	VerbGet
	VerbPut
	VerbDelete
	VerbExists
	VerbStats
)

var verbNames = [...]string{
	VerbInvalid: "INVALID",
	VerbGet:     "GET",
	VerbPut:     "PUT",
	VerbDelete:  "DELETE",
	VerbExists:  "EXISTS",
	VerbStats:   "STATS",
}

func (v Verb) String() string {
	if int(v) < len(verbNames) {
		return verbNames[v]
	}
	return fmt.Sprintf("VERB(%d)", uint8(v))
}

// ParseVerb matches b against the known verbs, ignoring ASCII case.
func ParseVerb(b []byte) (Verb, bool) {
	for v := VerbGet; v <= VerbStats; v++ {
		if bytes.EqualFold(b, []byte(verbNames[v])) {
			return v, true
		}
	}
	return VerbInvalid, false
}

// Status is a response outcome.
type Status uint8

const (
	StatusOK Status = iota
	StatusNotFound
	StatusError
	StatusTooLarge
)

var statusNames = [...]string{
	StatusOK:       "OK",
	StatusNotFound: "NOT_FOUND",
	StatusError:    "ERROR",
	StatusTooLarge: "TOO_LARGE",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("STATUS(%d)", uint8(s))
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(b []byte) (Status, bool) {
	for s := range statusNames {
		if string(b) == statusNames[s] {
			return Status(s), true
		}
	}
	return 0, false
}

// Limits bound what a decoder accepts. Zero fields take DefaultLimits.
type Limits struct {
	// MaxHeaderBytes bounds a header line, LF excluded.
	MaxHeaderBytes int
	MaxKeyBytes    int
	MaxValueBytes  int
}

// DefaultLimits match the store defaults.
var DefaultLimits = Limits{
	MaxHeaderBytes: 256,
	MaxKeyBytes:    64 << 10,
	MaxValueBytes:  8 << 20,
}

func (l Limits) withDefaults() Limits {
	if l.MaxHeaderBytes <= 0 {
		l.MaxHeaderBytes = DefaultLimits.MaxHeaderBytes
	}
	if l.MaxKeyBytes <= 0 {
		l.MaxKeyBytes = DefaultLimits.MaxKeyBytes
	}
	if l.MaxValueBytes <= 0 {
		l.MaxValueBytes = DefaultLimits.MaxValueBytes
	}
	return l
}

// MaxFrameBytes is the largest well-formed request frame under l.
func (l Limits) MaxFrameBytes() int {
	l = l.withDefaults()
	return l.MaxHeaderBytes + 1 + l.MaxKeyBytes + l.MaxValueBytes + 1
}

// Header is a decoded header line.
type Header struct {
	Verb     Verb
	KeyLen   int
	ValueLen int
	TTL      time.Duration
	HasBody  bool
}

// BodyLen is the number of bytes that follow the header, terminator included.
func (h Header) BodyLen() int {
	if !h.HasBody {
		return 0
	}
	return h.KeyLen + h.ValueLen + 1
}

// Request is a decoded request. Key and Value alias the decode buffer.
type Request struct {
	Verb  Verb
	Key   []byte
	Value []byte
	TTL   time.Duration
}

// Response is a decoded response. Payload aliases the decode buffer.
type Response struct {
	Status  Status
	Payload []byte
}
