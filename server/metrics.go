package server

import (
	"time"

	"github.com/IvanBrykalov/fluxcache/protocol"
)

// Metrics exposes connection and request observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	ConnOpened()
	ConnClosed()
	// ConnRejected counts connections refused at the MaxConns limit.
	ConnRejected()
	Request(verb protocol.Verb, status protocol.Status, d time.Duration)
	// ProtocolError counts rejected or unrecoverable frames by kind
	// ("malformed", "too_large", "framing").
	ProtocolError(kind string)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) ConnOpened()                                           {}
func (NoopMetrics) ConnClosed()                                           {}
func (NoopMetrics) ConnRejected()                                         {}
func (NoopMetrics) Request(protocol.Verb, protocol.Status, time.Duration) {}
func (NoopMetrics) ProtocolError(string)                                  {}

var _ Metrics = NoopMetrics{}
