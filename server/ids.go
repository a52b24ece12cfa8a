package server

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
)

type corrKey struct{}

// WithCorrelationID returns a copy of ctx carrying the request's id.
func WithCorrelationID(ctx context.Context, id ulid.ULID) context.Context {
	return context.WithValue(ctx, corrKey{}, id)
}

// CorrelationID returns the request id stored by WithCorrelationID.
func CorrelationID(ctx context.Context) (ulid.ULID, bool) {
	id, ok := ctx.Value(corrKey{}).(ulid.ULID)
	return id, ok
}

// idSource hands out monotonically increasing ULIDs. It is owned by one
// session's reader goroutine and is not safe for concurrent use.
type idSource struct {
	entropy io.Reader
}

func newIDSource() *idSource {
	return &idSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (s *idSource) next(now time.Time) ulid.ULID {
	return ulid.MustNew(ulid.Timestamp(now), s.entropy)
}
