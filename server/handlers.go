package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/IvanBrykalov/fluxcache/cache"
	"github.com/IvanBrykalov/fluxcache/protocol"
)

// Store is the part of the store engine the server dispatches to.
type Store interface {
	GetContext(ctx context.Context, key []byte) ([]byte, error)
	Put(key, value []byte, ttl time.Duration) error
	Delete(key []byte) error
	Exists(key []byte) bool
	Stats() cache.Stats
}

type handlerFunc func(ctx context.Context, req protocol.Request) (protocol.Status, []byte)

// stats is the STATS payload: store statistics plus live connection count.
type stats struct {
	cache.Stats
	Connections int64 `json:"connections"`
}

var (
	existsYes = []byte("1")
	existsNo  = []byte("0")
)

func (s *Server) registerHandlers() {
	s.handlers = map[protocol.Verb]handlerFunc{
		protocol.VerbGet:    s.handleGet,
		protocol.VerbPut:    s.handlePut,
		protocol.VerbDelete: s.handleDelete,
		protocol.VerbExists: s.handleExists,
		protocol.VerbStats:  s.handleStats,
	}
}

func (s *Server) handle(ctx context.Context, req protocol.Request) (protocol.Status, []byte) {
	h, ok := s.handlers[req.Verb]
	if !ok {
		return protocol.StatusError, []byte("unsupported verb")
	}
	return h(ctx, req)
}

func (s *Server) handleGet(ctx context.Context, req protocol.Request) (protocol.Status, []byte) {
	v, err := s.store.GetContext(ctx, req.Key)
	if err != nil {
		return errorStatus(err)
	}
	return protocol.StatusOK, v
}

func (s *Server) handlePut(_ context.Context, req protocol.Request) (protocol.Status, []byte) {
	if err := s.store.Put(req.Key, req.Value, req.TTL); err != nil {
		return errorStatus(err)
	}
	return protocol.StatusOK, nil
}

func (s *Server) handleDelete(_ context.Context, req protocol.Request) (protocol.Status, []byte) {
	if err := s.store.Delete(req.Key); err != nil {
		return errorStatus(err)
	}
	return protocol.StatusOK, nil
}

func (s *Server) handleExists(_ context.Context, req protocol.Request) (protocol.Status, []byte) {
	if s.store.Exists(req.Key) {
		return protocol.StatusOK, existsYes
	}
	return protocol.StatusOK, existsNo
}

func (s *Server) handleStats(_ context.Context, _ protocol.Request) (protocol.Status, []byte) {
	b, err := json.Marshal(stats{Stats: s.store.Stats(), Connections: s.active.Load()})
	if err != nil {
		return protocol.StatusError, []byte(err.Error())
	}
	return protocol.StatusOK, b
}

// errorStatus maps store errors onto response statuses.
func errorStatus(err error) (protocol.Status, []byte) {
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return protocol.StatusNotFound, nil
	case errors.Is(err, cache.ErrTooLarge):
		return protocol.StatusTooLarge, []byte(err.Error())
	case errors.Is(err, cache.ErrCorrupted):
		return protocol.StatusError, []byte("corrupted")
	default:
		return protocol.StatusError, []byte(err.Error())
	}
}
