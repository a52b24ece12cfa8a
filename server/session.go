package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/fluxcache/protocol"
)

const (
	initialBufSize = 4 << 10
	// retainBufSize is the largest read buffer kept across idle periods.
	retainBufSize = 64 << 10
	writeBufSize  = 32 << 10
	outQueueLen   = 64
)

var errDraining = errors.New("server: draining")

type frame struct {
	b      []byte
	weight int64
}

// session serves one connection. Its fields are owned by the reader
// goroutine except where noted.
type session struct {
	srv  *Server
	conn net.Conn
	lim  protocol.Limits
	log  *slog.Logger

	// buf[r:w] holds received, undecoded bytes.
	buf  []byte
	r, w int

	state   protocol.State
	ids     *idSource
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	// budget bounds queued, unflushed response bytes.
	budget     *semaphore.Weighted
	maxPending int64
	out        chan frame
	writerDone chan struct{}

	draining atomic.Bool
}

func newSession(srv *Server, c net.Conn) *session {
	ctx, cancel := context.WithCancel(context.Background())
	lim := srv.cfg.Limits
	ss := &session{
		srv:        srv,
		conn:       c,
		lim:        lim,
		log:        srv.log.With("session", ulid.Make().String(), "remote", c.RemoteAddr().String()),
		buf:        make([]byte, max(initialBufSize, lim.MaxHeaderBytes+2)),
		state:      protocol.StateAwaitingRequest,
		ids:        newIDSource(),
		ctx:        ctx,
		cancel:     cancel,
		budget:     semaphore.NewWeighted(srv.cfg.MaxPendingBytes),
		maxPending: srv.cfg.MaxPendingBytes,
		out:        make(chan frame, outQueueLen),
		writerDone: make(chan struct{}),
	}
	if srv.cfg.RateLimit > 0 {
		ss.limiter = rate.NewLimiter(rate.Limit(srv.cfg.RateLimit), srv.cfg.RateBurst)
	}
	return ss
}

func (ss *session) run() {
	ss.srv.metrics.ConnOpened()
	ss.log.Debug("connection opened")
	go ss.writeLoop()
	defer ss.finish()

	ss.closeOn(ss.serve())
}

func (ss *session) serve() error {
	for {
		h, err := ss.readHeader()
		if err != nil {
			var perr *protocol.Error
			if errors.As(err, &perr) {
				if err := ss.reject(perr); err != nil {
					return err
				}
				continue
			}
			return err
		}

		req := protocol.Request{Verb: h.Verb}
		if h.HasBody {
			ss.step(protocol.EventHeader)
			if req, err = ss.readBody(h); err != nil {
				return err
			}
		}
		ss.step(protocol.EventRequest)
		if err := ss.dispatch(req); err != nil {
			return err
		}
	}
}

func (ss *session) dispatch(req protocol.Request) error {
	if ss.limiter != nil {
		if err := ss.limiter.Wait(ss.ctx); err != nil {
			return err
		}
	}
	start := time.Now()
	id := ss.ids.next(start)
	ctx := WithCorrelationID(ss.ctx, id)

	st, payload := ss.srv.handle(ctx, req)

	took := time.Since(start)
	ss.srv.metrics.Request(req.Verb, st, took)
	ss.log.LogAttrs(ctx, slog.LevelDebug, "request",
		slog.String("corr_id", id.String()),
		slog.String("verb", req.Verb.String()),
		slog.Int("key_len", len(req.Key)),
		slog.String("status", st.String()),
		slog.Duration("took", took),
	)
	ss.step(protocol.EventDispatched)

	if err := ss.respond(st, payload); err != nil {
		return err
	}
	ss.step(protocol.EventResponded)
	return nil
}

// reject answers a recoverable protocol error and skips the offending body.
func (ss *session) reject(perr *protocol.Error) error {
	ss.step(protocol.EventRejected)
	ss.srv.metrics.ProtocolError(perr.Kind.String())
	ss.log.Debug("request rejected", "kind", perr.Kind.String(), "verb", perr.Verb.String(), "reason", perr.Msg)

	if err := ss.discard(perr.Discard); err != nil {
		return err
	}
	if err := ss.respond(perr.Status(), []byte(perr.Msg)); err != nil {
		return err
	}
	ss.step(protocol.EventResponded)
	return nil
}

// closeOn records why serve returned.
func (ss *session) closeOn(err error) {
	switch {
	case errors.Is(err, protocol.ErrFraming):
		ss.step(protocol.EventFraming)
		ss.srv.metrics.ProtocolError("framing")
		ss.log.Warn("framing error, closing connection", "error", err)
		ss.tryRespond(protocol.StatusError, []byte("framing error"))
	case errors.Is(err, io.EOF):
		ss.step(protocol.EventEOF)
		ss.log.Debug("peer closed connection")
	case ss.draining.Load() && (errors.Is(err, errDraining) || isTimeout(err)):
		ss.step(protocol.EventShutdown)
		ss.log.Debug("connection drained")
	case isTimeout(err):
		ss.step(protocol.EventFraming)
		ss.log.Debug("read timeout, closing connection")
	default:
		ss.step(protocol.EventFraming)
		if !errors.Is(err, context.Canceled) && !errors.Is(err, net.ErrClosed) {
			ss.log.Info("connection error", "error", err)
		}
	}
}

func (ss *session) finish() {
	close(ss.out)
	<-ss.writerDone
	ss.cancel()
	_ = ss.conn.Close()
	ss.state = protocol.StateClosed
	ss.srv.metrics.ConnClosed()
	ss.log.Debug("connection closed")
}

// drain asks the session to stop reading new requests. Safe for
// concurrent use.
func (ss *session) drain() {
	ss.draining.Store(true)
	_ = ss.conn.SetReadDeadline(time.Now())
}

// forceClose aborts the session. Safe for concurrent use.
func (ss *session) forceClose() {
	ss.cancel()
	_ = ss.conn.Close()
}

func (ss *session) step(ev protocol.Event) {
	next, err := protocol.Transition(ss.state, ev)
	if err != nil {
		ss.log.Error("protocol state", "error", err)
	}
	ss.state = next
}

// ---- reading ----

func (ss *session) readHeader() (protocol.Header, error) {
	for {
		h, n, err := protocol.DecodeHeader(ss.buf[ss.r:ss.w], ss.lim)
		switch {
		case err == nil:
			ss.r += n
			return h, nil
		case errors.Is(err, protocol.ErrIncomplete):
			if err := ss.fill(ss.r == ss.w); err != nil {
				return protocol.Header{}, err
			}
		default:
			ss.r += n
			return protocol.Header{}, err
		}
	}
}

func (ss *session) readBody(h protocol.Header) (protocol.Request, error) {
	for {
		req, n, err := protocol.DecodeBody(h, ss.buf[ss.r:ss.w])
		if err == nil {
			ss.r += n
			return req, nil
		}
		if !errors.Is(err, protocol.ErrIncomplete) {
			return protocol.Request{}, err
		}
		if err := ss.fill(false); err != nil {
			return protocol.Request{}, err
		}
	}
}

// discard skips n received bytes, reading as needed.
func (ss *session) discard(n int) error {
	for n > 0 {
		if ss.r == ss.w {
			if err := ss.fill(false); err != nil {
				return err
			}
		}
		k := min(n, ss.w-ss.r)
		ss.r += k
		n -= k
	}
	return nil
}

// fill reads at least one more byte into buf. idle selects the idle
// timeout instead of the read timeout.
func (ss *session) fill(idle bool) error {
	if ss.r == ss.w {
		ss.r, ss.w = 0, 0
		if len(ss.buf) > retainBufSize {
			ss.buf = make([]byte, initialBufSize)
		}
	}
	if ss.w == len(ss.buf) {
		if ss.r > 0 {
			ss.w = copy(ss.buf, ss.buf[ss.r:ss.w])
			ss.r = 0
		} else {
			limit := ss.lim.MaxFrameBytes()
			if len(ss.buf) >= limit {
				return protocol.ErrFraming
			}
			nb := make([]byte, min(2*len(ss.buf), limit))
			ss.w = copy(nb, ss.buf[:ss.w])
			ss.buf = nb
		}
	}

	timeout := ss.srv.cfg.ReadTimeout
	if idle {
		timeout = ss.srv.cfg.IdleTimeout
	}
	_ = ss.conn.SetReadDeadline(time.Now().Add(timeout))
	// Checked after arming the deadline so a concurrent drain cannot be
	// overwritten by it.
	if ss.draining.Load() {
		return errDraining
	}
	n, err := ss.conn.Read(ss.buf[ss.w:])
	ss.w += n
	if n > 0 {
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ---- writing ----

// respond queues a response, blocking while the session's unflushed
// response bytes are at MaxPendingBytes.
func (ss *session) respond(st protocol.Status, payload []byte) error {
	b := protocol.AppendResponse(make([]byte, 0, protocol.ResponseLen(st, payload)), st, payload)
	w := min(int64(len(b)), ss.maxPending)
	if err := ss.budget.Acquire(ss.ctx, w); err != nil {
		return err
	}
	ss.out <- frame{b: b, weight: w}
	return nil
}

// tryRespond queues a response only if budget is available right away.
func (ss *session) tryRespond(st protocol.Status, payload []byte) {
	b := protocol.AppendResponse(nil, st, payload)
	w := min(int64(len(b)), ss.maxPending)
	if ss.ctx.Err() != nil || !ss.budget.TryAcquire(w) {
		return
	}
	ss.out <- frame{b: b, weight: w}
}

// writeLoop flushes queued responses in order. After a write failure it
// keeps consuming the queue so the reader never blocks on it.
func (ss *session) writeLoop() {
	defer close(ss.writerDone)
	bw := bufio.NewWriterSize(ss.conn, writeBufSize)
	var (
		held   int64
		failed bool
	)
	fail := func(err error) {
		failed = true
		if !errors.Is(err, net.ErrClosed) {
			ss.log.Debug("write failed", "error", err)
		}
		ss.forceClose()
	}

	for f := range ss.out {
		held += f.weight
		if !failed {
			_ = ss.conn.SetWriteDeadline(time.Now().Add(ss.srv.cfg.WriteTimeout))
			if _, err := bw.Write(f.b); err != nil {
				fail(err)
			}
		}
		if len(ss.out) > 0 && !failed {
			continue
		}
		if !failed {
			if err := bw.Flush(); err != nil {
				fail(err)
			}
		}
		ss.budget.Release(held)
		held = 0
	}
	if held > 0 {
		ss.budget.Release(held)
	}
}
