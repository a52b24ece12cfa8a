package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testLimits = Limits{MaxHeaderBytes: 64, MaxKeyBytes: 16, MaxValueBytes: 64}

func TestDecode_Requests(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Request
	}{
		{"GET 3\nfoo\n", Request{Verb: VerbGet, Key: []byte("foo")}},
		{"get 3\r\nfoo\n", Request{Verb: VerbGet, Key: []byte("foo")}},
		{"PUT 3 5\nfoohello\n", Request{Verb: VerbPut, Key: []byte("foo"), Value: []byte("hello")}},
		{"PUT 1 0 30\nk\n", Request{Verb: VerbPut, Key: []byte("k"), Value: []byte{}, TTL: 30 * time.Second}},
		{"DELETE 1\nk\n", Request{Verb: VerbDelete, Key: []byte("k")}},
		{"EXISTS 1\nk\n", Request{Verb: VerbExists, Key: []byte("k")}},
		{"STATS\n", Request{Verb: VerbStats}},
		{"PUT 0 3\nabc\n", Request{Verb: VerbPut, Key: []byte{}, Value: []byte("abc")}},
	}
	for _, c := range cases {
		req, n, err := Decode([]byte(c.in), testLimits)
		require.NoError(t, err, c.in)
		require.Equal(t, len(c.in), n, c.in)
		require.Equal(t, c.want.Verb, req.Verb, c.in)
		require.Equal(t, string(c.want.Key), string(req.Key), c.in)
		require.Equal(t, string(c.want.Value), string(req.Value), c.in)
		require.Equal(t, c.want.TTL, req.TTL, c.in)
	}
}

func TestDecode_Incomplete(t *testing.T) {
	t.Parallel()

	full := "PUT 3 5\nfoohello\n"
	for i := 0; i < len(full); i++ {
		_, n, err := Decode([]byte(full[:i]), testLimits)
		require.ErrorIs(t, err, ErrIncomplete, "prefix %q", full[:i])
		require.Zero(t, n)
	}
}

// A malformed header is skipped through its LF and decoding resumes on the
// next frame.
func TestDecode_MalformedResync(t *testing.T) {
	t.Parallel()

	stream := []byte("FROB 1\nGET x\nPUT 1\nGET 1\nk\n")
	var statuses []Status
	var got []Request
	for len(stream) > 0 {
		req, n, err := Decode(stream, testLimits)
		var perr *Error
		switch {
		case errors.As(err, &perr):
			require.Equal(t, KindMalformed, perr.Kind)
			require.Zero(t, perr.Discard)
			statuses = append(statuses, perr.Status())
		case err != nil:
			t.Fatalf("unexpected error %v", err)
		default:
			got = append(got, req)
		}
		stream = stream[n:]
	}
	require.Equal(t, []Status{StatusError, StatusError, StatusError}, statuses)
	require.Len(t, got, 1)
	require.Equal(t, "k", string(got[0].Key))
}

func TestDecode_MalformedHeaders(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"\n",
		"GET\n",
		"GET 1 2\n",
		"GET -1\n",
		"GET +1\n",
		"GET  1\n",
		"PUT 1\n",
		"PUT 1 2 3 4\n",
		"PUT 1 2 x\n",
		"PUT 1 2 -5\n",
		"STATS 1\n",
		"GET 99999999999\n",
	} {
		_, n, err := Decode([]byte(in), testLimits)
		var perr *Error
		require.True(t, errors.As(err, &perr), "%q: got %v", in, err)
		require.Equal(t, KindMalformed, perr.Kind, in)
		require.Equal(t, len(in), n, in)
	}
}

func TestDecode_TooLarge(t *testing.T) {
	t.Parallel()

	value := make([]byte, 65)
	in := append([]byte("PUT 1 65\nk"), value...)
	in = append(in, '\n')
	in = append(in, "STATS\n"...)

	_, n, err := Decode(in, testLimits)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, KindTooLarge, perr.Kind)
	require.Equal(t, StatusTooLarge, perr.Status())
	require.Equal(t, VerbPut, perr.Verb)
	require.Equal(t, 1+65+1, perr.Discard)

	rest := in[n+perr.Discard:]
	req, _, err := Decode(rest, testLimits)
	require.NoError(t, err)
	require.Equal(t, VerbStats, req.Verb)
}

// A bad TTL is reported once both lengths are known, so the body is
// discarded with the header.
func TestDecode_BadTTLDiscardsBody(t *testing.T) {
	t.Parallel()

	in := []byte("PUT 1 16 abc\nk\nDELETE 6\nvictim\nSTATS\n")
	_, n, err := Decode(in, testLimits)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, KindMalformed, perr.Kind)
	require.Equal(t, VerbPut, perr.Verb)
	require.Equal(t, 1+16+1, perr.Discard)

	req, _, err := Decode(in[n+perr.Discard:], testLimits)
	require.NoError(t, err)
	require.Equal(t, VerbStats, req.Verb)
}

func TestDecode_Framing(t *testing.T) {
	t.Parallel()

	// Body not terminated by LF.
	_, _, err := Decode([]byte("GET 3\nfooX"), testLimits)
	require.ErrorIs(t, err, ErrFraming)

	// Over-long header without LF.
	long := make([]byte, testLimits.MaxHeaderBytes+1)
	for i := range long {
		long[i] = 'A'
	}
	_, _, err = Decode(long, testLimits)
	require.ErrorIs(t, err, ErrFraming)

	// Over-long header with LF.
	_, _, err = Decode(append(long, '\n'), testLimits)
	require.ErrorIs(t, err, ErrFraming)
}

func TestAppendRequest_RoundTrip(t *testing.T) {
	t.Parallel()

	reqs := []Request{
		{Verb: VerbGet, Key: []byte("a")},
		{Verb: VerbPut, Key: []byte("key"), Value: []byte("v\nwith newline"), TTL: 1500 * time.Millisecond},
		{Verb: VerbDelete, Key: []byte("a")},
		{Verb: VerbExists, Key: []byte("b")},
		{Verb: VerbStats},
	}
	var stream []byte
	for _, r := range reqs {
		stream = AppendRequest(stream, r)
	}
	for _, want := range reqs {
		got, n, err := Decode(stream, testLimits)
		require.NoError(t, err)
		require.Equal(t, want.Verb, got.Verb)
		require.Equal(t, string(want.Key), string(got.Key))
		if want.Verb == VerbPut {
			require.Equal(t, string(want.Value), string(got.Value))
			require.Equal(t, 2*time.Second, got.TTL, "sub-second remainder rounds up")
		}
		stream = stream[n:]
	}
	require.Empty(t, stream)
}

func TestResponse_RoundTrip(t *testing.T) {
	t.Parallel()

	var buf []byte
	buf = AppendResponse(buf, StatusOK, []byte("hello"))
	buf = AppendResponse(buf, StatusNotFound, nil)
	require.Equal(t, "OK 5\nhello\nNOT_FOUND 0\n\n", string(buf))
	require.Equal(t, len("OK 5\nhello\n"), ResponseLen(StatusOK, []byte("hello")))

	r, n, err := DecodeResponse(buf, 0)
	require.NoError(t, err)
	require.Equal(t, StatusOK, r.Status)
	require.Equal(t, "hello", string(r.Payload))

	r, m, err := DecodeResponse(buf[n:], 0)
	require.NoError(t, err)
	require.Equal(t, StatusNotFound, r.Status)
	require.Equal(t, len(buf), n+m)

	_, _, err = DecodeResponse([]byte("OK 5\nhel"), 0)
	require.ErrorIs(t, err, ErrIncomplete)
	_, _, err = DecodeResponse([]byte("MAYBE 1\nx\n"), 0)
	require.ErrorIs(t, err, ErrFraming)
	_, _, err = DecodeResponse([]byte("OK 100\n"), 10)
	require.ErrorIs(t, err, ErrFraming)
}

func TestTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from State
		ev   Event
		to   State
	}{
		{StateAwaitingRequest, EventHeader, StateParsingBody},
		{StateAwaitingRequest, EventRequest, StateDispatching},
		{StateAwaitingRequest, EventRejected, StateWritingResponse},
		{StateAwaitingRequest, EventShutdown, StateClosed},
		{StateAwaitingRequest, EventEOF, StateClosed},
		{StateParsingBody, EventRequest, StateDispatching},
		{StateParsingBody, EventFraming, StateClosed},
		{StateParsingBody, EventShutdown, StateClosed},
		{StateDispatching, EventDispatched, StateWritingResponse},
		{StateDispatching, EventShutdown, StateDispatching},
		{StateWritingResponse, EventResponded, StateAwaitingRequest},
		{StateWritingResponse, EventShutdown, StateWritingResponse},
		{StateWritingResponse, EventFraming, StateClosed},
		{StateClosed, EventRequest, StateClosed},
		{StateClosed, EventShutdown, StateClosed},
	}
	for _, c := range cases {
		got, err := Transition(c.from, c.ev)
		require.NoError(t, err, "%s on %s", c.from, c.ev)
		require.Equal(t, c.to, got, "%s on %s", c.from, c.ev)
	}

	for _, bad := range []struct {
		from State
		ev   Event
	}{
		{StateAwaitingRequest, EventDispatched},
		{StateParsingBody, EventResponded},
		{StateDispatching, EventRequest},
		{StateWritingResponse, EventHeader},
	} {
		got, err := Transition(bad.from, bad.ev)
		require.ErrorIs(t, err, ErrInvalidTransition)
		require.Equal(t, bad.from, got, "invalid events leave the state unchanged")
	}
}

func TestParseVerbAndStatus(t *testing.T) {
	t.Parallel()

	v, ok := ParseVerb([]byte("exists"))
	require.True(t, ok)
	require.Equal(t, VerbExists, v)
	_, ok = ParseVerb([]byte("INVALID"))
	require.False(t, ok)

	s, ok := ParseStatus([]byte("TOO_LARGE"))
	require.True(t, ok)
	require.Equal(t, StatusTooLarge, s)
}
