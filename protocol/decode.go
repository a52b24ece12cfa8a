package protocol

import (
	"bytes"
	"errors"
	"strconv"
	"time"
)

// maxResponseHeader bounds a response header line.
const maxResponseHeader = 32

// DecodeHeader decodes the header line at the start of buf.
//
// On success n is the header length including LF. A recoverable problem is
// reported as *Error with n still covering the header line, so the caller
// can skip it (plus Error.Discard body bytes) and carry on. ErrIncomplete
// asks for more input; ErrFraming means the stream is lost.
func DecodeHeader(buf []byte, lim Limits) (h Header, n int, err error) {
	lim = lim.withDefaults()
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if len(buf) > lim.MaxHeaderBytes {
			return Header{}, 0, ErrFraming
		}
		return Header{}, 0, ErrIncomplete
	}
	if i > lim.MaxHeaderBytes {
		return Header{}, 0, ErrFraming
	}
	n = i + 1
	line := buf[:i]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	h, perr := parseHeader(line)
	if perr != nil {
		return Header{}, n, perr
	}
	if h.KeyLen > lim.MaxKeyBytes || h.ValueLen > lim.MaxValueBytes {
		return h, n, &Error{
			Kind:    KindTooLarge,
			Verb:    h.Verb,
			Discard: h.BodyLen(),
			Msg:     "key or value exceeds limit",
		}
	}
	return h, n, nil
}

func parseHeader(line []byte) (Header, *Error) {
	if len(line) == 0 {
		return Header{}, malformed("empty header")
	}
	fields := bytes.Split(line, []byte{' '})
	verb, ok := ParseVerb(fields[0])
	if !ok {
		return Header{}, malformed("unknown verb %q", truncate(fields[0]))
	}
	args := fields[1:]
	h := Header{Verb: verb}

	switch verb {
	case VerbStats:
		if len(args) != 0 {
			return Header{}, &Error{Kind: KindMalformed, Verb: verb, Msg: "STATS takes no arguments"}
		}
		return h, nil
	case VerbGet, VerbDelete, VerbExists:
		if len(args) != 1 {
			return Header{}, &Error{Kind: KindMalformed, Verb: verb, Msg: verb.String() + " takes a key length"}
		}
	case VerbPut:
		if len(args) != 2 && len(args) != 3 {
			return Header{}, &Error{Kind: KindMalformed, Verb: verb, Msg: "PUT takes key length, value length and optional ttl"}
		}
	}

	var err error
	if h.KeyLen, err = parseLen(args[0]); err != nil {
		return Header{}, &Error{Kind: KindMalformed, Verb: verb, Msg: "bad key length"}
	}
	if verb == VerbPut {
		if h.ValueLen, err = parseLen(args[1]); err != nil {
			return Header{}, &Error{Kind: KindMalformed, Verb: verb, Msg: "bad value length"}
		}
		if len(args) == 3 {
			secs, err := strconv.ParseUint(string(args[2]), 10, 32)
			if err != nil {
				// Both lengths are known, so the body can still be skipped.
				return Header{}, &Error{
					Kind:    KindMalformed,
					Verb:    verb,
					Discard: h.KeyLen + h.ValueLen + 1,
					Msg:     "bad ttl",
				}
			}
			h.TTL = time.Duration(secs) * time.Second
		}
	}
	h.HasBody = true
	return h, nil
}

func parseLen(b []byte) (int, error) {
	v, err := strconv.ParseUint(string(b), 10, 31)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func truncate(b []byte) []byte {
	if len(b) > 16 {
		return b[:16]
	}
	return b
}

// DecodeBody decodes the body announced by h from the start of buf.
// A body not followed by LF is ErrFraming.
func DecodeBody(h Header, buf []byte) (Request, int, error) {
	req := Request{Verb: h.Verb, TTL: h.TTL}
	if !h.HasBody {
		return req, 0, nil
	}
	need := h.BodyLen()
	if len(buf) < need {
		return Request{}, 0, ErrIncomplete
	}
	if buf[need-1] != '\n' {
		return Request{}, 0, ErrFraming
	}
	req.Key = buf[:h.KeyLen:h.KeyLen]
	req.Value = buf[h.KeyLen : h.KeyLen+h.ValueLen : h.KeyLen+h.ValueLen]
	return req, need, nil
}

// Decode decodes one complete request frame from the start of buf.
//
// Results:
//   - (req, n, nil): a request occupying buf[:n].
//   - (_, 0, ErrIncomplete): buf is a prefix of a frame.
//   - (_, n, *Error): a recoverable error; skip buf[:n] and Error.Discard
//     further bytes, answer with Error.Status(), then continue decoding.
//   - (_, 0, ErrFraming): the stream cannot be resynchronized.
func Decode(buf []byte, lim Limits) (Request, int, error) {
	h, n, err := DecodeHeader(buf, lim)
	if err != nil {
		return Request{}, n, err
	}
	req, m, err := DecodeBody(h, buf[n:])
	if err != nil {
		return Request{}, 0, err
	}
	return req, n + m, nil
}

// AppendRequest appends the wire form of r to dst. TTLs are sent in whole
// seconds, rounding sub-second values up.
func AppendRequest(dst []byte, r Request) []byte {
	dst = append(dst, r.Verb.String()...)
	if r.Verb == VerbStats {
		return append(dst, '\n')
	}
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(len(r.Key)), 10)
	if r.Verb == VerbPut {
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(len(r.Value)), 10)
		if r.TTL > 0 {
			secs := (r.TTL + time.Second - 1) / time.Second
			dst = append(dst, ' ')
			dst = strconv.AppendInt(dst, int64(secs), 10)
		}
	}
	dst = append(dst, '\n')
	dst = append(dst, r.Key...)
	if r.Verb == VerbPut {
		dst = append(dst, r.Value...)
	}
	return append(dst, '\n')
}

// AppendResponse appends a response frame to dst.
func AppendResponse(dst []byte, st Status, payload []byte) []byte {
	dst = append(dst, st.String()...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(len(payload)), 10)
	dst = append(dst, '\n')
	dst = append(dst, payload...)
	return append(dst, '\n')
}

// ResponseLen is len(AppendResponse(nil, st, payload)).
func ResponseLen(st Status, payload []byte) int {
	return len(st.String()) + 1 + len(strconv.Itoa(len(payload))) + 1 + len(payload) + 1
}

// DecodeResponse decodes one response frame from the start of buf. It is
// the client-side counterpart of AppendResponse.
func DecodeResponse(buf []byte, maxPayload int) (Response, int, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if len(buf) > maxResponseHeader {
			return Response{}, 0, ErrFraming
		}
		return Response{}, 0, ErrIncomplete
	}
	status, size, ok := bytes.Cut(buf[:i], []byte{' '})
	if !ok {
		return Response{}, 0, ErrFraming
	}
	st, ok := ParseStatus(status)
	if !ok {
		return Response{}, 0, ErrFraming
	}
	plen, err := parseLen(size)
	if err != nil || (maxPayload > 0 && plen > maxPayload) {
		return Response{}, 0, errors.Join(ErrFraming, err)
	}
	start := i + 1
	end := start + plen
	if len(buf) < end+1 {
		return Response{}, 0, ErrIncomplete
	}
	if buf[end] != '\n' {
		return Response{}, 0, ErrFraming
	}
	return Response{Status: st, Payload: buf[start:end:end]}, end + 1, nil
}
