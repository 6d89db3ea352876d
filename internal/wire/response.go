package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Response is a status code plus an optional payload. Payload is only
// encoded when HasPayload is set, so an empty payload is distinguishable
// from none.
type Response struct {
	Status     int32
	Payload    []byte
	HasPayload bool
}

// Status builds a payload-less response.
func Status(code int32) Response {
	return Response{Status: code}
}

// WithPayload builds a response carrying raw payload bytes.
func WithPayload(code int32, payload []byte) Response {
	return Response{Status: code, Payload: payload, HasPayload: true}
}

// WithJSON builds a response carrying v encoded as JSON.
func WithJSON(code int32, v interface{}) (Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Response{}, fmt.Errorf("wire: encode payload: %w", err)
	}
	return WithPayload(code, data), nil
}

// Encode renders the response in its wire form.
func (r Response) Encode() []byte {
	size := 4
	if r.HasPayload {
		size += 4 + len(r.Payload)
	}
	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint32(buf, uint32(r.Status))
	if r.HasPayload {
		buf = AppendFrame(buf, r.Payload)
	}
	return buf
}

// ReadResponse decodes one response. hasPayload reports, for a given status,
// whether the operation's contract defines a payload; a nil func means never.
func ReadResponse(r io.Reader, hasPayload func(status int32) bool) (Response, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Response{}, err
	}
	resp := Response{Status: int32(binary.BigEndian.Uint32(head[:]))}
	if hasPayload == nil || !hasPayload(resp.Status) {
		return resp, nil
	}

	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Response{}, fmt.Errorf("%w: payload length: %v", ErrShortFrame, err)
	}
	n := binary.BigEndian.Uint32(head[:])
	resp.Payload = make([]byte, n)
	resp.HasPayload = true
	if _, err := io.ReadFull(r, resp.Payload); err != nil {
		return Response{}, fmt.Errorf("%w: payload: %v", ErrShortFrame, err)
	}
	return resp, nil
}
