// Package frame owns the length-prefixed streaming envelope.
//
// Ownership boundary:
// - data/trailer frame encode and decode
// - trailer status line parsing
// - transport status errors
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// HeaderLen is one compression flag byte plus a big-endian u32 length.
	HeaderLen = 5

	FlagData    byte = 0x00
	FlagTrailer byte = 0x80

	statusKey  = "grpc-status"
	messageKey = "grpc-message"
)

var (
	ErrCompressedFrame = errors.New("frame: compressed frames unsupported")
	ErrTrailerMissing  = errors.New("frame: trailer carries no status line")
	ErrEmptyNoStatus   = errors.New("frame: empty body without success status")
)

// FramingError reports a malformed envelope with byte-length context.
type FramingError struct {
	Reason string
	Have   int
	Want   int
}

func (e FramingError) Error() string {
	return fmt.Sprintf("frame: %s: have %d bytes, want %d", e.Reason, e.Have, e.Want)
}

// Status is the out-of-band result carried by a trailer frame or, for
// empty responses, by the transport's own metadata.
type Status struct {
	Code    int
	Message string
}

func (s Status) OK() bool {
	return s.Code == 0
}

// StatusError is a transport-level failure decoded from a nonzero status.
type StatusError struct {
	Code    int
	Message string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("frame: rpc status %d: %s", e.Code, e.Message)
}

// Response is one decoded envelope: the message bytes plus the trailer
// status when the body carried one.
type Response struct {
	Message []byte
	Status  *Status
}

// Encode wraps one serialized message in a data frame.
func Encode(payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))
	buf[0] = FlagData
	binary.BigEndian.PutUint32(buf[1:HeaderLen], uint32(len(payload)))
	copy(buf[HeaderLen:], payload)
	return buf
}

// EncodeTrailer builds a trailer frame from a status. Used by test servers
// and kept next to Encode so the two frame shapes stay in one place.
func EncodeTrailer(s Status) []byte {
	text := fmt.Sprintf("%s: %d\r\n", statusKey, s.Code)
	if s.Message != "" {
		text += fmt.Sprintf("%s: %s\r\n", messageKey, s.Message)
	}
	buf := make([]byte, HeaderLen+len(text))
	buf[0] = FlagTrailer
	binary.BigEndian.PutUint32(buf[1:HeaderLen], uint32(len(text)))
	copy(buf[HeaderLen:], text)
	return buf
}

// Decode parses a response body. A zero-length body is accepted only when
// the out-of-band status reports success; any other short body is a framing
// error. A nonzero status, whether from the trailer or out-of-band, is
// returned as a StatusError.
func Decode(body []byte, oob *Status) (Response, error) {
	if len(body) == 0 {
		if oob == nil {
			return Response{}, ErrEmptyNoStatus
		}
		if !oob.OK() {
			return Response{}, StatusError{Code: oob.Code, Message: oob.Message}
		}
		return Response{Message: []byte{}, Status: oob}, nil
	}
	if len(body) < HeaderLen {
		return Response{}, FramingError{Reason: "short frame header", Have: len(body), Want: HeaderLen}
	}
	if body[0] != FlagData {
		return Response{}, fmt.Errorf("%w: flag 0x%02x", ErrCompressedFrame, body[0])
	}

	msgLen := int(binary.BigEndian.Uint32(body[1:HeaderLen]))
	if HeaderLen+msgLen > len(body) {
		return Response{}, FramingError{Reason: "message length exceeds body", Have: len(body), Want: HeaderLen + msgLen}
	}

	resp := Response{Message: body[HeaderLen : HeaderLen+msgLen]}

	rest := body[HeaderLen+msgLen:]
	if len(rest) == 0 {
		if oob != nil && !oob.OK() {
			return Response{}, StatusError{Code: oob.Code, Message: oob.Message}
		}
		return resp, nil
	}

	status, err := decodeTrailer(rest)
	if err != nil {
		return Response{}, err
	}
	if !status.OK() {
		return Response{}, StatusError{Code: status.Code, Message: status.Message}
	}
	resp.Status = &status
	return resp, nil
}

func decodeTrailer(b []byte) (Status, error) {
	if len(b) < HeaderLen {
		return Status{}, FramingError{Reason: "short trailer header", Have: len(b), Want: HeaderLen}
	}
	if b[0] != FlagTrailer {
		return Status{}, FramingError{Reason: "unexpected bytes after message", Have: len(b), Want: HeaderLen}
	}
	trailerLen := int(binary.BigEndian.Uint32(b[1:HeaderLen]))
	if HeaderLen+trailerLen > len(b) {
		return Status{}, FramingError{Reason: "trailer length exceeds body", Have: len(b), Want: HeaderLen + trailerLen}
	}
	return ParseStatusLines(string(b[HeaderLen : HeaderLen+trailerLen]))
}

// ParseStatusLines parses textual "key: value" status lines as carried by a
// trailer frame.
func ParseStatusLines(text string) (Status, error) {
	var (
		status Status
		found  bool
	)
	for _, line := range strings.Split(text, "\r\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case statusKey:
			code, err := strconv.Atoi(value)
			if err != nil {
				return Status{}, fmt.Errorf("frame: bad status line %q: %w", line, err)
			}
			status.Code = code
			found = true
		case messageKey:
			status.Message = value
		}
	}
	if !found {
		return Status{}, ErrTrailerMissing
	}
	return status, nil
}
