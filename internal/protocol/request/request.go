// Package request owns the hand-assembled fetch request encoding.
//
// It encodes one outbound message straight against the wire format's
// tag/varint/length rules, deliberately independent of the schema catalog
// so the low-level encoding contract stays testable on its own.
package request

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the play element fetch request.
const (
	FieldPlayElementID = 1
	FieldIncludeDenied = 2
)

var ErrMissingPlayElementID = errors.New("request: play element id required")

// GetPlayElement is the fetch request body.
type GetPlayElement struct {
	PlayElementID string
	IncludeDenied bool
}

// Encode serializes the request. False booleans are omitted entirely, per
// the wire format's zero-value-omission convention; only a true boolean
// ever puts the field on the wire.
func (r GetPlayElement) Encode() ([]byte, error) {
	if r.PlayElementID == "" {
		return nil, ErrMissingPlayElementID
	}
	buf := protowire.AppendTag(nil, FieldPlayElementID, protowire.BytesType)
	buf = protowire.AppendString(buf, r.PlayElementID)
	if r.IncludeDenied {
		buf = protowire.AppendTag(buf, FieldIncludeDenied, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	return buf, nil
}
