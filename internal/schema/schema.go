// Package schema owns the runtime message catalog.
//
// Ownership boundary:
// - descriptor set loading and memoization
// - message type lookup by fully-qualified name
// - plain-object encode/decode/verify
//
// The catalog is an external capability: message definitions are consulted
// at runtime from a serialized descriptor set, never compiled in. Plain
// objects round-trip with enumerations as integers and 64-bit integers as
// strings so documents survive edit cycles unchanged.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// MessageType is one resolvable message: plain-object codec plus a
// verification hook.
type MessageType interface {
	Verify(obj map[string]any) error
	Encode(obj map[string]any) ([]byte, error)
	Decode(raw []byte) (map[string]any, error)
}

// Catalog resolves message types by fully-qualified name.
type Catalog interface {
	Lookup(fullName string) (MessageType, error)
}

// LookupError reports a name the catalog cannot resolve to a message.
type LookupError struct {
	Name   string
	Reason string
}

func (e LookupError) Error() string {
	return fmt.Sprintf("schema: lookup %q: %s", e.Name, e.Reason)
}

// NewCatalog builds a catalog from a serialized FileDescriptorSet.
func NewCatalog(descriptorSet []byte) (Catalog, error) {
	var fds descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(descriptorSet, &fds); err != nil {
		return nil, fmt.Errorf("schema: parse descriptor set: %w", err)
	}
	files, err := protodesc.NewFiles(&fds)
	if err != nil {
		return nil, fmt.Errorf("schema: build registry: %w", err)
	}
	return &catalog{files: files}, nil
}

type catalog struct {
	files *protoregistry.Files
}

func (c *catalog) Lookup(fullName string) (MessageType, error) {
	desc, err := c.files.FindDescriptorByName(protoreflect.FullName(fullName))
	if err != nil {
		return nil, LookupError{Name: fullName, Reason: err.Error()}
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, LookupError{Name: fullName, Reason: "not a message"}
	}
	return &messageType{desc: md}, nil
}

type messageType struct {
	desc protoreflect.MessageDescriptor
}

func (m *messageType) Verify(obj map[string]any) error {
	if _, err := m.Encode(obj); err != nil {
		return fmt.Errorf("schema: verify %s: %w", m.desc.FullName(), err)
	}
	return nil
}

func (m *messageType) Encode(obj map[string]any) ([]byte, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("schema: encode %s: %w", m.desc.FullName(), err)
	}
	msg := dynamicpb.NewMessage(m.desc)
	opts := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := opts.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("schema: encode %s: %w", m.desc.FullName(), err)
	}
	return proto.Marshal(msg)
}

func (m *messageType) Decode(raw []byte) (map[string]any, error) {
	msg := dynamicpb.NewMessage(m.desc)
	if err := proto.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("schema: decode %s: %w", m.desc.FullName(), err)
	}
	opts := protojson.MarshalOptions{UseEnumNumbers: true}
	jsonRaw, err := opts.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("schema: decode %s: %w", m.desc.FullName(), err)
	}
	dec := json.NewDecoder(bytes.NewReader(jsonRaw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("schema: decode %s: %w", m.desc.FullName(), err)
	}
	return out, nil
}
