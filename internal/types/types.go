// Package types provides domain models shared across busprobe components.
//
// Zero-dependency design: types.go, path.go and errors.go use only the standard
// library so the matching core can be imported without pulling transport or
// storage deps. ID utilities in ids.go import uuid but are isolated.
//
// Documents are decoded once at the transport edge and never mutated after
// they enter the buffer. Identity (pointer equality) is what the buffer and
// matcher key on, never value equality.
package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// Envelope keys written by the transports. Filter files address message
// metadata through these names, so they are part of the user contract.
const (
	EnvelopeTopic     = "topic"
	EnvelopeTimestamp = "Timestamp"
	EnvelopeHeaders   = "Headers"
	EnvelopeMessage   = "Message"
)

// Document is one decoded message envelope held in the message buffer.
// Body is a JSON tree: map[string]any, []any, json.Number, string, bool or nil.
type Document struct {
	Seq        uint64    // buffer insertion sequence, assigned on Append
	ReceivedAt time.Time // time the buffer accepted the document
	Source     string    // transport that produced it (nats, grpc, scenario)
	Body       any
}

// Get returns a top-level envelope field, or nil when Body is not an object.
func (d *Document) Get(key string) any {
	m, ok := d.Body.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}

// MarshalJSON renders the envelope body so documents print as the JSON they
// were decoded from.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.Body)
}

// DecodeJSON parses raw JSON into a document body.
// Numbers are kept as json.Number so "5" and "5.0" keep their original text
// when rendered for comparison.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, ErrTrailingData
	}
	return v, nil
}

// Resource limits enforced at the ingest and DSL boundaries.
const (
	// MaxDocumentSize caps a single ingested document.
	// 1MB covers typical bus events; larger payloads belong in blob storage.
	MaxDocumentSize = 1024 * 1024

	// MaxPathDepth bounds the number of dotted segments in a filter path.
	MaxPathDepth = 32

	// MaxExpressionDepth bounds DSL call nesting to keep the recursive
	// parser off the stack limit for hostile input.
	MaxExpressionDepth = 32
)
