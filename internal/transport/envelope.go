// Package transport carries strategy calls between the game server and
// remote player agents as JSON envelopes.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when a message cannot be decoded.
	ErrMalformed = errors.New("malformed message")
	// ErrClosed is returned once a connection is shut.
	ErrClosed = errors.New("connection closed")
)

// Message types. Requests and notifications flow server to agent; replies
// flow back and echo the request's sequence number.
const (
	TypeWelcome       = "welcome"
	TypeChooseAuction = "chooseAuction"
	TypeBid           = "bid"
	TypeDiscard       = "discard"
	TypeBuyResources  = "buyResources"
	TypeBuild         = "build"
	TypePower         = "power"
	TypeNotify        = "notify"
	TypeReply         = "reply"
	TypeError         = "error"
)

// Envelope is the wire frame.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope encodes payload into a frame.
func NewEnvelope(typ string, seq uint64, payload interface{}) (Envelope, error) {
	e := Envelope{Type: typ, Seq: seq}
	if payload == nil {
		return e, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", typ, err)
	}
	e.Payload = b
	return e, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s #%d has no payload", ErrMalformed, e.Type, e.Seq)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s #%d: %v", ErrMalformed, e.Type, e.Seq, err)
	}
	return nil
}

// Conn is a bidirectional message stream. Send and Receive may be used
// from different goroutines; each is safe for one caller at a time.
type Conn interface {
	Send(ctx context.Context, e Envelope) error
	Receive(ctx context.Context) (Envelope, error)
	Close() error
}
