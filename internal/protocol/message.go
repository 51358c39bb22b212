// Package protocol defines the JSON events exchanged between game clients and
// the room relay. Every frame is an envelope of a type tag plus a
// type-specific payload.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client to relay.
const (
	TypeCreateRoom = "create_room"
	TypeJoinRoom   = "join_room"
	TypeMove       = "move"
)

// Relay to client.
const (
	TypeRoomCreated  = "room_created"
	TypeGameStart    = "game_start"
	TypeMoveReceived = "move_received"
	TypeError        = "error"
)

// Message is the wire envelope.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage wraps a payload into an envelope. A nil payload produces an
// envelope with no payload field (create_room).
func NewMessage(typ string, payload any) (*Message, error) {
	msg := &Message{Type: typ}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	msg.Payload = raw
	return msg, nil
}

// DecodePayload unmarshals the payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// JoinRoomPayload asks the relay to pair the sender into an existing room, or
// to re-attach a known participant after a reconnection.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// MovePayload carries a move to the peer. FEN is the sender's position after
// the move; the receiver reconciles against it.
type MovePayload struct {
	RoomID string `json:"roomId"`
	Move   string `json:"move"`
	FEN    string `json:"fen"`
}

// RoomCreatedPayload confirms room allocation; the creator plays white.
type RoomCreatedPayload struct {
	RoomID string `json:"roomId"`
}

// GameStartPayload announces that both sides are present. FEN is set only on
// re-attach, carrying the current snapshot.
type GameStartPayload struct {
	White string `json:"white"`
	Black string `json:"black"`
	FEN   string `json:"fen,omitempty"`
}

// MoveReceivedPayload delivers the peer's move plus the declared position.
type MoveReceivedPayload struct {
	Move string `json:"move"`
	FEN  string `json:"fen"`
}

// ErrorPayload reports a relay-side failure. The session is left untouched by
// the receiver.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
