// Package relay implements the room relay: it pairs two clients into a
// code-identified room and forwards their moves. It owns room state; clients
// only reference rooms by code.
package relay

import "time"

// RoomState is the room lifecycle.
type RoomState string

const (
	StateAwaitingOpponent RoomState = "AWAITING_OPPONENT"
	StateActive           RoomState = "ACTIVE"
	StateAbandoned        RoomState = "ABANDONED"
	StateCompleted        RoomState = "COMPLETED"
)

// RoomMeta is stored as JSON in Redis under room:<code>.
type RoomMeta struct {
	Code      string    `json:"code"`
	State     RoomState `json:"state"`
	WhiteID   string    `json:"white_id"`
	BlackID   string    `json:"black_id,omitempty"`
	FEN       string    `json:"fen,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasParticipant reports whether clientID is one of the room's two sides.
func (m *RoomMeta) HasParticipant(clientID string) bool {
	if clientID == "" {
		return false
	}
	return m.WhiteID == clientID || m.BlackID == clientID
}

// PeerOf returns the other participant's client ID, or "".
func (m *RoomMeta) PeerOf(clientID string) string {
	switch clientID {
	case m.WhiteID:
		return m.BlackID
	case m.BlackID:
		return m.WhiteID
	default:
		return ""
	}
}

// Errors
var (
	ErrInvalidArgs  = errf("invalid arguments")
	ErrRoomNotFound = errf("room not found or expired")
	ErrRoomFull     = errf("room is full")
	ErrNotInRoom    = errf("client is not a room participant")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
