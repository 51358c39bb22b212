// Package session owns the game-session state machine: which mode is active,
// whose move is permitted, and how local, automated and relayed moves are
// serialized onto the one canonical position.
package session

import "github.com/daehyun-ko/chessduo/internal/game"

// Mode selects how the opposing side is driven.
type Mode int

const (
	ModeLocal Mode = iota // both sides on one device
	ModeVsBot             // automated opponent plays black
	ModeOnline            // peer over the room relay
)

func (m Mode) String() string {
	switch m {
	case ModeVsBot:
		return "vs_bot"
	case ModeOnline:
		return "online"
	default:
		return "local"
	}
}

// RoomPhase is the client-side view of the room lifecycle.
type RoomPhase string

const (
	PhaseNoRoom           RoomPhase = "no_room"
	PhaseAwaitingOpponent RoomPhase = "awaiting_opponent"
	PhaseActive           RoomPhase = "active"
)

// HumanSide is the human's side against the automated opponent: the side that
// moves first.
const HumanSide = game.White

// Session describes the active game variant. Switching modes discards the
// previous session together with its position.
type Session struct {
	Mode Mode

	// ModeVsBot.
	Difficulty string

	// ModeOnline. LocalSide is fixed once assigned by the relay.
	RoomID          string
	LocalSide       game.Color
	RemoteConnected bool
	Phase           RoomPhase
}
