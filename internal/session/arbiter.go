package session

import "github.com/daehyun-ko/chessduo/internal/game"

// MayMove reports whether a human-originated move attempt is permitted right
// now. Turn ownership is enforced once, here, per move origin: moves arriving
// from the relay or from the automated opponent bypass this check at their
// call sites.
func MayMove(s Session, sideToMove game.Color) bool {
	switch s.Mode {
	case ModeLocal:
		return true
	case ModeVsBot:
		return sideToMove == HumanSide
	case ModeOnline:
		return s.Phase == PhaseActive && sideToMove == s.LocalSide
	default:
		return false
	}
}
