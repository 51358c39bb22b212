package game

import nchess "github.com/corentings/chess/v2"

// Ledger records pieces removed from the board, per capturing side, in capture
// order. Entries are append-only; nothing ever rewrites history.
type Ledger struct {
	ByWhite []nchess.PieceType
	ByBlack []nchess.PieceType
}

func (l *Ledger) record(by Color, pt nchess.PieceType) {
	if by == White {
		l.ByWhite = append(l.ByWhite, pt)
		return
	}
	l.ByBlack = append(l.ByBlack, pt)
}

// Clone returns an independent copy.
func (l Ledger) Clone() Ledger {
	out := Ledger{}
	if len(l.ByWhite) > 0 {
		out.ByWhite = append([]nchess.PieceType(nil), l.ByWhite...)
	}
	if len(l.ByBlack) > 0 {
		out.ByBlack = append([]nchess.PieceType(nil), l.ByBlack...)
	}
	return out
}

// Recent returns up to limit most recent captures made by the given side,
// newest last.
func (l Ledger) Recent(by Color, limit int) []nchess.PieceType {
	order := l.ByWhite
	if by == Black {
		order = l.ByBlack
	}
	if limit <= 0 || limit >= len(order) {
		return append([]nchess.PieceType(nil), order...)
	}
	return append([]nchess.PieceType(nil), order[len(order)-limit:]...)
}
