package game

import nchess "github.com/corentings/chess/v2"

// DrawKind labels the draw category of a position.
type DrawKind string

const (
	DrawNone                 DrawKind = ""
	DrawThreefold            DrawKind = "threefold_repetition"
	DrawInsufficientMaterial DrawKind = "insufficient_material"
	DrawFiftyMove            DrawKind = "fifty_move"
	DrawOther                DrawKind = "other"
)

// Status is a pure projection of the current position. It holds no state of
// its own; recompute it after every mutation.
type Status struct {
	Turn        Color
	IsCheck     bool
	IsCheckmate bool
	IsStalemate bool
	DrawKind    DrawKind
	Finished    bool
	Winner      Color // empty unless decisive
	MoveCount   int
	FEN         string
}

// Project derives presentation facts from the store without mutating it.
func (s *Store) Project() Status {
	g := s.game
	pos := g.Position()

	st := Status{
		Turn:      colorFrom(pos.Turn()),
		MoveCount: len(g.Moves()),
		FEN:       g.FEN(),
	}

	if moves := g.Moves(); len(moves) > 0 {
		st.IsCheck = moves[len(moves)-1].HasTag(nchess.Check)
	}

	switch pos.Status() {
	case nchess.Checkmate:
		st.IsCheckmate = true
		st.IsCheck = true
		st.Finished = true
		st.Winner = st.Turn.Other()
	case nchess.Stalemate:
		st.IsStalemate = true
		st.Finished = true
	}

	switch g.Outcome() {
	case nchess.WhiteWon:
		st.Finished = true
		st.Winner = White
	case nchess.BlackWon:
		st.Finished = true
		st.Winner = Black
	case nchess.Draw:
		st.Finished = true
	}

	if !st.IsCheckmate && !st.IsStalemate {
		st.DrawKind = classifyDraw(g, pos)
		if st.DrawKind == DrawInsufficientMaterial {
			st.Finished = true
		}
	}

	return st
}

// classifyDraw reports the first matching draw category, checked in a fixed
// order: threefold repetition, insufficient material, fifty-move, other.
// Stalemate is reported through Status.IsStalemate, not here. A draw that is
// merely claimable but unclaimed does not classify; only positions the game
// actually treats as drawn do, plus dead positions found by the board scan.
func classifyDraw(g *nchess.Game, pos *nchess.Position) DrawKind {
	switch g.Method() {
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return DrawThreefold
	case nchess.InsufficientMaterial:
		return DrawInsufficientMaterial
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return DrawFiftyMove
	}
	if insufficientMaterial(pos.Board()) {
		return DrawInsufficientMaterial
	}
	if g.Outcome() == nchess.Draw {
		return DrawOther
	}
	return DrawNone
}

// insufficientMaterial scans the board for a dead position: bare kings, or a
// single minor piece beside the kings.
func insufficientMaterial(board *nchess.Board) bool {
	minors := 0
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			piece := board.Piece(nchess.NewSquare(file, rank))
			if piece == nchess.NoPiece {
				continue
			}
			switch piece.Type() {
			case nchess.King:
			case nchess.Knight, nchess.Bishop:
				minors++
			default:
				return false
			}
		}
	}
	return minors <= 1
}
