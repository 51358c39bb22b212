package game

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// ErrIllegalMove is returned for malformed coordinates and for moves the rules
// engine rejects against the current position. The position is never mutated
// when it is returned.
var ErrIllegalMove = errors.New("illegal move")

// Color of a side. String values align with the wire protocol.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Other returns the opposing side.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

func colorFrom(c nchess.Color) Color {
	if c == nchess.Black {
		return Black
	}
	return White
}

// MoveResult describes one successfully applied move.
type MoveResult struct {
	UCI           string
	SAN           string
	Capture       bool
	CapturedPiece nchess.PieceType
	Check         bool
	FEN           string
	SideToMove    Color
	MoveCount     int
}

// Store is the single owner of the live position. Every mutation goes through
// ApplyMove or LoadSnapshot; readers get copies or plain values.
type Store struct {
	game   *nchess.Game
	ledger Ledger
}

// NewStore starts a store at the standard initial position.
func NewStore() *Store {
	return &Store{game: nchess.NewGame()}
}

// Reset discards the position and ledger, returning to the initial position.
func (s *Store) Reset() {
	s.game = nchess.NewGame()
	s.ledger = Ledger{}
}

// FEN serializes the current position.
func (s *Store) FEN() string { return s.game.FEN() }

// SideToMove reports whose turn it is.
func (s *Store) SideToMove() Color { return colorFrom(s.game.Position().Turn()) }

// MoveCount reports how many moves have been applied since the start position
// or the last snapshot load.
func (s *Store) MoveCount() int { return len(s.game.Moves()) }

// MovesUCI lists applied moves in coordinate notation, oldest first.
func (s *Store) MovesUCI() []string {
	moves := s.game.Moves()
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, strings.ToLower(mv.String()))
	}
	return out
}

// Ledger returns a copy of the captured-piece ledger.
func (s *Store) Ledger() Ledger { return s.ledger.Clone() }

// ApplyUCI parses coordinate notation and applies it.
func (s *Store) ApplyUCI(uci string) (*MoveResult, error) {
	mv, err := ParseUCI(uci)
	if err != nil {
		return nil, err
	}
	return s.ApplyMove(mv)
}

// ApplyMove validates the move against the current position and applies it.
// On any rejection the position is left untouched and ErrIllegalMove is
// returned.
func (s *Store) ApplyMove(m Move) (*MoveResult, error) {
	pos := s.game.Position()
	uci := strings.ToLower(strings.TrimSpace(m.UCI()))

	decoded, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}

	mover := pos.Turn()
	capturedPiece := capturedPieceAt(pos, decoded)

	if err := s.game.Move(decoded, nil); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}

	if capturedPiece != nchess.NoPieceType {
		s.ledger.record(colorFrom(mover), capturedPiece)
	}

	return &MoveResult{
		UCI:           uci,
		SAN:           nchess.AlgebraicNotation{}.Encode(pos, decoded),
		Capture:       capturedPiece != nchess.NoPieceType,
		CapturedPiece: capturedPiece,
		Check:         decoded.HasTag(nchess.Check),
		FEN:           s.game.FEN(),
		SideToMove:    colorFrom(s.game.Position().Turn()),
		MoveCount:     len(s.game.Moves()),
	}, nil
}

// Resign ends the game in favor of the other side.
func (s *Store) Resign(c Color) {
	if c == Black {
		s.game.Resign(nchess.Black)
		return
	}
	s.game.Resign(nchess.White)
}

// LoadSnapshot unconditionally replaces the position from a FEN string. The
// move history restarts at the snapshot; the captured ledger is kept as-is
// because a bare FEN carries no capture history.
func (s *Store) LoadSnapshot(fen string) error {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	s.game = nchess.NewGame(opt)
	return nil
}

// capturedPieceAt inspects the pre-move board for the piece removed by mv.
// En passant captures remove a pawn one rank behind the destination square.
func capturedPieceAt(pos *nchess.Position, mv *nchess.Move) nchess.PieceType {
	if !mv.HasTag(nchess.Capture) && !mv.HasTag(nchess.EnPassant) {
		return nchess.NoPieceType
	}
	captureSquare := mv.S2()
	if mv.HasTag(nchess.EnPassant) {
		file := mv.S2().File()
		rank := mv.S2().Rank()
		if pos.Turn() == nchess.White {
			captureSquare = nchess.NewSquare(file, rank-1)
		} else {
			captureSquare = nchess.NewSquare(file, rank+1)
		}
	}
	piece := pos.Board().Piece(captureSquare)
	if piece == nchess.NoPiece {
		return nchess.NoPieceType
	}
	pt := piece.Type()
	if pt == nchess.King {
		return nchess.NoPieceType
	}
	return pt
}
