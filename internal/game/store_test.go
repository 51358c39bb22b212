package game

import (
	"errors"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

func mustApply(t *testing.T, s *Store, uci string) *MoveResult {
	t.Helper()
	res, err := s.ApplyUCI(uci)
	if err != nil { t.Fatalf("ApplyUCI(%s): %v", uci, err) }
	return res
}

func TestParseUCI(t *testing.T) {
	mv, err := ParseUCI(" E2E4 ")
	if err != nil { t.Fatalf("ParseUCI: %v", err) }
	if mv.UCI() != "e2e4" { t.Fatalf("unexpected move: %s", mv.UCI()) }

	promo, err := ParseUCI("e7e8q")
	if err != nil { t.Fatalf("ParseUCI promotion: %v", err) }
	if promo.Promotion != "q" { t.Fatalf("unexpected promotion: %q", promo.Promotion) }

	for _, bad := range []string{"", "e2", "z2e4", "e2e9", "e7e8k"} {
		if _, err := ParseUCI(bad); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("ParseUCI(%q): want ErrIllegalMove, got %v", bad, err)
		}
	}
}

func TestApplyMoveAlternatesSides(t *testing.T) {
	s := NewStore()
	if s.SideToMove() != White { t.Fatalf("initial side: %s", s.SideToMove()) }

	res := mustApply(t, s, "e2e4")
	if res.SideToMove != Black || s.SideToMove() != Black { t.Fatalf("side after e2e4: %s", s.SideToMove()) }

	res = mustApply(t, s, "e7e5")
	if res.SideToMove != White || s.SideToMove() != White { t.Fatalf("side after e7e5: %s", s.SideToMove()) }
	if s.MoveCount() != 2 { t.Fatalf("move count: %d", s.MoveCount()) }
}

func TestApplyMoveRejectsIllegalWithoutMutation(t *testing.T) {
	s := NewStore()
	before := s.FEN()

	for _, bad := range []string{"e2e5", "e7e5", "a1a3", "zz99"} {
		_, err := s.ApplyUCI(bad)
		if !errors.Is(err, ErrIllegalMove) { t.Fatalf("ApplyUCI(%s): want ErrIllegalMove, got %v", bad, err) }
		if s.FEN() != before { t.Fatalf("position mutated by rejected move %s", bad) }
	}
	if s.MoveCount() != 0 { t.Fatalf("move count after rejections: %d", s.MoveCount()) }
}

func TestCaptureRecordsLedger(t *testing.T) {
	s := NewStore()
	mustApply(t, s, "e2e4")
	mustApply(t, s, "d7d5")

	res := mustApply(t, s, "e4d5")
	if !res.Capture || res.CapturedPiece != nchess.Pawn { t.Fatalf("capture not detected: %+v", res) }

	ledger := s.Ledger()
	if len(ledger.ByWhite) != 1 || ledger.ByWhite[0] != nchess.Pawn { t.Fatalf("white ledger: %v", ledger.ByWhite) }
	if len(ledger.ByBlack) != 0 { t.Fatalf("black ledger: %v", ledger.ByBlack) }
}

func TestEnPassantCaptureRecordsPawn(t *testing.T) {
	s := NewStore()
	for _, uci := range []string{"e2e4", "a7a6", "e4e5", "d7d5"} {
		mustApply(t, s, uci)
	}

	res := mustApply(t, s, "e5d6")
	if !res.Capture || res.CapturedPiece != nchess.Pawn { t.Fatalf("en passant capture not detected: %+v", res) }
	if got := s.Ledger().ByWhite; len(got) != 1 || got[0] != nchess.Pawn { t.Fatalf("white ledger: %v", got) }
}

func TestLoadSnapshotReplacesPosition(t *testing.T) {
	s := NewStore()
	mustApply(t, s, "e2e4")

	const fen = "k7/8/8/8/8/8/8/K6R w - - 0 1"
	if err := s.LoadSnapshot(fen); err != nil { t.Fatalf("LoadSnapshot: %v", err) }
	if s.SideToMove() != White { t.Fatalf("side after snapshot: %s", s.SideToMove()) }
	if s.MoveCount() != 0 { t.Fatalf("move count after snapshot: %d", s.MoveCount()) }

	res := mustApply(t, s, "h1h8")
	if !res.Check { t.Fatalf("expected check from h1h8: %+v", res) }
}

func TestLoadSnapshotRejectsGarbage(t *testing.T) {
	s := NewStore()
	if err := s.LoadSnapshot("not a fen"); err == nil { t.Fatalf("expected error for bad snapshot") }
}

func TestLedgerRecent(t *testing.T) {
	l := Ledger{ByWhite: []nchess.PieceType{nchess.Pawn, nchess.Knight, nchess.Rook}}
	recent := l.Recent(White, 2)
	if len(recent) != 2 || recent[0] != nchess.Knight || recent[1] != nchess.Rook { t.Fatalf("recent: %v", recent) }
	if got := l.Recent(Black, 5); len(got) != 0 { t.Fatalf("black recent: %v", got) }
}
