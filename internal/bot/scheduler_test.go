package bot

import (
	"sync/atomic"
	"testing"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/daehyun-ko/chessduo/internal/game"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestTriggerSingleFlight(t *testing.T) {
	sched := NewScheduler(NewSelector(1), 30*time.Millisecond, nil)

	var delivered atomic.Int32
	deliver := func(game.Move) { delivered.Add(1) }

	if !sched.Trigger(startFEN, "level3", deliver) { t.Fatalf("first trigger refused") }
	for i := 0; i < 5; i++ {
		if sched.Trigger(startFEN, "level3", deliver) { t.Fatalf("trigger %d accepted while computing", i) }
	}

	sched.Wait()
	if got := delivered.Load(); got != 1 { t.Fatalf("delivered %d moves, want 1", got) }
}

func TestSchedulerReturnsToIdle(t *testing.T) {
	sched := NewScheduler(NewSelector(1), 5*time.Millisecond, nil)

	done := make(chan game.Move, 1)
	if !sched.Trigger(startFEN, "level8", func(mv game.Move) { done <- mv }) { t.Fatalf("trigger refused") }

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("no move delivered")
	}
	sched.Wait()

	if sched.Computing() { t.Fatalf("still computing after delivery") }
	if !sched.Trigger(startFEN, "level8", func(game.Move) {}) { t.Fatalf("trigger refused after idle") }
	sched.Wait()
}

func TestCancelPendingDropsResult(t *testing.T) {
	sched := NewScheduler(NewSelector(1), 30*time.Millisecond, nil)

	var delivered atomic.Int32
	if !sched.Trigger(startFEN, "level3", func(game.Move) { delivered.Add(1) }) { t.Fatalf("trigger refused") }
	sched.CancelPending()
	sched.Wait()

	if delivered.Load() != 0 { t.Fatalf("canceled computation still delivered") }
	if sched.Computing() { t.Fatalf("not idle after cancel") }
}

func TestCancelPendingFreesSchedulerDuringDelay(t *testing.T) {
	sched := NewScheduler(NewSelector(1), 300*time.Millisecond, nil)

	var delivered atomic.Int32
	deliver := func(game.Move) { delivered.Add(1) }
	if !sched.Trigger(startFEN, "level3", deliver) { t.Fatalf("trigger refused") }
	sched.CancelPending()

	// The canceled computation must release the scheduler well before its
	// think delay would have elapsed.
	deadline := time.Now().Add(100 * time.Millisecond)
	for !sched.Trigger(startFEN, "level3", deliver) {
		if time.Now().After(deadline) { t.Fatalf("scheduler still busy after cancel") }
		time.Sleep(time.Millisecond)
	}
	sched.CancelPending()
	sched.Wait()

	if got := delivered.Load(); got != 0 { t.Fatalf("canceled computations delivered %d moves", got) }
}

func TestTriggerTerminalPositionDeliversNothing(t *testing.T) {
	sched := NewScheduler(NewSelector(1), time.Millisecond, nil)

	// Fool's mate final position, black has already won.
	const mateFEN = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	var delivered atomic.Int32
	if !sched.Trigger(mateFEN, "level3", func(game.Move) { delivered.Add(1) }) { t.Fatalf("trigger refused") }
	sched.Wait()

	if delivered.Load() != 0 { t.Fatalf("terminal position produced a move") }
	if sched.Computing() { t.Fatalf("not idle after terminal position") }
}

func TestSelectorGreedyTakesHangingQueen(t *testing.T) {
	sel := NewSelector(7)
	// White pawn e4 can take the queen on d5.
	const fen = "k7/8/8/3q4/4P3/8/8/K7 w - - 0 1"
	for i := 0; i < 20; i++ {
		mv, err := sel.SelectMove(fen, "level8")
		if err != nil { t.Fatalf("SelectMove: %v", err) }
		if mv == nil { t.Fatalf("no move selected") }
		if mv.UCI() != "e4d5" { t.Fatalf("greedy preset played %s, want e4d5", mv.UCI()) }
	}
}

func TestSelectorProducesLegalMoves(t *testing.T) {
	sel := NewSelector(42)
	for _, level := range Presets() {
		mv, err := sel.SelectMove(startFEN, level)
		if err != nil { t.Fatalf("SelectMove(%s): %v", level, err) }
		if mv == nil { t.Fatalf("SelectMove(%s): no move", level) }

		opt, err := nchess.FEN(startFEN)
		if err != nil { t.Fatalf("FEN: %v", err) }
		g := nchess.NewGame(opt)
		if _, err := (nchess.UCINotation{}).Decode(g.Position(), mv.UCI()); err != nil {
			t.Fatalf("SelectMove(%s) returned illegal move %s: %v", level, mv.UCI(), err)
		}
	}
}

func TestSelectorUnknownDifficultyFallsBack(t *testing.T) {
	sel := NewSelector(3)
	mv, err := sel.SelectMove(startFEN, "grandmaster")
	if err != nil { t.Fatalf("SelectMove: %v", err) }
	if mv == nil { t.Fatalf("no move for fallback preset") }
}
