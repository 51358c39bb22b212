// Package bot provides the automated opponent: a difficulty-preset move
// selector and a scheduler that runs at most one computation at a time.
package bot

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/daehyun-ko/chessduo/internal/game"
)

// DefaultPreset is used when no difficulty is chosen.
const DefaultPreset = "level3"

// A preset narrows the candidate window over the scored move list. Wider
// windows play weaker; window 1 is greedy.
type preset struct {
	window int
}

var presets = map[string]preset{
	"level1": {window: 12},
	"level2": {window: 9},
	"level3": {window: 6},
	"level4": {window: 5},
	"level5": {window: 4},
	"level6": {window: 3},
	"level7": {window: 2},
	"level8": {window: 1},
}

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   1,
	nchess.Knight: 3,
	nchess.Bishop: 3,
	nchess.Rook:   5,
	nchess.Queen:  9,
}

// Presets lists the known difficulty names, weakest first.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Selector picks moves by material-greedy scoring with a weighted random
// choice inside the preset's candidate window.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector builds a selector. seed 0 means time-based.
func NewSelector(seed int64) *Selector {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Selector{rng: rand.New(rand.NewSource(seed))}
}

// SelectMove chooses a move for the side to play in fen. A terminal position
// yields (nil, nil): no move, no error.
func (s *Selector) SelectMove(fen, difficulty string) (*game.Move, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("selector: parse position: %w", err)
	}
	g := nchess.NewGame(opt)
	if g.Outcome() != nchess.NoOutcome {
		return nil, nil
	}
	moves := g.ValidMoves()
	if len(moves) == 0 {
		return nil, nil
	}

	p, ok := presets[strings.ToLower(strings.TrimSpace(difficulty))]
	if !ok {
		p = presets[DefaultPreset]
	}

	board := g.Position().Board()
	type scored struct {
		uci   string
		score int
	}
	candidates := make([]scored, 0, len(moves))
	for i := range moves {
		mv := &moves[i]
		candidates = append(candidates, scored{
			uci:   strings.ToLower(mv.String()),
			score: scoreMove(board, mv),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	window := p.window
	if window > len(candidates) {
		window = len(candidates)
	}

	s.mu.Lock()
	// Weighted toward the front of the window: index i gets window-i tickets.
	total := window * (window + 1) / 2
	ticket := s.rng.Intn(total)
	s.mu.Unlock()

	chosen := candidates[0]
	for i := 0; i < window; i++ {
		ticket -= window - i
		if ticket < 0 {
			chosen = candidates[i]
			break
		}
	}

	mv, err := game.ParseUCI(chosen.uci)
	if err != nil {
		return nil, fmt.Errorf("selector: bad candidate %q: %w", chosen.uci, err)
	}
	return &mv, nil
}

// scoreMove rewards material gain, promotion and checks.
func scoreMove(board *nchess.Board, mv *nchess.Move) int {
	score := 0
	switch {
	case mv.HasTag(nchess.EnPassant):
		score += pieceValues[nchess.Pawn] * 10
	case mv.HasTag(nchess.Capture):
		if victim := board.Piece(mv.S2()); victim != nchess.NoPiece {
			score += pieceValues[victim.Type()] * 10
		}
	}
	if promo := mv.Promo(); promo != nchess.NoPieceType {
		score += pieceValues[promo] * 10
	}
	if mv.HasTag(nchess.Check) {
		score += 2
	}
	return score
}
