package game

import (
	"fmt"
	"strings"
)

// Move is an immutable origin/destination pair with an optional promotion
// piece, in coordinate (UCI) form: "e2e4", "e7e8q".
type Move struct {
	From      string
	To        string
	Promotion string
}

// ParseUCI builds a Move from coordinate notation. Legality against a position
// is not checked here; the Store does that on apply.
func ParseUCI(s string) (Move, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	if len(text) != 4 && len(text) != 5 {
		return Move{}, fmt.Errorf("%w: malformed move %q", ErrIllegalMove, s)
	}
	from, to := text[:2], text[2:4]
	if !validSquare(from) || !validSquare(to) {
		return Move{}, fmt.Errorf("%w: malformed move %q", ErrIllegalMove, s)
	}
	mv := Move{From: from, To: to}
	if len(text) == 5 {
		promo := text[4:]
		if !strings.Contains("qrbn", promo) {
			return Move{}, fmt.Errorf("%w: bad promotion in %q", ErrIllegalMove, s)
		}
		mv.Promotion = promo
	}
	return mv, nil
}

// UCI returns the move in coordinate notation.
func (m Move) UCI() string {
	return m.From + m.To + m.Promotion
}

func (m Move) String() string { return m.UCI() }

func validSquare(sq string) bool {
	if len(sq) != 2 {
		return false
	}
	return sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}
