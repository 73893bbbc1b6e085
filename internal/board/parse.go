package board

import (
	"fmt"

	chess "github.com/corentings/chess/v2"
)

// ParseMove parses a four- or five-character UCI move string ("e2e4",
// "e7e8q") against pos, filling in the derived tags (capture, check,
// castle) that chess/v2's UCINotation.Decode computes from the
// position. The returned move is not checked for legality; callers
// that need that call pos.IsLegal.
func ParseMove(uci string, pos *Position) (Move, error) {
	m, err := chess.UCINotation{}.Decode(pos.inner, uci)
	if err != nil {
		return NoMove, fmt.Errorf("board: parse move %q: %w", uci, err)
	}
	return fromChessMove(m), nil
}

// ColorName renders c the way FEN does ("w"/"b"), used by status lines
// and logging.
func ColorName(c Color) string {
	if c == White {
		return "w"
	}
	return "b"
}
