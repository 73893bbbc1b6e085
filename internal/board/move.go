package board

import (
	"reflect"

	chess "github.com/corentings/chess/v2"
)

// Move wraps chess.Move with the From/To naming the rest of the
// controller uses (chess/v2 names them S1/S2); HasTag forwards the
// library's own move-tag bitmask (capture, en passant, castle, check)
// for callers that want it.
type Move chess.Move

// NoMove is the zero Move, returned wherever "no move" needs a value
// rather than an (ok bool) pair.
var NoMove = Move{}

// From is the move's origin square.
func (m Move) From() Square { cm := chess.Move(m); return cm.S1() }

// To is the move's destination square.
func (m Move) To() Square { cm := chess.Move(m); return cm.S2() }

// Promo is the promotion piece type, or NoPieceType for a non-promoting
// move.
func (m Move) Promo() PieceType { cm := chess.Move(m); return cm.Promo() }

// IsPromotion reports whether the move promotes a pawn.
func (m Move) IsPromotion() bool { return m.Promo() != NoPieceType }

// IsNoMove reports whether m is the zero Move (equivalent to m == NoMove,
// which chess.Move's embedded map field makes uncomparable).
func (m Move) IsNoMove() bool {
	return reflect.DeepEqual(chess.Move(m), chess.Move(NoMove))
}

// HasTag forwards to chess.Move.HasTag (chess.Capture, chess.EnPassant,
// chess.KingSideCastle, chess.QueenSideCastle, chess.Check, ...).
func (m Move) HasTag(tag chess.MoveTag) bool { cm := chess.Move(m); return cm.HasTag(tag) }

// IsCastling reports whether the move is a king-side or queen-side
// castle.
func (m Move) IsCastling() bool {
	return m.HasTag(chess.KingSideCastle) || m.HasTag(chess.QueenSideCastle)
}

// String renders the move as four or five character UCI
// ("e2e4", "e7e8q").
func (m Move) String() string {
	return chess.UCINotation{}.Encode(nil, (*chess.Move)(&m))
}

func fromChessMove(m *chess.Move) Move { return Move(*m) }
