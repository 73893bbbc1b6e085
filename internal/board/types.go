// Package board is the chess-rules facade: it adapts
// github.com/corentings/chess/v2, the bundled chess rule library, to the
// narrow vocabulary the rest of the controller speaks (Square, Color,
// Piece, Move, Position, and a handful of FEN/UCI helpers). Nothing
// above this package imports chess/v2 directly; everything the
// rule library is asked to do goes through here.
package board

import (
	chess "github.com/corentings/chess/v2"
)

// Color, Square, PieceType and Piece are plain aliases: chess/v2 already
// exposes every method this controller needs on them (Other, File, Rank,
// String, Color, Type), so wrapping them would just be forwarding calls.
type (
	Color     = chess.Color
	Square    = chess.Square
	PieceType = chess.PieceType
	Piece     = chess.Piece
)

const (
	White = chess.White
	Black = chess.Black
	// NoColor is returned by SideToMove-shaped accessors that have no
	// side to report (an empty square's piece, a paused clock).
	NoColor = chess.NoColor
)

const (
	NoPieceType = chess.NoPieceType
	Pawn        = chess.Pawn
	Knight      = chess.Knight
	Bishop      = chess.Bishop
	Rook        = chess.Rook
	Queen       = chess.Queen
	King        = chess.King
)

// NoPiece is the empty-square sentinel.
const NoPiece = chess.NoPiece

// NoSquare is the sentinel for "no square", used by recognizer state
// fields that have nothing lifted or tracked yet.
const NoSquare Square = 64

// Square constants, file-major a1=0 .. h8=63, matching chess/v2's own
// numbering (confirmed by its UCI decoder: file + rank*8).
const (
	A1 Square = iota
	B1
	C1
	D1
	E1
	F1
	G1
	H1
	A2
	B2
	C2
	D2
	E2
	F2
	G2
	H2
	A3
	B3
	C3
	D3
	E3
	F3
	G3
	H3
	A4
	B4
	C4
	D4
	E4
	F4
	G4
	H4
	A5
	B5
	C5
	D5
	E5
	F5
	G5
	H5
	A6
	B6
	C6
	D6
	E6
	F6
	G6
	H6
	A7
	B7
	C7
	D7
	E7
	F7
	G7
	H7
	A8
	B8
	C8
	D8
	E8
	F8
	G8
	H8
)

// NewPiece builds the piece of type pt and color c.
func NewPiece(pt PieceType, c Color) Piece { return chess.NewPiece(pt, c) }

// NewSquare builds the square at the given zero-based file (a=0..h=7)
// and rank (1=0..8=7).
func NewSquare(file, rank int) Square {
	return chess.NewSquare(chess.File(file), chess.Rank(rank))
}

// ParseSquare parses algebraic notation ("e4") into a Square.
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 {
		return NoSquare, &parseError{"square", s}
	}
	file := int(s[0] - 'a')
	rank := int(s[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return NoSquare, &parseError{"square", s}
	}
	return NewSquare(file, rank), nil
}

type parseError struct {
	what, value string
}

func (e *parseError) Error() string { return "board: invalid " + e.what + ": " + e.value }
