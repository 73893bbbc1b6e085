package board

import (
	"fmt"

	chess "github.com/corentings/chess/v2"
)

// StartFEN is the standard starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is the authoritative board state. chess/v2's own Position is
// immutable (Update returns a new value); this wraps the current one
// and tracks SideToMove as a field because a good deal of the
// controller (recognizer, correction, display) reads it that way
// rather than through a method.
type Position struct {
	SideToMove Color
	inner      *chess.Position
}

// UndoInfo is the opaque token MakeMove returns and UnmakeMove
// consumes to restore the position to what it was before the move.
// Swapping the previous *chess.Position pointer back in is safe
// because MakeMove never mutates the position it's handed — it only
// ever replaces Position.inner wholesale with the result of Update.
type UndoInfo struct {
	prevInner      *chess.Position
	prevSideToMove Color
}

func wrap(p *chess.Position) *Position {
	return &Position{SideToMove: p.Turn(), inner: p}
}

// NewPosition returns the standard starting position.
func NewPosition() *Position {
	return wrap(chess.StartingPosition())
}

// ParseFEN parses a FEN string into a Position.
func ParseFEN(fen string) (*Position, error) {
	inner := &chess.Position{}
	if err := inner.UnmarshalText([]byte(fen)); err != nil {
		return nil, fmt.Errorf("board: parse fen: %w", err)
	}
	return wrap(inner), nil
}

// FEN renders the position as a FEN string.
func (p *Position) FEN() string { return p.inner.String() }

// String is an alias for FEN, matching fmt.Stringer.
func (p *Position) String() string { return p.FEN() }

// Copy returns an independent Position. chess/v2's Position is
// functional (Update never mutates its receiver), so a shallow copy of
// the wrapper and its pointed-to value is enough: nothing downstream
// ever writes through inner, only replaces it.
func (p *Position) Copy() *Position {
	innerCopy := *p.inner
	return &Position{SideToMove: p.SideToMove, inner: &innerCopy}
}

// PieceAt returns the piece occupying sq, or NoPiece.
func (p *Position) PieceAt(sq Square) Piece {
	return p.inner.Board().Piece(sq)
}

// IsEmpty reports whether sq holds no piece.
func (p *Position) IsEmpty(sq Square) bool {
	return p.PieceAt(sq) == NoPiece
}

// PieceMap returns every occupied square and its piece.
func (p *Position) PieceMap() map[Square]Piece {
	return p.inner.Board().SquareMap()
}

// LegalMoves returns every legal move in the position.
func (p *Position) LegalMoves() []Move {
	vm := p.inner.ValidMoves()
	out := make([]Move, len(vm))
	for i := range vm {
		out[i] = fromChessMove(&vm[i])
	}
	return out
}

// IsLegal reports whether m is a legal move in the position. Moves are
// compared component-wise (from, to, promotion) rather than by raw
// equality, the same way chess/v2's own AlgebraicNotation.Decode
// resolves a move against ValidMoves.
func (p *Position) IsLegal(m Move) bool {
	for _, cand := range p.LegalMoves() {
		if cand.From() == m.From() && cand.To() == m.To() && cand.Promo() == m.Promo() {
			return true
		}
	}
	return false
}

// MakeMove applies m (assumed legal) and returns the undo token.
func (p *Position) MakeMove(m Move) UndoInfo {
	undo := UndoInfo{prevInner: p.inner, prevSideToMove: p.SideToMove}
	cm := chess.Move(m)
	p.inner = p.inner.Update(&cm)
	p.SideToMove = p.inner.Turn()
	return undo
}

// UnmakeMove restores the position to what it was before the
// corresponding MakeMove.
func (p *Position) UnmakeMove(undo UndoInfo) {
	p.inner = undo.prevInner
	p.SideToMove = undo.prevSideToMove
}

// status reports the library's outcome classification for the current
// position (Checkmate, Stalemate, or NoMethod for everything else,
// including ongoing play and draws that need the extra book-keeping
// chess/v2's Method doesn't carry, like fifty-move or repetition).
func (p *Position) status() chess.Method {
	return p.inner.Status()
}

// IsCheckmate reports whether the side to move is checkmated.
func (p *Position) IsCheckmate() bool { return p.status() == chess.Checkmate }

// IsStalemate reports whether the side to move has no legal move and is
// not in check.
func (p *Position) IsStalemate() bool { return p.status() == chess.Stalemate }

// IsDraw reports stalemate, the fifty-move rule, or insufficient mating
// material. chess/v2's own Status() only distinguishes Checkmate,
// Stalemate and NoMethod, so the other two are derived here from
// HalfMoveClock and the piece map; threefold repetition needs the
// position history this package doesn't keep and is checked above, in
// the game package.
func (p *Position) IsDraw() bool {
	if p.IsStalemate() {
		return true
	}
	if p.inner.HalfMoveClock() >= 100 {
		return true
	}
	return insufficientMaterial(p.inner.Board().SquareMap())
}

// insufficientMaterial reports bare kings, or bare kings plus a single
// knight or bishop on the whole board, the bare-bones cases no sequence
// of legal moves can force a checkmate from.
func insufficientMaterial(pieces map[Square]Piece) bool {
	var minorsOrMore int
	for _, p := range pieces {
		switch p.Type() {
		case King:
			// always present, doesn't count toward mating material
		case Knight, Bishop:
			minorsOrMore++
			if minorsOrMore > 1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Hash returns chess/v2's own position hash, used above this package
// for threefold-repetition bookkeeping.
func (p *Position) Hash() [16]byte { return p.inner.Hash() }

// InCheck reports whether the side to move is in check.
func (p *Position) InCheck() bool {
	return inCheck(p.inner, p.SideToMove)
}

// KingSquare returns c's king square.
func (p *Position) KingSquare(c Color) Square {
	for sq, piece := range p.inner.Board().SquareMap() {
		if piece.Type() == King && piece.Color() == c {
			return sq
		}
	}
	return NoSquare
}

// AttackersByColor returns every square holding a by-colored piece that
// attacks sq, derived by flipping the side to move onto sq's occupant
// and checking whether each of by's pseudo-legal-looking candidate
// moves can reach sq. chess/v2 exposes no public "attackers of square"
// primitive, so this works from the one thing it does expose: legal
// move generation for whichever side is flagged to move.
func (p *Position) AttackersByColor(sq Square, by Color) []Square {
	probe := withTurn(p.inner, by)
	var attackers []Square
	for _, m := range probe.ValidMoves() {
		if m.S2() == sq {
			attackers = append(attackers, m.S1())
		}
	}
	return attackers
}

// withTurn returns a position identical to pos but with by to move,
// built through a FEN round trip since chess/v2's own ChangeTurn
// mutates its receiver in place and has no side-effect-free
// counterpart. The result is only ever used to probe move generation
// for AttackersByColor/InCheck, never pushed onto the real game, so the
// cost of a text round trip per probe is a non-issue.
func withTurn(pos *chess.Position, by Color) *chess.Position {
	fen := pos.String()
	fields := splitFEN(fen)
	if by == White {
		fields[1] = "w"
	} else {
		fields[1] = "b"
	}
	flipped := &chess.Position{}
	_ = flipped.UnmarshalText([]byte(joinFEN(fields)))
	return flipped
}

func inCheck(pos *chess.Position, side Color) bool {
	kingSq := NoSquare
	for sq, piece := range pos.Board().SquareMap() {
		if piece.Type() == King && piece.Color() == side {
			kingSq = sq
			break
		}
	}
	if kingSq == NoSquare {
		return false
	}
	opponent := side.Other()
	probe := withTurn(pos, opponent)
	for _, m := range probe.ValidMoves() {
		if m.S2() == kingSq {
			return true
		}
	}
	return false
}

func splitFEN(fen string) []string {
	fields := make([]string, 0, 6)
	field := ""
	for _, r := range fen {
		if r == ' ' {
			fields = append(fields, field)
			field = ""
			continue
		}
		field += string(r)
	}
	fields = append(fields, field)
	return fields
}

func joinFEN(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += " "
		}
		out += f
	}
	return out
}
