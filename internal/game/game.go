// Package game implements the authoritative chess game state. It owns
// the *board.Position exclusively, wrapping the rule library so the
// rest of the system never reaches into it directly. All mutation
// happens through the methods here, which are safe to call only from
// the single game goroutine.
package game

import (
	"fmt"
	"sync"

	"github.com/centaurfirmware/centaurd/internal/board"
)

// Result mirrors the outcome strings the persistence layer and the
// protocol emulators surface to players.
type Result struct {
	Result      string // "1-0", "0-1", "1/2-1/2", or "" while in progress
	Termination string // "checkmate", "resignation", "flag", "draw_agreement", ...
}

// Game owns the authoritative board and move stack. The zero value is
// not usable; call New.
type Game struct {
	mu  sync.Mutex
	pos *board.Position

	history       []historyEntry
	positionHashes [][16]byte
	result        Result

	onPositionChange []func()
	onGameOver       []func(Result)
	onCheck          []func(blackInCheck bool, attacker, king board.Square)
	onQueenThreat    []func(color board.Color, queenSquare board.Square, attacker board.Square)
	onAlertClear     []func()
}

type historyEntry struct {
	move board.Move
	undo board.UndoInfo
}

// New creates a Game at the standard starting position.
func New() *Game {
	pos := board.NewPosition()
	return &Game{pos: pos, positionHashes: [][16]byte{pos.Hash()}}
}

// OnPositionChange registers an observer invoked after every successful
// push or pop. Observers run synchronously on the caller's goroutine
// (the game thread) and must not block.
func (g *Game) OnPositionChange(fn func()) { g.onPositionChange = append(g.onPositionChange, fn) }

// OnGameOver registers an observer invoked once when a game-ending
// condition is reached, either by rule (checkmate/stalemate/draw) or by
// an external ending applied through SetResult.
func (g *Game) OnGameOver(fn func(Result)) { g.onGameOver = append(g.onGameOver, fn) }

// OnCheck registers an observer for check notifications. Check and queen
// threat are mutually exclusive; check takes priority.
func (g *Game) OnCheck(fn func(blackInCheck bool, attacker, king board.Square)) {
	g.onCheck = append(g.onCheck, fn)
}

// OnQueenThreat registers an observer fired when a queen is attacked and
// the position is not simultaneously a check.
func (g *Game) OnQueenThreat(fn func(color board.Color, queenSquare, attacker board.Square)) {
	g.onQueenThreat = append(g.onQueenThreat, fn)
}

// OnAlertClear registers an observer invoked when a prior check/queen-
// threat condition no longer holds after the latest move.
func (g *Game) OnAlertClear(fn func()) { g.onAlertClear = append(g.onAlertClear, fn) }

// FEN returns the current position in Forsyth-Edwards notation.
func (g *Game) FEN() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pos.FEN()
}

// SideToMove returns the color on move.
func (g *Game) SideToMove() board.Color {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pos.SideToMove
}

// Position returns a defensive copy of the current position, safe for
// callers that need to reason about it without risking a mutation race.
func (g *Game) Position() *board.Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pos.Copy()
}

// LegalMovesFrom returns the legal destination squares for the piece on
// sq, used by the move recognizer to build move_state.legal_destinations.
func (g *Game) LegalMovesFrom(sq board.Square) []board.Move {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]board.Move, 0, 8)
	for _, m := range g.pos.LegalMoves() {
		if m.From() == sq {
			out = append(out, m)
		}
	}
	return out
}

// IsLegalUCI reports whether uci is a legal move in the current position,
// used by the castling flow to validate a synthesized castling UCI before
// pushing it.
func (g *Game) IsLegalUCI(uci string) (board.Move, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, err := board.ParseMove(uci, g.pos)
	if err != nil {
		return board.NoMove, false
	}
	return m, g.pos.IsLegal(m)
}

// IsGameOver reports whether the position is checkmate, stalemate, or a
// recognized draw.
func (g *Game) IsGameOver() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isGameOverLocked()
}

func (g *Game) isGameOverLocked() bool {
	return g.result.Result != "" || g.pos.IsCheckmate() || g.pos.IsStalemate() || g.pos.IsDraw() || g.isThreefoldLocked()
}

// isThreefoldLocked reports whether the current position's hash has
// occurred three times in the recorded history, tracked here because
// chess/v2's Position carries no move history of its own to check it
// against.
func (g *Game) isThreefoldLocked() bool {
	if len(g.positionHashes) == 0 {
		return false
	}
	current := g.positionHashes[len(g.positionHashes)-1]
	count := 0
	for _, h := range g.positionHashes {
		if h == current {
			count++
		}
	}
	return count >= 3
}

// Result returns the current game-over result, if any.
func (g *Game) Result() Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result
}

// MoveStackUCI returns every move pushed so far, in play order.
func (g *Game) MoveStackUCI() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.history))
	for i, h := range g.history {
		out[i] = h.move.String()
	}
	return out
}

// PushUCI parses and applies a UCI move string against the current
// position. It fails the push if the move is not legal;
// callers are expected to have already validated legality via
// LegalMovesFrom/IsLegalUCI, so a failure here indicates a recognizer
// bug rather than a normal user error.
func (g *Game) PushUCI(uci string) (board.Move, error) {
	g.mu.Lock()
	m, err := board.ParseMove(uci, g.pos)
	if err != nil {
		g.mu.Unlock()
		return board.NoMove, fmt.Errorf("game: parse %q: %w", uci, err)
	}
	if !g.pos.IsLegal(m) {
		g.mu.Unlock()
		return board.NoMove, fmt.Errorf("game: %q is not legal in the current position", uci)
	}

	undo := g.pos.MakeMove(m)
	g.history = append(g.history, historyEntry{move: m, undo: undo})
	g.positionHashes = append(g.positionHashes, g.pos.Hash())
	g.mu.Unlock()

	g.afterPositionChange()
	return m, nil
}

// PopMove undoes the most recently pushed move. It
// reports false if there is nothing to undo.
func (g *Game) PopMove() (board.Move, bool) {
	g.mu.Lock()
	if len(g.history) == 0 {
		g.mu.Unlock()
		return board.NoMove, false
	}
	last := g.history[len(g.history)-1]
	g.history = g.history[:len(g.history)-1]
	g.pos.UnmakeMove(last.undo)
	if len(g.positionHashes) > 0 {
		g.positionHashes = g.positionHashes[:len(g.positionHashes)-1]
	}
	g.result = Result{}
	g.mu.Unlock()

	g.afterPositionChange()
	return last.move, true
}

// SetPosition replaces the current position wholesale from FEN, clearing
// the move stack. Used by forced setups and test harnesses, not by the
// normal move flow.
func (g *Game) SetPosition(fen string) error {
	pos, err := board.ParseFEN(fen)
	if err != nil {
		return fmt.Errorf("game: set position: %w", err)
	}
	g.mu.Lock()
	g.pos = pos
	g.history = nil
	g.positionHashes = [][16]byte{pos.Hash()}
	g.result = Result{}
	g.mu.Unlock()

	g.afterPositionChange()
	return nil
}

// Reset returns to the standard starting position. A second call with no
// intervening moves is a documented no-op.
func (g *Game) Reset() {
	g.mu.Lock()
	if len(g.history) == 0 && g.result == (Result{}) && g.pos.FEN() == board.NewPosition().FEN() {
		g.mu.Unlock()
		return
	}
	g.pos = board.NewPosition()
	g.history = nil
	g.positionHashes = [][16]byte{g.pos.Hash()}
	g.result = Result{}
	g.mu.Unlock()

	g.afterPositionChange()
}

// SetResult records an external game ending — resignation, flag fall, or
// draw agreement — that the rule engine itself cannot detect, and
// fires the game-over observers.
func (g *Game) SetResult(result, termination string) {
	g.mu.Lock()
	g.result = Result{Result: result, Termination: termination}
	g.mu.Unlock()

	for _, fn := range g.onGameOver {
		fn(Result{Result: result, Termination: termination})
	}
}

// ToPiecePresenceState returns a 64-byte vector with 1 where any piece
// sits on the logical board, in chess-index order.
func (g *Game) ToPiecePresenceState() [64]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out [64]byte
	for sq := board.Square(0); sq < 64; sq++ {
		if !g.pos.IsEmpty(sq) {
			out[sq] = 1
		}
	}
	return out
}

// afterPositionChange fires the position-change observer and, if the
// rule engine now reports an ending condition, the game-over observer.
// Check and queen-threat are computed against the post-move position and
// are mutually exclusive, with check taking priority.
func (g *Game) afterPositionChange() {
	for _, fn := range g.onPositionChange {
		fn()
	}

	g.mu.Lock()
	pos := g.pos
	inCheck := pos.InCheck()
	g.mu.Unlock()

	switch {
	case inCheck:
		g.fireCheck(pos)
	default:
		if sq, attacker, ok := queenUnderThreat(pos); ok {
			g.fireQueenThreat(pos.SideToMove.Other(), sq, attacker)
		} else {
			for _, fn := range g.onAlertClear {
				fn()
			}
		}
	}

	g.mu.Lock()
	over := g.isGameOverLocked()
	g.mu.Unlock()
	if over {
		g.autoResolveRuleOutcome(pos)
	}
}

func (g *Game) fireCheck(pos *board.Position) {
	kingSq := pos.KingSquare(pos.SideToMove)
	attackers := pos.AttackersByColor(kingSq, pos.SideToMove.Other())
	var attacker board.Square = board.NoSquare
	if len(attackers) > 0 {
		attacker = attackers[0]
	}
	for _, fn := range g.onCheck {
		fn(pos.SideToMove == board.Black, attacker, kingSq)
	}
}

func (g *Game) fireQueenThreat(color board.Color, queenSq, attacker board.Square) {
	for _, fn := range g.onQueenThreat {
		fn(color, queenSq, attacker)
	}
}

// queenUnderThreat scans both queens and reports the first one under
// attack by the opposing side, used for the queen-threat LED/sound alert.
// Returns ok=false if no queen is attacked.
func queenUnderThreat(pos *board.Position) (sq board.Square, attacker board.Square, ok bool) {
	for sq, piece := range pos.PieceMap() {
		if piece.Type() != board.Queen {
			continue
		}
		attackers := pos.AttackersByColor(sq, piece.Color().Other())
		if len(attackers) > 0 {
			return sq, attackers[0], true
		}
	}
	return board.NoSquare, board.NoSquare, false
}

// autoResolveRuleOutcome fills in Result/Termination and fires the
// game-over observer when the rule engine itself reaches an ending
// (checkmate, stalemate, or a recognized draw) rather than an external
// one applied through SetResult.
func (g *Game) autoResolveRuleOutcome(pos *board.Position) {
	g.mu.Lock()
	if g.result.Result != "" {
		g.mu.Unlock()
		return
	}
	var res Result
	switch {
	case pos.IsCheckmate():
		if pos.SideToMove == board.White {
			res = Result{Result: "0-1", Termination: "checkmate"}
		} else {
			res = Result{Result: "1-0", Termination: "checkmate"}
		}
	case pos.IsStalemate():
		res = Result{Result: "1/2-1/2", Termination: "stalemate"}
	case g.isThreefoldLocked():
		res = Result{Result: "1/2-1/2", Termination: "repetition"}
	case pos.IsDraw():
		res = Result{Result: "1/2-1/2", Termination: "draw"}
	default:
		g.mu.Unlock()
		return
	}
	g.result = res
	g.mu.Unlock()

	for _, fn := range g.onGameOver {
		fn(res)
	}
}
