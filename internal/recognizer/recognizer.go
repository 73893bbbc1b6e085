// Package recognizer implements the move recognizer: it consumes the
// demultiplexed LIFT/PLACE stream and drives the authoritative game
// forward, handling the normal move flow, promotion, castling in either
// physical piece order, correction-mode handoff, and the king-lift
// resignation gesture.
//
// The in-progress move is a single state struct guarded by the
// recognizer's own mutex, so the recognizer stays safe even if a caller
// ever drives it from more than one goroutine.
package recognizer

import (
	"sync"
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/correction"
	"github.com/centaurfirmware/centaurd/internal/game"
	"github.com/centaurfirmware/centaurd/internal/logging"
)

const kingLiftResignDelay = 3 * time.Second

// Castling geometry.
const (
	whiteKingSquare = board.E1
	blackKingSquare = board.E8

	whiteKingsideRook  = board.H1
	whiteQueensideRook = board.A1
	blackKingsideRook  = board.H8
	blackQueensideRook = board.A8

	whiteKingsideKingDest  = board.G1
	whiteQueensideKingDest = board.C1
	blackKingsideKingDest  = board.G8
	blackQueensideKingDest = board.C8

	whiteKingsideRookDest  = board.F1
	whiteQueensideRookDest = board.D1
	blackKingsideRookDest  = board.F8
	blackQueensideRookDest = board.D8
)

// state tracks one in-progress physical move.
type state struct {
	sourceSquare    board.Square
	sourceColor     board.Color
	legalDests      map[board.Square]bool
	opponentSource  board.Square

	castlingRookSource board.Square
	castlingRookPlaced bool
	lateCastling       bool

	isForcedMove    bool
	computerMoveUCI string

	promotionField board.Square

	kingLiftedSquare board.Square
	kingLiftedColor  board.Color
	kingLiftTimer    *time.Timer
}

func freshState() state {
	return state{
		sourceSquare:       board.NoSquare,
		opponentSource:     board.NoSquare,
		castlingRookSource: board.NoSquare,
		promotionField:     board.NoSquare,
		kingLiftedSquare:   board.NoSquare,
	}
}

// Recognizer drives one Game from physical piece events. The zero value
// is not usable; call New.
type Recognizer struct {
	mu sync.Mutex
	st state

	g   *game.Game
	log logging.Logger

	canResign func(color board.Color) bool

	getObserved func() [64]byte

	onCommit               func(move board.Move)
	onTakeback             func(popped board.Move)
	onIllegalPlacement     func(field board.Square)
	onEnterCorrection      func(guidance correction.Guidance, observed, expected [64]byte)
	onKingLiftResign       func(color board.Color)
	onKingLiftResignCancel func()
	onCastlingAbandoned    func()
	onPromotionPending     func(square board.Square, color board.Color)
}

// New builds a Recognizer bound to g. canResign, when non-nil, gates
// whether lifting a given color's king starts the resignation timer
// (the engine/online player kinds typically return false so the human
// side of the board can't resign on their behalf). getObserved, when
// non-nil, reads the live piece-presence state from the board
// controller; without it the recognizer can still drive normal play but
// never detects a divergence worth correction-mode (it has no physical
// board of its own to read).
func New(g *game.Game, log logging.Logger, canResign func(color board.Color) bool, getObserved func() [64]byte) *Recognizer {
	if canResign == nil {
		canResign = func(board.Color) bool { return true }
	}
	return &Recognizer{g: g, log: log, st: freshState(), canResign: canResign, getObserved: getObserved}
}

// OnCommit registers the callback fired after a move is successfully
// pushed to the game: the caller is responsible for persistence,
// LED clearing, and sound, which all happen outside this package.
func (r *Recognizer) OnCommit(fn func(move board.Move)) { r.onCommit = fn }

// OnTakeback fires after a placement that restores the previous move's
// position exactly has been resolved as a takeback: the
// move has already been popped from the game when the callback runs,
// and the caller is responsible for removing the persistence row and
// re-requesting a computer move if the popped move was its own.
func (r *Recognizer) OnTakeback(fn func(popped board.Move)) { r.onTakeback = fn }

// OnIllegalPlacement fires when a piece is placed on a square the
// recognizer does not consider a legal destination and the placement was
// not a takeback, just before correction mode is entered.
func (r *Recognizer) OnIllegalPlacement(fn func(field board.Square)) { r.onIllegalPlacement = fn }

// OnEnterCorrection fires with the correction-mode guidance and the
// observed/expected piece-presence vectors it was computed from,
// whenever the recognizer hands off to correction mode.
func (r *Recognizer) OnEnterCorrection(fn func(guidance correction.Guidance, observed, expected [64]byte)) {
	r.onEnterCorrection = fn
}

// OnKingLiftResign fires once a king has sat off the board for
// kingLiftResignDelay without being replaced.
func (r *Recognizer) OnKingLiftResign(fn func(color board.Color)) { r.onKingLiftResign = fn }

// OnKingLiftResignCancel fires on the first placement after a king lift
// that started the resignation timer, whether or not that timer has
// already elapsed and OnKingLiftResign fired.
func (r *Recognizer) OnKingLiftResignCancel(fn func()) { r.onKingLiftResignCancel = fn }

// OnCastlingAbandoned fires when a tracked rook-first castling attempt is
// abandoned, so the caller can clear any LED guidance it had shown.
func (r *Recognizer) OnCastlingAbandoned(fn func()) { r.onCastlingAbandoned = fn }

// OnPromotionPending fires when a pawn has been physically placed on the
// back rank and the move cannot complete until the player picks a
// promotion piece. The caller is responsible for showing that menu and
// eventually calling ResolvePromotion with the answer; the recognizer
// itself never decides a piece for a human move.
func (r *Recognizer) OnPromotionPending(fn func(square board.Square, color board.Color)) {
	r.onPromotionPending = fn
}

// SetForcedMove records the move the current player is required to play
// (used when an engine/online opponent's reply must be entered on the
// physical board by hand); clear with SetForcedMove(false, "").
func (r *Recognizer) SetForcedMove(active bool, uci string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.isForcedMove = active
	r.st.computerMoveUCI = uci
}

// Reset clears all in-flight recognition state, used after a takeback,
// a correction-mode exit, or a new game.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelKingLiftTimerLocked()
	r.st = freshState()
}

func (r *Recognizer) cancelKingLiftTimerLocked() {
	if r.st.kingLiftTimer != nil {
		r.st.kingLiftTimer.Stop()
		r.st.kingLiftTimer = nil
	}
}

// HandleLift processes a piece lifted from sq.
func (r *Recognizer) HandleLift(sq board.Square) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos := r.g.Position()
	piece := pos.PieceAt(sq)
	if piece == board.NoPiece {
		return
	}
	pieceColor := piece.Color()
	isCurrentPlayerPiece := pieceColor == pos.SideToMove

	r.handleLateCastlingLift(sq, pieceColor, pos, isCurrentPlayerPiece)
	r.handleRookCastlingTrackingLift(sq, pieceColor, pos, isCurrentPlayerPiece)

	if !isCurrentPlayerPiece {
		r.st.opponentSource = sq
	}

	if piece.Type() == board.King {
		r.handleKingLift(sq, pieceColor)
	}

	if r.st.castlingRookSource == board.NoSquare {
		if !r.st.legalDests[sq] && r.st.sourceSquare == board.NoSquare && isCurrentPlayerPiece {
			r.st.legalDests = r.destinationsFrom(sq)
			r.st.sourceSquare = sq
			r.st.sourceColor = pieceColor
		}
	}
}

// destinationsFrom builds legal_destinations for a lift from sq. With a
// forced move pending the set is restricted to the computer-chosen
// target; the source square itself is always
// included so the player may put the piece back.
func (r *Recognizer) destinationsFrom(sq board.Square) map[board.Square]bool {
	if r.st.isForcedMove && len(r.st.computerMoveUCI) >= 4 {
		src, errA := board.ParseSquare(r.st.computerMoveUCI[0:2])
		dst, errB := board.ParseSquare(r.st.computerMoveUCI[2:4])
		if errA == nil && errB == nil && src == sq {
			return map[board.Square]bool{sq: true, dst: true}
		}
	}
	dests := r.g.LegalMovesFrom(sq)
	set := make(map[board.Square]bool, len(dests)+1)
	for _, m := range dests {
		set[m.To()] = true
	}
	set[sq] = true
	return set
}

func (r *Recognizer) handleLateCastlingLift(sq board.Square, pieceColor board.Color, pos *board.Position, isCurrentPlayerPiece bool) {
	if !r.st.castlingRookPlaced {
		return
	}

	expectedKingSquare, expectedColor, kingDest := r.lateCastlingTarget()
	if expectedKingSquare == board.NoSquare {
		return
	}

	if sq == expectedKingSquare {
		piece := pos.PieceAt(sq)
		if piece.Type() == board.King && piece.Color() == expectedColor {
			r.st.sourceSquare = sq
			r.st.sourceColor = pieceColor
			r.st.lateCastling = true
			r.st.legalDests = map[board.Square]bool{sq: true}
			if kingDest != board.NoSquare {
				r.st.legalDests[kingDest] = true
			}
			return
		}
	}

	if isCurrentPlayerPiece && r.st.sourceSquare == board.NoSquare {
		r.st.castlingRookSource = board.NoSquare
		r.st.castlingRookPlaced = false
		r.st.lateCastling = false
		if r.onCastlingAbandoned != nil {
			r.onCastlingAbandoned()
		}
	}
}

func (r *Recognizer) lateCastlingTarget() (kingSquare board.Square, color board.Color, kingDest board.Square) {
	switch r.st.castlingRookSource {
	case whiteKingsideRook:
		return whiteKingSquare, board.White, whiteKingsideKingDest
	case whiteQueensideRook:
		return whiteKingSquare, board.White, whiteQueensideKingDest
	case blackKingsideRook:
		return blackKingSquare, board.Black, blackKingsideKingDest
	case blackQueensideRook:
		return blackKingSquare, board.Black, blackQueensideKingDest
	default:
		return board.NoSquare, board.NoColor, board.NoSquare
	}
}

func (r *Recognizer) handleRookCastlingTrackingLift(sq board.Square, pieceColor board.Color, pos *board.Position, isCurrentPlayerPiece bool) {
	if !isCurrentPlayerPiece || r.st.sourceSquare != board.NoSquare {
		return
	}
	piece := pos.PieceAt(sq)
	if piece.Type() != board.Rook || !isRookCastlingSquare(sq) {
		return
	}
	uci, ok := rookCastlingUCI(sq)
	if !ok {
		return
	}
	if _, legal := r.g.IsLegalUCI(uci); !legal {
		return
	}
	r.st.castlingRookSource = sq
	r.st.sourceColor = pieceColor
}

func isRookCastlingSquare(sq board.Square) bool {
	switch sq {
	case whiteKingsideRook, whiteQueensideRook, blackKingsideRook, blackQueensideRook:
		return true
	default:
		return false
	}
}

func rookCastlingUCI(rookSquare board.Square) (string, bool) {
	switch rookSquare {
	case whiteKingsideRook:
		return "e1g1", true
	case whiteQueensideRook:
		return "e1c1", true
	case blackKingsideRook:
		return "e8g8", true
	case blackQueensideRook:
		return "e8c8", true
	default:
		return "", false
	}
}

func (r *Recognizer) handleKingLift(sq board.Square, color board.Color) {
	if !r.canResign(color) {
		return
	}
	r.cancelKingLiftTimerLocked()
	r.st.kingLiftedSquare = sq
	r.st.kingLiftedColor = color

	r.st.kingLiftTimer = time.AfterFunc(kingLiftResignDelay, func() {
		if r.log != nil {
			r.log.Infof("recognizer: king held off board for %s, offering resignation for %s", kingLiftResignDelay, color)
		}
		if r.onKingLiftResign != nil {
			r.onKingLiftResign(color)
		}
	})
}

// HandlePlace processes a piece placed on field.
func (r *Recognizer) HandlePlace(field board.Square) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.st.kingLiftTimer != nil {
		r.cancelKingLiftTimerLocked()
		if r.onKingLiftResignCancel != nil {
			r.onKingLiftResignCancel()
		}
		r.st.kingLiftedSquare = board.NoSquare
	}

	if r.st.lateCastling {
		r.handleLateCastlingPlace(field)
		return
	}

	pos := r.g.Position()
	piece := pos.PieceAt(field)
	currentColor := pos.SideToMove
	isCurrentPlayerPiece := piece != board.NoPiece && piece.Color() == currentColor

	if !isCurrentPlayerPiece && r.st.opponentSource != board.NoSquare && field == r.st.opponentSource {
		r.st.opponentSource = board.NoSquare
		return
	}

	if r.st.castlingRookSource != board.NoSquare && r.st.sourceSquare == board.NoSquare {
		if field == r.st.castlingRookSource {
			r.st.castlingRookSource = board.NoSquare
			r.st.castlingRookPlaced = false
			return
		}
		rookSrc := r.st.castlingRookSource
		dests := r.g.LegalMovesFrom(rookSrc)
		set := make(map[board.Square]bool, len(dests))
		for _, m := range dests {
			set[m.To()] = true
		}
		r.st.sourceSquare = rookSrc
		r.st.legalDests = set

		if isValidRookCastlingDestination(rookSrc, field) {
			r.st.castlingRookPlaced = true
		} else {
			r.st.castlingRookSource = board.NoSquare
			r.st.castlingRookPlaced = false
		}
	}

	if r.st.sourceSquare == board.NoSquare && r.st.opponentSource == board.NoSquare {
		// Stale PLACE with no matching LIFT: only treat it as a problem
		// when it creates an extra piece against the expected projection.
		r.maybeEnterCorrection()
		return
	}

	if !r.st.legalDests[field] {
		if r.tryTakeback() {
			r.st = freshState()
			return
		}
		if r.onIllegalPlacement != nil {
			r.onIllegalPlacement(field)
		}
		r.maybeEnterCorrection()
		return
	}

	if field == r.st.sourceSquare {
		r.st = freshState()
		return
	}

	r.commit(field)
}

func isValidRookCastlingDestination(rookSquare, field board.Square) bool {
	switch rookSquare {
	case whiteKingsideRook:
		return field == whiteKingsideRookDest
	case whiteQueensideRook:
		return field == whiteQueensideRookDest
	case blackKingsideRook:
		return field == blackKingsideRookDest
	case blackQueensideRook:
		return field == blackQueensideRookDest
	default:
		return false
	}
}

func (r *Recognizer) handleLateCastlingPlace(field board.Square) {
	_, _, kingDest := r.lateCastlingTarget()
	switch {
	case kingDest != board.NoSquare && field == kingDest:
		r.executeLateCastling()
	case field == r.st.sourceSquare:
		r.st = freshState()
		if r.onCastlingAbandoned != nil {
			r.onCastlingAbandoned()
		}
	default:
		if r.onIllegalPlacement != nil {
			r.onIllegalPlacement(field)
		}
		r.maybeEnterCorrection()
		r.st = freshState()
	}
}

// executeLateCastling retroactively rewrites the move stack: it pops up
// to the last two moves looking for the regular-looking rook move that
// was actually the first half of a castling, then pushes the real
// castling move in its place. The lookback is capped at two moves; a
// rook move buried deeper than that reports failure instead of
// guessing.
func (r *Recognizer) executeLateCastling() {
	castlingUCI, ok := rookCastlingUCI(r.st.castlingRookSource)
	rookMoveUCI, rookOK := rookRegularMoveUCI(r.st.castlingRookSource)
	if !ok || !rookOK {
		r.st = freshState()
		return
	}

	stack := r.g.MoveStackUCI()
	movesToUndo := 0
	for i := 0; i < 2 && i < len(stack); i++ {
		if stack[len(stack)-1-i] == rookMoveUCI {
			movesToUndo = i + 1
			break
		}
	}
	if movesToUndo == 0 {
		if r.log != nil {
			r.log.Errorf("recognizer: late castling rook move %q not found in recent history", rookMoveUCI)
		}
		r.st = freshState()
		return
	}

	var undone []string
	for i := 0; i < movesToUndo; i++ {
		m, ok := r.g.PopMove()
		if !ok {
			break
		}
		undone = append(undone, m.String())
	}

	if _, legal := r.g.IsLegalUCI(castlingUCI); !legal {
		for i := len(undone) - 1; i >= 0; i-- {
			r.pushLocked(undone[i])
		}
		if r.onEnterCorrection != nil {
			r.maybeEnterCorrection()
		}
		r.st = freshState()
		return
	}

	move, err := r.pushLocked(castlingUCI)
	r.st = freshState()
	if err != nil {
		if r.log != nil {
			r.log.Errorf("recognizer: push late castling %q failed: %v", castlingUCI, err)
		}
		return
	}
	if r.onCommit != nil {
		r.onCommit(move)
	}
}

// rookRegularMoveUCI returns the plain rook-relocation UCI that gets
// pushed as an ordinary move when the rook is physically moved to its
// castling square before the king.
func rookRegularMoveUCI(rookSource board.Square) (string, bool) {
	switch rookSource {
	case whiteKingsideRook:
		return "h1f1", true
	case whiteQueensideRook:
		return "a1d1", true
	case blackKingsideRook:
		return "h8f8", true
	case blackQueensideRook:
		return "a8d8", true
	default:
		return "", false
	}
}

// tryTakeback checks whether an out-of-legal placement has in fact
// restored the position as it stood before the latest move: it pops that move, compares the game's presence projection against
// the live occupancy, and keeps the pop — firing OnTakeback — only when
// the two match. On a mismatch the popped move is pushed back and the
// caller falls through to correction mode.
func (r *Recognizer) tryTakeback() bool {
	if r.getObserved == nil {
		return false
	}
	popped, ok := r.g.PopMove()
	if !ok {
		return false
	}
	expected := r.g.ToPiecePresenceState()
	observed := r.getObserved()
	if observed != expected {
		if _, err := r.pushLocked(popped.String()); err != nil && r.log != nil {
			r.log.Errorf("recognizer: restoring %q after failed takeback probe: %v", popped.String(), err)
		}
		return false
	}
	if r.log != nil {
		r.log.Infof("recognizer: takeback of %s", popped.String())
	}
	if r.onTakeback != nil {
		r.onTakeback(popped)
	}
	return true
}

// maybeEnterCorrection reads live board occupancy (if a reader was
// supplied), diffs it against the game's expected projection, and fires
// OnEnterCorrection only when the two actually diverge.
func (r *Recognizer) maybeEnterCorrection() {
	if r.getObserved == nil || r.onEnterCorrection == nil {
		return
	}
	expected := r.g.ToPiecePresenceState()
	observed := r.getObserved()
	guidance := correction.Evaluate(observed, expected)
	if guidance.Kind == correction.Resolved {
		return
	}
	r.onEnterCorrection(guidance, observed, expected)
}

// commit builds and pushes the UCI move from sourceSquare to field. A
// forced move already carries any promotion letter and completes
// immediately; a human pawn reaching the back rank instead pauses the
// commit and asks the caller to show a promotion menu, completed later
// through ResolvePromotion.
func (r *Recognizer) commit(field board.Square) {
	pos := r.g.Position()
	piece := pos.PieceAt(r.st.sourceSquare)

	uci := r.st.sourceSquare.String() + field.String()
	if r.st.isForcedMove && len(r.st.computerMoveUCI) >= 4 && r.st.computerMoveUCI[0:4] == uci {
		// The forced UCI already carries any promotion letter; no
		// promotion prompt in forced-move mode.
		r.finishCommit(r.st.computerMoveUCI)
		return
	}
	if piece.Type() == board.Pawn && isBackRank(field, piece.Color()) {
		r.st.promotionField = field
		if r.onPromotionPending != nil {
			r.onPromotionPending(field, piece.Color())
		}
		return
	}
	r.finishCommit(uci)
}

// ResolvePromotion completes a commit that commit left pending for
// promotion-piece selection, using the piece the player chose on the
// companion menu. It is a no-op if no promotion is pending.
func (r *Recognizer) ResolvePromotion(piece board.PieceType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st.promotionField == board.NoSquare {
		return
	}
	uci := r.st.sourceSquare.String() + r.st.promotionField.String() + promotionLetter(piece)
	r.finishCommit(uci)
}

func promotionLetter(piece board.PieceType) string {
	switch piece {
	case board.Rook:
		return "r"
	case board.Bishop:
		return "b"
	case board.Knight:
		return "n"
	default:
		return "q"
	}
}

func (r *Recognizer) finishCommit(uci string) {
	preserveRookSource := r.st.castlingRookSource
	preserveRookPlaced := r.st.castlingRookPlaced

	move, err := r.pushLocked(uci)
	r.st = freshState()
	if preserveRookPlaced {
		// A rook-to-castling-square move just committed as an ordinary
		// move; keep tracking it so a later king lift can still complete
		// the late castling.
		r.st.castlingRookSource = preserveRookSource
		r.st.castlingRookPlaced = preserveRookPlaced
	}
	if err != nil {
		if r.log != nil {
			r.log.Errorf("recognizer: commit %q failed: %v", uci, err)
		}
		return
	}
	if r.onCommit != nil {
		r.onCommit(move)
	}
}

func (r *Recognizer) pushLocked(uci string) (board.Move, error) {
	return r.g.PushUCI(uci)
}

func isBackRank(sq board.Square, color board.Color) bool {
	rank := int(sq) / 8
	if color == board.White {
		return rank == 7
	}
	return rank == 0
}

