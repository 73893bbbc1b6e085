// Package gameloop is the game thread and wiring heart of the
// controller: it consumes demultiplexed board events,
// drives the move recognizer and correction mode, applies commit side
// effects (persistence, LEDs, sound, clock), and fans state out to the
// display, the protocol emulators, and the player manager.
//
// The Loop runs on the single game goroutine; other goroutines reach it
// only through Post/PostEvent. EmuCore is the exception: its methods run
// on the emulator transport goroutine.
package gameloop

import (
	"context"
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/boardctl"
	"github.com/centaurfirmware/centaurd/internal/clock"
	"github.com/centaurfirmware/centaurd/internal/correction"
	"github.com/centaurfirmware/centaurd/internal/demux"
	"github.com/centaurfirmware/centaurd/internal/display"
	"github.com/centaurfirmware/centaurd/internal/emulators"
	"github.com/centaurfirmware/centaurd/internal/game"
	"github.com/centaurfirmware/centaurd/internal/logging"
	"github.com/centaurfirmware/centaurd/internal/persistence"
	"github.com/centaurfirmware/centaurd/internal/players"
	"github.com/centaurfirmware/centaurd/internal/recognizer"
	"github.com/centaurfirmware/centaurd/internal/settings"
	"github.com/centaurfirmware/centaurd/internal/spine"
)

// BoardIO is the slice of the board controller the loop uses, split out
// so tests can substitute a fake board.
type BoardIO interface {
	GetState() ([64]byte, error)
	GetStateLowPriority() ([64]byte, error)
	LEDsOff() error
	LED(sq board.Square, intensity, speed, repeat int) error
	LEDFromTo(src, dst board.Square, intensity, speed, repeat int) error
	LEDArray(squares []board.Square, intensity, speed, repeat int) error
	Beep(kind boardctl.BeepKind) error
}

// Store is the narrow persistence surface.
type Store interface {
	NewGame(g persistence.Game) (uint64, error)
	AppendMove(gameID uint64, rec persistence.MoveRecord) (uint64, error)
	Takeback(gameID uint64) error
	SetResult(gameID uint64, result, termination string) error
}

// Evaluator supplies the eval snapshot persisted with each move; nil
// disables evaluation. *uci.Client satisfies it with the score of its
// most recent search.
type Evaluator interface {
	Evaluate(pos *board.Position) int
}

// Config wires a Loop. Game, Recognizer, IO, Settings and Log are
// required; the rest degrade to no-ops when nil.
type Config struct {
	Game       *game.Game
	Recognizer *recognizer.Recognizer
	IO         BoardIO
	Clock      *clock.Clock
	Players    *players.Manager
	Assistant  *players.AssistantManager
	Emulators  *emulators.Manager
	Store      Store
	FENLog     *persistence.FENLog
	Display    *display.Worker
	Settings   *settings.Settings
	Eval       Evaluator
	EmuCore    *EmuCore
	Log        logging.Logger

	// OnShutdown is invoked (on the game goroutine) when the power-off
	// countdown completes; the caller runs the power-off sequence.
	OnShutdown func()

	// MoveTimeBudget is handed to engine players on request_move.
	MoveTimeBudget time.Duration
}

// placeSettleDelay lets pieces that slide during placement settle
// before occupancy is read.
const placeSettleDelay = 50 * time.Millisecond

// shutdownCountdown is the power-off overlay duration.
const shutdownCountdown = 3 * time.Second

// Loop is the game thread.
type Loop struct {
	cfg Config

	events *spine.Queue[demux.Event]
	calls  *spine.Queue[func()]

	gameID  uint64
	started bool // at least one move on the clock

	correcting    bool
	gameOver      bool
	resignPending board.Color
	hasResign     bool

	hasPromotion      bool
	promotionSquare   board.Square
	promotionColor    board.Color
	promotionChoiceAt int

	battery  int
	charging bool

	forcedUCI string

	shutdownTimer *time.Timer
}

// New builds the loop and registers every observer. Run must be called
// before events are posted.
func New(cfg Config) *Loop {
	if cfg.MoveTimeBudget == 0 {
		cfg.MoveTimeBudget = 3 * time.Second
	}
	l := &Loop{
		cfg:    cfg,
		events: spine.NewQueue[demux.Event](spine.DefaultQueueDepth, "game-events", cfg.Log),
		calls:  spine.NewQueue[func()](64, "game-calls", cfg.Log),
	}

	r := cfg.Recognizer
	r.OnCommit(l.onCommit)
	r.OnTakeback(l.onTakeback)
	r.OnIllegalPlacement(l.onIllegalPlacement)
	r.OnEnterCorrection(l.onEnterCorrection)
	r.OnKingLiftResign(l.onKingLiftResign)
	r.OnKingLiftResignCancel(l.onKingLiftResignCancel)
	r.OnCastlingAbandoned(func() { l.ledsOff() })
	r.OnPromotionPending(l.onPromotionPending)

	cfg.Game.OnGameOver(l.onGameOver)
	cfg.Game.OnCheck(l.onCheck)
	cfg.Game.OnQueenThreat(l.onQueenThreat)

	if cfg.Clock != nil {
		cfg.Clock.OnFlag(l.onFlag)
		cfg.Clock.OnTick(func(w, b int) { l.Post(l.publishDisplay) })
	}

	return l
}

// PostEvent enqueues a demultiplexed board event; safe from any
// goroutine, never blocks (overflow drops with an error log).
func (l *Loop) PostEvent(ev demux.Event) { l.events.Push(ev) }

// Post schedules fn on the game goroutine.
func (l *Loop) Post(fn func()) { l.calls.Push(fn) }

// OnPlayerMove is the MoveSink for engine/online players: the move is
// marshalled onto the game goroutine and becomes the forced move the
// human must execute physically.
func (l *Loop) OnPlayerMove(color board.Color, uci string) {
	l.Post(func() { l.applyPlayerMove(color, uci) })
}

// Run drives the loop until ctx is cancelled. It owns every field of
// Loop; no other goroutine touches them.
func (l *Loop) Run(ctx context.Context) error {
	l.startGameRecord()
	l.publishDisplay()

	for {
		select {
		case <-ctx.Done():
			l.cancelShutdownTimer()
			return ctx.Err()
		case fn := <-l.calls.Chan():
			fn()
		case ev := <-l.events.Chan():
			l.handleEvent(ev)
		}
	}
}

func (l *Loop) handleEvent(ev demux.Event) {
	switch ev.Kind {
	case demux.EvLift:
		l.handleLift(board.Square(ev.Square), ev.Elapsed)
	case demux.EvPlace:
		l.handlePlace(board.Square(ev.Square), ev.Elapsed)
	case demux.EvKeyDown:
		// Keys act on release or long-press; down only feeds sound.
		l.beep(boardctl.BeepGeneral, settings.EventKeyPress)
	case demux.EvKeyUp:
		l.handleKeyUp(ev.Key)
	case demux.EvLongPress:
		l.handleLongPress(ev.Key)
	case demux.EvBattery:
		l.battery = ev.Battery
		l.charging = ev.ChargerConnected
		if l.cfg.EmuCore != nil {
			l.cfg.EmuCore.SetBattery(ev.Battery, ev.ChargerConnected)
		}
		l.publishDisplay()
	case demux.EvInactivityCountdown:
		l.publishCountdown(ev.RemainingS)
	}
}

func (l *Loop) handleLift(sq board.Square, elapsed float64) {
	if l.cfg.Emulators != nil {
		l.cfg.Emulators.HandleManagerEvent(emulators.EventLift, emulators.Lift, sq, elapsed)
	}
	if l.gameOver {
		return
	}
	if l.correcting {
		l.correctionStep()
		return
	}
	l.cfg.Recognizer.HandleLift(sq)
}

func (l *Loop) handlePlace(sq board.Square, elapsed float64) {
	// Give sliding pieces time to settle before anything reads state.
	time.Sleep(placeSettleDelay)

	if l.cfg.Emulators != nil {
		l.cfg.Emulators.HandleManagerEvent(emulators.EventPlace, emulators.Place, sq, elapsed)
	}
	if l.gameOver {
		return
	}
	if l.correcting {
		l.correctionStep()
		return
	}
	l.cfg.Recognizer.HandlePlace(sq)
}

func (l *Loop) handleKeyUp(key demux.Key) {
	if l.shutdownTimer != nil && key == demux.KeyPlay {
		// PLAY released during the power-off countdown cancels it.
		l.cancelShutdownTimer()
		l.publishDisplay()
		return
	}

	if l.hasResign && key == demux.KeyTick {
		l.resolveResign()
		return
	}

	if l.hasPromotion {
		switch key {
		case demux.KeyUp:
			l.cyclePromotionChoice(1)
		case demux.KeyDown:
			l.cyclePromotionChoice(-1)
		case demux.KeyTick:
			l.resolvePromotion()
		}
		return
	}

	if l.cfg.Emulators != nil {
		l.cfg.Emulators.HandleManagerKey(emulators.Key(key))
	}
}

func (l *Loop) handleLongPress(key demux.Key) {
	switch key {
	case demux.KeyPlay:
		l.startShutdownCountdown()
	case demux.KeyHelp:
		// The companion computer renders menus; long HELP just re-sends
		// the current state so it can show one.
		l.publishDisplay()
	}
}

// startShutdownCountdown shows the 3-second overlay; if PLAY is not
// released before it expires, the power-off sequence begins.
func (l *Loop) startShutdownCountdown() {
	if l.shutdownTimer != nil {
		return
	}
	l.publishStatus("power off...")
	l.shutdownTimer = time.AfterFunc(shutdownCountdown, func() {
		l.Post(func() {
			l.shutdownTimer = nil
			if l.cfg.OnShutdown != nil {
				l.cfg.OnShutdown()
			}
		})
	})
}

func (l *Loop) cancelShutdownTimer() {
	if l.shutdownTimer != nil {
		l.shutdownTimer.Stop()
		l.shutdownTimer = nil
	}
}

// applyPlayerMove handles an engine/online move arriving for color: it
// becomes the forced move, with LED guidance from source to target.
func (l *Loop) applyPlayerMove(color board.Color, uci string) {
	if l.gameOver || l.cfg.Game.SideToMove() != color {
		if l.cfg.Log != nil {
			l.cfg.Log.Infof("gameloop: dropping stale player move %q for %v", uci, color)
		}
		return
	}
	move, ok := l.cfg.Game.IsLegalUCI(uci)
	if !ok {
		if l.cfg.Log != nil {
			l.cfg.Log.Errorf("gameloop: player move %q is illegal in the current position", uci)
		}
		return
	}
	l.forcedUCI = uci
	l.cfg.Recognizer.SetForcedMove(true, uci)

	intensity, speed := l.ledDefaults()
	if err := l.cfg.IO.LEDFromTo(move.From(), move.To(), intensity, speed, 0); err != nil && l.cfg.Log != nil {
		l.cfg.Log.Infof("gameloop: guidance LED: %v", err)
	}
}

// onCommit applies the commit side effects of a recognized move.
func (l *Loop) onCommit(m board.Move) {
	l.forcedUCI = ""
	// The recognizer has already reset its forced-move state, and it runs
	// this callback with its own lock held, so it is not called back here.

	fen := l.cfg.Game.FEN()
	movedColor := l.cfg.Game.SideToMove().Other()

	l.persistMove(m, fen)
	if l.cfg.FENLog != nil {
		if err := l.cfg.FENLog.Append(fen); err != nil && l.cfg.Log != nil {
			l.cfg.Log.Errorf("gameloop: fen log: %v", err)
		}
	}

	if l.cfg.Clock != nil {
		l.cfg.Clock.SwitchTurn()
		l.cfg.Clock.SetActiveColor(l.cfg.Game.SideToMove())
		if !l.started {
			l.started = true
			l.cfg.Clock.Start()
		}
	}

	l.beep(boardctl.BeepGeneral, settings.EventGameEvent)
	intensity, speed := l.ledDefaults()
	if err := l.cfg.IO.LED(m.To(), intensity, speed, 2); err != nil && l.cfg.Log != nil {
		l.cfg.Log.Infof("gameloop: destination LED: %v", err)
	}

	if l.cfg.Emulators != nil {
		l.cfg.Emulators.HandleManagerMove(m.String())
	}
	if l.cfg.Players != nil {
		l.cfg.Players.NotifyCommitted(movedColor, m.String())
		if !l.gameOver {
			l.cfg.Players.RequestMoveIfAuto(l.cfg.Game.Position(), l.cfg.MoveTimeBudget)
		}
	}
	if l.cfg.Assistant != nil && l.cfg.Players != nil && !l.gameOver {
		whiteHuman, blackHuman := l.cfg.Players.HumanSides()
		forHuman := whiteHuman
		if l.cfg.Game.SideToMove() == board.Black {
			forHuman = blackHuman
		}
		l.cfg.Assistant.Suggest(l.cfg.Game.Position(), forHuman)
	}

	l.publishDisplay()
}

func (l *Loop) persistMove(m board.Move, fen string) {
	if l.cfg.Store == nil {
		return
	}
	var whiteS, blackS int
	if l.cfg.Clock != nil {
		whiteS, blackS = l.cfg.Clock.Times()
	}
	var eval int
	if l.cfg.Eval != nil {
		eval = l.cfg.Eval.Evaluate(l.cfg.Game.Position())
	}
	_, err := l.cfg.Store.AppendMove(l.gameID, persistence.MoveRecord{
		MoveUCI:        m.String(),
		FENAfter:       fen,
		WhiteClockS:    whiteS,
		BlackClockS:    blackS,
		EvalCentipawns: eval,
	})
	if err != nil && l.cfg.Log != nil {
		l.cfg.Log.Errorf("gameloop: persist move %s: %v", m.String(), err)
	}
}

// onTakeback rolls back persistence and, when the popped move belonged
// to a non-human player, re-requests its move.
func (l *Loop) onTakeback(popped board.Move) {
	if l.cfg.Store != nil {
		if err := l.cfg.Store.Takeback(l.gameID); err != nil && err != persistence.ErrNoMoves && l.cfg.Log != nil {
			l.cfg.Log.Errorf("gameloop: takeback row: %v", err)
		}
	}
	if l.cfg.FENLog != nil {
		_ = l.cfg.FENLog.Append(l.cfg.Game.FEN())
	}
	l.gameOver = false
	l.ledsOff()
	if l.cfg.Clock != nil {
		l.cfg.Clock.SetActiveColor(l.cfg.Game.SideToMove())
	}
	if l.cfg.Emulators != nil {
		l.cfg.Emulators.HandleManagerTakeback()
	}
	if l.cfg.Players != nil {
		l.cfg.Players.RequestMoveIfAuto(l.cfg.Game.Position(), l.cfg.MoveTimeBudget)
	}
	l.publishDisplay()
}

func (l *Loop) onIllegalPlacement(field board.Square) {
	l.beep(boardctl.BeepWrongMove, settings.EventError)
}

func (l *Loop) onEnterCorrection(g correction.Guidance, observed, expected [64]byte) {
	l.correcting = true
	l.applyGuidance(g)
}

// correctionStep re-reads occupancy and updates guidance until the
// physical board matches the expected projection.
func (l *Loop) correctionStep() {
	occ, err := l.cfg.IO.GetState()
	if err != nil {
		if l.cfg.Log != nil {
			l.cfg.Log.Infof("gameloop: correction state read: %v", err)
		}
		return
	}
	g := correction.Evaluate(occ, l.cfg.Game.ToPiecePresenceState())
	switch g.Kind {
	case correction.Resolved:
		l.correcting = false
		l.ledsOff()
		l.beep(boardctl.BeepGeneral, settings.EventGameEvent)
		l.cfg.Recognizer.Reset()
	case correction.ResetDetected:
		l.correcting = false
		l.newGame()
	default:
		l.applyGuidance(g)
	}
}

func (l *Loop) applyGuidance(g correction.Guidance) {
	intensity, speed := l.ledDefaults()
	var err error
	switch g.Kind {
	case correction.MovePiece:
		err = l.cfg.IO.LEDFromTo(g.From, g.To, intensity, speed, 0)
	case correction.FlagExtra:
		err = l.cfg.IO.LED(g.From, intensity, speed, 0)
	case correction.FlagMissing:
		err = l.cfg.IO.LED(g.To, intensity, speed, 0)
	}
	if err != nil && l.cfg.Log != nil {
		l.cfg.Log.Infof("gameloop: guidance LED: %v", err)
	}
}

// newGame abandons the current game and resets everything, the
// reset-gesture path.
func (l *Loop) newGame() {
	l.cfg.Game.Reset()
	l.cfg.Recognizer.Reset()
	l.gameOver = false
	l.hasResign = false
	l.hasPromotion = false
	l.forcedUCI = ""
	l.ledsOff()
	if l.cfg.Clock != nil {
		l.cfg.Clock.Pause()
		l.started = false
	}
	l.startGameRecord()
	if l.cfg.FENLog != nil {
		_ = l.cfg.FENLog.Append(l.cfg.Game.FEN())
	}
	if l.cfg.Emulators != nil {
		l.cfg.Emulators.HandleManagerEvent(emulators.EventNewGame, emulators.NoPieceEvent, board.NoSquare, 0)
	}
	l.beep(boardctl.BeepGeneral, settings.EventGameEvent)
	l.publishDisplay()
}

func (l *Loop) startGameRecord() {
	if l.cfg.Store == nil {
		return
	}
	var white, black string
	if l.cfg.Players != nil {
		white = l.cfg.Players.Player(board.White).Name()
		black = l.cfg.Players.Player(board.Black).Name()
	}
	id, err := l.cfg.Store.NewGame(persistence.Game{White: white, Black: black, Event: "Live game", Site: "local"})
	if err != nil {
		if l.cfg.Log != nil {
			l.cfg.Log.Errorf("gameloop: new game record: %v", err)
		}
		return
	}
	l.gameID = id
}

func (l *Loop) onGameOver(res game.Result) {
	l.gameOver = true
	if l.cfg.Store != nil {
		if err := l.cfg.Store.SetResult(l.gameID, res.Result, res.Termination); err != nil && l.cfg.Log != nil {
			l.cfg.Log.Errorf("gameloop: persist result: %v", err)
		}
	}
	if l.cfg.Clock != nil {
		l.cfg.Clock.Pause()
	}
	if l.cfg.Players != nil {
		l.cfg.Players.Player(board.White).CancelMove()
		l.cfg.Players.Player(board.Black).CancelMove()
	}
	if l.cfg.Emulators != nil {
		l.cfg.Emulators.HandleManagerEvent(emulators.EventGameOver, emulators.NoPieceEvent, board.NoSquare, 0)
	}
	l.beep(boardctl.BeepPowerOff, settings.EventGameEvent)
	l.publishStatus(res.Result + " " + res.Termination)
}

func (l *Loop) onCheck(blackInCheck bool, attacker, king board.Square) {
	intensity, speed := l.ledDefaults()
	if err := l.cfg.IO.LEDFromTo(attacker, king, intensity, speed, 2); err != nil && l.cfg.Log != nil {
		l.cfg.Log.Infof("gameloop: check LED: %v", err)
	}
}

func (l *Loop) onQueenThreat(color board.Color, queenSq, attacker board.Square) {
	intensity, speed := l.ledDefaults()
	if err := l.cfg.IO.LED(queenSq, intensity, speed, 2); err != nil && l.cfg.Log != nil {
		l.cfg.Log.Infof("gameloop: queen threat LED: %v", err)
	}
}

func (l *Loop) onFlag(side clock.Side) {
	l.Post(func() {
		if l.gameOver {
			return
		}
		if side == clock.White {
			l.cfg.Game.SetResult("0-1", "flag")
		} else {
			l.cfg.Game.SetResult("1-0", "flag")
		}
	})
}

// onKingLiftResign opens the resign confirmation for color.
func (l *Loop) onKingLiftResign(color board.Color) {
	l.Post(func() {
		l.resignPending = color
		l.hasResign = true
		l.publishStatus("resign " + color.String() + "? TICK confirms")
	})
}

func (l *Loop) onKingLiftResignCancel() {
	l.Post(func() {
		l.hasResign = false
		l.publishDisplay()
	})
}

func (l *Loop) resolveResign() {
	color := l.resignPending
	l.hasResign = false
	if color == board.White {
		l.cfg.Game.SetResult("0-1", "resignation")
	} else {
		l.cfg.Game.SetResult("1-0", "resignation")
	}
}

// promotionChoices is the cycle order shown on the promotion menu, queen
// first since it is by far the common case.
var promotionChoices = []board.PieceType{board.Queen, board.Rook, board.Bishop, board.Knight}

// onPromotionPending opens the promotion menu for a pawn the recognizer
// has physically placed on the back rank.
func (l *Loop) onPromotionPending(square board.Square, color board.Color) {
	l.Post(func() {
		l.hasPromotion = true
		l.promotionSquare = square
		l.promotionColor = color
		l.promotionChoiceAt = 0
		l.publishPromotionStatus()
	})
}

func (l *Loop) cyclePromotionChoice(dir int) {
	n := len(promotionChoices)
	l.promotionChoiceAt = ((l.promotionChoiceAt+dir)%n + n) % n
	l.publishPromotionStatus()
}

func (l *Loop) publishPromotionStatus() {
	name := promotionNames[promotionChoices[l.promotionChoiceAt]]
	l.publishStatus("promote to " + name + "? UP/DOWN changes, TICK confirms")
}

var promotionNames = map[board.PieceType]string{
	board.Queen:  "queen",
	board.Rook:   "rook",
	board.Bishop: "bishop",
	board.Knight: "knight",
}

func (l *Loop) resolvePromotion() {
	piece := promotionChoices[l.promotionChoiceAt]
	l.hasPromotion = false
	l.cfg.Recognizer.ResolvePromotion(piece)
}

func (l *Loop) beep(kind boardctl.BeepKind, evType settings.EventType) {
	if l.cfg.Settings != nil && !l.cfg.Settings.SoundEnabled(evType) {
		return
	}
	if err := l.cfg.IO.Beep(kind); err != nil && l.cfg.Log != nil {
		l.cfg.Log.Infof("gameloop: beep: %v", err)
	}
}

func (l *Loop) ledsOff() {
	if err := l.cfg.IO.LEDsOff(); err != nil && l.cfg.Log != nil {
		l.cfg.Log.Infof("gameloop: leds off: %v", err)
	}
}

func (l *Loop) ledDefaults() (intensity, speed int) {
	if l.cfg.Settings != nil {
		return l.cfg.Settings.LEDDefaults()
	}
	return 3, 3
}

func (l *Loop) displayState() display.State {
	var whiteS, blackS int
	if l.cfg.Clock != nil {
		whiteS, blackS = l.cfg.Clock.Times()
	}
	return display.State{
		FEN:        l.cfg.Game.FEN(),
		WhiteClock: whiteS,
		BlackClock: blackS,
		Battery:    l.battery,
		Charging:   l.charging,
	}
}

func (l *Loop) publishDisplay() {
	if l.cfg.Display == nil {
		return
	}
	l.cfg.Display.Publish(l.displayState())
}

func (l *Loop) publishStatus(status string) {
	if l.cfg.Display == nil {
		return
	}
	st := l.displayState()
	st.Status = status
	l.cfg.Display.Publish(st)
}

func (l *Loop) publishCountdown(remaining int) {
	if l.cfg.Display == nil {
		return
	}
	st := l.displayState()
	st.CountdownS = remaining
	l.cfg.Display.Publish(st)
}
