package players

import (
	"sync"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/logging"
	"github.com/centaurfirmware/centaurd/internal/uci"
)

// AssistantMode selects what kind of cue the assistant produces.
type AssistantMode int

const (
	AssistOff AssistantMode = iota
	// AssistHint suggests the full best move.
	AssistHint
	// AssistHandAndBrain names only the piece type to move, the "brain"
	// half of a hand-and-brain pairing.
	AssistHandAndBrain
)

// Suggestion is delivered on the assistant's own channel; it never
// touches the authoritative board.
type Suggestion struct {
	Color board.Color
	// BestUCI is filled for AssistHint.
	BestUCI string
	// PieceType is filled for AssistHandAndBrain.
	PieceType board.PieceType
}

// AssistantManager runs hint analysis orthogonally to play. It shares
// nothing with the player manager except the engine instance the caller
// chooses to hand it.
type AssistantManager struct {
	mu     sync.Mutex
	mode   AssistantMode
	client *uci.Client
	out    func(Suggestion)
	log    logging.Logger

	limits     uci.SearchLimits
	generation int
}

// NewAssistant creates an AssistantManager delivering suggestions to
// out. The search limits are deliberately shallow: a hint is guidance,
// not a second engine opponent.
func NewAssistant(client *uci.Client, limits uci.SearchLimits, out func(Suggestion), log logging.Logger) *AssistantManager {
	return &AssistantManager{mode: AssistOff, client: client, out: out, log: log, limits: limits}
}

// SetMode switches the assistant on or off, or between cue kinds.
func (a *AssistantManager) SetMode(mode AssistantMode) {
	a.mu.Lock()
	a.mode = mode
	a.generation++
	a.mu.Unlock()
}

// Mode returns the current assistant mode.
func (a *AssistantManager) Mode() AssistantMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// Suggest analyses pos in the background and delivers one suggestion
// for the side to move, provided that side is human (forHuman) and the
// assistant is enabled. Superseded by any later Suggest or SetMode call.
func (a *AssistantManager) Suggest(pos *board.Position, forHuman bool) {
	a.mu.Lock()
	mode := a.mode
	a.generation++
	gen := a.generation
	a.mu.Unlock()

	if mode == AssistOff || !forHuman {
		return
	}

	color := pos.SideToMove
	searchPos := pos.Copy()

	go func() {
		move := a.client.SearchWithLimits(searchPos, a.limits)

		a.mu.Lock()
		stale := gen != a.generation
		a.mu.Unlock()
		if stale || move.IsNoMove() {
			return
		}

		s := Suggestion{Color: color}
		switch mode {
		case AssistHint:
			s.BestUCI = move.String()
		case AssistHandAndBrain:
			piece := searchPos.PieceAt(move.From())
			s.PieceType = piece.Type()
		}
		if a.out != nil {
			a.out(s)
		}
	}()
}

// Cancel drops any in-flight suggestion.
func (a *AssistantManager) Cancel() {
	a.mu.Lock()
	a.generation++
	a.mu.Unlock()
}
