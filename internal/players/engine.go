package players

import (
	"sync"
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/logging"
	"github.com/centaurfirmware/centaurd/internal/uci"
)

// EnginePlayer backs the "engine" kind with an external UCI engine
// process. Each RequestMove runs one background search; the result is
// delivered through the sink unless the request was cancelled in the
// meantime.
type EnginePlayer struct {
	name   string
	color  board.Color
	client *uci.Client
	sink   MoveSink
	log    logging.Logger

	limits uci.SearchLimits

	mu         sync.Mutex
	generation int
	searching  bool
}

// NewEngine creates an engine player for color, delivering moves to
// sink. client stays owned by the caller so the same instance can also
// back the assistant manager when the opposite side is human.
func NewEngine(name string, color board.Color, client *uci.Client, limits uci.SearchLimits, sink MoveSink, log logging.Logger) *EnginePlayer {
	if name == "" {
		name = "Engine"
	}
	return &EnginePlayer{name: name, color: color, client: client, sink: sink, log: log, limits: limits}
}

func (p *EnginePlayer) Kind() Kind   { return Engine }
func (p *EnginePlayer) Name() string { return p.name }

func (p *EnginePlayer) Start() error { return nil }

func (p *EnginePlayer) Stop() { p.CancelMove() }

// RequestMove starts a background search on a copy of pos. A second
// RequestMove while one is outstanding cancels the first; only the
// latest request's move is ever delivered.
func (p *EnginePlayer) RequestMove(pos *board.Position, timeBudget time.Duration) {
	p.mu.Lock()
	p.generation++
	gen := p.generation
	if p.searching {
		p.client.Stop()
	}
	p.searching = true
	p.mu.Unlock()

	limits := p.limits
	if timeBudget > 0 {
		limits.MoveTime = timeBudget
	}
	searchPos := pos.Copy()

	go func() {
		move := p.client.SearchWithLimits(searchPos, limits)

		p.mu.Lock()
		stale := gen != p.generation
		p.searching = false
		p.mu.Unlock()

		if stale || move.IsNoMove() {
			return
		}
		if p.sink != nil {
			p.sink(p.color, move.String())
		}
	}()
}

// CancelMove aborts the current search; its result, if any, is dropped.
func (p *EnginePlayer) CancelMove() {
	p.mu.Lock()
	p.generation++
	if p.searching {
		p.client.Stop()
	}
	p.mu.Unlock()
}

// Ponder keeps the engine searching the given position in the
// background without ever delivering a move; it warms the engine
// process's own state while the opponent executes their move
// physically. The ponder search is cancelled by the next RequestMove or
// CancelMove.
func (p *EnginePlayer) Ponder(pos *board.Position, budget time.Duration) {
	p.mu.Lock()
	p.generation++
	if p.searching {
		p.client.Stop()
	}
	p.searching = true
	p.mu.Unlock()

	limits := p.limits
	limits.MoveTime = budget
	searchPos := pos.Copy()

	go func() {
		p.client.SearchWithLimits(searchPos, limits)
		p.mu.Lock()
		p.searching = false
		p.mu.Unlock()
	}()
}
