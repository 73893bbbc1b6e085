// Package players implements the player and assistant managers:
// polymorphic players over {human, engine, online} plus the
// optional assistants that produce hints and Hand-and-Brain cues.
//
// There is no base class: Player is an interface
// covering only the operations the core uses, and the shared helper
// logic lives in free functions and in Manager.
package players

import (
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
)

// Kind tags the three player variants.
type Kind int

const (
	Human Kind = iota
	Engine
	Online
)

func (k Kind) String() string {
	switch k {
	case Engine:
		return "engine"
	case Online:
		return "online"
	default:
		return "human"
	}
}

// Player is the interface the core drives. Moves are never
// returned synchronously: engine and online players deliver them through
// the MoveSink they are constructed with, on their own goroutine; the
// sink must hand the move to the game goroutine, not act on it in-line.
type Player interface {
	Kind() Kind
	Name() string

	// RequestMove asks the player to produce the next move for pos.
	// Human players ignore it (moves come from the physical board).
	RequestMove(pos *board.Position, timeBudget time.Duration)

	// CancelMove aborts an outstanding RequestMove; no move is
	// delivered for a cancelled request.
	CancelMove()

	Start() error
	Stop()
}

// MoveSink receives asynchronously produced moves. color is the side the
// producing player is playing.
type MoveSink func(color board.Color, uci string)

// HumanPlayer plays through the physical board; every method other than
// Name is a no-op.
type HumanPlayer struct {
	name string
}

// NewHuman creates a human player.
func NewHuman(name string) *HumanPlayer {
	if name == "" {
		name = "Human"
	}
	return &HumanPlayer{name: name}
}

func (p *HumanPlayer) Kind() Kind                                   { return Human }
func (p *HumanPlayer) Name() string                                 { return p.name }
func (p *HumanPlayer) RequestMove(*board.Position, time.Duration)   {}
func (p *HumanPlayer) CancelMove()                                  {}
func (p *HumanPlayer) Start() error                                 { return nil }
func (p *HumanPlayer) Stop()                                        {}
