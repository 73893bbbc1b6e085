package players

import (
	"sync"
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/logging"
)

// Manager holds the two players and routes request_move to whichever
// side the board says is next. It can be paused wholesale when a
// protocol emulator's external app takes over a side.
type Manager struct {
	mu     sync.Mutex
	white  Player
	black  Player
	paused bool

	log logging.Logger
}

// NewManager creates a Manager over the two players.
func NewManager(white, black Player, log logging.Logger) *Manager {
	return &Manager{white: white, black: black, log: log}
}

// Player returns the player registered for color.
func (m *Manager) Player(color board.Color) Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	if color == board.Black {
		return m.black
	}
	return m.white
}

// Current returns the player whose turn it is in pos.
func (m *Manager) Current(pos *board.Position) Player {
	return m.Player(pos.SideToMove)
}

// Start starts both players.
func (m *Manager) Start() error {
	if err := m.white.Start(); err != nil {
		return err
	}
	return m.black.Start()
}

// Stop stops both players, cancelling any outstanding move requests.
// First step of the power-off sequence.
func (m *Manager) Stop() {
	m.white.Stop()
	m.black.Stop()
}

// Pause suspends automatic move requests while an external app owns a
// side. Outstanding engine searches are cancelled.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
	m.white.CancelMove()
	m.black.CancelMove()
	if m.log != nil {
		m.log.Infof("players: local move requests paused")
	}
}

// Resume re-enables automatic move requests after an external app
// disconnects.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	if m.log != nil {
		m.log.Infof("players: local move requests resumed")
	}
}

// Paused reports whether local move requests are suspended.
func (m *Manager) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// RequestMoveIfAuto asks the side to move for its move when that side is
// non-human. It is a
// no-op while paused.
func (m *Manager) RequestMoveIfAuto(pos *board.Position, timeBudget time.Duration) {
	if m.Paused() {
		return
	}
	p := m.Current(pos)
	if p.Kind() == Human {
		return
	}
	p.RequestMove(pos, timeBudget)
}

// NotifyCommitted forwards a committed local move to the opposite
// side's online session, if that side is an online player.
func (m *Manager) NotifyCommitted(movedColor board.Color, uci string) {
	opp := m.Player(movedColor.Other())
	if op, ok := opp.(*OnlinePlayer); ok {
		op.NotifyLocalMove(uci)
	}
}

// HumanSides reports which colors are played by a human, used to gate
// assistants
// and the resign-by-king-lift gesture.
func (m *Manager) HumanSides() (white, black bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.white.Kind() == Human, m.black.Kind() == Human
}
