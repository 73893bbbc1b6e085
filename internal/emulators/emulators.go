// Package emulators implements the protocol emulators: three
// independent packet parsers/responders that impersonate
// commercial chess boards on their external wire protocols, plus the
// ProtocolManager that auto-detects which protocol a newly connected app
// speaks and binds it to the internal game.
//
// The transports themselves (BLE/RFCOMM pairing and advertisement) are
// out of scope; an emulator only ever sees a byte stream in and a
// send callback out.
package emulators

import (
	"sync"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/logging"
)

// PieceEventKind mirrors the wire encoding of lift/place.
type PieceEventKind int

const (
	NoPieceEvent PieceEventKind = iota - 1
	Lift
	Place
)

// Event enumerates the manager-level game events forwarded onto the
// wire. Not every emulator reacts to every event.
type Event int

const (
	EventNone Event = iota
	EventNewGame
	EventWhiteTurn
	EventBlackTurn
	EventLift
	EventPlace
	EventGameOver
)

// Key identifies a front-panel key forwarded to the active emulator.
// The values match internal/demux's Key order; emulators that care only
// look at Play.
type Key int

const (
	KeyBack Key = iota
	KeyTick
	KeyUp
	KeyDown
	KeyHelp
	KeyPlay
)

// Core is the view of the internal system an emulator translates for.
// It is implemented by the game loop; emulators never reach the board
// controller or the authoritative game directly.
type Core interface {
	// FEN returns the current full FEN.
	FEN() string
	// Occupancy returns the piece-presence projection, chess-index order.
	Occupancy() [64]byte
	// Battery returns the charge level (0..20) and charger state.
	Battery() (level int, charging bool)
	// Meta returns a cached MCU metadata field by key name
	// ("serial no", "software version", "hardware version", "build", "tm").
	Meta(key string) string

	LED(sq board.Square, intensity, speed, repeat int)
	LEDArray(squares []board.Square, intensity, speed, repeat int)
	LEDsOff()
	Beep()
}

// Emulator is the common parser/responder interface. ParseByte
// returns true only once a complete, recognized command for this
// protocol has been processed; during auto-detection the manager feeds
// each byte to every parser in priority order and commits to whichever
// first returns true.
type Emulator interface {
	Name() string
	ParseByte(b byte) bool
	HandleManagerEvent(ev Event, piece PieceEventKind, sq board.Square, elapsed float64)
	HandleManagerMove(uci string)
	HandleManagerKey(key Key)
	HandleManagerTakeback()
	Reset()
}

// SendFunc transmits an outgoing frame to the connected app.
type SendFunc func(data []byte)

// Manager binds the chosen emulator to the internal core. While no app is connected, local players drive the
// game; Attach/Detach notify the caller so it can pause and resume local
// move requests.
type Manager struct {
	mu        sync.Mutex
	emulators []Emulator
	active    Emulator

	onAttach func(Emulator)
	onDetach func()

	log logging.Logger
}

// NewManager creates a Manager trying the given emulators in priority
// order during auto-detection.
func NewManager(emus []Emulator, log logging.Logger) *Manager {
	return &Manager{emulators: emus, log: log}
}

// OnAttach registers the callback fired when an app's first complete
// command commits the manager to one protocol.
func (m *Manager) OnAttach(fn func(Emulator)) { m.onAttach = fn }

// OnDetach registers the callback fired when the transport disconnects.
func (m *Manager) OnDetach(fn func()) { m.onDetach = fn }

// Active returns the committed emulator, or nil during auto-detection.
func (m *Manager) Active() Emulator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// FeedByte routes one incoming transport byte. Before a protocol is
// committed every live parser sees the byte; the first to report a
// complete command wins.
func (m *Manager) FeedByte(b byte) {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active != nil {
		active.ParseByte(b)
		return
	}

	for _, e := range m.emulators {
		if !e.ParseByte(b) {
			continue
		}
		m.mu.Lock()
		m.active = e
		m.mu.Unlock()
		if m.log != nil {
			m.log.Infof("emulators: committed to %s protocol", e.Name())
		}
		for _, other := range m.emulators {
			if other != e {
				other.Reset()
			}
		}
		if m.onAttach != nil {
			m.onAttach(e)
		}
		return
	}
}

// Feed routes a whole buffer of transport bytes.
func (m *Manager) Feed(data []byte) {
	for _, b := range data {
		m.FeedByte(b)
	}
}

// Disconnect clears the committed protocol when the transport drops, so
// local players resume and the next connection re-runs auto-detection.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	was := m.active
	m.active = nil
	m.mu.Unlock()

	for _, e := range m.emulators {
		e.Reset()
	}
	if was != nil {
		if m.log != nil {
			m.log.Infof("emulators: %s disconnected", was.Name())
		}
		if m.onDetach != nil {
			m.onDetach()
		}
	}
}

// HandleManagerEvent forwards an internal event to the active emulator.
func (m *Manager) HandleManagerEvent(ev Event, piece PieceEventKind, sq board.Square, elapsed float64) {
	if e := m.Active(); e != nil {
		e.HandleManagerEvent(ev, piece, sq, elapsed)
	}
}

// HandleManagerMove forwards a committed move to the active emulator.
func (m *Manager) HandleManagerMove(uci string) {
	if e := m.Active(); e != nil {
		e.HandleManagerMove(uci)
	}
}

// HandleManagerKey forwards a key press to the active emulator.
func (m *Manager) HandleManagerKey(key Key) {
	if e := m.Active(); e != nil {
		e.HandleManagerKey(key)
	}
}

// HandleManagerTakeback forwards a takeback to the active emulator.
func (m *Manager) HandleManagerTakeback() {
	if e := m.Active(); e != nil {
		e.HandleManagerTakeback()
	}
}

// positionString flattens a FEN's piece placement into the 64-character
// board string two of the emulators exchange: '.' for an empty square,
// the FEN piece letter otherwise, rank 8 first.
func positionString(fen string) string {
	placement := fen
	for i := 0; i < len(fen); i++ {
		if fen[i] == ' ' {
			placement = fen[:i]
			break
		}
	}

	out := make([]byte, 0, 64)
	for i := 0; i < len(placement); i++ {
		c := placement[i]
		switch {
		case c == '/':
		case c >= '1' && c <= '8':
			for n := byte(0); n < c-'0'; n++ {
				out = append(out, '.')
			}
		default:
			out = append(out, c)
		}
	}
	for len(out) < 64 {
		out = append(out, '.')
	}
	return string(out[:64])
}
