package gameloop

import (
	"sync"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/boardctl"
	"github.com/centaurfirmware/centaurd/internal/game"
	"github.com/centaurfirmware/centaurd/internal/logging"
)

// EmuCore implements emulators.Core: the read-only view and the LED/
// sound pass-through the protocol emulators are given. Its methods are
// called from the emulator transport goroutine, so everything it
// touches is either internally synchronized (game, bus) or guarded
// here.
type EmuCore struct {
	g    *game.Game
	io   BoardIO
	meta func(key boardctl.MetaKey) (string, error)
	log  logging.Logger

	mu       sync.Mutex
	battery  int
	charging bool
}

// NewEmuCore builds the adapter. meta may be nil when the MCU metadata
// cache is unavailable (emulators fall back to their defaults).
func NewEmuCore(g *game.Game, io BoardIO, meta func(key boardctl.MetaKey) (string, error), log logging.Logger) *EmuCore {
	return &EmuCore{g: g, io: io, meta: meta, log: log}
}

// SetBattery records the latest battery/charger observation; the game
// loop calls it on every battery event.
func (c *EmuCore) SetBattery(level int, charging bool) {
	c.mu.Lock()
	c.battery, c.charging = level, charging
	c.mu.Unlock()
}

func (c *EmuCore) FEN() string { return c.g.FEN() }

// Occupancy prefers the live sensor state so a connected app sees the
// physical board; it degrades to the logical projection when the read
// times out.
func (c *EmuCore) Occupancy() [64]byte {
	occ, err := c.io.GetState()
	if err != nil {
		if c.log != nil {
			c.log.Infof("gameloop: emulator occupancy read: %v", err)
		}
		return c.g.ToPiecePresenceState()
	}
	return occ
}

func (c *EmuCore) Battery() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.battery, c.charging
}

var metaKeysByName = map[string]boardctl.MetaKey{
	"serial no":        boardctl.MetaSerialNo,
	"software version": boardctl.MetaSoftwareVersion,
	"hardware version": boardctl.MetaHardwareVersion,
	"build":            boardctl.MetaBuild,
	"tm":               boardctl.MetaTM,
}

func (c *EmuCore) Meta(key string) string {
	if c.meta == nil {
		return ""
	}
	mk, ok := metaKeysByName[key]
	if !ok {
		return ""
	}
	v, err := c.meta(mk)
	if err != nil {
		return ""
	}
	return v
}

func (c *EmuCore) LED(sq board.Square, intensity, speed, repeat int) {
	if err := c.io.LED(sq, intensity, speed, repeat); err != nil && c.log != nil {
		c.log.Infof("gameloop: emulator LED: %v", err)
	}
}

func (c *EmuCore) LEDArray(squares []board.Square, intensity, speed, repeat int) {
	if err := c.io.LEDArray(squares, intensity, speed, repeat); err != nil && c.log != nil {
		c.log.Infof("gameloop: emulator LED array: %v", err)
	}
}

func (c *EmuCore) LEDsOff() {
	if err := c.io.LEDsOff(); err != nil && c.log != nil {
		c.log.Infof("gameloop: emulator LEDs off: %v", err)
	}
}

func (c *EmuCore) Beep() {
	if err := c.io.Beep(boardctl.BeepGeneral); err != nil && c.log != nil {
		c.log.Infof("gameloop: emulator beep: %v", err)
	}
}
