// Package boardctl implements the board controller: named, typed
// operations backed by the serial command table,
// plus MCU discovery/address learning and the hardware/chess coordinate
// conversion that every caller above this layer is shielded from.
package boardctl

import (
	"fmt"
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/bus"
	"github.com/centaurfirmware/centaurd/internal/logging"
	"github.com/centaurfirmware/centaurd/internal/serial"
)

// BeepKind enumerates the MCU's fixed tone sequences.
type BeepKind int

const (
	BeepGeneral BeepKind = iota
	BeepFactory
	BeepPowerOn
	BeepPowerOff
	BeepWrong
	BeepWrongMove
)

func (k BeepKind) payload() []byte {
	switch k {
	case BeepFactory:
		return serial.BeepFactoryPayload
	case BeepPowerOn:
		return serial.BeepPowerOnPayload
	case BeepPowerOff:
		return serial.BeepPowerOffPayload
	case BeepWrong:
		return serial.BeepWrongPayload
	case BeepWrongMove:
		return serial.BeepWrongMovePayload
	default:
		return serial.BeepGeneralPayload
	}
}

// MetaKey enumerates the metadata fields cached from a single trademark
// response parse.
type MetaKey int

const (
	MetaSerialNo MetaKey = iota
	MetaSoftwareVersion
	MetaHardwareVersion
	MetaBuild
	MetaTM
)

const defaultTimeout = 2 * time.Second
const defaultRetries = 2

// Controller exposes the board operations on top of an Arbiter.
type Controller struct {
	bus *bus.Arbiter
	log logging.Logger

	meta *metaCache
}

// New builds a Controller driving arb.
func New(arb *bus.Arbiter, log logging.Logger) *Controller {
	return &Controller{bus: arb, log: log}
}

// ChessToHardware converts a chess-index square (a1=0..h8=63) to the
// hardware index addressed rows a8..h1.
func ChessToHardware(sq board.Square) byte {
	hwRow := 7 - int(sq.Rank())
	return byte(hwRow*8 + int(sq.File()))
}

// HardwareToChess is the inverse of ChessToHardware.
func HardwareToChess(hw byte) board.Square {
	hwRow := int(hw) / 8
	file := int(hw) % 8
	rank := 7 - hwRow
	return board.NewSquare(file, rank)
}

// GetState reads the 64-byte occupancy vector, re-ordered into
// chess-index order, as a normal high-priority request.
func (c *Controller) GetState() ([64]byte, error) {
	return c.getState(bus.High)
}

// GetStateLowPriority is the background polling variant of GetState: it
// yields to any pending high-priority request rather than contending
// with it.
func (c *Controller) GetStateLowPriority() ([64]byte, error) {
	return c.getState(bus.Low)
}

func (c *Controller) getState(priority bus.Priority) ([64]byte, error) {
	var out [64]byte
	res := c.bus.RequestResponse(priority, serial.CmdGetState, nil, defaultTimeout, defaultRetries)
	if res.Err != nil {
		return out, res.Err
	}
	if len(res.Packet.Payload) < 64 {
		return out, fmt.Errorf("boardctl: get_state payload too short: %d bytes", len(res.Packet.Payload))
	}
	for hw := 0; hw < 64; hw++ {
		chessSq := HardwareToChess(byte(hw))
		out[chessSq] = res.Packet.Payload[hw]
	}
	return out, nil
}

// LEDsOff extinguishes all 64 LEDs.
func (c *Controller) LEDsOff() error {
	res := c.bus.RequestResponse(bus.High, serial.CmdLEDsOff, nil, defaultTimeout, defaultRetries)
	return res.Err
}

// LED flashes a single square.
func (c *Controller) LED(sq board.Square, intensity, speed, repeat int) error {
	payload := []byte{0x01, ChessToHardware(sq), ledParamByte(intensity, speed), byte(repeat)}
	res := c.bus.RequestResponse(bus.High, serial.CmdLED, payload, defaultTimeout, defaultRetries)
	return res.Err
}

// LEDFromTo lights a guidance arrow from src to dst.
func (c *Controller) LEDFromTo(src, dst board.Square, intensity, speed, repeat int) error {
	payload := []byte{0x02, ChessToHardware(src), ChessToHardware(dst), ledParamByte(intensity, speed), byte(repeat)}
	res := c.bus.RequestResponse(bus.High, serial.CmdLEDFromTo, payload, defaultTimeout, defaultRetries)
	return res.Err
}

// LEDArray flashes up to 64 squares at once.
func (c *Controller) LEDArray(squares []board.Square, intensity, speed, repeat int) error {
	if len(squares) > 64 {
		return fmt.Errorf("boardctl: led_array: %d squares exceeds board size", len(squares))
	}
	payload := make([]byte, 0, 3+len(squares))
	payload = append(payload, 0x03, ledParamByte(intensity, speed), byte(repeat))
	for _, sq := range squares {
		payload = append(payload, ChessToHardware(sq))
	}
	res := c.bus.RequestResponse(bus.High, serial.CmdLEDArray, payload, defaultTimeout, defaultRetries)
	return res.Err
}

func ledParamByte(intensity, speed int) byte {
	intensity = clampRange(intensity, 1, 5)
	speed = clampRange(speed, 1, 5)
	return byte(intensity<<4 | speed)
}

func clampRange(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Beep plays a fixed tone sequence. Sound-gating policy lives
// above this layer, in the caller that decides whether to invoke Beep at
// all; this method never consults Settings itself.
func (c *Controller) Beep(kind BeepKind) error {
	res := c.bus.RequestResponse(bus.High, serial.CmdBeep, kind.payload(), defaultTimeout, defaultRetries)
	return res.Err
}

// Sleep requests the MCU power down, retrying up to retries times with
// retryDelay between attempts. A failure to acknowledge after the full
// budget is a battery-drain risk and must be logged loudly by the caller.
func (c *Controller) Sleep(retries int, retryDelay time.Duration) error {
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay)
		}
		res := c.bus.RequestResponse(bus.High, serial.CmdSleep, nil, defaultTimeout, 0)
		if res.Err == nil {
			return nil
		}
		if c.log != nil {
			c.log.Infof("boardctl: sleep attempt %d/%d failed: %v", attempt+1, retries+1, res.Err)
		}
	}
	return fmt.Errorf("boardctl: sleep: no acknowledgement after %d attempt(s)", retries+1)
}
