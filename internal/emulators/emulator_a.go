package emulators

import (
	"fmt"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/boardctl"
	"github.com/centaurfirmware/centaurd/internal/logging"
)

// Emulator-A command bytes. Short commands are a single byte on the
// wire; long commands
// frame as <type, length, payload..., 0x00> where length counts the
// payload plus the terminator.
const (
	aCmdInitial     = 0x40
	aCmdBoardDump   = 0x42
	aCmdUnknown44   = 0x44
	aCmdLongSerial  = 0x45
	aCmdTrademark   = 0x47
	aCmdVersion     = 0x4d
	aCmdSerial      = 0x55
	aCmdBattery     = 0x32
	aCmdLEDControl  = 0x60 // long
	aCmdDevKey      = 0x63 // long

	aRespBoardDump   = 0x86
	aRespLongSerial  = 0x91
	aRespTrademark   = 0x92
	aRespVersion     = 0x93
	aRespSerial      = 0xa2
	aRespBattery     = 0xa0
	aRespFieldUpdate = 0x8e
)

// aMaxBuffer bounds accumulation of unterminated long-command bytes.
const aMaxBuffer = 64

// EmulatorA impersonates a BLE occupancy board toward its companion
// chess app. The app sees only occupancy, never
// piece identity; trademark/serial/version responses reproduce the
// impersonated vendor's strings, filled from the MCU metadata cache.
type EmulatorA struct {
	core Core
	send SendFunc
	log  logging.Logger

	started bool
	buf     []byte
}

// NewEmulatorA creates the Emulator-A parser/responder.
func NewEmulatorA(core Core, send SendFunc, log logging.Logger) *EmulatorA {
	return &EmulatorA{core: core, send: send, log: log}
}

func (e *EmulatorA) Name() string { return "emulator-a" }

func (e *EmulatorA) Reset() {
	e.buf = nil
	e.started = false
}

func isAShortCommand(b byte) bool {
	switch b {
	case aCmdInitial, aCmdBoardDump, aCmdUnknown44, aCmdLongSerial,
		aCmdTrademark, aCmdVersion, aCmdSerial, aCmdBattery:
		return true
	default:
		return false
	}
}

// sendPacket frames an outgoing message as <type, len_hi, len_lo,
// payload> with the total length split across two 7-bit bytes.
func (e *EmulatorA) sendPacket(packetType byte, payload []byte) {
	total := len(payload) + 3
	out := make([]byte, 0, total)
	out = append(out, packetType, byte((total>>7)&0x7f), byte(total&0x7f))
	out = append(out, payload...)
	if e.send != nil {
		e.send(out)
	}
}

// ParseByte consumes one app byte. Before the initial handshake byte
// arrives, everything else is rejected so auto-detection can pass the
// stream to the other parsers.
func (e *EmulatorA) ParseByte(b byte) bool {
	if !e.started {
		if b != aCmdInitial {
			return false
		}
		e.started = true
		e.core.LEDsOff()
		// The impersonated board stays silent on the handshake itself.
		return true
	}

	if len(e.buf) == 0 && isAShortCommand(b) {
		return e.handleShort(b)
	}

	e.buf = append(e.buf, b)
	if len(e.buf) > aMaxBuffer {
		if e.log != nil {
			e.log.Infof("emulators: emulator-a buffer overflow (%d bytes), clearing", len(e.buf))
		}
		e.buf = nil
		return false
	}

	if b != 0x00 {
		return false
	}

	// A terminator: scan backwards for a <type, length, payload..., 0x00>
	// frame whose declared length reaches exactly this terminator.
	term := len(e.buf) - 1
	for i := term - 1; i > 0; i-- {
		if int(e.buf[i]) != term-i {
			continue
		}
		packetType := e.buf[i-1]
		if packetType != aCmdLEDControl && packetType != aCmdDevKey {
			continue
		}
		payload := append([]byte(nil), e.buf[i+1:term]...)
		if orphaned := i - 1; orphaned > 0 && e.log != nil {
			e.log.Infof("emulators: emulator-a discarding %d orphaned byte(s)", orphaned)
		}
		e.buf = nil
		return e.handleLong(packetType, payload)
	}
	return false
}

func (e *EmulatorA) handleShort(cmd byte) bool {
	switch cmd {
	case aCmdInitial:
		e.core.LEDsOff()
		return true
	case aCmdBoardDump:
		occ := e.core.Occupancy()
		payload := make([]byte, 64)
		for hw := 0; hw < 64; hw++ {
			if occ[boardctl.HardwareToChess(byte(hw))] != 0 {
				payload[hw] = 0x01
			}
		}
		e.sendPacket(aRespBoardDump, payload)
		return true
	case aCmdSerial:
		e.sendPacket(aRespSerial, []byte(e.metaOr("serial no", "P00000000X")))
		return true
	case aCmdLongSerial:
		e.sendPacket(aRespLongSerial, []byte(e.metaOr("serial no", "P00000000X")))
		return true
	case aCmdTrademark:
		e.sendPacket(aRespTrademark, []byte(e.trademarkText()))
		return true
	case aCmdVersion:
		e.sendPacket(aRespVersion, []byte{1, 0})
		return true
	case aCmdBattery:
		e.sendPacket(aRespBattery, []byte{0x58, 0, 0, 0, 0, 0, 0, 0, 2})
		return true
	case aCmdUnknown44:
		return true
	default:
		return false
	}
}

func (e *EmulatorA) metaOr(key, fallback string) string {
	if v := e.core.Meta(key); v != "" {
		return v
	}
	return fallback
}

// trademarkText reproduces the impersonated vendor's four-line
// trademark response, with version/build/serial filled from the MCU
// metadata cache.
func (e *EmulatorA) trademarkText() string {
	return fmt.Sprintf(
		"Digital Game Technology\r\nCopyright (c) 2021 DGT\r\n"+
			"software version: %s, build: %s\r\nhardware version: %s, serial no: %s",
		e.metaOr("software version", "1.00"),
		e.metaOr("build", "210722"),
		e.metaOr("hardware version", "1.00"),
		e.metaOr("serial no", "P00000000X"),
	)
}

func (e *EmulatorA) handleLong(packetType byte, payload []byte) bool {
	switch packetType {
	case aCmdDevKey:
		// Developer-key registration carries no response.
		return true
	case aCmdLEDControl:
		e.handleLED(payload)
		return true
	default:
		return false
	}
}

// handleLED interprets the app's LED control payload: mode 0 and mode 2
// turn everything off; mode 5 carries speed, sub-mode, intensity, and a
// list of hardware field indexes.
func (e *EmulatorA) handleLED(payload []byte) {
	if len(payload) == 0 {
		return
	}
	switch payload[0] {
	case 0:
		e.core.LEDsOff()
	case 2:
		if len(payload) >= 3 && payload[1] == 0 && payload[2] == 0 {
			e.core.LEDsOff()
		}
	case 5:
		if len(payload) < 4 {
			return
		}
		speed := clampInt(int(payload[1]), 1, 5)
		intensity := scaleAIntensity(int(payload[3]))
		squares := make([]board.Square, 0, len(payload)-4)
		for _, hw := range payload[4:] {
			if hw < 64 {
				squares = append(squares, boardctl.HardwareToChess(hw))
			}
		}
		switch len(squares) {
		case 0:
			e.core.LEDsOff()
		case 1:
			e.core.LED(squares[0], intensity, speed, 0)
		default:
			e.core.LEDArray(squares, intensity, speed, 0)
		}
	default:
		if e.log != nil {
			e.log.Infof("emulators: emulator-a unsupported LED mode %d", payload[0])
		}
	}
}

// scaleAIntensity maps the app's inverted 10..0 intensity scale onto
// the MCU's 1..5 range.
func scaleAIntensity(in int) int {
	if in <= 1 {
		return 1
	}
	return clampInt(11-in, 1, 5)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// HandleManagerEvent forwards lift/place onto the wire as field-update
// notifications carrying the hardware index and the raw event kind.
func (e *EmulatorA) HandleManagerEvent(ev Event, piece PieceEventKind, sq board.Square, elapsed float64) {
	if !e.started || piece == NoPieceEvent {
		return
	}
	if ev == EventLift || ev == EventPlace {
		e.sendPacket(aRespFieldUpdate, []byte{boardctl.ChessToHardware(sq), byte(piece)})
	}
}

// HandleManagerMove is covered by the per-field updates the app already
// receives; the impersonated board sends nothing extra on commit.
func (e *EmulatorA) HandleManagerMove(uci string) {}

func (e *EmulatorA) HandleManagerKey(key Key) {}

func (e *EmulatorA) HandleManagerTakeback() {}
