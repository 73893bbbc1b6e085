package emulators

import (
	"fmt"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/logging"
)

// nusMaxBuffer bounds the receive buffer; beyond it the accumulated
// bytes cannot be a valid command and are discarded.
const nusMaxBuffer = 1000

// NUS emulates a Nordic-UART-style chess-notation board: single-letter ASCII commands, each byte carried with
// odd parity, every outgoing string suffixed with a two-hex-digit XOR
// checksum.
type NUS struct {
	core Core
	send SendFunc
	log  logging.Logger

	buf []byte

	eeprom      [256]byte
	unsolicited bool
}

// NewNUS creates the NUS emulator.
func NewNUS(core Core, send SendFunc, log logging.Logger) *NUS {
	return &NUS{core: core, send: send, log: log, unsolicited: true}
}

func (e *NUS) Name() string { return "nus" }

// Reset clears parser and EEPROM state.
func (e *NUS) Reset() {
	e.buf = nil
	e.eeprom = [256]byte{}
	e.unsolicited = true
}

// oddParity returns b's low 7 bits with the high bit set so that the
// total number of set bits is odd.
func oddParity(b byte) byte {
	v := b & 0x7f
	par := byte(1)
	for x := v; x != 0; x >>= 1 {
		par ^= x & 1
	}
	if par == 1 {
		return v | 0x80
	}
	return v
}

// sendString appends the XOR-checksum hex pair and transmits every byte
// with odd parity.
func (e *NUS) sendString(s string) {
	cs := byte(0)
	out := make([]byte, 0, len(s)+2)
	for i := 0; i < len(s); i++ {
		out = append(out, oddParity(s[i]))
		cs ^= s[i]
	}
	hexStr := fmt.Sprintf("%02x", cs)
	out = append(out, oddParity(hexStr[0]), oddParity(hexStr[1]))
	if e.send != nil {
		e.send(out)
	}
}

func (e *NUS) sendPosition() {
	e.sendString("s" + positionString(e.core.FEN()))
}

// ParseByte strips the parity bit, accumulates, and processes as many
// complete commands as the buffer holds. It reports true once at least
// one complete recognized command has been handled for this byte.
func (e *NUS) ParseByte(b byte) bool {
	e.buf = append(e.buf, b&0x7f)
	if len(e.buf) > nusMaxBuffer {
		if e.log != nil {
			e.log.Infof("emulators: nus buffer overflow (%d bytes), clearing", len(e.buf))
		}
		e.buf = nil
		return false
	}

	handled := false
	for len(e.buf) > 0 {
		n, ok := e.processCommand()
		if n == 0 {
			break // incomplete, wait for more bytes
		}
		e.buf = e.buf[n:]
		if ok {
			handled = true
		}
	}
	return handled
}

// processCommand attempts to handle the command at the head of the
// buffer. It returns the number of bytes consumed (0 when the command
// is recognized but incomplete) and whether a valid command was handled.
func (e *NUS) processCommand() (consumed int, handled bool) {
	switch e.buf[0] {
	case 'V':
		// Version request: V + 2 checksum chars.
		if len(e.buf) < 3 {
			return 0, false
		}
		e.sendString("v3130")
		return 3, true

	case 'I':
		// Identity: I + 4 data + 2 checksum.
		if len(e.buf) < 7 {
			return 0, false
		}
		e.sendString("i0055mm\n")
		return 7, true

	case 'S':
		// Status request: the 64-character position string comes back.
		if len(e.buf) < 3 {
			return 0, false
		}
		e.sendPosition()
		return 3, true

	case 'W':
		// Write EEPROM: W + 2 addr hex + 2 value hex + 2 checksum.
		if len(e.buf) < 7 {
			return 0, false
		}
		addr, okA := hexPair(e.buf[1], e.buf[2])
		val, okV := hexPair(e.buf[3], e.buf[4])
		if !okA || !okV {
			return 1, false
		}
		e.eeprom[addr] = val
		e.sendString("w" + string(e.buf[1:5]))
		// Address 2 bit 0 toggles unsolicited state updates.
		if addr == 2 {
			e.unsolicited = val&0x01 == 0
		}
		return 7, true

	case 'X':
		// Extinguish LEDs: X + 2 checksum.
		if len(e.buf) < 3 {
			return 0, false
		}
		e.core.LEDsOff()
		e.sendString("x")
		return 3, true

	case 'R':
		// Read EEPROM: R + 2 addr hex + 2 checksum.
		if len(e.buf) < 5 {
			return 0, false
		}
		addr, ok := hexPair(e.buf[1], e.buf[2])
		if !ok {
			return 1, false
		}
		e.sendString(fmt.Sprintf("%s%02X", string(e.buf[1:3]), e.eeprom[addr]))
		return 5, true

	case 'L':
		// LED pattern: L + 2 slot-time chars + 81 hex pairs + 2 checksum.
		const ledCmdLen = 1 + 2 + 81*2 + 2
		if len(e.buf) < ledCmdLen {
			return 0, false
		}
		var pattern [81]byte
		for i := 0; i < 81; i++ {
			v, ok := hexPair(e.buf[3+i*2], e.buf[4+i*2])
			if !ok {
				if e.log != nil {
					e.log.Infof("emulators: nus LED pattern has invalid hex at cell %d", i)
				}
				return 1, false
			}
			pattern[i] = v
		}
		e.applyLEDPattern(pattern)
		e.sendString("l")
		return ledCmdLen, true

	case 'T':
		// Reset: re-enables unsolicited updates.
		if len(e.buf) < 3 {
			return 0, false
		}
		e.unsolicited = true
		e.sendString("t")
		return 3, true

	default:
		// Unknown command byte; drop it and let the next one try.
		return 1, false
	}
}

func hexPair(a, b byte) (byte, bool) {
	hi, okA := hexNibble(a)
	lo, okB := hexNibble(b)
	if !okA || !okB {
		return 0, false
	}
	return hi<<4 | lo, true
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// TranslateNineByNine maps the app's 9×9 LED-corner pattern onto the
// 8×8 square grid: a square is selected when all four of its corner
// cells are lit, and the middle square of any straight three-in-a-row
// run is then dropped so a from-to guidance line lights only its
// endpoints. Exported for tests; the cell geometry matches the
// original's ledmap table, generated here instead of spelled out.
func TranslateNineByNine(pattern [81]byte) []board.Square {
	var lit [64]bool
	for sq := 0; sq < 64; sq++ {
		row, col := sq/8, sq%8
		base := (7 - row) + 9*col
		if pattern[base] > 0 && pattern[base+1] > 0 && pattern[base+9] > 0 && pattern[base+10] > 0 {
			lit[sq] = true
		}
	}

	// Drop middles of straight runs, horizontally then vertically.
	drop := [64]bool{}
	for r := 0; r < 8; r++ {
		for c := 0; c < 6; c++ {
			if lit[r*8+c] && lit[r*8+c+1] && lit[r*8+c+2] {
				drop[r*8+c+1] = true
			}
		}
	}
	for r := 0; r < 6; r++ {
		for c := 0; c < 8; c++ {
			if lit[r*8+c] && lit[(r+1)*8+c] && lit[(r+2)*8+c] {
				drop[(r+1)*8+c] = true
			}
		}
	}

	var squares []board.Square
	for sq := 0; sq < 64; sq++ {
		if lit[sq] && !drop[sq] {
			squares = append(squares, board.Square(sq))
		}
	}
	return squares
}

func (e *NUS) applyLEDPattern(pattern [81]byte) {
	squares := TranslateNineByNine(pattern)
	e.core.LEDsOff()
	if len(squares) > 0 {
		e.core.LEDArray(squares, 5, 5, 0)
	}
}

// HandleManagerEvent pushes the position on new game; per-piece events
// are covered by HandleManagerMove once the move commits.
func (e *NUS) HandleManagerEvent(ev Event, piece PieceEventKind, sq board.Square, elapsed float64) {
	if ev == EventNewGame && e.unsolicited {
		e.sendPosition()
	}
}

// HandleManagerMove pushes the new position unless unsolicited updates
// were disabled through the EEPROM toggle.
func (e *NUS) HandleManagerMove(uci string) {
	if e.unsolicited {
		e.sendPosition()
	}
}

// HandleManagerKey re-sends the position on PLAY, the original's
// "send the board state again" affordance.
func (e *NUS) HandleManagerKey(key Key) {
	if key == KeyPlay {
		e.core.Beep()
		e.sendPosition()
	}
}

func (e *NUS) HandleManagerTakeback() {
	if e.unsolicited {
		e.sendPosition()
	}
}
