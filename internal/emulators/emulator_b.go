package emulators

import (
	"strings"
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/logging"
)

// Emulator-B command bytes. Commands frame as [command, length,
// payload...]; 0x0b/0x27/0x31 expect no response.
const (
	bCmdInit            = 0x0b
	bCmdLEDControl      = 0x0a
	bCmdEnableReporting = 0x21
	bCmdHaptic          = 0x27
	bCmdBattery         = 0x29
	bCmdSound           = 0x31

	bRespFEN     = 0x01
	bRespBattery = 0x2a
)

// bPieceNibbles maps FEN piece letters to the app's 4-bit piece codes.
var bPieceNibbles = map[byte]byte{
	'q': 1, 'k': 2, 'b': 3, 'p': 4, 'n': 5,
	'R': 6, 'P': 7, 'r': 8, 'B': 9, 'N': 10, 'Q': 11, 'K': 12,
}

// bNibblePieces is the inverse of bPieceNibbles, indexed by code.
var bNibblePieces = [13]byte{0, 'q', 'k', 'b', 'p', 'n', 'R', 'P', 'r', 'B', 'N', 'Q', 'K'}

// EmulatorB impersonates a companion chess-board app's board: alternating FEN-notification and operation channels.
// Position notifications carry full piece identity, packed two squares
// per byte.
type EmulatorB struct {
	core Core
	send SendFunc
	log  logging.Logger

	buf       []byte
	reporting bool
	lastFEN   string
	startedAt time.Time
}

// NewEmulatorB creates the Emulator-B parser/responder.
func NewEmulatorB(core Core, send SendFunc, log logging.Logger) *EmulatorB {
	return &EmulatorB{core: core, send: send, log: log, startedAt: time.Now()}
}

func (e *EmulatorB) Name() string { return "emulator-b" }

func (e *EmulatorB) Reset() {
	e.buf = nil
	e.reporting = false
	e.lastFEN = ""
}

func isBCommand(b byte) bool {
	switch b {
	case bCmdInit, bCmdLEDControl, bCmdEnableReporting, bCmdHaptic, bCmdBattery, bCmdSound:
		return true
	default:
		return false
	}
}

// ParseByte accumulates [command, length, payload...] frames. The first
// byte must be a known command, so during auto-detection this parser
// never claims another protocol's stream.
func (e *EmulatorB) ParseByte(b byte) bool {
	e.buf = append(e.buf, b)

	if !isBCommand(e.buf[0]) {
		e.buf = nil
		return false
	}
	if len(e.buf) < 2 {
		return false
	}

	length := int(e.buf[1])
	if length > 64 {
		if e.log != nil {
			e.log.Infof("emulators: emulator-b implausible length %d, clearing", length)
		}
		e.buf = nil
		return false
	}
	if len(e.buf) < 2+length {
		return false
	}

	cmd := e.buf[0]
	payload := append([]byte(nil), e.buf[2:2+length]...)
	e.buf = e.buf[2+length:]
	return e.handleCommand(cmd, payload)
}

func (e *EmulatorB) handleCommand(cmd byte, payload []byte) bool {
	switch cmd {
	case bCmdInit, bCmdHaptic, bCmdSound:
		// Acknowledged silently; the real board sends no response.
		return true
	case bCmdEnableReporting:
		e.reporting = true
		e.lastFEN = ""
		e.sendFENNotification()
		return true
	case bCmdBattery:
		e.sendBatteryResponse()
		return true
	case bCmdLEDControl:
		e.handleLED(payload)
		return true
	default:
		return false
	}
}

// handleLED interprets 8 bytes as 64 LED bits: byte 0 is rank 8, byte 7
// rank 1, and within each byte the MSB is file a.
func (e *EmulatorB) handleLED(payload []byte) {
	if len(payload) < 8 {
		if e.log != nil {
			e.log.Infof("emulators: emulator-b LED payload too short: %d bytes", len(payload))
		}
		return
	}
	var squares []board.Square
	for row := 0; row < 8; row++ {
		rank := 7 - row
		for file := 0; file < 8; file++ {
			if payload[row]&(1<<(7-file)) != 0 {
				squares = append(squares, board.NewSquare(file, rank))
			}
		}
	}
	if len(squares) == 0 {
		e.core.LEDsOff()
		return
	}
	e.core.LEDArray(squares, 5, 3, 0)
}

// EncodePositionB packs a FEN's piece placement into the 32-byte wire
// format: two squares per byte in h8,g8,...,a8,h7,...,a1 order, the
// first square of each pair in the low nibble.
func EncodePositionB(fen string) [32]byte {
	pos := positionString(fen) // rank 8 a..h first

	var out [32]byte
	idx := 0
	for rank := 0; rank < 8; rank++ {
		for file := 7; file >= 0; file-- {
			code := bPieceNibbles[pos[rank*8+file]]
			if idx%2 == 0 {
				out[idx/2] |= code & 0x0f
			} else {
				out[idx/2] |= (code & 0x0f) << 4
			}
			idx++
		}
	}
	return out
}

// DecodePositionB is the inverse of EncodePositionB, returning the
// piece-placement field of a FEN. Used by tests to pin the round-trip
// law and by nothing on the hot path.
func DecodePositionB(data [32]byte) string {
	var grid [8][8]byte // [rank8-first row][file]
	idx := 0
	for rank := 0; rank < 8; rank++ {
		for file := 7; file >= 0; file-- {
			b := data[idx/2]
			var code byte
			if idx%2 == 0 {
				code = b & 0x0f
			} else {
				code = b >> 4
			}
			if int(code) < len(bNibblePieces) {
				grid[rank][file] = bNibblePieces[code]
			}
			idx++
		}
	}

	var sb strings.Builder
	for rank := 0; rank < 8; rank++ {
		empty := 0
		for file := 0; file < 8; file++ {
			c := grid[rank][file]
			if c == 0 {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte('0' + byte(empty))
				empty = 0
			}
			sb.WriteByte(c)
		}
		if empty > 0 {
			sb.WriteByte('0' + byte(empty))
		}
		if rank != 7 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// sendFENNotification emits the 38-byte position frame: header [0x01,
// 0x24], 32 position bytes, a little-endian uptime counter, and two
// reserved zero bytes. Unchanged positions are suppressed.
func (e *EmulatorB) sendFENNotification() {
	if !e.reporting || e.send == nil {
		return
	}
	fen := e.core.FEN()
	if fen == e.lastFEN {
		return
	}
	e.lastFEN = fen

	pos := EncodePositionB(fen)
	uptime := uint16(time.Since(e.startedAt) / time.Second)

	out := make([]byte, 0, 38)
	out = append(out, bRespFEN, 0x24)
	out = append(out, pos[:]...)
	out = append(out, byte(uptime&0xff), byte(uptime>>8), 0x00, 0x00)
	e.send(out)
}

// sendBatteryResponse emits [0x2a, 0x02, level, 0x00] with the charging
// flag in the level byte's high bit. The internal 0..20 gauge is scaled
// to a percentage.
func (e *EmulatorB) sendBatteryResponse() {
	if e.send == nil {
		return
	}
	level, charging := e.core.Battery()
	pct := byte(clampInt(level*5, 0, 100)) & 0x7f
	if charging {
		pct |= 0x80
	}
	e.send([]byte{bRespBattery, 0x02, pct, 0x00})
}

// HandleManagerEvent reports the position on every lift/place so the
// app tracks the physical board in real time.
func (e *EmulatorB) HandleManagerEvent(ev Event, piece PieceEventKind, sq board.Square, elapsed float64) {
	if ev == EventLift || ev == EventPlace {
		e.sendFENNotification()
	}
}

func (e *EmulatorB) HandleManagerMove(uci string) {
	e.sendFENNotification()
}

func (e *EmulatorB) HandleManagerKey(key Key) {}

func (e *EmulatorB) HandleManagerTakeback() {
	e.sendFENNotification()
}
