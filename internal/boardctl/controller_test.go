package boardctl

import (
	"testing"

	"github.com/centaurfirmware/centaurd/internal/board"
)

func TestCoordinateBijection(t *testing.T) {
	for sq := board.Square(0); sq < 64; sq++ {
		hw := ChessToHardware(sq)
		back := HardwareToChess(hw)
		if back != sq {
			t.Fatalf("square %d (%s): HardwareToChess(ChessToHardware(sq)) = %d, want %d", sq, sq, back, sq)
		}
	}
}

func TestChessToHardwareKnownSquares(t *testing.T) {
	// a8 is hardware row 0, file 0 -> hw index 0.
	if got := ChessToHardware(board.A8); got != 0 {
		t.Fatalf("ChessToHardware(a8) = %d, want 0", got)
	}
	// h1 is hardware row 7, file 7 -> hw index 63.
	if got := ChessToHardware(board.H1); got != 63 {
		t.Fatalf("ChessToHardware(h1) = %d, want 63", got)
	}
	// a1 is hardware row 7, file 0 -> hw index 56.
	if got := ChessToHardware(board.A1); got != 56 {
		t.Fatalf("ChessToHardware(a1) = %d, want 56", got)
	}
}

func TestLEDParamByteClamps(t *testing.T) {
	if b := ledParamByte(0, 0); b != 0x11 {
		t.Fatalf("ledParamByte(0,0) = %#x, want 0x11 (clamped up to 1,1)", b)
	}
	if b := ledParamByte(9, 9); b != 0x55 {
		t.Fatalf("ledParamByte(9,9) = %#x, want 0x55 (clamped down to 5,5)", b)
	}
}

func TestParseMetaStopsAtNUL(t *testing.T) {
	payload := make([]byte, 32+len("DGT-COMPATIBLE"))
	copy(payload[0:], "SN123\x00\x00\x00")
	copy(payload[8:], "1.2.0\x00\x00\x00")
	copy(payload[32:], "DGT-COMPATIBLE")

	m := parseMeta(payload)
	if m.serialNo != "SN123" {
		t.Fatalf("serialNo = %q, want %q", m.serialNo, "SN123")
	}
	if m.softwareVersion != "1.2.0" {
		t.Fatalf("softwareVersion = %q, want %q", m.softwareVersion, "1.2.0")
	}
	if m.tm != "DGT-COMPATIBLE" {
		t.Fatalf("tm = %q, want %q", m.tm, "DGT-COMPATIBLE")
	}
}
