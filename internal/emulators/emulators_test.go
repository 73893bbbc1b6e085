package emulators

import (
	"bytes"
	"strings"
	"testing"

	"github.com/centaurfirmware/centaurd/internal/board"
)

type fakeCore struct {
	fen      string
	battery  int
	charging bool

	ledsOff   int
	ledSquare []board.Square
	beeps     int
}

func newFakeCore() *fakeCore {
	return &fakeCore{fen: board.NewPosition().FEN(), battery: 17}
}

func (c *fakeCore) FEN() string { return c.fen }

func (c *fakeCore) Occupancy() [64]byte {
	pos, _ := board.ParseFEN(c.fen)
	var occ [64]byte
	for sq := board.Square(0); sq < 64; sq++ {
		if !pos.IsEmpty(sq) {
			occ[sq] = 1
		}
	}
	return occ
}

func (c *fakeCore) Battery() (int, bool) { return c.battery, c.charging }

func (c *fakeCore) Meta(key string) string {
	switch key {
	case "serial no":
		return "T1234567890"
	case "software version":
		return "1.07"
	default:
		return ""
	}
}

func (c *fakeCore) LED(sq board.Square, intensity, speed, repeat int) {
	c.ledSquare = []board.Square{sq}
}
func (c *fakeCore) LEDArray(squares []board.Square, intensity, speed, repeat int) {
	c.ledSquare = squares
}
func (c *fakeCore) LEDsOff() { c.ledsOff++ }
func (c *fakeCore) Beep()    { c.beeps++ }

// withParity builds a NUS wire string the way a real app transmits it.
func withParity(s string) []byte {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = oddParity(s[i])
	}
	return out
}

// stripParity decodes an outgoing NUS frame back to its ASCII text.
func stripParity(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b & 0x7f
	}
	return string(out)
}

func TestOddParity(t *testing.T) {
	for b := 0; b < 128; b++ {
		v := oddParity(byte(b))
		ones := 0
		for x := v; x != 0; x >>= 1 {
			ones += int(x & 1)
		}
		if ones%2 != 1 {
			t.Fatalf("oddParity(0x%02x) = 0x%02x has even bit count", b, v)
		}
		if v&0x7f != byte(b)&0x7f {
			t.Fatalf("oddParity(0x%02x) changed data bits", b)
		}
	}
}

func TestNUSVersionRequest(t *testing.T) {
	var sent [][]byte
	e := NewNUS(newFakeCore(), func(d []byte) { sent = append(sent, d) }, nil)

	var handled bool
	for _, b := range withParity("V00") { // command + dummy checksum chars
		handled = e.ParseByte(b)
	}
	if !handled {
		t.Fatal("expected complete V command to report handled")
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 response, got %d", len(sent))
	}
	got := stripParity(sent[0])
	if !strings.HasPrefix(got, "v3130") {
		t.Fatalf("response = %q, want v3130 + checksum", got)
	}
	// Trailing two characters are the XOR checksum of the text.
	cs := byte(0)
	for i := 0; i < len(got)-2; i++ {
		cs ^= got[i]
	}
	if got[len(got)-2:] != strings.ToLower(hexByte(cs)) {
		t.Fatalf("checksum = %q, want %q", got[len(got)-2:], hexByte(cs))
	}
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}

func TestNUSStatusSendsPositionString(t *testing.T) {
	var sent [][]byte
	e := NewNUS(newFakeCore(), func(d []byte) { sent = append(sent, d) }, nil)

	for _, b := range withParity("S00") {
		e.ParseByte(b)
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 response, got %d", len(sent))
	}
	got := stripParity(sent[0])
	if len(got) != 1+64+2 {
		t.Fatalf("status response length = %d, want 67", len(got))
	}
	wantPos := "rnbqkbnr" + "pppppppp" + strings.Repeat(".", 32) + "PPPPPPPP" + "RNBQKBNR"
	if got[1:65] != wantPos {
		t.Fatalf("position = %q, want %q", got[1:65], wantPos)
	}
}

func TestNUSEEPROMWriteRead(t *testing.T) {
	var sent [][]byte
	e := NewNUS(newFakeCore(), func(d []byte) { sent = append(sent, d) }, nil)

	for _, b := range withParity("W10AB00") {
		e.ParseByte(b)
	}
	sent = nil
	for _, b := range withParity("R1000") {
		e.ParseByte(b)
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 read response, got %d", len(sent))
	}
	got := stripParity(sent[0])
	if !strings.HasPrefix(got, "10AB") {
		t.Fatalf("read response = %q, want 10AB + checksum", got)
	}
}

func TestTranslateNineByNineDropsRunMiddles(t *testing.T) {
	// Light the corner cells of e2, e3, and e4: a vertical guidance line.
	var pattern [81]byte
	for _, sq := range []board.Square{board.E2, board.E3, board.E4} {
		row, col := int(sq)/8, int(sq)%8
		base := (7 - row) + 9*col
		pattern[base] = 1
		pattern[base+1] = 1
		pattern[base+9] = 1
		pattern[base+10] = 1
	}

	squares := TranslateNineByNine(pattern)
	if len(squares) != 2 {
		t.Fatalf("squares = %v, want the two endpoints only", squares)
	}
	if squares[0] != board.E2 || squares[1] != board.E4 {
		t.Fatalf("squares = %v, want [e2 e4]", squares)
	}
}

func TestEmulatorABoardDump(t *testing.T) {
	var sent [][]byte
	core := newFakeCore()
	e := NewEmulatorA(core, func(d []byte) { sent = append(sent, d) }, nil)

	if !e.ParseByte(0x40) {
		t.Fatal("handshake byte should be claimed")
	}
	if !e.ParseByte(0x42) {
		t.Fatal("board dump should be handled")
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 response, got %d", len(sent))
	}
	resp := sent[0]
	if resp[0] != 0x86 || len(resp) != 67 {
		t.Fatalf("dump header/type = %x len=%d, want 0x86 len=67", resp[0], len(resp))
	}
	declared := int(resp[1])<<7 | int(resp[2])
	if declared != 67 {
		t.Fatalf("declared length = %d, want 67", declared)
	}
	occupied := 0
	for _, b := range resp[3:] {
		if b == 0x01 {
			occupied++
		}
	}
	if occupied != 32 {
		t.Fatalf("occupied squares = %d, want 32 for the initial position", occupied)
	}
}

func TestEmulatorALEDControl(t *testing.T) {
	core := newFakeCore()
	e := NewEmulatorA(core, nil, nil)
	e.ParseByte(0x40)

	// Long frame: type 0x60, length = payload+terminator, payload mode 5.
	payload := []byte{5, 3, 1, 5, 0x00} // speed=3, mode=1, intensity=5, field hw=0 (a8)
	frame := append([]byte{0x60, byte(len(payload) + 1)}, payload...)
	frame = append(frame, 0x00)

	var handled bool
	for _, b := range frame {
		handled = e.ParseByte(b)
	}
	if !handled {
		t.Fatal("LED frame should be handled")
	}
	if len(core.ledSquare) != 1 || core.ledSquare[0] != board.A8 {
		t.Fatalf("lit squares = %v, want [a8]", core.ledSquare)
	}
}

func TestEmulatorBFENRoundTrip(t *testing.T) {
	fens := []string{
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR",
		"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR",
		"r3k2r/pppppppp/8/8/8/8/PPPPPPPP/R3K2R",
		"8/4P3/8/8/8/8/8/k6K",
	}
	for _, fen := range fens {
		if got := DecodePositionB(EncodePositionB(fen)); got != fen {
			t.Fatalf("round trip of %q = %q", fen, got)
		}
	}
}

func TestEmulatorBEnableReportingSendsFEN(t *testing.T) {
	var sent [][]byte
	core := newFakeCore()
	e := NewEmulatorB(core, func(d []byte) { sent = append(sent, d) }, nil)

	for _, b := range []byte{0x21, 0x01, 0x00} {
		e.ParseByte(b)
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sent))
	}
	frame := sent[0]
	if len(frame) != 38 || frame[0] != 0x01 || frame[1] != 0x24 {
		t.Fatalf("frame header/len = % x (%d bytes), want 01 24 / 38", frame[:2], len(frame))
	}
	var pos [32]byte
	copy(pos[:], frame[2:34])
	if got := DecodePositionB(pos); got != "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR" {
		t.Fatalf("decoded position = %q", got)
	}
	if !bytes.Equal(frame[36:], []byte{0x00, 0x00}) {
		t.Fatalf("reserved tail = % x, want 00 00", frame[36:])
	}

	// Unchanged position is suppressed on the next move notification.
	e.HandleManagerMove("e2e4")
	if len(sent) != 1 {
		t.Fatalf("unchanged FEN should be suppressed, got %d frames", len(sent))
	}
}

func TestEmulatorBBattery(t *testing.T) {
	var sent [][]byte
	core := newFakeCore()
	core.battery = 10 // half charge on the 0..20 gauge
	core.charging = true
	e := NewEmulatorB(core, func(d []byte) { sent = append(sent, d) }, nil)

	for _, b := range []byte{0x29, 0x01, 0x00} {
		e.ParseByte(b)
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 response, got %d", len(sent))
	}
	want := []byte{0x2a, 0x02, 0x80 | 50, 0x00}
	if !bytes.Equal(sent[0], want) {
		t.Fatalf("battery response = % x, want % x", sent[0], want)
	}
}

func TestEmulatorBLEDBits(t *testing.T) {
	core := newFakeCore()
	e := NewEmulatorB(core, nil, nil)

	// Rank 8 row byte with MSB set lights a8; rank 1 row with LSB lights h1.
	payload := []byte{0x80, 0, 0, 0, 0, 0, 0, 0x01}
	frame := append([]byte{0x0a, 0x08}, payload...)
	for _, b := range frame {
		e.ParseByte(b)
	}
	want := []board.Square{board.A8, board.H1}
	if len(core.ledSquare) != 2 || core.ledSquare[0] != want[0] || core.ledSquare[1] != want[1] {
		t.Fatalf("lit squares = %v, want %v", core.ledSquare, want)
	}
}

func TestManagerAutoDetectCommitsToFirstCompleteCommand(t *testing.T) {
	core := newFakeCore()
	nus := NewNUS(core, nil, nil)
	a := NewEmulatorA(core, nil, nil)
	b := NewEmulatorB(core, nil, nil)
	m := NewManager([]Emulator{nus, a, b}, nil)

	var attached Emulator
	m.OnAttach(func(e Emulator) { attached = e })

	m.Feed([]byte{0x21, 0x01, 0x00}) // an Emulator-B enable-reporting frame

	if m.Active() != b {
		t.Fatalf("active = %v, want emulator-b", m.Active())
	}
	if attached != b {
		t.Fatal("OnAttach should fire with the committed emulator")
	}

	var detached bool
	m.OnDetach(func() { detached = true })
	m.Disconnect()
	if m.Active() != nil || !detached {
		t.Fatal("Disconnect should clear the active emulator and fire OnDetach")
	}
}
