package serial

import (
	"bytes"
	"testing"
)

func TestChecksumIsMod128SumOfPriorBytes(t *testing.T) {
	b := []byte{0x10, 0x20, 0x30}
	want := byte((0x10 + 0x20 + 0x30) % 128)
	if got := Checksum(b); got != want {
		t.Fatalf("Checksum(%v) = %d, want %d", b, got, want)
	}
}

func TestBuildThenParseRoundTripsLongFrame(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	frame := Build(0xb0, 0x12, 0x34, payload, false)

	pkt, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pkt.Type != 0xb0 || pkt.Addr1 != 0x12 || pkt.Addr2 != 0x34 {
		t.Fatalf("unexpected packet header: %+v", pkt)
	}
	if !bytes.Equal(pkt.Payload, payload) {
		t.Fatalf("payload = %v, want %v", pkt.Payload, payload)
	}
}

func TestParseRejectsChecksumMismatch(t *testing.T) {
	frame := Build(0xb0, 0x00, 0x00, []byte{0x01}, false)
	frame[len(frame)-1] ^= 0xFF

	if _, err := Parse(frame); err == nil {
		t.Fatalf("expected checksum mismatch error")
	}
}

func TestParseRejectsBadDeclaredLength(t *testing.T) {
	frame := Build(0xb0, 0x00, 0x00, []byte{0x01}, false)
	frame = append(frame, 0x00) // trailing garbage byte

	if _, err := Parse(frame); err == nil {
		t.Fatalf("expected declared-length mismatch error")
	}
}
