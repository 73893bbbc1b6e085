package serial

import (
	"bytes"
	"testing"
)

func feedAll(t *testing.T, p *Parser, frame []byte) (*Packet, bool) {
	t.Helper()
	var pkt *Packet
	var ok bool
	for _, b := range frame {
		pkt, ok = p.Feed(b)
	}
	return pkt, ok
}

func TestParserAssemblesLongFrameByteByByte(t *testing.T) {
	p := NewParser(DefaultKnownResponseTypes())
	frame := Build(CmdGetState.ExpectedResponseType, 0x01, 0x02, []byte{0xaa, 0xbb}, false)

	pkt, ok := feedAll(t, p, frame)
	if !ok {
		t.Fatalf("expected completed packet")
	}
	if pkt.Type != CmdGetState.ExpectedResponseType || pkt.Addr1 != 0x01 || pkt.Addr2 != 0x02 {
		t.Fatalf("unexpected header: %+v", pkt)
	}
	if !bytes.Equal(pkt.Payload, []byte{0xaa, 0xbb}) {
		t.Fatalf("payload = %v", pkt.Payload)
	}
}

func TestParserDiscardsFrameOnChecksumMismatch(t *testing.T) {
	p := NewParser(DefaultKnownResponseTypes())
	frame := Build(CmdGetState.ExpectedResponseType, 0x01, 0x02, []byte{0xaa}, false)
	frame[len(frame)-1] ^= 0x01

	_, ok := feedAll(t, p, frame)
	if ok {
		t.Fatalf("expected parse failure on bad checksum")
	}
}

func TestParserShortResponseRecognizedByTypeAndChecksum(t *testing.T) {
	p := NewParser(DefaultKnownResponseTypes())
	p.RegisterShortResponse(0xb1, 4)

	payload := []byte{0x05, 0x06}
	frame := []byte{0xb1}
	frame = append(frame, payload...)
	frame = append(frame, Checksum(frame))

	pkt, ok := feedAll(t, p, frame)
	if !ok {
		t.Fatalf("expected short frame to complete")
	}
	if pkt.Type != 0xb1 || !bytes.Equal(pkt.Payload, payload) {
		t.Fatalf("unexpected short packet: %+v", pkt)
	}
}

func TestParserTreatsKnownResponseByteMidFrameAsOrphan(t *testing.T) {
	p := NewParser(DefaultKnownResponseTypes())

	var orphaned []byte
	p.OnOrphan(func(discarded []byte) { orphaned = discarded })

	// Feed a partial, never-completing frame, then a known response-type
	// byte; with no learned address yet, alignment is assumed and the
	// stale bytes should be flushed as orphaned data.
	partial := []byte{0x11, 0x00, 0x20, 0x99}
	for _, b := range partial {
		p.Feed(b)
	}
	p.Feed(CmdGetState.ExpectedResponseType)

	if orphaned == nil {
		t.Fatalf("expected orphan callback to fire")
	}
	if len(orphaned) != 4 {
		t.Fatalf("expected 4 trailing orphaned bytes, got %d", len(orphaned))
	}
}

func TestParserRespectsLearnedAddressForOrphanDetection(t *testing.T) {
	p := NewParser(DefaultKnownResponseTypes())
	p.SetLearnedAddress(0xAB, 0xCD)

	var orphanFired bool
	p.OnOrphan(func([]byte) { orphanFired = true })

	// A partial frame whose address bytes DO match the learned address:
	// a known-type byte arriving here should trigger orphan handling.
	for _, b := range []byte{0x11, 0x00, 0x20, 0xAB, 0xCD} {
		p.Feed(b)
	}
	p.Feed(CmdGetState.ExpectedResponseType)
	if !orphanFired {
		t.Fatalf("expected orphan detection when address aligns")
	}
}
