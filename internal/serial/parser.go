package serial

// Parser is the incremental byte-stream deframer. Feed one byte at a
// time; it returns a completed
// Packet once the rolling buffer matches a known frame shape.
type Parser struct {
	buf []byte

	knownResponseTypes map[byte]bool
	shortFrameLengths  map[byte]int

	hasLearnedAddr         bool
	learnedAddr1, learnedAddr2 byte

	onOrphan func(discarded []byte)
}

// DefaultKnownResponseTypes lists the response type bytes the codec
// recognizes as potential frame starts, for the orphan-detection rule.
func DefaultKnownResponseTypes() []byte {
	return []byte{
		CmdGetFieldEvents.ExpectedResponseType,
		CmdGetButtons.ExpectedResponseType,
		CmdGetState.ExpectedResponseType,
		CmdSleep.ExpectedResponseType,
		CmdGetBatteryState.ExpectedResponseType,
		DiscoveryProbeType,
	}
}

// NewParser builds a Parser that treats each byte in knownTypes as a
// potential frame-start marker for orphan detection.
func NewParser(knownTypes []byte) *Parser {
	known := make(map[byte]bool, len(knownTypes))
	for _, t := range knownTypes {
		known[t] = true
	}
	return &Parser{
		knownResponseTypes: known,
		shortFrameLengths:  make(map[byte]int),
	}
}

// RegisterShortResponse tells the parser that responses starting with
// typ are short frames
// of exactly totalLen bytes including the trailing checksum.
func (p *Parser) RegisterShortResponse(typ byte, totalLen int) {
	p.shortFrameLengths[typ] = totalLen
}

// SetLearnedAddress records the MCU address learned during discovery
//, used to judge whether in-flight buffer bytes "align" with it.
func (p *Parser) SetLearnedAddress(addr1, addr2 byte) {
	p.hasLearnedAddr = true
	p.learnedAddr1 = addr1
	p.learnedAddr2 = addr2
}

// OnOrphan registers a callback invoked with discarded bytes whenever
// the orphan-detection rule fires.
func (p *Parser) OnOrphan(fn func(discarded []byte)) {
	p.onOrphan = fn
}

// Feed appends one byte to the rolling buffer and reports a completed
// packet, if the buffer now matches a known frame shape. ok is false
// with a nil packet both while a frame is still in flight and after a
// checksum mismatch discards it.
func (p *Parser) Feed(b byte) (pkt *Packet, ok bool) {
	if len(p.buf) > 0 && p.knownResponseTypes[b] && p.addrAlignedLocked() {
		p.discardAsOrphanLocked()
	}
	p.buf = append(p.buf, b)

	if flen, isShort := p.shortFrameLengths[p.buf[0]]; isShort {
		if len(p.buf) < flen {
			return nil, false
		}
		defer func() { p.buf = nil }()
		if Checksum(p.buf[:flen-1]) != p.buf[flen-1] {
			return nil, false
		}
		return &Packet{Type: p.buf[0], Payload: append([]byte(nil), p.buf[1:flen-1]...)}, true
	}

	if len(p.buf) < 3 {
		return nil, false
	}
	declaredLen := int(p.buf[1]&0x7F)<<7 | int(p.buf[2]&0x7F)
	if len(p.buf) < declaredLen {
		return nil, false
	}
	defer func() { p.buf = nil }()
	if len(p.buf) != declaredLen || declaredLen < 6 {
		return nil, false
	}
	if Checksum(p.buf[:declaredLen-1]) != p.buf[declaredLen-1] {
		return nil, false
	}
	return &Packet{
		Type:    p.buf[0],
		Addr1:   p.buf[3],
		Addr2:   p.buf[4],
		Payload: append([]byte(nil), p.buf[5:declaredLen-1]...),
	}, true
}

// discardAsOrphanLocked abandons the in-flight frame, with only its
// last 4 bytes surfaced to
// the orphan callback for diagnostics.
func (p *Parser) discardAsOrphanLocked() {
	tail := p.buf
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	if p.onOrphan != nil {
		p.onOrphan(append([]byte(nil), tail...))
	}
	p.buf = nil
}

// addrAlignedLocked reports whether the buffer's address field (if it
// has grown far enough to have one) matches the learned MCU address.
// Before an address is learned, or before the buffer reaches that
// field, alignment is assumed so discovery traffic isn't spuriously
// treated as orphaned.
func (p *Parser) addrAlignedLocked() bool {
	if !p.hasLearnedAddr || len(p.buf) < 5 {
		return true
	}
	return p.buf[3] == p.learnedAddr1 && p.buf[4] == p.learnedAddr2
}

// Reset clears any in-flight buffer, discarding it silently (used when
// the bus arbiter switches into raw-byte capture mode).
func (p *Parser) Reset() {
	p.buf = nil
}
