// Package serial implements the MCU wire codec:
// packet framing/deframing, the 7-bit mod-128 checksum, and the
// variable-length event timestamp encoding. It is a pure byte-level
// layer with no notion of the bus arbiter's request/response semantics
// (that lives in internal/bus) and no notion of chess (that starts at
// internal/demux).
package serial

import "fmt"

// Packet is a deframed MCU packet. Short commands carry
// no address header; Addr1/Addr2 are zero for those.
type Packet struct {
	Type    byte
	Addr1   byte
	Addr2   byte
	Payload []byte
}

// Checksum returns the 7-bit mod-128 checksum of b: the sum of all prior bytes, mod 128.
func Checksum(b []byte) byte {
	var sum int
	for _, v := range b {
		sum += int(v)
	}
	return byte(sum % 128)
}

// Build constructs a complete outgoing frame for (typ, payload).
//
// Long frame:  [type, lenHi, lenLo, addr1, addr2, payload..., checksum]
// Short frame: [type, payload..., checksum]  (length/address omitted)
//
// lenHi/lenLo split the total frame length as two 7-bit fields, matching
// the parsing contract's declared_length reconstruction.
func Build(typ, addr1, addr2 byte, payload []byte, short bool) []byte {
	var frame []byte
	if short {
		frame = make([]byte, 0, 1+len(payload)+1)
		frame = append(frame, typ)
		frame = append(frame, payload...)
	} else {
		total := 3 + 2 + len(payload) + 1
		frame = make([]byte, 0, total)
		frame = append(frame, typ, byte((total>>7)&0x7F), byte(total&0x7F), addr1, addr2)
		frame = append(frame, payload...)
	}
	return append(frame, Checksum(frame))
}

// Parse is a convenience one-shot parse used by tests and by callers that
// already have a complete, framed long-form byte slice in hand. It does
// not implement the incremental orphan/short-frame logic of Parser; use
// Parser for a live byte stream.
func Parse(frame []byte) (Packet, error) {
	if len(frame) < 6 {
		return Packet{}, fmt.Errorf("serial: frame too short: %d bytes", len(frame))
	}
	declaredLen := int(frame[1]&0x7F)<<7 | int(frame[2]&0x7F)
	if declaredLen != len(frame) {
		return Packet{}, fmt.Errorf("serial: declared length %d != frame length %d", declaredLen, len(frame))
	}
	if Checksum(frame[:len(frame)-1]) != frame[len(frame)-1] {
		return Packet{}, fmt.Errorf("serial: checksum mismatch")
	}
	return Packet{
		Type:    frame[0],
		Addr1:   frame[3],
		Addr2:   frame[4],
		Payload: append([]byte(nil), frame[5:len(frame)-1]...),
	}, nil
}
