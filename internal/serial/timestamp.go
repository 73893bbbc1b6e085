package serial

import "fmt"

// Timestamp is a decoded variable-length event timestamp The chain is decoded literally: Sec is only present when
// Subsec == 0xFF, Min only when Sec == 0xFF, Hour only when Min == 0xFF.
type Timestamp struct {
	Subsec byte
	Sec    byte
	Min    byte
	Hour   byte

	hasSec, hasMin, hasHour bool
}

// DecodeTimestamp consumes a timestamp prefix from buf and reports how many
// bytes it used, so the caller can continue parsing the remainder of the
// event payload.
func DecodeTimestamp(buf []byte) (Timestamp, int, error) {
	if len(buf) == 0 {
		return Timestamp{}, 0, fmt.Errorf("serial: empty timestamp buffer")
	}

	var t Timestamp
	t.Subsec = buf[0]
	n := 1

	if t.Subsec == 0xFF && len(buf) > n {
		t.Sec = buf[n]
		t.hasSec = true
		n++
		if t.Sec == 0xFF && len(buf) > n {
			t.Min = buf[n]
			t.hasMin = true
			n++
			if t.Min == 0xFF && len(buf) > n {
				t.Hour = buf[n]
				t.hasHour = true
				n++
			}
		}
	}

	return t, n, nil
}

// Encode re-serializes t to the same byte sequence DecodeTimestamp would
// have consumed to produce it.
func (t Timestamp) Encode() []byte {
	out := []byte{t.Subsec}
	if !t.hasSec {
		return out
	}
	out = append(out, t.Sec)
	if !t.hasMin {
		return out
	}
	out = append(out, t.Min)
	if !t.hasHour {
		return out
	}
	return append(out, t.Hour)
}

// ElapsedSeconds interprets the decoded fields as seconds-in-game. Only
// the most significant present unit carries a real value; every lower
// unit in the chain up to it is the 0xFF continuation sentinel rather
// than meaningful data, per the saturation rule in DecodeTimestamp.
func (t Timestamp) ElapsedSeconds() float64 {
	switch {
	case t.hasHour:
		return float64(t.Hour) * 3600
	case t.hasMin:
		return float64(t.Min) * 60
	case t.hasSec:
		return float64(t.Sec)
	default:
		return float64(t.Subsec) / 255.0
	}
}
