package demux

import (
	"testing"
	"time"

	"github.com/centaurfirmware/centaurd/internal/serial"
)

func TestKeyDownThenUp(t *testing.T) {
	var events []Event
	d := New(func(e Event) { events = append(events, e) }, time.Minute)

	d.handleKeys([]byte{0x02}, time.Now()) // TICK down
	d.handleKeys([]byte{0x00}, time.Now()) // TICK up

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Kind != EvKeyDown || events[0].Key != KeyTick {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Kind != EvKeyUp || events[1].Key != KeyTick {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}

func TestLongPressFiresOnce(t *testing.T) {
	var events []Event
	d := New(func(e Event) { events = append(events, e) }, time.Minute)

	start := time.Now()
	d.handleKeys([]byte{0x20}, start) // PLAY down
	d.handleKeys([]byte{0x20}, start.Add(1100*time.Millisecond))
	d.handleKeys([]byte{0x20}, start.Add(1200*time.Millisecond))
	d.handleKeys([]byte{0x00}, start.Add(1300*time.Millisecond))

	var longCount int
	for _, e := range events {
		if e.Kind == EvLongPress {
			longCount++
		}
	}
	if longCount != 1 {
		t.Fatalf("expected exactly one LongPress event, got %d", longCount)
	}
}

func TestPieceLiftPlaceDecodesHardwareSquares(t *testing.T) {
	var events []Event
	d := New(func(e Event) { events = append(events, e) }, time.Minute)

	// Hardware square 0 is a8; a lift there should decode to chess square
	// a8 (56) via boardctl.HardwareToChess.
	d.handlePieceEvents([]byte{0x40, 0x00, 0x41, 0x3f})

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != EvLift || events[0].Square != 56 {
		t.Fatalf("unexpected lift event: %+v", events[0])
	}
	if events[1].Kind != EvPlace {
		t.Fatalf("unexpected place event kind: %+v", events[1])
	}
}

func TestPieceEventWithTimestampPrefix(t *testing.T) {
	var events []Event
	d := New(func(e Event) { events = append(events, e) }, time.Minute)

	ts := serial.Timestamp{Subsec: 128}
	payload := append(ts.Encode(), 0x40, 0x00)
	d.handlePieceEvents(payload)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Elapsed <= 0 {
		t.Fatalf("expected nonzero elapsed seconds, got %v", events[0].Elapsed)
	}
}

func TestBatteryAndCharger(t *testing.T) {
	var events []Event
	d := New(func(e Event) { events = append(events, e) }, time.Minute)

	d.handleBattery([]byte{15, 0x01})
	if len(events) != 1 || events[0].Kind != EvBattery || events[0].Battery != 15 || !events[0].ChargerConnected {
		t.Fatalf("unexpected battery event: %+v", events)
	}
}
