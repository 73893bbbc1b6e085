// Package demux implements the event demultiplexer: it turns packets
// delivered by the bus arbiter's unsolicited
// listener into the typed key/piece/battery/charger events the rest of
// the core consumes, and runs the inactivity watchdog.
package demux

import (
	"context"
	"time"

	"github.com/centaurfirmware/centaurd/internal/boardctl"
	"github.com/centaurfirmware/centaurd/internal/serial"
)

// Key identifies one of the six front-panel buttons.
type Key int

const (
	KeyBack Key = iota
	KeyTick
	KeyUp
	KeyDown
	KeyHelp
	KeyPlay
)

// keyCodes maps the 7-bit key code carried by the keys response to a
// Key.
var keyCodes = map[byte]Key{
	0x01: KeyBack,
	0x02: KeyTick,
	0x04: KeyUp,
	0x08: KeyDown,
	0x10: KeyHelp,
	0x20: KeyPlay,
}

// EventKind enumerates the semantic events the demultiplexer emits.
type EventKind int

const (
	EvKeyDown EventKind = iota
	EvKeyUp
	EvLongPress
	EvLift
	EvPlace
	EvBattery
	EvCharger
	EvInactivityCountdown
)

// Event is the typed, demultiplexed signal passed to the event queue
// feeding the game thread.
type Event struct {
	Kind    EventKind
	Key     Key
	Square  byte // chess-index square for EvLift/EvPlace
	Elapsed float64

	Battery          int
	ChargerConnected bool

	RemainingS int // for EvInactivityCountdown
}

const longPressThreshold = 1000 * time.Millisecond
const kingLiftResignThreshold = 3 * time.Second // unused here; recognizer owns it

// longPressTracker follows one key from down to up, firing a single
// synthetic long-press event if it is still held past the threshold.
type longPressTracker struct {
	downAt      time.Time
	longFired   bool
	cancelTimer func()
}

// Demux classifies packets and drives the inactivity watchdog. It has no
// notion of chess; its output events are consumed by internal/recognizer
// and internal/clock-adjacent shutdown logic.
type Demux struct {
	emit func(Event)

	pressed map[Key]*longPressTracker

	inactivityTimeout time.Duration
	lastActivity      time.Time
	chargerSuspended  bool
}

// New builds a Demux that calls emit for every event it produces. emit
// runs on whatever goroutine called HandlePacket or the watchdog ticker;
// callers that need game-thread affinity should have emit enqueue onto
// their own channel rather than act in-line.
func New(emit func(Event), inactivityTimeout time.Duration) *Demux {
	return &Demux{
		emit:              emit,
		pressed:           make(map[Key]*longPressTracker),
		inactivityTimeout: inactivityTimeout,
		lastActivity:      time.Now(),
	}
}

// Known response type bytes this demultiplexer classifies.
const (
	typeFieldEvents  = 0x85
	typePieceEvent   = 0x8e
	typeKeys         = 0xb1
	typeBatteryState = 0xb5
)

// HandlePacket classifies one packet delivered by the bus arbiter's
// unsolicited listener or by a request's direct response, and
// emits zero or more typed events.
func (d *Demux) HandlePacket(pkt serial.Packet) {
	switch pkt.Type {
	case typeKeys:
		d.handleKeys(pkt.Payload, time.Now())
	case typeFieldEvents, typePieceEvent:
		d.handlePieceEvents(pkt.Payload)
	case typeBatteryState:
		d.handleBattery(pkt.Payload)
	}
}

func (d *Demux) handleKeys(payload []byte, now time.Time) {
	if len(payload) == 0 {
		return
	}
	mask := payload[0]
	d.noteActivity(now)

	seen := make(map[Key]bool, 6)
	for code, key := range keyCodes {
		if mask&code == 0 {
			continue
		}
		seen[key] = true
		if _, down := d.pressed[key]; down {
			continue
		}
		tr := &longPressTracker{downAt: now}
		d.pressed[key] = tr
		d.emit(Event{Kind: EvKeyDown, Key: key})
	}

	for key, tr := range d.pressed {
		if seen[key] {
			if !tr.longFired && now.Sub(tr.downAt) >= longPressThreshold {
				tr.longFired = true
				d.emit(Event{Kind: EvLongPress, Key: key})
			}
			continue
		}
		delete(d.pressed, key)
		d.emit(Event{Kind: EvKeyUp, Key: key})
	}
}

// PollLongPress re-checks keys still held down for the long-press
// threshold between packet arrivals, so a LONG_PLAY fires even if the
// board stops sending key packets while PLAY stays depressed. Callers
// drive this from the same ticker that feeds the inactivity watchdog.
func (d *Demux) PollLongPress(now time.Time) {
	for key, tr := range d.pressed {
		if !tr.longFired && now.Sub(tr.downAt) >= longPressThreshold {
			tr.longFired = true
			d.emit(Event{Kind: EvLongPress, Key: key})
		}
	}
}

func (d *Demux) handlePieceEvents(payload []byte) {
	d.noteActivity(time.Now())

	i := 0
	var elapsed float64
	if len(payload) > 0 && payload[0] != 0x40 && payload[0] != 0x41 {
		ts, n, err := serial.DecodeTimestamp(payload)
		if err == nil {
			elapsed = ts.ElapsedSeconds()
			i = n
		}
	}

	for i < len(payload) {
		marker := payload[i]
		if marker != 0x40 && marker != 0x41 {
			i++
			continue
		}
		if i+1 >= len(payload) {
			break
		}
		hw := payload[i+1]
		sq := boardctl.HardwareToChess(hw)
		kind := EvLift
		if marker == 0x41 {
			kind = EvPlace
		}
		d.emit(Event{Kind: kind, Square: byte(sq), Elapsed: elapsed})
		i += 2
	}
}

func (d *Demux) handleBattery(payload []byte) {
	if len(payload) < 2 {
		return
	}
	level := int(payload[0])
	if level > 20 {
		level = 20
	}
	charger := payload[1] != 0

	if charger && !d.chargerSuspended {
		d.chargerSuspended = true
	} else if !charger && d.chargerSuspended {
		d.chargerSuspended = false
		d.noteActivity(time.Now())
	}

	d.emit(Event{Kind: EvBattery, Battery: level, ChargerConnected: charger})
}

func (d *Demux) noteActivity(now time.Time) {
	d.lastActivity = now
}

// RunWatchdog drives the inactivity countdown: once
// remaining time drops to 120s or below it emits EvInactivityCountdown
// on every tick, and at 0 it emits a synthetic long-press of PLAY
//. Charger attach suspends
// the timer entirely. Call on its own goroutine; it returns when ctx is
// cancelled.
func (d *Demux) RunWatchdog(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	shutdownFired := false
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.PollLongPress(now)
			if d.chargerSuspended {
				continue
			}
			remaining := d.inactivityTimeout - now.Sub(d.lastActivity)
			if remaining <= 0 {
				if !shutdownFired {
					shutdownFired = true
					d.emit(Event{Kind: EvLongPress, Key: KeyPlay})
				}
				continue
			}
			shutdownFired = false
			if remaining <= 120*time.Second {
				d.emit(Event{Kind: EvInactivityCountdown, RemainingS: int(remaining / time.Second)})
			}
		}
	}
}
