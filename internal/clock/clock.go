// Package clock implements the per-side chess clock: integer-second
// countdowns with pause/resume/switch and flag notification.
package clock

import (
	"sync"
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
)

// Side mirrors board.Color but keeps this package free of chess-engine
// concerns beyond the color tag itself; "none" has no board.Color
// equivalent so it is modeled separately.
type Side int

const (
	White Side = iota
	Black
	None
)

func fromBoardColor(c board.Color) Side {
	if c == board.Black {
		return Black
	}
	return White
}

// Clock is a turn-aware countdown timer. When both sides' initial time
// control is zero, it never decrements and acts purely as a turn
// indicator.
// A Fischer increment, when configured, is applied on every SwitchTurn
// rather than on the tick.
type Clock struct {
	mu sync.Mutex

	whiteS, blackS int
	incrementS     int
	active         Side
	running        bool
	untimed        bool

	ticker *time.Ticker
	stop   chan struct{}

	onFlag func(Side)
	onTick func(whiteS, blackS int)
}

// New creates a Clock with the given starting times, in seconds. When
// both starting times are zero the clock is considered untimed: it acts
// purely as a turn indicator and Tick never decrements or flags.
func New(whiteS, blackS, incrementS int) *Clock {
	return &Clock{
		whiteS: whiteS, blackS: blackS, incrementS: incrementS,
		active:  None,
		untimed: whiteS == 0 && blackS == 0,
	}
}

// OnFlag registers the callback fired when a side's time reaches zero.
func (c *Clock) OnFlag(fn func(Side)) { c.onFlag = fn }

// OnTick registers a callback fired on every 1-second decrement, useful
// for display updates.
func (c *Clock) OnTick(fn func(whiteS, blackS int)) { c.onTick = fn }

// SetTimes directly sets both sides' remaining time, without affecting
// which side is active or whether the clock is running.
func (c *Clock) SetTimes(whiteS, blackS int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.whiteS, c.blackS = whiteS, blackS
}

// Times returns the current remaining time for both sides.
func (c *Clock) Times() (whiteS, blackS int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.whiteS, c.blackS
}

// SetActive sets which side is on the clock without starting ticking.
func (c *Clock) SetActive(side Side) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = side
}

// SwitchTurn swaps the active side atomically with no decrement, and
// applies the Fischer increment to the side that just moved (the side
// that was active before the switch).
func (c *Clock) SwitchTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.active {
	case White:
		c.whiteS += c.incrementS
		c.active = Black
	case Black:
		c.blackS += c.incrementS
		c.active = White
	}
}

// Start begins ticking once per second, decrementing the active side.
// Calling Start while already running is a no-op.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.ticker = time.NewTicker(time.Second)
	c.stop = make(chan struct{})
	ticker := c.ticker
	stop := c.stop
	c.mu.Unlock()

	go c.run(ticker, stop)
}

func (c *Clock) run(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			ticker.Stop()
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Clock) tick() {
	c.mu.Lock()
	if c.untimed || c.active == None {
		c.mu.Unlock()
		return
	}
	switch c.active {
	case White:
		if c.whiteS > 0 {
			c.whiteS--
		}
	case Black:
		if c.blackS > 0 {
			c.blackS--
		}
	}
	whiteS, blackS, active := c.whiteS, c.blackS, c.active
	var flagged Side = None
	if active == White && whiteS == 0 {
		flagged = White
	} else if active == Black && blackS == 0 {
		flagged = Black
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(whiteS, blackS)
	}
	if flagged != None && c.onFlag != nil {
		c.onFlag(flagged)
	}
}

// Pause stops decrementing without losing the active side.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	if c.stop != nil {
		select {
		case <-c.stop:
		default:
			close(c.stop)
		}
	}
}

// Resume restarts decrementing after a Pause.
func (c *Clock) Resume() {
	c.Start()
}

// Reset restores both sides to initial and stops the clock. A second
// consecutive Reset with the same arguments and no intervening activity
// is a documented no-op beyond the first call;
// here that is simply restoring the same state twice, which is safe by
// construction since Reset is idempotent on its inputs.
func (c *Clock) Reset(whiteS, blackS int) {
	c.Pause()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.whiteS, c.blackS = whiteS, blackS
	c.active = None
}

// ActiveColor reports the side currently on the clock as a board.Color,
// used by components that need to cross-reference the game's side to
// move. Returns ok=false if no side is active.
func (c *Clock) ActiveColor() (board.Color, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.active {
	case White:
		return board.White, true
	case Black:
		return board.Black, true
	default:
		return board.NoColor, false
	}
}

// SetActiveColor sets the active side from a board.Color.
func (c *Clock) SetActiveColor(col board.Color) {
	c.SetActive(fromBoardColor(col))
}
