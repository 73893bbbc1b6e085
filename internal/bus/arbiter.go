// Package bus implements the half-duplex serial bus arbiter: the
// single-writer owner of the serial port that serializes
// command/response round-trips and arbitrates between a high-priority
// queue (normal commands) and a low-priority queue (background polling
// the caller is willing to have pre-empted).
package bus

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/centaurfirmware/centaurd/internal/logging"
	"github.com/centaurfirmware/centaurd/internal/serial"
)

// Priority selects which of the two request classes a caller belongs to.
type Priority int

const (
	High Priority = iota
	Low
)

// ErrTimeout is returned when a request's expected response does not
// arrive within its retry budget.
var ErrTimeout = errors.New("bus: timeout")

// ErrSkipped is returned to a low-priority waiter pre-empted by a
// higher-priority request, or when the bus was already busy and the
// low-priority request was never even accepted.
var ErrSkipped = errors.New("bus: skipped")

// Result is the outcome of a RequestResponse call.
type Result struct {
	Packet serial.Packet
	Err    error
}

type pendingWaiter struct {
	expectedType byte
	ch           chan serial.Packet
}

type lowWaiter struct {
	cancel chan struct{}
}

type rawWaiter struct {
	n   int
	buf []byte
	ch  chan []byte
}

// Arbiter is the single-writer coordinator for the serial port. At most
// one request is outstanding at any time.
type Arbiter struct {
	slot chan struct{} // capacity-1 ticket: holder owns the bus

	writeMu sync.Mutex
	port    io.Writer

	mu         sync.Mutex
	addr1      byte
	addr2      byte
	activeLow  *lowWaiter
	pending    *pendingWaiter
	rawPending *rawWaiter
	listener   func(serial.Packet)

	log logging.Logger
}

// New creates an Arbiter writing frames to port.
func New(port io.Writer, log logging.Logger) *Arbiter {
	a := &Arbiter{slot: make(chan struct{}, 1), port: port, log: log}
	a.slot <- struct{}{}
	return a
}

// SetAddress records the learned MCU address, used to
// populate addr1/addr2 on every subsequent long-form frame.
func (a *Arbiter) SetAddress(addr1, addr2 byte) {
	a.mu.Lock()
	a.addr1, a.addr2 = addr1, addr2
	a.mu.Unlock()
}

// SetListener registers the callback invoked with packets that arrive
// while no request is outstanding.
// Registration follows a single current-holder convention: a new
// registration silently replaces the old one.
func (a *Arbiter) SetListener(fn func(serial.Packet)) {
	a.mu.Lock()
	a.listener = fn
	a.mu.Unlock()
}

// Dispatch delivers one fully-parsed packet from the serial-reader
// thread to the arbiter. It completes a matching pending waiter, or
// forwards the packet to the unsolicited listener if none is pending.
func (a *Arbiter) Dispatch(pkt serial.Packet) {
	a.mu.Lock()
	pending := a.pending
	if pending != nil && pending.expectedType == pkt.Type {
		a.pending = nil
		a.mu.Unlock()
		pending.ch <- pkt
		return
	}
	listener := a.listener
	a.mu.Unlock()

	if pending == nil && listener != nil {
		listener(pkt)
	}
}

// InRawCapture reports whether a raw-byte waiter is active; the
// serial-reader thread consults this to decide whether incoming bytes
// should bypass the packet parser.
func (a *Arbiter) InRawCapture() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rawPending != nil
}

// FeedRaw delivers one raw byte while a raw-byte waiter is active.
func (a *Arbiter) FeedRaw(b byte) {
	a.mu.Lock()
	rw := a.rawPending
	if rw == nil {
		a.mu.Unlock()
		return
	}
	rw.buf = append(rw.buf, b)
	if len(rw.buf) < rw.n {
		a.mu.Unlock()
		return
	}
	a.rawPending = nil
	a.mu.Unlock()
	rw.ch <- rw.buf
}

// RequestRaw sends a vendor command whose reply carries exactly n raw
// bytes with no checksum framing. It always behaves as a high-priority
// request: raw exchanges are rare, deliberate, and must not be skipped.
func (a *Arbiter) RequestRaw(send []byte, n int, timeout time.Duration) ([]byte, error) {
	select {
	case <-a.slot:
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
	defer func() { a.slot <- struct{}{} }()

	rw := &rawWaiter{n: n, ch: make(chan []byte, 1)}
	a.mu.Lock()
	a.rawPending = rw
	a.mu.Unlock()

	if err := a.write(send); err != nil {
		a.mu.Lock()
		a.rawPending = nil
		a.mu.Unlock()
		return nil, err
	}

	select {
	case b := <-rw.ch:
		return b, nil
	case <-time.After(timeout):
		a.mu.Lock()
		a.rawPending = nil
		a.mu.Unlock()
		return nil, ErrTimeout
	}
}

func (a *Arbiter) write(frame []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_, err := a.port.Write(frame)
	return err
}

const retryDelay = 100 * time.Millisecond

// RequestResponse performs one command/response round trip. High-priority
// requests pre-empt any outstanding low-priority waiter before acquiring
// the bus; low-priority requests are accepted only when the bus is
// immediately free and resolve to ErrSkipped the instant a high-priority
// request shows up.
func (a *Arbiter) RequestResponse(priority Priority, cmd serial.Command, payload []byte, timeout time.Duration, retries int) Result {
	if priority == Low {
		select {
		case <-a.slot:
		default:
			return Result{Err: ErrSkipped}
		}
		lw := &lowWaiter{cancel: make(chan struct{})}
		a.mu.Lock()
		a.activeLow = lw
		a.mu.Unlock()
		defer func() {
			a.mu.Lock()
			a.activeLow = nil
			a.mu.Unlock()
			a.slot <- struct{}{}
		}()
		return a.doRequest(cmd, payload, timeout, retries, lw.cancel)
	}

	a.preemptLow()

	select {
	case <-a.slot:
	case <-time.After(timeout):
		return Result{Err: ErrTimeout}
	}
	defer func() { a.slot <- struct{}{} }()
	return a.doRequest(cmd, payload, timeout, retries, nil)
}

// preemptLow cancels the low-priority waiter before this
// call returns, so it resolves to "skipped" strictly before the
// high-priority frame is written.
func (a *Arbiter) preemptLow() {
	a.mu.Lock()
	lw := a.activeLow
	a.mu.Unlock()
	if lw == nil {
		return
	}
	select {
	case <-lw.cancel:
	default:
		close(lw.cancel)
	}
}

func (a *Arbiter) doRequest(cmd serial.Command, payload []byte, timeout time.Duration, retries int, cancel <-chan struct{}) Result {
	if payload == nil {
		payload = cmd.DefaultPayload
	}

	a.mu.Lock()
	addr1, addr2 := a.addr1, a.addr2
	a.mu.Unlock()

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay)
		}
		if cancelled(cancel) {
			return Result{Err: ErrSkipped}
		}

		frame := serial.Build(cmd.CmdByte, addr1, addr2, payload, cmd.IsShort)

		if !cmd.HasResponse {
			if err := a.write(frame); err != nil {
				return Result{Err: err}
			}
			return Result{}
		}

		ch := make(chan serial.Packet, 1)
		a.mu.Lock()
		a.pending = &pendingWaiter{expectedType: cmd.ExpectedResponseType, ch: ch}
		a.mu.Unlock()

		if err := a.write(frame); err != nil {
			a.mu.Lock()
			a.pending = nil
			a.mu.Unlock()
			return Result{Err: err}
		}

		select {
		case pkt := <-ch:
			return Result{Packet: pkt}
		case <-cancelChan(cancel):
			a.mu.Lock()
			a.pending = nil
			a.mu.Unlock()
			return Result{Err: ErrSkipped}
		case <-time.After(timeout):
			a.mu.Lock()
			a.pending = nil
			a.mu.Unlock()
			if a.log != nil {
				a.log.Infof("bus: timeout waiting for response type 0x%02x (attempt %d/%d)", cmd.ExpectedResponseType, attempt+1, retries+1)
			}
			// fall through to retry
		}
	}
	return Result{Err: ErrTimeout}
}

func cancelled(cancel <-chan struct{}) bool {
	if cancel == nil {
		return false
	}
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}

var closedNever = make(chan struct{})

func cancelChan(cancel <-chan struct{}) <-chan struct{} {
	if cancel == nil {
		return closedNever
	}
	return cancel
}
