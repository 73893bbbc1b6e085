package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/centaurfirmware/centaurd/internal/serial"
)

// fakePort records written frames; it never produces a reply on its own,
// tests drive replies by calling Arbiter.Dispatch directly.
type fakePort struct {
	mu     sync.Mutex
	writes [][]byte
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	frame := append([]byte(nil), b...)
	p.writes = append(p.writes, frame)
	return len(b), nil
}

func (p *fakePort) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

var pingCmd = serial.Command{Name: "ping", CmdByte: 0xf0, HasResponse: true, ExpectedResponseType: 0xf0}

func TestRequestResponseRoundTrip(t *testing.T) {
	port := &fakePort{}
	a := New(port, nil)

	done := make(chan Result, 1)
	go func() { done <- a.RequestResponse(High, pingCmd, []byte{0x01}, time.Second, 0) }()

	// Give the request a moment to register its waiter, then answer it.
	time.Sleep(20 * time.Millisecond)
	a.Dispatch(serial.Packet{Type: 0xf0, Payload: []byte{0x42}})

	res := <-done
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Packet.Payload) != 1 || res.Packet.Payload[0] != 0x42 {
		t.Fatalf("unexpected payload: %v", res.Packet.Payload)
	}
}

func TestRequestResponseTimesOutAndRetries(t *testing.T) {
	port := &fakePort{}
	a := New(port, nil)

	res := a.RequestResponse(High, pingCmd, nil, 10*time.Millisecond, 2)
	if res.Err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", res.Err)
	}
	if got := port.writeCount(); got != 3 {
		t.Fatalf("expected 3 attempts written (1 + 2 retries), got %d", got)
	}
}

func TestLowPriorityPreemptedByHighPriority(t *testing.T) {
	port := &fakePort{}
	a := New(port, nil)

	lowDone := make(chan Result, 1)
	go func() { lowDone <- a.RequestResponse(Low, pingCmd, nil, time.Second, 0) }()
	time.Sleep(20 * time.Millisecond)

	highDone := make(chan Result, 1)
	go func() { highDone <- a.RequestResponse(High, pingCmd, nil, time.Second, 0) }()

	lowRes := <-lowDone
	if lowRes.Err != ErrSkipped {
		t.Fatalf("expected low-priority waiter to be skipped, got %v", lowRes.Err)
	}

	// The high-priority write must happen after the low-priority waiter
	// already resolved to skipped.
	a.Dispatch(serial.Packet{Type: 0xf0, Payload: []byte{0x01}})
	highRes := <-highDone
	if highRes.Err != nil {
		t.Fatalf("unexpected high-priority error: %v", highRes.Err)
	}
}

func TestLowPriorityRejectedWhenBusBusy(t *testing.T) {
	port := &fakePort{}
	a := New(port, nil)

	highDone := make(chan Result, 1)
	go func() { highDone <- a.RequestResponse(High, pingCmd, nil, time.Second, 0) }()
	time.Sleep(20 * time.Millisecond)

	lowRes := a.RequestResponse(Low, pingCmd, nil, time.Second, 0)
	if lowRes.Err != ErrSkipped {
		t.Fatalf("expected low-priority request to be rejected while bus busy, got %v", lowRes.Err)
	}

	a.Dispatch(serial.Packet{Type: 0xf0, Payload: []byte{0x01}})
	<-highDone
}

func TestFireAndForgetReturnsImmediately(t *testing.T) {
	port := &fakePort{}
	a := New(port, nil)

	cmd := serial.Command{Name: "beep", CmdByte: 0xb1}
	res := a.RequestResponse(High, cmd, []byte{0x4c, 0x08}, time.Second, 0)
	if res.Err != nil {
		t.Fatalf("unexpected error for fire-and-forget command: %v", res.Err)
	}
	if port.writeCount() != 1 {
		t.Fatalf("expected exactly one write, got %d", port.writeCount())
	}
}

func TestUnsolicitedListenerFiresWhenNoRequestPending(t *testing.T) {
	port := &fakePort{}
	a := New(port, nil)

	var got serial.Packet
	gotCh := make(chan struct{}, 1)
	a.SetListener(func(pkt serial.Packet) {
		got = pkt
		gotCh <- struct{}{}
	})

	a.Dispatch(serial.Packet{Type: 0x8e, Payload: []byte{0x40, 0x0c}})
	select {
	case <-gotCh:
	case <-time.After(time.Second):
		t.Fatal("listener was not invoked")
	}
	if got.Type != 0x8e {
		t.Fatalf("unexpected packet delivered to listener: %+v", got)
	}
}
