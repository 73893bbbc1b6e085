package display

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
)

type captureSink struct {
	mu     sync.Mutex
	frames []image.Image
	closed bool
}

func (s *captureSink) Push(img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, img)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestRenderProducesPanelSizedFrame(t *testing.T) {
	r, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	frame := r.Render(State{
		FEN:        board.NewPosition().FEN(),
		WhiteClock: 300, BlackClock: 300,
		Battery: 15,
		Status:  "white to move",
	})

	if got := frame.Bounds(); got.Dx() != Width || got.Dy() != Height {
		t.Fatalf("frame bounds = %v, want %dx%d", got, Width, Height)
	}

	// The starting position must darken at least some board pixels.
	dark := 0
	for y := 0; y < Height; y++ {
		for x := 0; x < 128; x++ {
			if frame.GrayAt(x, y).Y < 0x80 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Fatal("expected occupied squares to darken board pixels")
	}
}

func TestWorkerRendersPublishedStates(t *testing.T) {
	r, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	sink := &captureSink{}
	w := NewWorker(r, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	w.Publish(State{FEN: board.NewPosition().FEN()})

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sink.count() == 0 {
		t.Fatal("worker never rendered the published state")
	}

	cancel()
	<-done
	if !sink.closed {
		t.Fatal("worker should close the sink on shutdown")
	}
}
