package players

import (
	"testing"
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
)

type stubSession struct {
	moves  chan string
	sent   []string
	closed bool
}

func newStubSession() *stubSession {
	return &stubSession{moves: make(chan string, 4)}
}

func (s *stubSession) Moves() <-chan string { return s.moves }
func (s *stubSession) Send(uci string) error {
	s.sent = append(s.sent, uci)
	return nil
}
func (s *stubSession) Close() error {
	s.closed = true
	return nil
}

func TestHumanPlayerIsInert(t *testing.T) {
	p := NewHuman("")
	if p.Kind() != Human {
		t.Fatalf("kind = %v, want Human", p.Kind())
	}
	p.RequestMove(board.NewPosition(), time.Second)
	p.CancelMove()
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Stop()
}

func TestOnlinePlayerStreamsMoves(t *testing.T) {
	session := newStubSession()

	got := make(chan string, 1)
	p := NewOnline("", board.Black, session, func(color board.Color, uci string) {
		if color != board.Black {
			t.Errorf("color = %v, want Black", color)
		}
		got <- uci
	}, nil)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	session.moves <- "e7e5"
	select {
	case uci := <-got:
		if uci != "e7e5" {
			t.Fatalf("uci = %q, want e7e5", uci)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for streamed move")
	}
}

func TestManagerRoutesToSideToMove(t *testing.T) {
	white := NewHuman("w")
	black := NewHuman("b")
	m := NewManager(white, black, nil)

	pos := board.NewPosition()
	if m.Current(pos) != white {
		t.Fatal("white to move should select the white player")
	}

	mv, err := board.ParseMove("e2e4", pos)
	if err != nil {
		t.Fatalf("ParseMove: %v", err)
	}
	pos.MakeMove(mv)
	if m.Current(pos) != black {
		t.Fatal("black to move should select the black player")
	}
}

func TestManagerNotifyCommittedForwardsToOnlineOpponent(t *testing.T) {
	session := newStubSession()
	online := NewOnline("", board.Black, session, nil, nil)
	m := NewManager(NewHuman(""), online, nil)

	m.NotifyCommitted(board.White, "e2e4")

	if len(session.sent) != 1 || session.sent[0] != "e2e4" {
		t.Fatalf("sent = %v, want [e2e4]", session.sent)
	}
}

func TestManagerPauseSkipsAutoRequests(t *testing.T) {
	session := newStubSession()
	online := NewOnline("", board.White, session, nil, nil)
	m := NewManager(online, NewHuman(""), nil)

	m.Pause()
	if !m.Paused() {
		t.Fatal("expected manager to report paused")
	}
	m.RequestMoveIfAuto(board.NewPosition(), time.Second)

	m.Resume()
	if m.Paused() {
		t.Fatal("expected manager to report resumed")
	}
}

func TestHumanSides(t *testing.T) {
	session := newStubSession()
	m := NewManager(NewHuman(""), NewOnline("", board.Black, session, nil, nil), nil)
	white, black := m.HumanSides()
	if !white || black {
		t.Fatalf("HumanSides = %v,%v, want true,false", white, black)
	}
}
