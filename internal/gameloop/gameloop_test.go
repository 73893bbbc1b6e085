package gameloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/boardctl"
	"github.com/centaurfirmware/centaurd/internal/clock"
	"github.com/centaurfirmware/centaurd/internal/demux"
	"github.com/centaurfirmware/centaurd/internal/game"
	"github.com/centaurfirmware/centaurd/internal/persistence"
	"github.com/centaurfirmware/centaurd/internal/recognizer"
	"github.com/centaurfirmware/centaurd/internal/settings"
)

// fakeIO is a scripted board: occupancy mirrors what the test says the
// player physically did.
type fakeIO struct {
	mu    sync.Mutex
	occ   [64]byte
	beeps []boardctl.BeepKind

	fromTo [][2]board.Square
}

func newFakeIO() *fakeIO {
	io := &fakeIO{}
	io.occ = game.New().ToPiecePresenceState()
	return io
}

func (f *fakeIO) setSquare(sq board.Square, present bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if present {
		f.occ[sq] = 1
	} else {
		f.occ[sq] = 0
	}
}

func (f *fakeIO) GetState() ([64]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.occ, nil
}
func (f *fakeIO) GetStateLowPriority() ([64]byte, error) { return f.GetState() }
func (f *fakeIO) LEDsOff() error                         { return nil }
func (f *fakeIO) LED(board.Square, int, int, int) error  { return nil }
func (f *fakeIO) LEDFromTo(src, dst board.Square, intensity, speed, repeat int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fromTo = append(f.fromTo, [2]board.Square{src, dst})
	return nil
}
func (f *fakeIO) LEDArray([]board.Square, int, int, int) error { return nil }
func (f *fakeIO) Beep(kind boardctl.BeepKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beeps = append(f.beeps, kind)
	return nil
}

func (f *fakeIO) beepCount(kind boardctl.BeepKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.beeps {
		if b == kind {
			n++
		}
	}
	return n
}

type fakeStore struct {
	mu    sync.Mutex
	moves []persistence.MoveRecord
}

func (s *fakeStore) NewGame(persistence.Game) (uint64, error) { return 1, nil }
func (s *fakeStore) AppendMove(gameID uint64, rec persistence.MoveRecord) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves = append(s.moves, rec)
	return uint64(len(s.moves) - 1), nil
}
func (s *fakeStore) Takeback(gameID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.moves) == 0 {
		return persistence.ErrNoMoves
	}
	s.moves = s.moves[:len(s.moves)-1]
	return nil
}
func (s *fakeStore) SetResult(uint64, string, string) error { return nil }

func (s *fakeStore) moveUCIs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.moves))
	for i, m := range s.moves {
		out[i] = m.MoveUCI
	}
	return out
}

type harness struct {
	io    *fakeIO
	store *fakeStore
	g     *game.Game
	loop  *Loop
	stop  func()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	io := newFakeIO()
	store := &fakeStore{}
	g := game.New()
	rec := recognizer.New(g, nil, nil, func() [64]byte {
		occ, _ := io.GetState()
		return occ
	})

	loop := New(Config{
		Game:       g,
		Recognizer: rec,
		IO:         io,
		Clock:      clock.New(300, 300, 0),
		Store:      store,
		Settings:   settings.Default(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{io: io, store: store, g: g, loop: loop, stop: cancel}
}

func (h *harness) lift(sq board.Square) {
	h.io.setSquare(sq, false)
	h.loop.PostEvent(demux.Event{Kind: demux.EvLift, Square: byte(sq)})
}

func (h *harness) place(sq board.Square) {
	h.io.setSquare(sq, true)
	h.loop.PostEvent(demux.Event{Kind: demux.EvPlace, Square: byte(sq)})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestCleanPawnMoveCommitsAndPersists(t *testing.T) {
	h := newHarness(t)

	h.lift(board.E2)
	h.place(board.E4)

	waitFor(t, func() bool { return len(h.store.moveUCIs()) == 1 }, "move never persisted")
	if got := h.store.moveUCIs()[0]; got != "e2e4" {
		t.Fatalf("persisted move = %q, want e2e4", got)
	}
	if h.g.SideToMove() != board.Black {
		t.Fatal("turn should pass to black")
	}
	wantFEN := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	if got := h.g.FEN(); got != wantFEN {
		t.Fatalf("FEN = %q, want %q", got, wantFEN)
	}
	if h.io.beepCount(boardctl.BeepGeneral) == 0 {
		t.Fatal("commit should sound the general beep")
	}
}

func TestTakebackRemovesPersistedRow(t *testing.T) {
	h := newHarness(t)

	h.lift(board.E2)
	h.place(board.E4)
	waitFor(t, func() bool { return len(h.store.moveUCIs()) == 1 }, "move never persisted")

	h.lift(board.E4)
	h.place(board.E2)
	waitFor(t, func() bool { return len(h.store.moveUCIs()) == 0 }, "takeback never removed the row")

	if n := len(h.g.MoveStackUCI()); n != 0 {
		t.Fatalf("move stack = %d entries, want 0", n)
	}
	if h.g.SideToMove() != board.White {
		t.Fatal("turn should return to white")
	}
}

func TestIllegalPlacementDrivesCorrectionUntilResolved(t *testing.T) {
	h := newHarness(t)

	h.lift(board.E2)
	h.place(board.E5) // not legal for the e2 pawn

	waitFor(t, func() bool { return h.io.beepCount(boardctl.BeepWrongMove) == 1 }, "wrong-move beep never sounded")
	waitFor(t, func() bool {
		h.io.mu.Lock()
		defer h.io.mu.Unlock()
		return len(h.io.fromTo) > 0
	}, "correction guidance never lit")

	h.io.mu.Lock()
	guidance := h.io.fromTo[len(h.io.fromTo)-1]
	h.io.mu.Unlock()
	if guidance[0] != board.E5 || guidance[1] != board.E2 {
		t.Fatalf("guidance = %v, want e5 -> e2", guidance)
	}

	// Player follows the guidance; correction clears with a general beep.
	before := h.io.beepCount(boardctl.BeepGeneral)
	h.lift(board.E5)
	h.place(board.E2)

	waitFor(t, func() bool { return h.io.beepCount(boardctl.BeepGeneral) > before }, "correction never resolved")
	if len(h.g.MoveStackUCI()) != 0 {
		t.Fatal("board should be unchanged from the start")
	}
}

func TestForcedEngineMoveWithPromotion(t *testing.T) {
	io := newFakeIO()
	store := &fakeStore{}
	g := game.New()
	if err := g.SetPosition("8/4P3/8/8/8/8/8/k6K w - - 0 1"); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	io.mu.Lock()
	io.occ = g.ToPiecePresenceState()
	io.mu.Unlock()

	rec := recognizer.New(g, nil, nil, func() [64]byte {
		occ, _ := io.GetState()
		return occ
	})
	loop := New(Config{Game: g, Recognizer: rec, IO: io, Store: store, Settings: settings.Default()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	loop.OnPlayerMove(board.White, "e7e8q")
	waitFor(t, func() bool {
		io.mu.Lock()
		defer io.mu.Unlock()
		return len(io.fromTo) > 0
	}, "forced move guidance never lit")

	io.setSquare(board.E7, false)
	loop.PostEvent(demux.Event{Kind: demux.EvLift, Square: byte(board.E7)})
	io.setSquare(board.E8, true)
	loop.PostEvent(demux.Event{Kind: demux.EvPlace, Square: byte(board.E8)})

	waitFor(t, func() bool { return len(store.moveUCIs()) == 1 }, "forced move never committed")
	if got := store.moveUCIs()[0]; got != "e7e8q" {
		t.Fatalf("persisted move = %q, want e7e8q", got)
	}
	pos := g.Position()
	piece := pos.PieceAt(board.E8)
	if piece.Type() != board.Queen || piece.Color() != board.White {
		t.Fatalf("piece on e8 = %v, want white queen", piece)
	}
}
