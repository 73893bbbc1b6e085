package persistence

import (
	"os"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "centaurd-persistence-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewGameAssignsIncreasingIDs(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.NewGame(Game{White: "Human", Black: "Engine"})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	id2, err := s.NewGame(Game{White: "Human", Black: "Engine"})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if id2 <= id1 {
		t.Fatalf("expected increasing ids, got %d then %d", id1, id2)
	}
}

func TestAppendMoveAndTakebackReversibility(t *testing.T) {
	s := newTestStore(t)
	gameID, err := s.NewGame(Game{White: "Human", Black: "Engine"})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}

	if _, err := s.AppendMove(gameID, MoveRecord{MoveUCI: "e2e4", FENAfter: "fen-after-e4"}); err != nil {
		t.Fatalf("AppendMove: %v", err)
	}
	if _, err := s.AppendMove(gameID, MoveRecord{MoveUCI: "e7e5", FENAfter: "fen-after-e5"}); err != nil {
		t.Fatalf("AppendMove: %v", err)
	}

	moves, err := s.Moves(gameID)
	if err != nil {
		t.Fatalf("Moves: %v", err)
	}
	if len(moves) != 2 {
		t.Fatalf("expected 2 moves, got %d", len(moves))
	}

	if err := s.Takeback(gameID); err != nil {
		t.Fatalf("Takeback: %v", err)
	}

	moves, err = s.Moves(gameID)
	if err != nil {
		t.Fatalf("Moves: %v", err)
	}
	if len(moves) != 1 {
		t.Fatalf("expected 1 move after takeback, got %d", len(moves))
	}
	if moves[0].MoveUCI != "e2e4" {
		t.Fatalf("expected surviving move to be e2e4, got %s", moves[0].MoveUCI)
	}
}

func TestTakebackOnEmptyGameReturnsErrNoMoves(t *testing.T) {
	s := newTestStore(t)
	gameID, err := s.NewGame(Game{White: "Human", Black: "Engine"})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}

	if err := s.Takeback(gameID); err != ErrNoMoves {
		t.Fatalf("expected ErrNoMoves, got %v", err)
	}
}

func TestSetResult(t *testing.T) {
	s := newTestStore(t)
	gameID, err := s.NewGame(Game{White: "Human", Black: "Engine"})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}

	if err := s.SetResult(gameID, "1-0", "checkmate"); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	g, err := s.Game(gameID)
	if err != nil {
		t.Fatalf("Game: %v", err)
	}
	if g.Result != "1-0" || g.Termination != "checkmate" {
		t.Fatalf("unexpected game row: %+v", g)
	}
}
