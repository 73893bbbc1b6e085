package recognizer

import (
	"testing"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/correction"
	"github.com/centaurfirmware/centaurd/internal/game"
)

func TestNormalMoveCommits(t *testing.T) {
	g := game.New()
	r := New(g, nil, nil, nil)

	var committed []board.Move
	r.OnCommit(func(m board.Move) { committed = append(committed, m) })

	r.HandleLift(board.E2)
	r.HandlePlace(board.E4)

	if len(committed) != 1 {
		t.Fatalf("expected 1 committed move, got %d", len(committed))
	}
	if committed[0].From() != board.E2 || committed[0].To() != board.E4 {
		t.Fatalf("unexpected committed move: %+v", committed[0])
	}
}

func TestLiftAndReplaceSameSquareIsNoop(t *testing.T) {
	g := game.New()
	r := New(g, nil, nil, nil)

	var committed []board.Move
	r.OnCommit(func(m board.Move) { committed = append(committed, m) })

	r.HandleLift(board.E2)
	r.HandlePlace(board.E2)

	if len(committed) != 0 {
		t.Fatalf("expected no committed move, got %d", len(committed))
	}
}

func TestPromotionWaitsForChoiceThenCommits(t *testing.T) {
	g := game.New()
	if err := g.SetPosition("8/4P3/8/8/8/8/8/k6K w - - 0 1"); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	r := New(g, nil, nil, nil)

	var committed []board.Move
	r.OnCommit(func(m board.Move) { committed = append(committed, m) })
	var pending int
	r.OnPromotionPending(func(board.Square, board.Color) { pending++ })

	r.HandleLift(board.E7)
	r.HandlePlace(board.E8)

	if pending != 1 || len(committed) != 0 {
		t.Fatalf("expected a pending promotion choice and no commit, got pending=%d committed=%+v", pending, committed)
	}

	r.ResolvePromotion(board.Queen)

	if len(committed) != 1 || !committed[0].IsPromotion() || committed[0].Promo() != board.Queen {
		t.Fatalf("expected queen promotion, got %+v", committed)
	}
}

func TestKingFirstCastlingCommits(t *testing.T) {
	g := game.New()
	if err := g.SetPosition("r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1"); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	r := New(g, nil, nil, nil)

	var committed []board.Move
	r.OnCommit(func(m board.Move) { committed = append(committed, m) })

	r.HandleLift(board.E1)
	r.HandlePlace(board.G1)

	if len(committed) != 1 || !committed[0].IsCastling() {
		t.Fatalf("expected castling move to commit, got %+v", committed)
	}
}

func TestRookFirstLateCastlingCommits(t *testing.T) {
	g := game.New()
	if err := g.SetPosition("r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1"); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	r := New(g, nil, nil, nil)

	var committed []board.Move
	r.OnCommit(func(m board.Move) { committed = append(committed, m) })

	// Rook lifted from h1 and placed on f1 first (regular-looking move).
	r.HandleLift(board.H1)
	r.HandlePlace(board.F1)
	if len(committed) != 0 {
		t.Fatalf("rook-only move should not commit yet, got %d", len(committed))
	}

	// King lifted from e1 and placed on g1 completes the castling.
	r.HandleLift(board.E1)
	r.HandlePlace(board.G1)

	if len(committed) != 1 || !committed[0].IsCastling() {
		t.Fatalf("expected late castling to commit as e1g1, got %+v", committed)
	}
}

func TestForcedMoveRestrictsDestinations(t *testing.T) {
	g := game.New()
	r := New(g, nil, nil, nil)
	r.SetForcedMove(true, "e2e4")

	var committed []board.Move
	r.OnCommit(func(m board.Move) { committed = append(committed, m) })

	r.HandleLift(board.E2)
	r.HandlePlace(board.E3) // legal in general, but not the forced target
	if len(committed) != 0 {
		t.Fatalf("non-forced destination should not commit, got %v", committed)
	}

	r.Reset()
	r.SetForcedMove(true, "e2e4")
	r.HandleLift(board.E2)
	r.HandlePlace(board.E4)
	if len(committed) != 1 || committed[0].String() != "e2e4" {
		t.Fatalf("expected forced move to commit as e2e4, got %v", committed)
	}
}

func TestReversingLastMoveIsTakeback(t *testing.T) {
	g := game.New()
	if _, err := g.PushUCI("e2e4"); err != nil {
		t.Fatalf("PushUCI: %v", err)
	}

	// Physical board as it will stand once the pawn is back on e2.
	startPresence := game.New().ToPiecePresenceState()
	r := New(g, nil, nil, func() [64]byte { return startPresence })

	var takebacks int
	var corrections int
	r.OnTakeback(func(board.Move) { takebacks++ })
	r.OnEnterCorrection(func(correction.Guidance, [64]byte, [64]byte) { corrections++ })

	r.HandleLift(board.E4)
	r.HandlePlace(board.E2)

	if takebacks != 1 {
		t.Fatalf("expected 1 takeback, got %d", takebacks)
	}
	if corrections != 0 {
		t.Fatalf("takeback should not enter correction, got %d", corrections)
	}
	if n := len(g.MoveStackUCI()); n != 0 {
		t.Fatalf("expected empty move stack after takeback, got %d", n)
	}
}

func TestIllegalPlacementEntersCorrection(t *testing.T) {
	g := game.New()
	r := New(g, nil, nil, func() [64]byte {
		obs := g.ToPiecePresenceState()
		obs[board.E4] = 1 // a piece sitting somewhere it shouldn't per the logical game
		return obs
	})

	var guidance correction.Guidance
	fired := false
	r.OnEnterCorrection(func(g correction.Guidance, observed, expected [64]byte) {
		fired = true
		guidance = g
	})

	r.HandleLift(board.E2)
	r.HandlePlace(board.E5) // not a legal destination for the e2 pawn

	if !fired {
		t.Fatal("expected OnEnterCorrection to fire for illegal placement")
	}
	if guidance.Kind == correction.Resolved {
		t.Fatalf("expected unresolved guidance, got %+v", guidance)
	}
}
