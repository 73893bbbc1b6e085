package correction

import (
	"testing"

	"github.com/centaurfirmware/centaurd/internal/board"
)

func presence(squares ...board.Square) [64]byte {
	var p [64]byte
	for _, sq := range squares {
		p[sq] = 1
	}
	return p
}

func TestEvaluateResolvedWhenEqual(t *testing.T) {
	obs := presence(0, 1, 2)
	exp := presence(0, 1, 2)
	g := Evaluate(obs, exp)
	if g.Kind != Resolved {
		t.Fatalf("expected Resolved, got %+v", g)
	}
}

func TestEvaluateSinglePairSuggestsMove(t *testing.T) {
	// Expected has a piece on e2 (12) that observed instead shows on e4
	// (28): single missing/extra pair, should suggest moving e4->e2.
	obs := presence(28)
	exp := presence(12)
	g := Evaluate(obs, exp)
	if g.Kind != MovePiece || g.From != 28 || g.To != 12 {
		t.Fatalf("unexpected guidance: %+v", g)
	}
}

func TestEvaluateFlagsExtraWithNoMissingCounterpart(t *testing.T) {
	obs := presence(5)
	exp := presence()
	g := Evaluate(obs, exp)
	if g.Kind != FlagExtra || g.From != 5 {
		t.Fatalf("unexpected guidance: %+v", g)
	}
}

func TestEvaluateFlagsMissingWithNoExtraCounterpart(t *testing.T) {
	obs := presence()
	exp := presence(5)
	g := Evaluate(obs, exp)
	if g.Kind != FlagMissing || g.To != 5 {
		t.Fatalf("unexpected guidance: %+v", g)
	}
}

func TestEvaluateDetectsResetGesture(t *testing.T) {
	var obs [64]byte
	for sq := board.Square(0); sq < 64; sq++ {
		if startOccupancy[sq] {
			obs[sq] = 1
		}
	}
	exp := presence(27, 28) // some mid-game projection, doesn't match start
	g := Evaluate(obs, exp)
	if g.Kind != ResetDetected {
		t.Fatalf("expected ResetDetected, got %+v", g)
	}
}

func TestHungarianPicksCheapestPairingFirst(t *testing.T) {
	// Two missing, two extra: one pair is adjacent (cost 1), the other
	// is far apart. bestPair must surface the adjacent one.
	missing := []board.Square{0, 63}   // a1, h8
	extra := []board.Square{1, 62}     // b1 (adjacent to a1), g8 (adjacent to h8)
	g := bestPair(missing, extra)
	if g.Kind != MovePiece {
		t.Fatalf("expected MovePiece, got %+v", g)
	}
	if manhattan(g.From, g.To) != 1 {
		t.Fatalf("expected cheapest (cost-1) pair to be surfaced, got %+v", g)
	}
}
