package board

import "testing"

func TestCheckmate(t *testing.T) {
	pos, err := ParseFEN("R6k/6pp/8/8/8/8/8/K7 b - - 0 1")
	if err != nil {
		t.Fatal("parse fen:", err)
	}
	if !pos.IsCheckmate() {
		t.Error("expected checkmate")
	}
	if !pos.InCheck() {
		t.Error("expected in check")
	}
}

func TestStalemate(t *testing.T) {
	pos, err := ParseFEN("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	if err != nil {
		t.Fatal("parse fen:", err)
	}
	if !pos.IsStalemate() {
		t.Error("expected stalemate")
	}
	if pos.InCheck() {
		t.Error("stalemate is not check")
	}
}

func TestMakeUnmakeMove(t *testing.T) {
	pos := NewPosition()
	before := pos.FEN()

	m, err := ParseMove("e2e4", pos)
	if err != nil {
		t.Fatal("parse move:", err)
	}
	if !pos.IsLegal(m) {
		t.Fatal("e2e4 should be legal from the start position")
	}

	undo := pos.MakeMove(m)
	if pos.SideToMove != Black {
		t.Error("expected black to move after e2e4")
	}
	if pos.FEN() == before {
		t.Error("fen did not change after MakeMove")
	}

	pos.UnmakeMove(undo)
	if pos.FEN() != before {
		t.Error("UnmakeMove did not restore the position")
	}
}

func TestLegalMovesFromStart(t *testing.T) {
	pos := NewPosition()
	moves := pos.LegalMoves()
	if len(moves) != 20 {
		t.Errorf("expected 20 legal moves from the start position, got %d", len(moves))
	}
}

func TestPromotionUCI(t *testing.T) {
	pos, err := ParseFEN("8/P7/8/8/8/8/7k/7K w - - 0 1")
	if err != nil {
		t.Fatal("parse fen:", err)
	}
	m, err := ParseMove("a7a8q", pos)
	if err != nil {
		t.Fatal("parse move:", err)
	}
	if m.Promo() != Queen {
		t.Errorf("expected queen promotion, got %v", m.Promo())
	}
	if m.String() != "a7a8q" {
		t.Errorf("expected round-trip a7a8q, got %s", m.String())
	}
}

func TestAttackersByColor(t *testing.T) {
	pos, err := ParseFEN("4k3/8/8/8/8/8/4r3/4K3 w - - 0 1")
	if err != nil {
		t.Fatal("parse fen:", err)
	}
	attackers := pos.AttackersByColor(E1, Black)
	found := false
	for _, sq := range attackers {
		if sq == E2 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the rook on e2 to attack e1, attackers=%v", attackers)
	}
}
