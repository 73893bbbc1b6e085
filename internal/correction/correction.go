// Package correction implements correction mode: when the physical
// board's occupancy diverges from the logical
// game's expected projection in a way the recognizer cannot resolve as
// a legal move, this package diffs observed-against-expected, pairs up
// missing/extra squares with a minimum-cost assignment, and hands back
// one square-to-square LED guidance hint at a time until the two
// projections match again or the player abandons and resets to the
// starting position.

package correction

import (
	"github.com/centaurfirmware/centaurd/internal/board"
)

// Kind classifies the guidance Evaluate returns.
type Kind int

const (
	// Resolved means observed now matches expected; correction mode
	// should exit.
	Resolved Kind = iota
	// MovePiece asks the player to move the piece currently sitting on
	// From to To, the cheapest unresolved missing/extra pairing.
	MovePiece
	// FlagExtra reports a square holding a piece with no matching
	// missing square to send it to (extra pieces outnumber missing
	// ones); the caller should flash it without directional guidance.
	FlagExtra
	// FlagMissing is the symmetric case: a square expected to hold a
	// piece that isn't currently paired to any extra.
	FlagMissing
	// ResetDetected reports the observed occupancy now matches the
	// starting position, read as the player abandoning the in-progress
	// game and resetting the board.
	ResetDetected
)

// Guidance is the single next action correction mode recommends.
type Guidance struct {
	Kind     Kind
	From, To board.Square
}

// startOccupancy is the 64-square occupied/unoccupied projection of the
// standard starting position, used to detect the reset gesture.
var startOccupancy = func() [64]bool {
	pos := board.NewPosition()
	var occ [64]bool
	for sq := board.Square(0); sq < 64; sq++ {
		occ[sq] = !pos.IsEmpty(sq)
	}
	return occ
}()

// Evaluate compares the board's observed piece-presence vector against
// the game's expected projection and returns the single next guidance
// step. Callers re-invoke Evaluate after every settled PLACE/LIFT event.
func Evaluate(observed, expected [64]byte) Guidance {
	if observed == expected {
		return Guidance{Kind: Resolved}
	}

	if matchesStart(observed) && observed != expected {
		return Guidance{Kind: ResetDetected}
	}

	var missing, extra []board.Square
	for sq := board.Square(0); sq < 64; sq++ {
		switch {
		case expected[sq] != 0 && observed[sq] == 0:
			missing = append(missing, sq)
		case expected[sq] == 0 && observed[sq] != 0:
			extra = append(extra, sq)
		}
	}

	if len(missing) == 0 && len(extra) == 0 {
		return Guidance{Kind: Resolved}
	}
	if len(missing) == 0 {
		return Guidance{Kind: FlagExtra, From: extra[0]}
	}
	if len(extra) == 0 {
		return Guidance{Kind: FlagMissing, To: missing[0]}
	}

	return bestPair(missing, extra)
}

func matchesStart(observed [64]byte) bool {
	for sq := board.Square(0); sq < 64; sq++ {
		if (observed[sq] != 0) != startOccupancy[sq] {
			return false
		}
	}
	return true
}

// bestPair runs the Hungarian assignment over Manhattan distances
// between every missing/extra pair and returns the single
// lowest-total-cost pairing's edge with the smallest individual
// distance — "light led_from_to for the single best pair at a time"
//: the full assignment picks which pairs are sane globally, but
// only the cheapest one is surfaced so the player fixes one square
// before the hint moves on.
func bestPair(missing, extra []board.Square) Guidance {
	rows, cols := missing, extra
	swapped := false
	if len(rows) > len(cols) {
		rows, cols = cols, rows
		swapped = true
	}

	cost := make([][]int, len(rows))
	for i, r := range rows {
		cost[i] = make([]int, len(cols))
		for j, c := range cols {
			cost[i][j] = manhattan(r, c)
		}
	}

	assign := hungarianAssign(cost)

	bestRow, bestCol, bestCost := -1, -1, 1<<30
	for i, j := range assign {
		if j < 0 {
			continue
		}
		if cost[i][j] < bestCost {
			bestCost = cost[i][j]
			bestRow, bestCol = i, j
		}
	}
	if bestRow < 0 {
		// No valid pairing found (shouldn't happen when both sides are
		// non-empty), fall back to flagging the first of each.
		if swapped {
			return Guidance{Kind: FlagExtra, From: rows[0]}
		}
		return Guidance{Kind: FlagMissing, To: rows[0]}
	}

	from, to := rows[bestRow], cols[bestCol]
	if swapped {
		// rows held `extra`, cols held `missing`.
		return Guidance{Kind: MovePiece, From: from, To: to}
	}
	// rows held `missing`, cols held `extra`: the piece sitting on the
	// extra square should move onto the missing one.
	return Guidance{Kind: MovePiece, From: to, To: from}
}

func manhattan(a, b board.Square) int {
	af, ar := int(a)%8, int(a)/8
	bf, br := int(b)%8, int(b)/8
	d := af - bf
	if d < 0 {
		d = -d
	}
	dr := ar - br
	if dr < 0 {
		dr = -dr
	}
	return d + dr
}
