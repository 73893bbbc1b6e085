package clock

import "testing"

func TestSwitchTurnDoesNotDecrement(t *testing.T) {
	c := New(60, 60, 0)
	c.SetActive(White)
	c.SwitchTurn()

	w, b := c.Times()
	if w != 60 || b != 60 {
		t.Fatalf("SwitchTurn decremented time: white=%d black=%d", w, b)
	}
}

func TestSetTimesPauseResumeIdempotence(t *testing.T) {
	c := New(300, 300, 0)
	c.SetTimes(100, 90)
	c.Pause()
	c.Resume()
	c.SetTimes(100, 90)

	w, b := c.Times()
	if w != 100 || b != 90 {
		t.Fatalf("expected times to equal a single SetTimes(100,90), got white=%d black=%d", w, b)
	}
	c.Pause()
}

func TestFlagFiresAtZero(t *testing.T) {
	c := New(1, 1, 0)
	c.SetActive(White)

	flagged := make(chan Side, 1)
	c.OnFlag(func(s Side) { flagged <- s })

	c.tick()

	select {
	case s := <-flagged:
		if s != White {
			t.Fatalf("expected White to flag, got %v", s)
		}
	default:
		t.Fatal("expected OnFlag to fire once white's single remaining second ticks away")
	}
}

func TestZeroTimeControlNeverDecrements(t *testing.T) {
	c := New(0, 0, 0)
	c.SetActive(White)
	c.tick()
	w, _ := c.Times()
	if w != 0 {
		t.Fatalf("expected time to stay at 0, got %d", w)
	}
}
