// Package uci drives an external UCI-speaking chess engine process the
// way a GUI drives Stockfish: it owns the process's stdin/stdout,
// speaks the Universal Chess Interface over it, and turns "go"/"stop"
// requests into board.Move values and centipawn evaluations. This
// controller never implements search itself — the bundled chess rule
// library (internal/board) only validates and applies moves; finding a
// good one is an external collaborator's job, started as a subprocess.
package uci

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/logging"
)

// SearchLimits bounds one search request.
type SearchLimits struct {
	Depth    int
	MoveTime time.Duration
	Infinite bool
}

// Difficulty selects one of the three canned search-limit presets the
// engine player and the -difficulty flag offer.
type Difficulty int

const (
	Easy Difficulty = iota
	Medium
	Hard
)

// DifficultySettings maps each Difficulty to the search limits handed
// to the engine process for every move it's asked to play.
var DifficultySettings = map[Difficulty]SearchLimits{
	Easy:   {Depth: 5, MoveTime: 300 * time.Millisecond},
	Medium: {Depth: 12, MoveTime: 1500 * time.Millisecond},
	Hard:   {Depth: 20, MoveTime: 4 * time.Second},
}

// Client is a live connection to one external engine process.
type Client struct {
	path string
	log  logging.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner

	searchMu  sync.Mutex
	searching bool

	evalMu   sync.Mutex
	lastEval int
}

// New creates a Client that will launch the engine binary at path.
// Start must be called before any search.
func New(path string, log logging.Logger) *Client {
	return &Client{path: path, log: log}
}

// Start launches the engine process and performs the uci/isready
// handshake.
func (c *Client) Start() error {
	cmd := exec.Command(c.path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("uci: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("uci: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("uci: start %s: %w", c.path, err)
	}

	c.mu.Lock()
	c.cmd = cmd
	c.stdin = stdin
	c.scanner = bufio.NewScanner(stdout)
	c.scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	c.mu.Unlock()

	c.send("uci")
	if !c.waitForLine("uciok", 5*time.Second) {
		return fmt.Errorf("uci: %s never answered uciok", c.path)
	}
	c.send("isready")
	if !c.waitForLine("readyok", 5*time.Second) {
		return fmt.Errorf("uci: %s never answered readyok", c.path)
	}
	c.send("ucinewgame")
	return nil
}

// Close quits the engine process and releases its pipes. Called once,
// during the power-off sequence.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stdin == nil {
		return
	}
	c.sendLocked("quit")
	c.stdin.Close()
	if c.cmd != nil {
		_ = c.cmd.Wait()
	}
	c.stdin = nil
}

func (c *Client) send(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendLocked(line)
}

func (c *Client) sendLocked(line string) {
	if c.stdin == nil {
		return
	}
	if _, err := io.WriteString(c.stdin, line+"\n"); err != nil && c.log != nil {
		c.log.Infof("uci: write %q: %v", line, err)
	}
}

// waitForLine reads lines until one has prefix, or timeout elapses.
func (c *Client) waitForLine(prefix string, timeout time.Duration) bool {
	done := make(chan bool, 1)
	go func() {
		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			c.mu.Lock()
			sc := c.scanner
			c.mu.Unlock()
			if sc == nil || !sc.Scan() {
				done <- false
				return
			}
			if strings.HasPrefix(sc.Text(), prefix) {
				done <- true
				return
			}
		}
		done <- false
	}()
	select {
	case ok := <-done:
		return ok
	case <-time.After(timeout):
		return false
	}
}

// setPosition sends "position fen <fen>" for pos.
func (c *Client) setPosition(pos *board.Position) {
	c.send("position fen " + pos.FEN())
}

// SearchWithLimits asks the engine for its choice in pos under limits
// and blocks until it answers or the caller's Stop arrives. It returns
// board.NoMove if the engine produced nothing usable.
func (c *Client) SearchWithLimits(pos *board.Position, limits SearchLimits) board.Move {
	c.searchMu.Lock()
	c.searching = true
	c.searchMu.Unlock()
	defer func() {
		c.searchMu.Lock()
		c.searching = false
		c.searchMu.Unlock()
	}()

	c.setPosition(pos)
	c.send(goCommand(limits))

	for {
		c.mu.Lock()
		sc := c.scanner
		c.mu.Unlock()
		if sc == nil || !sc.Scan() {
			return board.NoMove
		}
		line := sc.Text()
		if strings.HasPrefix(line, "info ") {
			c.recordInfo(line)
			continue
		}
		if strings.HasPrefix(line, "bestmove") {
			fields := strings.Fields(line)
			if len(fields) < 2 || fields[1] == "(none)" || fields[1] == "0000" {
				return board.NoMove
			}
			m, err := board.ParseMove(fields[1], pos)
			if err != nil || !pos.IsLegal(m) {
				if c.log != nil {
					c.log.Errorf("uci: engine returned illegal/unparseable move %q: %v", fields[1], err)
				}
				return board.NoMove
			}
			return m
		}
	}
}

// Stop asks the engine to cut short an in-progress search; its
// "bestmove" answer still arrives and SearchWithLimits still returns it.
func (c *Client) Stop() {
	c.searchMu.Lock()
	searching := c.searching
	c.searchMu.Unlock()
	if searching {
		c.send("stop")
	}
}

// Evaluate reports the centipawn score from the last search's final
// "info score cp" line, relative to the side to move in pos at the
// time of that search. It is a snapshot, not a fresh probe: the
// gameloop persists it alongside the move that search produced.
func (c *Client) Evaluate(pos *board.Position) int {
	c.evalMu.Lock()
	defer c.evalMu.Unlock()
	return c.lastEval
}

// recordInfo extracts "score cp N" (or "score mate N") from an info
// line, the same fields the teacher's own UCI front end parsed out of
// its search info.
func (c *Client) recordInfo(line string) {
	fields := strings.Fields(line)
	for i := 0; i < len(fields)-2; i++ {
		if fields[i] != "score" {
			continue
		}
		switch fields[i+1] {
		case "cp":
			if v, err := strconv.Atoi(fields[i+2]); err == nil {
				c.evalMu.Lock()
				c.lastEval = v
				c.evalMu.Unlock()
			}
		case "mate":
			if v, err := strconv.Atoi(fields[i+2]); err == nil {
				mateScore := 100000
				if v < 0 {
					mateScore = -mateScore
				}
				c.evalMu.Lock()
				c.lastEval = mateScore
				c.evalMu.Unlock()
			}
		}
		return
	}
}

func goCommand(limits SearchLimits) string {
	if limits.Infinite {
		return "go infinite"
	}
	var b strings.Builder
	b.WriteString("go")
	if limits.Depth > 0 {
		fmt.Fprintf(&b, " depth %d", limits.Depth)
	}
	if limits.MoveTime > 0 {
		fmt.Fprintf(&b, " movetime %d", limits.MoveTime.Milliseconds())
	}
	if limits.Depth == 0 && limits.MoveTime == 0 {
		b.WriteString(" movetime 1000")
	}
	return b.String()
}
