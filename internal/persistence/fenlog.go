package persistence

import (
	"bufio"
	"os"
	"sync"
)

// FENLog keeps a single file up to date with the latest FEN for the web
// viewer, plus a bounded ring of the last few positions so a viewer
// that polls slowly never misses more than ringSize plies.
type FENLog struct {
	mu       sync.Mutex
	path     string
	ringSize int
	ring     []string
}

const defaultFENRingSize = 50

// NewFENLog returns a FENLog for the file at path. It touches no file
// itself; the first Append creates or truncates it.
func NewFENLog(path string) *FENLog {
	return &FENLog{path: path, ringSize: defaultFENRingSize}
}

// Append records a new position, overwriting the live file and advancing
// the ring.
func (l *FENLog) Append(fen string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring = append(l.ring, fen)
	if len(l.ring) > l.ringSize {
		l.ring = l.ring[len(l.ring)-l.ringSize:]
	}

	return l.flushLocked()
}

// Truncate drops the most recent entry, mirroring a takeback.
func (l *FENLog) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.ring) == 0 {
		return nil
	}
	l.ring = l.ring[:len(l.ring)-1]
	return l.flushLocked()
}

func (l *FENLog) flushLocked() error {
	f, err := os.Create(l.path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, fen := range l.ring {
		if _, err := w.WriteString(fen + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Latest returns the most recently appended FEN, or "" if none.
func (l *FENLog) Latest() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ring) == 0 {
		return ""
	}
	return l.ring[len(l.ring)-1]
}
