// Package display renders the controller's status frames. The e-paper
// pipeline itself is an external sink that accepts image buffers; this
// package owns the framebuffer composition and hands finished frames
// to whatever Sink is wired in — the real panel driver, the
// development preview window, or nothing.
package display

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/logging"
	"github.com/centaurfirmware/centaurd/internal/spine"
)

// Panel geometry of the 296×128 partial-refresh e-paper.
const (
	Width  = 296
	Height = 128
)

// Sink consumes finished frames. Push may block for the duration of a
// panel refresh (~1s for a full e-paper refresh); the display
// worker absorbs that, never the game thread.
type Sink interface {
	Push(img image.Image) error
	Close() error
}

// NullSink discards frames, used when the process runs headless.
type NullSink struct{}

func (NullSink) Push(image.Image) error { return nil }
func (NullSink) Close() error           { return nil }

// State is one snapshot of everything the panel shows. The game thread
// publishes these; rendering happens on the display worker.
type State struct {
	FEN        string
	WhiteClock int // seconds remaining
	BlackClock int
	Battery    int // 0..20
	Charging   bool
	Status     string // bottom status line: result, resign prompt, sleep warning
	CountdownS int    // inactivity countdown overlay; 0 = hidden
}

// Renderer composes State snapshots into 1-bit-friendly grayscale
// frames: a mini occupancy board on the left, clocks and status on the
// right.
type Renderer struct {
	face font.Face
	log  logging.Logger
}

// NewRenderer loads the frame font and returns a Renderer.
func NewRenderer(log logging.Logger) (*Renderer, error) {
	ft, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("display: parse font: %w", err)
	}
	face, err := opentype.NewFace(ft, &opentype.FaceOptions{Size: 14, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("display: build face: %w", err)
	}
	return &Renderer{face: face, log: log}, nil
}

var (
	white = color.Gray{Y: 0xff}
	black = color.Gray{Y: 0x00}
	gray  = color.Gray{Y: 0xa0}
)

// Render draws one frame.
func (r *Renderer) Render(st State) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: white}, image.Point{}, draw.Src)

	r.drawBoard(img, st.FEN)
	r.drawText(img, 150, 30, clockString(st.WhiteClock))
	r.drawText(img, 150, 60, clockString(st.BlackClock))
	r.drawText(img, 230, 30, batteryString(st.Battery, st.Charging))
	if st.Status != "" {
		r.drawText(img, 150, 100, st.Status)
	}
	if st.CountdownS > 0 {
		r.drawText(img, 150, 120, fmt.Sprintf("sleep in %ds", st.CountdownS))
	}
	return img
}

// drawBoard paints a 128×128 mini board: dark/light checkering with a
// filled disc on every occupied square.
func (r *Renderer) drawBoard(img *image.Gray, fen string) {
	const cell = 16
	pos, err := board.ParseFEN(fen)
	if err != nil {
		pos = board.NewPosition()
	}
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			x0, y0 := file*cell, (7-rank)*cell
			if (rank+file)%2 == 0 {
				fillRect(img, x0, y0, cell, cell, gray)
			}
			sq := board.NewSquare(file, rank)
			if !pos.IsEmpty(sq) {
				pieceColor := black
				if pos.PieceAt(sq).Color() == board.White {
					pieceColor = white
					fillDisc(img, x0+cell/2, y0+cell/2, cell/2-3, black) // outline ring
					fillDisc(img, x0+cell/2, y0+cell/2, cell/2-4, pieceColor)
				} else {
					fillDisc(img, x0+cell/2, y0+cell/2, cell/2-3, pieceColor)
				}
			}
		}
	}
}

func fillRect(img *image.Gray, x, y, w, h int, c color.Gray) {
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			img.SetGray(x+dx, y+dy, c)
		}
	}
}

func fillDisc(img *image.Gray, cx, cy, radius int, c color.Gray) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				img.SetGray(cx+dx, cy+dy, c)
			}
		}
	}
}

func (r *Renderer) drawText(img *image.Gray, x, y int, s string) {
	d := font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: black},
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func clockString(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func batteryString(level int, charging bool) string {
	pct := level * 5
	if pct > 100 {
		pct = 100
	}
	if charging {
		return fmt.Sprintf("%d%%+", pct)
	}
	return fmt.Sprintf("%d%%", pct)
}

// Worker owns the sink and renders queued states one at a time. It is
// the only goroutine that ever touches the framebuffer or the panel.
type Worker struct {
	renderer *Renderer
	sink     Sink
	queue    *spine.Queue[State]
	log      logging.Logger

	mu   sync.Mutex
	last State
}

// NewWorker builds a display worker pushing to sink.
func NewWorker(renderer *Renderer, sink Sink, log logging.Logger) *Worker {
	return &Worker{
		renderer: renderer,
		sink:     sink,
		queue:    spine.NewQueue[State](16, "display", log),
		log:      log,
	}
}

// Publish enqueues a state snapshot without blocking the caller. A full
// queue drops the snapshot being published and keeps the older pending
// ones; Last still reports it, and a later Publish once the queue has
// room is rendered.
func (w *Worker) Publish(st State) {
	w.mu.Lock()
	w.last = st
	w.mu.Unlock()
	w.queue.Push(st)
}

// Last returns the most recently published state.
func (w *Worker) Last() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Run drains the state queue until ctx is cancelled, then closes the
// sink.
func (w *Worker) Run(ctx context.Context) error {
	err := w.queue.Drain(ctx, func(st State) {
		frame := w.renderer.Render(st)
		if perr := w.sink.Push(frame); perr != nil && w.log != nil {
			w.log.Errorf("display: push frame: %v", perr)
		}
	})
	if cerr := w.sink.Close(); cerr != nil && w.log != nil {
		w.log.Errorf("display: close sink: %v", cerr)
	}
	return err
}
