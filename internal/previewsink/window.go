// Package previewsink is an optional development window: it implements
// the display sink interface on a desktop so the controller can be
// driven without real e-paper hardware, and mirrors the logical board
// with piece sprites so LED guidance and move recognition can be
// eyeballed. It never runs on the shipped device.
package previewsink

import (
	"image"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/logging"
)

const (
	squareSize   = 40
	boardPixels  = squareSize * 8
	screenWidth  = boardPixels
	screenHeight = boardPixels + 140 // board plus the e-paper frame below
)

// Window is both an ebiten game and a display.Sink. Push and SetFEN may
// be called from any goroutine; Draw reads them under the mutex.
type Window struct {
	mu      sync.Mutex
	frame   *ebiten.Image // latest pushed e-paper frame
	pos     *board.Position
	lit     map[board.Square]bool
	sprites *spriteSet
	log     logging.Logger
}

// New creates a preview window showing the starting position.
func New(log logging.Logger) *Window {
	return &Window{
		pos:     board.NewPosition(),
		lit:     make(map[board.Square]bool),
		sprites: newSpriteSet(squareSize, log),
		log:     log,
	}
}

// Push implements display.Sink: the frame is converted once and shown
// under the board until the next push.
func (w *Window) Push(img image.Image) error {
	frame := ebiten.NewImageFromImage(img)
	w.mu.Lock()
	w.frame = frame
	w.mu.Unlock()
	return nil
}

// Close implements display.Sink.
func (w *Window) Close() error { return nil }

// SetFEN updates the mirrored logical position.
func (w *Window) SetFEN(fen string) {
	pos, err := board.ParseFEN(fen)
	if err != nil {
		if w.log != nil {
			w.log.Errorf("previewsink: bad FEN %q: %v", fen, err)
		}
		return
	}
	w.mu.Lock()
	w.pos = pos
	w.mu.Unlock()
}

// SetLit mirrors the LED state so guidance is visible in the preview.
func (w *Window) SetLit(squares []board.Square) {
	lit := make(map[board.Square]bool, len(squares))
	for _, sq := range squares {
		lit[sq] = true
	}
	w.mu.Lock()
	w.lit = lit
	w.mu.Unlock()
}

// Run opens the window and blocks until it is closed. It must run on
// the main goroutine (an ebiten constraint), which is why cmd wiring
// hands the rest of the system to the spine and parks main here when
// the preview is enabled.
func (w *Window) Run() error {
	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("centaurd preview")
	return ebiten.RunGame(w)
}

func (w *Window) Update() error { return nil }

var (
	lightSquare = color.RGBA{240, 217, 181, 255}
	darkSquare  = color.RGBA{181, 136, 99, 255}
	litSquare   = color.RGBA{120, 170, 255, 160}
	background  = color.RGBA{40, 44, 52, 255}
)

func (w *Window) Draw(screen *ebiten.Image) {
	screen.Fill(background)

	w.mu.Lock()
	pos := w.pos
	lit := w.lit
	frame := w.frame
	w.mu.Unlock()

	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			x := float32(file * squareSize)
			y := float32((7 - rank) * squareSize)
			c := lightSquare
			if (rank+file)%2 == 0 {
				c = darkSquare
			}
			vector.DrawFilledRect(screen, x, y, squareSize, squareSize, c, false)

			sq := board.NewSquare(file, rank)
			if lit[sq] {
				vector.DrawFilledRect(screen, x, y, squareSize, squareSize, litSquare, false)
			}
			w.sprites.drawPieceAt(screen, pos.PieceAt(sq), file*squareSize, (7-rank)*squareSize)
		}
	}

	if frame != nil {
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Translate(12, boardPixels+6)
		screen.DrawImage(frame, op)
	}
}

func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}
