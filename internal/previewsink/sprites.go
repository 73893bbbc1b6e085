package previewsink

import (
	"bytes"
	"embed"
	"image"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/logging"
)

//go:embed assets/pieces/*.svg
var pieceAssets embed.FS

// spriteSet rasterizes the SVG piece glyphs once, at 3x the display
// size so downscaling with linear filtering stays sharp.
type spriteSet struct {
	pieces      map[board.Piece]*ebiten.Image
	size        int
	renderScale float64
}

var pieceFiles = map[board.Piece]string{
	board.NewPiece(board.Pawn, board.White):   "assets/pieces/wP.svg",
	board.NewPiece(board.Knight, board.White): "assets/pieces/wN.svg",
	board.NewPiece(board.Bishop, board.White): "assets/pieces/wB.svg",
	board.NewPiece(board.Rook, board.White):   "assets/pieces/wR.svg",
	board.NewPiece(board.Queen, board.White):  "assets/pieces/wQ.svg",
	board.NewPiece(board.King, board.White):   "assets/pieces/wK.svg",
	board.NewPiece(board.Pawn, board.Black):   "assets/pieces/bP.svg",
	board.NewPiece(board.Knight, board.Black): "assets/pieces/bN.svg",
	board.NewPiece(board.Bishop, board.Black): "assets/pieces/bB.svg",
	board.NewPiece(board.Rook, board.Black):   "assets/pieces/bR.svg",
	board.NewPiece(board.Queen, board.Black):  "assets/pieces/bQ.svg",
	board.NewPiece(board.King, board.Black):   "assets/pieces/bK.svg",
}

func newSpriteSet(size int, log logging.Logger) *spriteSet {
	s := &spriteSet{pieces: make(map[board.Piece]*ebiten.Image), size: size, renderScale: 3.0}
	renderSize := int(float64(size) * s.renderScale)

	for piece, path := range pieceFiles {
		data, err := pieceAssets.ReadFile(path)
		if err != nil {
			if log != nil {
				log.Errorf("previewsink: read %s: %v", path, err)
			}
			continue
		}
		icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
		if err != nil {
			if log != nil {
				log.Errorf("previewsink: parse %s: %v", path, err)
			}
			continue
		}
		icon.SetTarget(0, 0, float64(renderSize), float64(renderSize))

		rgba := image.NewRGBA(image.Rect(0, 0, renderSize, renderSize))
		scanner := rasterx.NewScannerGV(renderSize, renderSize, rgba, rgba.Bounds())
		raster := rasterx.NewDasher(renderSize, renderSize, scanner)
		icon.Draw(raster, 1.0)

		s.pieces[piece] = ebiten.NewImageFromImage(rgba)
	}
	return s
}

func (s *spriteSet) drawPieceAt(screen *ebiten.Image, p board.Piece, x, y int) {
	sprite := s.pieces[p]
	if p == board.NoPiece || sprite == nil {
		return
	}
	op := &ebiten.DrawImageOptions{}
	scale := 1.0 / s.renderScale
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(float64(x), float64(y))
	op.Filter = ebiten.FilterLinear
	screen.DrawImage(sprite, op)
}
