package pongsim

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/sarminh/pongrl"
)

// Colors from the Atari Pong palette.
var (
	BackgroundColor = color.RGBA{R: 144, G: 72, B: 17, A: 255}
	WallColor       = color.RGBA{R: 236, G: 236, B: 236, A: 255}
	BallColor       = color.RGBA{R: 236, G: 236, B: 236, A: 255}
	AgentColor      = color.RGBA{R: 92, G: 186, B: 92, A: 255}
	OpponentColor   = color.RGBA{R: 213, G: 130, B: 74, A: 255}
)

type canvas struct {
	dc *gg.Context
}

func (s *Sim) draw() *canvas {
	dc := gg.NewContext(pongrl.FrameWidth, pongrl.FrameHeight)
	dc.SetColor(BackgroundColor)
	dc.Clear()

	fillRect(dc, WallColor, 0, 24, pongrl.FrameWidth, FieldTop-24)
	fillRect(dc, WallColor, 0, FieldBottom, pongrl.FrameWidth,
		pongrl.FrameHeight-FieldBottom)

	// Scores are tally marks above the top wall.
	for i := 0; i < s.opponentScore; i++ {
		fillRect(dc, OpponentColor, 8+i*3, 4, 2, 12)
	}
	for i := 0; i < s.agentScore; i++ {
		fillRect(dc, AgentColor, 88+i*3, 4, 2, 12)
	}

	fillRect(dc, OpponentColor, OpponentX, s.opponentY, PaddleWidth, PaddleHeight)
	fillRect(dc, AgentColor, AgentX, s.agentY, PaddleWidth, PaddleHeight)
	fillRect(dc, BallColor, s.ball.X, s.ball.Y, BallWidth, BallHeight)

	return &canvas{dc: dc}
}

func fillRect(dc *gg.Context, c color.Color, x, y, w, h int) {
	dc.SetColor(c)
	dc.DrawRectangle(float64(x), float64(y), float64(w), float64(h))
	dc.Fill()
}

func (c *canvas) frame() *pongrl.Frame {
	img := c.dc.Image()
	bounds := img.Bounds()
	res := &pongrl.Frame{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pix:    make([]uint8, 3*bounds.Dx()*bounds.Dy()),
	}
	rgba, ok := img.(*image.RGBA)
	for y := 0; y < res.Height; y++ {
		for x := 0; x < res.Width; x++ {
			idx := 3 * (y*res.Width + x)
			if ok {
				src := rgba.PixOffset(x+bounds.Min.X, y+bounds.Min.Y)
				copy(res.Pix[idx:idx+3], rgba.Pix[src:src+3])
			} else {
				r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
				res.Pix[idx] = uint8(r >> 8)
				res.Pix[idx+1] = uint8(g >> 8)
				res.Pix[idx+2] = uint8(b >> 8)
			}
		}
	}
	return res
}

func (c *canvas) save(dir string, index int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return c.dc.SavePNG(filepath.Join(dir, fmt.Sprintf("frame-%06d.png", index)))
}
