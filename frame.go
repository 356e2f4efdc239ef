package pongrl

import (
	"fmt"

	"github.com/unixpickle/essentials"
)

// Frame is a raw RGB screen produced by a Simulator.
//
// Pixels are stored row-major with the three color
// channels interleaved, so the pixel at (x, y) starts at
// Pix[3*(y*Width+x)].
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewFrame creates a frame of the given size filled with
// a single color.
func NewFrame(width, height int, r, g, b uint8) *Frame {
	f := &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
	f.FillRect(0, 0, width, height, r, g, b)
	return f
}

// RGB returns the color of the pixel at (x, y).
func (f *Frame) RGB(x, y int) (r, g, b uint8) {
	idx := 3 * (y*f.Width + x)
	return f.Pix[idx], f.Pix[idx+1], f.Pix[idx+2]
}

// FillRect paints the rectangle [x0, x1) x [y0, y1).
//
// The rectangle is clipped to the frame.
func (f *Frame) FillRect(x0, y0, x1, y1 int, r, g, b uint8) {
	x0, x1 = clamp(x0, 0, f.Width), clamp(x1, 0, f.Width)
	y0, y1 = clamp(y0, 0, f.Height), clamp(y1, 0, f.Height)
	for y := y0; y < y1; y++ {
		row := f.Pix[3*y*f.Width:]
		for x := x0; x < x1; x++ {
			row[3*x] = r
			row[3*x+1] = g
			row[3*x+2] = b
		}
	}
}

// Copy creates a deep copy of the frame.
func (f *Frame) Copy() *Frame {
	return &Frame{
		Width:  f.Width,
		Height: f.Height,
		Pix:    append([]uint8{}, f.Pix...),
	}
}

func (f *Frame) validate(width, height int) error {
	if f == nil {
		return errNoFrame
	}
	if f.Width != width || f.Height != height {
		return fmt.Errorf("frame is %dx%d but expected %dx%d", f.Width, f.Height,
			width, height)
	}
	if len(f.Pix) != width*height*3 {
		return fmt.Errorf("frame has %d bytes but expected %d", len(f.Pix),
			width*height*3)
	}
	return nil
}

func clamp(x, min, max int) int {
	return essentials.MaxInt(min, essentials.MinInt(x, max))
}
