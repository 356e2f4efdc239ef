package pongrl

import (
	"errors"
	"fmt"
)

// Screen geometry of Atari Pong.
const (
	FrameWidth  = 160
	FrameHeight = 210
)

// PongBackground is the channel sum of the brown playing
// field in Atari Pong, whose color is (144, 72, 17).
const PongBackground = 144 + 72 + 17

var errNoFrame = errors.New("no frame available")

// An Observation is a binary image produced from a Frame.
//
// Data is row-major with Rows*Cols entries, each of which
// is 0 (background) or 1 (foreground).
type Observation struct {
	Rows int
	Cols int
	Data []float64
}

// At returns the entry at the given row and column.
func (o *Observation) At(row, col int) float64 {
	return o.Data[row*o.Cols+col]
}

// A Preprocessor turns raw frames into binary
// observations.
//
// A frame is cropped to the rows [Top, Bottom) and the
// columns [Left, Right), subsampled by Stride in both
// directions, and thresholded: a pixel becomes 1 when the
// sum of its color channels differs from Background.
type Preprocessor struct {
	// Width and Height are the expected frame dimensions.
	Width  int
	Height int

	Top    int
	Bottom int
	Left   int
	Right  int
	Stride int

	Background int
}

// DefaultPreprocessor creates the Preprocessor for Atari
// Pong, which produces 80x80 observations from 210x160
// frames.
func DefaultPreprocessor() *Preprocessor {
	return &Preprocessor{
		Width:      FrameWidth,
		Height:     FrameHeight,
		Top:        34,
		Bottom:     194,
		Left:       0,
		Right:      FrameWidth - 1,
		Stride:     2,
		Background: PongBackground,
	}
}

// Validate checks that the crop bounds fit in a frame.
func (p *Preprocessor) Validate() error {
	if p.Stride <= 0 {
		return fmt.Errorf("invalid stride: %d", p.Stride)
	}
	if p.Top < 0 || p.Bottom > p.Height || p.Top >= p.Bottom {
		return fmt.Errorf("invalid row crop [%d, %d) for height %d", p.Top,
			p.Bottom, p.Height)
	}
	if p.Left < 0 || p.Right > p.Width || p.Left >= p.Right {
		return fmt.Errorf("invalid column crop [%d, %d) for width %d", p.Left,
			p.Right, p.Width)
	}
	return nil
}

// ObservationShape returns the dimensions of every
// observation produced by p.
func (p *Preprocessor) ObservationShape() (rows, cols int) {
	return stridedCount(p.Top, p.Bottom, p.Stride),
		stridedCount(p.Left, p.Right, p.Stride)
}

// ObservationSize returns rows*cols for the observation
// shape.
func (p *Preprocessor) ObservationSize() int {
	rows, cols := p.ObservationShape()
	return rows * cols
}

// Observe computes the observation for a frame.
//
// It fails if the frame does not have the configured
// dimensions.
func (p *Preprocessor) Observe(f *Frame) (obs *Observation, err error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := f.validate(p.Width, p.Height); err != nil {
		return nil, err
	}
	rows, cols := p.ObservationShape()
	obs = &Observation{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, 0, rows*cols),
	}
	for y := p.Top; y < p.Bottom; y += p.Stride {
		row := f.Pix[3*y*f.Width:]
		for x := p.Left; x < p.Right; x += p.Stride {
			sum := int(row[3*x]) + int(row[3*x+1]) + int(row[3*x+2])
			if sum != p.Background {
				obs.Data = append(obs.Data, 1)
			} else {
				obs.Data = append(obs.Data, 0)
			}
		}
	}
	return obs, nil
}

func stridedCount(start, end, stride int) int {
	if end <= start || stride <= 0 {
		return 0
	}
	return (end - start + stride - 1) / stride
}
