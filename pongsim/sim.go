// Package pongsim implements a small deterministic Pong
// game which renders frames in the layout of the Atari 2600
// version.
//
// It lets agents train and play without a gym server.
package pongsim

import (
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/sarminh/pongrl"
	"github.com/unixpickle/essentials"
)

// Available actions, matching the Atari Pong action set.
const (
	ActionNoop = iota
	ActionFire
	ActionUp
	ActionDown
	ActionUpFire
	ActionDownFire

	NumActions
)

// Playfield geometry, in pixels.
const (
	FieldTop    = 34
	FieldBottom = 194

	PaddleWidth  = 4
	PaddleHeight = 16
	BallWidth    = 2
	BallHeight   = 4

	AgentX    = 140
	OpponentX = 16
)

var errTerminated = errors.New("episode is over")

// Config configures a Sim.
type Config struct {
	// MaxScore is the score which ends the game.
	MaxScore int

	// FrameSkip is the number of frames an action is
	// repeated for.
	FrameSkip int

	PaddleSpeed   int
	OpponentSpeed int

	// Seed controls serve angles.
	Seed int64

	// FrameDir is a directory where Render writes PNG
	// images. If empty, Render does nothing.
	FrameDir string
}

// DefaultConfig returns the standard game settings.
func DefaultConfig() Config {
	return Config{
		MaxScore:      21,
		FrameSkip:     2,
		PaddleSpeed:   4,
		OpponentSpeed: 2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxScore < 1 {
		return fmt.Errorf("invalid max score: %d", c.MaxScore)
	}
	if c.FrameSkip < 1 {
		return fmt.Errorf("invalid frame skip: %d", c.FrameSkip)
	}
	if c.PaddleSpeed < 1 || c.OpponentSpeed < 0 {
		return errors.New("invalid paddle speed")
	}
	return nil
}

// Factory creates a pongrl.SimulatorFactory.
//
// Each simulator it creates gets its own seed, derived
// from cfg.Seed, so that parallel workers see different
// games.
func Factory(cfg Config) pongrl.SimulatorFactory {
	var counter int64
	return func() (pongrl.Simulator, error) {
		c := cfg
		c.Seed += atomic.AddInt64(&counter, 1) - 1
		return New(c)
	}
}

type ball struct {
	X, Y   int
	VX, VY int
}

// Sim is a two-player Pong game where the agent controls
// the right paddle and a scripted opponent controls the
// left one.
type Sim struct {
	Config Config

	rng *rand.Rand

	agentY    int
	opponentY int
	ball      ball

	agentScore    int
	opponentScore int
	serveRight    bool

	frame    *pongrl.Frame
	dirty    bool
	rendered int
}

// New creates a Sim and resets it.
func New(cfg Config) (sim *Sim, err error) {
	defer essentials.AddCtxTo("create pong simulator", &err)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sim = &Sim{Config: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
	if err := sim.Reset(); err != nil {
		return nil, err
	}
	return sim, nil
}

// Reset starts a new game.
func (s *Sim) Reset() error {
	center := (FieldTop+FieldBottom)/2 - PaddleHeight/2
	s.agentY = center
	s.opponentY = center
	s.agentScore = 0
	s.opponentScore = 0
	s.serveRight = s.rng.Intn(2) == 0
	s.serve()
	s.dirty = true
	return nil
}

// Step advances the game with an action, returning the
// total reward over the skipped frames.
func (s *Sim) Step(action int) (reward float64, err error) {
	if action < 0 || action >= NumActions {
		return 0, fmt.Errorf("pong step: invalid action %d", action)
	}
	if s.Terminated() {
		return 0, essentials.AddCtx("pong step", errTerminated)
	}
	for i := 0; i < s.Config.FrameSkip && !s.Terminated(); i++ {
		reward += s.frameStep(action)
	}
	s.dirty = true
	return reward, nil
}

// State returns the current frame.
//
// The caller must not modify the frame.
func (s *Sim) State() *pongrl.Frame {
	if s.dirty || s.frame == nil {
		s.frame = s.draw().frame()
		s.dirty = false
	}
	return s.frame
}

// Terminated returns true once either player has reached
// the maximum score.
func (s *Sim) Terminated() bool {
	return s.agentScore >= s.Config.MaxScore ||
		s.opponentScore >= s.Config.MaxScore
}

// Score returns the agent's and the opponent's scores.
func (s *Sim) Score() (agent, opponent int) {
	return s.agentScore, s.opponentScore
}

// NumActions returns NumActions.
func (s *Sim) NumActions() int {
	return NumActions
}

// Render saves the current frame as a PNG in the frame
// directory, if there is one.
func (s *Sim) Render() error {
	if s.Config.FrameDir == "" {
		return nil
	}
	s.rendered++
	return s.draw().save(s.Config.FrameDir, s.rendered)
}

// Close does nothing.
func (s *Sim) Close() error {
	return nil
}

func (s *Sim) serve() {
	s.ball = ball{
		X:  80 - BallWidth/2,
		Y:  (FieldTop+FieldBottom)/2 - BallHeight/2,
		VX: -2,
		VY: []int{-2, -1, 1, 2}[s.rng.Intn(4)],
	}
	if s.serveRight {
		s.ball.VX = 2
	}
}

func (s *Sim) frameStep(action int) float64 {
	switch action {
	case ActionUp, ActionUpFire:
		s.agentY -= s.Config.PaddleSpeed
	case ActionDown, ActionDownFire:
		s.agentY += s.Config.PaddleSpeed
	}
	s.agentY = clampPaddle(s.agentY)

	target := s.ball.Y + BallHeight/2 - PaddleHeight/2
	delta := essentials.MaxInt(-s.Config.OpponentSpeed,
		essentials.MinInt(s.Config.OpponentSpeed, target-s.opponentY))
	s.opponentY = clampPaddle(s.opponentY + delta)

	b := &s.ball
	oldX := b.X
	b.X += b.VX
	b.Y += b.VY
	if b.Y < FieldTop {
		b.Y = 2*FieldTop - b.Y
		b.VY = -b.VY
	} else if b.Y+BallHeight > FieldBottom {
		b.Y = 2*(FieldBottom-BallHeight) - b.Y
		b.VY = -b.VY
	}

	if b.VX > 0 && oldX+BallWidth <= AgentX && b.X+BallWidth >= AgentX &&
		overlaps(b.Y, s.agentY) {
		b.X = AgentX - BallWidth
		b.VX = -b.VX
		b.VY = spin(b.Y, s.agentY)
	} else if b.VX < 0 && oldX >= OpponentX+PaddleWidth &&
		b.X <= OpponentX+PaddleWidth && overlaps(b.Y, s.opponentY) {
		b.X = OpponentX + PaddleWidth
		b.VX = -b.VX
		b.VY = spin(b.Y, s.opponentY)
	}

	switch {
	case b.X >= pongrl.FrameWidth:
		s.opponentScore++
		s.serveRight = true
		s.serve()
		return -1
	case b.X+BallWidth <= 0:
		s.agentScore++
		s.serveRight = false
		s.serve()
		return 1
	}
	return 0
}

func clampPaddle(y int) int {
	return essentials.MaxInt(FieldTop, essentials.MinInt(FieldBottom-PaddleHeight, y))
}

func overlaps(ballY, paddleY int) bool {
	return ballY+BallHeight > paddleY && ballY < paddleY+PaddleHeight
}

// spin computes the vertical velocity after a hit, which
// depends on how far from the paddle's center the ball
// struck.
func spin(ballY, paddleY int) int {
	offset := (ballY + BallHeight/2) - (paddleY + PaddleHeight/2)
	return essentials.MaxInt(-3, essentials.MinInt(3, offset/3))
}
