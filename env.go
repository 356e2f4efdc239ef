package pongrl

import (
	"errors"
	"fmt"

	"github.com/unixpickle/essentials"
)

var errNoAction = errors.New("no one-hot value is set")

// Env is an instance of an RL environment.
//
// Observations are flattened vectors and actions are
// one-hot vectors over the discrete action set.
type Env interface {
	Reset() (observation []float64, err error)
	Step(action []float64) (observation []float64,
		reward float64, done bool, err error)
}

// A Simulator is a game emulator that produces raw
// frames.
type Simulator interface {
	// Reset starts a new episode.
	Reset() error

	// Step applies a discrete action and returns the
	// resulting reward.
	Step(action int) (reward float64, err error)

	// State returns the latest frame.
	// It is nil until Reset has been called.
	State() *Frame

	// Terminated reports whether the episode is over.
	Terminated() bool

	// Render displays or records the latest frame.
	Render() error

	// NumActions returns the size of the action set.
	NumActions() int

	Close() error
}

// A SimulatorFactory creates fresh, independent
// simulators.
type SimulatorFactory func() (Simulator, error)

// PreprocessEnv exposes a Simulator as an Env whose
// observations are preprocessed frames.
type PreprocessEnv struct {
	Sim          Simulator
	Factory      SimulatorFactory
	Preprocessor *Preprocessor

	// RenderSteps, if set, renders the simulator after
	// every reset and step.
	RenderSteps bool
}

// NewPreprocessEnv creates a PreprocessEnv with a new
// simulator from the factory.
//
// If pre is nil, DefaultPreprocessor is used.
func NewPreprocessEnv(f SimulatorFactory, pre *Preprocessor) (env *PreprocessEnv,
	err error) {
	defer essentials.AddCtxTo("create preprocess env", &err)
	if pre == nil {
		pre = DefaultPreprocessor()
	}
	if err := pre.Validate(); err != nil {
		return nil, err
	}
	sim, err := f()
	if err != nil {
		return nil, err
	}
	return &PreprocessEnv{Sim: sim, Factory: f, Preprocessor: pre}, nil
}

// Duplicate creates an independent environment with its
// own simulator.
//
// The copy shares no mutable state with p, and it must be
// reset before use.
func (p *PreprocessEnv) Duplicate() (env *PreprocessEnv, err error) {
	defer essentials.AddCtxTo("duplicate preprocess env", &err)
	sim, err := p.Factory()
	if err != nil {
		return nil, err
	}
	pre := *p.Preprocessor
	return &PreprocessEnv{
		Sim:          sim,
		Factory:      p.Factory,
		Preprocessor: &pre,
		RenderSteps:  p.RenderSteps,
	}, nil
}

// NumActions returns the length of action vectors.
func (p *PreprocessEnv) NumActions() int {
	return p.Sim.NumActions()
}

// Observation preprocesses the simulator's latest frame.
func (p *PreprocessEnv) Observation() (*Observation, error) {
	return p.Preprocessor.Observe(p.Sim.State())
}

// Terminated reports whether the current episode is over.
func (p *PreprocessEnv) Terminated() bool {
	return p.Sim.Terminated()
}

// Render renders the simulator.
func (p *PreprocessEnv) Render() error {
	return p.Sim.Render()
}

// Reset resets the simulator.
func (p *PreprocessEnv) Reset() (obs []float64, err error) {
	defer essentials.AddCtxTo("reset preprocess env", &err)
	if err := p.Sim.Reset(); err != nil {
		return nil, err
	}
	return p.observe()
}

// Step takes a one-hot action.
func (p *PreprocessEnv) Step(action []float64) (obs []float64, reward float64,
	done bool, err error) {
	defer essentials.AddCtxTo("step preprocess env", &err)
	idx, err := OneHotIndex(action, p.Sim.NumActions())
	if err != nil {
		return
	}
	reward, err = p.Sim.Step(idx)
	if err != nil {
		return
	}
	obs, err = p.observe()
	done = p.Sim.Terminated()
	return
}

// Close closes the underlying simulator.
func (p *PreprocessEnv) Close() error {
	return p.Sim.Close()
}

func (p *PreprocessEnv) observe() ([]float64, error) {
	if p.RenderSteps {
		if err := p.Sim.Render(); err != nil {
			return nil, err
		}
	}
	o, err := p.Observation()
	if err != nil {
		return nil, err
	}
	return o.Data, nil
}

// OneHotIndex finds the set entry in a one-hot vector of
// length n.
func OneHotIndex(action []float64, n int) (int, error) {
	if len(action) != n {
		return 0, fmt.Errorf("action has length %d but expected %d", len(action), n)
	}
	for i, x := range action {
		if x != 0 {
			return i, nil
		}
	}
	return 0, errNoAction
}

// OneHot creates a one-hot vector of length n.
func OneHot(idx, n int) []float64 {
	res := make([]float64, n)
	res[idx] = 1
	return res
}
