// Package policy implements the recurrent actor-critic
// network used to play Pong.
//
// A Policy maps an observation and a recurrent state to
// action probabilities, a value estimate, and the next
// recurrent state.
package policy

import (
	"errors"
	"fmt"

	"github.com/sarminh/pongrl"
	"github.com/sarminh/pongrl/a3c"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// Output is the result of a single policy timestep.
type Output struct {
	// Probs is a distribution over the actions.
	Probs []float64

	// Value is the critic's estimate of the return.
	Value float64

	// State is the recurrent state for the next step.
	State []float64
}

// A Policy evaluates an agent one timestep at a time.
type Policy struct {
	Creator anyvec.Creator
	Agent   *a3c.Agent
	Config  Config
}

// New creates a Policy with a fresh network.
func New(c anyvec.Creator, cfg Config) (*Policy, error) {
	agent, err := NewAgent(c, cfg)
	if err != nil {
		return nil, err
	}
	return &Policy{Creator: c, Agent: agent, Config: cfg}, nil
}

// FromAgent wraps an existing agent, such as a global
// agent from training, after checking that its layout
// and layer sizes match cfg.
func FromAgent(agent *a3c.Agent, cfg Config) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkAgent(agent, cfg); err != nil {
		return nil, err
	}
	params := agent.AllParameters()
	if len(params) == 0 {
		return nil, errors.New("agent has no parameters")
	}
	return &Policy{
		Creator: params[0].Vector.Creator(),
		Agent:   agent,
		Config:  cfg,
	}, nil
}

// Load loads a Policy saved with Save.
func Load(path string, cfg Config) (p *Policy, err error) {
	defer essentials.AddCtxTo("load policy", &err)
	agent, err := a3c.LoadAgent(path, pongrl.Softmax{})
	if err != nil {
		return nil, err
	}
	return FromAgent(agent, cfg)
}

// Save saves the policy's network.
func (p *Policy) Save(path string) error {
	return p.Agent.Save(path)
}

// InitialState returns the all-zero recurrent state used
// at the start of an episode.
func (p *Policy) InitialState() []float64 {
	return make([]float64, p.Config.StateSize)
}

// Step applies the policy to an observation.
func (p *Policy) Step(obs, state []float64) (out *Output, err error) {
	if len(obs) != p.Config.ObservationSize() {
		return nil, fmt.Errorf("policy step: observation size %d (expected %d)",
			len(obs), p.Config.ObservationSize())
	}
	if len(state) != p.Config.StateSize {
		return nil, fmt.Errorf("policy step: state size %d (expected %d)",
			len(state), p.Config.StateSize)
	}
	c := p.Creator

	baseState := p.Agent.Base.Start(1)
	recurrentState(baseState).Vector.SetData(c.MakeNumericList(state))

	baseOut := p.Agent.Base.Step(baseState, anyvec.Make(c, obs))
	features := baseOut.Output()
	actorOut := p.Agent.Actor.Step(p.Agent.Actor.Start(1), features)
	criticOut := p.Agent.Critic.Step(p.Agent.Critic.Start(1), features)

	return &Output{
		Probs: pongrl.Softmax{}.Probs(actorOut.Output()),
		Value: c.Float64(anyvec.Sum(criticOut.Output())),
		State: c.Float64Slice(recurrentState(baseOut.State()).Vector.Data()),
	}, nil
}

// A Player selects actions with a Policy, carrying the
// recurrent state from one step to the next.
type Player struct {
	Policy *Policy

	// Deterministic selects the most likely action instead
	// of sampling.
	Deterministic bool

	state []float64
	last  *Output
}

// NewPlayer creates a Player at the start of an episode.
func NewPlayer(p *Policy, deterministic bool) *Player {
	res := &Player{Policy: p, Deterministic: deterministic}
	res.Reset()
	return res
}

// Reset clears the recurrent state for a new episode.
func (p *Player) Reset() {
	p.state = p.Policy.InitialState()
	p.last = nil
}

// SelectAction picks an action index for an observation.
func (p *Player) SelectAction(obs []float64) (int, error) {
	if p.state == nil {
		p.Reset()
	}
	out, err := p.Policy.Step(obs, p.state)
	if err != nil {
		return 0, err
	}
	p.state = out.State
	p.last = out
	if p.Deterministic {
		return pongrl.ArgMax(out.Probs), nil
	}
	return pongrl.SampleIndex(out.Probs), nil
}

// Last returns the output from the latest SelectAction,
// or nil after a Reset.
func (p *Player) Last() *Output {
	return p.last
}

// State returns the current recurrent state.
func (p *Player) State() []float64 {
	return append([]float64{}, p.state...)
}
