package a3c

import (
	"errors"
	"fmt"

	"github.com/sarminh/pongrl"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// errEpisodeOver is returned when a worker is asked to act
// in an episode that already ended.
var errEpisodeOver = errors.New("step after end of episode")

// A worker drives one environment with its own copy of
// the agent.
type worker struct {
	Creator anyvec.Creator

	ID int

	Agent *LocalAgent
	Env   pongrl.Env

	// ObsSize is the observation length, fixed by the
	// first Reset.
	ObsSize int

	EnvObs  anyvec.Vector
	EnvDone bool

	// StepIdx counts steps in the current episode.
	StepIdx int

	// Episodes counts finished episodes.
	Episodes int

	// AgentRes holds the base, actor, and critic results
	// for EnvObs, or nil if the agent has not seen it yet.
	AgentRes []anyrnn.Res

	// AgentState holds the base, actor, and critic states
	// to feed with the next observation.
	AgentState []anyrnn.State

	RewardSum float64
}

func newWorker(c anyvec.Creator, id int, env pongrl.Env, p ParamServer) (*worker, error) {
	agent, err := p.LocalCopy()
	if err != nil {
		return nil, err
	}
	return &worker{
		Creator:    c,
		ID:         id,
		Agent:      agent,
		Env:        env,
		AgentState: make([]anyrnn.State, 3),
	}, nil
}

// Reset begins an episode from zero RNN states.
func (w *worker) Reset() error {
	rawObs, err := w.Env.Reset()
	if err != nil {
		return err
	}
	if err := w.setObs(rawObs); err != nil {
		return err
	}
	w.EnvDone = false
	for i, block := range w.blocks() {
		w.AgentState[i] = block.Start(1)
	}
	w.AgentRes = nil
	w.RewardSum = 0
	w.StepIdx = 0
	return nil
}

// EndEpisode reports the finished episode to l, which may
// be nil, and starts the next one.
func (w *worker) EndEpisode(l Logger) error {
	if !w.EnvDone {
		return errors.New("episode still running")
	}
	w.Episodes++
	if l != nil {
		l.LogEpisode(w.ID, w.RewardSum)
	}
	return w.Reset()
}

// StepAgent feeds EnvObs through the agent, once per
// observation.
func (w *worker) StepAgent() {
	if w.AgentRes != nil {
		return
	}
	blocks := w.blocks()
	baseOut := blocks[0].Step(w.AgentState[0], w.EnvObs)
	actorOut := blocks[1].Step(w.AgentState[1], baseOut.Output())
	criticOut := blocks[2].Step(w.AgentState[2], baseOut.Output())
	w.AgentRes = []anyrnn.Res{baseOut, actorOut, criticOut}
	for i, res := range w.AgentRes {
		w.AgentState[i] = res.State()
	}
}

// StepEnv samples an action from AgentRes and sends it to
// the environment.
func (w *worker) StepEnv() (reward float64, action anyvec.Vector, err error) {
	if w.EnvDone {
		return 0, nil, errEpisodeOver
	}
	if w.AgentRes == nil {
		return 0, nil, errors.New("step before agent evaluation")
	}
	action = w.Agent.ActionSpace.Sample(w.AgentRes[1].Output(), 1)
	newObs, reward, done, err := w.Env.Step(w.Creator.Float64Slice(action.Data()))
	if err != nil {
		return 0, nil, err
	}
	if err := w.setObs(newObs); err != nil {
		return 0, nil, err
	}
	w.EnvDone = done
	w.RewardSum += reward
	w.AgentRes = nil
	w.StepIdx++
	return reward, action, nil
}

// PeekCritic evaluates the critic on EnvObs while leaving
// AgentState untouched.
func (w *worker) PeekCritic() anyvec.Vector {
	blocks := w.blocks()
	baseOut := blocks[0].Step(w.AgentState[0], w.EnvObs)
	criticOut := blocks[2].Step(w.AgentState[2], baseOut.Output())
	return criticOut.Output()
}

func (w *worker) setObs(obs []float64) error {
	if len(obs) == 0 {
		return errors.New("empty observation")
	}
	if w.ObsSize == 0 {
		w.ObsSize = len(obs)
	} else if len(obs) != w.ObsSize {
		return fmt.Errorf("observation size changed from %d to %d", w.ObsSize, len(obs))
	}
	w.EnvObs = anyvec.Make(w.Creator, obs)
	return nil
}

func (w *worker) blocks() []anyrnn.Block {
	return []anyrnn.Block{w.Agent.Base, w.Agent.Actor, w.Agent.Critic}
}
