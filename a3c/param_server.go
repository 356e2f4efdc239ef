package a3c

import (
	"errors"
	"sync"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// ErrClosed is returned when a parameter server call
// fails because it is already closed.
var ErrClosed = errors.New("parameter server is closed")

// A ParamServer manages a shared set of parameters.
type ParamServer interface {
	// LocalCopy creates a copy of the global agent
	// in a thread-safe manner.
	LocalCopy() (*LocalAgent, error)

	// Sync updates the local parameters to reflect the
	// latest parameters.
	Sync(l *LocalAgent) error

	// Update updates the global parameters based on the
	// gradient from a local agent.
	//
	// Once Update receives a gradient, it owns that
	// gradient forever.
	//
	// This may block, but it may also be asynchronous.
	Update(g anydiff.Grad, l *LocalAgent) error

	// Close terminates the server and cleans up any
	// resources associated with it.
	//
	// Close will block until it is no longer updating the
	// global policy on any Goroutine.
	Close() error
}

// VanillaParamServer creates a ParamServer that applies
// plain gradient steps.
//
// The params argument specifies the subset of the agent's
// parameters to update.
// The anynet.AllParameters function must be able to see
// all of the parameters.
func VanillaParamServer(agent *Agent, params []*anydiff.Var,
	stepSize float64) ParamServer {
	return newParamServer(agent, params, stepSize, func() anysgd.Transformer {
		return nil
	})
}

// RMSPropParamServer creates a ParamServer that applies
// shared RMSProp.
//
// The arguments are similar to the arguments for
// VanillaParamServer.
func RMSPropParamServer(agent *Agent, params []*anydiff.Var,
	stepSize float64, r anysgd.RMSProp) ParamServer {
	return newParamServer(agent, params, stepSize, func() anysgd.Transformer {
		return &anysgd.RMSProp{
			DecayRate: r.DecayRate,
			Damping:   r.Damping,
		}
	})
}

// AdamParamServer creates a ParamServer that applies
// Adam with moments shared by every worker.
//
// The arguments are similar to the arguments for
// VanillaParamServer.
func AdamParamServer(agent *Agent, params []*anydiff.Var,
	stepSize float64, a anysgd.Adam) ParamServer {
	return newParamServer(agent, params, stepSize, func() anysgd.Transformer {
		return &anysgd.Adam{
			DecayRate1: a.DecayRate1,
			DecayRate2: a.DecayRate2,
			Damping:    a.Damping,
		}
	})
}

// paramServer stores the global parameters as references
// and guards each one with its own lock and updater
// Goroutine.
type paramServer struct {
	Agent    *Agent
	Updaters []*paramUpdater
	Wg       sync.WaitGroup

	// Lock for reading during all calls; lock for
	// writing during an actual Close.
	CloseLock sync.RWMutex
	Closed    bool
}

func newParamServer(agent *Agent, params []*anydiff.Var, stepSize float64,
	trans func() anysgd.Transformer) *paramServer {
	res := &paramServer{Agent: agent}
	for _, param := range params {
		u := &paramUpdater{
			Param:    param,
			StepSize: stepSize,
			Trans:    trans(),
			Ch:       make(chan anyvec.Vector, 1),
		}
		res.Updaters = append(res.Updaters, u)
		res.Wg.Add(1)
		go func() {
			defer res.Wg.Done()
			u.Loop()
		}()
	}
	return res
}

func (p *paramServer) LocalCopy() (agent *LocalAgent, err error) {
	defer essentials.AddCtxTo("copy global agent", &err)

	p.CloseLock.RLock()
	defer p.CloseLock.RUnlock()
	if p.Closed {
		return nil, ErrClosed
	}

	for _, u := range p.Updaters {
		u.Lock.RLock()
		defer u.Lock.RUnlock()
	}

	copied, err := p.Agent.Copy()
	if err != nil {
		return nil, err
	}

	globalToLocal := map[*anydiff.Var]*anydiff.Var{}
	locals := copied.AllParameters()
	for i, globalParam := range p.Agent.AllParameters() {
		globalToLocal[globalParam] = locals[i]
	}

	params := make([]*anydiff.Var, len(p.Updaters))
	for i, u := range p.Updaters {
		local, ok := globalToLocal[u.Param]
		if !ok {
			return nil, errors.New("parameter not visible to anynet.AllParameters")
		}
		params[i] = local
	}

	return &LocalAgent{Agent: copied, Params: params}, nil
}

func (p *paramServer) Sync(l *LocalAgent) (err error) {
	defer essentials.AddCtxTo("sync local agent", &err)

	p.CloseLock.RLock()
	defer p.CloseLock.RUnlock()
	if p.Closed {
		return ErrClosed
	}

	essentials.ConcurrentMap(0, len(l.Params), func(i int) {
		u := p.Updaters[i]
		u.Lock.RLock()
		l.Params[i].Vector.Set(u.Param.Vector)
		u.Lock.RUnlock()
	})
	return nil
}

func (p *paramServer) Update(g anydiff.Grad, l *LocalAgent) (err error) {
	defer essentials.AddCtxTo("update global agent", &err)

	p.CloseLock.RLock()
	defer p.CloseLock.RUnlock()
	if p.Closed {
		return ErrClosed
	}

	// The update is asynchronous, but blocking here
	// gives back-pressure when updaters fall behind.
	essentials.ConcurrentMap(0, len(l.Params), func(i int) {
		p.Updaters[i].Ch <- g[l.Params[i]]
	})
	return nil
}

func (p *paramServer) Close() error {
	p.CloseLock.Lock()
	defer p.CloseLock.Unlock()
	if !p.Closed {
		p.Closed = true
		for _, u := range p.Updaters {
			close(u.Ch)
		}
		p.Wg.Wait()
	}
	return nil
}

// paramUpdater applies incoming gradients to a single
// global parameter.
//
// If Trans is nil, gradients are applied directly.
type paramUpdater struct {
	Param    *anydiff.Var
	StepSize float64
	Trans    anysgd.Transformer
	Ch       chan anyvec.Vector
	Lock     sync.RWMutex
}

func (p *paramUpdater) Loop() {
	for change := range p.Ch {
		if p.Trans != nil {
			change = p.Trans.Transform(anydiff.Grad{p.Param: change})[p.Param]
		}
		change.Scale(change.Creator().MakeNumeric(p.StepSize))
		p.Lock.Lock()
		p.Param.Vector.Add(change)
		p.Lock.Unlock()
	}
}
