// Package a3c implements Asynchronous Advantage
// Actor-Critic, a Reinforcement Learning algorithm from
// https://arxiv.org/abs/1602.01783.
//
// Every worker owns an environment and a local copy of a
// recurrent agent, and pushes gradients to a shared
// ParamServer after each partial rollout.
package a3c

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sarminh/pongrl"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A3C holds the configuration for an instance of A3C.
type A3C struct {
	Creator     anyvec.Creator
	ParamServer ParamServer
	Logger      Logger

	// Discount is the reward discount factor.
	//
	// If 0, then no discount is used.
	Discount float64

	// Lambda is the GAE parameter used to estimate
	// advantages for the actor.
	//
	// If 0 (or 1), n-step advantages are used.
	Lambda float64

	// ValueWeight scales the critic's squared error
	// relative to the actor objective.
	//
	// If 0, a weight of 1 is used.
	ValueWeight float64

	// MaxSteps is the maximum number of steps to take before
	// doing a parameter update.
	//
	// If 0, then episodes are completed before updates.
	MaxSteps int

	// Regularizer is used to regularize the actor.
	//
	// If nil, no regularization is used.
	Regularizer Regularizer
}

// Run runs A3C with a worker for each environment.
//
// If ctx is cancelled, this finishes gracefully and
// returns nil.
// If any environment produces an error, this stops and
// returns the error.
func (a *A3C) Run(ctx context.Context, envs []pongrl.Env) (err error) {
	defer essentials.AddCtxTo("run A3C", &err)
	_, err = a.run(ctx, envs, 0)
	return
}

// Fit runs A3C until the workers have taken a total of
// numSteps environment steps, or until ctx is cancelled.
//
// It returns the number of steps actually taken, which
// may exceed numSteps by up to one rollout per worker.
func (a *A3C) Fit(ctx context.Context, envs []pongrl.Env, numSteps int) (steps int,
	err error) {
	defer essentials.AddCtxTo("fit A3C", &err)
	if numSteps <= 0 {
		return 0, errors.New("step count must be positive")
	}
	return a.run(ctx, envs, int64(numSteps))
}

func (a *A3C) run(ctx context.Context, envs []pongrl.Env, budget int64) (int, error) {
	if len(envs) == 0 {
		return 0, errors.New("no environments")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var steps int64
	errChan := make(chan error, len(envs))
	var wg sync.WaitGroup
	for i, e := range envs {
		wg.Add(1)
		go func(i int, e pongrl.Env) {
			defer wg.Done()
			err := a.worker(ctx, i, e, func(n int) {
				if total := atomic.AddInt64(&steps, int64(n)); budget > 0 &&
					total >= budget {
					cancel()
				}
			})
			if err != nil {
				errChan <- err
			}
		}(i, e)
	}

	var err error
	select {
	case err = <-errChan:
	case <-ctx.Done():
	}
	cancel()

	wg.Wait()
	if err == nil {
		select {
		case err = <-errChan:
		default:
		}
	}
	return int(atomic.LoadInt64(&steps)), err
}

func (a *A3C) worker(ctx context.Context, id int, env pongrl.Env,
	progress func(steps int)) error {
	w, err := newWorker(a.Creator, id, env, a.ParamServer)
	if err != nil {
		return err
	}
	if err := w.Reset(); err != nil {
		return err
	}

	for ctx.Err() == nil {
		n, err := a.update(w)
		if err != nil {
			return err
		}
		progress(n)
		if w.EnvDone {
			if err := w.EndEpisode(a.Logger); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *A3C) update(w *worker) (int, error) {
	if err := a.ParamServer.Sync(w.Agent); err != nil {
		return 0, err
	}
	r, err := runRollout(w, a.MaxSteps)
	if err != nil {
		return 0, err
	}
	b := &bptt{
		Rollout:     r,
		Worker:      w,
		Discount:    a.Discount,
		Lambda:      a.Lambda,
		ValueWeight: a.ValueWeight,
		Regularizer: a.Regularizer,
		Logger:      a.Logger,
	}
	if b.Discount == 0 {
		b.Discount = 1
	}
	if b.ValueWeight == 0 {
		b.ValueWeight = 1
	}
	grad, mse := b.Run()
	if err := a.ParamServer.Update(grad, w.Agent); err != nil {
		return 0, err
	}
	if a.Logger != nil {
		a.Logger.LogUpdate(w.ID, mse)
	}
	return r.Len(), nil
}
