package a3c

import (
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// rollout is a (partial) trajectory through an
// environment.
type rollout struct {
	// Beginning is true if the rollout started at the
	// beginning of the episode.
	Beginning bool

	// Bootstrap is the critic's value for the state after
	// the last step, or 0 if the episode ended.
	Bootstrap float64

	Outs    [][]anyrnn.Res
	Rewards []float64
	Sampled []anyvec.Vector
}

// runRollout generates a rollout by sampling actions
// using a worker.
//
// If maxSteps is non-zero, it limits the number of
// timesteps in the environment.
func runRollout(w *worker, maxSteps int) (*rollout, error) {
	r := &rollout{Beginning: w.StepIdx == 0}
	for t := 0; t < maxSteps || maxSteps == 0; t++ {
		w.StepAgent()
		out := w.AgentRes
		reward, action, err := w.StepEnv()
		if err != nil {
			return nil, err
		}
		r.Outs = append(r.Outs, out)
		r.Rewards = append(r.Rewards, reward)
		r.Sampled = append(r.Sampled, action)
		if w.EnvDone {
			break
		}
	}
	if !w.EnvDone {
		r.Bootstrap = w.Creator.Float64(anyvec.Sum(w.PeekCritic()))
	}
	return r, nil
}

// Len returns the number of timesteps.
func (r *rollout) Len() int {
	return len(r.Rewards)
}

// Values returns the critic outputs at every timestep.
func (r *rollout) Values(c anyvec.Creator) []float64 {
	res := make([]float64, r.Len())
	for t, outs := range r.Outs {
		res[t] = c.Float64(anyvec.Sum(outs[2].Output()))
	}
	return res
}

// Returns computes the bootstrapped discounted return at
// every timestep.
func (r *rollout) Returns(discount float64) []float64 {
	res := make([]float64, r.Len())
	following := r.Bootstrap
	for t := r.Len() - 1; t >= 0; t-- {
		following = r.Rewards[t] + discount*following
		res[t] = following
	}
	return res
}

// Advantages computes the n-step advantage estimator
// (return minus value) at every timestep.
func (r *rollout) Advantages(values []float64, discount float64) []float64 {
	res := r.Returns(discount)
	for t, v := range values {
		res[t] -= v
	}
	return res
}

// GAE computes generalized advantage estimates.
//
// Each temporal difference error
//
//     d[t] = r[t] + discount*V[t+1] - V[t]
//
// is accumulated with weight (discount*lambda)^k.
func (r *rollout) GAE(values []float64, discount, lambda float64) []float64 {
	res := make([]float64, r.Len())
	var acc float64
	next := r.Bootstrap
	for t := r.Len() - 1; t >= 0; t-- {
		delta := r.Rewards[t] + discount*next - values[t]
		acc = delta + discount*lambda*acc
		res[t] = acc
		next = values[t]
	}
	return res
}
