package a3c

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// bptt implements back-propagation through time for one
// rollout.
//
// The produced gradient points in the direction which
// increases the actor objective and decreases the weighted
// critic error.
type bptt struct {
	Rollout     *rollout
	Worker      *worker
	Discount    float64
	Lambda      float64
	ValueWeight float64
	Regularizer Regularizer
	Logger      Logger
}

// Run performs back-propagation through time.
func (b *bptt) Run() (grad anydiff.Grad, criticMSE anyvec.Numeric) {
	c := b.Worker.EnvObs.Creator()

	grad = anydiff.NewGrad(b.Worker.Agent.Params...)
	if len(b.Worker.Agent.Params) == 0 || b.Rollout.Len() == 0 {
		return grad, c.MakeNumeric(0)
	}

	values := b.Rollout.Values(c)
	criticAdv := b.Rollout.Advantages(values, b.Discount)
	actorAdv := criticAdv
	if b.Lambda > 0 && b.Lambda < 1 {
		actorAdv = b.Rollout.GAE(values, b.Discount, b.Lambda)
	}

	var sqError float64
	stateUpstream := make([]anyrnn.StateGrad, 3)
	for t := b.Rollout.Len() - 1; t >= 0; t-- {
		outReses := b.Rollout.Outs[t]
		sqError += criticAdv[t] * criticAdv[t]

		criticUpstream := c.MakeVector(1)
		criticUpstream.AddScalar(c.MakeNumeric(2 * b.ValueWeight * criticAdv[t]))
		actorUpstream := b.actorUpstream(outReses[1].Output(),
			b.Rollout.Sampled[t], actorAdv[t])

		var baseUpstream, criticBaseUpstream anyvec.Vector
		baseUpstream, stateUpstream[1] = outReses[1].Propagate(actorUpstream,
			stateUpstream[1], grad)
		criticBaseUpstream, stateUpstream[2] = outReses[2].Propagate(criticUpstream,
			stateUpstream[2], grad)
		baseUpstream.Add(criticBaseUpstream)

		_, stateUpstream[0] = outReses[0].Propagate(baseUpstream,
			stateUpstream[0], grad)
	}

	if b.Rollout.Beginning {
		for i, block := range b.Worker.blocks() {
			block.PropagateStart(stateUpstream[i], grad)
		}
	}

	return grad, c.MakeNumeric(sqError / float64(b.Rollout.Len()))
}

// actorUpstream computes the gradient of the advantage-
// weighted log-likelihood (plus regularization) with
// respect to the actor's output.
func (b *bptt) actorUpstream(params, sampled anyvec.Vector,
	advantage float64) anyvec.Vector {
	c := params.Creator()
	paramVar := anydiff.NewVar(params)
	grad := anydiff.NewGrad(paramVar)

	upstream := c.MakeVector(1)
	upstream.AddScalar(c.MakeNumeric(advantage))
	logProb := b.Worker.Agent.ActionSpace.LogProb(paramVar, sampled, 1)
	logProb.Propagate(upstream, grad)

	if b.Regularizer != nil {
		penalty := b.Regularizer.Regularize(paramVar, 1)
		upstream.SetData(c.MakeNumericList([]float64{1}))
		penalty.Propagate(upstream, grad)
		if b.Logger != nil {
			b.Logger.LogRegularize(b.Worker.ID, anyvec.Sum(penalty.Output()))
		}
	}

	return grad[paramVar]
}
