package pongrl

import (
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Sampler samples from a parametric distribution.
type Sampler interface {
	// Sample samples a batch of vectors given a batch
	// of parameter vectors.
	Sample(params anyvec.Vector, batchSize int) anyvec.Vector
}

// A LogProber can compute the log-likelihood of a given
// output of a parametric distribution.
type LogProber interface {
	// LogProb produces, for each parameter-output pair
	// in the batch, the natural log-probability of the
	// parameters producing that output.
	LogProb(params anydiff.Res, output anyvec.Vector,
		batchSize int) anydiff.Res
}

// An Entropyer can compute the entropy of a parametric
// probability distribution.
type Entropyer interface {
	// Entropy computes the entropy, in nats, for each
	// parameter vector in a batch.
	Entropy(params anydiff.Res, batchSize int) anydiff.Res
}

// Softmax is an action space which applies the softmax
// function to logits to obtain a categorical
// distribution.
// It produces one-hot vector samples.
type Softmax struct{}

// Sample samples one-hot vectors from the softmax
// distribution.
func (s Softmax) Sample(params anyvec.Vector, batch int) anyvec.Vector {
	if params.Len()%batch != 0 {
		panic("batch size must divide parameter count")
	}

	chunkSize := params.Len() / batch
	probBatch := softmaxProbs(params, chunkSize)

	var oneHots []float64
	for i := 0; i < batch; i++ {
		subset := probBatch[i*chunkSize : (i+1)*chunkSize]
		oneHots = append(oneHots, OneHot(SampleIndex(subset), chunkSize)...)
	}

	return anyvec.Make(params.Creator(), oneHots)
}

// LogProb computes the output log probabilities.
func (s Softmax) LogProb(params anydiff.Res, output anyvec.Vector,
	batchSize int) anydiff.Res {
	if params.Output().Len() != output.Len() {
		panic("length mismatch")
	}
	if params.Output().Len()%batchSize != 0 {
		panic("batch size does not divide param count")
	}
	chunkSize := params.Output().Len() / batchSize
	logs := anydiff.LogSoftmax(params, chunkSize)
	return batchedDot(logs, anydiff.NewConst(output), batchSize)
}

// Entropy computes the entropy of the distributions.
func (s Softmax) Entropy(params anydiff.Res, batchSize int) anydiff.Res {
	chunkSize := params.Output().Len() / batchSize
	return anydiff.Pool(params, func(params anydiff.Res) anydiff.Res {
		logProbs := anydiff.LogSoftmax(params, chunkSize)
		probs := anydiff.Exp(logProbs)
		return anydiff.Scale(batchedDot(probs, logProbs, batchSize),
			params.Output().Creator().MakeNumeric(-1))
	})
}

// Probs converts a single vector of logits into action
// probabilities.
func (s Softmax) Probs(logits anyvec.Vector) []float64 {
	if logits.Len() == 0 {
		return nil
	}
	return softmaxProbs(logits, logits.Len())
}

// softmaxProbs computes the probabilities for a batch of
// logit vectors without modifying params.
func softmaxProbs(params anyvec.Vector, chunkSize int) []float64 {
	p := params.Copy()
	anyvec.LogSoftmax(p, chunkSize)
	anyvec.Exp(p)
	return p.Creator().Float64Slice(p.Data())
}

// SampleIndex samples an index from a list of
// probabilities.
func SampleIndex(p []float64) int {
	randNum := rand.Float64()
	for i, x := range p {
		randNum -= x
		if randNum < 0 {
			return i
		}
	}
	return len(p) - 1
}

// ArgMax returns the index of the most likely action.
//
// Ties go to the lowest index.
func ArgMax(p []float64) int {
	var idx int
	for i, x := range p {
		if x > p[idx] {
			idx = i
		}
	}
	return idx
}

func batchedDot(vecs1, vecs2 anydiff.Res, batchSize int) anydiff.Res {
	products := anydiff.Mul(vecs1, vecs2)
	return anydiff.SumCols(&anydiff.Matrix{
		Data: products,
		Rows: batchSize,
		Cols: vecs1.Output().Len() / batchSize,
	})
}
