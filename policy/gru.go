package policy

import (
	"errors"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var g GRU
	serializer.RegisterTypedDeserializer(g.SerializerType(), DeserializeGRU)
	var gate GRUGate
	serializer.RegisterTypedDeserializer(gate.SerializerType(), DeserializeGRUGate)
}

// GRU is a gated recurrent unit block.
//
// With input x and previous state h, a timestep computes
//
//     z  := sigmoid(Wz*x + Uz*h + bz)
//     r  := sigmoid(Wr*x + Ur*h + br)
//     c  := tanh(Wc*x + Uc*(r*h) + bc)
//     h' := h + z*(c - h)
//
// The output of a timestep is its new state.
// The start state is all zeros and is not trained.
type GRU struct {
	InCount  int
	OutCount int

	Update    *GRUGate
	Reset     *GRUGate
	Candidate *GRUGate
}

// DeserializeGRU deserializes a GRU.
func DeserializeGRU(d []byte) (g *GRU, err error) {
	defer essentials.AddCtxTo("deserialize GRU", &err)
	var update, reset, candidate *GRUGate
	if err := serializer.DeserializeAny(d, &update, &reset, &candidate); err != nil {
		return nil, err
	}
	outCount := update.Biases.Vector.Len()
	inCount := update.InputWeights.Vector.Len() / outCount
	for _, gate := range []*GRUGate{update, reset, candidate} {
		if gate.Biases.Vector.Len() != outCount ||
			gate.InputWeights.Vector.Len() != inCount*outCount ||
			gate.StateWeights.Vector.Len() != outCount*outCount {
			return nil, errors.New("inconsistent gate sizes")
		}
	}
	return &GRU{
		InCount:   inCount,
		OutCount:  outCount,
		Update:    update,
		Reset:     reset,
		Candidate: candidate,
	}, nil
}

// NewGRU creates a randomized GRU.
func NewGRU(c anyvec.Creator, in, out int) *GRU {
	return &GRU{
		InCount:   in,
		OutCount:  out,
		Update:    NewGRUGate(c, in, out, anynet.Sigmoid),
		Reset:     NewGRUGate(c, in, out, anynet.Sigmoid),
		Candidate: NewGRUGate(c, in, out, anynet.Tanh),
	}
}

// Start produces a zero *anyrnn.VecState.
func (g *GRU) Start(n int) anyrnn.State {
	c := g.Update.Biases.Vector.Creator()
	return anyrnn.NewVecState(c.MakeVector(g.OutCount), n)
}

// PropagateStart does nothing, since the start state is
// constant.
func (g *GRU) PropagateStart(s anyrnn.StateGrad, grad anydiff.Grad) {
}

// Step performs one timestep.
func (g *GRU) Step(s anyrnn.State, in anyvec.Vector) anyrnn.Res {
	n := s.Present().NumPresent()
	res := &gruRes{
		InPool:    anydiff.NewVar(in),
		StatePool: anydiff.NewVar(s.(*anyrnn.VecState).Vector),
		V:         anydiff.NewVarSet(g.Parameters()...),
	}
	update := g.Update.Apply(res.InPool, res.StatePool, n)
	reset := g.Reset.Apply(res.InPool, res.StatePool, n)
	candidate := g.Candidate.Apply(res.InPool, anydiff.Mul(reset, res.StatePool), n)
	res.Out = anydiff.Add(
		res.StatePool,
		anydiff.Mul(update, anydiff.Sub(candidate, res.StatePool)),
	)
	res.OutState = &anyrnn.VecState{Vector: res.Out.Output(), PresentMap: s.Present()}
	return res
}

// Parameters returns the parameters of every gate.
func (g *GRU) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, gate := range []*GRUGate{g.Update, g.Reset, g.Candidate} {
		res = append(res, gate.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a GRU with the serializer package.
func (g *GRU) SerializerType() string {
	return "github.com/sarminh/pongrl/policy.GRU"
}

// Serialize serializes the GRU.
func (g *GRU) Serialize() ([]byte, error) {
	return serializer.SerializeAny(g.Update, g.Reset, g.Candidate)
}

// A GRUGate applies an activation to a linear function of
// an input and a (possibly gated) state.
type GRUGate struct {
	InputWeights *anydiff.Var
	StateWeights *anydiff.Var
	Biases       *anydiff.Var
	Activation   anynet.Layer
}

// DeserializeGRUGate deserializes a GRUGate.
func DeserializeGRUGate(d []byte) (*GRUGate, error) {
	var iw, sw, b *anyvecsave.S
	var a anynet.Layer
	if err := serializer.DeserializeAny(d, &iw, &sw, &b, &a); err != nil {
		return nil, essentials.AddCtx("deserialize GRUGate", err)
	}
	return &GRUGate{
		InputWeights: anydiff.NewVar(iw.Vector),
		StateWeights: anydiff.NewVar(sw.Vector),
		Biases:       anydiff.NewVar(b.Vector),
		Activation:   a,
	}, nil
}

// NewGRUGate creates a randomized GRUGate.
func NewGRUGate(c anyvec.Creator, in, out int, activation anynet.Layer) *GRUGate {
	res := &GRUGate{
		InputWeights: anydiff.NewVar(c.MakeVector(in * out)),
		StateWeights: anydiff.NewVar(c.MakeVector(out * out)),
		Biases:       anydiff.NewVar(c.MakeVector(out)),
		Activation:   activation,
	}
	anyvec.Rand(res.InputWeights.Vector, anyvec.Normal, nil)
	anyvec.Rand(res.StateWeights.Vector, anyvec.Normal, nil)
	res.InputWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(in))))
	res.StateWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(out))))
	return res
}

// Apply computes the gate for a batch of inputs and
// states.
func (g *GRUGate) Apply(in, state anydiff.Res, n int) anydiff.Res {
	out := g.Biases.Vector.Len()
	inCount := g.InputWeights.Vector.Len() / out
	sum := anydiff.Add(
		applyWeights(inCount, out, g.InputWeights, in),
		applyWeights(out, out, g.StateWeights, state),
	)
	return g.Activation.Apply(anydiff.AddRepeated(sum, g.Biases), n)
}

// Parameters returns the gate's weights and biases.
func (g *GRUGate) Parameters() []*anydiff.Var {
	return []*anydiff.Var{g.InputWeights, g.StateWeights, g.Biases}
}

// SerializerType returns the unique ID used to serialize
// a GRUGate with the serializer package.
func (g *GRUGate) SerializerType() string {
	return "github.com/sarminh/pongrl/policy.GRUGate"
}

// Serialize serializes the gate.
func (g *GRUGate) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		&anyvecsave.S{Vector: g.InputWeights.Vector},
		&anyvecsave.S{Vector: g.StateWeights.Vector},
		&anyvecsave.S{Vector: g.Biases.Vector},
		g.Activation,
	)
}

type gruRes struct {
	InPool    *anydiff.Var
	StatePool *anydiff.Var
	OutState  anyrnn.State
	Out       anydiff.Res
	V         anydiff.VarSet
}

func (g *gruRes) State() anyrnn.State {
	return g.OutState
}

func (g *gruRes) Output() anyvec.Vector {
	return g.Out.Output()
}

func (g *gruRes) Vars() anydiff.VarSet {
	return g.V
}

func (g *gruRes) Propagate(u anyvec.Vector, s anyrnn.StateGrad,
	grad anydiff.Grad) (anyvec.Vector, anyrnn.StateGrad) {
	down := g.InPool.Vector.Creator().MakeVector(g.InPool.Vector.Len())
	downState := g.StatePool.Vector.Creator().MakeVector(g.StatePool.Vector.Len())
	grad[g.InPool] = down
	grad[g.StatePool] = downState
	if s != nil {
		u.Add(s.(*anyrnn.VecState).Vector)
	}
	g.Out.Propagate(u, grad)
	delete(grad, g.InPool)
	delete(grad, g.StatePool)
	return down, &anyrnn.VecState{
		Vector:     downState,
		PresentMap: g.OutState.Present(),
	}
}

func applyWeights(in, out int, weights anydiff.Res, batch anydiff.Res) anydiff.Res {
	weightMat := &anydiff.Matrix{Data: weights, Rows: out, Cols: in}
	inMat := &anydiff.Matrix{Data: batch, Rows: batch.Output().Len() / in, Cols: in}
	return anydiff.MatMul(false, true, inMat, weightMat).Data
}
