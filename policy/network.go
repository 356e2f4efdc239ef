package policy

import (
	"errors"
	"fmt"

	"github.com/sarminh/pongrl"
	"github.com/sarminh/pongrl/a3c"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyconv"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

const (
	// StateSize is the default size of the recurrent
	// state carried between timesteps.
	StateSize = 16

	// HiddenSize is the default size of the feature vector
	// produced by the vision layers.
	HiddenSize = 256
)

// Config describes the shape of a policy network.
type Config struct {
	NumActions int

	// Width and Height are the observation dimensions.
	Width  int
	Height int

	StateSize  int
	HiddenSize int
}

// DefaultConfig creates a Config for 80x80 observations.
func DefaultConfig(numActions int) Config {
	return Config{
		NumActions: numActions,
		Width:      80,
		Height:     80,
		StateSize:  StateSize,
		HiddenSize: HiddenSize,
	}
}

// Validate checks that the network can be built.
func (c Config) Validate() error {
	if c.NumActions < 1 {
		return fmt.Errorf("invalid action count: %d", c.NumActions)
	}
	if c.StateSize < 1 || c.HiddenSize < 1 {
		return errors.New("state and hidden sizes must be positive")
	}
	// The second convolution needs an input of at least 4x4.
	if (c.Width-8)/4+1 < 4 || (c.Height-8)/4+1 < 4 {
		return fmt.Errorf("observation too small: %dx%d", c.Width, c.Height)
	}
	return nil
}

// ObservationSize is the length of an input vector.
func (c Config) ObservationSize() int {
	return c.Width * c.Height
}

// NewAgent creates a randomly initialized agent.
//
// The base extracts features with two convolutional
// stages and a dense layer, then runs a GRU on those
// features. Its output concatenates the features with the
// GRU's output, and feeds both heads.
func NewAgent(c anyvec.Creator, cfg Config) (agent *a3c.Agent, err error) {
	defer essentials.AddCtxTo("create policy agent", &err)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	markup := fmt.Sprintf(`
		Input(w=%d, h=%d, d=1)

		Conv(w=8, h=8, n=16, sx=4, sy=4)
		ReLU
		Conv(w=4, h=4, n=32, sx=2, sy=2)
		ReLU
		FC(out=%d)
		ReLU
	`, cfg.Width, cfg.Height, cfg.HiddenSize)
	convNet, err := anyconv.FromMarkup(c, markup)
	if err != nil {
		return nil, err
	}
	net := convNet.(anynet.Net)
	for _, layer := range net {
		boostBiases(layer)
	}

	headIn := cfg.HiddenSize + cfg.StateSize
	return &a3c.Agent{
		Base: anyrnn.Stack{
			&anyrnn.LayerBlock{Layer: net},
			&anyrnn.Parallel{
				Block1: &anyrnn.LayerBlock{Layer: &anynet.ConstAffine{Scale: 1}},
				Block2: NewGRU(c, cfg.HiddenSize, cfg.StateSize),
				Mixer:  anynet.ConcatMixer{},
			},
		},
		Actor: &anyrnn.LayerBlock{
			Layer: anynet.NewFCZero(c, headIn, cfg.NumActions),
		},
		Critic: &anyrnn.LayerBlock{
			Layer: anynet.NewFCZero(c, headIn, 1),
		},
		ActionSpace: pongrl.Softmax{},
	}, nil
}

// boostBiases keeps ReLUs alive early in training, since
// most observation pixels are zero.
func boostBiases(layer anynet.Layer) {
	switch layer := layer.(type) {
	case *anyconv.Conv:
		layer.Biases.Vector.AddScalar(layer.Biases.Vector.Creator().MakeNumeric(1))
	case *anynet.FC:
		layer.Biases.Vector.AddScalar(layer.Biases.Vector.Creator().MakeNumeric(1))
	}
}

// checkAgent verifies that an agent has the layout and
// layer sizes that NewAgent would produce for cfg.
func checkAgent(a *a3c.Agent, cfg Config) error {
	stack, ok := a.Base.(anyrnn.Stack)
	if !ok || len(stack) != 2 {
		return errors.New("unexpected base block")
	}
	vision, ok := stack[0].(*anyrnn.LayerBlock)
	if !ok {
		return errors.New("unexpected vision block")
	}
	net, ok := vision.Layer.(anynet.Net)
	if !ok || len(net) == 0 {
		return errors.New("unexpected vision network")
	}
	conv, ok := net[0].(*anyconv.Conv)
	if !ok {
		return errors.New("vision network does not start with a convolution")
	}
	if conv.InputWidth != cfg.Width || conv.InputHeight != cfg.Height ||
		conv.InputDepth != 1 {
		return fmt.Errorf("network expects %dx%dx%d observations (configured %dx%dx1)",
			conv.InputWidth, conv.InputHeight, conv.InputDepth, cfg.Width, cfg.Height)
	}
	var features *anynet.FC
	for _, layer := range net {
		if fc, ok := layer.(*anynet.FC); ok {
			features = fc
		}
	}
	if features == nil || features.OutCount != cfg.HiddenSize {
		return fmt.Errorf("feature layer size does not match hidden size %d",
			cfg.HiddenSize)
	}

	par, ok := stack[1].(*anyrnn.Parallel)
	if !ok {
		return errors.New("unexpected recurrent block")
	}
	gru, ok := par.Block2.(*GRU)
	if !ok {
		return errors.New("recurrent block is not a GRU")
	}
	if gru.InCount != cfg.HiddenSize || gru.OutCount != cfg.StateSize {
		return fmt.Errorf("GRU maps %d to %d (configured %d to %d)", gru.InCount,
			gru.OutCount, cfg.HiddenSize, cfg.StateSize)
	}

	headIn := cfg.HiddenSize + cfg.StateSize
	if err := checkHead(a.Actor, headIn, cfg.NumActions); err != nil {
		return essentials.AddCtx("actor", err)
	}
	if err := checkHead(a.Critic, headIn, 1); err != nil {
		return essentials.AddCtx("critic", err)
	}
	return nil
}

func checkHead(b anyrnn.Block, in, out int) error {
	block, ok := b.(*anyrnn.LayerBlock)
	if !ok {
		return errors.New("unexpected head block")
	}
	fc, ok := block.Layer.(*anynet.FC)
	if !ok {
		return errors.New("head is not a fully-connected layer")
	}
	if fc.InCount != in || fc.OutCount != out {
		return fmt.Errorf("head maps %d to %d (expected %d to %d)", fc.InCount,
			fc.OutCount, in, out)
	}
	return nil
}

// recurrentState finds the GRU state inside a base state.
func recurrentState(s anyrnn.State) *anyrnn.VecState {
	return s.(anyrnn.StackState)[1].(*anyrnn.ParallelState).State2.(*anyrnn.VecState)
}
