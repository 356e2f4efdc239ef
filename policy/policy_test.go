package policy

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

func smallConfig() Config {
	return Config{
		NumActions: 3,
		Width:      24,
		Height:     24,
		StateSize:  4,
		HiddenSize: 8,
	}
}

func testObservation(size int, seed int) []float64 {
	obs := make([]float64, size)
	for i := range obs {
		if (i*7+seed)%5 == 0 {
			obs[i] = 1
		}
	}
	return obs
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig(6).Validate())
	assert.NoError(t, smallConfig().Validate())

	cfg := smallConfig()
	cfg.NumActions = 0
	assert.Error(t, cfg.Validate())

	cfg = smallConfig()
	cfg.Width = 12
	assert.Error(t, cfg.Validate())

	cfg = smallConfig()
	cfg.StateSize = 0
	assert.Error(t, cfg.Validate())
}

func TestPolicyStep(t *testing.T) {
	cfg := DefaultConfig(6)
	p, err := New(anyvec64.DefaultCreator{}, cfg)
	require.NoError(t, err)

	state := p.InitialState()
	require.Len(t, state, StateSize)
	for _, x := range state {
		assert.Equal(t, 0.0, x)
	}

	for step := 0; step < 3; step++ {
		out, err := p.Step(testObservation(80*80, step), state)
		require.NoError(t, err)
		require.Len(t, out.Probs, 6)
		var sum float64
		for _, x := range out.Probs {
			assert.True(t, x >= 0 && x <= 1)
			sum += x
		}
		assert.InDelta(t, 1, sum, 1e-8)
		assert.False(t, math.IsNaN(out.Value))
		require.Len(t, out.State, StateSize)
		state = out.State
	}

	var nonZero bool
	for _, x := range state {
		nonZero = nonZero || x != 0
	}
	assert.True(t, nonZero, "recurrent state never changed")
}

func TestPolicyStateFeedback(t *testing.T) {
	p, err := New(anyvec64.DefaultCreator{}, smallConfig())
	require.NoError(t, err)
	obs := testObservation(24*24, 1)

	out1, err := p.Step(obs, p.InitialState())
	require.NoError(t, err)
	again, err := p.Step(obs, p.InitialState())
	require.NoError(t, err)
	assert.Equal(t, out1.State, again.State)

	shifted := append([]float64{}, out1.State...)
	shifted[0] += 1
	out2, err := p.Step(obs, shifted)
	require.NoError(t, err)
	assert.NotEqual(t, out1.State, out2.State)
}

func TestPolicyBadInput(t *testing.T) {
	p, err := New(anyvec64.DefaultCreator{}, smallConfig())
	require.NoError(t, err)

	_, err = p.Step(make([]float64, 10), p.InitialState())
	assert.Error(t, err)
	_, err = p.Step(make([]float64, 24*24), make([]float64, 16))
	assert.Error(t, err)
}

func TestPolicySaveLoad(t *testing.T) {
	cfg := smallConfig()
	p, err := New(anyvec64.DefaultCreator{}, cfg)
	require.NoError(t, err)

	// Heads start at zero, so perturb them to make the
	// comparison meaningful.
	for _, param := range anynet.AllParameters(p.Agent.Actor, p.Agent.Critic) {
		anyvec.Rand(param.Vector, anyvec.Normal, nil)
	}

	path := filepath.Join(t.TempDir(), "policy")
	require.NoError(t, p.Save(path))
	loaded, err := Load(path, cfg)
	require.NoError(t, err)

	obs := testObservation(24*24, 3)
	expected, err := p.Step(obs, p.InitialState())
	require.NoError(t, err)
	actual, err := loaded.Step(obs, loaded.InitialState())
	require.NoError(t, err)
	assert.InDeltaSlice(t, expected.Probs, actual.Probs, 1e-10)
	assert.InDelta(t, expected.Value, actual.Value, 1e-10)
	assert.InDeltaSlice(t, expected.State, actual.State, 1e-10)
}

func TestPolicyLoadMismatch(t *testing.T) {
	cfg := smallConfig()
	p, err := New(anyvec64.DefaultCreator{}, cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "policy")
	require.NoError(t, p.Save(path))

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"observation size", func(c *Config) { c.Width, c.Height = 80, 80 }},
		{"hidden size", func(c *Config) { c.HiddenSize++ }},
		{"state size", func(c *Config) { c.StateSize++ }},
		{"fewer actions", func(c *Config) { c.NumActions-- }},
		{"more actions", func(c *Config) { c.NumActions++ }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := cfg
			tt.modify(&other)
			_, err := Load(path, other)
			assert.Error(t, err)
		})
	}

	_, err = FromAgent(p.Agent, DefaultConfig(3))
	assert.Error(t, err)
}

func TestPlayer(t *testing.T) {
	p, err := New(anyvec64.DefaultCreator{}, smallConfig())
	require.NoError(t, err)
	player := NewPlayer(p, true)
	assert.Nil(t, player.Last())

	obs := testObservation(24*24, 0)
	first, err := player.SelectAction(obs)
	require.NoError(t, err)
	assert.True(t, first >= 0 && first < 3)
	out := player.Last()
	require.NotNil(t, out)
	assert.Equal(t, out.State, player.State())

	// Zero-initialized heads give uniform probabilities,
	// so deterministic play picks the first action.
	assert.Equal(t, 0, first)

	player.Reset()
	assert.Nil(t, player.Last())
	assert.Equal(t, p.InitialState(), player.State())

	sampler := NewPlayer(p, false)
	for i := 0; i < 10; i++ {
		a, err := sampler.SelectAction(obs)
		require.NoError(t, err)
		assert.True(t, a >= 0 && a < 3)
	}
}
