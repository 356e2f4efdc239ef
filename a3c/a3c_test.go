package a3c

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarminh/pongrl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

// chainEnv is a short deterministic episode which rewards
// the second action.
type chainEnv struct {
	Length int

	lock  sync.Mutex
	t     int
	steps int
}

func (c *chainEnv) Reset() ([]float64, error) {
	c.t = 0
	return c.obs(), nil
}

func (c *chainEnv) Step(action []float64) ([]float64, float64, bool, error) {
	idx, err := pongrl.OneHotIndex(action, 2)
	if err != nil {
		return nil, 0, false, err
	}
	c.lock.Lock()
	c.steps++
	c.lock.Unlock()
	c.t++
	return c.obs(), float64(idx), c.t >= c.Length, nil
}

func (c *chainEnv) Steps() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.steps
}

func (c *chainEnv) obs() []float64 {
	return []float64{float64(c.t), 1, -float64(c.t)}
}

type failingEnv struct {
	chainEnv
}

func (f *failingEnv) Step(action []float64) ([]float64, float64, bool, error) {
	return nil, 0, false, errors.New("emulator crashed")
}

func testAgent(c anyvec.Creator) *Agent {
	return &Agent{
		Base: anyrnn.NewLSTM(c, 3, 4),
		Actor: &anyrnn.LayerBlock{
			Layer: anynet.NewFC(c, 4, 2),
		},
		Critic: &anyrnn.LayerBlock{
			Layer: anynet.NewFC(c, 4, 1),
		},
		ActionSpace: pongrl.Softmax{},
	}
}

func TestFit(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	agent := testAgent(c)
	server := VanillaParamServer(agent, agent.AllParameters(), 0.01)
	defer server.Close()

	envs := []pongrl.Env{&chainEnv{Length: 7}, &chainEnv{Length: 7}}
	a := &A3C{
		Creator:     c,
		ParamServer: server,
		Discount:    0.9,
		Lambda:      0.95,
		MaxSteps:    3,
		Regularizer: &EntropyReg{Entropyer: pongrl.Softmax{}, Coeff: 0.01},
	}
	steps, err := a.Fit(context.Background(), envs, 50)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, steps, 50)
	assert.LessOrEqual(t, steps, 50+len(envs)*a.MaxSteps)

	var envSteps int
	for _, e := range envs {
		envSteps += e.(*chainEnv).Steps()
	}
	assert.Equal(t, steps, envSteps)
}

func TestFitLearns(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	agent := testAgent(c)
	server := VanillaParamServer(agent, agent.AllParameters(), 0.05)
	defer server.Close()

	env := &chainEnv{Length: 5}
	initObs, err := env.Reset()
	require.NoError(t, err)
	before := rewardedProb(t, server, initObs)

	a := &A3C{
		Creator:     c,
		ParamServer: server,
		Discount:    0.9,
		Lambda:      0.95,
		MaxSteps:    5,
		Regularizer: &EntropyReg{Entropyer: pongrl.Softmax{}, Coeff: 0.01},
	}
	_, err = a.Fit(context.Background(), []pongrl.Env{env, &chainEnv{Length: 5}}, 3000)
	require.NoError(t, err)

	after := rewardedProb(t, server, initObs)
	assert.Greater(t, after, before+0.05, "probability went from %f to %f", before, after)
}

// rewardedProb computes the global agent's probability of
// the rewarded chainEnv action at the start of an episode.
func rewardedProb(t *testing.T, server ParamServer, obs []float64) float64 {
	local, err := server.LocalCopy()
	require.NoError(t, err)
	c := anyvec64.DefaultCreator{}
	baseOut := local.Base.Step(local.Base.Start(1), anyvec.Make(c, obs))
	actorOut := local.Actor.Step(local.Actor.Start(1), baseOut.Output())
	return pongrl.Softmax{}.Probs(actorOut.Output())[1]
}

func TestFitBadArgs(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	agent := testAgent(c)
	server := VanillaParamServer(agent, agent.AllParameters(), 0.01)
	defer server.Close()
	a := &A3C{Creator: c, ParamServer: server}

	_, err := a.Fit(context.Background(), []pongrl.Env{&chainEnv{Length: 2}}, 0)
	assert.Error(t, err)
	_, err = a.Fit(context.Background(), nil, 10)
	assert.Error(t, err)
}

func TestRunEnvError(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	agent := testAgent(c)
	server := VanillaParamServer(agent, agent.AllParameters(), 0.01)
	defer server.Close()
	a := &A3C{Creator: c, ParamServer: server, MaxSteps: 5}

	err := a.Run(context.Background(), []pongrl.Env{
		&chainEnv{Length: 3},
		&failingEnv{chainEnv{Length: 3}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "emulator crashed")
}

func TestRunCancel(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	agent := testAgent(c)
	server := VanillaParamServer(agent, agent.AllParameters(), 0.01)
	defer server.Close()
	a := &A3C{Creator: c, ParamServer: server, MaxSteps: 2}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.Run(ctx, []pongrl.Env{&chainEnv{Length: 4}}))
}

func TestVanillaParamServer(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	agent := testAgent(c)
	params := agent.AllParameters()
	server := VanillaParamServer(agent, params, 0.5)

	local, err := server.LocalCopy()
	require.NoError(t, err)
	require.Len(t, local.Params, len(params))
	for i, p := range local.Params {
		assert.False(t, p == params[i], "local parameter aliases global one")
		assert.Equal(t, params[i].Vector.Data(), p.Vector.Data())
	}

	original := params[0].Vector.Copy()
	grad := anydiff.NewGrad(local.Params...)
	grad[local.Params[0]].AddScalar(2.0)
	require.NoError(t, server.Update(grad, local))
	require.NoError(t, server.Close())

	expected := original.Copy()
	expected.AddScalar(1.0)
	assert.InDeltaSlice(t, expected.Data(), params[0].Vector.Data(), 1e-8)

	assert.True(t, errors.Is(server.Sync(local), ErrClosed))
	_, err = server.LocalCopy()
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(server.Update(grad, local), ErrClosed))
	assert.NoError(t, server.Close())
}

func TestParamServerSync(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	agent := testAgent(c)
	params := agent.AllParameters()
	server := VanillaParamServer(agent, params, 1)
	defer server.Close()

	local, err := server.LocalCopy()
	require.NoError(t, err)
	local.Params[1].Vector.AddScalar(3.0)
	require.NoError(t, server.Sync(local))
	assert.Equal(t, params[1].Vector.Data(), local.Params[1].Vector.Data())
}

func TestCheckpointer(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	agent := testAgent(c)
	server := VanillaParamServer(agent, agent.AllParameters(), 1)
	dir := filepath.Join(t.TempDir(), "ckpt")

	latest, err := LatestCheckpoint(dir)
	require.NoError(t, err)
	assert.Equal(t, "", latest)

	cp := &Checkpointer{Dir: dir, Server: server, Keep: 2, Log: zerolog.Nop()}
	var paths []string
	for i := 0; i < 3; i++ {
		path, err := cp.Save()
		require.NoError(t, err)
		paths = append(paths, path)
	}
	assert.Equal(t, "agent-000003.ckpt", filepath.Base(paths[2]))

	existing, err := Checkpoints(dir)
	require.NoError(t, err)
	assert.Equal(t, paths[1:], existing)

	latest, err = LatestCheckpoint(dir)
	require.NoError(t, err)
	loaded, err := LoadAgent(latest, pongrl.Softmax{})
	require.NoError(t, err)
	expected := agent.AllParameters()
	actual := loaded.AllParameters()
	require.Len(t, actual, len(expected))
	for i, p := range expected {
		assert.Equal(t, p.Vector.Data(), actual[i].Vector.Data())
	}

	require.NoError(t, server.Close())
	_, err = cp.Save()
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestCheckpointerRun(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	agent := testAgent(c)
	server := VanillaParamServer(agent, agent.AllParameters(), 1)
	defer server.Close()
	dir := t.TempDir()

	cp := &Checkpointer{Dir: dir, Server: server, Interval: 10 * time.Millisecond,
		Log: zerolog.Nop()}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, cp.Run(ctx))

	existing, err := Checkpoints(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, existing)

	bad := &Checkpointer{Dir: dir, Server: server}
	assert.Error(t, bad.Run(context.Background()))
}

type recordingLogger struct {
	episodes []float64
	updates  []float64
}

func (r *recordingLogger) LogEpisode(id int, reward float64) {
	r.episodes = append(r.episodes, reward)
}

func (r *recordingLogger) LogUpdate(id int, mse anyvec.Numeric) {
	r.updates = append(r.updates, mse.(float64))
}

func (r *recordingLogger) LogRegularize(id int, term anyvec.Numeric) {
}

func TestAvgLogger(t *testing.T) {
	rec := &recordingLogger{}
	l := &AvgLogger{
		Logger:  rec,
		Creator: anyvec64.DefaultCreator{},
		Episode: 3,
	}
	for _, r := range []float64{1, 2, 6, -1, 1} {
		l.LogEpisode(0, r)
	}
	assert.Equal(t, []float64{3}, rec.episodes)
	l.LogEpisode(0, 3)
	assert.Equal(t, []float64{3, 1}, rec.episodes)

	l.LogUpdate(0, 0.5)
	l.LogUpdate(0, 0.25)
	assert.Equal(t, []float64{0.5, 0.25}, rec.updates)
}
