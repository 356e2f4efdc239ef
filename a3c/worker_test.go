package a3c

import (
	"testing"

	"github.com/sarminh/pongrl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

// resizingEnv produces a longer observation after its
// first step.
type resizingEnv struct {
	chainEnv
}

func (r *resizingEnv) Step(action []float64) ([]float64, float64, bool, error) {
	obs, reward, done, err := r.chainEnv.Step(action)
	return append(obs, 0), reward, done, err
}

func testWorker(t *testing.T, env pongrl.Env) *worker {
	c := anyvec64.DefaultCreator{}
	agent := testAgent(c)
	server := VanillaParamServer(agent, agent.AllParameters(), 0.01)
	t.Cleanup(func() { server.Close() })
	w, err := newWorker(c, 0, env, server)
	require.NoError(t, err)
	return w
}

func TestWorkerEpisodes(t *testing.T) {
	w := testWorker(t, &chainEnv{Length: 2})
	require.NoError(t, w.Reset())
	assert.Equal(t, 3, w.ObsSize)
	assert.Error(t, w.EndEpisode(nil))

	for i := 0; i < 2; i++ {
		w.StepAgent()
		_, _, err := w.StepEnv()
		require.NoError(t, err)
	}
	assert.True(t, w.EnvDone)
	assert.Equal(t, 2, w.StepIdx)

	w.StepAgent()
	_, _, err := w.StepEnv()
	assert.Equal(t, errEpisodeOver, err)

	logger := &countLogger{}
	require.NoError(t, w.EndEpisode(logger))
	assert.Equal(t, 1, w.Episodes)
	assert.Equal(t, 1, logger.episodes)
	assert.False(t, w.EnvDone)
	assert.Equal(t, 0, w.StepIdx)
	assert.Equal(t, 0.0, w.RewardSum)
}

func TestWorkerObservationSize(t *testing.T) {
	w := testWorker(t, &resizingEnv{chainEnv{Length: 5}})
	require.NoError(t, w.Reset())
	w.StepAgent()
	_, _, err := w.StepEnv()
	assert.Error(t, err)
}

func TestWorkerStepBeforeAgent(t *testing.T) {
	w := testWorker(t, &chainEnv{Length: 3})
	require.NoError(t, w.Reset())
	_, _, err := w.StepEnv()
	assert.Error(t, err)
}

type countLogger struct {
	episodes int
}

func (c *countLogger) LogEpisode(workerID int, reward float64) {
	c.episodes++
}

func (c *countLogger) LogUpdate(workerID int, criticMSE anyvec.Numeric) {}

func (c *countLogger) LogRegularize(workerID int, term anyvec.Numeric) {}
