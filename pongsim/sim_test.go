package pongsim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sarminh/pongrl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameLayout(t *testing.T) {
	sim, err := New(DefaultConfig())
	require.NoError(t, err)
	frame := sim.State()
	require.Equal(t, pongrl.FrameWidth, frame.Width)
	require.Equal(t, pongrl.FrameHeight, frame.Height)
	require.Len(t, frame.Pix, 3*pongrl.FrameWidth*pongrl.FrameHeight)

	r, g, b := frame.RGB(50, 60)
	assert.Equal(t, pongrl.PongBackground, int(r)+int(g)+int(b))

	r, g, b = frame.RGB(AgentX+1, sim.agentY+PaddleHeight/2)
	assert.Equal(t, [3]uint8{92, 186, 92}, [3]uint8{r, g, b})

	obs, err := pongrl.DefaultPreprocessor().Observe(frame)
	require.NoError(t, err)
	var ones int
	for _, x := range obs.Data {
		ones += int(x)
	}
	// Both paddles and the ball are visible; walls are not.
	assert.Equal(t, 2*2*8+2, ones)
}

func TestDeterminism(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 42
	sim1, err := New(cfg)
	require.NoError(t, err)
	sim2, err := New(cfg)
	require.NoError(t, err)

	for i := 0; i < 300 && !sim1.Terminated(); i++ {
		action := (i / 7) % NumActions
		r1, err := sim1.Step(action)
		require.NoError(t, err)
		r2, err := sim2.Step(action)
		require.NoError(t, err)
		require.Equal(t, r1, r2)
		require.Equal(t, sim1.State().Pix, sim2.State().Pix)
	}
}

func TestFactoryIndependence(t *testing.T) {
	factory := Factory(DefaultConfig())
	raw1, err := factory()
	require.NoError(t, err)
	raw2, err := factory()
	require.NoError(t, err)
	sim1, sim2 := raw1.(*Sim), raw2.(*Sim)
	assert.NotEqual(t, sim1.Config.Seed, sim2.Config.Seed)

	before := sim2.State().Copy()
	for i := 0; i < 20; i++ {
		_, err := sim1.Step(ActionUp)
		require.NoError(t, err)
	}
	assert.Equal(t, before.Pix, sim2.State().Pix)
	assert.NotEqual(t, sim1.agentY, sim2.agentY)
}

func TestScoring(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxScore = 2
	cfg.FrameSkip = 1
	sim, err := New(cfg)
	require.NoError(t, err)

	// Ball about to pass the agent, with the paddle far away.
	sim.agentY = FieldTop
	sim.ball = ball{X: AgentX + 10, Y: FieldBottom - 20, VX: 3, VY: 0}
	var total float64
	for i := 0; i < 10; i++ {
		r, err := sim.Step(ActionNoop)
		require.NoError(t, err)
		total += r
		if r != 0 {
			break
		}
	}
	assert.Equal(t, -1.0, total)
	_, opp := sim.Score()
	assert.Equal(t, 1, opp)
	assert.False(t, sim.Terminated())

	// Ball about to pass the opponent.
	sim.opponentY = FieldTop
	sim.Config.OpponentSpeed = 0
	sim.ball = ball{X: 4, Y: FieldBottom - 20, VX: -3, VY: 0}
	total = 0
	for i := 0; i < 10; i++ {
		r, err := sim.Step(ActionNoop)
		require.NoError(t, err)
		total += r
		if r != 0 {
			break
		}
	}
	assert.Equal(t, 1.0, total)

	sim.ball = ball{X: AgentX + 10, Y: FieldBottom - 20, VX: 3, VY: 0}
	for i := 0; i < 10 && !sim.Terminated(); i++ {
		_, err := sim.Step(ActionUp)
		require.NoError(t, err)
	}
	assert.True(t, sim.Terminated())
	_, err = sim.Step(ActionNoop)
	assert.Error(t, err)

	require.NoError(t, sim.Reset())
	assert.False(t, sim.Terminated())
	agent, opp := sim.Score()
	assert.Equal(t, 0, agent)
	assert.Equal(t, 0, opp)
}

func TestPaddleHit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameSkip = 1
	sim, err := New(cfg)
	require.NoError(t, err)

	sim.agentY = 100
	sim.ball = ball{X: AgentX - 4, Y: 106, VX: 3, VY: 1}
	_, err = sim.Step(ActionNoop)
	require.NoError(t, err)
	assert.Equal(t, -3, sim.ball.VX)
	assert.Equal(t, AgentX-BallWidth, sim.ball.X)
}

func TestInvalidAction(t *testing.T) {
	sim, err := New(DefaultConfig())
	require.NoError(t, err)
	_, err = sim.Step(NumActions)
	assert.Error(t, err)
	_, err = sim.Step(-1)
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	sim, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, sim.Render())

	cfg := DefaultConfig()
	cfg.FrameDir = filepath.Join(t.TempDir(), "frames")
	sim, err = New(cfg)
	require.NoError(t, err)
	require.NoError(t, sim.Render())
	require.NoError(t, sim.Render())
	entries, err := os.ReadDir(cfg.FrameDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPreprocessEnv(t *testing.T) {
	env, err := pongrl.NewPreprocessEnv(Factory(DefaultConfig()), nil)
	require.NoError(t, err)
	defer env.Close()
	assert.Equal(t, NumActions, env.NumActions())

	obs, err := env.Reset()
	require.NoError(t, err)
	assert.Len(t, obs, 80*80)

	dup, err := env.Duplicate()
	require.NoError(t, err)
	defer dup.Close()
	for i := 0; i < 5; i++ {
		_, _, _, err := env.Step(pongrl.OneHot(ActionDown, NumActions))
		require.NoError(t, err)
	}
	dupObs, err := dup.Reset()
	require.NoError(t, err)
	assert.Len(t, dupObs, 80*80)
}
