package driver

import (
	"context"
	"math"

	"github.com/rs/zerolog"
	"github.com/sarminh/pongrl"
	"github.com/sarminh/pongrl/policy"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
	"gonum.org/v1/gonum/stat"
)

// A PlayEnv is an environment which can be rendered after
// every step.
type PlayEnv interface {
	pongrl.Env
	Render() error
}

type renderEnv struct {
	pongrl.Env
	render func() error
}

func (r renderEnv) Render() error {
	return r.render()
}

// Stats summarizes the rewards of several episodes.
type Stats struct {
	Rewards []float64
	Mean    float64
	StdDev  float64
}

// Play runs a single episode, rendering after every step,
// and returns the total reward.
//
// If ctx is done before the episode ends, Play returns the
// reward so far along with the context's error.
func Play(ctx context.Context, env PlayEnv, player *policy.Player,
	log zerolog.Logger) (reward float64, err error) {
	defer essentials.AddCtxTo("play", &err)
	numActions := player.Policy.Config.NumActions

	player.Reset()
	obs, err := env.Reset()
	if err != nil {
		return 0, err
	}
	if err := env.Render(); err != nil {
		return 0, err
	}
	var steps int
	for {
		if err := ctx.Err(); err != nil {
			return reward, err
		}
		action, err := player.SelectAction(obs)
		if err != nil {
			return reward, err
		}
		var r float64
		var done bool
		obs, r, done, err = env.Step(pongrl.OneHot(action, numActions))
		if err != nil {
			return reward, err
		}
		reward += r
		steps++
		if r != 0 {
			log.Debug().Int("step", steps).Float64("reward", r).Msg("point")
		}
		if err := env.Render(); err != nil {
			return reward, err
		}
		if done {
			break
		}
	}
	log.Info().Int("steps", steps).Float64("reward", reward).Msg("episode done")
	return reward, nil
}

// PlayEpisodes plays n episodes and summarizes the
// rewards.
func PlayEpisodes(ctx context.Context, env PlayEnv, player *policy.Player, n int,
	log zerolog.Logger) (*Stats, error) {
	res := &Stats{}
	for i := 0; i < n; i++ {
		reward, err := Play(ctx, env, player, log.With().Int("episode", i).Logger())
		if err != nil {
			return nil, err
		}
		res.Rewards = append(res.Rewards, reward)
	}
	res.Mean = stat.Mean(res.Rewards, nil)
	if len(res.Rewards) > 1 {
		res.StdDev = stat.StdDev(res.Rewards, nil)
	}
	if math.IsNaN(res.Mean) {
		res.Mean = 0
	}
	return res, nil
}

// RunPlay loads the newest policy from the model directory
// and plays cfg.Episodes episodes with it.
func RunPlay(ctx context.Context, cfg *Config, log zerolog.Logger) (stats *Stats, err error) {
	defer essentials.AddCtxTo("run play", &err)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	env, err := NewEnv(cfg)
	if err != nil {
		return nil, err
	}
	defer env.Close()

	pol, err := LoadOrCreatePolicy(anyvec32.CurrentCreator(), cfg, PolicyConfig(cfg, env), log)
	if err != nil {
		return nil, err
	}
	player := policy.NewPlayer(pol, cfg.Deterministic)

	playEnv := renderEnv{Env: env, render: env.Render}
	if cfg.MaxEpisodeSteps > 0 {
		playEnv.Env = &pongrl.MaxStepsEnv{Env: env, MaxSteps: cfg.MaxEpisodeSteps}
	}
	if !cfg.Render {
		playEnv.render = func() error { return nil }
	}
	stats, err = PlayEpisodes(ctx, playEnv, player, cfg.Episodes, log)
	if err != nil {
		return nil, err
	}
	log.Info().Float64("mean", stats.Mean).Float64("stddev", stats.StdDev).
		Int("episodes", len(stats.Rewards)).Msg("play done")
	return stats, nil
}
