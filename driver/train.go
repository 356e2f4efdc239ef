// Package driver wires environments, the policy network,
// and the A3C trainer together, and runs the interactive
// play loop.
package driver

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sarminh/pongrl"
	"github.com/sarminh/pongrl/a3c"
	"github.com/sarminh/pongrl/policy"
	"github.com/sarminh/pongrl/pongsim"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
)

// SimulatorFactory creates the factory for the configured
// simulator kind.
func SimulatorFactory(cfg *Config) (pongrl.SimulatorFactory, error) {
	switch cfg.Simulator {
	case SimulatorBuiltin:
		simCfg := pongsim.DefaultConfig()
		simCfg.Seed = cfg.Seed
		simCfg.FrameDir = cfg.FrameDir
		return pongsim.Factory(simCfg), nil
	case SimulatorGym:
		return pongrl.GymFactory(cfg.GymHost, cfg.EnvName), nil
	default:
		return nil, fmt.Errorf("unknown simulator: %q", cfg.Simulator)
	}
}

// NewEnv creates a prototype environment.
func NewEnv(cfg *Config) (*pongrl.PreprocessEnv, error) {
	factory, err := SimulatorFactory(cfg)
	if err != nil {
		return nil, err
	}
	return pongrl.NewPreprocessEnv(factory, cfg.Preprocessor())
}

// PolicyConfig creates the network configuration for an
// environment.
func PolicyConfig(cfg *Config, env *pongrl.PreprocessEnv) policy.Config {
	rows, cols := env.Preprocessor.ObservationShape()
	return policy.Config{
		NumActions: env.NumActions(),
		Width:      cols,
		Height:     rows,
		StateSize:  policy.StateSize,
		HiddenSize: cfg.HiddenSize,
	}
}

// LoadOrCreatePolicy loads the newest checkpoint in the
// model directory, or creates a new policy if there is
// none.
func LoadOrCreatePolicy(c anyvec.Creator, cfg *Config, netCfg policy.Config,
	log zerolog.Logger) (*policy.Policy, error) {
	latest, err := a3c.LatestCheckpoint(cfg.ModelDir)
	if err != nil {
		return nil, err
	}
	if latest == "" {
		log.Info().Msg("created new policy")
		return policy.New(c, netCfg)
	}
	log.Info().Str("path", latest).Msg("loaded policy")
	return policy.Load(latest, netCfg)
}

// Train trains a policy with A3C.
//
// Training resumes from the newest checkpoint in the model
// directory. It stops after cfg.Steps environment steps, or
// when ctx is done, and then saves a final checkpoint.
func Train(ctx context.Context, cfg *Config, log zerolog.Logger) (pol *policy.Policy,
	err error) {
	defer essentials.AddCtxTo("train", &err)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = log.With().Str("run", uuid.New().String()).Logger()

	proto, err := NewEnv(cfg)
	if err != nil {
		return nil, err
	}
	defer proto.Close()

	var envs []pongrl.Env
	for i := 0; i < cfg.Workers; i++ {
		env, err := proto.Duplicate()
		if err != nil {
			return nil, err
		}
		defer env.Close()
		if cfg.MaxEpisodeSteps > 0 {
			envs = append(envs, &pongrl.MaxStepsEnv{Env: env, MaxSteps: cfg.MaxEpisodeSteps})
		} else {
			envs = append(envs, env)
		}
	}

	netCfg := PolicyConfig(cfg, proto)
	pol, err = LoadOrCreatePolicy(anyvec32.CurrentCreator(), cfg, netCfg, log)
	if err != nil {
		return nil, err
	}

	server := newParamServer(cfg, pol.Agent)
	defer server.Close()

	trainer := &a3c.A3C{
		Creator:     pol.Creator,
		ParamServer: server,
		Logger: &a3c.AvgLogger{
			Logger: &a3c.StandardLogger{
				Log:        log,
				Episode:    true,
				Update:     true,
				Regularize: log.GetLevel() <= zerolog.DebugLevel,
			},
			Creator:    pol.Creator,
			Episode:    cfg.LogWindow,
			Update:     cfg.LogWindow * cfg.Workers,
			Regularize: cfg.LogWindow * cfg.RolloutLength,
		},
		Discount:    cfg.Discount,
		Lambda:      cfg.Lambda,
		ValueWeight: cfg.ValueWeight,
		MaxSteps:    cfg.RolloutLength,
		Regularizer: &a3c.EntropyReg{
			Entropyer: pongrl.Softmax{},
			Coeff:     cfg.Entropy,
		},
	}

	checkpointer := &a3c.Checkpointer{
		Dir:      cfg.ModelDir,
		Server:   server,
		Interval: cfg.CheckpointInterval,
		Keep:     cfg.CheckpointKeep,
		Log:      log,
	}
	log.Info().Int("workers", cfg.Workers).Int("steps", cfg.Steps).
		Str("optimizer", cfg.Optimizer).Msg("training")
	steps, err := runWithCheckpoints(ctx, checkpointer, func(ctx context.Context) (int,
		error) {
		if cfg.Steps > 0 {
			return trainer.Fit(ctx, envs, cfg.Steps)
		}
		return 0, trainer.Run(ctx, envs)
	})
	if err != nil {
		return nil, err
	}

	path, err := checkpointer.Save()
	if err != nil {
		return nil, err
	}
	log.Info().Int("steps", steps).Str("path", path).Msg("training done")

	global, err := server.LocalCopy()
	if err != nil {
		return nil, err
	}
	return policy.FromAgent(global.Agent, netCfg)
}

// runWithCheckpoints runs train while c saves checkpoints
// in the background.
//
// A checkpoint failure cancels training and is returned.
func runWithCheckpoints(ctx context.Context, c *a3c.Checkpointer,
	train func(ctx context.Context) (int, error)) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cpDone := make(chan error, 1)
	go func() {
		err := c.Run(ctx)
		if err != nil {
			cancel()
		}
		cpDone <- err
	}()
	steps, err := train(ctx)
	cancel()
	if cpErr := <-cpDone; cpErr != nil {
		return steps, cpErr
	}
	return steps, err
}

func newParamServer(cfg *Config, agent *a3c.Agent) a3c.ParamServer {
	params := agent.AllParameters()
	switch cfg.Optimizer {
	case OptimizerRMSProp:
		return a3c.RMSPropParamServer(agent, params, cfg.LearningRate, anysgd.RMSProp{
			DecayRate: 0.99,
		})
	case OptimizerSGD:
		return a3c.VanillaParamServer(agent, params, cfg.LearningRate)
	default:
		return a3c.AdamParamServer(agent, params, cfg.LearningRate, anysgd.Adam{})
	}
}
