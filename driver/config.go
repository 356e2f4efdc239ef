package driver

import (
	"fmt"
	"strings"
	"time"

	"github.com/sarminh/pongrl"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/unixpickle/essentials"
)

// EnvPrefix is the prefix for environment variables which
// override configuration keys.
const EnvPrefix = "PONGRL"

// Simulator kinds.
const (
	SimulatorBuiltin = "builtin"
	SimulatorGym     = "gym"
)

// Optimizers.
const (
	OptimizerAdam    = "adam"
	OptimizerRMSProp = "rmsprop"
	OptimizerSGD     = "sgd"
)

// Config holds the settings for training and playing.
type Config struct {
	// Environment
	Simulator       string `mapstructure:"simulator"`
	GymHost         string `mapstructure:"gym_host"`
	EnvName         string `mapstructure:"env_name"`
	Seed            int64  `mapstructure:"seed"`
	Background      int    `mapstructure:"background"`
	MaxEpisodeSteps int    `mapstructure:"max_episode_steps"`

	// Training
	Workers       int     `mapstructure:"workers"`
	Steps         int     `mapstructure:"steps"`
	Optimizer     string  `mapstructure:"optimizer"`
	LearningRate  float64 `mapstructure:"learning_rate"`
	Discount      float64 `mapstructure:"discount"`
	Lambda        float64 `mapstructure:"lambda"`
	Entropy       float64 `mapstructure:"entropy"`
	ValueWeight   float64 `mapstructure:"value_weight"`
	RolloutLength int     `mapstructure:"rollout_length"`
	HiddenSize    int     `mapstructure:"hidden_size"`

	// Checkpoints
	ModelDir           string        `mapstructure:"model_dir"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`
	CheckpointKeep     int           `mapstructure:"checkpoint_keep"`

	// Playing
	Render        bool   `mapstructure:"render"`
	FrameDir      string `mapstructure:"frame_dir"`
	Deterministic bool   `mapstructure:"deterministic"`
	Episodes      int    `mapstructure:"episodes"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogWindow int    `mapstructure:"log_window"`
}

// Default returns a config with the standard Pong
// training settings.
func Default() *Config {
	return &Config{
		Simulator:  SimulatorBuiltin,
		GymHost:    "localhost:5001",
		EnvName:    "Pong-v0",
		Background: pongrl.PongBackground,

		Workers:       8,
		Steps:         10000000,
		Optimizer:     OptimizerAdam,
		LearningRate:  2e-4,
		Discount:      0.99,
		Lambda:        0.98,
		Entropy:       0.01,
		ValueWeight:   1,
		RolloutLength: 20,
		HiddenSize:    256,

		ModelDir:           "pong_model",
		CheckpointInterval: 10 * time.Minute,
		CheckpointKeep:     5,

		Episodes: 1,

		LogLevel:  "info",
		LogWindow: 10,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Simulator {
	case SimulatorBuiltin:
	case SimulatorGym:
		if c.GymHost == "" || c.EnvName == "" {
			return fmt.Errorf("gym_host and env_name are required for the gym simulator")
		}
	default:
		return fmt.Errorf("unknown simulator: %q", c.Simulator)
	}
	switch c.Optimizer {
	case OptimizerAdam, OptimizerRMSProp, OptimizerSGD:
	default:
		return fmt.Errorf("unknown optimizer: %q", c.Optimizer)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Steps < 0 {
		return fmt.Errorf("steps must not be negative")
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive")
	}
	if c.Discount <= 0 || c.Discount > 1 {
		return fmt.Errorf("discount must be in (0, 1]")
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("lambda must be in [0, 1]")
	}
	if c.Entropy < 0 || c.ValueWeight < 0 {
		return fmt.Errorf("entropy and value_weight must not be negative")
	}
	if c.RolloutLength <= 0 {
		return fmt.Errorf("rollout_length must be positive")
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("hidden_size must be positive")
	}
	if c.ModelDir == "" {
		return fmt.Errorf("model_dir is required")
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("checkpoint_interval must be positive")
	}
	if c.CheckpointKeep < 0 {
		return fmt.Errorf("checkpoint_keep must not be negative")
	}
	if c.Episodes <= 0 {
		return fmt.Errorf("episodes must be positive")
	}
	if c.Background < 0 || c.Background > 3*255 {
		return fmt.Errorf("background out of range: %d", c.Background)
	}
	return nil
}

// Preprocessor creates the observation preprocessor for
// the configured background.
func (c *Config) Preprocessor() *pongrl.Preprocessor {
	pre := pongrl.DefaultPreprocessor()
	pre.Background = c.Background
	return pre
}

type setting struct {
	Key   string
	Usage string
	Field interface{}
}

func (c *Config) settings() []setting {
	return []setting{
		{"simulator", "simulator kind (builtin or gym)", &c.Simulator},
		{"gym_host", "gym-socket-api server address", &c.GymHost},
		{"env_name", "gym environment name", &c.EnvName},
		{"seed", "seed for the builtin simulator", &c.Seed},
		{"background", "summed RGB value of background pixels", &c.Background},
		{"max_episode_steps", "step limit per episode (0 for none)", &c.MaxEpisodeSteps},
		{"workers", "number of A3C workers", &c.Workers},
		{"steps", "total environment steps (0 to train until interrupted)", &c.Steps},
		{"optimizer", "optimizer (adam, rmsprop or sgd)", &c.Optimizer},
		{"learning_rate", "optimizer step size", &c.LearningRate},
		{"discount", "reward discount factor", &c.Discount},
		{"lambda", "GAE lambda (0 or 1 for n-step advantages)", &c.Lambda},
		{"entropy", "entropy regularization coefficient", &c.Entropy},
		{"value_weight", "weight of the critic loss", &c.ValueWeight},
		{"rollout_length", "steps per rollout", &c.RolloutLength},
		{"hidden_size", "size of the dense feature layer", &c.HiddenSize},
		{"model_dir", "checkpoint directory", &c.ModelDir},
		{"checkpoint_interval", "time between checkpoints", &c.CheckpointInterval},
		{"checkpoint_keep", "number of checkpoints to keep (0 for all)", &c.CheckpointKeep},
		{"render", "render the simulator while playing", &c.Render},
		{"frame_dir", "directory for rendered frames of the builtin simulator", &c.FrameDir},
		{"deterministic", "play the most likely action", &c.Deterministic},
		{"episodes", "number of episodes to play", &c.Episodes},
		{"log_level", "log level (debug, info, warn, error)", &c.LogLevel},
		{"log_window", "number of episodes or updates per averaged log line", &c.LogWindow},
	}
}

// FlagName converts a configuration key to a flag name.
func FlagName(key string) string {
	return strings.Replace(key, "_", "-", -1)
}

// RegisterFlags adds a flag for every configuration key,
// with defaults from Default.
func RegisterFlags(fs *pflag.FlagSet) {
	for _, s := range Default().settings() {
		name := FlagName(s.Key)
		switch field := s.Field.(type) {
		case *string:
			fs.String(name, *field, s.Usage)
		case *int:
			fs.Int(name, *field, s.Usage)
		case *int64:
			fs.Int64(name, *field, s.Usage)
		case *float64:
			fs.Float64(name, *field, s.Usage)
		case *bool:
			fs.Bool(name, *field, s.Usage)
		case *time.Duration:
			fs.Duration(name, *field, s.Usage)
		default:
			panic(fmt.Sprintf("unsupported setting type %T", field))
		}
	}
}

// BindFlags binds the flags added by RegisterFlags to v,
// and makes v read PONGRL_* environment variables.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, s := range Default().settings() {
		flag := fs.Lookup(FlagName(s.Key))
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(s.Key, flag); err != nil {
			return essentials.AddCtx("bind flags", err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return nil
}

// Load reads a Config from v.
//
// Keys which v does not know about keep their defaults.
func Load(v *viper.Viper) (cfg *Config, err error) {
	defer essentials.AddCtxTo("load config", &err)
	cfg = Default()
	for _, s := range cfg.settings() {
		if !v.IsSet(s.Key) {
			continue
		}
		if err := v.UnmarshalKey(s.Key, s.Field); err != nil {
			return nil, fmt.Errorf("key %s: %v", s.Key, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
