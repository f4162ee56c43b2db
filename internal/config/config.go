package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"snakeql/internal/env"
)

// Config is the root configuration structure
type Config struct {
	Seed       uint64           `yaml:"seed"`
	Env        EnvConfig        `yaml:"env"`
	Agent      AgentConfig      `yaml:"agent"`
	Train      TrainConfig      `yaml:"train"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Logging    LogConfig        `yaml:"logging"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Sink       SinkConfig       `yaml:"sink"`
}

// EnvConfig defines environment parameters, all in pixels
type EnvConfig struct {
	Width       int `yaml:"width"`
	Height      int `yaml:"height"`
	BlockSize   int `yaml:"block_size"`
	StallFactor int `yaml:"stall_factor"` // frames allowed per body segment, 0 disables
}

// AgentConfig defines the learner
type AgentConfig struct {
	MaxMemory    int     `yaml:"max_memory"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Gamma        float64 `yaml:"gamma"`
	Hidden       int     `yaml:"hidden"`
	EpsilonStart int     `yaml:"epsilon_start"`
	ExploreRange int     `yaml:"explore_range"`
	DangerMode   string  `yaml:"danger_mode"` // lookahead|legacy
}

// TrainConfig defines the training run
type TrainConfig struct {
	MaxEpisodes    int      `yaml:"max_episodes"` // 0 runs until interrupted
	BenchmarkEvery int      `yaml:"benchmark_every"`
	BenchmarkSeeds []uint64 `yaml:"benchmark_seeds"`
	Workers        int      `yaml:"workers"`
}

// CheckpointConfig defines where the model is saved
type CheckpointConfig struct {
	Path   string `yaml:"path"`
	Resume bool   `yaml:"resume"`
}

// LogConfig defines logging parameters
type LogConfig struct {
	CSVPath   string `yaml:"csv_path"`
	JSONPath  string `yaml:"json_path"`
	PlotPath  string `yaml:"plot_path"`
	PlotEvery int    `yaml:"plot_every"`
	Quiet     bool   `yaml:"quiet"`
}

// MonitorConfig defines the live HTTP monitor. Empty Addr disables it.
type MonitorConfig struct {
	Addr string `yaml:"addr"`
}

// SinkConfig defines the Redis episode stream. Empty RedisAddr disables it.
type SinkConfig struct {
	RedisAddr   string `yaml:"redis_addr"`
	RedisStream string `yaml:"redis_stream"`
	RedisMaxLen int64  `yaml:"redis_maxlen"`
}

// Load reads a YAML config file and returns a Config. The file is decoded
// over Default(), so missing keys keep their defaults and explicit zeros
// are kept as written.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Seed: 1337,
		Env: EnvConfig{
			Width:       640,
			Height:      480,
			BlockSize:   20,
			StallFactor: 100,
		},
		Agent: AgentConfig{
			MaxMemory:    100_000,
			BatchSize:    1000,
			LearningRate: 0.001,
			Gamma:        0.9,
			Hidden:       256,
			EpsilonStart: 80,
			ExploreRange: 200,
			DangerMode:   string(env.DangerLookahead),
		},
		Train: TrainConfig{
			BenchmarkEvery: 100,
			BenchmarkSeeds: []uint64{2000, 2001, 2002, 2003, 2004, 2005, 2006, 2007, 2008, 2009},
		},
		Checkpoint: CheckpointConfig{
			Path: "model/model.gob",
		},
		Logging: LogConfig{
			CSVPath:   "runs/run.csv",
			JSONPath:  "runs/run.jsonl",
			PlotPath:  "runs/scores.png",
			PlotEvery: 50,
		},
		Sink: SinkConfig{
			RedisStream: "snakeql:episodes",
			RedisMaxLen: 10_000,
		},
	}
}

// Validate rejects configurations the trainer cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Env.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("env.block_size must be positive, got %d", c.Env.BlockSize))
	} else {
		// The head starts on the centre column with two segments to its left
		if c.Env.Width < 4*c.Env.BlockSize || c.Env.Width%c.Env.BlockSize != 0 {
			errs = append(errs, fmt.Errorf("env.width %d must be a multiple of block_size %d and at least 4 blocks wide", c.Env.Width, c.Env.BlockSize))
		}
		if c.Env.Height < c.Env.BlockSize || c.Env.Height%c.Env.BlockSize != 0 {
			errs = append(errs, fmt.Errorf("env.height %d must be a multiple of block_size %d", c.Env.Height, c.Env.BlockSize))
		}
	}
	if c.Env.StallFactor < 0 {
		errs = append(errs, fmt.Errorf("env.stall_factor must not be negative, got %d", c.Env.StallFactor))
	}
	if c.Agent.MaxMemory < 1 {
		errs = append(errs, fmt.Errorf("agent.max_memory must be at least 1, got %d", c.Agent.MaxMemory))
	}
	if c.Agent.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("agent.batch_size must be at least 1, got %d", c.Agent.BatchSize))
	}
	if c.Agent.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("agent.learning_rate must be positive, got %g", c.Agent.LearningRate))
	}
	if c.Agent.Gamma < 0 || c.Agent.Gamma > 1 {
		errs = append(errs, fmt.Errorf("agent.gamma must be in [0, 1], got %g", c.Agent.Gamma))
	}
	if c.Agent.Hidden < 1 {
		errs = append(errs, fmt.Errorf("agent.hidden must be at least 1, got %d", c.Agent.Hidden))
	}
	if c.Agent.EpsilonStart < 0 {
		errs = append(errs, fmt.Errorf("agent.epsilon_start must not be negative, got %d", c.Agent.EpsilonStart))
	}
	if c.Agent.ExploreRange < 1 {
		errs = append(errs, fmt.Errorf("agent.explore_range must be at least 1, got %d", c.Agent.ExploreRange))
	}
	if _, err := env.ParseDangerMode(c.Agent.DangerMode); err != nil {
		errs = append(errs, fmt.Errorf("agent.danger_mode: %w", err))
	}
	if c.Train.MaxEpisodes < 0 {
		errs = append(errs, fmt.Errorf("train.max_episodes must not be negative, got %d", c.Train.MaxEpisodes))
	}
	if c.Checkpoint.Path == "" {
		errs = append(errs, errors.New("checkpoint.path must be set"))
	}
	return errors.Join(errs...)
}
