package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"snakeql/internal/agent"
	"snakeql/internal/config"
	"snakeql/internal/env"
	"snakeql/internal/eval"
	"snakeql/internal/logging"
	"snakeql/internal/memory"
	"snakeql/internal/monitor"
	"snakeql/internal/nn"
	"snakeql/internal/report"
	"snakeql/internal/train"
)

const defaultConfigPath = "configs/default.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var (
		configPath  string
		episodes    int
		seed        uint64
		resume      bool
		monitorAddr string
	)

	cmd := &cobra.Command{
		Use:           "train",
		Short:         "Train the snake Q-learning agent until interrupted",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}

			// Flags override the file
			if cmd.Flags().Changed("episodes") {
				cfg.Train.MaxEpisodes = episodes
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}
			if cmd.Flags().Changed("resume") {
				cfg.Checkpoint.Resume = resume
			}
			if cmd.Flags().Changed("monitor") {
				cfg.Monitor.Addr = monitorAddr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config:\n%w", err)
			}
			return run(cmd.Context(), cfg, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().IntVarP(&episodes, "episodes", "e", 0, "stop after this many more games (0 runs until interrupted)")
	cmd.Flags().Uint64Var(&seed, "seed", 1337, "random seed")
	cmd.Flags().BoolVar(&resume, "resume", false, "load the checkpoint before training")
	cmd.Flags().StringVar(&monitorAddr, "monitor", "", "serve live state over HTTP on this address")

	cmd.AddCommand(plotCommand())
	return cmd
}

func plotCommand() *cobra.Command {
	var csvPath, out string

	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Plot scores from a CSV run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := report.PlotCSV(csvPath, out); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "runs/run.csv", "CSV run log")
	cmd.Flags().StringVar(&out, "out", "runs/scores.png", "output PNG")
	return cmd
}

// loadConfig reads path. A missing default file falls back to built-in
// defaults; a missing explicit file is an error.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, configPath string) error {
	mode, _ := env.ParseDangerMode(cfg.Agent.DangerMode)

	fmt.Printf("Snake Q-learning trainer\n")
	fmt.Printf("Config: %s, Seed: %d\n", configPath, cfg.Seed)
	fmt.Printf("Board: %dx%d (block %d), Danger: %s\n", cfg.Env.Width, cfg.Env.Height, cfg.Env.BlockSize, mode)
	fmt.Printf("Net: %d-%d-%d, lr=%g, gamma=%g, memory=%d, batch=%d\n",
		env.StateSize, cfg.Agent.Hidden, env.NumActions,
		cfg.Agent.LearningRate, cfg.Agent.Gamma, cfg.Agent.MaxMemory, cfg.Agent.BatchSize)
	fmt.Println("---")

	qnet := nn.NewQNet(nn.Config{
		InputSize:      env.StateSize,
		HiddenSize:     cfg.Agent.Hidden,
		OutputSize:     env.NumActions,
		LearningRate:   cfg.Agent.LearningRate,
		Gamma:          cfg.Agent.Gamma,
		CheckpointPath: cfg.Checkpoint.Path,
	}, cfg.Seed)

	if cfg.Checkpoint.Resume {
		err := qnet.Load(cfg.Checkpoint.Path)
		switch {
		case err == nil:
			p := qnet.Progress()
			fmt.Printf("Resumed from %s at game %d, record %d\n", cfg.Checkpoint.Path, p.Games, p.Record)
		case errors.Is(err, fs.ErrNotExist):
			fmt.Fprintf(os.Stderr, "Warning: no checkpoint at %s, starting fresh\n", cfg.Checkpoint.Path)
		default:
			return err
		}
	}

	// Distinct streams so food, exploration and sampling stay independent
	game := env.NewGame(cfg.Env.Width, cfg.Env.Height, cfg.Env.BlockSize, cfg.Env.StallFactor, cfg.Seed)
	mem := memory.New(cfg.Agent.MaxMemory, cfg.Seed+1)
	policy := agent.NewEpsilonGreedy(cfg.Agent.EpsilonStart, cfg.Agent.ExploreRange, cfg.Seed+2)
	learner := agent.New(qnet, mem, policy, cfg.Agent.BatchSize)

	logger, err := logging.NewLogger(cfg.Logging.CSVPath, cfg.Logging.JSONPath, os.Stdout, cfg.Logging.Quiet)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	sinks := logging.MultiSink{logger}
	defer func() {
		if err := sinks.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: closing sinks: %v\n", err)
		}
	}()

	if cfg.Sink.RedisAddr != "" {
		rs, err := logging.NewRedisSink(ctx, cfg.Sink.RedisAddr, cfg.Sink.RedisStream, cfg.Sink.RedisMaxLen)
		if err != nil {
			return err
		}
		sinks = append(sinks, rs)
		fmt.Printf("Streaming episodes to redis %s/%s\n", cfg.Sink.RedisAddr, cfg.Sink.RedisStream)
	}

	trainer := train.New(game, env.NewEncoder(mode), learner, train.Options{
		MaxEpisodes:    cfg.Train.MaxEpisodes,
		BenchmarkEvery: cfg.Train.BenchmarkEvery,
		BenchmarkSeeds: cfg.Train.BenchmarkSeeds,
		PlotPath:       cfg.Logging.PlotPath,
		PlotEvery:      cfg.Logging.PlotEvery,
	})
	// Zero for a fresh network
	trainer.Resume(qnet.Progress())

	if cfg.Monitor.Addr != "" {
		board := monitor.NewBoard(cfg.Monitor.Addr)
		board.Start(ctx)
		trainer.AddObserver(board)
		sinks = append(sinks, board)
		fmt.Printf("Monitor on http://%s/stats\n", cfg.Monitor.Addr)
	}
	trainer.SetSink(sinks)

	if cfg.Train.BenchmarkEvery > 0 {
		trainer.SetEvaluator(eval.NewEvaluator(cfg), logger)
	}

	startTime := time.Now()
	if err := trainer.Run(ctx); err != nil {
		return err
	}

	fmt.Println("---")
	fmt.Printf("Training stopped after %d games in %v, record %d\n",
		learner.NumGames, time.Since(startTime).Round(time.Second), trainer.Record)
	return nil
}
