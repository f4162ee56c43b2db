package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"snakeql/internal/config"
	"snakeql/internal/env"
	"snakeql/internal/eval"
	"snakeql/internal/nn"
	"snakeql/internal/render"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type playOptions struct {
	configPath string
	checkpoint string
	seed       uint64
	episodes   int
	delay      time.Duration
	noDisplay  bool
	framesDir  string
	replayDir  string
}

func rootCommand() *cobra.Command {
	var opts playOptions

	cmd := &cobra.Command{
		Use:           "play",
		Short:         "Watch a trained agent play greedily",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return play(opts, cmd.Flags().Changed("config"))
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/default.yaml", "path to config file")
	cmd.PersistentFlags().DurationVar(&opts.delay, "delay", 100*time.Millisecond, "delay between frames")
	cmd.PersistentFlags().BoolVar(&opts.noDisplay, "no-display", false, "run without display (just print stats)")
	cmd.Flags().StringVar(&opts.checkpoint, "checkpoint", "", "model checkpoint (defaults to checkpoint.path)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 12345, "seed of the first game")
	cmd.Flags().IntVarP(&opts.episodes, "episodes", "n", 1, "number of games, on consecutive seeds")
	cmd.Flags().StringVar(&opts.framesDir, "frames", "", "write every frame as PNG under this directory")
	cmd.Flags().StringVar(&opts.replayDir, "replays", "", "save an action replay per game in this directory")

	cmd.AddCommand(replayCommand(&opts))
	return cmd
}

func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, cfg.Validate()
}

func play(opts playOptions, explicitConfig bool) error {
	cfg, err := loadConfig(opts.configPath, explicitConfig)
	if err != nil {
		return err
	}
	if opts.checkpoint == "" {
		opts.checkpoint = cfg.Checkpoint.Path
	}
	if opts.episodes < 1 {
		opts.episodes = 1
	}

	qnet := nn.NewQNet(nn.Config{
		InputSize:    env.StateSize,
		HiddenSize:   cfg.Agent.Hidden,
		OutputSize:   env.NumActions,
		LearningRate: cfg.Agent.LearningRate,
		Gamma:        cfg.Agent.Gamma,
	}, cfg.Seed)
	if err := qnet.Load(opts.checkpoint); err != nil {
		return err
	}

	fmt.Printf("Loaded %s\n", opts.checkpoint)
	fmt.Printf("Config: %s, Seeds: %d..%d\n", opts.configPath, opts.seed, opts.seed+uint64(opts.episodes)-1)
	fmt.Println("Press Ctrl+C to exit")
	fmt.Println()

	evaluator := eval.NewEvaluator(cfg)
	display := render.NewTerminal(os.Stdout, true)

	episodes := make([]env.EpisodeStats, 0, opts.episodes)
	for i := 0; i < opts.episodes; i++ {
		seed := opts.seed + uint64(i)

		var frames *render.Sequence
		if opts.framesDir != "" {
			frames, err = render.NewSequence(filepath.Join(opts.framesDir, fmt.Sprintf("seed_%d", seed)))
			if err != nil {
				return err
			}
		}

		var frameErr error
		observe := func(f env.Frame, action env.Action) {
			if !opts.noDisplay {
				if err := display.Render(f, action); err != nil && frameErr == nil {
					frameErr = err
				}
				time.Sleep(opts.delay)
			}
			if frames != nil && frameErr == nil {
				if _, err := frames.Write(f); err != nil {
					frameErr = err
				}
			}
		}

		replay, stats := evaluator.EvaluateWithReplay(qnet, seed, observe)
		if frameErr != nil {
			return frameErr
		}
		episodes = append(episodes, stats)
		printStats(stats)

		if opts.replayDir != "" {
			path := filepath.Join(opts.replayDir, fmt.Sprintf("replay_seed%d.json", seed))
			if err := replay.Save(path); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save replay: %v\n", err)
			}
		}
	}

	if len(episodes) > 1 {
		agg := env.Aggregate(episodes)
		fmt.Printf("\n%d games: Score mean=%.2f std=%.2f max=%d, Steps mean=%.1f\n",
			agg.NumEpisodes, agg.ScoreMean, agg.ScoreStd, agg.ScoreMax, agg.StepsMean)
		fmt.Printf("Deaths: W=%d S=%d St=%d F=%d\n",
			agg.DeathCounts[env.DeathWall], agg.DeathCounts[env.DeathSelf],
			agg.DeathCounts[env.DeathStall], agg.DeathCounts[env.DeathBoardFull])
	}
	return nil
}

func printStats(stats env.EpisodeStats) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════")
	fmt.Printf("  Game Over! Seed: %d, Death: %s\n", stats.Seed, stats.Death)
	fmt.Printf("  Steps: %d, Score: %d, Length: %d\n", stats.Steps, stats.Score, stats.Length)
	fmt.Println("═══════════════════════════════════")
}

func replayCommand(opts *playOptions) *cobra.Command {
	var start int

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Play back a saved replay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := env.LoadReplay(args[0])
			if err != nil {
				return err
			}

			game := r.Playback()
			next := r.Advance(game, 0, start)
			display := render.NewTerminal(os.Stdout, true)

			for ; next < len(r.Actions) && game.Alive; next++ {
				if !opts.noDisplay {
					if err := display.Render(game.Frame(), r.Actions[next]); err != nil {
						return err
					}
					time.Sleep(opts.delay)
				}
				game.Step(r.Actions[next])
			}
			if !opts.noDisplay {
				if err := display.Render(game.Frame(), render.NoAction); err != nil {
					return err
				}
			}

			printStats(game.Stats(r.Seed))
			return r.Check(game)
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "skip this many steps before displaying")
	return cmd
}
