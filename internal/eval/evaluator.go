package eval

import (
	"runtime"
	"sync"

	"snakeql/internal/agent"
	"snakeql/internal/config"
	"snakeql/internal/env"
)

// Evaluator plays greedy episodes with a fixed estimator
type Evaluator struct {
	cfg     config.EnvConfig
	mode    env.DangerMode
	workers int
}

// NewEvaluator creates a new evaluator
func NewEvaluator(cfg *config.Config) *Evaluator {
	workers := cfg.Train.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	mode, _ := env.ParseDangerMode(cfg.Agent.DangerMode)

	return &Evaluator{
		cfg:     cfg.Env,
		mode:    mode,
		workers: workers,
	}
}

func (e *Evaluator) newGame(seed uint64) *env.Game {
	return env.NewGame(e.cfg.Width, e.cfg.Height, e.cfg.BlockSize, e.cfg.StallFactor, seed)
}

// EvaluateEpisode runs a single greedy episode on the given seed. The
// estimator is only read, so episodes may run concurrently.
func (e *Evaluator) EvaluateEpisode(est agent.Estimator, seed uint64) env.EpisodeStats {
	game := e.newGame(seed)
	// Encoder per episode so workers share nothing
	enc := env.NewEncoder(e.mode)

	for game.Alive {
		game.Step(agent.Greedy(enc.Encode(game), est))
	}
	return game.Stats(seed)
}

// RunBenchmark evaluates the estimator on every seed using the worker pool
// and aggregates the results in seed order.
func (e *Evaluator) RunBenchmark(est agent.Estimator, seeds []uint64) env.AggregatedStats {
	episodes := make([]env.EpisodeStats, len(seeds))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers)

	for i, seed := range seeds {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, seed uint64) {
			defer wg.Done()
			defer func() { <-sem }()
			episodes[i] = e.EvaluateEpisode(est, seed)
		}(i, seed)
	}
	wg.Wait()

	return env.Aggregate(episodes)
}

// EvaluateWithReplay runs a greedy episode and records its actions. When
// observe is non-nil it is called with every frame, the initial one
// included.
func (e *Evaluator) EvaluateWithReplay(est agent.Estimator, seed uint64, observe func(env.Frame, env.Action)) (*env.Replay, env.EpisodeStats) {
	game := e.newGame(seed)
	replay := env.NewReplay(game, seed)
	enc := env.NewEncoder(e.mode)

	for game.Alive {
		action := agent.Greedy(enc.Encode(game), est)
		if observe != nil {
			observe(game.Frame(), action)
		}
		replay.Record(action)
		game.Step(action)
	}
	if observe != nil {
		observe(game.Frame(), -1)
	}

	return replay, replay.Finish(game)
}
