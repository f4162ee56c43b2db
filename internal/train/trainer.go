// Package train runs the online training loop: every step updates the
// estimator on the newest transition, every finished game replays a batch
// from memory.
package train

import (
	"context"
	"fmt"
	"io"
	"os"

	"snakeql/internal/agent"
	"snakeql/internal/env"
	"snakeql/internal/eval"
	"snakeql/internal/logging"
	"snakeql/internal/memory"
	"snakeql/internal/nn"
	"snakeql/internal/report"
)

// FrameObserver is told about every board the trainer produces
type FrameObserver interface {
	ObserveFrame(env.Frame)
}

// progressRecorder is implemented by estimators whose checkpoints carry the
// run's bookkeeping
type progressRecorder interface {
	SetProgress(nn.Progress)
}

// Options control the optional parts of a run. Zero values disable them.
type Options struct {
	MaxEpisodes    int
	BenchmarkEvery int
	BenchmarkSeeds []uint64
	PlotPath       string
	PlotEvery      int
}

// Trainer owns the game and drives the agent. It is not safe for
// concurrent use; observers and sinks get copies.
type Trainer struct {
	Game    *env.Game
	Encoder *env.Encoder
	Agent   *agent.Agent

	Record     int
	TotalScore int
	Scores     []int
	MeanScores []float64

	opts      Options
	sink      logging.Sink
	observers []FrameObserver
	evaluator *eval.Evaluator
	logger    *logging.Logger
	warn      io.Writer
}

// New creates a trainer over a fresh game
func New(game *env.Game, enc *env.Encoder, a *agent.Agent, opts Options) *Trainer {
	return &Trainer{
		Game:    game,
		Encoder: enc,
		Agent:   a,
		opts:    opts,
		sink:    logging.MultiSink{},
		warn:    os.Stderr,
	}
}

// SetSink sets where finished episodes are written
func (t *Trainer) SetSink(s logging.Sink) {
	t.sink = s
}

// AddObserver registers o for every frame
func (t *Trainer) AddObserver(o FrameObserver) {
	t.observers = append(t.observers, o)
}

// SetEvaluator enables periodic greedy benchmarks, reported through l
func (t *Trainer) SetEvaluator(e *eval.Evaluator, l *logging.Logger) {
	t.evaluator = e
	t.logger = l
}

// Resume continues the bookkeeping of a loaded checkpoint: game count,
// and with it the exploration schedule, record and total score.
func (t *Trainer) Resume(p nn.Progress) {
	t.Agent.NumGames = p.Games
	t.Record = p.Record
	t.TotalScore = p.TotalScore
}

// SetWarnings redirects non-fatal errors, stderr by default
func (t *Trainer) SetWarnings(w io.Writer) {
	t.warn = w
}

// Run trains until ctx is cancelled or MaxEpisodes more games have finished.
// Cancellation is checked between steps, so a step and its updates always
// complete. A cancelled run is not an error.
func (t *Trainer) Run(ctx context.Context) error {
	defer t.plot()

	for {
		if ctx.Err() != nil {
			return nil
		}
		// Scores holds this run's games only, so a resumed run plays MaxEpisodes more
		if t.opts.MaxEpisodes > 0 && len(t.Scores) >= t.opts.MaxEpisodes {
			return nil
		}
		if _, err := t.Step(ctx); err != nil {
			return err
		}
	}
}

// Step plays one frame and learns from it. It reports whether the frame
// ended a game.
func (t *Trainer) Step(ctx context.Context) (bool, error) {
	state := t.Encoder.Encode(t.Game)
	action := t.Agent.GetAction(state)

	reward, done, score := t.Game.Step(action)
	next := t.Encoder.Encode(t.Game)

	tr := memory.Transition{
		State:     state,
		Action:    action.Vector(),
		Reward:    float64(reward),
		NextState: next,
		Done:      done,
	}
	if err := t.Agent.TrainShortMemory(tr); err != nil {
		return done, err
	}
	t.Agent.Remember(tr)
	t.publish()

	if done {
		return true, t.finishEpisode(ctx, score)
	}
	return false, nil
}

func (t *Trainer) publish() {
	if len(t.observers) == 0 {
		return
	}
	f := t.Game.Frame()
	for _, o := range t.observers {
		o.ObserveFrame(f)
	}
}

func (t *Trainer) finishEpisode(ctx context.Context, score int) error {
	stats := t.Game.Stats(0)
	t.Game.Reset()
	t.Agent.NumGames++

	if err := t.Agent.TrainLongMemory(); err != nil {
		return err
	}

	t.Scores = append(t.Scores, score)
	t.TotalScore += score
	mean := float64(t.TotalScore) / float64(t.Agent.NumGames)
	t.MeanScores = append(t.MeanScores, mean)

	if score > t.Record {
		t.Record = score
		if pr, ok := t.Agent.Estimator.(progressRecorder); ok {
			pr.SetProgress(nn.Progress{Games: t.Agent.NumGames, Record: t.Record, TotalScore: t.TotalScore})
		}
		if err := t.Agent.Estimator.SaveCheckpoint(); err != nil {
			return fmt.Errorf("game %d: %w", t.Agent.NumGames, err)
		}
	}

	rec := logging.EpisodeRecord{
		Game:      t.Agent.NumGames,
		Score:     score,
		Record:    t.Record,
		MeanScore: mean,
		Steps:     stats.Steps,
		Length:    stats.Length,
		Death:     stats.Death,
		Epsilon:   t.Agent.Policy.Epsilon(t.Agent.NumGames),
		Memory:    t.Agent.Memory.Len(),
	}
	if err := t.sink.WriteEpisode(ctx, rec); err != nil {
		fmt.Fprintf(t.warn, "Warning: episode %d: %v\n", rec.Game, err)
	}

	n := t.Agent.NumGames
	if t.evaluator != nil && t.opts.BenchmarkEvery > 0 && n%t.opts.BenchmarkEvery == 0 {
		agg := t.evaluator.RunBenchmark(t.Agent.Estimator, t.opts.BenchmarkSeeds)
		if t.logger != nil {
			t.logger.LogBenchmark(n, agg)
		}
	}
	if t.opts.PlotEvery > 0 && n%t.opts.PlotEvery == 0 {
		t.plot()
	}
	return nil
}

func (t *Trainer) plot() {
	if t.opts.PlotPath == "" || len(t.Scores) == 0 {
		return
	}
	if err := report.PlotScores(t.Scores, t.MeanScores, t.opts.PlotPath); err != nil {
		fmt.Fprintf(t.warn, "Warning: failed to plot scores: %v\n", err)
	}
}
