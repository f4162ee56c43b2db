package train

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"snakeql/internal/agent"
	"snakeql/internal/config"
	"snakeql/internal/env"
	"snakeql/internal/eval"
	"snakeql/internal/logging"
	"snakeql/internal/memory"
	"snakeql/internal/nn"
)

type fakeEstimator struct {
	q           []float64
	singles     int
	batches     int
	checkpoints int
	saveErr     error
	progress    nn.Progress
}

func (f *fakeEstimator) SetProgress(p nn.Progress) { f.progress = p }

func (f *fakeEstimator) Predict([]float64) []float64 { return f.q }

func (f *fakeEstimator) UpdateSingle(memory.Transition) error {
	f.singles++
	return nil
}

func (f *fakeEstimator) UpdateBatch(memory.Batch) error {
	f.batches++
	return nil
}

func (f *fakeEstimator) SaveCheckpoint() error {
	f.checkpoints++
	return f.saveErr
}

type collectSink struct {
	recs []logging.EpisodeRecord
}

func (c *collectSink) WriteEpisode(_ context.Context, rec logging.EpisodeRecord) error {
	c.recs = append(c.recs, rec)
	return nil
}

func (c *collectSink) Close() error { return nil }

type frameCounter int

func (c *frameCounter) ObserveFrame(env.Frame) { *c++ }

func newTrainer(est *fakeEstimator, opts Options) *Trainer {
	game := env.NewGame(120, 120, 20, 100, 42)
	a := agent.New(est, memory.New(100_000, 1), agent.NewEpsilonGreedy(80, 200, 1), 64)
	return New(game, env.NewEncoder(env.DangerLookahead), a, opts)
}

func TestRunStopsAfterMaxEpisodes(t *testing.T) {
	est := &fakeEstimator{q: []float64{0.1, 0.5, 0.2}}
	tr := newTrainer(est, Options{MaxEpisodes: 6})
	sink := &collectSink{}
	tr.SetSink(sink)
	var frames frameCounter
	tr.AddObserver(&frames)

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if tr.Agent.NumGames != 6 || len(sink.recs) != 6 || est.batches != 6 {
		t.Fatalf("games=%d records=%d batches=%d, want 6 each", tr.Agent.NumGames, len(sink.recs), est.batches)
	}
	if int(frames) != est.singles || tr.Agent.Memory.Len() != est.singles {
		t.Fatalf("frames=%d singles=%d memory=%d should agree", frames, est.singles, tr.Agent.Memory.Len())
	}

	record, increases, steps := 0, 0, 0
	for i, rec := range sink.recs {
		if rec.Game != i+1 {
			t.Fatalf("record %d has game %d", i, rec.Game)
		}
		if rec.Score > record {
			record = rec.Score
			increases++
		}
		if rec.Record != record {
			t.Fatalf("game %d record %d, want %d", rec.Game, rec.Record, record)
		}
		if rec.Epsilon != 80-rec.Game {
			t.Fatalf("game %d epsilon %d", rec.Game, rec.Epsilon)
		}
		steps += rec.Steps
	}
	if est.checkpoints != increases {
		t.Fatalf("%d checkpoints for %d new records", est.checkpoints, increases)
	}
	if steps != est.singles {
		t.Fatalf("episode steps sum to %d, trained on %d", steps, est.singles)
	}
	if len(tr.MeanScores) != 6 || len(tr.Scores) != 6 {
		t.Fatalf("score series lengths %d/%d", len(tr.Scores), len(tr.MeanScores))
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	est := &fakeEstimator{q: []float64{1, 0, 0}}
	tr := newTrainer(est, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Run(ctx); err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	if est.singles != 0 {
		t.Fatalf("cancelled run still stepped %d times", est.singles)
	}
}

// headStraightIntoFood sets up a greedy agent that eats one food and then
// runs into the wall.
func headStraightIntoFood(est *fakeEstimator, opts Options) *Trainer {
	tr := newTrainer(est, opts)
	tr.Agent.NumGames = 100
	head := tr.Game.Head()
	tr.Game.Food = env.Point{X: head.X + 20, Y: head.Y}
	return tr
}

func TestNewRecordCheckpoints(t *testing.T) {
	est := &fakeEstimator{q: []float64{1, 0, 0}}
	tr := headStraightIntoFood(est, Options{})
	sink := &collectSink{}
	tr.SetSink(sink)

	for {
		done, err := tr.Step(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if done {
			break
		}
	}
	rec := sink.recs[0]
	if rec.Death != env.DeathWall || rec.Score < 1 || rec.Game != 101 {
		t.Fatalf("episode record %+v", rec)
	}
	if tr.Record != rec.Score || est.checkpoints != 1 {
		t.Fatalf("record=%d checkpoints=%d, want %d and 1", tr.Record, est.checkpoints, rec.Score)
	}
	want := nn.Progress{Games: 101, Record: rec.Score, TotalScore: rec.Score}
	if est.progress != want {
		t.Fatalf("checkpoint progress %+v, want %+v", est.progress, want)
	}
	if !tr.Game.Alive || tr.Game.Score != 0 {
		t.Fatal("game was not reset after the terminal step")
	}
}

func runOneGame(t *testing.T, tr *Trainer) {
	t.Helper()
	for {
		done, err := tr.Step(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if done {
			return
		}
	}
}

func TestResumeKeepsRecord(t *testing.T) {
	est := &fakeEstimator{q: []float64{1, 0, 0}}
	tr := headStraightIntoFood(est, Options{})
	tr.Resume(nn.Progress{Games: 300, Record: 40, TotalScore: 3000})
	sink := &collectSink{}
	tr.SetSink(sink)

	runOneGame(t, tr)

	rec := sink.recs[0]
	if rec.Score < 1 || rec.Score >= 40 {
		t.Fatalf("unexpected score %d", rec.Score)
	}
	if est.checkpoints != 0 {
		t.Fatalf("score %d below the resumed record rewrote the checkpoint", rec.Score)
	}
	if rec.Game != 301 || rec.Record != 40 || rec.Epsilon != 0 {
		t.Fatalf("episode record %+v does not continue the resumed run", rec)
	}
	if want := float64(3000+rec.Score) / 301; rec.MeanScore != want {
		t.Fatalf("mean %v, want %v", rec.MeanScore, want)
	}

	// A score above the restored record still checkpoints
	tr.Resume(nn.Progress{Games: 301, Record: 0, TotalScore: 3000 + rec.Score})
	head := tr.Game.Head()
	tr.Game.Food = env.Point{X: head.X + 20, Y: head.Y}
	runOneGame(t, tr)
	if est.checkpoints != 1 || est.progress.Games != 302 || est.progress.Record != tr.Record {
		t.Fatalf("checkpoints=%d progress=%+v record=%d", est.checkpoints, est.progress, tr.Record)
	}
}

func TestMaxEpisodesCountsFromResume(t *testing.T) {
	est := &fakeEstimator{q: []float64{1, 0, 0}}
	tr := newTrainer(est, Options{MaxEpisodes: 2})
	tr.Resume(nn.Progress{Games: 500, Record: 90, TotalScore: 9000})

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.Agent.NumGames != 502 || len(tr.Scores) != 2 {
		t.Fatalf("games=%d scores=%d, want 502 and 2", tr.Agent.NumGames, len(tr.Scores))
	}
}

func TestCheckpointErrorStopsRun(t *testing.T) {
	boom := errors.New("disk full")
	est := &fakeEstimator{q: []float64{1, 0, 0}, saveErr: boom}
	tr := headStraightIntoFood(est, Options{})

	if err := tr.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want checkpoint failure", err)
	}
}

type failingSink struct{}

func (failingSink) WriteEpisode(context.Context, logging.EpisodeRecord) error {
	return errors.New("sink down")
}
func (failingSink) Close() error { return nil }

func TestSinkErrorsAreWarnings(t *testing.T) {
	est := &fakeEstimator{q: []float64{1, 0, 0}}
	tr := newTrainer(est, Options{MaxEpisodes: 2})
	tr.SetSink(failingSink{})
	var warn bytes.Buffer
	tr.SetWarnings(&warn)

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Contains(warn.Bytes(), []byte("sink down")) {
		t.Fatalf("warnings = %q", warn.String())
	}
}

func TestBenchmarkAndPlot(t *testing.T) {
	dir := t.TempDir()
	plotPath := filepath.Join(dir, "scores.png")
	est := &fakeEstimator{q: []float64{0.3, 0.9, 0.1}}
	tr := newTrainer(est, Options{
		MaxEpisodes:    4,
		BenchmarkEvery: 2,
		BenchmarkSeeds: []uint64{1, 2, 3},
		PlotPath:       plotPath,
		PlotEvery:      2,
	})

	cfg := config.Default()
	cfg.Env.Width, cfg.Env.Height = 120, 120
	cfg.Train.Workers = 2
	var out bytes.Buffer
	l, err := logging.NewLogger("", "", &out, false)
	if err != nil {
		t.Fatal(err)
	}
	tr.SetEvaluator(eval.NewEvaluator(cfg), l)
	tr.SetSink(l)

	if err := tr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := bytes.Count(out.Bytes(), []byte("[Benchmark]")); n != 2 {
		t.Fatalf("%d benchmark lines, want 2:\n%s", n, out.String())
	}
	if n := bytes.Count(out.Bytes(), []byte("Game ")); n < 4 {
		t.Fatalf("missing episode lines:\n%s", out.String())
	}
	if _, err := os.Stat(plotPath); err != nil {
		t.Fatalf("plot not written: %v", err)
	}
}
