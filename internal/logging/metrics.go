package logging

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"snakeql/internal/env"
)

// EpisodeRecord is one finished training game
type EpisodeRecord struct {
	Game      int             `json:"game"`
	Score     int             `json:"score"`
	Record    int             `json:"record"`
	MeanScore float64         `json:"mean_score"`
	Steps     int             `json:"steps"`
	Length    int             `json:"length"`
	Death     env.DeathReason `json:"death"`
	Epsilon   int             `json:"epsilon"`
	Memory    int             `json:"memory"`
}

// Sink receives every finished episode
type Sink interface {
	WriteEpisode(ctx context.Context, rec EpisodeRecord) error
	Close() error
}

var csvHeader = []string{
	"game", "score", "record", "mean_score", "steps", "length", "death", "epsilon", "memory",
}

// Logger handles the console line and the CSV and JSONL run files
type Logger struct {
	csvPath  string
	jsonPath string
	out      io.Writer
	quiet    bool

	csvFile   *os.File
	csvWriter *csv.Writer
	jsonFile  *os.File
}

// NewLogger creates the log files, truncating earlier runs. An empty path
// disables that file. Console lines go to out unless quiet is set.
func NewLogger(csvPath, jsonPath string, out io.Writer, quiet bool) (*Logger, error) {
	l := &Logger{
		csvPath:  csvPath,
		jsonPath: jsonPath,
		out:      out,
		quiet:    quiet,
	}
	if l.out == nil {
		l.out = os.Stdout
	}

	if csvPath != "" {
		if err := os.MkdirAll(filepath.Dir(csvPath), 0755); err != nil {
			return nil, err
		}
		f, err := os.Create(csvPath)
		if err != nil {
			return nil, err
		}
		l.csvFile = f
		l.csvWriter = csv.NewWriter(f)
		if err := l.csvWriter.Write(csvHeader); err != nil {
			l.Close()
			return nil, err
		}
		l.csvWriter.Flush()
	}

	if jsonPath != "" {
		if err := os.MkdirAll(filepath.Dir(jsonPath), 0755); err != nil {
			l.Close()
			return nil, err
		}
		f, err := os.OpenFile(jsonPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			l.Close()
			return nil, err
		}
		l.jsonFile = f
	}

	return l, nil
}

// WriteEpisode prints the episode line and appends it to the run files
func (l *Logger) WriteEpisode(_ context.Context, rec EpisodeRecord) error {
	if !l.quiet {
		fmt.Fprintln(l.out, EpisodeLine(rec))
	}

	if l.csvWriter != nil {
		row := []string{
			strconv.Itoa(rec.Game),
			strconv.Itoa(rec.Score),
			strconv.Itoa(rec.Record),
			strconv.FormatFloat(rec.MeanScore, 'f', 4, 64),
			strconv.Itoa(rec.Steps),
			strconv.Itoa(rec.Length),
			rec.Death.String(),
			strconv.Itoa(rec.Epsilon),
			strconv.Itoa(rec.Memory),
		}
		if err := l.csvWriter.Write(row); err != nil {
			return fmt.Errorf("csv log: %w", err)
		}
		l.csvWriter.Flush()
		if err := l.csvWriter.Error(); err != nil {
			return fmt.Errorf("csv log: %w", err)
		}
	}

	if l.jsonFile != nil {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("json log: %w", err)
		}
		if _, err := l.jsonFile.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("json log: %w", err)
		}
	}
	return nil
}

// EpisodeLine formats the per-game progress line
func EpisodeLine(rec EpisodeRecord) string {
	return fmt.Sprintf("Game %d Score %d Record %d", rec.Game, rec.Score, rec.Record)
}

// LogBenchmark prints greedy evaluation results
func (l *Logger) LogBenchmark(game int, agg env.AggregatedStats) {
	if agg.NumEpisodes == 0 || l.quiet {
		return
	}
	fmt.Fprintf(l.out, "  [Benchmark] Game %d: Score mean=%.2f std=%.2f max=%d, Steps mean=%.1f, Deaths: W=%d S=%d St=%d\n",
		game, agg.ScoreMean, agg.ScoreStd, agg.ScoreMax, agg.StepsMean,
		agg.DeathCounts[env.DeathWall], agg.DeathCounts[env.DeathSelf], agg.DeathCounts[env.DeathStall])
}

// Close flushes and closes all log files
func (l *Logger) Close() error {
	var errs []error
	if l.csvWriter != nil {
		l.csvWriter.Flush()
		errs = append(errs, l.csvWriter.Error())
	}
	if l.csvFile != nil {
		errs = append(errs, l.csvFile.Close())
		l.csvFile = nil
	}
	if l.jsonFile != nil {
		errs = append(errs, l.jsonFile.Close())
		l.jsonFile = nil
	}
	return errors.Join(errs...)
}

// ReadScores loads the score column of a CSV run log, in game order
func ReadScores(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := -1
	for i, name := range rows[0] {
		if name == "score" {
			col = i
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("read %s: no score column", path)
	}

	scores := make([]int, 0, len(rows)-1)
	for i, row := range rows[1:] {
		s, err := strconv.Atoi(row[col])
		if err != nil {
			return nil, fmt.Errorf("read %s: row %d: %w", path, i+2, err)
		}
		scores = append(scores, s)
	}
	return scores, nil
}

// MultiSink fans episodes out to several sinks
type MultiSink []Sink

// WriteEpisode writes to every sink and joins their errors
func (m MultiSink) WriteEpisode(ctx context.Context, rec EpisodeRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteEpisode(ctx, rec))
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
