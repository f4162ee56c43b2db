// Package report plots training progress.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"snakeql/internal/logging"
)

// ErrNoScores is returned when there is nothing to plot
var ErrNoScores = errors.New("report: no scores to plot")

// RunningMean returns the mean of scores[:i+1] for every i
func RunningMean(scores []int) []float64 {
	means := make([]float64, len(scores))
	total := 0
	for i, s := range scores {
		total += s
		means[i] = float64(total) / float64(i+1)
	}
	return means
}

// PlotScores writes the per-game score and the mean score as a PNG. A nil
// means is computed with RunningMean; a resumed trainer passes its own,
// which include games from before the resume.
func PlotScores(scores []int, means []float64, path string) error {
	if len(scores) == 0 {
		return ErrNoScores
	}
	if means == nil {
		means = RunningMean(scores)
	}
	if len(means) != len(scores) {
		return fmt.Errorf("report: %d means for %d scores", len(means), len(scores))
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Training (last score %d, mean %.2f)", scores[len(scores)-1], means[len(means)-1])
	p.X.Label.Text = "Number of Games"
	p.Y.Label.Text = "Score"
	p.Y.Min = 0

	series := []struct {
		name   string
		values func(i int) float64
	}{
		{"score", func(i int) float64 { return float64(scores[i]) }},
		{"mean score", func(i int) float64 { return means[i] }},
	}
	for k, s := range series {
		points := make(plotter.XYs, len(scores))
		for i := range points {
			points[i] = plotter.XY{
				X: float64(i + 1),
				Y: s.values(i),
			}
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return fmt.Errorf("report: %s: %w", s.name, err)
		}
		line.Color = plotutil.Color(k)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// PlotCSV plots the scores recorded in a CSV run log
func PlotCSV(csvPath, out string) error {
	scores, err := logging.ReadScores(csvPath)
	if err != nil {
		return err
	}
	return PlotScores(scores, nil, out)
}
