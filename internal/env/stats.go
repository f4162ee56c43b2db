package env

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// DeathReason indicates how an episode ended
type DeathReason int

const (
	DeathNone      DeathReason = iota
	DeathWall                  // hit a wall
	DeathSelf                  // hit own body
	DeathStall                 // no progress for too long
	DeathBoardFull             // no empty cell left for food
)

func (d DeathReason) String() string {
	switch d {
	case DeathNone:
		return "none"
	case DeathWall:
		return "wall"
	case DeathSelf:
		return "self"
	case DeathStall:
		return "stall"
	case DeathBoardFull:
		return "board_full"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (d DeathReason) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *DeathReason) UnmarshalText(text []byte) error {
	for r := DeathNone; r <= DeathBoardFull; r++ {
		if r.String() == string(text) {
			*d = r
			return nil
		}
	}
	return fmt.Errorf("unknown death reason %q", text)
}

// EpisodeStats captures all metrics from a single episode
type EpisodeStats struct {
	Score  int         `json:"score"`  // food eaten
	Steps  int         `json:"steps"`  // frames survived
	Length int         `json:"length"` // body length at the end
	Death  DeathReason `json:"death"`
	Seed   uint64      `json:"seed"`
}

// AggregatedStats holds statistics across multiple episodes
type AggregatedStats struct {
	ScoreMean   float64             `json:"score_mean"`
	ScoreStd    float64             `json:"score_std"`
	ScoreMax    int                 `json:"score_max"`
	StepsMean   float64             `json:"steps_mean"`
	DeathCounts map[DeathReason]int `json:"death_counts"`
	NumEpisodes int                 `json:"num_episodes"`
}

// Aggregate computes statistics from multiple episode stats
func Aggregate(episodes []EpisodeStats) AggregatedStats {
	agg := AggregatedStats{DeathCounts: make(map[DeathReason]int)}
	n := len(episodes)
	if n == 0 {
		return agg
	}
	agg.NumEpisodes = n

	scores := make([]float64, n)
	steps := make([]float64, n)
	for i, ep := range episodes {
		scores[i] = float64(ep.Score)
		steps[i] = float64(ep.Steps)
		if ep.Score > agg.ScoreMax {
			agg.ScoreMax = ep.Score
		}
		agg.DeathCounts[ep.Death]++
	}

	agg.ScoreMean, agg.ScoreStd = stat.PopMeanStdDev(scores, nil)
	agg.StepsMean = stat.Mean(steps, nil)
	return agg
}
