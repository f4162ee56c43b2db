package env

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrDiverged is returned when replaying a trace does not reproduce the
// recorded outcome, e.g. after a change to the game rules.
var ErrDiverged = errors.New("env: replay diverged")

// Replay is the action trace of one episode. Together with the board
// geometry and the food seed it reproduces the episode exactly.
type Replay struct {
	Seed       uint64       `json:"seed"`
	Actions    []Action     `json:"actions"`
	FinalStats EpisodeStats `json:"final_stats"`
	Config     ReplayConfig `json:"config"`
}

// ReplayConfig is the board geometry a replay was recorded on
type ReplayConfig struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	BlockSize   int `json:"block_size"`
	StallFactor int `json:"stall_factor"`
}

// NewReplay starts recording g, which must be freshly created from seed
func NewReplay(g *Game, seed uint64) *Replay {
	return &Replay{
		Seed:    seed,
		Actions: make([]Action, 0, 256),
		Config: ReplayConfig{
			Width:       g.Width,
			Height:      g.Height,
			BlockSize:   g.BlockSize,
			StallFactor: g.StallFactor,
		},
	}
}

func (r *Replay) Record(action Action) {
	r.Actions = append(r.Actions, action)
}

// Finish stores the outcome of g as the expected end of the trace
func (r *Replay) Finish(g *Game) EpisodeStats {
	r.FinalStats = g.Stats(r.Seed)
	return r.FinalStats
}

// Save writes the trace as indented JSON, creating parent directories
func (r *Replay) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("save replay: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save replay: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		f.Close()
		return fmt.Errorf("save replay %s: %w", path, err)
	}
	return f.Close()
}

// LoadReplay reads a trace written by Save and checks that it can be played
func LoadReplay(path string) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load replay: %w", err)
	}
	var r Replay
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("load replay %s: %w", path, err)
	}
	c := r.Config
	if c.BlockSize <= 0 || c.Width < c.BlockSize || c.Height < c.BlockSize {
		return nil, fmt.Errorf("load replay %s: bad board %dx%d block %d", path, c.Width, c.Height, c.BlockSize)
	}
	for i, a := range r.Actions {
		if a < ActionStraight || a > ActionLeft {
			return nil, fmt.Errorf("load replay %s: action %d at step %d", path, a, i)
		}
	}
	return &r, nil
}

// Playback returns the game the trace starts from
func (r *Replay) Playback() *Game {
	c := r.Config
	return NewGame(c.Width, c.Height, c.BlockSize, c.StallFactor, r.Seed)
}

// Advance plays actions [from, to) of the trace on g and returns the index
// of the next unplayed action. It stops early when g dies.
func (r *Replay) Advance(g *Game, from, to int) int {
	if to > len(r.Actions) {
		to = len(r.Actions)
	}
	i := from
	for ; i < to && g.Alive; i++ {
		g.Step(r.Actions[i])
	}
	return i
}

// Check compares the outcome of g, after playing the whole trace, with the
// recorded one.
func (r *Replay) Check(g *Game) error {
	if got := g.Stats(r.Seed); got != r.FinalStats {
		return fmt.Errorf("%w: got %+v, recorded %+v", ErrDiverged, got, r.FinalStats)
	}
	return nil
}

// Verify plays the whole trace without rendering and checks its outcome
func (r *Replay) Verify() error {
	g := r.Playback()
	if n := r.Advance(g, 0, len(r.Actions)); n != len(r.Actions) {
		return fmt.Errorf("%w: game over after %d of %d actions", ErrDiverged, n, len(r.Actions))
	}
	return r.Check(g)
}
