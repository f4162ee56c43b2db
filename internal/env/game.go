package env

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"
)

// Reward values returned by Step
const (
	RewardFood  = 10
	RewardDeath = -10
)

// ErrInvalidAction is returned when an action vector is not one of the three
// one-hot forms.
var ErrInvalidAction = errors.New("env: action must be one of [1 0 0], [0 1 0], [0 0 1]")

// Direction represents the snake's absolute heading
type Direction int

const (
	DirRight Direction = iota
	DirLeft
	DirUp
	DirDown
)

// clockwise is the fixed turning cycle. Right turns advance one index,
// left turns go back one.
var clockwise = [4]Direction{DirRight, DirDown, DirLeft, DirUp}

func (d Direction) index() int {
	for i, c := range clockwise {
		if c == d {
			return i
		}
	}
	return 0
}

func (d Direction) String() string {
	switch d {
	case DirRight:
		return "right"
	case DirLeft:
		return "left"
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	default:
		return "unknown"
	}
}

// MarshalText lets directions appear by name in JSON frames
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Direction) UnmarshalText(text []byte) error {
	for _, c := range clockwise {
		if c.String() == string(text) {
			*d = c
			return nil
		}
	}
	return fmt.Errorf("unknown direction %q", text)
}

// Action represents a move relative to the current heading
type Action int

const (
	ActionStraight Action = iota
	ActionRight
	ActionLeft
)

// NumActions is the size of the action space
const NumActions = 3

func (a Action) String() string {
	switch a {
	case ActionStraight:
		return "straight"
	case ActionRight:
		return "right"
	case ActionLeft:
		return "left"
	default:
		return "unknown"
	}
}

// OneHot returns the action as a [straight, right, left] one-hot vector
func (a Action) OneHot() []int {
	v := make([]int, NumActions)
	v[a] = 1
	return v
}

// Vector returns the one-hot encoding as float64, the form stored in
// transitions.
func (a Action) Vector() []float64 {
	v := make([]float64, NumActions)
	v[a] = 1
	return v
}

// ActionFromOneHot decodes a one-hot action vector
func ActionFromOneHot(move []int) (Action, error) {
	if len(move) != NumActions {
		return 0, ErrInvalidAction
	}
	hot := -1
	for i, v := range move {
		switch v {
		case 0:
		case 1:
			if hot >= 0 {
				return 0, ErrInvalidAction
			}
			hot = i
		default:
			return 0, ErrInvalidAction
		}
	}
	if hot < 0 {
		return 0, ErrInvalidAction
	}
	return Action(hot), nil
}

// Turn returns the heading after applying a relative action
func Turn(d Direction, a Action) Direction {
	i := d.index()
	switch a {
	case ActionRight:
		return clockwise[(i+1)%4]
	case ActionLeft:
		return clockwise[(i+3)%4]
	default:
		return d
	}
}

// Point represents a pixel coordinate on the grid. Valid cells are multiples
// of the block size.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Move returns the point one block away in direction d
func (p Point) Move(d Direction, block int) Point {
	switch d {
	case DirRight:
		return Point{X: p.X + block, Y: p.Y}
	case DirLeft:
		return Point{X: p.X - block, Y: p.Y}
	case DirUp:
		return Point{X: p.X, Y: p.Y - block}
	case DirDown:
		return Point{X: p.X, Y: p.Y + block}
	}
	return p
}

// Game represents the snake game environment
type Game struct {
	Width       int
	Height      int
	BlockSize   int
	StallFactor int

	// State
	Snake          []Point // head is at index 0
	Dir            Direction
	Food           Point
	Score          int
	FrameIteration int
	Alive          bool
	DeathReason    DeathReason

	rng *rand.Rand
}

// NewGame creates a new game instance. Food placement is the only random
// element and is driven by seed.
func NewGame(width, height, blockSize, stallFactor int, seed uint64) *Game {
	g := &Game{
		Width:       width,
		Height:      height,
		BlockSize:   blockSize,
		StallFactor: stallFactor,
		rng:         rand.New(rand.NewSource(seed)),
	}
	g.Reset()
	return g
}

// Reset initializes the game to starting state
func (g *Game) Reset() {
	g.Dir = DirRight
	g.Score = 0
	g.FrameIteration = 0
	g.Alive = true
	g.DeathReason = DeathNone

	// Head on the block-aligned centre, body trailing to the left
	cx := (g.Width / 2 / g.BlockSize) * g.BlockSize
	cy := (g.Height / 2 / g.BlockSize) * g.BlockSize
	g.Snake = []Point{
		{X: cx, Y: cy},
		{X: cx - g.BlockSize, Y: cy},
		{X: cx - 2*g.BlockSize, Y: cy},
	}

	g.placeFood()
}

// Step advances the game by one frame with the given action. The body is
// left over-extended on a terminal step; callers must Reset.
func (g *Game) Step(action Action) (reward int, done bool, score int) {
	if !g.Alive {
		return 0, true, g.Score
	}

	g.FrameIteration++
	bodyLen := len(g.Snake)

	g.Dir = Turn(g.Dir, action)
	head := g.Snake[0].Move(g.Dir, g.BlockSize)
	g.Snake = append([]Point{head}, g.Snake...)

	if g.IsCollision(head) {
		if g.outOfBounds(head) {
			g.die(DeathWall)
		} else {
			g.die(DeathSelf)
		}
		return RewardDeath, true, g.Score
	}

	if g.StallFactor > 0 && g.FrameIteration > g.StallFactor*bodyLen {
		g.die(DeathStall)
		return RewardDeath, true, g.Score
	}

	if head == g.Food {
		// Grow: tail stays
		g.Score++
		if !g.placeFood() {
			g.die(DeathBoardFull)
			return RewardFood, true, g.Score
		}
		return RewardFood, false, g.Score
	}

	g.Snake = g.Snake[:len(g.Snake)-1]
	return 0, false, g.Score
}

// PlayStep is Step with a one-hot action vector
func (g *Game) PlayStep(move []int) (reward int, done bool, score int, err error) {
	action, err := ActionFromOneHot(move)
	if err != nil {
		return 0, false, g.Score, err
	}
	reward, done, score = g.Step(action)
	return reward, done, score, nil
}

func (g *Game) die(reason DeathReason) {
	g.Alive = false
	g.DeathReason = reason
}

// IsCollision reports whether p is outside the grid or on a body segment
// other than the head.
func (g *Game) IsCollision(p Point) bool {
	if g.outOfBounds(p) {
		return true
	}
	for _, s := range g.Snake[1:] {
		if s == p {
			return true
		}
	}
	return false
}

func (g *Game) outOfBounds(p Point) bool {
	return p.X < 0 || p.X > g.Width-g.BlockSize || p.Y < 0 || p.Y > g.Height-g.BlockSize
}

// placeFood puts food on a uniformly random empty cell. It returns false
// when the body covers the whole grid.
func (g *Game) placeFood() bool {
	cols := g.Width / g.BlockSize
	rows := g.Height / g.BlockSize

	occupied := make(map[Point]struct{}, len(g.Snake))
	for _, p := range g.Snake {
		occupied[p] = struct{}{}
	}
	if len(occupied) >= cols*rows {
		return false
	}

	maxAttempts := 4 * cols * rows
	for attempt := 0; attempt < maxAttempts; attempt++ {
		p := Point{
			X: g.rng.Intn(cols) * g.BlockSize,
			Y: g.rng.Intn(rows) * g.BlockSize,
		}
		if _, ok := occupied[p]; !ok {
			g.Food = p
			return true
		}
	}

	// Nearly full board: pick among the empty cells directly
	var empty []Point
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			p := Point{X: x * g.BlockSize, Y: y * g.BlockSize}
			if _, ok := occupied[p]; !ok {
				empty = append(empty, p)
			}
		}
	}
	if len(empty) == 0 {
		return false
	}
	g.Food = empty[g.rng.Intn(len(empty))]
	return true
}

// Head returns the snake's head position
func (g *Game) Head() Point {
	return g.Snake[0]
}

// Frame is a copy of everything a renderer needs to draw one step
type Frame struct {
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	BlockSize int         `json:"block_size"`
	Snake     []Point     `json:"snake"`
	Food      Point       `json:"food"`
	Dir       Direction   `json:"direction"`
	Score     int         `json:"score"`
	Frame     int         `json:"frame"`
	Alive     bool        `json:"alive"`
	Death     DeathReason `json:"death"`
}

// Frame returns a snapshot of the current board
func (g *Game) Frame() Frame {
	snake := make([]Point, len(g.Snake))
	copy(snake, g.Snake)
	return Frame{
		Width:     g.Width,
		Height:    g.Height,
		BlockSize: g.BlockSize,
		Snake:     snake,
		Food:      g.Food,
		Dir:       g.Dir,
		Score:     g.Score,
		Frame:     g.FrameIteration,
		Alive:     g.Alive,
		Death:     g.DeathReason,
	}
}

// Stats returns the episode statistics
func (g *Game) Stats(seed uint64) EpisodeStats {
	return EpisodeStats{
		Score:  g.Score,
		Steps:  g.FrameIteration,
		Length: len(g.Snake),
		Death:  g.DeathReason,
		Seed:   seed,
	}
}
