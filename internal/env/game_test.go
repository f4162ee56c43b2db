package env

import (
	"errors"
	"testing"
)

func newTestGame() *Game {
	g := NewGame(640, 480, 20, 100, 7)
	g.Snake = []Point{{320, 240}, {300, 240}, {280, 240}}
	g.Dir = DirRight
	g.Food = Point{340, 240}
	return g
}

func TestTurnCycle(t *testing.T) {
	tests := []struct {
		dir    Direction
		action Action
		want   Direction
	}{
		{DirRight, ActionStraight, DirRight},
		{DirRight, ActionRight, DirDown},
		{DirRight, ActionLeft, DirUp},
		{DirDown, ActionRight, DirLeft},
		{DirDown, ActionLeft, DirRight},
		{DirLeft, ActionRight, DirUp},
		{DirLeft, ActionLeft, DirDown},
		{DirUp, ActionRight, DirRight},
		{DirUp, ActionLeft, DirLeft},
		{DirUp, ActionStraight, DirUp},
	}
	for _, tt := range tests {
		if got := Turn(tt.dir, tt.action); got != tt.want {
			t.Errorf("Turn(%s, %s) = %s, want %s", tt.dir, tt.action, got, tt.want)
		}
	}

	// Four turns in the same direction come back to the start
	for _, d := range clockwise {
		for _, a := range []Action{ActionRight, ActionLeft} {
			cur := d
			for i := 0; i < 4; i++ {
				cur = Turn(cur, a)
				if i < 3 && cur == d {
					t.Errorf("Turn(%s, %s) returned to start after %d turns", d, a, i+1)
				}
			}
			if cur != d {
				t.Errorf("four %s turns from %s ended at %s", a, d, cur)
			}
		}
	}
}

func TestActionFromOneHot(t *testing.T) {
	valid := map[Action][]int{
		ActionStraight: {1, 0, 0},
		ActionRight:    {0, 1, 0},
		ActionLeft:     {0, 0, 1},
	}
	for want, move := range valid {
		got, err := ActionFromOneHot(move)
		if err != nil || got != want {
			t.Errorf("ActionFromOneHot(%v) = %v, %v; want %v", move, got, err, want)
		}
		if back := want.OneHot(); !equalInts(back, move) {
			t.Errorf("%s.OneHot() = %v, want %v", want, back, move)
		}
	}

	invalid := [][]int{nil, {0, 0, 0}, {1, 1, 0}, {1, 0}, {0, 2, 0}, {1, 0, 0, 0}, {-1, 0, 1}}
	for _, move := range invalid {
		if _, err := ActionFromOneHot(move); !errors.Is(err, ErrInvalidAction) {
			t.Errorf("ActionFromOneHot(%v) error = %v, want ErrInvalidAction", move, err)
		}
	}
}

func TestResetState(t *testing.T) {
	g := NewGame(640, 480, 20, 100, 1)
	want := []Point{{320, 240}, {300, 240}, {280, 240}}
	if !equalPoints(g.Snake, want) {
		t.Fatalf("snake = %v, want %v", g.Snake, want)
	}
	if g.Dir != DirRight || g.Score != 0 || g.FrameIteration != 0 || !g.Alive {
		t.Fatalf("unexpected reset state: dir=%s score=%d frame=%d alive=%v",
			g.Dir, g.Score, g.FrameIteration, g.Alive)
	}
	for _, p := range g.Snake {
		if p == g.Food {
			t.Fatalf("food %v placed on body", g.Food)
		}
	}
	if g.Food.X%20 != 0 || g.Food.Y%20 != 0 || g.outOfBounds(g.Food) {
		t.Fatalf("food %v not on a grid cell", g.Food)
	}
}

func TestIsCollision(t *testing.T) {
	sizes := []struct{ w, h, block int }{{640, 480, 20}, {200, 100, 10}, {100, 100, 20}}
	for _, s := range sizes {
		g := NewGame(s.w, s.h, s.block, 100, 3)
		head := g.Head()
		cases := []struct {
			p    Point
			want bool
		}{
			{Point{-s.block, 0}, true},
			{Point{0, -s.block}, true},
			{Point{s.w, 0}, true},
			{Point{0, s.h}, true},
			{Point{s.w - s.block, s.h - s.block}, false},
			{Point{0, 0}, false},
			{head, false},
			{g.Snake[1], true},
			{g.Snake[2], true},
		}
		for _, c := range cases {
			if got := g.IsCollision(c.p); got != c.want {
				t.Errorf("%dx%d: IsCollision(%v) = %v, want %v", s.w, s.h, c.p, got, c.want)
			}
		}
	}
}

func TestStepEatsFood(t *testing.T) {
	g := newTestGame()

	reward, done, score := g.Step(ActionStraight)
	if reward != RewardFood || done || score != 1 {
		t.Fatalf("Step = (%d, %v, %d), want (10, false, 1)", reward, done, score)
	}
	if g.Head() != (Point{340, 240}) {
		t.Fatalf("head = %v, want (340,240)", g.Head())
	}
	if len(g.Snake) != 4 {
		t.Fatalf("length = %d, want 4", len(g.Snake))
	}
	for _, p := range g.Snake {
		if p == g.Food {
			t.Fatalf("new food %v spawned on body %v", g.Food, g.Snake)
		}
	}
}

func TestStepWallCollision(t *testing.T) {
	g := newTestGame()
	g.Snake = []Point{{620, 240}, {600, 240}, {580, 240}}
	g.Food = Point{0, 0}

	reward, done, score := g.Step(ActionStraight)
	if reward != RewardDeath || !done || score != 0 {
		t.Fatalf("Step = (%d, %v, %d), want (-10, true, 0)", reward, done, score)
	}
	if g.Head() != (Point{640, 240}) {
		t.Fatalf("head = %v, want (640,240)", g.Head())
	}
	if g.DeathReason != DeathWall {
		t.Fatalf("death = %s, want wall", g.DeathReason)
	}

	// Terminal games stay terminal until reset
	if _, done, _ := g.Step(ActionStraight); !done {
		t.Fatal("step after death should report done")
	}
}

func TestStepSelfCollision(t *testing.T) {
	g := newTestGame()
	// Head at (320,240) heading up with the body curling round to the right
	g.Snake = []Point{{320, 240}, {320, 260}, {340, 260}, {340, 240}, {340, 220}}
	g.Dir = DirUp
	g.Food = Point{0, 0}

	reward, done, _ := g.Step(ActionRight)
	if reward != RewardDeath || !done || g.DeathReason != DeathSelf {
		t.Fatalf("Step = (%d, %v) death=%s, want self collision", reward, done, g.DeathReason)
	}
}

func TestStepPlainMove(t *testing.T) {
	g := newTestGame()
	g.Food = Point{0, 0}

	reward, done, score := g.Step(ActionRight)
	if reward != 0 || done || score != 0 {
		t.Fatalf("Step = (%d, %v, %d), want (0, false, 0)", reward, done, score)
	}
	want := []Point{{320, 260}, {320, 240}, {300, 240}}
	if !equalPoints(g.Snake, want) {
		t.Fatalf("snake = %v, want %v", g.Snake, want)
	}
	if g.Dir != DirDown {
		t.Fatalf("dir = %s, want down", g.Dir)
	}
}

func TestStagnationTimeout(t *testing.T) {
	g := newTestGame()
	g.Food = Point{0, 0}

	// Turning right every frame loops the body around a 2x2 square forever
	for i := 1; i <= 300; i++ {
		reward, done, _ := g.Step(ActionRight)
		if done {
			t.Fatalf("episode ended at frame %d (reason %s), want no timeout before 301", i, g.DeathReason)
		}
		if reward != 0 {
			t.Fatalf("frame %d reward = %d, want 0", i, reward)
		}
		if i == 150 && g.FrameIteration != 150 {
			t.Fatalf("frame iteration = %d, want 150", g.FrameIteration)
		}
	}

	reward, done, _ := g.Step(ActionRight)
	if !done || reward != RewardDeath || g.DeathReason != DeathStall {
		t.Fatalf("frame 301: (%d, %v, %s), want stall timeout", reward, done, g.DeathReason)
	}
}

func TestZeroStallFactorDisablesTimeout(t *testing.T) {
	g := newTestGame()
	g.StallFactor = 0
	g.Food = Point{0, 0}

	for i := 1; i <= 1000; i++ {
		if _, done, _ := g.Step(ActionRight); done {
			t.Fatalf("episode ended at frame %d (reason %s) with the guard off", i, g.DeathReason)
		}
	}
}

func TestBoardFull(t *testing.T) {
	// 4x1 grid: the three starting segments leave exactly one empty cell
	g := NewGame(80, 20, 20, 100, 5)
	if g.Food != (Point{60, 0}) {
		t.Fatalf("food = %v, want the only empty cell (60,0)", g.Food)
	}

	reward, done, score := g.Step(ActionStraight)
	if reward != RewardFood || !done || score != 1 || g.DeathReason != DeathBoardFull {
		t.Fatalf("Step = (%d, %v, %d) death=%s, want board full", reward, done, score, g.DeathReason)
	}
}

func TestPlayStep(t *testing.T) {
	g := newTestGame()
	if _, _, _, err := g.PlayStep([]int{1, 1, 0}); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("PlayStep invalid error = %v", err)
	}
	if g.FrameIteration != 0 {
		t.Fatal("invalid action must not advance the game")
	}
	reward, done, score, err := g.PlayStep([]int{1, 0, 0})
	if err != nil || reward != RewardFood || done || score != 1 {
		t.Fatalf("PlayStep = (%d, %v, %d, %v)", reward, done, score, err)
	}
}

func TestFrameIsCopy(t *testing.T) {
	g := newTestGame()
	f := g.Frame()
	f.Snake[0] = Point{0, 0}
	if g.Head() != (Point{320, 240}) {
		t.Fatal("mutating a frame changed the game")
	}
}

func TestFoodPlacementDeterministic(t *testing.T) {
	a := NewGame(640, 480, 20, 100, 42)
	b := NewGame(640, 480, 20, 100, 42)
	for i := 0; i < 5; i++ {
		if a.Food != b.Food {
			t.Fatalf("reset %d: food %v != %v for the same seed", i, a.Food, b.Food)
		}
		a.Reset()
		b.Reset()
	}
}

func equalPoints(a, b []Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
