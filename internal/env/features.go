package env

import "fmt"

// StateSize is the length of the encoded state vector. The field order is
// fixed; saved estimator weights depend on it.
const StateSize = 11

// DangerMode selects how the three danger flags are computed
type DangerMode string

const (
	// DangerLookahead checks the cell reached by each relative move
	DangerLookahead DangerMode = "lookahead"
	// DangerLegacy fills all three slots with the straight-ahead check,
	// matching checkpoints trained with the older encoder.
	DangerLegacy DangerMode = "legacy"
)

// ParseDangerMode validates a danger mode name
func ParseDangerMode(s string) (DangerMode, error) {
	switch DangerMode(s) {
	case DangerLookahead, DangerLegacy:
		return DangerMode(s), nil
	case "":
		return DangerLookahead, nil
	}
	return "", fmt.Errorf("unknown danger mode %q", s)
}

// Encoder builds observation vectors from the game state
type Encoder struct {
	mode DangerMode
}

// NewEncoder creates an encoder using the given danger mode
func NewEncoder(mode DangerMode) *Encoder {
	if mode == "" {
		mode = DangerLookahead
	}
	return &Encoder{mode: mode}
}

// Mode returns the encoder's danger mode
func (e *Encoder) Mode() DangerMode {
	return e.mode
}

// Encode returns a fresh 11-element state vector:
//
//	[0..2]  danger straight, right, left
//	[3..6]  heading left, right, up, down
//	[7..10] food left, right, up, down
func (e *Encoder) Encode(g *Game) []float64 {
	state := make([]float64, StateSize)
	head := g.Head()

	straight := g.isDanger(ActionStraight)
	if e.mode == DangerLegacy {
		state[0] = boolToFloat(straight)
		state[1] = boolToFloat(straight)
		state[2] = boolToFloat(straight)
	} else {
		state[0] = boolToFloat(straight)
		state[1] = boolToFloat(g.isDanger(ActionRight))
		state[2] = boolToFloat(g.isDanger(ActionLeft))
	}

	state[3] = boolToFloat(g.Dir == DirLeft)
	state[4] = boolToFloat(g.Dir == DirRight)
	state[5] = boolToFloat(g.Dir == DirUp)
	state[6] = boolToFloat(g.Dir == DirDown)

	state[7] = boolToFloat(g.Food.X < head.X)
	state[8] = boolToFloat(g.Food.X > head.X)
	state[9] = boolToFloat(g.Food.Y < head.Y)
	state[10] = boolToFloat(g.Food.Y > head.Y)

	return state
}

// isDanger checks the cell one block away after a relative move
func (g *Game) isDanger(a Action) bool {
	return g.IsCollision(g.Head().Move(Turn(g.Dir, a), g.BlockSize))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
