package agent

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"snakeql/internal/env"
)

const (
	DefaultEpsilonStart = 80
	DefaultExploreRange = 200
)

// EpsilonGreedy explores with a probability that decays linearly with the
// number of finished games. With the defaults the agent picks a random move
// with probability (80-n)/200 and is purely greedy from game 80 on.
type EpsilonGreedy struct {
	Start int // epsilon at game 0
	Range int // exploration draw is uniform in [0, Range)

	rng *rand.Rand
}

// NewEpsilonGreedy returns a policy seeded with seed. A start of 0 never
// explores; negative values and a non-positive range fall back to the
// defaults.
func NewEpsilonGreedy(start, explore int, seed uint64) *EpsilonGreedy {
	if start < 0 {
		start = DefaultEpsilonStart
	}
	if explore <= 0 {
		explore = DefaultExploreRange
	}
	return &EpsilonGreedy{
		Start: start,
		Range: explore,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Epsilon returns max(0, Start-numGames)
func (p *EpsilonGreedy) Epsilon(numGames int) int {
	if e := p.Start - numGames; e > 0 {
		return e
	}
	return 0
}

// SelectAction returns a random action while exploring and the estimator's
// best action otherwise.
func (p *EpsilonGreedy) SelectAction(state []float64, numGames int, est Estimator) env.Action {
	if p.rng.Intn(p.Range) < p.Epsilon(numGames) {
		return env.Action(p.rng.Intn(env.NumActions))
	}
	return Greedy(state, est)
}

// Greedy returns the action with the highest predicted value, the first one
// on ties. A prediction of the wrong size yields ActionStraight.
func Greedy(state []float64, est Estimator) env.Action {
	q := est.Predict(state)
	if len(q) != env.NumActions {
		return env.ActionStraight
	}
	return env.Action(floats.MaxIdx(q))
}
