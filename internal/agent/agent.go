package agent

import (
	"fmt"

	"snakeql/internal/env"
	"snakeql/internal/memory"
)

// DefaultBatchSize is the long-memory mini-batch size
const DefaultBatchSize = 1000

// Agent learns online from every step and replays a sample of its memory
// at the end of each game.
type Agent struct {
	NumGames  int
	BatchSize int

	Memory    *memory.Memory
	Policy    *EpsilonGreedy
	Estimator Estimator
}

// New creates an agent. batchSize <= 0 means DefaultBatchSize.
func New(est Estimator, mem *memory.Memory, policy *EpsilonGreedy, batchSize int) *Agent {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Agent{
		BatchSize: batchSize,
		Memory:    mem,
		Policy:    policy,
		Estimator: est,
	}
}

// GetAction chooses the next move for state
func (a *Agent) GetAction(state []float64) env.Action {
	return a.Policy.SelectAction(state, a.NumGames, a.Estimator)
}

// Remember stores the transition in the replay memory
func (a *Agent) Remember(t memory.Transition) {
	a.Memory.Push(t)
}

// TrainShortMemory updates the estimator on the latest transition
func (a *Agent) TrainShortMemory(t memory.Transition) error {
	if err := a.Estimator.UpdateSingle(t); err != nil {
		return fmt.Errorf("short memory update: %w", err)
	}
	return nil
}

// TrainLongMemory updates the estimator on a batch sampled from memory
func (a *Agent) TrainLongMemory() error {
	sample := a.Memory.Sample(a.BatchSize)
	if len(sample) == 0 {
		return nil
	}
	if err := a.Estimator.UpdateBatch(memory.Unzip(sample)); err != nil {
		return fmt.Errorf("long memory update: %w", err)
	}
	return nil
}
