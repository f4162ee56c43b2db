// Package agent ties the replay memory, the exploration policy and a value
// estimator together into the learner the trainer drives.
package agent

import "snakeql/internal/memory"

// Estimator maps an encoded state to one value per action and learns from
// transitions. *nn.QNet satisfies it.
type Estimator interface {
	Predict(state []float64) []float64
	UpdateSingle(t memory.Transition) error
	UpdateBatch(b memory.Batch) error
	SaveCheckpoint() error
}
