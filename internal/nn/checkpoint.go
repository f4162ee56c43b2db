package nn

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// checkpoint is the gob layout of a saved network
type checkpoint struct {
	InputSize  int
	HiddenSize int
	OutputSize int
	W1, B1     []float64
	W2, B2     []float64

	// Absent in older checkpoints, which decode as a fresh run
	Progress Progress
}

// Progress is the training bookkeeping stored alongside the weights so a
// resumed run keeps its record and exploration schedule.
type Progress struct {
	Games      int
	Record     int
	TotalScore int
}

// SetProgress sets what the next save stores with the weights
func (q *QNet) SetProgress(p Progress) {
	q.progress = p
}

// Progress returns the bookkeeping of the last Load or SetProgress
func (q *QNet) Progress() Progress {
	return q.progress
}

// SaveCheckpoint writes the weights to the configured checkpoint path
func (q *QNet) SaveCheckpoint() error {
	if q.cfg.CheckpointPath == "" {
		return ErrNoCheckpointPath
	}
	return q.Save(q.cfg.CheckpointPath)
}

// Save writes the weights to path. The file is written next to its
// destination and renamed into place, so an interrupted save leaves the
// previous checkpoint untouched.
func (q *QNet) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after a successful rename

	cp := checkpoint{
		InputSize:  q.cfg.InputSize,
		HiddenSize: q.cfg.HiddenSize,
		OutputSize: q.cfg.OutputSize,
		W1:         denseData(q.w1),
		B1:         denseData(q.b1),
		W2:         denseData(q.w2),
		B2:         denseData(q.b2),
		Progress:   q.progress,
	}
	if err := gob.NewEncoder(f).Encode(cp); err != nil {
		f.Close()
		return fmt.Errorf("save checkpoint: encode: %w", err)
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return syncDir(dir)
}

// syncDir flushes the rename to disk
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("save checkpoint: sync %s: %w", dir, err)
	}
	return nil
}

// Load replaces the weights with those saved at path. The saved network
// must have the same layer sizes.
func (q *QNet) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	defer f.Close()

	var cp checkpoint
	if err := gob.NewDecoder(f).Decode(&cp); err != nil {
		return fmt.Errorf("load checkpoint: decode: %w", err)
	}
	if cp.InputSize != q.cfg.InputSize || cp.HiddenSize != q.cfg.HiddenSize || cp.OutputSize != q.cfg.OutputSize {
		return fmt.Errorf("load checkpoint: shape %dx%dx%d does not match network %dx%dx%d",
			cp.InputSize, cp.HiddenSize, cp.OutputSize,
			q.cfg.InputSize, q.cfg.HiddenSize, q.cfg.OutputSize)
	}
	if len(cp.W1) != cp.InputSize*cp.HiddenSize || len(cp.B1) != cp.HiddenSize ||
		len(cp.W2) != cp.HiddenSize*cp.OutputSize || len(cp.B2) != cp.OutputSize {
		return fmt.Errorf("load checkpoint: %s is truncated", path)
	}

	q.w1 = mat.NewDense(cp.InputSize, cp.HiddenSize, cp.W1)
	q.b1 = mat.NewDense(1, cp.HiddenSize, cp.B1)
	q.w2 = mat.NewDense(cp.HiddenSize, cp.OutputSize, cp.W2)
	q.b2 = mat.NewDense(1, cp.OutputSize, cp.B2)
	q.opt = newAdam(q.cfg.LearningRate, q.params())
	q.progress = cp.Progress
	return nil
}
