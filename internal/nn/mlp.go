package nn

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"snakeql/internal/memory"
)

// ErrNoCheckpointPath is returned by SaveCheckpoint when no path was set
var ErrNoCheckpointPath = errors.New("nn: checkpoint path not set")

// Config describes the network and its trainer
type Config struct {
	InputSize      int
	HiddenSize     int
	OutputSize     int
	LearningRate   float64
	Gamma          float64
	CheckpointPath string
}

// QNet is a feedforward Q-value network, input -> hidden (ReLU) -> output,
// trained online with Adam on the mean squared TD error.
type QNet struct {
	cfg Config

	// Weights, stored row-major so a batch of inputs is x*w1
	w1 *mat.Dense // input x hidden
	b1 *mat.Dense // 1 x hidden
	w2 *mat.Dense // hidden x output
	b2 *mat.Dense // 1 x output

	opt      *adam
	progress Progress
}

// NewQNet creates a network with weights drawn from U(-1/sqrt(fanIn), 1/sqrt(fanIn))
func NewQNet(cfg Config, seed uint64) *QNet {
	src := rand.NewSource(seed)
	q := &QNet{
		cfg: cfg,
		w1:  uniformDense(cfg.InputSize, cfg.HiddenSize, cfg.InputSize, src),
		b1:  uniformDense(1, cfg.HiddenSize, cfg.InputSize, src),
		w2:  uniformDense(cfg.HiddenSize, cfg.OutputSize, cfg.HiddenSize, src),
		b2:  uniformDense(1, cfg.OutputSize, cfg.HiddenSize, src),
	}
	q.opt = newAdam(cfg.LearningRate, q.params())
	return q
}

func uniformDense(r, c, fanIn int, src rand.Source) *mat.Dense {
	bound := 1 / math.Sqrt(float64(fanIn))
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}
	data := make([]float64, r*c)
	for i := range data {
		data[i] = dist.Rand()
	}
	return mat.NewDense(r, c, data)
}

func (q *QNet) params() []*mat.Dense {
	return []*mat.Dense{q.w1, q.b1, q.w2, q.b2}
}

// forward runs a batch through the network and returns the hidden
// activations and the output values.
func (q *QNet) forward(x *mat.Dense) (hidden, out *mat.Dense) {
	n, _ := x.Dims()

	hidden = mat.NewDense(n, q.cfg.HiddenSize, nil)
	hidden.Mul(x, q.w1)
	hidden.Apply(func(_, j int, v float64) float64 {
		return relu(v + q.b1.At(0, j))
	}, hidden)

	out = mat.NewDense(n, q.cfg.OutputSize, nil)
	out.Mul(hidden, q.w2)
	out.Apply(func(_, j int, v float64) float64 {
		return v + q.b2.At(0, j)
	}, out)

	return hidden, out
}

// Predict returns the action values for one state. It returns nil when the
// state has the wrong length.
func (q *QNet) Predict(state []float64) []float64 {
	if len(state) != q.cfg.InputSize {
		return nil
	}
	x := mat.NewDense(1, q.cfg.InputSize, append([]float64(nil), state...))
	_, out := q.forward(x)
	return append([]float64(nil), out.RawRowView(0)...)
}

// UpdateSingle trains on one transition
func (q *QNet) UpdateSingle(t memory.Transition) error {
	_, err := q.Train(
		[][]float64{t.State},
		[][]float64{t.Action},
		[]float64{t.Reward},
		[][]float64{t.NextState},
		[]bool{t.Done},
	)
	return err
}

// UpdateBatch trains on a whole mini-batch in one gradient step
func (q *QNet) UpdateBatch(b memory.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	_, err := q.Train(b.States, b.Actions, b.Rewards, b.NextStates, b.Dones)
	return err
}

// Train performs one Adam step on the batch and returns the loss measured
// before the update.
func (q *QNet) Train(states, actions [][]float64, rewards []float64, nextStates [][]float64, dones []bool) (float64, error) {
	n := len(states)
	if n == 0 {
		return 0, errors.New("nn: empty batch")
	}
	if len(actions) != n || len(rewards) != n || len(nextStates) != n || len(dones) != n {
		return 0, fmt.Errorf("nn: batch columns differ in length: states=%d actions=%d rewards=%d next=%d dones=%d",
			n, len(actions), len(rewards), len(nextStates), len(dones))
	}

	x, err := rowsToDense(states, q.cfg.InputSize)
	if err != nil {
		return 0, fmt.Errorf("nn: states: %w", err)
	}
	xNext, err := rowsToDense(nextStates, q.cfg.InputSize)
	if err != nil {
		return 0, fmt.Errorf("nn: next states: %w", err)
	}
	for i, a := range actions {
		if len(a) != q.cfg.OutputSize {
			return 0, fmt.Errorf("nn: action %d has length %d, want %d", i, len(a), q.cfg.OutputSize)
		}
	}

	hidden, pred := q.forward(x)
	_, next := q.forward(xNext)
	target := computeTargets(pred, next, actions, rewards, dones, q.cfg.Gamma)

	// dL/dout for the mean over every output element
	var diff mat.Dense
	diff.Sub(pred, target)
	d := diff.RawMatrix().Data
	loss := floats.Dot(d, d) / float64(n*q.cfg.OutputSize)
	diff.Scale(2/float64(n*q.cfg.OutputSize), &diff)

	var gW2 mat.Dense
	gW2.Mul(hidden.T(), &diff)
	gB2 := colSums(&diff)

	var gHidden mat.Dense
	gHidden.Mul(&diff, q.w2.T())
	gHidden.Apply(func(i, j int, v float64) float64 {
		if hidden.At(i, j) <= 0 {
			return 0
		}
		return v
	}, &gHidden)

	var gW1 mat.Dense
	gW1.Mul(x.T(), &gHidden)
	gB1 := colSums(&gHidden)

	q.opt.step(q.params(), []*mat.Dense{&gW1, gB1, &gW2, gB2})
	return loss, nil
}

// computeTargets copies pred and replaces the value of each taken action
// with its TD target.
func computeTargets(pred, next *mat.Dense, actions [][]float64, rewards []float64, dones []bool, gamma float64) *mat.Dense {
	target := mat.DenseCopyOf(pred)
	for i := range rewards {
		q := rewards[i]
		if !dones[i] {
			q += gamma * floats.Max(next.RawRowView(i))
		}
		target.Set(i, floats.MaxIdx(actions[i]), q)
	}
	return target
}

func rowsToDense(rows [][]float64, width int) (*mat.Dense, error) {
	data := make([]float64, 0, len(rows)*width)
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("row %d has length %d, want %d", i, len(r), width)
		}
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), width, data), nil
}

func colSums(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	sums := make([]float64, c)
	for i := 0; i < r; i++ {
		floats.Add(sums, m.RawRowView(i))
	}
	return mat.NewDense(1, c, sums)
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// adam holds first and second moment estimates for every parameter
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	m, v                  [][]float64
}

func newAdam(lr float64, params []*mat.Dense) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	for _, p := range params {
		n := len(p.RawMatrix().Data)
		a.m = append(a.m, make([]float64, n))
		a.v = append(a.v, make([]float64, n))
	}
	return a
}

func (a *adam) step(params, grads []*mat.Dense) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))

	for k, p := range params {
		w := p.RawMatrix().Data
		g := denseData(grads[k])
		m, v := a.m[k], a.v[k]
		for i := range w {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g[i]
			v[i] = a.beta2*v[i] + (1-a.beta2)*g[i]*g[i]
			w[i] -= a.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.eps)
		}
	}
}

// denseData returns the elements of d in row-major order
func denseData(d *mat.Dense) []float64 {
	raw := d.RawMatrix()
	if raw.Stride == raw.Cols {
		return raw.Data[:raw.Rows*raw.Cols]
	}
	out := make([]float64, 0, raw.Rows*raw.Cols)
	for i := 0; i < raw.Rows; i++ {
		out = append(out, d.RawRowView(i)...)
	}
	return out
}
