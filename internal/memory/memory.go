// Package memory implements the bounded experience replay buffer the agent
// learns from at the end of every episode.
package memory

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Transition is a single (state, action, reward, next state, done) tuple.
// Action is the one-hot action vector.
type Transition struct {
	State     []float64
	Action    []float64
	Reward    float64
	NextState []float64
	Done      bool
}

// Batch holds a mini-batch as parallel sequences
type Batch struct {
	States     [][]float64
	Actions    [][]float64
	Rewards    []float64
	NextStates [][]float64
	Dones      []bool
}

// Len returns the number of transitions in the batch
func (b Batch) Len() int {
	return len(b.Rewards)
}

// Unzip splits transitions into a Batch
func Unzip(ts []Transition) Batch {
	b := Batch{
		States:     make([][]float64, len(ts)),
		Actions:    make([][]float64, len(ts)),
		Rewards:    make([]float64, len(ts)),
		NextStates: make([][]float64, len(ts)),
		Dones:      make([]bool, len(ts)),
	}
	for i, t := range ts {
		b.States[i] = t.State
		b.Actions[i] = t.Action
		b.Rewards[i] = t.Reward
		b.NextStates[i] = t.NextState
		b.Dones[i] = t.Done
	}
	return b
}

// Memory is a FIFO ring buffer of transitions. Once full, every Push
// overwrites the oldest entry.
//
// Memory is not safe for concurrent use.
type Memory struct {
	buf      []Transition
	start    int // index of the oldest entry once the buffer is full
	capacity int

	src rand.Source
}

// New returns an empty Memory holding at most capacity transitions.
// The seed drives Sample.
func New(capacity int, seed uint64) *Memory {
	if capacity < 1 {
		panic("memory: capacity must be >= 1")
	}
	return &Memory{
		capacity: capacity,
		src:      rand.NewSource(seed),
	}
}

// Push stores a copy of t, evicting the oldest transition at capacity
func (m *Memory) Push(t Transition) {
	t.State = clone(t.State)
	t.Action = clone(t.Action)
	t.NextState = clone(t.NextState)

	if len(m.buf) < m.capacity {
		m.buf = append(m.buf, t)
		return
	}
	m.buf[m.start] = t
	m.start = (m.start + 1) % m.capacity
}

// Len returns the number of stored transitions
func (m *Memory) Len() int {
	return len(m.buf)
}

// Cap returns the maximum number of stored transitions
func (m *Memory) Cap() int {
	return m.capacity
}

// at returns the i-th oldest transition
func (m *Memory) at(i int) Transition {
	return m.buf[(m.start+i)%len(m.buf)]
}

// Oldest returns the transition that the next Push at capacity evicts
func (m *Memory) Oldest() (Transition, bool) {
	if len(m.buf) == 0 {
		return Transition{}, false
	}
	return m.at(0), true
}

// All returns every stored transition, oldest first
func (m *Memory) All() []Transition {
	out := make([]Transition, len(m.buf))
	for i := range out {
		out[i] = m.at(i)
	}
	return out
}

// Sample returns n distinct transitions chosen uniformly at random. When n
// is at least Len, every transition is returned in insertion order.
// The returned transitions share their vectors with the buffer and must not
// be modified.
func (m *Memory) Sample(n int) []Transition {
	if n <= 0 {
		return nil
	}
	if n >= len(m.buf) {
		return m.All()
	}

	idx := make([]int, n)
	sampleuv.WithoutReplacement(idx, len(m.buf), m.src)

	out := make([]Transition, n)
	for i, j := range idx {
		out[i] = m.at(j)
	}
	return out
}

func clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
