package tree

import (
	"github.com/google/uuid"
)

// Multitree is one evolving individual: a bundle of program trees, one per
// action, plus the scalar statistics the engine tracks for it. Fitness is
// meaningful only once Evaluated is set.
type Multitree struct {
	ID        string
	Trees     []*Node
	Fitness   float64
	Evaluated bool
	Wins      int
	Games     int
}

func New(trees ...*Node) *Multitree {
	return &Multitree{ID: uuid.NewString(), Trees: trees}
}

// Clone deep-copies the individual, statistics included. The copy keeps the
// source's ID; callers that need a distinct identity assign a fresh one.
func (m *Multitree) Clone() *Multitree {
	trees := make([]*Node, len(m.Trees))
	for i, t := range m.Trees {
		trees[i] = t.Clone()
	}
	return &Multitree{
		ID:        m.ID,
		Trees:     trees,
		Fitness:   m.Fitness,
		Evaluated: m.Evaluated,
		Wins:      m.Wins,
		Games:     m.Games,
	}
}

// ResetStats clears fitness and win/game counters, as required for freshly
// constructed offspring.
func (m *Multitree) ResetStats() {
	m.Fitness = 0
	m.Evaluated = false
	m.Wins = 0
	m.Games = 0
}

// Size returns the total node count across all trees.
func (m *Multitree) Size() int {
	total := 0
	for _, t := range m.Trees {
		total += t.Size()
	}
	return total
}

// Constants returns every tunable constant node across all trees. The nodes
// are live: writing Value through them updates the individual in place.
func (m *Multitree) Constants() []*Node {
	out := make([]*Node, 0, 8)
	for _, t := range m.Trees {
		out = append(out, t.Constants()...)
	}
	return out
}

// Output evaluates every tree on the input, one value per action.
func (m *Multitree) Output(x []float64) []float64 {
	out := make([]float64, len(m.Trees))
	for i, t := range m.Trees {
		out[i] = t.Eval(x)
	}
	return out
}

// QValue returns the output of the tree for one action.
func (m *Multitree) QValue(x []float64, action int) float64 {
	return m.Trees[action].Eval(x)
}

// ArgMax returns the action whose tree produces the highest output.
func (m *Multitree) ArgMax(x []float64) int {
	best := 0
	bestVal := m.Trees[0].Eval(x)
	for i := 1; i < len(m.Trees); i++ {
		if v := m.Trees[i].Eval(x); v > bestVal {
			best = i
			bestVal = v
		}
	}
	return best
}

// MaxOutput returns the highest per-action output for the input.
func (m *Multitree) MaxOutput(x []float64) float64 {
	return m.Trees[m.ArgMax(x)].Eval(x)
}

// Backprop accumulates the gradient of the chosen action's output with
// respect to the individual's constants, scaled by adjoint.
func (m *Multitree) Backprop(x []float64, action int, adjoint float64) {
	m.Trees[action].Backprop(x, adjoint)
}

// ZeroGrad clears accumulated gradients on every constant.
func (m *Multitree) ZeroGrad() {
	for _, c := range m.Constants() {
		c.Grad = 0
	}
}

// Expressions renders each tree as an infix string.
func (m *Multitree) Expressions() []string {
	out := make([]string, len(m.Trees))
	for i, t := range m.Trees {
		out[i] = t.String()
	}
	return out
}
