package evo

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"evotree/internal/tree"
)

// VariationContext carries the shared inputs of one offspring-production
// round: the donor pool (the selected parents), the node vocabulary, and the
// per-tree size constraint.
type VariationContext struct {
	Rng         *rand.Rand
	Pool        []*tree.Multitree
	Internals   []tree.Op
	Leaves      []*tree.Node
	MaxTreeSize int
}

// VariationOperator transforms an offspring in place. Operators never enforce
// the size constraint themselves; the pipeline rejects oversized results and
// restores the pre-operator form.
type VariationOperator interface {
	Name() string
	Apply(vc *VariationContext, child *tree.Multitree) error
}

// VariationDescriptor pairs an operator with its independent application
// probability per offspring-production event.
type VariationDescriptor struct {
	Operator VariationOperator
	Rate     float64
}

func validateDescriptors(kind string, descriptors []VariationDescriptor) error {
	for i, d := range descriptors {
		if d.Operator == nil {
			return fmt.Errorf("%s descriptor %d: operator is required", kind, i)
		}
		if d.Rate < 0 || d.Rate > 1 {
			return fmt.Errorf("%s descriptor %d (%s): rate must be in [0,1], got %v", kind, i, d.Operator.Name(), d.Rate)
		}
	}
	return nil
}

// produceOffspring builds exactly one offspring from a parent: clone, then
// apply each configured crossover, mutation, and coefficient-optimization
// descriptor with independent probability equal to its rate. Any application
// whose result would exceed the per-tree size limit falls back to the
// offspring's pre-operator form.
func produceOffspring(vc *VariationContext, parent *tree.Multitree, crossovers, mutations, coeffOps []VariationDescriptor) (*tree.Multitree, error) {
	child := parent.Clone()
	child.ID = uuid.NewString()
	child.ResetStats()

	for _, group := range [][]VariationDescriptor{crossovers, mutations, coeffOps} {
		for _, d := range group {
			if vc.Rng.Float64() >= d.Rate {
				continue
			}
			backup := child.Clone()
			if err := d.Operator.Apply(vc, child); err != nil {
				return nil, fmt.Errorf("apply %s: %w", d.Operator.Name(), err)
			}
			if oversized(child, vc.MaxTreeSize) {
				child = backup
			}
		}
	}
	return child, nil
}

func oversized(ind *tree.Multitree, maxTreeSize int) bool {
	if maxTreeSize <= 0 {
		return false
	}
	for _, t := range ind.Trees {
		if t.Size() > maxTreeSize {
			return true
		}
	}
	return false
}

// SubtreeCrossover grafts a random subtree from a pool donor into a random
// node of the offspring, tree index aligned between the two.
type SubtreeCrossover struct{}

func (SubtreeCrossover) Name() string {
	return "subtree_crossover"
}

func (SubtreeCrossover) Apply(vc *VariationContext, child *tree.Multitree) error {
	if len(vc.Pool) == 0 {
		return fmt.Errorf("donor pool is empty")
	}
	donor := vc.Pool[vc.Rng.Intn(len(vc.Pool))]
	ti := vc.Rng.Intn(len(child.Trees))
	if ti >= len(donor.Trees) {
		return fmt.Errorf("donor has %d trees, offspring needs index %d", len(donor.Trees), ti)
	}

	targets := child.Trees[ti].Nodes()
	target := targets[vc.Rng.Intn(len(targets))]
	donorNodes := donor.Trees[ti].Nodes()
	graft := donorNodes[vc.Rng.Intn(len(donorNodes))].Clone()
	*target = *graft
	return nil
}

// SubtreeMutation replaces a random node of a random tree with a freshly
// grown branch.
type SubtreeMutation struct {
	MaxDepth int
}

func (SubtreeMutation) Name() string {
	return "subtree_mutation"
}

func (m SubtreeMutation) Apply(vc *VariationContext, child *tree.Multitree) error {
	if len(vc.Internals) == 0 || len(vc.Leaves) == 0 {
		return fmt.Errorf("node vocabulary is required")
	}
	maxDepth := m.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 4
	}

	ti := vc.Rng.Intn(len(child.Trees))
	targets := child.Trees[ti].Nodes()
	target := targets[vc.Rng.Intn(len(targets))]
	branch := tree.GrowTree(vc.Rng, vc.Internals, vc.Leaves, maxDepth)
	*target = *branch
	return nil
}

// PointMutation swaps a single random node for a same-arity replacement:
// internal nodes get a different operator, leaves get a fresh leaf from the
// vocabulary.
type PointMutation struct{}

func (PointMutation) Name() string {
	return "point_mutation"
}

func (PointMutation) Apply(vc *VariationContext, child *tree.Multitree) error {
	if len(vc.Internals) == 0 || len(vc.Leaves) == 0 {
		return fmt.Errorf("node vocabulary is required")
	}

	ti := vc.Rng.Intn(len(child.Trees))
	nodes := child.Trees[ti].Nodes()
	target := nodes[vc.Rng.Intn(len(nodes))]

	if target.Kind != tree.KindOp {
		leaf := tree.PickLeaf(vc.Rng, vc.Leaves)
		*target = *leaf
		return nil
	}

	arity := target.Op.Arity()
	candidates := make([]tree.Op, 0, len(vc.Internals))
	for _, op := range vc.Internals {
		if op.Arity() == arity && op.Name() != target.Op.Name() {
			candidates = append(candidates, op)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	target.Op = candidates[vc.Rng.Intn(len(candidates))]
	return nil
}

// CoeffMutation perturbs each embedded constant with independent probability
// Prob by Gaussian noise scaled to the constant's magnitude.
type CoeffMutation struct {
	Prob float64
	Temp float64
}

func (CoeffMutation) Name() string {
	return "coeff_mutation"
}

func (m CoeffMutation) Apply(vc *VariationContext, child *tree.Multitree) error {
	prob := m.Prob
	if prob <= 0 {
		prob = 0.25
	}
	temp := m.Temp
	if temp <= 0 {
		temp = 0.25
	}

	for _, c := range child.Constants() {
		if vc.Rng.Float64() >= prob {
			continue
		}
		scale := temp
		if abs := c.Value; abs != 0 {
			if abs < 0 {
				abs = -abs
			}
			scale = abs * temp
		}
		c.Value += vc.Rng.NormFloat64() * scale
	}
	return nil
}
