package tree

import (
	"math/rand"
)

// growLeafProbability is the chance of closing a branch early once the
// generator is below the root and above the depth limit.
const growLeafProbability = 0.3

// Generate builds a random multitree with numTrees trees using the grow
// method: branches terminate early with a fixed probability and always at
// maxDepth. Leaf prototypes are cloned, never shared, and random-constant
// prototypes materialize a fresh value per placement.
func Generate(rng *rand.Rand, numTrees int, internals []Op, leaves []*Node, maxDepth int) *Multitree {
	trees := make([]*Node, numTrees)
	for i := range trees {
		trees[i] = GrowTree(rng, internals, leaves, maxDepth)
	}
	return New(trees...)
}

// GrowTree builds one random tree rooted at an internal node (unless
// maxDepth is 0, which forces a bare leaf).
func GrowTree(rng *rand.Rand, internals []Op, leaves []*Node, maxDepth int) *Node {
	return grow(rng, internals, leaves, maxDepth, 0)
}

func grow(rng *rand.Rand, internals []Op, leaves []*Node, maxDepth, depth int) *Node {
	if depth >= maxDepth || (depth > 0 && rng.Float64() < growLeafProbability) {
		return PickLeaf(rng, leaves)
	}
	op := internals[rng.Intn(len(internals))]
	children := make([]*Node, op.Arity())
	for i := range children {
		children[i] = grow(rng, internals, leaves, maxDepth, depth+1)
	}
	return NewOp(op, children...)
}

// PickLeaf clones a random leaf prototype and materializes it.
func PickLeaf(rng *rand.Rand, leaves []*Node) *Node {
	leaf := leaves[rng.Intn(len(leaves))].Clone()
	leaf.materialize(rng)
	return leaf
}

// FeatureLeaves returns feature prototypes x0..x(n-1) plus one random-constant
// prototype, the default leaf vocabulary for an n-dimensional state.
func FeatureLeaves(n int) []*Node {
	out := make([]*Node, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, NewFeature(i))
	}
	out = append(out, RandomConstant())
	return out
}
