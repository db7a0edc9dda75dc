package tree

import (
	"math/rand"
	"testing"
)

func TestGenerateRespectsDepth(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	internals := DefaultInternals()
	leaves := FeatureLeaves(2)

	for i := 0; i < 50; i++ {
		ind := Generate(rng, 3, internals, leaves, 4)
		if len(ind.Trees) != 3 {
			t.Fatalf("expected 3 trees, got %d", len(ind.Trees))
		}
		for ti, tr := range ind.Trees {
			if d := tr.Depth(); d > 4 {
				t.Fatalf("tree %d exceeds depth limit: %d", ti, d)
			}
		}
	}
}

func TestGenerateZeroDepthIsLeaf(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ind := Generate(rng, 2, DefaultInternals(), FeatureLeaves(1), 0)
	for _, tr := range ind.Trees {
		if tr.Size() != 1 {
			t.Fatalf("depth 0 should force a bare leaf, got size %d", tr.Size())
		}
	}
}

func TestGenerateDistinctIDs(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := Generate(rng, 1, DefaultInternals(), FeatureLeaves(1), 3)
	b := Generate(rng, 1, DefaultInternals(), FeatureLeaves(1), 3)
	if a.ID == b.ID {
		t.Fatalf("generated individuals must have distinct ids")
	}
}

// Leaf prototypes must never be shared between placements: rewriting one
// generated constant must not leak into other trees.
func TestLeafPrototypesNotShared(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	proto := NewConstant(1)
	ind := Generate(rng, 2, DefaultInternals(), []*Node{proto}, 2)

	constants := ind.Constants()
	if len(constants) < 2 {
		t.Skip("not enough constants generated for aliasing check")
	}
	constants[0].Value = 42
	if constants[1].Value == 42 {
		t.Fatalf("constant placements alias each other")
	}
	if proto.Value != 1 {
		t.Fatalf("generation mutated the prototype")
	}
}

func TestFeatureLeaves(t *testing.T) {
	leaves := FeatureLeaves(3)
	if len(leaves) != 4 {
		t.Fatalf("expected 3 features plus one constant, got %d leaves", len(leaves))
	}
	for i := 0; i < 3; i++ {
		if leaves[i].Kind != KindFeature || leaves[i].Feature != i {
			t.Fatalf("leaf %d is not feature x%d", i, i)
		}
	}
	if leaves[3].Kind != KindConst {
		t.Fatalf("last leaf should be the random constant prototype")
	}
}
