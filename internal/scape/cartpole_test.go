package scape

import (
	"context"
	"testing"

	"evotree/internal/tree"
)

// rightPusher always picks action 1.
func rightPusher() *tree.Multitree {
	return tree.New(tree.NewConstant(0), tree.NewConstant(1))
}

func TestRegistryLookup(t *testing.T) {
	s, err := Lookup("cartpole")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name() != "cartpole" {
		t.Fatalf("unexpected name: %s", s.Name())
	}
	if s.StateSize() != 2 || s.Actions() != 2 {
		t.Fatalf("unexpected policy shape: state=%d actions=%d", s.StateSize(), s.Actions())
	}

	if _, err := Lookup("no-such-scape"); err == nil {
		t.Fatalf("expected error for unknown scape")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	names := Names()
	if len(names) == 0 {
		t.Fatalf("expected at least one registered scape")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("names are not sorted: %v", names)
		}
	}
}

func TestCartPoleDeterministic(t *testing.T) {
	pole := NewCartPole()
	policy := rightPusher()

	first, err := pole.Evaluate(context.Background(), policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := pole.Evaluate(context.Background(), policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Fitness != second.Fitness || first.Wins != second.Wins || first.Games != second.Games {
		t.Fatalf("evaluation is not deterministic: %+v vs %+v", first, second)
	}
	if first.Games != len(cartPoleLevels[0].startPositions) {
		t.Fatalf("expected one game per start position, got %d", first.Games)
	}
	if len(first.Transitions) == 0 {
		t.Fatalf("expected recorded transitions")
	}
}

func TestCartPoleEpisodesEndTerminal(t *testing.T) {
	pole := NewCartPole()
	res, err := pole.Evaluate(context.Background(), rightPusher())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := res.Transitions[len(res.Transitions)-1]
	if !last.Terminal() {
		t.Fatalf("final transition of the last episode must be terminal")
	}
	terminals := 0
	for _, tr := range res.Transitions {
		if tr.Terminal() {
			terminals++
		}
	}
	if terminals != res.Games {
		t.Fatalf("expected one terminal transition per episode, got %d for %d games", terminals, res.Games)
	}
}

func TestCartPoleReseedSticky(t *testing.T) {
	pole := NewCartPole()
	if pole.Level() != 0 {
		t.Fatalf("expected initial level 0, got %d", pole.Level())
	}

	pole.Reseed(false)
	if pole.Level() != 0 {
		t.Fatalf("easy reseed must not change the level")
	}

	pole.Reseed(true)
	if pole.Level() != 1 {
		t.Fatalf("expected level 1 after harder reseed, got %d", pole.Level())
	}

	pole.Reseed(false)
	if pole.Level() != 1 {
		t.Fatalf("harder level must be sticky, got %d", pole.Level())
	}

	for i := 0; i < 10; i++ {
		pole.Reseed(true)
	}
	if pole.Level() != len(cartPoleLevels)-1 {
		t.Fatalf("level must cap at %d, got %d", len(cartPoleLevels)-1, pole.Level())
	}
}

func TestCartPoleContextCancellation(t *testing.T) {
	pole := NewCartPole()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pole.Evaluate(ctx, rightPusher()); err == nil {
		t.Fatalf("expected cancellation error")
	}
}
