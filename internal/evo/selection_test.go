package evo

import (
	"math/rand"
	"testing"

	"evotree/internal/tree"
)

func scoredPopulation(fitnesses ...float64) []*tree.Multitree {
	out := make([]*tree.Multitree, len(fitnesses))
	for i, f := range fitnesses {
		ind := tree.New(tree.NewConstant(f))
		ind.Fitness = f
		ind.Evaluated = true
		out[i] = ind
	}
	return out
}

func TestTournamentSelectorReturnsPopulationMembers(t *testing.T) {
	population := scoredPopulation(1, 2, 3, 4)
	rng := rand.New(rand.NewSource(5))

	s := TournamentSelector{Size: 2}
	parents, err := s.Select(rng, population, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parents) != 8 {
		t.Fatalf("expected 8 parents, got %d", len(parents))
	}
	members := make(map[*tree.Multitree]bool, len(population))
	for _, ind := range population {
		members[ind] = true
	}
	for _, p := range parents {
		if !members[p] {
			t.Fatalf("selected parent is not a population member")
		}
	}
}

// Tournaments of 8 contestants over fitnesses 0..9 keep the expected winner
// fitness above 8; a selected mean below 6 would mean selection pressure is
// broken, not an unlucky seed.
func TestTournamentSelectorPrefersFitter(t *testing.T) {
	population := scoredPopulation(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	rng := rand.New(rand.NewSource(6))

	s := TournamentSelector{Size: 8}
	parents, err := s.Select(rng, population, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := 0.0
	for _, p := range parents {
		total += p.Fitness
	}
	if mean := total / float64(len(parents)); mean < 6 {
		t.Fatalf("selection pressure too weak: mean selected fitness %v", mean)
	}
}

func TestTournamentSelectorClampsSize(t *testing.T) {
	population := scoredPopulation(1, 2)
	rng := rand.New(rand.NewSource(7))

	s := TournamentSelector{Size: 100}
	parents, err := s.Select(rng, population, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parents) != 4 {
		t.Fatalf("expected 4 parents, got %d", len(parents))
	}
}

func TestTournamentSelectorErrors(t *testing.T) {
	population := scoredPopulation(1)
	rng := rand.New(rand.NewSource(8))
	s := TournamentSelector{}

	if _, err := s.Select(nil, population, 1); err == nil {
		t.Fatalf("expected error for nil rng")
	}
	if _, err := s.Select(rng, nil, 1); err == nil {
		t.Fatalf("expected error for empty population")
	}
	if _, err := s.Select(rng, population, 0); err == nil {
		t.Fatalf("expected error for non-positive count")
	}
}
