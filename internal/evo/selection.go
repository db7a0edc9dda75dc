package evo

import (
	"fmt"
	"math/rand"

	"evotree/internal/tree"
)

// Selector chooses parents from an evaluated population. The returned
// individuals alias the population; variation clones before modifying.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, population []*tree.Multitree, n int) ([]*tree.Multitree, error)
}

// TournamentSelector runs independent tournaments of Size random contestants
// and keeps the fittest of each.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) Select(rng *rand.Rand, population []*tree.Multitree, n int) ([]*tree.Multitree, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(population) == 0 {
		return nil, fmt.Errorf("population is empty")
	}
	if n <= 0 {
		return nil, fmt.Errorf("selection count must be > 0, got %d", n)
	}

	size := s.Size
	if size <= 0 {
		size = 8
	}
	if size > len(population) {
		size = len(population)
	}

	out := make([]*tree.Multitree, 0, n)
	for i := 0; i < n; i++ {
		best := population[rng.Intn(len(population))]
		for j := 1; j < size; j++ {
			candidate := population[rng.Intn(len(population))]
			if candidate.Fitness > best.Fitness {
				best = candidate
			}
		}
		out = append(out, best)
	}
	return out, nil
}
