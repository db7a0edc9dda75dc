// Package evo implements the evolutionary control loop: parallel fitness
// evaluation, parent selection, variation, elitism and replacement, and
// termination. Tree semantics live in internal/tree; the gradient refinement
// of the initial champion lives in internal/refine.
package evo

import (
	"context"

	"evotree/internal/model"
	"evotree/internal/tree"
)

// Result is what a fitness function reports for one individual: the scalar
// fitness, the interaction transitions collected while scoring it, and the
// win/game counters whose semantics the fitness function owns.
type Result struct {
	Fitness     float64
	Transitions []model.Transition
	Wins        int
	Games       int
}

// FitnessFunc scores one individual. It must be safe to invoke concurrently
// across individuals and must not mutate the individual it receives.
type FitnessFunc func(ctx context.Context, ind *tree.Multitree) (Result, error)

// State tracks the controller's lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateGenerating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateGenerating:
		return "generating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
