// Package scape provides episodic environments that score multitree policies
// and emit the interaction transitions the gradient refiner trains on.
package scape

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"evotree/internal/evo"
	"evotree/internal/tree"
)

// Scape scores one individual per Evaluate call. Evaluations of distinct
// individuals must be independent and safe to run concurrently; Reseed is
// invoked only by the single-threaded controller between evaluation phases.
type Scape interface {
	Name() string
	// StateSize and Actions describe the policy shape the scape expects:
	// inputs per state and one tree per action.
	StateSize() int
	Actions() int
	Evaluate(ctx context.Context, policy *tree.Multitree) (evo.Result, error)
	// Reseed advances the evaluation setup for the next round; harder
	// switches to a more demanding configuration and is sticky.
	Reseed(harder bool)
}

var registry = struct {
	mu sync.RWMutex
	m  map[string]func() Scape
}{
	m: make(map[string]func() Scape),
}

func Register(name string, factory func() Scape) error {
	if name == "" {
		return fmt.Errorf("scape name is required")
	}
	if factory == nil {
		return fmt.Errorf("scape factory is required")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.m[name]; exists {
		return fmt.Errorf("scape already registered: %s", name)
	}
	registry.m[name] = factory
	return nil
}

func Lookup(name string) (Scape, error) {
	registry.mu.RLock()
	factory, ok := registry.m[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown scape: %s", name)
	}
	return factory(), nil
}

func Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.m))
	for name := range registry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
