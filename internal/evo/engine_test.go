package evo

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"evotree/internal/model"
	"evotree/internal/tree"
)

// sumFitness scores an individual by its output at a fixed input, so repeated
// evaluations of the same trees always agree.
func sumFitness(_ context.Context, ind *tree.Multitree) (Result, error) {
	total := 0.0
	for _, v := range ind.Output([]float64{1}) {
		total += v
	}
	return Result{
		Fitness: total,
		Transitions: []model.Transition{
			{State: []float64{1}, Action: 0, Reward: total},
		},
		Wins:  1,
		Games: 2,
	}, nil
}

func testGenerator(rng *rand.Rand) *tree.Multitree {
	return tree.Generate(rng, 2, tree.DefaultInternals(), tree.FeatureLeaves(1), 3)
}

func testConfig() Config {
	return Config{
		Fitness:   sumFitness,
		Generator: testGenerator,
		PopSize:   16,
		Mutations: []VariationDescriptor{
			{Operator: SubtreeMutation{MaxDepth: 3}, Rate: 0.5},
			{Operator: PointMutation{}, Rate: 0.5},
		},
		CoeffOps: []VariationDescriptor{
			{Operator: CoeffMutation{}, Rate: 0.5},
		},
		Internals: tree.DefaultInternals(),
		Leaves:    tree.FeatureLeaves(1),
		Elitism:   0.25,
		MaxGens:   3,
		Seed:      11,
	}
}

func TestNewEngineValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing fitness", func(c *Config) { c.Fitness = nil }},
		{"missing generator", func(c *Config) { c.Generator = nil }},
		{"elitism above one", func(c *Config) { c.Elitism = 1.5 }},
		{"elitism negative", func(c *Config) { c.Elitism = -0.1 }},
		{"nil operator", func(c *Config) {
			c.Mutations = []VariationDescriptor{{Operator: nil, Rate: 0.5}}
		}},
		{"rate out of range", func(c *Config) {
			c.Mutations = []VariationDescriptor{{Operator: PointMutation{}, Rate: 1.5}}
		}},
		{"seed population size mismatch", func(c *Config) {
			c.SeedPopulation = []*tree.Multitree{tree.New(tree.NewConstant(1))}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if _, err := NewEngine(cfg); err == nil {
				t.Fatalf("expected construction error")
			}
		})
	}
}

func TestEvolvePopulationSizeInvariant(t *testing.T) {
	engine, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Evolve(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(engine.Population()); got != 16 {
		t.Fatalf("population size drifted: got %d, want 16", got)
	}
	for _, ind := range engine.Population() {
		if !ind.Evaluated {
			t.Fatalf("unevaluated individual in final population")
		}
	}
}

func TestEvolveMonotonicBestOfGens(t *testing.T) {
	engine, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := engine.Evolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.BestOfGens) != result.NumGens+1 {
		t.Fatalf("expected %d archived champions, got %d", result.NumGens+1, len(result.BestOfGens))
	}
	for i := 1; i < len(result.BestOfGens); i++ {
		if result.BestOfGens[i].Fitness < result.BestOfGens[i-1].Fitness {
			t.Fatalf("champion fitness regressed at generation %d: %v < %v",
				i, result.BestOfGens[i].Fitness, result.BestOfGens[i-1].Fitness)
		}
	}
}

func TestEvolveMaxGensExactHalt(t *testing.T) {
	cfg := testConfig()
	cfg.MaxGens = 5
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := engine.Evolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.NumGens != 5 {
		t.Fatalf("expected exactly 5 generations, got %d", result.NumGens)
	}
	if len(result.Diagnostics) != 6 {
		t.Fatalf("expected 6 diagnostic records, got %d", len(result.Diagnostics))
	}
	if engine.State() != StateTerminated {
		t.Fatalf("expected terminated state, got %s", engine.State())
	}
}

// Each generation costs exactly PopSize counted evaluations — elite re-scores
// do not advance the counter — so even with elitism enabled the run may
// overshoot the evaluation bound by at most one generation.
func TestEvolveMaxEvalsOvershootBound(t *testing.T) {
	cfg := testConfig()
	cfg.Elitism = 0.25
	cfg.MaxGens = 0
	cfg.MaxEvals = 37
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := engine.Evolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.NumEvals < cfg.MaxEvals {
		t.Fatalf("run stopped before reaching the bound: %d < %d", result.NumEvals, cfg.MaxEvals)
	}
	if result.NumEvals >= cfg.MaxEvals+cfg.PopSize {
		t.Fatalf("overshoot exceeds one generation: %d >= %d", result.NumEvals, cfg.MaxEvals+cfg.PopSize)
	}
	if result.NumEvals%cfg.PopSize != 0 {
		t.Fatalf("evaluation count not a multiple of the population size: %d", result.NumEvals)
	}
}

func TestEvolveSingleUse(t *testing.T) {
	engine, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Evolve(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Evolve(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("expected ErrAlreadyRun, got %v", err)
	}
}

func TestEvolveContextCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxGens = 1000
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Evolve(ctx); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

// Archived champions must be deep copies: no entry may alias an individual in
// the live population, and rewriting an archived tree must not reach it.
func TestArchiveHoldsDeepCopies(t *testing.T) {
	engine, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Evolve(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for gi, archived := range engine.BestOfGens() {
		for pi, ind := range engine.Population() {
			if archived == ind {
				t.Fatalf("archive entry %d aliases population index %d", gi, pi)
			}
			if len(archived.Trees) > 0 && len(ind.Trees) > 0 && archived.Trees[0] == ind.Trees[0] {
				t.Fatalf("archive entry %d shares tree storage with population index %d", gi, pi)
			}
		}
	}
}

// With pop_size=4 and elitism=0.5 two elites are snapshotted each generation
// and at least one of them (the loop reinserts from index 1, champion repair
// covers the best) must survive into the next population as a deep copy with
// fitness at or above the prior generation's second-highest fitness. Seeds
// with fixed constants and no variation operators make every fitness value
// knowable in advance.
func TestEvolveSmallPopulationHighElitism(t *testing.T) {
	cfg := testConfig()
	cfg.PopSize = 4
	cfg.Elitism = 0.5
	cfg.MaxGens = 1
	cfg.Mutations = nil
	cfg.CoeffOps = nil
	cfg.SeedPopulation = []*tree.Multitree{
		tree.New(tree.NewConstant(0.5), tree.NewConstant(0.5)),
		tree.New(tree.NewConstant(2), tree.NewConstant(2)),
		tree.New(tree.NewConstant(3), tree.NewConstant(3)),
		tree.New(tree.NewConstant(4), tree.NewConstant(4)),
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := engine.Evolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(engine.Population()); got != 4 {
		t.Fatalf("population size drifted: got %d, want 4", got)
	}
	if result.NumGens != 1 {
		t.Fatalf("expected 1 generation, got %d", result.NumGens)
	}

	// Second-highest fitness of the initial generation is 6; with
	// elite_count=2 at least one survivor must be at or above it.
	const threshold = 6.0
	survivors := 0
	for _, ind := range engine.Population() {
		if ind.Fitness >= threshold {
			survivors++
		}
	}
	if survivors < 1 {
		t.Fatalf("no individual at or above the elite fitness threshold %v", threshold)
	}

	// Survivors must be copies: distinct from the caller's seeds and from
	// each other, with no shared tree storage.
	pop := engine.Population()
	for i, ind := range pop {
		for _, seed := range cfg.SeedPopulation {
			if ind == seed || ind.Trees[0] == seed.Trees[0] {
				t.Fatalf("population member %d aliases a caller seed", i)
			}
		}
		for j := i + 1; j < len(pop); j++ {
			if ind == pop[j] || ind.Trees[0] == pop[j].Trees[0] {
				t.Fatalf("population members %d and %d share storage", i, j)
			}
		}
	}
}

// With unit-size seeds and a tree budget of one node, every variation result
// that grows a tree must be rejected, so the population stays at size one
// per tree forever.
func TestEvolveTreeSizeBudgetEnforced(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTreeSize = 1
	cfg.Generator = func(rng *rand.Rand) *tree.Multitree {
		return tree.Generate(rng, 2, tree.DefaultInternals(), tree.FeatureLeaves(1), 0)
	}
	cfg.Mutations = []VariationDescriptor{
		{Operator: SubtreeMutation{MaxDepth: 3}, Rate: 1},
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Evolve(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, ind := range engine.Population() {
		for _, tr := range ind.Trees {
			if tr.Size() > 1 {
				t.Fatalf("tree exceeds size budget: %d nodes", tr.Size())
			}
		}
	}
}

func TestEvolveSeedPopulation(t *testing.T) {
	cfg := testConfig()
	cfg.PopSize = 4
	cfg.SeedPopulation = []*tree.Multitree{
		tree.New(tree.NewConstant(1), tree.NewConstant(1)),
		tree.New(tree.NewConstant(2), tree.NewConstant(2)),
		tree.New(tree.NewConstant(3), tree.NewConstant(3)),
		tree.New(tree.NewConstant(4), tree.NewConstant(4)),
	}
	cfg.MaxGens = 1
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := engine.Evolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Initial champion is the seed summing to 8.
	if result.BestOfGens[0].Fitness != 8 {
		t.Fatalf("expected initial champion fitness 8, got %v", result.BestOfGens[0].Fitness)
	}
	// Seeds are cloned on adoption; the caller's copies stay untouched.
	if cfg.SeedPopulation[0].Evaluated {
		t.Fatalf("engine mutated the caller's seed population")
	}
}

func TestReseedCalledOncePerGeneration(t *testing.T) {
	calls := 0
	cfg := testConfig()
	cfg.MaxGens = 3
	cfg.Reseed = func(harder bool) {
		calls++
		if harder {
			t.Fatalf("harder must stay false without configured thresholds")
		}
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Evolve(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 reseed calls, got %d", calls)
	}
}

// The harder flag needs both thresholds configured; a single threshold must
// never let the zero-valued one pass trivially.
func TestHarderSignalNeedsBothThresholds(t *testing.T) {
	seeds := func() []*tree.Multitree {
		return []*tree.Multitree{
			tree.New(tree.NewConstant(2), tree.NewConstant(2)),
			tree.New(tree.NewConstant(2), tree.NewConstant(2)),
			tree.New(tree.NewConstant(2), tree.NewConstant(2)),
			tree.New(tree.NewConstant(2), tree.NewConstant(2)),
		}
	}
	base := func() Config {
		cfg := testConfig()
		cfg.PopSize = 4
		cfg.MaxGens = 2
		cfg.Mutations = nil
		cfg.CoeffOps = nil
		cfg.SeedPopulation = seeds()
		return cfg
	}

	// Every fitness is 4, so both thresholds at 1 are exceeded.
	cfg := base()
	cfg.HarderBestThreshold = 1
	fired := false
	cfg.Reseed = func(harder bool) { fired = fired || harder }
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Evolve(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fired {
		t.Fatalf("harder fired with only the best threshold configured")
	}

	cfg = base()
	cfg.HarderBestThreshold = 1
	cfg.HarderMeanThreshold = 1
	fired = false
	cfg.Reseed = func(harder bool) { fired = fired || harder }
	engine, err = NewEngine(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Evolve(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fired {
		t.Fatalf("harder never fired with both thresholds exceeded")
	}
}

func TestEvolveMaxTime(t *testing.T) {
	cfg := testConfig()
	cfg.MaxGens = 0
	cfg.MaxTime = time.Millisecond
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := engine.Evolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Elapsed < cfg.MaxTime {
		t.Fatalf("run stopped before the time bound: %v", result.Elapsed)
	}
}
