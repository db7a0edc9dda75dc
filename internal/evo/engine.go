package evo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"time"

	"evotree/internal/model"
	"evotree/internal/refine"
	"evotree/internal/replay"
	"evotree/internal/tree"
)

// ErrAlreadyRun is returned when Evolve is called on a terminated engine; a
// run is single-use, create a new Engine to evolve again.
var ErrAlreadyRun = errors.New("engine has already run")

// GeneratorFunc builds one random individual for population initialization.
type GeneratorFunc func(rng *rand.Rand) *tree.Multitree

// Config is the full configuration surface of a run. NewEngine validates it
// eagerly: malformed descriptors or bounds fail at construction, never
// mid-run.
type Config struct {
	Fitness   FitnessFunc
	Generator GeneratorFunc

	// SeedPopulation, when non-empty, must hold exactly PopSize individuals
	// and skips random generation.
	SeedPopulation []*tree.Multitree

	PopSize      int // default 256
	InitMaxDepth int // default 4
	MaxTreeSize  int // per-tree node budget, default 64

	Crossovers []VariationDescriptor
	Mutations  []VariationDescriptor
	CoeffOps   []VariationDescriptor
	Selection  Selector

	Internals []tree.Op
	Leaves    []*tree.Node

	// Elitism is the fraction of the population snapshotted as elites each
	// generation; elite_count = floor(Elitism * PopSize).
	Elitism float64

	// Termination bounds; any bound left at zero never triggers. Callers
	// should configure at least one or the run is unbounded.
	MaxEvals int
	MaxGens  int
	MaxTime  time.Duration

	Parallelism    int // worker pool size, default 4
	ReplayCapacity int // default replay.DefaultCapacity

	// Refiner, when set, runs once on the initial champion after the first
	// evaluation round.
	Refiner refine.Refiner

	// Reseed, when set, is invoked once per generation before offspring
	// evaluation. The harder flag turns true when both threshold fields are
	// configured and best and mean fitness exceed them.
	Reseed              func(harder bool)
	HarderBestThreshold float64
	HarderMeanThreshold float64

	Seed         int64
	Verbose      bool
	ReportWriter io.Writer
}

// RunResult is the final state of a completed run.
type RunResult struct {
	BestOfGens  []*tree.Multitree
	Diagnostics []model.GenerationDiagnostics
	NumGens     int
	NumEvals    int
	Elapsed     time.Duration
	Refine      refine.Report
}

// Engine owns the generational loop. All run state (counters, population,
// replay memory, archive) lives on the engine, never in package globals, so
// concurrent runs do not interfere.
type Engine struct {
	cfg   Config
	rng   *rand.Rand
	state State

	population  []*tree.Multitree
	memory      *replay.Buffer
	bestOfGens  []*tree.Multitree
	diagnostics []model.GenerationDiagnostics

	numGens   int
	numEvals  int
	startTime time.Time
	elapsed   time.Duration

	refineReport refine.Report
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Fitness == nil {
		return nil, fmt.Errorf("fitness function is required")
	}
	if cfg.PopSize <= 0 {
		cfg.PopSize = 256
	}
	if cfg.InitMaxDepth <= 0 {
		cfg.InitMaxDepth = 4
	}
	if cfg.MaxTreeSize <= 0 {
		cfg.MaxTreeSize = 64
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.ReplayCapacity <= 0 {
		cfg.ReplayCapacity = replay.DefaultCapacity
	}
	if cfg.Selection == nil {
		cfg.Selection = TournamentSelector{Size: 8}
	}
	if cfg.Elitism < 0 || cfg.Elitism > 1 {
		return nil, fmt.Errorf("elitism must be in [0,1], got %v", cfg.Elitism)
	}
	if len(cfg.SeedPopulation) == 0 && cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required without a seed population")
	}
	if len(cfg.SeedPopulation) > 0 && len(cfg.SeedPopulation) != cfg.PopSize {
		return nil, fmt.Errorf("seed population mismatch: got=%d want=%d", len(cfg.SeedPopulation), cfg.PopSize)
	}
	if err := validateDescriptors("crossover", cfg.Crossovers); err != nil {
		return nil, err
	}
	if err := validateDescriptors("mutation", cfg.Mutations); err != nil {
		return nil, err
	}
	if err := validateDescriptors("coeff_opt", cfg.CoeffOps); err != nil {
		return nil, err
	}

	buf, err := replay.New(cfg.ReplayCapacity)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		state:  StateUninitialized,
		memory: buf,
	}, nil
}

func (e *Engine) State() State   { return e.state }
func (e *Engine) NumGens() int   { return e.numGens }
func (e *Engine) NumEvals() int  { return e.numEvals }
func (e *Engine) ReplayLen() int { return e.memory.Len() }

// Population returns the live population; callers must treat it as read-only.
func (e *Engine) Population() []*tree.Multitree { return e.population }

// BestOfGens returns the archive of deep-copied champions, entry 0 being the
// initial population's champion.
func (e *Engine) BestOfGens() []*tree.Multitree { return e.bestOfGens }

// Evolve runs initialization, the generational loop, and termination. The
// engine is single-use.
func (e *Engine) Evolve(ctx context.Context) (RunResult, error) {
	if e.state != StateUninitialized {
		return RunResult{}, ErrAlreadyRun
	}
	e.startTime = time.Now()

	e.state = StateInitializing
	if err := e.initializePopulation(ctx); err != nil {
		return RunResult{}, err
	}

	e.state = StateGenerating
	for !e.mustTerminate() {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		if err := e.performGeneration(ctx); err != nil {
			return RunResult{}, err
		}
		if e.cfg.Verbose && e.cfg.ReportWriter != nil {
			writeGenerationReport(e.cfg.ReportWriter, e.diagnostics[len(e.diagnostics)-1], e.elapsed)
		}
	}
	e.state = StateTerminated

	return RunResult{
		BestOfGens:  e.bestOfGens,
		Diagnostics: e.diagnostics,
		NumGens:     e.numGens,
		NumEvals:    e.numEvals,
		Elapsed:     e.elapsed,
		Refine:      e.refineReport,
	}, nil
}

func (e *Engine) mustTerminate() bool {
	e.elapsed = time.Since(e.startTime)
	if e.cfg.MaxTime > 0 && e.elapsed >= e.cfg.MaxTime {
		return true
	}
	if e.cfg.MaxEvals > 0 && e.numEvals >= e.cfg.MaxEvals {
		return true
	}
	if e.cfg.MaxGens > 0 && e.numGens >= e.cfg.MaxGens {
		return true
	}
	return false
}

// initializePopulation builds or adopts the initial population, evaluates it,
// archives the initial champion, and runs the gradient refiner once on that
// champion using the freshly collected replay memory.
func (e *Engine) initializePopulation(ctx context.Context) error {
	if len(e.cfg.SeedPopulation) > 0 {
		e.population = make([]*tree.Multitree, len(e.cfg.SeedPopulation))
		for i, ind := range e.cfg.SeedPopulation {
			e.population[i] = ind.Clone()
		}
	} else {
		e.population = make([]*tree.Multitree, e.cfg.PopSize)
		for i := range e.population {
			e.population[i] = e.cfg.Generator(e.rng)
		}
	}

	if err := e.evaluate(ctx, e.population, true); err != nil {
		return err
	}

	best := e.population[argMaxFitness(e.population)]

	if e.cfg.Refiner != nil {
		report, err := e.cfg.Refiner.Refine(ctx, best, e.memory, e.rng)
		if err != nil {
			return fmt.Errorf("refine initial champion: %w", err)
		}
		e.refineReport = report
	}

	e.bestOfGens = append(e.bestOfGens, best.Clone())
	e.diagnostics = append(e.diagnostics, e.summarize(0))
	if e.cfg.Verbose && e.cfg.ReportWriter != nil {
		writeGenerationReport(e.cfg.ReportWriter, e.diagnostics[0], time.Since(e.startTime))
	}
	return nil
}

// performGeneration runs one full cycle: selection, elite snapshot, offspring
// production, evaluation of elites and offspring, replacement, and archiving.
func (e *Engine) performGeneration(ctx context.Context) error {
	parents, err := e.cfg.Selection.Select(e.rng, e.population, e.cfg.PopSize)
	if err != nil {
		return err
	}

	eliteCount := int(e.cfg.Elitism * float64(e.cfg.PopSize))
	elites := e.snapshotElites(eliteCount)

	if e.cfg.Reseed != nil {
		e.cfg.Reseed(e.harderSignal())
	}

	vc := &VariationContext{
		Rng:         e.rng,
		Pool:        parents,
		Internals:   e.cfg.Internals,
		Leaves:      e.cfg.Leaves,
		MaxTreeSize: e.cfg.MaxTreeSize,
	}
	offspring := make([]*tree.Multitree, len(parents))
	for i, parent := range parents {
		child, err := produceOffspring(vc, parent, e.cfg.Crossovers, e.cfg.Mutations, e.cfg.CoeffOps)
		if err != nil {
			return err
		}
		offspring[i] = child
	}

	if err := e.evaluate(ctx, elites, false); err != nil {
		return err
	}
	if err := e.evaluate(ctx, offspring, true); err != nil {
		return err
	}

	e.population = offspring
	for i := 1; i < len(elites); i++ {
		e.removeLowest()
		e.population = append(e.population, elites[i].Clone())
	}

	// Champion repair: the single best across the resulting population,
	// falling back to the previously archived champion so best-of-run never
	// regresses.
	best := e.population[argMaxFitness(e.population)]
	if prev := e.bestOfGens[len(e.bestOfGens)-1]; prev.Fitness > best.Fitness {
		best = prev
	}
	reinserted := best.Clone()
	e.removeLowest()
	e.population = append(e.population, reinserted)

	e.numGens++
	e.bestOfGens = append(e.bestOfGens, reinserted.Clone())
	e.diagnostics = append(e.diagnostics, e.summarize(e.numGens))
	return nil
}

// snapshotElites deep-copies the top count individuals by fitness descending.
// Ties keep the input order, so a fixed population order snapshots
// deterministically.
func (e *Engine) snapshotElites(count int) []*tree.Multitree {
	if count <= 0 {
		return nil
	}
	ranked := make([]*tree.Multitree, len(e.population))
	copy(ranked, e.population)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	if count > len(ranked) {
		count = len(ranked)
	}
	elites := make([]*tree.Multitree, count)
	for i := 0; i < count; i++ {
		elites[i] = ranked[i].Clone()
	}
	return elites
}

func (e *Engine) removeLowest() {
	idx := argMinFitness(e.population)
	e.population = append(e.population[:idx], e.population[idx+1:]...)
}

// harderSignal requires both thresholds configured; with either left at zero
// the signal never fires.
func (e *Engine) harderSignal() bool {
	if e.cfg.HarderBestThreshold == 0 || e.cfg.HarderMeanThreshold == 0 {
		return false
	}
	best := e.population[argMaxFitness(e.population)].Fitness
	mean := meanFitness(e.population)
	return best > e.cfg.HarderBestThreshold && mean > e.cfg.HarderMeanThreshold
}

func argMaxFitness(population []*tree.Multitree) int {
	best := 0
	for i := 1; i < len(population); i++ {
		if population[i].Fitness > population[best].Fitness {
			best = i
		}
	}
	return best
}

func argMinFitness(population []*tree.Multitree) int {
	worst := 0
	for i := 1; i < len(population); i++ {
		if population[i].Fitness < population[worst].Fitness {
			worst = i
		}
	}
	return worst
}

func meanFitness(population []*tree.Multitree) float64 {
	total := 0.0
	for _, ind := range population {
		total += ind.Fitness
	}
	return total / float64(len(population))
}
