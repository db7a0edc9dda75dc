// Package evotree is the public entrypoint: a Client that configures and runs
// evolutionary searches over multitree policies, persists their artifacts, and
// reads them back.
package evotree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"

	"evotree/internal/evo"
	"evotree/internal/model"
	"evotree/internal/refine"
	"evotree/internal/scape"
	"evotree/internal/storage"
	"evotree/internal/tree"
)

const defaultDBPath = "evotree.db"

type Options struct {
	StoreKind string
	DBPath    string
}

type Client struct {
	store       storage.Store
	initialized bool
}

type RunRequest struct {
	Scape       string
	Population  int
	Generations int
	MaxEvals    int
	MaxSeconds  float64
	Seed        int64
	Workers     int

	Elitism      float64
	MaxTreeSize  int
	InitMaxDepth int

	TournamentSize int

	CrossoverRate       float64
	SubtreeMutationRate float64
	PointMutationRate   float64
	CoeffMutationRate   float64

	RefineIterations int
	RefineBatchSize  int
	DisableRefine    bool

	HarderBestThreshold float64
	HarderMeanThreshold float64

	ReplayCapacity int
	Verbose        bool
}

type RunSummary struct {
	RunID            string
	Scape            string
	Generations      int
	Evaluations      int
	Elapsed          time.Duration
	BestByGeneration []float64
	FinalBestFitness float64
	FinalExpressions []string
	RefineSkipped    bool
	RefineFirstLoss  float64
	RefineFinalLoss  float64
}

type RunsRequest struct {
	Limit int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Scapes lists the registered evaluation environments.
func (c *Client) Scapes() []string {
	return scape.Names()
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Scape == "" {
		req.Scape = "cartpole"
	}
	if req.Population <= 0 {
		req.Population = 256
	}
	if req.Generations <= 0 && req.MaxEvals <= 0 && req.MaxSeconds <= 0 {
		req.Generations = 20
	}
	if req.Workers <= 0 {
		req.Workers = 4
	}
	if req.InitMaxDepth <= 0 {
		req.InitMaxDepth = 4
	}
	if req.MaxTreeSize <= 0 {
		req.MaxTreeSize = 64
	}
	if req.TournamentSize <= 0 {
		req.TournamentSize = 8
	}
	if req.CrossoverRate == 0 && req.SubtreeMutationRate == 0 && req.PointMutationRate == 0 && req.CoeffMutationRate == 0 {
		req.CrossoverRate = 0.5
		req.SubtreeMutationRate = 0.4
		req.PointMutationRate = 0.4
		req.CoeffMutationRate = 0.5
	}
	if req.Elitism == 0 {
		req.Elitism = 0.1
	}

	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	env, err := scape.Lookup(req.Scape)
	if err != nil {
		return RunSummary{}, err
	}

	internals := tree.DefaultInternals()
	leaves := tree.FeatureLeaves(env.StateSize())
	numTrees := env.Actions()

	cfg := evo.Config{
		Fitness: func(ctx context.Context, ind *tree.Multitree) (evo.Result, error) {
			return env.Evaluate(ctx, ind)
		},
		Generator: func(rng *rand.Rand) *tree.Multitree {
			return tree.Generate(rng, numTrees, internals, leaves, req.InitMaxDepth)
		},
		PopSize:      req.Population,
		InitMaxDepth: req.InitMaxDepth,
		MaxTreeSize:  req.MaxTreeSize,
		Crossovers: []evo.VariationDescriptor{
			{Operator: evo.SubtreeCrossover{}, Rate: req.CrossoverRate},
		},
		Mutations: []evo.VariationDescriptor{
			{Operator: evo.SubtreeMutation{MaxDepth: req.InitMaxDepth}, Rate: req.SubtreeMutationRate},
			{Operator: evo.PointMutation{}, Rate: req.PointMutationRate},
		},
		CoeffOps: []evo.VariationDescriptor{
			{Operator: evo.CoeffMutation{}, Rate: req.CoeffMutationRate},
		},
		Selection:           evo.TournamentSelector{Size: req.TournamentSize},
		Internals:           internals,
		Leaves:              leaves,
		Elitism:             req.Elitism,
		MaxEvals:            req.MaxEvals,
		MaxGens:             req.Generations,
		MaxTime:             time.Duration(req.MaxSeconds * float64(time.Second)),
		Parallelism:         req.Workers,
		ReplayCapacity:      req.ReplayCapacity,
		Reseed:              env.Reseed,
		HarderBestThreshold: req.HarderBestThreshold,
		HarderMeanThreshold: req.HarderMeanThreshold,
		Seed:                req.Seed,
		Verbose:             req.Verbose,
		ReportWriter:        os.Stdout,
	}

	if !req.DisableRefine {
		refineCfg := refine.DefaultConfig()
		if req.RefineIterations > 0 {
			refineCfg.Iterations = req.RefineIterations
		}
		if req.RefineBatchSize > 0 {
			refineCfg.BatchSize = req.RefineBatchSize
		}
		refiner, err := refine.NewDQNRefiner(refineCfg)
		if err != nil {
			return RunSummary{}, err
		}
		cfg.Refiner = refiner
	}

	engine, err := evo.NewEngine(cfg)
	if err != nil {
		return RunSummary{}, err
	}

	result, err := engine.Evolve(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	runID := uuid.NewString()
	createdAt := strftime.Format("%Y-%m-%dT%H:%M:%SZ", time.Now().UTC())

	final := result.BestOfGens[len(result.BestOfGens)-1]
	history := make([]float64, 0, len(result.BestOfGens))
	for _, champion := range result.BestOfGens {
		history = append(history, champion.Fitness)
	}

	run := model.RunRecord{
		VersionedRecord:  storage.Versioned(),
		RunID:            runID,
		CreatedAtUTC:     createdAt,
		Scape:            req.Scape,
		Seed:             req.Seed,
		PopulationSize:   req.Population,
		Generations:      result.NumGens,
		Evaluations:      result.NumEvals,
		ElapsedSeconds:   result.Elapsed.Seconds(),
		FinalBestFitness: final.Fitness,
		RefineIterations: result.Refine.Iterations,
		RefineSkipped:    result.Refine.Skipped,
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveFitnessHistory(ctx, runID, history); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveDiagnostics(ctx, runID, result.Diagnostics); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveChampions(ctx, runID, championRecords(result.BestOfGens)); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:            runID,
		Scape:            req.Scape,
		Generations:      result.NumGens,
		Evaluations:      result.NumEvals,
		Elapsed:          result.Elapsed,
		BestByGeneration: history,
		FinalBestFitness: final.Fitness,
		FinalExpressions: final.Expressions(),
		RefineSkipped:    result.Refine.Skipped,
		RefineFirstLoss:  result.Refine.FirstLoss,
		RefineFinalLoss:  result.Refine.FinalLoss,
	}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if req.Limit == 0 {
		req.Limit = 20
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	// Newest first.
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	if len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}
	return runs, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req HistoryRequest) ([]float64, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return history, nil
}

func (c *Client) Diagnostics(ctx context.Context, req HistoryRequest) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	return diagnostics, nil
}

func (c *Client) Champions(ctx context.Context, req HistoryRequest) ([]model.ChampionRecord, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	champions, ok, err := c.store.GetChampions(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("champions not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(champions) > req.Limit {
		champions = champions[len(champions)-req.Limit:]
	}
	return champions, nil
}

// Export writes a run's persisted artifacts as pretty-printed JSON files
// under <out>/<run-id>/.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = "exports"
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		return ExportSummary{}, fmt.Errorf("run not found: %s", runID)
	}

	dir := filepath.Join(req.OutDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ExportSummary{}, err
	}

	if err := writeJSONFile(filepath.Join(dir, "run.json"), run); err != nil {
		return ExportSummary{}, err
	}
	if history, ok, err := c.store.GetFitnessHistory(ctx, runID); err != nil {
		return ExportSummary{}, err
	} else if ok {
		if err := writeJSONFile(filepath.Join(dir, "fitness_history.json"), history); err != nil {
			return ExportSummary{}, err
		}
	}
	if diagnostics, ok, err := c.store.GetDiagnostics(ctx, runID); err != nil {
		return ExportSummary{}, err
	} else if ok {
		if err := writeJSONFile(filepath.Join(dir, "diagnostics.json"), diagnostics); err != nil {
			return ExportSummary{}, err
		}
	}
	if champions, ok, err := c.store.GetChampions(ctx, runID); err != nil {
		return ExportSummary{}, err
	} else if ok {
		if err := writeJSONFile(filepath.Join(dir, "champions.json"), champions); err != nil {
			return ExportSummary{}, err
		}
	}

	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}

	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[len(runs)-1].RunID, nil
}

func championRecords(bestOfGens []*tree.Multitree) []model.ChampionRecord {
	out := make([]model.ChampionRecord, 0, len(bestOfGens))
	for generation, champion := range bestOfGens {
		out = append(out, model.ChampionRecord{
			VersionedRecord: storage.Versioned(),
			IndividualID:    champion.ID,
			Generation:      generation,
			Fitness:         champion.Fitness,
			Wins:            champion.Wins,
			Games:           champion.Games,
			Size:            champion.Size(),
			Expressions:     champion.Expressions(),
		})
	}
	return out
}
