package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"evotree/internal/storage"
	evoapi "evotree/pkg/evotree"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "champion":
		return runChampion(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "scapes":
		return runScapes(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: evotreectl <run|runs|fitness|diagnostics|champion|export|scapes> [flags]", msg)
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	scapeName := fs.String("scape", "cartpole", "scape name")
	population := fs.Int("pop", 256, "population size")
	generations := fs.Int("gens", 20, "generation limit (0 disables)")
	maxEvals := fs.Int("max-evals", 0, "evaluation limit (0 disables)")
	maxSeconds := fs.Float64("max-seconds", 0, "wall-clock limit in seconds (0 disables)")
	seed := fs.Int64("seed", 1, "rng seed")
	workers := fs.Int("workers", 4, "evaluation worker count")
	elitism := fs.Float64("elitism", 0.1, "elite fraction of the population")
	maxTreeSize := fs.Int("max-tree-size", 64, "per-tree node budget")
	initDepth := fs.Int("init-depth", 4, "maximum depth of generated trees")
	tournament := fs.Int("tournament", 8, "tournament size for parent selection")
	crossoverRate := fs.Float64("crossover-rate", 0.5, "subtree crossover probability")
	subtreeRate := fs.Float64("subtree-rate", 0.4, "subtree mutation probability")
	pointRate := fs.Float64("point-rate", 0.4, "point mutation probability")
	coeffRate := fs.Float64("coeff-rate", 0.5, "coefficient mutation probability")
	refineIters := fs.Int("refine-iters", 0, "gradient refinement iterations (0 uses default)")
	refineBatch := fs.Int("refine-batch", 0, "gradient refinement minibatch size (0 uses default)")
	noRefine := fs.Bool("no-refine", false, "skip gradient refinement of the initial champion")
	harderBest := fs.Float64("harder-best", 0, "best-fitness threshold for harder reseeds (0 disables)")
	harderMean := fs.Float64("harder-mean", 0, "mean-fitness threshold for harder reseeds (0 disables)")
	replayCapacity := fs.Int("replay-capacity", 0, "replay memory capacity (0 uses default)")
	verbose := fs.Bool("verbose", isatty.IsTerminal(os.Stdout.Fd()), "print per-generation reports")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "evotree.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultRunRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = evoapi.RunRequest{
			Scape:               *scapeName,
			Population:          *population,
			Generations:         *generations,
			MaxEvals:            *maxEvals,
			MaxSeconds:          *maxSeconds,
			Seed:                *seed,
			Workers:             *workers,
			Elitism:             *elitism,
			MaxTreeSize:         *maxTreeSize,
			InitMaxDepth:        *initDepth,
			TournamentSize:      *tournament,
			CrossoverRate:       *crossoverRate,
			SubtreeMutationRate: *subtreeRate,
			PointMutationRate:   *pointRate,
			CoeffMutationRate:   *coeffRate,
			RefineIterations:    *refineIters,
			RefineBatchSize:     *refineBatch,
			DisableRefine:       *noRefine,
			HarderBestThreshold: *harderBest,
			HarderMeanThreshold: *harderMean,
			ReplayCapacity:      *replayCapacity,
			Verbose:             *verbose,
		}
	} else {
		overrideFromFlags(&req, setFlags, map[string]any{
			"scape":           *scapeName,
			"pop":             *population,
			"gens":            *generations,
			"max-evals":       *maxEvals,
			"max-seconds":     *maxSeconds,
			"seed":            *seed,
			"workers":         *workers,
			"elitism":         *elitism,
			"max-tree-size":   *maxTreeSize,
			"init-depth":      *initDepth,
			"tournament":      *tournament,
			"crossover-rate":  *crossoverRate,
			"subtree-rate":    *subtreeRate,
			"point-rate":      *pointRate,
			"coeff-rate":      *coeffRate,
			"refine-iters":    *refineIters,
			"refine-batch":    *refineBatch,
			"no-refine":       *noRefine,
			"harder-best":     *harderBest,
			"harder-mean":     *harderMean,
			"replay-capacity": *replayCapacity,
			"verbose":         *verbose,
		})
	}

	client, err := evoapi.New(evoapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run completed run_id=%s scape=%s gens=%d evals=%s elapsed=%s\n",
		summary.RunID,
		summary.Scape,
		summary.Generations,
		humanize.Comma(int64(summary.Evaluations)),
		summary.Elapsed.Round(time.Millisecond),
	)
	if summary.RefineSkipped {
		fmt.Println("refine skipped")
	} else {
		fmt.Printf("refine first_loss=%.6f final_loss=%.6f\n", summary.RefineFirstLoss, summary.RefineFinalLoss)
	}
	for generation, best := range summary.BestByGeneration {
		fmt.Printf("generation=%d best_fitness=%.6f\n", generation, best)
	}
	fmt.Printf("final_best_fitness=%.6f\n", summary.FinalBestFitness)
	for i, expr := range summary.FinalExpressions {
		fmt.Printf("action=%d expr=%s\n", i, expr)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "evotree.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := evoapi.New(evoapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, evoapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	for _, r := range runs {
		fmt.Printf("run_id=%s created_at=%s scape=%s seed=%d pop=%d gens=%d evals=%s final_best_fitness=%.6f\n",
			r.RunID,
			r.CreatedAtUTC,
			r.Scape,
			r.Seed,
			r.PopulationSize,
			r.Generations,
			humanize.Comma(int64(r.Evaluations)),
			r.FinalBestFitness,
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show fitness history for the most recent run")
	limit := fs.Int("limit", 0, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "evotree.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := evoapi.New(evoapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, evoapi.HistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	for generation, best := range history {
		fmt.Printf("generation=%d best_fitness=%.6f\n", generation, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show diagnostics for the most recent run")
	limit := fs.Int("limit", 0, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "evotree.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := evoapi.New(evoapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, evoapi.HistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diagnostics)
	}

	for _, d := range diagnostics {
		fmt.Printf("generation=%d best=%.6f mean=%.6f median=%.6f std=%.6f win_ratio=%.4f champ_size=%d evals=%s\n",
			d.Generation,
			d.BestFitness,
			d.MeanFitness,
			d.MedianFitness,
			d.StdDev,
			d.MeanWinRatio,
			d.ChampionSize,
			humanize.Comma(int64(d.Evaluations)),
		)
	}
	return nil
}

func runChampion(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("champion", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show champions for the most recent run")
	all := fs.Bool("all", false, "print every archived champion instead of the final one")
	jsonOut := fs.Bool("json", false, "emit champions as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "evotree.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := evoapi.New(evoapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	limit := 0
	if !*all {
		limit = 1
	}
	champions, err := client.Champions(ctx, evoapi.HistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  limit,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(champions)
	}

	for _, champion := range champions {
		fmt.Printf("generation=%d individual_id=%s fitness=%.6f wins=%d/%d size=%d\n",
			champion.Generation,
			champion.IndividualID,
			champion.Fitness,
			champion.Wins,
			champion.Games,
			champion.Size,
		)
		for i, expr := range champion.Expressions {
			fmt.Printf("action=%d expr=%s\n", i, expr)
		}
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", "exports", "output directory")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "evotree.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := evoapi.New(evoapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, evoapi.ExportRequest{
		RunID:  *runID,
		Latest: *latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
	return nil
}

func runScapes(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("scapes", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := evoapi.New(evoapi.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	for _, name := range client.Scapes() {
		fmt.Println(name)
	}
	return nil
}
