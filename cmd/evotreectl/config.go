package main

import (
	"encoding/json"
	"fmt"
	"os"

	evoapi "evotree/pkg/evotree"
)

// loadRunRequestFromConfig reads a run request from a JSON object. Numeric
// fields tolerate JSON's float64 decoding of integers.
func loadRunRequestFromConfig(path string) (evoapi.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return evoapi.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return evoapi.RunRequest{}, err
	}

	var req evoapi.RunRequest
	if v, ok := asString(raw["scape"]); ok {
		req.Scape = v
	}
	if v, ok := asInt(raw["population"]); ok {
		req.Population = v
	}
	if v, ok := asInt(raw["generations"]); ok {
		req.Generations = v
	}
	if v, ok := asInt(raw["max_evals"]); ok {
		req.MaxEvals = v
	}
	if v, ok := asFloat64(raw["max_seconds"]); ok {
		req.MaxSeconds = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asFloat64(raw["elitism"]); ok {
		req.Elitism = v
	}
	if v, ok := asInt(raw["max_tree_size"]); ok {
		req.MaxTreeSize = v
	}
	if v, ok := asInt(raw["init_max_depth"]); ok {
		req.InitMaxDepth = v
	}
	if v, ok := asInt(raw["tournament_size"]); ok {
		req.TournamentSize = v
	}
	if v, ok := asFloat64(raw["crossover_rate"]); ok {
		req.CrossoverRate = v
	}
	if v, ok := asFloat64(raw["subtree_mutation_rate"]); ok {
		req.SubtreeMutationRate = v
	}
	if v, ok := asFloat64(raw["point_mutation_rate"]); ok {
		req.PointMutationRate = v
	}
	if v, ok := asFloat64(raw["coeff_mutation_rate"]); ok {
		req.CoeffMutationRate = v
	}
	if v, ok := asInt(raw["refine_iterations"]); ok {
		req.RefineIterations = v
	}
	if v, ok := asInt(raw["refine_batch_size"]); ok {
		req.RefineBatchSize = v
	}
	if v, ok := asBool(raw["disable_refine"]); ok {
		req.DisableRefine = v
	}
	if v, ok := asFloat64(raw["harder_best_threshold"]); ok {
		req.HarderBestThreshold = v
	}
	if v, ok := asFloat64(raw["harder_mean_threshold"]); ok {
		req.HarderMeanThreshold = v
	}
	if v, ok := asInt(raw["replay_capacity"]); ok {
		req.ReplayCapacity = v
	}
	if v, ok := asBool(raw["verbose"]); ok {
		req.Verbose = v
	}
	return req, nil
}

func loadOrDefaultRunRequest(configPath string) (evoapi.RunRequest, error) {
	if configPath == "" {
		return evoapi.RunRequest{}, nil
	}
	req, err := loadRunRequestFromConfig(configPath)
	if err != nil {
		return evoapi.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

// overrideFromFlags applies explicitly set command-line flags on top of a
// config-file request.
func overrideFromFlags(req *evoapi.RunRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "scape":
			req.Scape = v.(string)
		case "pop":
			req.Population = v.(int)
		case "gens":
			req.Generations = v.(int)
		case "max-evals":
			req.MaxEvals = v.(int)
		case "max-seconds":
			req.MaxSeconds = v.(float64)
		case "seed":
			req.Seed = v.(int64)
		case "workers":
			req.Workers = v.(int)
		case "elitism":
			req.Elitism = v.(float64)
		case "max-tree-size":
			req.MaxTreeSize = v.(int)
		case "init-depth":
			req.InitMaxDepth = v.(int)
		case "tournament":
			req.TournamentSize = v.(int)
		case "crossover-rate":
			req.CrossoverRate = v.(float64)
		case "subtree-rate":
			req.SubtreeMutationRate = v.(float64)
		case "point-rate":
			req.PointMutationRate = v.(float64)
		case "coeff-rate":
			req.CoeffMutationRate = v.(float64)
		case "refine-iters":
			req.RefineIterations = v.(int)
		case "refine-batch":
			req.RefineBatchSize = v.(int)
		case "no-refine":
			req.DisableRefine = v.(bool)
		case "harder-best":
			req.HarderBestThreshold = v.(float64)
		case "harder-mean":
			req.HarderMeanThreshold = v.(float64)
		case "replay-capacity":
			req.ReplayCapacity = v.(int)
		case "verbose":
			req.Verbose = v.(bool)
		}
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
