package storage

import (
	"context"

	"evotree/internal/model"
)

// Store persists the artifacts of completed runs: the run record, the
// per-generation fitness history and diagnostics, and the champion archive.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveChampions(ctx context.Context, runID string, champions []model.ChampionRecord) error
	GetChampions(ctx context.Context, runID string) ([]model.ChampionRecord, bool, error)
}
