package storage

import (
	"context"

	"tangled/internal/model"
)

// Store persists training runs, their per-generation diagnostics and the
// graph snapshot taken at the end of each run.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every run, most recent first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveGraphSnapshot(ctx context.Context, snapshot model.GraphSnapshot) error
	GetGraphSnapshot(ctx context.Context, runID string) (model.GraphSnapshot, bool, error)
}
