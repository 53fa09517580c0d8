package storage

import (
	"context"

	"districtevo/internal/model"
)

// Store persists optimization runs: the per-generation population snapshots
// and the per-run summary, diagnostics, hall of fame and lineage.
type Store interface {
	Init(ctx context.Context) error
	SaveGeneration(ctx context.Context, snapshot model.GenerationSnapshot) error
	GetGeneration(ctx context.Context, runID string, generation int) (model.GenerationSnapshot, bool, error)
	LatestGeneration(ctx context.Context, runID string) (model.GenerationSnapshot, bool, error)
	SaveRun(ctx context.Context, summary model.RunSummary) error
	GetRun(ctx context.Context, runID string) (model.RunSummary, bool, error)
	ListRuns(ctx context.Context) ([]model.RunSummary, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveHallOfFame(ctx context.Context, runID string, records []model.HallOfFameRecord) error
	GetHallOfFame(ctx context.Context, runID string) ([]model.HallOfFameRecord, bool, error)
	SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error
	GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error)
}
