package storage

import (
	"context"

	"stickreach/internal/model"
)

// Store persists trained experiments and their run metadata.
type Store interface {
	Init(ctx context.Context) error
	Reset(ctx context.Context) error
	SaveExperiment(ctx context.Context, experiment model.Experiment) error
	GetExperiment(ctx context.Context, id string) (model.Experiment, bool, error)
	SaveScapeSummary(ctx context.Context, summary model.ScapeSummary) error
	GetScapeSummary(ctx context.Context, name string) (model.ScapeSummary, bool, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []model.GenerationStats) error
	GetFitnessHistory(ctx context.Context, runID string) ([]model.GenerationStats, bool, error)
}
