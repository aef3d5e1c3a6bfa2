package storage

import (
	"context"
	"sync"

	"stickreach/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	experiments map[string]model.Experiment
	scapes      map[string]model.ScapeSummary
	history     map[string][]model.GenerationStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.reset()
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.reset()
	return nil
}

func (s *MemoryStore) reset() {
	s.experiments = make(map[string]model.Experiment)
	s.scapes = make(map[string]model.ScapeSummary)
	s.history = make(map[string][]model.GenerationStats)
}

func (s *MemoryStore) SaveExperiment(_ context.Context, experiment model.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.experiments[experiment.ID] = cloneExperiment(experiment)
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, id string) (model.Experiment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	experiment, ok := s.experiments[id]
	if !ok {
		return model.Experiment{}, false, nil
	}
	return cloneExperiment(experiment), true, nil
}

func (s *MemoryStore) SaveScapeSummary(_ context.Context, summary model.ScapeSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scapes[summary.Name] = summary
	return nil
}

func (s *MemoryStore) GetScapeSummary(_ context.Context, name string) (model.ScapeSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.scapes[name]
	return summary, ok, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []model.GenerationStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[runID] = append([]model.GenerationStats(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]model.GenerationStats, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.GenerationStats(nil), history...), true, nil
}

func cloneExperiment(e model.Experiment) model.Experiment {
	out := e
	out.Network.Layers = append([]model.LayerRecord(nil), e.Network.Layers...)
	out.Network.Parameters = append([]float64(nil), e.Network.Parameters...)
	out.World.HoldingLengths = append([]float64(nil), e.World.HoldingLengths...)
	out.World.HoldingClamps = cloneClamps(e.World.HoldingClamps)
	out.World.NonHoldingLengths = append([]float64(nil), e.World.NonHoldingLengths...)
	out.World.NonHoldingClamps = cloneClamps(e.World.NonHoldingClamps)
	out.FinalStd = append([]float64(nil), e.FinalStd...)
	return out
}

func cloneClamps(clamps []model.Clamp) []model.Clamp {
	if clamps == nil {
		return nil
	}
	out := make([]model.Clamp, len(clamps))
	for i, c := range clamps {
		if c.Min != nil {
			v := *c.Min
			out[i].Min = &v
		}
		if c.Max != nil {
			v := *c.Max
			out[i].Max = &v
		}
	}
	return out
}
