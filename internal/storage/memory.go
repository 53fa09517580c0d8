package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"districtevo/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type generationKey struct {
	runID      string
	generation int
}

// MemoryStore keeps encoded records in process memory, so callers never
// share slices with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	generations map[generationKey][]byte
	latest      map[string]int
	runs        map[string][]byte
	diagnostics map[string][]model.GenerationDiagnostics
	hallOfFame  map[string][]byte
	lineage     map[string][]byte
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
	s.generations = make(map[generationKey][]byte)
	s.latest = make(map[string]int)
	s.runs = make(map[string][]byte)
	s.diagnostics = make(map[string][]model.GenerationDiagnostics)
	s.hallOfFame = make(map[string][]byte)
	s.lineage = make(map[string][]byte)
	return nil
}

func (s *MemoryStore) SaveGeneration(_ context.Context, snapshot model.GenerationSnapshot) error {
	payload, err := EncodeGeneration(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	s.generations[generationKey{snapshot.RunID, snapshot.Generation}] = payload
	if latest, ok := s.latest[snapshot.RunID]; !ok || snapshot.Generation > latest {
		s.latest[snapshot.RunID] = snapshot.Generation
	}
	return nil
}

func (s *MemoryStore) GetGeneration(_ context.Context, runID string, generation int) (model.GenerationSnapshot, bool, error) {
	s.mu.RLock()
	payload, ok := s.generations[generationKey{runID, generation}]
	s.mu.RUnlock()
	if !ok {
		return model.GenerationSnapshot{}, false, nil
	}
	snapshot, err := DecodeGeneration(payload)
	if err != nil {
		return model.GenerationSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func (s *MemoryStore) LatestGeneration(ctx context.Context, runID string) (model.GenerationSnapshot, bool, error) {
	s.mu.RLock()
	latest, ok := s.latest[runID]
	s.mu.RUnlock()
	if !ok {
		return model.GenerationSnapshot{}, false, nil
	}
	return s.GetGeneration(ctx, runID, latest)
}

func (s *MemoryStore) SaveRun(_ context.Context, summary model.RunSummary) error {
	payload, err := EncodeRun(summary)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	s.runs[summary.RunID] = payload
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (model.RunSummary, bool, error) {
	s.mu.RLock()
	payload, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return model.RunSummary{}, false, nil
	}
	summary, err := DecodeRun(payload)
	if err != nil {
		return model.RunSummary{}, false, err
	}
	return summary, true, nil
}

// ListRuns returns every run summary, oldest first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunSummary, 0, len(s.runs))
	for _, payload := range s.runs {
		summary, err := DecodeRun(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	sortRuns(out)
	return out, nil
}

func sortRuns(runs []model.RunSummary) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.Before(runs[j].StartedAt)
		}
		return runs[i].RunID < runs[j].RunID
	})
}

func (s *MemoryStore) SaveGenerationDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	s.diagnostics[runID] = copied
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	return copied, true, nil
}

func (s *MemoryStore) SaveHallOfFame(_ context.Context, runID string, records []model.HallOfFameRecord) error {
	payload, err := EncodeHallOfFame(records)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	s.hallOfFame[runID] = payload
	return nil
}

func (s *MemoryStore) GetHallOfFame(_ context.Context, runID string) ([]model.HallOfFameRecord, bool, error) {
	s.mu.RLock()
	payload, ok := s.hallOfFame[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	records, err := DecodeHallOfFame(payload)
	if err != nil {
		return nil, false, err
	}
	return records, true, nil
}

func (s *MemoryStore) SaveLineage(_ context.Context, runID string, lineage []model.LineageRecord) error {
	payload, err := EncodeLineage(lineage)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	s.lineage[runID] = payload
	return nil
}

func (s *MemoryStore) GetLineage(_ context.Context, runID string) ([]model.LineageRecord, bool, error) {
	s.mu.RLock()
	payload, ok := s.lineage[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	records, err := DecodeLineage(payload)
	if err != nil {
		return nil, false, err
	}
	return records, true, nil
}
