package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"demosim/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, record model.RunRecord) error {
	if record.OutputDir == "" {
		return errors.New("run record requires an output directory")
	}
	// Same stamping and version check as the SQL backends.
	payload, err := EncodeRunRecord(record)
	if err != nil {
		return err
	}
	stored, err := DecodeRunRecord(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.runs[record.OutputDir] = stored
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, outputDir string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.runs[outputDir]
	return record, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]model.RunRecord, error) {
	s.mu.RLock()
	out := make([]model.RunRecord, 0, len(s.runs))
	for _, record := range s.runs {
		if filter.Match(record) {
			out = append(out, record)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtUTC != out[j].CreatedAtUTC {
			return out[i].CreatedAtUTC < out[j].CreatedAtUTC
		}
		return out[i].OutputDir < out[j].OutputDir
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
