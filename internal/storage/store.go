package storage

import (
	"context"

	"demosim/internal/model"
)

// Store indexes finished runs by output directory.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, record model.RunRecord) error
	GetRun(ctx context.Context, outputDir string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error)
}

// RunFilter narrows ListRuns. Zero values match everything; Limit <= 0 means
// no limit.
type RunFilter struct {
	BatchID string
	Status  *model.Status
	Limit   int
}

func (f RunFilter) Match(record model.RunRecord) bool {
	if f.BatchID != "" && record.BatchID != f.BatchID {
		return false
	}
	if f.Status != nil && record.Status != *f.Status {
		return false
	}
	return true
}
