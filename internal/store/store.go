// Package store persists the run journal: one record per pipeline
// invocation, updated as the run moves through its phases.
package store

import (
	"context"

	"github.com/sells-group/lease-abstract/internal/config"
	"github.com/sells-group/lease-abstract/internal/model"
)

// Store records pipeline runs. Implementations must be safe for concurrent
// use; the pipeline writes status transitions from a single goroutine but
// multiple runs may share a store.
type Store interface {
	Migrate(ctx context.Context) error
	CreateRun(ctx context.Context, run *model.Run) error
	UpdateStatus(ctx context.Context, id string, status model.RunStatus) error
	CompleteRun(ctx context.Context, id string, status model.RunStatus, completeness float64, usage model.TokenUsage) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	Close() error
}

// New builds a store from configuration. Driver "none" disables journaling.
func New(cfg config.StoreConfig) (Store, error) {
	if cfg.Driver == "none" || cfg.Driver == "" {
		return NopStore{}, nil
	}
	return NewSQLiteStore(cfg.Path)
}

// NopStore discards everything. Used when journaling is disabled and in
// tests that do not care about persistence.
type NopStore struct{}

func (NopStore) Migrate(context.Context) error               { return nil }
func (NopStore) CreateRun(context.Context, *model.Run) error { return nil }
func (NopStore) UpdateStatus(context.Context, string, model.RunStatus) error {
	return nil
}
func (NopStore) CompleteRun(context.Context, string, model.RunStatus, float64, model.TokenUsage) error {
	return nil
}
func (NopStore) GetRun(context.Context, string) (*model.Run, error) { return nil, ErrRunNotFound }
func (NopStore) ListRuns(context.Context, int) ([]model.Run, error) { return nil, nil }
func (NopStore) Close() error                                       { return nil }
