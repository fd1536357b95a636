// Package memory keeps test runs in process memory. It backs the one-shot
// CLI run and tests; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/siteqa/siteqa/internal/domain/run"
	sharedErrors "github.com/siteqa/siteqa/internal/shared/errors"
)

// RunRepository implements run.Repository with a map of snapshots. Stored
// runs are copies, so callers never share a TestRun with the repository.
type RunRepository struct {
	mu   sync.RWMutex
	runs map[string]run.Snapshot
}

// NewRunRepository creates an empty repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{runs: make(map[string]run.Snapshot)}
}

// Save upserts a test run.
func (r *RunRepository) Save(_ context.Context, testRun *run.TestRun) error {
	if testRun == nil {
		return sharedErrors.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[testRun.ID()] = testRun.Snapshot()
	return nil
}

// FindByID retrieves a test run by its ID
func (r *RunRepository) FindByID(_ context.Context, id string) (*run.TestRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.runs[id]
	if !ok {
		return nil, sharedErrors.ErrRunNotFound
	}
	return snap.Restore(), nil
}

// FindAll retrieves all test runs, newest first
func (r *RunRepository) FindAll(_ context.Context) ([]*run.TestRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runs := make([]*run.TestRun, 0, len(r.runs))
	for _, snap := range r.runs {
		runs = append(runs, snap.Restore())
	}
	sortNewestFirst(runs)
	return runs, nil
}

// Delete removes a test run by its ID
func (r *RunRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; !ok {
		return sharedErrors.ErrRunNotFound
	}
	delete(r.runs, id)
	return nil
}

func sortNewestFirst(runs []*run.TestRun) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt().Equal(runs[j].StartedAt()) {
			return runs[i].ID() > runs[j].ID()
		}
		return runs[i].StartedAt().After(runs[j].StartedAt())
	})
}
