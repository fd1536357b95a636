package run

import "context"

// Repository defines the interface for test run persistence. Save is an
// upsert keyed by run ID; the last write wins.
type Repository interface {
	// Save persists a test run with all its results
	Save(ctx context.Context, testRun *TestRun) error

	// FindByID retrieves a test run by its ID
	FindByID(ctx context.Context, id string) (*TestRun, error)

	// FindAll retrieves all test runs, newest first
	FindAll(ctx context.Context) ([]*TestRun, error)

	// Delete removes a test run by its ID
	Delete(ctx context.Context, id string) error
}
