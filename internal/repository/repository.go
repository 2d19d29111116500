package repository

import (
	"context"
	"errors"
	"time"

	"dendroreduce/internal/domain"
)

// ErrNotFound is returned when a run or snapshot does not exist
var ErrNotFound = errors.New("not found")

// Repository defines the interface for run data access
type Repository interface {
	// Runs
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	LatestRun(ctx context.Context, output string) (*domain.Run, error)
	ListRuns(ctx context.Context, model string, limit int) ([]domain.Run, error)
	MarkRunUndone(ctx context.Context, id string, at time.Time) error
	DeleteRun(ctx context.Context, id string) error

	// Snapshots
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error
	GetSnapshot(ctx context.Context, runID string, kind domain.SnapshotKind) (*domain.Snapshot, error)

	// Close releases resources
	Close() error
}
