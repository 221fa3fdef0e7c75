package repository

import (
	"context"
	"errors"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
)

// ErrNotFound is returned when a keyed document does not exist
var ErrNotFound = errors.New("repository: not found")

// JobRepository defines the interface for job storage operations
type JobRepository interface {
	// GetJob loads a job with its embedded stages, or ErrNotFound
	GetJob(ctx context.Context, id string) (domain.Job, error)

	// CreateJob persists a new job, assigning an ID when empty
	CreateJob(ctx context.Context, job domain.Job) (domain.Job, error)

	// UpdateStages replaces the job's embedded stage list
	UpdateStages(ctx context.Context, jobID string, stages []domain.Stage) error
}

// ApplicationRepository queries the flat applications collection
type ApplicationRepository interface {
	// ListApplications returns applications of a job with the given status
	ListApplications(ctx context.Context, jobID, status string) ([]domain.Application, error)
}

// ImportLog keeps one record per import run
type ImportLog interface {
	RecordImport(ctx context.Context, rec domain.ImportRecord) error
}
