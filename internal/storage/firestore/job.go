package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
)

var (
	_ repository.JobRepository         = (*JobRepository)(nil)
	_ repository.ApplicationRepository = (*ApplicationRepository)(nil)
	_ repository.ImportLog             = (*ImportLog)(nil)
)

// JobRepository stores jobs with their embedded stage arrays
type JobRepository struct {
	client     *firestore.Client
	collection string
}

// NewJobRepository creates a JobRepository
func NewJobRepository(client *firestore.Client, cols Collections) *JobRepository {
	return &JobRepository{client: client, collection: cols.withDefaults().Jobs}
}

// GetJob loads one job
func (r *JobRepository) GetJob(ctx context.Context, id string) (domain.Job, error) {
	if id == "" {
		return domain.Job{}, repository.ErrNotFound
	}
	snap, err := r.client.Collection(r.collection).Doc(id).Get(ctx)
	if err != nil {
		return domain.Job{}, mapErr(err)
	}

	var job domain.Job
	if err := snap.DataTo(&job); err != nil {
		return domain.Job{}, fmt.Errorf("firestore: decode job %s: %w", id, err)
	}
	job.ID = snap.Ref.ID
	return job, nil
}

// CreateJob writes a new job document; createdAt is set by the server
func (r *JobRepository) CreateJob(ctx context.Context, job domain.Job) (domain.Job, error) {
	col := r.client.Collection(r.collection)
	doc := col.NewDoc()
	if job.ID != "" {
		doc = col.Doc(job.ID)
	}

	if _, err := doc.Create(ctx, job); err != nil {
		return domain.Job{}, fmt.Errorf("firestore: create job: %w", err)
	}
	job.ID = doc.ID
	return job, nil
}

// UpdateStages replaces the stages array of an existing job
func (r *JobRepository) UpdateStages(ctx context.Context, jobID string, stages []domain.Stage) error {
	_, err := r.client.Collection(r.collection).Doc(jobID).Update(ctx, []firestore.Update{
		{Path: "stages", Value: stages},
	})
	return mapErr(err)
}

// ApplicationRepository reads the flat applications collection
type ApplicationRepository struct {
	client     *firestore.Client
	collection string
}

// NewApplicationRepository creates an ApplicationRepository
func NewApplicationRepository(client *firestore.Client, cols Collections) *ApplicationRepository {
	return &ApplicationRepository{client: client, collection: cols.withDefaults().Applications}
}

// ListApplications returns applications for jobID with the given status
func (r *ApplicationRepository) ListApplications(ctx context.Context, jobID, status string) ([]domain.Application, error) {
	iter := r.client.Collection(r.collection).
		Where("jobId", "==", jobID).
		Where("status", "==", status).
		Documents(ctx)
	defer iter.Stop()

	var apps []domain.Application
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore: list applications of job %s: %w", jobID, err)
		}

		var app domain.Application
		if err := snap.DataTo(&app); err != nil {
			return nil, fmt.Errorf("firestore: decode application %s: %w", snap.Ref.ID, err)
		}
		app.ID = snap.Ref.ID
		apps = append(apps, app)
	}
	return apps, nil
}

// ImportLog writes import audit records
type ImportLog struct {
	client     *firestore.Client
	collection string
}

// NewImportLog creates an ImportLog
func NewImportLog(client *firestore.Client, cols Collections) *ImportLog {
	return &ImportLog{client: client, collection: cols.withDefaults().Imports}
}

// RecordImport stores rec under its run id
func (l *ImportLog) RecordImport(ctx context.Context, rec domain.ImportRecord) error {
	col := l.client.Collection(l.collection)
	doc := col.NewDoc()
	if rec.RunID != "" {
		doc = col.Doc(rec.RunID)
	}
	if _, err := doc.Set(ctx, rec); err != nil {
		return fmt.Errorf("firestore: record import %s: %w", doc.ID, err)
	}
	return nil
}
