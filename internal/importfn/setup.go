package importfn

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/honeycarbs/placement-pipeline/internal/config"
	"github.com/honeycarbs/placement-pipeline/internal/domain/pipeline"
	fsstore "github.com/honeycarbs/placement-pipeline/internal/storage/firestore"
	pkgfirestore "github.com/honeycarbs/placement-pipeline/pkg/firestore"
	"github.com/honeycarbs/placement-pipeline/pkg/logging"
)

// Setup builds a Function backed by Cloud Storage and Firestore. The import
// audit trail lives in Firestore, so other backends are rejected.
func Setup(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Function, func(), error) {
	if cfg.Backend != config.BackendFirestore {
		return nil, nil, fmt.Errorf("stage import requires the %s backend, got %q", config.BackendFirestore, cfg.Backend)
	}

	fsClient, err := pkgfirestore.NewClient(ctx, pkgfirestore.Config{
		ProjectID:  cfg.Firestore.ProjectID,
		DatabaseID: cfg.Firestore.DatabaseID,
	})
	if err != nil {
		return nil, nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		_ = fsClient.Close()
		return nil, nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	cleanup := func() {
		_ = storageClient.Close()
		_ = fsClient.Close()
	}

	cols := fsstore.Collections{
		Jobs:         cfg.Firestore.JobsCollection,
		Applications: cfg.Firestore.ApplicationsCollection,
		Imports:      cfg.Firestore.ImportsCollection,
	}
	svc, err := pipeline.NewService(
		pipeline.WithJobRepository(fsstore.NewJobRepository(fsClient, cols)),
		pipeline.WithApplicationRepository(fsstore.NewApplicationRepository(fsClient, cols)),
		pipeline.WithParticipantRepository(fsstore.NewParticipantRepository(fsClient, cols)),
		pipeline.WithLogger(logger),
		pipeline.WithBatchSize(cfg.BatchSize),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	fn := New(NewGCSObjects(storageClient), svc, fsstore.NewImportLog(fsClient, cols),
		WithBucket(cfg.ImportBucket),
		WithLogger(logger.Named("stage-import")),
	)
	return fn, cleanup, nil
}
