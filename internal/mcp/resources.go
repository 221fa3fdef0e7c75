package mcp

import (
	"context"
	"fmt"

	"github.com/honeycarbs/placement-pipeline/internal/config"
	"github.com/honeycarbs/placement-pipeline/internal/domain/pipeline"
	"github.com/honeycarbs/placement-pipeline/internal/mcp/tools"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
	fsstore "github.com/honeycarbs/placement-pipeline/internal/storage/firestore"
	"github.com/honeycarbs/placement-pipeline/internal/storage/memory"
	n4jstore "github.com/honeycarbs/placement-pipeline/internal/storage/neo4j"
	pkgfirestore "github.com/honeycarbs/placement-pipeline/pkg/firestore"
	"github.com/honeycarbs/placement-pipeline/pkg/logging"
	n4j "github.com/honeycarbs/placement-pipeline/pkg/neo4j"
	sheetsclient "github.com/honeycarbs/placement-pipeline/pkg/sheets"
)

// Resources holds everything the tool registry hands to tools
type Resources struct {
	Pipeline tools.PipelineService
	Rows     tools.RowSource
	Sheets   tools.SheetsWriter
}

// stores groups the repositories of one backend
type stores struct {
	jobs         repository.JobRepository
	applications repository.ApplicationRepository
	participants repository.ParticipantRepository
}

// provideStores opens the configured backend. The returned cleanup closes
// its client.
func provideStores(ctx context.Context, cfg config.Config, logger *logging.Logger) (stores, func(), error) {
	switch cfg.Backend {
	case config.BackendFirestore:
		client, err := pkgfirestore.NewClient(ctx, pkgfirestore.Config{
			ProjectID:  cfg.Firestore.ProjectID,
			DatabaseID: cfg.Firestore.DatabaseID,
		})
		if err != nil {
			return stores{}, nil, err
		}
		cols := fsstore.Collections{
			Jobs:         cfg.Firestore.JobsCollection,
			Applications: cfg.Firestore.ApplicationsCollection,
			Imports:      cfg.Firestore.ImportsCollection,
		}
		logger.Info("Firestore client initialized", "project", cfg.Firestore.ProjectID)
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close Firestore client", "err", err)
			}
		}
		return stores{
			jobs:         fsstore.NewJobRepository(client, cols),
			applications: fsstore.NewApplicationRepository(client, cols),
			participants: fsstore.NewParticipantRepository(client, cols),
		}, cleanup, nil

	case config.BackendNeo4j:
		client, err := n4j.NewClient(n4j.Config{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
		if err != nil {
			return stores{}, nil, err
		}
		if err := client.EnsureSchema(ctx); err != nil {
			_ = client.Close(ctx)
			return stores{}, nil, err
		}
		logger.Info("Neo4j client initialized", "uri", cfg.Neo4j.URI)
		cleanup := func() {
			if err := client.Close(context.Background()); err != nil {
				logger.Warn("failed to close Neo4j driver", "err", err)
			}
		}
		jobs := n4jstore.NewJobRepository(client)
		return stores{
			jobs:         jobs,
			applications: jobs,
			participants: n4jstore.NewParticipantRepository(client),
		}, cleanup, nil

	case config.BackendMemory:
		logger.Warn("memory backend selected; data is lost on restart")
		store := memory.New()
		return stores{jobs: store, applications: store, participants: store}, func() {}, nil

	default:
		return stores{}, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func provideJobRepository(s stores) repository.JobRepository {
	return s.jobs
}

func provideApplicationRepository(s stores) repository.ApplicationRepository {
	return s.applications
}

func provideParticipantRepository(s stores) repository.ParticipantRepository {
	return s.participants
}

func provideBatchSize(cfg config.Config) pipeline.BatchSize {
	return pipeline.BatchSize(cfg.BatchSize)
}

// newResources keeps a nil sheets client out of the tool interfaces so the
// registry can tell "not configured" apart from a usable client
func newResources(svc *pipeline.Service, client *sheetsclient.Client) *Resources {
	res := &Resources{Pipeline: svc}
	if client != nil {
		res.Rows = newSheetRowSource(client)
		res.Sheets = client
	}
	return res
}

func initializeResources(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Resources, func(), error) {
	res, cleanup, err := InitializeResources(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize resources: %w", err)
	}

	logger.Info("pipeline resources initialized",
		"backend", cfg.Backend,
		"batchSize", cfg.BatchSize,
		"sheets", res.Sheets != nil,
	)
	return res, cleanup, nil
}
