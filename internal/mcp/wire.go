//go:build wireinject
// +build wireinject

package mcp

import (
	"context"

	"github.com/google/wire"

	"github.com/honeycarbs/placement-pipeline/internal/config"
	"github.com/honeycarbs/placement-pipeline/internal/domain/pipeline"
	"github.com/honeycarbs/placement-pipeline/pkg/logging"
)

// InitializeResources creates Resources with all resources wired up
func InitializeResources(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Resources, func(), error) {
	wire.Build(
		// Storage backend selected by config
		provideStores,
		provideJobRepository,
		provideApplicationRepository,
		provideParticipantRepository,

		// Services
		provideBatchSize,
		pipeline.NewServiceWithDeps,

		// Google Sheets, optional
		provideSheetsClient,

		newResources,
	)

	return nil, nil, nil
}
