package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
)

// Config holds Firestore connection configuration
type Config struct {
	ProjectID string

	// DatabaseID selects a named database; empty means "(default)"
	DatabaseID string
}

// NewClient creates a Firestore client shared by every repository.
// FIRESTORE_EMULATOR_HOST is honoured by the underlying SDK.
func NewClient(ctx context.Context, cfg Config) (*firestore.Client, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	var (
		client *firestore.Client
		err    error
	)
	if cfg.DatabaseID == "" {
		client, err = firestore.NewClient(ctx, cfg.ProjectID)
	} else {
		client, err = firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.DatabaseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}
