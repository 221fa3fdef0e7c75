// Package firestore implements the repository contracts on Cloud Firestore.
//
// Layout:
//
//	jobs/{jobId}                                        job with embedded stages
//	jobs/{jobId}/stages/{stageId}/participants/{key}    stage participants
//	applications/{id}                                   flat, queried by jobId and status
//	stageImports/{runId}                                import audit records
package firestore

import (
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/honeycarbs/placement-pipeline/internal/repository"
)

// MaxBatchOps is the write cap of a single Firestore transaction
const MaxBatchOps = 500

// Collections names the top-level collections
type Collections struct {
	Jobs         string
	Applications string
	Imports      string
}

// DefaultCollections matches the portal's existing data
func DefaultCollections() Collections {
	return Collections{
		Jobs:         "jobs",
		Applications: "applications",
		Imports:      "stageImports",
	}
}

func (c Collections) withDefaults() Collections {
	d := DefaultCollections()
	if c.Jobs == "" {
		c.Jobs = d.Jobs
	}
	if c.Applications == "" {
		c.Applications = d.Applications
	}
	if c.Imports == "" {
		c.Imports = d.Imports
	}
	return c
}

func participantsOf(client *firestore.Client, jobs string, scope repository.StageRef) *firestore.CollectionRef {
	return client.Collection(jobs).Doc(scope.JobID).
		Collection("stages").Doc(scope.StageID).
		Collection("participants")
}

// mapErr turns a missing document into repository.ErrNotFound
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return repository.ErrNotFound
	}
	return err
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound || errors.Is(err, repository.ErrNotFound)
}
