// Package importfn turns spreadsheet uploads into stage imports. It is driven
// by Cloud Storage object-finalized events.
package importfn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/domain/pipeline"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
	"github.com/honeycarbs/placement-pipeline/internal/spreadsheet"
	"github.com/honeycarbs/placement-pipeline/pkg/logging"
)

const (
	// ObjectPrefix is the folder uploads must be placed under:
	// imports/<jobId>/<stageId>/<file>
	ObjectPrefix = "imports/"

	maxObjectBytes = 32 << 20
)

// SystemActor is the identity uploads are imported as
var SystemActor = domain.Actor{ID: "system:stage-import", Role: domain.RoleAdmin}

// GCSEvent is the payload of a Cloud Storage object event
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// ObjectReader opens uploaded objects
type ObjectReader interface {
	Open(ctx context.Context, bucket, name string) (io.ReadCloser, error)
}

// Importer is the engine entry point an upload drives
type Importer interface {
	ImportBatch(ctx context.Context, actor domain.Actor, jobID, stageID string, rows []domain.ParticipantRow) (pipeline.ImportResult, error)
}

// Function handles one upload event at a time
type Function struct {
	objects  ObjectReader
	importer Importer
	audit    repository.ImportLog
	bucket   string
	maxBytes int64
	logger   *logging.Logger
}

// Option configures Function
type Option func(*Function)

// WithBucket restricts processing to events from one bucket
func WithBucket(bucket string) Option {
	return func(f *Function) {
		f.bucket = bucket
	}
}

// WithMaxObjectBytes caps the size of an upload; larger objects are rejected
func WithMaxObjectBytes(n int64) Option {
	return func(f *Function) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(f *Function) {
		f.logger = logger
	}
}

// New builds a Function
func New(objects ObjectReader, importer Importer, audit repository.ImportLog, opts ...Option) *Function {
	f := &Function{objects: objects, importer: importer, audit: audit, maxBytes: maxObjectBytes}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logging.Nop()
	}
	return f
}

// ParseObjectName splits imports/<jobId>/<stageId>/<file>
func ParseObjectName(name string) (jobID, stageID, file string, ok bool) {
	rest, found := strings.CutPrefix(name, ObjectPrefix)
	if !found {
		return "", "", "", false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" || strings.HasSuffix(parts[2], "/") {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// Process imports the uploaded object. Objects outside the imports folder or
// from another bucket are ignored. Problems a retry cannot fix are recorded
// and swallowed; storage failures are recorded and returned so the event is
// redelivered.
func (f *Function) Process(ctx context.Context, e GCSEvent) error {
	log := f.logger.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	if f.bucket != "" && e.Bucket != f.bucket {
		log.Debug("ignoring object from unexpected bucket", "want", f.bucket)
		return nil
	}
	jobID, stageID, file, ok := ParseObjectName(e.Name)
	if !ok {
		log.Debug("ignoring object outside the imports folder")
		return nil
	}

	rec := domain.ImportRecord{
		JobID:   jobID,
		StageID: stageID,
		Object:  e.Bucket + "/" + e.Name,
	}

	rows, err := f.read(ctx, e, file)
	if err != nil {
		log.Warn("upload could not be parsed", "err", err)
		rec.Status = domain.ImportFailed
		rec.Error = err.Error()
		return f.finish(ctx, log, rec, err)
	}
	log.Info("processing upload", "jobId", jobID, "stageId", stageID, "rows", len(rows))

	result, err := f.importer.ImportBatch(ctx, SystemActor, jobID, stageID, rows)
	rec.RunID = result.RunID
	rec.Attempted = result.Attempted
	rec.Accepted = result.Accepted
	rec.Rejected = result.Rejected
	rec.Duplicates = result.Duplicates
	rec.BatchesFailed = result.BatchesFailed
	switch {
	case err == nil:
		rec.Status = domain.ImportSucceeded
	case result.Accepted > 0:
		rec.Status = domain.ImportPartial
		rec.Error = err.Error()
	default:
		rec.Status = domain.ImportFailed
		rec.Error = err.Error()
	}

	return f.finish(ctx, log, rec, err)
}

func (f *Function) read(ctx context.Context, e GCSEvent, file string) ([]domain.ParticipantRow, error) {
	r, err := f.objects.Open(ctx, e.Bucket, e.Name)
	if err != nil {
		return nil, &retryableError{fmt.Errorf("open object: %w", err)}
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, &retryableError{fmt.Errorf("read object: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("object exceeds %d bytes", f.maxBytes)
	}
	return spreadsheet.Parse(path.Base(file), bytes.NewReader(data))
}

// finish writes the audit record and decides whether the event is retried
func (f *Function) finish(ctx context.Context, log *logging.Logger, rec domain.ImportRecord, cause error) error {
	if rec.RunID == "" {
		rec.RunID = uuid.NewString()
	}
	if err := f.audit.RecordImport(ctx, rec); err != nil {
		log.Error("failed to record import", "runId", rec.RunID, "err", err)
		if cause == nil {
			return fmt.Errorf("record import: %w", err)
		}
	}

	if cause == nil {
		log.Info("upload imported", "runId", rec.RunID, "accepted", rec.Accepted, "rejected", rec.Rejected)
		return nil
	}
	if retryable(cause) {
		log.Error("upload import failed; event will be retried", "runId", rec.RunID, "status", rec.Status, "err", cause)
		return cause
	}
	log.Warn("upload import rejected", "runId", rec.RunID, "status", rec.Status, "err", cause)
	return nil
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// retryable reports failures of storage collaborators; bad input, unknown
// stages and permission problems will fail the same way again
func retryable(err error) bool {
	var (
		re *retryableError
		se *pipeline.StoreError
	)
	return errors.As(err, &re) || errors.As(err, &se)
}
