package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
	"github.com/honeycarbs/placement-pipeline/pkg/logging"
)

const (
	// DefaultBatchSize is the number of participant rows committed per batch
	DefaultBatchSize = 400

	defaultTimelineConcurrency = 4
)

// Option configures Service
type Option func(*config)

type config struct {
	jobs         repository.JobRepository
	applications repository.ApplicationRepository
	participants repository.ParticipantRepository
	logger       *logging.Logger
	batchSize    int
	concurrency  int
}

// WithJobRepository sets the job store
func WithJobRepository(repo repository.JobRepository) Option {
	return func(c *config) {
		c.jobs = repo
	}
}

// WithApplicationRepository sets the application store
func WithApplicationRepository(repo repository.ApplicationRepository) Option {
	return func(c *config) {
		c.applications = repo
	}
}

// WithParticipantRepository sets the stage participant store
func WithParticipantRepository(repo repository.ParticipantRepository) Option {
	return func(c *config) {
		c.participants = repo
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithBatchSize sets how many rows go into one atomic batch
func WithBatchSize(n int) Option {
	return func(c *config) {
		c.batchSize = n
	}
}

// WithTimelineConcurrency bounds parallel stage reads in Timeline
func WithTimelineConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

// Service is the stage-progression engine: seeding, status transitions with
// one-hop propagation, bulk import and publish gating.
//
// Writes to the same participant from concurrent callers are not guarded by
// any concurrency token; the last write wins.
type Service struct {
	jobs         repository.JobRepository
	applications repository.ApplicationRepository
	participants repository.ParticipantRepository
	logger       *logging.Logger
	batchSize    int
	concurrency  int
}

// NewService builds Service from options
func NewService(opts ...Option) (*Service, error) {
	cfg := &config{
		batchSize:   DefaultBatchSize,
		concurrency: defaultTimelineConcurrency,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.jobs == nil {
		return nil, fmt.Errorf("pipeline.Service: job repository is required")
	}
	if cfg.applications == nil {
		return nil, fmt.Errorf("pipeline.Service: application repository is required")
	}
	if cfg.participants == nil {
		return nil, fmt.Errorf("pipeline.Service: participant repository is required")
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = DefaultBatchSize
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = defaultTimelineConcurrency
	}
	if cfg.logger == nil {
		cfg.logger = logging.Nop()
	}

	return &Service{
		jobs:         cfg.jobs,
		applications: cfg.applications,
		participants: cfg.participants,
		logger:       cfg.logger.Named("pipeline"),
		batchSize:    cfg.batchSize,
		concurrency:  cfg.concurrency,
	}, nil
}

// NewServiceWithDeps creates a Service with direct dependencies (Wire-compatible)
func NewServiceWithDeps(
	jobs repository.JobRepository,
	applications repository.ApplicationRepository,
	participants repository.ParticipantRepository,
	logger *logging.Logger,
	batchSize BatchSize,
) (*Service, error) {
	return NewService(
		WithJobRepository(jobs),
		WithApplicationRepository(applications),
		WithParticipantRepository(participants),
		WithLogger(logger),
		WithBatchSize(int(batchSize)),
	)
}

// BatchSize is the configured import batch size, typed for injection
type BatchSize int

// stageContext is a job with one of its stages resolved in sorted order
type stageContext struct {
	job    domain.Job
	stages []domain.Stage
	index  int
}

func (c stageContext) stage() domain.Stage {
	return c.stages[c.index]
}

func (c stageContext) ref() repository.StageRef {
	return repository.StageRef{JobID: c.job.ID, StageID: c.stage().ID}
}

func (c stageContext) next() (domain.Stage, bool) {
	if c.index+1 >= len(c.stages) {
		return domain.Stage{}, false
	}
	return c.stages[c.index+1], true
}

func (c stageContext) prev() (domain.Stage, bool) {
	if c.index <= 0 {
		return domain.Stage{}, false
	}
	return c.stages[c.index-1], true
}

func (c stageContext) nextRef() (repository.StageRef, bool) {
	next, ok := c.next()
	if !ok {
		return repository.StageRef{}, false
	}
	return repository.StageRef{JobID: c.job.ID, StageID: next.ID}, true
}

func (s *Service) loadJob(ctx context.Context, jobID string) (domain.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Job{}, &NotFoundError{Kind: "job", ID: jobID}
	}
	if err != nil {
		return domain.Job{}, storeErr("load job", err)
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return job, nil
}

// resolve loads the job and locates stageID by explicit order
func (s *Service) resolve(ctx context.Context, jobID, stageID string) (stageContext, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return stageContext{}, err
	}

	stages := job.SortedStages()
	for i, st := range stages {
		if st.ID == stageID {
			return stageContext{job: job, stages: stages, index: i}, nil
		}
	}
	return stageContext{}, &NotFoundError{Kind: "stage", ID: stageID}
}

func authorizeStaff(actor domain.Actor, job domain.Job) error {
	switch actor.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleRecruiter:
		if actor.ID != "" && actor.ID == job.RecruiterID {
			return nil
		}
		return fmt.Errorf("%w: recruiter %q does not own job %q", ErrForbidden, actor.ID, job.ID)
	default:
		return fmt.Errorf("%w: role %q cannot manage pipelines", ErrForbidden, actor.Role)
	}
}

func authorizeAdmin(actor domain.Actor) error {
	if actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: only admins may change stage visibility", ErrForbidden)
	}
	return nil
}

// batchOutcome tallies a chunked commit
// opLimit is the most ops one ApplyBatch call may carry
func (s *Service) opLimit() int {
	if limit := s.participants.MaxBatchOps(); limit > 0 {
		return limit
	}
	return s.batchSize
}

type batchOutcome struct {
	groupsCommitted  int
	batchesCommitted int
	batchesFailed    int
}

// commitGroups writes groups of ops in batches of at most batchSize groups and
// MaxBatchOps ops. A group is never split across batches. The first failing
// batch stops the run; earlier batches stay committed.
func (s *Service) commitGroups(ctx context.Context, groups [][]repository.ParticipantOp) (batchOutcome, error) {
	var out batchOutcome
	limit := s.opLimit()

	var (
		batch   []repository.ParticipantOp
		pending int
	)
	flush := func() error {
		if pending == 0 {
			return nil
		}
		if err := s.participants.ApplyBatch(ctx, batch); err != nil {
			out.batchesFailed++
			return storeErr(fmt.Sprintf("commit batch %d", out.batchesCommitted+1), err)
		}
		out.batchesCommitted++
		out.groupsCommitted += pending
		batch = nil
		pending = 0
		return nil
	}

	for _, g := range groups {
		if pending == s.batchSize || (pending > 0 && len(batch)+len(g) > limit) {
			if err := flush(); err != nil {
				return out, err
			}
		}
		batch = append(batch, g...)
		pending++
	}
	if err := flush(); err != nil {
		return out, err
	}
	return out, nil
}
