// Package memory is an in-process implementation of the repository contracts.
// It backs the memory store backend and the engine tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
)

// DefaultMaxBatchOps caps the ops accepted by one ApplyBatch call
const DefaultMaxBatchOps = 1000

// Write identifies a mutating call for fault injection
type Write struct {
	Method string
	Scope  repository.StageRef
	Key    string
}

// Fault is consulted before every write; a non-nil error fails it
type Fault func(w Write) error

type stageKey struct {
	job   string
	stage string
}

// Store holds jobs, applications and stage participants in maps
type Store struct {
	mu           sync.Mutex
	jobs         map[string]domain.Job
	applications map[string][]domain.Application
	participants map[stageKey]map[string]domain.Participant
	imports      []domain.ImportRecord

	maxBatchOps int
	clock       func() time.Time
	tick        time.Duration

	fault       Fault
	batchCalls  int
	failBatchAt map[int]error
}

// Option configures Store
type Option func(*Store)

// WithMaxBatchOps overrides the per-batch op cap
func WithMaxBatchOps(n int) Option {
	return func(s *Store) {
		s.maxBatchOps = n
	}
}

// WithClock sets the time source for addedAt and updatedAt
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New creates an empty store
func New(opts ...Option) *Store {
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	s := &Store{
		jobs:         make(map[string]domain.Job),
		applications: make(map[string][]domain.Application),
		participants: make(map[stageKey]map[string]domain.Participant),
		maxBatchOps:  DefaultMaxBatchOps,
		failBatchAt:  make(map[int]error),
	}
	// default clock advances one millisecond per call so addedAt order is stable
	s.clock = func() time.Time {
		s.tick += time.Millisecond
		return base.Add(s.tick)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutJob stores job as is, replacing any job with the same ID
func (s *Store) PutJob(job domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
}

// AddApplication appends an application to its job
func (s *Store) AddApplication(app domain.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	s.applications[app.JobID] = append(s.applications[app.JobID], app)
}

// SetFault installs f for every later write. Pass nil to clear it.
func (s *Store) SetFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// FailBatch makes the nth ApplyBatch call from now (1-based) fail with err
func (s *Store) FailBatch(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failBatchAt[s.batchCalls+n] = err
}

// BatchCalls reports how many times ApplyBatch was called
func (s *Store) BatchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchCalls
}

// GetJob implements repository.JobRepository
func (s *Store) GetJob(_ context.Context, id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, repository.ErrNotFound
	}
	return cloneJob(job), nil
}

// CreateJob implements repository.JobRepository
func (s *Store) CreateJob(_ context.Context, job domain.Job) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, exists := s.jobs[job.ID]; exists {
		return domain.Job{}, fmt.Errorf("memory: job %q already exists", job.ID)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.clock()
	}
	s.jobs[job.ID] = cloneJob(job)
	return cloneJob(job), nil
}

// UpdateStages implements repository.JobRepository
func (s *Store) UpdateStages(_ context.Context, jobID string, stages []domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(Write{Method: "UpdateStages", Scope: repository.StageRef{JobID: jobID}}); err != nil {
		return err
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	job.Stages = append([]domain.Stage(nil), stages...)
	s.jobs[jobID] = job
	return nil
}

// ListApplications implements repository.ApplicationRepository
func (s *Store) ListApplications(_ context.Context, jobID, status string) ([]domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Application
	for _, app := range s.applications[jobID] {
		if app.Status == status {
			out = append(out, app)
		}
	}
	return out, nil
}

// GetParticipant implements repository.ParticipantRepository
func (s *Store) GetParticipant(_ context.Context, scope repository.StageRef, key string) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[toStageKey(scope)][key]
	if !ok {
		return domain.Participant{}, repository.ErrNotFound
	}
	return p, nil
}

// ListParticipants implements repository.ParticipantRepository
func (s *Store) ListParticipants(_ context.Context, scope repository.StageRef) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(scope, func(domain.Participant) bool { return true }), nil
}

// ListParticipantsByStatus implements repository.ParticipantRepository
func (s *Store) ListParticipantsByStatus(_ context.Context, scope repository.StageRef, status domain.Status) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(scope, func(p domain.Participant) bool { return p.Status == status }), nil
}

// UpsertParticipant implements repository.ParticipantRepository
func (s *Store) UpsertParticipant(_ context.Context, scope repository.StageRef, key string, patch repository.ParticipantPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(Write{Method: "UpsertParticipant", Scope: scope, Key: key}); err != nil {
		return err
	}
	s.upsert(scope, key, patch)
	return nil
}

// RemoveParticipant implements repository.ParticipantRepository
func (s *Store) RemoveParticipant(_ context.Context, scope repository.StageRef, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(Write{Method: "RemoveParticipant", Scope: scope, Key: key}); err != nil {
		return err
	}
	delete(s.participants[toStageKey(scope)], key)
	return nil
}

// ApplyBatch implements repository.ParticipantRepository. Every op is checked
// before any is applied, so a failing batch leaves no trace.
func (s *Store) ApplyBatch(_ context.Context, ops []repository.ParticipantOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batchCalls++
	if err, ok := s.failBatchAt[s.batchCalls]; ok {
		delete(s.failBatchAt, s.batchCalls)
		return err
	}
	if len(ops) > s.maxBatchOps {
		return fmt.Errorf("memory: batch of %d ops exceeds limit %d", len(ops), s.maxBatchOps)
	}
	for _, op := range ops {
		if err := s.check(Write{Method: "ApplyBatch", Scope: op.Scope, Key: op.Key}); err != nil {
			return err
		}
	}

	for _, op := range ops {
		switch op.Kind {
		case repository.OpUpsert:
			s.upsert(op.Scope, op.Key, op.Patch)
		case repository.OpDelete:
			delete(s.participants[toStageKey(op.Scope)], op.Key)
		}
	}
	return nil
}

// RecordImport implements repository.ImportLog
func (s *Store) RecordImport(_ context.Context, rec domain.ImportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock()
	}
	s.imports = append(s.imports, rec)
	return nil
}

// Imports returns every recorded import run in insertion order
func (s *Store) Imports() []domain.ImportRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ImportRecord(nil), s.imports...)
}

// MaxBatchOps implements repository.ParticipantRepository
func (s *Store) MaxBatchOps() int {
	return s.maxBatchOps
}

func (s *Store) check(w Write) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(w)
}

func (s *Store) upsert(scope repository.StageRef, key string, patch repository.ParticipantPatch) {
	sk := toStageKey(scope)
	records, ok := s.participants[sk]
	if !ok {
		records = make(map[string]domain.Participant)
		s.participants[sk] = records
	}

	now := s.clock()
	p, exists := records[key]
	if !exists {
		p = domain.Participant{Key: key, Status: domain.StatusPending, AddedAt: now}
	}
	if patch.Email != "" {
		p.Email = patch.Email
	}
	if patch.Name != "" {
		p.Name = patch.Name
	}
	if patch.Status != "" {
		p.Status = patch.Status
	}
	if patch.Source != "" {
		p.Source = patch.Source
	}
	p.UpdatedAt = now
	records[key] = p
}

func (s *Store) list(scope repository.StageRef, keep func(domain.Participant) bool) []domain.Participant {
	records := s.participants[toStageKey(scope)]
	out := make([]domain.Participant, 0, len(records))
	for _, p := range records {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.After(out[j].AddedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func toStageKey(ref repository.StageRef) stageKey {
	return stageKey{job: ref.JobID, stage: ref.StageID}
}

func cloneJob(job domain.Job) domain.Job {
	job.Stages = append([]domain.Stage(nil), job.Stages...)
	return job
}

var (
	_ repository.JobRepository         = (*Store)(nil)
	_ repository.ApplicationRepository = (*Store)(nil)
	_ repository.ParticipantRepository = (*Store)(nil)
	_ repository.ImportLog             = (*Store)(nil)
)
