package repository

import (
	"context"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
)

// StageRef addresses the participant collection of one stage of one job
type StageRef struct {
	JobID   string
	StageID string
}

// ParticipantPatch carries a partial participant update.
// Empty fields leave the stored value untouched.
type ParticipantPatch struct {
	Email  string
	Name   string
	Status domain.Status
	Source string
}

// OpKind distinguishes batch operations
type OpKind int

const (
	OpUpsert OpKind = iota
	OpDelete
)

// ParticipantOp is one write inside an atomic batch
type ParticipantOp struct {
	Scope StageRef
	Kind  OpKind
	Key   string
	Patch ParticipantPatch
}

// UpsertOp builds a merge-upsert operation
func UpsertOp(scope StageRef, key string, patch ParticipantPatch) ParticipantOp {
	return ParticipantOp{Scope: scope, Kind: OpUpsert, Key: key, Patch: patch}
}

// DeleteOp builds an idempotent delete operation
func DeleteOp(scope StageRef, key string) ParticipantOp {
	return ParticipantOp{Scope: scope, Kind: OpDelete, Key: key}
}

// ParticipantRepository stores per-stage participant records.
//
// Upserts merge: fields absent from the patch keep their stored values. A newly
// created record gets a server-assigned addedAt and status pending unless the
// patch sets one. Concurrent writers to the same record race; last write wins.
type ParticipantRepository interface {
	GetParticipant(ctx context.Context, scope StageRef, key string) (domain.Participant, error)

	// ListParticipants returns every record in the scope, newest addedAt first
	ListParticipants(ctx context.Context, scope StageRef) ([]domain.Participant, error)

	ListParticipantsByStatus(ctx context.Context, scope StageRef, status domain.Status) ([]domain.Participant, error)

	UpsertParticipant(ctx context.Context, scope StageRef, key string, patch ParticipantPatch) error

	// RemoveParticipant deletes the record; removing an absent key is not an error
	RemoveParticipant(ctx context.Context, scope StageRef, key string) error

	// ApplyBatch commits ops as one atomic unit. len(ops) must not exceed MaxBatchOps.
	ApplyBatch(ctx context.Context, ops []ParticipantOp) error

	MaxBatchOps() int
}
