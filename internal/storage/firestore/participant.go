package firestore

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
)

var _ repository.ParticipantRepository = (*ParticipantRepository)(nil)

// ParticipantRepository stores stage participants as subcollection documents
type ParticipantRepository struct {
	client *firestore.Client
	jobs   string
}

// NewParticipantRepository creates a ParticipantRepository
func NewParticipantRepository(client *firestore.Client, cols Collections) *ParticipantRepository {
	return &ParticipantRepository{client: client, jobs: cols.withDefaults().Jobs}
}

func (r *ParticipantRepository) doc(scope repository.StageRef, key string) *firestore.DocumentRef {
	return participantsOf(r.client, r.jobs, scope).Doc(key)
}

// GetParticipant loads one participant record
func (r *ParticipantRepository) GetParticipant(ctx context.Context, scope repository.StageRef, key string) (domain.Participant, error) {
	snap, err := r.doc(scope, key).Get(ctx)
	if err != nil {
		return domain.Participant{}, mapErr(err)
	}
	return decodeParticipant(snap)
}

// ListParticipants returns the stage's records, newest first
func (r *ParticipantRepository) ListParticipants(ctx context.Context, scope repository.StageRef) ([]domain.Participant, error) {
	q := participantsOf(r.client, r.jobs, scope).OrderBy("addedAt", firestore.Desc)
	return collect(ctx, q)
}

// ListParticipantsByStatus filters on status. Ordering is applied client side
// so the query needs no composite index.
func (r *ParticipantRepository) ListParticipantsByStatus(ctx context.Context, scope repository.StageRef, status domain.Status) ([]domain.Participant, error) {
	q := participantsOf(r.client, r.jobs, scope).Where("status", "==", string(status))
	out, err := collect(ctx, q)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AddedAt.After(out[j].AddedAt)
	})
	return out, nil
}

// UpsertParticipant merges patch into the record inside a transaction so a new
// document gets addedAt and a default status exactly once.
func (r *ParticipantRepository) UpsertParticipant(ctx context.Context, scope repository.StageRef, key string, patch repository.ParticipantPatch) error {
	ref := r.doc(scope, key)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		if err != nil && !isNotFound(err) {
			return err
		}
		return tx.Set(ref, patchFields(patch, err != nil), firestore.MergeAll)
	})
}

// RemoveParticipant deletes the record; Firestore deletes of absent documents succeed
func (r *ParticipantRepository) RemoveParticipant(ctx context.Context, scope repository.StageRef, key string) error {
	_, err := r.doc(scope, key).Delete(ctx)
	return err
}

// ApplyBatch commits ops in one transaction. All existence reads happen before
// the first write, as Firestore transactions require.
func (r *ParticipantRepository) ApplyBatch(ctx context.Context, ops []repository.ParticipantOp) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > MaxBatchOps {
		return fmt.Errorf("firestore: batch of %d ops exceeds limit %d", len(ops), MaxBatchOps)
	}

	refs := make([]*firestore.DocumentRef, len(ops))
	var reads []*firestore.DocumentRef
	seen := make(map[string]struct{})
	for i, op := range ops {
		refs[i] = r.doc(op.Scope, op.Key)
		if op.Kind != repository.OpUpsert {
			continue
		}
		if _, dup := seen[refs[i].Path]; dup {
			continue
		}
		seen[refs[i].Path] = struct{}{}
		reads = append(reads, refs[i])
	}

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		exists := make(map[string]bool, len(reads))
		if len(reads) > 0 {
			snaps, err := tx.GetAll(reads)
			if err != nil {
				return err
			}
			for _, snap := range snaps {
				exists[snap.Ref.Path] = snap.Exists()
			}
		}

		for i, op := range ops {
			var err error
			switch op.Kind {
			case repository.OpUpsert:
				err = tx.Set(refs[i], patchFields(op.Patch, !exists[refs[i].Path]), firestore.MergeAll)
				exists[refs[i].Path] = true
			case repository.OpDelete:
				err = tx.Delete(refs[i])
				exists[refs[i].Path] = false
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// MaxBatchOps reports the transaction write cap
func (r *ParticipantRepository) MaxBatchOps() int {
	return MaxBatchOps
}

func patchFields(patch repository.ParticipantPatch, create bool) map[string]interface{} {
	fields := map[string]interface{}{
		"updatedAt": firestore.ServerTimestamp,
	}
	if patch.Email != "" {
		fields["email"] = patch.Email
	}
	if patch.Name != "" {
		fields["name"] = patch.Name
	}
	if patch.Status != "" {
		fields["status"] = string(patch.Status)
	}
	if patch.Source != "" {
		fields["source"] = patch.Source
	}
	if create {
		fields["addedAt"] = firestore.ServerTimestamp
		if patch.Status == "" {
			fields["status"] = string(domain.StatusPending)
		}
	}
	return fields
}

func collect(ctx context.Context, q firestore.Query) ([]domain.Participant, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []domain.Participant
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore: list participants: %w", err)
		}
		p, err := decodeParticipant(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeParticipant(snap *firestore.DocumentSnapshot) (domain.Participant, error) {
	var p domain.Participant
	if err := snap.DataTo(&p); err != nil {
		return domain.Participant{}, fmt.Errorf("firestore: decode participant %s: %w", snap.Ref.ID, err)
	}
	p.Key = snap.Ref.ID
	return p, nil
}
