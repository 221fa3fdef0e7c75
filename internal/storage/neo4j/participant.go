package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/repository"

	pkgneo4j "github.com/honeycarbs/placement-pipeline/pkg/neo4j"
)

// maxBatchOps bounds the UNWIND payload of one write transaction
const maxBatchOps = 1000

// Ensure ParticipantRepository implements repository.ParticipantRepository
var _ repository.ParticipantRepository = (*ParticipantRepository)(nil)

// ParticipantRepository keeps (:Participant) nodes keyed by job, stage and
// participant key, linked to their (:Stage) with IN_STAGE
type ParticipantRepository struct {
	client *pkgneo4j.Client
}

// NewParticipantRepository creates a ParticipantRepository with a Neo4j client
func NewParticipantRepository(client *pkgneo4j.Client) *ParticipantRepository {
	return &ParticipantRepository{
		client: client,
	}
}

const upsertParticipants = `
	UNWIND $ops AS op
	MERGE (p:Participant {jobId: op.jobId, stageId: op.stageId, key: op.key})
	ON CREATE SET p.addedAt = datetime(),
	              p.status = coalesce(op.status, 'pending')
	SET p.updatedAt = datetime(),
	    p.email = coalesce(op.email, p.email),
	    p.name = coalesce(op.name, p.name),
	    p.status = coalesce(op.status, p.status),
	    p.source = coalesce(op.source, p.source)
	WITH p, op
	OPTIONAL MATCH (:Job {id: op.jobId})-[:HAS_STAGE]->(s:Stage {id: op.stageId})
	FOREACH (_ IN CASE WHEN s IS NULL THEN [] ELSE [1] END |
		MERGE (p)-[:IN_STAGE]->(s)
	)
`

const deleteParticipants = `
	UNWIND $ops AS op
	MATCH (p:Participant {jobId: op.jobId, stageId: op.stageId, key: op.key})
	DETACH DELETE p
`

// GetParticipant loads one participant
func (r *ParticipantRepository) GetParticipant(ctx context.Context, scope repository.StageRef, key string) (domain.Participant, error) {
	list, err := r.query(ctx, `
		MATCH (p:Participant {jobId: $jobId, stageId: $stageId, key: $key})
		RETURN p
	`, map[string]interface{}{"jobId": scope.JobID, "stageId": scope.StageID, "key": key})
	if err != nil {
		return domain.Participant{}, err
	}
	if len(list) == 0 {
		return domain.Participant{}, repository.ErrNotFound
	}
	return list[0], nil
}

// ListParticipants returns the stage's participants, newest first
func (r *ParticipantRepository) ListParticipants(ctx context.Context, scope repository.StageRef) ([]domain.Participant, error) {
	return r.query(ctx, `
		MATCH (p:Participant {jobId: $jobId, stageId: $stageId})
		RETURN p
		ORDER BY p.addedAt DESC
	`, map[string]interface{}{"jobId": scope.JobID, "stageId": scope.StageID})
}

// ListParticipantsByStatus returns participants with the given status
func (r *ParticipantRepository) ListParticipantsByStatus(ctx context.Context, scope repository.StageRef, status domain.Status) ([]domain.Participant, error) {
	return r.query(ctx, `
		MATCH (p:Participant {jobId: $jobId, stageId: $stageId, status: $status})
		RETURN p
		ORDER BY p.addedAt DESC
	`, map[string]interface{}{"jobId": scope.JobID, "stageId": scope.StageID, "status": string(status)})
}

// UpsertParticipant merges patch into a single participant
func (r *ParticipantRepository) UpsertParticipant(ctx context.Context, scope repository.StageRef, key string, patch repository.ParticipantPatch) error {
	return r.ApplyBatch(ctx, []repository.ParticipantOp{repository.UpsertOp(scope, key, patch)})
}

// RemoveParticipant deletes a participant; a missing node matches nothing
func (r *ParticipantRepository) RemoveParticipant(ctx context.Context, scope repository.StageRef, key string) error {
	return r.ApplyBatch(ctx, []repository.ParticipantOp{repository.DeleteOp(scope, key)})
}

// ApplyBatch runs ops in one write transaction. Consecutive ops of the same
// kind share one UNWIND statement; statement order follows op order.
func (r *ParticipantRepository) ApplyBatch(ctx context.Context, ops []repository.ParticipantOp) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > maxBatchOps {
		return fmt.Errorf("batch of %d ops exceeds limit %d", len(ops), maxBatchOps)
	}

	session := r.client.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for start := 0; start < len(ops); {
			kind := ops[start].Kind
			end := start
			for end < len(ops) && ops[end].Kind == kind {
				end++
			}

			query := upsertParticipants
			if kind == repository.OpDelete {
				query = deleteParticipants
			}
			result, err := tx.Run(ctx, query, map[string]interface{}{"ops": opsData(ops[start:end])})
			if err != nil {
				return nil, fmt.Errorf("failed to execute participant batch: %w", err)
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
			start = end
		}
		return nil, nil
	})
	return err
}

// MaxBatchOps reports the per-transaction op cap
func (r *ParticipantRepository) MaxBatchOps() int {
	return maxBatchOps
}

func (r *ParticipantRepository) query(ctx context.Context, query string, params map[string]interface{}) ([]domain.Participant, error) {
	session := r.client.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}

	records := out.([]*neo4j.Record)
	list := make([]domain.Participant, 0, len(records))
	for _, record := range records {
		val, _ := record.Get("p")
		node, ok := val.(neo4j.Node)
		if !ok {
			continue
		}
		list = append(list, domain.Participant{
			Key:       stringProp(node.Props, "key"),
			Email:     stringProp(node.Props, "email"),
			Name:      stringProp(node.Props, "name"),
			Status:    domain.Status(stringProp(node.Props, "status")),
			Source:    stringProp(node.Props, "source"),
			AddedAt:   timeProp(node.Props, "addedAt"),
			UpdatedAt: timeProp(node.Props, "updatedAt"),
		})
	}
	return list, nil
}

func opsData(ops []repository.ParticipantOp) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(ops))
	for _, op := range ops {
		out = append(out, map[string]interface{}{
			"jobId":   op.Scope.JobID,
			"stageId": op.Scope.StageID,
			"key":     op.Key,
			"email":   nullable(op.Patch.Email),
			"name":    nullable(op.Patch.Name),
			"status":  nullable(string(op.Patch.Status)),
			"source":  nullable(op.Patch.Source),
		})
	}
	return out
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
