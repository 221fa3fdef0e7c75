package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/repository"

	pkgneo4j "github.com/honeycarbs/placement-pipeline/pkg/neo4j"
)

// Ensure JobRepository implements the job and application contracts
var (
	_ repository.JobRepository         = (*JobRepository)(nil)
	_ repository.ApplicationRepository = (*JobRepository)(nil)
)

// JobRepository stores (:Job)-[:HAS_STAGE]->(:Stage) graphs and reads
// (:Application)-[:APPLIED_TO]->(:Job) edges
type JobRepository struct {
	client *pkgneo4j.Client
}

// NewJobRepository creates a JobRepository with a Neo4j client
func NewJobRepository(client *pkgneo4j.Client) *JobRepository {
	return &JobRepository{
		client: client,
	}
}

// GetJob loads a job and its stage nodes
func (r *JobRepository) GetJob(ctx context.Context, id string) (domain.Job, error) {
	session := r.client.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (j:Job {id: $id})
		OPTIONAL MATCH (j)-[:HAS_STAGE]->(s:Stage)
		RETURN j, collect(s) AS stages
	`

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]interface{}{"id": id})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return domain.Job{}, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	records := out.([]*neo4j.Record)
	if len(records) == 0 {
		return domain.Job{}, repository.ErrNotFound
	}

	record := records[0]
	jobVal, _ := record.Get("j")
	jobNode, ok := jobVal.(neo4j.Node)
	if !ok {
		return domain.Job{}, repository.ErrNotFound
	}

	job := jobFromProps(jobNode.Props)
	if stagesVal, ok := record.Get("stages"); ok {
		if list, ok := stagesVal.([]interface{}); ok {
			for _, v := range list {
				if node, ok := v.(neo4j.Node); ok {
					job.Stages = append(job.Stages, stageFromProps(node.Props))
				}
			}
		}
	}
	return job, nil
}

// CreateJob creates the job node and one stage node per stage
func (r *JobRepository) CreateJob(ctx context.Context, job domain.Job) (domain.Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	session := r.client.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		CREATE (j:Job {
			id: $job.id,
			title: $job.title,
			company: $job.company,
			location: $job.location,
			ctc: $job.ctc,
			description: $job.description,
			deadline: $job.deadline,
			createdAt: datetime({epochMillis: $job.createdAt}),
			recruiterId: $job.recruiterId
		})
		WITH j
		UNWIND $stages AS st
		CREATE (j)-[:HAS_STAGE]->(:Stage {
			id: st.id, title: st.title, order: st.order,
			published: st.published, completed: st.completed
		})
	`

	var deadline interface{}
	if !job.Deadline.IsZero() {
		deadline = job.Deadline
	}
	params := map[string]interface{}{
		"job": map[string]interface{}{
			"id":          job.ID,
			"title":       job.Title,
			"company":     job.Company,
			"location":    job.Location,
			"ctc":         job.CTC,
			"description": job.Description,
			"deadline":    deadline,
			"createdAt":   job.CreatedAt.UnixMilli(),
			"recruiterId": job.RecruiterID,
		},
		"stages": stagesData(job.Stages),
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return domain.Job{}, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// UpdateStages merges the given stages onto the job and drops stage nodes
// that are no longer listed
func (r *JobRepository) UpdateStages(ctx context.Context, jobID string, stages []domain.Stage) error {
	session := r.client.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	upsert := `
		MATCH (j:Job {id: $jobId})
		WITH j
		UNWIND $stages AS st
		MERGE (j)-[:HAS_STAGE]->(s:Stage {id: st.id})
		SET s.title = st.title,
		    s.order = st.order,
		    s.published = st.published,
		    s.completed = st.completed
	`
	prune := `
		MATCH (j:Job {id: $jobId})-[:HAS_STAGE]->(s:Stage)
		WHERE NOT s.id IN $ids
		DETACH DELETE s
	`

	ids := make([]string, 0, len(stages))
	for _, st := range stages {
		ids = append(ids, st.ID)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		found, err := tx.Run(ctx, `MATCH (j:Job {id: $jobId}) RETURN j.id`, map[string]interface{}{"jobId": jobID})
		if err != nil {
			return nil, err
		}
		if !found.Next(ctx) {
			return nil, repository.ErrNotFound
		}
		if _, err := found.Consume(ctx); err != nil {
			return nil, err
		}

		for _, step := range []struct {
			query  string
			params map[string]interface{}
		}{
			{upsert, map[string]interface{}{"jobId": jobID, "stages": stagesData(stages)}},
			{prune, map[string]interface{}{"jobId": jobID, "ids": ids}},
		} {
			result, err := tx.Run(ctx, step.query, step.params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// ListApplications returns applications linked to the job with the given status
func (r *JobRepository) ListApplications(ctx context.Context, jobID, status string) ([]domain.Application, error) {
	session := r.client.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (a:Application {status: $status})-[:APPLIED_TO]->(:Job {id: $jobId})
		RETURN a
	`

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]interface{}{"jobId": jobID, "status": status})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list applications of job %s: %w", jobID, err)
	}

	var apps []domain.Application
	for _, record := range out.([]*neo4j.Record) {
		val, _ := record.Get("a")
		node, ok := val.(neo4j.Node)
		if !ok {
			continue
		}
		apps = append(apps, domain.Application{
			ID:           stringProp(node.Props, "id"),
			JobID:        jobID,
			StudentID:    stringProp(node.Props, "studentId"),
			StudentEmail: stringProp(node.Props, "studentEmail"),
			StudentName:  stringProp(node.Props, "studentName"),
			Status:       stringProp(node.Props, "status"),
			CreatedAt:    timeProp(node.Props, "createdAt"),
		})
	}
	return apps, nil
}

func stagesData(stages []domain.Stage) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(stages))
	for _, st := range stages {
		out = append(out, map[string]interface{}{
			"id":        st.ID,
			"title":     st.Title,
			"order":     st.Order,
			"published": st.Published,
			"completed": st.Completed,
		})
	}
	return out
}

func jobFromProps(props map[string]any) domain.Job {
	return domain.Job{
		ID:          stringProp(props, "id"),
		Title:       stringProp(props, "title"),
		Company:     stringProp(props, "company"),
		Location:    stringProp(props, "location"),
		CTC:         stringProp(props, "ctc"),
		Description: stringProp(props, "description"),
		Deadline:    timeProp(props, "deadline"),
		CreatedAt:   timeProp(props, "createdAt"),
		RecruiterID: stringProp(props, "recruiterId"),
	}
}

func stageFromProps(props map[string]any) domain.Stage {
	st := domain.Stage{
		ID:    stringProp(props, "id"),
		Title: stringProp(props, "title"),
	}
	if v, ok := props["order"].(int64); ok {
		st.Order = int(v)
	}
	st.Published, _ = props["published"].(bool)
	st.Completed, _ = props["completed"].(bool)
	return st
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func timeProp(props map[string]any, key string) time.Time {
	switch v := props[key].(type) {
	case time.Time:
		return v
	case neo4j.LocalDateTime:
		return v.Time()
	}
	return time.Time{}
}
