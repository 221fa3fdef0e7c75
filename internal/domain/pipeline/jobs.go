package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
)

// NewStages turns recruiter-submitted titles into ordered stages. Blank titles
// are dropped; order is 1-based and follows the input.
func NewStages(titles []string) []domain.Stage {
	stages := make([]domain.Stage, 0, len(titles))
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		stages = append(stages, domain.Stage{
			ID:    uuid.NewString(),
			Title: title,
			Order: len(stages) + 1,
		})
	}
	return stages
}

// CreateJob stores a new job with stages built from stageTitles. A recruiter
// always owns the jobs they create.
func (s *Service) CreateJob(ctx context.Context, actor domain.Actor, job domain.Job, stageTitles []string) (domain.Job, error) {
	switch actor.Role {
	case domain.RoleRecruiter:
		job.RecruiterID = actor.ID
	case domain.RoleAdmin:
	default:
		return domain.Job{}, fmt.Errorf("%w: role %q cannot create jobs", ErrForbidden, actor.Role)
	}

	if strings.TrimSpace(job.Title) == "" {
		return domain.Job{}, &ValidationError{Field: "title", Reason: "required"}
	}
	job.Stages = NewStages(stageTitles)
	if len(job.Stages) == 0 {
		return domain.Job{}, &ValidationError{Field: "stages", Reason: "at least one stage title is required"}
	}

	created, err := s.jobs.CreateJob(ctx, job)
	if err != nil {
		return domain.Job{}, storeErr("create job", err)
	}
	s.logger.Info("job created", "jobId", created.ID, "stages", len(created.Stages), "actor", actor.ID)
	return created, nil
}
