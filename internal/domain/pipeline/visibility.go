package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
)

// StageView is the detail of one stage as returned to a caller
type StageView struct {
	JobID        string               `json:"job_id"`
	Stage        domain.Stage         `json:"stage"`
	Index        int                  `json:"index"`
	PrevStageID  string               `json:"prev_stage_id,omitempty"`
	NextStageID  string               `json:"next_stage_id,omitempty"`
	Participants []domain.Participant `json:"participants"`
	Counts       domain.StatusCounts  `json:"counts"`
	Seeded       int                  `json:"seeded"`
}

// StageDetail returns a stage and its participants. Staff access seeds the
// stage on first read. Students only ever read, and get ErrStageUnavailable
// for an unpublished stage.
func (s *Service) StageDetail(ctx context.Context, actor domain.Actor, jobID, stageID string) (StageView, error) {
	sc, err := s.resolve(ctx, jobID, stageID)
	if err != nil {
		return StageView{}, err
	}

	view := StageView{JobID: sc.job.ID, Stage: sc.stage(), Index: sc.index}
	if prev, ok := sc.prev(); ok {
		view.PrevStageID = prev.ID
	}
	if next, ok := sc.next(); ok {
		view.NextStageID = next.ID
	}

	switch {
	case actor.Role == domain.RoleStudent:
		if !sc.stage().Published {
			return StageView{}, fmt.Errorf("%w: stage %q", ErrStageUnavailable, stageID)
		}
	default:
		if err := authorizeStaff(actor, sc.job); err != nil {
			return StageView{}, err
		}
		view.Seeded, err = s.seed(ctx, sc)
		if err != nil {
			return StageView{}, err
		}
	}

	participants, err := s.participants.ListParticipants(ctx, sc.ref())
	if err != nil {
		return StageView{}, storeErr("list stage participants", err)
	}
	view.Participants = participants
	for _, p := range participants {
		view.Counts.Add(p.Status)
	}
	return view, nil
}

// StageSummary is one row of a job timeline
type StageSummary struct {
	Stage  domain.Stage        `json:"stage"`
	Index  int                 `json:"index"`
	Counts domain.StatusCounts `json:"counts"`
}

// Timeline lists a job's stages in order with per-status counts. Students only
// see published stages.
func (s *Service) Timeline(ctx context.Context, actor domain.Actor, jobID string) ([]StageSummary, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	student := actor.Role == domain.RoleStudent
	if !student {
		if err := authorizeStaff(actor, job); err != nil {
			return nil, err
		}
	}

	var summaries []StageSummary
	for i, st := range job.SortedStages() {
		if student && !st.Published {
			continue
		}
		summaries = append(summaries, StageSummary{Stage: st, Index: i})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range summaries {
		g.Go(func() error {
			ref := repository.StageRef{JobID: job.ID, StageID: summaries[i].Stage.ID}
			records, err := s.participants.ListParticipants(gctx, ref)
			if err != nil {
				return storeErr(fmt.Sprintf("list participants of stage %s", ref.StageID), err)
			}
			for _, p := range records {
				summaries[i].Counts.Add(p.Status)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// ProgressEntry is a student's standing in one published stage
type ProgressEntry struct {
	StageID string        `json:"stage_id"`
	Title   string        `json:"title"`
	Order   int           `json:"order"`
	Present bool          `json:"present"`
	Status  domain.Status `json:"status,omitempty"`
}

// MyProgress returns the actor's own status in every published stage
func (s *Service) MyProgress(ctx context.Context, actor domain.Actor, jobID string) ([]ProgressEntry, error) {
	if !ValidEmail(actor.Email) {
		return nil, &ValidationError{Field: "actor email", Value: actor.Email, Reason: "required to look up progress"}
	}
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	key := ParticipantKey(actor.Email)
	var entries []ProgressEntry
	for _, st := range job.SortedStages() {
		if !st.Published {
			continue
		}
		entry := ProgressEntry{StageID: st.ID, Title: st.Title, Order: st.Order}
		p, err := s.participants.GetParticipant(ctx, repository.StageRef{JobID: job.ID, StageID: st.ID}, key)
		switch {
		case err == nil:
			entry.Present = true
			entry.Status = p.Status
		case !errors.Is(err, repository.ErrNotFound):
			return nil, storeErr("load participant", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SetPublished toggles whether students can see a stage. Admin only; it has no
// effect on participant records.
func (s *Service) SetPublished(ctx context.Context, actor domain.Actor, jobID, stageID string, published bool) (domain.Stage, error) {
	if err := authorizeAdmin(actor); err != nil {
		return domain.Stage{}, err
	}
	return s.updateStage(ctx, jobID, stageID, func(st *domain.Stage) {
		st.Published = published
	})
}

// SetCompleted marks a stage as finished or reopens it
func (s *Service) SetCompleted(ctx context.Context, actor domain.Actor, jobID, stageID string, completed bool) (domain.Stage, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return domain.Stage{}, err
	}
	if err := authorizeStaff(actor, job); err != nil {
		return domain.Stage{}, err
	}
	return s.updateStage(ctx, jobID, stageID, func(st *domain.Stage) {
		st.Completed = completed
	})
}

func (s *Service) updateStage(ctx context.Context, jobID, stageID string, mutate func(*domain.Stage)) (domain.Stage, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return domain.Stage{}, err
	}

	stages := make([]domain.Stage, len(job.Stages))
	copy(stages, job.Stages)
	for i := range stages {
		if stages[i].ID != stageID {
			continue
		}
		mutate(&stages[i])
		if err := s.jobs.UpdateStages(ctx, job.ID, stages); err != nil {
			return domain.Stage{}, storeErr("update stages", err)
		}
		s.logger.Info("stage updated", "jobId", jobID, "stageId", stageID,
			"published", stages[i].Published, "completed", stages[i].Completed)
		return stages[i], nil
	}
	return domain.Stage{}, &NotFoundError{Kind: "stage", ID: stageID}
}
