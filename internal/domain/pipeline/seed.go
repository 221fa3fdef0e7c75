package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
)

// Seed populates an empty stage from its upstream source and returns the
// number of records written. It is a no-op when the job or stage does not
// resolve, and when the stage already holds a completed seed or any record
// from another source. A seed too large for one batch that failed partway is
// resumed: only the upstream participants still missing are written.
func (s *Service) Seed(ctx context.Context, actor domain.Actor, jobID, stageID string) (int, error) {
	sc, err := s.resolve(ctx, jobID, stageID)
	if errors.Is(err, ErrNotFound) {
		s.logger.Debug("seed skipped: stage does not resolve", "jobId", jobID, "stageId", stageID)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if err := authorizeStaff(actor, sc.job); err != nil {
		return 0, err
	}
	return s.seed(ctx, sc)
}

func (s *Service) seed(ctx context.Context, sc stageContext) (int, error) {
	ref := sc.ref()
	log := s.logger.With("jobId", ref.JobID, "stageId", ref.StageID)

	source := domain.SourceApplicants
	prev, fromStage := sc.prev()
	if fromStage {
		source = prev.ID
	}

	existing, err := s.participants.ListParticipants(ctx, ref)
	if err != nil {
		return 0, storeErr("list stage participants", err)
	}
	seeded := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		if p.Source != source {
			return 0, nil
		}
		seeded[p.Key] = struct{}{}
	}

	var groups [][]repository.ParticipantOp
	if fromStage {
		groups, err = s.seedFromStage(ctx, sc, prev)
	} else {
		groups, err = s.seedFromApplicants(ctx, sc)
	}
	if err != nil {
		return 0, err
	}

	limit := s.opLimit()
	if len(seeded) > 0 {
		// a seed that fits one batch commits atomically, so existing
		// records mean it already finished
		if opCount(groups) <= limit {
			return 0, nil
		}
		groups = missingGroups(groups, seeded)
		log.Info("resuming interrupted seed", "present", len(seeded), "missing", len(groups))
	}
	if len(groups) == 0 {
		log.Debug("seed found no upstream participants")
		return 0, nil
	}

	if opCount(groups) <= limit {
		ops := make([]repository.ParticipantOp, 0, len(groups))
		for _, g := range groups {
			ops = append(ops, g...)
		}
		if err := s.participants.ApplyBatch(ctx, ops); err != nil {
			log.Error("seed failed", "attempted", len(groups), "err", err)
			return 0, storeErr("commit seed", err)
		}
		log.Info("stage seeded", "seeded", len(groups), "batches", 1)
		return len(groups), nil
	}

	out, err := s.commitGroups(ctx, groups)
	if err != nil {
		log.Error("seed failed", "seeded", out.groupsCommitted, "attempted", len(groups), "err", err)
		return out.groupsCommitted, err
	}

	log.Info("stage seeded", "seeded", out.groupsCommitted, "batches", out.batchesCommitted)
	return out.groupsCommitted, nil
}

func opCount(groups [][]repository.ParticipantOp) int {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	return n
}

// missingGroups drops upsert groups whose key is already present
func missingGroups(groups [][]repository.ParticipantOp, present map[string]struct{}) [][]repository.ParticipantOp {
	out := groups[:0:0]
	for _, g := range groups {
		if _, ok := present[g[0].Key]; ok {
			continue
		}
		out = append(out, g)
	}
	return out
}

func (s *Service) seedFromApplicants(ctx context.Context, sc stageContext) ([][]repository.ParticipantOp, error) {
	apps, err := s.applications.ListApplications(ctx, sc.job.ID, domain.ApplicationShortlisted)
	if err != nil {
		return nil, storeErr("list shortlisted applications", err)
	}

	ref := sc.ref()
	seen := make(map[string]struct{}, len(apps))
	groups := make([][]repository.ParticipantOp, 0, len(apps))
	for _, app := range apps {
		email := strings.TrimSpace(app.StudentEmail)
		if email == "" {
			continue
		}
		key := ParticipantKey(email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		groups = append(groups, []repository.ParticipantOp{
			repository.UpsertOp(ref, key, repository.ParticipantPatch{
				Email:  email,
				Name:   strings.TrimSpace(app.StudentName),
				Status: domain.StatusPending,
				Source: domain.SourceApplicants,
			}),
		})
	}
	return groups, nil
}

func (s *Service) seedFromStage(ctx context.Context, sc stageContext, prev domain.Stage) ([][]repository.ParticipantOp, error) {
	prevRef := repository.StageRef{JobID: sc.job.ID, StageID: prev.ID}
	qualified, err := s.participants.ListParticipantsByStatus(ctx, prevRef, domain.StatusQualified)
	if err != nil {
		return nil, storeErr("list qualified participants of previous stage", err)
	}

	ref := sc.ref()
	groups := make([][]repository.ParticipantOp, 0, len(qualified))
	for _, p := range qualified {
		key := p.Key
		if key == "" {
			key = ParticipantKey(p.Email)
		}
		if key == "" {
			continue
		}
		groups = append(groups, []repository.ParticipantOp{
			repository.UpsertOp(ref, key, repository.ParticipantPatch{
				Email:  p.Email,
				Name:   p.Name,
				Status: domain.StatusPending,
				Source: prev.ID,
			}),
		})
	}
	return groups, nil
}
