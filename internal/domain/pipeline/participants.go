package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
)

// AddParticipant manually adds a student to a stage as pending. An existing
// record keeps its status; only email and name are refreshed.
func (s *Service) AddParticipant(ctx context.Context, actor domain.Actor, jobID, stageID, email, name string) (domain.Participant, error) {
	email = strings.TrimSpace(email)
	if !ValidEmail(email) {
		return domain.Participant{}, &ValidationError{Field: "email", Value: email, Reason: "not a valid email address"}
	}

	sc, err := s.resolve(ctx, jobID, stageID)
	if err != nil {
		return domain.Participant{}, err
	}
	if err := authorizeStaff(actor, sc.job); err != nil {
		return domain.Participant{}, err
	}

	ref := sc.ref()
	key := ParticipantKey(email)
	patch := repository.ParticipantPatch{
		Email:  email,
		Name:   strings.TrimSpace(name),
		Source: domain.SourceManual,
	}

	_, err = s.participants.GetParticipant(ctx, ref, key)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		patch.Status = domain.StatusPending
	case err != nil:
		return domain.Participant{}, storeErr("load participant", err)
	default:
		patch.Source = ""
	}

	if err := s.participants.UpsertParticipant(ctx, ref, key, patch); err != nil {
		return domain.Participant{}, storeErr("add participant", err)
	}

	p, err := s.participants.GetParticipant(ctx, ref, key)
	if err != nil {
		return domain.Participant{}, storeErr("reload participant", err)
	}
	s.logger.Info("participant added", "jobId", jobID, "stageId", stageID, "key", key, "actor", actor.ID)
	return p, nil
}

// RemoveParticipant deletes a participant from a stage and then, best effort,
// its mirror in the next stage. A failed mirror delete is reported as a
// *PropagationWarning after the primary delete has committed.
func (s *Service) RemoveParticipant(ctx context.Context, actor domain.Actor, jobID, stageID, key string) error {
	sc, err := s.resolve(ctx, jobID, stageID)
	if err != nil {
		return err
	}
	if err := authorizeStaff(actor, sc.job); err != nil {
		return err
	}

	key = keyFor(key)
	if err := s.participants.RemoveParticipant(ctx, sc.ref(), key); err != nil {
		return storeErr("remove participant", err)
	}
	s.logger.Info("participant removed", "jobId", jobID, "stageId", stageID, "key", key, "actor", actor.ID)

	nextRef, ok := sc.nextRef()
	if !ok {
		return nil
	}
	if err := s.participants.RemoveParticipant(ctx, nextRef, key); err != nil {
		s.logger.Warn("mirror removal failed", "jobId", jobID, "nextStageId", nextRef.StageID, "key", key, "err", err)
		return &PropagationWarning{StageID: stageID, NextStageID: nextRef.StageID, Key: key, Err: err}
	}
	return nil
}

// ResyncResult summarizes a resync run
type ResyncResult struct {
	NextStageID string `json:"next_stage_id,omitempty"`
	Mirrored    int    `json:"mirrored"`
	Removed     int    `json:"removed"`
	Batches     int    `json:"batches"`
}

// Resync re-applies the one-hop rule for every participant of a stage. It
// repairs mirrors left stale by earlier propagation warnings and is safe to
// repeat.
func (s *Service) Resync(ctx context.Context, actor domain.Actor, jobID, stageID string) (ResyncResult, error) {
	sc, err := s.resolve(ctx, jobID, stageID)
	if err != nil {
		return ResyncResult{}, err
	}
	if err := authorizeStaff(actor, sc.job); err != nil {
		return ResyncResult{}, err
	}

	nextRef, ok := sc.nextRef()
	if !ok {
		return ResyncResult{}, nil
	}
	result := ResyncResult{NextStageID: nextRef.StageID}

	current, err := s.participants.ListParticipants(ctx, sc.ref())
	if err != nil {
		return result, storeErr("list stage participants", err)
	}
	existing, err := s.existingKeys(ctx, nextRef)
	if err != nil {
		return result, storeErr("list next stage participants", err)
	}

	groups := make([][]repository.ParticipantOp, 0, len(current))
	for _, p := range current {
		key := p.Key
		if key == "" {
			key = ParticipantKey(p.Email)
		}
		groups = append(groups, []repository.ParticipantOp{mirrorOp(nextRef, key, p, sc.stage().ID, existing)})
	}

	out, err := s.commitGroups(ctx, groups)
	result.Batches = out.batchesCommitted
	for _, p := range current[:out.groupsCommitted] {
		if p.Status == domain.StatusQualified {
			result.Mirrored++
		} else {
			result.Removed++
		}
	}
	if err != nil {
		return result, err
	}

	s.logger.Info("stage resynced", "jobId", jobID, "stageId", stageID,
		"mirrored", result.Mirrored, "removed", result.Removed)
	return result, nil
}
