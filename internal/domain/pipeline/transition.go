package pipeline

import (
	"context"
	"errors"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
)

// Propagation describes what a transition did to the next stage
type Propagation string

const (
	PropagationNone     Propagation = "none"
	PropagationMirrored Propagation = "mirrored"
	PropagationRemoved  Propagation = "removed"
	PropagationFailed   Propagation = "failed"
)

// TransitionResult reports a committed status change
type TransitionResult struct {
	Key         string        `json:"key"`
	Status      domain.Status `json:"status"`
	Previous    domain.Status `json:"previous"`
	NextStageID string        `json:"next_stage_id,omitempty"`
	Propagation Propagation   `json:"propagation"`
}

// SetStatus normalizes rawStatus, writes it to the participant's record in
// stageID and then propagates one hop: a qualified participant gets a pending
// mirror in the next stage, any other status removes that mirror. Stages
// further downstream are never touched.
//
// If the primary write fails nothing is propagated. If only propagation fails
// the result is returned together with a *PropagationWarning; repeating the
// call repairs the next stage.
func (s *Service) SetStatus(ctx context.Context, actor domain.Actor, jobID, stageID, key, rawStatus string) (TransitionResult, error) {
	sc, err := s.resolve(ctx, jobID, stageID)
	if err != nil {
		return TransitionResult{}, err
	}
	if err := authorizeStaff(actor, sc.job); err != nil {
		return TransitionResult{}, err
	}

	key = keyFor(key)
	ref := sc.ref()
	current, err := s.participants.GetParticipant(ctx, ref, key)
	if errors.Is(err, repository.ErrNotFound) {
		return TransitionResult{}, &NotFoundError{Kind: "participant", ID: key}
	}
	if err != nil {
		return TransitionResult{}, storeErr("load participant", err)
	}

	status := domain.NormalizeStatus(rawStatus)
	if err := s.participants.UpsertParticipant(ctx, ref, key, repository.ParticipantPatch{Status: status}); err != nil {
		return TransitionResult{}, storeErr("write participant status", err)
	}

	result := TransitionResult{
		Key:         key,
		Status:      status,
		Previous:    current.Status,
		Propagation: PropagationNone,
	}
	s.logger.Info("participant status changed",
		"jobId", jobID, "stageId", stageID, "key", key,
		"from", current.Status, "to", status, "actor", actor.ID)

	next, ok := sc.next()
	if !ok {
		return result, nil
	}
	result.NextStageID = next.ID

	current.Key = key
	current.Status = status
	action, err := s.propagate(ctx, sc, current)
	if err != nil {
		result.Propagation = PropagationFailed
		warning := &PropagationWarning{StageID: stageID, NextStageID: next.ID, Key: key, Err: err}
		s.logger.Warn("propagation failed; next stage may be stale",
			"jobId", jobID, "stageId", stageID, "nextStageId", next.ID, "key", key, "err", err)
		return result, warning
	}
	result.Propagation = action
	return result, nil
}

// propagate applies the one-hop rule for p, whose Status is already the new one
func (s *Service) propagate(ctx context.Context, sc stageContext, p domain.Participant) (Propagation, error) {
	nextRef, ok := sc.nextRef()
	if !ok {
		return PropagationNone, nil
	}

	if p.Status != domain.StatusQualified {
		if err := s.participants.RemoveParticipant(ctx, nextRef, p.Key); err != nil {
			return PropagationFailed, err
		}
		return PropagationRemoved, nil
	}

	_, err := s.participants.GetParticipant(ctx, nextRef, p.Key)
	switch {
	case err == nil:
		err = s.participants.UpsertParticipant(ctx, nextRef, p.Key, mirrorPatch(p, sc.stage().ID, true))
	case errors.Is(err, repository.ErrNotFound):
		err = s.participants.UpsertParticipant(ctx, nextRef, p.Key, mirrorPatch(p, sc.stage().ID, false))
	}
	if err != nil {
		return PropagationFailed, err
	}
	return PropagationMirrored, nil
}

// mirrorPatch builds the next-stage record for a qualified participant.
// An existing mirror keeps its status so a decision already taken there is
// never reset.
func mirrorPatch(p domain.Participant, sourceStageID string, exists bool) repository.ParticipantPatch {
	patch := repository.ParticipantPatch{
		Email:  p.Email,
		Name:   p.Name,
		Source: sourceStageID,
	}
	if !exists {
		patch.Status = domain.StatusPending
	}
	return patch
}

// mirrorOp is the batch form of the one-hop rule. existing holds the keys
// already present in the next stage.
func mirrorOp(nextRef repository.StageRef, key string, p domain.Participant, sourceStageID string, existing map[string]struct{}) repository.ParticipantOp {
	if p.Status != domain.StatusQualified {
		return repository.DeleteOp(nextRef, key)
	}
	_, exists := existing[key]
	return repository.UpsertOp(nextRef, key, mirrorPatch(p, sourceStageID, exists))
}

func (s *Service) existingKeys(ctx context.Context, ref repository.StageRef) (map[string]struct{}, error) {
	records, err := s.participants.ListParticipants(ctx, ref)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(records))
	for _, r := range records {
		keys[r.Key] = struct{}{}
	}
	return keys, nil
}
