package pipeline

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
)

// RowError describes an upload row that was skipped
type RowError struct {
	Row    int    `json:"row"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// ImportResult summarizes a bulk import. Accepted counts rows whose batch was
// durably committed; rows in a failed or unattempted batch are not accepted.
type ImportResult struct {
	RunID            string     `json:"run_id"`
	Attempted        int        `json:"attempted"`
	Accepted         int        `json:"accepted"`
	Rejected         int        `json:"rejected"`
	Duplicates       int        `json:"duplicates"`
	Mirrored         int        `json:"mirrored"`
	BatchesCommitted int        `json:"batches_committed"`
	BatchesFailed    int        `json:"batches_failed"`
	Invalid          []RowError `json:"invalid,omitempty"`
}

type importRow struct {
	key         string
	participant domain.Participant
}

// ImportBatch writes uploaded rows into a stage. Rows with an invalid email are
// skipped and counted as rejected. A blank status means qualified; any other
// text goes through NormalizeStatus. Each row's one-hop mirror is written in
// the same batch as the row. Batches commit in order and the first failure
// stops the import, leaving earlier batches in place.
func (s *Service) ImportBatch(ctx context.Context, actor domain.Actor, jobID, stageID string, rows []domain.ParticipantRow) (ImportResult, error) {
	result := ImportResult{RunID: uuid.NewString(), Attempted: len(rows)}

	sc, err := s.resolve(ctx, jobID, stageID)
	if err != nil {
		return result, err
	}
	if err := authorizeStaff(actor, sc.job); err != nil {
		return result, err
	}

	log := s.logger.With("jobId", jobID, "stageId", stageID, "runId", result.RunID)

	valid := make([]importRow, 0, len(rows))
	index := make(map[string]int, len(rows))
	for i, row := range rows {
		email := strings.TrimSpace(row.Email)
		if !ValidEmail(email) {
			result.Rejected++
			result.Invalid = append(result.Invalid, RowError{Row: i + 1, Email: row.Email, Reason: "invalid email"})
			continue
		}

		r := importRow{
			key: ParticipantKey(email),
			participant: domain.Participant{
				Email:  email,
				Name:   strings.TrimSpace(row.Name),
				Status: importStatus(row.Status),
				Source: domain.SourceUpload,
			},
		}
		r.participant.Key = r.key

		if at, dup := index[r.key]; dup {
			valid[at] = r
			result.Duplicates++
			continue
		}
		index[r.key] = len(valid)
		valid = append(valid, r)
	}

	ref := sc.ref()
	nextRef, hasNext := sc.nextRef()
	var existing map[string]struct{}
	if hasNext {
		existing, err = s.existingKeys(ctx, nextRef)
		if err != nil {
			return result, storeErr("list next stage participants", err)
		}
	}

	groups := make([][]repository.ParticipantOp, 0, len(valid))
	for _, r := range valid {
		group := []repository.ParticipantOp{
			repository.UpsertOp(ref, r.key, repository.ParticipantPatch{
				Email:  r.participant.Email,
				Name:   r.participant.Name,
				Status: r.participant.Status,
				Source: r.participant.Source,
			}),
		}
		if hasNext {
			group = append(group, mirrorOp(nextRef, r.key, r.participant, ref.StageID, existing))
		}
		groups = append(groups, group)
	}

	out, err := s.commitGroups(ctx, groups)
	result.Accepted = out.groupsCommitted
	result.BatchesCommitted = out.batchesCommitted
	result.BatchesFailed = out.batchesFailed
	if hasNext {
		for _, r := range valid[:out.groupsCommitted] {
			if r.participant.Status == domain.StatusQualified {
				result.Mirrored++
			}
		}
	}

	if err != nil {
		log.Error("import stopped on failed batch",
			"accepted", result.Accepted, "valid", len(valid), "rejected", result.Rejected, "err", err)
		return result, err
	}

	log.Info("import complete",
		"accepted", result.Accepted, "rejected", result.Rejected,
		"duplicates", result.Duplicates, "mirrored", result.Mirrored, "batches", result.BatchesCommitted)
	return result, nil
}

// importStatus treats an empty upload cell as qualified, unlike NormalizeStatus
func importStatus(raw string) domain.Status {
	if strings.TrimSpace(raw) == "" {
		return domain.StatusQualified
	}
	return domain.NormalizeStatus(raw)
}
