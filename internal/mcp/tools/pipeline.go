package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/domain/pipeline"
	"github.com/honeycarbs/placement-pipeline/pkg/logging"
)

// PipelineService is the engine surface the tools drive
type PipelineService interface {
	StageDetail(ctx context.Context, actor domain.Actor, jobID, stageID string) (pipeline.StageView, error)
	Timeline(ctx context.Context, actor domain.Actor, jobID string) ([]pipeline.StageSummary, error)
	MyProgress(ctx context.Context, actor domain.Actor, jobID string) ([]pipeline.ProgressEntry, error)
	CreateJob(ctx context.Context, actor domain.Actor, job domain.Job, stageTitles []string) (domain.Job, error)
	SetStatus(ctx context.Context, actor domain.Actor, jobID, stageID, key, rawStatus string) (pipeline.TransitionResult, error)
	AddParticipant(ctx context.Context, actor domain.Actor, jobID, stageID, email, name string) (domain.Participant, error)
	RemoveParticipant(ctx context.Context, actor domain.Actor, jobID, stageID, key string) error
	ImportBatch(ctx context.Context, actor domain.Actor, jobID, stageID string, rows []domain.ParticipantRow) (pipeline.ImportResult, error)
	SetPublished(ctx context.Context, actor domain.Actor, jobID, stageID string, published bool) (domain.Stage, error)
	SetCompleted(ctx context.Context, actor domain.Actor, jobID, stageID string, completed bool) (domain.Stage, error)
	Resync(ctx context.Context, actor domain.Actor, jobID, stageID string) (pipeline.ResyncResult, error)
}

// StageParams addresses one stage of one job
type StageParams struct {
	Actor   ActorParams `json:"actor" jsonschema:"Caller identity"`
	JobID   string      `json:"job_id" jsonschema:"Job identifier"`
	StageID string      `json:"stage_id" jsonschema:"Stage identifier within the job"`
}

// JobParams addresses a whole job
type JobParams struct {
	Actor ActorParams `json:"actor" jsonschema:"Caller identity"`
	JobID string      `json:"job_id" jsonschema:"Job identifier"`
}

// CreateJobParams defines the arguments for the create_job tool
type CreateJobParams struct {
	Actor       ActorParams `json:"actor" jsonschema:"Caller identity"`
	Title       string      `json:"title" jsonschema:"Job title"`
	Company     string      `json:"company,omitempty" jsonschema:"Hiring company"`
	Location    string      `json:"location,omitempty" jsonschema:"Work location"`
	CTC         string      `json:"ctc,omitempty" jsonschema:"Offered compensation as free text"`
	Description string      `json:"description,omitempty" jsonschema:"Job description"`
	Deadline    string      `json:"deadline,omitempty" jsonschema:"Application deadline as RFC 3339 date or timestamp"`
	Stages      []string    `json:"stages" jsonschema:"Ordered stage titles, e.g. Online Assessment, Interview, Offer"`
	Confirm     bool        `json:"confirm,omitempty" jsonschema:"Must be true to create the job"`
}

// SetStatusParams defines the arguments for the set_participant_status tool
type SetStatusParams struct {
	Actor       ActorParams `json:"actor" jsonschema:"Caller identity"`
	JobID       string      `json:"job_id" jsonschema:"Job identifier"`
	StageID     string      `json:"stage_id" jsonschema:"Stage identifier within the job"`
	Participant string      `json:"participant" jsonschema:"Participant key or email address"`
	Status      string      `json:"status" jsonschema:"New status; free text such as pass, fail, qualified, rejected"`
	Confirm     bool        `json:"confirm,omitempty" jsonschema:"Must be true to change the status"`
}

// AddParticipantParams defines the arguments for the add_participant tool
type AddParticipantParams struct {
	Actor   ActorParams `json:"actor" jsonschema:"Caller identity"`
	JobID   string      `json:"job_id" jsonschema:"Job identifier"`
	StageID string      `json:"stage_id" jsonschema:"Stage identifier within the job"`
	Email   string      `json:"email" jsonschema:"Student email address"`
	Name    string      `json:"name,omitempty" jsonschema:"Student display name"`
	Confirm bool        `json:"confirm,omitempty" jsonschema:"Must be true to add the participant"`
}

// RemoveParticipantParams defines the arguments for the remove_participant tool
type RemoveParticipantParams struct {
	Actor       ActorParams `json:"actor" jsonschema:"Caller identity"`
	JobID       string      `json:"job_id" jsonschema:"Job identifier"`
	StageID     string      `json:"stage_id" jsonschema:"Stage identifier within the job"`
	Participant string      `json:"participant" jsonschema:"Participant key or email address"`
	Confirm     bool        `json:"confirm,omitempty" jsonschema:"Must be true to remove the participant"`
}

// StageFlagParams defines the arguments for publish_stage and complete_stage
type StageFlagParams struct {
	Actor   ActorParams `json:"actor" jsonschema:"Caller identity"`
	JobID   string      `json:"job_id" jsonschema:"Job identifier"`
	StageID string      `json:"stage_id" jsonschema:"Stage identifier within the job"`
	Value   bool        `json:"value" jsonschema:"New flag value"`
	Confirm bool        `json:"confirm,omitempty" jsonschema:"Must be true to change the flag"`
}

// ResyncParams defines the arguments for the resync_stage tool
type ResyncParams struct {
	Actor   ActorParams `json:"actor" jsonschema:"Caller identity"`
	JobID   string      `json:"job_id" jsonschema:"Job identifier"`
	StageID string      `json:"stage_id" jsonschema:"Stage identifier within the job"`
	Confirm bool        `json:"confirm,omitempty" jsonschema:"Must be true to rewrite the next stage"`
}

type pipelineTools struct {
	service PipelineService
	logger  *logging.Logger
}

// WithPipelineTools registers stage reading and mutation tools
func WithPipelineTools(service PipelineService) Option {
	return func(reg *registry) {
		t := pipelineTools{service: service, logger: reg.logger}

		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "stage_detail",
			Description: "Show one stage of a job with its participants and status counts; seeds the stage on first staff access",
		}, t.stageDetail)
		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "job_timeline",
			Description: "List a job's stages in order with pending/qualified/rejected counts",
		}, t.timeline)
		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "my_progress",
			Description: "Show the calling student's status in every published stage of a job",
		}, t.myProgress)
		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "create_job",
			Description: "Create a job posting with an ordered list of hiring stages",
		}, t.createJob)
		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "set_participant_status",
			Description: "Mark a participant qualified, rejected or pending; qualified participants move to the next stage",
		}, t.setStatus)
		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "add_participant",
			Description: "Manually add a student to a stage as pending",
		}, t.addParticipant)
		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "remove_participant",
			Description: "Remove a student from a stage and from the next stage",
		}, t.removeParticipant)
		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "publish_stage",
			Description: "Admin only: show or hide a stage from students",
		}, t.publish)
		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "complete_stage",
			Description: "Mark a stage finished or reopen it",
		}, t.complete)
		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "resync_stage",
			Description: "Re-apply qualification rules from a stage to the next one, repairing stale records",
		}, t.resync)

		for _, name := range []string{
			"stage_detail", "job_timeline", "my_progress", "create_job", "set_participant_status",
			"add_participant", "remove_participant", "publish_stage", "complete_stage", "resync_stage",
		} {
			reg.add(name)
		}
	}
}

func (t pipelineTools) stageDetail(ctx context.Context, _ *sdkmcp.CallToolRequest, params *StageParams) (*sdkmcp.CallToolResult, any, error) {
	if params == nil {
		params = &StageParams{}
	}
	actor, err := params.Actor.actor()
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	view, err := t.service.StageDetail(ctx, actor, params.JobID, params.StageID)
	if err != nil {
		t.logger.Debug("stage_detail failed", "jobId", params.JobID, "stageId", params.StageID, "err", err)
		return errorResult("[stage_detail] " + describe(err)), nil, nil
	}

	msg := fmt.Sprintf("[stage_detail] %s: %d participant(s), %d qualified, %d rejected, %d pending",
		view.Stage.Title, len(view.Participants), view.Counts.Qualified, view.Counts.Rejected, view.Counts.Pending)
	if view.Seeded > 0 {
		msg += fmt.Sprintf("; seeded %d", view.Seeded)
	}
	return textResult(msg), view, nil
}

func (t pipelineTools) timeline(ctx context.Context, _ *sdkmcp.CallToolRequest, params *JobParams) (*sdkmcp.CallToolResult, any, error) {
	if params == nil {
		params = &JobParams{}
	}
	actor, err := params.Actor.actor()
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	stages, err := t.service.Timeline(ctx, actor, params.JobID)
	if err != nil {
		return errorResult("[job_timeline] " + describe(err)), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[job_timeline] %d stage(s)", len(stages))
	for _, s := range stages {
		fmt.Fprintf(&b, "\n%d. %s (q=%d r=%d p=%d)", s.Index+1, s.Stage.Title, s.Counts.Qualified, s.Counts.Rejected, s.Counts.Pending)
	}
	return textResult(b.String()), map[string]any{"stages": stages}, nil
}

func (t pipelineTools) myProgress(ctx context.Context, _ *sdkmcp.CallToolRequest, params *JobParams) (*sdkmcp.CallToolResult, any, error) {
	if params == nil {
		params = &JobParams{}
	}
	actor, err := params.Actor.actor()
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	entries, err := t.service.MyProgress(ctx, actor, params.JobID)
	if err != nil {
		return errorResult("[my_progress] " + describe(err)), nil, nil
	}
	return textResult(fmt.Sprintf("[my_progress] %d published stage(s)", len(entries))), map[string]any{"stages": entries}, nil
}

func (t pipelineTools) createJob(ctx context.Context, _ *sdkmcp.CallToolRequest, params *CreateJobParams) (*sdkmcp.CallToolResult, any, error) {
	if params == nil {
		params = &CreateJobParams{}
	}
	actor, err := params.Actor.actor()
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if !params.Confirm {
		return confirmResult("create_job", fmt.Sprintf("create job %q with %d stage(s)", params.Title, len(params.Stages)))
	}

	job := domain.Job{
		Title:       params.Title,
		Company:     params.Company,
		Location:    params.Location,
		CTC:         params.CTC,
		Description: params.Description,
	}
	if params.Deadline != "" {
		deadline, err := parseDeadline(params.Deadline)
		if err != nil {
			return errorResult("[create_job] " + err.Error()), nil, nil
		}
		job.Deadline = deadline
	}

	created, err := t.service.CreateJob(ctx, actor, job, params.Stages)
	if err != nil {
		return errorResult("[create_job] " + describe(err)), nil, nil
	}
	return textResult(fmt.Sprintf("[create_job] created %s with %d stage(s)", created.ID, len(created.Stages))), created, nil
}

func (t pipelineTools) setStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, params *SetStatusParams) (*sdkmcp.CallToolResult, any, error) {
	if params == nil {
		params = &SetStatusParams{}
	}
	actor, err := params.Actor.actor()
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if !params.Confirm {
		return confirmResult("set_participant_status",
			fmt.Sprintf("set %s to %q (%s) in stage %s", params.Participant, params.Status, domain.NormalizeStatus(params.Status), params.StageID))
	}

	result, err := t.service.SetStatus(ctx, actor, params.JobID, params.StageID, params.Participant, params.Status)
	switch {
	case pipeline.IsPropagationWarning(err):
		t.logger.Warn("set_participant_status committed with stale next stage", "jobId", params.JobID, "err", err)
		msg := fmt.Sprintf("[set_participant_status] %s is now %s, but the next stage could not be updated: %v. Run resync_stage or repeat this call.",
			result.Key, result.Status, err)
		return textResult(msg), result, nil
	case err != nil:
		return errorResult("[set_participant_status] " + describe(err)), nil, nil
	}

	msg := fmt.Sprintf("[set_participant_status] %s: %s -> %s (next stage: %s)", result.Key, result.Previous, result.Status, result.Propagation)
	return textResult(msg), result, nil
}

func (t pipelineTools) addParticipant(ctx context.Context, _ *sdkmcp.CallToolRequest, params *AddParticipantParams) (*sdkmcp.CallToolResult, any, error) {
	if params == nil {
		params = &AddParticipantParams{}
	}
	actor, err := params.Actor.actor()
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if !params.Confirm {
		return confirmResult("add_participant", fmt.Sprintf("add %s to stage %s", params.Email, params.StageID))
	}

	p, err := t.service.AddParticipant(ctx, actor, params.JobID, params.StageID, params.Email, params.Name)
	if err != nil {
		return errorResult("[add_participant] " + describe(err)), nil, nil
	}
	return textResult(fmt.Sprintf("[add_participant] %s is in stage %s as %s", p.Email, params.StageID, p.Status)), p, nil
}

func (t pipelineTools) removeParticipant(ctx context.Context, _ *sdkmcp.CallToolRequest, params *RemoveParticipantParams) (*sdkmcp.CallToolResult, any, error) {
	if params == nil {
		params = &RemoveParticipantParams{}
	}
	actor, err := params.Actor.actor()
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if !params.Confirm {
		return confirmResult("remove_participant", fmt.Sprintf("remove %s from stage %s and the stage after it", params.Participant, params.StageID))
	}

	err = t.service.RemoveParticipant(ctx, actor, params.JobID, params.StageID, params.Participant)
	switch {
	case pipeline.IsPropagationWarning(err):
		return textResult(fmt.Sprintf("[remove_participant] removed from %s, but the next stage still lists them: %v", params.StageID, err)), nil, nil
	case err != nil:
		return errorResult("[remove_participant] " + describe(err)), nil, nil
	}
	return textResult(fmt.Sprintf("[remove_participant] removed %s", params.Participant)), nil, nil
}

func (t pipelineTools) publish(ctx context.Context, _ *sdkmcp.CallToolRequest, params *StageFlagParams) (*sdkmcp.CallToolResult, any, error) {
	return t.setFlag(ctx, "publish_stage", "published", params, t.service.SetPublished)
}

func (t pipelineTools) complete(ctx context.Context, _ *sdkmcp.CallToolRequest, params *StageFlagParams) (*sdkmcp.CallToolResult, any, error) {
	return t.setFlag(ctx, "complete_stage", "completed", params, t.service.SetCompleted)
}

type flagSetter func(ctx context.Context, actor domain.Actor, jobID, stageID string, value bool) (domain.Stage, error)

func (t pipelineTools) setFlag(ctx context.Context, tool, flag string, params *StageFlagParams, set flagSetter) (*sdkmcp.CallToolResult, any, error) {
	if params == nil {
		params = &StageFlagParams{}
	}
	actor, err := params.Actor.actor()
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if !params.Confirm {
		return confirmResult(tool, fmt.Sprintf("set %s=%t on stage %s", flag, params.Value, params.StageID))
	}

	stage, err := set(ctx, actor, params.JobID, params.StageID, params.Value)
	if err != nil {
		return errorResult(fmt.Sprintf("[%s] %s", tool, describe(err))), nil, nil
	}
	return textResult(fmt.Sprintf("[%s] %s %s=%t", tool, stage.Title, flag, params.Value)), stage, nil
}

func (t pipelineTools) resync(ctx context.Context, _ *sdkmcp.CallToolRequest, params *ResyncParams) (*sdkmcp.CallToolResult, any, error) {
	if params == nil {
		params = &ResyncParams{}
	}
	actor, err := params.Actor.actor()
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if !params.Confirm {
		return confirmResult("resync_stage", fmt.Sprintf("rewrite the stage after %s from its current statuses", params.StageID))
	}

	result, err := t.service.Resync(ctx, actor, params.JobID, params.StageID)
	if err != nil {
		return errorResult("[resync_stage] " + describe(err)), result, nil
	}
	msg := fmt.Sprintf("[resync_stage] mirrored %d, removed %d in %d batch(es)", result.Mirrored, result.Removed, result.Batches)
	return textResult(msg), result, nil
}

func parseDeadline(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("deadline %q is not an RFC 3339 date or timestamp", s)
}
