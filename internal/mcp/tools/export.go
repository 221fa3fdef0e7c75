package tools

import (
	"context"
	"fmt"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/honeycarbs/placement-pipeline/pkg/logging"
)

// SheetsWriter replaces the contents of a spreadsheet range
type SheetsWriter interface {
	ReplaceValues(ctx context.Context, spreadsheetID, targetRange string, values [][]interface{}) error
}

// ExportParams defines the arguments for the export_stage tool
type ExportParams struct {
	Actor         ActorParams `json:"actor" jsonschema:"Caller identity"`
	JobID         string      `json:"job_id" jsonschema:"Job identifier"`
	StageID       string      `json:"stage_id" jsonschema:"Stage identifier within the job"`
	SpreadsheetID string      `json:"spreadsheet_id" jsonschema:"Google Sheets document ID"`
	Tab           string      `json:"tab,omitempty" jsonschema:"Tab to overwrite, defaults to Sheet1"`
	Confirm       bool        `json:"confirm,omitempty" jsonschema:"Must be true to overwrite the tab"`
}

// ExportResult reports what was written
type ExportResult struct {
	SpreadsheetID string    `json:"spreadsheet_id"`
	Range         string    `json:"range"`
	WrittenRows   int       `json:"written_rows"`
	CompletedAt   time.Time `json:"completed_at"`
}

var exportHeader = []interface{}{"email", "name", "status", "source", "added_at"}

type exportTools struct {
	service PipelineService
	writer  SheetsWriter
	logger  *logging.Logger
}

// WithExportTools registers export_stage. It is skipped when writer is nil.
func WithExportTools(service PipelineService, writer SheetsWriter) Option {
	return func(reg *registry) {
		if writer == nil {
			reg.logger.Warn("export_stage disabled: Google Sheets client not configured")
			return
		}
		t := exportTools{service: service, writer: writer, logger: reg.logger}
		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "export_stage",
			Description: "Overwrite a Google Sheets tab with a stage's participants (email, name, status, source, added_at)",
		}, t.export)
		reg.add("export_stage")
	}
}

func (t exportTools) export(ctx context.Context, _ *sdkmcp.CallToolRequest, params *ExportParams) (*sdkmcp.CallToolResult, any, error) {
	if params == nil {
		params = &ExportParams{}
	}
	actor, err := params.Actor.actor()
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if params.SpreadsheetID == "" {
		return errorResult("[export_stage] spreadsheet_id is required"), nil, nil
	}
	tab := params.Tab
	if tab == "" {
		tab = "Sheet1"
	}
	target := fmt.Sprintf("%s!A1:E", tab)

	if !params.Confirm {
		return confirmResult("export_stage", fmt.Sprintf("overwrite %s in spreadsheet %s with stage %s", target, params.SpreadsheetID, params.StageID))
	}

	view, err := t.service.StageDetail(ctx, actor, params.JobID, params.StageID)
	if err != nil {
		return errorResult("[export_stage] " + describe(err)), nil, nil
	}

	values := make([][]interface{}, 0, len(view.Participants)+1)
	values = append(values, exportHeader)
	for _, p := range view.Participants {
		addedAt := ""
		if !p.AddedAt.IsZero() {
			addedAt = p.AddedAt.UTC().Format(time.RFC3339)
		}
		values = append(values, []interface{}{p.Email, p.Name, string(p.Status), p.Source, addedAt})
	}

	if err := t.writer.ReplaceValues(ctx, params.SpreadsheetID, target, values); err != nil {
		t.logger.Error("stage export failed", "jobId", params.JobID, "stageId", params.StageID, "err", err)
		return errorResult(fmt.Sprintf("[export_stage] %v", err)), nil, nil
	}

	result := ExportResult{
		SpreadsheetID: params.SpreadsheetID,
		Range:         target,
		WrittenRows:   len(view.Participants),
		CompletedAt:   time.Now().UTC(),
	}
	return textResult(fmt.Sprintf("[export_stage] exported %d participant(s) to %s", result.WrittenRows, target)), result, nil
}
