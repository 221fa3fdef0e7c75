package tools

import (
	"context"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/pkg/logging"
)

// RowSource reads participant rows from a hosted spreadsheet
type RowSource interface {
	Read(ctx context.Context, spreadsheetID, readRange string) ([]domain.ParticipantRow, error)
}

// ImportRow is one uploaded participant row
type ImportRow struct {
	Email  string `json:"email" jsonschema:"Student email address"`
	Name   string `json:"name,omitempty" jsonschema:"Student display name"`
	Status string `json:"status,omitempty" jsonschema:"Result for this stage; blank means qualified"`
}

// ImportRowsParams defines the arguments for the import_stage_rows tool
type ImportRowsParams struct {
	Actor   ActorParams `json:"actor" jsonschema:"Caller identity"`
	JobID   string      `json:"job_id" jsonschema:"Job identifier"`
	StageID string      `json:"stage_id" jsonschema:"Stage identifier within the job"`
	Rows    []ImportRow `json:"rows" jsonschema:"Rows to write into the stage"`
	Confirm bool        `json:"confirm,omitempty" jsonschema:"Must be true to write the rows"`
}

// ImportSheetParams defines the arguments for the import_stage_sheet tool
type ImportSheetParams struct {
	Actor         ActorParams `json:"actor" jsonschema:"Caller identity"`
	JobID         string      `json:"job_id" jsonschema:"Job identifier"`
	StageID       string      `json:"stage_id" jsonschema:"Stage identifier within the job"`
	SpreadsheetID string      `json:"spreadsheet_id" jsonschema:"Google Sheets document ID"`
	Range         string      `json:"range,omitempty" jsonschema:"A1 range including the header row, defaults to Sheet1"`
	Confirm       bool        `json:"confirm,omitempty" jsonschema:"Must be true to write the rows"`
}

type importTools struct {
	service PipelineService
	source  RowSource
	logger  *logging.Logger
}

// WithImportTools registers bulk import tools. import_stage_sheet is only
// registered when source is non-nil.
func WithImportTools(service PipelineService, source RowSource) Option {
	return func(reg *registry) {
		t := importTools{service: service, source: source, logger: reg.logger}

		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "import_stage_rows",
			Description: "Bulk write result rows (email, name, status) into a stage; qualified rows move to the next stage",
		}, t.importRows)
		reg.add("import_stage_rows")

		if source == nil {
			reg.logger.Warn("import_stage_sheet disabled: no spreadsheet reader configured")
			return
		}
		sdkmcp.AddTool(reg.server, &sdkmcp.Tool{
			Name:        "import_stage_sheet",
			Description: "Read result rows from a Google Sheets range and bulk write them into a stage",
		}, t.importSheet)
		reg.add("import_stage_sheet")
	}
}

func (t importTools) importRows(ctx context.Context, _ *sdkmcp.CallToolRequest, params *ImportRowsParams) (*sdkmcp.CallToolResult, any, error) {
	if params == nil {
		params = &ImportRowsParams{}
	}
	actor, err := params.Actor.actor()
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if !params.Confirm {
		return confirmResult("import_stage_rows", fmt.Sprintf("import %d row(s) into stage %s", len(params.Rows), params.StageID))
	}

	rows := make([]domain.ParticipantRow, 0, len(params.Rows))
	for _, r := range params.Rows {
		rows = append(rows, domain.ParticipantRow{Email: r.Email, Name: r.Name, Status: r.Status})
	}
	return t.run(ctx, "import_stage_rows", actor, params.JobID, params.StageID, rows)
}

func (t importTools) importSheet(ctx context.Context, _ *sdkmcp.CallToolRequest, params *ImportSheetParams) (*sdkmcp.CallToolResult, any, error) {
	if params == nil {
		params = &ImportSheetParams{}
	}
	actor, err := params.Actor.actor()
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if params.SpreadsheetID == "" {
		return errorResult("[import_stage_sheet] spreadsheet_id is required"), nil, nil
	}
	readRange := params.Range
	if readRange == "" {
		readRange = "Sheet1"
	}

	rows, err := t.source.Read(ctx, params.SpreadsheetID, readRange)
	if err != nil {
		t.logger.Warn("sheet read failed", "spreadsheetId", params.SpreadsheetID, "range", readRange, "err", err)
		return errorResult(fmt.Sprintf("[import_stage_sheet] could not read %s: %v", readRange, err)), nil, nil
	}
	if !params.Confirm {
		return confirmResult("import_stage_sheet", fmt.Sprintf("import %d row(s) from %s into stage %s", len(rows), readRange, params.StageID))
	}
	return t.run(ctx, "import_stage_sheet", actor, params.JobID, params.StageID, rows)
}

func (t importTools) run(ctx context.Context, tool string, actor domain.Actor, jobID, stageID string, rows []domain.ParticipantRow) (*sdkmcp.CallToolResult, any, error) {
	result, err := t.service.ImportBatch(ctx, actor, jobID, stageID, rows)
	if err != nil {
		if result.Accepted > 0 {
			msg := fmt.Sprintf("[%s] partial import: %d of %d row(s) committed before a batch failed (%v). Committed rows stay in place; re-run the import to finish.",
				tool, result.Accepted, result.Attempted-result.Rejected-result.Duplicates, err)
			return errorResult(msg), result, nil
		}
		return errorResult(fmt.Sprintf("[%s] %s", tool, describe(err))), result, nil
	}

	msg := fmt.Sprintf("[%s] accepted %d, rejected %d, duplicates %d, moved to next stage %d",
		tool, result.Accepted, result.Rejected, result.Duplicates, result.Mirrored)
	return textResult(msg), result, nil
}
