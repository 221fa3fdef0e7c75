package tools

import (
	"errors"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/domain/pipeline"
)

// textResult returns a text-only ToolResult
func textResult(msg string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{
			&sdkmcp.TextContent{Text: msg},
		},
	}
}

// errorResult reports a failure the caller can act on without failing the call
func errorResult(msg string) *sdkmcp.CallToolResult {
	res := textResult(msg)
	res.IsError = true
	return res
}

// ActorParams identifies the caller. The transport trusts these fields; the
// portal's authentication layer is expected to fill them.
type ActorParams struct {
	ID    string `json:"id" jsonschema:"Authenticated user id"`
	Email string `json:"email,omitempty" jsonschema:"Authenticated user email, required for students"`
	Role  string `json:"role" jsonschema:"One of student, recruiter, admin"`
}

func (a ActorParams) actor() (domain.Actor, error) {
	role, ok := domain.ParseRole(a.Role)
	if !ok {
		return domain.Actor{}, fmt.Errorf("unknown actor role %q", a.Role)
	}
	return domain.Actor{ID: a.ID, Email: a.Email, Role: role}, nil
}

// Confirmation is returned instead of performing a state change when the
// caller did not pass confirm=true
type Confirmation struct {
	Tool     string `json:"tool"`
	Action   string `json:"action"`
	Required bool   `json:"confirmation_required"`
}

func confirmResult(tool, action string) (*sdkmcp.CallToolResult, any, error) {
	msg := fmt.Sprintf("[%s] About to %s. Nothing was changed; call again with confirm=true to proceed.", tool, action)
	return textResult(msg), Confirmation{Tool: tool, Action: action, Required: true}, nil
}

// describe turns engine errors into messages for the calling agent
func describe(err error) string {
	var (
		nf *pipeline.NotFoundError
		ve *pipeline.ValidationError
		se *pipeline.StoreError
	)
	switch {
	case errors.As(err, &nf):
		return fmt.Sprintf("%s %q does not exist", nf.Kind, nf.ID)
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, pipeline.ErrForbidden):
		return "not allowed: " + err.Error()
	case errors.Is(err, pipeline.ErrStageUnavailable):
		return "this stage has not been published yet"
	case errors.As(err, &se):
		return "storage failure during " + se.Op + ": " + se.Err.Error()
	default:
		return err.Error()
	}
}
