package mcp

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/honeycarbs/placement-pipeline/internal/mcp/tools"
	"github.com/honeycarbs/placement-pipeline/pkg/logging"
)

type ToolRegistry struct {
	logger *logging.Logger
}

func NewToolRegistry(logger *logging.Logger) *ToolRegistry {
	return &ToolRegistry{logger: logger}
}

// RegisterAll registers every tool res can back and returns their names
func (r *ToolRegistry) RegisterAll(server *sdkmcp.Server, res *Resources) []string {
	return tools.Register(server, r.logger,
		tools.WithPipelineTools(res.Pipeline),
		tools.WithImportTools(res.Pipeline, res.Rows),
		tools.WithExportTools(res.Pipeline, res.Sheets),
	)
}
