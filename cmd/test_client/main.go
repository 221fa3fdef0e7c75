package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Smoke test against a server started with STORE_BACKEND=memory or a scratch
// Firestore project. Every step depends on the job created by the first one.
func main() {
	endpoint := flag.String("endpoint", "http://localhost:8080/mcp/stream", "MCP streamable HTTP endpoint")
	flag.Parse()

	ctx := context.Background()

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "placement-pipeline-test-client",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint: *endpoint,
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = session.Close() }()

	log.Printf("Connected to server (session ID: %s)\n", session.ID())

	testListTools(ctx, session)

	admin := map[string]any{"id": "admin-1", "role": "admin"}
	student := map[string]any{"id": "stu-1", "email": "asha@example.com", "role": "student"}

	var job struct {
		ID     string `json:"id"`
		Stages []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"stages"`
	}
	call(ctx, session, "create_job", map[string]any{
		"actor":   admin,
		"title":   "Graduate Engineer",
		"company": "Acme",
		"stages":  []string{"Online Assessment", "Interview", "Offer"},
		"confirm": true,
	}, &job)
	if len(job.Stages) < 2 {
		log.Fatalf("create_job returned %d stages", len(job.Stages))
	}
	first, second := job.Stages[0].ID, job.Stages[1].ID

	call(ctx, session, "import_stage_rows", map[string]any{
		"actor":    admin,
		"job_id":   job.ID,
		"stage_id": first,
		"rows": []map[string]any{
			{"email": "asha@example.com", "name": "Asha", "status": "pass"},
			{"email": "ben@example.com", "name": "Ben", "status": "fail"},
			{"email": "not-an-email"},
		},
		"confirm": true,
	}, nil)

	call(ctx, session, "set_participant_status", map[string]any{
		"actor":       admin,
		"job_id":      job.ID,
		"stage_id":    first,
		"participant": "ben@example.com",
		"status":      "qualified",
	}, nil)

	call(ctx, session, "set_participant_status", map[string]any{
		"actor":       admin,
		"job_id":      job.ID,
		"stage_id":    first,
		"participant": "ben@example.com",
		"status":      "qualified",
		"confirm":     true,
	}, nil)

	call(ctx, session, "stage_detail", map[string]any{"actor": admin, "job_id": job.ID, "stage_id": second}, nil)
	call(ctx, session, "stage_detail", map[string]any{"actor": student, "job_id": job.ID, "stage_id": second}, nil)

	call(ctx, session, "publish_stage", map[string]any{
		"actor": admin, "job_id": job.ID, "stage_id": first, "value": true, "confirm": true,
	}, nil)
	call(ctx, session, "my_progress", map[string]any{"actor": student, "job_id": job.ID}, nil)
	call(ctx, session, "job_timeline", map[string]any{"actor": admin, "job_id": job.ID}, nil)

	fmt.Println("\nAll tests completed")
}

func testListTools(ctx context.Context, session *mcp.ClientSession) {
	fmt.Println("\nTEST: list tools")

	res, err := session.ListTools(ctx, nil)
	if err != nil {
		log.Fatalf("list tools failed: %v", err)
	}
	for _, tool := range res.Tools {
		fmt.Printf("  %s: %s\n", tool.Name, tool.Description)
	}
}

// call invokes a tool, prints its text and decodes structured content into out
func call(ctx context.Context, session *mcp.ClientSession, name string, args map[string]any, out any) {
	fmt.Printf("\nTEST: %s\n", name)

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		log.Fatalf("%s failed: %v", name, err)
	}
	printResult(result)
	if result.IsError {
		fmt.Printf("%s returned a tool error\n", name)
		return
	}

	if out != nil && result.StructuredContent != nil {
		raw, err := json.Marshal(result.StructuredContent)
		if err != nil {
			log.Fatalf("%s: encode structured content: %v", name, err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			log.Fatalf("%s: decode structured content: %v", name, err)
		}
	}
	fmt.Printf("%s passed\n", name)
}

func printResult(res *mcp.CallToolResult) {
	for _, c := range res.Content {
		if txt, ok := c.(*mcp.TextContent); ok {
			fmt.Println(txt.Text)
		}
	}
}
