// Package mcp registers the stratforge pipeline tools on an MCP server.
// Clients inspect the leaderboard, job queue, and variant lineage, and can
// enqueue new batch jobs.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pkg/audit"
	"github.com/hazyhaar/pkg/kit"
	"github.com/hazyhaar/stratforge/internal/automation"
	"github.com/hazyhaar/stratforge/internal/db"
)

// NewServer creates an MCP server with the stratforge tools registered.
func NewServer(database *db.DB, auditLog audit.Logger) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "stratforge",
		Version: "0.1.0",
	}, nil)

	registerGetLeaderboard(srv, database)
	registerGetJobStatus(srv, database)
	registerGetVariantLineage(srv, database)
	registerEnqueueBatch(srv, database, auditLog)

	return srv
}

// --- get_leaderboard ---

func registerGetLeaderboard(srv *mcp.Server, database *db.DB) {
	var endpoint kit.Endpoint = func(ctx context.Context, request any) (any, error) {
		r := request.(*leaderboardReq)
		rows, err := database.Leaderboard(r.Top, r.Family, r.Status)
		if err != nil {
			return nil, err
		}
		return map[string]any{"entries": rows}, nil
	}

	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"top":    map[string]string{"type": "integer", "description": "Max entries to return (0 = all)"},
			"family": map[string]string{"type": "string", "description": "Filter by strategy family (sma, rsi, macd)"},
			"status": map[string]string{"type": "string", "description": "Filter by entry status (candidate, active, retired)"},
		},
	})
	tool := &mcp.Tool{Name: "get_leaderboard", Description: "List best strategy variants ordered by score", InputSchema: json.RawMessage(schema)}

	kit.RegisterMCPTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := getArguments(req)
		r := &leaderboardReq{
			Top:    intArg(args, "top", 20),
			Family: stringArg(args, "family"),
			Status: stringArg(args, "status"),
		}
		return &kit.MCPDecodeResult{Request: r}, nil
	})
}

type leaderboardReq struct {
	Top    int    `json:"top"`
	Family string `json:"family"`
	Status string `json:"status"`
}

// --- get_job_status ---

func registerGetJobStatus(srv *mcp.Server, database *db.DB) {
	var endpoint kit.Endpoint = func(ctx context.Context, request any) (any, error) {
		r := request.(*jobStatusReq)
		job, err := database.GetJob(r.JobID)
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", r.JobID, err)
		}
		runs, err := database.JobRunsForJob(r.JobID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"job": job, "runs": runs}, nil
	}

	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"job_id": map[string]string{"type": "integer", "description": "Queue job ID"},
		},
		"required": []string{"job_id"},
	})
	tool := &mcp.Tool{Name: "get_job_status", Description: "Get a queued job and its recorded runs", InputSchema: json.RawMessage(schema)}

	kit.RegisterMCPTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := getArguments(req)
		return &kit.MCPDecodeResult{Request: &jobStatusReq{JobID: int64(intArg(args, "job_id", 0))}}, nil
	})
}

type jobStatusReq struct {
	JobID int64 `json:"job_id"`
}

// --- get_variant_lineage ---

func registerGetVariantLineage(srv *mcp.Server, database *db.DB) {
	var endpoint kit.Endpoint = func(ctx context.Context, request any) (any, error) {
		r := request.(*lineageReq)
		chain, err := database.VariantLineage(r.VariantID)
		if err != nil {
			return nil, fmt.Errorf("variant %d: %w", r.VariantID, err)
		}
		return map[string]any{"lineage": chain}, nil
	}

	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"variant_id": map[string]string{"type": "integer", "description": "Variant whose ancestry to walk"},
		},
		"required": []string{"variant_id"},
	})
	tool := &mcp.Tool{Name: "get_variant_lineage", Description: "Walk a variant's remediation ancestry, root first", InputSchema: json.RawMessage(schema)}

	kit.RegisterMCPTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := getArguments(req)
		return &kit.MCPDecodeResult{Request: &lineageReq{VariantID: int64(intArg(args, "variant_id", 0))}}, nil
	})
}

type lineageReq struct {
	VariantID int64 `json:"variant_id"`
}

// --- enqueue_batch ---

func registerEnqueueBatch(srv *mcp.Server, database *db.DB, auditLog audit.Logger) {
	var endpoint kit.Endpoint = func(ctx context.Context, request any) (any, error) {
		r := request.(*enqueueReq)
		// Validate the payload before it enters the queue.
		if _, err := automation.ParseJobSpec(automation.JobTypeStrategyBatch, r.Specification); err != nil {
			return nil, err
		}
		jobID, err := database.EnqueueJob(automation.JobTypeStrategyBatch, r.Specification, r.Priority, r.MaxRetries)
		if err != nil {
			return nil, err
		}
		return map[string]any{"job_id": jobID}, nil
	}
	if auditLog != nil {
		endpoint = audit.Middleware(auditLog, "enqueue_batch")(endpoint)
	}

	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"specification": map[string]string{"type": "string", "description": "strategy_batch job payload as JSON"},
			"priority":      map[string]string{"type": "integer", "description": "Claim priority, higher first"},
			"max_retries":   map[string]string{"type": "integer", "description": "Retry budget before permanent failure"},
		},
		"required": []string{"specification"},
	})
	tool := &mcp.Tool{Name: "enqueue_batch", Description: "Enqueue a strategy batch generation and remediation job", InputSchema: json.RawMessage(schema)}

	kit.RegisterMCPTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := getArguments(req)
		r := &enqueueReq{
			Specification: stringArg(args, "specification"),
			Priority:      intArg(args, "priority", 0),
			MaxRetries:    intArg(args, "max_retries", 3),
		}
		return &kit.MCPDecodeResult{Request: r}, nil
	})
}

type enqueueReq struct {
	Specification string `json:"specification"`
	Priority      int    `json:"priority"`
	MaxRetries    int    `json:"max_retries"`
}

// --- helpers ---

// getArguments decodes the raw tool arguments into a map, returning an empty
// map when no arguments were sent.
func getArguments(req *mcp.CallToolRequest) map[string]any {
	args := map[string]any{}
	if len(req.Params.Arguments) > 0 {
		_ = json.Unmarshal(req.Params.Arguments, &args)
	}
	return args
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return def
	}
}
