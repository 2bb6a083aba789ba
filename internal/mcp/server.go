package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"flowhook/backend/internal/engine"
	"flowhook/backend/internal/repository"
	"flowhook/backend/pkg/models"
)

type Server struct {
	mcpServer *server.MCPServer
	repo      repository.Repository
	engine    *engine.Engine
}

func NewServer(repo repository.Repository, eng *engine.Engine) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Flowhook Workflows",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		repo:   repo,
		engine: eng,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List all workflows with their activation state"),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"execute_workflow",
			mcp.WithDescription("Execute a workflow by id and return the structured result"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow to execute")),
			mcp.WithString("variables", mcp.Description("Optional JSON object of initial variables")),
		),
		s.handleExecuteWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_runs",
			mcp.WithDescription("List recent runs of a workflow"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
		),
		s.handleListRuns,
	)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflows, err := s.repo.ListWorkflows(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list workflows: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(workflows)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleExecuteWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	workflowID, ok := args["workflow_id"].(string)
	if !ok || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	var vars map[string]any
	if raw, ok := args["variables"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &vars); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid variables JSON: %v", err)), nil
		}
	}

	result := s.engine.ExecuteWorkflow(ctx, workflowID, &models.ExecutionContext{
		Variables:     vars,
		TriggerType:   "manual",
		ExecutionMode: models.ExecutionModeSync,
	})

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	workflowID, ok := args["workflow_id"].(string)
	if !ok || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	runs, err := s.repo.ListRuns(ctx, workflowID, 50)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list runs: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(runs)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
