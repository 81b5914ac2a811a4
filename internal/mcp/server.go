package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Dadudekc/swarmmem/internal/config"
	"github.com/Dadudekc/swarmmem/internal/service"
	"github.com/Dadudekc/swarmmem/pkg/version"
)

// Server is the MCP server for swarmmem. It bridges AI agents with the
// shared memory store: every tool call flows through the service facade.
type Server struct {
	mcp    *mcp.Server
	svc    *service.Service
	config *config.Config
	logger *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server over an opened service.
func NewServer(svc *service.Service, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		svc:    svc,
		config: cfg,
		logger: logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "swarmmem",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "swarmmem", version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "memory_record",
			Description: "Record one agent activity (action, protocol, workflow, performance, conversation, coordination, or tool pattern) into shared memory. Pass an ingest_key to make retried calls idempotent.",
		},
		{
			Name:        "memory_search",
			Description: "Semantic search over recorded agent activity. Returns ranked matches; partial_index signals that some documents are still awaiting embeddings.",
		},
		{
			Name:        "memory_similar",
			Description: "Find documents most similar to a reference document, excluding the reference itself.",
		},
		{
			Name:        "memory_expertise",
			Description: "Rank an agent's recorded activity by recency-weighted success to summarize what the agent does well.",
		},
		{
			Name:        "memory_patterns",
			Description: "Rank a project's recorded activity by recency-weighted success to surface recurring patterns.",
		},
		{
			Name:        "memory_get",
			Description: "Fetch one document's full record including its canonical text and kind-specific fields.",
		},
		{
			Name:        "memory_stats",
			Description: "Aggregate document counts by kind, agent, and project, plus embedding coverage.",
		},
		{
			Name:        "memory_status",
			Description: "Report embedding backend health, corpus coverage, and the pending/failed embedding backlog.",
		},
	}
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_record",
		Description: s.toolDescription("memory_record"),
	}, s.mcpRecordHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_search",
		Description: s.toolDescription("memory_search"),
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_similar",
		Description: s.toolDescription("memory_similar"),
	}, s.mcpSimilarHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_expertise",
		Description: s.toolDescription("memory_expertise"),
	}, s.mcpExpertiseHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_patterns",
		Description: s.toolDescription("memory_patterns"),
	}, s.mcpPatternsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_get",
		Description: s.toolDescription("memory_get"),
	}, s.mcpGetHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_stats",
		Description: s.toolDescription("memory_stats"),
	}, s.mcpStatsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_status",
		Description: s.toolDescription("memory_status"),
	}, s.mcpStatusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", len(s.ListTools())))
}

func (s *Server) toolDescription(name string) string {
	for _, t := range s.ListTools() {
		if t.Name == name {
			return t.Description
		}
	}
	return ""
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
