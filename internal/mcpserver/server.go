// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Muninn retrieval tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/ingest"
	"github.com/starford/muninn/internal/manifest"
	"github.com/starford/muninn/internal/retrieval"
)

// Server wraps the MCP server with Muninn tools.
type Server struct {
	mcp      *server.MCPServer
	pipeline *retrieval.Pipeline
	ingestor *ingest.Ingestor
	manifest manifest.Store
}

// New creates a new MCP server with all Muninn tools registered.
func New(pipeline *retrieval.Pipeline, ingestor *ingest.Ingestor, mf manifest.Store) *Server {
	s := &Server{pipeline: pipeline, ingestor: ingestor, manifest: mf}

	s.mcp = server.NewMCPServer(
		"Muninn",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("query_documents",
		mcp.WithDescription("Semantic search over the indexed document corpus. "+
			"Returns the most relevant chunks with document and page attribution."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language query")),
		mcp.WithNumber("top_k", mcp.Description("Number of chunks to return (default 5)")),
	), s.queryDocuments)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the documents currently in the index with their chunk counts."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("trigger_ingest",
		mcp.WithDescription("Start an ingestion run that re-indexes changed corpus documents. "+
			"Fails if a run is already in progress."),
	), s.triggerIngest)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) queryDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topK := req.GetInt("top_k", 0)

	res, err := s.pipeline.Retrieve(ctx, query, topK, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.Empty {
		return mcp.NewToolResultText("no matching documents in the index"), nil
	}
	out, _ := json.MarshalIndent(res.Sources, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.manifest.All()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("no documents indexed"), nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s (%d chunks)", e.Document, e.ChunkCount))
	}
	sort.Strings(lines)
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) triggerIngest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ingestor.StartAsync("mcp"); err != nil {
		if errors.Is(err, apperr.ErrBusy) {
			return mcp.NewToolResultError("ingestion already running"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("ingestion started"), nil
}
