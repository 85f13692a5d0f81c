/*
Package mcp exposes the memory engine to agents over the Model Context
Protocol. The server speaks stdio, so any MCP-capable client can store,
search, relate, and ask questions against the same store the CLI uses.
*/
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/rag"
)

/*
Server wires the engine into an MCP server instance.
*/
type Server struct {
	srv    *server.MCPServer
	store  *memory.Store
	engine *rag.Engine
}

/*
NewServer creates the MCP server and registers every memory tool.
*/
func NewServer(store *memory.Store, engine *rag.Engine) *Server {
	s := &Server{
		srv: server.NewMCPServer(
			"recall",
			"1.0.0",
			server.WithLogging(),
		),
		store:  store,
		engine: engine,
	}

	s.srv.AddTool(buildMemoryStoreTool(), s.handleMemoryStore)
	s.srv.AddTool(buildMemoryGetTool(), s.handleMemoryGet)
	s.srv.AddTool(buildMemorySearchTool(), s.handleMemorySearch)
	s.srv.AddTool(buildMemoryRelateTool(), s.handleMemoryRelate)
	s.srv.AddTool(buildMemoryLineageTool(), s.handleMemoryLineage)
	s.srv.AddTool(buildMemoryAskTool(), s.handleMemoryAsk)

	return s
}

/*
Serve blocks, serving the MCP protocol over stdin/stdout.
*/
func (s *Server) Serve() error {
	return server.ServeStdio(s.srv)
}

func buildMemoryStoreTool() mcp.Tool {
	return mcp.NewTool(
		"memory_store",
		mcp.WithDescription("Stores a piece of content as a new memory with a vector embedding and returns its ID."),
		mcp.WithString("content",
			mcp.Description("Textual content to store"),
			mcp.Required(),
		),
		mcp.WithString("source_type",
			mcp.Description("Origin of the content, e.g. 'text' or 'conversation' (default 'text')"),
		),
		mcp.WithObject("metadata",
			mcp.Description("Arbitrary JSON metadata to attach to the memory"),
		),
	)
}

func buildMemoryGetTool() mcp.Tool {
	return mcp.NewTool(
		"memory_get",
		mcp.WithDescription("Retrieves a memory by ID, including its version and relationship attributes."),
		mcp.WithString("id",
			mcp.Description("Memory ID returned by memory_store"),
			mcp.Required(),
		),
	)
}

func buildMemorySearchTool() mcp.Tool {
	return mcp.NewTool(
		"memory_search",
		mcp.WithDescription("Searches memories by semantic similarity and returns scored results."),
		mcp.WithString("query",
			mcp.Description("Natural language query"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default 5)"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum similarity score in [0,1]; weaker hits are dropped"),
		),
	)
}

func buildMemoryRelateTool() mcp.Tool {
	return mcp.NewTool(
		"memory_relate",
		mcp.WithDescription("Creates a typed relationship between two memories."),
		mcp.WithString("source_id",
			mcp.Description("Source memory ID"),
			mcp.Required(),
		),
		mcp.WithString("target_id",
			mcp.Description("Target memory ID"),
			mcp.Required(),
		),
		mcp.WithString("relationship_type",
			mcp.Description("One of UPDATE, EXTEND, DERIVE"),
			mcp.Enum("UPDATE", "EXTEND", "DERIVE"),
			mcp.Required(),
		),
		mcp.WithNumber("confidence",
			mcp.Description("Relationship confidence in [0,1] (default 1.0)"),
		),
	)
}

func buildMemoryLineageTool() mcp.Tool {
	return mcp.NewTool(
		"memory_lineage",
		mcp.WithDescription("Returns the version chain from a memory forward to its latest version, oldest first."),
		mcp.WithString("id",
			mcp.Description("Memory ID to start the chain from"),
			mcp.Required(),
		),
	)
}

func buildMemoryAskTool() mcp.Tool {
	return mcp.NewTool(
		"memory_ask",
		mcp.WithDescription("Answers a question grounded in stored memories, with citations."),
		mcp.WithString("question",
			mcp.Description("Question to answer from the knowledge base"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("How many memories to place in context (default 5)"),
		),
	)
}

func (s *Server) handleMemoryStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	content, _ := args["content"].(string)
	if content == "" {
		return nil, fmt.Errorf("content parameter is required")
	}

	sourceType, _ := args["source_type"].(string)

	// Metadata may arrive as a map or as a JSON string depending on the
	// client; accept both.
	var metadata map[string]any
	if raw, ok := args["metadata"]; ok {
		switch v := raw.(type) {
		case map[string]any:
			metadata = v
		case string:
			if err := json.Unmarshal([]byte(v), &metadata); err != nil {
				return nil, fmt.Errorf("invalid metadata JSON: %v", err)
			}
		}
	}

	mem, err := s.store.Create(ctx, content, metadata, sourceType, "")
	if err != nil {
		return nil, fmt.Errorf("failed to store memory: %v", err)
	}

	result := map[string]string{
		"id":     mem.ID,
		"status": "success",
	}
	b, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleMemoryGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := req.GetArguments()["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("id parameter is required")
	}

	mem, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve memory: %v", err)
	}

	// Agents never need the raw vector.
	mem.Embedding = nil

	b, _ := json.MarshalIndent(mem, "", "  ")
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleMemorySearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query parameter is required")
	}

	opts := rag.RetrieveOptions{
		Limit:     parseIntArg(args["limit"], 5),
		Threshold: parseFloatArg(args["threshold"], 0),
	}

	results, err := s.engine.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("search failed: %v", err)
	}

	for i := range results {
		results[i].Memory.Embedding = nil
	}

	formatted := map[string]any{
		"query":    query,
		"count":    len(results),
		"memories": results,
	}
	b, _ := json.MarshalIndent(formatted, "", "  ")
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleMemoryRelate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	sourceID, _ := args["source_id"].(string)
	targetID, _ := args["target_id"].(string)
	relType, _ := args["relationship_type"].(string)

	if sourceID == "" || targetID == "" || relType == "" {
		return nil, fmt.Errorf("source_id, target_id and relationship_type are required")
	}

	confidence := parseFloatArg(args["confidence"], 1.0)

	rel, err := s.store.Relate(ctx, sourceID, targetID, relType, confidence, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create relationship: %v", err)
	}

	b, _ := json.Marshal(rel)
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleMemoryLineage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := req.GetArguments()["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("id parameter is required")
	}

	chain, err := s.store.Lineage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to walk lineage: %v", err)
	}

	for i := range chain {
		chain[i].Embedding = nil
	}

	b, _ := json.MarshalIndent(chain, "", "  ")
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleMemoryAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	question, _ := args["question"].(string)
	if question == "" {
		return nil, fmt.Errorf("question parameter is required")
	}

	answer, err := s.engine.Query(ctx, question, rag.RetrieveOptions{
		Limit: parseIntArg(args["limit"], 5),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to answer: %v", err)
	}

	b, _ := json.MarshalIndent(answer, "", "  ")
	return mcp.NewToolResultText(string(b)), nil
}

// parseIntArg accepts float64 (JSON), int, or numeric string.
func parseIntArg(raw any, fallback int) int {
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func parseFloatArg(raw any, fallback float64) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
