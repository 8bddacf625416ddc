package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mfenderov/calscrape/internal/elasticsearch"
	"github.com/mfenderov/calscrape/internal/pipeline"
)

const dateLayout = "2006-01-02"

// Config holds MCP server configuration.
type Config struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Extractor runs one extraction. *pipeline.Pipeline satisfies it.
type Extractor interface {
	Run(ctx context.Context, cfg pipeline.Config) (*pipeline.Result, error)
}

// Searcher queries indexed events. *elasticsearch.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, q elasticsearch.Query) ([]elasticsearch.EventDocument, error)
	GetEvent(ctx context.Context, id string) (*elasticsearch.EventDocument, error)
}

// Server exposes extraction and event search as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	extractor Extractor
	searcher  Searcher
	defaults  pipeline.Config
}

// NewServer creates a new MCP server. The search tools are only
// registered when searcher is non-nil. defaults seed every extraction
// before tool arguments are applied.
func NewServer(config Config, extractor Extractor, searcher Searcher, defaults pipeline.Config) *Server {
	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		extractor: extractor,
		searcher:  searcher,
		defaults:  defaults,
	}

	extractTool := mcp.NewTool("extract_events",
		mcp.WithDescription("Extract calendar events from a web page. Returns the events, warnings and an iCalendar document."),
		mcp.WithString("url",
			mcp.Description("Page to extract events from"),
		),
		mcp.WithString("content",
			mcp.Description("Page content to use instead of fetching the URL"),
		),
		mcp.WithString("timezone",
			mcp.Description("IANA timezone for times without one (e.g. America/Chicago)"),
		),
		mcp.WithString("mode",
			mcp.Description("Extraction mode: document (default) or chunks"),
		),
		mcp.WithString("format",
			mcp.Description("Result format: json (default) or ics"),
		),
	)
	mcpServer.AddTool(extractTool, s.extractHandler)

	if searcher != nil {
		searchTool := mcp.NewTool("search_events",
			mcp.WithDescription("Search previously extracted events by text and date range."),
			mcp.WithString("query",
				mcp.Description("Search query string; empty lists events chronologically"),
			),
			mcp.WithString("from",
				mcp.Description("Earliest start date, YYYY-MM-DD"),
			),
			mcp.WithString("to",
				mcp.Description("Latest start date, YYYY-MM-DD"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of results to return (default: 10)"),
			),
		)
		mcpServer.AddTool(searchTool, s.searchHandler)

		getTool := mcp.NewTool("get_event",
			mcp.WithDescription("Get an indexed event by ID"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Event document ID"),
			),
		)
		mcpServer.AddTool(getTool, s.getEventHandler)
	}

	return s
}

// extractHandler handles the extract_events tool call.
func (s *Server) extractHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := s.defaults
	cfg.URL = req.GetString("url", "")
	cfg.Content = req.GetString("content", "")
	if cfg.URL == "" && cfg.Content == "" {
		return mcp.NewToolResultError("url or content parameter is required"), nil
	}
	if tz := req.GetString("timezone", ""); tz != "" {
		cfg.Timezone = tz
	}
	if mode := req.GetString("mode", ""); mode != "" {
		cfg.Mode = pipeline.Mode(mode)
	}

	result, err := s.extractor.Run(ctx, cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", err)), nil
	}

	if req.GetString("format", "json") == "ics" {
		return mcp.NewToolResultText(result.ICSContent), nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// searchHandler handles the search_events tool call.
func (s *Server) searchHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := elasticsearch.Query{
		Text:  req.GetString("query", ""),
		Limit: req.GetInt("limit", elasticsearch.DefaultSearchLimit),
	}

	var err error
	if q.From, err = parseDate(req.GetString("from", "")); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid from date: %v", err)), nil
	}
	if q.To, err = parseDate(req.GetString("to", "")); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid to date: %v", err)), nil
	}
	if !q.To.IsZero() {
		// Inclusive of the whole end day.
		q.To = q.To.Add(24*time.Hour - time.Second)
	}

	docs, err := s.searcher.Search(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	result, err := json.Marshal(docs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}

	return mcp.NewToolResultText(string(result)), nil
}

// getEventHandler handles the get_event tool call.
func (s *Server) getEventHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	doc, err := s.searcher.GetEvent(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get event failed: %v", err)), nil
	}

	if doc == nil {
		return mcp.NewToolResultError(fmt.Sprintf("event not found: %s", id)), nil
	}

	result, err := json.Marshal(doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal event: %v", err)), nil
	}

	return mcp.NewToolResultText(string(result)), nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
