package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"chimera/internal/application"
	"chimera/internal/application/commands"
	"chimera/internal/domain"
	"chimera/internal/ports"
)

// Services are the application entry points the tools call
type Services struct {
	Pipeline     commands.Querier
	Graph        ports.GraphStore
	Cursors      ports.CursorStore
	Policy       commands.ModeDecider
	Scheduler    commands.SyncTrigger // nil hides trigger_sync
	Source       string
	DefaultLimit int
	MaxLimit     int
}

// RegisterTools adds the knowledge tools to the MCP server
func RegisterTools(s *server.MCPServer, svc Services) {
	s.AddTool(pingTool(), pingHandler())
	s.AddTool(searchTool(svc), searchHandler(svc))
	s.AddTool(statusTool(), statusHandler(svc))
	if svc.Scheduler != nil {
		s.AddTool(triggerSyncTool(), triggerSyncHandler(svc))
	}
}

// --- ping ---

func pingTool() mcp.Tool {
	return mcp.NewTool("ping",
		mcp.WithDescription("Health check, returns pong"),
	)
}

func pingHandler() server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("pong"), nil
	}
}

// --- search_knowledge ---

func searchTool(svc Services) mcp.Tool {
	return mcp.NewTool("search_knowledge",
		mcp.WithDescription("Search the personal knowledge base in natural language. Returns ranked documents with a confidence score, a content preview, the source URL and related documents and tags."),
		mcp.WithString("query",
			mcp.Description("What to look for, in natural language"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results (default %d)", svc.DefaultLimit)),
			mcp.Min(1),
			mcp.Max(float64(svc.MaxLimit)),
		),
		mcp.WithNumber("confidence_floor",
			mcp.Description("Drop results the model is less confident about than this, between 0 and 1"),
			mcp.Min(0),
			mcp.Max(1),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func searchHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if strings.TrimSpace(query) == "" {
			return toolError(fmt.Errorf("query is required"))
		}

		cmd := commands.NewQueryCommand(svc.Pipeline, query, ClientIDFrom(ctx), req.GetInt("limit", 0))
		if _, ok := req.GetArguments()["confidence_floor"]; ok {
			cmd.WithConfidenceFloor(req.GetFloat("confidence_floor", 0))
		}

		result, err := cmd.Execute(ctx)
		if err != nil {
			return toolError(describeQueryError(err))
		}

		body, err := json.MarshalIndent(newSearchResponse(result), "", "  ")
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// describeQueryError keeps a failed query distinguishable from one that
// matched nothing
func describeQueryError(err error) error {
	var perr *application.PipelineError
	if errors.As(err, &perr) {
		return fmt.Errorf("search failed during %s: %v", perr.Stage, perr.Err)
	}
	return err
}

type searchResponse struct {
	QueryID  string        `json:"query_id"`
	Query    string        `json:"query"`
	Keywords []string      `json:"keywords"`
	Topics   []string      `json:"topics,omitempty"`
	Degraded bool          `json:"degraded,omitempty"`
	Message  string        `json:"message,omitempty"`
	Results  []searchEntry `json:"results"`
}

type searchEntry struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	URL               string         `json:"url,omitempty"`
	Confidence        *float64       `json:"confidence,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	Preview           string         `json:"preview,omitempty"`
	ContentAvailable  bool           `json:"content_available"`
	UnavailableReason string         `json:"unavailable_reason,omitempty"`
	Related           []relatedEntry `json:"related,omitempty"`
}

type relatedEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Kind  string `json:"kind"`
	Via   string `json:"via"`
}

func newSearchResponse(r *domain.StructuredResult) searchResponse {
	resp := searchResponse{
		QueryID:  r.QueryID,
		Query:    r.Query,
		Keywords: r.Keywords,
		Topics:   r.Topics,
		Degraded: r.Degraded,
		Results:  make([]searchEntry, 0, len(r.Candidates)),
	}
	switch {
	case r.Empty():
		resp.Message = "No matching documents."
	case r.Degraded:
		resp.Message = "Relevance scoring was unavailable; results are in similarity order."
	}

	for _, c := range r.Candidates {
		e := searchEntry{
			ID:                c.ID,
			Title:             c.Title,
			URL:               c.URL,
			Tags:              c.Tags,
			Preview:           c.ContentPreview,
			ContentAvailable:  c.ContentAvailable,
			UnavailableReason: c.UnavailableReason,
		}
		if c.ConfidenceKnown {
			conf := c.Confidence
			e.Confidence = &conf
		}
		for _, rel := range c.RelatedItems {
			e.Related = append(e.Related, relatedEntry{ID: rel.ID, Title: rel.Title, Kind: rel.Kind, Via: string(rel.Via)})
		}
		resp.Results = append(resp.Results, e)
	}
	return resp
}

// --- status ---

func statusTool() mcp.Tool {
	return mcp.NewTool("status",
		mcp.WithDescription("Report index size, edge counts by relation kind and the state of background synchronisation."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func statusHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var sched commands.SchedulerStatuser = svc.Scheduler
		report, err := commands.NewStatusCommand(svc.Source, svc.Graph, svc.Cursors, svc.Policy, sched).Execute(ctx)
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(report.String()), nil
	}
}

// --- trigger_sync ---

func triggerSyncTool() mcp.Tool {
	return mcp.NewTool("trigger_sync",
		mcp.WithDescription("Start a synchronisation of the index with the document source in the background."),
		mcp.WithString("mode",
			mcp.Description("auto lets the schedule decide, incremental reads recent changes, full re-reads everything and removes deleted documents"),
			mcp.Enum(commands.ModeAuto, "incremental", "full"),
		),
	)
}

func triggerSyncHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cmd := commands.NewSyncCommand(svc.Scheduler, svc.Policy, svc.Cursors, req.GetString("mode", commands.ModeAuto))
		cmd.Async = true
		result, err := cmd.Execute(ctx)
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(result.Message), nil
	}
}

// --- helpers ---

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}
