package app

import (
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "chimera/internal/adapters/mcp"
)

// Version is reported to MCP clients
const Version = "0.1.0"

// MCPServer builds an MCP server exposing search, status and sync tools
func (a *App) MCPServer(name string) *server.MCPServer {
	s := server.NewMCPServer(name, Version, server.WithToolCapabilities(true))
	mcpadapter.RegisterTools(s, mcpadapter.Services{
		Pipeline:     a.Pipeline,
		Graph:        a.Graph,
		Cursors:      a.Cursors,
		Policy:       a.Policy,
		Scheduler:    a.Scheduler,
		Source:       a.Source.Name(),
		DefaultLimit: a.Cfg.Query.DefaultLimit,
		MaxLimit:     a.Cfg.Query.MaxLimit,
	})
	return s
}
