package mcp

import (
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/board"
	"github.com/btouchard/sprintdesk/internal/mcp/handlers"
	"github.com/btouchard/sprintdesk/internal/sync"
)

// Deps holds shared dependencies injected into MCP handlers.
type Deps struct {
	Store   handlers.ClassStore
	Access  *auth.Access
	Tokens  handlers.TokenSource
	Engine  *sync.Engine
	Board   *board.Service
	Now     func() time.Time
	Version string
}

// NewServer creates and configures the MCP server with all tools registered.
func NewServer(deps *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"Sprintdesk",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	registerTools(s, deps)

	return s
}
