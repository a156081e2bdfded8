package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/sprintdesk/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	// sync_project — Pull a project's GitHub issues into the board
	s.AddTool(
		mcp.NewTool("sync_project",
			mcp.WithDescription("Mirror the GitHub issues of a project's linked repository into the board. Issues closed on GitHub move to done."),
			mcp.WithString("project_id",
				mcp.Required(),
				mcp.Description("Project ID"),
			),
		),
		handlers.SyncProject(deps.Access, deps.Tokens, deps.Engine),
	)

	// list_backlog — Unplanned issues of a class
	s.AddTool(
		mcp.NewTool("list_backlog",
			mcp.WithDescription("List the backlog of a class: issues of its projects not planned in any sprint, newest first."),
			mcp.WithString("class_id",
				mcp.Required(),
				mcp.Description("Class ID"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of issues to show (default: 50)"),
			),
		),
		handlers.ListBacklog(deps.Store, deps.Access, deps.Board),
	)

	// list_sprint_issues — Sprint board
	s.AddTool(
		mcp.NewTool("list_sprint_issues",
			mcp.WithDescription("Show a sprint board grouped by status (to do, in progress, done). Reads the local mirror; call sync_project first for fresh data."),
			mcp.WithString("sprint_id",
				mcp.Required(),
				mcp.Description("Sprint ID"),
			),
		),
		handlers.ListSprintIssues(deps.Access, deps.Board),
	)

	// closed_yesterday — Standup helper
	s.AddTool(
		mcp.NewTool("closed_yesterday",
			mcp.WithDescription("List the issues you closed on GitHub since the start of yesterday (UTC) in the sprint's repository. Useful to fill in a standup."),
			mcp.WithString("sprint_id",
				mcp.Required(),
				mcp.Description("Sprint ID"),
			),
		),
		handlers.ClosedYesterday(deps.Access, deps.Tokens, deps.Engine, deps.Now),
	)
}
