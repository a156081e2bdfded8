package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/board"
	"github.com/btouchard/sprintdesk/internal/store"
)

// ListSprintIssues returns a handler that shows a sprint board, one column
// per status. It reads the mirror only; use sync_project to refresh it.
func ListSprintIssues(access *auth.Access, svc *board.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := principal(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sprintID, bad := requireString(req, "sprint_id")
		if bad != nil {
			return bad, nil
		}

		sp, _, _, err := access.RequireSprint(p, sprintID)
		if err != nil {
			return toolError("sprint", err), nil
		}
		issues, err := svc.SprintIssues(sp.ID)
		if err != nil {
			return toolError("sprint issues", err), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "🏃 %s (%s, %s → %s)\n", sp.Name, sp.Status,
			sp.StartDate.Format("2006-01-02"), sp.EndDate.Format("2006-01-02"))
		if sp.Goal != "" {
			fmt.Fprintf(&sb, "Goal: %s\n", sp.Goal)
		}
		if len(issues) == 0 {
			sb.WriteString("\nNo issues planned in this sprint yet.\n")
			return mcp.NewToolResultText(sb.String()), nil
		}

		columns := []struct{ status, title string }{
			{store.StatusTodo, "To do"},
			{store.StatusInProgress, "In progress"},
			{store.StatusDone, "Done"},
		}
		for _, col := range columns {
			var in []store.Issue
			for _, i := range issues {
				if i.Status == col.status {
					in = append(in, i)
				}
			}
			fmt.Fprintf(&sb, "\n%s (%d)\n", col.title, len(in))
			for _, i := range in {
				writeIssue(&sb, i)
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
