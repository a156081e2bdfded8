package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/sync"
)

// SyncProject returns a handler that mirrors a project's GitHub issues.
func SyncProject(access *auth.Access, tokens TokenSource, engine *sync.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := principal(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		projectID, bad := requireString(req, "project_id")
		if bad != nil {
			return bad, nil
		}

		project, _, err := access.RequireProject(p, projectID)
		if err != nil {
			return toolError("project", err), nil
		}
		if !project.HasRepository() {
			return mcp.NewToolResultError(fmt.Sprintf("Project %q has no linked GitHub repository", project.Name)), nil
		}

		token, err := tokens.ValidToken(ctx, p.UserID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read GitHub credential: %s", err)), nil
		}

		res, err := engine.SyncProject(ctx, project.ID, project.RepositoryOwner, project.RepositoryName, token)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Sync failed: %s", err)), nil
		}
		if res.Error != "" {
			return mcp.NewToolResultError(fmt.Sprintf("GitHub sync failed, board left as is: %s", res.Error)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "🔄 Synced %s/%s into %s\n\n", project.RepositoryOwner, project.RepositoryName, project.Name)
		fmt.Fprintf(&sb, "Issues: %d (%d new, %d updated)\n", res.Fetched, res.Created, res.Updated)
		if res.MarkedDone > 0 {
			fmt.Fprintf(&sb, "Moved to done: %d\n", res.MarkedDone)
		}
		if res.PullRequests > 0 {
			fmt.Fprintf(&sb, "Pull requests skipped: %d\n", res.PullRequests)
		}
		if res.Anonymous {
			sb.WriteString("Read anonymously: connect your GitHub account to see private repositories.\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
