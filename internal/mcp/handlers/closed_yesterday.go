package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/sync"
)

// ClosedYesterday returns a handler that lists the issues the caller closed
// on GitHub since yesterday, as standup material.
func ClosedYesterday(access *auth.Access, tokens TokenSource, engine *sync.Engine, now func() time.Time) server.ToolHandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := principal(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sprintID, bad := requireString(req, "sprint_id")
		if bad != nil {
			return bad, nil
		}

		_, project, team, err := access.RequireSprint(p, sprintID)
		if err != nil {
			return toolError("sprint", err), nil
		}
		member, err := access.IsTeamMember(p, team.ID)
		if err != nil {
			return toolError("team", err), nil
		}
		if !member {
			return mcp.NewToolResultError("Only team members have closed issues to report"), nil
		}
		if !project.HasRepository() {
			return mcp.NewToolResultText("No GitHub repository is linked to this project."), nil
		}

		token, err := tokens.ValidToken(ctx, p.UserID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read GitHub credential: %s", err)), nil
		}
		if token == "" {
			return mcp.NewToolResultText("Connect your GitHub account to see the issues you closed."), nil
		}
		username := tokens.Username(ctx, p.UserID)
		if username == "" {
			return mcp.NewToolResultText("Your GitHub username could not be determined."), nil
		}

		repo := project.RepositoryOwner + "/" + project.RepositoryName
		closed := engine.ClosedBy(ctx, project.RepositoryOwner, project.RepositoryName, token, username,
			sync.YesterdayStartUTC(now()))
		if len(closed) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("@%s closed no issues in %s since yesterday.", username, repo)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "✅ @%s closed %d issues in %s since yesterday\n\n", username, len(closed), repo)
		for _, c := range closed {
			fmt.Fprintf(&sb, "#%d %s (%s)\n", c.Number, c.Title, c.ClosedAt.UTC().Format("2006-01-02 15:04"))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
