package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/board"
)

// ListBacklog returns a handler that lists a class's unplanned issues.
func ListBacklog(st ClassStore, access *auth.Access, svc *board.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := principal(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		classID, bad := requireString(req, "class_id")
		if bad != nil {
			return bad, nil
		}

		class, err := st.GetClass(classID)
		if err != nil {
			return toolError("class", err), nil
		}
		if err := requireClassAccess(st, access, p, classID); err != nil {
			return toolError("class", err), nil
		}

		projects, err := st.ListProjectsByClass(classID)
		if err != nil {
			return toolError("projects", err), nil
		}
		ids := make([]string, 0, len(projects))
		for _, pr := range projects {
			ids = append(ids, pr.ID)
		}
		issues, err := svc.Backlog(ids)
		if err != nil {
			return toolError("backlog", err), nil
		}

		if len(issues) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("The backlog of %s is empty.", class.Name)), nil
		}

		limit := req.GetInt("limit", 50)
		var sb strings.Builder
		fmt.Fprintf(&sb, "📋 Backlog of %s (%d issues)\n\n", class.Name, len(issues))
		for n, i := range issues {
			if limit > 0 && n >= limit {
				fmt.Fprintf(&sb, "... and %d more\n", len(issues)-limit)
				break
			}
			writeIssue(&sb, i)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// requireClassAccess passes for the class's teachers and its students.
func requireClassAccess(st ClassStore, access *auth.Access, p auth.Principal, classID string) error {
	if p.IsTeacher() {
		return access.RequireClassTeacher(p, classID)
	}
	u, err := st.GetUser(p.UserID)
	if err != nil {
		return err
	}
	if u.ClassID != classID {
		return &auth.ForbiddenError{Reason: "not a member of this class"}
	}
	return nil
}
