// Package handlers implements the MCP tools. Every tool acts as the
// principal that BearerAuth put in the request context.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/store"
)

// TokenSource hands out upstream tokens for users.
type TokenSource interface {
	ValidToken(ctx context.Context, userID string) (string, error)
	Username(ctx context.Context, userID string) string
}

// ClassStore is the subset of the store the class-scoped tools read.
type ClassStore interface {
	GetUser(id string) (*store.User, error)
	GetClass(id string) (*store.Class, error)
	ListProjectsByClass(classID string) ([]store.Project, error)
}

var errNoPrincipal = errors.New("not authenticated")

func principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return auth.Principal{}, errNoPrincipal
	}
	return p, nil
}

// toolError turns a domain error into a readable tool result.
func toolError(what string, err error) *mcp.CallToolResult {
	switch {
	case auth.IsForbidden(err):
		return mcp.NewToolResultError(fmt.Sprintf("Access denied: %s", err))
	case errors.Is(err, store.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("%s not found", what))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read %s: %s", what, err))
	}
}

// requireString reads a mandatory string argument.
func requireString(req mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	v := strings.TrimSpace(req.GetString(key, ""))
	if v == "" {
		return "", mcp.NewToolResultError(key + " is required")
	}
	return v, nil
}

func statusIcon(status string) string {
	switch status {
	case store.StatusTodo:
		return "⬜"
	case store.StatusInProgress:
		return "🔄"
	case store.StatusDone:
		return "✅"
	default:
		return "❓"
	}
}

func writeIssue(sb *strings.Builder, i store.Issue) {
	fmt.Fprintf(sb, "%s #%d %s", statusIcon(i.Status), i.IssueNumber, i.Title)
	if len(i.Labels) > 0 {
		names := make([]string, 0, len(i.Labels))
		for _, l := range i.Labels {
			names = append(names, l.Name)
		}
		fmt.Fprintf(sb, " [%s]", strings.Join(names, ", "))
	}
	if len(i.Assignees) > 0 {
		logins := make([]string, 0, len(i.Assignees))
		for _, a := range i.Assignees {
			logins = append(logins, "@"+a.Login)
		}
		fmt.Fprintf(sb, " %s", strings.Join(logins, " "))
	}
	sb.WriteString("\n")
}
