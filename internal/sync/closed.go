package sync

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// ClosedIssue is an issue closed by a given user inside the lookback window.
type ClosedIssue struct {
	Number   int       `json:"number"`
	Title    string    `json:"title"`
	HTMLURL  string    `json:"htmlUrl"`
	ClosedAt time.Time `json:"closedAt"`
}

// YesterdayStartUTC returns 00:00 UTC of the day before now.
func YesterdayStartUTC(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, time.UTC)
}

// ClosedBy lists issues of owner/repo that username closed at or after since.
// It reads only the first page of the event stream. The result is advisory:
// any failure yields an empty list.
func (e *Engine) ClosedBy(ctx context.Context, owner, repo, token, username string, since time.Time) []ClosedIssue {
	if token == "" || username == "" || owner == "" || repo == "" {
		return []ClosedIssue{}
	}

	events, err := e.upstream.ListIssueEvents(ctx, token, owner, repo, e.cfg.EventsPageSize)
	if err != nil {
		slog.Warn("closed-by query: listing issue events failed", "repo", owner+"/"+repo, "error", err)
		return []ClosedIssue{}
	}

	out := []ClosedIssue{}
	seen := make(map[int]bool)
	for _, ev := range events {
		if ev.GetEvent() != "closed" || ev.Issue == nil {
			continue
		}
		if !strings.EqualFold(ev.GetActor().GetLogin(), username) {
			continue
		}
		at := ev.GetCreatedAt().Time
		if at.Before(since) {
			continue
		}
		number := ev.Issue.GetNumber()
		if seen[number] {
			continue
		}
		seen[number] = true
		out = append(out, ClosedIssue{
			Number:   number,
			Title:    ev.Issue.GetTitle(),
			HTMLURL:  ev.Issue.GetHTMLURL(),
			ClosedAt: at,
		})
	}

	slog.Debug("closed-by query", "repo", owner+"/"+repo, "user", username, "events", len(events), "matches", len(out))
	return out
}
