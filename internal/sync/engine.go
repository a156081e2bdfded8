// Package sync reconciles the local issue mirror with GitHub.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/sync/errgroup"

	"github.com/btouchard/sprintdesk/internal/github"
	"github.com/btouchard/sprintdesk/internal/notify"
	"github.com/btouchard/sprintdesk/internal/store"
)

// IssueStore is the subset of the store a sync pass writes to.
type IssueStore interface {
	UpsertIssue(i *store.Issue) (store.UpsertOutcome, error)
}

// Upstream is the subset of the GitHub client used by the engine.
type Upstream interface {
	ListIssues(ctx context.Context, token, owner, repo, state string) ([]*gh.Issue, error)
	ListIssueEvents(ctx context.Context, token, owner, repo string, perPage int) ([]*gh.IssueEvent, error)
}

// Config tunes sync passes.
type Config struct {
	IssueState       string // "all", "open" or "closed"
	EventsPageSize   int    // first page of the event stream only
	ClassConcurrency int
}

// Result reports one sync pass. Error carries a user-readable message when
// the upstream fetch failed; the mirror is then left untouched.
type Result struct {
	ProjectID    string `json:"projectId"`
	Fetched      int    `json:"fetched"`
	Created      int    `json:"created"`
	Updated      int    `json:"updated"`
	MarkedDone   int    `json:"markedDone"`
	PullRequests int    `json:"pullRequests"`
	Anonymous    bool   `json:"anonymous"`
	Error        string `json:"error,omitempty"`
}

// Engine pulls issues from GitHub and upserts them into the mirror.
type Engine struct {
	store    IssueStore
	upstream Upstream
	notifier notify.Notifier
	cfg      Config
}

// NewEngine creates an Engine. notifier may be nil.
func NewEngine(st IssueStore, up Upstream, notifier notify.Notifier, cfg Config) *Engine {
	if cfg.IssueState == "" {
		cfg.IssueState = "all"
	}
	if cfg.EventsPageSize <= 0 {
		cfg.EventsPageSize = github.MaxPerPage
	}
	if cfg.ClassConcurrency <= 0 {
		cfg.ClassConcurrency = 4
	}
	return &Engine{store: st, upstream: up, notifier: notifier, cfg: cfg}
}

// SyncProject mirrors owner/repo into projectID. token may be empty, in which
// case the repository is read anonymously. Upstream failures are reported in
// Result.Error; the returned error is reserved for local store faults.
func (e *Engine) SyncProject(ctx context.Context, projectID, owner, repo, token string) (Result, error) {
	res := Result{ProjectID: projectID}
	if owner == "" || repo == "" {
		return res, fmt.Errorf("project %s has no linked repository", projectID)
	}

	issues, anonymous, err := e.fetch(ctx, owner, repo, token)
	res.Anonymous = anonymous
	if err != nil {
		res.Error = github.Describe(err)
		slog.Warn("sync: upstream fetch failed, mirror left as is",
			"project_id", projectID, "repo", owner+"/"+repo, "error", err)
		e.notify(notify.Event{Type: notify.EventSyncDegraded, ProjectID: projectID, Message: res.Error})
		return res, nil
	}

	for _, issue := range issues {
		if issue.IsPullRequest() {
			res.PullRequests++
			continue
		}
		res.Fetched++

		rec := IssueRecord(projectID, issue)
		out, err := e.store.UpsertIssue(rec)
		if err != nil {
			slog.Error("sync: upsert failed", "project_id", projectID, "issue_number", rec.IssueNumber, "error", err)
			return res, fmt.Errorf("syncing issue #%d: %w", rec.IssueNumber, err)
		}
		switch {
		case out.Created:
			res.Created++
		case out.Updated:
			res.Updated++
		}
		if out.MarkedDone {
			res.MarkedDone++
			e.notify(notify.Event{
				Type:        notify.EventIssueDone,
				ProjectID:   projectID,
				IssueNumber: rec.IssueNumber,
				Title:       rec.Title,
				Message:     fmt.Sprintf("#%d closed on GitHub, moved to done", rec.IssueNumber),
			})
		}
	}

	slog.Info("sync: pass complete", "project_id", projectID, "repo", owner+"/"+repo,
		"fetched", res.Fetched, "created", res.Created, "marked_done", res.MarkedDone,
		"pull_requests", res.PullRequests, "anonymous", res.Anonymous)
	e.notify(notify.Event{
		Type:      notify.EventSyncCompleted,
		ProjectID: projectID,
		Message:   fmt.Sprintf("%d issues synced from %s/%s", res.Fetched, owner, repo),
	})
	return res, nil
}

// fetch lists issues with the token, falling back once to an anonymous
// request when there is no token or GitHub rejects it.
func (e *Engine) fetch(ctx context.Context, owner, repo, token string) ([]*gh.Issue, bool, error) {
	if token != "" {
		issues, err := e.upstream.ListIssues(ctx, token, owner, repo, e.cfg.IssueState)
		if err == nil {
			return issues, false, nil
		}
		if !github.IsUnauthorized(err) {
			return nil, false, err
		}
		slog.Warn("sync: github rejected the token, retrying anonymously", "repo", owner+"/"+repo, "error", err)
	}

	issues, err := e.upstream.ListIssues(ctx, "", owner, repo, e.cfg.IssueState)
	return issues, true, err
}

// SyncClass runs SyncProject for every project with a linked repository,
// a bounded number at a time. Results keep the order of projects; projects
// without a repository are skipped.
func (e *Engine) SyncClass(ctx context.Context, classID string, projects []store.Project, token string) ([]Result, error) {
	var linked []store.Project
	for _, p := range projects {
		if p.HasRepository() {
			linked = append(linked, p)
		}
	}

	results := make([]Result, len(linked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ClassConcurrency)

	var mu gosync.Mutex
	done := 0
	for i, p := range linked {
		g.Go(func() error {
			res, err := e.SyncProject(gctx, p.ID, p.RepositoryOwner, p.RepositoryName, token)
			if err != nil {
				return err
			}
			results[i] = res

			mu.Lock()
			done++
			msg := fmt.Sprintf("%d/%d projects synced", done, len(linked))
			mu.Unlock()
			e.notify(notify.Event{Type: notify.EventSyncProgress, ClassID: classID, ProjectID: p.ID, Message: msg})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	slog.Info("sync: class pass complete", "class_id", classID, "projects", len(linked))
	e.notify(notify.Event{Type: notify.EventSyncCompleted, ClassID: classID,
		Message: fmt.Sprintf("%d projects synced", len(linked))})
	return results, nil
}

func (e *Engine) notify(ev notify.Event) {
	if e.notifier != nil {
		e.notifier.Notify(ev)
	}
}

// IssueRecord maps an upstream issue onto a mirror row of projectID.
func IssueRecord(projectID string, issue *gh.Issue) *store.Issue {
	rec := &store.Issue{
		ProjectID:       projectID,
		IssueNumber:     issue.GetNumber(),
		Title:           issue.GetTitle(),
		State:           issue.GetState(),
		HTMLURL:         issue.GetHTMLURL(),
		GitHubCreatedAt: issue.GetCreatedAt().Time,
		GitHubUpdatedAt: issue.GetUpdatedAt().Time,
	}
	if body := issue.GetBody(); body != "" {
		rec.Body = &body
	}
	for _, l := range issue.Labels {
		rec.Labels = append(rec.Labels, store.Label{Name: l.GetName(), Color: l.GetColor()})
	}
	for _, a := range issue.Assignees {
		rec.Assignees = append(rec.Assignees, store.Assignee{Login: a.GetLogin(), AvatarURL: a.GetAvatarURL()})
	}
	if rec.State != store.StateClosed {
		rec.State = store.StateOpen
	}
	return rec
}
