// Package board implements the user-facing operations over the issue mirror:
// status moves, sprint planning, and issue create/close/delete.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gh "github.com/google/go-github/v57/github"

	"github.com/btouchard/sprintdesk/internal/github"
	"github.com/btouchard/sprintdesk/internal/store"
	"github.com/btouchard/sprintdesk/internal/sync"
)

// ValidationError is a refused user action; local state is unchanged.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// UpstreamError is returned when an action that cannot fall back locally fails on GitHub.
type UpstreamError struct {
	Msg string
	Err error
}

func (e *UpstreamError) Error() string { return e.Msg }
func (e *UpstreamError) Unwrap() error { return e.Err }

// Store is the subset of the record store the board works with.
type Store interface {
	GetIssue(id string) (*store.Issue, error)
	GetProject(id string) (*store.Project, error)
	GetSprint(id string) (*store.Sprint, error)
	ListBacklog(projectIDs []string) ([]store.Issue, error)
	ListSprintIssues(sprintID string) ([]store.Issue, error)
	ListProjectIssues(projectID string) ([]store.Issue, error)
	UpdateIssueStatus(id, status string) error
	UpdateIssueFields(id string, f store.IssueFields) error
	AssignIssueToSprint(id string, sprintID *string) error
	CreateLocalIssue(i *store.Issue) error
	UpsertIssue(i *store.Issue) (store.UpsertOutcome, error)
	MarkIssueClosed(id string) error
	DeleteIssue(id string) error
}

// Upstream is the subset of the GitHub client used for write-through actions.
type Upstream interface {
	CreateIssue(ctx context.Context, token, owner, repo, title string, body *string) (*gh.Issue, error)
	CloseIssue(ctx context.Context, token, owner, repo string, number int) error
}

// Outcome is the result of an action that may partially succeed. Warning is
// set when the local change went through but GitHub could not follow.
type Outcome struct {
	Issue   *store.Issue
	Warning string
}

// Service implements board operations.
type Service struct {
	store    Store
	upstream Upstream
}

// NewService creates a board Service.
func NewService(st Store, up Upstream) *Service {
	return &Service{store: st, upstream: up}
}

// Backlog returns the unassigned issues of the given projects, newest first.
func (s *Service) Backlog(projectIDs []string) ([]store.Issue, error) {
	issues, err := s.store.ListBacklog(projectIDs)
	if err != nil {
		return nil, fmt.Errorf("listing backlog: %w", err)
	}
	return nonNil(issues), nil
}

// SprintIssues returns a sprint's issues ordered by number.
func (s *Service) SprintIssues(sprintID string) ([]store.Issue, error) {
	issues, err := s.store.ListSprintIssues(sprintID)
	if err != nil {
		return nil, fmt.Errorf("listing sprint issues: %w", err)
	}
	return nonNil(issues), nil
}

// SprintBoard splits a project's issues into the sprint's column and the backlog.
type SprintBoard struct {
	SprintIssues  []store.Issue
	BacklogIssues []store.Issue
	AllIssues     []store.Issue
}

// Board reads the board of sprint sp from the mirror.
func (s *Service) Board(sp *store.Sprint) (SprintBoard, error) {
	all, err := s.store.ListProjectIssues(sp.ProjectID)
	if err != nil {
		return SprintBoard{}, fmt.Errorf("listing project issues: %w", err)
	}
	b := SprintBoard{SprintIssues: []store.Issue{}, BacklogIssues: []store.Issue{}, AllIssues: nonNil(all)}
	for _, i := range all {
		switch {
		case i.SprintID == nil:
			b.BacklogIssues = append(b.BacklogIssues, i)
		case *i.SprintID == sp.ID:
			b.SprintIssues = append(b.SprintIssues, i)
		}
	}
	return b, nil
}

// SetStatus moves an open issue between todo and in_progress. Done is only
// reached through a close, and closed issues are frozen.
func (s *Service) SetStatus(issueID, status string) (*store.Issue, error) {
	switch status {
	case store.StatusTodo, store.StatusInProgress:
	case store.StatusDone:
		return nil, invalid("issues move to done only by being closed on GitHub")
	default:
		return nil, invalid("unknown status %q", status)
	}

	issue, err := s.store.GetIssue(issueID)
	if err != nil {
		return nil, err
	}
	if issue.State == store.StateClosed || issue.Status == store.StatusDone {
		return nil, invalid("closed issues cannot be moved")
	}

	if err := s.store.UpdateIssueStatus(issueID, status); err != nil {
		return nil, fmt.Errorf("updating status: %w", err)
	}
	issue.Status = status
	return issue, nil
}

// AssignToSprint puts an issue on a sprint of the same project. The status
// restarts at todo unless the issue is already done.
func (s *Service) AssignToSprint(issueID, sprintID string) (*store.Issue, error) {
	if issueID == "" {
		return nil, invalid("missing issueId")
	}
	sp, err := s.store.GetSprint(sprintID)
	if err != nil {
		return nil, err
	}
	issue, err := s.store.GetIssue(issueID)
	if err != nil {
		return nil, err
	}
	if issue.ProjectID != sp.ProjectID {
		return nil, invalid("issue #%d does not belong to this sprint's project", issue.IssueNumber)
	}

	if err := s.store.AssignIssueToSprint(issueID, &sprintID); err != nil {
		return nil, fmt.Errorf("assigning issue: %w", err)
	}
	return s.store.GetIssue(issueID)
}

// Unassign returns an issue to the backlog.
func (s *Service) Unassign(issueID string) (*store.Issue, error) {
	if err := s.store.AssignIssueToSprint(issueID, nil); err != nil {
		return nil, fmt.Errorf("unassigning issue: %w", err)
	}
	return s.store.GetIssue(issueID)
}

// EditIssue changes the title and/or body. A nil field is left untouched.
func (s *Service) EditIssue(issueID string, title, body *string) (*store.Issue, error) {
	if title != nil && strings.TrimSpace(*title) == "" {
		return nil, invalid("title cannot be empty")
	}
	if err := s.store.UpdateIssueFields(issueID, store.IssueFields{Title: title, Body: body}); err != nil {
		return nil, fmt.Errorf("editing issue: %w", err)
	}
	return s.store.GetIssue(issueID)
}

// CreateIssue adds an issue to the project's backlog. Projects with a linked
// repository create it on GitHub first and mirror the result; others get a
// local issue numbered above the project's current maximum.
func (s *Service) CreateIssue(ctx context.Context, project *store.Project, title string, body *string, token string) (Outcome, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Outcome{}, invalid("title is required")
	}

	if !project.HasRepository() {
		issue := &store.Issue{ProjectID: project.ID, Title: title, Body: body}
		if err := s.store.CreateLocalIssue(issue); err != nil {
			return Outcome{}, fmt.Errorf("creating local issue: %w", err)
		}
		slog.Info("local issue created", "project_id", project.ID, "issue_number", issue.IssueNumber)
		return Outcome{Issue: issue}, nil
	}

	if token == "" {
		return Outcome{}, invalid("connect your GitHub account to create issues in %s/%s",
			project.RepositoryOwner, project.RepositoryName)
	}

	created, err := s.upstream.CreateIssue(ctx, token, project.RepositoryOwner, project.RepositoryName, title, body)
	if err != nil {
		slog.Warn("upstream issue create failed", "project_id", project.ID, "error", err)
		return Outcome{}, &UpstreamError{Msg: github.Describe(err), Err: err}
	}

	rec := sync.IssueRecord(project.ID, created)
	if _, err := s.store.UpsertIssue(rec); err != nil {
		return Outcome{}, fmt.Errorf("mirroring created issue: %w", err)
	}
	issue, err := s.store.GetIssue(rec.ID)
	if err != nil {
		return Outcome{}, err
	}
	slog.Info("issue created on github", "project_id", project.ID, "issue_number", issue.IssueNumber)
	return Outcome{Issue: issue}, nil
}

// CloseIssue closes an issue on GitHub and marks it closed and done locally.
// If GitHub refuses or cannot be reached the local close still happens and
// the outcome carries a warning.
func (s *Service) CloseIssue(ctx context.Context, issueID, token string) (Outcome, error) {
	issue, err := s.store.GetIssue(issueID)
	if err != nil {
		return Outcome{}, err
	}
	if issue.State == store.StateClosed {
		return Outcome{Issue: issue}, nil
	}

	var warning string
	project, err := s.store.GetProject(issue.ProjectID)
	if err != nil {
		return Outcome{}, err
	}
	if project.HasRepository() && issue.HTMLURL != "" {
		warning = s.closeUpstream(ctx, project, issue, token)
	}

	if err := s.store.MarkIssueClosed(issueID); err != nil {
		return Outcome{}, fmt.Errorf("closing issue: %w", err)
	}
	issue.State = store.StateClosed
	issue.Status = store.StatusDone
	return Outcome{Issue: issue, Warning: warning}, nil
}

// DeleteIssue removes an issue from the mirror, detaching it from its sprint
// first. With closeUpstream set, the GitHub issue is closed as well so the
// next sync does not bring it back open; a failure there becomes a warning.
func (s *Service) DeleteIssue(ctx context.Context, issueID, token string, closeUpstream bool) (Outcome, error) {
	issue, err := s.store.GetIssue(issueID)
	if err != nil {
		return Outcome{}, err
	}

	var warning string
	if closeUpstream && issue.HTMLURL != "" && issue.State != store.StateClosed {
		project, err := s.store.GetProject(issue.ProjectID)
		if err != nil {
			return Outcome{}, err
		}
		if project.HasRepository() {
			warning = s.closeUpstream(ctx, project, issue, token)
		}
	}

	if err := s.store.DeleteIssue(issueID); err != nil {
		return Outcome{}, fmt.Errorf("deleting issue: %w", err)
	}
	slog.Info("issue deleted", "issue_id", issueID, "issue_number", issue.IssueNumber)
	return Outcome{Warning: warning}, nil
}

// closeUpstream closes the issue on GitHub and returns a warning on failure.
func (s *Service) closeUpstream(ctx context.Context, project *store.Project, issue *store.Issue, token string) string {
	if token == "" {
		return fmt.Sprintf("issue #%d was only updated locally: no GitHub connection", issue.IssueNumber)
	}
	err := s.upstream.CloseIssue(ctx, token, project.RepositoryOwner, project.RepositoryName, issue.IssueNumber)
	if err == nil {
		return ""
	}
	slog.Warn("upstream close failed", "project_id", project.ID, "issue_number", issue.IssueNumber, "error", err)
	return fmt.Sprintf("issue #%d was only updated locally: %s", issue.IssueNumber, github.Describe(err))
}

func nonNil(issues []store.Issue) []store.Issue {
	if issues == nil {
		return []store.Issue{}
	}
	return issues
}
