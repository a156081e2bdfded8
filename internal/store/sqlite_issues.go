package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const issueColumns = `id, project_id, sprint_id, issue_number, title, body, state, status, labels, assignees,
	html_url, github_created_at, github_updated_at, created_at, updated_at`

// UpsertIssue writes an upstream issue keyed on (project_id, issue_number) with a
// single INSERT ... ON CONFLICT statement. A closed upstream state forces status
// to done; the DO UPDATE is skipped entirely when nothing would change.
func (s *SQLiteStore) UpsertIssue(i *Issue) (UpsertOutcome, error) {
	var out UpsertOutcome
	now := time.Now()

	err := s.withTx(func(tx *sql.Tx) error {
		var existingID, prevStatus string
		err := tx.QueryRow(`SELECT id, status FROM issues WHERE project_id = ? AND issue_number = ?`,
			i.ProjectID, i.IssueNumber).Scan(&existingID, &prevStatus)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			out.Created = true
		case err != nil:
			return fmt.Errorf("reading issue #%d: %w", i.IssueNumber, err)
		}

		id := existingID
		if out.Created {
			id = uuid.NewString()
		}

		res, err := tx.Exec(`INSERT INTO issues (`+issueColumns+`)
			VALUES (?, ?, NULL, ?, ?, ?, ?, CASE WHEN ? = 'closed' THEN 'done' ELSE 'todo' END, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, issue_number) DO UPDATE SET
				title = excluded.title,
				body = excluded.body,
				state = excluded.state,
				html_url = excluded.html_url,
				labels = excluded.labels,
				assignees = excluded.assignees,
				github_updated_at = excluded.github_updated_at,
				status = CASE WHEN excluded.state = 'closed' THEN 'done' ELSE issues.status END,
				updated_at = excluded.updated_at
			WHERE issues.title IS NOT excluded.title
				OR issues.body IS NOT excluded.body
				OR issues.state IS NOT excluded.state
				OR issues.html_url IS NOT excluded.html_url
				OR issues.labels IS NOT excluded.labels
				OR issues.assignees IS NOT excluded.assignees
				OR issues.github_updated_at IS NOT excluded.github_updated_at
				OR (excluded.state = 'closed' AND issues.status <> 'done')`,
			id, i.ProjectID, i.IssueNumber, i.Title, nullStringPtr(i.Body), i.State, i.State,
			encodeJSON(i.Labels), encodeJSON(i.Assignees), i.HTMLURL,
			formatTime(i.GitHubCreatedAt), formatTime(i.GitHubUpdatedAt), formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("upserting issue #%d: %w", i.IssueNumber, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading affected rows: %w", err)
		}

		i.ID = id
		out.Updated = !out.Created && n > 0
		out.MarkedDone = !out.Created && i.State == StateClosed && prevStatus != StatusDone
		return nil
	})
	if err != nil {
		return UpsertOutcome{}, err
	}
	return out, nil
}

// CreateLocalIssue inserts an issue for a project without an upstream repository.
// The issue number is allocated above the project's current maximum in the same statement.
func (s *SQLiteStore) CreateLocalIssue(i *Issue) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Status == "" {
		i.Status = StatusTodo
	}
	now := time.Now()
	i.State = StateOpen
	i.HTMLURL = ""
	i.CreatedAt, i.UpdatedAt = now, now

	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO issues (`+issueColumns+`)
			SELECT ?, ?, ?, COALESCE(MAX(issue_number), 0) + 1, ?, ?, 'open', ?, ?, ?, '', ?, ?, ?, ?
			FROM issues WHERE project_id = ?`,
			i.ID, i.ProjectID, nullStringPtr(i.SprintID), i.Title, nullStringPtr(i.Body), i.Status,
			encodeJSON(i.Labels), encodeJSON(i.Assignees),
			formatTime(now), formatTime(now), formatTime(now), formatTime(now), i.ProjectID)
		if err != nil {
			return mapWriteErr("inserting local issue", err)
		}
		if err := tx.QueryRow(`SELECT issue_number FROM issues WHERE id = ?`, i.ID).Scan(&i.IssueNumber); err != nil {
			return fmt.Errorf("reading allocated issue number: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetIssue(id string) (*Issue, error) {
	row := s.db.QueryRow(`SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	i, err := scanIssue(row)
	if err != nil {
		return nil, mapReadErr("issue", err)
	}
	return i, nil
}

func (s *SQLiteStore) ListBacklog(projectIDs []string) ([]Issue, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(projectIDs))
	for idx, id := range projectIDs {
		args[idx] = id
	}
	return s.queryIssues(`SELECT `+issueColumns+` FROM issues
		WHERE sprint_id IS NULL AND project_id IN (`+placeholders(len(projectIDs))+`)
		ORDER BY created_at DESC, issue_number DESC`, args...)
}

func (s *SQLiteStore) ListSprintIssues(sprintID string) ([]Issue, error) {
	return s.queryIssues(`SELECT `+issueColumns+` FROM issues WHERE sprint_id = ? ORDER BY issue_number ASC`, sprintID)
}

func (s *SQLiteStore) ListProjectIssues(projectID string) ([]Issue, error) {
	return s.queryIssues(`SELECT `+issueColumns+` FROM issues WHERE project_id = ? ORDER BY issue_number ASC`, projectID)
}

func (s *SQLiteStore) UpdateIssueStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE issues SET status = ?, updated_at = ? WHERE id = ?`, status, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating issue status: %w", err)
	}
	return requireAffected(res, "issue")
}

func (s *SQLiteStore) UpdateIssueFields(id string, f IssueFields) error {
	res, err := s.db.Exec(`UPDATE issues SET
		title = COALESCE(?, title),
		body = CASE WHEN ? THEN ? ELSE body END,
		updated_at = ?
		WHERE id = ?`,
		nullStringPtr(f.Title), f.Body != nil, nullStringPtr(f.Body), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating issue: %w", err)
	}
	return requireAffected(res, "issue")
}

// MarkIssueClosed records a close performed from this side: state closed, status done.
func (s *SQLiteStore) MarkIssueClosed(id string) error {
	res, err := s.db.Exec(`UPDATE issues SET state = 'closed', status = 'done', updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("closing issue: %w", err)
	}
	return requireAffected(res, "issue")
}

func (s *SQLiteStore) AssignIssueToSprint(id string, sprintID *string) error {
	status := StatusTodo
	res, err := s.db.Exec(`UPDATE issues SET sprint_id = ?, status = CASE WHEN status = 'done' THEN status ELSE ? END, updated_at = ?
		WHERE id = ?`, nullStringPtr(sprintID), status, formatTime(time.Now()), id)
	if err != nil {
		return mapWriteErr("assigning issue", err)
	}
	return requireAffected(res, "issue")
}

// DeleteIssue detaches the issue from its sprint and then removes it, in one transaction.
func (s *SQLiteStore) DeleteIssue(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE issues SET sprint_id = NULL WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("detaching issue: %w", err)
		}
		if err := requireAffected(res, "issue"); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM issues WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting issue: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) queryIssues(query string, args ...interface{}) ([]Issue, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		issues = append(issues, *i)
	}
	return issues, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIssue(row rowScanner) (*Issue, error) {
	var i Issue
	var sprintID, body sql.NullString
	var labels, assignees string
	var ghCreated, ghUpdated, createdAt, updatedAt string

	err := row.Scan(&i.ID, &i.ProjectID, &sprintID, &i.IssueNumber, &i.Title, &body, &i.State, &i.Status,
		&labels, &assignees, &i.HTMLURL, &ghCreated, &ghUpdated, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	i.SprintID = stringPtr(sprintID)
	i.Body = stringPtr(body)
	i.Labels = decodeList[Label](labels, i.ID)
	i.Assignees = decodeList[Assignee](assignees, i.ID)
	i.GitHubCreatedAt = parseTime(ghCreated)
	i.GitHubUpdatedAt = parseTime(ghUpdated)
	i.CreatedAt = parseTime(createdAt)
	i.UpdatedAt = parseTime(updatedAt)
	return &i, nil
}

func encodeJSON[T any](v []T) string {
	if len(v) == 0 {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// decodeList never fails: metadata that does not parse reads back as empty.
func decodeList[T any](raw, issueID string) []T {
	if raw == "" {
		return nil
	}
	var v []T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		slog.Debug("ignoring unparsable issue metadata", "issue_id", issueID, "error", err)
		return nil
	}
	return v
}
