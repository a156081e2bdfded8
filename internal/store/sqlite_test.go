package store

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedProject creates a class, a team and its project, returning the project.
func seedProject(t *testing.T, s *SQLiteStore, suffix string) *Project {
	t.Helper()
	c := &Class{ID: "class-" + suffix, Name: "Class " + suffix}
	require.NoError(t, s.CreateClass(c))
	team := &Team{ID: "team-" + suffix, ClassID: c.ID, Name: "Team " + suffix}
	p := &Project{ID: "proj-" + suffix, Name: "Team " + suffix + " Project"}
	require.NoError(t, s.CreateTeamWithProject(team, p))
	return p
}

func seedSprint(t *testing.T, s *SQLiteStore, id, projectID string) *Sprint {
	t.Helper()
	now := time.Now()
	sp := &Sprint{ID: id, ProjectID: projectID, Name: id, StartDate: now.Add(-24 * time.Hour), EndDate: now.Add(7 * 24 * time.Hour)}
	require.NoError(t, s.CreateSprint(sp))
	return sp
}

func upstreamIssue(projectID string, number int, title, state string) *Issue {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Issue{
		ProjectID:       projectID,
		IssueNumber:     number,
		Title:           title,
		State:           state,
		Labels:          []Label{{Name: "bug", Color: "d73a4a"}},
		Assignees:       []Assignee{{Login: "octocat"}},
		HTMLURL:         "https://github.com/acme/app/issues/" + title,
		GitHubCreatedAt: ts,
		GitHubUpdatedAt: ts,
	}
}

func TestSQLiteStore_Migration_CreatesTablesAndVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var version int
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestSQLiteStore_FilePermissions(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sub", "sprintdesk.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSQLiteStore_ReopenKeepsSchemaVersion(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sprintdesk.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateUser(&User{ID: "u1", Name: "Ada", Role: RoleStudent}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	u, err := s.GetUser("u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
}

func TestSQLiteStore_UpsertIssue_CreateSeedsStatusFromState(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")

	open := upstreamIssue(p.ID, 1, "Fix bug", StateOpen)
	out, err := s.UpsertIssue(open)
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.False(t, out.MarkedDone)
	assert.NotEmpty(t, open.ID)

	closed := upstreamIssue(p.ID, 2, "Add docs", StateClosed)
	out, err = s.UpsertIssue(closed)
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.False(t, out.MarkedDone, "created rows are not reported as transitions")

	issues, err := s.ListProjectIssues(p.ID)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, 1, issues[0].IssueNumber)
	assert.Equal(t, StatusTodo, issues[0].Status)
	assert.Nil(t, issues[0].SprintID)
	assert.Equal(t, 2, issues[1].IssueNumber)
	assert.Equal(t, StatusDone, issues[1].Status)
	assert.Equal(t, []Label{{Name: "bug", Color: "d73a4a"}}, issues[0].Labels)
	assert.Equal(t, []Assignee{{Login: "octocat"}}, issues[0].Assignees)
}

func TestSQLiteStore_UpsertIssue_ClosedForcesDone(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")

	i := upstreamIssue(p.ID, 7, "Refactor", StateOpen)
	_, err := s.UpsertIssue(i)
	require.NoError(t, err)
	require.NoError(t, s.UpdateIssueStatus(i.ID, StatusInProgress))

	closed := upstreamIssue(p.ID, 7, "Refactor", StateClosed)
	out, err := s.UpsertIssue(closed)
	require.NoError(t, err)
	assert.False(t, out.Created)
	assert.True(t, out.MarkedDone)
	assert.Equal(t, i.ID, closed.ID)

	got, err := s.GetIssue(i.ID)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, got.State)
	assert.Equal(t, StatusDone, got.Status)

	// Still closed upstream: stays done, no new transition.
	out, err = s.UpsertIssue(upstreamIssue(p.ID, 7, "Refactor", StateClosed))
	require.NoError(t, err)
	assert.False(t, out.MarkedDone)
	got, err = s.GetIssue(i.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
}

func TestSQLiteStore_UpsertIssue_KeepsLocalStatusAndSprint(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")
	sp := seedSprint(t, s, "S1", p.ID)

	i := upstreamIssue(p.ID, 3, "Login page", StateOpen)
	_, err := s.UpsertIssue(i)
	require.NoError(t, err)
	require.NoError(t, s.AssignIssueToSprint(i.ID, &sp.ID))
	require.NoError(t, s.UpdateIssueStatus(i.ID, StatusInProgress))

	renamed := upstreamIssue(p.ID, 3, "Login page v2", StateOpen)
	_, err = s.UpsertIssue(renamed)
	require.NoError(t, err)

	got, err := s.GetIssue(i.ID)
	require.NoError(t, err)
	assert.Equal(t, "Login page v2", got.Title)
	assert.Equal(t, StatusInProgress, got.Status)
	require.NotNil(t, got.SprintID)
	assert.Equal(t, "S1", *got.SprintID)
}

func TestSQLiteStore_UpsertIssue_RepeatIsNoOp(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")

	_, err := s.UpsertIssue(upstreamIssue(p.ID, 1, "Fix bug", StateOpen))
	require.NoError(t, err)
	before, err := s.ListProjectIssues(p.ID)
	require.NoError(t, err)

	out, err := s.UpsertIssue(upstreamIssue(p.ID, 1, "Fix bug", StateOpen))
	require.NoError(t, err)
	assert.False(t, out.Created)
	assert.False(t, out.Updated)
	after, err := s.ListProjectIssues(p.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	out, err = s.UpsertIssue(upstreamIssue(p.ID, 1, "Fix the bug", StateOpen))
	require.NoError(t, err)
	assert.True(t, out.Updated)
}

func TestSQLiteStore_UpsertIssue_ConcurrentSameKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for num := 1; num <= 5; num++ {
				_, err := s.UpsertIssue(upstreamIssue(p.ID, num, "same", StateOpen))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	issues, err := s.ListProjectIssues(p.ID)
	require.NoError(t, err)
	assert.Len(t, issues, 5)
}

func TestSQLiteStore_UnparsableMetadataReadsAsEmpty(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")

	i := upstreamIssue(p.ID, 1, "x", StateOpen)
	_, err := s.UpsertIssue(i)
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE issues SET labels = 'not json', assignees = '{' WHERE id = ?`, i.ID)
	require.NoError(t, err)

	got, err := s.GetIssue(i.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Labels)
	assert.Empty(t, got.Assignees)
}

func TestSQLiteStore_CreateLocalIssue_NumbersAboveMax(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")
	other := seedProject(t, s, "b")

	_, err := s.UpsertIssue(upstreamIssue(p.ID, 41, "upstream", StateOpen))
	require.NoError(t, err)

	first := &Issue{ProjectID: p.ID, Title: "local one"}
	require.NoError(t, s.CreateLocalIssue(first))
	second := &Issue{ProjectID: p.ID, Title: "local two"}
	require.NoError(t, s.CreateLocalIssue(second))
	elsewhere := &Issue{ProjectID: other.ID, Title: "other project"}
	require.NoError(t, s.CreateLocalIssue(elsewhere))

	assert.Equal(t, 42, first.IssueNumber)
	assert.Equal(t, 43, second.IssueNumber)
	assert.Equal(t, 1, elsewhere.IssueNumber)

	got, err := s.GetIssue(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.HTMLURL)
	assert.Equal(t, StateOpen, got.State)
	assert.Equal(t, StatusTodo, got.Status)
}

func TestSQLiteStore_BacklogSprintPartition(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")
	s1 := seedSprint(t, s, "S1", p.ID)
	s2 := seedSprint(t, s, "S2", p.ID)

	var ids []string
	for n := 1; n <= 6; n++ {
		i := upstreamIssue(p.ID, n, "issue", StateOpen)
		_, err := s.UpsertIssue(i)
		require.NoError(t, err)
		ids = append(ids, i.ID)
	}
	require.NoError(t, s.AssignIssueToSprint(ids[0], &s1.ID))
	require.NoError(t, s.AssignIssueToSprint(ids[1], &s1.ID))
	require.NoError(t, s.AssignIssueToSprint(ids[2], &s2.ID))

	backlog, err := s.ListBacklog([]string{p.ID})
	require.NoError(t, err)
	inS1, err := s.ListSprintIssues(s1.ID)
	require.NoError(t, err)
	inS2, err := s.ListSprintIssues(s2.ID)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, group := range [][]Issue{backlog, inS1, inS2} {
		for _, i := range group {
			seen[i.ID]++
		}
	}
	assert.Len(t, seen, 6)
	for id, n := range seen {
		assert.Equal(t, 1, n, "issue %s appears in more than one view", id)
	}
	assert.Len(t, backlog, 3)
	assert.Equal(t, []int{1, 2}, []int{inS1[0].IssueNumber, inS1[1].IssueNumber})
}

func TestSQLiteStore_ListBacklog_NewestFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")

	for _, title := range []string{"old", "mid", "new"} {
		require.NoError(t, s.CreateLocalIssue(&Issue{ProjectID: p.ID, Title: title}))
		time.Sleep(2 * time.Millisecond)
	}

	backlog, err := s.ListBacklog([]string{p.ID})
	require.NoError(t, err)
	require.Len(t, backlog, 3)
	assert.Equal(t, "new", backlog[0].Title)
	assert.Equal(t, "old", backlog[2].Title)

	empty, err := s.ListBacklog(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStore_AssignIssueToSprint_ResetsStatusUnlessDone(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")
	sp := seedSprint(t, s, "S1", p.ID)

	open := upstreamIssue(p.ID, 1, "open", StateOpen)
	_, err := s.UpsertIssue(open)
	require.NoError(t, err)
	require.NoError(t, s.UpdateIssueStatus(open.ID, StatusInProgress))
	closed := upstreamIssue(p.ID, 2, "closed", StateClosed)
	_, err = s.UpsertIssue(closed)
	require.NoError(t, err)

	require.NoError(t, s.AssignIssueToSprint(open.ID, &sp.ID))
	require.NoError(t, s.AssignIssueToSprint(closed.ID, &sp.ID))

	got, err := s.GetIssue(open.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTodo, got.Status)
	got, err = s.GetIssue(closed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)

	require.NoError(t, s.AssignIssueToSprint(open.ID, nil))
	got, err = s.GetIssue(open.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SprintID)
}

func TestSQLiteStore_DeleteIssue_DetachesFromSprint(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")
	sp := seedSprint(t, s, "S1", p.ID)

	i := upstreamIssue(p.ID, 9, "to delete", StateOpen)
	_, err := s.UpsertIssue(i)
	require.NoError(t, err)
	require.NoError(t, s.AssignIssueToSprint(i.ID, &sp.ID))

	require.NoError(t, s.DeleteIssue(i.ID))

	inSprint, err := s.ListSprintIssues(sp.ID)
	require.NoError(t, err)
	assert.Empty(t, inSprint)

	_, err = s.GetIssue(i.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var refs int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM issues WHERE sprint_id = ?`, sp.ID).Scan(&refs))
	assert.Zero(t, refs)

	assert.ErrorIs(t, s.DeleteIssue(i.ID), ErrNotFound)
}

func TestSQLiteStore_UpdateIssueFields(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")

	body := "original body"
	i := &Issue{ProjectID: p.ID, Title: "t", Body: &body}
	require.NoError(t, s.CreateLocalIssue(i))

	title := "renamed"
	require.NoError(t, s.UpdateIssueFields(i.ID, IssueFields{Title: &title}))
	got, err := s.GetIssue(i.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	require.NotNil(t, got.Body)
	assert.Equal(t, "original body", *got.Body)

	empty := ""
	require.NoError(t, s.UpdateIssueFields(i.ID, IssueFields{Body: &empty}))
	got, err = s.GetIssue(i.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Body)
	assert.Equal(t, "", *got.Body)

	assert.ErrorIs(t, s.UpdateIssueFields("missing", IssueFields{Title: &title}), ErrNotFound)
}

func TestSQLiteStore_MarkIssueClosed(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")

	i := &Issue{ProjectID: p.ID, Title: "t"}
	require.NoError(t, s.CreateLocalIssue(i))
	require.NoError(t, s.MarkIssueClosed(i.ID))

	got, err := s.GetIssue(i.ID)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, got.State)
	assert.Equal(t, StatusDone, got.Status)
}

func TestSQLiteStore_Credentials(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.CreateUser(&User{ID: "u1", Role: RoleStudent}))

	_, err := s.GetCredential("u1", "github")
	assert.ErrorIs(t, err, ErrNotFound)

	exp := int64(1700000000)
	require.NoError(t, s.SaveCredential(&Credential{
		UserID: "u1", Provider: "github", ProviderAccountID: "42",
		AccessToken: "gho_old", RefreshToken: "ghr_old", ExpiresAt: &exp, Scope: "repo",
	}))

	newExp := exp + 28800
	rtExp := int64(15811200)
	require.NoError(t, s.UpdateCredentialTokens("u1", "github", TokenUpdate{
		AccessToken: "gho_new", RefreshToken: "ghr_new", ExpiresAt: &newExp, RefreshTokenExpiresIn: &rtExp,
	}))

	c, err := s.GetCredential("u1", "github")
	require.NoError(t, err)
	assert.Equal(t, "gho_new", c.AccessToken)
	assert.Equal(t, "ghr_new", c.RefreshToken)
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, newExp, *c.ExpiresAt)
	require.NotNil(t, c.RefreshTokenExpiresIn)
	assert.Equal(t, rtExp, *c.RefreshTokenExpiresIn)
	assert.Equal(t, "repo", c.Scope)

	assert.ErrorIs(t, s.UpdateCredentialTokens("u2", "github", TokenUpdate{}), ErrNotFound)

	n, err := s.DeleteCredentials("u1", "github")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.DeleteCredentials("u1", "github")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteStore_Sessions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.CreateUser(&User{ID: "u1", Role: RoleTeacher}))

	now := time.Now()
	require.NoError(t, s.CreateSession(&Session{TokenHash: "live", UserID: "u1", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.CreateSession(&Session{TokenHash: "stale", UserID: "u1", ExpiresAt: now.Add(-time.Hour)}))
	assert.ErrorIs(t, s.CreateSession(&Session{TokenHash: "live", UserID: "u1", ExpiresAt: now}), ErrConflict)

	require.NoError(t, s.DeleteExpiredSessions(now))

	got, err := s.GetSession("live")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	_, err = s.GetSession("stale")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_AcceptClassRequest(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.CreateClass(&Class{ID: "c1", Name: "Scrum 101"}))
	require.NoError(t, s.CreateUser(&User{ID: "stu", Name: "Sam", Role: RoleStudent}))
	require.NoError(t, s.CreateClassRequest(&ClassRequest{ID: "r1", ClassID: "c1", UserID: "stu"}))
	assert.ErrorIs(t, s.CreateClassRequest(&ClassRequest{ID: "r2", ClassID: "c1", UserID: "stu"}), ErrConflict)

	require.NoError(t, s.AcceptClassRequest("r1"))

	_, err := s.GetClassRequest("r1")
	assert.ErrorIs(t, err, ErrNotFound)
	u, err := s.GetUser("stu")
	require.NoError(t, err)
	assert.Equal(t, "c1", u.ClassID)

	students, err := s.ListClassStudents("c1")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "stu", students[0].ID)

	assert.ErrorIs(t, s.AcceptClassRequest("r1"), ErrNotFound)
}

func TestSQLiteStore_AcceptClassRequest_RollsBackWhenUserMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.CreateClass(&Class{ID: "c1", Name: "Scrum 101"}))
	require.NoError(t, s.CreateUser(&User{ID: "stu", Role: RoleStudent}))
	require.NoError(t, s.CreateClassRequest(&ClassRequest{ID: "r1", ClassID: "c1", UserID: "stu"}))

	// Break the user side so the second statement affects no rows.
	_, err := s.db.Exec(`PRAGMA foreign_keys = OFF`)
	require.NoError(t, err)
	_, err = s.db.Exec(`DELETE FROM users WHERE id = 'stu'`)
	require.NoError(t, err)

	assert.ErrorIs(t, s.AcceptClassRequest("r1"), ErrNotFound)

	_, err = s.GetClassRequest("r1")
	assert.NoError(t, err, "request must survive a failed accept")
}

func TestSQLiteStore_TeamsAndProjects(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")
	require.NoError(t, s.CreateUser(&User{ID: "stu", Role: RoleStudent}))

	assert.ErrorIs(t, s.CreateTeamWithProject(
		&Team{ID: "dup", ClassID: "class-a", Name: "Team a"},
		&Project{ID: "dup-proj", Name: "x"}), ErrConflict)
	_, err := s.GetProject("dup-proj")
	assert.ErrorIs(t, err, ErrNotFound, "project insert rolled back with the team")

	require.NoError(t, s.AddTeamMember(&TeamMember{TeamID: "team-a", UserID: "stu"}))
	ok, err := s.IsTeamMember("team-a", "stu")
	require.NoError(t, err)
	assert.True(t, ok)

	teams, err := s.ListTeamsForUser("stu")
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "team-a", teams[0].ID)

	require.NoError(t, s.UpdateProjectRepository(p.ID, "https://github.com/acme/app", "acme", "app"))
	got, err := s.GetProjectByTeam("team-a")
	require.NoError(t, err)
	assert.True(t, got.HasRepository())
	assert.Equal(t, "acme", got.RepositoryOwner)

	projects, err := s.ListProjectsByClass("class-a")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, p.ID, projects[0].ID)
}

func TestSQLiteStore_ClassTeachers(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.CreateUser(&User{ID: "teach", Role: RoleTeacher}))
	require.NoError(t, s.CreateClass(&Class{ID: "c1", Name: "A"}))
	require.NoError(t, s.CreateClass(&Class{ID: "c2", Name: "B"}))
	require.NoError(t, s.LinkTeacher("c1", "teach"))
	require.NoError(t, s.LinkTeacher("c1", "teach"))

	ok, err := s.IsClassTeacher("c1", "teach")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.IsClassTeacher("c2", "teach")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.CountClassTeachers("c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountClassTeachers("c2")
	require.NoError(t, err)
	assert.Zero(t, n)

	mine, err := s.ListClassesForTeacher("teach")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	all, err := s.ListClasses()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStore_StandupsAndRetrospectives(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")
	sp := seedSprint(t, s, "S1", p.ID)
	require.NoError(t, s.CreateUser(&User{ID: "stu", Role: RoleStudent}))

	dayStart := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateStandup(&Standup{ID: "su1", SprintID: sp.ID, UserID: "stu",
		Date: dayStart.Add(-2 * time.Hour), Yesterday: "a", Today: "b"}))

	_, err := s.FindStandupSince(sp.ID, "stu", dayStart)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateStandup(&Standup{ID: "su2", SprintID: sp.ID, UserID: "stu",
		Date: dayStart.Add(9 * time.Hour), Yesterday: "c", Today: "d"}))
	found, err := s.FindStandupSince(sp.ID, "stu", dayStart)
	require.NoError(t, err)
	assert.Equal(t, "su2", found.ID)

	assert.ErrorIs(t, s.CreateStandup(&Standup{ID: "su3", SprintID: sp.ID, UserID: "stu",
		Date: dayStart.Add(20 * time.Hour), Yesterday: "e", Today: "f"}), ErrConflict, "one per UTC day")

	standups, err := s.ListStandups(sp.ID)
	require.NoError(t, err)
	ids := []string{standups[0].ID, standups[1].ID}
	sort.Strings(ids)
	assert.Equal(t, []string{"su1", "su2"}, ids)
	assert.Equal(t, "su2", standups[0].ID, "newest first")

	require.NoError(t, s.CreateRetrospective(&Retrospective{ID: "r1", SprintID: sp.ID, UserID: "stu",
		WhatWentWell: "pairing", WhatCanImprove: "estimates"}))
	assert.ErrorIs(t, s.CreateRetrospective(&Retrospective{ID: "r2", SprintID: sp.ID, UserID: "stu",
		WhatWentWell: "x", WhatCanImprove: "y"}), ErrConflict)

	retros, err := s.ListRetrospectives(sp.ID)
	require.NoError(t, err)
	require.Len(t, retros, 1)
	assert.Equal(t, "pairing", retros[0].WhatWentWell)
}

func TestSQLiteStore_Sprints(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")
	seedSprint(t, s, "S1", p.ID)

	got, err := s.GetSprint("S1")
	require.NoError(t, err)
	assert.Equal(t, SprintPlanned, got.Status)
	assert.True(t, got.EndDate.After(got.StartDate))

	byProject, err := s.ListSprintsByProject(p.ID)
	require.NoError(t, err)
	assert.Len(t, byProject, 1)

	_, err = s.GetSprint("nope")
	assert.True(t, IsNotFound(err))
}

func TestSQLiteStore_ListJoinableClasses(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	for _, c := range []Class{{ID: "c1", Name: "Zeta"}, {ID: "c2", Name: "Alpha"}, {ID: "c3", Name: "Mid"}} {
		require.NoError(t, s.CreateClass(&c))
	}
	require.NoError(t, s.CreateUser(&User{ID: "free", Role: RoleStudent}))
	require.NoError(t, s.CreateUser(&User{ID: "placed", Role: RoleStudent, ClassID: "c1"}))
	require.NoError(t, s.CreateClassRequest(&ClassRequest{ClassID: "c3", UserID: "placed"}))

	got, err := s.ListJoinableClasses("free")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Alpha", "Mid", "Zeta"}, []string{got[0].Name, got[1].Name, got[2].Name})

	got, err = s.ListJoinableClasses("placed")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].ID)
}

func TestSQLiteStore_UpdateClass(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.CreateClass(&Class{ID: "c1", Name: "Scrum 101", Description: "intro"}))

	name := "Scrum 102"
	require.NoError(t, s.UpdateClass("c1", ClassFields{Name: &name}))
	c, err := s.GetClass("c1")
	require.NoError(t, err)
	assert.Equal(t, "Scrum 102", c.Name)
	assert.Equal(t, "intro", c.Description)

	assert.ErrorIs(t, s.UpdateClass("missing", ClassFields{Name: &name}), ErrNotFound)
}

func TestSQLiteStore_RemoveClassStudent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seedProject(t, s, "a")
	require.NoError(t, s.CreateUser(&User{ID: "stu", Role: RoleStudent, ClassID: "class-a"}))
	require.NoError(t, s.AddTeamMember(&TeamMember{TeamID: "team-a", UserID: "stu"}))

	require.NoError(t, s.RemoveClassStudent("class-a", "stu"))

	u, err := s.GetUser("stu")
	require.NoError(t, err)
	assert.Empty(t, u.ClassID)
	ok, err := s.IsTeamMember("team-a", "stu")
	require.NoError(t, err)
	assert.False(t, ok, "memberships in the class's teams go with the class")

	assert.ErrorIs(t, s.RemoveClassStudent("class-a", "stu"), ErrNotFound)
}

func TestSQLiteStore_TeamMembersUpdateDelete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := seedProject(t, s, "a")
	sp := seedSprint(t, s, "S1", p.ID)
	require.NoError(t, s.CreateTeamWithProject(&Team{ID: "team-b", ClassID: "class-a", Name: "Team b"},
		&Project{ID: "proj-b", Name: "b"}))
	require.NoError(t, s.CreateUser(&User{ID: "u1", Name: "Bea", Role: RoleStudent}))
	require.NoError(t, s.CreateUser(&User{ID: "u2", Name: "Abe", Role: RoleStudent}))
	require.NoError(t, s.AddTeamMember(&TeamMember{TeamID: "team-a", UserID: "u1", Role: "scrum_master"}))
	require.NoError(t, s.AddTeamMember(&TeamMember{TeamID: "team-a", UserID: "u2", Role: "developer"}))

	members, err := s.ListTeamMembers("team-a")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Abe", members[0].Name)
	assert.Equal(t, "developer", members[0].TeamRole)
	assert.Equal(t, RoleStudent, members[0].Role)

	require.NoError(t, s.RemoveTeamMember("team-a", "u2"))
	assert.ErrorIs(t, s.RemoveTeamMember("team-a", "u2"), ErrNotFound)

	renamed := "Team c"
	require.NoError(t, s.UpdateTeam("team-a", TeamFields{Name: &renamed}))
	clash := "Team b"
	assert.ErrorIs(t, s.UpdateTeam("team-a", TeamFields{Name: &clash}), ErrConflict)

	_, err = s.UpsertIssue(upstreamIssue(p.ID, 1, "Fix bug", StateOpen))
	require.NoError(t, err)
	require.NoError(t, s.DeleteTeam("team-a"))
	_, err = s.GetProject(p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetSprint(sp.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	issues, err := s.ListProjectIssues(p.ID)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.ErrorIs(t, s.DeleteTeam("team-a"), ErrNotFound)
}
