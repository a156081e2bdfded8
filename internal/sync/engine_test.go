package sync

import (
	"context"
	"errors"
	"net/http"
	gosync "sync"
	"testing"
	"time"

	gh "github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/sprintdesk/internal/github"
	"github.com/btouchard/sprintdesk/internal/notify"
	"github.com/btouchard/sprintdesk/internal/store"
)

type captureNotifier struct {
	mu     gosync.Mutex
	events []notify.Event
}

func (c *captureNotifier) Notify(e notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureNotifier) ofType(kind string) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Event
	for _, e := range c.events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store    *store.SQLiteStore
	mock     *github.MockServer
	engine   *Engine
	notifier *captureNotifier
	project  *store.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.CreateClass(&store.Class{ID: "c1", Name: "Scrum 101"}))
	p := &store.Project{ID: "p1", Name: "Alpha Project"}
	require.NoError(t, st.CreateTeamWithProject(&store.Team{ID: "t1", ClassID: "c1", Name: "Alpha"}, p))
	require.NoError(t, st.UpdateProjectRepository(p.ID, "https://github.com/acme/app", "acme", "app"))
	p.RepositoryOwner, p.RepositoryName = "acme", "app"

	m := github.NewMockServer()
	t.Cleanup(m.Close)

	n := &captureNotifier{}
	return &fixture{
		store:    st,
		mock:     m,
		engine:   NewEngine(st, m.NewTestClient(), n, Config{}),
		notifier: n,
		project:  p,
	}
}

func (f *fixture) sync(t *testing.T, token string) Result {
	t.Helper()
	res, err := f.engine.SyncProject(context.Background(), f.project.ID, "acme", "app", token)
	require.NoError(t, err)
	return res
}

func byNumber(t *testing.T, st *store.SQLiteStore, projectID string) map[int]store.Issue {
	t.Helper()
	issues, err := st.ListProjectIssues(projectID)
	require.NoError(t, err)
	out := make(map[int]store.Issue, len(issues))
	for _, i := range issues {
		out[i.IssueNumber] = i
	}
	return out
}

func TestSyncProject_InitialSync(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mock.AddIssue(github.MockIssue(1, "Fix bug", "open"))
	f.mock.AddIssue(github.MockIssue(2, "Add docs", "closed"))
	f.mock.AddIssue(github.MockPullRequest(5, "Bump deps"))

	res := f.sync(t, "gho_token")
	assert.Empty(t, res.Error)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.PullRequests)
	assert.False(t, res.Anonymous)

	issues := byNumber(t, f.store, f.project.ID)
	require.Len(t, issues, 2)
	assert.Equal(t, store.StatusTodo, issues[1].Status)
	assert.Equal(t, store.StateOpen, issues[1].State)
	assert.Equal(t, "Fix bug", issues[1].Title)
	assert.Nil(t, issues[1].SprintID)
	assert.Equal(t, "https://github.com/acme/app/issues/1", issues[1].HTMLURL)
	assert.Equal(t, []store.Label{{Name: "backend", Color: "0e8a16"}}, issues[1].Labels)
	assert.Equal(t, "octocat", issues[1].Assignees[0].Login)
	assert.Equal(t, store.StatusDone, issues[2].Status)
	assert.Equal(t, store.StateClosed, issues[2].State)
	_, hasPR := issues[5]
	assert.False(t, hasPR)
}

func TestSyncProject_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mock.AddIssue(github.MockIssue(1, "Fix bug", "open"))
	f.mock.AddIssue(github.MockIssue(2, "Add docs", "closed"))

	f.sync(t, "gho_token")
	before, err := f.store.ListProjectIssues(f.project.ID)
	require.NoError(t, err)

	res := f.sync(t, "gho_token")
	assert.Zero(t, res.Created)
	assert.Zero(t, res.Updated, "unchanged rows are not counted as updated")
	assert.Zero(t, res.MarkedDone)
	after, err := f.store.ListProjectIssues(f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSyncProject_ClosedUpstreamForcesDone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mock.AddIssue(github.MockIssue(3, "Login page", "open"))
	f.sync(t, "gho_token")

	issue := byNumber(t, f.store, f.project.ID)[3]
	require.NoError(t, f.store.UpdateIssueStatus(issue.ID, store.StatusInProgress))

	f.mock.AddIssue(github.MockIssue(3, "Login page", "closed"))
	res := f.sync(t, "gho_token")
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.MarkedDone)

	got := byNumber(t, f.store, f.project.ID)[3]
	assert.Equal(t, store.StatusDone, got.Status)
	assert.Equal(t, store.StateClosed, got.State)

	done := f.notifier.ofType(notify.EventIssueDone)
	require.Len(t, done, 1)
	assert.Equal(t, 3, done[0].IssueNumber)
}

func TestSyncProject_ReCloseIsNoOp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mock.AddIssue(github.MockIssue(2, "Add docs", "closed"))
	f.sync(t, "gho_token")

	res := f.sync(t, "gho_token")
	assert.Zero(t, res.MarkedDone)
	got := byNumber(t, f.store, f.project.ID)[2]
	assert.Equal(t, store.StatusDone, got.Status)
	assert.Empty(t, f.notifier.ofType(notify.EventIssueDone))
}

func TestSyncProject_NewIssuesLandInBacklog(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	now := time.Now()
	sp := &store.Sprint{ID: "S1", ProjectID: f.project.ID, Name: "Sprint 1", StartDate: now, EndDate: now.Add(time.Hour)}
	require.NoError(t, f.store.CreateSprint(sp))

	f.mock.AddIssue(github.MockIssue(1, "first", "open"))
	f.sync(t, "gho_token")
	first := byNumber(t, f.store, f.project.ID)[1]
	require.NoError(t, f.store.AssignIssueToSprint(first.ID, &sp.ID))

	f.mock.AddIssue(github.MockIssue(2, "second", "open"))
	f.sync(t, "gho_token")

	backlog, err := f.store.ListBacklog([]string{f.project.ID})
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, 2, backlog[0].IssueNumber)

	inSprint, err := f.store.ListSprintIssues(sp.ID)
	require.NoError(t, err)
	require.Len(t, inSprint, 1)
	assert.Equal(t, 1, inSprint[0].IssueNumber)
}

func TestSyncProject_NoTokenReadsAnonymously(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mock.AddIssue(github.MockIssue(1, "public", "open"))

	res := f.sync(t, "")
	assert.True(t, res.Anonymous)
	assert.Empty(t, res.Error)
	assert.Equal(t, 1, res.Created)

	reqs := f.mock.Requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Token)
}

func TestSyncProject_RejectedTokenFallsBackOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mock.AcceptTokens("someone-else")
	f.mock.AddIssue(github.MockIssue(1, "public", "open"))

	res := f.sync(t, "gho_revoked")
	assert.True(t, res.Anonymous)
	assert.Empty(t, res.Error)
	assert.Equal(t, 1, res.Created)

	reqs := f.mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "gho_revoked", reqs[0].Token)
	assert.Empty(t, reqs[1].Token)
}

func TestSyncProject_PrivateRepoWithRejectedTokenReportsError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mock.AcceptTokens("someone-else")
	f.mock.SetPrivate(true)
	f.mock.AddIssue(github.MockIssue(1, "secret", "open"))

	res := f.sync(t, "gho_revoked")
	assert.NotEmpty(t, res.Error)
	assert.Contains(t, res.Error, "404")
	assert.Empty(t, byNumber(t, f.store, f.project.ID))
	assert.Len(t, f.notifier.ofType(notify.EventSyncDegraded), 1)
}

func TestSyncProject_ServerErrorDoesNotFallBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mock.FailWith(http.StatusBadGateway)

	res := f.sync(t, "gho_token")
	assert.False(t, res.Anonymous)
	assert.Contains(t, res.Error, "HTTP 502")
	assert.Len(t, f.mock.Requests(), 1)
}

func TestSyncProject_UnreachableKeepsExistingMirror(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mock.AddIssue(github.MockIssue(1, "cached", "open"))
	f.sync(t, "gho_token")

	f.mock.Close()
	res := f.sync(t, "gho_token")
	assert.Contains(t, res.Error, "cannot reach GitHub")
	assert.Len(t, byNumber(t, f.store, f.project.ID), 1)
}

func TestSyncProject_RequiresRepository(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.engine.SyncProject(context.Background(), f.project.ID, "", "app", "tok")
	assert.Error(t, err)
}

type failingStore struct{}

func (failingStore) UpsertIssue(*store.Issue) (store.UpsertOutcome, error) {
	return store.UpsertOutcome{}, errors.New("disk I/O error")
}

func TestSyncProject_StoreFaultPropagates(t *testing.T) {
	t.Parallel()
	m := github.NewMockServer()
	defer m.Close()
	m.AddIssue(github.MockIssue(1, "x", "open"))

	e := NewEngine(failingStore{}, m.NewTestClient(), nil, Config{})
	_, err := e.SyncProject(context.Background(), "p1", "acme", "app", "tok")
	assert.ErrorContains(t, err, "disk I/O error")
}

func TestSyncProject_ConcurrentPassesKeepKeysUnique(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for n := 1; n <= 20; n++ {
		f.mock.AddIssue(github.MockIssue(n, "issue", "open"))
	}

	var wg gosync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.SyncProject(context.Background(), f.project.ID, "acme", "app", "tok")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, byNumber(t, f.store, f.project.ID), 20)
	issues, err := f.store.ListProjectIssues(f.project.ID)
	require.NoError(t, err)
	assert.Len(t, issues, 20)
}

func TestSyncClass_SkipsUnlinkedProjects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mock.AddIssue(github.MockIssue(1, "x", "open"))

	unlinked := &store.Project{ID: "p2", Name: "Beta Project"}
	require.NoError(t, f.store.CreateTeamWithProject(&store.Team{ID: "t2", ClassID: "c1", Name: "Beta"}, unlinked))

	projects, err := f.store.ListProjectsByClass("c1")
	require.NoError(t, err)
	require.Len(t, projects, 2)

	results, err := f.engine.SyncClass(context.Background(), "c1", projects, "tok")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, f.project.ID, results[0].ProjectID)
	assert.Equal(t, 1, results[0].Created)
	assert.Len(t, f.notifier.ofType(notify.EventSyncProgress), 1)
}

func TestClosedBy_FiltersAndDedupes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	now := time.Date(2026, 4, 3, 15, 0, 0, 0, time.UTC)
	since := YesterdayStartUTC(now)

	f.mock.AddEvent(github.MockEvent("closed", 1, "Ada", since.Add(2*time.Hour)))
	f.mock.AddEvent(github.MockEvent("reopened", 1, "ada", since.Add(3*time.Hour)))
	f.mock.AddEvent(github.MockEvent("closed", 1, "ada", since.Add(4*time.Hour)))
	f.mock.AddEvent(github.MockEvent("closed", 2, "bob", since.Add(5*time.Hour)))
	f.mock.AddEvent(github.MockEvent("closed", 3, "ada", since.Add(-time.Minute)))
	f.mock.AddEvent(github.MockEvent("labeled", 4, "ada", since.Add(6*time.Hour)))
	f.mock.AddEvent(github.MockEvent("closed", 5, "ADA", since))

	got := f.engine.ClosedBy(context.Background(), "acme", "app", "tok", "ada", since)
	numbers := make([]int, 0, len(got))
	for _, c := range got {
		numbers = append(numbers, c.Number)
	}
	assert.ElementsMatch(t, []int{1, 5}, numbers)
	// Newest event for #1 comes first in the stream and is kept.
	for _, c := range got {
		if c.Number == 1 {
			assert.Equal(t, since.Add(4*time.Hour), c.ClosedAt.UTC())
		}
	}
}

func TestClosedBy_DegradesToEmpty(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mock.AddEvent(github.MockEvent("closed", 1, "ada", time.Now()))
	since := time.Now().Add(-time.Hour)

	assert.Empty(t, f.engine.ClosedBy(context.Background(), "acme", "app", "", "ada", since), "no credential")
	assert.NotNil(t, f.engine.ClosedBy(context.Background(), "acme", "app", "", "ada", since))

	f.mock.FailWith(http.StatusUnauthorized)
	assert.Empty(t, f.engine.ClosedBy(context.Background(), "acme", "app", "tok", "ada", since))
}

func TestClosedBy_RespectsEventsPageSize(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	e := NewEngine(f.store, f.mock.NewTestClient(), nil, Config{EventsPageSize: 2})
	base := time.Now().Add(-time.Hour)
	for n := 1; n <= 4; n++ {
		f.mock.AddEvent(github.MockEvent("closed", n, "ada", base.Add(time.Duration(n)*time.Minute)))
	}

	got := e.ClosedBy(context.Background(), "acme", "app", "tok", "ada", base)
	assert.Len(t, got, 2)
}

func TestYesterdayStartUTC(t *testing.T) {
	t.Parallel()
	paris := time.FixedZone("CEST", 2*3600)
	now := time.Date(2026, 3, 1, 0, 30, 0, 0, paris) // 2026-02-28 22:30 UTC
	assert.Equal(t, time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC), YesterdayStartUTC(now))
}

func TestIssueRecord_NilBodyAndUnknownState(t *testing.T) {
	t.Parallel()
	rec := IssueRecord("p1", &gh.Issue{Number: gh.Int(4), Title: gh.String("t"), State: gh.String("weird")})
	assert.Nil(t, rec.Body)
	assert.Equal(t, store.StateOpen, rec.State)
	assert.Empty(t, rec.Labels)
}
