package github

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	gh "github.com/google/go-github/v57/github"
)

// MockServer is a fake GitHub REST API for tests. It serves one repository's
// issues and issue events, the /user endpoint, and issue create/close.
type MockServer struct {
	*httptest.Server

	mu          sync.RWMutex
	issues      map[int]*gh.Issue
	events      []*gh.IssueEvent
	logins      map[string]string // token -> login
	validTokens map[string]bool   // nil accepts any token
	private     bool
	forceStatus int
	requests    []RecordedRequest
}

// RecordedRequest is one request seen by the mock.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Token  string
}

// NewMockServer starts a mock GitHub API.
func NewMockServer() *MockServer {
	m := &MockServer{
		issues: make(map[int]*gh.Issue),
		logins: make(map[string]string),
	}

	r := chi.NewRouter()
	r.Use(m.record)
	r.Get("/user", m.handleUser)
	r.Get("/repos/{owner}/{repo}/issues", m.handleListIssues)
	r.Get("/repos/{owner}/{repo}/issues/events", m.handleListEvents)
	r.Post("/repos/{owner}/{repo}/issues", m.handleCreateIssue)
	r.Patch("/repos/{owner}/{repo}/issues/{number}", m.handleEditIssue)

	m.Server = httptest.NewServer(r)
	return m
}

// NewTestClient returns a Client pointed at the mock.
func (m *MockServer) NewTestClient() *Client {
	c, err := NewClient(Config{APIURL: m.URL, UserAgent: "sprintdesk-test"})
	if err != nil {
		panic(err)
	}
	return c
}

// AddIssue stores an issue (or pull request) served by the list endpoint.
func (m *MockServer) AddIssue(issue *gh.Issue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[issue.GetNumber()] = issue
}

// GetIssue returns the stored issue for assertions.
func (m *MockServer) GetIssue(number int) *gh.Issue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.issues[number]
}

// AddEvent appends an issue event; events are served newest first.
func (m *MockServer) AddEvent(ev *gh.IssueEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// SetUser maps a bearer token to the login returned by /user.
func (m *MockServer) SetUser(token, login string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[token] = login
}

// AcceptTokens restricts authentication to the given tokens; others get 401.
func (m *MockServer) AcceptTokens(tokens ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validTokens = make(map[string]bool, len(tokens))
	for _, t := range tokens {
		m.validTokens[t] = true
	}
}

// SetPrivate makes anonymous repository requests answer 404, as GitHub does.
func (m *MockServer) SetPrivate(private bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.private = private
}

// FailWith forces every request to answer with status; 0 restores normal behavior.
func (m *MockServer) FailWith(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceStatus = status
}

// Requests returns a copy of the requests seen so far.
func (m *MockServer) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Token: token,
		})
		forced := m.forceStatus
		rejected := token != "" && m.validTokens != nil && !m.validTokens[token]
		m.mu.Unlock()

		switch {
		case forced != 0:
			writeError(w, forced, http.StatusText(forced))
		case rejected:
			writeError(w, http.StatusUnauthorized, "Bad credentials")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (m *MockServer) anonymousDenied(r *http.Request) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.private && r.Header.Get("Authorization") == ""
}

func (m *MockServer) handleUser(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	m.mu.RLock()
	login, ok := m.logins[token]
	m.mu.RUnlock()
	if token == "" || !ok {
		writeError(w, http.StatusUnauthorized, "Requires authentication")
		return
	}
	writeJSON(w, http.StatusOK, &gh.User{Login: gh.String(login)})
}

func (m *MockServer) handleListIssues(w http.ResponseWriter, r *http.Request) {
	if m.anonymousDenied(r) {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		state = "open"
	}

	m.mu.RLock()
	var matched []*gh.Issue
	for _, issue := range m.issues {
		if state == "all" || issue.GetState() == state {
			matched = append(matched, issue)
		}
	}
	m.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool { return matched[i].GetNumber() < matched[j].GetNumber() })

	page, perPage := pageParams(r, 30)
	start := (page - 1) * perPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	if end < len(matched) {
		next := *r.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		q.Set("per_page", strconv.Itoa(perPage))
		next.RawQuery = q.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<%s%s>; rel="next"`, m.URL, next.RequestURI()))
	}
	writeJSON(w, http.StatusOK, matched[start:end])
}

func (m *MockServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		writeError(w, http.StatusUnauthorized, "Requires authentication")
		return
	}
	_, perPage := pageParams(r, 30)

	m.mu.RLock()
	events := make([]*gh.IssueEvent, len(m.events))
	copy(events, m.events)
	m.mu.RUnlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].GetCreatedAt().After(events[j].GetCreatedAt().Time)
	})
	if len(events) > perPage {
		events = events[:perPage]
	}
	writeJSON(w, http.StatusOK, events)
}

func (m *MockServer) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		writeError(w, http.StatusUnauthorized, "Requires authentication")
		return
	}
	var req gh.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	m.mu.Lock()
	number := 1
	for n := range m.issues {
		if n >= number {
			number = n + 1
		}
	}
	now := gh.Timestamp{Time: time.Now().UTC().Truncate(time.Second)}
	issue := &gh.Issue{
		Number:    gh.Int(number),
		Title:     req.Title,
		Body:      req.Body,
		State:     gh.String("open"),
		HTMLURL:   gh.String(fmt.Sprintf("https://github.com/%s/%s/issues/%d", chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), number)),
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	m.issues[number] = issue
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, issue)
}

func (m *MockServer) handleEditIssue(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		writeError(w, http.StatusUnauthorized, "Requires authentication")
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue number")
		return
	}
	var req gh.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[number]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if req.Title != nil {
		issue.Title = req.Title
	}
	if req.Body != nil {
		issue.Body = req.Body
	}
	if req.State != nil {
		issue.State = req.State
	}
	issue.UpdatedAt = &gh.Timestamp{Time: time.Now().UTC().Truncate(time.Second)}
	writeJSON(w, http.StatusOK, issue)
}

func pageParams(r *http.Request, defaultPerPage int) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = defaultPerPage
	}
	return page, perPage
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"message":           message,
		"documentation_url": "https://docs.github.com/rest",
	})
}

// MockIssue builds an upstream issue fixture.
func MockIssue(number int, title, state string) *gh.Issue {
	ts := gh.Timestamp{Time: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return &gh.Issue{
		Number:    gh.Int(number),
		Title:     gh.String(title),
		State:     gh.String(state),
		HTMLURL:   gh.String(fmt.Sprintf("https://github.com/acme/app/issues/%d", number)),
		Labels:    []*gh.Label{{Name: gh.String("backend"), Color: gh.String("0e8a16")}},
		Assignees: []*gh.User{{Login: gh.String("octocat"), AvatarURL: gh.String("https://avatars.example/octocat")}},
		CreatedAt: &ts,
		UpdatedAt: &ts,
	}
}

// MockPullRequest builds a pull request as the issues endpoint returns it.
func MockPullRequest(number int, title string) *gh.Issue {
	pr := MockIssue(number, title, "open")
	pr.PullRequestLinks = &gh.PullRequestLinks{
		URL: gh.String(fmt.Sprintf("https://api.github.com/repos/acme/app/pulls/%d", number)),
	}
	return pr
}

// MockEvent builds an issue event fixture.
func MockEvent(kind string, number int, actor string, at time.Time) *gh.IssueEvent {
	return &gh.IssueEvent{
		Event:     gh.String(kind),
		Actor:     &gh.User{Login: gh.String(actor)},
		CreatedAt: &gh.Timestamp{Time: at},
		Issue:     MockIssue(number, fmt.Sprintf("Issue %d", number), "closed"),
	}
}
