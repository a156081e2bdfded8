package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// Store is the persistence interface for sprintdesk.
// Defined at the consumer side per Go conventions.
type Store interface {
	// Users
	CreateUser(u *User) error
	GetUser(id string) (*User, error)

	// Upstream credentials
	GetCredential(userID, provider string) (*Credential, error)
	SaveCredential(c *Credential) error
	UpdateCredentialTokens(userID, provider string, t TokenUpdate) error
	DeleteCredentials(userID, provider string) (int, error)

	// Sessions
	CreateSession(s *Session) error
	GetSession(tokenHash string) (*Session, error)
	DeleteExpiredSessions(now time.Time) error

	// Classes
	CreateClass(c *Class) error
	GetClass(id string) (*Class, error)
	ListClasses() ([]Class, error)
	ListClassesForTeacher(teacherID string) ([]Class, error)
	ListJoinableClasses(userID string) ([]Class, error)
	UpdateClass(id string, f ClassFields) error
	LinkTeacher(classID, teacherID string) error
	IsClassTeacher(classID, teacherID string) (bool, error)
	CountClassTeachers(classID string) (int, error)
	ListClassStudents(classID string) ([]User, error)
	RemoveClassStudent(classID, userID string) error

	// Class join requests
	CreateClassRequest(r *ClassRequest) error
	GetClassRequest(id string) (*ClassRequest, error)
	ListClassRequests(classID string) ([]ClassRequest, error)
	AcceptClassRequest(id string) error
	DeleteClassRequest(id string) error

	// Teams, members and projects
	CreateTeamWithProject(t *Team, p *Project) error
	GetTeam(id string) (*Team, error)
	ListTeamsByClass(classID string) ([]Team, error)
	ListTeamsForUser(userID string) ([]Team, error)
	UpdateTeam(id string, f TeamFields) error
	DeleteTeam(id string) error
	AddTeamMember(m *TeamMember) error
	ListTeamMembers(teamID string) ([]Member, error)
	RemoveTeamMember(teamID, userID string) error
	IsTeamMember(teamID, userID string) (bool, error)
	GetProject(id string) (*Project, error)
	GetProjectByTeam(teamID string) (*Project, error)
	ListProjectsByClass(classID string) ([]Project, error)
	UpdateProjectRepository(projectID, url, owner, name string) error

	// Sprints
	CreateSprint(s *Sprint) error
	GetSprint(id string) (*Sprint, error)
	ListSprintsByProject(projectID string) ([]Sprint, error)
	ListAllSprints() ([]Sprint, error)

	// Mirrored issues
	UpsertIssue(i *Issue) (UpsertOutcome, error)
	CreateLocalIssue(i *Issue) error
	GetIssue(id string) (*Issue, error)
	ListBacklog(projectIDs []string) ([]Issue, error)
	ListSprintIssues(sprintID string) ([]Issue, error)
	ListProjectIssues(projectID string) ([]Issue, error)
	UpdateIssueStatus(id, status string) error
	UpdateIssueFields(id string, f IssueFields) error
	MarkIssueClosed(id string) error
	AssignIssueToSprint(id string, sprintID *string) error
	DeleteIssue(id string) error

	// Ceremonies
	CreateStandup(s *Standup) error
	FindStandupSince(sprintID, userID string, since time.Time) (*Standup, error)
	ListStandups(sprintID string) ([]Standup, error)
	CreateRetrospective(r *Retrospective) error
	ListRetrospectives(sprintID string) ([]Retrospective, error)

	Close() error
}

// Roles a principal can have.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// User is an authenticated person.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      string
	ClassID   string
	CreatedAt time.Time
}

// ProviderGitHub names the upstream provider in credential rows.
const ProviderGitHub = "github"

// Credential is the stored OAuth grant for one (user, provider) pair.
// ExpiresAt is epoch seconds; nil means the access token does not expire.
type Credential struct {
	UserID                string
	Provider              string
	ProviderAccountID     string
	AccessToken           string
	RefreshToken          string
	ExpiresAt             *int64
	RefreshTokenExpiresIn *int64
	TokenType             string
	Scope                 string
}

// TokenUpdate carries the fields rewritten by a refresh exchange.
type TokenUpdate struct {
	AccessToken           string
	RefreshToken          string
	ExpiresAt             *int64
	RefreshTokenExpiresIn *int64
}

// Session maps an opaque bearer token (stored hashed) to a user.
type Session struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Class struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// ClassFields holds editable class fields; nil leaves the column untouched.
type ClassFields struct {
	Name        *string
	Description *string
}

type ClassRequest struct {
	ID        string
	ClassID   string
	UserID    string
	Status    string
	CreatedAt time.Time
}

type Team struct {
	ID          string
	ClassID     string
	Name        string
	Description string
	CreatedAt   time.Time
}

type TeamMember struct {
	TeamID string
	UserID string
	Role   string
}

// Member is a user as seen from one team.
type Member struct {
	User
	TeamRole string
}

// TeamFields holds editable team fields; nil leaves the column untouched.
type TeamFields struct {
	Name        *string
	Description *string
}

// Project belongs to a team and optionally links an upstream repository.
type Project struct {
	ID              string
	TeamID          string
	Name            string
	Description     string
	RepositoryURL   string
	RepositoryOwner string
	RepositoryName  string
	CreatedAt       time.Time
}

// HasRepository reports whether an upstream repository is linked.
func (p *Project) HasRepository() bool {
	return p.RepositoryOwner != "" && p.RepositoryName != ""
}

// Sprint statuses.
const (
	SprintPlanned   = "planned"
	SprintActive    = "active"
	SprintCompleted = "completed"
)

type Sprint struct {
	ID        string
	ProjectID string
	Name      string
	Goal      string
	StartDate time.Time
	EndDate   time.Time
	Status    string
	CreatedAt time.Time
}

// Upstream issue states and local workflow statuses.
const (
	StateOpen   = "open"
	StateClosed = "closed"

	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Label is the subset of upstream label metadata kept on a mirrored issue.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Assignee is the subset of upstream assignee metadata kept on a mirrored issue.
type Assignee struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Issue is the local mirror of an upstream issue, unique per (ProjectID, IssueNumber).
// SprintID nil means the issue sits in the backlog.
type Issue struct {
	ID              string
	ProjectID       string
	SprintID        *string
	IssueNumber     int
	Title           string
	Body            *string
	State           string
	Status          string
	Labels          []Label
	Assignees       []Assignee
	HTMLURL         string
	GitHubCreatedAt time.Time
	GitHubUpdatedAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UpsertOutcome reports what a single upsert did to the mirror.
type UpsertOutcome struct {
	Created    bool
	Updated    bool // an existing row changed
	MarkedDone bool
}

// IssueFields holds user-editable issue fields; nil leaves the column untouched.
type IssueFields struct {
	Title *string
	Body  *string
}

type Standup struct {
	ID        string
	SprintID  string
	UserID    string
	Date      time.Time
	Yesterday string
	Today     string
	Blockers  string
}

type Retrospective struct {
	ID             string
	SprintID       string
	UserID         string
	WhatWentWell   string
	WhatCanImprove string
	ActionItems    string
	CreatedAt      time.Time
}
