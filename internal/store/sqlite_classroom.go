package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// --- Classes ---

func (s *SQLiteStore) CreateClass(c *Class) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO classes (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, formatTime(c.CreatedAt))
	if err != nil {
		return mapWriteErr("inserting class", err)
	}
	return nil
}

func (s *SQLiteStore) GetClass(id string) (*Class, error) {
	var c Class
	var createdAt string
	err := s.db.QueryRow(`SELECT id, name, description, created_at FROM classes WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Description, &createdAt)
	if err != nil {
		return nil, mapReadErr("class", err)
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func (s *SQLiteStore) ListClasses() ([]Class, error) {
	return s.queryClasses(`SELECT id, name, description, created_at FROM classes ORDER BY created_at DESC`)
}

func (s *SQLiteStore) ListClassesForTeacher(teacherID string) ([]Class, error) {
	return s.queryClasses(`SELECT c.id, c.name, c.description, c.created_at FROM classes c
		JOIN class_teachers ct ON ct.class_id = c.id
		WHERE ct.teacher_id = ? ORDER BY c.created_at DESC`, teacherID)
}

// ListJoinableClasses returns the classes userID is not in and has no pending
// request for, by name.
func (s *SQLiteStore) ListJoinableClasses(userID string) ([]Class, error) {
	return s.queryClasses(`SELECT c.id, c.name, c.description, c.created_at FROM classes c
		WHERE c.id NOT IN (SELECT class_id FROM class_requests WHERE user_id = ?)
			AND c.id NOT IN (SELECT class_id FROM users WHERE id = ? AND class_id IS NOT NULL)
		ORDER BY c.name ASC`, userID, userID)
}

// UpdateClass applies the non-nil fields of f.
func (s *SQLiteStore) UpdateClass(id string, f ClassFields) error {
	res, err := s.db.Exec(`UPDATE classes SET name = COALESCE(?, name), description = COALESCE(?, description)
		WHERE id = ?`, nullStringPtr(f.Name), nullStringPtr(f.Description), id)
	if err != nil {
		return fmt.Errorf("updating class: %w", err)
	}
	return requireAffected(res, "class")
}

func (s *SQLiteStore) queryClasses(query string, args ...interface{}) ([]Class, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var classes []Class
	for rows.Next() {
		var c Class
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning class: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

func (s *SQLiteStore) LinkTeacher(classID, teacherID string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO class_teachers (class_id, teacher_id) VALUES (?, ?)`, classID, teacherID)
	if err != nil {
		return fmt.Errorf("linking teacher: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IsClassTeacher(classID, teacherID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM class_teachers WHERE class_id = ? AND teacher_id = ?`, classID, teacherID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking class teacher: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CountClassTeachers(classID string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM class_teachers WHERE class_id = ?`, classID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting class teachers: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListClassStudents(classID string) ([]User, error) {
	rows, err := s.db.Query(`SELECT id, name, email, role, class_id, created_at FROM users
		WHERE class_id = ? AND role = 'student' ORDER BY name`, classID)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		var cid sql.NullString
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &cid, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning student: %w", err)
		}
		u.ClassID = cid.String
		u.CreatedAt = parseTime(createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// RemoveClassStudent takes a student out of a class along with their
// memberships in the class's teams.
func (s *SQLiteStore) RemoveClassStudent(classID, userID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE users SET class_id = NULL WHERE id = ? AND class_id = ? AND role = 'student'`,
			userID, classID)
		if err != nil {
			return fmt.Errorf("removing student: %w", err)
		}
		if err := requireAffected(res, "student"); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM team_members WHERE user_id = ?
			AND team_id IN (SELECT id FROM teams WHERE class_id = ?)`, userID, classID); err != nil {
			return fmt.Errorf("removing team memberships: %w", err)
		}
		return nil
	})
}

// --- Class requests ---

func (s *SQLiteStore) CreateClassRequest(r *ClassRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = "pending"
	}
	_, err := s.db.Exec(`INSERT INTO class_requests (id, class_id, user_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.ClassID, r.UserID, r.Status, formatTime(r.CreatedAt))
	if err != nil {
		return mapWriteErr("inserting class request", err)
	}
	return nil
}

func (s *SQLiteStore) GetClassRequest(id string) (*ClassRequest, error) {
	var r ClassRequest
	var createdAt string
	err := s.db.QueryRow(`SELECT id, class_id, user_id, status, created_at FROM class_requests WHERE id = ?`, id).
		Scan(&r.ID, &r.ClassID, &r.UserID, &r.Status, &createdAt)
	if err != nil {
		return nil, mapReadErr("class request", err)
	}
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func (s *SQLiteStore) ListClassRequests(classID string) ([]ClassRequest, error) {
	rows, err := s.db.Query(`SELECT id, class_id, user_id, status, created_at FROM class_requests
		WHERE class_id = ? ORDER BY created_at ASC`, classID)
	if err != nil {
		return nil, fmt.Errorf("listing class requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reqs []ClassRequest
	for rows.Next() {
		var r ClassRequest
		var createdAt string
		if err := rows.Scan(&r.ID, &r.ClassID, &r.UserID, &r.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning class request: %w", err)
		}
		r.CreatedAt = parseTime(createdAt)
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// AcceptClassRequest deletes the request and moves the student into the class atomically.
func (s *SQLiteStore) AcceptClassRequest(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		var classID, userID string
		err := tx.QueryRow(`SELECT class_id, user_id FROM class_requests WHERE id = ?`, id).Scan(&classID, &userID)
		if err != nil {
			return mapReadErr("class request", err)
		}
		if _, err := tx.Exec(`DELETE FROM class_requests WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting class request: %w", err)
		}
		res, err := tx.Exec(`UPDATE users SET class_id = ? WHERE id = ?`, classID, userID)
		if err != nil {
			return fmt.Errorf("assigning class: %w", err)
		}
		return requireAffected(res, "user")
	})
}

func (s *SQLiteStore) DeleteClassRequest(id string) error {
	res, err := s.db.Exec(`DELETE FROM class_requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting class request: %w", err)
	}
	return requireAffected(res, "class request")
}

// --- Teams & projects ---

// CreateTeamWithProject inserts a team and its project together.
func (s *SQLiteStore) CreateTeamWithProject(t *Team, p *Project) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.TeamID = t.ID

	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO teams (id, class_id, name, description, created_at) VALUES (?, ?, ?, ?, ?)`,
			t.ID, t.ClassID, t.Name, t.Description, formatTime(t.CreatedAt)); err != nil {
			return mapWriteErr("inserting team", err)
		}
		if _, err := tx.Exec(`INSERT INTO projects (id, team_id, name, description, created_at) VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.TeamID, p.Name, p.Description, formatTime(p.CreatedAt)); err != nil {
			return mapWriteErr("inserting project", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetTeam(id string) (*Team, error) {
	var t Team
	var createdAt string
	err := s.db.QueryRow(`SELECT id, class_id, name, description, created_at FROM teams WHERE id = ?`, id).
		Scan(&t.ID, &t.ClassID, &t.Name, &t.Description, &createdAt)
	if err != nil {
		return nil, mapReadErr("team", err)
	}
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

func (s *SQLiteStore) ListTeamsByClass(classID string) ([]Team, error) {
	return s.queryTeams(`SELECT id, class_id, name, description, created_at FROM teams
		WHERE class_id = ? ORDER BY created_at DESC`, classID)
}

func (s *SQLiteStore) ListTeamsForUser(userID string) ([]Team, error) {
	return s.queryTeams(`SELECT t.id, t.class_id, t.name, t.description, t.created_at FROM teams t
		JOIN team_members m ON m.team_id = t.id
		WHERE m.user_id = ? ORDER BY t.created_at DESC`, userID)
}

func (s *SQLiteStore) queryTeams(query string, args ...interface{}) ([]Team, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var teams []Team
	for rows.Next() {
		var t Team
		var createdAt string
		if err := rows.Scan(&t.ID, &t.ClassID, &t.Name, &t.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning team: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *SQLiteStore) AddTeamMember(m *TeamMember) error {
	if m.Role == "" {
		m.Role = "member"
	}
	_, err := s.db.Exec(`INSERT INTO team_members (team_id, user_id, role) VALUES (?, ?, ?)`, m.TeamID, m.UserID, m.Role)
	if err != nil {
		return mapWriteErr("adding team member", err)
	}
	return nil
}

// ListTeamMembers returns the members of a team by name.
func (s *SQLiteStore) ListTeamMembers(teamID string) ([]Member, error) {
	rows, err := s.db.Query(`SELECT u.id, u.name, u.email, u.role, u.class_id, u.created_at, m.role
		FROM team_members m JOIN users u ON u.id = m.user_id
		WHERE m.team_id = ? ORDER BY u.name`, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing team members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []Member
	for rows.Next() {
		var m Member
		var cid sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Role, &cid, &createdAt, &m.TeamRole); err != nil {
			return nil, fmt.Errorf("scanning team member: %w", err)
		}
		m.ClassID = cid.String
		m.CreatedAt = parseTime(createdAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *SQLiteStore) RemoveTeamMember(teamID, userID string) error {
	res, err := s.db.Exec(`DELETE FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID)
	if err != nil {
		return fmt.Errorf("removing team member: %w", err)
	}
	return requireAffected(res, "team member")
}

// UpdateTeam applies the non-nil fields of f. Renaming onto another team's
// name in the same class fails with ErrConflict.
func (s *SQLiteStore) UpdateTeam(id string, f TeamFields) error {
	res, err := s.db.Exec(`UPDATE teams SET name = COALESCE(?, name), description = COALESCE(?, description)
		WHERE id = ?`, nullStringPtr(f.Name), nullStringPtr(f.Description), id)
	if err != nil {
		return mapWriteErr("updating team", err)
	}
	return requireAffected(res, "team")
}

// DeleteTeam removes a team. Its projects, sprints, mirrored issues and
// ceremonies go with it.
func (s *SQLiteStore) DeleteTeam(id string) error {
	res, err := s.db.Exec(`DELETE FROM teams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting team: %w", err)
	}
	return requireAffected(res, "team")
}

func (s *SQLiteStore) IsTeamMember(teamID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking team member: %w", err)
	}
	return n > 0, nil
}

const projectColumns = `id, team_id, name, description, repository_url, repository_owner, repository_name, created_at`

func (s *SQLiteStore) GetProject(id string) (*Project, error) {
	p, err := scanProject(s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if err != nil {
		return nil, mapReadErr("project", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetProjectByTeam(teamID string) (*Project, error) {
	p, err := scanProject(s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE team_id = ?
		ORDER BY created_at ASC LIMIT 1`, teamID))
	if err != nil {
		return nil, mapReadErr("project", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListProjectsByClass(classID string) ([]Project, error) {
	rows, err := s.db.Query(`SELECT p.id, p.team_id, p.name, p.description, p.repository_url, p.repository_owner,
		p.repository_name, p.created_at
		FROM projects p JOIN teams t ON t.id = p.team_id
		WHERE t.class_id = ? ORDER BY p.created_at ASC`, classID)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *SQLiteStore) UpdateProjectRepository(projectID, url, owner, name string) error {
	res, err := s.db.Exec(`UPDATE projects SET repository_url = ?, repository_owner = ?, repository_name = ? WHERE id = ?`,
		url, owner, name, projectID)
	if err != nil {
		return fmt.Errorf("linking repository: %w", err)
	}
	return requireAffected(res, "project")
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var createdAt string
	if err := row.Scan(&p.ID, &p.TeamID, &p.Name, &p.Description, &p.RepositoryURL,
		&p.RepositoryOwner, &p.RepositoryName, &createdAt); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// --- Sprints ---

const sprintColumns = `id, project_id, name, goal, start_date, end_date, status, created_at`

func (s *SQLiteStore) CreateSprint(sp *Sprint) error {
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = time.Now()
	}
	if sp.Status == "" {
		sp.Status = SprintPlanned
	}
	_, err := s.db.Exec(`INSERT INTO sprints (`+sprintColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.ProjectID, sp.Name, sp.Goal, formatTime(sp.StartDate), formatTime(sp.EndDate), sp.Status, formatTime(sp.CreatedAt))
	if err != nil {
		return mapWriteErr("inserting sprint", err)
	}
	return nil
}

func (s *SQLiteStore) GetSprint(id string) (*Sprint, error) {
	sp, err := scanSprint(s.db.QueryRow(`SELECT `+sprintColumns+` FROM sprints WHERE id = ?`, id))
	if err != nil {
		return nil, mapReadErr("sprint", err)
	}
	return sp, nil
}

func (s *SQLiteStore) ListSprintsByProject(projectID string) ([]Sprint, error) {
	return s.querySprints(`SELECT `+sprintColumns+` FROM sprints WHERE project_id = ? ORDER BY start_date ASC`, projectID)
}

func (s *SQLiteStore) ListAllSprints() ([]Sprint, error) {
	return s.querySprints(`SELECT ` + sprintColumns + ` FROM sprints ORDER BY start_date ASC`)
}

func (s *SQLiteStore) querySprints(query string, args ...interface{}) ([]Sprint, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sprints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sprints []Sprint
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sprint: %w", err)
		}
		sprints = append(sprints, *sp)
	}
	return sprints, rows.Err()
}

func scanSprint(row rowScanner) (*Sprint, error) {
	var sp Sprint
	var start, end, createdAt string
	if err := row.Scan(&sp.ID, &sp.ProjectID, &sp.Name, &sp.Goal, &start, &end, &sp.Status, &createdAt); err != nil {
		return nil, err
	}
	sp.StartDate = parseTime(start)
	sp.EndDate = parseTime(end)
	sp.CreatedAt = parseTime(createdAt)
	return &sp, nil
}

// --- Standups & retrospectives ---

// CreateStandup records a standup. A second standup by the same user in the
// same sprint on the same UTC day fails with ErrConflict.
func (s *SQLiteStore) CreateStandup(su *Standup) error {
	if su.ID == "" {
		su.ID = uuid.NewString()
	}
	if su.Date.IsZero() {
		su.Date = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO standups (id, sprint_id, user_id, date, day, yesterday, today, blockers)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		su.ID, su.SprintID, su.UserID, formatTime(su.Date), su.Date.UTC().Format(time.DateOnly),
		su.Yesterday, su.Today, su.Blockers)
	if err != nil {
		return mapWriteErr("inserting standup", err)
	}
	return nil
}

// FindStandupSince returns the user's first standup in the sprint dated at or after since.
func (s *SQLiteStore) FindStandupSince(sprintID, userID string, since time.Time) (*Standup, error) {
	var su Standup
	var date string
	err := s.db.QueryRow(`SELECT id, sprint_id, user_id, date, yesterday, today, blockers FROM standups
		WHERE sprint_id = ? AND user_id = ? AND date >= ? ORDER BY date ASC LIMIT 1`,
		sprintID, userID, formatTime(since)).
		Scan(&su.ID, &su.SprintID, &su.UserID, &date, &su.Yesterday, &su.Today, &su.Blockers)
	if err != nil {
		return nil, mapReadErr("standup", err)
	}
	su.Date = parseTime(date)
	return &su, nil
}

func (s *SQLiteStore) ListStandups(sprintID string) ([]Standup, error) {
	rows, err := s.db.Query(`SELECT id, sprint_id, user_id, date, yesterday, today, blockers FROM standups
		WHERE sprint_id = ? ORDER BY date DESC`, sprintID)
	if err != nil {
		return nil, fmt.Errorf("listing standups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var standups []Standup
	for rows.Next() {
		var su Standup
		var date string
		if err := rows.Scan(&su.ID, &su.SprintID, &su.UserID, &date, &su.Yesterday, &su.Today, &su.Blockers); err != nil {
			return nil, fmt.Errorf("scanning standup: %w", err)
		}
		su.Date = parseTime(date)
		standups = append(standups, su)
	}
	return standups, rows.Err()
}

func (s *SQLiteStore) CreateRetrospective(r *Retrospective) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO retrospectives (id, sprint_id, user_id, what_went_well, what_can_improve, action_items, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SprintID, r.UserID, r.WhatWentWell, r.WhatCanImprove, r.ActionItems, formatTime(r.CreatedAt))
	if err != nil {
		return mapWriteErr("inserting retrospective", err)
	}
	return nil
}

func (s *SQLiteStore) ListRetrospectives(sprintID string) ([]Retrospective, error) {
	rows, err := s.db.Query(`SELECT id, sprint_id, user_id, what_went_well, what_can_improve, action_items, created_at
		FROM retrospectives WHERE sprint_id = ? ORDER BY created_at DESC`, sprintID)
	if err != nil {
		return nil, fmt.Errorf("listing retrospectives: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var retros []Retrospective
	for rows.Next() {
		var r Retrospective
		var createdAt string
		if err := rows.Scan(&r.ID, &r.SprintID, &r.UserID, &r.WhatWentWell, &r.WhatCanImprove, &r.ActionItems, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning retrospective: %w", err)
		}
		r.CreatedAt = parseTime(createdAt)
		retros = append(retros, r)
	}
	return retros, rows.Err()
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
