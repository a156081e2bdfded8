package auth

import (
	"errors"
	"fmt"

	"github.com/btouchard/sprintdesk/internal/store"
)

// ForbiddenError is returned when a principal may not touch a resource.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return "forbidden: " + e.Reason }

// IsForbidden reports whether err is a ForbiddenError.
func IsForbidden(err error) bool {
	var f *ForbiddenError
	return errors.As(err, &f)
}

// MembershipStore is the subset of the store used for access checks.
type MembershipStore interface {
	IsTeamMember(teamID, userID string) (bool, error)
	IsClassTeacher(classID, teacherID string) (bool, error)
	GetTeam(id string) (*store.Team, error)
	GetProject(id string) (*store.Project, error)
	GetSprint(id string) (*store.Sprint, error)
}

// Access answers membership questions for principals.
type Access struct {
	store MembershipStore
}

// NewAccess creates an Access checker.
func NewAccess(st MembershipStore) *Access {
	return &Access{store: st}
}

// IsTeamMember reports whether p belongs to teamID.
func (a *Access) IsTeamMember(p Principal, teamID string) (bool, error) {
	return a.store.IsTeamMember(teamID, p.UserID)
}

// IsClassTeacher reports whether p teaches classID.
func (a *Access) IsClassTeacher(p Principal, classID string) (bool, error) {
	if !p.IsTeacher() {
		return false, nil
	}
	return a.store.IsClassTeacher(classID, p.UserID)
}

// RequireClassTeacher fails unless p teaches classID.
func (a *Access) RequireClassTeacher(p Principal, classID string) error {
	ok, err := a.IsClassTeacher(p, classID)
	if err != nil {
		return err
	}
	if !ok {
		return &ForbiddenError{Reason: "not a teacher of this class"}
	}
	return nil
}

// RequireTeam fails unless p is a member of teamID or teaches its class.
func (a *Access) RequireTeam(p Principal, teamID string) (*store.Team, error) {
	team, err := a.store.GetTeam(teamID)
	if err != nil {
		return nil, err
	}
	ok, err := a.IsTeamMember(p, teamID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if ok, err = a.IsClassTeacher(p, team.ClassID); err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, &ForbiddenError{Reason: fmt.Sprintf("not a member of team %s", teamID)}
	}
	return team, nil
}

// RequireProject fails unless p may work on projectID.
func (a *Access) RequireProject(p Principal, projectID string) (*store.Project, *store.Team, error) {
	project, err := a.store.GetProject(projectID)
	if err != nil {
		return nil, nil, err
	}
	team, err := a.RequireTeam(p, project.TeamID)
	if err != nil {
		return nil, nil, err
	}
	return project, team, nil
}

// RequireSprint fails unless p may work on sprintID's project.
func (a *Access) RequireSprint(p Principal, sprintID string) (*store.Sprint, *store.Project, *store.Team, error) {
	sp, err := a.store.GetSprint(sprintID)
	if err != nil {
		return nil, nil, nil, err
	}
	project, team, err := a.RequireProject(p, sp.ProjectID)
	if err != nil {
		return nil, nil, nil, err
	}
	return sp, project, team, nil
}
