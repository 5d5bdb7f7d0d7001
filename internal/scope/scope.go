// Package scope maps the tenant hierarchy onto the vault's path namespace.
// Every vault path in the service is built here so the cascade order cannot
// drift between call sites.
package scope

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidID is returned when an id is not a canonical UUID.
var ErrInvalidID = errors.New("scope: invalid id")

// Level identifies which tier of the hierarchy a path addresses.
type Level int

const (
	LevelProject Level = iota + 1
	LevelOrg
	LevelUser
)

func (l Level) String() string {
	switch l {
	case LevelProject:
		return "project"
	case LevelOrg:
		return "org"
	case LevelUser:
		return "user"
	default:
		return "unknown"
	}
}

// ParseLevel maps "project", "org"/"organization" or "user" onto a Level.
func ParseLevel(raw string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "project":
		return LevelProject, true
	case "org", "organization":
		return LevelOrg, true
	case "user":
		return LevelUser, true
	default:
		return 0, false
	}
}

const userRoot = "user"

// Path is a validated address inside the vault namespace.
type Path struct {
	Level     Level
	OrgID     string
	ProjectID string
	UserID    string
}

// Org returns the organization-level path.
func Org(orgID string) (Path, error) {
	id, err := canonical(orgID)
	if err != nil {
		return Path{}, err
	}
	return Path{Level: LevelOrg, OrgID: id}, nil
}

// Project returns the project-level path nested under its organization.
func Project(orgID, projectID string) (Path, error) {
	org, err := canonical(orgID)
	if err != nil {
		return Path{}, err
	}
	project, err := canonical(projectID)
	if err != nil {
		return Path{}, err
	}
	return Path{Level: LevelProject, OrgID: org, ProjectID: project}, nil
}

// User returns the user-level path.
func User(userID string) (Path, error) {
	id, err := canonical(userID)
	if err != nil {
		return Path{}, err
	}
	return Path{Level: LevelUser, UserID: id}, nil
}

// MustOrg is Org for ids known to be valid.
func MustOrg(orgID string) Path { return must(Org(orgID)) }

// MustProject is Project for ids known to be valid.
func MustProject(orgID, projectID string) Path { return must(Project(orgID, projectID)) }

// MustUser is User for ids known to be valid.
func MustUser(userID string) Path { return must(User(userID)) }

func must(p Path, err error) Path {
	if err != nil {
		panic(err)
	}
	return p
}

// Segments lists the folder names from the root inward.
func (p Path) Segments() []string {
	switch p.Level {
	case LevelProject:
		return []string{p.OrgID, p.ProjectID}
	case LevelOrg:
		return []string{p.OrgID}
	case LevelUser:
		return []string{userRoot, p.UserID}
	default:
		return nil
	}
}

// Parent returns the enclosing folder. Only a project path has a parent
// inside the namespace.
func (p Path) Parent() (Path, bool) {
	if p.Level != LevelProject {
		return Path{}, false
	}
	return Path{Level: LevelOrg, OrgID: p.OrgID}, true
}

// String serializes the path as orgId, orgId/projectId or user/userId.
func (p Path) String() string {
	return strings.Join(p.Segments(), "/")
}

// Cascade returns the scopes to consult for a logical credential, highest
// priority first: project, organization, user. Empty ids are skipped; a
// project without an organization is rejected.
func Cascade(orgID, projectID, userID string) ([]Path, error) {
	paths := make([]Path, 0, 3)
	if projectID != "" {
		if orgID == "" {
			return nil, fmt.Errorf("project scope without organization: %w", ErrInvalidID)
		}
		p, err := Project(orgID, projectID)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if orgID != "" {
		p, err := Org(orgID)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if userID != "" {
		p, err := User(userID)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func canonical(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%q: %w", raw, ErrInvalidID)
	}
	return id.String(), nil
}
