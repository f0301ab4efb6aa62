package domain

import (
	dErrors "op-atlas/pkg/domain-errors"
)

// SubjectType discriminates who a citizen registration belongs to.
type SubjectType string

const (
	SubjectTypeUser         SubjectType = "user"
	SubjectTypeOrganization SubjectType = "organization"
	SubjectTypeProject      SubjectType = "project"
)

var validSubjectTypes = map[SubjectType]bool{
	SubjectTypeUser:         true,
	SubjectTypeOrganization: true,
	SubjectTypeProject:      true,
}

// ParseSubjectType constructs a SubjectType from external input.
func ParseSubjectType(s string) (SubjectType, error) {
	t := SubjectType(s)
	if !validSubjectTypes[t] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid subject type")
	}
	return t, nil
}

func (t SubjectType) String() string { return string(t) }

// Subject is a tagged union over the three registration subject kinds.
// Exactly one of the ID fields is set; Kind is the discriminant. All dispatch
// on subject kind should go through this type rather than re-checking strings
// at call sites.
type Subject struct {
	Kind           SubjectType
	UserID         UserID
	OrganizationID OrganizationID
	ProjectID      ProjectID

	// Shared surface every subject kind carries.
	DisplayName  string
	ContactEmail string
}

// UserSubject builds a Subject for an individual user.
func UserSubject(userID UserID, displayName, contactEmail string) Subject {
	return Subject{Kind: SubjectTypeUser, UserID: userID, DisplayName: displayName, ContactEmail: contactEmail}
}

// OrganizationSubject builds a Subject for an organization.
func OrganizationSubject(orgID OrganizationID, displayName, contactEmail string) Subject {
	return Subject{Kind: SubjectTypeOrganization, OrganizationID: orgID, DisplayName: displayName, ContactEmail: contactEmail}
}

// ProjectSubject builds a Subject for a project.
func ProjectSubject(projectID ProjectID, displayName, contactEmail string) Subject {
	return Subject{Kind: SubjectTypeProject, ProjectID: projectID, DisplayName: displayName, ContactEmail: contactEmail}
}

// Key returns a stable identifier string for the subject, usable as a map or
// database key. The kind prefix keeps user/org/project IDs from colliding.
func (s Subject) Key() string {
	switch s.Kind {
	case SubjectTypeUser:
		return "user:" + s.UserID.String()
	case SubjectTypeOrganization:
		return "org:" + s.OrganizationID.String()
	case SubjectTypeProject:
		return "project:" + s.ProjectID.String()
	}
	return ""
}

// Validate checks the tagged-union invariant: known kind, matching ID set.
func (s Subject) Validate() error {
	switch s.Kind {
	case SubjectTypeUser:
		if s.UserID.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "user subject requires a user id")
		}
	case SubjectTypeOrganization:
		if s.OrganizationID.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "organization subject requires an organization id")
		}
	case SubjectTypeProject:
		if s.ProjectID.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "project subject requires a project id")
		}
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "invalid subject type")
	}
	return nil
}

// IsIndividual reports whether the subject is a natural person.
func (s Subject) IsIndividual() bool { return s.Kind == SubjectTypeUser }
