// Package domain holds shared identifier and value-object types.
//
// IDs are distinct named UUID types so the compiler rejects cross-entity
// mixups. Construct them via the Parse functions at trust boundaries; direct
// casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "op-atlas/pkg/domain-errors"
)

type (
	// UserID identifies a platform user.
	UserID uuid.UUID
	// OrganizationID identifies an organization.
	OrganizationID uuid.UUID
	// ProjectID identifies a project.
	ProjectID uuid.UUID
	// EntityID identifies a KYC/KYB identity record.
	EntityID uuid.UUID
	// RegistrationID identifies a citizen registration.
	RegistrationID uuid.UUID
)

// SeasonID is a short human label ("S7", "S8"), not a UUID.
type SeasonID string

func (s SeasonID) String() string { return string(s) }

// ParseSeasonID validates a season label.
func ParseSeasonID(s string) (SeasonID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "season id cannot be empty")
	}
	return SeasonID(s), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}

// ParseUserID constructs a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseOrganizationID constructs an OrganizationID from external input.
func ParseOrganizationID(s string) (OrganizationID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return OrganizationID{}, err
	}
	return OrganizationID(u), nil
}

// ParseProjectID constructs a ProjectID from external input.
func ParseProjectID(s string) (ProjectID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return ProjectID{}, err
	}
	return ProjectID(u), nil
}

// ParseEntityID constructs an EntityID from external input.
func ParseEntityID(s string) (EntityID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return EntityID{}, err
	}
	return EntityID(u), nil
}

// ParseRegistrationID constructs a RegistrationID from external input.
func ParseRegistrationID(s string) (RegistrationID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return RegistrationID{}, err
	}
	return RegistrationID(u), nil
}

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id OrganizationID) String() string { return uuid.UUID(id).String() }
func (id ProjectID) String() string      { return uuid.UUID(id).String() }
func (id EntityID) String() string       { return uuid.UUID(id).String() }
func (id RegistrationID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsZero() bool         { return uuid.UUID(id) == uuid.Nil }
func (id OrganizationID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id ProjectID) IsZero() bool      { return uuid.UUID(id) == uuid.Nil }
func (id EntityID) IsZero() bool       { return uuid.UUID(id) == uuid.Nil }
func (id RegistrationID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
