// Package models defines the citizenship domain: season-scoped citizen
// registrations, eligibility qualifications and season population limits.
package models

import (
	"time"

	id "op-atlas/pkg/domain"
)

// RegistrationStatus is the lifecycle state of a citizen registration.
// ATTESTED → REVOKED is the only transition; it never moves backward.
type RegistrationStatus string

const (
	// StatusAttested is a live registration backed by an attestation.
	StatusAttested RegistrationStatus = "attested"
	// StatusReady is a registration accepted ahead of attestation issuance,
	// kept for mirror rows imported from earlier seasons.
	StatusReady RegistrationStatus = "ready"
	// StatusRevoked is a resigned registration. Terminal.
	StatusRevoked RegistrationStatus = "revoked"
	// StatusBlocked marks a registration refused by a fraud/abuse verdict.
	StatusBlocked RegistrationStatus = "blocked"
)

// Active reports whether the status counts against season population limits.
func (s RegistrationStatus) Active() bool {
	return s == StatusAttested || s == StatusReady
}

// CitizenRegistration is one subject's citizenship in one season.
type CitizenRegistration struct {
	ID       id.RegistrationID
	SeasonID id.SeasonID
	Subject  id.Subject

	GovernanceAddress id.GovernanceAddress
	Status            RegistrationStatus
	// AttestationID is set exactly once, when issuance succeeds.
	AttestationID id.AttestationID

	CreatedAt time.Time
	RevokedAt *time.Time
}

// SeasonConfig carries the per-subject-type population limits for a season.
// Zero means unlimited.
type SeasonConfig struct {
	SeasonID     id.SeasonID
	UserLimit    int
	OrgLimit     int
	ProjectLimit int
}

// LimitFor returns the population cap for a subject type, 0 for unlimited.
func (c SeasonConfig) LimitFor(t id.SubjectType) int {
	switch t {
	case id.SubjectTypeUser:
		return c.UserLimit
	case id.SubjectTypeOrganization:
		return c.OrgLimit
	case id.SubjectTypeProject:
		return c.ProjectLimit
	}
	return 0
}

// Qualification is the outcome of an eligibility evaluation. Reason is
// human-readable and only set when ineligible.
type Qualification struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// EligibilitySignals are the facts eligibility rules evaluate. They are
// assembled by the caller from profile and verification data; the rules
// themselves are pure.
type EligibilitySignals struct {
	VerifiedEmail     bool
	GitHubLinked      bool
	NotADeveloper     bool
	GovernanceAddress id.GovernanceAddress
	PassportScore     float64
	WorldIDVerified   bool
	// ContributionShare is the externally computed share for org/project
	// subjects. Individuals ignore it.
	ContributionShare float64
}

// BlockedVerdict records a fraud/abuse determination against a subject for a
// season. Its existence is terminal for that season's registration flow.
type BlockedVerdict struct {
	SeasonID  id.SeasonID
	Subject   id.Subject
	Reason    string
	CreatedAt time.Time
}
