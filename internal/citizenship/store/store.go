// Package store persists citizen registrations, their compatibility mirror
// rows, season configuration and blocked-evaluation verdicts.
//
// The active-registration uniqueness constraint and the count-then-create
// sequence inside RunInTx are the only concurrency control: no process-local
// locks, because concurrent registrations may come from separate processes.
package store

import (
	"context"
	"time"

	"op-atlas/internal/citizenship/models"
	id "op-atlas/pkg/domain"
)

// RegistrationStore persists CitizenRegistrations.
type RegistrationStore interface {
	// FindActive returns the subject's non-revoked registration for the
	// season, or sentinel.ErrNotFound.
	FindActive(ctx context.Context, seasonID id.SeasonID, subject id.Subject) (*models.CitizenRegistration, error)
	FindByID(ctx context.Context, registrationID id.RegistrationID) (*models.CitizenRegistration, error)
	// FindByAddress matches active registrations case-insensitively on the
	// governance address.
	FindByAddress(ctx context.Context, seasonID id.SeasonID, address id.GovernanceAddress) (*models.CitizenRegistration, error)
	// CountActiveByType counts non-revoked registrations for the season and
	// subject type, for population-limit checks.
	CountActiveByType(ctx context.Context, seasonID id.SeasonID, subjectType id.SubjectType) (int, error)
	// Create inserts a registration. A second active registration for the
	// same (season, subject) returns sentinel.ErrConflict.
	Create(ctx context.Context, registration *models.CitizenRegistration) error
	// CreateMirror writes the compatibility row older readers still consume.
	// Called inside the same transaction as Create.
	CreateMirror(ctx context.Context, registration *models.CitizenRegistration) error
	// AttachAttestation completes a registration accepted ahead of issuance:
	// it sets the attestation id and promotes READY to ATTESTED. Revoked or
	// already-attested registrations return sentinel.ErrInvalidState.
	AttachAttestation(ctx context.Context, registrationID id.RegistrationID, attestationID id.AttestationID) error
	// Revoke marks a registration revoked. Already-revoked registrations
	// return sentinel.ErrInvalidState.
	Revoke(ctx context.Context, registrationID id.RegistrationID, revokedAt time.Time) error
	// RunInTx runs fn atomically: every store call made through the passed
	// store commits or rolls back as one unit.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx RegistrationStore) error) error
}

// SeasonStore resolves per-season population limits.
type SeasonStore interface {
	// GetSeasonConfig returns the season's limits, sentinel.ErrNotFound for
	// unknown seasons.
	GetSeasonConfig(ctx context.Context, seasonID id.SeasonID) (models.SeasonConfig, error)
}

// EvaluationStore holds fraud/abuse verdicts. A blocked verdict is terminal
// for the season.
type EvaluationStore interface {
	// FindBlocked returns the subject's blocked verdict for the season, or
	// sentinel.ErrNotFound when the subject is not blocked.
	FindBlocked(ctx context.Context, seasonID id.SeasonID, subject id.Subject) (*models.BlockedVerdict, error)
	Block(ctx context.Context, verdict *models.BlockedVerdict) error
}
