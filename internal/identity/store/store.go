// Package store persists identity records and notification dedup marks.
//
// Mutual exclusion is storage-level: unique constraints and conditional
// updates, never process-local locks, because concurrent request handlers may
// be separate processes.
package store

import (
	"context"
	"time"

	"op-atlas/internal/identity/models"
	id "op-atlas/pkg/domain"
)

// IdentityStore persists IdentityRecords.
type IdentityStore interface {
	FindByID(ctx context.Context, entityID id.EntityID) (*models.IdentityRecord, error)
	Save(ctx context.Context, record *models.IdentityRecord) error

	// AssignProviderReference sets the provider reference id only when none
	// exists yet, and returns the record's current reference either way.
	// Concurrent callers converge on a single value: the first write wins and
	// later callers observe it.
	AssignProviderReference(ctx context.Context, entityID id.EntityID, referenceID string) (string, error)

	// SetInquiry records the inquiry created for the current cycle.
	SetInquiry(ctx context.Context, entityID id.EntityID, inquiryID string, createdAt time.Time) error

	// UpdateStatus transitions the business and provider statuses together.
	UpdateStatus(ctx context.Context, entityID id.EntityID, status models.Status, providerStatus models.ProviderStatus, expiresAt *time.Time) error

	// ListReminderCandidates returns records awaiting completion whose
	// creation falls in [cutoff, before], capped at limit. Notification
	// filtering is the engine's job; candidate selection pre-filters rows
	// that already carry a reminder mark where the backend can.
	ListReminderCandidates(ctx context.Context, cutoff, before time.Time, limit int) ([]*models.IdentityRecord, error)

	// ListApprovalCandidates returns approved records without an approval
	// notification mark, capped at limit.
	ListApprovalCandidates(ctx context.Context, limit int) ([]*models.IdentityRecord, error)
}

// NotificationStore persists the (entity, kind) dedup marks. The unique
// constraint is the correctness mechanism; Exists is an optimization.
type NotificationStore interface {
	Exists(ctx context.Context, entityID id.EntityID, kind models.NotificationKind) (bool, error)

	// CreateIfAbsent inserts the mark, returning sentinel.ErrConflict when it
	// already exists.
	CreateIfAbsent(ctx context.Context, entityID id.EntityID, kind models.NotificationKind, sentAt time.Time) error
}
