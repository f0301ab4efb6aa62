// Package models holds the KYC/KYB identity domain types. Pure domain logic:
// no I/O, no time.Now() — callers pass the clock in.
package models

import (
	"time"

	id "op-atlas/pkg/domain"
)

// RecordKind discriminates individuals (KYC) from legal entities (KYB).
type RecordKind string

const (
	KindIndividual  RecordKind = "individual"
	KindLegalEntity RecordKind = "legal_entity"
)

// Status is the authoritative business status of an identity record.
// Expiry is a derived overlay (see IdentityRecord.Expired), never stored.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ProviderStatus mirrors the external provider's finer-grained lifecycle.
// Diagnostic/triggering metadata only — business decisions key off Status.
type ProviderStatus string

const (
	ProviderStatusNone        ProviderStatus = ""
	ProviderStatusCreated     ProviderStatus = "created"
	ProviderStatusPending     ProviderStatus = "pending"
	ProviderStatusNeedsReview ProviderStatus = "needs_review"
	ProviderStatusApproved    ProviderStatus = "approved"
	ProviderStatusExpired     ProviderStatus = "expired"
)

// IdentityRecord is a KYC user or KYB legal entity — two variants of one
// concept. Records are never hard-deleted; they are retained for audit.
type IdentityRecord struct {
	ID   id.EntityID
	Kind RecordKind

	// Individuals carry first/last name; legal entities a business name.
	FirstName    string
	LastName     string
	BusinessName string
	Email        string

	Status         Status
	ProviderStatus ProviderStatus

	// ProviderReferenceID is generated once, then immutable and unique.
	ProviderReferenceID string
	// ProviderInquiryID is set at most once per inquiry cycle.
	ProviderInquiryID string
	InquiryCreatedAt  *time.Time
	// ExpiresAt is when an APPROVED verification lapses.
	ExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns the name used in notifications and matching.
func (r *IdentityRecord) DisplayName() string {
	if r.Kind == KindLegalEntity {
		return r.BusinessName
	}
	if r.FirstName == "" {
		return r.LastName
	}
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}

// Expired reports the derived expiry overlay: approved and past expiry.
// Independent of ProviderStatus.
func (r *IdentityRecord) Expired(now time.Time) bool {
	return r.Status == StatusApproved && r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// LinkExpired reports whether the provider-side inquiry has gone stale: an
// inquiry exists, is older than the TTL, and the record never reached a
// terminal status. Independent of the signed link token's own expiry.
func (r *IdentityRecord) LinkExpired(now time.Time, ttl time.Duration) bool {
	if r.InquiryCreatedAt == nil {
		return false
	}
	if r.Status == StatusApproved || r.Status == StatusRejected {
		return false
	}
	return IsLinkExpired(*r.InquiryCreatedAt, now, ttl)
}

// IsLinkExpired is the pure TTL comparison: true iff now-createdAt exceeds
// the TTL. Exactly at the boundary the link is still valid.
func IsLinkExpired(inquiryCreatedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(inquiryCreatedAt) > ttl
}

// AwaitingCompletion reports whether the record sits in a provider state that
// warrants a reminder.
func (r *IdentityRecord) AwaitingCompletion() bool {
	switch r.ProviderStatus {
	case ProviderStatusCreated, ProviderStatusPending, ProviderStatusNeedsReview:
		return true
	}
	return false
}

// ApprovedForNotification reports whether the record qualifies for the
// approval notice. Status is authoritative but a provider-approved record is
// included so reconciliation lag does not delay the notice.
func (r *IdentityRecord) ApprovedForNotification() bool {
	return r.Status == StatusApproved || r.ProviderStatus == ProviderStatusApproved
}

// NotificationKind enumerates the dedup-guarded notification types.
type NotificationKind string

const (
	NotificationReminder NotificationKind = "reminder"
	NotificationApproved NotificationKind = "approved"
)

// NotificationRecord marks "already notified". Existence is the sole source
// of truth, enforced unique per (entity, kind) at the storage layer.
type NotificationRecord struct {
	EntityID id.EntityID
	Kind     NotificationKind
	SentAt   time.Time
}
