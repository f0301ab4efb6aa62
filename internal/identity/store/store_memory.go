package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"op-atlas/internal/identity/models"
	id "op-atlas/pkg/domain"
	"op-atlas/pkg/platform/sentinel"
)

// MemoryStore implements IdentityStore and NotificationStore in memory.
// The mutex stands in for the database's constraint guarantees; semantics
// match the postgres implementation so engine tests are faithful.
type MemoryStore struct {
	mu            sync.Mutex
	records       map[id.EntityID]*models.IdentityRecord
	notifications map[notificationKey]time.Time
}

type notificationKey struct {
	entityID id.EntityID
	kind     models.NotificationKind
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:       make(map[id.EntityID]*models.IdentityRecord),
		notifications: make(map[notificationKey]time.Time),
	}
}

func (s *MemoryStore) FindByID(_ context.Context, entityID id.EntityID) (*models.IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[entityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryStore) Save(_ context.Context, record *models.IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *MemoryStore) AssignProviderReference(_ context.Context, entityID id.EntityID, referenceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[entityID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	if record.ProviderReferenceID != "" {
		return record.ProviderReferenceID, nil
	}
	record.ProviderReferenceID = referenceID
	return referenceID, nil
}

func (s *MemoryStore) SetInquiry(_ context.Context, entityID id.EntityID, inquiryID string, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[entityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.ProviderInquiryID = inquiryID
	record.InquiryCreatedAt = &createdAt
	if record.ProviderStatus == models.ProviderStatusNone {
		record.ProviderStatus = models.ProviderStatusCreated
	}
	record.UpdatedAt = createdAt
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, entityID id.EntityID, status models.Status, providerStatus models.ProviderStatus, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[entityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.Status = status
	record.ProviderStatus = providerStatus
	record.ExpiresAt = expiresAt
	return nil
}

func (s *MemoryStore) ListReminderCandidates(_ context.Context, cutoff, before time.Time, limit int) ([]*models.IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.IdentityRecord
	for _, record := range s.records {
		if !record.AwaitingCompletion() {
			continue
		}
		if record.CreatedAt.Before(cutoff) || record.CreatedAt.After(before) {
			continue
		}
		if _, notified := s.notifications[notificationKey{record.ID, models.NotificationReminder}]; notified {
			continue
		}
		clone := *record
		out = append(out, &clone)
	}
	sortByCreatedAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListApprovalCandidates(_ context.Context, limit int) ([]*models.IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.IdentityRecord
	for _, record := range s.records {
		if !record.ApprovedForNotification() {
			continue
		}
		if _, notified := s.notifications[notificationKey{record.ID, models.NotificationApproved}]; notified {
			continue
		}
		clone := *record
		out = append(out, &clone)
	}
	sortByCreatedAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Exists(_ context.Context, entityID id.EntityID, kind models.NotificationKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.notifications[notificationKey{entityID, kind}]
	return ok, nil
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, entityID id.EntityID, kind models.NotificationKind, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := notificationKey{entityID, kind}
	if _, ok := s.notifications[key]; ok {
		return sentinel.ErrConflict
	}
	s.notifications[key] = sentAt
	return nil
}

// NotificationCount reports how many marks exist for an entity and kind.
// Test helper for dedup assertions.
func (s *MemoryStore) NotificationCount(entityID id.EntityID, kind models.NotificationKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[notificationKey{entityID, kind}]; ok {
		return 1
	}
	return 0
}

func sortByCreatedAt(records []*models.IdentityRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
