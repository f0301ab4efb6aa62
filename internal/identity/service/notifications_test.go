package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"op-atlas/internal/identity/models"
	id "op-atlas/pkg/domain"
	"op-atlas/pkg/platform/audit"
)

type NotificationsSuite struct {
	ServiceSuite
}

func TestNotificationsSuite(t *testing.T) {
	suite.Run(t, new(NotificationsSuite))
}

func (s *NotificationsSuite) seedAwaiting(email string, age time.Duration) *models.IdentityRecord {
	return s.seedRecord(&models.IdentityRecord{
		Kind:              models.KindIndividual,
		FirstName:         "Ada",
		LastName:          "Lovelace",
		Email:             email,
		Status:            models.StatusPending,
		ProviderStatus:    models.ProviderStatusPending,
		ProviderInquiryID: "inq-" + email,
		CreatedAt:         time.Now().Add(-age),
	})
}

func (s *NotificationsSuite) seedApproved(email string) *models.IdentityRecord {
	return s.seedRecord(&models.IdentityRecord{
		Kind:           models.KindIndividual,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Email:          email,
		Status:         models.StatusApproved,
		ProviderStatus: models.ProviderStatusApproved,
		CreatedAt:      time.Now().Add(-20 * 24 * time.Hour),
	})
}

func (s *NotificationsSuite) TestProcessReminders_SendsOnceEver() {
	ctx := context.Background()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	record := s.seedAwaiting("ada@example.com", 10*24*time.Hour)

	result, err := s.service.ProcessReminders(ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(1, result.Sent)
	s.Empty(result.Errors)
	s.Equal(1, s.sender.reminderCount("ada@example.com"))
	s.Equal(1, s.store.NotificationCount(record.ID, models.NotificationReminder))
	s.Equal([]string{audit.ActionReminderSent}, s.auditActions())

	// Repeated runs find nothing to do.
	for range 3 {
		result, err = s.service.ProcessReminders(ctx, cutoff)
		s.Require().NoError(err)
		s.Equal(0, result.Sent)
	}
	s.Equal(1, s.sender.reminderCount("ada@example.com"))
}

func (s *NotificationsSuite) TestProcessReminders_WindowAndStateFilters() {
	ctx := context.Background()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	s.seedAwaiting("in-window@example.com", 10*24*time.Hour)
	s.seedAwaiting("too-fresh@example.com", 2*24*time.Hour)
	s.seedAwaiting("too-old@example.com", 45*24*time.Hour)
	s.seedApproved("approved@example.com")

	result, err := s.service.ProcessReminders(ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(1, result.Sent)
	s.Equal(1, s.sender.reminderCount("in-window@example.com"))
	s.Equal(0, s.sender.reminderCount("too-fresh@example.com"))
	s.Equal(0, s.sender.reminderCount("too-old@example.com"))
}

func (s *NotificationsSuite) TestProcessReminders_FailedSendRetriesNextRun() {
	ctx := context.Background()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	record := s.seedAwaiting("flaky@example.com", 10*24*time.Hour)
	s.sender.failFor = map[string]error{"flaky@example.com": errors.New("smtp unavailable")}

	result, err := s.service.ProcessReminders(ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(0, result.Sent)
	s.Require().Len(result.Errors, 1)
	s.Contains(result.Errors[0], "smtp unavailable")
	// No mark was written, so the next run picks the record up again.
	s.Equal(0, s.store.NotificationCount(record.ID, models.NotificationReminder))

	s.sender.failFor = nil
	result, err = s.service.ProcessReminders(ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(1, result.Sent)
	s.Equal(1, s.store.NotificationCount(record.ID, models.NotificationReminder))
}

func (s *NotificationsSuite) TestProcessReminders_BatchCap() {
	ctx := context.Background()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	svc := New(Config{
		KYCTemplateID: "tmpl-kyc",
		InquiryTTL:    7 * 24 * time.Hour,
		BatchCap:      5,
	}, s.store, s.store, s.gateway, s.sender, s.service.logger)

	for i := 0; i < 8; i++ {
		s.seedAwaiting(fmt.Sprintf("user-%d@example.com", i), 10*24*time.Hour)
	}

	result, err := svc.ProcessReminders(ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(5, result.Sent)

	result, err = svc.ProcessReminders(ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(3, result.Sent)
}

func (s *NotificationsSuite) TestProcessApprovalNotifications_SendsOnceEver() {
	ctx := context.Background()
	record := s.seedApproved("ada@example.com")
	s.seedAwaiting("pending@example.com", 10*24*time.Hour)

	result, err := s.service.ProcessApprovalNotifications(ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Sent)
	s.Equal(1, s.sender.approvalCount("ada@example.com"))
	s.Equal(0, s.sender.approvalCount("pending@example.com"))
	s.Equal(1, s.store.NotificationCount(record.ID, models.NotificationApproved))

	result, err = s.service.ProcessApprovalNotifications(ctx)
	s.Require().NoError(err)
	s.Equal(0, result.Sent)
	s.Equal(1, s.sender.approvalCount("ada@example.com"))
}

func (s *NotificationsSuite) TestProcessApprovalNotifications_ProviderApprovedCounts() {
	ctx := context.Background()
	// Reconciliation lag: provider says approved but the business status has
	// not caught up yet. The notice still goes out, once.
	record := s.seedRecord(&models.IdentityRecord{
		ID:             id.EntityID(uuid.New()),
		Kind:           models.KindIndividual,
		FirstName:      "Grace",
		Email:          "grace@example.com",
		Status:         models.StatusPending,
		ProviderStatus: models.ProviderStatusApproved,
		CreatedAt:      time.Now().Add(-5 * 24 * time.Hour),
	})

	result, err := s.service.ProcessApprovalNotifications(ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Sent)
	s.Equal(1, s.store.NotificationCount(record.ID, models.NotificationApproved))
}

// Two batch runs racing over the same candidates must not double the sends
// recorded as successes: the mark's uniqueness absorbs the overlap.
func (s *NotificationsSuite) TestProcessReminders_ConcurrentRuns() {
	ctx := context.Background()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	ids := make([]id.EntityID, 0, 20)
	for i := 0; i < 20; i++ {
		record := s.seedAwaiting(fmt.Sprintf("user-%d@example.com", i), 10*24*time.Hour)
		ids = append(ids, record.ID)
	}

	var wg sync.WaitGroup
	results := make([]*BatchResult, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.service.ProcessReminders(ctx, cutoff)
			s.NoError(err)
			results[i] = result
		}()
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		s.Require().NotNil(r)
		s.Empty(r.Errors)
		total += r.Sent
	}
	s.GreaterOrEqual(total, 20)
	for _, entityID := range ids {
		s.Equal(1, s.store.NotificationCount(entityID, models.NotificationReminder))
	}
}
