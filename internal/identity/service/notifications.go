package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"op-atlas/internal/identity/models"
	dErrors "op-atlas/pkg/domain-errors"
	"op-atlas/pkg/platform/audit"
	"op-atlas/pkg/platform/sentinel"
	"op-atlas/pkg/requestcontext"
)

// notifyConcurrency bounds the fan-out of a notification batch so the email
// gateway sees a steady trickle rather than 500 simultaneous sends.
const notifyConcurrency = 8

// BatchResult summarizes a notification run. Errors are per-record and never
// abort the batch.
type BatchResult struct {
	Sent   int      `json:"sent"`
	Errors []string `json:"errors"`
}

// ProcessReminders sends a completion reminder to every record that started
// verification but never finished, created between cutoff and the reminder
// threshold. Each record is reminded at most once ever: the notification mark
// is checked before sending and written after, and the mark's unique
// constraint absorbs concurrent runs.
func (s *Service) ProcessReminders(ctx context.Context, cutoff time.Time) (*BatchResult, error) {
	now := requestcontext.Now(ctx)
	before := now.Add(-s.cfg.InquiryTTL)
	candidates, err := s.store.ListReminderCandidates(ctx, cutoff, before, s.cfg.BatchCap)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list reminder candidates")
	}

	return s.runBatch(ctx, candidates, models.NotificationReminder, func(ctx context.Context, record *models.IdentityRecord) error {
		if err := s.sender.SendVerificationReminder(ctx, record.Email, record.DisplayName()); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.RemindersSent.Inc()
		}
		s.auditor.Emit(ctx, audit.Event{
			Action:    audit.ActionReminderSent,
			Subject:   record.ID.String(),
			RequestID: requestcontext.RequestID(ctx),
		})
		return nil
	})
}

// ProcessApprovalNotifications sends the "you're approved" notice to every
// approved record that has not been notified yet. Same dedup discipline as
// reminders.
func (s *Service) ProcessApprovalNotifications(ctx context.Context) (*BatchResult, error) {
	candidates, err := s.store.ListApprovalCandidates(ctx, s.cfg.BatchCap)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list approval candidates")
	}

	return s.runBatch(ctx, candidates, models.NotificationApproved, func(ctx context.Context, record *models.IdentityRecord) error {
		if err := s.sender.SendApprovalNotice(ctx, record.Email, record.DisplayName()); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.ApprovalsSent.Inc()
		}
		s.auditor.Emit(ctx, audit.Event{
			Action:    audit.ActionApprovalNotified,
			Subject:   record.ID.String(),
			RequestID: requestcontext.RequestID(ctx),
		})
		return nil
	})
}

// runBatch fans the send function out over candidates with bounded
// concurrency. Per-record failures are collected, not propagated; the group
// itself never errors.
func (s *Service) runBatch(ctx context.Context, candidates []*models.IdentityRecord, kind models.NotificationKind, send func(context.Context, *models.IdentityRecord) error) (*BatchResult, error) {
	now := requestcontext.Now(ctx)
	result := &BatchResult{Errors: []string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(notifyConcurrency)
	for _, record := range candidates {
		g.Go(func() error {
			sent, err := s.notifyOnce(gctx, record, kind, now, send)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", record.ID, err))
				return nil
			}
			if sent {
				result.Sent++
			}
			return nil
		})
	}
	_ = g.Wait()
	return result, nil
}

// notifyOnce applies the check-send-mark sequence for one record. A conflict
// on the mark write means a concurrent run sent first; that is a skip, not an
// error. The window between send and mark can double-send under crash or
// race, which is the accepted trade-off for not holding a lock across an
// external call.
func (s *Service) notifyOnce(ctx context.Context, record *models.IdentityRecord, kind models.NotificationKind, now time.Time, send func(context.Context, *models.IdentityRecord) error) (bool, error) {
	exists, err := s.marks.Exists(ctx, record.ID, kind)
	if err != nil {
		return false, fmt.Errorf("check notification mark: %w", err)
	}
	if exists {
		return false, nil
	}

	if err := send(ctx, record); err != nil {
		return false, fmt.Errorf("send: %w", err)
	}

	if err := s.marks.CreateIfAbsent(ctx, record.ID, kind, now); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.logger.WarnContext(ctx, "notification already marked by concurrent run",
				"entity_id", record.ID, "kind", kind)
			return true, nil
		}
		return false, fmt.Errorf("write notification mark: %w", err)
	}
	return true, nil
}
