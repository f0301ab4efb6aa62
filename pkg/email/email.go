// Package email defines the outbound email and mailing-list collaborators.
// Delivery itself is an external concern; engines depend on these interfaces
// and tests substitute fakes.
package email

import (
	"context"
	"log/slog"
)

// Sender delivers transactional email. Implementations must be safe for
// concurrent use by batch jobs.
type Sender interface {
	SendVerificationReminder(ctx context.Context, to, displayName string) error
	SendApprovalNotice(ctx context.Context, to, displayName string) error
}

// ListTagger updates mailing-list tags. Tag updates are best-effort side
// effects; callers log and swallow failures.
type ListTagger interface {
	SetCitizenTag(ctx context.Context, email string, tagged bool) error
}

// LogSender is a Sender/ListTagger for development: it logs instead of
// sending.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendVerificationReminder(ctx context.Context, to, displayName string) error {
	s.Logger.InfoContext(ctx, "verification reminder (log sender)", "to", to, "name", displayName)
	return nil
}

func (s LogSender) SendApprovalNotice(ctx context.Context, to, displayName string) error {
	s.Logger.InfoContext(ctx, "approval notice (log sender)", "to", to, "name", displayName)
	return nil
}

func (s LogSender) SetCitizenTag(ctx context.Context, email string, tagged bool) error {
	s.Logger.InfoContext(ctx, "citizen tag update (log sender)", "email", email, "tagged", tagged)
	return nil
}
