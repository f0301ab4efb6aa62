// Package service implements the KYC/KYB lifecycle engine: the state machine
// governing an identity record's journey from "no inquiry" through provider
// verification to approval, expiry and notifications.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"op-atlas/internal/identity/cache"
	"op-atlas/internal/identity/match"
	"op-atlas/internal/identity/metrics"
	"op-atlas/internal/identity/models"
	"op-atlas/internal/identity/provider"
	"op-atlas/internal/identity/store"
	"op-atlas/internal/identity/token"
	"op-atlas/internal/session"
	dErrors "op-atlas/pkg/domain-errors"
	"op-atlas/pkg/email"
	"op-atlas/pkg/platform/audit"
	"op-atlas/pkg/platform/sentinel"
	"op-atlas/pkg/requestcontext"
)

// Gateway is the provider surface the engine needs. The concrete client lives
// in internal/identity/provider; tests substitute a mock.
type Gateway interface {
	FindExistingCaseAndInquiryByEmail(ctx context.Context, email string) provider.CaseLookup
	CreateCase(ctx context.Context, pocEmail string) (string, error)
	CreateInquiry(ctx context.Context, referenceID, templateID string) (provider.Inquiry, error)
	AttachInquiryToCase(ctx context.Context, inquiryID, caseID string) error
	GenerateOneTimeLink(ctx context.Context, inquiryID string) (string, error)
}

// Config carries the engine's template ids and TTLs.
type Config struct {
	KYCTemplateID string
	KYBTemplateID string
	InquiryTTL    time.Duration
	BatchCap      int
}

// Service is the lifecycle engine. Stateless per invocation: all mutual
// exclusion lives in the store's constraints.
type Service struct {
	cfg     Config
	store   store.IdentityStore
	marks   store.NotificationStore
	gateway Gateway
	sender  email.Sender
	lookups *cache.CaseLookupCache
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor *audit.Publisher
}

// Option configures optional collaborators.
type Option func(*Service)

func WithLookupCache(c *cache.CaseLookupCache) Option {
	return func(s *Service) { s.lookups = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p *audit.Publisher) Option {
	return func(s *Service) { s.auditor = p }
}

func New(cfg Config, identities store.IdentityStore, marks store.NotificationStore, gateway Gateway, sender email.Sender, logger *slog.Logger, opts ...Option) *Service {
	if cfg.InquiryTTL == 0 {
		cfg.InquiryTTL = 7 * 24 * time.Hour
	}
	if cfg.BatchCap == 0 {
		cfg.BatchCap = 500
	}
	s := &Service{
		cfg:     cfg,
		store:   identities,
		marks:   marks,
		gateway: gateway,
		sender:  sender,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerificationLink is the outcome of a successful StartVerification: where
// to send the user and which provider inquiry they will land in.
type VerificationLink struct {
	URL       string
	InquiryID string
}

// StartVerification resolves a decoded link token into a one-time provider
// verification URL, creating the provider-side inquiry when none exists.
//
// Both "new inquiry" and "resume existing inquiry" end in the same one-time
// link generation, so callers have a single code path.
func (s *Service) StartVerification(ctx context.Context, payload *token.Payload) (*VerificationLink, error) {
	if err := session.EnsureWritable(ctx); err != nil {
		s.auditImpersonationDenied(ctx, payload.EntityID.String())
		return nil, err
	}

	record, err := s.store.FindByID(ctx, payload.EntityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load verification record")
	}

	templateID := s.templateFor(record.Kind)
	if templateID == "" {
		return nil, dErrors.New(dErrors.CodeConfig, "verification template is not configured")
	}

	now := requestcontext.Now(ctx)
	if record.LinkExpired(now, s.cfg.InquiryTTL) {
		return nil, dErrors.New(dErrors.CodeLinkExpired, "verification link has expired, restart verification")
	}

	resumed := record.ProviderInquiryID != ""
	if !resumed {
		if err := s.createInquiry(ctx, record, templateID, now); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	link, err := s.gateway.GenerateOneTimeLink(ctx, record.ProviderInquiryID)
	s.metrics.ObserveProviderCall(start)
	if err != nil {
		return nil, err
	}

	action := audit.ActionVerificationStarted
	if resumed {
		action = audit.ActionVerificationResumed
		s.incResumed()
	} else {
		s.incStarted()
	}
	s.auditor.Emit(ctx, audit.Event{
		Action:    action,
		Subject:   record.ID.String(),
		Device:    requestcontext.DeviceName(ctx),
		RequestID: requestcontext.RequestID(ctx),
	})

	return &VerificationLink{URL: link, InquiryID: record.ProviderInquiryID}, nil
}

// createInquiry runs the inquiry creation sequence with its checkpoints:
// persist reference id, then call the provider, then persist the inquiry id.
// A crash between steps is recoverable by replaying from the last persisted
// checkpoint; a concurrent request observes the persisted reference id and
// reuses it rather than minting a second one.
func (s *Service) createInquiry(ctx context.Context, record *models.IdentityRecord, templateID string, now time.Time) error {
	referenceID := record.ProviderReferenceID
	if referenceID == "" {
		minted, err := mintReferenceID()
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "mint reference id")
		}
		referenceID, err = s.store.AssignProviderReference(ctx, record.ID, minted)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "assign reference id")
		}
		record.ProviderReferenceID = referenceID
	}

	// Idempotent reuse: a case (and possibly inquiry) may already exist for
	// this contact from an earlier attempt that failed after the provider
	// call. Lookup failure degrades to "create new".
	lookup := s.cachedLookup(ctx, record.Email)
	if lookup.InquiryID != "" {
		if err := s.store.SetInquiry(ctx, record.ID, lookup.InquiryID, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist inquiry id")
		}
		record.ProviderInquiryID = lookup.InquiryID
		record.InquiryCreatedAt = &now
		return nil
	}

	caseID := lookup.CaseID
	if caseID == "" {
		start := time.Now()
		created, err := s.gateway.CreateCase(ctx, record.Email)
		s.metrics.ObserveProviderCall(start)
		if err != nil {
			return err
		}
		caseID = created
	}

	start := time.Now()
	inquiry, err := s.gateway.CreateInquiry(ctx, record.ProviderReferenceID, templateID)
	s.metrics.ObserveProviderCall(start)
	if err != nil {
		return err
	}

	if err := s.gateway.AttachInquiryToCase(ctx, inquiry.InquiryID, caseID); err != nil {
		return err
	}

	if err := s.store.SetInquiry(ctx, record.ID, inquiry.InquiryID, now); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist inquiry id")
	}
	record.ProviderInquiryID = inquiry.InquiryID
	record.InquiryCreatedAt = &now

	if s.lookups != nil {
		s.lookups.Set(ctx, record.Email, cache.Entry{CaseID: caseID, InquiryID: inquiry.InquiryID})
	}
	return nil
}

func (s *Service) cachedLookup(ctx context.Context, emailAddr string) provider.CaseLookup {
	if entry := s.lookups.Get(ctx, emailAddr); entry != nil {
		return provider.CaseLookup{CaseID: entry.CaseID, InquiryID: entry.InquiryID}
	}
	lookup := s.gateway.FindExistingCaseAndInquiryByEmail(ctx, emailAddr)
	if lookup.CaseID != "" && s.lookups != nil {
		s.lookups.Set(ctx, emailAddr, cache.Entry{CaseID: lookup.CaseID, InquiryID: lookup.InquiryID})
	}
	return lookup
}

// MatchIdentity reconciles a provider record against the stored one,
// dispatching on the record kind. Returns the similarity alongside the
// verdict so callers can log near-misses.
func (s *Service) MatchIdentity(record *models.IdentityRecord, providerIdentity match.ProviderIdentity) match.Result {
	stored := match.StoredIdentity{
		FirstName:    record.FirstName,
		LastName:     record.LastName,
		BusinessName: record.BusinessName,
		Email:        record.Email,
	}
	if record.Kind == models.KindLegalEntity {
		return match.IsKYBMatch(stored, providerIdentity)
	}
	return match.IsKYCMatch(stored, providerIdentity)
}

func (s *Service) templateFor(kind models.RecordKind) string {
	if kind == models.KindLegalEntity {
		return s.cfg.KYBTemplateID
	}
	return s.cfg.KYCTemplateID
}

func (s *Service) auditImpersonationDenied(ctx context.Context, subject string) {
	s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionImpersonatedWriteDeny,
		Subject:   subject,
		ActorID:   requestcontext.UserID(ctx).String(),
		RequestID: requestcontext.RequestID(ctx),
	})
}

func (s *Service) incStarted() {
	if s.metrics != nil {
		s.metrics.VerificationsStarted.Inc()
	}
}

func (s *Service) incResumed() {
	if s.metrics != nil {
		s.metrics.VerificationsResumed.Inc()
	}
}

// mintReferenceID produces the stable random identifier stamped on provider
// inquiries: 16 random bytes, hex encoded.
func mintReferenceID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
