// Package service implements the citizenship registration engine: eligibility
// evaluation, season-capped registration with attestation issuance, and
// resignation with attestation revocation.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"op-atlas/internal/citizenship/attestation"
	"op-atlas/internal/citizenship/eligibility"
	"op-atlas/internal/citizenship/metrics"
	"op-atlas/internal/citizenship/models"
	"op-atlas/internal/citizenship/store"
	"op-atlas/internal/session"
	id "op-atlas/pkg/domain"
	dErrors "op-atlas/pkg/domain-errors"
	"op-atlas/pkg/email"
	"op-atlas/pkg/platform/audit"
	"op-atlas/pkg/platform/sentinel"
	"op-atlas/pkg/requestcontext"
)

// seasonLimitMessage is the exact client-facing text for a full season.
const seasonLimitMessage = "Citizen registration limit has been reached for this season"

// Directory answers authorization questions about users and the entities
// they administer.
type Directory interface {
	IsOrganizationAdmin(ctx context.Context, userID id.UserID, orgID id.OrganizationID) (bool, error)
	IsProjectAdmin(ctx context.Context, userID id.UserID, projectID id.ProjectID) (bool, error)
	VerifiedAddresses(ctx context.Context, userID id.UserID) ([]id.GovernanceAddress, error)
}

// Service is the citizenship engine.
type Service struct {
	registrations store.RegistrationStore
	seasons       store.SeasonStore
	evaluations   store.EvaluationStore
	issuer        attestation.Issuer
	directory     Directory
	tagger        email.ListTagger
	logger        *slog.Logger
	metrics       *metrics.Metrics
	auditor       *audit.Publisher
	tracer        trace.Tracer
}

// Option configures optional collaborators.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p *audit.Publisher) Option {
	return func(s *Service) { s.auditor = p }
}

func WithListTagger(t email.ListTagger) Option {
	return func(s *Service) { s.tagger = t }
}

func New(registrations store.RegistrationStore, seasons store.SeasonStore, evaluations store.EvaluationStore, issuer attestation.Issuer, directory Directory, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		registrations: registrations,
		seasons:       seasons,
		evaluations:   evaluations,
		issuer:        issuer,
		directory:     directory,
		logger:        logger,
		tracer:        otel.Tracer("citizenship"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EvaluateEligibility applies the eligibility rules for the subject. Pure:
// signals are assembled by the caller, the verdict never errors.
func (s *Service) EvaluateEligibility(subject id.Subject, signals models.EligibilitySignals) models.Qualification {
	return eligibility.Evaluate(subject, signals)
}

// Register makes the subject a citizen of the season. The population limit is
// checked before attestation issuance because issuance is irreversible; two
// different subjects racing for the last slot can still exceed the limit,
// which is an accepted, monitored risk.
func (s *Service) Register(ctx context.Context, subject id.Subject, seasonID id.SeasonID, rawAddress string) (*models.CitizenRegistration, error) {
	ctx, span := s.tracer.Start(ctx, "citizenship.Register",
		trace.WithAttributes(
			attribute.String("season_id", seasonID.String()),
			attribute.String("subject_type", subject.Kind.String()),
		))
	defer span.End()

	if err := session.EnsureWritable(ctx); err != nil {
		s.auditDeniedWrite(ctx, subject.Key())
		return nil, err
	}
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	address, err := id.ParseGovernanceAddress(rawAddress)
	if err != nil {
		return nil, err
	}

	if _, err := s.evaluations.FindBlocked(ctx, seasonID, subject); err == nil {
		s.metrics.Denied("blocked")
		return nil, dErrors.New(dErrors.CodeBlocked, "subject is blocked from citizenship this season")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check blocked verdicts")
	}

	// Idempotency: an attested registration already on file is returned
	// unchanged rather than re-attested. An active registration without an
	// attestation (accepted READY, issuance still pending) is completed in
	// place, never re-inserted.
	existing, err := s.registrations.FindActive(ctx, seasonID, subject)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load existing registration")
	}
	if existing != nil {
		if !existing.AttestationID.IsZero() {
			return existing, nil
		}
		return s.attestExisting(ctx, existing)
	}

	if err := s.checkSeasonLimit(ctx, seasonID, subject.Kind); err != nil {
		return nil, err
	}

	attestationID, err := s.issuer.CreateCitizenAttestation(ctx, subject, address, seasonID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.AttestationFailures.Inc()
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("attestation_id", attestationID.String()))

	now := requestcontext.Now(ctx)
	registration := &models.CitizenRegistration{
		ID:                id.RegistrationID(uuid.New()),
		SeasonID:          seasonID,
		Subject:           subject,
		GovernanceAddress: address,
		Status:            models.StatusAttested,
		AttestationID:     attestationID,
		CreatedAt:         now,
	}

	err = s.registrations.RunInTx(ctx, func(ctx context.Context, tx store.RegistrationStore) error {
		if err := tx.Create(ctx, registration); err != nil {
			return err
		}
		return tx.CreateMirror(ctx, registration)
	})
	if errors.Is(err, sentinel.ErrConflict) {
		// A concurrent request won the insert after our idempotency read.
		// The attestation just issued is now orphaned; flag it for cleanup.
		s.logger.ErrorContext(ctx, "registration lost insert race, attestation needs reconciliation",
			"season_id", seasonID, "subject", subject.Key(), "attestation_id", attestationID)
		if winner, findErr := s.registrations.FindActive(ctx, seasonID, subject); findErr == nil {
			return winner, nil
		}
		return nil, dErrors.New(dErrors.CodeConflict, "subject is already registered for this season")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist registration")
	}

	s.afterRegister(ctx, registration)
	return registration, nil
}

// attestExisting finishes a READY registration. The subject already holds its
// season slot, so the population cap is not re-checked; the fresh attestation
// is attached to the existing row rather than inserted as a new one.
func (s *Service) attestExisting(ctx context.Context, existing *models.CitizenRegistration) (*models.CitizenRegistration, error) {
	attestationID, err := s.issuer.CreateCitizenAttestation(ctx, existing.Subject, existing.GovernanceAddress, existing.SeasonID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.AttestationFailures.Inc()
		}
		return nil, err
	}

	updated := *existing
	updated.Status = models.StatusAttested
	updated.AttestationID = attestationID

	err = s.registrations.RunInTx(ctx, func(ctx context.Context, tx store.RegistrationStore) error {
		if err := tx.AttachAttestation(ctx, existing.ID, attestationID); err != nil {
			return err
		}
		return tx.CreateMirror(ctx, &updated)
	})
	if errors.Is(err, sentinel.ErrInvalidState) {
		// A concurrent request attached first; the attestation just issued
		// is orphaned and needs cleanup.
		s.logger.ErrorContext(ctx, "attestation attach lost race, attestation needs reconciliation",
			"registration_id", existing.ID, "attestation_id", attestationID)
		if winner, findErr := s.registrations.FindByID(ctx, existing.ID); findErr == nil {
			return winner, nil
		}
		return nil, dErrors.New(dErrors.CodeConflict, "subject is already registered for this season")
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "attestation attach failed, attestation needs reconciliation",
			"registration_id", existing.ID, "attestation_id", attestationID)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "attach attestation")
	}

	s.afterRegister(ctx, &updated)
	return &updated, nil
}

// afterRegister runs the best-effort post-commit side effects. Failures are
// logged and swallowed: the registration is already durable.
func (s *Service) afterRegister(ctx context.Context, registration *models.CitizenRegistration) {
	if s.metrics != nil {
		s.metrics.Registrations.Inc()
	}
	s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionCitizenRegistered,
		Subject:   registration.Subject.Key(),
		ActorID:   requestcontext.UserID(ctx).String(),
		RequestID: requestcontext.RequestID(ctx),
	})
	if s.tagger != nil && registration.Subject.ContactEmail != "" {
		if err := s.tagger.SetCitizenTag(ctx, registration.Subject.ContactEmail, true); err != nil {
			s.logger.WarnContext(ctx, "citizen tag update failed",
				"email", registration.Subject.ContactEmail, "error", err.Error())
		}
	}
}

func (s *Service) checkSeasonLimit(ctx context.Context, seasonID id.SeasonID, subjectType id.SubjectType) error {
	cfg, err := s.seasons.GetSeasonConfig(ctx, seasonID)
	if errors.Is(err, sentinel.ErrNotFound) {
		// Seasons without configuration carry no limits.
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load season config")
	}

	limit := cfg.LimitFor(subjectType)
	if limit == 0 {
		return nil
	}
	count, err := s.registrations.CountActiveByType(ctx, seasonID, subjectType)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "count season registrations")
	}
	if count >= limit {
		s.metrics.Denied("season_limit")
		return dErrors.New(dErrors.CodeLimitExceeded, seasonLimitMessage)
	}
	return nil
}

// Resign revokes the registration's attestation and marks it revoked. The
// attestation is revoked first: a registration must never show as revoked
// while its attestation is still live.
func (s *Service) Resign(ctx context.Context, registrationID id.RegistrationID, actingUserID id.UserID) error {
	ctx, span := s.tracer.Start(ctx, "citizenship.Resign",
		trace.WithAttributes(attribute.String("registration_id", registrationID.String())))
	defer span.End()

	if err := session.EnsureWritable(ctx); err != nil {
		s.auditDeniedWrite(ctx, registrationID.String())
		return err
	}

	registration, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load registration")
	}
	if registration.Status == models.StatusRevoked {
		return nil
	}

	if err := s.authorizeResign(ctx, registration, actingUserID); err != nil {
		return err
	}

	if !registration.AttestationID.IsZero() {
		if err := s.issuer.RevokeCitizenAttestation(ctx, registration.AttestationID); err != nil {
			if s.metrics != nil {
				s.metrics.AttestationFailures.Inc()
			}
			return err
		}
	}

	if err := s.registrations.Revoke(ctx, registrationID, requestcontext.Now(ctx)); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			// A concurrent resignation beat us to the update.
			return nil
		}
		// The attestation is revoked but the row still reads active. Needs
		// manual reconciliation; retrying inline could mask the mismatch.
		s.logger.ErrorContext(ctx, "registration revocation persisted nowhere, reconciliation needed",
			"registration_id", registrationID, "attestation_id", registration.AttestationID,
			"error", err.Error())
		return dErrors.Wrap(err, dErrors.CodeInternal, "mark registration revoked")
	}

	if s.metrics != nil {
		s.metrics.Resignations.Inc()
	}
	s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionCitizenResigned,
		Subject:   registration.Subject.Key(),
		ActorID:   actingUserID.String(),
		RequestID: requestcontext.RequestID(ctx),
	})
	return nil
}

// authorizeResign enforces who may resign a registration: the subject user
// themselves, or an admin of the subject org/project whose verified addresses
// include the registration's governance address.
func (s *Service) authorizeResign(ctx context.Context, registration *models.CitizenRegistration, actingUserID id.UserID) error {
	if registration.Subject.Kind == id.SubjectTypeUser {
		if registration.Subject.UserID == actingUserID {
			return nil
		}
		return dErrors.New(dErrors.CodeForbidden, "only the registered user may resign")
	}

	var (
		isAdmin bool
		err     error
	)
	switch registration.Subject.Kind {
	case id.SubjectTypeOrganization:
		isAdmin, err = s.directory.IsOrganizationAdmin(ctx, actingUserID, registration.Subject.OrganizationID)
	case id.SubjectTypeProject:
		isAdmin, err = s.directory.IsProjectAdmin(ctx, actingUserID, registration.Subject.ProjectID)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check admin rights")
	}
	if !isAdmin {
		return dErrors.New(dErrors.CodeForbidden, "admin rights on the registered entity are required")
	}

	addresses, err := s.directory.VerifiedAddresses(ctx, actingUserID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load verified addresses")
	}
	for _, addr := range addresses {
		if addr.EqualFold(registration.GovernanceAddress) {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "the registration's governance address is not among your verified addresses")
}

func (s *Service) auditDeniedWrite(ctx context.Context, subject string) {
	s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionImpersonatedWriteDeny,
		Subject:   subject,
		ActorID:   requestcontext.UserID(ctx).String(),
		RequestID: requestcontext.RequestID(ctx),
	})
}
