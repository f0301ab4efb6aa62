package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"op-atlas/internal/citizenship/models"
	"op-atlas/internal/citizenship/store"
	id "op-atlas/pkg/domain"
	dErrors "op-atlas/pkg/domain-errors"
	"op-atlas/pkg/platform/audit"
	"op-atlas/pkg/platform/sentinel"
	"op-atlas/pkg/requestcontext"
)

const (
	testSeason        = id.SeasonID("S7")
	testAddress       = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	testAttestationID = id.AttestationID("0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12")
)

type CitizenshipSuite struct {
	suite.Suite
	store     *store.MemoryStore
	issuer    *stubIssuer
	directory *stubDirectory
	tagger    *stubTagger
	auditSink *audit.MemorySink
	service   *Service
}

func TestCitizenshipSuite(t *testing.T) {
	suite.Run(t, new(CitizenshipSuite))
}

func (s *CitizenshipSuite) SetupTest() {
	s.store = store.NewMemoryStore()
	s.issuer = &stubIssuer{id: testAttestationID}
	s.directory = &stubDirectory{}
	s.tagger = &stubTagger{}
	s.auditSink = audit.NewMemorySink()
	s.service = New(s.store, s.store, s.store, s.issuer, s.directory, slog.Default(),
		WithListTagger(s.tagger),
		WithAuditPublisher(audit.NewPublisher(s.auditSink, slog.Default())))
}

func (s *CitizenshipSuite) auditActions() []string {
	events := s.auditSink.Events()
	actions := make([]string, len(events))
	for i, event := range events {
		actions[i] = event.Action
	}
	return actions
}

func userSubject() id.Subject {
	return id.UserSubject(id.UserID(uuid.New()), "Ada Lovelace", "ada@example.com")
}

func (s *CitizenshipSuite) TestRegister_HappyPath() {
	ctx := context.Background()
	subject := userSubject()

	registration, err := s.service.Register(ctx, subject, testSeason, testAddress)
	s.Require().NoError(err)
	s.Equal(models.StatusAttested, registration.Status)
	s.Equal(testAttestationID, registration.AttestationID)
	s.Equal(id.GovernanceAddress(testAddress), registration.GovernanceAddress)

	stored, err := s.store.FindActive(ctx, testSeason, subject)
	s.Require().NoError(err)
	s.Equal(registration.ID, stored.ID)
	s.Equal(1, s.store.MirrorCount())
	s.Equal([]string{"ada@example.com"}, s.tagger.tagged())
}

func (s *CitizenshipSuite) TestRegister_ChecksumNormalizesAddress() {
	ctx := context.Background()

	registration, err := s.service.Register(ctx, userSubject(), testSeason,
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	s.Require().NoError(err)
	s.Equal(id.GovernanceAddress(testAddress), registration.GovernanceAddress)

	_, err = s.service.Register(ctx, userSubject(), testSeason, "not-an-address")
	s.Require().Error(err)
}

func (s *CitizenshipSuite) TestRegister_IdempotentForAttestedSubject() {
	ctx := context.Background()
	subject := userSubject()

	first, err := s.service.Register(ctx, subject, testSeason, testAddress)
	s.Require().NoError(err)

	second, err := s.service.Register(ctx, subject, testSeason, testAddress)
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
	s.Equal(first.AttestationID, second.AttestationID)
	s.Equal(1, s.issuer.creates(), "an attested registration must not be re-attested")
}

func (s *CitizenshipSuite) TestRegister_CompletesReadyRegistrationInPlace() {
	ctx := context.Background()
	subject := userSubject()
	ready := &models.CitizenRegistration{
		ID:                id.RegistrationID(uuid.New()),
		SeasonID:          testSeason,
		Subject:           subject,
		GovernanceAddress: id.GovernanceAddress(testAddress),
		Status:            models.StatusReady,
		CreatedAt:         time.Now(),
	}
	s.Require().NoError(s.store.Create(ctx, ready))
	// The READY row already occupies the subject's slot; completing it must
	// not count against the season limit a second time.
	s.store.SetSeasonConfig(models.SeasonConfig{SeasonID: testSeason, UserLimit: 1})

	registration, err := s.service.Register(ctx, subject, testSeason, testAddress)
	s.Require().NoError(err)
	s.Equal(ready.ID, registration.ID, "the existing row is completed, not replaced")
	s.Equal(models.StatusAttested, registration.Status)
	s.Equal(testAttestationID, registration.AttestationID)
	s.Equal(1, s.issuer.creates())

	stored, err := s.store.FindByID(ctx, ready.ID)
	s.Require().NoError(err)
	s.Equal(testAttestationID, stored.AttestationID)
	s.Equal(models.StatusAttested, stored.Status)
	s.Equal(1, s.store.MirrorCount())

	s.Run("repeat register returns the attested row without re-issuing", func() {
		again, err := s.service.Register(ctx, subject, testSeason, testAddress)
		s.Require().NoError(err)
		s.Equal(ready.ID, again.ID)
		s.Equal(1, s.issuer.creates())
	})
}

func (s *CitizenshipSuite) TestRegister_BlockedSubjectIsTerminal() {
	ctx := context.Background()
	subject := userSubject()
	s.Require().NoError(s.store.Block(ctx, &models.BlockedVerdict{
		SeasonID:  testSeason,
		Subject:   subject,
		Reason:    "prior abuse determination",
		CreatedAt: time.Now(),
	}))

	_, err := s.service.Register(ctx, subject, testSeason, testAddress)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBlocked))
	s.Equal(0, s.issuer.creates())
}

func (s *CitizenshipSuite) TestRegister_SeasonLimit() {
	ctx := context.Background()
	s.store.SetSeasonConfig(models.SeasonConfig{SeasonID: testSeason, UserLimit: 1, OrgLimit: 0})

	_, err := s.service.Register(ctx, userSubject(), testSeason, testAddress)
	s.Require().NoError(err)

	_, err = s.service.Register(ctx, userSubject(), testSeason,
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))
	s.Contains(err.Error(), "Citizen registration limit has been reached for this season")
	s.Equal(1, s.issuer.creates(), "the limit is checked before attestation issuance")

	s.Run("zero limit means unlimited", func() {
		org := id.OrganizationSubject(id.OrganizationID(uuid.New()), "Acme", "ops@acme.example")
		_, err := s.service.Register(ctx, org, testSeason, "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB")
		s.Require().NoError(err)
	})
}

func (s *CitizenshipSuite) TestRegister_MalformedAttestationPersistsNothing() {
	ctx := context.Background()
	s.issuer.err = dErrors.New(dErrors.CodeValidation, "attestation service returned a malformed id")

	_, err := s.service.Register(ctx, userSubject(), testSeason, testAddress)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(0, s.store.MirrorCount())
}

func (s *CitizenshipSuite) TestRegister_MirrorFailureRollsBackRegistration() {
	ctx := context.Background()
	subject := userSubject()
	svc := New(&mirrorFailStore{s.store}, s.store, s.store, s.issuer, s.directory, slog.Default())

	_, err := svc.Register(ctx, subject, testSeason, testAddress)
	s.Require().Error(err)

	_, err = s.store.FindActive(ctx, testSeason, subject)
	s.ErrorIs(err, sentinel.ErrNotFound, "registration and mirror row must commit together")
	s.Equal(0, s.store.MirrorCount())
}

func (s *CitizenshipSuite) TestRegister_ImpersonatedSessionRejected() {
	ctx := requestcontext.WithImpersonated(context.Background(), true)

	_, err := s.service.Register(ctx, userSubject(), testSeason, testAddress)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal(0, s.issuer.creates())
	s.Equal([]string{audit.ActionImpersonatedWriteDeny}, s.auditActions(),
		"every rejected impersonated write leaves an audit event")
}

func (s *CitizenshipSuite) TestAuditTrail() {
	ctx := context.Background()
	subject := userSubject()

	registration, err := s.service.Register(ctx, subject, testSeason, testAddress)
	s.Require().NoError(err)
	s.Require().NoError(s.service.Resign(ctx, registration.ID, subject.UserID))

	s.Equal([]string{audit.ActionCitizenRegistered, audit.ActionCitizenResigned}, s.auditActions())

	events := s.auditSink.Events()
	s.Equal(subject.Key(), events[0].Subject)
	s.False(events[0].Timestamp.IsZero())

	s.Run("impersonated resign is denied and audited", func() {
		impersonated := requestcontext.WithImpersonated(ctx, true)
		err := s.service.Resign(impersonated, registration.ID, subject.UserID)
		s.Require().Error(err)
		s.Contains(s.auditActions(), audit.ActionImpersonatedWriteDeny)
	})
}

func (s *CitizenshipSuite) register(subject id.Subject) *models.CitizenRegistration {
	registration, err := s.service.Register(context.Background(), subject, testSeason, testAddress)
	s.Require().NoError(err)
	return registration
}

func (s *CitizenshipSuite) TestResign_OwnRegistration() {
	ctx := context.Background()
	subject := userSubject()
	registration := s.register(subject)

	s.Require().NoError(s.service.Resign(ctx, registration.ID, subject.UserID))
	s.Equal(1, s.issuer.revokes())

	stored, err := s.store.FindByID(ctx, registration.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, stored.Status)
	s.Require().NotNil(stored.RevokedAt)

	s.Run("second resign is a no-op", func() {
		s.Require().NoError(s.service.Resign(ctx, registration.ID, subject.UserID))
		s.Equal(1, s.issuer.revokes())
	})
}

func (s *CitizenshipSuite) TestResign_Authorization() {
	ctx := context.Background()

	s.Run("another user may not resign a user registration", func() {
		registration := s.register(userSubject())
		err := s.service.Resign(ctx, registration.ID, id.UserID(uuid.New()))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	orgID := id.OrganizationID(uuid.New())
	admin := id.UserID(uuid.New())
	org := id.OrganizationSubject(orgID, "Acme", "ops@acme.example")

	s.Run("org admin with a matching verified address may resign", func() {
		registration := s.register(org)
		s.directory.orgAdmins = map[id.OrganizationID]id.UserID{orgID: admin}
		s.directory.addresses = map[id.UserID][]id.GovernanceAddress{
			admin: {id.GovernanceAddress(testAddress)},
		}

		s.Require().NoError(s.service.Resign(ctx, registration.ID, admin))
	})

	s.Run("org admin without the governance address is refused", func() {
		s.SetupTest()
		registration := s.register(org)
		s.directory.orgAdmins = map[id.OrganizationID]id.UserID{orgID: admin}
		s.directory.addresses = map[id.UserID][]id.GovernanceAddress{
			admin: {"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"},
		}

		err := s.service.Resign(ctx, registration.ID, admin)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("non-admin is refused", func() {
		s.SetupTest()
		registration := s.register(org)
		err := s.service.Resign(ctx, registration.ID, admin)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *CitizenshipSuite) TestResign_RevocationOrdering() {
	ctx := context.Background()
	subject := userSubject()

	s.Run("failed attestation revocation leaves the registration active", func() {
		registration := s.register(subject)
		s.issuer.err = dErrors.New(dErrors.CodeProvider, "attestation service returned 503")

		err := s.service.Resign(ctx, registration.ID, subject.UserID)
		s.Require().Error(err)

		stored, findErr := s.store.FindByID(ctx, registration.ID)
		s.Require().NoError(findErr)
		s.Equal(models.StatusAttested, stored.Status)
	})

	s.Run("storage failure after revocation surfaces internal", func() {
		s.SetupTest()
		registration := s.register(subject)
		svc := New(&revokeFailStore{s.store}, s.store, s.store, s.issuer, s.directory, slog.Default())

		err := svc.Resign(ctx, registration.ID, subject.UserID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Equal(1, s.issuer.revokes(), "the attestation was revoked before storage failed")
	})

	s.Run("unknown registration returns not found", func() {
		err := s.service.Resign(ctx, id.RegistrationID(uuid.New()), subject.UserID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// mirrorFailStore forces the mirror write inside the transaction to fail.
type mirrorFailStore struct {
	*store.MemoryStore
}

func (f *mirrorFailStore) CreateMirror(context.Context, *models.CitizenRegistration) error {
	return errors.New("mirror write failed")
}

func (f *mirrorFailStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.RegistrationStore) error) error {
	return f.MemoryStore.RunInTx(ctx, func(ctx context.Context, _ store.RegistrationStore) error {
		return fn(ctx, f)
	})
}

// revokeFailStore fails the status update after attestation revocation.
type revokeFailStore struct {
	*store.MemoryStore
}

func (f *revokeFailStore) Revoke(context.Context, id.RegistrationID, time.Time) error {
	return errors.New("db write failed")
}

type stubIssuer struct {
	mu      sync.Mutex
	id      id.AttestationID
	err     error
	created int
	revoked int
}

func (s *stubIssuer) CreateCitizenAttestation(_ context.Context, _ id.Subject, _ id.GovernanceAddress, _ id.SeasonID) (id.AttestationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.created++
	return s.id, nil
}

func (s *stubIssuer) RevokeCitizenAttestation(_ context.Context, _ id.AttestationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.revoked++
	return nil
}

func (s *stubIssuer) creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

func (s *stubIssuer) revokes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked
}

type stubDirectory struct {
	orgAdmins     map[id.OrganizationID]id.UserID
	projectAdmins map[id.ProjectID]id.UserID
	addresses     map[id.UserID][]id.GovernanceAddress
}

func (d *stubDirectory) IsOrganizationAdmin(_ context.Context, userID id.UserID, orgID id.OrganizationID) (bool, error) {
	return d.orgAdmins[orgID] == userID, nil
}

func (d *stubDirectory) IsProjectAdmin(_ context.Context, userID id.UserID, projectID id.ProjectID) (bool, error) {
	return d.projectAdmins[projectID] == userID, nil
}

func (d *stubDirectory) VerifiedAddresses(_ context.Context, userID id.UserID) ([]id.GovernanceAddress, error) {
	return d.addresses[userID], nil
}

type stubTagger struct {
	mu     sync.Mutex
	emails []string
}

func (t *stubTagger) SetCitizenTag(_ context.Context, email string, tagged bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tagged {
		t.emails = append(t.emails, email)
	}
	return nil
}

func (t *stubTagger) tagged() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.emails...)
}
