package store

import (
	"context"
	"sync"
	"time"

	"op-atlas/internal/citizenship/models"
	id "op-atlas/pkg/domain"
	"op-atlas/pkg/platform/sentinel"
)

// MemoryStore is the in-memory implementation used in unit tests and local
// development. Transactions snapshot state and restore it on failure.
type MemoryStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	registrations map[id.RegistrationID]*models.CitizenRegistration
	mirrors       map[string]*models.CitizenRegistration
	seasons       map[id.SeasonID]models.SeasonConfig
	verdicts      map[string]*models.BlockedVerdict
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		registrations: make(map[id.RegistrationID]*models.CitizenRegistration),
		mirrors:       make(map[string]*models.CitizenRegistration),
		seasons:       make(map[id.SeasonID]models.SeasonConfig),
		verdicts:      make(map[string]*models.BlockedVerdict),
	}
}

func verdictKey(seasonID id.SeasonID, subject id.Subject) string {
	return seasonID.String() + "/" + subject.Key()
}

func (s *MemoryStore) FindActive(_ context.Context, seasonID id.SeasonID, subject id.Subject) (*models.CitizenRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range s.registrations {
		if reg.SeasonID == seasonID && reg.Subject.Key() == subject.Key() && reg.Status.Active() {
			clone := *reg
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) FindByID(_ context.Context, registrationID id.RegistrationID) (*models.CitizenRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[registrationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *reg
	return &clone, nil
}

func (s *MemoryStore) FindByAddress(_ context.Context, seasonID id.SeasonID, address id.GovernanceAddress) (*models.CitizenRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range s.registrations {
		if reg.SeasonID == seasonID && reg.GovernanceAddress.EqualFold(address) && reg.Status.Active() {
			clone := *reg
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) CountActiveByType(_ context.Context, seasonID id.SeasonID, subjectType id.SubjectType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, reg := range s.registrations {
		if reg.SeasonID == seasonID && reg.Subject.Kind == subjectType && reg.Status.Active() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Create(_ context.Context, registration *models.CitizenRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range s.registrations {
		if reg.SeasonID == registration.SeasonID && reg.Subject.Key() == registration.Subject.Key() && reg.Status.Active() {
			return sentinel.ErrConflict
		}
	}
	clone := *registration
	s.registrations[registration.ID] = &clone
	return nil
}

func (s *MemoryStore) CreateMirror(_ context.Context, registration *models.CitizenRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *registration
	s.mirrors[registration.SeasonID.String()+"/"+registration.Subject.Key()] = &clone
	return nil
}

func (s *MemoryStore) AttachAttestation(_ context.Context, registrationID id.RegistrationID, attestationID id.AttestationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[registrationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !reg.Status.Active() || !reg.AttestationID.IsZero() {
		return sentinel.ErrInvalidState
	}
	reg.AttestationID = attestationID
	reg.Status = models.StatusAttested
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, registrationID id.RegistrationID, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[registrationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if reg.Status == models.StatusRevoked {
		return sentinel.ErrInvalidState
	}
	reg.Status = models.StatusRevoked
	reg.RevokedAt = &revokedAt
	return nil
}

// RunInTx serializes transactions and restores the pre-transaction snapshot
// when fn fails, mimicking rollback.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx RegistrationStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapRegs, snapMirrors := s.snapshot()
	if err := fn(ctx, s); err != nil {
		s.restore(snapRegs, snapMirrors)
		return err
	}
	return nil
}

func (s *MemoryStore) snapshot() (map[id.RegistrationID]*models.CitizenRegistration, map[string]*models.CitizenRegistration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	regs := make(map[id.RegistrationID]*models.CitizenRegistration, len(s.registrations))
	for k, v := range s.registrations {
		clone := *v
		regs[k] = &clone
	}
	mirrors := make(map[string]*models.CitizenRegistration, len(s.mirrors))
	for k, v := range s.mirrors {
		clone := *v
		mirrors[k] = &clone
	}
	return regs, mirrors
}

func (s *MemoryStore) restore(regs map[id.RegistrationID]*models.CitizenRegistration, mirrors map[string]*models.CitizenRegistration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrations = regs
	s.mirrors = mirrors
}

func (s *MemoryStore) GetSeasonConfig(_ context.Context, seasonID id.SeasonID) (models.SeasonConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.seasons[seasonID]
	if !ok {
		return models.SeasonConfig{}, sentinel.ErrNotFound
	}
	return cfg, nil
}

// SetSeasonConfig seeds a season's limits. Test and bootstrap helper.
func (s *MemoryStore) SetSeasonConfig(cfg models.SeasonConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seasons[cfg.SeasonID] = cfg
}

func (s *MemoryStore) FindBlocked(_ context.Context, seasonID id.SeasonID, subject id.Subject) (*models.BlockedVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	verdict, ok := s.verdicts[verdictKey(seasonID, subject)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *verdict
	return &clone, nil
}

func (s *MemoryStore) Block(_ context.Context, verdict *models.BlockedVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *verdict
	s.verdicts[verdictKey(verdict.SeasonID, verdict.Subject)] = &clone
	return nil
}

// MirrorCount reports how many mirror rows exist. Test helper.
func (s *MemoryStore) MirrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mirrors)
}
