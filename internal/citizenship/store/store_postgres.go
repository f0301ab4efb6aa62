package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"op-atlas/internal/citizenship/models"
	id "op-atlas/pkg/domain"
	"op-atlas/pkg/platform/sentinel"
)

// Schema assumptions:
//
//	citizen_registrations(id, season_id, subject_type, user_id, organization_id,
//	  project_id, governance_address, status, attestation_id, created_at,
//	  revoked_at)
//	with a partial unique index on (season_id, subject_type, user_id,
//	organization_id, project_id) WHERE status IN ('attested','ready'),
//	and another on (season_id, lower(governance_address)) with the same
//	predicate.
//
//	citizens(season_id, subject_key, governance_address, attestation_id,
//	  created_at) -- compatibility mirror
//
//	citizen_evaluations(season_id, subject_key, verdict, reason, created_at)
//	season_configs(season_id, user_limit, org_limit, project_limit)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting one store
// type serve pooled and transactional calls.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements RegistrationStore, SeasonStore and EvaluationStore
// on pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

const registrationColumns = `id, season_id, subject_type, user_id, organization_id, project_id,
	governance_address, status, attestation_id, created_at, revoked_at`

func (s *PostgresStore) FindActive(ctx context.Context, seasonID id.SeasonID, subject id.Subject) (*models.CitizenRegistration, error) {
	query := fmt.Sprintf(`SELECT %s FROM citizen_registrations
		WHERE season_id = $1 AND subject_type = $2
		  AND user_id IS NOT DISTINCT FROM $3
		  AND organization_id IS NOT DISTINCT FROM $4
		  AND project_id IS NOT DISTINCT FROM $5
		  AND status IN ('attested', 'ready')`, registrationColumns)
	row := s.q.QueryRow(ctx, query, seasonID.String(), subject.Kind.String(),
		subjectColumn(subject, id.SubjectTypeUser),
		subjectColumn(subject, id.SubjectTypeOrganization),
		subjectColumn(subject, id.SubjectTypeProject))
	return scanRegistration(row)
}

func (s *PostgresStore) FindByID(ctx context.Context, registrationID id.RegistrationID) (*models.CitizenRegistration, error) {
	query := fmt.Sprintf(`SELECT %s FROM citizen_registrations WHERE id = $1`, registrationColumns)
	return scanRegistration(s.q.QueryRow(ctx, query, registrationID.String()))
}

func (s *PostgresStore) FindByAddress(ctx context.Context, seasonID id.SeasonID, address id.GovernanceAddress) (*models.CitizenRegistration, error) {
	query := fmt.Sprintf(`SELECT %s FROM citizen_registrations
		WHERE season_id = $1 AND lower(governance_address) = $2
		  AND status IN ('attested', 'ready')`, registrationColumns)
	return scanRegistration(s.q.QueryRow(ctx, query, seasonID.String(), address.Lower()))
}

func (s *PostgresStore) CountActiveByType(ctx context.Context, seasonID id.SeasonID, subjectType id.SubjectType) (int, error) {
	var count int
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM citizen_registrations
		WHERE season_id = $1 AND subject_type = $2 AND status IN ('attested', 'ready')`,
		seasonID.String(), subjectType.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Create(ctx context.Context, registration *models.CitizenRegistration) error {
	_, err := s.q.Exec(ctx, `INSERT INTO citizen_registrations
		(id, season_id, subject_type, user_id, organization_id, project_id,
		 governance_address, status, attestation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		registration.ID.String(),
		registration.SeasonID.String(),
		registration.Subject.Kind.String(),
		subjectColumn(registration.Subject, id.SubjectTypeUser),
		subjectColumn(registration.Subject, id.SubjectTypeOrganization),
		subjectColumn(registration.Subject, id.SubjectTypeProject),
		registration.GovernanceAddress.String(),
		string(registration.Status),
		nullableString(registration.AttestationID.String()),
		registration.CreatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateMirror(ctx context.Context, registration *models.CitizenRegistration) error {
	_, err := s.q.Exec(ctx, `INSERT INTO citizens
		(season_id, subject_key, governance_address, attestation_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (season_id, subject_key) DO UPDATE
		SET governance_address = EXCLUDED.governance_address,
		    attestation_id = EXCLUDED.attestation_id`,
		registration.SeasonID.String(),
		registration.Subject.Key(),
		registration.GovernanceAddress.String(),
		nullableString(registration.AttestationID.String()),
		registration.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert mirror row: %w", err)
	}
	return nil
}

func (s *PostgresStore) AttachAttestation(ctx context.Context, registrationID id.RegistrationID, attestationID id.AttestationID) error {
	tag, err := s.q.Exec(ctx, `UPDATE citizen_registrations
		SET attestation_id = $2, status = 'attested'
		WHERE id = $1 AND status IN ('attested', 'ready')
		  AND attestation_id IS NULL`,
		registrationID.String(), attestationID.String())
	if err != nil {
		return fmt.Errorf("attach attestation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from revoked-or-already-attested.
		var status string
		err := s.q.QueryRow(ctx, `SELECT status FROM citizen_registrations WHERE id = $1`,
			registrationID.String()).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check registration status: %w", err)
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, registrationID id.RegistrationID, revokedAt time.Time) error {
	tag, err := s.q.Exec(ctx, `UPDATE citizen_registrations
		SET status = 'revoked', revoked_at = $2
		WHERE id = $1 AND status <> 'revoked'`,
		registrationID.String(), revokedAt)
	if err != nil {
		return fmt.Errorf("revoke registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from already revoked.
		var status string
		err := s.q.QueryRow(ctx, `SELECT status FROM citizen_registrations WHERE id = $1`,
			registrationID.String()).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check registration status: %w", err)
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx RegistrationStore) error) error {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = pgxTx.Rollback(ctx) }()

	txStore := &PostgresStore{pool: s.pool, q: pgxTx}
	if err := fn(ctx, txStore); err != nil {
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSeasonConfig(ctx context.Context, seasonID id.SeasonID) (models.SeasonConfig, error) {
	cfg := models.SeasonConfig{SeasonID: seasonID}
	err := s.q.QueryRow(ctx, `SELECT user_limit, org_limit, project_limit
		FROM season_configs WHERE season_id = $1`, seasonID.String()).
		Scan(&cfg.UserLimit, &cfg.OrgLimit, &cfg.ProjectLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.SeasonConfig{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.SeasonConfig{}, fmt.Errorf("load season config: %w", err)
	}
	return cfg, nil
}

func (s *PostgresStore) FindBlocked(ctx context.Context, seasonID id.SeasonID, subject id.Subject) (*models.BlockedVerdict, error) {
	verdict := &models.BlockedVerdict{SeasonID: seasonID, Subject: subject}
	err := s.q.QueryRow(ctx, `SELECT reason, created_at FROM citizen_evaluations
		WHERE season_id = $1 AND subject_key = $2 AND verdict = 'blocked'`,
		seasonID.String(), subject.Key()).
		Scan(&verdict.Reason, &verdict.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load blocked verdict: %w", err)
	}
	return verdict, nil
}

func (s *PostgresStore) Block(ctx context.Context, verdict *models.BlockedVerdict) error {
	_, err := s.q.Exec(ctx, `INSERT INTO citizen_evaluations
		(season_id, subject_key, verdict, reason, created_at)
		VALUES ($1, $2, 'blocked', $3, $4)
		ON CONFLICT (season_id, subject_key) DO UPDATE SET reason = EXCLUDED.reason`,
		verdict.SeasonID.String(), verdict.Subject.Key(), verdict.Reason, verdict.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert blocked verdict: %w", err)
	}
	return nil
}

func scanRegistration(row pgx.Row) (*models.CitizenRegistration, error) {
	var (
		reg           models.CitizenRegistration
		subjectType   string
		userID        *string
		orgID         *string
		projectID     *string
		status        string
		attestationID *string
		seasonID      string
		regID         string
	)
	err := row.Scan(&regID, &seasonID, &subjectType, &userID, &orgID, &projectID,
		&reg.GovernanceAddress, &status, &attestationID, &reg.CreatedAt, &reg.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan registration: %w", err)
	}

	parsedID, err := id.ParseRegistrationID(regID)
	if err != nil {
		return nil, fmt.Errorf("stored registration id invalid: %w", err)
	}
	reg.ID = parsedID
	reg.SeasonID = id.SeasonID(seasonID)
	reg.Status = models.RegistrationStatus(status)
	if attestationID != nil {
		reg.AttestationID = id.AttestationID(*attestationID)
	}

	subject, err := rebuildSubject(subjectType, userID, orgID, projectID)
	if err != nil {
		return nil, err
	}
	reg.Subject = subject
	return &reg, nil
}

func rebuildSubject(subjectType string, userID, orgID, projectID *string) (id.Subject, error) {
	kind, err := id.ParseSubjectType(subjectType)
	if err != nil {
		return id.Subject{}, fmt.Errorf("stored subject type invalid: %w", err)
	}
	switch kind {
	case id.SubjectTypeUser:
		parsed, err := id.ParseUserID(deref(userID))
		if err != nil {
			return id.Subject{}, fmt.Errorf("stored user id invalid: %w", err)
		}
		return id.Subject{Kind: kind, UserID: parsed}, nil
	case id.SubjectTypeOrganization:
		parsed, err := id.ParseOrganizationID(deref(orgID))
		if err != nil {
			return id.Subject{}, fmt.Errorf("stored organization id invalid: %w", err)
		}
		return id.Subject{Kind: kind, OrganizationID: parsed}, nil
	default:
		parsed, err := id.ParseProjectID(deref(projectID))
		if err != nil {
			return id.Subject{}, fmt.Errorf("stored project id invalid: %w", err)
		}
		return id.Subject{Kind: kind, ProjectID: parsed}, nil
	}
}

// subjectColumn returns the subject's id for the column matching kind, nil
// for the others, so exactly one id column is populated per row.
func subjectColumn(subject id.Subject, kind id.SubjectType) *string {
	if subject.Kind != kind {
		return nil
	}
	var v string
	switch kind {
	case id.SubjectTypeUser:
		v = subject.UserID.String()
	case id.SubjectTypeOrganization:
		v = subject.OrganizationID.String()
	case id.SubjectTypeProject:
		v = subject.ProjectID.String()
	}
	return &v
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
