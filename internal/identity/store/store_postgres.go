package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"op-atlas/internal/identity/models"
	id "op-atlas/pkg/domain"
	"op-atlas/pkg/platform/sentinel"
)

// PostgresStore persists identity records and notification marks in
// PostgreSQL. Pure I/O — lifecycle rules belong in the engine. The unique
// constraints on provider_reference_id and (entity_id, kind) are the
// correctness mechanism for reference minting and notification dedup.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const identityColumns = `
	id, kind, first_name, last_name, business_name, email,
	status, provider_status, provider_reference_id, provider_inquiry_id,
	inquiry_created_at, expires_at, created_at, updated_at
`

func (s *PostgresStore) FindByID(ctx context.Context, entityID id.EntityID) (*models.IdentityRecord, error) {
	query := `SELECT ` + identityColumns + ` FROM identity_records WHERE id = $1`
	record, err := scanIdentity(s.db.QueryRowContext(ctx, query, entityID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find identity record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Save(ctx context.Context, record *models.IdentityRecord) error {
	query := `
		INSERT INTO identity_records (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			business_name = EXCLUDED.business_name,
			email = EXCLUDED.email,
			status = EXCLUDED.status,
			provider_status = EXCLUDED.provider_status,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID.String(), string(record.Kind),
		record.FirstName, record.LastName, record.BusinessName, record.Email,
		string(record.Status), string(record.ProviderStatus),
		record.ProviderReferenceID, record.ProviderInquiryID,
		record.InquiryCreatedAt, record.ExpiresAt,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save identity record: %w", err)
	}
	return nil
}

func (s *PostgresStore) AssignProviderReference(ctx context.Context, entityID id.EntityID, referenceID string) (string, error) {
	// Conditional update: only a record without a reference takes the new
	// value. The second round-trip reads whichever value won.
	query := `
		UPDATE identity_records
		SET provider_reference_id = $2, updated_at = NOW()
		WHERE id = $1 AND provider_reference_id IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, entityID.String(), referenceID); err != nil {
		if isUniqueViolation(err) {
			return "", sentinel.ErrConflict
		}
		return "", fmt.Errorf("assign provider reference: %w", err)
	}

	var current sql.NullString
	row := s.db.QueryRowContext(ctx,
		`SELECT provider_reference_id FROM identity_records WHERE id = $1`, entityID.String())
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("read provider reference: %w", err)
	}
	if !current.Valid || current.String == "" {
		return "", sentinel.ErrInvalidState
	}
	return current.String, nil
}

func (s *PostgresStore) SetInquiry(ctx context.Context, entityID id.EntityID, inquiryID string, createdAt time.Time) error {
	query := `
		UPDATE identity_records
		SET provider_inquiry_id = $2,
		    inquiry_created_at = $3,
		    provider_status = CASE WHEN provider_status = '' THEN 'created' ELSE provider_status END,
		    updated_at = $3
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, entityID.String(), inquiryID, createdAt)
	if err != nil {
		return fmt.Errorf("set inquiry: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, entityID id.EntityID, status models.Status, providerStatus models.ProviderStatus, expiresAt *time.Time) error {
	query := `
		UPDATE identity_records
		SET status = $2, provider_status = $3, expires_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, entityID.String(), string(status), string(providerStatus), expiresAt)
	if err != nil {
		return fmt.Errorf("update identity status: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListReminderCandidates(ctx context.Context, cutoff, before time.Time, limit int) ([]*models.IdentityRecord, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identity_records r
		WHERE r.provider_status IN ('created', 'pending', 'needs_review')
		  AND r.created_at BETWEEN $1 AND $2
		  AND NOT EXISTS (
			SELECT 1 FROM identity_notifications n
			WHERE n.entity_id = r.id AND n.kind = 'reminder'
		  )
		ORDER BY r.created_at
		LIMIT $3
	`
	return s.queryRecords(ctx, query, cutoff, before, limit)
}

func (s *PostgresStore) ListApprovalCandidates(ctx context.Context, limit int) ([]*models.IdentityRecord, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identity_records r
		WHERE (r.status = 'approved' OR r.provider_status = 'approved')
		  AND NOT EXISTS (
			SELECT 1 FROM identity_notifications n
			WHERE n.entity_id = r.id AND n.kind = 'approved'
		  )
		ORDER BY r.created_at
		LIMIT $1
	`
	return s.queryRecords(ctx, query, limit)
}

func (s *PostgresStore) queryRecords(ctx context.Context, query string, args ...any) ([]*models.IdentityRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list identity records: %w", err)
	}
	defer rows.Close()

	var out []*models.IdentityRecord
	for rows.Next() {
		record, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity record: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Exists(ctx context.Context, entityID id.EntityID, kind models.NotificationKind) (bool, error) {
	var exists bool
	row := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM identity_notifications WHERE entity_id = $1 AND kind = $2)`,
		entityID.String(), string(kind))
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check notification mark: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, entityID id.EntityID, kind models.NotificationKind, sentAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO identity_notifications (entity_id, kind, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, kind) DO NOTHING
	`, entityID.String(), string(kind), sentAt)
	if err != nil {
		return fmt.Errorf("create notification mark: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner) (*models.IdentityRecord, error) {
	var (
		record      models.IdentityRecord
		rawID       string
		kind        string
		status      string
		provStatus  string
		referenceID sql.NullString
		inquiryID   sql.NullString
		inquiryAt   sql.NullTime
		expiresAt   sql.NullTime
	)
	err := row.Scan(
		&rawID, &kind,
		&record.FirstName, &record.LastName, &record.BusinessName, &record.Email,
		&status, &provStatus, &referenceID, &inquiryID,
		&inquiryAt, &expiresAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	entityID, err := id.ParseEntityID(rawID)
	if err != nil {
		return nil, err
	}
	record.ID = entityID
	record.Kind = models.RecordKind(kind)
	record.Status = models.Status(status)
	record.ProviderStatus = models.ProviderStatus(provStatus)
	record.ProviderReferenceID = referenceID.String
	record.ProviderInquiryID = inquiryID.String
	if inquiryAt.Valid {
		t := inquiryAt.Time
		record.InquiryCreatedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		record.ExpiresAt = &t
	}
	return &record, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
