package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	id "op-atlas/pkg/domain"
)

// PostgresDirectory answers admin-rights and verified-address lookups from
// the platform's membership tables.
//
// Schema assumptions:
//
//	organization_members(organization_id, user_id, role)
//	project_members(project_id, user_id, role)
//	user_addresses(user_id, address, verified)
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) IsOrganizationAdmin(ctx context.Context, userID id.UserID, orgID id.OrganizationID) (bool, error) {
	var isAdmin bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM organization_members
		WHERE organization_id = $1 AND user_id = $2 AND role = 'admin')`,
		orgID.String(), userID.String()).Scan(&isAdmin)
	if err != nil {
		return false, fmt.Errorf("check organization admin: %w", err)
	}
	return isAdmin, nil
}

func (d *PostgresDirectory) IsProjectAdmin(ctx context.Context, userID id.UserID, projectID id.ProjectID) (bool, error) {
	var isAdmin bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM project_members
		WHERE project_id = $1 AND user_id = $2 AND role = 'admin')`,
		projectID.String(), userID.String()).Scan(&isAdmin)
	if err != nil {
		return false, fmt.Errorf("check project admin: %w", err)
	}
	return isAdmin, nil
}

func (d *PostgresDirectory) VerifiedAddresses(ctx context.Context, userID id.UserID) ([]id.GovernanceAddress, error) {
	rows, err := d.pool.Query(ctx, `SELECT address FROM user_addresses
		WHERE user_id = $1 AND verified`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("load verified addresses: %w", err)
	}
	defer rows.Close()

	var addresses []id.GovernanceAddress
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan verified address: %w", err)
		}
		addresses = append(addresses, id.GovernanceAddress(addr))
	}
	return addresses, rows.Err()
}
