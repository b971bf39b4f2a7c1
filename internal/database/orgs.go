package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateOrganization creates a new organization.
func (db *DB) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	org := &Organization{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, query, org.ID, org.Name, org.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting organization: %w", err)
	}

	return org, nil
}

// GetOrganization retrieves an organization by ID.
func (db *DB) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	query := `SELECT id, name, created_at FROM organizations WHERE id = ?`

	org := &Organization{}
	err := db.QueryRowContext(ctx, query, orgID).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("organization %s: %w", orgID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying organization: %w", err)
	}

	return org, nil
}

// CreateMember creates a member of an organization.
func (db *DB) CreateMember(ctx context.Context, member *Member) error {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if member.Role == "" {
		member.Role = "member"
	}
	member.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO members (id, org_id, email, role, api_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		member.ID,
		member.OrgID,
		member.Email,
		member.Role,
		member.APIToken,
		member.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting member: %w", err)
	}

	return nil
}

// MemberByToken resolves a member from an API token. This is how the server
// derives the caller's organization; write targets never trust a
// client-supplied org ID.
func (db *DB) MemberByToken(ctx context.Context, token string) (*Member, error) {
	query := `
		SELECT id, org_id, email, role, api_token, created_at
		FROM members
		WHERE api_token = ?
	`

	member := &Member{}
	err := db.QueryRowContext(ctx, query, token).Scan(
		&member.ID,
		&member.OrgID,
		&member.Email,
		&member.Role,
		&member.APIToken,
		&member.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member token: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying member: %w", err)
	}

	return member, nil
}

// GetMember retrieves a member by ID.
func (db *DB) GetMember(ctx context.Context, memberID string) (*Member, error) {
	query := `
		SELECT id, org_id, email, role, api_token, created_at
		FROM members
		WHERE id = ?
	`

	member := &Member{}
	err := db.QueryRowContext(ctx, query, memberID).Scan(
		&member.ID,
		&member.OrgID,
		&member.Email,
		&member.Role,
		&member.APIToken,
		&member.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member %s: %w", memberID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying member: %w", err)
	}

	return member, nil
}
