package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreatePolicy creates a policy document.
func (db *DB) CreatePolicy(ctx context.Context, policy *Policy) error {
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	if policy.Status == "" {
		policy.Status = PolicyDraft
	}
	if policy.Version == "" {
		policy.Version = "1.0"
	}
	now := time.Now().UTC()
	policy.CreatedAt = now
	policy.UpdatedAt = now

	query := `
		INSERT INTO policies (id, org_id, title, content, status, owner, version, next_review, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		policy.ID,
		policy.OrgID,
		policy.Title,
		policy.Content,
		policy.Status,
		policy.Owner,
		policy.Version,
		policy.NextReview,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting policy: %w", err)
	}

	return nil
}

// GetPolicy retrieves a policy by ID.
func (db *DB) GetPolicy(ctx context.Context, policyID string) (*Policy, error) {
	query := `
		SELECT id, org_id, title, content, status, owner, version, next_review, created_at, updated_at
		FROM policies
		WHERE id = ?
	`

	policy := &Policy{}
	err := db.QueryRowContext(ctx, query, policyID).Scan(
		&policy.ID,
		&policy.OrgID,
		&policy.Title,
		&policy.Content,
		&policy.Status,
		&policy.Owner,
		&policy.Version,
		&policy.NextReview,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("policy %s: %w", policyID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying policy: %w", err)
	}

	return policy, nil
}

// ApplyPolicyPatch updates only the fields present in the patch. Absent
// fields are left untouched, never nulled.
func (db *DB) ApplyPolicyPatch(ctx context.Context, policyID string, patch *PolicyPatch) error {
	query := "UPDATE policies SET updated_at = ?"
	args := []any{time.Now().UTC()}

	if patch.Status != nil {
		query += ", status = ?"
		args = append(args, *patch.Status)
	}
	if patch.Owner != nil {
		query += ", owner = ?"
		args = append(args, *patch.Owner)
	}
	if patch.Title != nil {
		query += ", title = ?"
		args = append(args, *patch.Title)
	}
	if patch.Content != nil {
		query += ", content = ?"
		args = append(args, *patch.Content)
	}
	if patch.Version != nil {
		query += ", version = ?"
		args = append(args, *patch.Version)
	}
	if patch.NextReview != nil {
		query += ", next_review = ?"
		args = append(args, *patch.NextReview)
	}

	query += " WHERE id = ?"
	args = append(args, policyID)

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating policy: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("policy %s: %w", policyID, ErrNotFound)
	}

	return nil
}

// LinkPolicyControl links a policy to a control. Re-linking the same pair is
// a no-op, not an error.
func (db *DB) LinkPolicyControl(ctx context.Context, policyID, controlID string) error {
	query := `
		INSERT INTO policy_controls (policy_id, control_id)
		VALUES (?, ?)
		ON CONFLICT (policy_id, control_id) DO NOTHING
	`
	if _, err := db.ExecContext(ctx, query, policyID, controlID); err != nil {
		return fmt.Errorf("linking policy control: %w", err)
	}

	return nil
}

// UnlinkPolicyControl removes a policy-control link.
func (db *DB) UnlinkPolicyControl(ctx context.Context, policyID, controlID string) error {
	query := `DELETE FROM policy_controls WHERE policy_id = ? AND control_id = ?`
	if _, err := db.ExecContext(ctx, query, policyID, controlID); err != nil {
		return fmt.Errorf("unlinking policy control: %w", err)
	}

	return nil
}

// PolicyControlIDs returns the control IDs linked to a policy.
func (db *DB) PolicyControlIDs(ctx context.Context, policyID string) ([]string, error) {
	query := `SELECT control_id FROM policy_controls WHERE policy_id = ? ORDER BY control_id`

	rows, err := db.QueryContext(ctx, query, policyID)
	if err != nil {
		return nil, fmt.Errorf("querying policy controls: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var controlIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		controlIDs = append(controlIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return controlIDs, nil
}
