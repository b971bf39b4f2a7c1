package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SeedControlStatuses upserts one not_started ledger row per control ID,
// skipping any (org, control) pair that already has a row. Safe to run
// twice: a control a human has already progressed is never reset.
func (db *DB) SeedControlStatuses(ctx context.Context, orgID string, controlIDs []string) error {
	if len(controlIDs) == 0 {
		return nil
	}

	return db.InTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO control_statuses (id, org_id, control_id, status, last_updated)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (org_id, control_id) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer func() {
			_ = stmt.Close()
		}()

		now := time.Now().UTC()
		for _, controlID := range controlIDs {
			if _, err := stmt.ExecContext(ctx, uuid.NewString(), orgID, controlID, ControlNotStarted, now); err != nil {
				return fmt.Errorf("seeding control %s: %w", controlID, err)
			}
		}

		return nil
	})
}

// UpsertControlStatus writes the ledger row for (org, control), creating it
// if adoption has not seeded it yet.
func (db *DB) UpsertControlStatus(ctx context.Context, cs *ControlStatus) error {
	if cs.ID == "" {
		cs.ID = uuid.NewString()
	}
	cs.LastUpdated = time.Now().UTC()

	query := `
		INSERT INTO control_statuses (id, org_id, control_id, status, notes, last_updated, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, control_id) DO UPDATE SET
			status = excluded.status,
			notes = excluded.notes,
			last_updated = excluded.last_updated,
			updated_by = excluded.updated_by
	`
	_, err := db.ExecContext(ctx, query,
		cs.ID,
		cs.OrgID,
		cs.ControlID,
		cs.Status,
		cs.Notes,
		cs.LastUpdated,
		cs.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("upserting control status: %w", err)
	}

	return nil
}

// GetControlStatus retrieves the ledger row for (org, control).
func (db *DB) GetControlStatus(ctx context.Context, orgID, controlID string) (*ControlStatus, error) {
	query := `
		SELECT id, org_id, control_id, status, notes, last_updated, updated_by
		FROM control_statuses
		WHERE org_id = ? AND control_id = ?
	`

	cs := &ControlStatus{}
	err := db.QueryRowContext(ctx, query, orgID, controlID).Scan(
		&cs.ID,
		&cs.OrgID,
		&cs.ControlID,
		&cs.Status,
		&cs.Notes,
		&cs.LastUpdated,
		&cs.UpdatedBy,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("control status %s/%s: %w", orgID, controlID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying control status: %w", err)
	}

	return cs, nil
}

// ListControlStatuses retrieves an org's ledger rows with optional filtering.
func (db *DB) ListControlStatuses(ctx context.Context, orgID string, filter ControlStatusFilter) ([]*ControlStatus, error) {
	query := `
		SELECT id, org_id, control_id, status, notes, last_updated, updated_by
		FROM control_statuses
		WHERE org_id = ?
	`

	args := []any{orgID}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}

	query += " ORDER BY control_id"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying control statuses: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var statuses []*ControlStatus
	for rows.Next() {
		cs := &ControlStatus{}
		err := rows.Scan(
			&cs.ID,
			&cs.OrgID,
			&cs.ControlID,
			&cs.Status,
			&cs.Notes,
			&cs.LastUpdated,
			&cs.UpdatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		statuses = append(statuses, cs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return statuses, nil
}

// AdvanceControlStatuses bulk-updates the given controls from not_started to
// in_progress. The status predicate in the WHERE clause is the concurrency
// guard: a row a human already moved is excluded by its own state, so no
// locking is needed. Returns the number of rows advanced.
func (db *DB) AdvanceControlStatuses(ctx context.Context, orgID string, controlIDs []string) (int64, error) {
	if len(controlIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(controlIDs)), ",")
	query := fmt.Sprintf(`
		UPDATE control_statuses
		SET status = ?, last_updated = ?
		WHERE org_id = ? AND status = ? AND control_id IN (%s)
	`, placeholders)

	args := make([]any, 0, len(controlIDs)+4)
	args = append(args, ControlInProgress, time.Now().UTC(), orgID, ControlNotStarted)
	for _, id := range controlIDs {
		args = append(args, id)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("advancing control statuses: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	return rows, nil
}

// CountControlStatuses returns the number of ledger rows for an org.
func (db *DB) CountControlStatuses(ctx context.Context, orgID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM control_statuses WHERE org_id = ?`

	if err := db.QueryRowContext(ctx, query, orgID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting control statuses: %w", err)
	}

	return count, nil
}

// GetStatusCounts returns per-status totals for an org's ledger.
func (db *DB) GetStatusCounts(ctx context.Context, orgID string) (*StatusCounts, error) {
	query := `
		SELECT
			COUNT(CASE WHEN status = 'not_started' THEN 1 END) as not_started,
			COUNT(CASE WHEN status = 'in_progress' THEN 1 END) as in_progress,
			COUNT(CASE WHEN status = 'verified' THEN 1 END) as verified,
			COUNT(CASE WHEN status = 'not_applicable' THEN 1 END) as not_applicable,
			COUNT(*) as total
		FROM control_statuses
		WHERE org_id = ?
	`

	counts := &StatusCounts{}
	err := db.QueryRowContext(ctx, query, orgID).Scan(
		&counts.NotStarted,
		&counts.InProgress,
		&counts.Verified,
		&counts.NotApplicable,
		&counts.Total,
	)
	if err != nil {
		return nil, fmt.Errorf("querying status counts: %w", err)
	}

	return counts, nil
}
