package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateRisk creates a tracked risk item.
func (db *DB) CreateRisk(ctx context.Context, risk *Risk) error {
	if risk.ID == "" {
		risk.ID = uuid.NewString()
	}
	if risk.Status == "" {
		risk.Status = RiskOpen
	}
	if risk.Source == "" {
		risk.Source = RiskSourceManual
	}
	if risk.Severity == "" {
		risk.Severity = "medium"
	}
	now := time.Now().UTC()
	risk.CreatedAt = now
	risk.UpdatedAt = now

	query := `
		INSERT INTO risks (id, org_id, title, description, severity, status, source, control_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		risk.ID,
		risk.OrgID,
		risk.Title,
		risk.Description,
		risk.Severity,
		risk.Status,
		risk.Source,
		risk.ControlID,
		risk.CreatedAt,
		risk.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting risk: %w", err)
	}

	return nil
}

// GetRisk retrieves a risk by ID.
func (db *DB) GetRisk(ctx context.Context, riskID string) (*Risk, error) {
	query := `
		SELECT id, org_id, title, description, severity, status, source, control_id, created_at, updated_at
		FROM risks
		WHERE id = ?
	`

	risk := &Risk{}
	err := db.QueryRowContext(ctx, query, riskID).Scan(
		&risk.ID,
		&risk.OrgID,
		&risk.Title,
		&risk.Description,
		&risk.Severity,
		&risk.Status,
		&risk.Source,
		&risk.ControlID,
		&risk.CreatedAt,
		&risk.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("risk %s: %w", riskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying risk: %w", err)
	}

	return risk, nil
}

// ListRisks retrieves an org's risks with optional filtering.
func (db *DB) ListRisks(ctx context.Context, orgID string, filter RiskFilter) ([]*Risk, error) {
	query := `
		SELECT id, org_id, title, description, severity, status, source, control_id, created_at, updated_at
		FROM risks
		WHERE org_id = ?
	`

	args := []any{orgID}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.Source != nil {
		query += " AND source = ?"
		args = append(args, *filter.Source)
	}
	if filter.ControlID != nil {
		query += " AND control_id = ?"
		args = append(args, *filter.ControlID)
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("querying risks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var risks []*Risk
	for rows.Next() {
		risk := &Risk{}
		err := rows.Scan(
			&risk.ID,
			&risk.OrgID,
			&risk.Title,
			&risk.Description,
			&risk.Severity,
			&risk.Status,
			&risk.Source,
			&risk.ControlID,
			&risk.CreatedAt,
			&risk.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		risks = append(risks, risk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return risks, nil
}

// CloseGapRisks closes every non-terminal gap-sourced risk linked to the
// control. Set-based sweep: closed and accepted rows are excluded by the
// predicate, so re-running the sweep converges. Returns the number closed.
func (db *DB) CloseGapRisks(ctx context.Context, orgID, controlID string) (int64, error) {
	query := `
		UPDATE risks
		SET status = ?, updated_at = ?
		WHERE org_id = ?
		  AND control_id = ?
		  AND source = ?
		  AND status NOT IN (?, ?)
	`

	result, err := db.ExecContext(ctx, query,
		RiskClosed,
		time.Now().UTC(),
		orgID,
		controlID,
		RiskSourceGap,
		RiskClosed,
		RiskAccepted,
	)
	if err != nil {
		return 0, fmt.Errorf("closing gap risks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	return rows, nil
}
