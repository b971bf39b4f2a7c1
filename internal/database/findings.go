package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertFinding records a normalized scanner observation. Re-delivery of the
// same (org, source, rule, resource) updates status and timestamps in place.
func (db *DB) UpsertFinding(ctx context.Context, finding *Finding) error {
	if finding.ID == "" {
		finding.ID = uuid.NewString()
	}
	if finding.Status == "" {
		finding.Status = FindingOpen
	}
	finding.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO findings (id, org_id, source, rule_id, resource, severity, status, observed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, source, rule_id, resource) DO UPDATE SET
			severity = excluded.severity,
			status = excluded.status,
			observed_at = excluded.observed_at
	`
	_, err := db.ExecContext(ctx, query,
		finding.ID,
		finding.OrgID,
		finding.Source,
		finding.RuleID,
		finding.Resource,
		finding.Severity,
		finding.Status,
		finding.ObservedAt,
		finding.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting finding: %w", err)
	}

	return nil
}

// ListFindings retrieves an org's findings with optional filtering.
func (db *DB) ListFindings(ctx context.Context, orgID string, filter FindingFilter) ([]*Finding, error) {
	query := `
		SELECT id, org_id, source, rule_id, resource, severity, status, observed_at, created_at
		FROM findings
		WHERE org_id = ?
	`

	args := []any{orgID}

	if filter.Source != nil {
		query += " AND source = ?"
		args = append(args, *filter.Source)
	}
	if filter.RuleID != nil {
		query += " AND rule_id = ?"
		args = append(args, *filter.RuleID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}

	query += " ORDER BY observed_at DESC"

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
		return nil, fmt.Errorf("querying findings: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var findings []*Finding
	for rows.Next() {
		finding := &Finding{}
		err := rows.Scan(
			&finding.ID,
			&finding.OrgID,
			&finding.Source,
			&finding.RuleID,
			&finding.Resource,
			&finding.Severity,
			&finding.Status,
			&finding.ObservedAt,
			&finding.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		findings = append(findings, finding)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return findings, nil
}
