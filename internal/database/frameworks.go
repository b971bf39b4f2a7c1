package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateFramework creates a framework definition.
func (db *DB) CreateFramework(ctx context.Context, fw *Framework) error {
	if fw.ID == "" {
		fw.ID = uuid.NewString()
	}

	query := `INSERT INTO frameworks (id, name, version, description) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, query, fw.ID, fw.Name, fw.Version, fw.Description); err != nil {
		return fmt.Errorf("inserting framework: %w", err)
	}

	return nil
}

// GetFramework retrieves a framework by ID.
func (db *DB) GetFramework(ctx context.Context, frameworkID string) (*Framework, error) {
	query := `SELECT id, name, version, description FROM frameworks WHERE id = ?`

	fw := &Framework{}
	err := db.QueryRowContext(ctx, query, frameworkID).Scan(&fw.ID, &fw.Name, &fw.Version, &fw.Description)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("framework %s: %w", frameworkID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying framework: %w", err)
	}

	return fw, nil
}

// CreateControl creates a control definition within a framework.
func (db *DB) CreateControl(ctx context.Context, control *Control) error {
	if control.ID == "" {
		control.ID = uuid.NewString()
	}

	query := `
		INSERT INTO controls (id, framework_id, control_id, title, description, position)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		control.ID,
		control.FrameworkID,
		control.ControlID,
		control.Title,
		control.Description,
		control.Position,
	)
	if err != nil {
		return fmt.Errorf("inserting control: %w", err)
	}

	return nil
}

// ListControls returns all controls for a framework in catalog order.
func (db *DB) ListControls(ctx context.Context, frameworkID string) ([]*Control, error) {
	query := `
		SELECT id, framework_id, control_id, title, description, position
		FROM controls
		WHERE framework_id = ?
		ORDER BY position, control_id
	`

	rows, err := db.QueryContext(ctx, query, frameworkID)
	if err != nil {
		return nil, fmt.Errorf("querying controls: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var controls []*Control
	for rows.Next() {
		control := &Control{}
		err := rows.Scan(
			&control.ID,
			&control.FrameworkID,
			&control.ControlID,
			&control.Title,
			&control.Description,
			&control.Position,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		controls = append(controls, control)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return controls, nil
}

// InsertOrgFramework inserts the adoption join row. A unique violation on
// (org_id, framework_id) means the framework is already adopted; callers
// resolve that by refetching, not by failing.
func (db *DB) InsertOrgFramework(ctx context.Context, orgID, frameworkID string) (*OrgFramework, error) {
	of := &OrgFramework{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		FrameworkID: frameworkID,
		AssignedAt:  time.Now().UTC(),
	}

	query := `INSERT INTO org_frameworks (id, org_id, framework_id, assigned_at) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, query, of.ID, of.OrgID, of.FrameworkID, of.AssignedAt); err != nil {
		return nil, fmt.Errorf("inserting org framework: %w", err)
	}

	return of, nil
}

// GetOrgFramework retrieves an adoption row by its own ID.
func (db *DB) GetOrgFramework(ctx context.Context, orgFrameworkID string) (*OrgFramework, error) {
	query := `SELECT id, org_id, framework_id, assigned_at FROM org_frameworks WHERE id = ?`

	of := &OrgFramework{}
	err := db.QueryRowContext(ctx, query, orgFrameworkID).Scan(&of.ID, &of.OrgID, &of.FrameworkID, &of.AssignedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("org framework %s: %w", orgFrameworkID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying org framework: %w", err)
	}

	return of, nil
}

// GetOrgFrameworkByPair retrieves an adoption row by (org, framework).
func (db *DB) GetOrgFrameworkByPair(ctx context.Context, orgID, frameworkID string) (*OrgFramework, error) {
	query := `
		SELECT id, org_id, framework_id, assigned_at
		FROM org_frameworks
		WHERE org_id = ? AND framework_id = ?
	`

	of := &OrgFramework{}
	err := db.QueryRowContext(ctx, query, orgID, frameworkID).Scan(&of.ID, &of.OrgID, &of.FrameworkID, &of.AssignedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("org framework for org %s: %w", orgID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying org framework: %w", err)
	}

	return of, nil
}

// DeleteOrgFramework removes the adoption join row. ControlStatus rows are
// deliberately left in place; see the engine's RemoveFramework.
func (db *DB) DeleteOrgFramework(ctx context.Context, orgFrameworkID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM org_frameworks WHERE id = ?`, orgFrameworkID)
	if err != nil {
		return fmt.Errorf("deleting org framework: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("org framework %s: %w", orgFrameworkID, ErrNotFound)
	}

	return nil
}
