// Package reconcile implements the control status reconciliation engine: the
// component that keeps the per-organization compliance ledger consistent as
// manual edits, policy transitions, and framework assignments arrive.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/complyhq/comply/internal/database"
	"github.com/complyhq/comply/pkg/logger"
)

// Errors returned by the engine.
var (
	ErrInvalidStatus = errors.New("invalid status value")
	ErrEmptyPatch    = errors.New("empty policy patch")
)

// Engine applies incoming events to the compliance ledger and runs the
// cascades they trigger. All operations are request-scoped and idempotent
// under retry; cascades are best-effort and never fail the primary write.
type Engine struct {
	db     *database.DB
	logger logger.Logger
}

// New creates a reconciliation engine using the global logger.
func New(db *database.DB) *Engine {
	return NewWithLogger(db, logger.GetGlobalLogger())
}

// NewWithLogger creates a reconciliation engine with a custom logger.
func NewWithLogger(db *database.DB, log logger.Logger) *Engine {
	return &Engine{db: db, logger: log}
}

// AdoptResult reports the outcome of a framework adoption.
type AdoptResult struct {
	OrgFramework *database.OrgFramework
	// AlreadyAssigned is true when the org had adopted the framework before
	// this call; re-adoption is a no-op, not an error.
	AlreadyAssigned bool
	// ControlStatuses is the number of ledger rows now present for the org.
	// Informational only.
	ControlStatuses int
}

// AdoptFramework records an organization's adoption of a framework and seeds
// one not_started ledger row per control in it. Safe to call twice: the
// second call returns the existing adoption, and seeding never resets a
// control a human has already progressed.
func (e *Engine) AdoptFramework(ctx context.Context, orgID, frameworkID string) (*AdoptResult, error) {
	operationsTotal.WithLabelValues("adopt_framework").Inc()

	if _, err := e.db.GetOrganization(ctx, orgID); err != nil {
		return nil, fmt.Errorf("resolving organization: %w", err)
	}
	if _, err := e.db.GetFramework(ctx, frameworkID); err != nil {
		return nil, fmt.Errorf("resolving framework: %w", err)
	}

	result := &AdoptResult{}

	of, err := e.db.InsertOrgFramework(ctx, orgID, frameworkID)
	switch {
	case err == nil:
		result.OrgFramework = of
	case database.IsUniqueViolation(err):
		existing, fetchErr := e.db.GetOrgFrameworkByPair(ctx, orgID, frameworkID)
		if fetchErr != nil {
			return nil, fmt.Errorf("fetching existing adoption: %w", fetchErr)
		}
		result.OrgFramework = existing
		result.AlreadyAssigned = true
	default:
		return nil, fmt.Errorf("recording adoption: %w", err)
	}

	// Seeding is an explicit engine step, not a storage-layer trigger. It
	// runs on re-adoption too; the per-row conflict clause makes that safe.
	controls, err := e.db.ListControls(ctx, frameworkID)
	if err != nil {
		return nil, fmt.Errorf("listing framework controls: %w", err)
	}

	controlIDs := make([]string, 0, len(controls))
	for _, c := range controls {
		controlIDs = append(controlIDs, c.ControlID)
	}

	if err := e.db.SeedControlStatuses(ctx, orgID, controlIDs); err != nil {
		return nil, fmt.Errorf("seeding control statuses: %w", err)
	}

	count, err := e.db.CountControlStatuses(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("counting control statuses: %w", err)
	}
	result.ControlStatuses = count

	e.logger.Info("framework adopted",
		"org_id", orgID,
		"framework_id", frameworkID,
		"already_assigned", result.AlreadyAssigned,
		"control_statuses", count,
	)

	return result, nil
}

// SetControlStatus applies a manual operator edit to the ledger row for
// (org, control). A transition to verified closes the control's open gap
// risks; no cascade fires for any other value, and moving away from verified
// never reopens previously-closed risks.
func (e *Engine) SetControlStatus(ctx context.Context, orgID, controlID string, status database.ControlStatusValue, notes *string, actor string) (*database.ControlStatus, error) {
	operationsTotal.WithLabelValues("set_control_status").Inc()

	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	cs := &database.ControlStatus{
		OrgID:     orgID,
		ControlID: controlID,
		Status:    status,
	}
	if notes != nil {
		cs.Notes = sql.NullString{String: *notes, Valid: true}
	}
	if actor != "" {
		cs.UpdatedBy = sql.NullString{String: actor, Valid: true}
	}

	if err := e.db.UpsertControlStatus(ctx, cs); err != nil {
		return nil, fmt.Errorf("writing control status: %w", err)
	}

	if status == database.ControlVerified {
		e.closeGapRisks(ctx, orgID, controlID)
	}

	updated, err := e.db.GetControlStatus(ctx, orgID, controlID)
	if err != nil {
		return nil, fmt.Errorf("reading control status: %w", err)
	}

	return updated, nil
}

// closeGapRisks runs the verify cascade. Failure here is logged and counted
// but never fails the caller: the primary status write already succeeded.
func (e *Engine) closeGapRisks(ctx context.Context, orgID, controlID string) {
	closed, err := e.db.CloseGapRisks(ctx, orgID, controlID)
	if err != nil {
		cascadeFailuresTotal.WithLabelValues("close_gap_risks").Inc()
		e.logger.Error("gap risk sweep failed",
			"org_id", orgID,
			"control_id", controlID,
			"error", err,
		)
		return
	}

	cascadeWritesTotal.WithLabelValues("close_gap_risks").Add(float64(closed))
	if closed > 0 {
		e.logger.Info("closed gap risks",
			"org_id", orgID,
			"control_id", controlID,
			"count", closed,
		)
	}
}

// UpdatePolicy applies a partial update to a policy. Crossing the approval
// edge advances the policy's linked controls that are still not_started to
// in_progress; re-saving an already-approved policy does not re-trigger it.
func (e *Engine) UpdatePolicy(ctx context.Context, policyID string, patch *database.PolicyPatch) (*database.Policy, error) {
	operationsTotal.WithLabelValues("update_policy").Inc()

	if patch == nil || patch.Empty() {
		return nil, ErrEmptyPatch
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *patch.Status)
	}

	// Capture the prior status before writing; the cascade condition is an
	// edge, not a level.
	prior, err := e.db.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}

	if err := e.db.ApplyPolicyPatch(ctx, policyID, patch); err != nil {
		return nil, fmt.Errorf("updating policy: %w", err)
	}

	if approveEdge(prior.Status, patch.Status) {
		e.advanceLinkedControls(ctx, prior.OrgID, policyID)
	}

	updated, err := e.db.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("reading policy: %w", err)
	}

	return updated, nil
}

// approveEdge reports whether a patch crosses the draft-side boundary into
// approved. Kept separate from storage so future cascade triggers can reuse
// the same transition check.
func approveEdge(prev database.PolicyStatus, next *database.PolicyStatus) bool {
	return next != nil && *next == database.PolicyApproved && prev != database.PolicyApproved
}

// advanceLinkedControls runs the approval cascade. Approving a policy is
// evidence of planning, not verification, so only not_started rows advance
// and only to in_progress. Failure is logged and non-fatal.
func (e *Engine) advanceLinkedControls(ctx context.Context, orgID, policyID string) {
	controlIDs, err := e.db.PolicyControlIDs(ctx, policyID)
	if err != nil {
		cascadeFailuresTotal.WithLabelValues("advance_linked_controls").Inc()
		e.logger.Error("loading linked controls failed",
			"org_id", orgID,
			"policy_id", policyID,
			"error", err,
		)
		return
	}

	advanced, err := e.db.AdvanceControlStatuses(ctx, orgID, controlIDs)
	if err != nil {
		cascadeFailuresTotal.WithLabelValues("advance_linked_controls").Inc()
		e.logger.Error("control advance sweep failed",
			"org_id", orgID,
			"policy_id", policyID,
			"error", err,
		)
		return
	}

	cascadeWritesTotal.WithLabelValues("advance_linked_controls").Add(float64(advanced))
	if advanced > 0 {
		e.logger.Info("advanced linked controls",
			"org_id", orgID,
			"policy_id", policyID,
			"count", advanced,
		)
	}
}

// RemoveFramework deletes the adoption join row. Ledger rows are retained as
// orphans: the org's progress history outlives its claim to the framework.
func (e *Engine) RemoveFramework(ctx context.Context, orgFrameworkID string) error {
	operationsTotal.WithLabelValues("remove_framework").Inc()

	of, err := e.db.GetOrgFramework(ctx, orgFrameworkID)
	if err != nil {
		return fmt.Errorf("resolving adoption: %w", err)
	}

	if err := e.db.DeleteOrgFramework(ctx, orgFrameworkID); err != nil {
		return fmt.Errorf("removing adoption: %w", err)
	}

	e.logger.Info("framework removed",
		"org_id", of.OrgID,
		"framework_id", of.FrameworkID,
	)

	return nil
}
