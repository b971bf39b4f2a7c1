package database

import (
	"database/sql"
	"time"
)

// ControlStatusValue represents the progress state of a control for one org.
type ControlStatusValue string

// Control status values.
const (
	ControlNotStarted    ControlStatusValue = "not_started"
	ControlInProgress    ControlStatusValue = "in_progress"
	ControlVerified      ControlStatusValue = "verified"
	ControlNotApplicable ControlStatusValue = "not_applicable"
)

// Valid reports whether the value is one of the known control statuses.
func (v ControlStatusValue) Valid() bool {
	switch v {
	case ControlNotStarted, ControlInProgress, ControlVerified, ControlNotApplicable:
		return true
	}
	return false
}

// PolicyStatus represents the lifecycle state of a policy document.
type PolicyStatus string

// Policy status values.
const (
	PolicyDraft    PolicyStatus = "draft"
	PolicyInReview PolicyStatus = "in_review"
	PolicyApproved PolicyStatus = "approved"
	PolicyArchived PolicyStatus = "archived"
)

// Valid reports whether the value is one of the known policy statuses.
func (s PolicyStatus) Valid() bool {
	switch s {
	case PolicyDraft, PolicyInReview, PolicyApproved, PolicyArchived:
		return true
	}
	return false
}

// RiskStatus represents the state of a tracked risk.
type RiskStatus string

// Risk status values. Closed and accepted are terminal: the verify cascade
// never touches them.
const (
	RiskOpen      RiskStatus = "open"
	RiskMitigated RiskStatus = "mitigated"
	RiskAccepted  RiskStatus = "accepted"
	RiskClosed    RiskStatus = "closed"
)

// RiskSource records what created a risk.
type RiskSource string

// Risk sources.
const (
	RiskSourceManual     RiskSource = "manual"
	RiskSourceGap        RiskSource = "gap"
	RiskSourceAssessment RiskSource = "assessment"
)

// FindingStatus is the scanner-reported state of an observation.
type FindingStatus string

// Finding statuses.
const (
	FindingOpen     FindingStatus = "open"
	FindingResolved FindingStatus = "resolved"
)

// Organization is the tenant boundary; every scoped table carries its id.
type Organization struct {
	CreatedAt time.Time
	ID        string
	Name      string
}

// Member is a user belonging to exactly one organization.
type Member struct {
	CreatedAt time.Time
	ID        string
	OrgID     string
	Email     string
	Role      string
	APIToken  string
}

// Framework is a named compliance standard composed of controls.
type Framework struct {
	ID          string
	Name        string
	Version     string
	Description string
}

// Control is a single global compliance requirement within a framework.
type Control struct {
	ID          string
	FrameworkID string
	ControlID   string
	Title       string
	Description string
	Position    int
}

// OrgFramework is an organization's adoption of one framework.
type OrgFramework struct {
	AssignedAt  time.Time
	ID          string
	OrgID       string
	FrameworkID string
}

// ControlStatus is the reconciled ledger row, one per (org, control).
type ControlStatus struct {
	LastUpdated time.Time
	ID          string
	OrgID       string
	ControlID   string
	Status      ControlStatusValue
	Notes       sql.NullString
	UpdatedBy   sql.NullString
}

// Policy is a governance document linked to controls.
type Policy struct {
	CreatedAt  time.Time
	UpdatedAt  time.Time
	NextReview sql.NullTime
	ID         string
	OrgID      string
	Title      string
	Content    string
	Status     PolicyStatus
	Owner      sql.NullString
	Version    string
}

// PolicyPatch carries partial updates for a policy. Nil fields are left
// untouched.
type PolicyPatch struct {
	Status     *PolicyStatus
	Owner      *string
	Title      *string
	Content    *string
	Version    *string
	NextReview *time.Time
}

// Empty reports whether the patch carries no fields.
func (p *PolicyPatch) Empty() bool {
	return p.Status == nil && p.Owner == nil && p.Title == nil &&
		p.Content == nil && p.Version == nil && p.NextReview == nil
}

// Risk is a tracked risk item, optionally linked to a control.
type Risk struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ID          string
	OrgID       string
	Title       string
	Description string
	Severity    string
	Status      RiskStatus
	Source      RiskSource
	ControlID   sql.NullString
}

// Finding is a normalized scanner observation stored for dashboard surfacing.
type Finding struct {
	ObservedAt time.Time
	CreatedAt  time.Time
	ID         string
	OrgID      string
	Source     string
	RuleID     string
	Resource   string
	Severity   string
	Status     FindingStatus
}

// ControlStatusFilter provides filtering options for listing control statuses.
type ControlStatusFilter struct {
	Status *ControlStatusValue
	Limit  int
	Offset int
}

// RiskFilter provides filtering options for listing risks.
type RiskFilter struct {
	Status    *RiskStatus
	Source    *RiskSource
	ControlID *string
	Limit     int
	Offset    int
}

// FindingFilter provides filtering options for listing findings.
type FindingFilter struct {
	Source *string
	RuleID *string
	Status *FindingStatus
	Limit  int
	Offset int
}

// StatusCounts summarizes an org's ledger by status for the dashboard.
type StatusCounts struct {
	NotStarted    int
	InProgress    int
	Verified      int
	NotApplicable int
	Total         int
}
