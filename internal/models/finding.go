// Package models contains the normalized data structures shared by the
// ingestion adapters and the reconciliation engine.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity levels for normalized findings.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Finding statuses reported by scanners.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// Finding is a scanner observation normalized to the common shape every
// ingestion adapter produces: a rule identifier, the affected resource, and
// the scanner-reported state. Findings are advisory inputs; they never carry
// a control decision themselves.
type Finding struct {
	ObservedAt time.Time `json:"observed_at"`
	Source     string    `json:"source"`
	RuleID     string    `json:"rule_id"`
	Resource   string    `json:"resource"`
	Severity   string    `json:"severity"`
	Status     string    `json:"status"`
	Title      string    `json:"title,omitempty"`
}

// NewFinding creates a normalized finding with defaults applied.
func NewFinding(source, ruleID, resource string) *Finding {
	return &Finding{
		Source:     source,
		RuleID:     ruleID,
		Resource:   resource,
		Severity:   SeverityMedium,
		Status:     StatusOpen,
		ObservedAt: time.Now().UTC(),
	}
}

// IsValid checks if a finding has all required fields.
func (f *Finding) IsValid() error {
	if f.Source == "" {
		return fmt.Errorf("finding missing required field: source")
	}
	if f.RuleID == "" {
		return fmt.Errorf("finding missing required field: rule_id")
	}
	if f.Resource == "" {
		return fmt.Errorf("finding missing required field: resource")
	}
	if f.Status != StatusOpen && f.Status != StatusResolved {
		return fmt.Errorf("finding has invalid status: %q", f.Status)
	}
	return nil
}

// NormalizeSeverity maps scanner-specific severity labels onto the common
// scale. Unknown labels degrade to info rather than failing.
func NormalizeSeverity(severity string) string {
	switch strings.ToLower(severity) {
	case "critical", "very-high", "very high":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	case "low", "minor":
		return SeverityLow
	case "info", "informational", "negligible", "none":
		return SeverityInfo
	default:
		return SeverityInfo
	}
}

// NormalizeStatus maps scanner-specific result states onto open/resolved.
// Anything a scanner reports as passing or fixed counts as resolved.
func NormalizeStatus(status string) string {
	switch strings.ToLower(status) {
	case "resolved", "pass", "passed", "fixed", "closed":
		return StatusResolved
	default:
		return StatusOpen
	}
}
