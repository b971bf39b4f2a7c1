package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/complyhq/comply/internal/models"
)

// repoAuditReport is the output shape of source-repository scanners: one
// report per repository with a flat list of rule results.
type repoAuditReport struct {
	Repository string `json:"repository"`
	ScannedAt  string `json:"scanned_at"`
	Results    []struct {
		RuleID   string `json:"rule_id"`
		File     string `json:"file,omitempty"`
		Severity string `json:"severity"`
		State    string `json:"state"`
		Message  string `json:"message,omitempty"`
	} `json:"results"`
}

// ParseRepoAudit converts repository scanner JSON into normalized findings.
// The resource is the repository plus the offending file when one is named.
func ParseRepoAudit(raw []byte) ([]*models.Finding, error) {
	var report repoAuditReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("parsing repo audit output: %w", err)
	}
	if report.Repository == "" {
		return nil, fmt.Errorf("repo audit output missing repository")
	}

	observedAt := time.Now().UTC()
	if report.ScannedAt != "" {
		if ts, err := time.Parse(time.RFC3339, report.ScannedAt); err == nil {
			observedAt = ts
		}
	}

	findings := make([]*models.Finding, 0, len(report.Results))
	for _, result := range report.Results {
		if result.RuleID == "" {
			continue
		}

		resource := report.Repository
		if result.File != "" {
			resource = report.Repository + "/" + result.File
		}

		finding := models.NewFinding(SourceRepoAudit, result.RuleID, resource)
		finding.Severity = models.NormalizeSeverity(result.Severity)
		finding.Status = models.NormalizeStatus(result.State)
		finding.Title = result.Message
		finding.ObservedAt = observedAt

		findings = append(findings, finding)
	}

	return findings, nil
}
