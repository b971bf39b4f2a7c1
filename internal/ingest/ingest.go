// Package ingest normalizes external scanner output and maps it onto the
// controls it evidences. Ingestion is advisory: findings surface candidate
// controls for attention but never mutate control status themselves.
package ingest

import (
	"context"
	"fmt"

	"github.com/complyhq/comply/internal/database"
	"github.com/complyhq/comply/internal/models"
	"github.com/complyhq/comply/internal/rulemap"
	"github.com/complyhq/comply/pkg/logger"
)

// Ingestion source names.
const (
	SourceCloudPosture = "cloud_posture"
	SourceRepoAudit    = "repo_audit"
)

// Ingestor records normalized findings and resolves the controls they are
// evidence for.
type Ingestor struct {
	db     *database.DB
	rules  *rulemap.Map
	logger logger.Logger
}

// New creates an ingestor using the global logger.
func New(db *database.DB, rules *rulemap.Map) *Ingestor {
	return NewWithLogger(db, rules, logger.GetGlobalLogger())
}

// NewWithLogger creates an ingestor with a custom logger.
func NewWithLogger(db *database.DB, rules *rulemap.Map, log logger.Logger) *Ingestor {
	return &Ingestor{db: db, rules: rules, logger: log}
}

// Ingest records one finding for an organization and returns the control IDs
// it is evidence for. A finding whose rule is not in the map is recorded and
// returns an empty slice; acting on the candidates is the caller's decision.
func (i *Ingestor) Ingest(ctx context.Context, orgID string, finding *models.Finding) ([]string, error) {
	if err := finding.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid finding: %w", err)
	}

	row := &database.Finding{
		OrgID:      orgID,
		Source:     finding.Source,
		RuleID:     finding.RuleID,
		Resource:   finding.Resource,
		Severity:   finding.Severity,
		Status:     database.FindingStatus(finding.Status),
		ObservedAt: finding.ObservedAt,
	}
	if err := i.db.UpsertFinding(ctx, row); err != nil {
		return nil, fmt.Errorf("recording finding: %w", err)
	}

	controls := i.rules.ControlsForRule(finding.RuleID)

	i.logger.Debug("finding ingested",
		"org_id", orgID,
		"source", finding.Source,
		"rule_id", finding.RuleID,
		"controls", len(controls),
	)

	return controls, nil
}

// IngestBatch records a batch of findings and returns the union of candidate
// control IDs. Individual failures abort the batch; re-running it is safe
// because finding writes are upserts.
func (i *Ingestor) IngestBatch(ctx context.Context, orgID string, findings []*models.Finding) ([]string, error) {
	seen := make(map[string]struct{})
	var controls []string

	for _, finding := range findings {
		mapped, err := i.Ingest(ctx, orgID, finding)
		if err != nil {
			return nil, fmt.Errorf("ingesting finding %s/%s: %w", finding.RuleID, finding.Resource, err)
		}
		for _, c := range mapped {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			controls = append(controls, c)
		}
	}

	i.logger.Info("batch ingested",
		"org_id", orgID,
		"findings", len(findings),
		"candidate_controls", len(controls),
	)

	return controls, nil
}
