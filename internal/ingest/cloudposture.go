package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/complyhq/comply/internal/models"
)

// postureCheck is one check result in cloud posture scanner output
// (OCSF-style JSON, as prowler and similar tools emit).
type postureCheck struct {
	Metadata struct {
		EventCode string `json:"event_code"`
	} `json:"metadata"`
	StatusCode string `json:"status_code"`
	Severity   string `json:"severity"`
	FinishedAt string `json:"finished_time_dt"`
	Resources  []struct {
		UID    string `json:"uid"`
		Region string `json:"region"`
		Type   string `json:"type"`
	} `json:"resources"`
}

// ParseCloudPosture converts cloud posture scanner JSON into normalized
// findings. Both a JSON array and newline-delimited JSON are accepted; PASS
// results are kept as resolved findings so a previously open observation can
// clear on re-delivery.
func ParseCloudPosture(raw []byte) ([]*models.Finding, error) {
	var checks []postureCheck

	if err := json.Unmarshal(raw, &checks); err != nil {
		checks = parseNDJSONChecks(raw)
		if len(checks) == 0 {
			return nil, fmt.Errorf("parsing cloud posture output: not a JSON array or NDJSON")
		}
	}

	findings := make([]*models.Finding, 0, len(checks))
	for _, check := range checks {
		if check.Metadata.EventCode == "" || len(check.Resources) == 0 {
			continue
		}

		finding := models.NewFinding(SourceCloudPosture, check.Metadata.EventCode, check.Resources[0].UID)
		finding.Severity = models.NormalizeSeverity(check.Severity)
		finding.Status = models.NormalizeStatus(check.StatusCode)

		if check.FinishedAt != "" {
			if ts, err := time.Parse(time.RFC3339, check.FinishedAt); err == nil {
				finding.ObservedAt = ts
			}
		}

		findings = append(findings, finding)
	}

	return findings, nil
}

// parseNDJSONChecks parses newline-delimited check objects, skipping lines
// that fail to decode.
func parseNDJSONChecks(raw []byte) []postureCheck {
	var checks []postureCheck

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var check postureCheck
		if err := json.Unmarshal(line, &check); err != nil {
			continue
		}
		checks = append(checks, check)
	}

	return checks
}
