package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/complyhq/comply/internal/database"
	"github.com/complyhq/comply/internal/models"
	"github.com/complyhq/comply/internal/reconcile"
)

// controlStatusResponse is the wire shape of a ledger row.
type controlStatusResponse struct {
	ControlID   string    `json:"control_id"`
	Status      string    `json:"status"`
	Notes       *string   `json:"notes,omitempty"`
	UpdatedBy   *string   `json:"updated_by,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

func controlStatusJSON(cs *database.ControlStatus) controlStatusResponse {
	resp := controlStatusResponse{
		ControlID:   cs.ControlID,
		Status:      string(cs.Status),
		LastUpdated: cs.LastUpdated,
	}
	if cs.Notes.Valid {
		resp.Notes = &cs.Notes.String
	}
	if cs.UpdatedBy.Valid {
		resp.UpdatedBy = &cs.UpdatedBy.String
	}
	return resp
}

func (s *Server) handleSetControlStatus(w http.ResponseWriter, r *http.Request) {
	member := memberFrom(r)
	controlID := mux.Vars(r)["controlID"]

	var payload struct {
		Status string  `json:"status"`
		Notes  *string `json:"notes,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cs, err := s.engine.SetControlStatus(r.Context(), member.OrgID, controlID,
		database.ControlStatusValue(payload.Status), payload.Notes, member.ID)
	if err != nil {
		if errors.Is(err, reconcile.ErrInvalidStatus) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("setting control status", "control_id", controlID, "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, controlStatusJSON(cs))
}

func (s *Server) handleListControls(w http.ResponseWriter, r *http.Request) {
	member := memberFrom(r)

	filter := database.ControlStatusFilter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := database.ControlStatusValue(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		filter.Status = &status
	}

	statuses, err := s.db.ListControlStatuses(r.Context(), member.OrgID, filter)
	if err != nil {
		s.logger.Error("listing control statuses", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	counts, err := s.db.GetStatusCounts(r.Context(), member.OrgID)
	if err != nil {
		s.logger.Error("counting control statuses", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	items := make([]controlStatusResponse, 0, len(statuses))
	for _, cs := range statuses {
		items = append(items, controlStatusJSON(cs))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"counts": map[string]int{
			"not_started":    counts.NotStarted,
			"in_progress":    counts.InProgress,
			"verified":       counts.Verified,
			"not_applicable": counts.NotApplicable,
			"total":          counts.Total,
		},
	})
}

func (s *Server) handleAssignFramework(w http.ResponseWriter, r *http.Request) {
	member := memberFrom(r)

	var payload struct {
		FrameworkID string `json:"framework_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.FrameworkID == "" {
		writeError(w, http.StatusBadRequest, "framework_id is required")
		return
	}

	result, err := s.engine.AdoptFramework(r.Context(), member.OrgID, payload.FrameworkID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "framework not found")
			return
		}
		s.logger.Error("adopting framework", "framework_id", payload.FrameworkID, "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":               result.OrgFramework.ID,
		"org_id":           result.OrgFramework.OrgID,
		"framework_id":     result.OrgFramework.FrameworkID,
		"assigned_at":      result.OrgFramework.AssignedAt,
		"already_assigned": result.AlreadyAssigned,
		"control_statuses": result.ControlStatuses,
	})
}

func (s *Server) handleRemoveFramework(w http.ResponseWriter, r *http.Request) {
	member := memberFrom(r)
	id := mux.Vars(r)["id"]

	of, err := s.db.GetOrgFramework(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "assignment not found")
			return
		}
		s.logger.Error("resolving assignment", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if of.OrgID != member.OrgID {
		// Cross-tenant visibility is never permitted; hide the row's existence.
		writeError(w, http.StatusNotFound, "assignment not found")
		return
	}

	if err := s.engine.RemoveFramework(r.Context(), id); err != nil {
		s.logger.Error("removing framework", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	member := memberFrom(r)
	policyID := mux.Vars(r)["policyID"]

	policy, err := s.db.GetPolicy(r.Context(), policyID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "policy not found")
			return
		}
		s.logger.Error("loading policy", "policy_id", policyID, "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if policy.OrgID != member.OrgID {
		writeError(w, http.StatusNotFound, "policy not found")
		return
	}

	var payload struct {
		Status     *string `json:"status,omitempty"`
		Owner      *string `json:"owner,omitempty"`
		Title      *string `json:"title,omitempty"`
		Content    *string `json:"content,omitempty"`
		Version    *string `json:"version,omitempty"`
		NextReview *string `json:"next_review,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := &database.PolicyPatch{
		Owner:   payload.Owner,
		Title:   payload.Title,
		Content: payload.Content,
		Version: payload.Version,
	}
	if payload.Status != nil {
		status := database.PolicyStatus(*payload.Status)
		patch.Status = &status
	}
	if payload.NextReview != nil {
		ts, err := time.Parse(time.RFC3339, *payload.NextReview)
		if err != nil {
			writeError(w, http.StatusBadRequest, "next_review must be RFC 3339")
			return
		}
		patch.NextReview = &ts
	}

	updated, err := s.engine.UpdatePolicy(r.Context(), policyID, patch)
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrInvalidStatus), errors.Is(err, reconcile.ErrEmptyPatch):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("updating policy", "policy_id", policyID, "error", err)
			writeError(w, http.StatusInternalServerError, "server error")
		}
		return
	}

	resp := map[string]any{
		"id":         updated.ID,
		"title":      updated.Title,
		"content":    updated.Content,
		"status":     updated.Status,
		"version":    updated.Version,
		"updated_at": updated.UpdatedAt,
	}
	if updated.Owner.Valid {
		resp["owner"] = updated.Owner.String
	}
	if updated.NextReview.Valid {
		resp["next_review"] = updated.NextReview.Time
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIngestFinding(w http.ResponseWriter, r *http.Request) {
	member := memberFrom(r)

	var payload struct {
		Source     string     `json:"source"`
		RuleID     string     `json:"rule_id"`
		Resource   string     `json:"resource"`
		Severity   string     `json:"severity,omitempty"`
		Status     string     `json:"status,omitempty"`
		ObservedAt *time.Time `json:"observed_at,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	finding := models.NewFinding(payload.Source, payload.RuleID, payload.Resource)
	if payload.Severity != "" {
		finding.Severity = models.NormalizeSeverity(payload.Severity)
	}
	if payload.Status != "" {
		finding.Status = models.NormalizeStatus(payload.Status)
	}
	if payload.ObservedAt != nil {
		finding.ObservedAt = *payload.ObservedAt
	}

	controls, err := s.ingestor.Ingest(r.Context(), member.OrgID, finding)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Candidate controls are surfaced to the caller; the ledger is untouched.
	writeJSON(w, http.StatusOK, map[string]any{
		"rule_id":            finding.RuleID,
		"candidate_controls": controls,
	})
}

func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) {
	member := memberFrom(r)

	filter := database.FindingFilter{}
	if raw := r.URL.Query().Get("source"); raw != "" {
		filter.Source = &raw
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := database.FindingStatus(raw)
		filter.Status = &status
	}

	findings, err := s.db.ListFindings(r.Context(), member.OrgID, filter)
	if err != nil {
		s.logger.Error("listing findings", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": findings})
}

func (s *Server) handleCreateRisk(w http.ResponseWriter, r *http.Request) {
	member := memberFrom(r)

	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
		Severity    string `json:"severity,omitempty"`
		Source      string `json:"source,omitempty"`
		ControlID   string `json:"control_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	risk := &database.Risk{
		OrgID:       member.OrgID,
		Title:       payload.Title,
		Description: payload.Description,
		Severity:    payload.Severity,
		Source:      database.RiskSource(payload.Source),
	}
	if payload.ControlID != "" {
		risk.ControlID = sql.NullString{String: payload.ControlID, Valid: true}
	}

	if err := s.db.CreateRisk(r.Context(), risk); err != nil {
		s.logger.Error("creating risk", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusCreated, risk)
}

func (s *Server) handleListRisks(w http.ResponseWriter, r *http.Request) {
	member := memberFrom(r)

	filter := database.RiskFilter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := database.RiskStatus(raw)
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("source"); raw != "" {
		source := database.RiskSource(raw)
		filter.Source = &source
	}
	if raw := r.URL.Query().Get("control_id"); raw != "" {
		filter.ControlID = &raw
	}

	risks, err := s.db.ListRisks(r.Context(), member.OrgID, filter)
	if err != nil {
		s.logger.Error("listing risks", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": risks})
}
