package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyhq/comply/internal/database"
	"github.com/complyhq/comply/internal/ingest"
	"github.com/complyhq/comply/internal/reconcile"
	"github.com/complyhq/comply/internal/rulemap"
	"github.com/complyhq/comply/pkg/logger"
)

type testEnv struct {
	server *Server
	db     *database.DB
	org    *database.Organization
	other  *database.Organization
	fw     *database.Framework
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	org, err := db.CreateOrganization(ctx, "Acme")
	require.NoError(t, err)
	require.NoError(t, db.CreateMember(ctx, &database.Member{
		OrgID:    org.ID,
		Email:    "alex@acme.test",
		APIToken: "tok-acme",
	}))

	other, err := db.CreateOrganization(ctx, "Globex")
	require.NoError(t, err)
	require.NoError(t, db.CreateMember(ctx, &database.Member{
		OrgID:    other.ID,
		Email:    "pat@globex.test",
		APIToken: "tok-globex",
	}))

	fw := &database.Framework{Name: "SOC 2", Version: "2017"}
	require.NoError(t, db.CreateFramework(ctx, fw))
	for i, id := range []string{"CC6.1", "CC7.2", "CC8.1"} {
		require.NoError(t, db.CreateControl(ctx, &database.Control{
			FrameworkID: fw.ID,
			ControlID:   id,
			Position:    i + 1,
		}))
	}

	rules, err := rulemap.Load()
	require.NoError(t, err)

	log := logger.NewMockLogger()
	engine := reconcile.NewWithLogger(db, log)
	ingestor := ingest.NewWithLogger(db, rules, log)

	return &testEnv{
		server: New(db, engine, ingestor, log),
		db:     db,
		org:    org,
		other:  other,
		fw:     fw,
	}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/controls", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/controls", "tok-unknown", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAssignFramework(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/frameworks/assign", "tok-acme",
		map[string]string{"framework_id": env.fw.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["already_assigned"])
	assert.Equal(t, float64(3), body["control_statuses"])

	// Duplicate assignment is not an error.
	rec = env.request(t, http.MethodPost, "/api/frameworks/assign", "tok-acme",
		map[string]string{"framework_id": env.fw.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	body = decode[map[string]any](t, rec)
	assert.Equal(t, true, body["already_assigned"])
}

func TestAssignFrameworkUnknown(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/frameworks/assign", "tok-acme",
		map[string]string{"framework_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetControlStatus(t *testing.T) {
	env := newTestEnv(t)

	env.request(t, http.MethodPost, "/api/frameworks/assign", "tok-acme",
		map[string]string{"framework_id": env.fw.ID})

	rec := env.request(t, http.MethodPut, "/api/controls/CC6.1/status", "tok-acme",
		map[string]string{"status": "verified", "notes": "MFA enforced"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "verified", body["status"])
	assert.Equal(t, "MFA enforced", body["notes"])
	assert.NotEmpty(t, body["updated_by"])
}

func TestSetControlStatusRejectsUnknownValue(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPut, "/api/controls/CC6.1/status", "tok-acme",
		map[string]string{"status": "done-ish"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveFrameworkTenantScoped(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/frameworks/assign", "tok-acme",
		map[string]string{"framework_id": env.fw.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assignmentID := decode[map[string]any](t, rec)["id"].(string)

	// Another org cannot see, let alone remove, the assignment.
	rec = env.request(t, http.MethodDelete, "/api/frameworks/assignments/"+assignmentID, "tok-globex", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(t, http.MethodDelete, "/api/frameworks/assignments/"+assignmentID, "tok-acme", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Ledger rows survive removal.
	listRec := env.request(t, http.MethodGet, "/api/controls", "tok-acme", nil)
	require.Equal(t, http.StatusOK, listRec.Code)
	body := decode[struct {
		Items []map[string]any `json:"items"`
	}](t, listRec)
	assert.Len(t, body.Items, 3)
}

func TestUpdatePolicyTenantScoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	policy := &database.Policy{OrgID: env.org.ID, Title: "Access Policy"}
	require.NoError(t, env.db.CreatePolicy(ctx, policy))

	title := map[string]string{"title": "Access Policy v2"}

	rec := env.request(t, http.MethodPatch, "/api/policies/"+policy.ID, "tok-globex", title)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(t, http.MethodPatch, "/api/policies/"+policy.ID, "tok-acme", title)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Access Policy v2", body["title"])
	assert.Equal(t, "draft", body["status"])
}

func TestUpdatePolicyApprovalCascadesOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.request(t, http.MethodPost, "/api/frameworks/assign", "tok-acme",
		map[string]string{"framework_id": env.fw.ID})

	policy := &database.Policy{OrgID: env.org.ID, Title: "Access Policy"}
	require.NoError(t, env.db.CreatePolicy(ctx, policy))
	require.NoError(t, env.db.LinkPolicyControl(ctx, policy.ID, "CC6.1"))

	rec := env.request(t, http.MethodPatch, "/api/policies/"+policy.ID, "tok-acme",
		map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code)

	cs, err := env.db.GetControlStatus(ctx, env.org.ID, "CC6.1")
	require.NoError(t, err)
	assert.Equal(t, database.ControlInProgress, cs.Status)
}

func TestIngestFindingReturnsCandidates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/findings", "tok-acme", map[string]string{
		"source":   "cloud_posture",
		"rule_id":  "iam_root_mfa_enabled",
		"resource": "arn:aws:iam::123456789012:root",
		"severity": "HIGH",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		RuleID   string   `json:"rule_id"`
		Controls []string `json:"candidate_controls"`
	}](t, rec)
	assert.Contains(t, body.Controls, "CC6.1")
}

func TestCreateAndListRisks(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/risks", "tok-acme", map[string]string{
		"title":      "No MFA on root",
		"source":     "gap",
		"control_id": "CC6.1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/risks?source=gap", "tok-acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Items []map[string]any `json:"items"`
	}](t, rec)
	assert.Len(t, body.Items, 1)

	// The other org sees nothing.
	rec = env.request(t, http.MethodGet, "/api/risks", "tok-globex", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[struct {
		Items []map[string]any `json:"items"`
	}](t, rec)
	assert.Empty(t, body.Items)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
