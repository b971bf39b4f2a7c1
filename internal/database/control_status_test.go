package database

import (
	"context"
	"database/sql"
	"testing"
)

func seedOrg(t *testing.T, db *DB) *Organization {
	t.Helper()

	org, err := db.CreateOrganization(context.Background(), "Test Org")
	if err != nil {
		t.Fatalf("creating org: %v", err)
	}
	return org
}

func TestSeedControlStatusesIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := seedOrg(t, db)

	controls := []string{"CC1.1", "CC6.1", "CC6.2"}

	if err := db.SeedControlStatuses(ctx, org.ID, controls); err != nil {
		t.Fatalf("first seed error = %v", err)
	}

	count, err := db.CountControlStatuses(ctx, org.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows after seed, got %d", count)
	}

	// Re-seeding must not duplicate rows.
	if err := db.SeedControlStatuses(ctx, org.ID, controls); err != nil {
		t.Fatalf("second seed error = %v", err)
	}

	count, err = db.CountControlStatuses(ctx, org.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected 3 rows after re-seed, got %d", count)
	}
}

func TestSeedDoesNotResetProgressedControl(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := seedOrg(t, db)

	if err := db.SeedControlStatuses(ctx, org.ID, []string{"CC6.1"}); err != nil {
		t.Fatal(err)
	}

	cs := &ControlStatus{
		OrgID:     org.ID,
		ControlID: "CC6.1",
		Status:    ControlVerified,
		UpdatedBy: sql.NullString{String: "member-1", Valid: true},
	}
	if err := db.UpsertControlStatus(ctx, cs); err != nil {
		t.Fatal(err)
	}

	if err := db.SeedControlStatuses(ctx, org.ID, []string{"CC6.1"}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetControlStatus(ctx, org.ID, "CC6.1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ControlVerified {
		t.Errorf("status = %s after re-seed, want %s", got.Status, ControlVerified)
	}
}

func TestAdvanceControlStatusesPredicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := seedOrg(t, db)

	if err := db.SeedControlStatuses(ctx, org.ID, []string{"K1", "K2", "K3"}); err != nil {
		t.Fatal(err)
	}

	// K3 was verified by hand; the bulk advance must leave it alone.
	if err := db.UpsertControlStatus(ctx, &ControlStatus{
		OrgID:     org.ID,
		ControlID: "K3",
		Status:    ControlVerified,
	}); err != nil {
		t.Fatal(err)
	}

	advanced, err := db.AdvanceControlStatuses(ctx, org.ID, []string{"K1", "K2", "K3"})
	if err != nil {
		t.Fatalf("AdvanceControlStatuses() error = %v", err)
	}
	if advanced != 2 {
		t.Errorf("advanced = %d, want 2", advanced)
	}

	for id, want := range map[string]ControlStatusValue{
		"K1": ControlInProgress,
		"K2": ControlInProgress,
		"K3": ControlVerified,
	} {
		got, err := db.GetControlStatus(ctx, org.ID, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != want {
			t.Errorf("%s status = %s, want %s", id, got.Status, want)
		}
	}
}

func TestAdvanceControlStatusesEmptySet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := seedOrg(t, db)

	advanced, err := db.AdvanceControlStatuses(ctx, org.ID, nil)
	if err != nil {
		t.Fatalf("AdvanceControlStatuses() error = %v", err)
	}
	if advanced != 0 {
		t.Errorf("advanced = %d, want 0", advanced)
	}
}

func TestGetStatusCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := seedOrg(t, db)

	if err := db.SeedControlStatuses(ctx, org.ID, []string{"A1", "A2", "A3", "A4"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertControlStatus(ctx, &ControlStatus{OrgID: org.ID, ControlID: "A1", Status: ControlVerified}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertControlStatus(ctx, &ControlStatus{OrgID: org.ID, ControlID: "A2", Status: ControlInProgress}); err != nil {
		t.Fatal(err)
	}

	counts, err := db.GetStatusCounts(ctx, org.ID)
	if err != nil {
		t.Fatal(err)
	}

	if counts.Total != 4 || counts.Verified != 1 || counts.InProgress != 1 || counts.NotStarted != 2 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestCloseGapRisksSweep(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := seedOrg(t, db)

	mk := func(source RiskSource, status RiskStatus, controlID string) *Risk {
		risk := &Risk{
			OrgID:  org.ID,
			Title:  "risk",
			Status: status,
			Source: source,
		}
		if controlID != "" {
			risk.ControlID = sql.NullString{String: controlID, Valid: true}
		}
		if err := db.CreateRisk(ctx, risk); err != nil {
			t.Fatal(err)
		}
		return risk
	}

	r1 := mk(RiskSourceGap, RiskOpen, "C")
	r2 := mk(RiskSourceManual, RiskOpen, "C")
	r3 := mk(RiskSourceGap, RiskAccepted, "C")
	r4 := mk(RiskSourceGap, RiskOpen, "OTHER")

	closed, err := db.CloseGapRisks(ctx, org.ID, "C")
	if err != nil {
		t.Fatalf("CloseGapRisks() error = %v", err)
	}
	if closed != 1 {
		t.Errorf("closed = %d, want 1", closed)
	}

	for _, tc := range []struct {
		id   string
		want RiskStatus
	}{
		{r1.ID, RiskClosed},
		{r2.ID, RiskOpen},
		{r3.ID, RiskAccepted},
		{r4.ID, RiskOpen},
	} {
		got, err := db.GetRisk(ctx, tc.id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != tc.want {
			t.Errorf("risk %s status = %s, want %s", tc.id, got.Status, tc.want)
		}
	}
}

func TestUpsertFindingDedup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := seedOrg(t, db)

	finding := &Finding{
		OrgID:    org.ID,
		Source:   "cloud_posture",
		RuleID:   "s3_bucket_public_access",
		Resource: "arn:aws:s3:::data",
		Severity: "high",
	}
	if err := db.UpsertFinding(ctx, finding); err != nil {
		t.Fatal(err)
	}

	// Same observation delivered again, now resolved.
	redelivered := &Finding{
		OrgID:    org.ID,
		Source:   "cloud_posture",
		RuleID:   "s3_bucket_public_access",
		Resource: "arn:aws:s3:::data",
		Severity: "high",
		Status:   FindingResolved,
	}
	if err := db.UpsertFinding(ctx, redelivered); err != nil {
		t.Fatal(err)
	}

	findings, err := db.ListFindings(ctx, org.ID, FindingFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding after re-delivery, got %d", len(findings))
	}
	if findings[0].Status != FindingResolved {
		t.Errorf("status = %s, want %s", findings[0].Status, FindingResolved)
	}
}
