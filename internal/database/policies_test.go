package database

import (
	"context"
	"testing"
)

func TestApplyPolicyPatchPartial(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := seedOrg(t, db)

	policy := &Policy{
		OrgID:   org.ID,
		Title:   "Access Control Policy",
		Content: "original body",
	}
	if err := db.CreatePolicy(ctx, policy); err != nil {
		t.Fatal(err)
	}
	if policy.Status != PolicyDraft {
		t.Fatalf("new policy status = %s, want draft", policy.Status)
	}

	newTitle := "Access Control Policy v2"
	if err := db.ApplyPolicyPatch(ctx, policy.ID, &PolicyPatch{Title: &newTitle}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetPolicy(ctx, policy.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Absent fields stay untouched.
	if got.Title != newTitle {
		t.Errorf("title = %q, want %q", got.Title, newTitle)
	}
	if got.Content != "original body" {
		t.Errorf("content = %q, want original", got.Content)
	}
	if got.Status != PolicyDraft {
		t.Errorf("status = %s, want draft", got.Status)
	}
}

func TestApplyPolicyPatchNotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	status := PolicyApproved
	err := db.ApplyPolicyPatch(ctx, "missing", &PolicyPatch{Status: &status})
	if err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestLinkPolicyControlIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := seedOrg(t, db)

	policy := &Policy{OrgID: org.ID, Title: "Change Management"}
	if err := db.CreatePolicy(ctx, policy); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := db.LinkPolicyControl(ctx, policy.ID, "CC8.1"); err != nil {
			t.Fatalf("link attempt %d error = %v", i+1, err)
		}
	}
	if err := db.LinkPolicyControl(ctx, policy.ID, "CC8.2"); err != nil {
		t.Fatal(err)
	}

	ids, err := db.PolicyControlIDs(ctx, policy.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 linked controls, got %v", ids)
	}
}
