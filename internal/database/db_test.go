package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// newTestDB opens a uniquely-named in-memory database so tests do not share
// state through SQLite's shared cache.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := New(dsn)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing database: %v", err)
		}
	})

	return db
}

func TestMigrate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	version, err := db.GetMigrationVersion(ctx)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if version < 1 {
		t.Errorf("expected migration version >= 1, got %d", version)
	}

	// Running migrations again must be a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestCreateOrganizationAndMember(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	org, err := db.CreateOrganization(ctx, "Acme Corp")
	if err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}
	if org.ID == "" {
		t.Fatal("expected generated org ID")
	}

	member := &Member{
		OrgID:    org.ID,
		Email:    "alex@acme.test",
		APIToken: "tok-alex",
	}
	if err := db.CreateMember(ctx, member); err != nil {
		t.Fatalf("CreateMember() error = %v", err)
	}

	resolved, err := db.MemberByToken(ctx, "tok-alex")
	if err != nil {
		t.Fatalf("MemberByToken() error = %v", err)
	}
	if resolved.OrgID != org.ID {
		t.Errorf("MemberByToken() org = %s, want %s", resolved.OrgID, org.ID)
	}

	if _, err := db.MemberByToken(ctx, "tok-missing"); err == nil {
		t.Error("expected error for unknown token")
	}
}

func TestInsertOrgFrameworkUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	org, err := db.CreateOrganization(ctx, "Acme Corp")
	if err != nil {
		t.Fatal(err)
	}

	fw := &Framework{Name: "SOC 2", Version: "2017"}
	if err := db.CreateFramework(ctx, fw); err != nil {
		t.Fatal(err)
	}

	if _, err := db.InsertOrgFramework(ctx, org.ID, fw.ID); err != nil {
		t.Fatalf("first InsertOrgFramework() error = %v", err)
	}

	_, err = db.InsertOrgFramework(ctx, org.ID, fw.ID)
	if err == nil {
		t.Fatal("expected unique violation on duplicate adoption")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation() = false for %v", err)
	}

	// The existing row remains fetchable by pair.
	of, err := db.GetOrgFrameworkByPair(ctx, org.ID, fw.ID)
	if err != nil {
		t.Fatalf("GetOrgFrameworkByPair() error = %v", err)
	}
	if of.FrameworkID != fw.ID {
		t.Errorf("unexpected framework id %s", of.FrameworkID)
	}
}
