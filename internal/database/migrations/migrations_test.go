package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{"redirects", "metadata_history", "metadata_history_versions", "post_meta", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	err := CheckDBMigrationStatus(db)
	if err == nil {
		t.Fatal("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}
	if err.Error() != "database has no schema version (needs migration)" {
		t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestGetStatus(t *testing.T) {
	db := openTestDB(t)

	before, err := GetStatus(db)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if before.Current != 0 || before.Latest != 3 || before.Pending() != 3 {
		t.Errorf("GetStatus() before = %+v, want current 0, latest 3, pending 3", before)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	after, err := GetStatus(db)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if after.Current != 3 || after.Dirty || after.Pending() != 0 {
		t.Errorf("GetStatus() after = %+v, want current 3, clean, none pending", after)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestSchema_RedirectSourceUnique(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := "INSERT INTO redirects (source, target, status, created_at, updated_at) VALUES (?, '/new', 301, datetime('now'), datetime('now'))"
	if _, err := db.Exec(insert, "/old"); err != nil {
		t.Fatalf("Failed to insert first redirect: %v", err)
	}
	if _, err := db.Exec(insert, "/old"); err == nil {
		t.Error("Expected unique constraint violation for duplicate source, but insert succeeded")
	}
	// Uniqueness is case-sensitive.
	if _, err := db.Exec(insert, "/OLD"); err != nil {
		t.Errorf("Insert with different case failed: %v", err)
	}
}

func TestSchema_RedirectStatusCheck(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec("INSERT INTO redirects (source, target, status, created_at, updated_at) VALUES ('/a', '/b', 307, datetime('now'), datetime('now'))")
	if err == nil {
		t.Error("Expected check constraint violation for status 307, but insert succeeded")
	}
}

func TestSchema_HistoryPostVersionUnique(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := `INSERT INTO metadata_history (post_id, version, created_at, source, snapshot_json, snapshot_hash, size_bytes)
		VALUES (7, 1, datetime('now'), 'auto', '{}', 'h', 2)`
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("Failed to insert first snapshot: %v", err)
	}
	if _, err := db.Exec(insert); err == nil {
		t.Error("Expected unique constraint violation for duplicate (post_id, version), but insert succeeded")
	}
}

// openTestDB opens a single-connection in-memory SQLite database.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	return db
}
