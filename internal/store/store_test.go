package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"authority_source_files", "authorities", "authority_data", "instance_authority_links", "event_outbox"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

// Pragma tests

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name, want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.want); err != nil {
			t.Error(err)
		}
	}
}

// Schema tests

func TestSchema_LinksTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "instance_authority_links")
	expected := []string{
		"id", "instance_id", "authority_id", "authority_natural_id", "bib_record_tag",
		"bib_record_subfields", "linking_rule_id", "status", "error_cause", "created_at", "updated_at",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("instance_authority_links table missing column %q", col)
		}
	}

	indexes := getTableIndexes(t, s.db, "instance_authority_links")
	for _, idx := range []string{"idx_links_instance", "idx_links_authority"} {
		if !contains(indexes, idx) {
			t.Errorf("missing index %q, got %v", idx, indexes)
		}
	}
}

func TestSchema_AuthoritiesTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "authorities")
	for _, col := range []string{"id", "natural_id", "source_file_id", "fields", "content_hash", "shared", "deleted", "version", "updated_at"} {
		if !contains(columns, col) {
			t.Errorf("authorities table missing column %q", col)
		}
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", version, currentSchemaVersion)
	}
	if indexes := getTableIndexes(t, s.db, "event_outbox"); !contains(indexes, "idx_outbox_pending") {
		t.Errorf("expected idx_outbox_pending after migration, got indexes: %v", indexes)
	}
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
