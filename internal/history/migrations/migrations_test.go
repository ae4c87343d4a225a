package migrations

import (
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// openTestDB opens an in-memory SQLite database.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	for _, table := range []string{"backup_runs", "schema_migrations"} {
		var name string
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name); err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := Up(db); err != nil {
		t.Fatalf("first Up() error = %v", err)
	}
	if err := Up(db); err != nil {
		t.Errorf("second Up() error = %v, want idempotent success", err)
	}
}

func TestCheck(t *testing.T) {
	t.Run("a fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)

		err := Check(db)
		if err == nil {
			t.Fatal("Check() expected error for a fresh database")
		}
		if !strings.Contains(err.Error(), "needs migration") {
			t.Errorf("Check() error = %q, want a needs-migration message", err)
		}
	})

	t.Run("a migrated database passes", func(t *testing.T) {
		db := openTestDB(t)

		if err := Up(db); err != nil {
			t.Fatalf("Up() error = %v", err)
		}
		if err := Check(db); err != nil {
			t.Errorf("Check() error = %v, want nil", err)
		}
	})
}

func TestSchema_BackupRuns(t *testing.T) {
	db := openTestDB(t)
	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	insert := func(id, status string) error {
		_, err := db.Exec(`
			INSERT INTO backup_runs (id, started_at, finished_at, object_key, status)
			VALUES (?, datetime('now'), datetime('now'), 'notes/a.zip', ?)`, id, status)
		return err
	}

	t.Run("accepts both run statuses", func(t *testing.T) {
		if err := insert("run-1", "succeeded"); err != nil {
			t.Errorf("inserting a succeeded run: %v", err)
		}
		if err := insert("run-2", "failed"); err != nil {
			t.Errorf("inserting a failed run: %v", err)
		}
	})

	t.Run("rejects unknown statuses", func(t *testing.T) {
		if err := insert("run-3", "exploded"); err == nil {
			t.Error("insert with an unknown status succeeded, want CHECK violation")
		}
	})

	t.Run("run ids are unique", func(t *testing.T) {
		if err := insert("run-dup", "succeeded"); err != nil {
			t.Fatalf("inserting run: %v", err)
		}
		if err := insert("run-dup", "succeeded"); err == nil {
			t.Error("duplicate run id accepted, want primary key violation")
		}
	})
}
