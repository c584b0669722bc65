package quantgemini

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func TestInitDatabaseIsIdempotent(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()

	assertNoError(t, initDatabase(core.db), "second init")
	tx, err := core.db.Begin()
	assertNoError(t, err, "begin")
	defer tx.Rollback()
	for _, table := range []string{"analyses", "kv_store", "ai_settings"} {
		exists, err := tableExists(tx, table)
		if err != nil || !exists {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestInitDatabaseAddsExtractionModelColumn(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite", dbPath)
	assertNoError(t, err, "open legacy")
	_, err = db.Exec(`CREATE TABLE ai_settings (
		id INTEGER PRIMARY KEY CHECK(id = 1),
		provider TEXT NOT NULL DEFAULT 'gemini',
		base_url TEXT NOT NULL DEFAULT '',
		grounding_model TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	assertNoError(t, err, "create legacy table")
	_, err = db.Exec(`INSERT INTO ai_settings (id, provider, grounding_model) VALUES (1, 'gemini', 'gemini-2.5-pro')`)
	assertNoError(t, err, "seed legacy row")
	assertNoError(t, db.Close(), "close legacy")

	core, err := Open(dbPath)
	assertNoError(t, err, "open migrated")
	defer core.Close()

	settings, err := core.GetAISettings()
	assertNoError(t, err, "get settings")
	if settings.GroundingModel != "gemini-2.5-pro" {
		t.Fatalf("legacy value lost: %q", settings.GroundingModel)
	}
	if settings.ExtractionModel != DefaultExtractionModel {
		t.Fatalf("expected default extraction model, got %q", settings.ExtractionModel)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenWithOptions(Options{}); err == nil {
		t.Fatal("expected error for empty db path")
	}
}
