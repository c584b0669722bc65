package quantgemini

import (
	"database/sql"
	"fmt"
)

func initDatabase(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			ticker TEXT NOT NULL,
			model TEXT,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`); err != nil {
		return err
	}
	if err := exec(tx, "CREATE INDEX IF NOT EXISTS idx_analyses_ticker_created ON analyses(ticker, created_at DESC)"); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS kv_store (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS ai_settings (
			id INTEGER PRIMARY KEY CHECK(id = 1),
			provider TEXT NOT NULL DEFAULT 'gemini',
			base_url TEXT NOT NULL DEFAULT '',
			grounding_model TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}
	// extraction_model was added after the first release of the settings table.
	hasExtractionModel, err := tableHasColumn(tx, "ai_settings", "extraction_model")
	if err != nil {
		return err
	}
	if !hasExtractionModel {
		if err := exec(tx, "ALTER TABLE ai_settings ADD COLUMN extraction_model TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func exec(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

func tableExists(tx *sql.Tx, table string) (bool, error) {
	var name string
	err := tx.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func tableHasColumn(tx *sql.Tx, table, column string) (bool, error) {
	exists, err := tableExists(tx, table)
	if err != nil || !exists {
		return false, err
	}
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
