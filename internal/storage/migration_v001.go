package storage

import "database/sql"

// migrateV001 creates the key-value table that holds every durable TabTidy
// fact and seeds the settings that have a non-zero default. Every statement
// is idempotent.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_kv_updated_at ON kv(updated_at)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return seedDefaultSettings(tx)
}

// seedDefaultSettings writes the JSON defaults for settings keys. INSERT OR
// IGNORE keeps values a user already changed.
func seedDefaultSettings(tx *sql.Tx) error {
	defaults := []struct {
		Key   string
		Value string
	}{
		{"whitelist", `[]`},
		{"customGroups", `[]`},
		{"groupingStrategy", `"session"`},
		{"groupOnSuspend", `false`},
		{"debugMode", `false`},
		{"sessionCounter", `1`},
	}

	const insertSQL = `INSERT OR IGNORE INTO kv (key, value) VALUES (?, ?)`

	for _, d := range defaults {
		if _, err := tx.Exec(insertSQL, d.Key, d.Value); err != nil {
			return err
		}
	}

	return nil
}
