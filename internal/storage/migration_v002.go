package storage

import "database/sql"

// migrateV002 adds the table that maps browser target identifiers (opaque
// CDP strings) onto the small integer tab ids used everywhere else.
func migrateV002(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tab_targets (
			tab_id     INTEGER PRIMARY KEY AUTOINCREMENT,
			target_id  TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
