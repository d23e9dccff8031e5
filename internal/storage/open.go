package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// OpenDB opens the SQLite file at path, creating its directory if needed,
// and applies pending migrations. Writers take the lock at BEGIN so two
// read-modify-write transactions never interleave. An empty journalMode
// means WAL.
func OpenDB(path, journalMode string) (*sql.DB, error) {
	runner, err := NewMigrationRunner(nil).WithJournalMode(journalMode)
	if err != nil {
		return nil, err
	}

	dsn := path
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_txlock=immediate&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == MemoryPath {
		// Every connection would get its own empty database otherwise.
		db.SetMaxOpenConns(1)
	}

	runner.db = db
	if err := runner.Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Open returns a ready store over the database at path. Closing the
// returned closer releases both the store and the database.
func Open(path, journalMode string) (*SQLiteStore, func() error, error) {
	db, err := OpenDB(path, journalMode)
	if err != nil {
		return nil, nil, err
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() error {
		store.Close()
		return db.Close()
	}, nil
}
