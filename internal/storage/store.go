package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key or tab target does not exist.
var ErrNotFound = errors.New("storage: not found")

// KV is the durable key-value contract every TabTidy component persists
// through. Values are JSON documents.
type KV interface {
	// Get decodes the value stored at key into dst. It reports false when
	// the key is absent.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	// Update performs a read-modify-write of key inside one transaction.
	// fn receives the current raw JSON (nil when absent) and returns the
	// value to store.
	Update(ctx context.Context, key string, fn func(current []byte) (any, error)) error
}

// TargetMapper assigns stable integer tab ids to browser target ids.
type TargetMapper interface {
	TabIDForTarget(ctx context.Context, targetID string) (int, error)
	TargetForTab(ctx context.Context, tabID int) (string, error)
	PruneTargets(ctx context.Context, live []string) (int64, error)
}

// SQLiteStore implements KV and TargetMapper backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	getValue    *sql.Stmt
	upsertValue *sql.Stmt
	deleteValue *sql.Stmt
	getTarget   *sql.Stmt
	getTabID    *sql.Stmt
}

var (
	_ KV           = (*SQLiteStore)(nil)
	_ TargetMapper = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getValue, err = s.db.Prepare(`SELECT value FROM kv WHERE key = ?`)
	if err != nil {
		return err
	}

	s.upsertValue, err = s.db.Prepare(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}

	s.deleteValue, err = s.db.Prepare(`DELETE FROM kv WHERE key = ?`)
	if err != nil {
		return err
	}

	s.getTarget, err = s.db.Prepare(`SELECT target_id FROM tab_targets WHERE tab_id = ?`)
	if err != nil {
		return err
	}

	s.getTabID, err = s.db.Prepare(`SELECT tab_id FROM tab_targets WHERE target_id = ?`)
	if err != nil {
		return err
	}

	return nil
}

// DB exposes the underlying handle for size and pragma queries.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Get decodes the JSON value at key into dst.
func (s *SQLiteStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.GetRaw(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// GetRaw returns the stored JSON bytes for key, or ErrNotFound.
func (s *SQLiteStore) GetRaw(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.getValue.QueryRowContext(ctx, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(value), nil
}

// Set stores value at key as JSON, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := s.upsertValue.ExecContext(ctx, key, string(data), nowStamp()); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.deleteValue.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Update runs fn against the current value of key and stores its result in
// the same transaction, so concurrent writers cannot lose each other's
// changes.
func (s *SQLiteStore) Update(ctx context.Context, key string, fn func(current []byte) (any, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current []byte
	var value string
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("get %s: %w", key, err)
	default:
		current = []byte(value)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if _, err := tx.StmtContext(ctx, s.upsertValue).ExecContext(ctx, key, string(data), nowStamp()); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	return tx.Commit()
}

// Entries lists every stored key with its raw value, ordered by key.
func (s *SQLiteStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var value, ts string
		if err := rows.Scan(&e.Key, &value, &ts); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		e.Value = []byte(value)
		e.UpdatedAt, _ = parseTimestamp(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteKeys removes several keys in one transaction.
func (s *SQLiteStore) DeleteKeys(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, k := range keys {
		if _, err := tx.StmtContext(ctx, s.deleteValue).ExecContext(ctx, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// TabIDForTarget returns the tab id mapped to targetID, allocating the next
// id the first time a target is seen.
func (s *SQLiteStore) TabIDForTarget(ctx context.Context, targetID string) (int, error) {
	if targetID == "" {
		return 0, fmt.Errorf("empty target id")
	}

	var id int
	err := s.getTabID.QueryRowContext(ctx, targetID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup target %s: %w", targetID, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tab_targets (target_id) VALUES (?)`, targetID,
	); err != nil {
		return 0, fmt.Errorf("insert target %s: %w", targetID, err)
	}

	if err := s.getTabID.QueryRowContext(ctx, targetID).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup target %s: %w", targetID, err)
	}
	return id, nil
}

// TargetForTab returns the browser target currently mapped to tabID.
func (s *SQLiteStore) TargetForTab(ctx context.Context, tabID int) (string, error) {
	var target string
	err := s.getTarget.QueryRowContext(ctx, tabID).Scan(&target)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lookup tab %d: %w", tabID, err)
	}
	return target, nil
}

// PruneTargets deletes mappings whose target is not in live. Tab ids are
// never reused because the id column is AUTOINCREMENT.
func (s *SQLiteStore) PruneTargets(ctx context.Context, live []string) (int64, error) {
	keep := make(map[string]bool, len(live))
	for _, t := range live {
		keep[t] = true
	}

	rows, err := s.db.QueryContext(ctx, `SELECT target_id FROM tab_targets`)
	if err != nil {
		return 0, fmt.Errorf("list targets: %w", err)
	}
	var stale []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan target: %w", err)
		}
		if !keep[t] {
			stale = append(stale, t)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var removed int64
	for _, t := range stale {
		res, err := s.db.ExecContext(ctx, `DELETE FROM tab_targets WHERE target_id = ?`, t)
		if err != nil {
			return removed, fmt.Errorf("prune target %s: %w", t, err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

// PurgeAll deletes every key and target mapping, then re-seeds defaults.
func (s *SQLiteStore) PurgeAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{"DELETE FROM kv", "DELETE FROM tab_targets"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("purge (%s): %w", stmt, err)
		}
	}
	if err := seedDefaultSettings(tx); err != nil {
		return fmt.Errorf("reseed defaults: %w", err)
	}
	return tx.Commit()
}

// GetStats returns aggregate statistics about the database.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&stats.Keys); err != nil {
		return nil, fmt.Errorf("count keys: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tab_targets").Scan(&stats.TabTargets); err != nil {
		return nil, fmt.Errorf("count targets: %w", err)
	}

	if stats.Keys > 0 {
		var last string
		if err := s.db.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM kv").Scan(&last); err != nil {
			return nil, fmt.Errorf("last write: %w", err)
		}
		stats.LastWrite, _ = parseTimestamp(last)
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats.DatabaseSizeBytes = pageCount * pageSize
		}
	}

	v, err := NewMigrationRunner(s.db).Version()
	if err != nil {
		return nil, fmt.Errorf("schema version: %w", err)
	}
	stats.SchemaVersion = v

	return stats, nil
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed; that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.getValue, s.upsertValue, s.deleteValue, s.getTarget, s.getTabID,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}
