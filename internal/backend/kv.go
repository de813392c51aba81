package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// KV is the flat keyed backend: a single SQLite table mapping keys to
// values with no hierarchy. ListChildren is implemented by scanning the key
// namespace and treating '/' and '-' as segment separators, which covers
// both plain keys and the composite per-month history keys.
type KV struct {
	db *sql.DB
}

// OpenKV creates or opens the key-value database at path.
//
// The database is configured the same way as any embedded single-writer
// SQLite store here:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - a single connection, since SQLite allows one writer at a time
//
// Returns ErrUnavailable when the database cannot be opened, which feeds
// the selector's ordered fallback.
func OpenKV(path string) (*KV, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connect: %v", ErrUnavailable, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: apply pragma %q: %v", ErrUnavailable, p, err)
		}
	}

	const schema = `CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", ErrUnavailable, err)
	}

	return &KV{db: db}, nil
}

// Method identifies the substrate.
func (k *KV) Method() Method { return MethodFlatKeyed }

// Close closes the database connection.
func (k *KV) Close() error {
	if k.db == nil {
		return nil
	}
	return k.db.Close()
}

// ReadKey returns the value stored at key, or ErrKeyAbsent.
func (k *KV) ReadKey(ctx context.Context, key string) ([]byte, error) {
	mustKey(key)
	var value []byte
	err := k.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyAbsent
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

// WriteKey upserts value at key.
func (k *KV) WriteKey(ctx context.Context, key string, value []byte) error {
	mustKey(key)
	_, err := k.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// DeleteKey removes the row at key. Deleting an absent key is not an error.
func (k *KV) DeleteKey(ctx context.Context, key string) error {
	mustKey(key)
	if _, err := k.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ListChildren scans the key namespace for keys extending path by one
// segment and returns the distinct next segments, sorted.
func (k *KV) ListChildren(ctx context.Context, path string) ([]string, error) {
	rows, err := k.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	defer rows.Close()

	seen := map[string]struct{}{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("list %s: %w", path, err)
		}
		if child, ok := childSegment(key, path); ok {
			seen[child] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// childSegment extracts the next segment of key under path, if key extends
// path. Both '/' and '-' separate segments.
func childSegment(key, path string) (string, bool) {
	rest := key
	if path != "" {
		if !strings.HasPrefix(key, path) || len(key) <= len(path) {
			return "", false
		}
		sep := key[len(path)]
		if sep != '/' && sep != '-' {
			return "", false
		}
		rest = key[len(path)+1:]
	}
	if rest == "" {
		return "", false
	}
	if i := strings.IndexAny(rest, "/-"); i >= 0 {
		rest = rest[:i]
	}
	return rest, true
}
