// Package sqlitekv implements host.KV over an embedded SQLite database, the
// single-node alternative to internal/store/postgres for deployments that
// don't run a separate database process.
package sqlitekv

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/predictify/marketengine/internal/host"
)

// Store wraps a single-writer SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path, defaulting to
// $TMPDIR/marketengine/data.db when path is empty.
func Open(path string) (*Store, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "marketengine", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlitekv: create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitekv: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("sqlitekv: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("sqlitekv: create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_store (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      BLOB NOT NULL,
			expires_at INTEGER,
			PRIMARY KEY (namespace, key)
		)`)
	return err
}

func (s *Store) Get(ctx context.Context, ns host.Namespace, key string) ([]byte, bool, error) {
	var val []byte
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_store WHERE namespace = ? AND key = ?`,
		string(ns), key,
	).Scan(&val, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlitekv: get %s/%s: %w", ns, key, err)
	}
	if expiresAt.Valid && expiresAt.Int64 <= time.Now().Unix() {
		return nil, false, nil
	}
	return val, true, nil
}

func (s *Store) Put(ctx context.Context, ns host.Namespace, key string, val []byte) error {
	return s.PutWithTTL(ctx, ns, key, val, 0)
}

func (s *Store) PutWithTTL(ctx context.Context, ns host.Namespace, key string, val []byte, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_store (namespace, key, value, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		string(ns), key, val, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("sqlitekv: put %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ns host.Namespace, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE namespace = ? AND key = ?`, string(ns), key)
	if err != nil {
		return fmt.Errorf("sqlitekv: delete %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context, ns host.Namespace, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, expires_at FROM kv_store WHERE namespace = ? AND key LIKE ? ESCAPE '\'`,
		string(ns), escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitekv: list_keys %s/%s*: %w", ns, prefix, err)
	}
	defer rows.Close()

	now := time.Now().Unix()
	var keys []string
	for rows.Next() {
		var key string
		var expiresAt sql.NullInt64
		if err := rows.Scan(&key, &expiresAt); err != nil {
			return nil, fmt.Errorf("sqlitekv: list_keys scan: %w", err)
		}
		if expiresAt.Valid && expiresAt.Int64 <= now {
			continue
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
