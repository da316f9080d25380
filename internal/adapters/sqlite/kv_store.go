// Package sqlite provides a ports.KVStore backed by an SQLite database.
// It is the durable store of choice when multiple processes share one
// queue: compare-and-swap happens inside the database, so two agents
// racing on the same record cannot lose an update.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key     TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	data    BLOB NOT NULL
);
`

// Production-safe pragmas: WAL for concurrent readers, a busy timeout so
// racing writers queue instead of erroring, NORMAL sync as the WAL-mode
// durability tradeoff.
var pragmas = []string{
	"PRAGMA journal_mode = WAL;",
	"PRAGMA busy_timeout = 10000;",
	"PRAGMA synchronous = NORMAL;",
}

// KVStore implements ports.KVStore on an SQLite database.
type KVStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and prepares the kv table.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*KVStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &KVStore{db: db}, nil
}

// Get returns the value for key.
func (s *KVStore) Get(ctx context.Context, key string) (ports.Versioned, bool, error) {
	var v ports.Versioned
	err := s.db.QueryRowContext(ctx,
		`SELECT version, data FROM kv WHERE key = ?`, key,
	).Scan(&v.Version, &v.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Versioned{}, false, nil
	}
	if err != nil {
		return ports.Versioned{}, false, mapErr(err)
	}
	return v, true, nil
}

// Put writes data under key if prevVersion matches the stored version.
// The version comparison runs inside the database, making the CAS valid
// across processes.
func (s *KVStore) Put(ctx context.Context, key string, data []byte, prevVersion int64) error {
	if prevVersion == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO kv (key, version, data) VALUES (?, 1, ?)
			 ON CONFLICT (key) DO NOTHING`, key, data)
		if err != nil {
			return mapErr(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("put %q: %w", key, domain.ErrVersionConflict)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE kv SET version = version + 1, data = ? WHERE key = ? AND version = ?`,
		data, key, prevVersion)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("put %q: %w", key, domain.ErrVersionConflict)
	}
	return nil
}

// Delete removes key if prevVersion matches. Deleting a missing key is a
// no-op.
func (s *KVStore) Delete(ctx context.Context, key string, prevVersion int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE key = ? AND version = ?`, key, prevVersion)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Distinguish "already gone" from "version moved underneath us".
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM kv WHERE key = ?`, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return mapErr(err)
	}
	return fmt.Errorf("delete %q: %w", key, domain.ErrVersionConflict)
}

// List returns all keys with the given prefix.
func (s *KVStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE key LIKE ? ESCAPE '\'`, likePrefix(prefix))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *KVStore) Close() error { return s.db.Close() }

// likePrefix escapes LIKE metacharacters in prefix and appends the
// wildcard.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// mapErr converts database-full errors to the domain quota error.
func mapErr(err error) error {
	if err != nil && strings.Contains(err.Error(), "database or disk is full") {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuota, err)
	}
	return err
}
