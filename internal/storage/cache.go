/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	applog "shadowcaster/internal/log"
	"shadowcaster/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	CacheFileName = "cache.sqlite"

	// DefaultMaxBytes caps the cache when neither config nor env set a limit.
	DefaultMaxBytes int64 = 256 << 20

	// schemaVersion tracks the cache schema. Bump it with a new case in runMigrations.
	schemaVersion = 2
)

// Cache stores rendered node outputs keyed by content hash. It is safe for concurrent use.
type Cache struct {
	db       *sql.DB
	path     string
	maxBytes int64
}

// Stats summarises cache contents.
type Stats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Cap     int64 `json:"cap"`
}

// CachePath returns the database file inside dir.
func CachePath(dir string) string {
	return filepath.Join(dir, CacheFileName)
}

// OpenCache opens or creates <dir>/cache.sqlite with WAL enabled and the schema migrated.
// maxBytes <= 0 uses MaxBytesFromEnv. A database that cannot be opened or fails its quick
// check is backed up and recreated; cached renders are disposable.
func OpenCache(dir string, maxBytes int64) (*Cache, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "cache_open").With(slog.String("dir", dir))
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.Error("create cache dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = MaxBytesFromEnv()
	}
	path := CachePath(dir)
	db, err := openDB(path)
	if err == nil && !healthy(db) {
		_ = db.Close()
		err = errors.New("quick_check failed")
	}
	if err != nil {
		l.Warn("cache unusable, rebuilding", slog.Any("err", err))
		backupFile(path)
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			_ = os.Remove(p)
		}
		if db, err = openDB(path); err != nil {
			l.Error("cache rebuild failed", slog.Any("err", err))
			return nil, err
		}
	}
	l.Info("cache ready", slog.String("path", path), slog.Int64("max_bytes", maxBytes))
	return &Cache{db: db, path: path, maxBytes: maxBytes}, nil
}

func openDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureCacheSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func healthy(db *sql.DB) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(chk), "ok")
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// keep schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

func ensureCacheSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		// One row per node output; access is a sequence number bumped on every hit.
		`CREATE TABLE IF NOT EXISTS renders (
			key        TEXT    NOT NULL,
			output     INTEGER NOT NULL,
			node       TEXT    NOT NULL,
			blob       BLOB    NOT NULL,
			size       INTEGER NOT NULL,
			created_at TEXT    NOT NULL,
			access     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(key, output)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_renders_access ON renders(access);`,
		`CREATE INDEX IF NOT EXISTS idx_renders_node ON renders(node);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure cache schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		var stmts []string
		switch next {
		case 2:
			stmts = []string{`CREATE INDEX IF NOT EXISTS idx_renders_node ON renders(node);`}
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

// backupFile copies the database into a timestamped file under backups/ next to it.
func backupFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	bdir := filepath.Join(filepath.Dir(path), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	_ = os.WriteFile(filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp)), data, 0o644)
}

// Path returns the database file.
func (c *Cache) Path() string { return c.path }

// MaxBytes returns the byte cap Put enforces.
func (c *Cache) MaxBytes() int64 { return c.maxBytes }

// Close releases the database.
func (c *Cache) Close() error { return c.db.Close() }

// Get returns the outputs stored under key in output order and marks them used. A miss
// returns (nil, false, nil).
func (c *Cache) Get(ctx context.Context, key string) ([][]byte, bool, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT blob FROM renders WHERE key=? ORDER BY output`, key)
	if err != nil {
		return nil, false, fmt.Errorf("query render: %w", err)
	}
	var out [][]byte
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			_ = rows.Close()
			return nil, false, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, false, err
	}
	// close the cursor before writing
	if err := rows.Close(); err != nil {
		return nil, false, err
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	if _, err := c.db.ExecContext(ctx, `UPDATE renders SET access=(SELECT COALESCE(MAX(access),0)+1 FROM renders) WHERE key=?`, key); err != nil {
		return nil, false, fmt.Errorf("touch render: %w", err)
	}
	return out, true, nil
}

// Put replaces the outputs stored under key and evicts least recently used entries until the
// cache fits its cap. The entry just written is never evicted.
func (c *Cache) Put(ctx context.Context, key, node string, outputs [][]byte) error {
	if key == "" || len(outputs) == 0 {
		return errors.New("put render: key and outputs are required")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM renders WHERE key=?`, key); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("replace render: %w", err)
	}
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(access),0)+1 FROM renders`).Scan(&seq); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("next access: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for i, b := range outputs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO renders(key, output, node, blob, size, created_at, access) VALUES(?,?,?,?,?,?,?)`,
			key, i, node, b, len(b), now, seq); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert render: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put: %w", err)
	}
	if c.maxBytes > 0 {
		if _, err := c.evict(ctx, c.maxBytes, key); err != nil {
			return err
		}
	}
	return nil
}

// Evict deletes least recently used entries until the total size is at most capBytes and
// returns how many entries went.
func (c *Cache) Evict(ctx context.Context, capBytes int64) (int, error) {
	return c.evict(ctx, capBytes, "")
}

func (c *Cache) evict(ctx context.Context, capBytes int64, keep string) (int, error) {
	total, err := c.Total(ctx)
	if err != nil {
		return 0, err
	}
	if total <= capBytes {
		return 0, nil
	}
	rows, err := c.db.QueryContext(ctx, `SELECT key, SUM(size) FROM renders GROUP BY key ORDER BY MAX(access) ASC`)
	if err != nil {
		return 0, fmt.Errorf("select victims: %w", err)
	}
	var victims []any
	cur := total
	for rows.Next() {
		var key string
		var sz int64
		if err := rows.Scan(&key, &sz); err != nil {
			_ = rows.Close()
			return 0, err
		}
		if key == keep {
			continue
		}
		victims = append(victims, key)
		cur -= sz
		if cur <= capBytes {
			break
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if len(victims) == 0 {
		return 0, nil
	}
	q := `DELETE FROM renders WHERE key IN (?` + strings.Repeat(",?", len(victims)-1) + `)`
	if _, err := c.db.ExecContext(ctx, q, victims...); err != nil {
		return 0, fmt.Errorf("evict delete: %w", err)
	}
	applog.WithComponent("storage").Debug("cache evicted", slog.Int("entries", len(victims)), slog.Int64("cap", capBytes))
	return len(victims), nil
}

// Total returns the stored bytes.
func (c *Cache) Total(ctx context.Context) (int64, error) {
	var total int64
	if err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM renders`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum render size: %w", err)
	}
	return total, nil
}

// Stats reports entry count, stored bytes and the cap.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	s := Stats{Cap: c.maxBytes}
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT key), COALESCE(SUM(size),0) FROM renders`).Scan(&s.Entries, &s.Bytes); err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return s, nil
}

// MaxBytesFromEnv reads SHC_CACHE_MAX_BYTES, defaulting to DefaultMaxBytes.
func MaxBytesFromEnv() int64 {
	v := os.Getenv("SHC_CACHE_MAX_BYTES")
	if v == "" {
		return DefaultMaxBytes
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return DefaultMaxBytes
	}
	return n
}
