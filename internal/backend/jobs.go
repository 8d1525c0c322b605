/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	applog "shadowcaster/internal/log"
	"shadowcaster/internal/pipeline"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// JobStore keeps render job history in Postgres.
type JobStore struct {
	db *sql.DB
}

// OpenJobStore connects to dsn, pings it and applies pending migrations.
func OpenJobStore(ctx context.Context, dsn string) (*JobStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database url is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &JobStore{db: db}, nil
}

// Close releases the pool.
func (s *JobStore) Close() error { return s.db.Close() }

// Ping checks the database.
func (s *JobStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Record inserts one job.
func (s *JobStore) Record(ctx context.Context, j pipeline.Job) error {
	params, err := json.Marshal(j.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if j.Params == nil {
		params = []byte("{}")
	}
	created := j.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO render_jobs(node, cache_key, params, outputs, width, height, cached, duration_us, error_kind, error, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		j.Node, j.Key, string(params), j.Outputs, j.Width, j.Height, j.Cached, j.Duration.Microseconds(), j.ErrorKind, j.Error, created)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Recent returns the newest jobs first, optionally for one node.
func (s *JobStore) Recent(ctx context.Context, node string, limit int) ([]pipeline.Job, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := `SELECT id, node, cache_key, params, outputs, width, height, cached, duration_us, error_kind, error, created_at FROM render_jobs`
	args := []any{}
	if node != "" {
		q += ` WHERE node = $1`
		args = append(args, node)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()
	var list []pipeline.Job
	for rows.Next() {
		var (
			j      pipeline.Job
			params []byte
			durUS  int64
		)
		if err := rows.Scan(&j.ID, &j.Node, &j.Key, &params, &j.Outputs, &j.Width, &j.Height, &j.Cached, &durUS, &j.ErrorKind, &j.Error, &j.CreatedAt); err != nil {
			return nil, err
		}
		if len(params) > 0 {
			_ = json.Unmarshal(params, &j.Params)
		}
		j.Duration = time.Duration(durUS) * time.Microsecond
		list = append(list, j)
	}
	return list, rows.Err()
}

// applyMigrations applies embedded SQL migrations in filename order and records each version.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("backend"), "migrate")
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	// dialect=PostgreSQL
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		l.Info("applying migration", slog.String("file", fname))
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2) ON CONFLICT (version) DO NOTHING`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	parts := strings.SplitN(base, "_", 2)
	if len(parts) < 2 {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

// logRecorder stands in for JobStore when no database is configured.
type logRecorder struct{}

// LogRecorder returns a recorder that only logs jobs.
func LogRecorder() pipeline.Recorder { return logRecorder{} }

func (logRecorder) Record(_ context.Context, j pipeline.Job) error {
	applog.WithComponent("jobs").Info("job",
		slog.String("node", j.Node),
		slog.Bool("cached", j.Cached),
		slog.Int("width", j.Width),
		slog.Int("height", j.Height),
		slog.Duration("took", j.Duration),
		slog.String("error_kind", j.ErrorKind),
	)
	return nil
}
