// Package store implements the durable observation ledger: a SQLite-backed
// table with an FTS5 mirror, two parallel embedding tables, and capture-state
// tables, following spec §4.3. Grounded on the embedded-SQL idiom in
// ODSapper-CLIAIRMONITOR/internal/memory/operational.go (single connection,
// WAL pragma, go:embed schema, busy timeout) since the teacher repo
// (manifold) is Postgres-only and has no embedded-store story of its own.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a single SQLite connection. A Store is opened fresh per CLI
// invocation; WAL mode permits concurrent readers with one writer, and a
// run serializes writes by using this single connection end to end.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path, applying the schema
// idempotently and running any needed migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign_keys: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need raw access.
func (s *Store) DB() *sql.DB { return s.db }

// migrate introspects the observation table's columns; when summary_en or
// lang is missing (an older database file), it adds them and rebuilds the
// FTS index, per spec §4.3's migration policy.
func (s *Store) migrate(ctx context.Context) error {
	cols, err := s.observationColumns(ctx)
	if err != nil {
		return err
	}
	needsSummaryEN := !cols["summary_en"]
	needsLang := !cols["lang"]
	if !needsSummaryEN && !needsLang {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if needsSummaryEN {
		if _, err := tx.ExecContext(ctx, "ALTER TABLE observations ADD COLUMN summary_en TEXT"); err != nil {
			return fmt.Errorf("add summary_en: %w", err)
		}
	}
	if needsLang {
		if _, err := tx.ExecContext(ctx, "ALTER TABLE observations ADD COLUMN lang TEXT"); err != nil {
			return fmt.Errorf("add lang: %w", err)
		}
	}

	// The FTS index was created without the new columns on an old database;
	// drop and recreate it, then repopulate from the observation table in
	// this same transaction.
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS observations_fts"); err != nil {
		return fmt.Errorf("drop fts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE VIRTUAL TABLE observations_fts USING fts5(
		summary, summary_en, tool_name, detail_json,
		content='observations', content_rowid='id'
	)`); err != nil {
		return fmt.Errorf("recreate fts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO observations_fts(rowid, summary, summary_en, tool_name, detail_json)
		SELECT id, summary, COALESCE(summary_en, ''), COALESCE(tool_name, ''), detail_json FROM observations`); err != nil {
		return fmt.Errorf("repopulate fts: %w", err)
	}

	return tx.Commit()
}

func (s *Store) observationColumns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(observations)")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
