package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GitSeen reports whether (repo, sha) has already been captured.
func (s *Store) GitSeen(ctx context.Context, repo, sha string) (bool, error) {
	var x int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM graph_capture_git_seen WHERE repo=? AND sha=?", repo, sha).Scan(&x)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: git seen: %w", err)
	}
	return true, nil
}

// MarkGitSeen records that (repo, sha) has been captured.
func (s *Store) MarkGitSeen(ctx context.Context, repo, sha, capturedAt string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO graph_capture_git_seen(repo, sha, captured_at) VALUES (?, ?, ?)
		ON CONFLICT(repo, sha) DO NOTHING`, repo, sha, capturedAt)
	if err != nil {
		return fmt.Errorf("store: mark git seen: %w", err)
	}
	return nil
}

// MDFingerprintSeen reports whether a Markdown section fingerprint has
// already been captured.
func (s *Store) MDFingerprintSeen(ctx context.Context, fingerprint string) (bool, error) {
	var x int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM graph_capture_md_seen WHERE fingerprint=?", fingerprint).Scan(&x)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: md seen: %w", err)
	}
	return true, nil
}

// MarkMDFingerprintSeen records a Markdown section fingerprint as captured.
func (s *Store) MarkMDFingerprintSeen(ctx context.Context, fingerprint, sourcePath, mtime string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO graph_capture_md_seen(fingerprint, source_path, mtime) VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET source_path=excluded.source_path, mtime=excluded.mtime`,
		fingerprint, sourcePath, mtime)
	if err != nil {
		return fmt.Errorf("store: mark md seen: %w", err)
	}
	return nil
}

// PriorGitCaptureObservation checks backward-compat uniqueness against
// prior observations with tool_name == "graph.capture-git" whose detail
// mentions this repo+sha, for databases written before
// graph_capture_git_seen existed.
func (s *Store) PriorGitCaptureObservation(ctx context.Context, repo, sha string) (bool, error) {
	var x int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM observations WHERE tool_name = 'graph.capture-git'
		AND detail_json LIKE ? AND detail_json LIKE ? LIMIT 1`,
		"%\"repo\":\""+repo+"\"%", "%\"sha\":\""+sha+"\"%").Scan(&x)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: prior git capture: %w", err)
	}
	return true, nil
}
