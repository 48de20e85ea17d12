package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Observation is the primary entity: one durable record of something the
// agent or a tool saw or decided.
type Observation struct {
	ID         int64
	TS         string
	Kind       string
	Summary    string
	SummaryEN  string
	Lang       string
	ToolName   string
	DetailJSON string
}

// InsertInput carries the raw, not-yet-normalized fields for a new
// observation. Detail may be a map, a string, a scalar, or nil; it is
// coerced to a JSON object per spec §4.3.
type InsertInput struct {
	TS        string
	Kind      string
	Summary   string
	SummaryEN string
	Lang      string
	ToolName  string
	Detail    any
}

// Insert normalizes fields (surrogate scrubbing, ts stamping, detail
// coercion) and inserts the observation and its FTS mirror row atomically:
// either both succeed or both fail. Returns the assigned id.
func (s *Store) Insert(ctx context.Context, in InsertInput) (int64, error) {
	ts := in.TS
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}

	detailJSON, err := CoerceDetail(in.Detail)
	if err != nil {
		return 0, fmt.Errorf("store: coerce detail: %w", err)
	}

	summary := ScrubSurrogates(in.Summary)
	summaryEN := ScrubSurrogates(in.SummaryEN)
	toolName := ScrubSurrogates(in.ToolName)
	kind := ScrubSurrogates(in.Kind)
	lang := ScrubSurrogates(in.Lang)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin insert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO observations
		(ts, kind, summary, summary_en, lang, tool_name, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts, nullIfEmpty(kind), summary, nullIfEmpty(summaryEN), nullIfEmpty(lang), nullIfEmpty(toolName), detailJSON)
	if err != nil {
		return 0, fmt.Errorf("store: insert observation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO observations_fts(rowid, summary, summary_en, tool_name, detail_json)
		VALUES (?, ?, ?, ?, ?)`, id, summary, summaryEN, toolName, detailJSON); err != nil {
		return 0, fmt.Errorf("store: insert fts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit insert: %w", err)
	}
	return id, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const observationColumns = "id, ts, COALESCE(kind,''), summary, COALESCE(summary_en,''), COALESCE(lang,''), COALESCE(tool_name,''), detail_json"

func scanObservation(row interface{ Scan(...any) error }) (Observation, error) {
	var o Observation
	if err := row.Scan(&o.ID, &o.TS, &o.Kind, &o.Summary, &o.SummaryEN, &o.Lang, &o.ToolName, &o.DetailJSON); err != nil {
		return Observation{}, err
	}
	return o, nil
}

// Get loads observations by id, in the order requested. Ids with no
// matching row are silently omitted.
func (s *Store) Get(ctx context.Context, ids []int64) ([]Observation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[int64]Observation, len(ids))
	placeholders := make([]any, len(ids))
	query := "SELECT " + observationColumns + " FROM observations WHERE id IN ("
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = id
	}
	query += ")"
	rows, err := s.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan get: %w", err)
		}
		byID[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Observation, 0, len(ids))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// GetOne loads a single observation by id.
func (s *Store) GetOne(ctx context.Context, id int64) (Observation, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+observationColumns+" FROM observations WHERE id = ?", id)
	o, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return Observation{}, false, nil
	}
	if err != nil {
		return Observation{}, false, fmt.Errorf("store: get one: %w", err)
	}
	return o, true, nil
}

// Timeline returns observations with id in [center-window, center+window],
// ordered ascending by id.
func (s *Store) Timeline(ctx context.Context, center int64, window int) ([]Observation, error) {
	lo := center - int64(window)
	hi := center + int64(window)
	rows, err := s.db.QueryContext(ctx, "SELECT "+observationColumns+" FROM observations WHERE id BETWEEN ? AND ? ORDER BY id ASC", lo, hi)
	if err != nil {
		return nil, fmt.Errorf("store: timeline: %w", err)
	}
	defer rows.Close()
	var out []Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Recent returns the most recent `limit` observations, ordered ascending
// by id (oldest of the window first), optionally filtered to a tool name.
func (s *Store) Recent(ctx context.Context, limit int, toolName string) ([]Observation, error) {
	query := "SELECT " + observationColumns + " FROM observations"
	var args []any
	if toolName != "" {
		query += " WHERE tool_name = ?"
		args = append(args, toolName)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()
	var out []Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	// reverse to ascending id order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// MaxID returns the highest assigned observation id, or 0 if the table is
// empty.
func (s *Store) MaxID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM observations").Scan(&id); err != nil {
		return 0, err
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}
