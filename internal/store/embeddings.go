package store

import (
	"context"
	"fmt"
	"time"

	"github.com/phenomenoner/openclaw-mem/internal/vectorcodec"
)

// EmbeddingTable selects which of the two parallel embedding tables an
// operation targets.
type EmbeddingTable string

const (
	EmbeddingSummary   EmbeddingTable = "observation_embeddings"
	EmbeddingSummaryEN EmbeddingTable = "observation_embeddings_en"
)

// PutEmbedding upserts the packed vector for an observation in the given
// table. Each observation has at most one embedding per table.
func (s *Store) PutEmbedding(ctx context.Context, table EmbeddingTable, observationID int64, model string, vec []float32) error {
	packed := vectorcodec.Pack(vec)
	norm := vectorcodec.L2Norm(vec)
	now := time.Now().UTC().Format(time.RFC3339)
	query := fmt.Sprintf(`INSERT INTO %s (observation_id, model, dim, vector, norm, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(observation_id) DO UPDATE SET model=excluded.model, dim=excluded.dim,
			vector=excluded.vector, norm=excluded.norm, created_at=excluded.created_at`, table)
	_, err := s.db.ExecContext(ctx, query, observationID, model, len(vec), packed, norm, now)
	if err != nil {
		return fmt.Errorf("store: put embedding: %w", err)
	}
	return nil
}

// RowsByModel loads every row in table for the given model. Both
// embedding tables are created by the schema on Open, so an older
// database has them too; a table with no rows for model returns nil.
func (s *Store) RowsByModel(ctx context.Context, table EmbeddingTable, model string) ([]vectorcodec.VectorRow, error) {
	query := fmt.Sprintf("SELECT observation_id, vector, norm FROM %s WHERE model = ?", table)
	rows, err := s.db.QueryContext(ctx, query, model)
	if err != nil {
		return nil, fmt.Errorf("store: rows by model: %w", err)
	}
	defer rows.Close()
	var out []vectorcodec.VectorRow
	for rows.Next() {
		var r vectorcodec.VectorRow
		if err := rows.Scan(&r.ID, &r.Vector, &r.Norm); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DistinctModels returns every distinct model name present in table. Used
// by the retrieval engine to warn when more than one model is present
// (possible silent quality drift) or when the requested model is absent.
func (s *Store) DistinctModels(ctx context.Context, table EmbeddingTable) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT model FROM %s", table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: distinct models: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ObservationsMissingEmbedding returns up to `limit` observations with
// non-empty summary text (or, for the English table, non-empty
// summary_en) that have no row yet in the given embedding table. Used by
// the harvest backfill.
func (s *Store) ObservationsMissingEmbedding(ctx context.Context, table EmbeddingTable, limit int) ([]Observation, error) {
	textCol := "summary"
	if table == EmbeddingSummaryEN {
		textCol = "summary_en"
	}
	query := fmt.Sprintf(`SELECT %s FROM observations o
		WHERE COALESCE(o.%s, '') != '' AND NOT EXISTS (SELECT 1 FROM %s e WHERE e.observation_id = o.id)
		ORDER BY o.id ASC LIMIT ?`, observationColumns, textCol, table)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: missing embeddings: %w", err)
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
