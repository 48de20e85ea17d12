// Package retrieve implements the hybrid lexical+vector retrieval engine:
// lexical search with CJK fallback, vector cosine search (with an English
// fallback table), Reciprocal Rank Fusion, and an optional fail-open
// external rerank stage.
package retrieve

import (
	"context"
	"strings"

	"github.com/phenomenoner/openclaw-mem/internal/store"
	"github.com/phenomenoner/openclaw-mem/internal/vectorcodec"
)

// Options configures one retrieval invocation.
type Options struct {
	Query      string
	QueryEN    string
	Limit      int
	RRFK       int
	Model      string
	RerankTopN int

	// RerankProvider names the configured rerank provider (e.g. "jina",
	// "cohere"); it is stamped onto every result item when a non-noop
	// reranker is in play, regardless of whether reranking succeeds.
	RerankProvider string

	// CandidateLimitOverride, when > 0, replaces the computed inner
	// candidate limit (used by the pack builder, which widens it itself).
	CandidateLimitOverride int
}

// QueryVector is supplied by the caller (the embedding call itself is out
// of scope for this engine, per spec §1).
type QueryVector struct {
	Vector   []float32
	Norm     float64
	ENVector []float32
	ENNorm   float64
}

// Item is one fused retrieval hit.
type Item struct {
	ID             int64          `json:"id"`
	Score          float64        `json:"score"`
	MatchedFTS     bool           `json:"matched_fts"`
	MatchedVec     bool           `json:"matched_vec"`
	RerankProvider string         `json:"rerank_provider,omitempty"`
	Explanation    map[string]any `json:"explanation,omitempty"`
}

// Response is the outcome of one retrieval call.
type Response struct {
	Items    []Item         `json:"items"`
	Warnings []string       `json:"warnings,omitempty"`
	Debug    map[string]any `json:"debug,omitempty"`

	// FailOpenWarnings carries diagnostics for conditions that fail open
	// (e.g. a rerank call that errored and fell back to base RRF order).
	// Per spec §4.6 these belong on the error stream, never the JSON
	// result, so this field is deliberately excluded from serialization.
	FailOpenWarnings []string `json:"-"`
}

// Reranker optionally reorders the winning prefix of a base RRF ordering.
// Implementations must fail open: any error is treated as "no reordering."
type Reranker interface {
	Rerank(ctx context.Context, query string, ids []int64, texts []string) ([]int64, error)
}

// NoopReranker leaves ordering unchanged and never errors.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, ids []int64, _ []string) ([]int64, error) {
	return ids, nil
}

func candidateLimit(limit, rerankTopN, override int) int {
	if override > 0 {
		return override
	}
	cl := limit * 2
	if rerankTopN > 0 && rerankTopN*3 > cl {
		cl = rerankTopN * 3
	}
	if cl < 1 {
		cl = 1
	}
	return cl
}

// Run executes the lexical + vector lanes, fuses them with RRF, and
// (if a non-noop reranker is supplied) reorders the winning prefix.
func Run(ctx context.Context, s *store.Store, qv QueryVector, opts Options, reranker Reranker) (Response, error) {
	resp := Response{Debug: map[string]any{}}
	limit := opts.Limit
	if limit <= 0 {
		limit = 12
	}
	k := opts.RRFK
	if k <= 0 {
		k = vectorcodec.DefaultRRFK
	}
	innerLimit := candidateLimit(limit, opts.RerankTopN, opts.CandidateLimitOverride)

	lexIDs, err := lexicalLane(ctx, s, opts.Query, innerLimit, &resp.Warnings)
	if err != nil {
		return resp, err
	}

	var vecIDs, enVecIDs []int64
	matchedFTS := map[int64]bool{}
	matchedVec := map[int64]bool{}
	for _, id := range lexIDs {
		matchedFTS[id] = true
	}

	if len(qv.Vector) > 0 {
		vecIDs, err = vectorLane(ctx, s, qv.Vector, qv.Norm, opts.Model, store.EmbeddingSummary, innerLimit, &resp.Warnings)
		if err != nil {
			return resp, err
		}
	}
	if len(qv.ENVector) > 0 {
		enVecIDs, err = vectorLaneWithFallback(ctx, s, qv.ENVector, qv.ENNorm, opts.Model, innerLimit, &resp.Warnings)
		if err != nil {
			return resp, err
		}
	}
	for _, id := range vecIDs {
		matchedVec[id] = true
	}
	for _, id := range enVecIDs {
		matchedVec[id] = true
	}

	lists := [][]int64{}
	if len(lexIDs) > 0 {
		lists = append(lists, lexIDs)
	}
	if len(vecIDs) > 0 {
		lists = append(lists, vecIDs)
	}
	if len(enVecIDs) > 0 {
		lists = append(lists, enVecIDs)
	}

	fused := vectorcodec.RankRRF(lists, k, innerLimit)
	ids := make([]int64, len(fused))
	scoreByID := map[int64]float64{}
	for i, f := range fused {
		ids[i] = f.ID
		scoreByID[f.ID] = f.Score
	}

	if reranker != nil {
		if _, ok := reranker.(NoopReranker); !ok {
			topN := opts.RerankTopN
			if topN <= 0 {
				topN = limit
			}
			rerankCandidates := topN * 3
			if rerankCandidates > len(ids) {
				rerankCandidates = len(ids)
			}
			prefix := ids[:rerankCandidates]
			texts := make([]string, len(prefix))
			rows, rerr := s.Get(ctx, prefix)
			if rerr == nil {
				byID := map[int64]store.Observation{}
				for _, r := range rows {
					byID[r.ID] = r
				}
				for i, id := range prefix {
					o := byID[id]
					if o.SummaryEN != "" {
						texts[i] = o.SummaryEN
					} else {
						texts[i] = o.Summary
					}
				}
				reordered, rerr2 := reranker.Rerank(ctx, firstNonEmpty(opts.QueryEN, opts.Query), prefix, texts)
				if rerr2 == nil && len(reordered) == len(prefix) {
					ids = append(append([]int64{}, reordered...), ids[rerankCandidates:]...)
				} else if rerr2 != nil {
					resp.FailOpenWarnings = append(resp.FailOpenWarnings, "rerank failed, falling back to base RRF order: "+rerr2.Error())
				}
			}
		}
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}
	rerankUsed := false
	if reranker != nil {
		if _, ok := reranker.(NoopReranker); !ok {
			rerankUsed = true
		}
	}

	resp.Items = make([]Item, len(ids))
	for i, id := range ids {
		item := Item{
			ID:         id,
			Score:      scoreByID[id],
			MatchedFTS: matchedFTS[id],
			MatchedVec: matchedVec[id],
		}
		if rerankUsed {
			item.RerankProvider = opts.RerankProvider
		}
		resp.Items[i] = item
	}
	return resp, nil
}

func lexicalLane(ctx context.Context, s *store.Store, query string, limit int, warnings *[]string) ([]int64, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	results, err := s.SearchFTS(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && store.ContainsCJK(q) {
		likeResults, lerr := s.SearchLikeCJK(ctx, q, limit)
		if lerr != nil {
			return nil, lerr
		}
		ids := make([]int64, len(likeResults))
		for i, r := range likeResults {
			ids[i] = r.ID
		}
		return ids, nil
	}
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids, nil
}

func vectorLane(ctx context.Context, s *store.Store, vec []float32, norm float64, model string, table store.EmbeddingTable, limit int, warnings *[]string) ([]int64, error) {
	rows, err := s.RowsByModel(ctx, table, model)
	if err != nil {
		return nil, err
	}
	warnModelMix(ctx, s, table, model, warnings)
	if len(rows) == 0 {
		return nil, nil
	}
	scored := vectorcodec.RankCosine(vec, rows, limit)
	ids := make([]int64, len(scored))
	for i, sc := range scored {
		ids[i] = sc.ID
	}
	return ids, nil
}

// vectorLaneWithFallback searches the English embeddings table; if it is
// empty for the model, it falls back to the original-language table using
// the same English vector (spec §4.6).
func vectorLaneWithFallback(ctx context.Context, s *store.Store, vec []float32, norm float64, model string, limit int, warnings *[]string) ([]int64, error) {
	rows, err := s.RowsByModel(ctx, store.EmbeddingSummaryEN, model)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return vectorLane(ctx, s, vec, norm, model, store.EmbeddingSummary, limit, warnings)
	}
	warnModelMix(ctx, s, store.EmbeddingSummaryEN, model, warnings)
	scored := vectorcodec.RankCosine(vec, rows, limit)
	ids := make([]int64, len(scored))
	for i, sc := range scored {
		ids[i] = sc.ID
	}
	return ids, nil
}

func warnModelMix(ctx context.Context, s *store.Store, table store.EmbeddingTable, model string, warnings *[]string) {
	models, err := s.DistinctModels(ctx, table)
	if err != nil {
		return
	}
	found := false
	for _, m := range models {
		if m == model {
			found = true
			break
		}
	}
	if !found && len(models) > 0 {
		*warnings = append(*warnings, "requested embedding model not present in "+string(table))
	}
	if len(models) > 1 {
		*warnings = append(*warnings, "embedding table "+string(table)+" contains multiple models; possible quality drift")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
