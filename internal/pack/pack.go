// Package pack builds budget-bounded, cited injection payloads for an LLM
// from the retrieval engine's fused candidate ordering, and can emit a
// redaction-safe audit trace (pack.trace.v1) alongside the payload.
package pack

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/phenomenoner/openclaw-mem/internal/importance"
	"github.com/phenomenoner/openclaw-mem/internal/ocmerr"
	"github.com/phenomenoner/openclaw-mem/internal/retrieve"
	"github.com/phenomenoner/openclaw-mem/internal/store"
)

const (
	ReasonMissingRow           = "missing_row"
	ReasonMissingSummary       = "missing_summary"
	ReasonMaxItemsReached      = "max_items_reached"
	ReasonBudgetTokensExceeded = "budget_tokens_exceeded"
	ReasonWithinItemLimit      = "within_item_limit"
	ReasonWithinBudget         = "within_budget"
	ReasonMatchedFTS           = "matched_fts"
	ReasonMatchedVector        = "matched_vector"
)

const (
	defaultLimit       = 12
	defaultBudgetToken = 1200
	traceSchema        = "v1"
	componentVersion   = 1
)

// Request is the input to Build.
type Request struct {
	Query        string
	QueryEN      string
	Limit        int
	BudgetTokens int
	Model        string
	Trace        bool
}

// Citation references one included observation; url is always null in v1.
type Citation struct {
	RecordRef string  `json:"recordRef"`
	URL       *string `json:"url"`
}

// Item is one included candidate in the emitted pack.
type Item struct {
	RecordRef string `json:"recordRef"`
	Layer     string `json:"layer"`
	ID        int64  `json:"id"`
	Summary   string `json:"summary"`
	Kind      string `json:"kind"`
	Lang      string `json:"lang"`
}

// Result is the full pack output.
type Result struct {
	BundleText string     `json:"bundle_text"`
	Items      []Item     `json:"items"`
	Citations  []Citation `json:"citations"`
	Trace      *Trace     `json:"trace,omitempty"`
}

func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Max(1, math.Ceil(float64(len(s))/4.0)))
}

func recordRef(id int64) string { return "obs:" + strconv.FormatInt(id, 10) }

// Build runs retrieval with a widened candidate window and reranking
// disabled, then greedily fills items under the item-count and
// token-budget caps, in RRF order.
func Build(ctx context.Context, s *store.Store, qv retrieve.QueryVector, req Request) (Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Result{}, ocmerr.Validation("pack.Build", "query must be non-empty")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	budget := req.BudgetTokens
	if budget <= 0 {
		budget = defaultBudgetToken
	}
	if budget < 1 {
		budget = 1
	}

	start := time.Now()
	widened := limit * 3
	if limit+8 > widened {
		widened = limit + 8
	}
	rr, err := retrieve.Run(ctx, s, qv, retrieve.Options{
		Query: query, QueryEN: req.QueryEN, Limit: widened, Model: req.Model,
		CandidateLimitOverride: widened,
	}, retrieve.NoopReranker{})
	if err != nil {
		return Result{}, err
	}

	trace := newTrace(req, query, budget, limit)

	var result Result
	usedTokens := 0
	includedCount := 0
	var bundleLines []string

	for _, cand := range rr.Items {
		obs, ok, err := s.GetOne(ctx, cand.ID)
		candTrace := candidateTrace{
			ID:    recordRef(cand.ID),
			Layer: "L1",
			RRF:   cand.Score,
			FTS:   cand.MatchedFTS,
			Vec:   cand.MatchedVec,
		}
		if err != nil || !ok {
			candTrace.Decision = decisionBlock(false, []string{ReasonMissingRow})
			candTrace.Trust = string(TierUnknown)
			trace.Candidates = append(trace.Candidates, candTrace)
			continue
		}

		text := obs.SummaryEN
		if text == "" {
			text = obs.Summary
		}
		var detail map[string]any
		_ = json.Unmarshal([]byte(obs.DetailJSON), &detail)
		candTrace.Trust = string(NormalizeTrust(detail))
		if lbl, ok := detail["importance"]; ok {
			rec := importance.Parse(lbl)
			candTrace.Importance = string(rec.Label)
		} else {
			candTrace.Importance = string(importance.Unknown)
		}

		if text == "" {
			candTrace.Decision = decisionBlock(false, []string{ReasonMissingSummary})
			trace.Candidates = append(trace.Candidates, candTrace)
			continue
		}

		collapsed := strings.Join(strings.Fields(strings.ReplaceAll(text, "\n", " ")), " ")
		est := estimateTokens(collapsed)

		var reasons []string
		if cand.MatchedFTS {
			reasons = append(reasons, ReasonMatchedFTS)
		}
		if cand.MatchedVec {
			reasons = append(reasons, ReasonMatchedVector)
		}

		if includedCount >= limit {
			reasons = append(reasons, ReasonMaxItemsReached)
			candTrace.Decision = decisionBlock(false, reasons)
			trace.Candidates = append(trace.Candidates, candTrace)
			continue
		}
		if usedTokens+est > budget {
			reasons = append(reasons, ReasonBudgetTokensExceeded)
			candTrace.Decision = decisionBlock(false, reasons)
			trace.Candidates = append(trace.Candidates, candTrace)
			continue
		}

		reasons = append(reasons, ReasonWithinItemLimit, ReasonWithinBudget)
		usedTokens += est
		includedCount++
		result.Items = append(result.Items, Item{
			RecordRef: recordRef(cand.ID), Layer: "L1", ID: cand.ID,
			Summary: collapsed, Kind: obs.Kind, Lang: obs.Lang,
		})
		result.Citations = append(result.Citations, Citation{RecordRef: recordRef(cand.ID), URL: nil})
		bundleLines = append(bundleLines, fmt.Sprintf("- [%s] %s", recordRef(cand.ID), collapsed))

		candTrace.Decision = decisionBlock(true, reasons)
		candTrace.Citations = []Citation{{RecordRef: recordRef(cand.ID), URL: nil}}
		trace.Candidates = append(trace.Candidates, candTrace)
	}

	result.BundleText = strings.Join(bundleLines, "\n")

	if req.Trace {
		trace.finalize(result, time.Since(start))
		result.Trace = trace
	}
	return result, nil
}
