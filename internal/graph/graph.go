// Package graph implements index-first "graph-lite" recall: IndexPack,
// ContextPack, and Preflight, plus deterministic idempotent capture of git
// commits and Markdown sections into the observation ledger.
package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/phenomenoner/openclaw-mem/internal/store"
)

func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Max(1, math.Ceil(float64(len(s))/4.0)))
}

// truncate enforces the hard character safety net of 4*budgetTokens - 3
// bytes, per spec §4.9.1.
func truncate(s string, budgetTokens int) string {
	limit := 4*budgetTokens - 3
	if limit < 0 {
		limit = 0
	}
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// Candidate is one lexical hit feeding an IndexPack.
type Candidate struct {
	ID      int64
	Summary string
}

// Expansion is one suggested-next record, ranked by adjacency support.
type Expansion struct {
	ID      int64
	Support int
}

// IndexPack is the short pointer-list payload for agent navigation.
type IndexPack struct {
	Header      string
	Candidates  []Candidate
	Suggestions []Expansion
	Text        string
}

// BuildIndexPack runs a lexical search, then expands each candidate's
// neighborhood [id-window, id+window] to find unseen adjacent ids, ranked
// by how many candidates each neighbor is adjacent to (support descending,
// id ascending), and renders a budget-constrained textual payload.
func BuildIndexPack(ctx context.Context, s *store.Store, query string, limit, window, budgetTokens int) (IndexPack, error) {
	results, err := s.SearchFTS(ctx, query, limit)
	if err != nil {
		return IndexPack{}, err
	}
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	rows, err := s.Get(ctx, ids)
	if err != nil {
		return IndexPack{}, err
	}
	byID := map[int64]store.Observation{}
	seen := map[int64]bool{}
	candidates := make([]Candidate, 0, len(rows))
	for _, o := range rows {
		byID[o.ID] = o
		seen[o.ID] = true
		candidates = append(candidates, Candidate{ID: o.ID, Summary: o.Summary})
	}

	support := map[int64]int{}
	for _, c := range candidates {
		lo, hi := c.ID-int64(window), c.ID+int64(window)
		if lo < 1 {
			lo = 1
		}
		for n := lo; n <= hi; n++ {
			if n == c.ID || seen[n] {
				continue
			}
			support[n]++
		}
	}
	var suggestions []Expansion
	for id, sup := range support {
		suggestions = append(suggestions, Expansion{ID: id, Support: sup})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Support != suggestions[j].Support {
			return suggestions[i].Support > suggestions[j].Support
		}
		return suggestions[i].ID < suggestions[j].ID
	})

	header := fmt.Sprintf("IndexPack for %q: %d candidates, %d suggested expansions", query, len(candidates), len(suggestions))
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	used := estimateTokens(header)
	for _, c := range candidates {
		line := fmt.Sprintf("- obs:%d %s\n", c.ID, collapse(c.Summary))
		est := estimateTokens(line)
		if used+est > budgetTokens {
			break
		}
		b.WriteString(line)
		used += est
	}
	if len(suggestions) > 0 {
		b.WriteString("suggested next:")
		for _, e := range suggestions {
			b.WriteString(fmt.Sprintf(" obs:%d", e.ID))
		}
		b.WriteString("\n")
	}

	return IndexPack{
		Header:      header,
		Candidates:  candidates,
		Suggestions: suggestions,
		Text:        truncate(b.String(), budgetTokens),
	}, nil
}

// ContextPack is the selected, budgeted material for a set of references.
type ContextPack struct {
	Text string
	IDs  []int64
}

// BuildContextPack deduplicates refs preserving order, loads rows, and
// renders a numbered, budget-constrained text payload.
func BuildContextPack(ctx context.Context, s *store.Store, ids []int64, budgetTokens int) (ContextPack, error) {
	seen := map[int64]bool{}
	var deduped []int64
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		deduped = append(deduped, id)
	}
	rows, err := s.Get(ctx, deduped)
	if err != nil {
		return ContextPack{}, err
	}
	byID := map[int64]store.Observation{}
	for _, o := range rows {
		byID[o.ID] = o
	}

	var b strings.Builder
	used := 0
	var includedIDs []int64
	for i, id := range deduped {
		o, ok := byID[id]
		if !ok {
			continue
		}
		text := o.SummaryEN
		if text == "" {
			text = o.Summary
		}
		line := fmt.Sprintf("%d. [obs:%d] %s\n", i+1, id, collapse(text))
		est := estimateTokens(line)
		if used+est > budgetTokens {
			break
		}
		b.WriteString(line)
		used += est
		includedIDs = append(includedIDs, id)
	}
	return ContextPack{Text: truncate(b.String(), budgetTokens), IDs: includedIDs}, nil
}

// Preflight composes index -> selection -> pack in one call: the first
// `take` unique record references from index candidates plus suggestions
// become the pack selection.
func Preflight(ctx context.Context, s *store.Store, query string, limit, window, take, budgetTokens int) (ContextPack, error) {
	idx, err := BuildIndexPack(ctx, s, query, limit, window, budgetTokens)
	if err != nil {
		return ContextPack{}, err
	}
	seen := map[int64]bool{}
	var selection []int64
	for _, c := range idx.Candidates {
		if len(selection) >= take {
			break
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		selection = append(selection, c.ID)
	}
	for _, e := range idx.Suggestions {
		if len(selection) >= take {
			break
		}
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		selection = append(selection, e.ID)
	}
	return BuildContextPack(ctx, s, selection, budgetTokens)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", " ")), " ")
}
