package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// FTSResult is one lexical match, ranked by the FTS5 match score (lower
// bm25 is better; the engine converts to a descending "best first" list).
type FTSResult struct {
	ID    int64
	Score float64
}

var hyphenTokenRe = regexp.MustCompile(`[A-Za-z0-9]+-[A-Za-z0-9-]+`)
var booleanOpRe = regexp.MustCompile(`(?i)^(OR|AND|NOT)$`)

// SanitizeFTSQuery wraps hyphenated tokens in phrase quotes (FTS5 would
// otherwise try to parse the hyphen as a NOT operator) while preserving
// boolean operators and parentheses.
func SanitizeFTSQuery(q string) string {
	fields := strings.Fields(q)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if booleanOpRe.MatchString(f) || f == "(" || f == ")" {
			out = append(out, f)
			continue
		}
		if hyphenTokenRe.MatchString(f) {
			out = append(out, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// SearchFTS runs the sanitized query against the FTS5 index, ranked by
// match quality (best first). On a parse error for pathological sanitized
// input, it returns (nil, nil) rather than fail the whole retrieval; the
// caller cannot tell this from an empty result, so the lexical lane simply
// contributes no hits and no warning is recorded.
func (s *Store) SearchFTS(ctx context.Context, query string, limit int) ([]FTSResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	sanitized := SanitizeFTSQuery(q)
	rows, err := s.db.QueryContext(ctx, `SELECT rowid, bm25(observations_fts) AS rank
		FROM observations_fts WHERE observations_fts MATCH ? ORDER BY rank ASC LIMIT ?`, sanitized, limit)
	if err != nil {
		// FTS5 syntax rejection for an edge-case token: skip lane, don't fail.
		if isFTSParseError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: fts search: %w", err)
	}
	defer rows.Close()
	var out []FTSResult
	for rows.Next() {
		var r FTSResult
		if err := rows.Scan(&r.ID, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func isFTSParseError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fts5") || strings.Contains(msg, "syntax error") || strings.Contains(msg, "malformed match")
}

// cjkRuneInBlock reports whether r falls in the unified CJK block.
func cjkRuneInBlock(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

// ContainsCJK reports whether s contains any character in the unified CJK
// block.
func ContainsCJK(s string) bool {
	for _, r := range s {
		if cjkRuneInBlock(r) {
			return true
		}
	}
	return false
}

// CJKTerms extracts whole CJK runs of length >= 2 plus their overlapping
// bigrams from s, stably deduplicated and capped at 16 terms.
func CJKTerms(s string) []string {
	var runs []string
	var cur []rune
	flush := func() {
		if len(cur) >= 2 {
			runs = append(runs, string(cur))
		}
		cur = nil
	}
	for _, r := range s {
		if cjkRuneInBlock(r) {
			cur = append(cur, r)
		} else {
			flush()
		}
	}
	flush()

	seen := map[string]bool{}
	var terms []string
	add := func(t string) bool {
		if seen[t] {
			return true
		}
		seen[t] = true
		terms = append(terms, t)
		return len(terms) < 16
	}
	for _, run := range runs {
		if !add(run) {
			return terms
		}
		rs := []rune(run)
		for i := 0; i+1 < len(rs); i++ {
			if !add(string(rs[i : i+2])) {
				return terms
			}
		}
	}
	return terms
}

// LikeResult is one CJK-fallback match, ranked by the number of matched
// terms (more matches, higher rank).
type LikeResult struct {
	ID      int64
	Matches int
}

// SearchLikeCJK runs a LIKE-based substring match over summary using the
// CJK terms extracted from query, ranked by match count descending, ties
// broken by ascending id. Used only as a fallback when the lexical index
// returns nothing for a CJK query.
func (s *Store) SearchLikeCJK(ctx context.Context, query string, limit int) ([]LikeResult, error) {
	terms := CJKTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	counts := map[int64]int{}
	for _, term := range terms {
		rows, err := s.db.QueryContext(ctx, "SELECT id FROM observations WHERE summary LIKE ?", "%"+term+"%")
		if err != nil {
			return nil, fmt.Errorf("store: like search: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			counts[id]++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	out := make([]LikeResult, 0, len(counts))
	for id, c := range counts {
		out = append(out, LikeResult{ID: id, Matches: c})
	}
	sortLikeResults(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortLikeResults(out []LikeResult) {
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j-1], out[j]
			if a.Matches < b.Matches || (a.Matches == b.Matches && a.ID > b.ID) {
				out[j-1], out[j] = out[j], out[j-1]
			} else {
				break
			}
		}
	}
}
