package graph

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/phenomenoner/openclaw-mem/internal/atomicfile"
	"github.com/phenomenoner/openclaw-mem/internal/store"
)

const defaultIndexN = 5000

// WriteIndexArtifact builds the flat Markdown index of the last n
// observations (default 5000) and writes it atomically to path. One line
// per observation: `- obs#<id> <ts> [<kind>] <tool_name> :: <summary>`.
func WriteIndexArtifact(ctx context.Context, s *store.Store, path string, n int) error {
	if n <= 0 {
		n = defaultIndexN
	}
	rows, err := s.Recent(ctx, n, "")
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, o := range rows {
		fmt.Fprintf(&b, "- obs#%d %s [%s] %s :: %s\n", o.ID, o.TS, o.Kind, o.ToolName, collapse(o.Summary))
	}
	return atomicfile.WriteFile(path, []byte(b.String()), 0o644)
}

var obsTokenRe = regexp.MustCompile(`obs#(\d+)`)

// SemanticRecallRank parses `obs#<id>` tokens out of an external
// semantic-recall snippet result and ranks the referenced ids by token
// overlap between the snippet text and the query.
func SemanticRecallRank(query string, snippets []string) []int64 {
	queryTokens := tokenize(query)
	type hit struct {
		id      int64
		overlap int
	}
	var hits []hit
	for _, snippet := range snippets {
		matches := obsTokenRe.FindAllStringSubmatch(snippet, -1)
		if len(matches) == 0 {
			continue
		}
		snippetTokens := tokenize(snippet)
		overlap := 0
		for t := range queryTokens {
			if snippetTokens[t] {
				overlap++
			}
		}
		for _, m := range matches {
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				continue
			}
			hits = append(hits, hit{id: id, overlap: overlap})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].overlap != hits[j].overlap {
			return hits[i].overlap > hits[j].overlap
		}
		return hits[i].id < hits[j].id
	})
	seen := map[int64]bool{}
	var out []int64
	for _, h := range hits {
		if seen[h.id] {
			continue
		}
		seen[h.id] = true
		out = append(out, h.id)
	}
	return out
}

func tokenize(s string) map[string]bool {
	out := map[string]bool{}
	for _, f := range strings.Fields(strings.ToLower(s)) {
		out[f] = true
	}
	return out
}
