package pack

import "time"

// Trace is the pack.trace.v1 structured audit record. Field names and
// nesting are a stable contract (spec §9): never remove or rename a field
// in v1; new fields require a new schema tag.
type Trace struct {
	Kind    string       `json:"kind"`
	TS      string       `json:"ts"`
	Version versionBlock `json:"version"`

	Query queryBlock `json:"query"`

	Budgets budgetsBlock `json:"budgets"`
	Lanes   []lane       `json:"lanes"`

	Candidates []candidateTrace `json:"candidates"`
	Output     outputBlock      `json:"output"`
	Timing     timingBlock      `json:"timing"`
}

type versionBlock struct {
	Schema    string `json:"schema"`
	Component int    `json:"component"`
}

type queryBlock struct {
	Text  string  `json:"text"`
	Scope *string `json:"scope"`
	Intent *string `json:"intent"`
}

type budgetsBlock struct {
	BudgetTokens int `json:"budgetTokens"`
	MaxItems     int `json:"maxItems"`
	MaxL2Items   int `json:"maxL2Items"`
	NiceCap      int `json:"niceCap"`
}

type retriever struct {
	Name string `json:"name"`
	TopK int    `json:"topK,omitempty"`
	K    int    `json:"k,omitempty"`
}

type lane struct {
	Name       string      `json:"name"`
	Source     string      `json:"source"`
	Searched   bool        `json:"searched"`
	Retrievers []retriever `json:"retrievers,omitempty"`
}

type decision struct {
	Included  bool     `json:"included"`
	Reason    []string `json:"reason"`
	Rationale []string `json:"rationale"`
	Caps      capsInfo `json:"caps"`
}

type capsInfo struct {
	NiceCapHit bool `json:"niceCapHit"`
	L2CapHit   bool `json:"l2CapHit"`
}

type candidateTrace struct {
	ID         string     `json:"id"`
	Layer      string     `json:"layer"`
	Importance string     `json:"importance"`
	Trust      string     `json:"trust"`
	RRF        float64    `json:"rrfScore"`
	FTS        bool       `json:"ftsMatch"`
	Vec        bool       `json:"vectorMatch"`
	Decision   decision   `json:"decision"`
	Citations  []Citation `json:"citations"`
}

type coverageBlock struct {
	AllIncludedHaveRationale bool `json:"allIncludedHaveRationale"`
	AllIncludedHaveCitation  bool `json:"allIncludedHaveCitation"`
}

type outputBlock struct {
	IncludedCount        int           `json:"includedCount"`
	ExcludedCount        int           `json:"excludedCount"`
	L2IncludedCount      int           `json:"l2IncludedCount"`
	CitationsCount       int           `json:"citationsCount"`
	RefreshedRecordRefs  []string      `json:"refreshedRecordRefs"`
	Coverage             coverageBlock `json:"coverage"`
}

type timingBlock struct {
	DurationMs int64 `json:"durationMs"`
}

func decisionBlock(included bool, reasons []string) decision {
	return decision{
		Included:  included,
		Reason:    reasons,
		Rationale: append([]string{}, reasons...),
		Caps:      capsInfo{},
	}
}

func newTrace(req Request, query string, budget, limit int) *Trace {
	return &Trace{
		Kind:    "openclaw-mem.pack.trace.v1",
		TS:      time.Now().UTC().Format(time.RFC3339),
		Version: versionBlock{Schema: traceSchema, Component: componentVersion},
		Query:   queryBlock{Text: query},
		Budgets: budgetsBlock{BudgetTokens: budget, MaxItems: limit, MaxL2Items: 0, NiceCap: 100},
		Lanes: []lane{
			{Name: "hot", Source: "session/recent", Searched: false},
			{Name: "warm", Source: "ledger", Searched: true, Retrievers: []retriever{
				{Name: "fts5", TopK: limit * 2},
				{Name: "vector", TopK: limit * 2},
				{Name: "rrf", K: 60},
			}},
			{Name: "cold", Source: "curated/durable", Searched: false},
		},
	}
}

func (t *Trace) finalize(result Result, dur time.Duration) {
	refs := make([]string, len(result.Items))
	for i, it := range result.Items {
		refs[i] = it.RecordRef
	}
	included := len(result.Items)
	excluded := len(t.Candidates) - included
	if excluded < 0 {
		excluded = 0
	}
	allRationale := true
	allCitation := true
	for _, ct := range t.Candidates {
		if ct.Decision.Included {
			if len(ct.Decision.Rationale) == 0 {
				allRationale = false
			}
		}
	}
	if included != len(result.Citations) {
		allCitation = false
	}
	t.Output = outputBlock{
		IncludedCount:       included,
		ExcludedCount:       excluded,
		L2IncludedCount:     0,
		CitationsCount:      len(result.Citations),
		RefreshedRecordRefs: refs,
		Coverage: coverageBlock{
			AllIncludedHaveRationale: allRationale,
			AllIncludedHaveCitation:  allCitation,
		},
	}
	t.Timing = timingBlock{DurationMs: dur.Milliseconds()}
}
