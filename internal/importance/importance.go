// Package importance implements the canonical ImportanceRecord shape, a
// tolerant parser for legacy inputs, and the deterministic heuristic-v1
// grader described in spec §4.2.
package importance

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Label is the closed set of importance labels. It is a tagged enum rather
// than a bare string so callers cannot construct an illegal value by
// accident; Unknown is the explicit fallthrough for ambiguous inputs.
type Label string

const (
	MustRemember Label = "must_remember"
	NiceToHave   Label = "nice_to_have"
	Ignore       Label = "ignore"
	Unknown      Label = "unknown"
)

// Record is the canonical importance object embedded at detail.importance.
type Record struct {
	Score     float64   `json:"score"`
	Label     Label     `json:"label"`
	Rationale string    `json:"rationale"`
	Method    string    `json:"method"`
	Version   int       `json:"version"`
	GradedAt  time.Time `json:"graded_at"`
}

// LabelFromScore derives the label from a score via the fixed thresholds:
// score >= 0.80 -> must_remember; 0.50 <= score < 0.80 -> nice_to_have;
// score < 0.50 -> ignore.
func LabelFromScore(score float64) Label {
	switch {
	case score >= 0.80:
		return MustRemember
	case score >= 0.50:
		return NiceToHave
	default:
		return Ignore
	}
}

var labelAliases = map[string]Label{
	"must_remember":  MustRemember,
	"must remember":  MustRemember,
	"must-remember":  MustRemember,
	"high":           MustRemember,
	"nice_to_have":   NiceToHave,
	"nice to have":   NiceToHave,
	"nice-to-have":   NiceToHave,
	"medium":         NiceToHave,
	"ignore":         Ignore,
	"low":            Ignore,
	"unknown":        Unknown,
}

// ParseLabel normalizes a label string, accepting common aliases and
// Unicode-width variants (full-width forms are folded to ASCII before
// matching). Unrecognized input yields Unknown.
func ParseLabel(s string) Label {
	s = strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
	if lbl, ok := labelAliases[s]; ok {
		return lbl
	}
	return Unknown
}

// ParseScore tolerantly extracts a score in [0,1] from an arbitrary value.
// Nulls, booleans, non-finite numbers, and unrecognized strings all yield
// 0.0 rather than an error; parsing never panics or returns an error.
func ParseScore(x any) float64 {
	switch v := x.(type) {
	case nil:
		return 0.0
	case bool:
		return 0.0
	case float64:
		return clampScore(v)
	case float32:
		return clampScore(float64(v))
	case int:
		return clampScore(float64(v))
	case int64:
		return clampScore(float64(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0.0
		}
		return clampScore(f)
	default:
		return 0.0
	}
}

func clampScore(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Parse tolerantly builds a Record from legacy shapes: a bare number (score
// only, label derived), a bare label string, a partial object (map with
// some of score/label/rationale/method/version), or nil. Parsing never
// throws; ambiguous input yields score 0.0 and label Unknown.
func Parse(x any) Record {
	switch v := x.(type) {
	case nil:
		return Record{Score: 0, Label: Unknown}
	case float64, float32, int, int64:
		score := ParseScore(v)
		return Record{Score: score, Label: LabelFromScore(score)}
	case string:
		// Try as a bare numeric score first, then as a bare label.
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			score := clampScore(f)
			return Record{Score: score, Label: LabelFromScore(score)}
		}
		lbl := ParseLabel(v)
		if lbl == Unknown {
			return Record{Score: 0, Label: Unknown}
		}
		return Record{Score: labelDefaultScore(lbl), Label: lbl}
	case map[string]any:
		return parseObject(v)
	default:
		return Record{Score: 0, Label: Unknown}
	}
}

func labelDefaultScore(lbl Label) float64 {
	switch lbl {
	case MustRemember:
		return 0.85
	case NiceToHave:
		return 0.60
	case Ignore:
		return 0.20
	default:
		return 0
	}
}

func parseObject(m map[string]any) Record {
	rec := Record{Label: Unknown}
	hasScore := false
	if s, ok := m["score"]; ok {
		rec.Score = ParseScore(s)
		hasScore = true
	}
	if l, ok := m["label"]; ok {
		if s, ok := l.(string); ok {
			rec.Label = ParseLabel(s)
		}
	}
	if rec.Label == Unknown && hasScore {
		rec.Label = LabelFromScore(rec.Score)
	}
	if r, ok := m["rationale"]; ok {
		if s, ok := r.(string); ok {
			rec.Rationale = s
		}
	}
	if meth, ok := m["method"]; ok {
		if s, ok := meth.(string); ok {
			rec.Method = s
		}
	}
	if ver, ok := m["version"]; ok {
		switch v := ver.(type) {
		case float64:
			rec.Version = int(v)
		case int:
			rec.Version = v
		}
	}
	if ga, ok := m["graded_at"]; ok {
		if s, ok := ga.(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				rec.GradedAt = t
			}
		}
	}
	if !hasScore && rec.Label == Unknown {
		return Record{Score: 0, Label: Unknown}
	}
	return rec
}
