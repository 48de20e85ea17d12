// Package ingest turns a line-delimited JSON stream into store rows,
// normalizing fields, folding unrecognized keys into detail, and optionally
// autograding importance.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/phenomenoner/openclaw-mem/internal/importance"
	"github.com/phenomenoner/openclaw-mem/internal/store"
)

// canonical top-level keys that map directly onto store.InsertInput fields.
// Anything else on a record is folded into detail.
var canonicalKeys = map[string]bool{
	"ts": true, "kind": true, "summary": true, "summary_en": true,
	"lang": true, "tool_name": true, "detail": true,
}

// ScorerSetting selects the autograde behavior for a run.
type ScorerSetting string

const (
	ScorerHeuristicV1 ScorerSetting = "heuristic-v1"
	ScorerDisabled    ScorerSetting = "disabled"
)

var disableSentinels = map[string]bool{
	"off": true, "none": true, "disable": true, "disabled": true, "0": true,
}

// ResolveScorer maps a raw configured scorer name to a ScorerSetting.
// Unrecognized names disable autograde rather than erroring, matching the
// pipeline's fail-open posture (see DESIGN.md Open Questions).
func ResolveScorer(raw string) ScorerSetting {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" || disableSentinels[name] {
		return ScorerDisabled
	}
	if name == string(ScorerHeuristicV1) {
		return ScorerHeuristicV1
	}
	return ScorerDisabled
}

// Summary is the run-summary receipt returned by Run.
type Summary struct {
	TotalSeen       int            `json:"total_seen"`
	GradedFilled    int            `json:"graded_filled"`
	SkippedExisting int            `json:"skipped_existing"`
	SkippedDisabled int            `json:"skipped_disabled"`
	ScorerErrors    int            `json:"scorer_errors"`
	LabelCounts     map[string]int `json:"label_counts"`
	Inserted        int            `json:"inserted"`
	InsertedIDs     []int64        `json:"inserted_ids"`
	Warnings        []string       `json:"warnings,omitempty"`
}

func newSummary() *Summary {
	return &Summary{LabelCounts: map[string]int{}}
}

func (s *Summary) binLabel(lbl importance.Label) {
	s.LabelCounts[string(lbl)]++
}

func (s *Summary) addInserted(id int64) {
	s.Inserted++
	if len(s.InsertedIDs) < 50 {
		s.InsertedIDs = append(s.InsertedIDs, id)
	}
}

// rawRecord is one decoded line-delimited JSON object prior to
// normalization.
type rawRecord map[string]any

// Run reads line-delimited JSON objects from r, normalizes and (optionally)
// grades each, and inserts them into s. scorer is the resolved setting for
// this invocation.
func Run(ctx context.Context, s *store.Store, r io.Reader, scorer ScorerSetting) (*Summary, error) {
	sum := newSummary()
	dec := json.NewDecoder(bufio.NewReaderSize(r, 64*1024))
	for {
		var raw rawRecord
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return sum, fmt.Errorf("ingest: decode: %w", err)
		}
		sum.TotalSeen++
		in, detail := normalize(raw)

		if existing, ok := detail["importance"]; ok {
			sum.SkippedExisting++
			rec := importance.Parse(existing)
			sum.binLabel(rec.Label)
		} else if scorer == ScorerHeuristicV1 {
			rec, err := importance.Grade(importance.GradeInput{
				Kind:      in.Kind,
				ToolName:  in.ToolName,
				Summary:   in.Summary,
				SummaryEN: in.SummaryEN,
			})
			if err != nil {
				sum.ScorerErrors++
				sum.Warnings = append(sum.Warnings, fmt.Sprintf("grade failed for record %d: %v", sum.TotalSeen, err))
			} else {
				detail["importance"] = map[string]any{
					"score":     rec.Score,
					"label":     string(rec.Label),
					"rationale": rec.Rationale,
					"method":    rec.Method,
					"version":   rec.Version,
					"graded_at": rec.GradedAt.Format(time.RFC3339),
				}
				sum.GradedFilled++
				sum.binLabel(rec.Label)
			}
		} else {
			sum.SkippedDisabled++
		}

		in.Detail = detail
		id, err := s.Insert(ctx, in)
		if err != nil {
			return sum, fmt.Errorf("ingest: insert record %d: %w", sum.TotalSeen, err)
		}
		sum.addInserted(id)
	}
	return sum, nil
}

// normalize splits a decoded record into its canonical InsertInput fields
// and a detail map, folding any non-canonical top-level key into detail.
func normalize(raw rawRecord) (store.InsertInput, map[string]any) {
	in := store.InsertInput{
		TS:        stringField(raw, "ts"),
		Kind:      stringField(raw, "kind"),
		Summary:   stringField(raw, "summary"),
		SummaryEN: stringField(raw, "summary_en"),
		Lang:      stringField(raw, "lang"),
		ToolName:  stringField(raw, "tool_name"),
	}

	detail := map[string]any{}
	if d, ok := raw["detail"]; ok {
		if m, ok := d.(map[string]any); ok {
			for k, v := range m {
				detail[k] = v
			}
		} else if d != nil {
			detail["_detail"] = d
		}
	}
	for k, v := range raw {
		if canonicalKeys[k] {
			continue
		}
		detail[k] = v
	}
	return in, detail
}

func stringField(raw rawRecord, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
