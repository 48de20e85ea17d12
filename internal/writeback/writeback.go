// Package writeback implements the LanceDB governance-metadata bridge:
// scanning the ledger for memory_store observations with an external
// identifier, deriving a patch, batching updates, and dispatching each
// batch to an opaque external bridge subprocess.
package writeback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"github.com/phenomenoner/openclaw-mem/internal/importance"
	"github.com/phenomenoner/openclaw-mem/internal/ocmerr"
	"github.com/phenomenoner/openclaw-mem/internal/pack"
	"github.com/phenomenoner/openclaw-mem/internal/store"
)

const (
	defaultInspectionLimit = 50
	defaultBatchSize       = 25
)

// legalForceFields is the closed set a caller may name in --force-fields.
var legalForceFields = map[string]bool{
	"importance":       true,
	"importance_label": true,
	"scope":            true,
	"category":         true,
	"trust_tier":       true,
}

var defaultForceFields = []string{"importance", "importance_label", "scope", "category"}

// Options configures one writeback run.
type Options struct {
	DBPath          string
	TableName       string
	BridgeCmd       string
	InspectionLimit int
	BatchSize       int
	DryRun          bool
	Force           bool
	ForceFields     []string
}

func (o Options) resolved() Options {
	if o.InspectionLimit <= 0 {
		o.InspectionLimit = defaultInspectionLimit
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.Force && len(o.ForceFields) == 0 {
		o.ForceFields = append([]string{}, defaultForceFields...)
	}
	return o
}

// Patch is the governance-metadata delta derived for one external record.
type Patch struct {
	ExternalID      string   `json:"externalId"`
	Importance      *float64 `json:"importance,omitempty"`
	ImportanceLabel string   `json:"importanceLabel,omitempty"`
	Scope           string   `json:"scope,omitempty"`
	Category        string   `json:"category,omitempty"`
	TrustTier       string   `json:"trustTier,omitempty"`
}

// BridgeRequest is the JSON payload sent to the external bridge process.
type BridgeRequest struct {
	DBPath         string   `json:"dbPath"`
	TableName      string   `json:"tableName"`
	DryRun         bool     `json:"dryRun"`
	ForceOverwrite bool     `json:"forceOverwrite"`
	ForceFields    []string `json:"forceFields"`
	Updates        []Patch  `json:"updates"`
}

// BridgeResult is the JSON payload read back from one bridge invocation.
type BridgeResult struct {
	Checked           int      `json:"checked"`
	Updated           int      `json:"updated"`
	Overwritten       int      `json:"overwritten"`
	OverwrittenFields []string `json:"overwrittenFields"`
	Skipped           int      `json:"skipped"`
	MissingIDs        []string `json:"missingIds"`
	Errors            int      `json:"errors"`
	ErrorIDs          []string `json:"errorIds"`
}

// Summary aggregates all batch results across one run.
type Summary struct {
	BatchesRun  int            `json:"batches_run"`
	Checked     int            `json:"checked"`
	Updated     int            `json:"updated"`
	Overwritten int            `json:"overwritten"`
	Skipped     int            `json:"skipped"`
	Errors      int            `json:"errors"`
	MissingIDs  []string       `json:"missing_ids,omitempty"`
	ErrorIDs    []string       `json:"error_ids,omitempty"`
	Batches     []BridgeResult `json:"batches,omitempty"`
}

func validateForceFields(fields []string) error {
	for _, f := range fields {
		if !legalForceFields[f] {
			return ocmerr.Validation("writeback.force-fields", "unrecognized force-overwrite field: "+f)
		}
	}
	return nil
}

// Run scans the ledger, derives patches, batches them, and dispatches
// each batch to the external bridge. Invalid force-fields are rejected
// before any child process is spawned.
func Run(ctx context.Context, s *store.Store, opts Options) (Summary, error) {
	opts = opts.resolved()
	if err := validateForceFields(opts.ForceFields); err != nil {
		return Summary{}, err
	}
	if opts.BridgeCmd == "" {
		return Summary{}, ocmerr.Validation("writeback.bridge-cmd", "bridge command is required")
	}

	rows, err := s.Recent(ctx, opts.InspectionLimit, "memory_store")
	if err != nil {
		return Summary{}, ocmerr.New(ocmerr.KindStorageTransient, "writeback.scan", err)
	}

	var patches []Patch
	for _, o := range rows {
		var detail map[string]any
		_ = json.Unmarshal([]byte(o.DetailJSON), &detail)
		extID := extractExternalID(detail, o.Summary)
		if extID == "" {
			continue
		}
		patches = append(patches, derivePatch(extID, detail))
	}

	summary := Summary{}
	for i := 0; i < len(patches); i += opts.BatchSize {
		end := i + opts.BatchSize
		if end > len(patches) {
			end = len(patches)
		}
		batch := patches[i:end]
		result, err := dispatchBatch(ctx, opts, batch)
		if err != nil {
			return summary, ocmerr.New(ocmerr.KindExternalBridge, "writeback.dispatch", err)
		}
		summary.BatchesRun++
		summary.Checked += result.Checked
		summary.Updated += result.Updated
		summary.Overwritten += result.Overwritten
		summary.Skipped += result.Skipped
		summary.Errors += result.Errors
		summary.MissingIDs = append(summary.MissingIDs, result.MissingIDs...)
		summary.ErrorIDs = append(summary.ErrorIDs, result.ErrorIDs...)
		summary.Batches = append(summary.Batches, result)
	}
	return summary, nil
}

// extractExternalID searches detail (and common nested wrapper fields),
// then the raw summary, for a UUID-shaped identifier.
func extractExternalID(detail map[string]any, summary string) string {
	if id, ok := findUUID(detail); ok {
		return id
	}
	for _, key := range []string{"result", "response", "output", "payload", "memory", "data"} {
		if nested, ok := detail[key].(map[string]any); ok {
			if id, ok := findUUID(nested); ok {
				return id
			}
		}
	}
	if id, ok := scanUUIDInString(summary); ok {
		return id
	}
	return ""
}

var uuidKeys = []string{"id", "uuid", "externalId", "external_id", "memoryId", "memory_id", "recordId", "record_id"}

func findUUID(m map[string]any) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, k := range uuidKeys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				if _, err := uuid.Parse(s); err == nil {
					return s, true
				}
			}
		}
	}
	for _, v := range m {
		if s, ok := v.(string); ok {
			if id, ok := scanUUIDInString(s); ok {
				return id, true
			}
		}
	}
	return "", false
}

func scanUUIDInString(s string) (string, bool) {
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '"' || r == '\'' || r == ':'
	}) {
		tok = strings.Trim(tok, "{}[]")
		if _, err := uuid.Parse(tok); err == nil {
			return tok, true
		}
	}
	return "", false
}

func derivePatch(externalID string, detail map[string]any) Patch {
	p := Patch{ExternalID: externalID}
	if raw, ok := detail["importance"]; ok {
		rec := importance.Parse(raw)
		score := clamp01(rec.Score)
		p.Importance = &score
		p.ImportanceLabel = string(rec.Label)
	}
	if v, ok := detail["scope"].(string); ok {
		p.Scope = v
	}
	if v, ok := detail["category"].(string); ok {
		p.Category = v
	}
	p.TrustTier = string(pack.NormalizeTrust(detail))
	return p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dispatchBatch(ctx context.Context, opts Options, batch []Patch) (BridgeResult, error) {
	req := BridgeRequest{
		DBPath:         opts.DBPath,
		TableName:      opts.TableName,
		DryRun:         opts.DryRun,
		ForceOverwrite: opts.Force,
		ForceFields:    opts.ForceFields,
		Updates:        batch,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return BridgeResult{}, fmt.Errorf("writeback: marshal request: %w", err)
	}

	fields := strings.Fields(opts.BridgeCmd)
	if len(fields) == 0 {
		return BridgeResult{}, fmt.Errorf("writeback: empty bridge command")
	}
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return BridgeResult{}, fmt.Errorf("writeback: bridge process failed: %w (stderr: %s)", err, stderr.String())
	}

	var result BridgeResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return BridgeResult{}, fmt.Errorf("writeback: malformed bridge output: %w", err)
	}
	return result, nil
}
