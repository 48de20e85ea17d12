// Package triage implements the deterministic local heartbeat scanner:
// observations, cron-errors, and tasks modes, with watermark-based
// deduplication persisted to an atomically-written JSON state file.
package triage

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/phenomenoner/openclaw-mem/internal/atomicfile"
	"github.com/phenomenoner/openclaw-mem/internal/importance"
	"github.com/phenomenoner/openclaw-mem/internal/store"
)

// Mode selects which scan(s) a run performs.
type Mode string

const (
	ModeHeartbeat    Mode = "heartbeat"
	ModeObservations Mode = "observations"
	ModeCronErrors   Mode = "cron-errors"
	ModeTasks        Mode = "tasks"
)

var defaultKeywords = []string{
	"error", "failed", "exception", "traceback", "timeout", "rate_limit",
	"unauthorized", "forbidden", "not allowed", "db locked",
}

// State is the persisted watermark file (spec §3, TriageState).
type State struct {
	Observations struct {
		LastAlertedID int64 `json:"last_alerted_id"`
	} `json:"observations"`
	Tasks struct {
		LastAlertedID int64 `json:"last_alerted_id"`
	} `json:"tasks"`
	Cron struct {
		LastAlertedBadRunAtMS int64 `json:"last_alerted_bad_run_at_ms"`
	} `json:"cron"`
}

// LoadState reads the state file, returning a zero-value State if absent.
func LoadState(path string) (State, error) {
	var s State
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, err
	}
	return s, nil
}

// SaveState persists the state file atomically.
func SaveState(path string, s State) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, b, 0o644)
}

// ObservationHit is one flagged row in observations mode.
type ObservationHit struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts"`
	ToolName string `json:"tool_name"`
	Summary  string `json:"summary"`
}

// CronJob is one job record read from the external job-store JSON file.
type CronJob struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	LastStatus   string `json:"last_status"`
	LastRunAtMS  int64  `json:"last_run_at_ms"`
	DurationMS   int64  `json:"duration_ms"`
}

// TaskHit is one flagged task-like observation.
type TaskHit struct {
	ID         int64   `json:"id"`
	TS         string  `json:"ts"`
	Summary    string  `json:"summary"`
	Importance float64 `json:"importance"`
	Label      string  `json:"label"`
}

// Report is the run result: NeedsAttention drives the exit-code policy
// (10 if true, 0 otherwise).
type Report struct {
	NeedsAttention bool             `json:"needs_attention"`
	Observations   []ObservationHit `json:"observations,omitempty"`
	CronErrors     []CronJob        `json:"cron_errors,omitempty"`
	Tasks          []TaskHit        `json:"tasks,omitempty"`
}

// Options configures one triage run.
type Options struct {
	Mode                Mode
	ObservationsWindow  time.Duration
	TasksWindow         time.Duration
	Keywords            []string
	ImportanceThreshold float64
	JobStorePath        string
	Now                 time.Time
}

func (o Options) resolved() Options {
	if o.ObservationsWindow <= 0 {
		o.ObservationsWindow = 60 * time.Minute
	}
	if o.TasksWindow <= 0 {
		o.TasksWindow = 24 * time.Hour
	}
	if len(o.Keywords) == 0 {
		o.Keywords = defaultKeywords
	}
	if o.ImportanceThreshold <= 0 {
		o.ImportanceThreshold = 0.7
	}
	if o.Now.IsZero() {
		o.Now = time.Now().UTC()
	}
	return o
}

// Run executes the requested mode(s) against s, advancing and persisting
// state only when new items are found (watermarks advance past reported
// items regardless, so a subsequent run never re-reports the same item).
func Run(ctx context.Context, s *store.Store, statePath string, opts Options) (Report, error) {
	opts = opts.resolved()
	state, err := LoadState(statePath)
	if err != nil {
		return Report{}, err
	}
	var report Report

	runObservations := opts.Mode == ModeHeartbeat || opts.Mode == ModeObservations
	runCron := opts.Mode == ModeHeartbeat || opts.Mode == ModeCronErrors
	runTasks := opts.Mode == ModeHeartbeat || opts.Mode == ModeTasks

	if runObservations {
		hits, maxID, err := scanObservations(ctx, s, opts, state.Observations.LastAlertedID)
		if err != nil {
			return Report{}, err
		}
		if len(hits) > 0 {
			report.Observations = hits
			report.NeedsAttention = true
			state.Observations.LastAlertedID = maxID
		}
	}

	if runCron && opts.JobStorePath != "" {
		jobs, maxTS, err := scanCronErrors(opts, state.Cron.LastAlertedBadRunAtMS)
		if err != nil {
			return Report{}, err
		}
		if len(jobs) > 0 {
			report.CronErrors = jobs
			report.NeedsAttention = true
			state.Cron.LastAlertedBadRunAtMS = maxTS
		}
	}

	if runTasks {
		hits, maxID, err := scanTasks(ctx, s, opts, state.Tasks.LastAlertedID)
		if err != nil {
			return Report{}, err
		}
		if len(hits) > 0 {
			report.Tasks = hits
			report.NeedsAttention = true
			state.Tasks.LastAlertedID = maxID
		}
	}

	if report.NeedsAttention {
		if err := SaveState(statePath, state); err != nil {
			return report, err
		}
	}
	return report, nil
}

func scanObservations(ctx context.Context, s *store.Store, opts Options, watermark int64) ([]ObservationHit, int64, error) {
	cutoff := opts.Now.Add(-opts.ObservationsWindow).Format(time.RFC3339)
	rows, err := s.Recent(ctx, 1000, "")
	if err != nil {
		return nil, watermark, err
	}
	var hits []ObservationHit
	maxID := watermark
	for _, o := range rows {
		if o.ID <= watermark {
			continue
		}
		if o.TS < cutoff {
			continue
		}
		haystack := strings.ToLower(o.Summary + " " + o.ToolName + " " + o.DetailJSON)
		matched := false
		for _, kw := range opts.Keywords {
			if strings.Contains(haystack, strings.ToLower(kw)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		hits = append(hits, ObservationHit{ID: o.ID, TS: o.TS, ToolName: o.ToolName, Summary: o.Summary})
		if o.ID > maxID {
			maxID = o.ID
		}
	}
	return hits, maxID, nil
}

func scanCronErrors(opts Options, watermark int64) ([]CronJob, int64, error) {
	b, err := os.ReadFile(opts.JobStorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, watermark, nil
		}
		return nil, watermark, err
	}
	var jobs []CronJob
	if err := json.Unmarshal(b, &jobs); err != nil {
		return nil, watermark, err
	}
	cutoffMS := opts.Now.Add(-opts.ObservationsWindow).UnixMilli()
	var hits []CronJob
	maxTS := watermark
	for _, j := range jobs {
		if j.LastStatus == "" || j.LastStatus == "ok" {
			continue
		}
		if j.LastRunAtMS < cutoffMS || j.LastRunAtMS <= watermark {
			continue
		}
		hits = append(hits, j)
		if j.LastRunAtMS > maxTS {
			maxTS = j.LastRunAtMS
		}
	}
	return hits, maxTS, nil
}

func scanTasks(ctx context.Context, s *store.Store, opts Options, watermark int64) ([]TaskHit, int64, error) {
	cutoff := opts.Now.Add(-opts.TasksWindow).Format(time.RFC3339)
	rows, err := s.Recent(ctx, 1000, "memory_store")
	if err != nil {
		return nil, watermark, err
	}
	var hits []TaskHit
	maxID := watermark
	for _, o := range rows {
		if o.ID <= watermark || o.TS < cutoff {
			continue
		}
		isTaskKind := o.Kind == "task"
		isTaskMarker := importance.HasTaskMarker(o.Summary)
		if !isTaskKind && !isTaskMarker {
			continue
		}
		var detail map[string]any
		_ = json.Unmarshal([]byte(o.DetailJSON), &detail)
		var rec importance.Record
		if v, ok := detail["importance"]; ok {
			rec = importance.Parse(v)
		}
		if rec.Score < opts.ImportanceThreshold {
			continue
		}
		hits = append(hits, TaskHit{ID: o.ID, TS: o.TS, Summary: o.Summary, Importance: rec.Score, Label: string(rec.Label)})
		if o.ID > maxID {
			maxID = o.ID
		}
	}
	return hits, maxID, nil
}
