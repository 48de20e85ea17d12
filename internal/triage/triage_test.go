package triage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phenomenoner/openclaw-mem/internal/store"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestObservationsModeFlagsKeywordMatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_, err := s.Insert(ctx, store.InsertInput{TS: now.Format(time.RFC3339), Summary: "gateway request unauthorized"})
	require.NoError(t, err)

	statePath := filepath.Join(t.TempDir(), "state.json")
	report, err := Run(ctx, s, statePath, Options{Mode: ModeObservations, Now: now})
	require.NoError(t, err)
	require.True(t, report.NeedsAttention)
	require.Len(t, report.Observations, 1)

	report2, err := Run(ctx, s, statePath, Options{Mode: ModeObservations, Now: now})
	require.NoError(t, err)
	require.False(t, report2.NeedsAttention)
}

func TestTasksModeRespectsImportanceThreshold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_, err := s.Insert(ctx, store.InsertInput{
		TS: now.Format(time.RFC3339), ToolName: "memory_store", Kind: "task",
		Summary: "TODO: ship the release",
		Detail:  map[string]any{"importance": map[string]any{"score": 0.9, "label": "must_remember"}},
	})
	require.NoError(t, err)

	statePath := filepath.Join(t.TempDir(), "state.json")
	report, err := Run(ctx, s, statePath, Options{Mode: ModeTasks, Now: now})
	require.NoError(t, err)
	require.True(t, report.NeedsAttention)
	require.Len(t, report.Tasks, 1)
}

func TestCronErrorsModeReadsJobStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	jobStore := filepath.Join(t.TempDir(), "jobs.json")
	jobs := []CronJob{{ID: "j1", Name: "nightly", Enabled: true, LastStatus: "failed", LastRunAtMS: now.UnixMilli()}}
	b, _ := json.Marshal(jobs)
	require.NoError(t, os.WriteFile(jobStore, b, 0o644))

	statePath := filepath.Join(t.TempDir(), "state.json")
	report, err := Run(ctx, s, statePath, Options{Mode: ModeCronErrors, JobStorePath: jobStore, Now: now})
	require.NoError(t, err)
	require.True(t, report.NeedsAttention)
	require.Len(t, report.CronErrors, 1)
}
