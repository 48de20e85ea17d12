package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

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

func TestResolveScorer(t *testing.T) {
	require.Equal(t, ScorerHeuristicV1, ResolveScorer("heuristic-v1"))
	require.Equal(t, ScorerDisabled, ResolveScorer("off"))
	require.Equal(t, ScorerDisabled, ResolveScorer("0"))
	require.Equal(t, ScorerDisabled, ResolveScorer(""))
	require.Equal(t, ScorerDisabled, ResolveScorer("totally-unknown-scorer"))
}

func TestRunBasicInsertAndFolding(t *testing.T) {
	s := openTestStore(t)
	input := `{"tool_name":"cron.list","summary":"cron list called","extra_field":"x"}
{"tool_name":"gateway.config.get","summary":"gateway config fetched"}
`
	sum, err := Run(context.Background(), s, strings.NewReader(input), ScorerDisabled)
	require.NoError(t, err)
	require.Equal(t, 2, sum.TotalSeen)
	require.Equal(t, 2, sum.Inserted)
	require.Equal(t, 2, sum.SkippedDisabled)
	require.Len(t, sum.InsertedIDs, 2)

	obs, ok, err := s.GetOne(context.Background(), sum.InsertedIDs[0])
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, obs.DetailJSON, "extra_field")
}

func TestRunSkipsExistingImportance(t *testing.T) {
	s := openTestStore(t)
	input := `{"summary":"already graded","detail":{"importance":{"score":0.9,"label":"must_remember"}}}
`
	sum, err := Run(context.Background(), s, strings.NewReader(input), ScorerHeuristicV1)
	require.NoError(t, err)
	require.Equal(t, 1, sum.SkippedExisting)
	require.Equal(t, 0, sum.GradedFilled)
	require.Equal(t, 1, sum.LabelCounts["must_remember"])
}

func TestRunAutogradesWithHeuristic(t *testing.T) {
	s := openTestStore(t)
	input := `{"summary":"I always prefer tabs over spaces, this is policy."}
`
	sum, err := Run(context.Background(), s, strings.NewReader(input), ScorerHeuristicV1)
	require.NoError(t, err)
	require.Equal(t, 1, sum.GradedFilled)
	require.Equal(t, 0, sum.ScorerErrors)

	obs, _, err := s.GetOne(context.Background(), sum.InsertedIDs[0])
	require.NoError(t, err)
	require.Contains(t, obs.DetailJSON, "\"importance\"")
	require.Contains(t, obs.DetailJSON, "heuristic-v1")
	require.Contains(t, obs.DetailJSON, "\"graded_at\"")
}
