package pack

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/phenomenoner/openclaw-mem/internal/retrieve"
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

func TestBuildRejectsEmptyQuery(t *testing.T) {
	s := openTestStore(t)
	_, err := Build(context.Background(), s, retrieve.QueryVector{}, Request{Query: "   "})
	require.Error(t, err)
}

func TestBuildTinyBudgetTraceShape(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, store.InsertInput{Summary: "test"})
	require.NoError(t, err)

	res, err := Build(ctx, s, retrieve.QueryVector{}, Request{Query: "test", BudgetTokens: 1, Trace: true})
	require.NoError(t, err)
	require.NotNil(t, res.Trace)
	require.Equal(t, "openclaw-mem.pack.trace.v1", res.Trace.Kind)
	require.Equal(t, 1, res.Trace.Output.IncludedCount)
	require.Equal(t, []string{"obs:1"}, res.Trace.Output.RefreshedRecordRefs)

	_, err = s.Insert(ctx, store.InsertInput{Summary: "a second much longer test observation that will not fit in the tiny remaining token budget at all"})
	require.NoError(t, err)
	res2, err := Build(ctx, s, retrieve.QueryVector{}, Request{Query: "test", BudgetTokens: 1, Trace: true})
	require.NoError(t, err)
	require.Equal(t, 1, res2.Trace.Output.IncludedCount)

	var excludedReasons []string
	for _, c := range res2.Trace.Candidates {
		if !c.Decision.Included {
			excludedReasons = c.Decision.Reason
		}
	}
	require.Contains(t, excludedReasons, ReasonBudgetTokensExceeded)
}

func TestBuildTraceReportsTrustTier(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, store.InsertInput{Summary: "no secrets here", Detail: map[string]any{"trust": "trusted"}})
	require.NoError(t, err)

	res, err := Build(ctx, s, retrieve.QueryVector{}, Request{Query: "secrets", Trace: true})
	require.NoError(t, err)
	require.Equal(t, "trusted", res.Trace.Candidates[0].Trust)
}
