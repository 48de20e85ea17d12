package graph

import (
	"context"
	"path/filepath"
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

func TestBuildIndexPackExpandsNeighborhood(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ids := make([]int64, 0, 5)
	for i := 0; i < 5; i++ {
		id, err := s.Insert(ctx, store.InsertInput{Summary: "gateway config rollout notes"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	idx, err := BuildIndexPack(ctx, s, "gateway", 10, 2, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, idx.Candidates)
	require.NotEmpty(t, idx.Suggestions)
	require.Contains(t, idx.Text, "IndexPack for")
}

func TestBuildContextPackDedupsAndBudgets(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id1, err := s.Insert(ctx, store.InsertInput{Summary: "first observation"})
	require.NoError(t, err)
	id2, err := s.Insert(ctx, store.InsertInput{Summary: "second observation much longer text to push past a tiny budget"})
	require.NoError(t, err)

	pack, err := BuildContextPack(ctx, s, []int64{id1, id1, id2}, 1000)
	require.NoError(t, err)
	require.Equal(t, []int64{id1, id2}, pack.IDs)

	tiny, err := BuildContextPack(ctx, s, []int64{id1, id2}, 1)
	require.NoError(t, err)
	require.LessOrEqual(t, len(tiny.IDs), 1)
}

func TestTruncateHardCap(t *testing.T) {
	s := "0123456789"
	require.Equal(t, "01234", truncate(s, 2))
	require.Equal(t, "", truncate(s, 0))
}

func TestPreflightComposesIndexAndContext(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, store.InsertInput{Summary: "cron job failure detected"})
	require.NoError(t, err)

	pack, err := Preflight(ctx, s, "cron", 10, 2, 5, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, pack.IDs)
}

func TestSemanticRecallRankParsesObsTokensAndRanksByOverlap(t *testing.T) {
	snippets := []string{
		"obs#42 gateway config rollout notes",
		"obs#7 unrelated text about nothing",
	}
	ranked := SemanticRecallRank("gateway rollout", snippets)
	require.Equal(t, []int64{42, 7}, ranked)
}
