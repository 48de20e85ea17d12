package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.Insert(ctx, InsertInput{ToolName: "cron.list", Summary: "cron list called"})
	require.NoError(t, err)
	id2, err := s.Insert(ctx, InsertInput{ToolName: "gateway.config.get", Summary: "gateway config fetched"})
	require.NoError(t, err)

	obs, err := s.Get(ctx, []int64{id1, id2})
	require.NoError(t, err)
	require.Len(t, obs, 2)
	require.Equal(t, "cron list called", obs[0].Summary)
	require.Equal(t, "{}", obs[0].DetailJSON)
}

func TestInsertStampsTimestampWhenAbsent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.Insert(ctx, InsertInput{Summary: "no ts given"})
	require.NoError(t, err)
	obs, _, err := s.GetOne(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, obs.TS)
}

func TestInsertDetailCoercion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, InsertInput{Summary: "scalar detail", Detail: 42})
	require.NoError(t, err)
	obs, _, err := s.GetOne(ctx, id)
	require.NoError(t, err)
	require.Contains(t, obs.DetailJSON, "_detail")

	id2, err := s.Insert(ctx, InsertInput{Summary: "string detail", Detail: "raw"})
	require.NoError(t, err)
	obs2, _, err := s.GetOne(ctx, id2)
	require.NoError(t, err)
	require.Contains(t, obs2.DetailJSON, "_raw_detail")
}

func TestFTSSearchFindsMatchingTool(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.Insert(ctx, InsertInput{ToolName: "cron.list", Summary: "cron list called"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, InsertInput{ToolName: "gateway.config.get", Summary: "gateway config fetched"})
	require.NoError(t, err)

	results, err := s.SearchFTS(ctx, "cron", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, id1, results[0].ID)
}

func TestTimelineWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id1, err := s.Insert(ctx, InsertInput{Summary: "one"})
	require.NoError(t, err)
	id2, err := s.Insert(ctx, InsertInput{Summary: "two"})
	require.NoError(t, err)

	rows, err := s.Timeline(ctx, id1, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, id1, rows[0].ID)
	require.Equal(t, id2, rows[1].ID)
}

func TestCJKFallback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.Insert(ctx, InsertInput{Summary: "我今天在台北開產品會議，晚上再整理筆記。"})
	require.NoError(t, err)

	ftsResults, err := s.SearchFTS(ctx, "今天會議在什麼城市", 10)
	require.NoError(t, err)
	require.Empty(t, ftsResults)

	likeResults, err := s.SearchLikeCJK(ctx, "今天會議在什麼城市", 10)
	require.NoError(t, err)
	require.NotEmpty(t, likeResults)
	require.Equal(t, id, likeResults[0].ID)
}

func TestEmbeddingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.Insert(ctx, InsertInput{Summary: "vector me"})
	require.NoError(t, err)

	require.NoError(t, s.PutEmbedding(ctx, EmbeddingSummary, id, "test-model", []float32{1, 2, 3}))
	rows, err := s.RowsByModel(ctx, EmbeddingSummary, "test-model")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, id, rows[0].ID)

	models, err := s.DistinctModels(ctx, EmbeddingSummary)
	require.NoError(t, err)
	require.Equal(t, []string{"test-model"}, models)
}

func TestGitCaptureSeen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seen, err := s.GitSeen(ctx, "repo", "sha1")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, s.MarkGitSeen(ctx, "repo", "sha1", "2026-01-01T00:00:00Z"))
	seen, err = s.GitSeen(ctx, "repo", "sha1")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestScrubSurrogatesValidatesUTF8(t *testing.T) {
	bad := string([]byte{0xed, 0xa0, 0x80})
	require.NotEqual(t, bad, ScrubSurrogates(bad))
}
