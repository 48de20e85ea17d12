package retrieve

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/phenomenoner/openclaw-mem/internal/store"
	"github.com/stretchr/testify/require"
)

var errRerankBoom = errors.New("rerank boom")

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLexicalOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id1, err := s.Insert(ctx, store.InsertInput{ToolName: "cron.list", Summary: "cron list called"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, store.InsertInput{ToolName: "gateway.config.get", Summary: "gateway config fetched"})
	require.NoError(t, err)

	resp, err := Run(ctx, s, QueryVector{}, Options{Query: "cron", Limit: 10}, NoopReranker{})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.Equal(t, id1, resp.Items[0].ID)
	require.True(t, resp.Items[0].MatchedFTS)
}

func TestRunVectorLane(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id1, err := s.Insert(ctx, store.InsertInput{Summary: "alpha"})
	require.NoError(t, err)
	id2, err := s.Insert(ctx, store.InsertInput{Summary: "beta"})
	require.NoError(t, err)
	require.NoError(t, s.PutEmbedding(ctx, store.EmbeddingSummary, id1, "m1", []float32{1, 0, 0}))
	require.NoError(t, s.PutEmbedding(ctx, store.EmbeddingSummary, id2, "m1", []float32{0, 1, 0}))

	resp, err := Run(ctx, s, QueryVector{Vector: []float32{1, 0, 0}}, Options{Query: "", Limit: 10, Model: "m1"}, NoopReranker{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items)
	require.Equal(t, id1, resp.Items[0].ID)
}

func TestCandidateLimit(t *testing.T) {
	require.Equal(t, 20, candidateLimit(10, 0, 0))
	require.Equal(t, 30, candidateLimit(10, 10, 0))
	require.Equal(t, 5, candidateLimit(10, 0, 5))
}

type erroringReranker struct{}

func (erroringReranker) Rerank(_ context.Context, _ string, ids []int64, _ []string) ([]int64, error) {
	return nil, errRerankBoom
}

func TestRunRerankFailsOpen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id1, err := s.Insert(ctx, store.InsertInput{ToolName: "cron.list", Summary: "cron list called"})
	require.NoError(t, err)

	resp, err := Run(ctx, s, QueryVector{}, Options{Query: "cron", Limit: 10, RerankProvider: "jina"}, erroringReranker{})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.Equal(t, id1, resp.Items[0].ID)
	require.NotEmpty(t, resp.FailOpenWarnings)
	require.Empty(t, resp.Warnings, "fail-open rerank diagnostics must not land in Warnings")
	require.Equal(t, "jina", resp.Items[0].RerankProvider)
}
