package defaults

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyFillsEmptyFields(t *testing.T) {
	home, state, cfgPath, db, embed, summary, rerank, baseURL := "/home/u", "", "", "", "", "", "", ""
	Apply(&home, &state, &cfgPath, &db, &embed, &summary, &rerank, &baseURL)

	require.Equal(t, "/home/u/.openclaw-mem", state)
	require.Equal(t, "/home/u/.openclaw-mem/config.yaml", cfgPath)
	require.Equal(t, "/home/u/.openclaw-mem/observations.db", db)
	require.Equal(t, DefaultEmbeddingModel, embed)
	require.Equal(t, DefaultSummaryModel, summary)
	require.Equal(t, DefaultRerankModel, rerank)
	require.Equal(t, DefaultBaseURL, baseURL)
}

func TestApplyPreservesExplicitValues(t *testing.T) {
	home, state, cfgPath, db := "/home/u", "/custom/state", "/custom/cfg.yaml", "/custom/db.sqlite"
	embed, summary, rerank, baseURL := "custom-embed", "custom-summary", "custom-rerank", "https://example.test"
	Apply(&home, &state, &cfgPath, &db, &embed, &summary, &rerank, &baseURL)

	require.Equal(t, "/custom/state", state)
	require.Equal(t, "/custom/cfg.yaml", cfgPath)
	require.Equal(t, "/custom/db.sqlite", db)
	require.Equal(t, "custom-embed", embed)
}
