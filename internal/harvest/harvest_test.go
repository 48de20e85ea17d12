package harvest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/phenomenoner/openclaw-mem/internal/ingest"
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

func TestRunRotatesAndIngestsLiveLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "observations.ndjson")
	archiveDir := filepath.Join(dir, "archive")
	require.NoError(t, os.WriteFile(logPath, []byte(
		`{"ts":"2026-07-31T00:00:00Z","kind":"event","summary":"gateway started"}`+"\n"), 0o644))

	s := openTestStore(t)
	receipt, err := Run(context.Background(), s, Options{
		LogPath:      logPath,
		ArchiveDir:   archiveDir,
		Finalization: FinalizationArchive,
		Scorer:       ingest.ScorerDisabled,
	})
	require.NoError(t, err)
	require.True(t, receipt.Rotated)
	require.False(t, receipt.Recovered)
	require.Equal(t, 1, receipt.ProcessedFiles)
	require.Equal(t, 1, receipt.Inserted)

	_, err = os.Stat(logPath)
	require.True(t, os.IsNotExist(err))

	archived, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	require.Len(t, archived, 1)
}

func TestRunRecoversOrphanedProcessingFiles(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "observations.ndjson")
	archiveDir := filepath.Join(dir, "archive")
	orphan := logPath + ".20260101T000000.000000000Z.processing"
	require.NoError(t, os.WriteFile(orphan, []byte(
		`{"ts":"2026-01-01T00:00:00Z","kind":"event","summary":"recovered line"}`+"\n"), 0o644))

	s := openTestStore(t)
	receipt, err := Run(context.Background(), s, Options{
		LogPath:      logPath,
		ArchiveDir:   archiveDir,
		Finalization: FinalizationArchive,
		Scorer:       ingest.ScorerDisabled,
	})
	require.NoError(t, err)
	require.True(t, receipt.Recovered)
	require.False(t, receipt.Rotated)
	require.Equal(t, 1, receipt.ProcessedFiles)
}

func TestRunWithNoLiveLogIsANoop(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "observations.ndjson")
	s := openTestStore(t)
	receipt, err := Run(context.Background(), s, Options{
		LogPath:      logPath,
		ArchiveDir:   filepath.Join(dir, "archive"),
		Finalization: FinalizationArchive,
		Scorer:       ingest.ScorerDisabled,
	})
	require.NoError(t, err)
	require.Equal(t, 0, receipt.ProcessedFiles)
	require.False(t, receipt.Rotated)
	require.False(t, receipt.Recovered)
}

func TestRunDeleteFinalizationRemovesFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "observations.ndjson")
	require.NoError(t, os.WriteFile(logPath, []byte(
		`{"ts":"2026-07-31T00:00:00Z","kind":"event","summary":"one line"}`+"\n"), 0o644))

	s := openTestStore(t)
	receipt, err := Run(context.Background(), s, Options{
		LogPath:      logPath,
		Finalization: FinalizationDelete,
		Scorer:       ingest.ScorerDisabled,
	})
	require.NoError(t, err)
	require.Equal(t, 1, receipt.ProcessedFiles)
	require.Len(t, receipt.Files, 1)
	_, err = os.Stat(receipt.Files[0].Path)
	require.True(t, os.IsNotExist(err))
}
