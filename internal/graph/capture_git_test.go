package graph

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "initial commit")
	return dir
}

func TestCaptureGitInsertsOneObservationPerCommit(t *testing.T) {
	repo := initTestRepo(t)
	s := openTestStore(t)
	ctx := context.Background()

	n, err := CaptureGit(ctx, s, CaptureGitOptions{
		RepoPath:  repo,
		RepoLabel: "myrepo",
		Lookback:  24 * time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := s.Recent(ctx, 10, "graph.capture-git")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Contains(t, rows[0].Summary, "[GIT] myrepo")
}

func TestCaptureGitIsIdempotent(t *testing.T) {
	repo := initTestRepo(t)
	s := openTestStore(t)
	ctx := context.Background()
	opts := CaptureGitOptions{RepoPath: repo, RepoLabel: "myrepo", Lookback: 24 * time.Hour}

	n1, err := CaptureGit(ctx, s, opts)
	require.NoError(t, err)
	require.Equal(t, 1, n1)

	n2, err := CaptureGit(ctx, s, opts)
	require.NoError(t, err)
	require.Equal(t, 0, n2)
}
