package graph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testMD = `# Title

intro line

## Section One

first line of section one
second line

## Section Two

body text here
`

func TestCaptureMDInsertsOnePerHeading(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte(testMD), 0o644))
	s := openTestStore(t)
	ctx := context.Background()

	n, err := CaptureMD(ctx, s, CaptureMDOptions{Roots: []string{dir}})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	rows, err := s.Recent(ctx, 10, "graph.capture-md")
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestCaptureMDIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte(testMD), 0o644))
	s := openTestStore(t)
	ctx := context.Background()
	opts := CaptureMDOptions{Roots: []string{dir}}

	n1, err := CaptureMD(ctx, s, opts)
	require.NoError(t, err)
	require.Equal(t, 3, n1)

	n2, err := CaptureMD(ctx, s, opts)
	require.NoError(t, err)
	require.Equal(t, 0, n2)
}

func TestCaptureMDExcludesConfiguredDirs(t *testing.T) {
	dir := t.TempDir()
	excluded := filepath.Join(dir, "node_modules")
	require.NoError(t, os.MkdirAll(excluded, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(excluded, "ignored.md"), []byte(testMD), 0o644))
	s := openTestStore(t)
	ctx := context.Background()

	n, err := CaptureMD(ctx, s, CaptureMDOptions{Roots: []string{dir}})
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
