// Package harvest drains an append-only observation log into the store
// with crash resilience: orphan recovery, atomic rotation, ordered
// ingest, optional index refresh, optional embedding backfill, and
// archival/deletion finalization.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/phenomenoner/openclaw-mem/internal/embedclient"
	"github.com/phenomenoner/openclaw-mem/internal/graph"
	"github.com/phenomenoner/openclaw-mem/internal/ingest"
	"github.com/phenomenoner/openclaw-mem/internal/store"
)

const defaultBackfillLimit = 500

// Finalization selects what happens to a processed queue file.
type Finalization string

const (
	FinalizationArchive Finalization = "archive"
	FinalizationDelete  Finalization = "delete"
)

// Options configures one harvest run.
type Options struct {
	LogPath       string
	ArchiveDir    string
	Finalization  Finalization
	Scorer        ingest.ScorerSetting
	RefreshIndex  bool
	IndexPath     string
	IndexN        int
	BackfillEmbed bool
	Embedder      *embedclient.Client
	BackfillLimit int
}

// FileReceipt is the per-file ingest result.
type FileReceipt struct {
	Path    string         `json:"path"`
	Summary ingest.Summary `json:"summary"`
}

// Receipt is the full run receipt.
type Receipt struct {
	ProcessedFiles  int            `json:"processed_files"`
	Recovered       bool           `json:"recovered"`
	Rotated         bool           `json:"rotated"`
	Files           []FileReceipt  `json:"files"`
	EmbeddedCount   int            `json:"embedded_count"`
	EmbedError      string         `json:"embed_error,omitempty"`
	IndexRefreshed  bool           `json:"index_refreshed"`
	IndexError      string         `json:"index_error,omitempty"`
	TotalSeen       int            `json:"total_seen"`
	GradedFilled    int            `json:"graded_filled"`
	SkippedExisting int            `json:"skipped_existing"`
	SkippedDisabled int            `json:"skipped_disabled"`
	ScorerErrors    int            `json:"scorer_errors"`
	Inserted        int            `json:"inserted"`
	LabelCounts     map[string]int `json:"label_counts"`
}

// Run executes the full harvest protocol against s.
func Run(ctx context.Context, s *store.Store, opts Options) (Receipt, error) {
	if opts.Finalization == "" {
		opts.Finalization = FinalizationArchive
	}
	if opts.BackfillLimit <= 0 {
		opts.BackfillLimit = defaultBackfillLimit
	}
	receipt := Receipt{LabelCounts: map[string]int{}}

	dir := filepath.Dir(opts.LogPath)
	base := filepath.Base(opts.LogPath)

	recovered, err := recoverOrphans(dir, base)
	if err != nil {
		return receipt, fmt.Errorf("harvest: recovery sweep: %w", err)
	}
	receipt.Recovered = len(recovered) > 0

	rotated, err := rotateLive(opts.LogPath)
	if err != nil {
		return receipt, fmt.Errorf("harvest: rotation: %w", err)
	}
	var queue []string
	queue = append(queue, recovered...)
	if rotated != "" {
		queue = append(queue, rotated)
		receipt.Rotated = true
	}
	sort.Strings(queue)

	for _, path := range queue {
		f, err := os.Open(path)
		if err != nil {
			return receipt, fmt.Errorf("harvest: open queued file %s: %w", path, err)
		}
		summary, err := ingest.Run(ctx, s, f, opts.Scorer)
		f.Close()
		if err != nil {
			return receipt, fmt.Errorf("harvest: ingest %s: %w", path, err)
		}
		receipt.Files = append(receipt.Files, FileReceipt{Path: path, Summary: *summary})
		receipt.ProcessedFiles++
		receipt.TotalSeen += summary.TotalSeen
		receipt.GradedFilled += summary.GradedFilled
		receipt.SkippedExisting += summary.SkippedExisting
		receipt.SkippedDisabled += summary.SkippedDisabled
		receipt.ScorerErrors += summary.ScorerErrors
		receipt.Inserted += summary.Inserted
		for label, n := range summary.LabelCounts {
			receipt.LabelCounts[label] += n
		}
	}

	if opts.RefreshIndex && opts.IndexPath != "" {
		if err := graph.WriteIndexArtifact(ctx, s, opts.IndexPath, opts.IndexN); err != nil {
			receipt.IndexError = err.Error()
		} else {
			receipt.IndexRefreshed = true
		}
	}

	if opts.BackfillEmbed {
		n, embedErr := backfillEmbeddings(ctx, s, opts.Embedder, opts.BackfillLimit)
		receipt.EmbeddedCount = n
		if embedErr != nil {
			if errors.Is(embedErr, embedclient.ErrMissingAPIKey) {
				receipt.EmbedError = "missing_api_key"
			} else {
				receipt.EmbedError = embedErr.Error()
			}
		}
	}

	for _, path := range queue {
		if err := finalize(path, opts.ArchiveDir, opts.Finalization); err != nil {
			return receipt, fmt.Errorf("harvest: finalize %s: %w", path, err)
		}
	}

	return receipt, nil
}

// recoverOrphans finds sibling `<base>.*.processing` files from an
// interrupted prior run, in a stable lexicographic order.
func recoverOrphans(dir, base string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	prefix := base + "."
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".processing") {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

// rotateLive atomically renames the live log to a timestamped
// `.processing` file, if it exists and is non-empty.
func rotateLive(logPath string) (string, error) {
	info, err := os.Stat(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if info.Size() == 0 {
		return "", nil
	}
	dest := fmt.Sprintf("%s.%s.processing", logPath, time.Now().UTC().Format("20060102T150405.000000000Z"))
	if err := os.Rename(logPath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func finalize(path, archiveDir string, mode Finalization) error {
	if mode == FinalizationDelete {
		return os.Remove(path)
	}
	if archiveDir == "" {
		return fmt.Errorf("archive directory not configured")
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(archiveDir, filepath.Base(path))
	return os.Rename(path, dest)
}

func backfillEmbeddings(ctx context.Context, s *store.Store, client *embedclient.Client, limit int) (int, error) {
	if client == nil {
		return 0, embedclient.ErrMissingAPIKey
	}
	rows, err := s.ObservationsMissingEmbedding(ctx, store.EmbeddingSummary, limit)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, o := range rows {
		text := o.Summary
		if text == "" {
			continue
		}
		vec, err := client.Embed(ctx, text)
		if err != nil {
			return count, err
		}
		if err := s.PutEmbedding(ctx, store.EmbeddingSummary, o.ID, client.Model, vec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
