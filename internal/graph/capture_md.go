package graph

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phenomenoner/openclaw-mem/internal/store"
)

var defaultExcludeDirs = []string{"node_modules", ".venv", ".git", "dist"}

// CaptureMDOptions configures one Markdown section capture run.
type CaptureMDOptions struct {
	Roots           []string
	IncludeExts     []string
	ExcludeGlobs    []string
	MinHeadingLevel int
	ModifiedSince   time.Time
}

func (o CaptureMDOptions) resolved() CaptureMDOptions {
	if len(o.IncludeExts) == 0 {
		o.IncludeExts = []string{".md", ".markdown"}
	}
	if o.MinHeadingLevel <= 0 {
		o.MinHeadingLevel = 2
	}
	return o
}

type mdSection struct {
	Heading   string
	Level     int
	StartLine int
	EndLine   int
	BodyLines []string
}

// CaptureMD walks the configured roots, scans modified Markdown files for
// headings at or above MinHeadingLevel, and inserts one index-only
// observation per unseen section fingerprint. The raw section body is
// never stored; only a fingerprint and location metadata are kept.
func CaptureMD(ctx context.Context, s *store.Store, opts CaptureMDOptions) (int, error) {
	opts = opts.resolved()
	inserted := 0

	for _, root := range opts.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if isExcludedDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if !hasIncludedExt(path, opts.IncludeExts) {
				return nil
			}
			if matchesExcludeGlob(path, opts.ExcludeGlobs) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			if !opts.ModifiedSince.IsZero() && info.ModTime().Before(opts.ModifiedSince) {
				return nil
			}

			n, err := captureFile(ctx, s, path, opts.MinHeadingLevel, info.ModTime())
			if err != nil {
				return err
			}
			inserted += n
			return nil
		})
		if err != nil {
			return inserted, fmt.Errorf("graph: capture-md walk %s: %w", root, err)
		}
	}
	return inserted, nil
}

func isExcludedDir(name string) bool {
	for _, d := range defaultExcludeDirs {
		if name == d {
			return true
		}
	}
	return false
}

func hasIncludedExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func matchesExcludeGlob(path string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := filepath.Match(g, filepath.Base(path)); ok {
			return true
		}
		if ok, _ := filepath.Match(g, path); ok {
			return true
		}
	}
	return false
}

func captureFile(ctx context.Context, s *store.Store, path string, minLevel int, mtime time.Time) (int, error) {
	sections, err := parseMDSections(path, minLevel)
	if err != nil {
		return 0, err
	}
	wholeFileHash, err := hashFile(path)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, sec := range sections {
		fp := sectionFingerprint(sec.Heading, sec.BodyLines)
		seen, err := s.MDFingerprintSeen(ctx, fp)
		if err != nil {
			return inserted, err
		}
		if seen {
			continue
		}
		summary := fmt.Sprintf("[MD] %s#%s", filepath.Base(path), sec.Heading)
		_, err = s.Insert(ctx, store.InsertInput{
			Kind:     "note",
			ToolName: "graph.capture-md",
			TS:       time.Now().UTC().Format(time.RFC3339),
			Summary:  summary,
			Detail: map[string]any{
				"path":            path,
				"heading":         sec.Heading,
				"heading_level":   sec.Level,
				"start_line":      sec.StartLine,
				"end_line":        sec.EndLine,
				"mtime":           mtime.Format(time.RFC3339),
				"whole_file_hash": wholeFileHash,
				"fingerprint":     fp,
			},
		})
		if err != nil {
			return inserted, err
		}
		if err := s.MarkMDFingerprintSeen(ctx, fp, path, mtime.Format(time.RFC3339)); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// parseMDSections splits a Markdown file into sections headed by ATX
// headings (`#`...) at or above minLevel (fewer leading hashes is a
// higher/shallower level; minLevel=2 admits levels 1 and 2).
func parseMDSections(path string, minLevel int) ([]mdSection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sections []mdSection
	var cur *mdSection
	lineNo := 0
	inFence := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			if cur != nil {
				cur.EndLine = lineNo
			}
			continue
		}
		if !inFence {
			if level, heading, ok := parseATXHeading(line); ok && level <= minLevel {
				if cur != nil {
					cur.EndLine = lineNo - 1
					sections = append(sections, *cur)
				}
				cur = &mdSection{Heading: heading, Level: level, StartLine: lineNo}
				continue
			}
		}
		if cur != nil {
			cur.EndLine = lineNo
			if !inFence && trimmed != "" {
				cur.BodyLines = append(cur.BodyLines, trimmed)
			}
		}
	}
	if cur != nil {
		sections = append(sections, *cur)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sections, nil
}

func parseATXHeading(line string) (level int, heading string, ok bool) {
	trimmed := strings.TrimLeft(line, " ")
	i := 0
	for i < len(trimmed) && trimmed[i] == '#' {
		i++
	}
	if i == 0 || i > 6 {
		return 0, "", false
	}
	if i < len(trimmed) && trimmed[i] != ' ' {
		return 0, "", false
	}
	return i, strings.TrimSpace(strings.TrimRight(trimmed[i:], "# ")), true
}

// sectionFingerprint hashes the heading plus the first five non-code
// content lines, so unchanged sections are never re-captured.
func sectionFingerprint(heading string, bodyLines []string) string {
	h := sha1.New()
	h.Write([]byte(heading))
	h.Write([]byte("\n"))
	n := len(bodyLines)
	if n > 5 {
		n = 5
	}
	for _, l := range bodyLines[:n] {
		h.Write([]byte(l))
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
