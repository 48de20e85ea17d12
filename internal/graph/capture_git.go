package graph

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/phenomenoner/openclaw-mem/internal/store"
)

const defaultCommitLookback = 24 * time.Hour
const defaultMaxCommitsPerRun = 200

// GitCommit is one parsed `git log` entry.
type GitCommit struct {
	SHA       string
	AuthorTS  time.Time
	Subject   string
	Files     []string
}

// CaptureGitOptions configures one repository's commit capture.
type CaptureGitOptions struct {
	RepoPath         string
	RepoLabel        string
	Lookback         time.Duration
	SinceAuthorTS    time.Time
	MaxCommitsPerRun int
}

// CaptureGit reads the commit log for one repository since the later of
// the per-repo last-seen author timestamp and the lookback window, capped
// at a max count, and inserts one observation per unseen commit.
func CaptureGit(ctx context.Context, s *store.Store, opts CaptureGitOptions) (int, error) {
	if opts.Lookback <= 0 {
		opts.Lookback = defaultCommitLookback
	}
	if opts.MaxCommitsPerRun <= 0 {
		opts.MaxCommitsPerRun = defaultMaxCommitsPerRun
	}
	since := time.Now().UTC().Add(-opts.Lookback)
	if opts.SinceAuthorTS.After(since) {
		since = opts.SinceAuthorTS
	}

	commits, err := gitLog(ctx, opts.RepoPath, since, opts.MaxCommitsPerRun)
	if err != nil {
		return 0, fmt.Errorf("graph: git log: %w", err)
	}

	inserted := 0
	for _, c := range commits {
		seen, err := s.GitSeen(ctx, opts.RepoLabel, c.SHA)
		if err != nil {
			return inserted, err
		}
		if seen {
			continue
		}
		legacy, err := s.PriorGitCaptureObservation(ctx, opts.RepoLabel, c.SHA)
		if err != nil {
			return inserted, err
		}
		if legacy {
			_ = s.MarkGitSeen(ctx, opts.RepoLabel, c.SHA, c.AuthorTS.Format(time.RFC3339))
			continue
		}

		shortSHA := c.SHA
		if len(shortSHA) > 7 {
			shortSHA = shortSHA[:7]
		}
		summary := fmt.Sprintf("[GIT] %s %s %s", opts.RepoLabel, shortSHA, c.Subject)
		_, err = s.Insert(ctx, store.InsertInput{
			Kind:     "note",
			ToolName: "graph.capture-git",
			TS:       c.AuthorTS.Format(time.RFC3339),
			Summary:  summary,
			Detail: map[string]any{
				"repo":      opts.RepoLabel,
				"sha":       c.SHA,
				"author_ts": c.AuthorTS.Format(time.RFC3339),
				"files":     c.Files,
			},
		})
		if err != nil {
			return inserted, err
		}
		if err := s.MarkGitSeen(ctx, opts.RepoLabel, c.SHA, c.AuthorTS.Format(time.RFC3339)); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

const gitLogFieldSep = "\x1f"
const gitLogRecordSep = "\x1e"

func gitLog(ctx context.Context, repoPath string, since time.Time, max int) ([]GitCommit, error) {
	format := strings.Join([]string{"%H", "%aI", "%s"}, gitLogFieldSep) + gitLogRecordSep
	args := []string{"-C", repoPath, "log",
		"--since=" + since.Format(time.RFC3339),
		"--max-count=" + strconv.Itoa(max),
		"--name-only",
		"--pretty=format:" + format,
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	var commits []GitCommit
	for _, rec := range strings.Split(string(out), gitLogRecordSep) {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		lines := strings.SplitN(rec, "\n", 2)
		fields := strings.Split(lines[0], gitLogFieldSep)
		if len(fields) < 3 {
			continue
		}
		authorTS, err := time.Parse(time.RFC3339, fields[1])
		if err != nil {
			continue
		}
		var files []string
		if len(lines) > 1 {
			for _, f := range strings.Split(lines[1], "\n") {
				f = strings.TrimSpace(f)
				if f != "" {
					files = append(files, f)
				}
			}
		}
		commits = append(commits, GitCommit{SHA: fields[0], AuthorTS: authorTS, Subject: fields[2], Files: files})
	}
	return commits, nil
}
