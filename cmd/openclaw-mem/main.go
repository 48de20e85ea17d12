// Command openclaw-mem is the local-first agent memory ledger: ingest,
// harvest, hybrid retrieval, pack building, triage, and the LanceDB
// writeback bridge, all against a single embedded SQLite store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/phenomenoner/openclaw-mem/internal/config"
	"github.com/phenomenoner/openclaw-mem/internal/embedclient"
	"github.com/phenomenoner/openclaw-mem/internal/graph"
	"github.com/phenomenoner/openclaw-mem/internal/harvest"
	"github.com/phenomenoner/openclaw-mem/internal/ingest"
	"github.com/phenomenoner/openclaw-mem/internal/obslog"
	"github.com/phenomenoner/openclaw-mem/internal/ocmerr"
	"github.com/phenomenoner/openclaw-mem/internal/pack"
	"github.com/phenomenoner/openclaw-mem/internal/retrieve"
	"github.com/phenomenoner/openclaw-mem/internal/store"
	"github.com/phenomenoner/openclaw-mem/internal/triage"
	"github.com/phenomenoner/openclaw-mem/internal/writeback"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}
	obslog.Init(cfg.LogPath, cfg.LogLevel)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "ingest":
		return cmdIngest(cfg, rest)
	case "harvest":
		return cmdHarvest(cfg, rest)
	case "search":
		return cmdSearch(cfg, rest, false, false)
	case "vsearch":
		return cmdSearch(cfg, rest, true, false)
	case "hybrid":
		return cmdSearch(cfg, rest, true, true)
	case "pack":
		return cmdPack(cfg, rest)
	case "graph":
		return cmdGraph(cfg, rest)
	case "triage":
		return cmdTriage(cfg, rest)
	case "writeback-lancedb":
		return cmdWriteback(cfg, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: openclaw-mem <command> [flags]

commands:
  ingest               read ndjson observations from stdin into the ledger
  harvest              drain the observation log with crash recovery
  search               lexical-only recall
  vsearch              vector-only recall
  hybrid               fused lexical+vector recall with optional rerank
  pack                 budgeted, cited context pack for an agent prompt
  graph index|pack|preflight|capture-git|capture-md
                       graph-lite navigation and source capture
  triage               heartbeat/observations/cron-errors/tasks scan
  writeback-lancedb    push governance metadata to an external vector store`)
}

func envelope(kind string, payload any) map[string]any {
	out := map[string]any{
		"kind":    kind,
		"ts":      time.Now().UTC().Format(time.RFC3339),
		"version": 0,
	}
	b, _ := json.Marshal(payload)
	var fields map[string]any
	_ = json.Unmarshal(b, &fields)
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func openStore(cfg config.Config) (*store.Store, error) {
	return store.Open(cfg.DBPath)
}

func cmdIngest(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	scorerFlag := fs.String("importance-scorer", "", "heuristic-v1 or a disable sentinel")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	scorer := cfg.ImportanceScorer
	if *scorerFlag != "" {
		scorer = *scorerFlag
	}

	s, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return 1
	}
	defer s.Close()

	summary, err := ingest.Run(context.Background(), s, os.Stdin, ingest.ResolveScorer(scorer))
	if err != nil {
		log.Error().Err(err).Msg("ingest")
		return 1
	}
	printJSON(envelope("openclaw-mem.ingest.v0", summary))
	return 0
}

func cmdHarvest(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("harvest", flag.ContinueOnError)
	logPath := fs.String("log-path", "", "path to the live observation log")
	archiveDir := fs.String("archive-dir", "", "directory to move processed files into")
	deleteFlag := fs.Bool("delete", false, "delete processed files instead of archiving")
	scorerFlag := fs.String("importance-scorer", "", "heuristic-v1 or a disable sentinel")
	refreshIndex := fs.Bool("refresh-index", false, "rebuild the Markdown index artifact")
	indexPath := fs.String("index-path", "", "path to the Markdown index artifact")
	backfill := fs.Bool("backfill-embeddings", false, "top up missing embeddings after ingest")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *logPath == "" {
		fmt.Fprintln(os.Stderr, "harvest: --log-path is required")
		return 1
	}
	scorer := cfg.ImportanceScorer
	if *scorerFlag != "" {
		scorer = *scorerFlag
	}

	s, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return 1
	}
	defer s.Close()

	finalization := harvest.FinalizationArchive
	if *deleteFlag {
		finalization = harvest.FinalizationDelete
	}

	var embedder *embedclient.Client
	if *backfill {
		embedder = &embedclient.Client{BaseURL: cfg.BaseURL, APIKey: cfg.EmbeddingAPIKey, Model: cfg.EmbeddingModel}
	}

	receipt, err := harvest.Run(context.Background(), s, harvest.Options{
		LogPath:       *logPath,
		ArchiveDir:    *archiveDir,
		Finalization:  finalization,
		Scorer:        ingest.ResolveScorer(scorer),
		RefreshIndex:  *refreshIndex,
		IndexPath:     *indexPath,
		BackfillEmbed: *backfill,
		Embedder:      embedder,
	})
	if err != nil {
		log.Error().Err(err).Msg("harvest")
		return 1
	}
	printJSON(envelope("openclaw-mem.harvest.v0", receipt))
	return 0
}

func parseCommonFlags(fs *flag.FlagSet) (*string, *string, *int) {
	query := fs.String("query", "", "search query")
	queryEN := fs.String("query-en", "", "English query variant")
	limit := fs.Int("limit", 12, "max results")
	return query, queryEN, limit
}

func cmdSearch(cfg config.Config, args []string, vector, rerankCapable bool) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	query, queryEN, limit := parseCommonFlags(fs)
	rerankProvider := fs.String("rerank-provider", "", "jina or cohere")
	rerankTopN := fs.Int("rerank-topn", 0, "rerank candidate count")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*query) == "" {
		fmt.Fprintln(os.Stderr, "search: --query is required")
		return 2
	}

	s, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return 1
	}
	defer s.Close()

	var qv retrieve.QueryVector
	if vector {
		if cfg.EmbeddingAPIKey == "" {
			fmt.Fprintln(os.Stderr, "search: missing embedding credentials")
			return 1
		}
		client := &embedclient.Client{BaseURL: cfg.BaseURL, APIKey: cfg.EmbeddingAPIKey, Model: cfg.EmbeddingModel}
		vec, err := client.Embed(context.Background(), *query)
		if err != nil {
			log.Error().Err(err).Msg("embed query")
			return 1
		}
		qv.Vector = vec
		if *queryEN != "" && *queryEN != *query {
			envec, err := client.Embed(context.Background(), *queryEN)
			if err != nil {
				log.Error().Err(err).Msg("embed query-en")
				return 1
			}
			qv.ENVector = envec
		}
	}

	var reranker retrieve.Reranker = retrieve.NoopReranker{}
	if rerankCapable && *rerankProvider != "" {
		apiKey := cfg.RerankAPIKey
		if apiKey == "" {
			fmt.Fprintln(os.Stderr, "search: missing rerank credentials")
			return 1
		}
		reranker = &retrieve.HTTPReranker{Provider: *rerankProvider, BaseURL: cfg.BaseURL, APIKey: apiKey, Model: cfg.RerankModel}
	}

	// vsearch ranks by the vector lanes alone: no query text reaches the
	// lexical lane.
	lexQuery := *query
	if vector && !rerankCapable {
		lexQuery = ""
	}
	resp, err := retrieve.Run(context.Background(), s, qv, retrieve.Options{
		Query: lexQuery, QueryEN: *queryEN, Limit: *limit, Model: cfg.EmbeddingModel, RerankTopN: *rerankTopN,
		RerankProvider: *rerankProvider,
	}, reranker)
	if err != nil {
		log.Error().Err(err).Msg("retrieve")
		return 1
	}
	for _, w := range resp.FailOpenWarnings {
		fmt.Fprintln(os.Stderr, "search: "+w)
	}
	printJSON(resp)
	return 0
}

func cmdPack(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	query, queryEN, limit := parseCommonFlags(fs)
	budget := fs.Int("budget-tokens", 0, "token budget for the bundle")
	trace := fs.Bool("trace", false, "include pack.trace.v1 in the output")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return 1
	}
	defer s.Close()

	var qv retrieve.QueryVector
	if cfg.EmbeddingAPIKey != "" {
		client := &embedclient.Client{BaseURL: cfg.BaseURL, APIKey: cfg.EmbeddingAPIKey, Model: cfg.EmbeddingModel}
		if vec, err := client.Embed(context.Background(), *query); err == nil {
			qv.Vector = vec
		}
	}

	result, err := pack.Build(context.Background(), s, qv, pack.Request{
		Query: *query, QueryEN: *queryEN, Limit: *limit, BudgetTokens: *budget, Model: cfg.EmbeddingModel, Trace: *trace,
	})
	if err != nil {
		if ocmerr.KindOf(err) == ocmerr.KindValidation {
			fmt.Fprintln(os.Stderr, "pack:", err)
			return 2
		}
		log.Error().Err(err).Msg("pack")
		return 1
	}
	printJSON(result)
	return 0
}

func cmdGraph(cfg config.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "graph: subcommand required (index|pack|preflight|capture-git|capture-md)")
		return 2
	}
	sub, rest := args[0], args[1:]

	s, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return 1
	}
	defer s.Close()

	switch sub {
	case "index":
		fs := flag.NewFlagSet("graph index", flag.ContinueOnError)
		query := fs.String("query", "", "search query")
		limit := fs.Int("limit", 20, "candidate limit")
		window := fs.Int("window", 5, "adjacency window")
		budget := fs.Int("budget-tokens", 1200, "token budget")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if strings.TrimSpace(*query) == "" {
			fmt.Fprintln(os.Stderr, "graph index: --query is required")
			return 2
		}
		idx, err := graph.BuildIndexPack(context.Background(), s, *query, *limit, *window, *budget)
		if err != nil {
			log.Error().Err(err).Msg("graph index")
			return 1
		}
		printJSON(idx)
		return 0
	case "preflight":
		fs := flag.NewFlagSet("graph preflight", flag.ContinueOnError)
		query := fs.String("query", "", "search query")
		limit := fs.Int("limit", 20, "candidate limit")
		window := fs.Int("window", 5, "adjacency window")
		take := fs.Int("take", 8, "selected record count")
		budget := fs.Int("budget-tokens", 1200, "token budget")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if strings.TrimSpace(*query) == "" {
			fmt.Fprintln(os.Stderr, "graph preflight: --query is required")
			return 2
		}
		cp, err := graph.Preflight(context.Background(), s, *query, *limit, *window, *take, *budget)
		if err != nil {
			log.Error().Err(err).Msg("graph preflight")
			return 1
		}
		printJSON(cp)
		return 0
	case "capture-git":
		fs := flag.NewFlagSet("graph capture-git", flag.ContinueOnError)
		repoPath := fs.String("repo-path", "", "repository path")
		repoLabel := fs.String("repo-label", "", "repository label")
		lookbackHours := fs.Int("lookback-hours", 24, "lookback window in hours")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if *repoPath == "" {
			fmt.Fprintln(os.Stderr, "graph capture-git: --repo-path is required")
			return 2
		}
		label := *repoLabel
		if label == "" {
			label = *repoPath
		}
		n, err := graph.CaptureGit(context.Background(), s, graph.CaptureGitOptions{
			RepoPath: *repoPath, RepoLabel: label, Lookback: time.Duration(*lookbackHours) * time.Hour,
		})
		if err != nil {
			log.Error().Err(err).Msg("graph capture-git")
			return 1
		}
		printJSON(envelope("openclaw-mem.graph-capture-git.v0", map[string]any{"inserted": n}))
		return 0
	case "capture-md":
		fs := flag.NewFlagSet("graph capture-md", flag.ContinueOnError)
		root := fs.String("root", "", "root directory to walk")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if *root == "" {
			fmt.Fprintln(os.Stderr, "graph capture-md: --root is required")
			return 2
		}
		n, err := graph.CaptureMD(context.Background(), s, graph.CaptureMDOptions{Roots: []string{*root}})
		if err != nil {
			log.Error().Err(err).Msg("graph capture-md")
			return 1
		}
		printJSON(envelope("openclaw-mem.graph-capture-md.v0", map[string]any{"inserted": n}))
		return 0
	default:
		fmt.Fprintf(os.Stderr, "graph: unknown subcommand %q\n", sub)
		return 2
	}
}

func cmdTriage(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("triage", flag.ContinueOnError)
	mode := fs.String("mode", "heartbeat", "heartbeat|observations|cron-errors|tasks")
	statePath := fs.String("state-path", "", "path to the triage state file")
	jobStore := fs.String("job-store-path", "", "path to the cron job-store JSON file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *statePath == "" {
		fmt.Fprintln(os.Stderr, "triage: --state-path is required")
		return 2
	}

	s, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return 1
	}
	defer s.Close()

	report, err := triage.Run(context.Background(), s, *statePath, triage.Options{
		Mode: triage.Mode(*mode), JobStorePath: *jobStore,
	})
	if err != nil {
		log.Error().Err(err).Msg("triage")
		return 2
	}
	printJSON(envelope("openclaw-mem.triage.v0", report))
	if report.NeedsAttention {
		return 10
	}
	return 0
}

func cmdWriteback(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("writeback-lancedb", flag.ContinueOnError)
	dbPath := fs.String("db-path", "", "external LanceDB directory")
	tableName := fs.String("table", "memories", "external table name")
	bridgeCmd := fs.String("bridge-cmd", "", "external bridge command line")
	dryRun := fs.Bool("dry-run", false, "do not apply changes")
	force := fs.Bool("force", false, "overwrite existing fields")
	forceFields := fs.String("force-fields", "", "comma-separated force-overwrite fields")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return 1
	}
	defer s.Close()

	var fields []string
	if *forceFields != "" {
		for _, f := range strings.Split(*forceFields, ",") {
			if trimmed := strings.TrimSpace(f); trimmed != "" {
				fields = append(fields, trimmed)
			}
		}
	}

	summary, err := writeback.Run(context.Background(), s, writeback.Options{
		DBPath: *dbPath, TableName: *tableName, BridgeCmd: *bridgeCmd,
		DryRun: *dryRun, Force: *force, ForceFields: fields,
	})
	if err != nil {
		if ocmerr.KindOf(err) == ocmerr.KindValidation {
			fmt.Fprintln(os.Stderr, "writeback-lancedb:", err)
			return 2
		}
		log.Error().Err(err).Msg("writeback-lancedb")
		return 1
	}
	printJSON(envelope("openclaw-mem.writeback.v0", summary))
	if summary.Errors > 0 {
		return 1
	}
	return 0
}
