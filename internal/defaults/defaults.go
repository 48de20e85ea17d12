// Package defaults centralizes environment-derived defaults for home,
// state, and config paths, model names, and base URLs (spec §4.11).
package defaults

import (
	"os"
	"path/filepath"
)

// Override environment variable names.
const (
	EnvHome                = "OPENCLAW_MEM_HOME"
	EnvStateDir            = "OPENCLAW_MEM_STATE_DIR"
	EnvConfigPath          = "OPENCLAW_MEM_CONFIG_PATH"
	EnvEmbeddingModel      = "OPENCLAW_MEM_EMBEDDING_MODEL"
	EnvSummaryModel        = "OPENCLAW_MEM_SUMMARY_MODEL"
	EnvRerankModel         = "OPENCLAW_MEM_RERANK_MODEL"
	EnvBaseURL             = "OPENCLAW_MEM_BASE_URL"
	EnvImportanceAutograde = "OPENCLAW_MEM_IMPORTANCE_AUTOGRADE"
	EnvImportanceScorer    = "OPENCLAW_MEM_IMPORTANCE_SCORER"
)

const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultSummaryModel   = "gpt-4o-mini"
	DefaultRerankModel    = "rerank-english-v3.0"
	DefaultBaseURL        = "https://api.openai.com"

	StateDirName = ".openclaw-mem"
	DBFileName   = "observations.db"
	ConfigName   = "config.yaml"
)

// Apply fills each pointer with a sane default when it is empty. homeDir is
// resolved first since stateDir/configPath/dbPath derive from it.
func Apply(homeDir, stateDir, configPath, dbPath, embeddingModel, summaryModel, rerankModel, baseURL *string) {
	if *homeDir == "" {
		if h, err := os.UserHomeDir(); err == nil {
			*homeDir = h
		}
	}
	if *stateDir == "" {
		*stateDir = filepath.Join(*homeDir, StateDirName)
	}
	if *configPath == "" {
		*configPath = filepath.Join(*stateDir, ConfigName)
	}
	if *dbPath == "" {
		*dbPath = filepath.Join(*stateDir, DBFileName)
	}
	if *embeddingModel == "" {
		*embeddingModel = DefaultEmbeddingModel
	}
	if *summaryModel == "" {
		*summaryModel = DefaultSummaryModel
	}
	if *rerankModel == "" {
		*rerankModel = DefaultRerankModel
	}
	if *baseURL == "" {
		*baseURL = DefaultBaseURL
	}
}

// StatePath joins a filename onto the resolved state directory.
func StatePath(stateDir, name string) string {
	return filepath.Join(stateDir, name)
}
