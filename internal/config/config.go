// Package config resolves runtime configuration from, in precedence order,
// CLI flags, environment variables (including a loaded .env file), and a
// YAML config file fallback for credentials, finishing with built-in
// defaults (see internal/defaults).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/phenomenoner/openclaw-mem/internal/defaults"
)

// Config is the resolved set of knobs a CLI invocation needs.
type Config struct {
	HomeDir    string
	StateDir   string
	ConfigPath string
	DBPath     string

	EmbeddingModel string
	SummaryModel   string
	RerankModel    string
	BaseURL        string

	EmbeddingAPIKey string
	RerankAPIKey    string

	ImportanceAutograde bool
	ImportanceScorer    string

	LogPath  string
	LogLevel string
}

// fileCredentials is the shape read from the YAML config-file fallback,
// consulted only for fields env/flags left empty.
type fileCredentials struct {
	EmbeddingAPIKey string `yaml:"embedding_api_key"`
	RerankAPIKey    string `yaml:"rerank_api_key"`
	BaseURL         string `yaml:"base_url"`
}

// Load resolves Config from the environment (loading .env best-effort
// first), then fills any still-empty credential fields from the config
// file at the resolved config path, then applies built-in defaults.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		HomeDir:    firstNonEmpty(os.Getenv(defaults.EnvHome), os.Getenv("HOME")),
		StateDir:   os.Getenv(defaults.EnvStateDir),
		ConfigPath: os.Getenv(defaults.EnvConfigPath),

		EmbeddingModel: os.Getenv(defaults.EnvEmbeddingModel),
		SummaryModel:   os.Getenv(defaults.EnvSummaryModel),
		RerankModel:    os.Getenv(defaults.EnvRerankModel),
		BaseURL:        os.Getenv(defaults.EnvBaseURL),

		EmbeddingAPIKey: os.Getenv("OPENCLAW_MEM_EMBEDDING_API_KEY"),
		RerankAPIKey:    os.Getenv("OPENCLAW_MEM_RERANK_API_KEY"),

		ImportanceScorer: os.Getenv(defaults.EnvImportanceScorer),
		LogPath:          os.Getenv("OPENCLAW_MEM_LOG_PATH"),
		LogLevel:         os.Getenv("OPENCLAW_MEM_LOG_LEVEL"),
	}

	if v := strings.TrimSpace(os.Getenv(defaults.EnvImportanceAutograde)); v != "" {
		cfg.ImportanceAutograde = truthy(v)
	}

	envBaseURL := cfg.BaseURL
	defaults.Apply(&cfg.HomeDir, &cfg.StateDir, &cfg.ConfigPath, &cfg.DBPath,
		&cfg.EmbeddingModel, &cfg.SummaryModel, &cfg.RerankModel, &cfg.BaseURL)

	if cfg.EmbeddingAPIKey == "" || cfg.RerankAPIKey == "" {
		if fc, err := readFileCredentials(cfg.ConfigPath); err == nil {
			if cfg.EmbeddingAPIKey == "" {
				cfg.EmbeddingAPIKey = fc.EmbeddingAPIKey
			}
			if cfg.RerankAPIKey == "" {
				cfg.RerankAPIKey = fc.RerankAPIKey
			}
			if envBaseURL == "" && fc.BaseURL != "" {
				cfg.BaseURL = fc.BaseURL
			}
		}
	}

	return cfg, nil
}

// ApplyFlagOverrides overlays non-empty CLI flag values onto cfg, which is
// the highest-precedence source per spec §4.11.
func (c *Config) ApplyFlagOverrides(embeddingModel, scorer string) {
	if embeddingModel != "" {
		c.EmbeddingModel = embeddingModel
	}
	if scorer != "" {
		c.ImportanceScorer = scorer
	}
}

func readFileCredentials(path string) (fileCredentials, error) {
	var fc fileCredentials
	if path == "" {
		return fc, os.ErrNotExist
	}
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
	}
	return b
}
