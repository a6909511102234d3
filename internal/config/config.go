package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"enrich/internal/artifactstore"
	"enrich/internal/catalog"
	apperrors "enrich/internal/errors"
)

// ColumnsConfig names the DEG table columns.
type ColumnsConfig struct {
	Gene       string `yaml:"gene"`
	Regulation string `yaml:"regulation"`
	FoldChange string `yaml:"fold_change"`
}

// EnrichrConfig holds connection settings for the Enrichr provider.
type EnrichrConfig struct {
	BaseURL           string  `yaml:"base_url"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	MaxRetries        *int    `yaml:"max_retries,omitempty"` // nil means the default; 0 disables retries
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Description       string  `yaml:"description"`
}

// Retries returns the configured retry count, treating an unset value as zero.
func (e *EnrichrConfig) Retries() int {
	if e == nil || e.MaxRetries == nil {
		return 0
	}
	return *e.MaxRetries
}

// ProviderConfig selects and configures the enrichment provider.
type ProviderConfig struct {
	Type    string         `yaml:"type"`
	Enrichr *EnrichrConfig `yaml:"enrichr,omitempty"`
}

// S3Config contains bucket details for the s3 artifact driver.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// ArtifactsConfig selects where result tables, charts and summaries are written.
type ArtifactsConfig struct {
	Driver string    `yaml:"driver"`
	Root   string    `yaml:"root"`
	S3     *S3Config `yaml:"s3,omitempty"`
}

// ConcurrencyConfig bounds parallel samples and in-flight provider queries.
type ConcurrencyConfig struct {
	Samples int `yaml:"samples"`
	Queries int `yaml:"queries"`
}

// LedgerConfig enables the SQLite run history when Path is set.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Organism    string                       `yaml:"organism"`
	Columns     ColumnsConfig                `yaml:"columns"`
	Threshold   float64                      `yaml:"threshold"`
	TopN        int                          `yaml:"top_n"`
	Pattern     string                       `yaml:"pattern"`
	Provider    ProviderConfig               `yaml:"provider"`
	Artifacts   ArtifactsConfig              `yaml:"artifacts"`
	Concurrency ConcurrencyConfig            `yaml:"concurrency"`
	Ledger      LedgerConfig                 `yaml:"ledger"`
	Catalog     map[string]catalog.Libraries `yaml:"catalog,omitempty"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.WithCode(apperrors.CodeConfigInvalid, err, "parse "+path)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./enrich.yaml first, then ~/.config/enrich/config.yaml.
// If neither exists, it writes defaults to ~/.config/enrich/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "enrich.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "enrich", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{
		Organism:  "human",
		Columns:   ColumnsConfig{Gene: "gene", Regulation: "regulation", FoldChange: "log2FoldChange"},
		Threshold: 0.05,
		TopN:      10,
		Pattern:   "*.xlsx",
		Provider: ProviderConfig{Type: "enrichr", Enrichr: &EnrichrConfig{
			BaseURL:           "https://maayanlab.cloud",
			TimeoutSecs:       60,
			MaxRetries:        intPtr(3),
			RequestsPerSecond: 2,
			Description:       "enrich",
		}},
		Artifacts:   ArtifactsConfig{Driver: artifactstore.DriverFilesystem, Root: "enrichment_results"},
		Concurrency: ConcurrencyConfig{Samples: 2, Queries: 4},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	def := Default()
	if cfg.Organism == "" {
		cfg.Organism = def.Organism
	}
	if cfg.Columns.Gene == "" {
		cfg.Columns.Gene = def.Columns.Gene
	}
	if cfg.Columns.Regulation == "" {
		cfg.Columns.Regulation = def.Columns.Regulation
	}
	if cfg.Columns.FoldChange == "" {
		cfg.Columns.FoldChange = def.Columns.FoldChange
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.TopN == 0 {
		cfg.TopN = def.TopN
	}
	if cfg.Pattern == "" {
		cfg.Pattern = def.Pattern
	}
	if cfg.Provider.Type == "" {
		cfg.Provider.Type = def.Provider.Type
	}
	if cfg.Provider.Type == "enrichr" {
		if cfg.Provider.Enrichr == nil {
			cfg.Provider.Enrichr = &EnrichrConfig{}
		}
		e, d := cfg.Provider.Enrichr, def.Provider.Enrichr
		if e.BaseURL == "" {
			e.BaseURL = d.BaseURL
		}
		if e.TimeoutSecs == 0 {
			e.TimeoutSecs = d.TimeoutSecs
		}
		if e.MaxRetries == nil {
			e.MaxRetries = intPtr(d.Retries())
		}
		if e.RequestsPerSecond == 0 {
			e.RequestsPerSecond = d.RequestsPerSecond
		}
		if e.Description == "" {
			e.Description = d.Description
		}
	}
	if cfg.Artifacts.Driver == "" {
		cfg.Artifacts.Driver = def.Artifacts.Driver
	}
	if cfg.Artifacts.Root == "" {
		cfg.Artifacts.Root = def.Artifacts.Root
	}
	if cfg.Concurrency.Samples == 0 {
		cfg.Concurrency.Samples = def.Concurrency.Samples
	}
	if cfg.Concurrency.Queries == 0 {
		cfg.Concurrency.Queries = def.Concurrency.Queries
	}
}

// ApplyEnv overlays ENRICHR_BASE_URL and the ENRICH_S3_* variables.
func (c *AppConfig) ApplyEnv() {
	if v := os.Getenv("ENRICHR_BASE_URL"); v != "" && c.Provider.Enrichr != nil {
		c.Provider.Enrichr.BaseURL = v
	}
	s3 := c.Artifacts.S3
	if s3 == nil {
		s3 = &S3Config{}
	}
	set := false
	for env, dst := range map[string]*string{
		"ENRICH_S3_BUCKET":   &s3.Bucket,
		"ENRICH_S3_REGION":   &s3.Region,
		"ENRICH_S3_PREFIX":   &s3.Prefix,
		"ENRICH_S3_ENDPOINT": &s3.Endpoint,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
			set = true
		}
	}
	if v := os.Getenv("ENRICH_S3_PATH_STYLE"); v != "" {
		s3.PathStyle = strings.EqualFold(v, "true")
		set = true
	}
	if set {
		c.Artifacts.S3 = s3
	}
}

// Validate reports the first invalid setting as CONFIG_INVALID.
func (c *AppConfig) Validate() error {
	switch {
	case !(c.Threshold > 0 && c.Threshold <= 1):
		return apperrors.ConfigInvalid(fmt.Sprintf("threshold must be in (0,1], got %v", c.Threshold))
	case c.TopN < 1:
		return apperrors.ConfigInvalid(fmt.Sprintf("top_n must be at least 1, got %d", c.TopN))
	case c.Concurrency.Samples < 1 || c.Concurrency.Queries < 1:
		return apperrors.ConfigInvalid("concurrency.samples and concurrency.queries must be at least 1")
	case strings.TrimSpace(c.Columns.Gene) == "":
		return apperrors.ConfigInvalid("columns.gene is required")
	}
	if _, err := filepath.Match(c.Pattern, ""); err != nil {
		return apperrors.ConfigInvalid(fmt.Sprintf("invalid pattern %q", c.Pattern))
	}
	switch c.Provider.Type {
	case "enrichr":
		if c.Provider.Enrichr == nil || c.Provider.Enrichr.BaseURL == "" {
			return apperrors.ConfigInvalid("provider.enrichr.base_url is required")
		}
		if c.Provider.Enrichr.Retries() < 0 {
			return apperrors.ConfigInvalid("provider.enrichr.max_retries must not be negative")
		}
	default:
		return apperrors.ConfigInvalid(fmt.Sprintf("unknown provider: %s", c.Provider.Type))
	}
	switch c.Artifacts.Driver {
	case artifactstore.DriverFilesystem:
		if c.Artifacts.Root == "" {
			return apperrors.ConfigInvalid("artifacts.root is required for the fs driver")
		}
	case artifactstore.DriverS3:
		if c.Artifacts.S3 == nil || c.Artifacts.S3.Bucket == "" {
			return apperrors.ConfigInvalid("artifacts.s3.bucket is required for the s3 driver")
		}
	case artifactstore.DriverMemory:
	default:
		return apperrors.ConfigInvalid(fmt.Sprintf("unknown artifacts driver: %s", c.Artifacts.Driver))
	}
	return nil
}

// BuildCatalog returns the built-in catalog with the configured overrides applied.
func (c *AppConfig) BuildCatalog() *catalog.Catalog {
	cat := catalog.Builtin()
	if len(c.Catalog) > 0 {
		cat = cat.With(c.Catalog)
	}
	return cat
}

func intPtr(n int) *int { return &n }
