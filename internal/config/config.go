package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is constructed once at
// process start and passed by reference into each component constructor.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Blob      BlobConfig      `yaml:"blob" mapstructure:"blob"`
	Parser    ParserConfig    `yaml:"parser" mapstructure:"parser"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Temporal  TemporalConfig  `yaml:"temporal" mapstructure:"temporal"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Affinity  AffinityConfig  `yaml:"affinity" mapstructure:"affinity"`
	Taxonomy  TaxonomyConfig  `yaml:"taxonomy" mapstructure:"taxonomy"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BlobConfig configures file blob storage.
type BlobConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // "local" or "gcs"
	Root    string `yaml:"root" mapstructure:"root"`       // local root directory
	Bucket  string `yaml:"bucket" mapstructure:"bucket"`   // gcs bucket
}

// ParserConfig configures PDF parsing.
type ParserConfig struct {
	Backend          string `yaml:"backend" mapstructure:"backend"` // "local" or "cloud"
	PdfToTextPath    string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PdfToPpmPath     string `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	OCRKey           string `yaml:"ocr_api_key" mapstructure:"ocr_api_key"`
	OCRBaseURL       string `yaml:"ocr_base_url" mapstructure:"ocr_base_url"`
	OCRModel         string `yaml:"ocr_model" mapstructure:"ocr_model"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollTimeoutSecs  int    `yaml:"poll_timeout_secs" mapstructure:"poll_timeout_secs"`
}

// PollInterval returns the OCR job poll interval.
func (p ParserConfig) PollInterval() time.Duration {
	if p.PollIntervalSecs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.PollIntervalSecs) * time.Second
}

// PollTimeout returns the overall OCR job deadline.
func (p ParserConfig) PollTimeout() time.Duration {
	if p.PollTimeoutSecs <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(p.PollTimeoutSecs) * time.Second
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	AssessModel string `yaml:"assess_model" mapstructure:"assess_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// TemporalConfig holds task-queue settings.
type TemporalConfig struct {
	Address   string `yaml:"address" mapstructure:"address"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// SourceConfig holds one external data source's credentials and quota.
type SourceConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// SourcesConfig groups the enrichment data sources.
type SourcesConfig struct {
	Crunchbase     SourceConfig `yaml:"crunchbase" mapstructure:"crunchbase"`
	USPTO          SourceConfig `yaml:"uspto" mapstructure:"uspto"`
	SBIR           SourceConfig `yaml:"sbir" mapstructure:"sbir"`
	ClinicalTrials SourceConfig `yaml:"clinicaltrials" mapstructure:"clinicaltrials"`
	Coresignal     SourceConfig `yaml:"coresignal" mapstructure:"coresignal"`
	Scholar        SourceConfig `yaml:"scholar" mapstructure:"scholar"`
	Arxiv          SourceConfig `yaml:"arxiv" mapstructure:"arxiv"`
	Embeddings     SourceConfig `yaml:"embeddings" mapstructure:"embeddings"`
}

// AffinityConfig holds Affinity CRM settings. Sync is skipped when Key is
// empty.
type AffinityConfig struct {
	Key    string `yaml:"key" mapstructure:"key"`
	ListID int64  `yaml:"list_id" mapstructure:"list_id"`
}

// TaxonomyConfig points at the tenant's taxonomy seed file.
type TaxonomyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the intake/status HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("blob.backend", "local")
	v.SetDefault("blob.root", "./data/blobs")
	v.SetDefault("parser.backend", "local")
	v.SetDefault("parser.pdftotext_path", "pdftotext")
	v.SetDefault("parser.pdftoppm_path", "pdftoppm")
	v.SetDefault("parser.ocr_base_url", "https://api.mistral.ai/v1")
	v.SetDefault("parser.ocr_model", "pixtral-large-latest")
	v.SetDefault("parser.poll_interval_secs", 5)
	v.SetDefault("parser.poll_timeout_secs", 600)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.assess_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("temporal.address", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "dealflow")
	v.SetDefault("sources.crunchbase.base_url", "https://api.crunchbase.com/api/v4")
	v.SetDefault("sources.crunchbase.requests_per_sec", 2)
	v.SetDefault("sources.uspto.base_url", "https://developer.uspto.gov/ds-api")
	v.SetDefault("sources.uspto.requests_per_sec", 2)
	v.SetDefault("sources.sbir.base_url", "https://api.www.sbir.gov")
	v.SetDefault("sources.sbir.requests_per_sec", 2)
	v.SetDefault("sources.clinicaltrials.base_url", "https://clinicaltrials.gov/api/v2")
	v.SetDefault("sources.clinicaltrials.requests_per_sec", 2)
	v.SetDefault("sources.coresignal.base_url", "https://api.coresignal.com/cdapi/v1")
	v.SetDefault("sources.coresignal.requests_per_sec", 1)
	v.SetDefault("sources.scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("sources.scholar.requests_per_sec", 1)
	v.SetDefault("sources.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("sources.arxiv.requests_per_sec", 1)
	v.SetDefault("sources.embeddings.base_url", "https://api.openai.com/v1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
