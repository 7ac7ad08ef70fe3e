// Package config loads the YAML configuration shared by the binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-graph/internal/enrich"
	"github.com/dvloznov/finance-graph/internal/graph"
	"github.com/dvloznov/finance-graph/internal/logger"
	"github.com/dvloznov/finance-graph/internal/observability"
	"gopkg.in/yaml.v3"
)

// Classifier providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Taxonomy sources.
const (
	TaxonomyBuiltin  = "builtin"
	TaxonomyFile     = "file"
	TaxonomyBigQuery = "bigquery"
)

// Job store kinds.
const (
	JobStoreMemory = "memory"
	JobStoreSQLite = "sqlite"
)

// Config represents the top-level finance-graph.yaml configuration.
type Config struct {
	Log        logger.Config        `yaml:"log"`
	Neo4j      graph.Config         `yaml:"neo4j"`
	Graph      GraphConfig          `yaml:"graph"`
	Pipeline   PipelineConfig       `yaml:"pipeline"`
	Classifier ClassifierConfig     `yaml:"classifier"`
	Cache      CacheConfig          `yaml:"cache"`
	Enrich     EnrichConfig         `yaml:"enrich"`
	Export     ExportConfig         `yaml:"export"`
	Jobs       JobsConfig           `yaml:"jobs"`
	Tracing    observability.Config `yaml:"tracing"`
	API        APIConfig            `yaml:"api"`
}

// GraphConfig tunes the graph store on top of the connection settings.
type GraphConfig struct {
	CandidateLimit  int           `yaml:"candidate_limit"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// PipelineConfig bounds a run.
type PipelineConfig struct {
	MaxConcurrency   int            `yaml:"max_concurrency"`
	QueueCapacity    int            `yaml:"queue_capacity"`
	Timeout          time.Duration  `yaml:"timeout"`
	ItemGrace        time.Duration  `yaml:"item_grace"`
	StageConcurrency map[string]int `yaml:"stage_concurrency,omitempty"`
}

// ClassifierConfig selects the categorization model.
type ClassifierConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	MaxAttempts int    `yaml:"max_attempts"`

	// Taxonomy is builtin, file or bigquery.
	Taxonomy     string `yaml:"taxonomy"`
	TaxonomyFile string `yaml:"taxonomy_file"`
}

// CacheConfig configures the Redis assignment cache. An empty Addr disables it.
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
}

// EnrichConfig configures email enrichment. An empty MailboxFile disables it.
type EnrichConfig struct {
	MailboxFile    string `yaml:"mailbox_file"`
	enrich.Options `yaml:",inline"`
}

// ExportConfig lists the optional export sinks. Each is off when left empty.
type ExportConfig struct {
	JSONLPath string         `yaml:"jsonl_path"`
	BigQuery  BigQueryConfig `yaml:"bigquery"`
	Notion    NotionConfig   `yaml:"notion"`
}

// BigQueryConfig identifies the BigQuery dataset. It also backs the bigquery
// taxonomy source; transactions are only exported there when Export is set.
type BigQueryConfig struct {
	ProjectID string `yaml:"project_id"`
	DatasetID string `yaml:"dataset_id"`
	Export    bool   `yaml:"export"`
}

// NotionConfig identifies the Notion database transactions are mirrored into.
type NotionConfig struct {
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
}

// JobsConfig configures the run queue and ledger.
type JobsConfig struct {
	Store      string        `yaml:"store"`
	DSN        string        `yaml:"dsn"`
	Workers    int           `yaml:"workers"`
	QueueSize  int           `yaml:"queue_size"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// CORSOrigins lists browser origins allowed to call the API; "*" allows any.
	CORSOrigins []string `yaml:"cors_origins"`
}

// Default returns a Config with sensible defaults for local use.
func Default() *Config {
	return &Config{
		Log: logger.Config{Level: "info", Format: "console"},
		Neo4j: graph.Config{
			URI:            "bolt://localhost:7687",
			User:           "neo4j",
			ConnectTimeout: 10 * time.Second,
			TxTimeout:      30 * time.Second,
			MaxRetryTime:   15 * time.Second,
			MaxPoolSize:    50,
		},
		Graph: GraphConfig{
			CandidateLimit:  graph.DefaultCandidateLimit,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxConcurrency: 4,
			QueueCapacity:  16,
			Timeout:        30 * time.Minute,
			ItemGrace:      30 * time.Second,
		},
		Classifier: ClassifierConfig{
			Provider:    ProviderGemini,
			MaxAttempts: 3,
			Taxonomy:    TaxonomyBuiltin,
		},
		Cache: CacheConfig{TTL: 30 * 24 * time.Hour},
		Enrich: EnrichConfig{
			Options: enrich.Options{
				WindowDays: enrich.DefaultWindowDays,
				MinScore:   enrich.DefaultMinScore,
			},
		},
		Jobs: JobsConfig{
			Store:      JobStoreMemory,
			DSN:        "finance-graph.db",
			Workers:    2,
			QueueSize:  100,
			MaxRetries: 2,
			Backoff:    time.Second,
		},
		Tracing: observability.Config{
			Exporter:    observability.ExporterNone,
			SampleRatio: 0.1,
			ServiceName: observability.DefaultServiceName,
		},
		API: APIConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}

	set(&c.Neo4j.URI, "NEO4J_URI")
	set(&c.Neo4j.User, "NEO4J_USER", "NEO4J_USERNAME")
	set(&c.Neo4j.Password, "NEO4J_PASSWORD")
	set(&c.Neo4j.Database, "NEO4J_DATABASE")
	set(&c.Cache.RedisAddr, "REDIS_ADDR")
	set(&c.Cache.Password, "REDIS_PASSWORD")
	set(&c.Classifier.Provider, "CLASSIFIER_PROVIDER")
	set(&c.Classifier.Model, "CLASSIFIER_MODEL")
	set(&c.Log.Level, "LOG_LEVEL")
	set(&c.Log.Format, "LOG_FORMAT")
	set(&c.Tracing.Exporter, "OTEL_EXPORTER")
	set(&c.Tracing.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	set(&c.Export.Notion.Token, "NOTION_TOKEN")
	set(&c.Export.Notion.DatabaseID, "NOTION_DATABASE_ID")
	set(&c.Export.BigQuery.ProjectID, "GCP_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	set(&c.API.Addr, "API_ADDR")

	switch strings.ToLower(c.Classifier.Provider) {
	case ProviderOpenAI:
		set(&c.Classifier.APIKey, "OPENAI_API_KEY")
	case ProviderGemini:
		set(&c.Classifier.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	}

	if h := observability.ParseHeaders(getenv("OTEL_EXPORTER_OTLP_HEADERS")); h != nil {
		c.Tracing.Headers = h
	}
	if v := strings.TrimSpace(getenv("OTEL_SAMPLER_RATIO")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OTEL_SAMPLER_RATIO: %w", err)
		}
		c.Tracing.SampleRatio = f
	}
	if v := strings.TrimSpace(getenv("BIGQUERY_EXPORT")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BIGQUERY_EXPORT: %w", err)
		}
		c.Export.BigQuery.Export = b
	}
	if v := strings.TrimSpace(getenv("PIPELINE_MAX_CONCURRENCY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PIPELINE_MAX_CONCURRENCY: %w", err)
		}
		c.Pipeline.MaxConcurrency = n
	}
	return nil
}
