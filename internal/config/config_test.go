package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrency)
	assert.Equal(t, 16, cfg.Pipeline.QueueCapacity)
	assert.Equal(t, ProviderGemini, cfg.Classifier.Provider)
	assert.Equal(t, 3, cfg.Classifier.MaxAttempts)
	assert.Equal(t, 3, cfg.Enrich.WindowDays)
	assert.InDelta(t, 0.35, cfg.Enrich.MinScore, 0.001)
	assert.Equal(t, JobStoreMemory, cfg.Jobs.Store)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	for _, k := range []string{"NEO4J_URI", "LOG_LEVEL", "CLASSIFIER_PROVIDER", "OPENAI_API_KEY", "OTEL_EXPORTER"} {
		t.Setenv(k, "")
	}

	path := filepath.Join(t.TempDir(), "finance-graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
neo4j:
  uri: neo4j://graph:7687
  tx_timeout: 45s
pipeline:
  max_concurrency: 8
  timeout: 10m
  stage_concurrency:
    categorize: 2
enrich:
  mailbox_file: mail.json
  window_days: 5
jobs:
  store: sqlite
  dsn: runs.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "neo4j://graph:7687", cfg.Neo4j.URI)
	assert.Equal(t, 45*time.Second, cfg.Neo4j.TxTimeout)
	assert.Equal(t, 8, cfg.Pipeline.MaxConcurrency)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.Timeout)
	assert.Equal(t, 2, cfg.Pipeline.StageConcurrency["categorize"])
	assert.Equal(t, "mail.json", cfg.Enrich.MailboxFile)
	assert.Equal(t, 5, cfg.Enrich.WindowDays)
	assert.InDelta(t, 0.35, cfg.Enrich.MinScore, 0.001, "unset keys keep defaults")
	assert.Equal(t, JobStoreSQLite, cfg.Jobs.Store)
	assert.Equal(t, 16, cfg.Pipeline.QueueCapacity)
	require.NoError(t, cfg.Validate())
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"NEO4J_URI":                   "neo4j+s://prod:7687",
		"NEO4J_USER":                  "svc",
		"NEO4J_PASSWORD":              "secret",
		"NEO4J_DATABASE":              "finance",
		"REDIS_ADDR":                  "redis:6379",
		"CLASSIFIER_PROVIDER":         "openai",
		"OPENAI_API_KEY":              "sk-test",
		"GEMINI_API_KEY":              "ignored",
		"LOG_LEVEL":                   "warn",
		"LOG_FORMAT":                  "json",
		"OTEL_EXPORTER":               "otlp",
		"OTEL_EXPORTER_OTLP_HEADERS":  "api-key=abc",
		"OTEL_SAMPLER_RATIO":          "0.5",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4318",
		"BIGQUERY_EXPORT":             "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "neo4j+s://prod:7687", cfg.Neo4j.URI)
	assert.Equal(t, "svc", cfg.Neo4j.User)
	assert.Equal(t, "secret", cfg.Neo4j.Password)
	assert.Equal(t, "finance", cfg.Neo4j.Database)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, ProviderOpenAI, cfg.Classifier.Provider)
	assert.Equal(t, "sk-test", cfg.Classifier.APIKey)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, "collector:4318", cfg.Tracing.Endpoint)
	assert.Equal(t, map[string]string{"api-key": "abc"}, cfg.Tracing.Headers)
	assert.InDelta(t, 0.5, cfg.Tracing.SampleRatio, 0.0001)
	assert.True(t, cfg.Export.BigQuery.Export)
}

func TestApplyEnv_GeminiKeyFallback(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{"GOOGLE_API_KEY": "g-key"})))
	assert.Equal(t, "g-key", cfg.Classifier.APIKey)

	cfg = Default()
	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{"GEMINI_API_KEY": "first", "GOOGLE_API_KEY": "second"})))
	assert.Equal(t, "first", cfg.Classifier.APIKey)
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{"OTEL_SAMPLER_RATIO": "lots"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTEL_SAMPLER_RATIO")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{"missing neo4j uri", func(c *Config) { c.Neo4j.URI = "" }, []string{"neo4j.uri"}},
		{"zero concurrency", func(c *Config) { c.Pipeline.MaxConcurrency = 0 }, []string{"pipeline.max_concurrency"}},
		{"bad stage override", func(c *Config) { c.Pipeline.StageConcurrency = map[string]int{"store": 0} }, []string{"pipeline.stage_concurrency.store"}},
		{"openai without key", func(c *Config) { c.Classifier.Provider = ProviderOpenAI }, []string{"classifier.api_key"}},
		{"unknown provider", func(c *Config) { c.Classifier.Provider = "llama" }, []string{"classifier.provider"}},
		{"taxonomy file missing", func(c *Config) { c.Classifier.Taxonomy = TaxonomyFile }, []string{"classifier.taxonomy_file"}},
		{"taxonomy bigquery without project", func(c *Config) { c.Classifier.Taxonomy = TaxonomyBigQuery }, []string{"export.bigquery.project_id"}},
		{"min score out of range", func(c *Config) { c.Enrich.MinScore = 1.5 }, []string{"enrich.min_score"}},
		{"bigquery export without project", func(c *Config) { c.Export.BigQuery.Export = true }, []string{"export.bigquery.project_id"}},
		{"half notion config", func(c *Config) { c.Export.Notion.Token = "t" }, []string{"export.notion"}},
		{"unknown job store", func(c *Config) { c.Jobs.Store = "postgres" }, []string{"jobs.store"}},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, []string{"tracing.exporter"}},
		{
			"several at once",
			func(c *Config) {
				c.Neo4j.URI = ""
				c.Log.Format = "xml"
			},
			[]string{"neo4j.uri", "log.format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verr ValidationError
			require.True(t, errors.As(err, &verr))
			var got []string
			for _, fe := range verr {
				got = append(got, fe.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}
