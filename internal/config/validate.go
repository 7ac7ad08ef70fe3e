package config

import (
	"fmt"
	"strings"
)

// FieldError is one invalid configuration field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError lists every invalid field found by Validate.
type ValidationError []FieldError

func (v ValidationError) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Error()
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

// Validate checks the configuration and returns a ValidationError naming
// every bad field, or nil.
func (c *Config) Validate() error {
	var errs ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Neo4j.URI) == "" {
		add("neo4j.uri", "is required")
	}

	if c.Pipeline.MaxConcurrency < 1 {
		add("pipeline.max_concurrency", "must be at least 1, got %d", c.Pipeline.MaxConcurrency)
	}
	if c.Pipeline.QueueCapacity < 1 {
		add("pipeline.queue_capacity", "must be at least 1, got %d", c.Pipeline.QueueCapacity)
	}
	if c.Pipeline.Timeout < 0 {
		add("pipeline.timeout", "must not be negative")
	}
	for stage, n := range c.Pipeline.StageConcurrency {
		if n < 1 {
			add("pipeline.stage_concurrency."+stage, "must be at least 1, got %d", n)
		}
	}

	switch strings.ToLower(c.Classifier.Provider) {
	case ProviderOpenAI:
		if c.Classifier.APIKey == "" {
			add("classifier.api_key", "is required for provider %q (set OPENAI_API_KEY)", ProviderOpenAI)
		}
	case ProviderGemini:
	default:
		add("classifier.provider", "must be %q or %q, got %q", ProviderGemini, ProviderOpenAI, c.Classifier.Provider)
	}
	if c.Classifier.MaxAttempts < 1 {
		add("classifier.max_attempts", "must be at least 1, got %d", c.Classifier.MaxAttempts)
	}
	switch c.Classifier.Taxonomy {
	case "", TaxonomyBuiltin:
	case TaxonomyFile:
		if c.Classifier.TaxonomyFile == "" {
			add("classifier.taxonomy_file", "is required when taxonomy is %q", TaxonomyFile)
		}
	case TaxonomyBigQuery:
		if c.Export.BigQuery.ProjectID == "" {
			add("export.bigquery.project_id", "is required when taxonomy is %q", TaxonomyBigQuery)
		}
	default:
		add("classifier.taxonomy", "unknown source %q", c.Classifier.Taxonomy)
	}

	if c.Enrich.MinScore < 0 || c.Enrich.MinScore > 1 {
		add("enrich.min_score", "must be within [0, 1], got %v", c.Enrich.MinScore)
	}
	if c.Enrich.WindowDays < 0 {
		add("enrich.window_days", "must not be negative")
	}

	if c.Export.BigQuery.Export && c.Export.BigQuery.ProjectID == "" {
		add("export.bigquery.project_id", "is required when export is enabled")
	}
	if (c.Export.Notion.Token == "") != (c.Export.Notion.DatabaseID == "") {
		add("export.notion", "token and database_id must be set together")
	}

	switch c.Jobs.Store {
	case JobStoreMemory:
	case JobStoreSQLite:
		if c.Jobs.DSN == "" {
			add("jobs.dsn", "is required for store %q", JobStoreSQLite)
		}
	default:
		add("jobs.store", "must be %q or %q, got %q", JobStoreMemory, JobStoreSQLite, c.Jobs.Store)
	}
	if c.Jobs.Workers < 1 {
		add("jobs.workers", "must be at least 1, got %d", c.Jobs.Workers)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		add("log.format", "must be console or json, got %q", c.Log.Format)
	}

	switch strings.ToLower(c.Tracing.Exporter) {
	case "", "none", "stdout", "otlp":
	default:
		add("tracing.exporter", "must be none, stdout or otlp, got %q", c.Tracing.Exporter)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
