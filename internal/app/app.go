// Package app wires configured components into a runnable pipeline for the
// command-line and HTTP binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-graph/internal/classifier"
	"github.com/dvloznov/finance-graph/internal/config"
	"github.com/dvloznov/finance-graph/internal/enrich"
	"github.com/dvloznov/finance-graph/internal/export"
	"github.com/dvloznov/finance-graph/internal/graph"
	infra "github.com/dvloznov/finance-graph/internal/infra/bigquery"
	"github.com/dvloznov/finance-graph/internal/jobs"
	"github.com/dvloznov/finance-graph/internal/jobs/inmemory"
	"github.com/dvloznov/finance-graph/internal/jobs/sqlstore"
	"github.com/dvloznov/finance-graph/internal/normalize"
	"github.com/dvloznov/finance-graph/internal/observability"
	"github.com/dvloznov/finance-graph/internal/pipeline"
	"github.com/dvloznov/finance-graph/internal/source"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	Graph  *graph.Store
	Runner *pipeline.Runner
	Jobs   jobs.Store

	closers []func(context.Context) error
}

// New connects to every configured backend and assembles the pipeline.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	tracer, shutdown, err := observability.Setup(ctx, log, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	a.onClose(shutdown)

	store, closeGraph, err := OpenGraph(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.onClose(closeGraph)
	a.Graph = store

	var bq *infra.Repository
	if cfg.Export.BigQuery.ProjectID != "" {
		bq, err = infra.NewRepository(ctx, cfg.Export.BigQuery.ProjectID, cfg.Export.BigQuery.DatasetID)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return bq.Close() })
	}

	categorizer, err := a.buildClassifier(ctx, bq)
	if err != nil {
		return nil, err
	}

	enricher, err := BuildEnricher(cfg.Enrich)
	if err != nil {
		return nil, err
	}

	var inserter export.RowInserter
	if bq != nil {
		inserter = bq
	}
	exporter, closeExports, err := BuildExporter(cfg.Export, inserter)
	if err != nil {
		return nil, err
	}
	a.onClose(closeExports)

	a.Jobs, err = a.buildJobStore()
	if err != nil {
		return nil, err
	}

	p := pipeline.Pipeline{
		Normalizer:  normalize.New(),
		Categorizer: categorizer,
		Store:       a.Graph,
	}
	if enricher != nil {
		p.Enricher = enricher
	}
	if exporter != nil {
		p.Exporter = exporter
	}
	a.Runner = pipeline.NewRunner(pipeline.NewOrchestrator(tracer), p, a.Jobs, PipelineOptions(cfg.Pipeline))

	log.Info().
		Str("neo4j_uri", cfg.Neo4j.URI).
		Str("classifier", cfg.Classifier.Provider).
		Bool("enrich", enricher != nil).
		Bool("export", exporter != nil).
		Str("jobs_store", cfg.Jobs.Store).
		Msg("Application initialized")
	return a, nil
}

// OpenGraph connects to Neo4j and returns the store with its close func.
func OpenGraph(ctx context.Context, cfg *config.Config) (*graph.Store, func(context.Context) error, error) {
	exec, err := graph.Connect(ctx, cfg.Neo4j)
	if err != nil {
		return nil, nil, err
	}
	return graph.NewStore(exec, GraphOptions(cfg.Graph)), exec.Close, nil
}

// OpenSource opens a run input for Runner.Handle.
func OpenSource(ctx context.Context, uri string) (pipeline.SourceCloser, error) {
	return source.Open(ctx, uri)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) buildClassifier(ctx context.Context, bq *infra.Repository) (*classifier.Gateway, error) {
	cfg := a.Config.Classifier

	var repo classifier.CategoryRepository
	if bq != nil {
		repo = bq
	}
	taxonomy, err := BuildTaxonomy(ctx, cfg, repo)
	if err != nil {
		return nil, err
	}

	var client classifier.Client
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderOpenAI:
		client, err = classifier.NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
	default:
		client, err = classifier.NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	}
	if err != nil {
		return nil, err
	}

	opts := []classifier.Option{
		classifier.WithMaxAttempts(cfg.MaxAttempts),
		classifier.WithSource(strings.ToLower(cfg.Provider)),
	}
	if cache := a.Config.Cache; cache.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cache.RedisAddr,
			Password: cache.Password,
			DB:       cache.DB,
		})
		a.onClose(func(context.Context) error { return rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Log.Warn().Err(err).Str("addr", cache.RedisAddr).Msg("Redis unreachable, classifier cache will miss")
		}
		opts = append(opts, classifier.WithCache(classifier.NewRedisCache(rdb, cache.TTL)))
	}

	return classifier.NewGateway(client, taxonomy, opts...), nil
}

// BuildTaxonomy loads the taxonomy from the configured source.
func BuildTaxonomy(ctx context.Context, cfg config.ClassifierConfig, repo classifier.CategoryRepository) (*classifier.Taxonomy, error) {
	switch cfg.Taxonomy {
	case config.TaxonomyFile:
		return classifier.LoadTaxonomy(cfg.TaxonomyFile)
	case config.TaxonomyBigQuery:
		if repo == nil {
			return nil, fmt.Errorf("BuildTaxonomy: bigquery taxonomy needs export.bigquery.project_id")
		}
		return classifier.LoadTaxonomyFromRepository(ctx, repo)
	}
	return classifier.DefaultTaxonomy(), nil
}

// BuildEnricher returns nil when no mailbox is configured.
func BuildEnricher(cfg config.EnrichConfig) (*enrich.Enricher, error) {
	if cfg.MailboxFile == "" {
		return nil, nil
	}
	mailbox, err := enrich.LoadMailboxFile(cfg.MailboxFile)
	if err != nil {
		return nil, err
	}
	return enrich.New(mailbox, cfg.Options), nil
}

// BuildExporter combines the configured sinks. It returns a nil Exporter when
// none is configured, and a close func for sinks holding files. bq is only
// used as a sink when cfg.BigQuery.Export is set.
func BuildExporter(cfg config.ExportConfig, bq export.RowInserter) (export.Exporter, func(context.Context) error, error) {
	var sinks export.Multi
	closeFn := func(context.Context) error { return nil }
	if cfg.BigQuery.Export && bq == nil {
		return nil, nil, fmt.Errorf("BuildExporter: bigquery export enabled without a project")
	}

	if cfg.JSONLPath != "" {
		f, err := export.OpenJSONLFile(cfg.JSONLPath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, f)
		closeFn = func(context.Context) error { return f.Close() }
	}
	if cfg.BigQuery.Export {
		sinks = append(sinks, export.NewBigQueryExporter(bq))
	}
	if cfg.Notion.Token != "" {
		sinks = append(sinks, export.NewNotionExporter(export.NewNotionClient(cfg.Notion.Token), cfg.Notion.DatabaseID))
	}

	switch len(sinks) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	}
	return sinks, closeFn, nil
}

func (a *App) buildJobStore() (jobs.Store, error) {
	if a.Config.Jobs.Store != config.JobStoreSQLite {
		return inmemory.NewStore(), nil
	}
	s, err := sqlstore.Open(a.Config.Jobs.DSN, a.Log)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return s.Close() })
	return s, nil
}

// NewQueue creates the run queue configured for this App.
func (a *App) NewQueue() *inmemory.Queue {
	cfg := a.Config.Jobs
	return inmemory.NewQueue(cfg.QueueSize, a.Jobs,
		inmemory.WithWorkers(cfg.Workers),
		inmemory.WithMaxRetries(cfg.MaxRetries),
		inmemory.WithBackoff(cfg.Backoff),
	)
}

// GraphOptions maps config onto graph.Options.
func GraphOptions(cfg config.GraphConfig) graph.Options {
	return graph.Options{
		CandidateLimit:  cfg.CandidateLimit,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
	}
}

// PipelineOptions maps config onto pipeline.Options.
func PipelineOptions(cfg config.PipelineConfig) pipeline.Options {
	return pipeline.Options{
		MaxConcurrency:   cfg.MaxConcurrency,
		QueueCapacity:    cfg.QueueCapacity,
		Timeout:          cfg.Timeout,
		ItemGrace:        cfg.ItemGrace,
		StageConcurrency: cfg.StageConcurrency,
	}
}
