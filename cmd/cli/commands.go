package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-graph/internal/app"
	"github.com/dvloznov/finance-graph/internal/config"
	"github.com/dvloznov/finance-graph/internal/graph"
	infra "github.com/dvloznov/finance-graph/internal/infra/bigquery"
	"github.com/dvloznov/finance-graph/internal/jobs"
	"github.com/dvloznov/finance-graph/internal/logger"
	"github.com/dvloznov/finance-graph/internal/pipeline"
	"github.com/dvloznov/finance-graph/internal/source"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type globals struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "cli",
		Short: "Bank transaction pipeline into a Neo4j graph",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("FINANCE_GRAPH_CONFIG"), "path to YAML config")

	rootCmd.AddCommand(
		newRunCommand(g),
		newInitSchemaCommand(g),
		newSimilarCommand(g),
		newAnalyticsCommand(g),
		newMigrateBigQueryCommand(g),
	)
	return rootCmd
}

// setup loads and validates config and returns a signal-aware context
// carrying the logger.
func (g *globals) setup(cmd *cobra.Command) (context.Context, context.CancelFunc, *config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, nil, zerolog.Logger{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, zerolog.Logger{}, err
	}

	log := logger.NewWithConfig(cfg.Log)
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	return logger.WithContext(ctx, log), cancel, cfg, log, nil
}

func newRunCommand(g *globals) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline over a CSV, JSON or JSONL file (local path or gs:// URI)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, cfg, log, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			src, err := source.Open(ctx, input)
			if err != nil {
				return err
			}
			defer src.Close()

			now := time.Now().UTC()
			job := &jobs.RunJob{
				JobID:     uuid.New().String(),
				SourceURI: input,
				Status:    jobs.JobStatusRunning,
				CreatedAt: now,
				StartedAt: &now,
			}

			res := a.Runner.Execute(ctx, src, job.JobID)
			pipeline.ApplyResult(job, res)
			if err := a.Jobs.SaveJob(context.WithoutCancel(ctx), job); err != nil {
				log.Warn().Err(err).Msg("Could not record run")
			}

			if err := printJSON(cmd.OutOrStdout(), job); err != nil {
				return err
			}
			if res.Status == pipeline.RunFailed {
				return fmt.Errorf("run %s failed: %w", job.JobID, res.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "input path or gs://bucket/object (required)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newInitSchemaCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create graph constraints and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withGraph(cmd, func(ctx context.Context, store *graph.Store) error {
				if err := store.Initialize(ctx); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{"status": "initialized"})
			})
		},
	}
}

func newSimilarCommand(g *globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "similar <transaction-id>",
		Short: "List transactions similar to one stored transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withGraph(cmd, func(ctx context.Context, store *graph.Store) error {
				similar, err := store.FindSimilar(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), similar)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", graph.DefaultSimilarLimit, "maximum results")
	return cmd
}

func newAnalyticsCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Print aggregate statistics over stored transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withGraph(cmd, func(ctx context.Context, store *graph.Store) error {
				stats, err := store.Analytics(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func newMigrateBigQueryCommand(g *globals) *cobra.Command {
	var appliedBy string

	cmd := &cobra.Command{
		Use:   "migrate-bigquery",
		Short: "Create or upgrade the BigQuery export and taxonomy tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, cfg, _, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			bq := cfg.Export.BigQuery
			if bq.ProjectID == "" {
				return fmt.Errorf("export.bigquery.project_id is required (or set GCP_PROJECT_ID)")
			}
			repo, err := infra.NewRepository(ctx, bq.ProjectID, bq.DatasetID)
			if err != nil {
				return err
			}
			defer repo.Close()

			applied, err := repo.Migrate(ctx, infra.Migrations(), appliedBy)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{"applied": applied})
		},
	}

	cmd.Flags().StringVar(&appliedBy, "applied-by", "migrate-cli", "name recorded in schema_migrations")
	return cmd
}

func (g *globals) withGraph(cmd *cobra.Command, fn func(context.Context, *graph.Store) error) error {
	ctx, cancel, cfg, _, err := g.setup(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	store, closeGraph, err := app.OpenGraph(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGraph(context.WithoutCancel(ctx))

	return fn(ctx, store)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
