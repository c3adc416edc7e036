package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/fmuoria/cv-inbox-screener/internal/config"
	"github.com/fmuoria/cv-inbox-screener/internal/ingestion"
	"github.com/fmuoria/cv-inbox-screener/internal/llm"
	"github.com/fmuoria/cv-inbox-screener/internal/logger"
	"github.com/fmuoria/cv-inbox-screener/internal/scoring"
	"github.com/fmuoria/cv-inbox-screener/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const app = "cv-screener"

var (
	cfgFile string

	v = config.New()

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "cv-screener imports resumes from a mailbox and scores them against a job description",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is "+config.DefaultConfigName+".yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	v.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("debug"))
	v.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("json"))
}

// setup loads the configuration and builds the logger shared by all commands
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("creating a logger: %w", err)
	}

	return cfg, log, nil
}

// openStore returns Postgres when a database URL is configured and an
// in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.URL == "" {
		log.Warn("no database configured, records are kept in memory only")
		return storage.NewMemory(), nil
	}

	pg, err := storage.OpenPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}

	log.Info("connected to database")
	return pg, nil
}

// newScorer builds the scorer for the configured provider. The returned
// closer releases the model client and is never nil.
func newScorer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*scoring.Scorer, func(), error) {
	gen, err := llm.New(ctx, cfg.Scoring)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {}
	if c, ok := gen.(io.Closer); ok {
		closeFn = func() {
			if err := c.Close(); err != nil {
				log.Warn("closing model client", zap.Error(err))
			}
		}
	}

	log.Info("scoring enabled", zap.String("provider", cfg.Scoring.Provider))
	return scoring.NewScorer(gen, log, cfg.Scoring), closeFn, nil
}

func newHarvester(store storage.Store, cfg *config.Config, log *zap.Logger) *ingestion.Harvester {
	return ingestion.NewHarvester(store, log, cfg.Harvest)
}

// printProgress writes progress lines of long running commands to w
func printProgress(w io.Writer) func(current, total int, message string) {
	return func(current, total int, message string) {
		fmt.Fprintf(w, "[%d/%d] %s\n", current, total, message)
	}
}
