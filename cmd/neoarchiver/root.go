package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/neows-archiver/internal/app"
	"github.com/JakeFAU/neows-archiver/internal/config"
	"github.com/JakeFAU/neows-archiver/internal/crawl"
	"github.com/JakeFAU/neows-archiver/internal/logging"
	"github.com/JakeFAU/neows-archiver/internal/neo"
)

// service is what the commands need from the application. Tests swap in a
// fake through newService.
type service interface {
	Crawl(ctx context.Context) (crawl.Result, error)
	Serve(ctx context.Context) error
	Lookup(ctx context.Context, id string) (neo.NormalizedRecord, error)
	Hazardous(ctx context.Context, start, end string) ([]neo.NormalizedRecord, error)
	Close() error
}

var newService = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (service, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

type serviceKey struct{}

type loggerKey struct{}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "neoarchiver",
		Short: "Archive NASA's Near Earth Object catalog.",
		Long: `neoarchiver walks the NeoWs browse catalog, normalizes every object to
metric units, and stores it idempotently so interrupted crawls can simply be
rerun. It also serves live lookups and hazardous-approach queries.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			svc, err := newService(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("init services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), serviceKey{}, svc)
			ctx = context.WithValue(ctx, loggerKey{}, logger)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return closeService(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the NEOWS_ prefix")

	cmd.AddCommand(newCrawlCmd(), newServeCmd(), newLookupCmd(), newHazardousCmd())
	return cmd
}

func resolveService(ctx context.Context) (service, error) {
	svc, ok := ctx.Value(serviceKey{}).(service)
	if !ok || svc == nil {
		return nil, errors.New("application services not initialized")
	}
	return svc, nil
}

func loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// closeService runs after successful commands only; failing commands close
// through withService.
func closeService(ctx context.Context) error {
	svc, err := resolveService(ctx)
	if err != nil {
		return nil
	}
	logger := loggerFrom(ctx)
	if err := svc.Close(); err != nil {
		logger.Warn("service shutdown failed", zap.Error(err))
	}
	_ = logger.Sync()
	return nil
}

// withService runs fn and closes the services if fn fails, since cobra skips
// post-run hooks after an error.
func withService(cmd *cobra.Command, fn func(context.Context, service) error) error {
	svc, err := resolveService(cmd.Context())
	if err != nil {
		return err
	}
	if err := fn(cmd.Context(), svc); err != nil {
		_ = closeService(cmd.Context())
		return err
	}
	return nil
}
