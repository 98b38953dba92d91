/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jjudge-oj/problemgen/config"
	"github.com/jjudge-oj/problemgen/internal/logging"
	"github.com/jjudge-oj/problemgen/internal/mq"
	"github.com/jjudge-oj/problemgen/internal/pipeline"
	"github.com/jjudge-oj/problemgen/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// workerCmd consumes queued enrichment jobs.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs queued problem validations",
	Long: `Consumes enrichment jobs published by "problemgen server" when
PIPELINE_DISPATCH=queue, and runs the stale-run reaper.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger := logging.New(cfg.Log).With(zap.String("component", "worker"))
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stores, err := server.OpenStores(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer stores.Close(context.Background())

		gen, err := server.NewGenerator(ctx, cfg.Gemini, logger)
		if err != nil {
			return err
		}

		backend, err := mq.NewBackend(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("connect %s: %w", cfg.MQ.Backend, err)
		}
		defer backend.Close()

		// Runs are driven by the consumer, so the pipeline needs no publisher.
		p := pipeline.New(stores.Problems, gen, logger, pipeline.Options{TestcaseSource: cfg.Pipeline.TestcaseSource})
		consumer := pipeline.NewConsumer(backend, cfg.Pipeline.Channel, p, logger)

		reaper, err := pipeline.NewReaper(stores.Problems, cfg.Pipeline.StaleAfter, cfg.Pipeline.ReaperSchedule, logger)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return consumer.Run(gctx) })
		g.Go(func() error { return reaper.Run(gctx) })

		logger.Info("worker started", zap.String("channel", cfg.Pipeline.Channel))
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker stopped", zap.Error(err))
			return err
		}
		logger.Info("worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
