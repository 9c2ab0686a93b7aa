package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/reelsplace/internal/pipeline"
	"github.com/iliyamo/reelsplace/internal/queue"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued reels from the broker and process them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			if cfg.AMQP.URL == "" {
				return errors.New("worker needs AMQP_URL or RABBITMQ_URL")
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := ctx.log()
			a, err := openApp(runCtx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			handle := func(ctx context.Context, job queue.ReelProcessRequested) error {
				return pipeline.Handle(ctx, a.pipeline.Run, job, log)
			}
			c := queue.NewConsumer(cfg.AMQP.URL, cfg.AMQP.ProcessQueue, cfg.AMQP.Prefetch, handle, log)
			err = c.Run(runCtx)
			if errors.Is(err, context.Canceled) {
				log.Info("worker stopped")
				return nil
			}
			return err
		},
	}
}
