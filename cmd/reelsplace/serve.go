package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/iliyamo/reelsplace/internal/config"
	"github.com/iliyamo/reelsplace/internal/handler"
	"github.com/iliyamo/reelsplace/internal/middleware"
	"github.com/iliyamo/reelsplace/internal/pipeline"
	"github.com/iliyamo/reelsplace/internal/router"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Run the HTTP API. Without a broker URL submitted reels are processed\n" +
			"by an in-process worker pool; with one they are queued for `reelsplace worker`.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, cfg, ctx)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, cc *commandContext) error {
	log := cc.log()
	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var trigger pipeline.Trigger
	var runner *pipeline.Runner
	if a.publisher != nil {
		trigger = pipeline.NewBrokerTrigger(a.publisher)
	} else {
		runner = pipeline.NewRunner(a.pipeline.Run, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, log)
		runner.Start()
		trigger = runner
	}

	cacheCfg := config.LoadCacheConfig()
	invalidate := func(ctx context.Context, userID uint64) {
		if err := middleware.InvalidateUser(ctx, cacheCfg, a.rdb, userID); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("cache invalidation failed")
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger(log))

	auth := router.Auth{JWTSecret: cfg.JWT.Secret, Users: a.users, Log: log}
	limits := router.Limits{Redis: a.rdb, RateLimit: config.LoadRateLimitConfig(), Cache: cacheCfg, Log: log}
	router.RegisterRoutes(e, a.db)
	router.RegisterUser(e,
		handler.NewReelHandler(a.reels, a.places, trigger, invalidate, log),
		handler.NewPlaceHandler(a.places, a.users, invalidate, log),
		auth, limits)
	router.RegisterInternal(e, handler.NewInternalHandler(a.pipeline, a.notifier, log), auth)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.WithField("addr", addr).WithField("env", cfg.Env).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if runner != nil {
		if err := runner.Stop(shutdownCtx); err != nil {
			log.WithError(err).Warn("pipeline runner did not drain")
		}
	}
	log.Info("stopped")
	return nil
}
