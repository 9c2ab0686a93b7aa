package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/reelsplace/internal/config"
	"github.com/iliyamo/reelsplace/internal/database"
	"github.com/iliyamo/reelsplace/internal/lock"
	"github.com/iliyamo/reelsplace/internal/metadata"
	"github.com/iliyamo/reelsplace/internal/notify"
	"github.com/iliyamo/reelsplace/internal/pipeline"
	"github.com/iliyamo/reelsplace/internal/places"
	"github.com/iliyamo/reelsplace/internal/repository"
	"github.com/iliyamo/reelsplace/internal/service"
)

// app holds everything the serve and worker commands share.
type app struct {
	cfg       config.Config
	log       *logrus.Logger
	db        *sql.DB
	rdb       *redis.Client
	publisher *service.Publisher
	users     *repository.UserRepo
	reels     *repository.ReelRepo
	places    *repository.PlaceRepo
	notifier  *notify.Service
	pipeline  *pipeline.Service
}

// openApp opens the database, applies pending migrations and builds the
// pipeline. Redis and the broker are optional.
func openApp(ctx context.Context, cfg config.Config, log *logrus.Logger) (*app, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	applied, err := database.Migrate(ctx, db, cfg.Database.Driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		log.WithField("migrations", applied).Info("migrations applied")
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		db:     db,
		rdb:    config.NewRedisClient(log),
		users:  repository.NewUserRepo(db),
		reels:  repository.NewReelRepo(db),
		places: repository.NewPlaceRepo(db),
	}

	locker, err := newLocker(cfg.Pipeline, a.rdb)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.AMQP.URL != "" {
		a.publisher = service.NewPublisher(cfg.AMQP.URL, cfg.AMQP.ProcessQueue, cfg.AMQP.NotifyQueue, log)
		a.notifier = notify.NewService(a.users, a.publisher, log)
	} else {
		a.notifier = notify.NewService(a.users, nil, log)
	}

	client := places.NewClient(places.ClientConfig{
		BaseURL:       cfg.Places.BaseURL,
		APIKey:        cfg.Places.APIKey,
		Language:      cfg.Places.Language,
		PhotoMaxWidth: cfg.Places.PhotoMaxWidth,
		Timeout:       cfg.Places.Timeout(),
	}, nil)
	fetcher := metadata.NewFetcher(metadata.Config{
		OEmbedURL: cfg.Instagram.OEmbedURL,
		AppID:     cfg.Instagram.AppID,
		AppSecret: cfg.Instagram.AppSecret,
		Timeout:   cfg.Instagram.Timeout(),
	}, nil)

	a.pipeline = pipeline.NewService(pipeline.Deps{
		Reels:              a.reels,
		Places:             a.places,
		Links:              repository.NewReelPlaceRepo(db),
		Fetcher:            fetcher,
		Resolver:           places.NewResolver(client, client, log),
		Notifier:           a.notifier,
		Locker:             locker,
		AddressConcurrency: cfg.Pipeline.AddressConcurrency,
		Log:                log,
	})
	return a, nil
}

// newLocker prefers Redis so every process shares the in-flight set, then
// a lock directory for processes on one host.
func newLocker(cfg config.PipelineConfig, rdb *redis.Client) (lock.Locker, error) {
	switch {
	case rdb != nil:
		return lock.NewRedisLocker(rdb, "reelsplace:lock", cfg.LockTTL()), nil
	case cfg.LockDir != "":
		l, err := lock.NewFileLocker(cfg.LockDir)
		if err != nil {
			return nil, fmt.Errorf("lock dir: %w", err)
		}
		return l, nil
	default:
		return lock.NewLocalLocker(), nil
	}
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	_ = a.db.Close()
}
