package main

import (
	"context"

	"github.com/embermatch/engine/internal/app"
	"github.com/embermatch/engine/internal/cache"
	"github.com/embermatch/engine/internal/collab"
	"github.com/embermatch/engine/internal/config"
	"github.com/embermatch/engine/internal/db"
	"github.com/embermatch/engine/internal/handler"
	"github.com/embermatch/engine/internal/logger"
	"github.com/embermatch/engine/internal/notify"
	"github.com/embermatch/engine/internal/repository"
	"github.com/embermatch/engine/internal/server"
	"github.com/embermatch/engine/internal/service/blocks"
	"github.com/embermatch/engine/internal/service/discovery"
	"github.com/embermatch/engine/internal/service/intro"
	"github.com/embermatch/engine/internal/service/match"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	// Notification worker pool
	pool, err := notify.NewPool(cfg.Async.PoolSize, log)
	if err != nil {
		log.Error("failed to init worker pool", "err", err)
		return
	}
	defer pool.ReleaseTimeout(cfg.Async.ReleaseTimeout)

	appCtx := app.New(cfg, database, redisCache, log, pool)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	conversations := collab.NewStoreConversations(repository.NewConversationRepository(database))
	notifier := notify.NewAsyncNotifier(pool, redisCache, log)

	router := server.NewRouter(log,
		handler.NewDiscoveryHandler(discovery.NewService(appCtx), log),
		handler.NewMatchHandler(match.NewService(appCtx, conversations, notifier), log),
		handler.NewBlockHandler(blocks.NewService(appCtx), log),
		handler.NewIntroHandler(intro.NewService(appCtx, conversations, notifier), log),
	)

	if err := server.Start(cfg, log, router); err != nil {
		log.Error("http server failed", "err", err)
	}
}
