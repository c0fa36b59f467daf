package app

import (
	"log/slog"

	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"

	"github.com/embermatch/engine/internal/cache"
	"github.com/embermatch/engine/internal/config"
)

// AppContext holds shared dependencies (DB, Redis, Logger, async pool, config).
type AppContext struct {
	Cfg        *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Pool       *ants.Pool
}

// New creates a new AppContext
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, pool *ants.Pool) *AppContext {
	return &AppContext{
		Cfg:        cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Pool:       pool,
	}
}
