// Package bootstrap 按配置组装存储等进程级依赖。
package bootstrap

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aliasrelay/backend/internal/config"
	"aliasrelay/backend/internal/storage"
	"aliasrelay/backend/internal/storage/hybrid"
	"aliasrelay/backend/internal/storage/memory"
	"aliasrelay/backend/internal/storage/postgres"
	"aliasrelay/backend/internal/storage/redis"
)

// Stores 打开的存储及其底层 Redis 客户端（未启用缓存时为 nil）
type Stores struct {
	Store  storage.Store
	Redis  *goredis.Client
	Memory bool
}

// OpenStore 按配置打开存储：未配置数据库时使用内存存储，启用 Redis 时叠加读穿透缓存。
func OpenStore(cfg *config.Config, log *zap.Logger) (*Stores, error) {
	if cfg.Database.Type == "" {
		log.Info("using memory storage (development mode)")
		return &Stores{Store: memory.NewStore(), Memory: true}, nil
	}

	opts := postgres.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		AutoMigrate:     cfg.Database.AutoMigrate,
	}

	var (
		db  *postgres.Store
		err error
	)
	switch cfg.Database.Type {
	case "mysql":
		db, err = postgres.NewMySQLStore(cfg.Database.DSN, opts)
	case "postgres", "postgresql":
		db, err = postgres.NewStore(cfg.Database.DSN, opts)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	if err != nil {
		return nil, err
	}
	log.Info("using database storage", zap.String("type", cfg.Database.Type))

	if !cfg.Redis.Enabled {
		return &Stores{Store: db}, nil
	}

	client, err := redis.NewClient(&cfg.Redis, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	cache := redis.NewCache(client, cfg.Redis.TTL)
	return &Stores{
		Store: hybrid.NewStore(db, cache, log.Named("hybrid_store")),
		Redis: client,
	}, nil
}
