package commands

import (
	"context"
	"database/sql"

	"ideaboard/api/internal/config"
	"ideaboard/api/internal/kv"
	"ideaboard/api/internal/store"
)

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	return store.Open(ctx, cfg)
}

func openKV(cfg config.Config) (*kv.RedisStore, error) {
	return kv.NewRedisStore(cfg.RedisURL)
}
