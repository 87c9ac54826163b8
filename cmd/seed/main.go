package main

import (
	"context"
	"time"

	"consent-bridge/internal/config"
	"consent-bridge/internal/db"
	"consent-bridge/internal/logger"
	"consent-bridge/internal/migrate"
	consentrepo "consent-bridge/internal/repository/consent"
	"consent-bridge/internal/seed"
	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString, log)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	if err := migrate.Apply(ctx, pool); err != nil {
		log.Fatal("apply migrations", zap.Error(err))
	}

	n, err := seed.Apply(ctx, consentrepo.NewPostgres(pool, log), time.Now())
	if err != nil {
		log.Fatal("seed apply", zap.Error(err))
	}

	log.Info("seed applied", zap.Int("batches_inserted", n))
}
