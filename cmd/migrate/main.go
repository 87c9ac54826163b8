package main

import (
	"context"
	"flag"
	"os"

	"consent-bridge/internal/config"
	"consent-bridge/internal/db"
	"consent-bridge/internal/logger"
	"consent-bridge/internal/migrate"
	"go.uber.org/zap"
)

func main() {
	var (
		down    bool
		version bool
	)
	flag.BoolVar(&down, "down", false, "Revert every applied migration")
	flag.BoolVar(&version, "version", false, "Print the current schema version and exit")
	flag.Parse()

	cfg := config.FromEnv()
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.DBConnString == "" {
		log.Error("DB_DSN is required")
		os.Exit(2)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString, log)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	switch {
	case version:
		v, dirty, err := migrate.Version(ctx, pool)
		if err != nil {
			log.Fatal("read schema version", zap.Error(err))
		}
		log.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
	case down:
		if err := migrate.Rollback(ctx, pool); err != nil {
			log.Fatal("roll back migrations", zap.Error(err))
		}
		log.Info("migrations rolled back")
	default:
		if err := migrate.Apply(ctx, pool); err != nil {
			log.Fatal("apply migrations", zap.Error(err))
		}
		log.Info("migrations applied")
	}
}
