package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"consent-bridge/internal/config"
	"consent-bridge/internal/db"
	"consent-bridge/internal/importer"
	"consent-bridge/internal/logger"
	consentrepo "consent-bridge/internal/repository/consent"
	tokenrepo "consent-bridge/internal/repository/token"
	consentsvc "consent-bridge/internal/service/consent"
	customersvc "consent-bridge/internal/service/customer"
	"consent-bridge/internal/shopify"
	"go.uber.org/zap"
)

func main() {
	var (
		filePath string
		dryRun   bool
	)
	flag.StringVar(&filePath, "file", "", "Path to a CSV with contact_email,propertyName,propertyValue columns")
	flag.BoolVar(&dryRun, "dry-run", false, "Validate the file without calling the store")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.FromEnv()
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	f, err := os.Open(filePath)
	if err != nil {
		log.Fatal("open file", zap.Error(err))
	}
	defer f.Close()

	if dryRun {
		n, err := importer.NewCSVImporter(f, nil).Validate()
		if err != nil {
			log.Fatal("validation failed", zap.Int("valid_rows", n), zap.Error(err))
		}
		fmt.Printf("%d rows valid\n", n)
		return
	}

	if cfg.Shopify.AccessToken == "" {
		log.Fatal("SHOPIFY_ACCESS_TOKEN is required to import")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var audit consentrepo.Repository
	if cfg.DBConnString != "" {
		pool, err := db.Connect(ctx, cfg.DBConnString, log)
		if err != nil {
			log.Fatal("connect db", zap.Error(err))
		}
		defer pool.Close()
		audit = consentrepo.NewPostgres(pool, log)
	}

	tokens := tokenrepo.NewMemory()
	if err := tokens.Set(ctx, tokenrepo.Token{Value: cfg.Shopify.AccessToken}); err != nil {
		log.Fatal("store access token", zap.Error(err))
	}

	client := shopify.New(shopify.Config{
		Shop:       cfg.Shopify.Shop,
		StoreURL:   cfg.Shopify.StoreURL,
		APIVersion: cfg.Shopify.APIVersion,
		Timeout:    cfg.Shopify.RequestTimeout,
	}, log, nil)
	customers := customersvc.New(client, tokens, log)
	batches := consentsvc.New(customers, customers, audit, nil,
		consentsvc.Options{Prevalidate: cfg.Consent.Prevalidate}, log)

	start := time.Now()
	res, err := importer.NewCSVImporter(f, batches).Run(ctx)
	if err != nil {
		log.Fatal("import failed", zap.Error(err))
	}

	fmt.Printf("Applied %d consent updates (batch %s) in %s\n", res.Applied, res.BatchID, time.Since(start).Truncate(time.Millisecond))
}
