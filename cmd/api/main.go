package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"consent-bridge/internal/config"
	"consent-bridge/internal/db"
	"consent-bridge/internal/httpserver"
	"consent-bridge/internal/logger"
	"consent-bridge/internal/metrics"
	"consent-bridge/internal/migrate"
	consentrepo "consent-bridge/internal/repository/consent"
	tokenrepo "consent-bridge/internal/repository/token"
	authsvc "consent-bridge/internal/service/auth"
	consentsvc "consent-bridge/internal/service/consent"
	customersvc "consent-bridge/internal/service/customer"
	"consent-bridge/internal/shopify"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()

	var (
		dbpool *pgxpool.Pool
		audit  consentrepo.Repository
	)
	if cfg.DBConnString != "" {
		dbpool, err = db.Connect(ctx, cfg.DBConnString, log)
		if err != nil {
			log.Fatal("connect to db", zap.Error(err))
		}
		defer dbpool.Close()
		if err := migrate.Apply(ctx, dbpool); err != nil {
			log.Fatal("apply migrations", zap.Error(err))
		}
		audit = consentrepo.NewPostgres(dbpool, log)
	} else {
		log.Info("DB_DSN not set, consent audit log disabled")
	}

	m := metrics.New("consent_bridge")
	client := shopify.New(shopify.Config{
		Shop:       cfg.Shopify.Shop,
		StoreURL:   cfg.Shopify.StoreURL,
		APIVersion: cfg.Shopify.APIVersion,
		Timeout:    cfg.Shopify.RequestTimeout,
	}, log, m)
	oauth := shopify.NewOAuth(shopify.OAuthConfig{
		Shop:         cfg.Shopify.Shop,
		StoreURL:     cfg.Shopify.StoreURL,
		ClientID:     cfg.Shopify.ClientID,
		ClientSecret: cfg.Shopify.ClientSecret,
		Scopes:       cfg.Shopify.Scopes,
		RedirectURL:  cfg.Shopify.BaseURL + "/token",
	}, client.HTTPClient())

	tokens := tokenrepo.NewMemory()
	authService := authsvc.New(oauth, tokens, authsvc.Options{VerifyHMAC: cfg.Shopify.VerifyHMAC}, log)
	customerService := customersvc.New(client, tokens, log)
	consentService := consentsvc.New(customerService, customerService, audit, m,
		consentsvc.Options{Prevalidate: cfg.Consent.Prevalidate}, log)

	srv, err := httpserver.New(cfg.HTTPAddr, log, dbpool, httpserver.Deps{
		AuthSvc:          authService,
		CustomerSvc:      customerService,
		ConsentSvc:       consentService,
		Metrics:          m.Handler(),
		CORSAllowOrigins: cfg.CORSAllowOrigins,
	})
	if err != nil {
		log.Fatal("init server", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	} else {
		log.Info("server stopped")
	}
}
