package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"imagerelay/internal/access"
	"imagerelay/internal/infra"
	"imagerelay/internal/infra/geoip"
	"imagerelay/internal/payment/paystack"
	"imagerelay/internal/web"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadWebConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "imagerelay-web")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ledger access.Ledger = access.NewMemoryLedger()
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		pg := access.NewPostgresLedger(infra.NewSQLRunner(pool, logger))
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare payment ledger")
		}
		ledger = pg
		logger.Info().Msg("payment ledger: postgres")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, payment ledger kept in memory")
	}

	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	payments, err := paystack.NewClient(paystack.Options{
		SecretKey: cfg.PaystackSecretKey,
		BaseURL:   cfg.PaystackBaseURL,
		HTTPClient: infra.NewHTTPClient(infra.HTTPClientOptions{
			ConnectTimeout: 10 * time.Second,
			Timeout:        30 * time.Second,
		}),
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure payments")
	}

	backend := web.NewBackendClient(cfg.BackendBaseURL, infra.NewHTTPClient(infra.HTTPClientOptions{
		ConnectTimeout: 10 * time.Second,
		Timeout:        cfg.BackendTimeout,
	}))

	srv, err := web.NewServer(web.Options{
		Config:   cfg,
		Sessions: access.NewStore(access.Options{TTL: cfg.SessionTTL}),
		Ledger:   ledger,
		Backend:  backend,
		Payments: payments,
		Logger:   &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build web server")
	}

	server := infra.NewHTTPServer(cfg.Port, cfg.Timeouts(), web.NewRouter(srv, resolver.Lookup()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", server.Addr()).
			Str("backend", cfg.BackendBaseURL).
			Str("public_url", cfg.PublicURL).
			Msg("UI listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
