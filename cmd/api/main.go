package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"imagerelay/internal/http/handlers"
	httpapi "imagerelay/internal/http/httpapi"
	"imagerelay/internal/imagegen"
	"imagerelay/internal/infra"
	"imagerelay/internal/providers/azure"
	"imagerelay/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "imagerelay-api")

	httpClient := infra.NewHTTPClient(infra.HTTPClientOptions{
		ConnectTimeout: cfg.UpstreamConnectTimeout,
		Timeout:        cfg.UpstreamTimeout,
	})

	provider, err := azure.NewClient(azure.Options{
		Endpoint:   cfg.AzureEndpoint,
		APIKey:     cfg.AzureAPIKey,
		Deployment: cfg.DeploymentName,
		APIVersion: cfg.APIVersion,
		Size:       cfg.ImageSize,
		HTTPClient: httpClient,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure image provider")
	}

	store, err := storage.NewFileStore(cfg.ImageSaveFolder)
	if err != nil {
		logger.Fatal().Err(err).Str("folder", cfg.ImageSaveFolder).Msg("failed to prepare image folder")
	}

	relay, err := imagegen.NewRelay(imagegen.RelayOptions{
		Generator:     provider,
		Store:         store,
		HTTPClient:    httpClient,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build relay")
	}

	app := handlers.NewApp(relay, cfg, &logger)
	server := infra.NewHTTPServer(cfg.Port, cfg.Timeouts(), httpapi.NewRouter(app))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", server.Addr()).
			Str("deployment", provider.Deployment()).
			Str("images", store.BasePath()).
			Msg("API listening")
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
