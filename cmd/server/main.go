package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/gateway/ws"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/media"
	"github.com/oggyb/muzz-matching/internal/server"
	"github.com/oggyb/muzz-matching/internal/service/matching"
	"github.com/oggyb/muzz-matching/internal/service/messaging"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}
	defer redisCache.Close()

	// Attachments are optional; without a bucket image/file uploads are refused
	var uploader media.Uploader
	if cfg.S3.Bucket != "" {
		client, err := media.NewClient(cfg.S3)
		if err != nil {
			log.Error("failed to init object storage", "err", err)
			return
		}
		uploader = media.NewS3Storage(client, cfg.S3.Bucket, cfg.S3.PublicURL)
	}

	// Inject logger into app context
	appCtx := app.New(database, redisCache, log).Wire(cfg, app.Options{Uploader: uploader})

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	registrars := []server.Registrar{
		matching.NewRegistrar(appCtx),
		messaging.NewRegistrar(appCtx),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting gRPC server", "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port)
		return server.StartGRPCServer(gctx, cfg, log, registrars...)
	})

	g.Go(func() error {
		log.Info("starting websocket gateway", "addr", cfg.WS.Addr)
		return ws.Serve(gctx, ws.NewServer(cfg.WS.Addr, ws.NewHandler(appCtx.Chat, log.With("component", "ws"))), log)
	})

	g.Go(func() error {
		appCtx.Presence.Run(gctx, cfg.Presence.SweepInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
