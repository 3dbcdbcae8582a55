package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/detective-board/caseshare/internal/api"
	"github.com/detective-board/caseshare/internal/asset"
	"github.com/detective-board/caseshare/internal/config"
	"github.com/detective-board/caseshare/internal/database"
	"github.com/detective-board/caseshare/internal/queue"
	"github.com/detective-board/caseshare/internal/repository"
	"github.com/detective-board/caseshare/internal/s3storage"
	"github.com/detective-board/caseshare/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}
	caseRepo := repository.NewCaseRepository(pool)
	assetRepo := repository.NewAssetRepository(pool)

	store, err := s3storage.New(cfg)
	if err != nil {
		logger.Fatal("init storage", zap.Error(err))
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Fatal("ensure bucket", zap.Error(err))
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()
	tasks := queue.NewClient(asynqClient)

	assets := asset.NewStore(assetRepo, store, tasks, logger)
	share := service.NewShareService(caseRepo, assets, cfg.ShareTTL, logger)
	imports := service.NewImportService(caseRepo)

	srv := api.New(cfg, share, imports, assetRepo, store, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
