package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/detective-board/caseshare/internal/config"
	"github.com/detective-board/caseshare/internal/database"
	"github.com/detective-board/caseshare/internal/queue"
	"github.com/detective-board/caseshare/internal/repository"
	"github.com/detective-board/caseshare/internal/s3storage"
	"github.com/detective-board/caseshare/internal/worker"
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
	assetRepo := repository.NewAssetRepository(pool)
	caseRepo := repository.NewCaseRepository(pool)

	store, err := s3storage.New(cfg)
	if err != nil {
		logger.Fatal("init storage", zap.Error(err))
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// The scheduler feeds the periodic purge into the same queue the API
	// feeds inspections into.
	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register(cfg.PurgeSchedule, queue.NewPurgeTask()); err != nil {
		logger.Fatal("register purge schedule", zap.Error(err))
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
	})
	processor := worker.NewProcessor(assetRepo, caseRepo, store, logger)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		scheduler.Shutdown()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}
