package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/plastinin/pagesolver/internal/adapter/llm"
	"github.com/plastinin/pagesolver/internal/adapter/pdf"
	"github.com/plastinin/pagesolver/internal/adapter/queue"
	"github.com/plastinin/pagesolver/internal/adapter/repository"
	"github.com/plastinin/pagesolver/internal/adapter/storage"
	"github.com/plastinin/pagesolver/internal/config"
	"github.com/plastinin/pagesolver/internal/usecase"
	"github.com/plastinin/pagesolver/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	log := logger.Must(cfg.Log.Level, cfg.Log.Format, logger.WithService("worker"))
	defer log.Sync()

	log.Info("Starting pagesolver worker",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Int("single_page_threshold", cfg.Pipeline.SinglePageThreshold),
		zap.Duration("page_delay", cfg.Pipeline.PageDelay),
		zap.Duration("rate_limit_backoff", cfg.Pipeline.RateLimitBackoff),
	)

	ctx := context.Background()

	dbPool, err := repository.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()
	log.Info("Connected to PostgreSQL")

	if err := repository.Migrate(ctx, dbPool); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}

	s3Storage, err := storage.NewS3Storage(ctx, cfg.S3)
	if err != nil {
		log.Fatal("Failed to connect to S3", zap.Error(err))
	}
	log.Info("Connected to S3",
		zap.String("endpoint", cfg.S3.Endpoint),
		zap.String("bucket", cfg.S3.Bucket),
	)

	transformer, err := llm.NewTransformer(cfg, log)
	if err != nil {
		log.Fatal("Failed to create transformer", zap.Error(err))
	}

	if ollamaClient, ok := transformer.(*llm.OllamaClient); ok {
		if err := ollamaClient.CheckHealth(ctx); err != nil {
			log.Warn("Ollama health check failed", zap.Error(err))
			log.Warn("Make sure Ollama is running: ollama serve")
		} else if err := ollamaClient.CheckModel(ctx); err != nil {
			log.Warn("Model check failed", zap.Error(err))
		}
	}

	processor := usecase.NewProcessor(
		pdf.NewExtractor(),
		transformer,
		usecase.TimerPacer{},
		usecase.ProcessorConfig{
			SinglePageThreshold: cfg.Pipeline.SinglePageThreshold,
			PageDelay:           cfg.Pipeline.PageDelay,
			RateLimitBackoff:    cfg.Pipeline.RateLimitBackoff,
			RateLimitRetries:    cfg.Pipeline.RateLimitRetries,
			ScaleFactor:         cfg.Pipeline.ScaleFactor,
		},
		log.Named("processor"),
	)

	jobRepo := repository.NewJobRepository(dbPool)
	solveUC := usecase.NewSolveUseCase(jobRepo, s3Storage, processor, log)

	consumer := queue.NewJobConsumer(cfg.Redis, cfg.Worker, solveUC, log)

	go func() {
		if err := consumer.Start(); err != nil {
			log.Fatal("Failed to start consumer", zap.Error(err))
		}
	}()

	log.Info("Worker started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker...")

	consumer.Stop()

	log.Info("Worker stopped")
}
