package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/plastinin/pagesolver/internal/config"
	"go.uber.org/zap"
)

// failJobTimeout время на фиксацию ошибки задания после истечения ctx задачи
const failJobTimeout = 30 * time.Second

// JobProcessor обработчик задания, вызываемый воркером
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID uuid.UUID) error
	FailJob(ctx context.Context, jobID uuid.UUID, cause error) error
}

// JobConsumer обрабатывает задания из очереди
type JobConsumer struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	processor   JobProcessor
	lastAttempt func(ctx context.Context) bool
	logger      *zap.Logger
}

// NewJobConsumer создаёт новый экземпляр JobConsumer.
// Конкурентность маленькая: лимиты удалённого сервиса общие для всех заданий.
func NewJobConsumer(
	cfg config.RedisConfig,
	workerCfg config.WorkerConfig,
	processor JobProcessor,
	logger *zap.Logger,
) *JobConsumer {
	concurrency := workerCfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueProcessing: 10,
				"default":       1,
			},
			Logger: newAsynqLogger(logger),
		},
	)

	consumer := &JobConsumer{
		server:      server,
		mux:         asynq.NewServeMux(),
		processor:   processor,
		lastAttempt: isLastAttempt,
		logger:      logger,
	}

	consumer.mux.HandleFunc(TypeJobProcess, consumer.handleJobProcess)

	return consumer
}

// Start запускает обработку заданий
func (c *JobConsumer) Start() error {
	c.logger.Info("Starting job consumer")
	return c.server.Start(c.mux)
}

// Stop останавливает обработку заданий
func (c *JobConsumer) Stop() {
	c.logger.Info("Stopping job consumer")
	c.server.Stop()
	c.server.Shutdown()
}

// handleJobProcess обрабатывает задачу из очереди
func (c *JobConsumer) handleJobProcess(ctx context.Context, t *asynq.Task) error {
	jobID, err := parsePayload(t.Payload())
	if err != nil {
		c.logger.Error("Invalid job payload",
			zap.ByteString("payload", t.Payload()),
			zap.Error(err),
		)
		// Битый payload не исправится повтором
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	c.logger.Info("Processing job", zap.String("job_id", jobID.String()))

	if err := c.processor.ProcessJob(ctx, jobID); err != nil {
		c.logger.Error("Failed to process job",
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)

		// Остановка воркера возвращает задачу в очередь, попытка не расходуется
		if !errors.Is(err, context.Canceled) && c.lastAttempt(ctx) {
			c.failJob(ctx, jobID, err)
		}
		return err
	}

	return nil
}

// failJob закрывает задание, которое asynq больше не повторит
func (c *JobConsumer) failJob(ctx context.Context, jobID uuid.UUID, cause error) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failJobTimeout)
	defer cancel()

	if err := c.processor.FailJob(failCtx, jobID, cause); err != nil {
		c.logger.Error("Failed to mark job as failed",
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)
	}
}

// isLastAttempt сообщает, что после этой попытки задача уйдёт в архив
func isLastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried >= maxRetry
}

// parsePayload извлекает ID задания из payload
func parsePayload(data []byte) (uuid.UUID, error) {
	var payload JobProcessPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return uuid.Nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job ID: %w", err)
	}

	return jobID, nil
}

// asynqLogger адаптер логгера для asynq
type asynqLogger struct {
	logger *zap.SugaredLogger
}

func newAsynqLogger(logger *zap.Logger) *asynqLogger {
	return &asynqLogger{logger: logger.Named("asynq").Sugar()}
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(args...) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(args...) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(args...) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(args...) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal(args...) }
