package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/plastinin/pagesolver/internal/config"
)

// Типы задач
const (
	TypeJobProcess = "job:process"
)

// QueueProcessing очередь обработки документов
const QueueProcessing = "processing"

// JobProcessPayload данные задачи на обработку документа
type JobProcessPayload struct {
	JobID string `json:"job_id"`
}

// JobProducer отправляет задания в очередь
type JobProducer struct {
	client      *asynq.Client
	maxRetry    int
	taskTimeout time.Duration
}

// NewJobProducer создаёт новый экземпляр JobProducer
func NewJobProducer(cfg config.RedisConfig, workerCfg config.WorkerConfig) *JobProducer {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &JobProducer{
		client:      client,
		maxRetry:    workerCfg.MaxRetry,
		taskTimeout: workerCfg.TaskTimeout,
	}
}

// Enqueue добавляет задание в очередь.
// ID задачи asynq совпадает с ID задания, повторная постановка того же задания отклоняется.
func (p *JobProducer) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	payload, err := json.Marshal(JobProcessPayload{
		JobID: jobID.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := asynq.NewTask(TypeJobProcess, payload)

	_, err = p.client.EnqueueContext(ctx, task, p.taskOptions(jobID)...)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// taskOptions параметры задачи.
// Таймаут задаётся явно: стандартные 30 минут asynq меньше времени обработки длинного документа.
func (p *JobProducer) taskOptions(jobID uuid.UUID) []asynq.Option {
	return []asynq.Option{
		asynq.MaxRetry(p.maxRetry),
		asynq.Queue(QueueProcessing),
		asynq.TaskID(jobID.String()),
		asynq.Timeout(p.taskTimeout),
	}
}

// Close закрывает соединение
func (p *JobProducer) Close() error {
	return p.client.Close()
}
