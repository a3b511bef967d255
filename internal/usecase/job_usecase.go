package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/plastinin/pagesolver/internal/domain"
	"go.uber.org/zap"
)

// JobUseCase бизнес-логика работы с заданиями
type JobUseCase struct {
	jobRepo     JobRepository
	fileStorage FileStorage
	jobQueue    JobQueue
	logger      *zap.Logger
}

// NewJobUseCase создаёт новый экземпляр JobUseCase
func NewJobUseCase(
	jobRepo JobRepository,
	fileStorage FileStorage,
	jobQueue JobQueue,
	logger *zap.Logger,
) *JobUseCase {
	return &JobUseCase{
		jobRepo:     jobRepo,
		fileStorage: fileStorage,
		jobQueue:    jobQueue,
		logger:      logger,
	}
}

// Create сохраняет документ и ставит задание в очередь
func (uc *JobUseCase) Create(ctx context.Context, input CreateJobInput) (*domain.Job, error) {
	if err := domain.ValidateContentType(input.ContentType); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if !input.DetailLevel.IsValid() {
		return nil, fmt.Errorf("validation error: %w", domain.ErrInvalidDetailLevel)
	}

	fileKey, err := uc.fileStorage.Upload(ctx, input.FileName, input.ContentType, input.FileReader, input.FileSize)
	if err != nil {
		uc.logger.Error("Failed to upload file to storage",
			zap.String("file_name", input.FileName),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	job, err := domain.NewJob(fileKey, input.FileName, input.ContentType, input.DetailLevel)
	if err != nil {
		_ = uc.fileStorage.Delete(ctx, fileKey)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := uc.jobRepo.Create(ctx, job); err != nil {
		_ = uc.fileStorage.Delete(ctx, fileKey)
		uc.logger.Error("Failed to save job to database",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	// Задание уже сохранено, ошибку очереди только логируем
	if err := uc.jobQueue.Enqueue(ctx, job.ID); err != nil {
		uc.logger.Error("Failed to enqueue job",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}

	uc.logger.Info("Job created",
		zap.String("job_id", job.ID.String()),
		zap.String("file_name", input.FileName),
		zap.String("detail_level", input.DetailLevel.String()),
	)

	return job, nil
}

// GetByID возвращает задание вместе со страницами
func (uc *JobUseCase) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := uc.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	pages, err := uc.jobRepo.ListPages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	job.Pages = pages

	return job, nil
}

// Pages возвращает задачи страниц задания
func (uc *JobUseCase) Pages(ctx context.Context, id uuid.UUID) ([]*domain.PageTask, error) {
	if _, err := uc.jobRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return uc.jobRepo.ListPages(ctx, id)
}

// List возвращает список заданий
func (uc *JobUseCase) List(ctx context.Context, filter domain.JobFilter, pagination domain.Pagination) (*domain.JobListResult, error) {
	return uc.jobRepo.List(ctx, filter, pagination)
}

// Cancel запрашивает кооперативную отмену. Воркер увидит флаг перед следующей страницей.
func (uc *JobUseCase) Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := uc.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsFinal() {
		return nil, domain.ErrInvalidJobStatus
	}

	if err := uc.jobRepo.RequestCancel(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to request cancel: %w", err)
	}
	job.RequestCancel()

	uc.logger.Info("Job cancel requested",
		zap.String("job_id", id.String()),
		zap.String("status", job.Status.String()),
	)

	return job, nil
}

// Delete удаляет задание и связанный файл
func (uc *JobUseCase) Delete(ctx context.Context, id uuid.UUID) error {
	job, err := uc.jobRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := uc.fileStorage.Delete(ctx, job.FileKey); err != nil {
		uc.logger.Warn("Failed to delete file from storage",
			zap.String("job_id", id.String()),
			zap.String("file_key", job.FileKey),
			zap.Error(err),
		)
	}

	if err := uc.jobRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	uc.logger.Info("Job deleted", zap.String("job_id", id.String()))

	return nil
}
