package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/plastinin/pagesolver/internal/domain"
	"go.uber.org/zap"
)

// interruptedPageError текст ошибки страницы, обработка которой оборвалась вместе с воркером
const interruptedPageError = "processing interrupted"

// SolveUseCase запускает обработку заданий из очереди и сохраняет прогресс
type SolveUseCase struct {
	jobRepo     JobRepository
	fileStorage FileStorage
	processor   *Processor
	logger      *zap.Logger
}

// NewSolveUseCase создаёт новый экземпляр SolveUseCase
func NewSolveUseCase(
	jobRepo JobRepository,
	fileStorage FileStorage,
	processor *Processor,
	logger *zap.Logger,
) *SolveUseCase {
	return &SolveUseCase{
		jobRepo:     jobRepo,
		fileStorage: fileStorage,
		processor:   processor,
		logger:      logger,
	}
}

// ProcessJob обрабатывает задание.
// Ошибка возвращается только если повтор задания имеет смысл.
func (uc *SolveUseCase) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	uc.logger.Info("Starting job processing", zap.String("job_id", jobID.String()))

	job, err := uc.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	if job.Status.IsFinal() {
		uc.logger.Warn("Job already in final status, skipping",
			zap.String("job_id", jobID.String()),
			zap.String("status", job.Status.String()),
		)
		return nil
	}

	restored, err := uc.restorePages(ctx, job)
	if err != nil {
		return err
	}
	if restored {
		uc.logger.Info("Resuming interrupted job",
			zap.String("job_id", job.ID.String()),
			zap.Int("pending", job.Progress().Pending),
		)
	}

	fileReader, err := uc.fileStorage.Download(ctx, job.FileKey)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer fileReader.Close()

	data, err := io.ReadAll(fileReader)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	uc.logger.Debug("File downloaded from storage",
		zap.String("job_id", jobID.String()),
		zap.Int("file_size", len(data)),
	)

	observer := &persistingObserver{repo: uc.jobRepo, logger: uc.logger}

	result, runErr := uc.processor.Run(ctx, job, data, observer)
	if runErr != nil && ctx.Err() != nil {
		// Воркер останавливается, задание продолжится при повторе
		return runErr
	}

	if job.Mode == domain.ModePageByPage && !observer.pagesSaved {
		if err := uc.jobRepo.SavePages(ctx, job.ID, job.Pages); err != nil {
			uc.logger.Error("Failed to save pages", zap.String("job_id", jobID.String()), zap.Error(err))
		}
	}

	if err := uc.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	if runErr != nil {
		uc.logger.Error("Job failed",
			zap.String("job_id", jobID.String()),
			zap.Error(runErr),
		)
		// Повтор не поможет: документ повреждён или удалённый сервис отклонил запрос
		return nil
	}

	uc.logger.Info("Job processed",
		zap.String("job_id", jobID.String()),
		zap.String("status", job.Status.String()),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.Int("pending", result.Pending),
	)

	return nil
}

// FailJob завершает задание ошибкой, когда повторы в очереди исчерпаны.
// Готовые страницы попадают в частичный результат.
func (uc *SolveUseCase) FailJob(ctx context.Context, jobID uuid.UUID, cause error) error {
	job, err := uc.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	if job.Status.IsFinal() {
		return nil
	}

	if _, err := uc.restorePages(ctx, job); err != nil {
		return err
	}

	result := domain.Summarize(job.Pages, false)
	if err := job.MarkFailed(result.CombinedText, cause.Error()); err != nil {
		return err
	}

	if err := uc.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	uc.logger.Error("Job failed after retries exhausted",
		zap.String("job_id", jobID.String()),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.Int("pending", result.Pending),
		zap.Error(cause),
	)

	return nil
}

// restorePages загружает страницы прерванного запуска.
// Страница, оставшаяся в обработке, закрывается ошибкой: повторно её не отправляем.
func (uc *SolveUseCase) restorePages(ctx context.Context, job *domain.Job) (bool, error) {
	if job.Status != domain.JobStatusRunning {
		return false, nil
	}

	pages, err := uc.jobRepo.ListPages(ctx, job.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list pages: %w", err)
	}
	if len(pages) == 0 || len(pages) != job.PageCount {
		return false, nil
	}

	for _, page := range pages {
		if page.Status != domain.PageStatusProcessing {
			continue
		}
		if err := page.MarkError(interruptedPageError); err != nil {
			return false, err
		}
		if err := uc.jobRepo.UpdatePage(ctx, job.ID, page); err != nil {
			return false, fmt.Errorf("failed to update page: %w", err)
		}
	}

	job.Pages = pages

	return true, nil
}

// persistingObserver сохраняет каждое изменение страницы и читает флаг отмены из БД
type persistingObserver struct {
	repo       JobRepository
	logger     *zap.Logger
	pagesSaved bool
}

func (o *persistingObserver) PageUpdated(ctx context.Context, job *domain.Job, page *domain.PageTask) {
	if !o.pagesSaved {
		// Первое изменение: фиксируем режим, число страниц и весь набор задач
		if err := o.repo.Update(ctx, job); err != nil {
			o.logger.Error("Failed to update job", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
		if err := o.repo.SavePages(ctx, job.ID, job.Pages); err != nil {
			o.logger.Error("Failed to save pages", zap.String("job_id", job.ID.String()), zap.Error(err))
			return
		}
		o.pagesSaved = true
		return
	}

	if err := o.repo.UpdatePage(ctx, job.ID, page); err != nil {
		o.logger.Error("Failed to update page",
			zap.String("job_id", job.ID.String()),
			zap.Int("page", page.PageNumber),
			zap.Error(err),
		)
	}
}

func (o *persistingObserver) CancelRequested(ctx context.Context, job *domain.Job) bool {
	if job.CancelRequested() {
		return true
	}

	requested, err := o.repo.IsCancelRequested(ctx, job.ID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			o.logger.Warn("Failed to read cancel flag", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
		return false
	}
	if requested {
		job.RequestCancel()
	}

	return requested
}
