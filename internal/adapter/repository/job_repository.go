package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plastinin/pagesolver/internal/domain"
)

// JobRepository реализация репозитория заданий для PostgreSQL
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository создаёт новый экземпляр JobRepository
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, status, mode, file_key, file_name, content_type, detail_level, page_count, current_page,
	cancel_requested, result, error, created_at, updated_at, completed_at`

// Create создаёт новое задание в БД
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, status, mode, file_key, file_name, content_type, detail_level, page_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.Mode,
		job.FileKey,
		job.FileName,
		job.ContentType,
		job.DetailLevel,
		job.PageCount,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// GetByID возвращает задание по ID (без страниц)
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// Update обновляет задание в БД. Флаг отмены не перезаписывается.
func (r *JobRepository) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET status = $2, mode = $3, page_count = $4, current_page = $5, result = $6, error = $7,
			updated_at = $8, completed_at = $9
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.Mode,
		job.PageCount,
		job.CurrentPage,
		nullString(job.Result),
		nullString(job.Error),
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}

	return nil
}

// Delete удаляет задание из БД, страницы удаляются каскадно
func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}

	return nil
}

// List возвращает список заданий с пагинацией и фильтрацией
func (r *JobRepository) List(ctx context.Context, filter domain.JobFilter, pagination domain.Pagination) (*domain.JobListResult, error) {
	baseQuery := `FROM jobs WHERE 1=1`
	args := []any{}
	argIndex := 1

	if filter.Status != nil {
		baseQuery += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, *filter.Status)
		argIndex++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	selectQuery := fmt.Sprintf(`SELECT %s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		jobColumns, baseQuery, argIndex, argIndex+1)
	args = append(args, pagination.Limit(), pagination.Offset())

	rows, err := r.pool.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return &domain.JobListResult{
		Jobs:       jobs,
		Total:      total,
		Pagination: pagination,
	}, nil
}

// SavePages создаёт или перезаписывает задачи страниц в одной транзакции
func (r *JobRepository) SavePages(ctx context.Context, jobID uuid.UUID, pages []*domain.PageTask) error {
	query := `
		INSERT INTO page_tasks (job_id, page_number, status, result, error, attempts, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id, page_number) DO UPDATE
		SET status = EXCLUDED.status, result = EXCLUDED.result, error = EXCLUDED.error,
			attempts = EXCLUDED.attempts, started_at = EXCLUDED.started_at, finished_at = EXCLUDED.finished_at
	`

	batch := &pgx.Batch{}
	for _, p := range pages {
		batch.Queue(query, jobID, p.PageNumber, p.Status, nullString(p.Result), nullString(p.Error),
			p.Attempts, p.StartedAt, p.FinishedAt)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to save pages: %w", err)
	}

	return nil
}

// UpdatePage сохраняет состояние страницы и номер текущей страницы задания
func (r *JobRepository) UpdatePage(ctx context.Context, jobID uuid.UUID, page *domain.PageTask) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE page_tasks
			SET status = $3, result = $4, error = $5, attempts = $6, started_at = $7, finished_at = $8
			WHERE job_id = $1 AND page_number = $2
		`, jobID, page.PageNumber, page.Status, nullString(page.Result), nullString(page.Error),
			page.Attempts, page.StartedAt, page.FinishedAt)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrPageOutOfRange
		}

		_, err = tx.Exec(ctx,
			`UPDATE jobs SET current_page = $2, updated_at = NOW() WHERE id = $1`,
			jobID, page.PageNumber)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update page %d: %w", page.PageNumber, err)
	}

	return nil
}

// ListPages возвращает страницы задания по возрастанию номера
func (r *JobRepository) ListPages(ctx context.Context, jobID uuid.UUID) ([]*domain.PageTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT page_number, status, result, error, attempts, started_at, finished_at
		FROM page_tasks
		WHERE job_id = $1
		ORDER BY page_number
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	pages := make([]*domain.PageTask, 0)
	for rows.Next() {
		page := &domain.PageTask{}
		var result, errMsg *string // Указатели для NULL

		err := rows.Scan(
			&page.PageNumber,
			&page.Status,
			&result,
			&errMsg,
			&page.Attempts,
			&page.StartedAt,
			&page.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}

		page.Result = derefString(result)
		page.Error = derefString(errMsg)
		pages = append(pages, page)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return pages, nil
}

// RequestCancel выставляет флаг отмены
func (r *JobRepository) RequestCancel(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE jobs SET cancel_requested = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// IsCancelRequested читает флаг отмены
func (r *JobRepository) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	err := r.pool.QueryRow(ctx, `SELECT cancel_requested FROM jobs WHERE id = $1`, id).Scan(&requested)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrJobNotFound
		}
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return requested, nil
}

// scanJob сканирует строку jobs в доменную модель
func scanJob(row pgx.Row) (*domain.Job, error) {
	job := &domain.Job{}
	var result, errMsg *string // Указатели для NULL
	var cancelRequested bool

	err := row.Scan(
		&job.ID,
		&job.Status,
		&job.Mode,
		&job.FileKey,
		&job.FileName,
		&job.ContentType,
		&job.DetailLevel,
		&job.PageCount,
		&job.CurrentPage,
		&cancelRequested,
		&result,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Result = derefString(result)
	job.Error = derefString(errMsg)
	if cancelRequested {
		job.RequestCancel()
	}

	return job, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
