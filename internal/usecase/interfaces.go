package usecase

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/plastinin/pagesolver/internal/domain"
)

// JobRepository интерфейс для работы с хранилищем заданий
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter domain.JobFilter, pagination domain.Pagination) (*domain.JobListResult, error)

	// SavePages создаёт или перезаписывает задачи страниц задания
	SavePages(ctx context.Context, jobID uuid.UUID, pages []*domain.PageTask) error
	// UpdatePage сохраняет состояние одной страницы и текущую страницу задания
	UpdatePage(ctx context.Context, jobID uuid.UUID, page *domain.PageTask) error
	ListPages(ctx context.Context, jobID uuid.UUID) ([]*domain.PageTask, error)

	RequestCancel(ctx context.Context, id uuid.UUID) error
	IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)
}

// FileStorage интерфейс для работы с файловым хранилищем (S3)
type FileStorage interface {
	Upload(ctx context.Context, fileName string, contentType string, reader io.Reader, size int64) (fileKey string, err error)
	Download(ctx context.Context, fileKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, fileKey string) error
}

// JobQueue интерфейс для работы с очередью заданий
type JobQueue interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
}

// PageExtractor открывает документ для постраничного рендеринга
type PageExtractor interface {
	Open(data []byte) (Document, error)
}

// Document открытый документ.
// Ошибки открытия и рендеринга оборачивают domain.ErrDocumentParse.
type Document interface {
	PageCount() int
	RenderPage(pageNumber int, scale float64) ([]byte, error)
	Close() error
}

// DocumentTransformer удалённое преобразование документа (LLM).
// Ошибки желательно возвращать как *domain.TransformError.
type DocumentTransformer interface {
	TransformDocument(ctx context.Context, req DocumentRequest) (string, error)
	TransformPage(ctx context.Context, req PageRequest) (string, error)
}

// Pacer ожидание между запросами к удалённому сервису
type Pacer interface {
	Wait(ctx context.Context, d time.Duration) error
}

// Observer получает изменения страниц и сообщает о запросе отмены
type Observer interface {
	PageUpdated(ctx context.Context, job *domain.Job, page *domain.PageTask)
	CancelRequested(ctx context.Context, job *domain.Job) bool
}
