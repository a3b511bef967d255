package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Job задание на обработку документа.
// Страницы изменяет только цикл обработки, флаг отмены можно выставить из любой горутины.
type Job struct {
	ID          uuid.UUID      `json:"id"`
	Status      JobStatus      `json:"status"`
	Mode        ProcessingMode `json:"mode,omitempty"`
	FileKey     string         `json:"file_key"`     // Ключ файла в S3
	FileName    string         `json:"file_name"`    // Оригинальное имя файла
	ContentType string         `json:"content_type"` // MIME тип
	DetailLevel DetailLevel    `json:"detail_level"`
	PageCount   int            `json:"page_count"`
	CurrentPage int            `json:"current_page"` // Страница, которая обрабатывается сейчас (0, если ни одна)
	Pages       []*PageTask    `json:"pages,omitempty"`
	Result      string         `json:"result,omitempty"` // Итоговый текст
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`

	cancelRequested atomic.Bool
}

// NewJob создаёт новое задание
func NewJob(fileKey, fileName, contentType string, detail DetailLevel) (*Job, error) {
	if fileKey == "" {
		return nil, ErrEmptyFileKey
	}
	if !detail.IsValid() {
		return nil, ErrInvalidDetailLevel
	}

	now := time.Now()

	return &Job{
		ID:          uuid.New(),
		Status:      JobStatusPending,
		FileKey:     fileKey,
		FileName:    fileName,
		ContentType: contentType,
		DetailLevel: detail,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// RequestCancel выставляет флаг отмены
func (j *Job) RequestCancel() {
	j.cancelRequested.Store(true)
}

// CancelRequested сообщает, запрошена ли отмена
func (j *Job) CancelRequested() bool {
	return j.cancelRequested.Load()
}

// MarkRunning переводит задание в работу и фиксирует режим и число страниц
func (j *Job) MarkRunning(mode ProcessingMode, pageCount int) error {
	if j.Status != JobStatusPending && j.Status != JobStatusRunning {
		return ErrInvalidJobStatus
	}
	j.Status = JobStatusRunning
	j.Mode = mode
	j.PageCount = pageCount
	j.UpdatedAt = time.Now()
	return nil
}

// InitPages создаёт задачи страниц. Повторный вызов сохраняет уже созданные задачи.
func (j *Job) InitPages() {
	if len(j.Pages) == j.PageCount {
		return
	}
	j.Pages = NewPageTasks(j.PageCount)
}

// Page возвращает задачу страницы по номеру (с 1)
func (j *Job) Page(pageNumber int) (*PageTask, error) {
	if pageNumber < 1 || pageNumber > len(j.Pages) {
		return nil, ErrPageOutOfRange
	}
	return j.Pages[pageNumber-1], nil
}

// MarkFinished завершает задание с итоговым текстом
func (j *Job) MarkFinished(result string) error {
	return j.finish(JobStatusFinished, result, "")
}

// MarkCancelled завершает задание по запросу отмены, частичный результат сохраняется
func (j *Job) MarkCancelled(result string) error {
	return j.finish(JobStatusCancelled, result, "")
}

// MarkFailed завершает задание с фатальной ошибкой
func (j *Job) MarkFailed(result, errMsg string) error {
	if j.Status.IsFinal() {
		return ErrInvalidJobStatus
	}
	return j.finish(JobStatusFailed, result, errMsg)
}

func (j *Job) finish(status JobStatus, result, errMsg string) error {
	if status != JobStatusFailed && j.Status != JobStatusRunning {
		return ErrInvalidJobStatus
	}
	now := time.Now()
	j.Status = status
	j.Result = result
	j.Error = errMsg
	j.CurrentPage = 0
	j.UpdatedAt = now
	j.CompletedAt = &now
	return nil
}

// JobProgress снимок прогресса задания для отображения
type JobProgress struct {
	CurrentPage int `json:"current_page"`
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Processing  int `json:"processing"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
}

// Progress возвращает снимок прогресса
func (j *Job) Progress() JobProgress {
	p := JobProgress{
		CurrentPage: j.CurrentPage,
		Total:       j.PageCount,
	}
	for _, page := range j.Pages {
		switch page.Status {
		case PageStatusPending:
			p.Pending++
		case PageStatusProcessing:
			p.Processing++
		case PageStatusCompleted:
			p.Completed++
		case PageStatusError:
			p.Failed++
		}
	}
	return p
}

// Result итог обработки задания
type Result struct {
	CombinedText string `json:"combined_text"`
	Completed    int    `json:"completed"`
	Failed       int    `json:"failed"`
	Pending      int    `json:"pending"`
	Cancelled    bool   `json:"cancelled"`
}
