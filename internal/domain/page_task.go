package domain

import "time"

// PageStatus представляет статус обработки одной страницы
type PageStatus string

const (
	PageStatusPending    PageStatus = "pending"    // Страница ожидает обработки
	PageStatusProcessing PageStatus = "processing" // Страница в обработке
	PageStatusCompleted  PageStatus = "completed"  // Страница обработана
	PageStatusError      PageStatus = "error"      // Обработка страницы завершилась ошибкой
)

// IsValid проверяет валидность статуса
func (s PageStatus) IsValid() bool {
	switch s {
	case PageStatusPending, PageStatusProcessing, PageStatusCompleted, PageStatusError:
		return true
	}
	return false
}

// IsFinal проверяет, является ли статус финальным
func (s PageStatus) IsFinal() bool {
	return s == PageStatusCompleted || s == PageStatusError
}

func (s PageStatus) String() string {
	return string(s)
}

// PageTask жизненный цикл обработки одной страницы документа
type PageTask struct {
	PageNumber int        `json:"page_number"` // Номер страницы, начиная с 1
	Status     PageStatus `json:"status"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	Attempts   int        `json:"attempts"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewPageTasks создаёт задачи для всех страниц документа в статусе pending
func NewPageTasks(pageCount int) []*PageTask {
	pages := make([]*PageTask, pageCount)
	for i := range pages {
		pages[i] = &PageTask{
			PageNumber: i + 1,
			Status:     PageStatusPending,
		}
	}
	return pages
}

// MarkProcessing переводит страницу в статус "в обработке"
func (p *PageTask) MarkProcessing() error {
	if p.Status != PageStatusPending {
		return ErrInvalidPageStatus
	}
	now := time.Now()
	p.Status = PageStatusProcessing
	p.StartedAt = &now
	return nil
}

// MarkCompleted сохраняет результат страницы
func (p *PageTask) MarkCompleted(result string) error {
	if p.Status != PageStatusProcessing {
		return ErrInvalidPageStatus
	}
	now := time.Now()
	p.Status = PageStatusCompleted
	p.Result = result
	p.FinishedAt = &now
	return nil
}

// MarkError сохраняет ошибку страницы
func (p *PageTask) MarkError(errMsg string) error {
	if p.Status != PageStatusProcessing {
		return ErrInvalidPageStatus
	}
	now := time.Now()
	p.Status = PageStatusError
	p.Error = errMsg
	p.FinishedAt = &now
	return nil
}
