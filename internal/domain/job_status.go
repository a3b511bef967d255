package domain

// JobStatus представляет статус задания на обработку документа
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"   // Задание создано, ожидает воркера
	JobStatusRunning   JobStatus = "running"   // Задание обрабатывается
	JobStatusFinished  JobStatus = "finished"  // Все страницы пройдены
	JobStatusCancelled JobStatus = "cancelled" // Остановлено по запросу пользователя
	JobStatusFailed    JobStatus = "failed"    // Фатальная ошибка
)

// IsValid проверяет валидность статуса
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusFinished, JobStatusCancelled, JobStatusFailed:
		return true
	}
	return false
}

// IsFinal проверяет, является ли статус финальным
func (s JobStatus) IsFinal() bool {
	return s == JobStatusFinished || s == JobStatusCancelled || s == JobStatusFailed
}

func (s JobStatus) String() string {
	return string(s)
}

// ProcessingMode способ обработки документа
type ProcessingMode string

const (
	ModeSingle     ProcessingMode = "single"       // Один вызов на весь документ
	ModePageByPage ProcessingMode = "page_by_page" // Один вызов на страницу
)

func (m ProcessingMode) String() string {
	return string(m)
}

// SelectMode выбирает режим по количеству страниц.
// Документ с числом страниц не больше порога обрабатывается целиком.
func SelectMode(pageCount, threshold int) ProcessingMode {
	if pageCount <= threshold {
		return ModeSingle
	}
	return ModePageByPage
}

// DetailLevel уровень детализации ответа, выбранный пользователем
type DetailLevel string

const (
	DetailBrief    DetailLevel = "brief"
	DetailStandard DetailLevel = "standard"
	DetailDetailed DetailLevel = "detailed"
)

// ParseDetailLevel разбирает уровень детализации, пустая строка даёт standard
func ParseDetailLevel(s string) (DetailLevel, error) {
	if s == "" {
		return DetailStandard, nil
	}
	d := DetailLevel(s)
	if !d.IsValid() {
		return "", ErrInvalidDetailLevel
	}
	return d, nil
}

// IsValid проверяет валидность уровня детализации
func (d DetailLevel) IsValid() bool {
	switch d {
	case DetailBrief, DetailStandard, DetailDetailed:
		return true
	}
	return false
}

func (d DetailLevel) String() string {
	return string(d)
}
