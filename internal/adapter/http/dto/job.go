package dto

import (
	"time"

	"github.com/plastinin/pagesolver/internal/domain"
)

// PageResponse состояние одной страницы
type PageResponse struct {
	PageNumber int        `json:"page_number"`
	Status     string     `json:"status"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	Attempts   int        `json:"attempts"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// PageFromDomain конвертирует страницу в DTO
func PageFromDomain(p *domain.PageTask) *PageResponse {
	return &PageResponse{
		PageNumber: p.PageNumber,
		Status:     p.Status.String(),
		Result:     p.Result,
		Error:      p.Error,
		Attempts:   p.Attempts,
		StartedAt:  p.StartedAt,
		FinishedAt: p.FinishedAt,
	}
}

// PagesFromDomain конвертирует список страниц в DTO
func PagesFromDomain(pages []*domain.PageTask) []*PageResponse {
	out := make([]*PageResponse, len(pages))
	for i, p := range pages {
		out[i] = PageFromDomain(p)
	}
	return out
}

// JobResponse ответ с информацией о задании
type JobResponse struct {
	ID              string              `json:"id"`
	Status          string              `json:"status"`
	Mode            string              `json:"mode,omitempty"`
	FileName        string              `json:"file_name"`
	ContentType     string              `json:"content_type"`
	DetailLevel     string              `json:"detail_level"`
	PageCount       int                 `json:"page_count"`
	CancelRequested bool                `json:"cancel_requested"`
	Progress        *domain.JobProgress `json:"progress,omitempty"`
	Result          string              `json:"result,omitempty"`
	Error           string              `json:"error,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
}

// JobFromDomain конвертирует доменную модель в DTO.
// Прогресс включается, только если страницы загружены.
func JobFromDomain(job *domain.Job) *JobResponse {
	resp := &JobResponse{
		ID:              job.ID.String(),
		Status:          job.Status.String(),
		Mode:            job.Mode.String(),
		FileName:        job.FileName,
		ContentType:     job.ContentType,
		DetailLevel:     job.DetailLevel.String(),
		PageCount:       job.PageCount,
		CancelRequested: job.CancelRequested(),
		Result:          job.Result,
		Error:           job.Error,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		CompletedAt:     job.CompletedAt,
	}
	if len(job.Pages) > 0 {
		progress := job.Progress()
		resp.Progress = &progress
	}
	return resp
}

// JobListResponse ответ со списком заданий
type JobListResponse struct {
	Jobs       []*JobResponse `json:"jobs"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

// JobListFromDomain конвертирует результат списка в DTO
func JobListFromDomain(result *domain.JobListResult) *JobListResponse {
	jobs := make([]*JobResponse, len(result.Jobs))
	for i, job := range result.Jobs {
		jobs[i] = JobFromDomain(job)
	}

	return &JobListResponse{
		Jobs:       jobs,
		Total:      result.Total,
		Page:       result.Pagination.Page,
		PageSize:   result.Pagination.PageSize,
		TotalPages: result.TotalPages(),
	}
}
