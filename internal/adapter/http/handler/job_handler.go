package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/plastinin/pagesolver/internal/adapter/http/dto"
	"github.com/plastinin/pagesolver/internal/domain"
	"github.com/plastinin/pagesolver/internal/usecase"
	"go.uber.org/zap"
)

// JobService операции над заданиями (реализует usecase.JobUseCase)
type JobService interface {
	Create(ctx context.Context, input usecase.CreateJobInput) (*domain.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	Pages(ctx context.Context, id uuid.UUID) ([]*domain.PageTask, error)
	List(ctx context.Context, filter domain.JobFilter, pagination domain.Pagination) (*domain.JobListResult, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// JobHandler обработчик HTTP запросов для заданий
type JobHandler struct {
	jobs          JobService
	maxUploadSize int64
	logger        *zap.Logger
}

// NewJobHandler создаёт новый JobHandler
func NewJobHandler(jobs JobService, maxUploadSize int64, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		jobs:          jobs,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// Create загружает документ и создаёт задание
// POST /api/v1/jobs
// Content-Type: multipart/form-data
// - file: PDF документ
// - detail_level: brief | standard | detailed (необязательно)
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "file_too_large", "File exceeds upload limit")
			return
		}
		h.logger.Warn("Failed to parse multipart form", zap.Error(err))
		h.respondError(w, http.StatusBadRequest, "invalid_request", "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.logger.Warn("Failed to get file from form", zap.Error(err))
		h.respondError(w, http.StatusBadRequest, "file_required", "File is required")
		return
	}
	defer file.Close()

	detail, err := domain.ParseDetailLevel(r.FormValue("detail_level"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_detail_level", "Detail level must be one of: brief, standard, detailed")
		return
	}

	// Браузеры часто присылают application/octet-stream, тогда смотрим на расширение
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || domain.ValidateContentType(contentType) != nil {
		ct, err := domain.ContentTypeFromFileName(header.Filename)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid_file_type", "Unsupported file type. Supported: PDF")
			return
		}
		contentType = ct
	}

	job, err := h.jobs.Create(r.Context(), usecase.CreateJobInput{
		FileName:    header.Filename,
		ContentType: contentType,
		FileSize:    header.Size,
		FileReader:  file,
		DetailLevel: detail,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupportedFileType):
			h.respondError(w, http.StatusBadRequest, "invalid_file_type", err.Error())
		case errors.Is(err, domain.ErrInvalidDetailLevel):
			h.respondError(w, http.StatusBadRequest, "invalid_detail_level", err.Error())
		default:
			h.logger.Error("Failed to create job", zap.Error(err))
			h.respondError(w, http.StatusInternalServerError, "internal_error", "Failed to create job")
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, dto.JobFromDomain(job))
}

// GetByID возвращает задание с прогрессом по страницам
// GET /api/v1/jobs/{id}
func (h *JobHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil {
		h.handleLookupError(w, err, id, "Failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, dto.JobFromDomain(job))
}

// Pages возвращает состояние страниц задания
// GET /api/v1/jobs/{id}/pages
func (h *JobHandler) Pages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	pages, err := h.jobs.Pages(r.Context(), id)
	if err != nil {
		h.handleLookupError(w, err, id, "Failed to list pages")
		return
	}

	h.respondJSON(w, http.StatusOK, dto.PagesFromDomain(pages))
}

// List возвращает список заданий
// GET /api/v1/jobs?page=1&page_size=20&status=running
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	pagination := domain.NewPagination(page, pageSize)

	filter := domain.JobFilter{}
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status := domain.JobStatus(statusStr)
		if !status.IsValid() {
			h.respondError(w, http.StatusBadRequest, "invalid_status", "Unknown job status")
			return
		}
		filter.Status = &status
	}

	result, err := h.jobs.List(r.Context(), filter, pagination)
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list jobs")
		return
	}

	h.respondJSON(w, http.StatusOK, dto.JobListFromDomain(result))
}

// Cancel запрашивает остановку задания после текущей страницы
// POST /api/v1/jobs/{id}/cancel
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Cancel(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidJobStatus) {
			h.respondError(w, http.StatusConflict, "job_finished", "Job is already in a final status")
			return
		}
		h.handleLookupError(w, err, id, "Failed to cancel job")
		return
	}

	h.respondJSON(w, http.StatusAccepted, dto.JobFromDomain(job))
}

// Delete удаляет задание
// DELETE /api/v1/jobs/{id}
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.jobs.Delete(r.Context(), id); err != nil {
		h.handleLookupError(w, err, id, "Failed to delete job")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_id", "Invalid job ID format")
		return uuid.Nil, false
	}
	return id, true
}

// handleLookupError 404 для отсутствующего задания, иначе 500
func (h *JobHandler) handleLookupError(w http.ResponseWriter, err error, id uuid.UUID, message string) {
	if errors.Is(err, domain.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "not_found", "Job not found")
		return
	}
	h.logger.Error(message, zap.String("job_id", id.String()), zap.Error(err))
	h.respondError(w, http.StatusInternalServerError, "internal_error", message)
}

// respondJSON отправляет JSON ответ
func (h *JobHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// respondError отправляет ответ с ошибкой
func (h *JobHandler) respondError(w http.ResponseWriter, status int, errCode string, message string) {
	h.respondJSON(w, status, dto.NewErrorResponse(status, errCode, message))
}
