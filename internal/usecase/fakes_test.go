package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plastinin/pagesolver/internal/domain"
)

// fakeDocument документ с заданным числом страниц, рендер возвращает номер страницы
type fakeDocument struct {
	pages       int
	renderErrAt int
	closed      bool
}

func (d *fakeDocument) PageCount() int { return d.pages }

func (d *fakeDocument) RenderPage(n int, _ float64) ([]byte, error) {
	if n == d.renderErrAt {
		return nil, domain.NewDocumentParseError(fmt.Sprintf("failed to render page %d", n), nil)
	}
	return []byte(fmt.Sprintf("png-%d", n)), nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

type fakeExtractor struct {
	doc *fakeDocument
	err error
}

func (e *fakeExtractor) Open([]byte) (Document, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.doc, nil
}

// scriptedTransformer отвечает "answer N" либо ошибкой из script по номеру страницы.
// Ошибки из очереди script[n] расходуются по одной на вызов.
type scriptedTransformer struct {
	mu        sync.Mutex
	script    map[int][]error
	onPage    func(n int)
	pageCalls []int
	docCalls  int
	docResult string
	docErr    error
}

func (t *scriptedTransformer) TransformPage(_ context.Context, req PageRequest) (string, error) {
	t.mu.Lock()
	t.pageCalls = append(t.pageCalls, req.PageNumber)
	var err error
	if queue := t.script[req.PageNumber]; len(queue) > 0 {
		err, t.script[req.PageNumber] = queue[0], queue[1:]
	}
	hook := t.onPage
	t.mu.Unlock()

	if hook != nil {
		hook(req.PageNumber)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("answer %d", req.PageNumber), nil
}

func (t *scriptedTransformer) TransformDocument(_ context.Context, req DocumentRequest) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docCalls++
	if t.docErr != nil {
		return "", t.docErr
	}
	if t.docResult != "" {
		return t.docResult, nil
	}
	return fmt.Sprintf("solved %d pages", len(req.Pages)), nil
}

func (t *scriptedTransformer) calls() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.pageCalls...)
}

// recordingPacer запоминает паузы и не ждёт
type recordingPacer struct {
	mu    sync.Mutex
	waits []time.Duration
	err   error
}

func (p *recordingPacer) Wait(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits = append(p.waits, d)
	if p.err != nil {
		return p.err
	}
	return ctx.Err()
}

func (p *recordingPacer) recorded() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.waits...)
}

func rateLimitErr() error {
	return &domain.TransformError{Kind: domain.TransformRateLimited, Message: "429 too many requests"}
}

// memoryJobRepo хранилище заданий в памяти
type memoryJobRepo struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*domain.Job
	pages     map[uuid.UUID][]*domain.PageTask
	cancelled map[uuid.UUID]bool
	updates   int
	savePages int
	pageSaves []int
}

func newMemoryJobRepo() *memoryJobRepo {
	return &memoryJobRepo{
		jobs:      make(map[uuid.UUID]*domain.Job),
		pages:     make(map[uuid.UUID][]*domain.PageTask),
		cancelled: make(map[uuid.UUID]bool),
	}
}

func copyJob(j *domain.Job) *domain.Job {
	out := &domain.Job{
		ID:          j.ID,
		Status:      j.Status,
		Mode:        j.Mode,
		FileKey:     j.FileKey,
		FileName:    j.FileName,
		ContentType: j.ContentType,
		DetailLevel: j.DetailLevel,
		PageCount:   j.PageCount,
		CurrentPage: j.CurrentPage,
		Result:      j.Result,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		CompletedAt: j.CompletedAt,
	}
	return out
}

func copyPages(pages []*domain.PageTask) []*domain.PageTask {
	out := make([]*domain.PageTask, len(pages))
	for i, p := range pages {
		cp := *p
		out[i] = &cp
	}
	return out
}

func (r *memoryJobRepo) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = copyJob(job)
	return nil
}

func (r *memoryJobRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	out := copyJob(j)
	if r.cancelled[id] {
		out.RequestCancel()
	}
	return out, nil
}

func (r *memoryJobRepo) Update(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return domain.ErrJobNotFound
	}
	r.jobs[job.ID] = copyJob(job)
	r.updates++
	return nil
}

func (r *memoryJobRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(r.jobs, id)
	delete(r.pages, id)
	return nil
}

func (r *memoryJobRepo) List(_ context.Context, filter domain.JobFilter, pagination domain.Pagination) (*domain.JobListResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]*domain.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if filter.Status != nil && j.Status != *filter.Status {
			continue
		}
		jobs = append(jobs, copyJob(j))
	}
	return &domain.JobListResult{Jobs: jobs, Total: len(jobs), Pagination: pagination}, nil
}

func (r *memoryJobRepo) SavePages(_ context.Context, jobID uuid.UUID, pages []*domain.PageTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[jobID] = copyPages(pages)
	r.savePages++
	return nil
}

func (r *memoryJobRepo) UpdatePage(_ context.Context, jobID uuid.UUID, page *domain.PageTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pages := r.pages[jobID]
	if page.PageNumber < 1 || page.PageNumber > len(pages) {
		return domain.ErrPageOutOfRange
	}
	cp := *page
	pages[page.PageNumber-1] = &cp
	r.pageSaves = append(r.pageSaves, page.PageNumber)
	return nil
}

func (r *memoryJobRepo) ListPages(_ context.Context, jobID uuid.UUID) ([]*domain.PageTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyPages(r.pages[jobID]), nil
}

func (r *memoryJobRepo) RequestCancel(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	r.cancelled[id] = true
	return nil
}

func (r *memoryJobRepo) IsCancelRequested(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return false, domain.ErrJobNotFound
	}
	return r.cancelled[id], nil
}

func (r *memoryJobRepo) stored(id uuid.UUID) *domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

// memoryStorage файловое хранилище в памяти
type memoryStorage struct {
	mu        sync.Mutex
	files     map[string][]byte
	uploadErr error
	deleted   []string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{files: make(map[string][]byte)}
}

func (s *memoryStorage) Upload(_ context.Context, fileName, _ string, reader io.Reader, _ int64) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := "documents/" + uuid.NewString() + "/" + fileName
	s.files[key] = data
	return key, nil
}

func (s *memoryStorage) Download(_ context.Context, fileKey string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[fileKey]
	if !ok {
		return nil, fmt.Errorf("object %s not found", fileKey)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStorage) Delete(_ context.Context, fileKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, fileKey)
	s.deleted = append(s.deleted, fileKey)
	return nil
}

type recordingQueue struct {
	mu       sync.Mutex
	enqueued []uuid.UUID
	err      error
}

func (q *recordingQueue) Enqueue(_ context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, jobID)
	return nil
}
