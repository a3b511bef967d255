package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/plastinin/pagesolver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type solveFixture struct {
	repo        *memoryJobRepo
	storage     *memoryStorage
	doc         *fakeDocument
	transformer *scriptedTransformer
	uc          *SolveUseCase
	job         *domain.Job
}

func newSolveFixture(t *testing.T, pages int) *solveFixture {
	t.Helper()

	f := &solveFixture{
		repo:        newMemoryJobRepo(),
		storage:     newMemoryStorage(),
		doc:         &fakeDocument{pages: pages},
		transformer: &scriptedTransformer{script: map[int][]error{}},
	}
	processor := NewProcessor(&fakeExtractor{doc: f.doc}, f.transformer, &recordingPacer{}, DefaultProcessorConfig(), zap.NewNop())
	f.uc = NewSolveUseCase(f.repo, f.storage, processor, zap.NewNop())

	key, err := f.storage.Upload(context.Background(), "booklet.pdf", "application/pdf", strings.NewReader("%PDF"), 4)
	require.NoError(t, err)

	job, err := domain.NewJob(key, "booklet.pdf", "application/pdf", domain.DetailBrief)
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(context.Background(), job))
	f.job = job

	return f
}

func TestSolveUseCase_ProcessJobPersistsPages(t *testing.T) {
	f := newSolveFixture(t, 7)

	require.NoError(t, f.uc.ProcessJob(context.Background(), f.job.ID))

	stored := f.repo.stored(f.job.ID)
	assert.Equal(t, domain.JobStatusFinished, stored.Status)
	assert.Equal(t, domain.ModePageByPage, stored.Mode)
	assert.Equal(t, 7, stored.PageCount)
	assert.Equal(t, 7, strings.Count(stored.Result, "## Page "))

	pages, err := f.repo.ListPages(context.Background(), f.job.ID)
	require.NoError(t, err)
	require.Len(t, pages, 7)
	for _, p := range pages {
		assert.Equal(t, domain.PageStatusCompleted, p.Status)
	}
	// Первое изменение сохраняет весь набор, остальные по одной странице
	assert.Equal(t, 1, f.repo.savePages)
	assert.Len(t, f.repo.pageSaves, 13)
}

func TestSolveUseCase_SingleMode(t *testing.T) {
	f := newSolveFixture(t, 2)

	require.NoError(t, f.uc.ProcessJob(context.Background(), f.job.ID))

	stored := f.repo.stored(f.job.ID)
	assert.Equal(t, domain.JobStatusFinished, stored.Status)
	assert.Equal(t, domain.ModeSingle, stored.Mode)
	assert.Equal(t, "solved 2 pages", stored.Result)
	assert.Equal(t, 0, f.repo.savePages)
}

func TestSolveUseCase_CancelFlagFromRepository(t *testing.T) {
	f := newSolveFixture(t, 7)
	f.transformer.onPage = func(n int) {
		if n == 2 {
			_ = f.repo.RequestCancel(context.Background(), f.job.ID)
		}
	}

	require.NoError(t, f.uc.ProcessJob(context.Background(), f.job.ID))

	stored := f.repo.stored(f.job.ID)
	assert.Equal(t, domain.JobStatusCancelled, stored.Status)
	assert.Equal(t, 2, strings.Count(stored.Result, "## Page "))
	assert.Equal(t, []int{1, 2}, f.transformer.calls())
}

func TestSolveUseCase_SkipsFinalJob(t *testing.T) {
	f := newSolveFixture(t, 7)
	stored := f.repo.stored(f.job.ID)
	require.NoError(t, stored.MarkRunning(domain.ModeSingle, 1))
	require.NoError(t, stored.MarkFinished("done"))

	require.NoError(t, f.uc.ProcessJob(context.Background(), f.job.ID))
	assert.Empty(t, f.transformer.calls())
}

func TestSolveUseCase_UnknownJob(t *testing.T) {
	f := newSolveFixture(t, 7)

	err := f.uc.ProcessJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestSolveUseCase_CorruptDocumentIsNotRetried(t *testing.T) {
	f := newSolveFixture(t, 7)
	processor := NewProcessor(
		&fakeExtractor{err: domain.NewDocumentParseError("bad header", nil)},
		f.transformer, &recordingPacer{}, DefaultProcessorConfig(), zap.NewNop(),
	)
	f.uc = NewSolveUseCase(f.repo, f.storage, processor, zap.NewNop())

	require.NoError(t, f.uc.ProcessJob(context.Background(), f.job.ID))

	stored := f.repo.stored(f.job.ID)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "document parse error")
}

func TestSolveUseCase_ResumesInterruptedJob(t *testing.T) {
	f := newSolveFixture(t, 7)
	ctx := context.Background()

	stored := f.repo.stored(f.job.ID)
	require.NoError(t, stored.MarkRunning(domain.ModePageByPage, 7))

	pages := domain.NewPageTasks(7)
	now := time.Now()
	pages[0].Status, pages[0].Result, pages[0].FinishedAt = domain.PageStatusCompleted, "answer 1", &now
	pages[1].Status, pages[1].StartedAt = domain.PageStatusProcessing, &now
	require.NoError(t, f.repo.SavePages(ctx, f.job.ID, pages))

	require.NoError(t, f.uc.ProcessJob(ctx, f.job.ID))

	assert.Equal(t, []int{3, 4, 5, 6, 7}, f.transformer.calls())

	stored = f.repo.stored(f.job.ID)
	assert.Equal(t, domain.JobStatusFinished, stored.Status)
	assert.Contains(t, stored.Result, "> Error processing page 2: processing interrupted")
}

func TestSolveUseCase_ShutdownLeavesJobRunning(t *testing.T) {
	f := newSolveFixture(t, 7)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.transformer.onPage = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	err := f.uc.ProcessJob(ctx, f.job.ID)
	assert.ErrorIs(t, err, context.Canceled)

	stored := f.repo.stored(f.job.ID)
	assert.Equal(t, domain.JobStatusRunning, stored.Status)
}

func TestSolveUseCase_FailJobKeepsPartialResult(t *testing.T) {
	f := newSolveFixture(t, 7)
	ctx := context.Background()

	stored := f.repo.stored(f.job.ID)
	require.NoError(t, stored.MarkRunning(domain.ModePageByPage, 7))

	pages := domain.NewPageTasks(7)
	now := time.Now()
	pages[0].Status, pages[0].Result, pages[0].FinishedAt = domain.PageStatusCompleted, "answer 1", &now
	pages[1].Status, pages[1].StartedAt = domain.PageStatusProcessing, &now
	require.NoError(t, f.repo.SavePages(ctx, f.job.ID, pages))

	require.NoError(t, f.uc.FailJob(ctx, f.job.ID, context.DeadlineExceeded))

	stored = f.repo.stored(f.job.ID)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "deadline exceeded")
	assert.Contains(t, stored.Result, "answer 1")
	assert.Contains(t, stored.Result, "> Error processing page 2: processing interrupted")
	assert.NotNil(t, stored.CompletedAt)

	saved, err := f.repo.ListPages(ctx, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PageStatusError, saved[1].Status)
	assert.Empty(t, f.transformer.calls())
}

func TestSolveUseCase_FailJobPendingJob(t *testing.T) {
	f := newSolveFixture(t, 3)

	require.NoError(t, f.uc.FailJob(context.Background(), f.job.ID, errors.New("storage unavailable")))

	stored := f.repo.stored(f.job.ID)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Equal(t, "storage unavailable", stored.Error)
	assert.Empty(t, stored.Result)
}

func TestSolveUseCase_FailJobSkipsFinalJob(t *testing.T) {
	f := newSolveFixture(t, 3)
	require.NoError(t, f.uc.ProcessJob(context.Background(), f.job.ID))

	require.NoError(t, f.uc.FailJob(context.Background(), f.job.ID, context.DeadlineExceeded))

	assert.Equal(t, domain.JobStatusFinished, f.repo.stored(f.job.ID).Status)
}
