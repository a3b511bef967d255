package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/plastinin/pagesolver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type processorFixture struct {
	doc         *fakeDocument
	extractor   *fakeExtractor
	transformer *scriptedTransformer
	pacer       *recordingPacer
	processor   *Processor
	job         *domain.Job
}

func newProcessorFixture(t *testing.T, pages int, cfg ProcessorConfig) *processorFixture {
	t.Helper()

	doc := &fakeDocument{pages: pages}
	f := &processorFixture{
		doc:         doc,
		extractor:   &fakeExtractor{doc: doc},
		transformer: &scriptedTransformer{script: map[int][]error{}},
		pacer:       &recordingPacer{},
	}
	f.processor = NewProcessor(f.extractor, f.transformer, f.pacer, cfg, zap.NewNop())

	job, err := domain.NewJob("documents/booklet.pdf", "booklet.pdf", "application/pdf", domain.DetailStandard)
	require.NoError(t, err)
	f.job = job

	return f
}

func (f *processorFixture) run(t *testing.T) (*domain.Result, error) {
	t.Helper()
	return f.processor.Run(context.Background(), f.job, []byte("%PDF-1.7"), nil)
}

func repeat(d time.Duration, n int) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = d
	}
	return out
}

func TestProcessor_SmallDocumentSingleRequest(t *testing.T) {
	f := newProcessorFixture(t, 3, DefaultProcessorConfig())
	f.transformer.docResult = "all three pages solved"

	result, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, 1, f.transformer.docCalls)
	assert.Empty(t, f.transformer.calls())
	assert.Empty(t, f.pacer.recorded())

	assert.Equal(t, "all three pages solved", result.CombinedText)
	assert.Equal(t, domain.ModeSingle, f.job.Mode)
	assert.Equal(t, domain.JobStatusFinished, f.job.Status)
	assert.Equal(t, "all three pages solved", f.job.Result)
	assert.Empty(t, f.job.Pages)
	assert.True(t, f.doc.closed)
}

func TestProcessor_ThresholdBoundary(t *testing.T) {
	f := newProcessorFixture(t, 5, DefaultProcessorConfig())
	_, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeSingle, f.job.Mode)

	f = newProcessorFixture(t, 6, DefaultProcessorConfig())
	_, err = f.run(t)
	require.NoError(t, err)
	assert.Equal(t, domain.ModePageByPage, f.job.Mode)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, f.transformer.calls())
}

func TestProcessor_PageByPage(t *testing.T) {
	f := newProcessorFixture(t, 7, DefaultProcessorConfig())

	result, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, f.transformer.calls())
	assert.Equal(t, 0, f.transformer.docCalls)
	assert.Equal(t, repeat(3*time.Second, 6), f.pacer.recorded())

	assert.Equal(t, 7, result.Completed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Pending)
	assert.False(t, result.Cancelled)

	entries := strings.Split(result.CombinedText, domain.PageSeparator)
	require.Len(t, entries, 7)
	for i, e := range entries {
		n := i + 1
		assert.True(t, strings.HasPrefix(e, domain.PageHeader(n)), "entry %d: %q", n, e)
	}
	assert.Equal(t, domain.JobStatusFinished, f.job.Status)
	assert.Equal(t, result.CombinedText, f.job.Result)
	assert.Equal(t, 0, f.job.CurrentPage)
}

func TestProcessor_RateLimitedPageBacksOff(t *testing.T) {
	f := newProcessorFixture(t, 7, DefaultProcessorConfig())
	f.transformer.script[4] = []error{rateLimitErr()}

	result, err := f.run(t)
	require.NoError(t, err)

	waits := f.pacer.recorded()
	require.Len(t, waits, 6)
	// Пауза после страницы 4 заменяется backoff
	assert.Equal(t, 10*time.Second, waits[3])
	for i, w := range waits {
		if i != 3 {
			assert.Equal(t, 3*time.Second, w, "wait after page %d", i+1)
		}
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, f.transformer.calls())
	assert.Equal(t, 6, result.Completed)
	assert.Equal(t, 1, result.Failed)

	entries := strings.Split(result.CombinedText, domain.PageSeparator)
	require.Len(t, entries, 7)
	assert.Contains(t, entries[3], "> Error processing page 4:")
	assert.Contains(t, entries[3], "429")

	page, err := f.job.Page(4)
	require.NoError(t, err)
	assert.Equal(t, domain.PageStatusError, page.Status)
	assert.Equal(t, 1, page.Attempts)
	assert.Equal(t, domain.JobStatusFinished, f.job.Status)
}

func TestProcessor_TransientErrorKeepsNormalDelay(t *testing.T) {
	f := newProcessorFixture(t, 7, DefaultProcessorConfig())
	f.transformer.script[2] = []error{&domain.TransformError{Kind: domain.TransformTransient, Message: "502 bad gateway"}}

	result, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, repeat(3*time.Second, 6), f.pacer.recorded())
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.CombinedText, "> Error processing page 2: 502 bad gateway")
}

func TestProcessor_RetriesRateLimitedPage(t *testing.T) {
	cfg := DefaultProcessorConfig()
	cfg.RateLimitRetries = 1

	f := newProcessorFixture(t, 7, cfg)
	f.transformer.script[2] = []error{rateLimitErr()}

	result, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 2, 3, 4, 5, 6, 7}, f.transformer.calls())

	want := []time.Duration{3 * time.Second, 10 * time.Second}
	want = append(want, repeat(3*time.Second, 5)...)
	assert.Equal(t, want, f.pacer.recorded())

	page, err := f.job.Page(2)
	require.NoError(t, err)
	assert.Equal(t, domain.PageStatusCompleted, page.Status)
	assert.Equal(t, 2, page.Attempts)
	assert.Equal(t, 7, result.Completed)
}

func TestProcessor_CorruptDocument(t *testing.T) {
	f := newProcessorFixture(t, 7, DefaultProcessorConfig())
	f.extractor.err = domain.NewDocumentParseError("failed to read page count", errors.New("no xref"))

	result, err := f.run(t)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDocumentParse)
	assert.Nil(t, result)
	assert.Empty(t, f.transformer.calls())
	assert.Equal(t, 0, f.transformer.docCalls)
	assert.Equal(t, domain.JobStatusFailed, f.job.Status)
	assert.NotEmpty(t, f.job.Error)
}

func TestProcessor_CancelBeforeStart(t *testing.T) {
	f := newProcessorFixture(t, 7, DefaultProcessorConfig())
	f.job.RequestCancel()

	result, err := f.run(t)
	require.NoError(t, err)

	assert.Empty(t, f.transformer.calls())
	assert.Empty(t, f.pacer.recorded())
	assert.Equal(t, "", result.CombinedText)
	assert.Equal(t, 7, result.Pending)
	assert.True(t, result.Cancelled)
	assert.Equal(t, domain.JobStatusCancelled, f.job.Status)
}

func TestProcessor_CancelBeforeStartSingleMode(t *testing.T) {
	f := newProcessorFixture(t, 2, DefaultProcessorConfig())
	f.job.RequestCancel()

	result, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, 0, f.transformer.docCalls)
	assert.True(t, result.Cancelled)
	assert.Equal(t, domain.JobStatusCancelled, f.job.Status)
}

func TestProcessor_CancelDuringPage(t *testing.T) {
	f := newProcessorFixture(t, 7, DefaultProcessorConfig())
	f.transformer.onPage = func(n int) {
		if n == 3 {
			f.job.RequestCancel()
		}
	}

	result, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, f.transformer.calls())
	// После запроса отмены пауза не выполняется
	assert.Equal(t, repeat(3*time.Second, 2), f.pacer.recorded())

	entries := strings.Split(result.CombinedText, domain.PageSeparator)
	require.Len(t, entries, 3)
	assert.True(t, strings.HasPrefix(entries[2], domain.PageHeader(3)))

	assert.Equal(t, 3, result.Completed)
	assert.Equal(t, 4, result.Pending)
	assert.True(t, result.Cancelled)
	assert.Equal(t, domain.JobStatusCancelled, f.job.Status)
	assert.Equal(t, result.CombinedText, f.job.Result)
}

func TestProcessor_RenderFailureFailsJob(t *testing.T) {
	f := newProcessorFixture(t, 7, DefaultProcessorConfig())
	f.doc.renderErrAt = 2

	result, err := f.run(t)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDocumentParse)
	require.NotNil(t, result)
	assert.Equal(t, []int{1}, f.transformer.calls())
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.CombinedText, domain.PageHeader(1))
	assert.Contains(t, result.CombinedText, "> Error processing page 2:")
	assert.Equal(t, domain.JobStatusFailed, f.job.Status)
}

func TestProcessor_SingleModeTransformError(t *testing.T) {
	f := newProcessorFixture(t, 4, DefaultProcessorConfig())
	f.transformer.docErr = &domain.TransformError{Kind: domain.TransformFatal, Message: "invalid image"}

	result, err := f.run(t)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, domain.JobStatusFailed, f.job.Status)
	assert.Contains(t, f.job.Error, "invalid image")
}

func TestProcessor_ContextCancelledKeepsJobRunning(t *testing.T) {
	f := newProcessorFixture(t, 7, DefaultProcessorConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.transformer.onPage = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	result, err := f.processor.Run(ctx, f.job, nil, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Equal(t, domain.JobStatusRunning, f.job.Status)

	page, perr := f.job.Page(2)
	require.NoError(t, perr)
	assert.Equal(t, domain.PageStatusCompleted, page.Status)
}

func TestProcessor_ResumesPendingPages(t *testing.T) {
	f := newProcessorFixture(t, 7, DefaultProcessorConfig())
	require.NoError(t, f.job.MarkRunning(domain.ModePageByPage, 7))
	f.job.InitPages()
	f.job.Pages[0].Status = domain.PageStatusCompleted
	f.job.Pages[0].Result = "answer 1"
	f.job.Pages[1].Status = domain.PageStatusError
	f.job.Pages[1].Error = "processing interrupted"

	result, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 4, 5, 6, 7}, f.transformer.calls())
	// Пауза перед первой страницей и между оставшимися
	assert.Equal(t, repeat(3*time.Second, 5), f.pacer.recorded())
	assert.Equal(t, 6, result.Completed)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.CombinedText, "> Error processing page 2: processing interrupted")
}

func TestProcessor_ResumeAfterRateLimitBacksOff(t *testing.T) {
	f := newProcessorFixture(t, 7, DefaultProcessorConfig())
	require.NoError(t, f.job.MarkRunning(domain.ModePageByPage, 7))
	f.job.InitPages()
	f.job.Pages[0].Status = domain.PageStatusError
	f.job.Pages[0].Error = "ollama returned status 429: slow down"

	_, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3, 4, 5, 6, 7}, f.transformer.calls())
	want := append([]time.Duration{10 * time.Second}, repeat(3*time.Second, 5)...)
	assert.Equal(t, want, f.pacer.recorded())
}

func TestProcessor_FinalJobRejected(t *testing.T) {
	f := newProcessorFixture(t, 7, DefaultProcessorConfig())
	require.NoError(t, f.job.MarkFailed("", "earlier failure"))

	_, err := f.run(t)
	assert.ErrorIs(t, err, domain.ErrInvalidJobStatus)
	assert.Equal(t, 0, len(f.transformer.calls()))
}

type recordingObserver struct {
	updates []domain.PageStatus
}

func (o *recordingObserver) PageUpdated(_ context.Context, _ *domain.Job, page *domain.PageTask) {
	o.updates = append(o.updates, page.Status)
}

func (o *recordingObserver) CancelRequested(_ context.Context, job *domain.Job) bool {
	return job.CancelRequested()
}

func TestProcessor_ObserverSeesEveryTransition(t *testing.T) {
	f := newProcessorFixture(t, 6, DefaultProcessorConfig())
	f.transformer.script[6] = []error{rateLimitErr()}
	observer := &recordingObserver{}

	_, err := f.processor.Run(context.Background(), f.job, nil, observer)
	require.NoError(t, err)

	require.Len(t, observer.updates, 12)
	for i := 0; i < 12; i += 2 {
		assert.Equal(t, domain.PageStatusProcessing, observer.updates[i])
	}
	assert.Equal(t, domain.PageStatusCompleted, observer.updates[9])
	assert.Equal(t, domain.PageStatusError, observer.updates[11])
}
