package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/plastinin/pagesolver/internal/domain"
	"go.uber.org/zap"
)

// ProcessorConfig параметры последовательной обработки
type ProcessorConfig struct {
	SinglePageThreshold int           // Порог числа страниц для обработки одним запросом
	PageDelay           time.Duration // Пауза между страницами
	RateLimitBackoff    time.Duration // Пауза после ошибки превышения лимита
	RateLimitRetries    int           // Повторы страницы после превышения лимита
	ScaleFactor         float64       // Масштаб рендеринга страниц
}

// DefaultProcessorConfig значения по умолчанию
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		SinglePageThreshold: 5,
		PageDelay:           3 * time.Second,
		RateLimitBackoff:    10 * time.Second,
		RateLimitRetries:    0,
		ScaleFactor:         2,
	}
}

// Processor последовательно проводит задание через удалённые преобразования.
// Одно задание обрабатывается одной горутиной, страницы строго по возрастанию.
type Processor struct {
	extractor   PageExtractor
	transformer DocumentTransformer
	pacer       Pacer
	cfg         ProcessorConfig
	logger      *zap.Logger
}

// NewProcessor создаёт новый экземпляр Processor
func NewProcessor(
	extractor PageExtractor,
	transformer DocumentTransformer,
	pacer Pacer,
	cfg ProcessorConfig,
	logger *zap.Logger,
) *Processor {
	if pacer == nil {
		pacer = TimerPacer{}
	}
	return &Processor{
		extractor:   extractor,
		transformer: transformer,
		pacer:       pacer,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run обрабатывает документ задания.
// Отмена пользователя не является ошибкой: задание получает статус cancelled и частичный результат.
// Отмена ctx прерывает работу с ctx.Err(), задание остаётся в статусе running.
func (p *Processor) Run(ctx context.Context, job *domain.Job, data []byte, observer Observer) (*domain.Result, error) {
	if observer == nil {
		observer = jobObserver{}
	}
	if job.Status.IsFinal() {
		return nil, domain.ErrInvalidJobStatus
	}

	log := p.logger.With(zap.String("job_id", job.ID.String()))

	doc, err := p.extractor.Open(data)
	if err != nil {
		_ = job.MarkFailed("", err.Error())
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()

	pageCount := doc.PageCount()
	mode := domain.SelectMode(pageCount, p.cfg.SinglePageThreshold)
	if err := job.MarkRunning(mode, pageCount); err != nil {
		return nil, err
	}

	log.Info("Document opened",
		zap.Int("page_count", pageCount),
		zap.String("mode", mode.String()),
	)

	if mode == domain.ModeSingle {
		return p.runSingle(ctx, job, doc, data, observer, log)
	}
	return p.runPageByPage(ctx, job, doc, observer, log)
}

// runSingle отправляет весь документ одним запросом
func (p *Processor) runSingle(
	ctx context.Context,
	job *domain.Job,
	doc Document,
	data []byte,
	observer Observer,
	log *zap.Logger,
) (*domain.Result, error) {
	if observer.CancelRequested(ctx, job) {
		log.Info("Job cancelled before start")
		if err := job.MarkCancelled(""); err != nil {
			return nil, err
		}
		return &domain.Result{Cancelled: true}, nil
	}

	pages := make([][]byte, 0, doc.PageCount())
	for n := 1; n <= doc.PageCount(); n++ {
		img, err := doc.RenderPage(n, p.cfg.ScaleFactor)
		if err != nil {
			_ = job.MarkFailed("", err.Error())
			return nil, fmt.Errorf("failed to render page %d: %w", n, err)
		}
		pages = append(pages, img)
	}

	text, err := p.transformer.TransformDocument(ctx, DocumentRequest{
		Document:    data,
		ContentType: job.ContentType,
		Pages:       pages,
		DetailLevel: job.DetailLevel,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn("Document transform failed", zap.Error(err))
		_ = job.MarkFailed("", err.Error())
		return nil, fmt.Errorf("document transform failed: %w", err)
	}

	if err := job.MarkFinished(text); err != nil {
		return nil, err
	}

	log.Info("Job finished", zap.String("mode", domain.ModeSingle.String()))

	return &domain.Result{CombinedText: text}, nil
}

// runPageByPage обрабатывает страницы по одной с паузами между запросами
func (p *Processor) runPageByPage(
	ctx context.Context,
	job *domain.Job,
	doc Document,
	observer Observer,
	log *zap.Logger,
) (*domain.Result, error) {
	job.InitPages()

	cancelled := false
	last := len(job.Pages) - 1
	resumeDelay := p.resumeDelay(job.Pages)

	for i, page := range job.Pages {
		if page.Status.IsFinal() {
			continue
		}

		if observer.CancelRequested(ctx, job) {
			cancelled = true
			break
		}

		if resumeDelay > 0 {
			log.Info("Resuming after interrupted run",
				zap.Int("page", page.PageNumber),
				zap.Duration("delay", resumeDelay),
			)
			if err := p.pacer.Wait(ctx, resumeDelay); err != nil {
				return nil, err
			}
			resumeDelay = 0

			if observer.CancelRequested(ctx, job) {
				cancelled = true
				break
			}
		}

		rateLimited, err := p.processPage(ctx, job, doc, page, observer, log)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			result := domain.Summarize(job.Pages, false)
			_ = job.MarkFailed(result.CombinedText, err.Error())
			return &result, err
		}

		if i == last {
			break
		}

		if observer.CancelRequested(ctx, job) {
			cancelled = true
			break
		}

		delay := p.cfg.PageDelay
		if rateLimited {
			delay = p.cfg.RateLimitBackoff
			log.Warn("Rate limit hit, backing off",
				zap.Int("page", page.PageNumber),
				zap.Duration("backoff", delay),
			)
		}
		if err := p.pacer.Wait(ctx, delay); err != nil {
			return nil, err
		}
	}

	result := domain.Summarize(job.Pages, cancelled)

	if cancelled {
		if err := job.MarkCancelled(result.CombinedText); err != nil {
			return nil, err
		}
		log.Info("Job cancelled",
			zap.Int("completed", result.Completed),
			zap.Int("failed", result.Failed),
			zap.Int("pending", result.Pending),
		)
		return &result, nil
	}

	if err := job.MarkFinished(result.CombinedText); err != nil {
		return nil, err
	}

	log.Info("Job finished",
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
	)

	return &result, nil
}

// resumeDelay пауза перед первой страницей продолжаемого задания.
// Последний запрос прошлого запуска мог упереться в лимит, поэтому темп не сбрасывается.
func (p *Processor) resumeDelay(pages []*domain.PageTask) time.Duration {
	var previous *domain.PageTask
	for _, page := range pages {
		if !page.Status.IsFinal() {
			break
		}
		previous = page
	}
	if previous == nil {
		return 0
	}
	if previous.Status == domain.PageStatusError && domain.ClassifyMessage(previous.Error) == domain.TransformRateLimited {
		return p.cfg.RateLimitBackoff
	}
	return p.cfg.PageDelay
}

// processPage проводит одну страницу через рендеринг и удалённое преобразование.
// Ошибка преобразования фиксируется в странице и не возвращается.
// Возвращаемая ошибка фатальна для задания (рендеринг, ctx).
func (p *Processor) processPage(
	ctx context.Context,
	job *domain.Job,
	doc Document,
	page *domain.PageTask,
	observer Observer,
	log *zap.Logger,
) (rateLimited bool, err error) {
	if err := page.MarkProcessing(); err != nil {
		return false, fmt.Errorf("page %d: %w", page.PageNumber, err)
	}
	job.CurrentPage = page.PageNumber
	observer.PageUpdated(ctx, job, page)

	log.Debug("Processing page",
		zap.Int("page", page.PageNumber),
		zap.Int("total", job.PageCount),
	)

	img, err := doc.RenderPage(page.PageNumber, p.cfg.ScaleFactor)
	if err != nil {
		_ = page.MarkError(err.Error())
		observer.PageUpdated(ctx, job, page)
		return false, fmt.Errorf("failed to render page %d: %w", page.PageNumber, err)
	}

	req := PageRequest{
		Image:       img,
		PageNumber:  page.PageNumber,
		TotalPages:  job.PageCount,
		DetailLevel: job.DetailLevel,
	}

	text, err := p.transformPage(ctx, page, req, log)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		_ = page.MarkError(err.Error())
		observer.PageUpdated(ctx, job, page)

		log.Warn("Page transform failed",
			zap.Int("page", page.PageNumber),
			zap.Int("attempts", page.Attempts),
			zap.String("kind", string(domain.ClassifyTransformError(err))),
			zap.Error(err),
		)
		return domain.IsRateLimited(err), nil
	}

	_ = page.MarkCompleted(text)
	observer.PageUpdated(ctx, job, page)

	log.Debug("Page completed",
		zap.Int("page", page.PageNumber),
		zap.Int("result_size", len(text)),
	)

	return false, nil
}

// transformPage вызывает преобразование страницы.
// После превышения лимита страница повторяется не более RateLimitRetries раз.
func (p *Processor) transformPage(ctx context.Context, page *domain.PageTask, req PageRequest, log *zap.Logger) (string, error) {
	var text string

	err := retry.Do(
		func() error {
			page.Attempts++
			out, err := p.transformer.TransformPage(ctx, req)
			if err != nil {
				return err
			}
			text = out
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(p.cfg.RateLimitRetries)+1),
		retry.RetryIf(domain.IsRateLimited),
		retry.Delay(p.cfg.RateLimitBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.WithTimer(&pacerTimer{ctx: ctx, pacer: p.pacer}),
		retry.OnRetry(func(n uint, err error) {
			log.Info("Page rate limited",
				zap.Int("page", req.PageNumber),
				zap.Uint("attempt", n+1),
				zap.Int("max_attempts", p.cfg.RateLimitRetries+1),
			)
		}),
	)
	if err != nil {
		var retryErr retry.Error
		if errors.As(err, &retryErr) && len(retryErr) > 0 {
			err = retryErr[len(retryErr)-1]
		}
		return "", err
	}

	return text, nil
}

// jobObserver наблюдатель по умолчанию: только флаг отмены задания
type jobObserver struct{}

func (jobObserver) PageUpdated(context.Context, *domain.Job, *domain.PageTask) {}

func (jobObserver) CancelRequested(_ context.Context, job *domain.Job) bool {
	return job.CancelRequested()
}
