package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/plastinin/pagesolver/internal/adapter/llm"
	"github.com/plastinin/pagesolver/internal/adapter/pdf"
	"github.com/plastinin/pagesolver/internal/config"
	"github.com/plastinin/pagesolver/internal/domain"
	"github.com/plastinin/pagesolver/internal/usecase"
	"github.com/plastinin/pagesolver/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type solveFlags struct {
	detail    string
	threshold int
	delay     time.Duration
	backoff   time.Duration
	retries   int
	out       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags solveFlags

	cmd := &cobra.Command{
		Use:   "solve <file.pdf>",
		Short: "Solve an exam booklet page by page",
		Long: `Solve renders each page of a PDF booklet and sends it to the configured model.
Small documents are sent in a single request. Press Ctrl+C once to stop after
the current page and keep the partial result, twice to abort immediately.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.detail, "detail", "d", "standard", "detail level: brief, standard, detailed")
	cmd.Flags().IntVar(&flags.threshold, "threshold", -1, "max page count sent in a single request (default from PIPELINE_SINGLE_PAGE_THRESHOLD)")
	cmd.Flags().DurationVar(&flags.delay, "delay", -1, "pause between pages (default from PIPELINE_PAGE_DELAY)")
	cmd.Flags().DurationVar(&flags.backoff, "backoff", -1, "pause after a rate-limited page (default from PIPELINE_RATE_LIMIT_BACKOFF)")
	cmd.Flags().IntVar(&flags.retries, "retries", -1, "retries of a rate-limited page (default from PIPELINE_RATE_LIMIT_RETRIES)")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "write the result to a file instead of stdout")

	return cmd
}

func runSolve(cmd *cobra.Command, path string, flags solveFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(&cfg.Pipeline, flags)
	if err := cfg.Pipeline.Validate(); err != nil {
		return err
	}

	detail, err := domain.ParseDetailLevel(flags.detail)
	if err != nil {
		return fmt.Errorf("invalid --detail %q: %w", flags.detail, err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, logger.WithOutput(os.Stderr))
	if err != nil {
		return err
	}
	defer log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	transformer, err := llm.NewTransformer(cfg, log)
	if err != nil {
		return err
	}

	processor := usecase.NewProcessor(
		pdf.NewExtractor(),
		transformer,
		usecase.TimerPacer{},
		usecase.ProcessorConfig{
			SinglePageThreshold: cfg.Pipeline.SinglePageThreshold,
			PageDelay:           cfg.Pipeline.PageDelay,
			RateLimitBackoff:    cfg.Pipeline.RateLimitBackoff,
			RateLimitRetries:    cfg.Pipeline.RateLimitRetries,
			ScaleFactor:         cfg.Pipeline.ScaleFactor,
		},
		log.Named("processor"),
	)

	job, err := domain.NewJob(path, filepath.Base(path), "application/pdf", detail)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stop := handleInterrupts(job, cancel, log)
	defer stop()

	observer := newProgressObserver()
	result, runErr := processor.Run(ctx, job, data, observer)
	observer.finish()

	if result == nil {
		return runErr
	}

	if err := writeResult(flags.out, result.CombinedText); err != nil {
		return err
	}

	log.Info("Done",
		zap.String("status", job.Status.String()),
		zap.String("mode", job.Mode.String()),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.Int("pending", result.Pending),
	)

	return runErr
}

// applyFlags переопределяет параметры конвейера флагами, заданными явно
func applyFlags(p *config.PipelineConfig, flags solveFlags) {
	if flags.threshold >= 0 {
		p.SinglePageThreshold = flags.threshold
	}
	if flags.delay >= 0 {
		p.PageDelay = flags.delay
	}
	if flags.backoff >= 0 {
		p.RateLimitBackoff = flags.backoff
	}
	if flags.retries >= 0 {
		p.RateLimitRetries = flags.retries
	}
}

// handleInterrupts: первый сигнал запрашивает отмену после текущей страницы, второй прерывает ctx
func handleInterrupts(job *domain.Job, cancel context.CancelFunc, log *zap.Logger) func() {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sig:
			log.Warn("Cancel requested, finishing current page (press Ctrl+C again to abort)")
			job.RequestCancel()
		case <-done:
			return
		}
		select {
		case <-sig:
			log.Warn("Aborting")
			cancel()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sig)
		close(done)
	}
}

func writeResult(out, text string) error {
	if out == "" {
		_, err := fmt.Fprintln(os.Stdout, text)
		return err
	}
	if err := os.WriteFile(out, []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
