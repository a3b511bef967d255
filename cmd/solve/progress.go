package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/plastinin/pagesolver/internal/domain"
	"github.com/schollz/progressbar/v3"
)

// progressObserver показывает прогресс страниц в stderr
type progressObserver struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newProgressObserver() *progressObserver {
	return &progressObserver{}
}

func (o *progressObserver) PageUpdated(_ context.Context, job *domain.Job, page *domain.PageTask) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.bar == nil {
		o.bar = progressbar.NewOptions(job.PageCount,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Solving pages"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stderr, "\n")
			}),
		)
	}

	progress := job.Progress()
	o.bar.Describe(fmt.Sprintf("Page %d/%d", page.PageNumber, job.PageCount))
	_ = o.bar.Set(progress.Completed + progress.Failed)
}

func (o *progressObserver) CancelRequested(_ context.Context, job *domain.Job) bool {
	return job.CancelRequested()
}

// finish закрывает полосу прогресса, если она была показана
func (o *progressObserver) finish() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.bar != nil {
		_ = o.bar.Exit()
	}
}
