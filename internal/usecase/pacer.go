package usecase

import (
	"context"
	"time"
)

// TimerPacer ожидание на таймере с учётом отмены ctx
type TimerPacer struct{}

// Wait ждёт d или отмены ctx
func (TimerPacer) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pacerTimer адаптер Pacer к таймеру retry-go, чтобы все паузы шли через один Pacer
type pacerTimer struct {
	ctx   context.Context
	pacer Pacer
}

func (t *pacerTimer) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	go func() {
		_ = t.pacer.Wait(t.ctx, d)
		ch <- time.Now()
	}()
	return ch
}
