package timeutils

import (
	"context"
	"fmt"
	"time"
)

// Retry calls function once, then once more after each of attemptDelays
// while onFinished asks for it. The last result is returned as is.
func Retry[T any](
	ctx context.Context,
	attemptDelays []time.Duration,
	function func(context.Context) (T, error),
	onFinished func(T, error) (needRetry bool),
) (T, error) {
	res, err := function(ctx)
	for _, delay := range attemptDelays {
		if !onFinished(res, err) {
			return res, err
		}
		if err := SleepCtx(ctx, delay); err != nil {
			var zero T
			return zero, err
		}
		res, err = function(ctx)
	}
	return res, err
}

func SleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
