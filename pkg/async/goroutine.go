package async

import (
	"context"
	"io"
	"time"

	"github.com/platinummonkey/workbench/pkg/observability"
)

// Go runs fn in its own goroutine with panic recovery. A non-zero timeout
// bounds the context fn receives. A returned error is logged, not raised.
//
//	async.Go(ctx, logger, 0, "pool stats", func(ctx context.Context) error {
//		storage.WatchPoolStats(ctx, db, metrics, 15*time.Second)
//		return nil
//	})
func Go(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	logger = orDiscard(logger)
	go func() {
		defer observability.RecoverPanic(logger, taskName)

		ctx, cancel := withTimeout(parentCtx, timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("Background task failed")
		}
	}()
}

// Run calls fn on the current goroutine and reports a panic as an error.
// Scheduled jobs use it so one bad run does not take the scheduler down.
func Run(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) (err error) {
	logger = orDiscard(logger)
	ctx, cancel := withTimeout(parentCtx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = observability.MustRecover(r)
			logger.WithError(err).WithField("task", taskName).Error("PANIC recovered")
		}
	}()
	return fn(ctx)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func orDiscard(logger *observability.Logger) *observability.Logger {
	if logger == nil {
		return observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	return logger
}
