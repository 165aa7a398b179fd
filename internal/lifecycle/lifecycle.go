package lifecycle

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. While true, /health answers 503
// and lookup endpoints refuse new work.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Step is one stage of graceful shutdown. Timeout bounds Run; zero means
// no deadline beyond the parent context.
type Step struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Shutdown sets the shutting-down flag and runs steps in order. A failing
// step is logged and does not stop the ones after it; all failures are
// returned combined.
func Shutdown(ctx context.Context, logger *zap.Logger, steps ...Step) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	SetShuttingDown(true)

	var errs error
	for _, step := range steps {
		start := time.Now()
		if err := runStep(ctx, step); err != nil {
			logger.Warn("shutdown step failed", zap.String("step", step.Name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", step.Name, err))
			continue
		}
		logger.Debug("shutdown step complete", zap.String("step", step.Name), zap.Duration("elapsed", time.Since(start)))
	}
	return errs
}

func runStep(ctx context.Context, step Step) error {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}
	return step.Run(ctx)
}
