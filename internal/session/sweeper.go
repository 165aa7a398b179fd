package session

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartSweeper schedules store.Sweep on a cron spec such as "@every 1m" and
// starts the scheduler. Stop the returned cron during shutdown.
func StartSweeper(store *Store, spec string, logger *zap.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if removed := store.Sweep(); removed > 0 {
			logger.Debug("expired sessions swept", zap.Int("removed", removed), zap.Int("remaining", store.Len()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("session sweeper schedule %q: %w", spec, err)
	}
	c.Start()
	logger.Info("session sweeper started", zap.String("schedule", spec), zap.Duration("ttl", store.TTL()))
	return c, nil
}
