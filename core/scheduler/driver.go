package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/liamAduDonkor/adesua-sub000/core"
)

const defaultInterval = time.Minute

// Driver ticks the manager periodically.
type Driver struct {
	manager  *Manager
	logger   core.Logger
	interval time.Duration
	now      func() time.Time
}

func NewDriver(manager *Manager, logger core.Logger, conf *core.Config) *Driver {
	drv := &Driver{
		manager:  manager,
		logger:   logger,
		interval: defaultInterval,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if conf != nil && conf.Scheduler.Interval > 0 {
		drv.interval = conf.Scheduler.Interval
	}
	return drv
}

// WithClock replaces the clock the driver passes to the manager.
func (drv *Driver) WithClock(now func() time.Time) *Driver {
	drv.now = now
	return drv
}

// Run ticks once immediately, then every interval until ctx is done.
func (drv *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(drv.interval)
	defer ticker.Stop()

	drv.logger.Info(fmt.Sprintf("scheduler started, ticking every %s", drv.interval))
	for {
		drv.tick(ctx)
		select {
		case <-ctx.Done():
			drv.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (drv *Driver) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			drv.logger.Error(fmt.Sprintf("scheduler tick panicked: %v", r))
		}
	}()
	if _, err := drv.manager.Tick(ctx, drv.now()); err != nil {
		drv.logger.Error("scheduler tick", err)
	}
}
