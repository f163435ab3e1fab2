package downloader

import (
	"context"
	"sync/atomic"
	"time"
)

var pausePollInterval = 100 * time.Millisecond

// TransferControl is the cancel and pause signal pair shared by every worker
// of one download. Cancel is one-way.
type TransferControl struct {
	cancelled atomic.Bool
	paused    atomic.Bool
}

func (c *TransferControl) Pause()          { c.paused.Store(true) }
func (c *TransferControl) Resume()         { c.paused.Store(false) }
func (c *TransferControl) IsPaused() bool  { return c.paused.Load() }
func (c *TransferControl) Cancel()         { c.cancelled.Store(true) }
func (c *TransferControl) Cancelled() bool { return c.cancelled.Load() }

// waitWhilePaused blocks while paused. It returns false if the transfer was
// cancelled (or ctx ended) instead of resumed.
func (c *TransferControl) waitWhilePaused(ctx context.Context) bool {
	if !c.IsPaused() {
		return !c.Cancelled() && ctx.Err() == nil
	}
	ticker := time.NewTicker(pausePollInterval)
	defer ticker.Stop()
	for c.IsPaused() {
		if c.Cancelled() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return !c.Cancelled() && ctx.Err() == nil
}
