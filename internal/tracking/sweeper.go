package tracking

import (
	"context"
	"time"
)

// StartSweeper launches the background sweep that evicts stale location
// samples and garbage-collects empty channels. It runs until ctx is
// cancelled, acquiring each booking's lock only for the duration of its own
// eviction check so it never races a concurrent location update.
func (c *Coordinator) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep(ctx, time.Now().UTC())
			}
		}
	}()
}

// Sweep runs one eviction pass at the given instant.
func (c *Coordinator) Sweep(ctx context.Context, now time.Time) {
	var evicted, removed int
	for _, bookingID := range c.registry.ChannelIDs() {
		mu := c.lockFor(bookingID)
		mu.Lock()
		e, rm := c.registry.EvictExpired(bookingID, now, c.opts.SampleTTL)
		mu.Unlock()
		if e {
			evicted++
		}
		if rm {
			removed++
		}
	}
	if evicted > 0 || removed > 0 {
		c.logger.Info(ctx, "sweep_completed", "Evicted stale location samples", map[string]any{
			"samples_evicted":  evicted,
			"channels_removed": removed,
		})
	}
}
