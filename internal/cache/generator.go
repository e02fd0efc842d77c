package cache

import (
	"context"
	"time"

	"github.com/star/czmlgo/internal/metrics"
)

// Start runs the maintenance loop: it waits for the first dataset or event
// set, builds the document, then rebuilds whenever the inputs change. It also
// keeps the dataset-age gauge current.
//
// Blocks until ctx is cancelled.
func (c *DocumentCache) Start(ctx context.Context) {
	if !c.waitForData(ctx) {
		return
	}

	if err := c.Rebuild(ctx); err != nil {
		c.failures.Add(1)
		c.logger.Warn("initial document build failed", "component", "cache", "error", err)
	}

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("document cache stopped", "component", "cache")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// waitForData blocks until a dataset or an event set is available, checking
// every second. Returns false if ctx is cancelled.
func (c *DocumentCache) waitForData(ctx context.Context) bool {
	if c.hasData() {
		return true
	}

	c.logger.Info("document cache waiting for data", "component", "cache")
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.hasData() {
				c.logger.Info("data available, building document", "component", "cache")
				return true
			}
		}
	}
}

func (c *DocumentCache) hasData() bool {
	return c.store.Get() != nil || c.events.Load() != nil
}

// tick runs one iteration of the maintenance loop.
func (c *DocumentCache) tick(ctx context.Context) {
	if ds := c.store.Get(); ds != nil {
		metrics.SetDataset(ds.SatelliteCount(), c.store.AgeSeconds())
	}

	if !c.dataChanged() {
		return
	}
	if err := c.Rebuild(ctx); err != nil {
		c.failures.Add(1)
		c.logger.Warn("document rebuild failed", "component", "cache", "error", err)
	}
}
