package cache

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/star/czmlgo/internal/czml"
	"github.com/star/czmlgo/internal/metrics"
	"github.com/star/czmlgo/internal/observability"
)

// dataChanged reports whether the store or the event set moved on since the
// current document was built.
func (c *DocumentCache) dataChanged() bool {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	ds := c.store.Get()
	if ds == nil && c.events.Load() == nil {
		return false
	}
	if c.eventsGen.Load() != c.currentEventsGen {
		return true
	}
	return ds != nil && !ds.FetchedAt.Equal(c.currentFetchedAt)
}

// Rebuild builds a new document from the current dataset and event set and
// swaps it in. Reads keep hitting the previous document until the swap.
func (c *DocumentCache) Rebuild(ctx context.Context) error {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	_, span := observability.StartSpan(ctx, "cache.rebuild")
	defer span.End()

	c.rebuildOn.Store(true)
	defer c.rebuildOn.Store(false)

	ds := c.store.Get()
	events := c.events.Load()
	eventsGen := c.eventsGen.Load()
	if ds == nil && events == nil {
		return fmt.Errorf("no SP3 dataset or event set loaded")
	}

	start := time.Now()
	scene := Scene{
		Name:       c.config.Name,
		Events:     events,
		OrbitStyle: c.appearance.OrbitStyle(),
		EventStyle: c.appearance.EventStyle(),
		Target:     c.target,
	}
	var fetchedAt time.Time
	if ds != nil {
		scene.Ephemerides = ds.Ephemerides
		fetchedAt = ds.FetchedAt
	}

	res := Build(scene)

	var buf bytes.Buffer
	if err := czml.Encode(&buf, res.Packets); err != nil {
		span.RecordError(err)
		return fmt.Errorf("encoding document: %w", err)
	}

	var version uint64 = 1
	if prev := c.doc.Load(); prev != nil {
		version = prev.Version + 1
	}

	doc := &Document{
		Version:   version,
		BuiltAt:   time.Now(),
		FetchedAt: fetchedAt,
		Clock:     res.Clock,
		Packets:   res.Packets,
		JSON:      buf.Bytes(),
		Orbits:    res.Orbits,
		Events:    res.Events,
		index:     make(map[string]int, len(res.Packets)),
	}
	for i, p := range res.Packets {
		doc.index[p.ID] = i
	}

	c.publish(doc)
	c.currentFetchedAt = fetchedAt
	c.currentEventsGen = eventsGen
	c.rebuilds.Add(1)

	duration := time.Since(start)
	metrics.ObserveRebuild(duration, version)
	span.SetAttributes(
		attribute.Int64("czml.version", int64(version)),
		attribute.Int("czml.packets", len(res.Packets)),
	)

	c.logger.Info("document rebuilt",
		"component", "cache",
		"version", version,
		"orbit_packets", res.Orbits,
		"event_packets", res.Events,
		"size_bytes", len(doc.JSON),
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}
