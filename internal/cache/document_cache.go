// Package cache keeps the served CZML document in memory.
//
// The document is rebuilt whenever the SP3 dataset in the store or the loaded
// event set changes. Readers always see a complete document: a rebuild
// prepares the new one off to the side and swaps it in atomically.
package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/czmlgo/internal/config"
	"github.com/star/czmlgo/internal/czml"
	"github.com/star/czmlgo/internal/epoch"
	"github.com/star/czmlgo/internal/link"
	"github.com/star/czmlgo/internal/metrics"
	"github.com/star/czmlgo/internal/sp3"
)

// Config holds cache configuration loaded from environment variables.
type Config struct {
	Name          string        // document packet name (default: "czmlgo")
	CheckInterval time.Duration // how often to look for new data (default: 5s)
}

// Document is one built CZML document.
type Document struct {
	Version   uint64
	BuiltAt   time.Time
	FetchedAt time.Time // FetchedAt of the dataset it was built from
	Clock     epoch.Interval
	Packets   []czml.Packet
	JSON      []byte // Packets encoded as a CZML array
	Orbits    int
	Events    int

	index map[string]int
}

// Packet returns the packet with the given id.
func (d *Document) Packet(id string) (czml.Packet, bool) {
	i, ok := d.index[id]
	if !ok {
		return czml.Packet{}, false
	}
	return d.Packets[i], true
}

// DocumentCache serves the current CZML document. Safe for concurrent use.
type DocumentCache struct {
	doc atomic.Pointer[Document]

	config     Config
	store      *sp3.Store
	appearance *config.Appearance
	target     string
	logger     *slog.Logger

	// events is replaced wholesale by SetEvents; eventsGen counts replacements.
	events    atomic.Pointer[link.Stitched]
	eventsGen atomic.Uint64

	// State of the data the current document was built from.
	buildMu          sync.Mutex
	currentFetchedAt time.Time
	currentEventsGen uint64

	// changed is closed and replaced on every publish.
	changedMu sync.Mutex
	changed   chan struct{}

	rebuilds  atomic.Int64
	failures  atomic.Int64
	rebuildOn atomic.Bool
}

// NewDocumentCache creates a cache that builds from store. target, when set,
// replaces the LEO id at the far end of every event line.
func NewDocumentCache(cfg Config, store *sp3.Store, appearance *config.Appearance, target string, logger *slog.Logger) *DocumentCache {
	if cfg.Name == "" {
		cfg.Name = "czmlgo"
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	if appearance == nil {
		appearance = config.Default()
	}

	logger.Info("document cache initialized",
		"component", "cache",
		"check_interval_seconds", cfg.CheckInterval.Seconds(),
		"mode", appearance.Mode,
	)

	return &DocumentCache{
		config:     cfg,
		store:      store,
		appearance: appearance,
		target:     target,
		logger:     logger,
		changed:    make(chan struct{}),
	}
}

// Get returns the current document, or nil before the first build.
func (c *DocumentCache) Get() *Document {
	return c.doc.Load()
}

// Changed returns a channel that is closed when the next document is
// published. Call it again after each wake-up.
func (c *DocumentCache) Changed() <-chan struct{} {
	c.changedMu.Lock()
	defer c.changedMu.Unlock()
	return c.changed
}

// SetEvents stitches links with the configured event keywords and schedules
// a rebuild. A nil links clears the event set.
func (c *DocumentCache) SetEvents(links *link.Links) error {
	if links == nil {
		c.events.Store(nil)
		c.eventsGen.Add(1)
		return nil
	}
	s, err := link.Stitch(*links, c.appearance.Event.Keywords)
	if err != nil {
		return err
	}
	c.events.Store(s)
	c.eventsGen.Add(1)
	metrics.SetEventRuns(s.RunCount())

	c.logger.Info("event set loaded",
		"component", "cache",
		"name", s.Name,
		"pairs", len(s.Order),
		"runs", s.RunCount(),
		"window", s.Interval.String(),
	)
	return nil
}

// publish installs doc and wakes everyone waiting on Changed.
func (c *DocumentCache) publish(doc *Document) {
	c.doc.Store(doc)

	c.changedMu.Lock()
	close(c.changed)
	c.changed = make(chan struct{})
	c.changedMu.Unlock()
}

// Stats returns current cache statistics.
func (c *DocumentCache) Stats() Stats {
	s := Stats{
		Rebuilds:     c.rebuilds.Load(),
		Failures:     c.failures.Load(),
		Rebuilding:   c.rebuildOn.Load(),
		EventsLoaded: c.events.Load() != nil,
	}
	if doc := c.doc.Load(); doc != nil {
		s.Version = doc.Version
		s.BuiltAt = doc.BuiltAt
		s.Packets = len(doc.Packets)
		s.Orbits = doc.Orbits
		s.Events = doc.Events
		s.SizeBytes = int64(len(doc.JSON))
		s.Clock = doc.Clock.String()
	}
	return s
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Version      uint64    `json:"version"`
	BuiltAt      time.Time `json:"built_at"`
	Packets      int       `json:"packets"`
	Orbits       int       `json:"orbit_packets"`
	Events       int       `json:"event_packets"`
	SizeBytes    int64     `json:"size_bytes"`
	Clock        string    `json:"clock,omitempty"`
	Rebuilds     int64     `json:"rebuilds"`
	Failures     int64     `json:"failures"`
	Rebuilding   bool      `json:"rebuilding"`
	EventsLoaded bool      `json:"events_loaded"`
}
