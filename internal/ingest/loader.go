package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/star/czmlgo/internal/metrics"
	"github.com/star/czmlgo/internal/observability"
	"github.com/star/czmlgo/internal/sp3"
)

// ErrFetchDisabled is returned by Refresh when no remote source is configured.
var ErrFetchDisabled = errors.New("SP3 fetch disabled")

// ErrNothingParsed means every source failed to parse.
var ErrNothingParsed = errors.New("no SP3 source parsed")

// Loader fills the dataset store from the disk cache and remote sources.
type Loader struct {
	fetcher *sp3.Fetcher // nil disables Refresh
	pool    *Pool
	store   *sp3.Store
	cache   *sp3.Cache // optional
	logger  *slog.Logger
}

// NewLoader creates a Loader. fetcher and cache may be nil.
func NewLoader(fetcher *sp3.Fetcher, pool *Pool, store *sp3.Store, cache *sp3.Cache, logger *slog.Logger) *Loader {
	return &Loader{
		fetcher: fetcher,
		pool:    pool,
		store:   store,
		cache:   cache,
		logger:  logger,
	}
}

// FetchEnabled reports whether Refresh can reach a remote source.
func (l *Loader) FetchEnabled() bool {
	return l.fetcher != nil && l.fetcher.SourceURL() != ""
}

// LoadCached parses the newest cached snapshot into the store.
func (l *Loader) LoadCached(ctx context.Context) (*sp3.Dataset, error) {
	if l.cache == nil {
		return nil, errors.New("no SP3 disk cache configured")
	}
	texts, ts, err := l.cache.LoadLatest()
	if err != nil {
		return nil, err
	}

	ds, err := l.build(ctx, "cache", ts, sourcesOf("cache", texts))
	if err != nil {
		return nil, err
	}
	l.store.Set(ds)
	l.logger.Info("loaded SP3 data from cache",
		"component", "ingest",
		"satellites", ds.SatelliteCount(),
		"cached_at", ts.Format(time.RFC3339),
	)
	return ds, nil
}

// Refresh fetches every configured source, parses them and replaces the
// stored dataset. Concurrent refreshes are serialized on the store lock.
// Every fetched text is written to the disk cache once the dataset is in.
func (l *Loader) Refresh(ctx context.Context) (*sp3.Dataset, error) {
	if !l.FetchEnabled() {
		return nil, ErrFetchDisabled
	}

	l.store.Lock()
	defer l.store.Unlock()

	ctx, span := observability.StartSpan(ctx, "ingest.refresh",
		attribute.String("sp3.source_url", l.fetcher.SourceURL()))
	defer span.End()

	texts, err := l.fetcher.Fetch(ctx)
	metrics.ObserveFetch(err)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetching SP3: %w", err)
	}

	now := time.Now().UTC()
	ds, err := l.build(ctx, l.fetcher.SourceURL(), now, sourcesOf("source", texts))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	l.store.Set(ds)

	if l.cache != nil {
		if err := l.cache.Write(texts, now); err != nil {
			l.logger.Warn("failed to write SP3 cache", "component", "ingest", "error", err)
		}
	}

	span.SetAttributes(attribute.Int("sp3.satellites", ds.SatelliteCount()))
	l.logger.Info("SP3 dataset refreshed",
		"component", "ingest",
		"sources", len(texts),
		"ephemerides", len(ds.Ephemerides),
		"satellites", ds.SatelliteCount(),
		"coverage", ds.Coverage.String(),
	)
	return ds, nil
}

func sourcesOf(prefix string, texts [][]byte) []Source {
	sources := make([]Source, len(texts))
	for i, t := range texts {
		sources[i] = Source{Name: fmt.Sprintf("%s-%d", prefix, i), Data: t}
	}
	return sources
}

// build parses sources into a dataset. It fails only when nothing parsed.
func (l *Loader) build(ctx context.Context, source string, fetchedAt time.Time, sources []Source) (*sp3.Dataset, error) {
	results, ok, failed := l.pool.ParseBatch(ctx, sources)
	if ok == 0 {
		for _, r := range results {
			if r.Err != nil {
				return nil, fmt.Errorf("%w: %w", ErrNothingParsed, r.Err)
			}
		}
		return nil, ErrNothingParsed
	}
	if failed > 0 {
		l.logger.Warn("some SP3 sources failed to parse", "component", "ingest", "parsed", ok, "failed", failed)
	}

	ds := sp3.NewDataset(source, fetchedAt, Ephemerides(results))
	metrics.SetDataset(ds.SatelliteCount(), time.Since(fetchedAt).Seconds())
	return ds, nil
}
