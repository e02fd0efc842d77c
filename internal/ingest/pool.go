// Package ingest parses many SP3 texts in parallel. Each text is one job;
// a file is never split, since the parser's current-epoch state runs through
// the whole text.
package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/star/czmlgo/internal/metrics"
	"github.com/star/czmlgo/internal/sp3"
)

// Source is one SP3 text to parse.
type Source struct {
	Name string
	Data []byte
}

// Result is the outcome of parsing one source.
type Result struct {
	Name      string
	Ephemeris *sp3.Ephemeris
	Err       error
}

// parseJob is a unit of work for the worker pool.
type parseJob struct {
	index  int
	source Source
}

type parseResult struct {
	index  int
	result Result
}

// Pool manages a fixed number of goroutines for parallel SP3 parsing.
type Pool struct {
	workers int
	keyword string
	logger  *slog.Logger
}

// NewPool creates a pool with the given number of workers. keyword is passed
// to sp3.Parse for every source.
func NewPool(workers int, keyword string, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		keyword: keyword,
		logger:  logger,
	}
}

// ParseBatch parses every source and returns results in input order, along
// with success and error counts. Failed sources are logged and carry their
// error. Sources not reached before ctx is cancelled report ctx.Err().
func (p *Pool) ParseBatch(ctx context.Context, sources []Source) ([]Result, int, int) {
	if len(sources) == 0 {
		return nil, 0, 0
	}

	jobs := make(chan parseJob, p.workers*2)
	results := make(chan parseResult, p.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				r := parseResult{index: job.index, result: p.parseSingle(job.source)}
				select {
				case results <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, src := range sources {
			select {
			case jobs <- parseJob{index: i, source: src}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Result, len(sources))
	done := make([]bool, len(sources))
	var successCount, errorCount int

	for r := range results {
		out[r.index] = r.result
		done[r.index] = true
		if r.result.Err != nil {
			errorCount++
			p.logger.Warn("sp3 parse failed",
				"component", "ingest",
				"source", r.result.Name,
				"error", r.result.Err,
			)
			continue
		}
		successCount++
	}

	for i, ok := range done {
		if !ok {
			out[i] = Result{Name: sources[i].Name, Err: ctx.Err()}
			errorCount++
		}
	}

	return out, successCount, errorCount
}

// Ephemerides returns the parsed ephemerides of the successful results.
func Ephemerides(results []Result) []*sp3.Ephemeris {
	ephs := make([]*sp3.Ephemeris, 0, len(results))
	for _, r := range results {
		if r.Err == nil && r.Ephemeris != nil {
			ephs = append(ephs, r.Ephemeris)
		}
	}
	return ephs
}

func (p *Pool) parseSingle(src Source) Result {
	start := time.Now()
	eph, err := sp3.Parse(bytes.NewReader(src.Data), p.keyword)
	metrics.ObserveParse(time.Since(start), err)
	return Result{Name: src.Name, Ephemeris: eph, Err: err}
}
