package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/star/czmlgo/internal/sp3"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func sp3Source(name, id string, minute int) Source {
	text := fmt.Sprintf("*  2015  4 11  1 %2d  0.00000000\nP%s 1.0 2.0 3.0\nEOF\n", minute, id)
	return Source{Name: name, Data: []byte(text)}
}

func TestParseBatchOrder(t *testing.T) {
	var sources []Source
	for i := 0; i < 20; i++ {
		sources = append(sources, sp3Source(fmt.Sprintf("file-%02d", i), fmt.Sprintf("G%02d", i+1), i))
	}
	sources[7] = Source{Name: "broken", Data: []byte("*  2015  4 11\nEOF\n")}

	pool := NewPool(4, "", testLogger)
	results, ok, failed := pool.ParseBatch(context.Background(), sources)

	if ok != 19 || failed != 1 {
		t.Errorf("counts = %d ok, %d failed; want 19, 1", ok, failed)
	}
	if len(results) != len(sources) {
		t.Fatalf("got %d results, want %d", len(results), len(sources))
	}
	for i, r := range results {
		if r.Name != sources[i].Name {
			t.Errorf("result %d is %s, want %s", i, r.Name, sources[i].Name)
		}
	}

	var pe *sp3.ParseError
	if !errors.As(results[7].Err, &pe) {
		t.Errorf("broken source error = %v, want *sp3.ParseError", results[7].Err)
	}
	if results[3].Ephemeris == nil || results[3].Ephemeris.Order[0] != "G04" {
		t.Errorf("result 3 = %+v", results[3])
	}

	if ephs := Ephemerides(results); len(ephs) != 19 {
		t.Errorf("Ephemerides() = %d, want 19", len(ephs))
	}
}

func TestParseBatchEmpty(t *testing.T) {
	results, ok, failed := NewPool(2, "", testLogger).ParseBatch(context.Background(), nil)
	if results != nil || ok != 0 || failed != 0 {
		t.Errorf("empty batch = %v, %d, %d", results, ok, failed)
	}
}

func TestParseBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sources := []Source{sp3Source("a", "G01", 0), sp3Source("b", "G02", 1)}
	results, ok, failed := NewPool(1, "", testLogger).ParseBatch(ctx, sources)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if ok+failed != 2 {
		t.Errorf("ok+failed = %d, want 2", ok+failed)
	}
	for _, r := range results {
		if r.Err != nil && !errors.Is(r.Err, context.Canceled) {
			t.Errorf("%s: error = %v", r.Name, r.Err)
		}
	}
}

func TestParseBatchKeyword(t *testing.T) {
	sources := []Source{sp3Source("gps", "G01", 0), sp3Source("bds", "C01", 0)}
	results, _, _ := NewPool(2, "PC", testLogger).ParseBatch(context.Background(), sources)
	if results[0].Ephemeris.Len() != 0 || results[1].Ephemeris.Len() != 1 {
		t.Errorf("keyword filter not applied: %d, %d", results[0].Ephemeris.Len(), results[1].Ephemeris.Len())
	}
}
