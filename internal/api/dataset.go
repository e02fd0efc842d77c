package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/czmlgo/internal/cache"
	"github.com/star/czmlgo/internal/httputil"
	"github.com/star/czmlgo/internal/ingest"
	"github.com/star/czmlgo/internal/sp3"
)

// documentHandler serves the cached document. The version is the ETag.
// GET /api/v1/czml
func documentHandler(docs *cache.DocumentCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := docs.Get()
		if doc == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "no CZML document built yet")
			return
		}

		etag := fmt.Sprintf(`"v%d"`, doc.Version)
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		httputil.WriteCZML(w, doc.JSON)
	}
}

// packetHandler serves one packet of the cached document.
// GET /api/v1/czml/satellites/{id}
func packetHandler(docs *cache.DocumentCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := docs.Get()
		if doc == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "no CZML document built yet")
			return
		}
		id := r.PathValue("id")
		p, ok := doc.Packet(id)
		if !ok {
			httputil.WriteError(w, http.StatusNotFound, "no packet with id "+id)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, p)
	}
}

func cacheStatsHandler(docs *cache.DocumentCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, docs.Stats())
	}
}

type metadataResponse struct {
	Source      string  `json:"source"`
	FetchedAt   string  `json:"fetched_at"`
	AgeSeconds  int     `json:"age_seconds"`
	Ephemerides int     `json:"ephemerides"`
	Satellites  int     `json:"satellites"`
	Samples     int     `json:"samples"`
	Coverage    *string `json:"coverage"`
}

func newMetadataResponse(ds *sp3.Dataset) metadataResponse {
	m := metadataResponse{
		Source:      ds.Source,
		FetchedAt:   ds.FetchedAt.UTC().Format(time.RFC3339),
		AgeSeconds:  int(time.Since(ds.FetchedAt).Seconds()),
		Ephemerides: len(ds.Ephemerides),
		Satellites:  ds.SatelliteCount(),
	}
	for _, e := range ds.Ephemerides {
		m.Samples += e.SampleCount()
	}
	if !ds.Coverage.IsZero() {
		c := ds.Coverage.String()
		m.Coverage = &c
	}
	return m
}

// metadataHandler describes the loaded SP3 dataset.
// GET /api/v1/sp3/metadata
func metadataHandler(store *sp3.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := store.Get()
		if ds == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "no SP3 dataset loaded")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newMetadataResponse(ds))
	}
}

// fetchHandler refreshes the dataset from the configured sources. The
// document cache picks the new dataset up on its next check.
// POST /api/v1/sp3/fetch
func fetchHandler(logger *slog.Logger, loader *ingest.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds, err := loader.Refresh(r.Context())
		switch {
		case errors.Is(err, ingest.ErrFetchDisabled):
			httputil.WriteError(w, http.StatusServiceUnavailable, "SP3 fetch is not configured")
			return
		case errors.Is(err, ingest.ErrNothingParsed):
			// The upstream file is broken, not the request.
			logger.Warn("SP3 refresh parsed nothing", "component", "api", "error", err)
			httputil.WriteJSON(w, http.StatusBadGateway, parseErrorBody(err))
			return
		case err != nil:
			logger.Warn("SP3 refresh failed", "component", "api", "error", err)
			httputil.WriteError(w, http.StatusBadGateway, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newMetadataResponse(ds))
	}
}
