package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/star/czmlgo/internal/auth"
	"github.com/star/czmlgo/internal/cache"
	"github.com/star/czmlgo/internal/ingest"
	"github.com/star/czmlgo/internal/sp3"
	"github.com/star/czmlgo/internal/stream"
)

const testSP3 = "#cP2015  4 11  0  0  0.00000000      96 ORBIT IGb08 HLM  IGS\n" +
	"*  2015  4 11  1  0  0.00000000\n" +
	"PG01 -11044.805800 -10475.672350  21929.418200    -26.905500\n" +
	"PC06  -2396.130990  36345.211970  22178.839780    -15.422370\n" +
	"*  2015  4 11  1  5  0.00000000\n" +
	"PG01 -11040.100000 -10480.000000  21930.000000    -26.905500\n" +
	"PC06  -2390.000000  36350.000000  22170.000000    -15.422370\n" +
	"EOF\n"

const testEvents = `{
  "name": "window",
  "interval": "20150411010000-20150411020000",
  "events": [
    {"gnss": "G01", "leo": "L01", "type": 1, "interval": "20150411010000-20150411010010",
     "position": [["20150411010000", 6778.0, 0, 0]]},
    {"gnss": "C06", "leo": "L01", "type": "2", "interval": "20150411011000-20150411011010",
     "position": [["20150411011000", "6778.0", "0", "0"]]}
  ]
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// testDeps wires a store and document cache. With loaded set the store holds
// testSP3 and the first document is built.
func testDeps(t *testing.T, loaded bool) Deps {
	t.Helper()
	logger := testLogger()
	store := sp3.NewStore()
	pool := ingest.NewPool(2, "", logger)
	docs := cache.NewDocumentCache(cache.Config{Name: "test"}, store, nil, "", logger)
	if loaded {
		eph, err := sp3.Parse(strings.NewReader(testSP3), "")
		if err != nil {
			t.Fatal(err)
		}
		store.Set(sp3.NewDataset("test", time.Now().Add(-time.Minute), []*sp3.Ephemeris{eph}))
		if err := docs.Rebuild(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	return Deps{
		Store:  store,
		Loader: ingest.NewLoader(nil, pool, store, nil, logger),
		Pool:   pool,
		Docs:   docs,
		Stream: stream.NewHandler(docs, stream.Config{}, logger),
	}
}

func serve(h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding CZML: %v; body %s", err, w.Body.String())
	}
	return out
}

func packetIDs(packets []map[string]any) []string {
	ids := make([]string, len(packets))
	for i, p := range packets {
		ids[i], _ = p["id"].(string)
	}
	return ids
}

func TestProbes(t *testing.T) {
	empty := NewHandler(testLogger(), auth.Config{}, testDeps(t, false))
	if w := serve(empty, "GET", "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz = %d", w.Code)
	}
	if w := serve(empty, "GET", "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before first document = %d, want 503", w.Code)
	}

	loaded := NewHandler(testLogger(), auth.Config{}, testDeps(t, true))
	if w := serve(loaded, "GET", "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readyz with document = %d, want 200", w.Code)
	}
	if w := serve(loaded, "GET", "/metrics", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "czmlgo_") {
		t.Errorf("metrics = %d", w.Code)
	}
}

func TestConvertSP3(t *testing.T) {
	h := NewHandler(testLogger(), auth.Config{}, testDeps(t, false))

	tests := []struct {
		name    string
		query   string
		body    string
		want    int
		wantIDs string
		line    int
	}{
		{name: "all satellites", body: testSP3, want: http.StatusOK, wantIDs: "document,G01,C06"},
		{name: "id filter", query: "?keywords=C", body: testSP3, want: http.StatusOK, wantIDs: "document,C06"},
		{name: "2D mode", query: "?mode=2d", body: testSP3, want: http.StatusOK, wantIDs: "document,G01,C06"},
		{name: "bad mode", query: "?mode=4D", body: testSP3, want: http.StatusBadRequest},
		{name: "no header", body: "nothing here\n", want: http.StatusBadRequest, line: 1},
		{name: "bad epoch", body: "*  2015  4 11\nEOF\n", want: http.StatusBadRequest, line: 1},
		{name: "unterminated", body: "*  2015  4 11  1  0  0.0\nPG01 1 2 3\n", want: http.StatusBadRequest, line: 2},
		{name: "unknown keyword finds nothing", query: "?keyword=X", body: testSP3, want: http.StatusOK, wantIDs: "document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, "POST", "/api/v1/convert/sp3"+tt.query, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d; body %s", w.Code, tt.want, w.Body.String())
			}
			if tt.want != http.StatusOK {
				var body map[string]any
				json.Unmarshal(w.Body.Bytes(), &body)
				if body["error"] == nil {
					t.Error("expected error field in response")
				}
				if tt.line > 0 {
					if got, _ := body["line"].(float64); int(got) != tt.line {
						t.Errorf("line = %v, want %d", body["line"], tt.line)
					}
				}
				return
			}
			if ids := strings.Join(packetIDs(decodeArray(t, w)), ","); ids != tt.wantIDs {
				t.Errorf("packet ids = %s, want %s", ids, tt.wantIDs)
			}
		})
	}
}

func TestConvertSP3TooLarge(t *testing.T) {
	defer func(n int64) { maxSP3Body = n }(maxSP3Body)
	maxSP3Body = 64

	h := NewHandler(testLogger(), auth.Config{}, testDeps(t, false))
	w := serve(h, "POST", "/api/v1/convert/sp3", testSP3)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestConvertEvents(t *testing.T) {
	h := NewHandler(testLogger(), auth.Config{}, testDeps(t, false))
	window := "2015-04-11T01:00:00.000Z/2015-04-11T02:00:00.000Z"

	w := serve(h, "POST", "/api/v1/convert/events?target=SAT9", testEvents)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", w.Code, w.Body.String())
	}
	packets := decodeArray(t, w)
	want := "document," + window + ",G01/L01/" + window + ",C06/L01/" + window
	if ids := strings.Join(packetIDs(packets), ","); ids != want {
		t.Errorf("packet ids = %s, want %s", ids, want)
	}
	if packets[0]["name"] != "window" {
		t.Errorf("document name = %v, want the event file name", packets[0]["name"])
	}
	refs := packets[2]["polyline"].(map[string]any)["positions"].(map[string]any)["references"].([]any)
	if refs[1] != "SAT9#position" {
		t.Errorf("far end = %v, want the target override", refs[1])
	}

	w = serve(h, "POST", "/api/v1/convert/events?keywords=C", testEvents)
	if n := len(decodeArray(t, w)); n != 3 {
		t.Errorf("filtered document has %d packets, want 3", n)
	}

	for name, body := range map[string]string{
		"not json":   "{",
		"bad window": `{"interval": "soon", "events": []}`,
		"bad sample": `{"interval": "20150411010000-20150411020000", "events": [{"gnss": "G01", "leo": "L01", "interval": "20150411010000-20150411010010", "position": [["x", 1, 2, 3]]}]}`,
		"NaN sample": `{"interval": "20150411010000-20150411020000", "events": [{"gnss": "G01", "leo": "L01", "interval": "20150411010000-20150411010010", "position": [["20150411010000", "NaN", 2, 3]]}]}`,
	} {
		if w := serve(h, "POST", "/api/v1/convert/events", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}

func TestDocumentEndpoints(t *testing.T) {
	empty := NewHandler(testLogger(), auth.Config{}, testDeps(t, false))
	for _, path := range []string{"/api/v1/czml", "/api/v1/czml/satellites/G01", "/api/v1/sp3/metadata"} {
		if w := serve(empty, "GET", path, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s without data = %d, want 503", path, w.Code)
		}
	}

	h := NewHandler(testLogger(), auth.Config{}, testDeps(t, true))

	w := serve(h, "GET", "/api/v1/czml", "")
	if w.Code != http.StatusOK {
		t.Fatalf("czml = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag != `"v1"` {
		t.Errorf("ETag = %q", etag)
	}
	if ids := strings.Join(packetIDs(decodeArray(t, w)), ","); ids != "document,G01,C06" {
		t.Errorf("packet ids = %s", ids)
	}
	if w := serve(h, "GET", "/api/v1/czml", "", "If-None-Match", etag); w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}

	w = serve(h, "GET", "/api/v1/czml/satellites/C06", "")
	var p map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil || p["id"] != "C06" {
		t.Errorf("satellite packet = %d %s", w.Code, w.Body.String())
	}
	if w := serve(h, "GET", "/api/v1/czml/satellites/G99", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown satellite = %d, want 404", w.Code)
	}

	w = serve(h, "GET", "/api/v1/sp3/metadata", "")
	var meta map[string]any
	json.Unmarshal(w.Body.Bytes(), &meta)
	if meta["satellites"].(float64) != 2 || meta["samples"].(float64) != 4 {
		t.Errorf("metadata = %v", meta)
	}
	if meta["coverage"] != "2015-04-11T01:00:00.000Z/2015-04-11T01:05:00.000Z" {
		t.Errorf("coverage = %v", meta["coverage"])
	}

	w = serve(h, "GET", "/api/v1/cache/stats", "")
	var stats cache.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil || stats.Version != 1 || stats.Orbits != 2 {
		t.Errorf("stats = %+v, %v", stats, err)
	}
}

func TestFetch(t *testing.T) {
	deps := testDeps(t, false)
	h := NewHandler(testLogger(), auth.Config{}, deps)
	if w := serve(h, "POST", "/api/v1/sp3/fetch", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("fetch without source = %d, want 503", w.Code)
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.sp3" {
			w.Write([]byte("*  2015  4 11\nEOF\n"))
			return
		}
		w.Write([]byte(testSP3))
	}))
	defer upstream.Close()

	logger := testLogger()
	deps.Loader = ingest.NewLoader(sp3.NewFetcher(upstream.URL+"/igs.sp3", logger), deps.Pool, deps.Store, nil, logger)
	h = NewHandler(logger, auth.Config{}, deps)

	w := serve(h, "POST", "/api/v1/sp3/fetch", "")
	if w.Code != http.StatusOK {
		t.Fatalf("fetch = %d; body %s", w.Code, w.Body.String())
	}
	if deps.Store.Get() == nil || deps.Store.Get().SatelliteCount() != 2 {
		t.Error("fetch did not load the dataset")
	}

	deps.Loader = ingest.NewLoader(sp3.NewFetcher(upstream.URL+"/broken.sp3", logger), deps.Pool, deps.Store, nil, logger)
	h = NewHandler(logger, auth.Config{}, deps)
	w = serve(h, "POST", "/api/v1/sp3/fetch", "")
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusBadGateway || body["line"].(float64) != 1 {
		t.Errorf("broken upstream = %d %v", w.Code, body)
	}
}

func TestAuthChain(t *testing.T) {
	h := NewHandler(testLogger(), auth.Config{Enabled: true, Token: "t0k"}, testDeps(t, true))

	if w := serve(h, "GET", "/api/v1/czml", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := serve(h, "GET", "/api/v1/czml", "", "Authorization", "Bearer t0k"); w.Code != http.StatusOK {
		t.Errorf("with token = %d, want 200", w.Code)
	}
	if w := serve(h, "GET", "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readyz = %d, want exempt", w.Code)
	}
}

// TestStreamThroughMiddleware checks that SSE still flushes behind the
// metrics, logging and auth wrappers.
func TestStreamThroughMiddleware(t *testing.T) {
	srv := httptest.NewServer(NewHandler(testLogger(), auth.Config{}, testDeps(t, true)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/v1/stream/czml", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 4096)
	var got strings.Builder
	for !strings.Contains(got.String(), `"id":"document"`) {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			t.Fatalf("stream ended before the document packet: %v", err)
		}
	}
}

func TestViewerPage(t *testing.T) {
	deps := testDeps(t, false)
	deps.Web = fstest.MapFS{"index.html": {Data: []byte("<html>viewer</html>")}}
	h := NewHandler(testLogger(), auth.Config{Enabled: true, Token: "t0k"}, deps)

	w := serve(h, "GET", "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "viewer") {
		t.Errorf("viewer = %d %q", w.Code, w.Body.String())
	}
	if w := serve(h, "GET", "/nope", "", "Authorization", "Bearer t0k"); w.Code != http.StatusNotFound {
		t.Errorf("unknown path = %d, want 404", w.Code)
	}
}
