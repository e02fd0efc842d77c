package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/star/czmlgo/internal/cache"
	"github.com/star/czmlgo/internal/czml"
	"github.com/star/czmlgo/internal/httputil"
	"github.com/star/czmlgo/internal/ingest"
	"github.com/star/czmlgo/internal/link"
	"github.com/star/czmlgo/internal/observability"
	"github.com/star/czmlgo/internal/sp3"
)

// Upload limits for the convert endpoints.
var (
	maxSP3Body    int64 = 50 << 20
	maxEventsBody int64 = 20 << 20
)

// sceneOptions are the per-request overrides accepted by the convert
// endpoints.
type sceneOptions struct {
	name     string
	mode     czml.Mode
	keywords []string
	target   string
	hasTgt   bool
}

func parseSceneOptions(r *http.Request) (sceneOptions, error) {
	q := r.URL.Query()
	opts := sceneOptions{name: q.Get("name")}

	switch strings.ToUpper(q.Get("mode")) {
	case "":
	case string(czml.Mode2D):
		opts.mode = czml.Mode2D
	case string(czml.Mode3D):
		opts.mode = czml.Mode3D
	default:
		return opts, fmt.Errorf("invalid mode %q, must be 2D or 3D", q.Get("mode"))
	}

	if v := q.Get("keywords"); v != "" {
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				opts.keywords = append(opts.keywords, k)
			}
		}
	}
	opts.target, opts.hasTgt = q.Get("target"), q.Has("target")
	return opts, nil
}

// scene builds the base scene from the configured appearance with the
// request overrides applied.
func (o sceneOptions) scene(deps Deps) cache.Scene {
	s := cache.Scene{
		Name:       o.name,
		OrbitStyle: deps.Appearance.OrbitStyle(),
		EventStyle: deps.Appearance.EventStyle(),
		Target:     deps.Appearance.Event.Target,
	}
	if s.Name == "" {
		s.Name = "czmlgo"
	}
	if o.mode != "" {
		s.OrbitStyle.Mode = o.mode
		s.EventStyle.Mode = o.mode
	}
	if o.hasTgt {
		s.Target = o.target
	}
	return s
}

// readBody reads at most limit bytes, answering 413 past that.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit))
			return nil, false
		}
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

// writeDocument encodes packets as the response.
func writeDocument(w http.ResponseWriter, logger *slog.Logger, packets []czml.Packet) {
	var buf bytes.Buffer
	if err := czml.Encode(&buf, packets); err != nil {
		logger.Error("failed to encode CZML", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to encode CZML")
		return
	}
	httputil.WriteCZML(w, buf.Bytes())
}

// convertSP3Handler turns an uploaded SP3 text into a CZML document.
// POST /api/v1/convert/sp3?keyword=P&keywords=G,C&mode=3D&name=...
//
// keyword selects the position record prefix; keywords filters satellite ids.
func convertSP3Handler(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.StartSpan(r.Context(), "api.convert_sp3")
		defer span.End()

		opts, err := parseSceneOptions(r)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		body, ok := readBody(w, r, maxSP3Body)
		if !ok {
			return
		}
		span.SetAttributes(attribute.Int("sp3.bytes", len(body)))

		pool := deps.Pool
		if kw := r.URL.Query().Get("keyword"); kw != "" {
			pool = ingest.NewPool(1, kw, logger)
		}
		results, _, _ := pool.ParseBatch(ctx, []ingest.Source{{Name: "upload", Data: body}})
		if err := results[0].Err; err != nil {
			span.RecordError(err)
			httputil.WriteJSON(w, http.StatusBadRequest, parseErrorBody(err))
			return
		}

		scene := opts.scene(deps)
		scene.Ephemerides = ingest.Ephemerides(results)
		if len(opts.keywords) > 0 {
			scene.OrbitStyle.Keywords = opts.keywords
		}

		res := cache.Build(scene)
		span.SetAttributes(attribute.Int("czml.packets", len(res.Packets)))
		writeDocument(w, logger, res.Packets)
	}
}

// convertEventsHandler turns an uploaded link event file into a CZML document.
// POST /api/v1/convert/events?keywords=G,C&target=L01&mode=3D
func convertEventsHandler(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := observability.StartSpan(r.Context(), "api.convert_events")
		defer span.End()

		opts, err := parseSceneOptions(r)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		body, ok := readBody(w, r, maxEventsBody)
		if !ok {
			return
		}

		links, err := link.Decode(bytes.NewReader(body))
		if err != nil {
			span.RecordError(err)
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		keywords := deps.Appearance.Event.Keywords
		if len(opts.keywords) > 0 {
			keywords = opts.keywords
		}
		stitched, err := link.Stitch(*links, keywords)
		if err != nil {
			span.RecordError(err)
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		scene := opts.scene(deps)
		if opts.name == "" && stitched.Name != "" {
			scene.Name = stitched.Name
		}
		scene.Events = stitched

		res := cache.Build(scene)
		span.SetAttributes(
			attribute.Int("link.runs", stitched.RunCount()),
			attribute.Int("czml.packets", len(res.Packets)),
		)
		writeDocument(w, logger, res.Packets)
	}
}

// parseErrorBody adds the line number for SP3 parse errors.
func parseErrorBody(err error) httputil.ErrorBody {
	body := httputil.ErrorBody{Error: err.Error()}
	var pe *sp3.ParseError
	if errors.As(err, &pe) {
		body.Line = pe.Line
	}
	return body
}
