// Package monitor serves the local workbench HTTP surface: sensor and
// transmission status, manual batch triggers, preview charts, and the
// archive debug endpoints.
package monitor

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/sensor.bench/internal/archive"
	"github.com/banshee-data/sensor.bench/internal/httputil"
	"github.com/banshee-data/sensor.bench/internal/ingest"
	"github.com/banshee-data/sensor.bench/internal/scheduler"
	"github.com/banshee-data/sensor.bench/internal/simulate"
	"github.com/banshee-data/sensor.bench/internal/state"
	"github.com/banshee-data/sensor.bench/internal/stream"
	"github.com/banshee-data/sensor.bench/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// SessionIndex exposes live stream sessions for status reporting.
type SessionIndex interface {
	Session(sensorKey string) *stream.Session
}

// WebServerConfig contains the collaborators the web surface reports on.
type WebServerConfig struct {
	Address     string
	Store       *state.Store
	Transmitter *ingest.Transmitter
	Scheduler   *scheduler.Scheduler
	Builder     *simulate.Builder
	Archive     *archive.Archive
	Sessions    SessionIndex

	// APIBase and Client are used for on-demand history loads against
	// the portal.
	APIBase string
	Client  httputil.HTTPClient
	// UserToken authorizes history queries. The query route wants a
	// user credential; without one the sensor's own token is sent,
	// which only backends with relaxed query auth accept.
	UserToken string
}

// WebServer handles the HTTP interface for monitoring the workbench.
type WebServer struct {
	address   string
	store     *state.Store
	tx        *ingest.Transmitter
	sched     *scheduler.Scheduler
	builder   *simulate.Builder
	archive   *archive.Archive
	sessions  SessionIndex
	apiBase   string
	client    httputil.HTTPClient
	userToken string
	server    *http.Server
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   config.Address,
		store:     config.Store,
		tx:        config.Transmitter,
		sched:     config.Scheduler,
		builder:   config.Builder,
		archive:   config.Archive,
		sessions:  config.Sessions,
		apiBase:   config.APIBase,
		client:    config.Client,
		userToken: config.UserToken,
	}
	mux := ws.setupRoutes()
	ws.attachAdminRoutes(mux)
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: LoggingMiddleware(mux),
	}
	return ws
}

// Start begins the HTTP server and blocks until the context is
// cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/sensors", ws.handleSensors)
	mux.HandleFunc("/api/sensors/batch", ws.handleSendBatch)
	mux.HandleFunc("/api/sensors/preview", ws.handlePreview)
	mux.HandleFunc("/api/sensors/stats", ws.handlePreviewStats)
	mux.HandleFunc("/api/history", ws.handleHistory)
	mux.HandleFunc("/api/archive/sessions", ws.handleArchiveSessions)
	mux.HandleFunc("/api/archive/recent", ws.handleArchiveRecent)
	mux.HandleFunc("/debug/charts/preview", ws.handlePreviewChart)
	mux.HandleFunc("/debug/charts/waveform.png", ws.handleWaveformPNG)
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

// streamStatus is the stream half of a sensor's status row.
type streamStatus struct {
	State         string    `json:"state"`
	Received      int64     `json:"received"`
	LastError     string    `json:"last_error,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitzero"`
}

// sensorStatus is one row of the /api/sensors response.
type sensorStatus struct {
	Key              string            `json:"key"`
	Label            string            `json:"label"`
	SensorID         string            `json:"sensor_id,omitempty"`
	Ready            bool              `json:"ready"`
	Selected         bool              `json:"selected"`
	CaptureSessionID string            `json:"capture_session_id,omitempty"`
	StreamCursor     int64             `json:"stream_cursor"`
	Settings         simulate.Settings `json:"settings"`
	Ingest           ingest.Stats      `json:"ingest"`
	Stream           *streamStatus     `json:"stream,omitempty"`
}

func (ws *WebServer) handleSensors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	selected := ws.store.Selected()
	var out []sensorStatus
	for _, cfg := range ws.store.Sensors() {
		row := sensorStatus{
			Key:              cfg.Key,
			Label:            cfg.Label,
			SensorID:         cfg.SensorID,
			Ready:            cfg.Ready(),
			Selected:         cfg.Key == selected,
			CaptureSessionID: cfg.CaptureSessionID,
			StreamCursor:     cfg.StreamCursor,
			Settings:         cfg.Settings,
			Ingest:           ws.tx.Stats(cfg.Key),
		}
		if ws.sessions != nil {
			if s := ws.sessions.Session(cfg.Key); s != nil {
				row.Stream = &streamStatus{
					State:         s.State().String(),
					Received:      s.Received(),
					LastError:     s.LastError(),
					LastHeartbeat: s.LastHeartbeat(),
				}
			}
		}
		out = append(out, row)
	}
	httputil.WriteJSONOK(w, map[string]any{
		"sensors": out,
		"ticks":   ws.sched.Ticks(),
	})
}

func (ws *WebServer) handleSendBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	key := r.FormValue("sensor_key")
	if key == "" {
		httputil.BadRequest(w, "missing 'sensor_key' parameter")
		return
	}
	count := 0
	if c := r.FormValue("count"); c != "" {
		parsed, err := strconv.Atoi(c)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'count' parameter")
			return
		}
		count = parsed
	}
	if count == 0 {
		if cfg, ok := ws.store.Get(key); ok {
			count = cfg.Settings.BatchSize
		}
	}
	if count < 1 {
		httputil.BadRequest(w, "batch count resolved to zero; set 'count' or the sensor's batch size")
		return
	}

	out, err := ws.sched.SendBatch(r.Context(), key, count)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	resp := map[string]any{"accepted": out.Accepted, "status": out.Status}
	if out.Err != nil {
		resp["error"] = out.Err.Error()
	}
	httputil.WriteJSONOK(w, resp)
}

// previewBatch resolves the sensor and builds a throwaway batch for the
// preview and stats endpoints.
func (ws *WebServer) previewBatch(w http.ResponseWriter, r *http.Request) ([]simulate.Reading, bool) {
	key := r.URL.Query().Get("sensor_key")
	if key == "" {
		key = ws.store.Selected()
	}
	cfg, ok := ws.store.Get(key)
	if !ok {
		httputil.NotFound(w, "unknown sensor")
		return nil, false
	}

	count := 50
	if c := r.URL.Query().Get("count"); c != "" {
		parsed, err := strconv.Atoi(c)
		if err != nil || parsed < 1 || parsed > 10000 {
			httputil.BadRequest(w, "invalid 'count' parameter")
			return nil, false
		}
		count = parsed
	}
	return ws.builder.Preview(cfg.Key, count, cfg.Settings.RateHz, cfg.Settings), true
}

func (ws *WebServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	readings, ok := ws.previewBatch(w, r)
	if !ok {
		return
	}
	type previewReading struct {
		Timestamp     time.Time `json:"timestamp"`
		RawValue      float64   `json:"raw_value"`
		PhysicalValue float64   `json:"physical_value"`
		Seq           int64     `json:"seq"`
	}
	out := make([]previewReading, 0, len(readings))
	for _, rd := range readings {
		out = append(out, previewReading{
			Timestamp:     rd.Timestamp,
			RawValue:      rd.RawValue,
			PhysicalValue: rd.PhysicalValue,
			Seq:           rd.Seq,
		})
	}
	httputil.WriteJSONOK(w, map[string]any{"readings": out})
}

func (ws *WebServer) handleArchiveSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sums, err := ws.archive.SummarizeSessions()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"sessions": sums})
}

func (ws *WebServer) handleArchiveRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	key := r.URL.Query().Get("sensor_key")
	if key == "" {
		httputil.BadRequest(w, "missing 'sensor_key' parameter")
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 10000 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	events, err := ws.archive.RecentEvents(key, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"events": events})
}
