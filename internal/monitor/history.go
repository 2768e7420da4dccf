package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/sensor.bench/internal/history"
	"github.com/banshee-data/sensor.bench/internal/httputil"
)

// handleHistory runs an on-demand history load for one sensor and
// returns the accumulated points plus the per-sensor resume cursors, so
// a caller can continue in live mode strictly after the last loaded id.
// Query params:
//   - sensor_key (optional; defaults to the selected sensor)
//   - max_points (optional)
//   - order (optional, asc|desc)
//   - include_late (optional, default true)
func (ws *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	key := r.URL.Query().Get("sensor_key")
	if key == "" {
		key = ws.store.Selected()
	}
	cfg, ok := ws.store.Get(key)
	if !ok {
		httputil.NotFound(w, "unknown sensor")
		return
	}
	if !cfg.Ready() {
		httputil.BadRequest(w, "sensor is not provisioned")
		return
	}

	q := history.Query{
		CaptureSessionID: cfg.CaptureSessionID,
		SensorIDs:        []string{cfg.SensorID},
		IncludeLate:      true,
		Order:            r.URL.Query().Get("order"),
	}
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		parsed, err := strconv.Atoi(mp)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'max_points' parameter")
			return
		}
		q.MaxPoints = parsed
	}
	if il := r.URL.Query().Get("include_late"); il != "" {
		parsed, err := strconv.ParseBool(il)
		if err != nil {
			httputil.BadRequest(w, "invalid 'include_late' parameter")
			return
		}
		q.IncludeLate = parsed
	}

	token := ws.userToken
	if token == "" {
		token = cfg.SensorToken
	}
	pager := history.NewPager(ws.client, ws.apiBase, token)
	res, err := pager.Load(r.Context(), q)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	type cursorOut struct {
		Timestamp string `json:"timestamp"`
		ID        int64  `json:"id"`
	}
	cursors := make(map[string]cursorOut, len(res.Cursors))
	for id, c := range res.Cursors {
		cursors[id] = cursorOut{Timestamp: c.Timestamp.UTC().Format(time.RFC3339Nano), ID: c.ID}
	}
	httputil.WriteJSONOK(w, map[string]any{
		"points":    res.Points,
		"truncated": res.Truncated,
		"cursors":   cursors,
	})
}
