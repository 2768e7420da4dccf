package monitor

import (
	"net/http"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sensor.bench/internal/httputil"
)

// previewStats summarizes a preview batch's raw values.
type previewStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func (ws *WebServer) handlePreviewStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	readings, ok := ws.previewBatch(w, r)
	if !ok {
		return
	}
	if len(readings) == 0 {
		httputil.WriteJSONOK(w, previewStats{})
		return
	}

	values := make([]float64, 0, len(readings))
	min, max := readings[0].RawValue, readings[0].RawValue
	for _, rd := range readings {
		values = append(values, rd.RawValue)
		if rd.RawValue < min {
			min = rd.RawValue
		}
		if rd.RawValue > max {
			max = rd.RawValue
		}
	}
	httputil.WriteJSONOK(w, previewStats{
		Count:  len(values),
		Mean:   stat.Mean(values, nil),
		StdDev: stat.StdDev(values, nil),
		Min:    min,
		Max:    max,
	})
}
