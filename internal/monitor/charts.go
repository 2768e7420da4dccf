package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/sensor.bench/internal/httputil"
)

// handlePreviewChart renders a quick line chart (HTML) of a preview batch
// using go-echarts. This is a debugging-only endpoint to eyeball a
// sensor's configured signal without the portal UI.
// Query params:
//   - sensor_key (optional; defaults to the selected sensor)
//   - count (optional; default 50)
func (ws *WebServer) handlePreviewChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	readings, ok := ws.previewBatch(w, r)
	if !ok {
		return
	}
	if len(readings) == 0 {
		httputil.NotFound(w, "no readings to chart")
		return
	}

	labels := make([]string, 0, len(readings))
	raw := make([]opts.LineData, 0, len(readings))
	phys := make([]opts.LineData, 0, len(readings))
	for _, rd := range readings {
		labels = append(labels, rd.Timestamp.Format(time.TimeOnly))
		raw = append(raw, opts.LineData{Value: rd.RawValue})
		phys = append(phys, opts.LineData{Value: rd.PhysicalValue})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sensor Preview", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Synthetic Reading Preview", Subtitle: fmt.Sprintf("points=%d", len(readings))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "value"}),
	)
	line.SetXAxis(labels)
	line.AddSeries("raw", raw)
	line.AddSeries("physical", phys)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
