package monitor

import (
	"fmt"
	"log"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/sensor.bench/internal/httputil"
	"github.com/banshee-data/sensor.bench/internal/simulate"
)

// handleWaveformPNG renders the sensor's pure waveform (no noise, no
// scenario skew) over two periods as a PNG. Useful for checking period,
// amplitude, and duty-cycle settings at a glance.
func (ws *WebServer) handleWaveformPNG(w http.ResponseWriter, r *http.Request) {
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
	s := cfg.Settings

	const samples = 500
	span := 2 * s.PeriodSeconds
	if span <= 0 {
		span = 10
	}
	pts := make(plotter.XYs, samples)
	for i := range pts {
		t := span * float64(i) / float64(samples-1)
		pts[i].X = t
		pts[i].Y = simulate.WaveValue(s.Waveform, t, s.Amplitude, s.PeriodSeconds, s.DutyCycle)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s waveform (%s)", cfg.Label, s.Waveform)
	p.X.Label.Text = "seconds"
	p.Y.Label.Text = "value"

	line, err := plotter.NewLine(pts)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build plot: %v", err))
		return
	}
	line.Width = vg.Points(1)
	p.Add(line)

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		log.Printf("failed to write waveform png: %v", err)
	}
}
