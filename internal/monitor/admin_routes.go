package monitor

import (
	"fmt"
	"log"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/sensor.bench/internal/httputil"
)

// attachAdminRoutes mounts the debug surface: pprof/varz via tsweb and a
// tailSQL console over the telemetry archive.
func (ws *WebServer) attachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	if ws.archive == nil {
		return
	}

	// create a tailSQL instance and point it to the archive
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB(fmt.Sprintf("sqlite://%s", ws.archive.Path()), ws.archive.DB(), &tailsql.DBOptions{
		Label: "Telemetry Archive",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("archive-count", "Total archived telemetry events", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := ws.archive.EventCount()
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]int64{"events": n})
	}))
}
