// Command sensorbench runs the synthetic sensor workbench: a scheduler
// that generates and posts telemetry batches, live stream sessions that
// archive what the portal pushes back, and a local web surface for
// status, previews, and debugging.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/sensor.bench/internal/archive"
	"github.com/banshee-data/sensor.bench/internal/config"
	"github.com/banshee-data/sensor.bench/internal/httputil"
	"github.com/banshee-data/sensor.bench/internal/ingest"
	"github.com/banshee-data/sensor.bench/internal/monitor"
	"github.com/banshee-data/sensor.bench/internal/scheduler"
	"github.com/banshee-data/sensor.bench/internal/simulate"
	"github.com/banshee-data/sensor.bench/internal/state"
	"github.com/banshee-data/sensor.bench/internal/stream"
	"github.com/banshee-data/sensor.bench/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address for the local web surface")
	apiBase     = flag.String("api", "http://localhost:8799", "Portal API base URL")
	authBase    = flag.String("auth", "", "Auth base URL for session refresh (defaults to -api)")
	configPath  = flag.String("config", "", "Optional engine tuning config (JSON)")
	statePath   = flag.String("state", "", "Sensor state file (overrides config)")
	archivePath = flag.String("archive", "", "Telemetry archive database (overrides config)")
	openStreams = flag.Bool("stream", true, "Open a live stream session per provisioned sensor")
	userToken   = flag.String("user-token", "", "User bearer token for history queries (falls back to sensor tokens)")
)

// sessionRegistry indexes live stream sessions by sensor key for the
// monitor's status endpoint.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*stream.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*stream.Session)}
}

func (r *sessionRegistry) Session(key string) *stream.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[key]
}

func (r *sessionRegistry) add(key string, s *stream.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[key] = s
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	engineCfg := config.EmptyEngineConfig()
	if *configPath != "" {
		var err error
		engineCfg, err = config.LoadEngineConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	stateFile := engineCfg.GetStatePath()
	if *statePath != "" {
		stateFile = *statePath
	}
	archiveFile := engineCfg.GetArchivePath()
	if *archivePath != "" {
		archiveFile = *archivePath
	}
	auth := *authBase
	if auth == "" {
		auth = *apiBase
	}

	store := state.Open(stateFile)
	if err := store.Save(); err != nil {
		log.Fatalf("state file %s is not writable: %v", stateFile, err)
	}

	arch, err := archive.Open(archiveFile)
	if err != nil {
		log.Fatalf("failed to open archive: %v", err)
	}
	defer arch.Close()

	client := httputil.NewStandardClient(&http.Client{Timeout: engineCfg.GetHTTPTimeout()})
	// Stream reads outlive any single request timeout.
	streamClient := httputil.NewStandardClient(&http.Client{})

	tx := ingest.NewTransmitter(client, *apiBase)
	builder := simulate.NewBuilder()
	sched := scheduler.New(store, builder, tx, engineCfg.GetTickInterval())
	registry := newSessionRegistry()

	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:     *listen,
		Store:       store,
		Transmitter: tx,
		Scheduler:   sched,
		Builder:     builder,
		Archive:     arch,
		Sessions:    registry,
		APIBase:     *apiBase,
		Client:      client,
		UserToken:   *userToken,
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("web server error: %v", err)
		}
	}()

	if *openStreams {
		for _, cfg := range store.ReadySensors() {
			session := stream.New(stream.Options{
				Client:      streamClient,
				BaseURL:     *apiBase,
				AuthBaseURL: auth,
				SensorKey:   cfg.Key,
				SensorID:    cfg.SensorID,
				Token:       cfg.SensorToken,
				SinceID:     cfg.StreamCursor,
				BufferCap:   engineCfg.GetLiveBufferCap(),
				Cursors:     store,
				Recorder:    arch,
			})
			registry.add(cfg.Key, session)

			wg.Add(1)
			go func(label string, s *stream.Session) {
				defer wg.Done()
				// A session never re-opens itself; one run per process.
				if err := s.Run(ctx); err != nil && ctx.Err() == nil {
					log.Printf("stream session for %s ended: %v", label, err)
				}
			}(cfg.Label, session)
		}
	}

	log.Printf("sensorbench %s running: %d sensors (%d ready), api %s",
		version.String(), len(store.Sensors()), len(store.ReadySensors()), *apiBase)

	wg.Wait()
	log.Println("sensorbench stopped")
}
