// Package scheduler drives the fixed-interval generation tick that turns
// sensor configuration into posted reading batches.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/sensor.bench/internal/ingest"
	"github.com/banshee-data/sensor.bench/internal/simulate"
	"github.com/banshee-data/sensor.bench/internal/state"
)

// Sender posts one reading batch (ingest.Transmitter satisfies this).
type Sender interface {
	Send(ctx context.Context, cfg state.SensorConfig, readings []simulate.Reading, s simulate.Settings) ingest.Outcome
}

// Scheduler fires one tick per interval. Each tick snapshots the ready
// sensors, builds their batches serially (runtime counters have a single
// writer), then sends all batches concurrently and joins them. Tick
// scheduling is independent of send completion, so a slow or failing
// sensor delays neither its peers nor the next tick.
type Scheduler struct {
	store    *state.Store
	builder  *simulate.Builder
	sender   Sender
	interval time.Duration

	mu    sync.Mutex
	ticks int64

	inFlight sync.WaitGroup
}

// New creates a scheduler ticking every interval (minimum wall cadence
// is enforced by the caller's config defaults, not here).
func New(store *state.Store, builder *simulate.Builder, sender Sender, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		store:    store,
		builder:  builder,
		sender:   sender,
		interval: interval,
	}
}

// Ticks returns the number of ticks fired since start.
func (s *Scheduler) Ticks() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Run ticks until the context is cancelled, then drains outstanding
// sends before returning.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Printf("scheduler started (tick interval %s)", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.inFlight.Wait()
			log.Printf("scheduler stopped after %d ticks", s.Ticks())
			return
		case <-ticker.C:
			n := s.nextTick()
			jobs := s.prepare(n)
			if len(jobs) == 0 {
				continue
			}
			s.inFlight.Add(1)
			go func() {
				defer s.inFlight.Done()
				s.dispatch(ctx, jobs)
			}()
		}
	}
}

// Tick builds and sends one tick's batches synchronously. Run uses the
// same phases with the send half detached; tests and manual triggers
// call this directly.
func (s *Scheduler) Tick(ctx context.Context, n int64) {
	s.dispatch(ctx, s.prepare(n))
}

// SendBatch builds and posts one manual batch for a single sensor,
// outside the tick cadence. The batch anchors to now rather than
// continuing the sensor's timestamp sequence.
func (s *Scheduler) SendBatch(ctx context.Context, sensorKey string, count int) (ingest.Outcome, error) {
	cfg, ok := s.store.Get(sensorKey)
	if !ok {
		return ingest.Outcome{}, fmt.Errorf("unknown sensor key %q", sensorKey)
	}
	if !cfg.Ready() {
		return ingest.Outcome{}, fmt.Errorf("sensor %q is not provisioned for transmission", sensorKey)
	}
	rt := s.store.Runtime(sensorKey)
	readings := s.builder.Build(rt, cfg.Key, count, cfg.Settings.RateHz, cfg.Settings, false)
	return s.sender.Send(ctx, cfg, readings, cfg.Settings), nil
}

func (s *Scheduler) nextTick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ticks
	s.ticks++
	return n
}

// job is one built batch awaiting transmission.
type job struct {
	cfg      state.SensorConfig
	settings simulate.Settings
	readings []simulate.Reading
}

// prepare snapshots configuration and builds this tick's batches. Paused
// sensors (dropout windows) and unprovisioned sensors are skipped.
func (s *Scheduler) prepare(n int64) []job {
	var jobs []job
	for _, cfg := range s.store.ReadySensors() {
		if simulate.IsPaused(cfg.Settings, n) {
			continue
		}
		rate := simulate.EffectiveRate(cfg.Settings, n)
		count := int(math.Round(rate))
		if count <= 0 {
			continue
		}
		rt := s.store.Runtime(cfg.Key)
		if rt == nil {
			continue
		}
		readings := s.builder.Build(rt, cfg.Key, count, rate, cfg.Settings, true)
		jobs = append(jobs, job{cfg: cfg, settings: cfg.Settings, readings: readings})
	}
	return jobs
}

// dispatch sends every job concurrently and waits for all of them.
func (s *Scheduler) dispatch(ctx context.Context, jobs []job) {
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			out := s.sender.Send(ctx, j.cfg, j.readings, j.settings)
			switch {
			case out.Err != nil:
				log.Printf("send failed for sensor %s: %v", j.cfg.Label, out.Err)
			case out.Rejected():
				log.Printf("send rejected for sensor %s: HTTP %d", j.cfg.Label, out.Status)
			}
		}(j)
	}
	wg.Wait()
}
