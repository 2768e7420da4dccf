// Package archive records streamed telemetry into a local sqlite file so
// a workbench session leaves an inspectable trace behind.
package archive

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/sensor.bench/internal/sse"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Archive is the local telemetry event store. Writes are idempotent per
// (sensor_key, record_id), so a stream resumed from an old cursor never
// duplicates rows.
type Archive struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the archive at path and applies any
// pending schema migrations.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	a := &Archive{db: db, path: path}
	if err := a.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// DB exposes the underlying handle for the debug SQL surface.
func (a *Archive) DB() *sql.DB { return a.db }

// Path returns the archive file path.
func (a *Archive) Path() string { return a.path }

// Close closes the underlying database.
func (a *Archive) Close() error { return a.db.Close() }

func (a *Archive) migrateUp() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(a.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// Note: m is not closed here because that would close the underlying
	// DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// StoredEvent is one archived telemetry record.
type StoredEvent struct {
	RecordID         int64     `json:"record_id"`
	SensorKey        string    `json:"sensor_key"`
	SensorID         string    `json:"sensor_id"`
	Timestamp        string    `json:"timestamp"`
	RawValue         float64   `json:"raw_value"`
	PhysicalValue    *float64  `json:"physical_value"`
	RunID            string    `json:"run_id,omitempty"`
	CaptureSessionID string    `json:"capture_session_id,omitempty"`
	ReceivedAt       time.Time `json:"received_at"`
}

// RecordEvent stores one streamed record. Satisfies the stream session's
// recorder contract. Records replayed after a cursor reset are ignored.
func (a *Archive) RecordEvent(sensorKey string, rec *sse.TelemetryRecord) error {
	if rec == nil {
		return nil
	}
	var meta []byte
	if len(rec.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(rec.Meta); err != nil {
			return fmt.Errorf("failed to encode event meta: %w", err)
		}
	}
	_, err := a.db.Exec(`
		INSERT OR IGNORE INTO telemetry_events
			(record_id, sensor_key, sensor_id, timestamp, raw_value, physical_value, run_id, capture_session_id, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, sensorKey, rec.SensorID, rec.Timestamp, rec.RawValue,
		rec.PhysicalValue, rec.RunID, rec.CaptureSessionID, meta,
	)
	if err != nil {
		return fmt.Errorf("failed to record telemetry event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest events for one sensor, newest first.
func (a *Archive) RecentEvents(sensorKey string, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.Query(`
		SELECT record_id, sensor_key, sensor_id, timestamp, raw_value, physical_value, run_id, capture_session_id, received_at
		FROM telemetry_events
		WHERE sensor_key = ?
		ORDER BY record_id DESC
		LIMIT ?`, sensorKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.RecordID, &ev.SensorKey, &ev.SensorID, &ev.Timestamp,
			&ev.RawValue, &ev.PhysicalValue, &ev.RunID, &ev.CaptureSessionID, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SessionSummary aggregates archived events for one capture session.
type SessionSummary struct {
	CaptureSessionID string `json:"capture_session_id"`
	Events           int64  `json:"events"`
	Sensors          int64  `json:"sensors"`
	FirstTimestamp   string `json:"first_timestamp,omitempty"`
	LastTimestamp    string `json:"last_timestamp,omitempty"`
}

// SummarizeSessions returns per-capture-session aggregates, most recent
// session first.
func (a *Archive) SummarizeSessions() ([]SessionSummary, error) {
	rows, err := a.db.Query(`
		SELECT capture_session_id, COUNT(*), COUNT(DISTINCT sensor_key), MIN(timestamp), MAX(timestamp)
		FROM telemetry_events
		GROUP BY capture_session_id
		ORDER BY MAX(received_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var first, last sql.NullString
		if err := rows.Scan(&s.CaptureSessionID, &s.Events, &s.Sensors, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		s.FirstTimestamp = first.String
		s.LastTimestamp = last.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// EventCount returns the total number of archived events.
func (a *Archive) EventCount() (int64, error) {
	var n int64
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM telemetry_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
