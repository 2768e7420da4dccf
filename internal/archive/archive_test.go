package archive

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/sensor.bench/internal/sse"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func record(id int64, session string) *sse.TelemetryRecord {
	phys := 23.5
	return &sse.TelemetryRecord{
		ID:               id,
		SensorID:         "s1",
		Timestamp:        "2026-08-30T12:00:00Z",
		RawValue:         23.5,
		PhysicalValue:    &phys,
		CaptureSessionID: session,
		Meta:             map[string]any{"seq": id},
	}
}

func TestRecordAndReadBack(t *testing.T) {
	a := openTestArchive(t)

	for i := int64(1); i <= 5; i++ {
		if err := a.RecordEvent("k1", record(i, "cap-1")); err != nil {
			t.Fatalf("failed to record event %d: %v", i, err)
		}
	}

	events, err := a.RecentEvents("k1", 3)
	if err != nil {
		t.Fatalf("failed to read events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	// Newest first.
	for i, want := range []int64{5, 4, 3} {
		if events[i].RecordID != want {
			t.Errorf("event %d record_id = %d, want %d", i, events[i].RecordID, want)
		}
	}
	if events[0].PhysicalValue == nil || *events[0].PhysicalValue != 23.5 {
		t.Errorf("physical_value = %v", events[0].PhysicalValue)
	}
}

func TestDuplicateRecordsIgnored(t *testing.T) {
	a := openTestArchive(t)

	// A resumed stream can replay records the archive already holds.
	for i := 0; i < 3; i++ {
		if err := a.RecordEvent("k1", record(7, "cap-1")); err != nil {
			t.Fatalf("replayed record failed: %v", err)
		}
	}
	n, err := a.EventCount()
	if err != nil {
		t.Fatalf("failed to count events: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d after replays, want 1", n)
	}
}

func TestSameRecordIDAcrossSensors(t *testing.T) {
	a := openTestArchive(t)

	if err := a.RecordEvent("k1", record(1, "cap-1")); err != nil {
		t.Fatal(err)
	}
	if err := a.RecordEvent("k2", record(1, "cap-1")); err != nil {
		t.Fatal(err)
	}
	n, _ := a.EventCount()
	if n != 2 {
		t.Errorf("count = %d, want one row per sensor", n)
	}
}

func TestNilRecordIsNoOp(t *testing.T) {
	a := openTestArchive(t)
	if err := a.RecordEvent("k1", nil); err != nil {
		t.Fatalf("nil record should be ignored: %v", err)
	}
	n, _ := a.EventCount()
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestSummarizeSessions(t *testing.T) {
	a := openTestArchive(t)

	for i := int64(1); i <= 4; i++ {
		if err := a.RecordEvent("k1", record(i, "cap-1")); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.RecordEvent("k2", record(10, "cap-2")); err != nil {
		t.Fatal(err)
	}

	sums, err := a.SummarizeSessions()
	if err != nil {
		t.Fatalf("failed to summarize: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sums))
	}
	byID := map[string]SessionSummary{}
	for _, s := range sums {
		byID[s.CaptureSessionID] = s
	}
	if s := byID["cap-1"]; s.Events != 4 || s.Sensors != 1 {
		t.Errorf("cap-1 summary = %+v", s)
	}
	if s := byID["cap-2"]; s.Events != 1 {
		t.Errorf("cap-2 summary = %+v", s)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	a, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	if err := a.RecordEvent("k1", record(1, "cap-1")); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	// Reopen runs migrations again; must be a no-op with data intact.
	b, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen archive: %v", err)
	}
	defer b.Close()
	n, err := b.EventCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count after reopen = %d, want 1", n)
	}
}
