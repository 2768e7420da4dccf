package sse

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const sampleStream = ": heartbeat\n\n" +
	`event: telemetry` + "\n" +
	`data: {"id":12,"sensor_id":"s1","timestamp":"2026-08-30T12:00:00Z","raw_value":23.5,"physical_value":23.5}` + "\n\n" +
	`event: telemetry` + "\n" +
	`data: {"id":13,"sensor_id":"s1","timestamp":"2026-08-30T12:00:01Z","raw_value":24.1,"physical_value":24.1}` + "\n\n" +
	"event: error\ndata: capture session closed\n\n"

func feedAll(p *Parser, chunks [][]byte) []Event {
	var events []Event
	for _, c := range chunks {
		events = append(events, p.Feed(c)...)
	}
	return events
}

func TestParserEmitsExpectedSequence(t *testing.T) {
	var p Parser
	events := p.Feed([]byte(sampleStream))

	require.Len(t, events, 4)
	require.Equal(t, Heartbeat, events[0].Type)

	require.Equal(t, Telemetry, events[1].Type)
	require.NotNil(t, events[1].Record)
	require.Equal(t, int64(12), events[1].Record.ID)
	require.Equal(t, "s1", events[1].Record.SensorID)
	require.Equal(t, 23.5, events[1].Record.RawValue)

	require.Equal(t, Telemetry, events[2].Type)
	require.NotNil(t, events[2].Record)
	require.Equal(t, int64(13), events[2].Record.ID)

	require.Equal(t, Error, events[3].Type)
	require.Equal(t, "capture session closed", events[3].Data)
}

func TestParserBoundaryInsensitive(t *testing.T) {
	// The same logical byte sequence split at every possible boundary
	// must produce an identical ordered event list.
	var ref Parser
	want := ref.Feed([]byte(sampleStream))

	raw := []byte(sampleStream)
	for cut := 1; cut < len(raw); cut++ {
		var p Parser
		got := feedAll(&p, [][]byte{raw[:cut], raw[cut:]})
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("split at %d diverged (-want +got):\n%s", cut, diff)
		}
	}

	// Worst case: one byte at a time.
	var p Parser
	var chunks [][]byte
	for i := range raw {
		chunks = append(chunks, raw[i:i+1])
	}
	if diff := cmp.Diff(want, feedAll(&p, chunks)); diff != "" {
		t.Fatalf("byte-at-a-time diverged (-want +got):\n%s", diff)
	}
}

func TestParserCRLFNormalization(t *testing.T) {
	crlf := "event: error\r\ndata: boom\r\n\r\n"
	var ref Parser
	want := ref.Feed([]byte(crlf))
	require.Len(t, want, 1)
	require.Equal(t, Error, want[0].Type)
	require.Equal(t, "boom", want[0].Data)

	// Split in the middle of a CRLF pair.
	for cut := 1; cut < len(crlf); cut++ {
		var p Parser
		got := feedAll(&p, [][]byte{[]byte(crlf[:cut]), []byte(crlf[cut:])})
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("CRLF split at %d diverged (-want +got):\n%s", cut, diff)
		}
	}
}

func TestParserMultiLineData(t *testing.T) {
	var p Parser
	events := p.Feed([]byte("event: error\ndata: line one\ndata: line two\n\n"))
	require.Len(t, events, 1)
	require.Equal(t, "line one\nline two", events[0].Data)
}

func TestParserDecodeFailureDegradesToRaw(t *testing.T) {
	var p Parser
	events := p.Feed([]byte("event: telemetry\ndata: not-json{{\n\n"))
	require.Len(t, events, 1)
	require.Equal(t, Telemetry, events[0].Type)
	require.Nil(t, events[0].Record)
	require.Equal(t, "not-json{{", events[0].Data)
}

func TestParserDropsUnknownFrames(t *testing.T) {
	var p Parser
	events := p.Feed([]byte("event: mystery\ndata: x\n\n\n\nrandom noise\n\n"))
	require.Empty(t, events)
}

func TestParserHoldsIncompleteFrames(t *testing.T) {
	var p Parser
	require.Empty(t, p.Feed([]byte("event: telemetry\ndata: {\"id\":1}")))
	// Frame completes only once the blank line arrives.
	events := p.Feed([]byte("\n\n"))
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Record)
	require.Equal(t, int64(1), events[0].Record.ID)
}

func TestParserReset(t *testing.T) {
	var p Parser
	p.Feed([]byte("event: telemetry\ndata: {\"id\":1}"))
	p.Reset()
	// The partial frame must not leak into the new connection's stream.
	events := p.Feed([]byte(": hi\n\n"))
	require.Len(t, events, 1)
	require.Equal(t, Heartbeat, events[0].Type)
}

func TestParserManyFramesOneChunk(t *testing.T) {
	var b []byte
	for i := 0; i < 25; i++ {
		b = append(b, []byte(fmt.Sprintf("event: telemetry\ndata: {\"id\":%d}\n\n", i))...)
	}
	var p Parser
	events := p.Feed(b)
	require.Len(t, events, 25)
	for i, ev := range events {
		require.NotNil(t, ev.Record)
		require.Equal(t, int64(i), ev.Record.ID)
	}
}
