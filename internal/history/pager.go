// Package history loads recorded telemetry from the portal's bounded
// query boundary, page by page.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/banshee-data/sensor.bench/internal/httputil"
)

const (
	// DefaultPageSize is the per-request point limit.
	DefaultPageSize = 2000
	// MaxPoints is the hard global cap on accumulated points, regardless
	// of the caller-requested ceiling.
	MaxPoints = 20000
	// maxSensorIDs mirrors the backend's per-query sensor limit.
	maxSensorIDs = 50
)

// Point is one recorded telemetry reading as returned by the query
// endpoint. Timestamp keeps the server's wire form; At parses it.
type Point struct {
	ID            int64          `json:"id"`
	SensorID      string         `json:"sensor_id"`
	Timestamp     string         `json:"timestamp"`
	RawValue      float64        `json:"raw_value"`
	PhysicalValue *float64       `json:"physical_value"`
	RunID         string         `json:"run_id,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
}

// At returns the point's timestamp, or the zero time when unparseable.
func (p Point) At() time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, p.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Cursor marks the latest point seen for one sensor. It seeds a live
// stream session that should resume strictly after ID.
type Cursor struct {
	Timestamp time.Time
	ID        int64
}

// Result is one completed load. Truncated is true only when the point
// cap stopped the loop while the server still reported more data, which
// callers surface differently from a fully retrieved dataset.
type Result struct {
	Points    []Point
	Truncated bool
	// Cursors holds the latest {timestamp, id} per sensor id, for the
	// history-to-live handoff.
	Cursors map[string]Cursor
}

// Query describes one load request.
type Query struct {
	CaptureSessionID string
	SensorIDs        []string
	// MaxPoints is the caller's ceiling; zero or anything above the hard
	// cap is clamped to MaxPoints.
	MaxPoints   int
	IncludeLate bool
	// Order is "asc" or "desc"; empty means ascending.
	Order string
}

// Pager retrieves recorded telemetry in bounded pages, resuming each
// page from the server-reported next cursor.
type Pager struct {
	client   httputil.HTTPClient
	baseURL  string
	token    string
	pageSize int
}

// NewPager creates a pager against baseURL authorized by token.
func NewPager(client httputil.HTTPClient, baseURL, token string) *Pager {
	return &Pager{
		client:   client,
		baseURL:  baseURL,
		token:    token,
		pageSize: DefaultPageSize,
	}
}

type queryResponse struct {
	Points      []Point `json:"points"`
	NextSinceID *int64  `json:"next_since_id"`
}

// Load retrieves points for q until the server reports no further
// cursor, a page comes back empty, or the point cap is reached.
func (p *Pager) Load(ctx context.Context, q Query) (*Result, error) {
	if len(q.SensorIDs) == 0 {
		return nil, fmt.Errorf("history query needs at least one sensor id")
	}
	if len(q.SensorIDs) > maxSensorIDs {
		return nil, fmt.Errorf("history query limited to %d sensors, got %d", maxSensorIDs, len(q.SensorIDs))
	}
	budget := q.MaxPoints
	if budget <= 0 || budget > MaxPoints {
		budget = MaxPoints
	}

	res := &Result{Cursors: make(map[string]Cursor)}
	var since int64
	for {
		limit := p.pageSize
		if remaining := budget - len(res.Points); remaining < limit {
			limit = remaining
		}

		page, err := p.fetchPage(ctx, q, since, limit)
		if err != nil {
			return nil, err
		}
		for _, pt := range page.Points {
			res.Points = append(res.Points, pt)
			if cur, ok := res.Cursors[pt.SensorID]; !ok || pt.ID > cur.ID {
				res.Cursors[pt.SensorID] = Cursor{Timestamp: pt.At(), ID: pt.ID}
			}
		}

		if len(page.Points) == 0 || page.NextSinceID == nil {
			return res, nil
		}
		if len(res.Points) >= budget {
			res.Truncated = true
			return res, nil
		}
		if *page.NextSinceID <= since {
			// A non-advancing cursor would loop forever.
			return nil, fmt.Errorf("history cursor did not advance past %d", since)
		}
		since = *page.NextSinceID
	}
}

func (p *Pager) fetchPage(ctx context.Context, q Query, since int64, limit int) (*queryResponse, error) {
	v := url.Values{}
	if q.CaptureSessionID != "" {
		v.Set("capture_session_id", q.CaptureSessionID)
	}
	for _, id := range q.SensorIDs {
		v.Add("sensor_id", id)
	}
	if since > 0 {
		v.Set("since_id", strconv.FormatInt(since, 10))
	}
	v.Set("limit", strconv.Itoa(limit))
	v.Set("include_late", strconv.FormatBool(q.IncludeLate))
	if q.Order != "" {
		v.Set("order", q.Order)
	}

	u := p.baseURL + "/api/v1/telemetry/query?" + v.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build history request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history query failed with HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read history response: %w", err)
	}
	var page queryResponse
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}
	return &page, nil
}
