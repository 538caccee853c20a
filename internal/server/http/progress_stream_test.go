package httpserver

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Tests: streamProgress
// ---------------------------------------------------------------------------

func TestStreamProgress_TerminalRun(t *testing.T) {
	srv := newTestHTTPServer(successRunner())
	runID := startRun(t, srv, `{"query":"asthma"}`)
	waitForRun(t, srv, runID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/harvests/"+runID+"/progress", nil)
	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected Content-Type text/event-stream, got %q", ct)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected Cache-Control no-cache, got %q", cc)
	}

	events := parseSSEEvents(t, rr.Body.String())
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event for terminal run, got %d", len(events))
	}
	if events[0].eventType != "completed" {
		t.Errorf("expected event type completed, got %q", events[0].eventType)
	}

	var data sseEvent
	if err := json.Unmarshal([]byte(events[0].data), &data); err != nil {
		t.Fatalf("failed to parse event data: %v", err)
	}
	if data.RunID != runID {
		t.Errorf("expected run_id %s, got %q", runID, data.RunID)
	}
	if data.Fetched != 2 {
		t.Errorf("expected fetched 2, got %d", data.Fetched)
	}
	if len(data.FailedIDs) != 1 || data.FailedIDs[0] != "2" {
		t.Errorf("expected failed ids [2], got %v", data.FailedIDs)
	}
}

func TestStreamProgress_LiveRun(t *testing.T) {
	release := make(chan struct{})
	srv := newTestHTTPServer(blockingRunner(release))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	runID := startRun(t, srv, `{"query":"asthma"}`)

	resp, err := http.Get(ts.URL + "/api/v1/harvests/" + runID + "/progress")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	events := make(chan parsedSSEEvent, 16)
	go readSSEStream(resp.Body, events)

	first := nextEvent(t, events)
	if first.eventType != eventStreamStarted {
		t.Fatalf("expected stream_started first, got %q", first.eventType)
	}

	// The stream is subscribed once stream_started has been written.
	close(release)

	var types []string
	for {
		ev := nextEvent(t, events)
		types = append(types, ev.eventType)
		if isTerminalEventType(ev.eventType) {
			break
		}
	}

	if types[len(types)-1] != "completed" {
		t.Errorf("expected stream to end with completed, got %v", types)
	}
	if !containsString(types, eventProgress) {
		t.Errorf("expected a progress event before completion, got %v", types)
	}
}

func TestStreamProgress_NotFound(t *testing.T) {
	srv := newTestHTTPServer(successRunner())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/harvests/"+uuid.New().String()+"/progress", nil)
	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestStreamProgress_InvalidUUID(t *testing.T) {
	srv := newTestHTTPServer(successRunner())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/harvests/not-a-uuid/progress", nil)
	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Tests: event helpers
// ---------------------------------------------------------------------------

func TestTerminalEvent(t *testing.T) {
	v := runView{
		ID:        uuid.New(),
		Status:    "failed",
		Total:     0,
		Processed: 0,
		Error:     "discovery failed",
	}

	ev := terminalEvent(v)
	if ev.EventType != "failed" || ev.Status != "failed" {
		t.Errorf("expected failed event, got %q/%q", ev.EventType, ev.Status)
	}
	if ev.Message != "discovery failed" {
		t.Errorf("expected error message, got %q", ev.Message)
	}
	if ev.Percent != 0 {
		t.Errorf("expected 0 percent without a total, got %d", ev.Percent)
	}
}

func TestSnapshotEvent(t *testing.T) {
	v := runView{ID: uuid.New(), Status: "fetching", Total: 200, Processed: 50}

	ev := snapshotEvent(v, eventHeartbeat, "")
	if ev.EventType != eventHeartbeat {
		t.Errorf("expected heartbeat, got %q", ev.EventType)
	}
	if ev.Percent != 25 {
		t.Errorf("expected 25 percent, got %d", ev.Percent)
	}
	if ev.RunID != v.ID.String() {
		t.Errorf("expected run id %s, got %q", v.ID, ev.RunID)
	}
}

func TestIsTerminalEventType(t *testing.T) {
	tests := []struct {
		eventType string
		expected  bool
	}{
		{"completed", true},
		{"failed", true},
		{"aborted", true},
		{eventStreamStarted, false},
		{eventProgress, false},
		{eventMessage, false},
		{eventStatus, false},
		{eventHeartbeat, false},
		{eventTimeout, false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.eventType, func(t *testing.T) {
			if got := isTerminalEventType(tc.eventType); got != tc.expected {
				t.Errorf("isTerminalEventType(%q) = %v, want %v", tc.eventType, got, tc.expected)
			}
		})
	}
}

func TestSendSSEEvent(t *testing.T) {
	rr := httptest.NewRecorder()
	now := time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC)

	event := sseEvent{
		EventType: eventProgress,
		RunID:     "abc-123",
		Status:    "fetching",
		Processed: 30,
		Total:     42,
		Percent:   71,
		Timestamp: now,
	}

	sendSSEEvent(rr, rr, event)

	body := rr.Body.String()

	if !strings.HasPrefix(body, "event: progress\n") {
		t.Errorf("expected body to start with 'event: progress\\n', got:\n%s", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("expected body to end with '\\n\\n', got:\n%q", body)
	}

	events := parseSSEEvents(t, body)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	var parsed sseEvent
	if err := json.Unmarshal([]byte(events[0].data), &parsed); err != nil {
		t.Fatalf("failed to parse SSE data as JSON: %v", err)
	}
	if parsed.RunID != "abc-123" {
		t.Errorf("expected run_id abc-123, got %q", parsed.RunID)
	}
	if parsed.Processed != 30 || parsed.Total != 42 || parsed.Percent != 71 {
		t.Errorf("unexpected progress %d/%d (%d%%)", parsed.Processed, parsed.Total, parsed.Percent)
	}
	if !parsed.Timestamp.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, parsed.Timestamp)
	}
}

func TestSendSSEEvent_MinimalEvent(t *testing.T) {
	rr := httptest.NewRecorder()

	sendSSEEvent(rr, rr, sseEvent{EventType: eventHeartbeat, RunID: "r"})

	events := parseSSEEvents(t, rr.Body.String())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	for _, field := range []string{"processed", "total", "failed_ids", "message", "severity"} {
		if strings.Contains(events[0].data, `"`+field+`"`) {
			t.Errorf("expected %s to be omitted, got %s", field, events[0].data)
		}
	}
}

func TestSSEConstants(t *testing.T) {
	if sseHeartbeatInterval >= sseMaxDuration {
		t.Errorf("heartbeat interval %v must be shorter than max duration %v", sseHeartbeatInterval, sseMaxDuration)
	}
	if subscriberBuffer <= 0 {
		t.Errorf("subscriber buffer must be positive, got %d", subscriberBuffer)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type parsedSSEEvent struct {
	eventType string
	data      string
}

// parseSSEEvents parses a complete SSE body into events.
func parseSSEEvents(t *testing.T, body string) []parsedSSEEvent {
	t.Helper()
	events := make(chan parsedSSEEvent, 64)
	readSSEStream(strings.NewReader(body), events)

	var out []parsedSSEEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

// readSSEStream sends every event read from r to out and closes out at EOF.
func readSSEStream(r io.Reader, out chan<- parsedSSEEvent) {
	defer close(out)
	var current parsedSSEEvent

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			// Empty line = event boundary.
			if current.eventType != "" || current.data != "" {
				out <- current
				current = parsedSSEEvent{}
			}
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			current.eventType = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			current.data = strings.TrimPrefix(line, "data: ")
		}
	}

	if current.eventType != "" || current.data != "" {
		out <- current
	}
}

func nextEvent(t *testing.T, events <-chan parsedSSEEvent) parsedSSEEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("stream closed before the expected event")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for SSE event")
	}
	return parsedSSEEvent{}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
