package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	// sseHeartbeatInterval is how often a snapshot is sent while the run is quiet.
	sseHeartbeatInterval = 15 * time.Second
	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = 4 * time.Hour
)

// SSE event types. Terminal events use the final run status as their type.
const (
	eventStreamStarted = "stream_started"
	eventProgress      = "progress"
	eventMessage       = "message"
	eventStatus        = "status"
	eventHeartbeat     = "heartbeat"
	eventTimeout       = "timeout"
)

// sseEvent represents an event sent via SSE.
type sseEvent struct {
	EventType string    `json:"event_type"`
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Processed int       `json:"processed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Percent   int       `json:"percent,omitempty"`
	Fetched   int       `json:"fetched,omitempty"`
	FailedIDs []string  `json:"failed_ids,omitempty"`
	Message   string    `json:"message,omitempty"`
	Severity  string    `json:"severity,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// streamProgress handles GET /harvests/{runID}/progress (SSE).
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	run, err := s.store.get(runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	view, events, unsubscribe := run.subscribe()
	defer unsubscribe()

	// If already terminal, send one event and close.
	if view.Status.IsTerminal() {
		sendSSEEvent(w, flusher, terminalEvent(view))
		return
	}

	sendSSEEvent(w, flusher, snapshotEvent(view, eventStreamStarted, "progress stream started"))

	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-deadlineTimer.C:
			sendSSEEvent(w, flusher, sseEvent{
				EventType: eventTimeout,
				RunID:     runID.String(),
				Message:   "stream max duration exceeded",
				Timestamp: time.Now(),
			})
			return

		case event := <-events:
			sendSSEEvent(w, flusher, event)
			if isTerminalEventType(event.EventType) {
				return
			}

		case <-run.done:
			// Flush what was queued before the run finished, then make sure
			// the client sees exactly one terminal event.
			for {
				select {
				case event := <-events:
					sendSSEEvent(w, flusher, event)
					if isTerminalEventType(event.EventType) {
						return
					}
				default:
					sendSSEEvent(w, flusher, terminalEvent(run.snapshot()))
					return
				}
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, snapshotEvent(run.snapshot(), eventHeartbeat, ""))
		}
	}
}

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}

// snapshotEvent builds a non-terminal event from a run snapshot.
func snapshotEvent(v runView, eventType, message string) sseEvent {
	return sseEvent{
		EventType: eventType,
		RunID:     v.ID.String(),
		Status:    string(v.Status),
		Processed: v.Processed,
		Total:     v.Total,
		Percent:   v.percent(),
		Message:   message,
		Timestamp: time.Now(),
	}
}

// terminalEvent builds the final event of a stream from a run snapshot.
func terminalEvent(v runView) sseEvent {
	ev := snapshotEvent(v, string(v.Status), "run finished with status: "+string(v.Status))
	ev.Fetched = v.Fetched
	ev.FailedIDs = v.FailedIDs
	if v.Error != "" {
		ev.Message = v.Error
	}
	return ev
}

// isTerminalEventType returns true if the event type represents a terminal state.
func isTerminalEventType(eventType string) bool {
	return eventType == "completed" || eventType == "failed" || eventType == "aborted"
}
