package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/stancld/rossum-agents-sub001/core"
)

// Side event names written next to the step events.
const (
	EventSubAgentProgress = "sub_agent_progress"
	EventSubAgentText     = "sub_agent_text"
	EventTaskSnapshot     = "task_snapshot"
	EventFileCreated      = "file_created"
	EventTokenUsage       = "token_usage"
	EventDone             = "done"
)

// ErrStreamingUnsupported is returned by NewWriter when the response writer
// cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Writer sends Server-Sent Events to an http.ResponseWriter. Calls may come
// from several goroutines (side events are reported from tool calls); frames
// never interleave.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the SSE headers and flushes them.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// SendEvent writes a named SSE event with JSON data.
func (s *Writer) SendEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal SSE data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	s.flusher.Flush()

	return nil
}

// SendStep writes a step as an event named after its kind.
func (s *Writer) SendStep(step core.Step) error {
	return s.SendEvent(step.Kind(), step)
}

// SendKeepalive writes a comment frame that clients ignore.
func (s *Writer) SendKeepalive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()

	return nil
}

// Send writes one coordinated event.
func (s *Writer) Send(ev Event) error {
	if ev.Keepalive {
		return s.SendKeepalive()
	}

	return s.SendStep(ev.Step)
}
