package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/fleek/internal/character"
	"github.com/MikeSquared-Agency/fleek/internal/session"
)

type updateEvent struct {
	TurnID    uuid.UUID          `json:"turn_id"`
	Message   string             `json:"message"`
	Character character.Document `json:"character"`
	Strategy  string             `json:"strategy"`
}

type doneEvent struct {
	TurnID    uuid.UUID          `json:"turn_id"`
	Status    session.Status     `json:"status"`
	Message   string             `json:"message"`
	Character character.Document `json:"character"`
}

type errorEvent struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// eventStream writes server-sent events. Headers are sent with the first
// event, so a request that fails before any chunk arrives can still get a
// plain JSON error.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &eventStream{w: w, flusher: flusher}, true
}

func (e *eventStream) send(event string, v any) {
	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}
	data, _ := json.Marshal(v)
	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data)
	e.flusher.Flush()
}

func (e *eventStream) update(u session.Update) {
	e.send("update", updateEvent{
		TurnID:    u.TurnID,
		Message:   u.Message,
		Character: u.Document,
		Strategy:  string(u.Strategy),
	})
}
