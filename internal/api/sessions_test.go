package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type sseEvent struct {
	name string
	data string
}

func parseEvents(body string) []sseEvent {
	var out []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var e sseEvent
		for _, line := range strings.Split(block, "\n") {
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				e.name = v
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				e.data = v
			}
		}
		if e.name != "" {
			out = append(out, e)
		}
	}
	return out
}

func createSession(t *testing.T, env *testEnv) string {
	t.Helper()
	w := env.do("POST", "/api/v1/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: expected 201, got %d", w.Code)
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body.ID
}

func TestPostMessage_StreamsEvents(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{
		`{"message": "Meet Bo`,
		`b", "characterFileJson": {"name": "Bob", "topics": ["jazz"]}}`,
	}}
	env := newTestEnv(t, Config{}, gen, nil)
	id := createSession(t, env)

	w := env.do("POST", "/api/v1/sessions/"+id+"/messages", `{"message": "a jazz bot"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected event stream, got %q", ct)
	}

	events := parseEvents(w.Body.String())
	if len(events) != 3 {
		t.Fatalf("expected 2 updates and done, got %+v", events)
	}

	var first updateEvent
	if err := json.Unmarshal([]byte(events[0].data), &first); err != nil {
		t.Fatal(err)
	}
	if events[0].name != "update" || first.Message != "Meet Bo" {
		t.Errorf("unexpected first update %s %+v", events[0].name, first)
	}

	var done doneEvent
	if err := json.Unmarshal([]byte(events[2].data), &done); err != nil {
		t.Fatal(err)
	}
	if events[2].name != "done" || done.Status != "complete" {
		t.Errorf("unexpected done event %s %+v", events[2].name, done)
	}
	if done.Message != "Meet Bob" || done.Character.Name != "Bob" {
		t.Errorf("unexpected final state %+v", done)
	}

	w = env.do("GET", "/api/v1/sessions/"+id+"/character", "")
	var doc map[string]any
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if doc["name"] != "Bob" {
		t.Errorf("expected character name Bob, got %v", doc["name"])
	}
	if _, ok := doc["bio"].([]any); !ok {
		t.Errorf("expected bio to encode as a list, got %v", doc["bio"])
	}
}

func TestPostMessage_BadRequests(t *testing.T) {
	env := newTestEnv(t, Config{}, &fakeGenerator{}, nil)
	id := createSession(t, env)

	tests := []struct {
		name    string
		path    string
		body    string
		want    int
		wantErr string
	}{
		{"invalid json", "/api/v1/sessions/" + id + "/messages", `{`, http.StatusBadRequest, "invalid JSON"},
		{"missing message", "/api/v1/sessions/" + id + "/messages", `{}`, http.StatusBadRequest, "message is required"},
		{"too long", "/api/v1/sessions/" + id + "/messages", `{"message": "` + strings.Repeat("a", 8001) + `"}`, http.StatusBadRequest, "at most 8000"},
		{"blank message", "/api/v1/sessions/" + id + "/messages", `{"message": "   "}`, http.StatusBadRequest, "empty"},
		{"bad session id", "/api/v1/sessions/not-a-uuid/messages", `{"message": "hi"}`, http.StatusBadRequest, "invalid session id"},
		{"unknown session", "/api/v1/sessions/" + uuid.NewString() + "/messages", `{"message": "hi"}`, http.StatusNotFound, "session not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %s", tt.wantErr, w.Body.String())
			}
		})
	}
}

func TestPostMessage_TransportFailure(t *testing.T) {
	gen := &fakeGenerator{
		chunks: []string{`{"message": "Half a tho`},
		err:    errors.New("connection reset"),
	}
	env := newTestEnv(t, Config{}, gen, nil)
	id := createSession(t, env)

	w := env.do("POST", "/api/v1/sessions/"+id+"/messages", `{"message": "go"}`)

	events := parseEvents(w.Body.String())
	if len(events) != 2 || events[1].name != "error" {
		t.Fatalf("expected update then error, got %+v", events)
	}
	var evt errorEvent
	if err := json.Unmarshal([]byte(events[1].data), &evt); err != nil {
		t.Fatal(err)
	}
	if !evt.Retryable || !strings.Contains(evt.Error, "connection reset") {
		t.Errorf("unexpected error event %+v", evt)
	}

	w = env.do("GET", "/api/v1/sessions/"+id, "")
	var view struct {
		Retryable bool `json:"retryable"`
		Session   struct {
			Failure string `json:"failure"`
		} `json:"session"`
	}
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if !view.Retryable || view.Session.Failure != "connection reset" {
		t.Errorf("expected retryable failure in snapshot, got %+v", view)
	}

	gen.mu.Lock()
	gen.chunks, gen.err = []string{`{"message": "Whole", "characterFileJson": {"name": "Ada"}}`}, nil
	gen.mu.Unlock()

	w = env.do("POST", "/api/v1/sessions/"+id+"/retry", "")
	events = parseEvents(w.Body.String())
	if len(events) == 0 || events[len(events)-1].name != "done" {
		t.Fatalf("expected retry to finish with done, got %+v", events)
	}

	w = env.do("POST", "/api/v1/sessions/"+id+"/retry", "")
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 when nothing to retry, got %d", w.Code)
	}
}

func TestPostMessage_FailureBeforeFirstChunk(t *testing.T) {
	env := newTestEnv(t, Config{}, &fakeGenerator{err: errors.New("dial tcp: refused")}, nil)
	id := createSession(t, env)

	w := env.do("POST", "/api/v1/sessions/"+id+"/messages", `{"message": "go"}`)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var body errorEvent
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Retryable {
		t.Error("expected retryable failure")
	}
}

func TestStop_DuringStream(t *testing.T) {
	gen := &fakeGenerator{
		chunks:  []string{`{"message": "Thinking`},
		block:   true,
		started: make(chan struct{}),
	}
	env := newTestEnv(t, Config{}, gen, nil)
	id := createSession(t, env)

	streamed := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("POST", "/api/v1/sessions/"+id+"/messages", strings.NewReader(`{"message": "slow"}`))
		env.srv.Handler().ServeHTTP(streamed, req)
	}()

	select {
	case <-gen.started:
	case <-time.After(2 * time.Second):
		t.Fatal("generation never started")
	}

	if w := env.do("POST", "/api/v1/sessions/"+id+"/messages", `{"message": "again"}`); w.Code != http.StatusConflict {
		t.Errorf("expected 409 while streaming, got %d", w.Code)
	}
	if w := env.do("POST", "/api/v1/sessions/"+id+"/stop", ""); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 from stop, got %d", w.Code)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after stop")
	}

	events := parseEvents(streamed.Body.String())
	last := events[len(events)-1]
	var evt doneEvent
	if err := json.Unmarshal([]byte(last.data), &evt); err != nil {
		t.Fatal(err)
	}
	if last.name != "done" || evt.Status != "stopped" || evt.Message != "Thinking" {
		t.Errorf("unexpected final event %s %+v", last.name, evt)
	}

	if w := env.do("POST", "/api/v1/sessions/"+id+"/stop", ""); w.Code != http.StatusConflict {
		t.Errorf("expected 409 when nothing streams, got %d", w.Code)
	}
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t, Config{}, &fakeGenerator{}, nil)
	id := createSession(t, env)

	if w := env.do("DELETE", "/api/v1/sessions/"+id, ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := env.do("GET", "/api/v1/sessions/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after end, got %d", w.Code)
	}
}

func TestSave(t *testing.T) {
	t.Run("storage disabled", func(t *testing.T) {
		env := newTestEnv(t, Config{}, &fakeGenerator{}, nil)
		id := createSession(t, env)
		if w := env.do("POST", "/api/v1/sessions/"+id+"/save", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
		if w := env.do("GET", "/api/v1/characters", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503 listing, got %d", w.Code)
		}
	})

	t.Run("empty document", func(t *testing.T) {
		env := newTestEnv(t, Config{}, &fakeGenerator{}, newFakeCharacters())
		id := createSession(t, env)
		if w := env.do("POST", "/api/v1/sessions/"+id+"/save", ""); w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("save and read back", func(t *testing.T) {
		gen := &fakeGenerator{chunks: []string{`{"message": "ok", "characterFileJson": {"name": "Ada", "clients": ["discord"]}}`}}
		env := newTestEnv(t, Config{}, gen, newFakeCharacters())
		id := createSession(t, env)
		env.do("POST", "/api/v1/sessions/"+id+"/messages", `{"message": "make Ada"}`)

		w := env.do("POST", "/api/v1/sessions/"+id+"/save", "")
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		var saved struct {
			ID string `json:"id"`
		}
		json.NewDecoder(w.Body).Decode(&saved)

		w = env.do("GET", "/api/v1/characters/"+saved.ID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var c struct {
			Name      string         `json:"name"`
			Character map[string]any `json:"character"`
		}
		json.NewDecoder(w.Body).Decode(&c)
		if c.Name != "Ada" || c.Character["name"] != "Ada" {
			t.Errorf("unexpected saved character %+v", c)
		}

		w = env.do("GET", "/api/v1/characters?limit=5", "")
		if !strings.Contains(w.Body.String(), `"count":1`) {
			t.Errorf("expected one saved character, got %s", w.Body.String())
		}

		if w := env.do("GET", "/api/v1/characters/"+uuid.NewString(), ""); w.Code != http.StatusNotFound {
			t.Errorf("expected 404 for unknown character, got %d", w.Code)
		}
		if w := env.do("GET", "/api/v1/characters?limit=zero", ""); w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for bad limit, got %d", w.Code)
		}
	})
}

func TestRateLimit(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{`{"message": "ok"}`}}
	env := newTestEnv(t, Config{RateLimitRPM: 1, RateLimitBurst: 1}, gen, nil)
	id := createSession(t, env)

	if w := env.do("POST", "/api/v1/sessions/"+id+"/messages", `{"message": "one"}`); w.Code != http.StatusOK {
		t.Fatalf("expected first message to pass, got %d", w.Code)
	}
	w := env.do("POST", "/api/v1/sessions/"+id+"/messages", `{"message": "two"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if w := env.do("GET", "/api/v1/sessions/"+id, ""); w.Code != http.StatusOK {
		t.Errorf("expected reads not to be rate limited, got %d", w.Code)
	}
}
