package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/fleek/internal/character"
	"github.com/MikeSquared-Agency/fleek/internal/extractor"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTurnNotFound    = errors.New("turn not found")
	ErrTurnClosed      = errors.New("turn is no longer streaming")
	ErrNotAssistant    = errors.New("only assistant turns stream content")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Status string

const (
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Turn is one message in the conversation. Content only grows, and only
// while an assistant turn is streaming.
type Turn struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a role/content pair sent to the backend.
type Message struct {
	Role    Role
	Content string
}

// Update describes the effect of one chunk on the session.
type Update struct {
	TurnID   uuid.UUID
	Message  string
	Strategy extractor.Strategy
	Merged   bool
	Document character.Document
}

// TurnView is a turn as the presentation layer sees it.
type TurnView struct {
	Turn
	Message string `json:"message"`
}

// View is a read-only snapshot of a session.
type View struct {
	ID        uuid.UUID          `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Turns     []TurnView         `json:"turns"`
	Document  character.Document `json:"character"`
	Failure   string             `json:"failure,omitempty"`
}

// Session owns the conversation and the running character document for one
// user. AppendChunk is the only writer of the document; readers get copies.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu      sync.RWMutex
	turns   []*Turn
	doc     character.Document
	failure string
}

func New() *Session {
	return &Session{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
	}
}

// AddUserTurn records a user message. User turns are complete on arrival.
func (s *Session) AddUserTurn(content string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(RoleUser, content, StatusComplete)
}

// BeginAssistantTurn opens an empty streaming turn for the next response.
func (s *Session) BeginAssistantTurn() Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(RoleAssistant, "", StatusStreaming)
}

func (s *Session) appendLocked(role Role, content string, status Status) Turn {
	now := time.Now().UTC()
	t := &Turn{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.turns = append(s.turns, t)
	return *t
}

// AppendChunk appends streamed text to an assistant turn, re-extracts the
// turn's cumulative content and, when the turn is the latest assistant turn,
// merges the recovered fragment into the running document.
func (s *Session) AppendChunk(turnID uuid.UUID, chunk string) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findLocked(turnID)
	if t == nil {
		return Update{}, ErrTurnNotFound
	}
	if t.Role != RoleAssistant {
		return Update{}, ErrNotAssistant
	}
	if t.Status != StatusStreaming {
		return Update{}, ErrTurnClosed
	}

	t.Content += chunk
	t.UpdatedAt = time.Now().UTC()

	r := extractor.Extract(t.Content)
	merged := false
	if r.Fragment != nil && t == s.latestAssistantLocked() {
		s.doc = character.Merge(s.doc, r.Fragment)
		merged = true
	}

	return Update{
		TurnID:   t.ID,
		Message:  r.Message,
		Strategy: r.Strategy,
		Merged:   merged,
		Document: s.doc.Clone(),
	}, nil
}

// CompleteTurn marks a streaming turn as finished.
func (s *Session) CompleteTurn(turnID uuid.UUID) error {
	return s.closeTurn(turnID, StatusComplete, "")
}

// StopTurn marks a streaming turn as cancelled by the user. Content received
// so far is kept.
func (s *Session) StopTurn(turnID uuid.UUID) error {
	return s.closeTurn(turnID, StatusStopped, "")
}

// FailTurn records a transport failure. The document is left as it was.
func (s *Session) FailTurn(turnID uuid.UUID, cause error) error {
	msg := "transport failure"
	if cause != nil {
		msg = cause.Error()
	}
	return s.closeTurn(turnID, StatusFailed, msg)
}

func (s *Session) closeTurn(turnID uuid.UUID, status Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findLocked(turnID)
	if t == nil {
		return ErrTurnNotFound
	}
	if t.Status != StatusStreaming {
		return ErrTurnClosed
	}
	t.Status = status
	t.Error = errMsg
	t.UpdatedAt = time.Now().UTC()

	switch status {
	case StatusFailed:
		s.failure = errMsg
	case StatusComplete:
		s.failure = ""
	}
	return nil
}

// LastUserMessage returns the content of the most recent user turn.
func (s *Session) LastUserMessage() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.lastUserLocked(); ok {
		return t.Content, true
	}
	return "", false
}

// Retryable reports whether the latest assistant turn failed or was stopped,
// which is when regenerating it makes sense.
func (s *Session) Retryable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.latestAssistantLocked()
	if t == nil {
		_, hasUser := s.lastUserLocked()
		return hasUser
	}
	return t.Status == StatusFailed || t.Status == StatusStopped
}

// History returns the conversation for the backend: user turns and completed
// assistant turns, with consecutive same-role messages joined.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Message
	for _, t := range s.turns {
		if t.Role == RoleAssistant && t.Status != StatusComplete {
			continue
		}
		if t.Content == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == t.Role {
			out[n-1].Content = strings.Join([]string{out[n-1].Content, t.Content}, "\n\n")
			continue
		}
		out = append(out, Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// Document returns a copy of the running character document.
func (s *Session) Document() character.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Snapshot returns a consistent copy of the whole session. Each turn's
// display message is extracted independently from its own content, user
// turns included.
func (s *Session) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := make([]TurnView, len(s.turns))
	for i, t := range s.turns {
		turns[i] = TurnView{Turn: *t, Message: extractor.Display(t.Content)}
	}
	return View{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Turns:     turns,
		Document:  s.doc.Clone(),
		Failure:   s.failure,
	}
}

func (s *Session) findLocked(id uuid.UUID) *Turn {
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].ID == id {
			return s.turns[i]
		}
	}
	return nil
}

func (s *Session) latestAssistantLocked() *Turn {
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleAssistant {
			return s.turns[i]
		}
	}
	return nil
}

func (s *Session) lastUserLocked() (*Turn, bool) {
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleUser {
			return s.turns[i], true
		}
	}
	return nil, false
}

func (s *Session) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}
