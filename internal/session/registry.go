package session

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Registry holds the live sessions. It is bounded: when full, the least
// recently used session is discarded, which ends it exactly as End does.
type Registry struct {
	cache  *lru.Cache[uuid.UUID, *Session]
	logger *slog.Logger
}

func NewRegistry(size int, logger *slog.Logger) (*Registry, error) {
	r := &Registry{logger: logger}
	cache, err := lru.NewWithEvict[uuid.UUID, *Session](size, r.discarded)
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

// Create starts a new session with an empty document.
func (r *Registry) Create() *Session {
	s := New()
	r.cache.Add(s.ID, s)
	r.logger.Info("session started", "session_id", s.ID)
	return s
}

func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	s, ok := r.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// End discards a session and its document.
func (r *Registry) End(id uuid.UUID) error {
	if !r.cache.Remove(id) {
		return ErrSessionNotFound
	}
	return nil
}

func (r *Registry) Len() int {
	return r.cache.Len()
}

func (r *Registry) discarded(id uuid.UUID, s *Session) {
	r.logger.Info("session discarded", "session_id", id, "turns", s.TurnCount())
}
