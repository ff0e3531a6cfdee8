package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/fleek/internal/character"
	"github.com/MikeSquared-Agency/fleek/internal/hermes"
	"github.com/MikeSquared-Agency/fleek/internal/metrics"
	"github.com/MikeSquared-Agency/fleek/internal/session"
)

var (
	ErrBusy           = errors.New("a response is already streaming for this session")
	ErrNothingToRetry = errors.New("nothing to retry")
	ErrNotStreaming   = errors.New("no response is streaming for this session")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrEmptyDocument  = errors.New("character document is empty")
	ErrStoreDisabled  = errors.New("character storage is not configured")
)

// TransportError reports a backend stream that broke mid-turn. The turn is
// marked failed and the document keeps its last merged state.
type TransportError struct {
	SessionID uuid.UUID
	TurnID    uuid.UUID
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Generator streams an assistant response for a conversation.
type Generator interface {
	Stream(ctx context.Context, system string, history []session.Message, onDelta func(string) error) error
}

// Publisher sends events to the rest of the swarm.
type Publisher interface {
	Publish(subject string, data any) error
}

// CharacterStore persists explicit saves of a session's document.
type CharacterStore interface {
	SaveCharacter(ctx context.Context, sessionID uuid.UUID, doc character.Document) (uuid.UUID, error)
}

// Notifier announces saved characters to people.
type Notifier interface {
	PostCharacterSaved(ctx context.Context, characterID uuid.UUID, doc character.Document) error
}

// Processor runs the chat pipeline: it records turns, streams the backend
// response into the session and reports the outcome.
type Processor struct {
	sessions *session.Registry
	llm      Generator
	events   Publisher
	store    CharacterStore
	notifier Notifier
	metrics  *metrics.Collector
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]context.CancelFunc
}

type Option func(*Processor)

func WithPublisher(p Publisher) Option { return func(pr *Processor) { pr.events = p } }
func WithStore(s CharacterStore) Option { return func(pr *Processor) { pr.store = s } }
func WithNotifier(n Notifier) Option { return func(pr *Processor) { pr.notifier = n } }
func WithMetrics(m *metrics.Collector) Option { return func(pr *Processor) { pr.metrics = m } }

func New(sessions *session.Registry, llm Generator, logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		sessions: sessions,
		llm:      llm,
		logger:   logger,
		inflight: make(map[uuid.UUID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send records a user message and streams the assistant's reply. onUpdate is
// called after every chunk with the cumulative display message and the
// running document.
func (p *Processor) Send(ctx context.Context, sessionID uuid.UUID, text string, onUpdate func(session.Update)) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return err
	}

	ctx, release, err := p.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	sess.AddUserTurn(text)
	return p.generate(ctx, sess, onUpdate)
}

// Retry regenerates the reply to the last user message after the previous
// attempt failed or was stopped. It never runs on its own.
func (p *Processor) Retry(ctx context.Context, sessionID uuid.UUID, onUpdate func(session.Update)) error {
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return err
	}

	ctx, release, err := p.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if !sess.Retryable() {
		return ErrNothingToRetry
	}
	return p.generate(ctx, sess, onUpdate)
}

// Stop cancels the in-flight generation for a session. The turn keeps what
// streamed so far and is marked stopped.
func (p *Processor) Stop(sessionID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.inflight[sessionID]
	if !ok {
		return ErrNotStreaming
	}
	cancel()
	return nil
}

// Streaming reports whether a generation is running for the session.
func (p *Processor) Streaming(sessionID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[sessionID]
	return ok
}

func (p *Processor) acquire(ctx context.Context, sessionID uuid.UUID) (context.Context, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[sessionID]; busy {
		return nil, nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	p.inflight[sessionID] = cancel
	return ctx, func() {
		p.mu.Lock()
		delete(p.inflight, sessionID)
		p.mu.Unlock()
		cancel()
	}, nil
}

func (p *Processor) generate(ctx context.Context, sess *session.Session, onUpdate func(session.Update)) error {
	history := sess.History()
	turn := sess.BeginAssistantTurn()
	start := time.Now()
	logger := p.logger.With("session_id", sess.ID, "turn_id", turn.ID)
	logger.Debug("generation started", "history", len(history))

	err := p.llm.Stream(ctx, buildSystemPrompt(), history, func(delta string) error {
		u, err := sess.AppendChunk(turn.ID, delta)
		if err != nil {
			return err
		}
		if p.metrics != nil {
			p.metrics.ObserveExtraction(string(u.Strategy), u.Merged)
		}
		if onUpdate != nil {
			onUpdate(u)
		}
		return nil
	})

	switch {
	case err == nil:
		if cerr := sess.CompleteTurn(turn.ID); cerr != nil {
			return fmt.Errorf("complete turn: %w", cerr)
		}
		p.observe("complete", start)
		doc := sess.Document()
		logger.Info("turn complete", "fields", len(doc.Fields()), "elapsed", time.Since(start))
		p.publish(hermes.SubjectCharacterUpdated, hermes.CharacterUpdated{
			SessionID: sess.ID.String(),
			TurnID:    turn.ID.String(),
			Name:      doc.Name,
			Fields:    doc.Fields(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return nil

	case ctx.Err() != nil:
		if serr := sess.StopTurn(turn.ID); serr != nil {
			return fmt.Errorf("stop turn: %w", serr)
		}
		p.observe("stopped", start)
		logger.Info("turn stopped")
		return nil

	default:
		if ferr := sess.FailTurn(turn.ID, err); ferr != nil {
			return fmt.Errorf("fail turn: %w", ferr)
		}
		p.observe("failed", start)
		if p.metrics != nil {
			p.metrics.StreamFailures.Inc()
		}
		logger.Warn("turn failed", "error", err)
		p.publish(hermes.SubjectTurnFailed, hermes.TurnFailed{
			SessionID: sess.ID.String(),
			TurnID:    turn.ID.String(),
			Error:     err.Error(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return &TransportError{SessionID: sess.ID, TurnID: turn.ID, Err: err}
	}
}

// Save persists a copy of the session's current document and announces it.
// The running document itself stays in memory.
func (p *Processor) Save(ctx context.Context, sessionID uuid.UUID) (uuid.UUID, error) {
	if p.store == nil {
		return uuid.Nil, ErrStoreDisabled
	}
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return uuid.Nil, err
	}
	doc := sess.Document()
	if doc.IsEmpty() {
		return uuid.Nil, ErrEmptyDocument
	}

	id, err := p.store.SaveCharacter(ctx, sessionID, doc)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save character: %w", err)
	}
	p.logger.Info("character saved", "session_id", sessionID, "character_id", id, "name", doc.Name)

	p.publish(hermes.SubjectCharacterSaved, hermes.CharacterSaved{
		CharacterID: id.String(),
		SessionID:   sessionID.String(),
		Name:        doc.Name,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})

	if p.notifier != nil {
		if err := p.notifier.PostCharacterSaved(ctx, id, doc); err != nil {
			p.logger.Warn("failed to post saved character to slack", "character_id", id, "error", err)
		}
	}
	return id, nil
}

func (p *Processor) observe(outcome string, start time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveGeneration(outcome, time.Since(start))
	}
}

func (p *Processor) publish(subject string, data any) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}
