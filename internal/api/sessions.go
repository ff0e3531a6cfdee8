package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/fleek/internal/processor"
	"github.com/MikeSquared-Agency/fleek/internal/session"
)

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         sess.ID,
		"created_at": sess.CreatedAt,
	})
}

// lookupSession resolves the {id} URL parameter, writing the error response
// itself when it fails.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		writeFailure(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	view := sess.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"session":   view,
		"streaming": s.proc.Streaming(sess.ID),
		"retryable": sess.Retryable(),
	})
}

func (s *Server) getSessionCharacter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Document())
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := s.proc.Stop(sess.ID); err != nil && !errors.Is(err, processor.ErrNotStreaming) {
		writeFailure(w, err)
		return
	}
	if err := s.sessions.End(sess.ID); err != nil {
		writeFailure(w, err)
		return
	}
	s.logger.Info("session ended", "session_id", sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.streamTurn(w, sess, func(onUpdate func(session.Update)) error {
		return s.proc.Send(r.Context(), sess.ID, req.Message, onUpdate)
	})
}

func (s *Server) retry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	s.streamTurn(w, sess, func(onUpdate func(session.Update)) error {
		return s.proc.Retry(r.Context(), sess.ID, onUpdate)
	})
}

// streamTurn runs one generation and relays it as server-sent events:
// "update" per chunk, then "done" or "error".
func (s *Server) streamTurn(w http.ResponseWriter, sess *session.Session, run func(func(session.Update)) error) {
	stream, ok := newEventStream(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	err := run(stream.update)

	var terr *processor.TransportError
	switch {
	case err == nil:
		view := sess.Snapshot()
		last := view.Turns[len(view.Turns)-1]
		stream.send("done", doneEvent{
			TurnID:    last.ID,
			Status:    last.Status,
			Message:   last.Message,
			Character: view.Document,
		})
	case !stream.started:
		writeFailure(w, err)
	case errors.As(err, &terr):
		stream.send("error", errorEvent{Error: terr.Error(), Retryable: true})
	default:
		s.logger.Error("stream failed", "session_id", sess.ID, "error", err)
		stream.send("error", errorEvent{Error: "internal error", Retryable: false})
	}
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := s.proc.Stop(sess.ID); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	id, err := s.proc.Save(r.Context(), sess.ID)
	if err != nil {
		if !errors.Is(err, processor.ErrStoreDisabled) && !errors.Is(err, processor.ErrEmptyDocument) {
			s.logger.Error("save failed", "session_id", sess.ID, "error", err)
		}
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}
