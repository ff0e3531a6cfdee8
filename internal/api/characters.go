package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/fleek/internal/processor"
)

func (s *Server) listCharacters(w http.ResponseWriter, r *http.Request) {
	if s.characters == nil {
		writeFailure(w, processor.ErrStoreDisabled)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	chars, err := s.characters.ListCharacters(r.Context(), limit)
	if err != nil {
		s.logger.Error("list characters failed", "error", err)
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"characters": chars, "count": len(chars)})
}

func (s *Server) getCharacter(w http.ResponseWriter, r *http.Request) {
	if s.characters == nil {
		writeFailure(w, processor.ErrStoreDisabled)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid character id")
		return
	}

	c, err := s.characters.GetCharacter(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
