package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/runnerr0/tabtidy/internal/placeholder"
	"github.com/runnerr0/tabtidy/internal/suspender"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

func (s *Server) handlePlaceholder(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := placeholder.Params{
		URL:     q.Get("url"),
		Title:   q.Get("title"),
		Favicon: q.Get("favicon"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if err := placeholder.Render(w, p); err != nil {
		s.logger.Error("server: render placeholder", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSuspended(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Snapshot(r.Context()))
}

func (s *Server) handleTidy(w http.ResponseWriter, r *http.Request) {
	res, err := s.daemon.Tidy(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	id, ok := s.tabID(w, r)
	if !ok {
		return
	}
	target, err := s.daemon.Restore(r.Context(), id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tabId": id, "url": target})
}

func (s *Server) handlePin(pinned bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.tabID(w, r)
		if !ok {
			return
		}
		if err := s.daemon.SetPinned(r.Context(), id, pinned); err != nil {
			s.writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) tabID(w http.ResponseWriter, r *http.Request) (tabs.TabID, bool) {
	id, err := tabs.ParseTabID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid tab id"))
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tabs.ErrTabNotFound):
		return http.StatusNotFound
	case errors.Is(err, suspender.ErrNotSuspended), errors.Is(err, suspender.ErrNoOriginalURL):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("server: write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Warn("server: request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
