package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vango-dev/queryguard/pkg/permalink"
	"github.com/vango-dev/queryguard/pkg/protocol"
	"github.com/vango-dev/queryguard/pkg/query"
)

type createLinkRequest struct {
	Search string `json:"search"`
}

type createLinkResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Search string `json:"search"`
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, protocol.MaxSearchLength+64)

	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "search string too long"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Search) > protocol.MaxSearchLength {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "search string too long"})
		return
	}

	link, err := s.links.Put(r.Context(), req.Search)
	s.observeLink("put", err)
	if err != nil {
		s.logger.Error("permalink put failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not store link"})
		return
	}

	writeJSON(w, http.StatusCreated, createLinkResponse{
		ID:     link.ID,
		URL:    linkURL(r, link.ID),
		Search: link.Search,
	})
}

func (s *Server) handleFollowLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	link, err := s.links.Get(r.Context(), id)
	s.observeLink("get", err)
	switch {
	case errors.Is(err, permalink.ErrNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		s.logger.Error("permalink get failed", "id", id, "error", err)
		http.Error(w, "could not load link", http.StatusInternalServerError)
		return
	}

	target, err := url.Parse(s.cfg.Server.BaseURL)
	if err != nil {
		http.Error(w, "invalid base URL", http.StatusInternalServerError)
		return
	}
	target.RawQuery = strings.TrimPrefix(query.Normalize(link.Search), query.Marker)
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

func (s *Server) observeLink(op string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveLink(op, err)
	}
}

// linkURL builds the absolute share URL for id from the request.
func linkURL(r *http.Request, id string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return (&url.URL{Scheme: scheme, Host: r.Host, Path: "/l/" + id}).String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
