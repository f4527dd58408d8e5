package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func handleListChats(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid page"})
				return
			}
			page = n
		}
		// A present but empty q clears the search.
		if q := r.URL.Query(); q.Has("q") {
			if err := s.SetSearch(r.Context(), q.Get("q")); err != nil {
				writeError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, s.Summaries(page))
	}
}

func handleGetConversation(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		peer := chi.URLParam(r, "peerID")
		writeJSON(w, http.StatusOK, map[string]any{
			"peer_id":  peer,
			"messages": s.Conversation(peer),
		})
	}
}

func handleOpenConversation(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.OpenConversation(chi.URLParam(r, "peerID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCloseConversation(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.CloseConversation()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMarkConversationRead(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.MarkRead(r.Context(), chi.URLParam(r, "peerID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
