package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type messageCreateRequest struct {
	Content    string  `json:"content"`
	Attachment *string `json:"attachment"`
}

type donationCreateRequest struct {
	InventoryID string `json:"inventory_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

func handleSendMessage(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		// The optimistic copy is returned even when delivery failed; it is
		// flagged as failed in the conversation view.
		msg, err := s.Send(r.Context(), chi.URLParam(r, "peerID"), req.Content, req.Attachment)
		if err != nil && msg.ID == "" {
			writeError(w, err)
			return
		}
		if err != nil {
			writeJSON(w, http.StatusAccepted, map[string]any{"message": msg, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
	}
}

func handleRequestDonation(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req donationCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		msg, err := s.RequestDonation(r.Context(), chi.URLParam(r, "peerID"), req.InventoryID, req.ProductName, req.Quantity)
		if err != nil && msg.ID == "" {
			writeError(w, err)
			return
		}
		if err != nil {
			writeJSON(w, http.StatusAccepted, map[string]any{"message": msg, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
	}
}

func handleAcceptDonation(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Accept(r.Context(), chi.URLParam(r, "messageID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCancelDonation(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Cancel(r.Context(), chi.URLParam(r, "messageID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteMessage(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forAll := false
		if v := r.URL.Query().Get("for_all"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid for_all"})
				return
			}
			forAll = b
		}
		if err := s.Delete(r.Context(), chi.URLParam(r, "messageID"), forAll); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
