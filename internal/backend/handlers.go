package backend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
)

type profileUpdateRequest struct {
	Name string `json:"name"`
}

type requestResponse struct {
	ID          string               `json:"id"`
	InventoryID string               `json:"inventory_id"`
	RequesterID string               `json:"requester_id"`
	Quantity    int                  `json:"quantity"`
	Status      domain.RequestStatus `json:"status"`
	AcceptedBy  *string              `json:"accepted_by,omitempty"`
}

func toRequestResponse(r *domain.DonationRequest) requestResponse {
	return requestResponse{
		ID:          r.ID,
		InventoryID: r.InventoryID,
		RequesterID: r.RequesterID,
		Quantity:    r.Quantity,
		Status:      r.Status,
		AcceptedBy:  r.AcceptedBy,
	}
}

// caller is set by AuthMiddleware on every /api route.
func caller(r *http.Request) domain.Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

func handleUpdateProfile(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req profileUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			writeErrorMessage(w, http.StatusBadRequest, "name is required")
			return
		}
		id := caller(r)
		if err := svc.Touch(r.Context(), id, req.Name); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id.UserID, "name": req.Name, "role": string(id.Role)})
	}
}

func handleSendMessage(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.SendInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		msg, err := svc.Send(r.Context(), caller(r), in)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleHistory(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := svc.History(r.Context(), caller(r), r.URL.Query().Get("peer_id"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleDeleteMessage(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forAll := false
		if v := r.URL.Query().Get("for_all"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeErrorMessage(w, http.StatusBadRequest, "for_all must be a boolean")
				return
			}
			forAll = b
		}
		id := chi.URLParam(r, "messageID")
		if err := svc.Delete(r.Context(), caller(r), id, forAll); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message_id": id, "for_all": forAll})
	}
}

func handleActiveChats(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seeds, err := svc.ActiveChats(r.Context(), caller(r), r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, seeds)
	}
}

func handleMarkRead(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.MarkRead(r.Context(), caller(r), chi.URLParam(r, "peerID")); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleAccept(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := svc.Accept(r.Context(), caller(r), chi.URLParam(r, "requestID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponse(req))
	}
}

func handleCancel(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := svc.Cancel(r.Context(), caller(r), chi.URLParam(r, "requestID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponse(req))
	}
}

func handleInventoryStatus(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.InventoryStatus(r.Context(), chi.URLParam(r, "inventoryID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleCreateInventory(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in InventoryInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		item, err := svc.CreateInventory(r.Context(), caller(r), in)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":                 item.ID,
			"owner_id":           item.OwnerID,
			"product_name":       item.ProductName,
			"remaining_quantity": item.RemainingQuantity,
		})
	}
}
