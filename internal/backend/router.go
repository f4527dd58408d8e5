package backend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/security"
)

type Options struct {
	CORSOrigins []string
	Logger      *slog.Logger
	// UploadDir enables /api/uploads when set. It must exist.
	UploadDir string
}

// NewRouter exposes the backend operations the messaging client consumes.
func NewRouter(svc *Service, tokens *security.TokenService, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(tokens, svc, log))

		r.Put("/me", handleUpdateProfile(svc, log))

		r.Route("/messages", func(r chi.Router) {
			r.Post("/", handleSendMessage(svc, log))
			r.Get("/", handleHistory(svc, log))
			r.Delete("/{messageID}", handleDeleteMessage(svc, log))
		})

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", handleActiveChats(svc, log))
			r.Post("/{peerID}/read", handleMarkRead(svc, log))
		})

		r.Route("/donations/{requestID}", func(r chi.Router) {
			r.Post("/accept", handleAccept(svc, log))
			r.Post("/cancel", handleCancel(svc, log))
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/", handleCreateInventory(svc, log))
			r.Get("/{inventoryID}", handleInventoryStatus(svc, log))
		})

		if opts.UploadDir != "" {
			r.Mount("/uploads", uploadRoutes(opts.UploadDir, log))
		}
	})

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors onto HTTP status codes. Unclassified
// errors are logged and reported without detail.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	default:
		log.Error("request failed", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeErrorMessage(w, status, err.Error())
}
