package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/metrics"
	"github.com/Avanquish/DoughNation-sub000/internal/service"
	"github.com/Avanquish/DoughNation-sub000/internal/ws"
)

// Session is what the UI bridge needs from the messaging session.
type Session interface {
	ws.Intents
	Identity() domain.Identity
	Summaries(page int) service.SummaryPage
	SetSearch(ctx context.Context, query string) error
	Conversation(peer string) []service.MessageView
	RequestDonation(ctx context.Context, peer, inventoryID, productName string, quantity int) (domain.Message, error)
}

type Options struct {
	CORSOrigins []string
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// NewRouter constructs the UI bridge: derived views, intents, the event
// socket and operational endpoints.
func NewRouter(session Session, hub *ws.Hub, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "user_id": session.Identity().UserID})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/chats", handleListChats(session))

		r.Route("/conversations/{peerID}", func(r chi.Router) {
			r.Get("/", handleGetConversation(session))
			r.Post("/open", handleOpenConversation(session))
			r.Post("/close", handleCloseConversation(session))
			r.Post("/read", handleMarkConversationRead(session))
			r.Post("/messages", handleSendMessage(session))
			r.Post("/donations", handleRequestDonation(session))
		})

		r.Route("/messages/{messageID}", func(r chi.Router) {
			r.Post("/accept", handleAcceptDonation(session))
			r.Post("/cancel", handleCancelDonation(session))
			r.Delete("/", handleDeleteMessage(session))
		})
	})

	r.Get("/ws", ws.MakeHandler(hub, session, opts.CORSOrigins, log))

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

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrActionUnavailable):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrTransient):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
