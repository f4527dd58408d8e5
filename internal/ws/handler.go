package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
)

// Intents is the part of a session a UI connection may drive.
type Intents interface {
	OpenConversation(peer string) error
	CloseConversation()
	MarkRead(ctx context.Context, peer string) error
	Send(ctx context.Context, peer, content string, attachment *string) (domain.Message, error)
	Delete(ctx context.Context, messageID string, forAll bool) error
	Accept(ctx context.Context, messageID string) error
	Cancel(ctx context.Context, messageID string) error
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if _, wildcard := allowed["*"]; wildcard {
		return func(r *http.Request) bool { return true }
	}
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// inbound is a UI intent received over the socket.
type inbound struct {
	Type       string  `json:"type"`
	PeerID     string  `json:"peer_id"`
	MessageID  string  `json:"message_id"`
	Content    string  `json:"content"`
	Attachment *string `json:"attachment"`
	ForAll     bool    `json:"for_all"`
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// The connection receives every session event; it may also send intents:
//   - open_chat / close_chat  -> start or stop history polling
//   - mark_read               -> mark the conversation read
//   - message                 -> send content to peer_id
//   - delete_message          -> delete for me, or for everyone with for_all
//   - accept / cancel         -> resolve the donation card in message_id
func MakeHandler(hub *Hub, session Intents, allowedOrigins []string, log *slog.Logger) http.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{conn: conn}
		hub.register(c)
		defer hub.unregister(c)

		ctx := r.Context()
		for {
			var in inbound
			if err := conn.ReadJSON(&in); err != nil {
				break
			}

			var err error
			switch in.Type {
			case "open_chat":
				err = session.OpenConversation(in.PeerID)
			case "close_chat":
				session.CloseConversation()
			case "mark_read":
				err = session.MarkRead(ctx, in.PeerID)
			case "message":
				_, err = session.Send(ctx, in.PeerID, in.Content, in.Attachment)
			case "delete_message":
				err = session.Delete(ctx, in.MessageID, in.ForAll)
			case "accept":
				err = session.Accept(ctx, in.MessageID)
			case "cancel":
				err = session.Cancel(ctx, in.MessageID)
			default:
				log.Debug("ws: unknown intent", "type", in.Type)
				sendError(c, in.Type, "unknown intent")
				continue
			}
			if err != nil {
				log.Warn("ws: intent failed", "type", in.Type, "err", err)
				sendError(c, in.Type, err.Error())
			}
		}
	}
}

func sendError(c *client, intent, msg string) {
	_ = c.writeJSON(map[string]any{
		"type":    "error",
		"intent":  intent,
		"message": msg,
	})
}
