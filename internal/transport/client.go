package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/metrics"
)

// Options tunes a Client. Zero values pick sensible defaults.
type Options struct {
	Timeout    time.Duration
	RPS        float64
	Burst      int
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Client is the REST Transport Client for the backend. It acts as the
// identity carried by its bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

var _ domain.Backend = (*Client)(nil)

func New(baseURL, token string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 40
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		metrics: opts.Metrics,
	}
}

func (c *Client) Send(ctx context.Context, in domain.SendInput) (*domain.Message, error) {
	var msg domain.Message
	if err := c.do(ctx, "send", http.MethodPost, "/api/messages", nil, in, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		// The backend accepted the message without echoing it; the next
		// history fetch picks it up.
		return nil, nil
	}
	return &msg, nil
}

func (c *Client) History(ctx context.Context, peerID string) ([]domain.Message, error) {
	var msgs []domain.Message
	q := url.Values{"peer_id": {peerID}}
	if err := c.do(ctx, "history", http.MethodGet, "/api/messages", q, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) ActiveChats(ctx context.Context, query string) ([]domain.PeerSeed, error) {
	var seeds []domain.PeerSeed
	var q url.Values
	if query != "" {
		q = url.Values{"q": {query}}
	}
	if err := c.do(ctx, "active_chats", http.MethodGet, "/api/chats", q, nil, &seeds); err != nil {
		return nil, err
	}
	return seeds, nil
}

func (c *Client) Accept(ctx context.Context, requestID string) error {
	return c.do(ctx, "accept", http.MethodPost, "/api/donations/"+url.PathEscape(requestID)+"/accept", nil, nil, nil)
}

func (c *Client) Cancel(ctx context.Context, requestID string) error {
	return c.do(ctx, "cancel", http.MethodPost, "/api/donations/"+url.PathEscape(requestID)+"/cancel", nil, nil, nil)
}

func (c *Client) InventoryStatus(ctx context.Context, inventoryID string) (*domain.InventoryStatus, error) {
	var st domain.InventoryStatus
	if err := c.do(ctx, "inventory_status", http.MethodGet, "/api/inventory/"+url.PathEscape(inventoryID), nil, nil, &st); err != nil {
		return nil, err
	}
	if st.InventoryID == "" {
		st.InventoryID = inventoryID
	}
	if st.RequestStatuses == nil {
		st.RequestStatuses = map[string]domain.RequestState{}
	}
	return &st, nil
}

func (c *Client) Delete(ctx context.Context, messageID string, forAll bool) error {
	q := url.Values{"for_all": {strconv.FormatBool(forAll)}}
	return c.do(ctx, "delete", http.MethodDelete, "/api/messages/"+url.PathEscape(messageID), q, nil, nil)
}

func (c *Client) MarkRead(ctx context.Context, peerID string) error {
	return c.do(ctx, "mark_read", http.MethodPost, "/api/chats/"+url.PathEscape(peerID)+"/read", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	defer func() { c.metrics.ObserveCall(op, outcome(err)) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return fmt.Errorf("%s: %w: %v", op, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %w", op, statusError(resp))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w: read body: %v", op, domain.ErrTransient, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// statusError maps an HTTP failure onto the domain sentinels.
func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(b, &payload)
	detail := payload.Error
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	var kind error
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		kind = domain.ErrTransient
	case resp.StatusCode == http.StatusConflict:
		kind = domain.ErrConflict
	case resp.StatusCode == http.StatusNotFound:
		kind = domain.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		kind = domain.ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		kind = domain.ErrForbidden
	default:
		kind = domain.ErrInvalidInput
	}
	return fmt.Errorf("%w (status %d): %s", kind, resp.StatusCode, detail)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrTransient):
		return "transient"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// IsTransient reports whether err should simply be retried on the next
// tick.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrTransient)
}
