// Package events carries signals from the messaging core to the UI layer
// over explicit channels instead of process-wide broadcasts.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Kind names an event; each kind has a fixed payload contract documented
// on the constant.
type Kind string

const (
	// MessageSent: PeerID, MessageID (local id until confirmed).
	MessageSent Kind = "message_sent"
	// MessageDeleted: PeerID, MessageID, ForAll.
	MessageDeleted Kind = "message_deleted"
	// OpenChat: PeerID.
	OpenChat Kind = "open_chat"
	// ConversationUpdated: PeerID.
	ConversationUpdated Kind = "conversation_updated"
	// ChatsUpdated: no payload.
	ChatsUpdated Kind = "chats_updated"
	// InventoryUpdated: InventoryID.
	InventoryUpdated Kind = "inventory_updated"
	// DonationAccepted, DonationCancelled, DonationUnavailable:
	// RequestID, InventoryID, PeerID (the requester).
	DonationAccepted    Kind = "donation_accepted"
	DonationCancelled   Kind = "donation_cancelled"
	DonationUnavailable Kind = "donation_unavailable"
)

// Event is one signal. Fields not listed for its Kind are empty.
type Event struct {
	Kind        Kind      `json:"type"`
	PeerID      string    `json:"peer_id,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
	InventoryID string    `json:"inventory_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	ForAll      bool      `json:"for_all,omitempty"`
	At          time.Time `json:"at"`
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
	log    *slog.Logger
}

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{subs: make(map[int]chan Event), log: log}
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.log.Warn("events: subscriber lagging, event dropped", "subscriber", id, "kind", e.Kind)
		}
	}
}

// Close ends every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
