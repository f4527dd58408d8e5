package domain

import "time"

// Role distinguishes the bakery side, which holds authority over
// donation requests, from ordinary requesters.
type Role string

const (
	RoleBakery    Role = "bakery"
	RoleRequester Role = "requester"
)

// Identity is the caller identity carried by the access token.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// CanResolveDonations reports whether the identity may accept or cancel
// donation requests addressed to it.
func (i Identity) CanResolveDonations() bool {
	return i.Role == RoleBakery
}

// Message represents a single chat message between two parties.
type Message struct {
	ID            string    `json:"id"`
	SenderID      string    `json:"sender_id"`
	ReceiverID    string    `json:"receiver_id"`
	Timestamp     time.Time `json:"timestamp"`
	Content       string    `json:"content"`
	Attachment    *string   `json:"attachment,omitempty"`
	IsRead        bool      `json:"is_read"`
	DeletedForAll bool      `json:"deleted_for_all"`

	// Local is client-only overlay state; it never crosses the wire.
	Local LocalState `json:"-"`
}

// LocalState holds optimistic hints that the next authoritative merge
// may supersede.
type LocalState struct {
	Optimistic bool
	Failed     bool
	CardHint   *CardHint
}

// CardHint is an optimistic donation status written by a local accept or
// cancel before the inventory authority confirms it.
type CardHint struct {
	Status RequestStatus
	At     time.Time
}

// Involves reports whether the message belongs to the conversation
// between a and b.
func (m *Message) Involves(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Peer returns the other party of the message from self's point of view,
// or "" when self is not a participant.
func (m *Message) Peer(self string) string {
	switch self {
	case m.SenderID:
		return m.ReceiverID
	case m.ReceiverID:
		return m.SenderID
	}
	return ""
}

// IsUnreadFor reports whether the message is an inbound unread message
// for the given user.
func (m *Message) IsUnreadFor(self string) bool {
	return m.ReceiverID == self && !m.IsRead && !m.DeletedForAll
}

// RequestStatus is the lifecycle state of one donation request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusCanceled RequestStatus = "canceled"
)

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusCanceled
}

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusCanceled:
		return true
	}
	return false
}

// RequestState is the authoritative state of a single request.
type RequestState struct {
	Status     RequestStatus `json:"status"`
	AcceptedBy string        `json:"accepted_by,omitempty"`
}

// InventoryStatus is the server-owned projection of one inventory item.
// The client treats it as read-only truth.
type InventoryStatus struct {
	InventoryID       string                  `json:"inventory_id"`
	RemainingQuantity int                     `json:"remaining_quantity"`
	RequestStatuses   map[string]RequestState `json:"request_statuses"`
}

// StatusOf returns the state of requestID and whether it is known.
func (s *InventoryStatus) StatusOf(requestID string) (RequestState, bool) {
	if s == nil || s.RequestStatuses == nil {
		return RequestState{}, false
	}
	st, ok := s.RequestStatuses[requestID]
	return st, ok
}

// InventoryItem is a shared, finite resource donation requests compete for.
type InventoryItem struct {
	ID                string    `db:"id"`
	OwnerID           string    `db:"owner_id"`
	ProductName       string    `db:"product_name"`
	RemainingQuantity int       `db:"remaining_quantity"`
	CreatedAt         time.Time `db:"created_at"`
}

// DonationRequest is one reservation attempt against an inventory item.
type DonationRequest struct {
	ID          string        `db:"id"`
	InventoryID string        `db:"inventory_id"`
	RequesterID string        `db:"requester_id"`
	MessageID   string        `db:"message_id"`
	Quantity    int           `db:"quantity"`
	Status      RequestStatus `db:"status"`
	AcceptedBy  *string       `db:"accepted_by"`
	CreatedAt   time.Time     `db:"created_at"`
}

// User is a participant known to the backend.
type User struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PeerSeed is the server's view of one active conversation.
type PeerSeed struct {
	PeerID      string   `json:"peer_id"`
	PeerName    string   `json:"peer_name,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

// ChatSummary is derived for list display; it has no lifecycle of its own.
type ChatSummary struct {
	PeerID      string   `json:"peer_id"`
	PeerName    string   `json:"peer_name,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}
