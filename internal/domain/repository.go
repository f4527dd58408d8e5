package domain

import (
	"context"
)

// SendInput describes a message to create on the backend.
type SendInput struct {
	ReceiverID string  `json:"receiver_id"`
	Content    string  `json:"content"`
	Attachment *string `json:"attachment,omitempty"`
}

// Backend is the request/response contract the messaging core consumes.
// The acting identity is bound to the implementation (bearer token).
type Backend interface {
	Send(ctx context.Context, in SendInput) (*Message, error)
	History(ctx context.Context, peerID string) ([]Message, error)
	ActiveChats(ctx context.Context, query string) ([]PeerSeed, error)
	Accept(ctx context.Context, requestID string) error
	Cancel(ctx context.Context, requestID string) error
	InventoryStatus(ctx context.Context, inventoryID string) (*InventoryStatus, error)
	Delete(ctx context.Context, messageID string, forAll bool) error
	MarkRead(ctx context.Context, peerID string) error
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Upsert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	ListConversation(ctx context.Context, userID, peerID string, limit int) ([]*Message, error)
	ListPeers(ctx context.Context, userID string) ([]string, error)
	CountUnread(ctx context.Context, userID, peerID string) (int, error)
	MarkConversationRead(ctx context.Context, userID, peerID string) error
	SoftDeleteForEveryone(ctx context.Context, id string) error
	HideForUser(ctx context.Context, userID, messageID string) error
}

// InventoryRepository defines persistence for inventory items and the
// donation requests competing for them. Accept and Cancel must be atomic.
type InventoryRepository interface {
	CreateItem(ctx context.Context, item *InventoryItem) error
	GetItem(ctx context.Context, id string) (*InventoryItem, error)
	CreateRequest(ctx context.Context, req *DonationRequest) error
	// CreateRequestWithMessage stores req and the card message carrying it
	// atomically.
	CreateRequestWithMessage(ctx context.Context, req *DonationRequest, msg *Message) error
	GetRequest(ctx context.Context, id string) (*DonationRequest, error)
	ListRequests(ctx context.Context, inventoryID string) ([]*DonationRequest, error)
	Accept(ctx context.Context, requestID, actorID string) (*DonationRequest, error)
	Cancel(ctx context.Context, requestID string) (*DonationRequest, error)
}
