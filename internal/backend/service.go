package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/security"
)

const maxContentRunes = 5000

// Service is the reference backend: message persistence plus the
// inventory authority that settles competing donation requests.
type Service struct {
	users     domain.UserRepository
	messages  domain.MessageRepository
	inventory domain.InventoryRepository
	encryptor *security.Encryptor
	log       *slog.Logger

	// HistoryLimit caps how many of the latest messages History returns.
	HistoryLimit int

	now   func() time.Time
	newID func() string
}

func NewService(
	users domain.UserRepository,
	messages domain.MessageRepository,
	inventory domain.InventoryRepository,
	encryptor *security.Encryptor,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		users:        users,
		messages:     messages,
		inventory:    inventory,
		encryptor:    encryptor,
		log:          log,
		HistoryLimit: 500,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
}

// Touch records the caller so peers can be named in chat lists. An empty
// name keeps the stored one.
func (s *Service) Touch(ctx context.Context, id domain.Identity, name string) error {
	return s.users.Upsert(ctx, &domain.User{ID: id.UserID, Name: name, Role: id.Role})
}

// Send stores a message from the caller. A donation card also registers
// a pending request on the referenced inventory item.
func (s *Service) Send(ctx context.Context, caller domain.Identity, in domain.SendInput) (*domain.Message, error) {
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	switch {
	case in.ReceiverID == "":
		return nil, fmt.Errorf("%w: receiver_id is required", domain.ErrInvalidInput)
	case in.ReceiverID == caller.UserID:
		return nil, fmt.Errorf("%w: cannot message yourself", domain.ErrInvalidInput)
	case in.Content == "" && (in.Attachment == nil || *in.Attachment == ""):
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrInvalidInput)
	case len([]rune(in.Content)) > maxContentRunes:
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrInvalidInput, maxContentRunes)
	}

	msg := &domain.Message{
		ID:         s.newID(),
		SenderID:   caller.UserID,
		ReceiverID: in.ReceiverID,
		Timestamp:  s.now(),
		Content:    in.Content,
		Attachment: in.Attachment,
	}

	var req *domain.DonationRequest
	if card, ok := domain.ParseContent(in.Content).(domain.DonationCard); ok {
		var err error
		if req, err = s.prepareRequest(ctx, msg, card); err != nil {
			return nil, err
		}
	}

	sealed, err := s.encryptor.Encrypt(in.Content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}
	stored := *msg
	stored.Content = sealed
	if req != nil {
		err = s.inventory.CreateRequestWithMessage(ctx, req, &stored)
	} else {
		err = s.messages.Create(ctx, &stored)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// prepareRequest validates a donation card and builds the pending request
// it registers. Nothing is written.
func (s *Service) prepareRequest(ctx context.Context, msg *domain.Message, card domain.DonationCard) (*domain.DonationRequest, error) {
	d := card.Donation
	if card.RequesterID != msg.SenderID {
		return nil, fmt.Errorf("%w: requester_id must be the sender", domain.ErrInvalidInput)
	}
	if d.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}
	item, err := s.inventory.GetItem(ctx, d.InventoryID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown inventory %q", domain.ErrInvalidInput, d.InventoryID)
	}
	if err != nil {
		return nil, err
	}
	if item.OwnerID != msg.ReceiverID {
		return nil, fmt.Errorf("%w: inventory %q is not held by the receiver", domain.ErrInvalidInput, d.InventoryID)
	}
	if _, err := s.inventory.GetRequest(ctx, d.RequestID); err == nil {
		return nil, fmt.Errorf("%w: request %q already exists", domain.ErrConflict, d.RequestID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	return &domain.DonationRequest{
		ID:          d.RequestID,
		InventoryID: d.InventoryID,
		RequesterID: msg.SenderID,
		MessageID:   msg.ID,
		Quantity:    d.Quantity,
		Status:      domain.StatusPending,
		CreatedAt:   msg.Timestamp,
	}, nil
}

// History returns the latest messages between the caller and peerID,
// oldest first, with content decrypted.
func (s *Service) History(ctx context.Context, caller domain.Identity, peerID string) ([]domain.Message, error) {
	if peerID == "" {
		return nil, fmt.Errorf("%w: peer_id is required", domain.ErrInvalidInput)
	}
	msgs, err := s.messages.ListConversation(ctx, caller.UserID, peerID, s.HistoryLimit)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, s.open(m))
	}
	return res, nil
}

func (s *Service) open(m *domain.Message) domain.Message {
	out := *m
	if !m.DeletedForAll {
		out.Content = s.encryptor.Open(m.Content)
	}
	return out
}

// ActiveChats returns one seed per peer the caller has exchanged
// messages with, most recent first. A non-empty query keeps peers whose
// id or name contains it, case-insensitively.
func (s *Service) ActiveChats(ctx context.Context, caller domain.Identity, query string) ([]domain.PeerSeed, error) {
	peers, err := s.messages.ListPeers(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))

	seeds := make([]domain.PeerSeed, 0, len(peers))
	for _, peer := range peers {
		var name string
		if u, err := s.users.GetByID(ctx, peer); err == nil {
			name = u.Name
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(peer), query) &&
			!strings.Contains(strings.ToLower(name), query) {
			continue
		}

		seed := domain.PeerSeed{PeerID: peer, PeerName: name}
		last, err := s.messages.ListConversation(ctx, caller.UserID, peer, 1)
		if err != nil {
			return nil, err
		}
		if len(last) > 0 {
			m := s.open(last[0])
			seed.LastMessage = &m
		}
		if seed.UnreadCount, err = s.messages.CountUnread(ctx, caller.UserID, peer); err != nil {
			return nil, err
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

func (s *Service) MarkRead(ctx context.Context, caller domain.Identity, peerID string) error {
	if peerID == "" {
		return fmt.Errorf("%w: peer id is required", domain.ErrInvalidInput)
	}
	return s.messages.MarkConversationRead(ctx, caller.UserID, peerID)
}

// Delete removes a message for everyone (sender only) or hides it for the
// caller.
func (s *Service) Delete(ctx context.Context, caller domain.Identity, messageID string, forAll bool) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Peer(caller.UserID) == "" {
		return domain.ErrNotFound
	}
	if !forAll {
		return s.messages.HideForUser(ctx, caller.UserID, messageID)
	}
	if msg.SenderID != caller.UserID {
		return fmt.Errorf("%w: only the sender can delete for everyone", domain.ErrForbidden)
	}
	if msg.DeletedForAll {
		return nil
	}
	return s.messages.SoftDeleteForEveryone(ctx, messageID)
}

// Accept settles the inventory of requestID in its favour. Only the
// bakery holding the item may accept.
func (s *Service) Accept(ctx context.Context, caller domain.Identity, requestID string) (*domain.DonationRequest, error) {
	if !caller.CanResolveDonations() {
		return nil, fmt.Errorf("%w: only a bakery can accept donation requests", domain.ErrForbidden)
	}
	req, err := s.inventory.Accept(ctx, requestID, caller.UserID)
	if err != nil {
		return nil, err
	}
	s.log.Info("donation request accepted",
		"request_id", req.ID,
		"inventory_id", req.InventoryID,
		"accepted_by", caller.UserID,
	)
	return req, nil
}

// Cancel withdraws a pending request. The requester and the bakery
// holding the item may cancel.
func (s *Service) Cancel(ctx context.Context, caller domain.Identity, requestID string) (*domain.DonationRequest, error) {
	req, err := s.inventory.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	item, err := s.inventory.GetItem(ctx, req.InventoryID)
	if err != nil {
		return nil, err
	}
	if caller.UserID != req.RequesterID && caller.UserID != item.OwnerID {
		return nil, domain.ErrForbidden
	}
	return s.inventory.Cancel(ctx, requestID)
}

// InventoryStatus projects an item and its requests onto the status the
// client caches.
func (s *Service) InventoryStatus(ctx context.Context, inventoryID string) (*domain.InventoryStatus, error) {
	item, err := s.inventory.GetItem(ctx, inventoryID)
	if err != nil {
		return nil, err
	}
	reqs, err := s.inventory.ListRequests(ctx, inventoryID)
	if err != nil {
		return nil, err
	}
	st := &domain.InventoryStatus{
		InventoryID:       item.ID,
		RemainingQuantity: item.RemainingQuantity,
		RequestStatuses:   make(map[string]domain.RequestState, len(reqs)),
	}
	for _, r := range reqs {
		rs := domain.RequestState{Status: r.Status}
		if r.AcceptedBy != nil {
			rs.AcceptedBy = *r.AcceptedBy
		}
		st.RequestStatuses[r.ID] = rs
	}
	return st, nil
}

// InventoryInput describes an item a bakery offers for donation.
type InventoryInput struct {
	ID                string `json:"id"`
	ProductName       string `json:"product_name"`
	RemainingQuantity int    `json:"remaining_quantity"`
}

func (s *Service) CreateInventory(ctx context.Context, caller domain.Identity, in InventoryInput) (*domain.InventoryItem, error) {
	if !caller.CanResolveDonations() {
		return nil, fmt.Errorf("%w: only a bakery can offer inventory", domain.ErrForbidden)
	}
	in.ProductName = strings.TrimSpace(in.ProductName)
	if in.ProductName == "" || in.RemainingQuantity <= 0 {
		return nil, fmt.Errorf("%w: product_name and a positive remaining_quantity are required", domain.ErrInvalidInput)
	}
	if in.ID == "" {
		in.ID = s.newID()
	} else if _, err := s.inventory.GetItem(ctx, in.ID); err == nil {
		return nil, fmt.Errorf("%w: inventory %q already exists", domain.ErrConflict, in.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	item := &domain.InventoryItem{
		ID:                in.ID,
		OwnerID:           caller.UserID,
		ProductName:       in.ProductName,
		RemainingQuantity: in.RemainingQuantity,
		CreatedAt:         s.now(),
	}
	if err := s.inventory.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}
