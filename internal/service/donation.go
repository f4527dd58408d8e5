package service

import (
	"context"
	"fmt"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/events"
	"github.com/Avanquish/DoughNation-sub000/internal/inventory"
)

// Card labels shown next to a donation request.
const (
	LabelPending   = "Pending"
	LabelAccepted  = "Accepted"
	LabelCancelled = "Cancelled"
	LabelDepleted  = "Cancelled — inventory depleted"
	LabelDonated   = "Fully donated"
)

// CardView is the derived, renderable state of one donation card.
type CardView struct {
	RequestID         string               `json:"request_id"`
	InventoryID       string               `json:"inventory_id"`
	ProductName       string               `json:"product_name"`
	Quantity          int                  `json:"quantity"`
	RequesterID       string               `json:"requester_id"`
	Status            domain.RequestStatus `json:"status"`
	RemainingQuantity int                  `json:"remaining_quantity"`
	// Known reports whether an inventory status has been fetched yet.
	Known       bool   `json:"known"`
	ShowActions bool   `json:"show_actions"`
	Label       string `json:"label"`
}

// EvaluateCard derives the view of the card carried by m for viewer,
// given the cached inventory entry (known is false when nothing has been
// fetched for the card's inventory yet).
func EvaluateCard(m *domain.Message, viewer domain.Identity, entry inventory.Entry, known bool) (CardView, bool) {
	card, ok := domain.CardOf(m)
	if !ok {
		return CardView{}, false
	}
	v := CardView{
		RequestID:   card.Donation.RequestID,
		InventoryID: card.Donation.InventoryID,
		ProductName: card.Donation.ProductName,
		Quantity:    card.Donation.Quantity,
		RequesterID: card.RequesterID,
		Known:       known,
	}
	if v.RequesterID == "" {
		v.RequesterID = m.SenderID
	}

	var (
		auth   domain.RequestState
		authOK bool
	)
	if known {
		v.RemainingQuantity = entry.Status.RemainingQuantity
		auth, authOK = entry.Status.StatusOf(v.RequestID)
	}
	hint := m.Local.CardHint
	hintNewer := hint != nil && (!known || hint.At.After(entry.FetchedAt))

	switch {
	case authOK && (auth.Status.Terminal() || !hintNewer):
		v.Status = auth.Status
	case hint != nil:
		v.Status = hint.Status
	case authOK:
		v.Status = auth.Status
	default:
		v.Status = domain.StatusPending
	}

	v.ShowActions = m.ReceiverID == viewer.UserID &&
		viewer.CanResolveDonations() &&
		!m.Local.Optimistic &&
		authOK && auth.Status == domain.StatusPending &&
		entry.Status.RemainingQuantity > 0 &&
		!(hintNewer && hint.Status.Terminal())

	v.Label = cardLabel(v.Status, known, v.RemainingQuantity)
	return v, true
}

func cardLabel(st domain.RequestStatus, known bool, remaining int) string {
	depleted := known && remaining <= 0
	switch st {
	case domain.StatusAccepted:
		return LabelAccepted
	case domain.StatusCanceled:
		if depleted {
			return LabelDepleted
		}
		return LabelCancelled
	default:
		if depleted {
			return LabelDonated
		}
		return LabelPending
	}
}

// CardView evaluates the card on m against the session's inventory cache.
func (s *Session) CardView(m *domain.Message) (CardView, bool) {
	card, ok := domain.CardOf(m)
	if !ok {
		return CardView{}, false
	}
	entry, known := s.cache.Get(card.Donation.InventoryID)
	return EvaluateCard(m, s.self, entry, known)
}

// ShouldShowActions reports whether the session's user may accept or
// cancel the card carried by m right now.
func (s *Session) ShouldShowActions(m *domain.Message) bool {
	v, ok := s.CardView(m)
	return ok && v.ShowActions
}

// Accept claims the inventory for the request carried by messageID.
//
// The card flips to accepted immediately. After the backend confirms,
// the inventory is refreshed, the requester is notified, and every other
// requester whose pending request the backend canceled as a side effect
// gets an unavailable notice. A rejected accept leaves the optimistic
// state in place; the next inventory tick restores the authoritative one.
func (s *Session) Accept(ctx context.Context, messageID string) error {
	m, card, err := s.actionableCard(messageID)
	if err != nil {
		return err
	}
	d := card.Donation
	before, hadBefore := s.cache.Get(d.InventoryID)

	s.store.SetCardHint(m.ID, domain.StatusAccepted)
	s.publish(events.Event{Kind: events.ConversationUpdated, PeerID: m.SenderID})

	if err := s.backend.Accept(ctx, d.RequestID); err != nil {
		s.log.Warn("donation: accept failed", "request_id", d.RequestID, "err", err)
		return fmt.Errorf("accept %s: %w", d.RequestID, err)
	}
	s.log.Info("donation: accepted", "request_id", d.RequestID, "inventory_id", d.InventoryID)

	requester := requesterOf(&m, card)
	s.notify(ctx, requester, domain.DonationAccepted{Donation: d})
	s.publish(events.Event{Kind: events.DonationAccepted, RequestID: d.RequestID, InventoryID: d.InventoryID, PeerID: requester})

	st, err := s.poller.Refresh(ctx, d.InventoryID)
	if err != nil {
		// The inventory tick will catch up; only the unavailable notices
		// depend on this snapshot.
		return nil
	}
	displaced := make(map[string]bool)
	for id, now := range st.RequestStatuses {
		if id == d.RequestID || now.Status != domain.StatusCanceled {
			continue
		}
		if hadBefore {
			if prev, ok := before.Status.StatusOf(id); ok && prev.Status != domain.StatusPending {
				continue
			}
		}
		displaced[id] = true
	}
	s.notifyDisplaced(ctx, d.InventoryID, displaced)
	return nil
}

// notifyDisplaced sends an unavailable notice for every request id in
// displaced. Cards are looked up in the store first; conversations known
// only from the active-chat seeds are then fetched until every id is
// matched.
func (s *Session) notifyDisplaced(ctx context.Context, inventoryID string, displaced map[string]bool) {
	if len(displaced) == 0 {
		return
	}
	s.notifyCards(ctx, inventoryID, displaced, s.store.All())
	if len(displaced) == 0 {
		return
	}

	s.mu.RLock()
	seeded := s.seeds != nil
	s.mu.RUnlock()
	if !seeded {
		if err := s.RefreshChats(ctx); err != nil {
			s.log.Warn("donation: active chats for unavailable notice", "err", err)
		}
	}

	for _, peer := range s.unloadedPeers() {
		if len(displaced) == 0 {
			return
		}
		if err := s.loadHistory(ctx, peer); err != nil {
			s.log.Warn("donation: history for unavailable notice", "peer_id", peer, "err", err)
			continue
		}
		s.notifyCards(ctx, inventoryID, displaced, s.store.FilterConversation(s.self.UserID, peer))
	}
	if len(displaced) > 0 {
		s.log.Warn("donation: displaced requests without a card", "inventory_id", inventoryID, "count", len(displaced))
	}
}

// notifyCards notifies the requester of every card in msgs whose request
// is in displaced, removing it from the set.
func (s *Session) notifyCards(ctx context.Context, inventoryID string, displaced map[string]bool, msgs []domain.Message) {
	for i := range msgs {
		m := &msgs[i]
		c, ok := domain.CardOf(m)
		if !ok || m.ReceiverID != s.self.UserID || c.Donation.InventoryID != inventoryID || !displaced[c.Donation.RequestID] {
			continue
		}
		delete(displaced, c.Donation.RequestID)
		peer := requesterOf(m, c)
		s.notify(ctx, peer, domain.DonationUnavailable{Donation: c.Donation})
		s.publish(events.Event{Kind: events.DonationUnavailable, RequestID: c.Donation.RequestID, InventoryID: inventoryID, PeerID: peer})
	}
}

// unloadedPeers lists seed peers whose history was never merged.
func (s *Session) unloadedPeers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var peers []string
	for _, seed := range s.seeds {
		if seed.PeerID != "" && seed.PeerID != s.self.UserID && !s.loaded[seed.PeerID] {
			peers = append(peers, seed.PeerID)
		}
	}
	return peers
}
