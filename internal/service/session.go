// Package service implements the per-user messaging session: background
// synchronization, the views derived from it, and user intents.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/events"
	"github.com/Avanquish/DoughNation-sub000/internal/inventory"
	"github.com/Avanquish/DoughNation-sub000/internal/metrics"
	"github.com/Avanquish/DoughNation-sub000/internal/msgstore"
	"github.com/Avanquish/DoughNation-sub000/internal/scheduler"
)

type Options struct {
	ChatsInterval     time.Duration
	HistoryInterval   time.Duration
	InventoryInterval time.Duration
	PageSize          int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Bus receives UI events. When nil the session creates and owns one.
	Bus *events.Bus
}

func (o *Options) withDefaults() {
	if o.ChatsInterval <= 0 {
		o.ChatsInterval = 10 * time.Second
	}
	if o.HistoryInterval <= 0 {
		o.HistoryInterval = 2 * time.Second
	}
	if o.InventoryInterval <= 0 {
		o.InventoryInterval = 3 * time.Second
	}
	if o.PageSize <= 0 {
		o.PageSize = 10
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Session is one user's view of their conversations. Background polling
// keeps it converging on the backend; intents apply optimistically and
// then call the backend.
type Session struct {
	self    domain.Identity
	backend domain.Backend
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics

	store  *msgstore.Store
	cache  *inventory.Cache
	poller *inventory.Poller
	sched  *scheduler.Scheduler
	bus    *events.Bus
	ownBus bool

	// convMu serializes open/close so history tasks never overlap.
	convMu sync.Mutex

	mu          sync.RWMutex
	openPeer    string
	seeds       []domain.PeerSeed
	searchQuery string
	searchSeeds []domain.PeerSeed
	readMarks   map[string]ReadMark
	// loaded holds peers whose history has been merged at least once.
	loaded map[string]bool

	now   func() time.Time
	newID func() string
}

func NewSession(self domain.Identity, backend domain.Backend, opts Options) *Session {
	opts.withDefaults()
	s := &Session{
		self:      self,
		backend:   backend,
		opts:      opts,
		log:       opts.Logger.With("user_id", self.UserID),
		metrics:   opts.Metrics,
		store:     msgstore.New(),
		cache:     inventory.NewCache(),
		bus:       opts.Bus,
		readMarks: make(map[string]ReadMark),
		loaded:    make(map[string]bool),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	if s.bus == nil {
		s.bus = events.NewBus(s.log)
		s.ownBus = true
	}
	s.sched = scheduler.New(s.log, s.metrics)
	s.poller = inventory.NewPoller(backend, s.cache, s.log, s.metrics)
	s.poller.OnUpdate = func(id string) {
		s.publish(events.Event{Kind: events.InventoryUpdated, InventoryID: id})
	}
	return s
}

func (s *Session) Identity() domain.Identity { return s.self }

func (s *Session) Bus() *events.Bus { return s.bus }

// Start launches the active-chats and inventory tasks. Calling it again
// is a no-op.
func (s *Session) Start() {
	s.sched.Start(scheduler.ActiveChats, s.opts.ChatsInterval, s.RefreshChats)
	s.sched.Start(scheduler.Inventory, s.opts.InventoryInterval, s.RefreshInventory)
	s.log.Info("session: started")
}

// Close stops all background work and waits for it.
func (s *Session) Close() {
	s.sched.Close()
	if s.ownBus {
		s.bus.Close()
	}
	s.log.Info("session: closed")
}

// OpenConversation makes peer the open conversation and starts polling
// its history, replacing any previous history task.
func (s *Session) OpenConversation(peer string) error {
	if peer == "" || peer == s.self.UserID {
		return fmt.Errorf("open conversation: %w", domain.ErrInvalidInput)
	}
	s.convMu.Lock()
	defer s.convMu.Unlock()

	s.mu.Lock()
	prev := s.openPeer
	s.openPeer = peer
	s.mu.Unlock()

	if prev == peer && s.sched.Running(scheduler.History) {
		return nil
	}
	s.sched.Stop(scheduler.History)
	s.sched.Start(scheduler.History, s.opts.HistoryInterval, func(ctx context.Context) error {
		return s.RefreshHistory(ctx, peer)
	})
	s.publish(events.Event{Kind: events.OpenChat, PeerID: peer})
	return nil
}

// CloseConversation stops history polling. Other tasks keep running.
func (s *Session) CloseConversation() {
	s.convMu.Lock()
	defer s.convMu.Unlock()

	s.mu.Lock()
	s.openPeer = ""
	s.mu.Unlock()
	s.sched.Stop(scheduler.History)
}

func (s *Session) OpenPeer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openPeer
}

// RefreshChats fetches the active-chat seeds, and the search result set
// when a search is active. On failure the previous seeds are kept.
func (s *Session) RefreshChats(ctx context.Context) error {
	seeds, err := s.backend.ActiveChats(ctx, "")
	if err != nil {
		return fmt.Errorf("active chats: %w", err)
	}

	s.mu.Lock()
	changed := !sameSeeds(s.seeds, seeds)
	s.seeds = seeds
	query := s.searchQuery
	s.mu.Unlock()

	if query != "" {
		found, err := s.backend.ActiveChats(ctx, query)
		if err != nil {
			return fmt.Errorf("search chats: %w", err)
		}
		s.mu.Lock()
		if s.searchQuery == query {
			changed = changed || !sameSeeds(s.searchSeeds, found)
			s.searchSeeds = found
		}
		s.mu.Unlock()
	}
	if changed {
		s.publish(events.Event{Kind: events.ChatsUpdated})
	}
	return nil
}

// RefreshHistory merges the conversation with peer. Inbound messages
// arriving while the conversation is open are marked read.
func (s *Session) RefreshHistory(ctx context.Context, peer string) error {
	if err := s.loadHistory(ctx, peer); err != nil {
		return err
	}

	if s.OpenPeer() == peer && s.hasUnreadFrom(peer) {
		if err := s.MarkRead(ctx, peer); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) loadHistory(ctx context.Context, peer string) error {
	msgs, err := s.backend.History(ctx, peer)
	if err != nil {
		return fmt.Errorf("history %s: %w", peer, err)
	}
	changed := s.store.MergeConversation(s.self.UserID, peer, msgs)

	s.mu.Lock()
	s.loaded[peer] = true
	s.mu.Unlock()

	if changed {
		s.metrics.SetStoreSize(s.store.Len())
		s.publish(events.Event{Kind: events.ConversationUpdated, PeerID: peer})
	}
	return nil
}

// RefreshInventory polls every inventory referenced by the open
// conversation, or by all conversations when none is open.
func (s *Session) RefreshInventory(ctx context.Context) error {
	var msgs []domain.Message
	if peer := s.OpenPeer(); peer != "" {
		msgs = s.store.FilterConversation(s.self.UserID, peer)
	} else {
		msgs = s.store.All()
	}
	return s.poller.Poll(ctx, inventory.ReferencedInventory(msgs))
}

// SetSearch switches the chat list to the server's result set for query.
// An empty query restores the full list.
func (s *Session) SetSearch(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)

	s.mu.Lock()
	if query == s.searchQuery {
		s.mu.Unlock()
		return nil
	}
	s.searchQuery = query
	s.searchSeeds = nil
	s.mu.Unlock()

	if query != "" {
		found, err := s.backend.ActiveChats(ctx, query)
		if err != nil {
			return fmt.Errorf("search chats: %w", err)
		}
		s.mu.Lock()
		if s.searchQuery == query {
			s.searchSeeds = found
		}
		s.mu.Unlock()
	}
	s.publish(events.Event{Kind: events.ChatsUpdated})
	return nil
}

// Summaries returns one page of the active-chat list.
func (s *Session) Summaries(page int) SummaryPage {
	s.mu.RLock()
	in := SummaryInput{
		Self:      s.self.UserID,
		Seeds:     s.seeds,
		Searching: s.searchQuery != "",
		ReadMarks: make(map[string]ReadMark, len(s.readMarks)),
		Page:      page,
		PageSize:  s.opts.PageSize,
	}
	if in.Searching {
		in.Seeds = s.searchSeeds
	}
	for k, v := range s.readMarks {
		in.ReadMarks[k] = v
	}
	query := s.searchQuery
	s.mu.RUnlock()

	in.Messages = s.store.All()
	res := Summarize(in)
	res.Query = query
	return res
}

// MessageView is a message prepared for display.
type MessageView struct {
	domain.Message
	Kind     domain.ContentKind `json:"kind"`
	Text     string             `json:"text"`
	Outgoing bool               `json:"outgoing"`
	Pending  bool               `json:"pending"`
	Failed   bool               `json:"failed"`
	Card     *CardView          `json:"card,omitempty"`
}

// Conversation renders the ordered conversation with peer.
func (s *Session) Conversation(peer string) []MessageView {
	msgs := s.store.FilterConversation(s.self.UserID, peer)
	out := make([]MessageView, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		c := domain.ContentOf(m)
		v := MessageView{
			Message:  *m,
			Kind:     c.Kind(),
			Text:     c.Text(),
			Outgoing: m.SenderID == s.self.UserID,
			Pending:  m.Local.Optimistic && !m.Local.Failed,
			Failed:   m.Local.Failed,
		}
		if cv, ok := s.CardView(m); ok {
			v.Card = &cv
			switch cv.Status {
			case domain.StatusAccepted:
				v.Text = "Donation request accepted: " + describe(cv)
			case domain.StatusCanceled:
				v.Text = "Donation request cancelled: " + describe(cv)
			}
		}
		out = append(out, v)
	}
	return out
}

func describe(cv CardView) string {
	if cv.Quantity > 0 {
		return fmt.Sprintf("%d x %s", cv.Quantity, cv.ProductName)
	}
	return cv.ProductName
}

// Send appends content to the conversation with peer immediately and
// then delivers it. A rejected send stays visible, flagged as failed.
func (s *Session) Send(ctx context.Context, peer, content string, attachment *string) (domain.Message, error) {
	if peer == "" || peer == s.self.UserID {
		return domain.Message{}, fmt.Errorf("send: %w: invalid receiver", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" && (attachment == nil || *attachment == "") {
		return domain.Message{}, fmt.Errorf("send: %w: empty message", domain.ErrInvalidInput)
	}

	local := s.store.AppendOptimistic(domain.Message{
		SenderID:   s.self.UserID,
		ReceiverID: peer,
		Content:    content,
		Attachment: attachment,
	})
	s.metrics.SetStoreSize(s.store.Len())
	s.publish(events.Event{Kind: events.MessageSent, PeerID: peer, MessageID: local.ID})

	echo, err := s.backend.Send(ctx, domain.SendInput{ReceiverID: peer, Content: content, Attachment: attachment})
	if err != nil {
		s.store.MarkFailed(local.ID)
		s.publish(events.Event{Kind: events.ConversationUpdated, PeerID: peer})
		s.log.Warn("session: send failed", "peer_id", peer, "err", err)
		return local, fmt.Errorf("send to %s: %w", peer, err)
	}
	if echo == nil {
		// Without an echo the next history merge reconciles the local copy.
		return local, nil
	}
	s.store.ReplaceOptimistic(local.ID, *echo)
	s.publish(events.Event{Kind: events.ConversationUpdated, PeerID: peer})
	return *echo, nil
}

// Delete removes a message for everyone (sender only) or hides it for
// the session's user. Local state changes only after the backend
// acknowledges; a never-delivered local message is simply dropped.
func (s *Session) Delete(ctx context.Context, messageID string, forAll bool) error {
	m, ok := s.store.Get(messageID)
	if !ok {
		return fmt.Errorf("delete %s: %w", messageID, domain.ErrNotFound)
	}
	peer := m.Peer(s.self.UserID)

	if m.Local.Optimistic {
		s.store.Hide(messageID)
		s.publish(events.Event{Kind: events.MessageDeleted, PeerID: peer, MessageID: messageID, ForAll: forAll})
		return nil
	}
	if forAll && m.SenderID != s.self.UserID {
		return fmt.Errorf("delete %s for everyone: %w", messageID, domain.ErrForbidden)
	}

	if err := s.backend.Delete(ctx, messageID, forAll); err != nil {
		return fmt.Errorf("delete %s: %w", messageID, err)
	}
	if forAll {
		s.store.MarkDeletedForAll(messageID)
	} else {
		s.store.Hide(messageID)
	}
	s.publish(events.Event{Kind: events.MessageDeleted, PeerID: peer, MessageID: messageID, ForAll: forAll})
	s.publish(events.Event{Kind: events.ChatsUpdated})
	return nil
}

// MarkRead marks the conversation with peer read, locally at once and
// then on the backend. Local read state is kept even if the backend call
// fails.
func (s *Session) MarkRead(ctx context.Context, peer string) error {
	n := s.store.MarkConversationRead(s.self.UserID, peer)
	conv := s.store.FilterConversation(s.self.UserID, peer)

	s.mu.Lock()
	mark := ReadMark{At: s.now()}
	if last := s.newestKnown(peer, conv); last != nil {
		mark.LastID, mark.LastAt = last.ID, last.Timestamp
	}
	s.readMarks[peer] = mark
	s.mu.Unlock()

	if n > 0 {
		s.publish(events.Event{Kind: events.ConversationUpdated, PeerID: peer})
	}
	s.publish(events.Event{Kind: events.ChatsUpdated})

	if err := s.backend.MarkRead(ctx, peer); err != nil {
		return fmt.Errorf("mark read %s: %w", peer, err)
	}
	return nil
}

// newestKnown returns the latest server message known for peer, from the
// seeds or the local conversation. Callers hold s.mu.
func (s *Session) newestKnown(peer string, conv []domain.Message) *domain.Message {
	var last *domain.Message
	consider := func(m *domain.Message) {
		if m == nil || m.Local.Optimistic {
			return
		}
		if last == nil || m.Timestamp.After(last.Timestamp) {
			last = m
		}
	}
	for _, list := range [][]domain.PeerSeed{s.seeds, s.searchSeeds} {
		for i := range list {
			if list[i].PeerID == peer {
				consider(list[i].LastMessage)
			}
		}
	}
	for i := range conv {
		consider(&conv[i])
	}
	return last
}

func (s *Session) hasUnreadFrom(peer string) bool {
	return slices.ContainsFunc(s.store.FilterConversation(s.self.UserID, peer), func(m domain.Message) bool {
		return m.IsUnreadFor(s.self.UserID)
	})
}

func (s *Session) publish(e events.Event) {
	if e.At.IsZero() {
		e.At = s.now()
	}
	s.bus.Publish(e)
}

func sameSeeds(a, b []domain.PeerSeed) bool {
	return slices.EqualFunc(a, b, func(x, y domain.PeerSeed) bool {
		if x.PeerID != y.PeerID || x.PeerName != y.PeerName || x.UnreadCount != y.UnreadCount {
			return false
		}
		switch {
		case x.LastMessage == nil || y.LastMessage == nil:
			return x.LastMessage == y.LastMessage
		default:
			return x.LastMessage.ID == y.LastMessage.ID && x.LastMessage.DeletedForAll == y.LastMessage.DeletedForAll
		}
	})
}
