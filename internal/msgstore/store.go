// Package msgstore holds the session's in-memory view of messages and the
// merge rules that reconcile it with repeatedly polled server data.
package msgstore

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
)

// LocalIDPrefix marks identifiers synthesized by the client.
const LocalIDPrefix = "local-"

// reconcileSkew bounds how much earlier than its optimistic copy a
// server message may be timestamped and still replace it.
const reconcileSkew = 2 * time.Minute

// Store is the authoritative in-memory set of messages for a session,
// kept sorted by (timestamp, id). It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Message
	ordered []*domain.Message
	hidden  map[string]struct{}
	now     func() time.Time
}

func New() *Store {
	return &Store{
		byID:   make(map[string]*domain.Message),
		hidden: make(map[string]struct{}),
		now:    time.Now,
	}
}

// Merge folds server messages into the store and reports whether
// anything visible changed. It is idempotent: merging the same input
// again is a no-op.
//
// Precedence for an id already present: server timestamp and content are
// canonical, fields the incoming record leaves empty keep their current
// value, is_read and deleted_for_all only move forward, and a tombstone
// never regains content. Optimistic markers clear because the entry is
// now confirmed; an optimistic card hint survives until the inventory
// authority supersedes it.
func (s *Store) Merge(incoming []domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(incoming)
}

// MergeConversation merges a history fetch for the conversation between
// self and peer and retires optimistic messages the server now reports.
func (s *Store) MergeConversation(self, peer string, incoming []domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	claimed := make(map[string]struct{})
	for _, local := range s.ordered {
		if !local.Local.Optimistic || !local.Involves(self, peer) {
			continue
		}
		for i := range incoming {
			in := &incoming[i]
			if _, known := s.byID[in.ID]; known {
				continue
			}
			if _, taken := claimed[in.ID]; taken {
				continue
			}
			if in.SenderID != local.SenderID || in.ReceiverID != local.ReceiverID || in.Content != local.Content {
				continue
			}
			if in.Timestamp.Before(local.Timestamp.Add(-reconcileSkew)) {
				continue
			}
			claimed[in.ID] = struct{}{}
			delete(s.byID, local.ID)
			changed = true
			break
		}
	}
	if changed {
		s.rebuildLocked()
	}
	return s.mergeLocked(incoming) || changed
}

func (s *Store) mergeLocked(incoming []domain.Message) bool {
	changed := false
	for _, in := range incoming {
		if in.ID == "" {
			continue
		}
		if _, gone := s.hidden[in.ID]; gone {
			continue
		}
		cur, ok := s.byID[in.ID]
		if !ok {
			m := in
			m.Local = domain.LocalState{}
			if m.DeletedForAll {
				m.Content, m.Attachment = "", nil
			}
			s.byID[m.ID] = &m
			changed = true
			continue
		}
		merged := mergeOne(cur, &in)
		if !sameMessage(cur, &merged) {
			*cur = merged
			changed = true
		}
	}
	if changed {
		s.rebuildLocked()
	}
	return changed
}

func mergeOne(cur, in *domain.Message) domain.Message {
	out := *in
	if out.SenderID == "" {
		out.SenderID = cur.SenderID
	}
	if out.ReceiverID == "" {
		out.ReceiverID = cur.ReceiverID
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = cur.Timestamp
	}
	if out.Content == "" {
		out.Content = cur.Content
	}
	if out.Attachment == nil {
		out.Attachment = cur.Attachment
	}
	out.IsRead = cur.IsRead || in.IsRead
	out.DeletedForAll = cur.DeletedForAll || in.DeletedForAll
	if out.DeletedForAll {
		out.Content, out.Attachment = "", nil
	}
	out.Local = domain.LocalState{CardHint: cur.Local.CardHint}
	return out
}

func sameMessage(a, b *domain.Message) bool {
	if a.ID != b.ID || a.SenderID != b.SenderID || a.ReceiverID != b.ReceiverID ||
		!a.Timestamp.Equal(b.Timestamp) || a.Content != b.Content ||
		a.IsRead != b.IsRead || a.DeletedForAll != b.DeletedForAll ||
		a.Local.Optimistic != b.Local.Optimistic || a.Local.Failed != b.Local.Failed {
		return false
	}
	if (a.Attachment == nil) != (b.Attachment == nil) || (a.Attachment != nil && *a.Attachment != *b.Attachment) {
		return false
	}
	return a.Local.CardHint == b.Local.CardHint
}

func (s *Store) rebuildLocked() {
	s.ordered = s.ordered[:0]
	for _, m := range s.byID {
		s.ordered = append(s.ordered, m)
	}
	slices.SortFunc(s.ordered, func(a, b *domain.Message) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// AppendOptimistic inserts a client-synthesized message immediately. An
// empty id gets a local identifier and a zero timestamp gets the current
// time. The stored copy is returned.
func (s *Store) AppendOptimistic(m domain.Message) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = LocalIDPrefix + uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now().UTC()
	}
	m.Local = domain.LocalState{Optimistic: true}
	s.byID[m.ID] = &m
	s.rebuildLocked()
	return clone(&m)
}

// ReplaceOptimistic swaps a local message for the server's echo of it.
func (s *Store) ReplaceOptimistic(localID string, confirmed domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.byID[localID]; ok && cur.Local.Optimistic {
		delete(s.byID, localID)
	}
	s.rebuildLocked()
	s.mergeLocked([]domain.Message{confirmed})
}

// MarkFailed flags an optimistic message whose send was rejected.
func (s *Store) MarkFailed(localID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[localID]
	if !ok || !cur.Local.Optimistic {
		return false
	}
	cur.Local.Failed = true
	return true
}

// FilterConversation returns the ordered messages exchanged between self
// and peer.
func (s *Store) FilterConversation(self, peer string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []domain.Message
	for _, m := range s.ordered {
		if m.Involves(self, peer) {
			res = append(res, clone(m))
		}
	}
	return res
}

// MarkConversationRead marks every inbound message from peer as read and
// returns how many changed.
func (s *Store) MarkConversationRead(self, peer string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.ordered {
		if m.SenderID == peer && m.ReceiverID == self && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n
}

// MarkDeletedForAll turns a message into a tombstone. The flag is
// permanent for the lifetime of the store.
func (s *Store) MarkDeletedForAll(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok || m.DeletedForAll {
		return false
	}
	m.DeletedForAll = true
	m.Content, m.Attachment = "", nil
	return true
}

// Hide removes a message locally (delete for me). Later merges never
// bring it back.
func (s *Store) Hide(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hidden[id] = struct{}{}
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	s.rebuildLocked()
	return true
}

// SetCardHint records an optimistic donation status on a message.
func (s *Store) SetCardHint(id string, status domain.RequestStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return false
	}
	m.Local.CardHint = &domain.CardHint{Status: status, At: s.now()}
	return true
}

func (s *Store) Get(id string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return domain.Message{}, false
	}
	return clone(m), true
}

// All returns every message in order.
func (s *Store) All() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]domain.Message, 0, len(s.ordered))
	for _, m := range s.ordered {
		res = append(res, clone(m))
	}
	return res
}

// Peers lists the distinct conversation partners of self, in order of
// first appearance.
func (s *Store) Peers(self string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var res []string
	for _, m := range s.ordered {
		p := m.Peer(self)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		res = append(res, p)
	}
	return res
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered)
}

func clone(m *domain.Message) domain.Message {
	c := *m
	if m.Attachment != nil {
		a := *m.Attachment
		c.Attachment = &a
	}
	if m.Local.CardHint != nil {
		h := *m.Local.CardHint
		c.Local.CardHint = &h
	}
	return c
}
