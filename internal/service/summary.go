package service

import (
	"cmp"
	"slices"
	"time"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
)

// SummaryPage is one page of the active-chat list.
type SummaryPage struct {
	Items    []domain.ChatSummary `json:"items"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Pages    int                  `json:"pages"`
	Total    int                  `json:"total"`
	Query    string               `json:"query,omitempty"`
}

// SummaryInput gathers everything a summary depends on.
type SummaryInput struct {
	Self  string
	Seeds []domain.PeerSeed
	// Searching restricts the list to Seeds, which then hold a server-side
	// search result set instead of the full peer list.
	Searching bool
	Messages  []domain.Message
	ReadMarks map[string]ReadMark
	Page      int
	PageSize  int
}

// ReadMark records a local mark_read. LastID and LastAt identify the
// newest message known for the conversation at that moment, as stamped by
// the server, so seeds are compared on the server's clock.
type ReadMark struct {
	At     time.Time
	LastID string
	LastAt time.Time
}

// covers reports whether the mark already accounts for last, the newest
// message a server seed knows of.
func (m ReadMark) covers(last *domain.Message) bool {
	switch {
	case m.At.IsZero():
		return false
	case last == nil:
		return true
	case m.LastID != "":
		return last.ID == m.LastID || !last.Timestamp.After(m.LastAt)
	default:
		return !last.Timestamp.After(m.At)
	}
}

type convAcc struct {
	last   *domain.Message
	unread int
}

// Summarize derives one summary per peer, most recent conversation first,
// and returns the requested page. It is a pure function of its input.
func Summarize(in SummaryInput) SummaryPage {
	acc := make(map[string]*convAcc)
	var localPeers []string
	for i := range in.Messages {
		m := &in.Messages[i]
		p := m.Peer(in.Self)
		if p == "" {
			continue
		}
		a, ok := acc[p]
		if !ok {
			a = &convAcc{}
			acc[p] = a
			localPeers = append(localPeers, p)
		}
		if a.last == nil || !m.Timestamp.Before(a.last.Timestamp) {
			a.last = m
		}
		if m.IsUnreadFor(in.Self) {
			a.unread++
		}
	}

	seeds := make(map[string]domain.PeerSeed, len(in.Seeds))
	var peers []string
	for _, s := range in.Seeds {
		if s.PeerID == "" || s.PeerID == in.Self {
			continue
		}
		if _, dup := seeds[s.PeerID]; dup {
			continue
		}
		seeds[s.PeerID] = s
		peers = append(peers, s.PeerID)
	}
	if !in.Searching {
		for _, p := range localPeers {
			if _, ok := seeds[p]; !ok {
				peers = append(peers, p)
			}
		}
	}

	items := make([]domain.ChatSummary, 0, len(peers))
	for _, p := range peers {
		items = append(items, summarizePeer(p, seeds[p], acc[p], in.ReadMarks[p]))
	}

	slices.SortFunc(items, func(a, b domain.ChatSummary) int {
		switch {
		case a.LastMessage == nil && b.LastMessage == nil:
		case a.LastMessage == nil:
			return 1
		case b.LastMessage == nil:
			return -1
		default:
			if c := b.LastMessage.Timestamp.Compare(a.LastMessage.Timestamp); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.PeerID, b.PeerID)
	})

	return paginate(items, in.Page, in.PageSize)
}

func summarizePeer(peer string, seed domain.PeerSeed, local *convAcc, mark ReadMark) domain.ChatSummary {
	sum := domain.ChatSummary{PeerID: peer, PeerName: seed.PeerName}

	var localLast *domain.Message
	localUnread := 0
	if local != nil {
		localLast = local.last
		localUnread = local.unread
	}

	// The store only holds history of conversations opened this session,
	// so the server seed may know of newer messages.
	last := localLast
	if seed.LastMessage != nil && (last == nil || (seed.LastMessage.ID != last.ID && seed.LastMessage.Timestamp.After(last.Timestamp))) {
		last = seed.LastMessage
	}
	if last != nil {
		c := *last
		if c.DeletedForAll {
			c.Content, c.Attachment = "", nil
		}
		sum.LastMessage = &c
	}

	seedUnread := seed.UnreadCount
	if mark.covers(seed.LastMessage) {
		seedUnread = 0
	}
	sum.UnreadCount = max(localUnread, seedUnread)
	return sum
}

func paginate(items []domain.ChatSummary, page, pageSize int) SummaryPage {
	if pageSize <= 0 {
		pageSize = 10
	}
	total := len(items)
	pages := max(1, (total+pageSize-1)/pageSize)
	page = min(max(page, 1), pages)

	start := (page - 1) * pageSize
	end := min(start+pageSize, total)
	return SummaryPage{
		Items:    items[start:end],
		Page:     page,
		PageSize: pageSize,
		Pages:    pages,
		Total:    total,
	}
}
