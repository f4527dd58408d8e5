package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/service"
)

func msg(id, from, to string, at time.Time, read bool) domain.Message {
	return domain.Message{ID: id, SenderID: from, ReceiverID: to, Timestamp: at, Content: id, IsRead: read}
}

func TestSummarizeOrderingAndUnion(t *testing.T) {
	seedLast := msg("s1", "R3", "B", t0.Add(time.Hour), false)
	page := service.Summarize(service.SummaryInput{
		Self: "B",
		Seeds: []domain.PeerSeed{
			{PeerID: "R3", PeerName: "Cora", LastMessage: &seedLast, UnreadCount: 2},
			{PeerID: "R4", PeerName: "Dado"},
		},
		Messages: []domain.Message{
			msg("a", "R1", "B", t0, false),
			msg("b", "B", "R1", t0.Add(time.Minute), false),
			msg("c", "R2", "B", t0.Add(2*time.Minute), false),
			msg("d", "R2", "B", t0.Add(3*time.Minute), true),
			msg("x", "R8", "R9", t0.Add(4*time.Minute), false),
		},
		Page:     1,
		PageSize: 10,
	})

	require.Equal(t, 4, page.Total)
	var order []string
	for _, it := range page.Items {
		order = append(order, it.PeerID)
	}
	// Peers without any message sort last.
	assert.Equal(t, []string{"R3", "R2", "R1", "R4"}, order)

	assert.Equal(t, "Cora", page.Items[0].PeerName)
	assert.Equal(t, 2, page.Items[0].UnreadCount, "falls back to the seed when nothing is stored locally")
	assert.Equal(t, "d", page.Items[1].LastMessage.ID)
	assert.Equal(t, 1, page.Items[1].UnreadCount)
	assert.Equal(t, "b", page.Items[2].LastMessage.ID)
	assert.Equal(t, 1, page.Items[2].UnreadCount, "outbound messages never count as unread")
	assert.Nil(t, page.Items[3].LastMessage)
}

func TestSummarizeTombstoneAndTies(t *testing.T) {
	gone := msg("g", "R1", "B", t0, false)
	gone.DeletedForAll = true
	page := service.Summarize(service.SummaryInput{
		Self:     "B",
		Messages: []domain.Message{gone, msg("h", "R2", "B", t0, true)},
		PageSize: 10,
	})

	require.Len(t, page.Items, 2)
	assert.Equal(t, "R1", page.Items[0].PeerID, "ties break by peer id")
	assert.Empty(t, page.Items[0].LastMessage.Content)
	assert.Equal(t, 0, page.Items[0].UnreadCount, "tombstones are not unread")
}

func TestSummarizeReadMarkSuppressesStaleSeed(t *testing.T) {
	last := msg("s", "R1", "B", t0, false)
	in := service.SummaryInput{
		Self:      "B",
		Seeds:     []domain.PeerSeed{{PeerID: "R1", LastMessage: &last, UnreadCount: 4}},
		ReadMarks: map[string]service.ReadMark{"R1": {At: t0.Add(time.Second)}},
		PageSize:  10,
	}
	assert.Equal(t, 0, service.Summarize(in).Items[0].UnreadCount)

	// A message newer than the read mark brings the server count back.
	newer := msg("n", "R1", "B", t0.Add(time.Minute), false)
	in.Seeds[0].LastMessage = &newer
	in.Seeds[0].UnreadCount = 1
	assert.Equal(t, 1, service.Summarize(in).Items[0].UnreadCount)
}

func TestSummarizeReadMarkUsesServerClock(t *testing.T) {
	// The server clock runs ahead of the local one.
	last := msg("s", "R1", "B", t0.Add(5*time.Second), false)
	in := service.SummaryInput{
		Self:      "B",
		Seeds:     []domain.PeerSeed{{PeerID: "R1", LastMessage: &last, UnreadCount: 3}},
		ReadMarks: map[string]service.ReadMark{"R1": {At: t0, LastID: "s", LastAt: last.Timestamp}},
		PageSize:  10,
	}
	assert.Equal(t, 0, service.Summarize(in).Items[0].UnreadCount)

	newer := msg("n", "R1", "B", t0.Add(6*time.Second), false)
	in.Seeds[0].LastMessage = &newer
	in.Seeds[0].UnreadCount = 1
	assert.Equal(t, 1, service.Summarize(in).Items[0].UnreadCount)
}

func TestSummarizeSearchRestrictsToResultSet(t *testing.T) {
	page := service.Summarize(service.SummaryInput{
		Self:      "B",
		Seeds:     []domain.PeerSeed{{PeerID: "R2"}},
		Searching: true,
		Messages:  []domain.Message{msg("a", "R1", "B", t0, true)},
		PageSize:  10,
	})
	require.Len(t, page.Items, 1)
	assert.Equal(t, "R2", page.Items[0].PeerID)
}

func TestSummarizePagination(t *testing.T) {
	var msgs []domain.Message
	for i := range 23 {
		peer := string(rune('a' + i))
		msgs = append(msgs, msg(peer, peer, "B", t0.Add(time.Duration(i)*time.Minute), true))
	}
	in := service.SummaryInput{Self: "B", Messages: msgs, PageSize: 10}

	for _, tc := range []struct {
		page, want, items int
	}{
		{page: 1, want: 1, items: 10},
		{page: 3, want: 3, items: 3},
		{page: 0, want: 1, items: 10},
		{page: 9, want: 3, items: 3},
	} {
		in.Page = tc.page
		got := service.Summarize(in)
		assert.Equal(t, tc.want, got.Page, "page %d", tc.page)
		assert.Len(t, got.Items, tc.items, "page %d", tc.page)
		assert.Equal(t, 3, got.Pages)
		assert.Equal(t, 23, got.Total)
	}

	empty := service.Summarize(service.SummaryInput{Self: "B", Page: 5, PageSize: 10})
	assert.Equal(t, 1, empty.Page)
	assert.Empty(t, empty.Items)
}
