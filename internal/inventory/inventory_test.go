package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) InventoryStatus(ctx context.Context, id string) (*domain.InventoryStatus, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InventoryStatus), args.Error(1)
}

func status(id string, remaining int, reqs map[string]domain.RequestStatus) *domain.InventoryStatus {
	st := &domain.InventoryStatus{InventoryID: id, RemainingQuantity: remaining, RequestStatuses: map[string]domain.RequestState{}}
	for r, s := range reqs {
		st.RequestStatuses[r] = domain.RequestState{Status: s}
	}
	return st
}

func TestCacheLastWriteWinsByRequestOrder(t *testing.T) {
	c := NewCache()
	older := c.NextSeq()
	newer := c.NextSeq()

	assert.True(t, c.Put(status("I", 0, map[string]domain.RequestStatus{"A1": domain.StatusAccepted}), newer, time.Now()))
	// The slower response to the earlier request arrives last.
	assert.False(t, c.Put(status("I", 1, map[string]domain.RequestStatus{"A1": domain.StatusPending}), older, time.Now()))

	e, ok := c.Get("I")
	require.True(t, ok)
	assert.Equal(t, 0, e.Status.RemainingQuantity)
	assert.Equal(t, newer, e.Seq)
}

func TestCachePutReportsChange(t *testing.T) {
	c := NewCache()
	st := status("I", 1, map[string]domain.RequestStatus{"A1": domain.StatusPending})
	assert.True(t, c.Put(st, c.NextSeq(), time.Now()))
	assert.False(t, c.Put(st, c.NextSeq(), time.Now()))

	// Mutating the caller's copy does not leak into the cache.
	st.RequestStatuses["A1"] = domain.RequestState{Status: domain.StatusCanceled}
	e, _ := c.Get("I")
	assert.Equal(t, domain.StatusPending, e.Status.RequestStatuses["A1"].Status)
}

func TestPollerPoll(t *testing.T) {
	f := new(MockFetcher)
	f.On("InventoryStatus", mock.Anything, "I1").Return(status("I1", 2, nil), nil)
	f.On("InventoryStatus", mock.Anything, "I2").Return(nil, domain.ErrTransient)

	var mu sync.Mutex
	var updated []string
	p := NewPoller(f, NewCache(), nil, nil)
	p.OnUpdate = func(id string) {
		mu.Lock()
		defer mu.Unlock()
		updated = append(updated, id)
	}

	err := p.Poll(context.Background(), []string{"I1", "I2", "I1", ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransient))

	_, ok := p.Cache().Get("I1")
	assert.True(t, ok)
	_, ok = p.Cache().Get("I2")
	assert.False(t, ok, "a failed fetch leaves the cache unchanged")
	assert.Equal(t, []string{"I1"}, updated)
	f.AssertNumberOfCalls(t, "InventoryStatus", 2)
}

func TestPollerFailureKeepsPreviousEntry(t *testing.T) {
	f := new(MockFetcher)
	f.On("InventoryStatus", mock.Anything, "I").Return(status("I", 1, nil), nil).Once()
	f.On("InventoryStatus", mock.Anything, "I").Return(nil, domain.ErrTransient).Once()

	p := NewPoller(f, NewCache(), nil, nil)
	require.NoError(t, p.Poll(context.Background(), []string{"I"}))
	require.Error(t, p.Poll(context.Background(), []string{"I"}))

	e, ok := p.Cache().Get("I")
	require.True(t, ok)
	assert.Equal(t, 1, e.Status.RemainingQuantity)
}

func TestRefreshStampsIssueTime(t *testing.T) {
	issued := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := issued

	f := new(MockFetcher)
	f.On("InventoryStatus", mock.Anything, "I").
		Run(func(mock.Arguments) { clock = clock.Add(time.Minute) }).
		Return(status("I", 1, nil), nil)

	p := NewPoller(f, NewCache(), nil, nil)
	p.now = func() time.Time { return clock }

	_, err := p.Refresh(context.Background(), "I")
	require.NoError(t, err)

	e, ok := p.Cache().Get("I")
	require.True(t, ok)
	assert.Equal(t, issued, e.FetchedAt)
}

func TestReferencedInventory(t *testing.T) {
	card := func(req, inv string) string {
		raw, err := domain.EncodeContent(domain.DonationCard{Donation: domain.Donation{RequestID: req, InventoryID: inv}})
		require.NoError(t, err)
		return raw
	}
	msgs := []domain.Message{
		{ID: "1", Content: card("A1", "I1")},
		{ID: "2", Content: "plain"},
		{ID: "3", Content: card("A2", "I1")},
		{ID: "4", Content: card("A3", "I2")},
		{ID: "5", Content: card("A4", "I3"), DeletedForAll: true},
	}
	assert.Equal(t, []string{"I1", "I2"}, ReferencedInventory(msgs))
}
