package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/store/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	// Migrations are idempotent.
	require.NoError(t, sqlite.Migrate(db))
	return db
}

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func msg(id, from, to string, offset time.Duration) *domain.Message {
	return &domain.Message{ID: id, SenderID: from, ReceiverID: to, Content: "body " + id, Timestamp: base.Add(offset)}
}

func TestUserRepoUpsertKeepsName(t *testing.T) {
	ctx := context.Background()
	users := sqlite.NewUserRepo(openDB(t))

	require.NoError(t, users.Upsert(ctx, &domain.User{ID: "B", Name: "Corner Bakery", Role: domain.RoleBakery}))
	require.NoError(t, users.Upsert(ctx, &domain.User{ID: "B", Role: domain.RoleBakery}))

	u, err := users.GetByID(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "Corner Bakery", u.Name)
	assert.Equal(t, domain.RoleBakery, u.Role)

	_, err = users.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMessageRepoConversation(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewMessageRepo(openDB(t))

	for _, m := range []*domain.Message{
		msg("m1", "A", "B", 0),
		msg("m2", "B", "A", time.Second),
		msg("m3", "B", "A", 2*time.Second),
		msg("m4", "C", "A", 3*time.Second),
	} {
		require.NoError(t, repo.Create(ctx, m))
	}

	got, err := repo.ListConversation(ctx, "A", "B", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m3", got[2].ID)
	assert.True(t, got[1].Timestamp.Equal(base.Add(time.Second)))

	latest, err := repo.ListConversation(ctx, "A", "B", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "m3", latest[0].ID)

	peers, err := repo.ListPeers(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B"}, peers)

	n, err := repo.CountUnread(ctx, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, repo.MarkConversationRead(ctx, "A", "B"))
	n, err = repo.CountUnread(ctx, "A", "B")
	require.NoError(t, err)
	assert.Zero(t, n)

	// B's own inbound message from A is untouched by A reading.
	n, err = repo.CountUnread(ctx, "B", "A")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMessageRepoDeletes(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewMessageRepo(openDB(t))
	require.NoError(t, repo.Create(ctx, msg("m1", "A", "B", 0)))
	require.NoError(t, repo.Create(ctx, msg("m2", "A", "B", time.Second)))

	require.NoError(t, repo.SoftDeleteForEveryone(ctx, "m1"))
	m, err := repo.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, m.DeletedForAll)
	assert.Empty(t, m.Content)
	assert.ErrorIs(t, repo.SoftDeleteForEveryone(ctx, "nope"), domain.ErrNotFound)

	require.NoError(t, repo.HideForUser(ctx, "B", "m2"))
	require.NoError(t, repo.HideForUser(ctx, "B", "m2"))

	forB, err := repo.ListConversation(ctx, "B", "A", 10)
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, "m1", forB[0].ID)

	forA, err := repo.ListConversation(ctx, "A", "B", 10)
	require.NoError(t, err)
	assert.Len(t, forA, 2)
}

func seedInventory(t *testing.T, repo *sqlite.InventoryRepo, remaining int, requests ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateItem(ctx, &domain.InventoryItem{ID: "I", OwnerID: "B", ProductName: "Bread", RemainingQuantity: remaining}))
	for i, id := range requests {
		require.NoError(t, repo.CreateRequest(ctx, &domain.DonationRequest{
			ID:          id,
			InventoryID: "I",
			RequesterID: "R" + id,
			Quantity:    1,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}))
	}
}

func TestInventoryRepoAcceptSettlesCompetitors(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewInventoryRepo(openDB(t))
	seedInventory(t, repo, 1, "A1", "A2", "A3")

	req, err := repo.Accept(ctx, "A2", "B")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, req.Status)
	require.NotNil(t, req.AcceptedBy)
	assert.Equal(t, "B", *req.AcceptedBy)

	item, err := repo.GetItem(ctx, "I")
	require.NoError(t, err)
	assert.Equal(t, 0, item.RemainingQuantity)

	reqs, err := repo.ListRequests(ctx, "I")
	require.NoError(t, err)
	statuses := map[string]domain.RequestStatus{}
	for _, r := range reqs {
		statuses[r.ID] = r.Status
	}
	assert.Equal(t, map[string]domain.RequestStatus{
		"A1": domain.StatusCanceled,
		"A2": domain.StatusAccepted,
		"A3": domain.StatusCanceled,
	}, statuses)

	_, err = repo.Accept(ctx, "A1", "B")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestInventoryRepoAcceptRejections(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewInventoryRepo(openDB(t))
	seedInventory(t, repo, 5, "A1")

	_, err := repo.Accept(ctx, "A1", "someone-else")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = repo.Accept(ctx, "missing", "B")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.Cancel(ctx, "A1")
	require.NoError(t, err)
	_, err = repo.Accept(ctx, "A1", "B")
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = repo.Cancel(ctx, "A1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = repo.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInventoryRepoConcurrentAcceptsPickOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewInventoryRepo(openDB(t))
	ids := []string{"A1", "A2", "A3", "A4", "A5", "A6"}
	seedInventory(t, repo, 1, ids...)

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = repo.Accept(ctx, id, "B")
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, wins)

	item, err := repo.GetItem(ctx, "I")
	require.NoError(t, err)
	assert.Equal(t, 0, item.RemainingQuantity)
}

func TestCreateRequestWithMessageIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	messages := sqlite.NewMessageRepo(db)
	repo := sqlite.NewInventoryRepo(db)
	seedInventory(t, repo, 1, "A1")

	require.NoError(t, repo.CreateRequestWithMessage(ctx,
		&domain.DonationRequest{ID: "A2", InventoryID: "I", RequesterID: "R2", MessageID: "m2", Quantity: 1},
		msg("m2", "R2", "B", 0)))
	req, err := repo.GetRequest(ctx, "A2")
	require.NoError(t, err)
	assert.Equal(t, "m2", req.MessageID)
	assert.Equal(t, domain.StatusPending, req.Status)
	_, err = messages.GetByID(ctx, "m2")
	require.NoError(t, err)

	// A failing request insert leaves no card message behind.
	err = repo.CreateRequestWithMessage(ctx,
		&domain.DonationRequest{ID: "A1", InventoryID: "I", RequesterID: "R3", MessageID: "m3", Quantity: 1},
		msg("m3", "R3", "B", time.Second))
	require.Error(t, err)
	_, err = messages.GetByID(ctx, "m3")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// A failing message insert leaves no request behind.
	err = repo.CreateRequestWithMessage(ctx,
		&domain.DonationRequest{ID: "A4", InventoryID: "I", RequesterID: "R2", MessageID: "m2", Quantity: 1},
		msg("m2", "R2", "B", 2*time.Second))
	require.Error(t, err)
	_, err = repo.GetRequest(ctx, "A4")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
