package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/metrics"
)

// Fetcher is the slice of the backend the poller needs.
type Fetcher interface {
	InventoryStatus(ctx context.Context, inventoryID string) (*domain.InventoryStatus, error)
}

// Poller refreshes cached statuses. Each id is fetched independently; a
// failure leaves that id's entry untouched.
type Poller struct {
	fetcher     Fetcher
	cache       *Cache
	log         *slog.Logger
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time

	// OnUpdate, when set, is called with every inventory id whose status
	// changed.
	OnUpdate func(inventoryID string)
}

func NewPoller(fetcher Fetcher, cache *Cache, log *slog.Logger, m *metrics.Metrics) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		fetcher:     fetcher,
		cache:       cache,
		log:         log,
		metrics:     m,
		concurrency: 8,
		now:         time.Now,
	}
}

func (p *Poller) Cache() *Cache { return p.cache }

// Poll fetches the status of every distinct id concurrently. The returned
// error joins the per-id failures; successful ids are cached regardless.
func (p *Poller) Poll(ctx context.Context, ids []string) error {
	ids = distinct(ids)
	if len(ids) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(p.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := p.Refresh(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Refresh fetches and caches a single id, returning the fresh status. The
// entry is stamped with the time the fetch was issued, so a response can
// never look newer than a local change made while it was in flight.
func (p *Poller) Refresh(ctx context.Context, inventoryID string) (*domain.InventoryStatus, error) {
	seq, issued := p.cache.NextSeq(), p.now()
	st, err := p.fetcher.InventoryStatus(ctx, inventoryID)
	if err != nil {
		p.log.Warn("inventory: status fetch failed", "inventory_id", inventoryID, "err", err)
		return nil, fmt.Errorf("inventory %s: %w", inventoryID, err)
	}
	if st.InventoryID == "" {
		st.InventoryID = inventoryID
	}
	if p.cache.Put(st, seq, issued) && p.OnUpdate != nil {
		p.OnUpdate(inventoryID)
	}
	p.metrics.SetCachedItems(p.cache.Len())
	return st, nil
}

// ReferencedInventory collects the distinct inventory ids referenced by
// donation cards among msgs, in order of first appearance.
func ReferencedInventory(msgs []domain.Message) []string {
	var ids []string
	for i := range msgs {
		if card, ok := domain.CardOf(&msgs[i]); ok {
			ids = append(ids, card.Donation.InventoryID)
		}
	}
	return distinct(ids)
}

func distinct(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
