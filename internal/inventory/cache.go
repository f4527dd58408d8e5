// Package inventory caches the authoritative status of inventory items
// referenced by donation cards and keeps it fresh.
package inventory

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
)

// Entry is one cached status together with when and in which order it
// was requested.
type Entry struct {
	Status    domain.InventoryStatus
	FetchedAt time.Time
	Seq       uint64
}

// Cache holds the latest Inventory Status per inventory id. Writes are
// last-write-wins by request order: a response to an older request never
// replaces the answer to a newer one.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	seq     atomic.Uint64
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// NextSeq reserves the ordering slot for a fetch about to be issued.
func (c *Cache) NextSeq() uint64 {
	return c.seq.Add(1)
}

// Put stores st if seq is not older than the cached entry. It reports
// whether the visible status changed.
func (c *Cache) Put(st *domain.InventoryStatus, seq uint64, at time.Time) bool {
	if st == nil || st.InventoryID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.entries[st.InventoryID]
	if ok && seq < prev.Seq {
		return false
	}
	c.entries[st.InventoryID] = Entry{Status: copyStatus(st), FetchedAt: at, Seq: seq}
	return !ok || !sameStatus(&prev.Status, st)
}

func (c *Cache) Get(inventoryID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[inventoryID]
	if !ok {
		return Entry{}, false
	}
	e.Status = copyStatus(&e.Status)
	return e, true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func copyStatus(st *domain.InventoryStatus) domain.InventoryStatus {
	out := *st
	out.RequestStatuses = maps.Clone(st.RequestStatuses)
	if out.RequestStatuses == nil {
		out.RequestStatuses = map[string]domain.RequestState{}
	}
	return out
}

func sameStatus(a, b *domain.InventoryStatus) bool {
	if a.RemainingQuantity != b.RemainingQuantity || len(a.RequestStatuses) != len(b.RequestStatuses) {
		return false
	}
	return maps.Equal(a.RequestStatuses, b.RequestStatuses)
}
