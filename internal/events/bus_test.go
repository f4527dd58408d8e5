package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	b := NewBus(nil)
	a, stopA := b.Subscribe(4)
	c, stopC := b.Subscribe(4)
	defer stopC()

	b.Publish(Event{Kind: OpenChat, PeerID: "p1"})

	ea := <-a
	ec := <-c
	assert.Equal(t, OpenChat, ea.Kind)
	assert.Equal(t, "p1", ec.PeerID)
	assert.False(t, ea.At.IsZero())

	stopA()
	stopA()
	_, ok := <-a
	assert.False(t, ok, "unsubscribe closes the channel")

	b.Publish(Event{Kind: ChatsUpdated})
	assert.Equal(t, ChatsUpdated, (<-c).Kind)
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	b := NewBus(nil)
	ch, stop := b.Subscribe(1)
	defer stop()

	b.Publish(Event{Kind: ChatsUpdated})
	b.Publish(Event{Kind: InventoryUpdated, InventoryID: "I"})

	require.Len(t, ch, 1)
	assert.Equal(t, ChatsUpdated, (<-ch).Kind)
}

func TestBusClose(t *testing.T) {
	b := NewBus(nil)
	ch, stop := b.Subscribe(1)
	b.Close()
	_, ok := <-ch
	assert.False(t, ok)
	stop()

	late, _ := b.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
}
