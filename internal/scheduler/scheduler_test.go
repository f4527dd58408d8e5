package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avanquish/DoughNation-sub000/internal/metrics"
)

const tick = 5 * time.Millisecond

func TestStartRunsImmediatelyAndRepeats(t *testing.T) {
	s := New(nil, nil)
	defer s.Close()

	var n atomic.Int32
	require.True(t, s.Start(History, tick, func(ctx context.Context) error {
		n.Add(1)
		return nil
	}))
	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, tick)
}

func TestStartIsIdempotent(t *testing.T) {
	s := New(nil, nil)
	defer s.Close()

	var first, second atomic.Int32
	assert.True(t, s.Start(ActiveChats, time.Hour, func(ctx context.Context) error { first.Add(1); return nil }))
	assert.False(t, s.Start(ActiveChats, time.Hour, func(ctx context.Context) error { second.Add(1); return nil }))

	assert.Eventually(t, func() bool { return first.Load() == 1 }, time.Second, tick)
	assert.Equal(t, int32(0), second.Load())
}

func TestFailuresDoNotStopTheLoop(t *testing.T) {
	m := metrics.New()
	s := New(nil, m)
	defer s.Close()

	var n atomic.Int32
	s.Start(Inventory, tick, func(ctx context.Context) error {
		switch n.Add(1) {
		case 1:
			return errors.New("backend down")
		case 2:
			panic("bad payload")
		}
		return nil
	})
	assert.Eventually(t, func() bool { return n.Load() >= 4 }, time.Second, tick)
}

func TestStopOnlyAffectsItsKind(t *testing.T) {
	s := New(nil, nil)
	defer s.Close()

	var chats, history atomic.Int32
	s.Start(ActiveChats, tick, func(ctx context.Context) error { chats.Add(1); return nil })
	s.Start(History, tick, func(ctx context.Context) error { history.Add(1); return nil })

	s.Stop(History)
	assert.False(t, s.Running(History))
	assert.True(t, s.Running(ActiveChats))

	stopped := history.Load()
	before := chats.Load()
	assert.Eventually(t, func() bool { return chats.Load() > before+2 }, time.Second, tick)
	assert.Equal(t, stopped, history.Load(), "a stopped task must not tick again")

	// A stopped kind can be started again.
	assert.True(t, s.Start(History, tick, func(ctx context.Context) error { return nil }))
}

func TestCloseStopsEverything(t *testing.T) {
	s := New(nil, nil)

	var live atomic.Int32
	for _, k := range []Kind{ActiveChats, History, Inventory} {
		s.Start(k, tick, func(ctx context.Context) error {
			live.Add(1)
			defer live.Add(-1)
			<-ctx.Done()
			return ctx.Err()
		})
	}
	assert.Eventually(t, func() bool { return live.Load() == 3 }, time.Second, tick)

	s.Close()
	assert.Equal(t, int32(0), live.Load(), "Close waits for every task to exit")
	for _, k := range []Kind{ActiveChats, History, Inventory} {
		assert.False(t, s.Running(k))
	}
	assert.False(t, s.Start(History, tick, func(ctx context.Context) error { return nil }))
	s.Close()
}
