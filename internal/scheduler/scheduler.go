// Package scheduler owns the periodic polling tasks of a session.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Avanquish/DoughNation-sub000/internal/metrics"
)

// Kind identifies a periodic task. At most one task per kind runs.
type Kind string

const (
	ActiveChats Kind = "active_chats"
	History     Kind = "history"
	Inventory   Kind = "inventory"
)

// TaskFunc performs one tick of work. An error is logged and the next
// tick proceeds as usual.
type TaskFunc func(ctx context.Context) error

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler runs independently timed periodic tasks. Close stops them
// all; no task goroutine outlives it.
type Scheduler struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	tasks  map[Kind]*task
	closed bool

	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(log *slog.Logger, m *metrics.Metrics) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(map[Kind]*task),
		log:     log,
		metrics: m,
	}
}

// Start launches fn for kind: once immediately, then every interval.
// Starting a kind that is already running is a no-op and returns false.
func (s *Scheduler) Start(kind Kind, interval time.Duration, fn TaskFunc) bool {
	if interval <= 0 {
		panic(fmt.Sprintf("scheduler: non-positive interval for %s", kind))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, running := s.tasks[kind]; running {
		return false
	}
	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[kind] = t
	go s.loop(ctx, kind, interval, fn, t.done)
	return true
}

// Stop cancels the task of the given kind and waits for it to exit. It
// must not be called from inside that task's TaskFunc.
func (s *Scheduler) Stop(kind Kind) {
	s.mu.Lock()
	t, ok := s.tasks[kind]
	delete(s.tasks, kind)
	s.mu.Unlock()

	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

func (s *Scheduler) Running(kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[kind]
	return ok
}

// Close stops every task and refuses new ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tasks := s.tasks
	s.tasks = make(map[Kind]*task)
	s.mu.Unlock()

	s.cancel()
	for _, t := range tasks {
		<-t.done
	}
}

func (s *Scheduler) loop(ctx context.Context, kind Kind, interval time.Duration, fn TaskFunc, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx, kind, fn)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, kind, fn)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, kind Kind, fn TaskFunc) {
	if ctx.Err() != nil {
		return
	}
	err := safeRun(ctx, fn)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}
	s.metrics.ObserveRun(string(kind), err)
	if err != nil {
		s.log.Warn("scheduler: tick failed", "task", kind, "err", err)
	}
}

func safeRun(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
