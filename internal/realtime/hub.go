// Package realtime delivers row-level change events to live views. The Hub
// is an in-process broker; PGListener and RedisSubscriber bridge backend
// notification channels into it or directly into views.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/emberhealth/clinicflow/internal/liveview"
	"github.com/emberhealth/clinicflow/pkg/logging"
)

const subscriptionBuffer = 256

// Hub fans change events out to per-table subscriptions. It implements
// liveview.Subscriber and also serves as the in-memory transport for tests
// and demo mode.
type Hub struct {
	logger *logging.Logger

	mu     sync.Mutex
	subs   map[string][]*hubSubscription
	closed bool
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger: logger.Component("realtime"),
		subs:   map[string][]*hubSubscription{},
	}
}

// Subscribe opens a whole-table event stream. Each subscription is
// isolated: one slow consumer does not block the others, its own buffer
// overflowing just drops its oldest unread events.
func (h *Hub) Subscribe(ctx context.Context, table string) (liveview.Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("realtime: hub closed")
	}
	sub := &hubSubscription{
		hub:   h,
		table: table,
		ch:    make(chan liveview.ChangeEvent, subscriptionBuffer),
	}
	h.subs[table] = append(h.subs[table], sub)
	return sub, nil
}

// Publish delivers one event to every subscription on its table.
func (h *Hub) Publish(ev liveview.ChangeEvent) {
	h.mu.Lock()
	subs := make([]*hubSubscription, len(h.subs[ev.Table]))
	copy(subs, h.subs[ev.Table])
	h.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(ev, h.logger)
	}
}

// Close closes every open subscription. Safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*hubSubscription
	for _, subs := range h.subs {
		all = append(all, subs...)
	}
	h.subs = map[string][]*hubSubscription{}
	h.mu.Unlock()

	for _, sub := range all {
		sub.closeChannel()
	}
}

func (h *Hub) remove(target *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[target.table]
	for i, sub := range subs {
		if sub == target {
			h.subs[target.table] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

type hubSubscription struct {
	hub   *Hub
	table string

	mu     sync.Mutex
	ch     chan liveview.ChangeEvent
	closed bool
}

func (s *hubSubscription) Events() <-chan liveview.ChangeEvent { return s.ch }

// Close detaches from the hub. Idempotent.
func (s *hubSubscription) Close() error {
	s.hub.remove(s)
	s.closeChannel()
	return nil
}

func (s *hubSubscription) closeChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// deliver never blocks the publisher: when the buffer is full the oldest
// unread event is discarded to make room.
func (s *hubSubscription) deliver(ev liveview.ChangeEvent, logger *logging.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
			logger.Warn("subscription buffer full, dropping oldest event", "table", s.table)
		default:
		}
	}
}
