// Package hub fans session state-change events out to live subscribers.
package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/importflow/internal/domain"
)

const defaultBuffer = 64

// Subscriber is a fan-out target registered against one session id. It owns
// no session data; it only receives events.
type Subscriber struct {
	sessionID uuid.UUID
	ch        chan domain.Event

	mu     sync.Mutex
	closed bool
}

// Events returns the channel delivering broadcast events. The channel is
// closed when the subscriber is unsubscribed or the session is removed.
func (s *Subscriber) Events() <-chan domain.Event {
	return s.ch
}

// SessionID returns the session this subscriber is registered against.
func (s *Subscriber) SessionID() uuid.UUID {
	return s.sessionID
}

// send delivers without blocking. A full buffer means the subscriber has
// stalled; it reports false and will be pruned by the publisher.
func (s *Subscriber) send(ev domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub maintains per-session subscriber sets. Publish never blocks on a
// slow subscriber; stalled or closed subscribers are pruned lazily on the
// next publish attempt.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscriber]struct{}
	buffer int
	log    *logrus.Logger
}

// New creates a hub with the given per-subscriber buffer size.
func New(log *logrus.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscriber]struct{}),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a new subscriber for the session id.
func (h *Hub) Subscribe(sessionID uuid.UUID) *Subscriber {
	sub := &Subscriber{
		sessionID: sessionID,
		ch:        make(chan domain.Event, h.buffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	h.remove(sub)
	h.mu.Unlock()
	sub.close()
}

// Publish fans the event out to every live subscriber of the session.
// Delivery is independent per subscriber; one stalled client never delays
// the others or the caller.
func (h *Hub) Publish(sessionID uuid.UUID, ev domain.Event) {
	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subs[sessionID]))
	for sub := range h.subs[sessionID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var stalled []*Subscriber
	for _, sub := range targets {
		if !sub.send(ev) {
			stalled = append(stalled, sub)
		}
	}

	if len(stalled) == 0 {
		return
	}
	h.mu.Lock()
	for _, sub := range stalled {
		h.remove(sub)
	}
	h.mu.Unlock()
	for _, sub := range stalled {
		sub.close()
		if h.log != nil {
			h.log.WithFields(logrus.Fields{
				"session": sessionID,
				"event":   ev.Type,
			}).Warn("pruned stalled subscriber")
		}
	}
}

// CloseSession closes every subscriber for the session. Called when a
// session is deleted or expires.
func (h *Hub) CloseSession(sessionID uuid.UUID) {
	h.mu.Lock()
	set := h.subs[sessionID]
	delete(h.subs, sessionID)
	h.mu.Unlock()
	for sub := range set {
		sub.close()
	}
}

// SubscriberCount returns the number of live subscribers for a session.
func (h *Hub) SubscriberCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// remove expects h.mu to be held for writing.
func (h *Hub) remove(sub *Subscriber) {
	set, ok := h.subs[sub.sessionID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.sessionID)
	}
}
