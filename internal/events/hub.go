// Package events fans batch notifications out to any number of consumers.
package events

import (
	"sync"

	"ytbatch/internal/model"
)

type Type string

const (
	TypeProgress Type = "download-progress"
	TypeStopping Type = "downloads-stopping"
	TypeStopped  Type = "downloads-stopped"
)

// Message is one outbound notification. Event is set for progress messages
// and Summary for the batch-finished message.
type Message struct {
	Type    Type                 `json:"type"`
	Event   *model.ProgressEvent `json:"event,omitempty"`
	Summary *model.BatchSummary  `json:"summary,omitempty"`
}

func Progress(ev model.ProgressEvent) Message {
	return Message{Type: TypeProgress, Event: &ev}
}

func Stopping() Message {
	return Message{Type: TypeStopping}
}

func Stopped(summary model.BatchSummary) Message {
	return Message{Type: TypeStopped, Summary: &summary}
}

// Hub delivers every published message to every live subscription in
// publish order. Publish never blocks on a slow consumer and never drops.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

func (h *Hub) Publish(m Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		s.push(m)
	}
}

// Subscribe registers a consumer. Messages published before the call are
// not replayed. On a closed hub the returned channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{
		hub:  h,
		out:  make(chan Message),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.done)
		close(s.out)
		return s
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	go s.loop()
	return s
}

func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.closed = true
	h.mu.Unlock()
	for s := range subs {
		s.stop()
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Subscription is a per-consumer unbounded mailbox.
type Subscription struct {
	hub *Hub
	out chan Message

	mu    sync.Mutex
	queue []Message
	wake  chan struct{}

	done     chan struct{}
	stopOnce sync.Once
}

// C yields messages in publish order until Close.
func (s *Subscription) C() <-chan Message {
	return s.out
}

func (s *Subscription) Close() {
	s.hub.remove(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Subscription) push(m Message) {
	s.mu.Lock()
	s.queue = append(s.queue, m)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) loop() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		m := s.queue[0]
		s.queue[0] = Message{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- m:
		case <-s.done:
			return
		}
	}
}
