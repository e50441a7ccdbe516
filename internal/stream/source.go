// Package stream contains the event plumbing shared by the account and
// device stores: a broadcast state cell with duplicate suppression and a
// trailing-edge debouncer. Together they re-express the reactive
// publisher/debounce chains of the mobile app as plain channels.
package stream

import "sync"

// subscriberBuffer is the per-subscriber channel capacity. Slow consumers
// conflate: when the buffer is full the oldest value is dropped so the
// pipeline never blocks on a subscriber.
const subscriberBuffer = 16

// Source is a broadcast cell holding the latest published value. Writers go
// through Publish (single writer in practice: the owning store's event
// loop); readers either Subscribe for updates or take a Latest snapshot.
type Source[T any] struct {
	mu   sync.Mutex
	eq   func(a, b T) bool
	subs map[int]chan T
	next int
	last T
	has  bool
}

// NewSource returns a Source that forwards every published value.
func NewSource[T any]() *Source[T] {
	return &Source[T]{subs: make(map[int]chan T)}
}

// NewDistinctSource returns a Source that suppresses a publish equal to the
// immediately preceding value, per eq.
func NewDistinctSource[T any](eq func(a, b T) bool) *Source[T] {
	return &Source[T]{subs: make(map[int]chan T), eq: eq}
}

// Publish stores v as the latest value and fans it out to subscribers.
// Returns false when v was suppressed as a consecutive duplicate.
func (s *Source[T]) Publish(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.has && s.eq != nil && s.eq(s.last, v) {
		return false
	}
	s.last = v
	s.has = true

	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			// Full buffer: drop the oldest queued value, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
	return true
}

// Latest returns the most recently published value, if any.
func (s *Source[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.has
}

// Subscribe registers a new consumer. The current value, if any, is
// replayed immediately so late subscribers start from known state. The
// returned cancel function must be called to release the subscription.
func (s *Source[T]) Subscribe() (<-chan T, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan T, subscriberBuffer)
	id := s.next
	s.next++
	s.subs[id] = ch

	if s.has {
		ch <- s.last
	}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
