package chat

import "sync"

// Subscription delivers events in the order they were published until Unsubscribe is
// called. Delivery never blocks the publisher and never drops events: undelivered events
// queue per subscription.
type Subscription[T any] struct {
	out    chan T
	notify chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	queue  []T
	closed bool

	once   sync.Once
	remove func()
}

func newSubscription[T any](remove func()) *Subscription[T] {
	s := &Subscription[T]{
		out:    make(chan T),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		remove: remove,
	}
	go s.pump()
	return s
}

// Events returns the delivery channel. It is closed after Unsubscribe.
func (s *Subscription[T]) Events() <-chan T {
	return s.out
}

// Unsubscribe stops delivery. Events still queued are discarded. Safe to call repeatedly.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		if s.remove != nil {
			s.remove()
		}
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			v := s.queue[0]
			var zero T
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- v:
			case <-s.done:
				return
			}
		}
	}
}

// broadcaster fans values out to subscriptions registered before each publish.
type broadcaster[T any] struct {
	mu     sync.Mutex
	subs   []*Subscription[T]
	closed bool
}

func (b *broadcaster[T]) subscribe() *Subscription[T] {
	var sub *Subscription[T]
	sub = newSubscription[T](func() { b.remove(sub) })

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		// Nothing will ever be published; hand back an already finished subscription.
		sub.Unsubscribe()
		return sub
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

func (b *broadcaster[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// publish queues v on every current subscription. Holding the lock across the pushes keeps
// publish order identical for all subscribers.
func (b *broadcaster[T]) publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.push(v)
	}
	return len(b.subs)
}

// close unsubscribes everybody and rejects later subscriptions.
func (b *broadcaster[T]) close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
