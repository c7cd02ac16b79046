// Package broadcast fans values out to any number of subscribers.
//
// A Broadcaster retains the last published value. A new subscriber first
// receives that value and then every later one, in publish order. Each
// subscriber has its own unbounded queue, so a slow reader never causes
// values to be dropped or merged and never blocks the publisher.
package broadcast

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("broadcaster closed")

type Broadcaster[T any] struct {
	mu      sync.Mutex
	latest  T
	hasLast bool
	closed  bool
	nextID  uint64
	subs    map[uint64]*subscriber[T]
}

type subscriber[T any] struct {
	mu     sync.Mutex
	queue  []T
	wake   chan struct{}
	done   chan struct{}
	out    chan T
	closed bool
	once   sync.Once
}

func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[uint64]*subscriber[T])}
}

// NewWithValue creates a broadcaster that already holds an initial value.
func NewWithValue[T any](initial T) *Broadcaster[T] {
	b := New[T]()
	b.latest = initial
	b.hasLast = true
	return b
}

// Publish records v as the latest value and queues it for every subscriber.
func (b *Broadcaster[T]) Publish(v T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.latest = v
	b.hasLast = true
	for _, s := range b.subs {
		s.push(v)
	}
	return nil
}

// Latest returns the retained value, if any.
func (b *Broadcaster[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.hasLast
}

// Subscribe attaches a subscriber. The returned channel is closed when the
// context ends, the cancel func is called, or the broadcaster is closed.
func (b *Broadcaster[T]) Subscribe(ctx context.Context) (<-chan T, func()) {
	s := &subscriber[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan T),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.out)
		return s.out, func() {}
	}
	id := b.nextID
	b.nextID++
	if b.hasLast {
		s.push(b.latest)
	}
	b.subs[id] = s
	b.mu.Unlock()

	go func() {
		s.pump(ctx)
		b.remove(id)
	}()

	cancel := func() {
		b.remove(id)
		s.stop()
	}
	return s.out, cancel
}

func (b *Broadcaster[T]) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscribers returns the number of attached subscribers.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close detaches every subscriber. Values already queued are still delivered.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uint64]*subscriber[T])
	b.mu.Unlock()

	for _, s := range subs {
		s.finish()
	}
}

func (s *subscriber[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// finish marks the queue as final; pump drains it and closes out.
func (s *subscriber[T]) finish() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber[T]) pump(ctx context.Context) {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
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
		case <-ctx.Done():
			return
		}
	}
}
