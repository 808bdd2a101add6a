package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"voicekey/internal/domain"
)

type delivery struct {
	ctx   context.Context
	event domain.Event
}

// subscription owns a mailbox drained by one goroutine, so a subscriber sees
// events in publish order even when it is slow.
type subscription struct {
	id      uint64
	handler domain.EventHandler

	mu      sync.Mutex
	queue   []delivery
	signal  chan struct{}
	quit    chan struct{}
	stopped bool
}

func newSubscription(id uint64, handler domain.EventHandler) *subscription {
	return &subscription{
		id:      id,
		handler: handler,
		signal:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
}

func (s *subscription) enqueue(d delivery) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, d)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// stop ends the worker. With drain set, queued events are still delivered.
func (s *subscription) stop(drain bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if !drain {
		s.queue = nil
	}
	s.mu.Unlock()
	close(s.quit)
}

func (s *subscription) take() []delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

// Bus is an in-process, goroutine-safe event bus with ordered per-subscriber
// delivery.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]*subscription
	allSubs []*subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		typed:  make(map[domain.EventType][]*subscription),
		logger: logger,
	}
}

// Publish queues an event for matching typed subscribers and all-event
// subscribers. It never blocks on handlers. The handler context keeps the
// publisher's values but not its cancellation.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.typed[event.Type])+len(b.allSubs))
	targets = append(targets, b.typed[event.Type]...)
	targets = append(targets, b.allSubs...)
	b.mu.RUnlock()

	d := delivery{ctx: context.WithoutCancel(ctx), event: event}
	for _, sub := range targets {
		sub.enqueue(d)
	}
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.signal:
			b.deliver(sub, sub.take())
		case <-sub.quit:
			b.deliver(sub, sub.take())
			return
		}
	}
}

func (b *Bus) deliver(sub *subscription, batch []delivery) {
	for _, d := range batch {
		b.invoke(sub, d)
	}
}

func (b *Bus) invoke(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

func (b *Bus) start(handler domain.EventHandler) *subscription {
	sub := newSubscription(b.nextID.Add(1), handler)
	b.wg.Add(1)
	go b.run(sub)
	return sub
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	if b.closed.Load() {
		return func() {}
	}
	sub := b.start(handler)

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		subs := b.typed[eventType]
		for i, s := range subs {
			if s.id == sub.id {
				b.typed[eventType] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.stop(false)
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	if b.closed.Load() {
		return func() {}
	}
	sub := b.start(handler)

	b.mu.Lock()
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		for i, s := range b.allSubs {
			if s.id == sub.id {
				b.allSubs = append(b.allSubs[:i:i], b.allSubs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.stop(false)
	}
}

// Close prevents new publishes, delivers everything already queued and waits
// for the subscriber goroutines to exit. Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.RLock()
	var subs []*subscription
	for _, list := range b.typed {
		subs = append(subs, list...)
	}
	subs = append(subs, b.allSubs...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.stop(true)
	}
	b.wg.Wait()
}
