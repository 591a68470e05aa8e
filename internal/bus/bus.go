// Package bus is the process-wide publish/subscribe primitive. Every
// ingestion and persistence component talks to the rest of the tracker
// through it, never directly.
package bus

import (
	"log"
	"reflect"
	"sync"
)

// Handler receives one published payload. The payload set is closed:
// handlers type-assert against the structs in internal/protocol and log
// anything unexpected.
type Handler func(payload any)

type subscription struct {
	key uintptr
	fn  Handler
}

// Bus delivers each payload to every subscriber of its topic on a
// separate goroutine. Delivery is fire-and-forget: a handler that
// panics is recovered and logged, and neither the emitter nor sibling
// subscribers observe it. No ordering is guaranteed between deliveries,
// nor between successive emits on the same topic.
type Bus struct {
	log *log.Logger

	mu   sync.Mutex
	subs map[string][]subscription

	wg sync.WaitGroup
}

func New(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{
		log:  logger,
		subs: make(map[string][]subscription),
	}
}

// Subscribe registers fn for topic. Registering the same function twice
// is a no-op; callback identity is the code pointer, so two closures
// built from the same literal count as the same callback.
func (b *Bus) Subscribe(topic string, fn Handler) {
	key := reflect.ValueOf(fn).Pointer()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs[topic] {
		if s.key == key {
			b.log.Printf("ignoring duplicate subscription for topic %s", topic)
			return
		}
	}
	b.subs[topic] = append(b.subs[topic], subscription{key: key, fn: fn})
}

// Unsubscribe removes one registration and reports whether it was
// present.
func (b *Bus) Unsubscribe(topic string, fn Handler) bool {
	key := reflect.ValueOf(fn).Pointer()

	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s.key == key {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// UnsubscribeAll removes every registration for topic and returns how
// many were removed.
func (b *Bus) UnsubscribeAll(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.subs[topic])
	delete(b.subs, topic)
	return n
}

// Emit schedules delivery of payload to every current subscriber of
// topic and returns without waiting for any of them.
func (b *Bus) Emit(topic string, payload any) {
	b.mu.Lock()
	subs := b.subs[topic]
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		fn := s.fn
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.log.Printf("subscriber panic on topic %s: %v", topic, r)
				}
			}()
			fn(payload)
		}()
	}
}

// Flush blocks until all deliveries scheduled so far have completed.
// Used during shutdown and in tests; handlers that emit further events
// are covered as long as Flush is called after they are scheduled.
func (b *Bus) Flush() {
	b.wg.Wait()
}
