// Package events is an in-process publish/subscribe bus with typed topics.
package events

import (
	"sync"
	"sync/atomic"
)

const defaultBuffer = 32

// Topic names a stream of events carrying payloads of type T.
type Topic[T any] struct {
	name string
}

func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

func (t Topic[T]) Name() string {
	return t.name
}

type deliverFunc func(v any) bool

// Bus fans published events out to subscribers. Publishing never blocks: a subscriber whose
// buffer is full misses the event, which is counted in Dropped.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]deliverFunc
	nextID  uint64
	dropped atomic.Int64
}

func NewBus() *Bus {
	return &Bus{subs: map[string]map[uint64]deliverFunc{}}
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) add(topic string, fn deliverFunc) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = map[uint64]deliverFunc{}
	}
	b.subs[topic][id] = fn
	return id
}

func (b *Bus) remove(topic string, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[topic]
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(b.subs, topic)
	}
	return true
}

func (b *Bus) publish(topic string, v any) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for _, fn := range b.subs[topic] {
		if fn(v) {
			delivered++
			continue
		}
		b.dropped.Add(1)
	}
	return delivered
}

// Subscription receives events of one topic on C until Close is called.
type Subscription[T any] struct {
	C     <-chan T
	close func()
	once  sync.Once
}

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.close)
}

// Subscribe registers a buffered subscriber for topic.
func Subscribe[T any](b *Bus, topic Topic[T], buffer int) *Subscription[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan T, buffer)
	id := b.add(topic.name, func(v any) bool {
		tv, ok := v.(T)
		if !ok {
			return false
		}
		select {
		case ch <- tv:
			return true
		default:
			return false
		}
	})
	return &Subscription[T]{
		C: ch,
		close: func() {
			if b.remove(topic.name, id) {
				close(ch)
			}
		},
	}
}

// Publish delivers v to every current subscriber of topic and returns how many received it.
// A nil bus is a no-op.
func Publish[T any](b *Bus, topic Topic[T], v T) int {
	if b == nil {
		return 0
	}
	return b.publish(topic.name, v)
}
