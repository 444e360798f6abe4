// Package signals carries payload-less change notifications between
// components. A Bus is an ordinary value: construct one in the server wiring
// and hand it to every consumer.
package signals

import (
	"fmt"
	"sync"
)

type Topic int

const (
	SchemaChanged Topic = iota + 1
	DatabaseChanged
	ConnectionChanged
)

var topicNames = map[Topic]string{
	SchemaChanged:     "schema-changed",
	DatabaseChanged:   "database-changed",
	ConnectionChanged: "connection-changed",
}

func (t Topic) String() string {
	if name, ok := topicNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Topic(%d)", int(t))
}

func (t Topic) Valid() bool {
	_, ok := topicNames[t]
	return ok
}

func ParseTopic(name string) (Topic, error) {
	for t, n := range topicNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown signal topic %q", name)
}

func Topics() []Topic {
	return []Topic{SchemaChanged, DatabaseChanged, ConnectionChanged}
}

type Handler func(Topic)

// Publisher is what context owners depend on to announce a change.
type Publisher interface {
	Publish(topic Topic)
}

type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic]map[uint64]Handler
}

var _ Publisher = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{
		subs: make(map[Topic]map[uint64]Handler),
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus   *Bus
	topic Topic
	id    uint64
	once  sync.Once
}

// Subscribe registers handler for topic. The handler keeps being invoked
// until the returned subscription is released.
func (b *Bus) Subscribe(topic Topic, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][id] = handler

	return &Subscription{bus: b, topic: topic, id: id}
}

// Release deregisters the handler. Calling it more than once is a no-op.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.topic], s.id)
	})
}

func (s *Subscription) Topic() Topic {
	return s.topic
}

// Publish invokes every handler currently subscribed to topic exactly once,
// synchronously, in no particular order. Handlers may subscribe or release
// from inside the call.
func (b *Bus) Publish(topic Topic) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(topic)
	}
}

// SubscriberCount returns the number of live subscriptions on topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
