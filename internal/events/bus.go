// Package events is the publish/subscribe seam between writers of
// notifications and the readers that cache them.
package events

import (
	"context"
	"sync"

	"transport-backend/internal/models"
)

const TopicNotificationsRefresh = "notifications.refresh"

// Event tells subscribers that data for Role (and RecipientID, when set)
// changed. A zero Role means every role.
type Event struct {
	Topic       string          `json:"topic"`
	Role        models.UserRole `json:"role,omitempty"`
	RecipientID *uint           `json:"recipient_id,omitempty"`
	Source      string          `json:"source,omitempty"`
}

type Handler func(Event)

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe registers h for topic. The returned func removes it and is
	// safe to call more than once.
	Subscribe(topic string, h Handler) (unsubscribe func())
	Close() error
}

// LocalBus delivers events synchronously to subscribers in this process.
type LocalBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[int]Handler)}
}

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	b.dispatch(ev)
	return nil
}

func (b *LocalBus) dispatch(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Topic]))
	for _, h := range b.subs[ev.Topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (b *LocalBus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.subs[topic][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], id)
			b.mu.Unlock()
		})
	}
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[string]map[int]Handler)
	b.mu.Unlock()
	return nil
}
