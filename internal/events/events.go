// Package events carries news events to reactive bots.
package events

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type NewsEvent struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary,omitempty"`
	Symbols     []string  `json:"symbols"`
	PublishedAt time.Time `json:"published_at"`
}

// Mentions reports whether the event names symbol.
func (e NewsEvent) Mentions(symbol string) bool {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, s := range e.Symbols {
		if strings.ToUpper(strings.TrimSpace(s)) == symbol {
			return true
		}
	}
	return false
}

// SourceKey is the rate limiting key; events without a source share one bucket.
func (e NewsEvent) SourceKey() string {
	src := strings.ToLower(strings.TrimSpace(e.Source))
	if src == "" {
		return "unknown"
	}
	return src
}

// Handler must not block; slow consumers should queue.
type Handler func(ctx context.Context, ev NewsEvent)

type Feed interface {
	Subscribe(ctx context.Context, topic string, h Handler) (unsubscribe func(), err error)
}

// Bus is an in-process Feed. Publish fans out synchronously on the caller goroutine.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[string]map[uint64]Handler
}

var _ Feed = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[uint64]Handler)}
}

func (b *Bus) Subscribe(_ context.Context, topic string, h Handler) (func(), error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handler is required")
	}
	b.mu.Lock()
	b.next++
	id := b.next
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			b.mu.Unlock()
		})
	}, nil
}

// Publish returns the number of handlers the event reached.
func (b *Bus) Publish(ctx context.Context, topic string, ev NewsEvent) int {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs[topic]))
	for id := range b.subs[topic] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[topic][id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
	return len(handlers)
}

func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
