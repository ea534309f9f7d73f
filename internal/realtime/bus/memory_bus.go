package bus

import (
	"context"
	"sync"
	"time"
)

// MemoryBus is an in-process Bus. Subscribers are called synchronously from Publish.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[int]func(Message)
	nextID int
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[int]func(Message){}}
}

func (b *MemoryBus) Publish(ctx context.Context, msg Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return context.Canceled
	}
	subs := make([]func(Message), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, onMsg func(m Message)) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = onMsg
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.subs = map[int]func(Message){}
	b.mu.Unlock()
	return nil
}
