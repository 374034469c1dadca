package taskqueue

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker used in tests and local
// development, mirroring the Redis broker's semantics.
type MemoryBroker struct {
	mu      sync.Mutex
	ready   map[string][][]byte
	delayed map[string][]delayedItem
}

type delayedItem struct {
	data []byte
	due  time.Time
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		ready:   make(map[string][][]byte),
		delayed: make(map[string][]delayedItem),
	}
}

func (b *MemoryBroker) Push(_ context.Context, queue string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready[queue] = append(b.ready[queue], data)
	return nil
}

func (b *MemoryBroker) PushDelayed(_ context.Context, queue string, data []byte, due time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delayed[queue] = append(b.delayed[queue], delayedItem{data: data, due: due})
	return nil
}

func (b *MemoryBroker) Pop(ctx context.Context, queue string, block time.Duration) ([]byte, error) {
	deadline := time.Now().Add(block)
	for {
		b.mu.Lock()
		if items := b.ready[queue]; len(items) > 0 {
			data := items[0]
			b.ready[queue] = items[1:]
			b.mu.Unlock()
			return data, nil
		}
		b.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (b *MemoryBroker) PromoteDue(_ context.Context, queue string, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var remaining []delayedItem
	promoted := 0
	for _, item := range b.delayed[queue] {
		if !item.due.After(now) {
			b.ready[queue] = append(b.ready[queue], item.data)
			promoted++
		} else {
			remaining = append(remaining, item)
		}
	}
	b.delayed[queue] = remaining
	return promoted, nil
}

// ReadyLen reports the number of immediately deliverable tasks
func (b *MemoryBroker) ReadyLen(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ready[queue])
}

// DelayedLen reports the number of tasks still waiting on their delay
func (b *MemoryBroker) DelayedLen(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.delayed[queue])
}
