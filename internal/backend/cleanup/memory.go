package cleanup

import (
	"context"
	"sync"
)

// MemoryQueue is the in-process fallback when no redis address is
// configured. Pending cleanups are lost on restart.
type MemoryQueue struct {
	mu   sync.Mutex
	keys []string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.keys = append(q.keys, key)
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.keys) == 0 {
		return "", false, nil
	}
	key := q.keys[0]
	q.keys = q.keys[1:]
	return key, true, nil
}

func (q *MemoryQueue) Close() error {
	return nil
}
