package cleanup

import "context"

// Queue records blob keys whose compensating delete failed after a metadata
// write error, so a background sweep can retry the delete later. Clients
// never wait on this; enqueue failures are logged, not surfaced.
type Queue interface {
	Enqueue(ctx context.Context, key string) error

	// Dequeue pops one key. The second return value is false when the queue
	// is empty.
	Dequeue(ctx context.Context) (string, bool, error)
	Close() error
}
